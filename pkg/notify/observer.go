package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/time/rate"

	"github.com/odvcencio/overseer/pkg/observability"
	"github.com/odvcencio/overseer/pkg/telemetry"
	"github.com/odvcencio/overseer/pkg/thread"
)

const (
	// DefaultThreshold is the minimum turn duration before a notification
	// fires when the config leaves it unset.
	DefaultThreshold = 10 * time.Second

	sendTimeout   = 30 * time.Second
	fallbackTitle = "Agent"
)

// Config tunes the observer's gating.
type Config struct {
	// Threshold is the minimum turn duration worth notifying about.
	// Zero or negative means every turn qualifies.
	Threshold time.Duration

	// PerMinute caps deliveries with a token bucket of that size.
	// Zero or negative disables the limit.
	PerMinute int
}

// Observer turns engine signals into notification events. It tracks when
// each turn started, and when the turn ends it notifies unless the turn was
// quick or the user already had the thread focused.
type Observer struct {
	store     *thread.Store
	logger    *observability.Logger
	senders   []Sender
	limiter   *rate.Limiter
	threshold time.Duration

	mu             sync.Mutex
	turnStart      map[string]time.Time
	lastText       map[string]string
	focusWorkspace string
	focusThread    string

	wg sync.WaitGroup
}

// NewObserver constructs an observer delivering to the given senders. The
// store supplies thread display names for notification titles.
func NewObserver(store *thread.Store, logger *observability.Logger, cfg Config, senders ...Sender) *Observer {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.PerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.PerMinute)), cfg.PerMinute)
	}
	return &Observer{
		store:     store,
		logger:    logger,
		senders:   senders,
		limiter:   limiter,
		threshold: cfg.Threshold,
		turnStart: make(map[string]time.Time),
		lastText:  make(map[string]string),
	}
}

// SetFocus records which thread the user is currently looking at. Turns
// finishing on the focused thread never notify. Empty ids clear the focus.
func (o *Observer) SetFocus(workspaceID, threadID string) {
	o.mu.Lock()
	o.focusWorkspace = workspaceID
	o.focusThread = threadID
	o.mu.Unlock()
}

// Follow consumes hub signals until the returned stop function is called.
// Stop waits for in-flight deliveries to finish.
func (o *Observer) Follow(hub *telemetry.Hub) func() {
	signals, cancel := hub.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for sig := range signals {
			o.observe(sig)
		}
	}()
	return func() {
		cancel()
		<-done
		o.wg.Wait()
	}
}

// Close closes every sender.
func (o *Observer) Close() error {
	var lastErr error
	for _, s := range o.senders {
		if err := s.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

func (o *Observer) observe(sig telemetry.Signal) {
	switch sig.Kind {
	case telemetry.SignalTurnStarted:
		// The start signal fires once optimistically and once from the
		// backend echo; the earliest one wins.
		o.mu.Lock()
		if _, ok := o.turnStart[sig.ThreadID]; !ok {
			o.turnStart[sig.ThreadID] = sig.Timestamp
		}
		o.mu.Unlock()

	case telemetry.SignalAgentMessageCompleted:
		if sig.Text == "" {
			return
		}
		o.mu.Lock()
		o.lastText[sig.ThreadID] = sig.Text
		o.mu.Unlock()

	case telemetry.SignalTurnCompleted:
		o.finishTurn(sig, KindTurnCompleted)

	case telemetry.SignalTurnError:
		if sig.WillRetry {
			// The backend keeps going; the turn is not over yet.
			return
		}
		o.finishTurn(sig, KindTurnFailed)

	case telemetry.SignalThreadArchived:
		o.mu.Lock()
		delete(o.turnStart, sig.ThreadID)
		delete(o.lastText, sig.ThreadID)
		o.mu.Unlock()
	}
}

func (o *Observer) finishTurn(sig telemetry.Signal, kind Kind) {
	o.mu.Lock()
	start, tracked := o.turnStart[sig.ThreadID]
	delete(o.turnStart, sig.ThreadID)
	preview := o.lastText[sig.ThreadID]
	delete(o.lastText, sig.ThreadID)
	focused := o.focusThread != "" && sig.WorkspaceID == o.focusWorkspace && sig.ThreadID == o.focusThread
	o.mu.Unlock()

	if !tracked {
		return
	}
	duration := sig.Timestamp.Sub(start)
	if duration < o.threshold {
		return
	}
	if focused {
		return
	}
	if len(o.senders) == 0 {
		return
	}
	if !o.limiter.Allow() {
		o.logger.Debug("notification suppressed by rate limit",
			slog.String("workspace_id", sig.WorkspaceID),
			slog.String("thread_id", sig.ThreadID),
		)
		return
	}

	if kind == KindTurnFailed && sig.Err != "" {
		preview = sig.Err
	}
	ev := Event{
		ID:          ulid.Make().String(),
		Kind:        kind,
		WorkspaceID: sig.WorkspaceID,
		ThreadID:    sig.ThreadID,
		Title:       o.threadTitle(sig.WorkspaceID, sig.ThreadID),
		Preview:     clip(preview, MaxPreviewRunes),
		Duration:    duration,
		Timestamp:   sig.Timestamp,
	}

	o.wg.Add(1)
	go o.deliver(ev)
}

func (o *Observer) deliver(ev Event) {
	defer o.wg.Done()
	for _, s := range o.senders {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		err := s.Send(ctx, ev)
		cancel()
		if err != nil {
			o.logger.Warn("notification send failed",
				slog.String("adapter", s.Name()),
				slog.String("workspace_id", ev.WorkspaceID),
				slog.String("thread_id", ev.ThreadID),
				slog.String("error", err.Error()),
			)
			continue
		}
		o.logger.NotificationSent(s.Name(), ev.WorkspaceID, ev.ThreadID)
	}
}

func (o *Observer) threadTitle(workspaceID, threadID string) string {
	for _, sum := range o.store.Threads(workspaceID) {
		if sum.ID == threadID {
			return sum.Name
		}
	}
	return fallbackTitle
}
