package engine

import (
	"errors"
	"sync"
	"time"

	"github.com/odvcencio/overseer/pkg/appserver"
	"github.com/odvcencio/overseer/pkg/observability"
	"github.com/odvcencio/overseer/pkg/telemetry"
	"github.com/odvcencio/overseer/pkg/thread"
)

var (
	// ErrUnknownWorkspace is returned for operations on a workspace with
	// no attached backend session.
	ErrUnknownWorkspace = errors.New("engine: workspace not connected")
	// ErrNoActiveThread is returned when an operation needs an active
	// thread and the workspace has none.
	ErrNoActiveThread = errors.New("engine: no active thread")
	// ErrNoActiveTurn is returned when an interrupt finds no turn in
	// flight.
	ErrNoActiveTurn = errors.New("engine: no turn in flight")
)

// Options carries the turn defaults applied when a caller does not
// override them.
type Options struct {
	Model          string
	Effort         string
	ApprovalPolicy string
	// SandboxPolicy is the config-level name: workspace-write, read-only,
	// or danger-full-access.
	SandboxPolicy string
	ListPageSize  int
}

// Engine owns the thread store and all attached workspace sessions.
type Engine struct {
	store  *thread.Store
	hub    *telemetry.Hub
	logger *observability.Logger
	opts   Options

	mu       sync.RWMutex
	sessions map[string]*session
}

// session is one workspace's attachment: its backend handle, its event
// stream, and the per-thread bookkeeping that never belongs in the store.
type session struct {
	workspaceID string
	path        string
	backend     Backend
	events      <-chan appserver.Event
	done        <-chan struct{}
	stop        chan struct{}

	mu       sync.Mutex
	loaded   map[string]bool
	turns    map[string]string
	turnFrom map[string]time.Time
}

func New(store *thread.Store, hub *telemetry.Hub, logger *observability.Logger, opts Options) *Engine {
	if opts.ListPageSize <= 0 {
		opts.ListPageSize = 20
	}
	return &Engine{
		store:    store,
		hub:      hub,
		logger:   logger,
		opts:     opts,
		sessions: make(map[string]*session),
	}
}

// Store exposes the thread store for read access and subscriptions.
func (e *Engine) Store() *thread.Store {
	return e.store
}

// AttachWorkspace registers a connected workspace and starts its event
// dispatcher. events must be delivered in backend order; done signals the
// end of the stream.
func (e *Engine) AttachWorkspace(workspaceID, path string, backend Backend, events <-chan appserver.Event, done <-chan struct{}) {
	s := &session{
		workspaceID: workspaceID,
		path:        path,
		backend:     backend,
		events:      events,
		done:        done,
		stop:        make(chan struct{}),
		loaded:      make(map[string]bool),
		turns:       make(map[string]string),
		turnFrom:    make(map[string]time.Time),
	}

	e.mu.Lock()
	if prev, ok := e.sessions[workspaceID]; ok {
		close(prev.stop)
	}
	e.sessions[workspaceID] = s
	e.mu.Unlock()

	go e.runDispatcher(s)
}

// DetachWorkspace stops the workspace's dispatcher. Thread state for the
// workspace is kept; a later attach picks it back up.
func (e *Engine) DetachWorkspace(workspaceID string) {
	e.mu.Lock()
	s, ok := e.sessions[workspaceID]
	if ok {
		delete(e.sessions, workspaceID)
	}
	e.mu.Unlock()
	if ok {
		close(s.stop)
	}
}

// Connected reports whether the workspace has an attached session.
func (e *Engine) Connected(workspaceID string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.sessions[workspaceID]
	return ok
}

func (e *Engine) session(workspaceID string) (*session, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.sessions[workspaceID]
	if !ok {
		return nil, ErrUnknownWorkspace
	}
	return s, nil
}

func (e *Engine) publish(sig telemetry.Signal) {
	if e.hub != nil {
		e.hub.Publish(sig)
	}
}

func (s *session) isLoaded(threadID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded[threadID]
}

func (s *session) markLoaded(threadID string) {
	s.mu.Lock()
	s.loaded[threadID] = true
	s.mu.Unlock()
}

func (s *session) forgetThread(threadID string) {
	s.mu.Lock()
	delete(s.loaded, threadID)
	delete(s.turns, threadID)
	delete(s.turnFrom, threadID)
	s.mu.Unlock()
}

func (s *session) setTurn(threadID, turnID string) {
	if threadID == "" || turnID == "" {
		return
	}
	s.mu.Lock()
	s.turns[threadID] = turnID
	if _, ok := s.turnFrom[threadID]; !ok {
		s.turnFrom[threadID] = time.Now()
	}
	s.mu.Unlock()
}

// endTurn clears the thread's turn and reports how long it ran, if known.
func (s *session) endTurn(threadID string) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	started, ok := s.turnFrom[threadID]
	delete(s.turns, threadID)
	delete(s.turnFrom, threadID)
	if !ok {
		return 0, false
	}
	return time.Since(started), true
}

func (s *session) currentTurn(threadID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.turns[threadID]
	return id, ok
}
