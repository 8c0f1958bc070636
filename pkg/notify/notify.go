// Package notify delivers turn-completion notifications to external
// channels. An Observer watches engine signals and emits an Event when a
// slow turn finishes on a thread the user is not looking at; adapters fan
// the event out to Slack, Telegram, browser push, or NATS.
package notify

import (
	"context"
	"strings"
	"time"
)

// Kind classifies a notification event.
type Kind string

const (
	// KindTurnCompleted is emitted when a turn finishes normally.
	KindTurnCompleted Kind = "turn.completed"

	// KindTurnFailed is emitted when a turn ends with a non-retried error.
	KindTurnFailed Kind = "turn.failed"
)

// MaxPreviewRunes bounds the preview text carried by an event.
const MaxPreviewRunes = 200

// Event is one notification. Preview holds the final assistant message for
// completed turns and the backend error message for failed ones.
type Event struct {
	ID          string        `json:"id"`
	Kind        Kind          `json:"kind"`
	WorkspaceID string        `json:"workspaceId"`
	ThreadID    string        `json:"threadId"`
	Title       string        `json:"title"`
	Preview     string        `json:"preview,omitempty"`
	Duration    time.Duration `json:"duration"`
	Timestamp   time.Time     `json:"timestamp"`
}

// Sender delivers events to one channel. Send failures are logged by the
// observer and never retried.
type Sender interface {
	// Name returns the adapter name used in logs.
	Name() string

	// Send delivers one event.
	Send(ctx context.Context, ev Event) error

	// Close releases any connections the adapter holds.
	Close() error
}

// clip collapses whitespace and truncates to at most n runes, marking the
// cut with an ellipsis.
func clip(s string, n int) string {
	collapsed := strings.Join(strings.Fields(s), " ")
	runes := []rune(collapsed)
	if len(runes) <= n {
		return collapsed
	}
	return string(runes[:n]) + "…"
}
