package telemetry

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// SignalKind identifies the kind of engine signal.
type SignalKind string

const (
	SignalWorkspaceConnected    SignalKind = "workspace.connected"
	SignalTurnStarted           SignalKind = "turn.started"
	SignalTurnCompleted         SignalKind = "turn.completed"
	SignalTurnError             SignalKind = "turn.error"
	SignalItemStarted           SignalKind = "item.started"
	SignalAgentMessageDelta     SignalKind = "agent.message.delta"
	SignalAgentMessageCompleted SignalKind = "agent.message.completed"
	SignalThreadArchived        SignalKind = "thread.archived"
	SignalTokenUsageUpdated     SignalKind = "tokens.updated"
	SignalGitChanged            SignalKind = "git.changed"
	SignalApprovalRequested     SignalKind = "approval.requested"
	SignalApprovalDecided       SignalKind = "approval.decided"
	SignalDiagnostic            SignalKind = "backend.diagnostic"
)

// Signal describes a turn/item lifecycle event that downstream consumers
// (the bridge, the notifier) can observe without touching engine state.
type Signal struct {
	Kind        SignalKind     `json:"kind"`
	Timestamp   time.Time      `json:"timestamp"`
	WorkspaceID string         `json:"workspaceId,omitempty"`
	ThreadID    string         `json:"threadId,omitempty"`
	ItemID      string         `json:"itemId,omitempty"`
	Text        string         `json:"text,omitempty"`
	Err         string         `json:"error,omitempty"`
	WillRetry   bool           `json:"willRetry,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
}

// Hub fan-outs signals to any number of subscribers.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]chan Signal
	nextID      atomic.Uint64
	closed      bool
}

// NewHub constructs a signal hub.
func NewHub() *Hub {
	return &Hub{subscribers: make(map[string]chan Signal)}
}

// Publish notifies all subscribers of a signal. Non-blocking; drops if buffer full.
func (h *Hub) Publish(sig Signal) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	if sig.Timestamp.IsZero() {
		sig.Timestamp = time.Now()
	}
	for _, ch := range h.subscribers {
		select {
		case ch <- sig:
		default:
			// Drop if subscriber can't keep up; prevents blocking the dispatcher.
		}
	}
}

// Subscribe returns a channel that will receive future signals and a cleanup func.
func (h *Hub) Subscribe() (<-chan Signal, func()) {
	ch, id := h.SubscribeWithID()
	return ch, func() { h.Unsubscribe(id) }
}

// SubscribeWithID registers a subscriber and returns its channel plus the
// identifier to pass to Unsubscribe.
func (h *Hub) SubscribeWithID() (<-chan Signal, string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		empty := make(chan Signal)
		close(empty)
		return empty, ""
	}
	id := fmt.Sprintf("sub-%d", h.nextID.Add(1))
	ch := make(chan Signal, 64)
	h.subscribers[id] = ch
	return ch, id
}

// Unsubscribe removes a subscriber by id and closes its channel. Safe to
// call more than once.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subscribers[id]; ok {
		delete(h.subscribers, id)
		close(ch)
	}
}

// Close unsubscribes all listeners and prevents future publications.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subscribers {
		close(ch)
		delete(h.subscribers, id)
	}
}
