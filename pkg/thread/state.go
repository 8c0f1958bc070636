package thread

import (
	"fmt"
	"strings"
)

// MaxPreviewRunes bounds thread display names derived from message text.
const MaxPreviewRunes = 38

const previewEllipsis = "…"

// Summary is one thread's entry in a workspace's thread list.
type Summary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Status holds a thread's transient flags. IsProcessing is true exactly
// between a turn start and that turn's terminal signal. IsReviewing is true
// between an entered-review marker and its matching exit. HasUnread is set
// when an assistant message completes on a non-active thread and cleared
// when the thread becomes active.
type Status struct {
	IsProcessing bool `json:"isProcessing"`
	IsReviewing  bool `json:"isReviewing"`
	HasUnread    bool `json:"hasUnread"`
}

// ApprovalRequest is a pending backend request for a human decision,
// uniquely identified by (WorkspaceID, RequestID). It leaves the queue only
// through an explicit decision, never by timeout.
type ApprovalRequest struct {
	WorkspaceID string         `json:"workspaceId"`
	RequestID   uint64         `json:"requestId"`
	Method      string         `json:"method"`
	Params      map[string]any `json:"params,omitempty"`
}

// State is the engine's single aggregate value. It is only ever rebuilt by
// Reduce; nothing mutates a State in place. The active-thread map uses ""
// for "no selection".
type State struct {
	ActiveThreadByWorkspace map[string]string
	ItemsByThread           map[string][]ConversationItem
	ThreadsByWorkspace      map[string][]Summary
	StatusByThread          map[string]Status
	Approvals               []ApprovalRequest
}

// NewState returns an empty engine state.
func NewState() State {
	return State{
		ActiveThreadByWorkspace: make(map[string]string),
		ItemsByThread:           make(map[string][]ConversationItem),
		ThreadsByWorkspace:      make(map[string][]Summary),
		StatusByThread:          make(map[string]Status),
	}
}

// HasThread reports whether the workspace's summary list contains the thread.
func (s State) HasThread(workspaceID, threadID string) bool {
	for _, sum := range s.ThreadsByWorkspace[workspaceID] {
		if sum.ID == threadID {
			return true
		}
	}
	return false
}

// ActiveThread returns the workspace's active thread id, if any.
func (s State) ActiveThread(workspaceID string) (string, bool) {
	id := s.ActiveThreadByWorkspace[workspaceID]
	return id, id != ""
}

// DefaultThreadName is the positional placeholder used before any user
// message names a thread.
func DefaultThreadName(position int) string {
	return fmt.Sprintf("Agent %d", position)
}

// PreviewName derives a thread display name from message text: whitespace
// collapsed to single spaces, truncated to MaxPreviewRunes runes with an
// ellipsis marker when it was cut.
func PreviewName(text string) string {
	collapsed := strings.Join(strings.Fields(text), " ")
	runes := []rune(collapsed)
	if len(runes) <= MaxPreviewRunes {
		return collapsed
	}
	return string(runes[:MaxPreviewRunes]) + previewEllipsis
}
