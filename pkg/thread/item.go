// Package thread holds the conversation state engine: typed conversation
// items, the item builder that maps raw backend payloads onto them, and the
// reducer-driven store that owns all per-workspace thread state.
package thread

import "encoding/json"

// Role identifies who authored a message item.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ReviewState represents the lifecycle stage of a review marker.
type ReviewState string

const (
	ReviewStarted   ReviewState = "started"
	ReviewCompleted ReviewState = "completed"
)

// ChangeKind indicates how a file changed. Empty when the backend sent a
// kind we do not recognize.
type ChangeKind string

const (
	ChangeAdd    ChangeKind = "add"
	ChangeDelete ChangeKind = "delete"
	ChangeModify ChangeKind = "modify"
)

// ConversationItem is one atomic unit of thread content. An item id is
// unique within its thread and keeps resolving to the same variant for the
// item's whole lifetime: a tool item never turns into a message item.
type ConversationItem interface {
	ItemID() string
	isConversationItem()
}

// MessageItem is a user or assistant message.
type MessageItem struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
	Text string `json:"text"`
}

func (m MessageItem) ItemID() string { return m.ID }
func (MessageItem) isConversationItem() {}
func (m MessageItem) MarshalJSON() ([]byte, error) {
	type alias MessageItem
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{Type: "message", alias: alias(m)})
}

// ReasoningItem carries the agent's streamed reasoning. Summary is the
// terse rolling label, Content the full text; both are append-only.
type ReasoningItem struct {
	ID      string `json:"id"`
	Summary string `json:"summary"`
	Content string `json:"content"`
}

func (r ReasoningItem) ItemID() string { return r.ID }
func (ReasoningItem) isConversationItem() {}
func (r ReasoningItem) MarshalJSON() ([]byte, error) {
	type alias ReasoningItem
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{Type: "reasoning", alias: alias(r)})
}

// FileChange is a single file touched by a fileChange tool item.
type FileChange struct {
	Path string     `json:"path"`
	Kind ChangeKind `json:"kind,omitempty"`
	Diff string     `json:"diff,omitempty"`
}

// ToolItem is a tool invocation card: command executions, file changes,
// MCP tool calls, web searches, image views.
type ToolItem struct {
	ID       string       `json:"id"`
	ToolType string       `json:"toolType"`
	Title    string       `json:"title"`
	Detail   string       `json:"detail,omitempty"`
	Status   string       `json:"status,omitempty"`
	Output   string       `json:"output,omitempty"`
	Changes  []FileChange `json:"changes,omitempty"`
}

func (t ToolItem) ItemID() string { return t.ID }
func (ToolItem) isConversationItem() {}
func (t ToolItem) MarshalJSON() ([]byte, error) {
	type alias ToolItem
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{Type: "tool", alias: alias(t)})
}

// ReviewItem marks review mode entry and exit within a thread.
type ReviewItem struct {
	ID    string      `json:"id"`
	State ReviewState `json:"state"`
	Text  string      `json:"text,omitempty"`
}

func (r ReviewItem) ItemID() string { return r.ID }
func (ReviewItem) isConversationItem() {}
func (r ReviewItem) MarshalJSON() ([]byte, error) {
	type alias ReviewItem
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{Type: "review", alias: alias(r)})
}

// DiffItem is a standalone rendered diff.
type DiffItem struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Diff   string `json:"diff"`
	Status string `json:"status,omitempty"`
}

func (d DiffItem) ItemID() string { return d.ID }
func (DiffItem) isConversationItem() {}
func (d DiffItem) MarshalJSON() ([]byte, error) {
	type alias DiffItem
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{Type: "diff", alias: alias(d)})
}
