package thread

// Action is one state transition request. The closed set below is the only
// way engine state changes.
type Action interface {
	isAction()
}

// EnsureThread lazily registers a thread the moment anything references it.
// A no-op when the thread is already listed; otherwise it prepends a
// default-named summary, zeroes the status, and claims the workspace's
// active slot only if no thread holds it yet.
type EnsureThread struct {
	WorkspaceID string
	ThreadID    string
}

// AppendAgentDelta concatenates a streamed fragment onto an assistant
// message, creating the message if this is its first delta.
type AppendAgentDelta struct {
	ThreadID string
	ItemID   string
	Delta    string
}

// CompleteAgentMessage sets an assistant message's final text. An empty
// final text keeps whatever the deltas accumulated.
type CompleteAgentMessage struct {
	ThreadID string
	ItemID   string
	Text     string
}

// AppendReasoningSummary appends to a reasoning item's rolling summary,
// creating the item on first use.
type AppendReasoningSummary struct {
	ThreadID string
	ItemID   string
	Delta    string
}

// AppendReasoningContent appends to a reasoning item's full text, creating
// the item on first use.
type AppendReasoningContent struct {
	ThreadID string
	ItemID   string
	Delta    string
}

// AppendToolOutput appends streamed output to an existing tool item. A
// delta for an unknown item is dropped; only the item snapshot path may
// materialize tool items.
type AppendToolOutput struct {
	ThreadID string
	ItemID   string
	Delta    string
}

// UpsertItem replaces the item with the same id or appends it.
type UpsertItem struct {
	ThreadID string
	Item     ConversationItem
}

// SetItems wholesale-replaces a thread's item list. Used by resume
// reconciliation; callers skip it when the rebuilt list is empty.
type SetItems struct {
	ThreadID string
	Items    []ConversationItem
}

// SetThreads wholesale-replaces a workspace's summary list.
type SetThreads struct {
	WorkspaceID string
	Threads     []Summary
}

// RenameThread updates a thread's display name in place.
type RenameThread struct {
	WorkspaceID string
	ThreadID    string
	Name        string
}

// MarkProcessing sets the processing flag, leaving the other flags alone.
type MarkProcessing struct {
	ThreadID   string
	Processing bool
}

// MarkReviewing sets the reviewing flag, leaving the other flags alone.
type MarkReviewing struct {
	ThreadID  string
	Reviewing bool
}

// MarkUnread sets the unread flag, leaving the other flags alone.
type MarkUnread struct {
	ThreadID string
	Unread   bool
}

// SetActiveThread switches the workspace's active thread. Selection
// implies read: the newly active thread's unread flag clears in the same
// transition. An empty ThreadID clears the selection.
type SetActiveThread struct {
	WorkspaceID string
	ThreadID    string
}

// RemoveThread drops a thread's summary, items, and status. When it was
// active, the first remaining summary in the workspace takes over.
type RemoveThread struct {
	WorkspaceID string
	ThreadID    string
}

// PushApproval appends a pending approval. No dedup: the backend is the id
// authority.
type PushApproval struct {
	Request ApprovalRequest
}

// RemoveApproval drops the approval matching (WorkspaceID, RequestID).
type RemoveApproval struct {
	WorkspaceID string
	RequestID   uint64
}

func (EnsureThread) isAction()           {}
func (AppendAgentDelta) isAction()       {}
func (CompleteAgentMessage) isAction()   {}
func (AppendReasoningSummary) isAction() {}
func (AppendReasoningContent) isAction() {}
func (AppendToolOutput) isAction()       {}
func (UpsertItem) isAction()             {}
func (SetItems) isAction()               {}
func (SetThreads) isAction()             {}
func (RenameThread) isAction()           {}
func (MarkProcessing) isAction()         {}
func (MarkReviewing) isAction()          {}
func (MarkUnread) isAction()             {}
func (SetActiveThread) isAction()        {}
func (RemoveThread) isAction()           {}
func (PushApproval) isAction()           {}
func (RemoveApproval) isAction()         {}
