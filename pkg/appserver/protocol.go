package appserver

import "encoding/json"

// Upstream method names.
const (
	MethodInitialize     = "initialize"
	MethodInitialized    = "initialized"
	MethodThreadStart    = "thread/start"
	MethodThreadResume   = "thread/resume"
	MethodThreadList     = "thread/list"
	MethodThreadArchive  = "thread/archive"
	MethodTurnStart      = "turn/start"
	MethodTurnInterrupt  = "turn/interrupt"
	MethodReviewStart    = "review/start"
	MethodModelList      = "model/list"
	MethodRateLimitsRead = "account/rateLimits/read"
	MethodSkillsList     = "skills/list"
)

// Event methods pushed by the backend while a turn is running.
const (
	EventTurnStarted           = "turn/started"
	EventTurnCompleted         = "turn/completed"
	EventItemStarted           = "item/started"
	EventItemCompleted         = "item/completed"
	EventAgentMessageDelta     = "item/agentMessage/delta"
	EventReasoningSummaryDelta = "item/reasoning/summaryTextDelta"
	EventReasoningTextDelta    = "item/reasoning/textDelta"
	EventCommandOutputDelta    = "item/commandExecution/outputDelta"
	EventFileChangeOutputDelta = "item/fileChange/outputDelta"
	EventTokenUsageUpdated     = "thread/tokenUsage/updated"
)

// Server-initiated request methods that expect a decision response.
const (
	RequestCommandApproval    = "item/commandExecution/requestApproval"
	RequestFileChangeApproval = "item/fileChange/requestApproval"
)

// Approval decisions accepted by the backend.
const (
	DecisionAccept  = "accept"
	DecisionDecline = "decline"
)

// Approval policies.
const (
	ApprovalOnRequest = "on-request"
	ApprovalNever     = "never"
)

// ClientInfo identifies this client during the initialize handshake.
type ClientInfo struct {
	Name    string `json:"name"`
	Title   string `json:"title"`
	Version string `json:"version"`
}

type InitializeParams struct {
	ClientInfo ClientInfo `json:"clientInfo"`
}

// SandboxPolicy constrains what a turn may touch. The zero value is not
// valid; use one of the constructors.
type SandboxPolicy struct {
	Type          string   `json:"type"`
	WritableRoots []string `json:"writableRoots,omitempty"`
	NetworkAccess bool     `json:"networkAccess,omitempty"`
}

// WorkspaceWritePolicy allows writes under the given roots with network
// access enabled.
func WorkspaceWritePolicy(roots ...string) SandboxPolicy {
	return SandboxPolicy{Type: "workspaceWrite", WritableRoots: roots, NetworkAccess: true}
}

// ReadOnlyPolicy forbids all writes.
func ReadOnlyPolicy() SandboxPolicy {
	return SandboxPolicy{Type: "readOnly"}
}

// FullAccessPolicy disables sandboxing entirely.
func FullAccessPolicy() SandboxPolicy {
	return SandboxPolicy{Type: "dangerFullAccess"}
}

type ThreadStartParams struct {
	Cwd            string `json:"cwd"`
	ApprovalPolicy string `json:"approvalPolicy"`
}

type ThreadStartResult struct {
	Thread ThreadInfo `json:"thread"`
}

type ThreadResumeParams struct {
	ThreadID string `json:"threadId"`
}

type ThreadResumeResult struct {
	Thread ThreadHistory `json:"thread"`
}

// ThreadInfo is the thread metadata the backend reports on start and in
// listings.
type ThreadInfo struct {
	ID        string `json:"id"`
	Cwd       string `json:"cwd,omitempty"`
	Preview   string `json:"preview,omitempty"`
	CreatedAt int64  `json:"createdAt,omitempty"`
}

// ThreadHistory is a resumed thread: metadata plus every recorded turn.
type ThreadHistory struct {
	ID      string `json:"id"`
	Preview string `json:"preview,omitempty"`
	Turns   []Turn `json:"turns,omitempty"`
}

// Turn is one request/response cycle's recorded items.
type Turn struct {
	ID    string           `json:"id,omitempty"`
	Items []map[string]any `json:"items,omitempty"`
}

type ThreadListParams struct {
	Cursor string `json:"cursor,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

type ThreadListResult struct {
	Data       []ThreadInfo `json:"data"`
	NextCursor string       `json:"nextCursor,omitempty"`
}

type ThreadArchiveParams struct {
	ThreadID string `json:"threadId"`
}

// InputItem is one element of a turn's user input.
type InputItem struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// TextInput builds a plain-text input item.
func TextInput(text string) InputItem {
	return InputItem{Type: "text", Text: text}
}

type TurnStartParams struct {
	ThreadID       string        `json:"threadId"`
	Input          []InputItem   `json:"input"`
	Cwd            string        `json:"cwd"`
	ApprovalPolicy string        `json:"approvalPolicy"`
	SandboxPolicy  SandboxPolicy `json:"sandboxPolicy"`
	Model          string        `json:"model,omitempty"`
	Effort         string        `json:"effort,omitempty"`
}

type TurnStartResult struct {
	Turn TurnInfo `json:"turn"`
}

type TurnInfo struct {
	ID     string `json:"id"`
	Status string `json:"status,omitempty"`
}

type TurnInterruptParams struct {
	ThreadID string `json:"threadId"`
	TurnID   string `json:"turnId"`
}

// ReviewTarget selects what a review examines.
type ReviewTarget struct {
	Type         string `json:"type"`
	Branch       string `json:"branch,omitempty"`
	SHA          string `json:"sha,omitempty"`
	Title        string `json:"title,omitempty"`
	Instructions string `json:"instructions,omitempty"`
}

// ReviewUncommitted targets the working tree's uncommitted changes.
func ReviewUncommitted() ReviewTarget {
	return ReviewTarget{Type: "uncommittedChanges"}
}

// ReviewBaseBranch targets the diff against a base branch.
func ReviewBaseBranch(branch string) ReviewTarget {
	return ReviewTarget{Type: "baseBranch", Branch: branch}
}

// ReviewCommit targets a single commit, with an optional display title.
func ReviewCommit(sha, title string) ReviewTarget {
	return ReviewTarget{Type: "commit", SHA: sha, Title: title}
}

// ReviewCustom targets whatever the free-form instructions describe.
func ReviewCustom(instructions string) ReviewTarget {
	return ReviewTarget{Type: "custom", Instructions: instructions}
}

type ReviewStartParams struct {
	ThreadID string       `json:"threadId"`
	Target   ReviewTarget `json:"target"`
	Delivery string       `json:"delivery,omitempty"`
}

type SkillsListParams struct {
	Cwd string `json:"cwd"`
}

// ApprovalAnswer is the result payload for an approval request.
type ApprovalAnswer struct {
	Decision string `json:"decision"`
}

// Event payload shapes. Delta events share one struct; absent fields stay
// empty.

type ThreadScopedEvent struct {
	ThreadID string `json:"threadId"`
	TurnID   string `json:"turnId,omitempty"`
}

type ItemDeltaEvent struct {
	ThreadID string `json:"threadId"`
	TurnID   string `json:"turnId,omitempty"`
	ItemID   string `json:"itemId"`
	Delta    string `json:"delta"`
}

type ItemEvent struct {
	ThreadID string          `json:"threadId"`
	TurnID   string          `json:"turnId,omitempty"`
	Item     json.RawMessage `json:"item"`
}

// ItemMap decodes the embedded item record as a generic map.
func (e ItemEvent) ItemMap() map[string]any {
	if e.Item == nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(e.Item, &m); err != nil {
		return nil
	}
	return m
}

type TurnCompletedEvent struct {
	ThreadID string     `json:"threadId"`
	TurnID   string     `json:"turnId,omitempty"`
	Turn     TurnResult `json:"turn"`
}

type TurnResult struct {
	ID     string     `json:"id,omitempty"`
	Status string     `json:"status,omitempty"`
	Error  *TurnError `json:"error,omitempty"`
}

type TurnError struct {
	Message   string `json:"message"`
	WillRetry bool   `json:"willRetry,omitempty"`
}

type TokenUsageEvent struct {
	ThreadID string          `json:"threadId"`
	Usage    json.RawMessage `json:"usage,omitempty"`
}

// ApprovalRequestEvent is the params shape of both approval request
// methods.
type ApprovalRequestEvent struct {
	ThreadID string          `json:"threadId"`
	TurnID   string          `json:"turnId,omitempty"`
	ItemID   string          `json:"itemId,omitempty"`
	Call     json.RawMessage `json:"call,omitempty"`
}
