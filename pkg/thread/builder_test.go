package thread_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odvcencio/overseer/pkg/thread"
)

func TestBuildItemCommandExecution(t *testing.T) {
	item := thread.BuildItem(map[string]any{
		"id":               "item-1",
		"type":             "commandExecution",
		"command":          []any{"go", "test", "./..."},
		"cwd":              "/repo",
		"status":           "inProgress",
		"aggregatedOutput": "ok\n",
	})

	tool, ok := item.(thread.ToolItem)
	require.True(t, ok, "expected a tool item, got %T", item)
	assert.Equal(t, "item-1", tool.ItemID())
	assert.Equal(t, "Command: go test ./...", tool.Title)
	assert.Equal(t, "/repo", tool.Detail)
	assert.Equal(t, "ok\n", tool.Output)
	assert.Equal(t, "commandExecution", tool.ToolType)
}

func TestBuildItemCommandAsString(t *testing.T) {
	item := thread.BuildItem(map[string]any{
		"id":      "item-2",
		"type":    "commandExecution",
		"command": "ls -la",
	})
	tool := item.(thread.ToolItem)
	assert.Equal(t, "Command: ls -la", tool.Title)
}

func TestBuildItemFileChange(t *testing.T) {
	item := thread.BuildItem(map[string]any{
		"id":   "fc-1",
		"type": "fileChange",
		"changes": []any{
			map[string]any{"path": "a.go", "kind": "add", "diff": "+one"},
			map[string]any{"path": "b.go", "kind": map[string]any{"type": "delete"}},
			map[string]any{"path": "c.go", "kind": "update", "diff": "+three"},
			map[string]any{"path": "d.go", "kind": "teleport"},
		},
	})

	tool, ok := item.(thread.ToolItem)
	require.True(t, ok)
	assert.Equal(t, "File changes", tool.Title)
	assert.Equal(t, "A a.go, D b.go, M c.go, d.go", tool.Detail)
	assert.Equal(t, "+one\n+three", tool.Output)
	require.Len(t, tool.Changes, 4)
	assert.Equal(t, thread.ChangeAdd, tool.Changes[0].Kind)
	assert.Equal(t, thread.ChangeDelete, tool.Changes[1].Kind)
	assert.Equal(t, thread.ChangeModify, tool.Changes[2].Kind)
	assert.Equal(t, thread.ChangeKind(""), tool.Changes[3].Kind)
}

func TestBuildItemFileChangeEmpty(t *testing.T) {
	item := thread.BuildItem(map[string]any{
		"id":      "fc-2",
		"type":    "fileChange",
		"changes": []any{},
	})
	tool := item.(thread.ToolItem)
	assert.Equal(t, "Pending changes", tool.Detail)
	assert.Empty(t, tool.Output)
}

func TestBuildItemMcpToolCall(t *testing.T) {
	item := thread.BuildItem(map[string]any{
		"id":        "mcp-1",
		"type":      "mcpToolCall",
		"server":    "filesystem",
		"tool":      "read_file",
		"arguments": map[string]any{"path": "go.mod"},
		"result":    "module contents",
	})
	tool := item.(thread.ToolItem)
	assert.Equal(t, "Tool: filesystem / read_file", tool.Title)
	assert.Contains(t, tool.Detail, `"path": "go.mod"`)
	assert.Equal(t, "module contents", tool.Output)

	bare := thread.BuildItem(map[string]any{
		"id":     "mcp-2",
		"type":   "mcpToolCall",
		"server": "filesystem",
	}).(thread.ToolItem)
	assert.Equal(t, "Tool: filesystem", bare.Title)
}

func TestBuildItemReasoningJoinsLists(t *testing.T) {
	item := thread.BuildItem(map[string]any{
		"id":      "r-1",
		"type":    "reasoning",
		"summary": []any{"first", "second"},
		"content": "full text",
	})
	reasoning, ok := item.(thread.ReasoningItem)
	require.True(t, ok)
	assert.Equal(t, "first\nsecond", reasoning.Summary)
	assert.Equal(t, "full text", reasoning.Content)
}

func TestBuildItemReviewMarkers(t *testing.T) {
	entered := thread.BuildItem(map[string]any{"id": "rv-1", "type": "enteredReviewMode"})
	review, ok := entered.(thread.ReviewItem)
	require.True(t, ok)
	assert.Equal(t, thread.ReviewStarted, review.State)

	exited := thread.BuildItem(map[string]any{
		"id":           "rv-2",
		"type":         "exitedReviewMode",
		"reviewOutput": "looks fine",
	})
	review = exited.(thread.ReviewItem)
	assert.Equal(t, thread.ReviewCompleted, review.State)
	assert.Equal(t, "looks fine", review.Text)
}

func TestBuildItemDropsUnknownShapes(t *testing.T) {
	assert.Nil(t, thread.BuildItem(nil))
	assert.Nil(t, thread.BuildItem(map[string]any{"type": "reasoning"}), "missing id")
	assert.Nil(t, thread.BuildItem(map[string]any{"id": "x", "type": "holographicDisplay"}))
	// Streaming variants are handled by the delta path, not the builder.
	assert.Nil(t, thread.BuildItem(map[string]any{"id": "m1", "type": "agentMessage", "text": "hi"}))
	assert.Nil(t, thread.BuildItem(map[string]any{"id": "m2", "type": "userMessage"}))
}

func TestBuildHistoryItemUserMessageParts(t *testing.T) {
	item := thread.BuildHistoryItem(map[string]any{
		"id":   "u-1",
		"type": "userMessage",
		"content": []any{
			map[string]any{"type": "text", "text": "fix the tests"},
			map[string]any{"type": "skill", "name": "review"},
			map[string]any{"type": "image", "url": "blob:1"},
		},
	})
	msg, ok := item.(thread.MessageItem)
	require.True(t, ok)
	assert.Equal(t, thread.RoleUser, msg.Role)
	assert.Equal(t, "fix the tests $review [image]", msg.Text)
}

func TestBuildHistoryItemUserMessageFallback(t *testing.T) {
	item := thread.BuildHistoryItem(map[string]any{
		"id":      "u-2",
		"type":    "userMessage",
		"content": []any{},
	})
	msg := item.(thread.MessageItem)
	assert.Equal(t, "[message]", msg.Text)
}

func TestBuildHistoryItemAgentMessage(t *testing.T) {
	item := thread.BuildHistoryItem(map[string]any{
		"id":   "a-1",
		"type": "agentMessage",
		"text": "done",
	})
	msg, ok := item.(thread.MessageItem)
	require.True(t, ok)
	assert.Equal(t, thread.RoleAssistant, msg.Role)
	assert.Equal(t, "done", msg.Text)
}

func TestBuildHistoryItemDelegatesToolShapes(t *testing.T) {
	item := thread.BuildHistoryItem(map[string]any{
		"id":      "h-1",
		"type":    "commandExecution",
		"command": []any{"make"},
	})
	tool, ok := item.(thread.ToolItem)
	require.True(t, ok)
	assert.Equal(t, "Command: make", tool.Title)
}
