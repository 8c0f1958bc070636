package thread

import (
	"encoding/json"
	"fmt"
	"strings"
)

// BuildItem maps a raw backend item payload onto a typed conversation item.
// Returns nil for payloads with no conversation rendering; never panics.
// agentMessage and userMessage are deliberately not built here: on the live
// path those arrive through the delta/completion events and building them
// twice would double-represent the message.
func BuildItem(raw map[string]any) ConversationItem {
	if raw == nil {
		return nil
	}
	id := getString(raw, "id")
	if id == "" {
		return nil
	}

	switch getString(raw, "type") {
	case "reasoning":
		return ReasoningItem{
			ID:      id,
			Summary: stringOrJoined(raw["summary"]),
			Content: stringOrJoined(raw["content"]),
		}

	case "commandExecution":
		return ToolItem{
			ID:       id,
			ToolType: "commandExecution",
			Title:    "Command: " + commandLine(raw["command"]),
			Detail:   getString(raw, "cwd"),
			Status:   getString(raw, "status"),
			Output:   firstString(raw, "aggregatedOutput", "output"),
		}

	case "fileChange":
		changes := buildFileChanges(raw["changes"])
		return ToolItem{
			ID:       id,
			ToolType: "fileChange",
			Title:    "File changes",
			Detail:   fileChangeDetail(changes),
			Status:   getString(raw, "status"),
			Output:   joinDiffs(changes),
			Changes:  changes,
		}

	case "mcpToolCall":
		title := "Tool: " + getString(raw, "server")
		if tool := getString(raw, "tool"); tool != "" {
			title += " / " + tool
		}
		return ToolItem{
			ID:       id,
			ToolType: "mcpToolCall",
			Title:    title,
			Detail:   prettyJSON(raw["arguments"]),
			Status:   getString(raw, "status"),
			Output:   firstString(raw, "result", "error"),
		}

	case "webSearch":
		return ToolItem{
			ID:       id,
			ToolType: "webSearch",
			Title:    "Web search",
			Detail:   getString(raw, "query"),
			Status:   getString(raw, "status"),
		}

	case "imageView":
		return ToolItem{
			ID:       id,
			ToolType: "imageView",
			Title:    "Image",
			Detail:   firstString(raw, "path", "url"),
			Status:   getString(raw, "status"),
		}

	case "enteredReviewMode":
		return ReviewItem{ID: id, State: ReviewStarted, Text: getString(raw, "review")}

	case "exitedReviewMode":
		return ReviewItem{ID: id, State: ReviewCompleted, Text: getString(raw, "reviewOutput")}
	}

	return nil
}

// BuildHistoryItem maps one item from resumed thread history. Unlike the
// live path it materializes userMessage and agentMessage directly, since
// history has no streaming phase to reconcile against.
func BuildHistoryItem(raw map[string]any) ConversationItem {
	if raw == nil {
		return nil
	}
	id := getString(raw, "id")
	if id == "" {
		return nil
	}

	switch getString(raw, "type") {
	case "userMessage":
		return MessageItem{ID: id, Role: RoleUser, Text: userMessageText(raw)}
	case "agentMessage":
		return MessageItem{ID: id, Role: RoleAssistant, Text: getString(raw, "text")}
	}
	return BuildItem(raw)
}

// userMessageText renders a stored user message's input parts as one line.
// Plain text passes through, skill parts render as "$name", images as the
// literal "[image]". Empty content falls back to "[message]".
func userMessageText(raw map[string]any) string {
	if text := getString(raw, "text"); text != "" {
		return text
	}
	parts, ok := raw["content"].([]any)
	if !ok {
		parts, _ = raw["input"].([]any)
	}
	rendered := make([]string, 0, len(parts))
	for _, p := range parts {
		part, ok := p.(map[string]any)
		if !ok {
			continue
		}
		switch getString(part, "type") {
		case "text":
			if text := getString(part, "text"); text != "" {
				rendered = append(rendered, text)
			}
		case "skill":
			if name := getString(part, "name"); name != "" {
				rendered = append(rendered, "$"+name)
			}
		case "image", "localImage":
			rendered = append(rendered, "[image]")
		}
	}
	if len(rendered) == 0 {
		return "[message]"
	}
	return strings.Join(rendered, " ")
}

// buildFileChanges normalizes the changes list of a fileChange item. A
// change's kind may be a bare string or a nested object with a type field.
func buildFileChanges(raw any) []FileChange {
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	changes := make([]FileChange, 0, len(list))
	for _, entry := range list {
		m, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		path := getString(m, "path")
		if path == "" {
			continue
		}
		changes = append(changes, FileChange{
			Path: path,
			Kind: normalizeChangeKind(m["kind"]),
			Diff: getString(m, "diff"),
		})
	}
	return changes
}

func normalizeChangeKind(raw any) ChangeKind {
	kind := ""
	switch v := raw.(type) {
	case string:
		kind = v
	case map[string]any:
		kind = getString(v, "type")
	}
	switch kind {
	case "add", "added", "create":
		return ChangeAdd
	case "delete", "deleted", "remove":
		return ChangeDelete
	case "modify", "modified", "update":
		return ChangeModify
	}
	return ""
}

// fileChangeDetail renders "A path, D path, M path" or "Pending changes"
// when the list is empty. Unknown kinds get no prefix.
func fileChangeDetail(changes []FileChange) string {
	if len(changes) == 0 {
		return "Pending changes"
	}
	parts := make([]string, 0, len(changes))
	for _, c := range changes {
		switch c.Kind {
		case ChangeAdd:
			parts = append(parts, "A "+c.Path)
		case ChangeDelete:
			parts = append(parts, "D "+c.Path)
		case ChangeModify:
			parts = append(parts, "M "+c.Path)
		default:
			parts = append(parts, c.Path)
		}
	}
	return strings.Join(parts, ", ")
}

func joinDiffs(changes []FileChange) string {
	diffs := make([]string, 0, len(changes))
	for _, c := range changes {
		if c.Diff != "" {
			diffs = append(diffs, c.Diff)
		}
	}
	return strings.Join(diffs, "\n")
}

// commandLine joins an argv list into one display line. Accepts a plain
// string as well, since some backends send the command pre-joined.
func commandLine(raw any) string {
	switch v := raw.(type) {
	case string:
		return v
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, " ")
	}
	return ""
}

// stringOrJoined accepts a single string or a list of strings joined with
// newlines.
func stringOrJoined(raw any) string {
	switch v := raw.(type) {
	case string:
		return v
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "\n")
	}
	return ""
}

func prettyJSON(raw any) string {
	if raw == nil {
		return ""
	}
	if s, ok := raw.(string); ok {
		return s
	}
	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", raw)
	}
	return string(data)
}

func getString(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

// firstString returns the first key whose value is a non-empty string,
// stringifying a structured value for the last key if nothing matched.
func firstString(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if s := getString(m, key); s != "" {
			return s
		}
	}
	for _, key := range keys {
		if v, ok := m[key]; ok && v != nil {
			if _, isString := v.(string); !isString {
				return prettyJSON(v)
			}
		}
	}
	return ""
}
