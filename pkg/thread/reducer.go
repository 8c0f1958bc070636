package thread

// Reduce applies one action to the state and returns the next state. Pure:
// no I/O, no side effects, and the input state is never mutated. Top-level
// maps are copied on every transition, so holders of the previous state
// keep a consistent view.
func Reduce(s State, a Action) State {
	next := cloneState(s)

	switch a := a.(type) {
	case EnsureThread:
		ensureThread(&next, a.WorkspaceID, a.ThreadID)

	case AppendAgentDelta:
		items := next.ItemsByThread[a.ThreadID]
		idx := indexOf(items, a.ItemID)
		switch {
		case idx < 0:
			next.ItemsByThread[a.ThreadID] = append(cloneItems(items), MessageItem{
				ID:   a.ItemID,
				Role: RoleAssistant,
				Text: a.Delta,
			})
		default:
			if msg, ok := items[idx].(MessageItem); ok {
				updated := cloneItems(items)
				msg.Text += a.Delta
				updated[idx] = msg
				next.ItemsByThread[a.ThreadID] = updated
			}
		}

	case CompleteAgentMessage:
		items := next.ItemsByThread[a.ThreadID]
		idx := indexOf(items, a.ItemID)
		switch {
		case idx < 0:
			next.ItemsByThread[a.ThreadID] = append(cloneItems(items), MessageItem{
				ID:   a.ItemID,
				Role: RoleAssistant,
				Text: a.Text,
			})
		default:
			if msg, ok := items[idx].(MessageItem); ok {
				updated := cloneItems(items)
				if a.Text != "" {
					msg.Text = a.Text
				}
				updated[idx] = msg
				next.ItemsByThread[a.ThreadID] = updated
			}
		}

	case AppendReasoningSummary:
		appendReasoning(&next, a.ThreadID, a.ItemID, a.Delta, false)

	case AppendReasoningContent:
		appendReasoning(&next, a.ThreadID, a.ItemID, a.Delta, true)

	case AppendToolOutput:
		items := next.ItemsByThread[a.ThreadID]
		idx := indexOf(items, a.ItemID)
		if idx < 0 {
			break
		}
		if tool, ok := items[idx].(ToolItem); ok {
			updated := cloneItems(items)
			tool.Output += a.Delta
			updated[idx] = tool
			next.ItemsByThread[a.ThreadID] = updated
		}

	case UpsertItem:
		if a.Item == nil {
			break
		}
		items := next.ItemsByThread[a.ThreadID]
		idx := indexOf(items, a.Item.ItemID())
		updated := cloneItems(items)
		if idx < 0 {
			updated = append(updated, a.Item)
		} else {
			updated[idx] = a.Item
		}
		next.ItemsByThread[a.ThreadID] = updated

	case SetItems:
		next.ItemsByThread[a.ThreadID] = cloneItems(a.Items)

	case SetThreads:
		next.ThreadsByWorkspace[a.WorkspaceID] = cloneSummaries(a.Threads)

	case RenameThread:
		summaries := next.ThreadsByWorkspace[a.WorkspaceID]
		for i, sum := range summaries {
			if sum.ID == a.ThreadID {
				updated := cloneSummaries(summaries)
				updated[i].Name = a.Name
				next.ThreadsByWorkspace[a.WorkspaceID] = updated
				break
			}
		}

	case MarkProcessing:
		st := next.StatusByThread[a.ThreadID]
		st.IsProcessing = a.Processing
		next.StatusByThread[a.ThreadID] = st

	case MarkReviewing:
		st := next.StatusByThread[a.ThreadID]
		st.IsReviewing = a.Reviewing
		next.StatusByThread[a.ThreadID] = st

	case MarkUnread:
		st := next.StatusByThread[a.ThreadID]
		st.HasUnread = a.Unread
		next.StatusByThread[a.ThreadID] = st

	case SetActiveThread:
		next.ActiveThreadByWorkspace[a.WorkspaceID] = a.ThreadID
		if a.ThreadID != "" {
			st := next.StatusByThread[a.ThreadID]
			st.HasUnread = false
			next.StatusByThread[a.ThreadID] = st
		}

	case RemoveThread:
		summaries := next.ThreadsByWorkspace[a.WorkspaceID]
		remaining := make([]Summary, 0, len(summaries))
		for _, sum := range summaries {
			if sum.ID != a.ThreadID {
				remaining = append(remaining, sum)
			}
		}
		next.ThreadsByWorkspace[a.WorkspaceID] = remaining
		delete(next.ItemsByThread, a.ThreadID)
		delete(next.StatusByThread, a.ThreadID)
		if next.ActiveThreadByWorkspace[a.WorkspaceID] == a.ThreadID {
			if len(remaining) > 0 {
				next.ActiveThreadByWorkspace[a.WorkspaceID] = remaining[0].ID
			} else {
				next.ActiveThreadByWorkspace[a.WorkspaceID] = ""
			}
		}

	case PushApproval:
		next.Approvals = append(cloneApprovals(s.Approvals), a.Request)

	case RemoveApproval:
		remaining := make([]ApprovalRequest, 0, len(next.Approvals))
		for _, req := range next.Approvals {
			if req.WorkspaceID == a.WorkspaceID && req.RequestID == a.RequestID {
				continue
			}
			remaining = append(remaining, req)
		}
		next.Approvals = remaining
	}

	return next
}

// ensureThread registers a thread on first reference. First writer wins
// the active slot; an existing selection is never overridden.
func ensureThread(s *State, workspaceID, threadID string) {
	if threadID == "" {
		return
	}
	for _, sum := range s.ThreadsByWorkspace[workspaceID] {
		if sum.ID == threadID {
			return
		}
	}
	existing := s.ThreadsByWorkspace[workspaceID]
	summaries := make([]Summary, 0, len(existing)+1)
	summaries = append(summaries, Summary{ID: threadID, Name: DefaultThreadName(len(existing) + 1)})
	summaries = append(summaries, existing...)
	s.ThreadsByWorkspace[workspaceID] = summaries
	if _, ok := s.StatusByThread[threadID]; !ok {
		s.StatusByThread[threadID] = Status{}
	}
	if s.ActiveThreadByWorkspace[workspaceID] == "" {
		s.ActiveThreadByWorkspace[workspaceID] = threadID
	}
}

func appendReasoning(s *State, threadID, itemID, delta string, content bool) {
	items := s.ItemsByThread[threadID]
	idx := indexOf(items, itemID)
	if idx < 0 {
		item := ReasoningItem{ID: itemID}
		if content {
			item.Content = delta
		} else {
			item.Summary = delta
		}
		s.ItemsByThread[threadID] = append(cloneItems(items), item)
		return
	}
	if reasoning, ok := items[idx].(ReasoningItem); ok {
		updated := cloneItems(items)
		if content {
			reasoning.Content += delta
		} else {
			reasoning.Summary += delta
		}
		updated[idx] = reasoning
		s.ItemsByThread[threadID] = updated
	}
}

func indexOf(items []ConversationItem, id string) int {
	for i, item := range items {
		if item.ItemID() == id {
			return i
		}
	}
	return -1
}

func cloneState(s State) State {
	next := State{
		ActiveThreadByWorkspace: make(map[string]string, len(s.ActiveThreadByWorkspace)),
		ItemsByThread:           make(map[string][]ConversationItem, len(s.ItemsByThread)),
		ThreadsByWorkspace:      make(map[string][]Summary, len(s.ThreadsByWorkspace)),
		StatusByThread:          make(map[string]Status, len(s.StatusByThread)),
		Approvals:               s.Approvals,
	}
	for k, v := range s.ActiveThreadByWorkspace {
		next.ActiveThreadByWorkspace[k] = v
	}
	for k, v := range s.ItemsByThread {
		next.ItemsByThread[k] = v
	}
	for k, v := range s.ThreadsByWorkspace {
		next.ThreadsByWorkspace[k] = v
	}
	for k, v := range s.StatusByThread {
		next.StatusByThread[k] = v
	}
	return next
}

func cloneItems(items []ConversationItem) []ConversationItem {
	out := make([]ConversationItem, len(items))
	copy(out, items)
	return out
}

func cloneSummaries(summaries []Summary) []Summary {
	out := make([]Summary, len(summaries))
	copy(out, summaries)
	return out
}

func cloneApprovals(approvals []ApprovalRequest) []ApprovalRequest {
	out := make([]ApprovalRequest, len(approvals))
	copy(out, approvals)
	return out
}
