package engine

import (
	"github.com/odvcencio/overseer/pkg/appserver"
	"github.com/odvcencio/overseer/pkg/telemetry"
	"github.com/odvcencio/overseer/pkg/thread"
)

// runDispatcher applies one session's events in delivery order. Per-thread
// correctness depends on that order; nothing here reorders or buffers.
func (e *Engine) runDispatcher(s *session) {
	for {
		select {
		case ev := <-s.events:
			e.handleEvent(s, ev)
		case <-s.done:
			return
		case <-s.stop:
			return
		}
	}
}

func (e *Engine) handleEvent(s *session, ev appserver.Event) {
	metricEventsDispatched.WithLabelValues(ev.Method).Inc()

	switch ev.Method {
	case appserver.EventConnected:
		e.publish(telemetry.Signal{
			Kind:        telemetry.SignalWorkspaceConnected,
			WorkspaceID: s.workspaceID,
		})
		e.logger.Info("workspace connected", "workspace_id", s.workspaceID)

	case appserver.EventStderr, appserver.EventParseError:
		e.publish(telemetry.Signal{
			Kind:        telemetry.SignalDiagnostic,
			WorkspaceID: s.workspaceID,
			Data:        map[string]any{"method": ev.Method, "params": ev.ParamsMap()},
		})

	case appserver.RequestCommandApproval, appserver.RequestFileChangeApproval:
		e.handleApprovalRequest(s, ev)

	case appserver.EventTurnStarted:
		var p appserver.ThreadScopedEvent
		if err := ev.DecodeParams(&p); err != nil || p.ThreadID == "" {
			e.dropEvent(ev, "missing threadId")
			return
		}
		e.logger.EventDispatched(ev.Method, s.workspaceID, p.ThreadID)
		s.setTurn(p.ThreadID, p.TurnID)
		e.store.Dispatch(
			thread.EnsureThread{WorkspaceID: s.workspaceID, ThreadID: p.ThreadID},
			thread.MarkProcessing{ThreadID: p.ThreadID, Processing: true},
		)
		e.publish(telemetry.Signal{
			Kind:        telemetry.SignalTurnStarted,
			WorkspaceID: s.workspaceID,
			ThreadID:    p.ThreadID,
		})

	case appserver.EventTurnCompleted:
		var p appserver.TurnCompletedEvent
		if err := ev.DecodeParams(&p); err != nil || p.ThreadID == "" {
			e.dropEvent(ev, "missing threadId")
			return
		}
		e.logger.EventDispatched(ev.Method, s.workspaceID, p.ThreadID)
		e.store.Dispatch(
			thread.EnsureThread{WorkspaceID: s.workspaceID, ThreadID: p.ThreadID},
			thread.MarkProcessing{ThreadID: p.ThreadID, Processing: false},
		)
		if dur, ok := s.endTurn(p.ThreadID); ok {
			metricTurnDuration.Observe(dur.Seconds())
		}
		if p.Turn.Error != nil {
			metricTurnErrors.Inc()
			e.publish(telemetry.Signal{
				Kind:        telemetry.SignalTurnError,
				WorkspaceID: s.workspaceID,
				ThreadID:    p.ThreadID,
				Err:         p.Turn.Error.Message,
				WillRetry:   p.Turn.Error.WillRetry,
			})
			return
		}
		metricTurnsCompleted.Inc()
		e.publish(telemetry.Signal{
			Kind:        telemetry.SignalTurnCompleted,
			WorkspaceID: s.workspaceID,
			ThreadID:    p.ThreadID,
		})

	case appserver.EventAgentMessageDelta:
		p, ok := e.deltaParams(s, ev)
		if !ok {
			return
		}
		e.store.Dispatch(
			thread.EnsureThread{WorkspaceID: s.workspaceID, ThreadID: p.ThreadID},
			thread.AppendAgentDelta{ThreadID: p.ThreadID, ItemID: p.ItemID, Delta: p.Delta},
		)
		e.publish(telemetry.Signal{
			Kind:        telemetry.SignalAgentMessageDelta,
			WorkspaceID: s.workspaceID,
			ThreadID:    p.ThreadID,
			ItemID:      p.ItemID,
			Text:        p.Delta,
		})

	case appserver.EventReasoningSummaryDelta:
		p, ok := e.deltaParams(s, ev)
		if !ok {
			return
		}
		e.store.Dispatch(
			thread.EnsureThread{WorkspaceID: s.workspaceID, ThreadID: p.ThreadID},
			thread.AppendReasoningSummary{ThreadID: p.ThreadID, ItemID: p.ItemID, Delta: p.Delta},
		)

	case appserver.EventReasoningTextDelta:
		p, ok := e.deltaParams(s, ev)
		if !ok {
			return
		}
		e.store.Dispatch(
			thread.EnsureThread{WorkspaceID: s.workspaceID, ThreadID: p.ThreadID},
			thread.AppendReasoningContent{ThreadID: p.ThreadID, ItemID: p.ItemID, Delta: p.Delta},
		)

	case appserver.EventCommandOutputDelta, appserver.EventFileChangeOutputDelta:
		p, ok := e.deltaParams(s, ev)
		if !ok {
			return
		}
		e.store.Dispatch(
			thread.EnsureThread{WorkspaceID: s.workspaceID, ThreadID: p.ThreadID},
			thread.AppendToolOutput{ThreadID: p.ThreadID, ItemID: p.ItemID, Delta: p.Delta},
		)

	case appserver.EventItemStarted, appserver.EventItemCompleted:
		e.handleItemEvent(s, ev)

	case appserver.EventTokenUsageUpdated:
		var p appserver.TokenUsageEvent
		if err := ev.DecodeParams(&p); err != nil {
			e.dropEvent(ev, "bad params")
			return
		}
		e.publish(telemetry.Signal{
			Kind:        telemetry.SignalTokenUsageUpdated,
			WorkspaceID: s.workspaceID,
			ThreadID:    p.ThreadID,
			Data:        ev.ParamsMap(),
		})

	default:
		// Unknown methods still reach diagnostics consumers.
		e.publish(telemetry.Signal{
			Kind:        telemetry.SignalDiagnostic,
			WorkspaceID: s.workspaceID,
			Data:        map[string]any{"method": ev.Method, "params": ev.ParamsMap()},
		})
		e.logger.Debug("unhandled backend event", "method", ev.Method)
	}
}

func (e *Engine) handleApprovalRequest(s *session, ev appserver.Event) {
	if ev.RequestID == nil {
		e.dropEvent(ev, "approval request without id")
		return
	}
	var p appserver.ApprovalRequestEvent
	if err := ev.DecodeParams(&p); err != nil {
		e.dropEvent(ev, "bad params")
		return
	}

	actions := make([]thread.Action, 0, 2)
	if p.ThreadID != "" {
		actions = append(actions, thread.EnsureThread{WorkspaceID: s.workspaceID, ThreadID: p.ThreadID})
	}
	actions = append(actions, thread.PushApproval{Request: thread.ApprovalRequest{
		WorkspaceID: s.workspaceID,
		RequestID:   *ev.RequestID,
		Method:      ev.Method,
		Params:      ev.ParamsMap(),
	}})
	e.store.Dispatch(actions...)

	metricApprovalsRequested.Inc()
	e.publish(telemetry.Signal{
		Kind:        telemetry.SignalApprovalRequested,
		WorkspaceID: s.workspaceID,
		ThreadID:    p.ThreadID,
		ItemID:      p.ItemID,
		Data:        map[string]any{"requestId": *ev.RequestID, "method": ev.Method},
	})
	e.logger.Info("approval requested",
		"workspace_id", s.workspaceID,
		"thread_id", p.ThreadID,
		"request_id", *ev.RequestID,
		"method", ev.Method)
}

// handleItemEvent applies fully-formed item snapshots. Agent messages are
// special on this path: their content streams through deltas, so a
// completed agentMessage finalizes the accumulated text instead of being
// rebuilt, and flips the unread flag when the thread is not active.
func (e *Engine) handleItemEvent(s *session, ev appserver.Event) {
	var p appserver.ItemEvent
	if err := ev.DecodeParams(&p); err != nil || p.ThreadID == "" {
		e.dropEvent(ev, "missing threadId")
		return
	}
	raw := p.ItemMap()
	if raw == nil {
		e.dropEvent(ev, "missing item")
		return
	}
	e.logger.EventDispatched(ev.Method, s.workspaceID, p.ThreadID)
	itemID, _ := raw["id"].(string)
	itemType, _ := raw["type"].(string)

	if itemType == "agentMessage" {
		if ev.Method != appserver.EventItemCompleted || itemID == "" {
			return
		}
		text, _ := raw["text"].(string)
		actions := []thread.Action{
			thread.EnsureThread{WorkspaceID: s.workspaceID, ThreadID: p.ThreadID},
			thread.CompleteAgentMessage{ThreadID: p.ThreadID, ItemID: itemID, Text: text},
		}
		active, _ := e.store.ActiveThread(s.workspaceID)
		if active != p.ThreadID {
			actions = append(actions, thread.MarkUnread{ThreadID: p.ThreadID, Unread: true})
		}
		state := e.store.Dispatch(actions...)
		e.publish(telemetry.Signal{
			Kind:        telemetry.SignalAgentMessageCompleted,
			WorkspaceID: s.workspaceID,
			ThreadID:    p.ThreadID,
			ItemID:      itemID,
			Text:        finalMessageText(state, p.ThreadID, itemID),
		})
		return
	}

	item := thread.BuildItem(raw)
	if item == nil {
		// Not every item type is representable; that is expected, not an
		// error.
		e.logger.Debug("item not representable", "type", itemType, "thread_id", p.ThreadID)
		return
	}
	e.store.Dispatch(
		thread.EnsureThread{WorkspaceID: s.workspaceID, ThreadID: p.ThreadID},
		thread.UpsertItem{ThreadID: p.ThreadID, Item: item},
	)
	if ev.Method == appserver.EventItemStarted {
		e.publish(telemetry.Signal{
			Kind:        telemetry.SignalItemStarted,
			WorkspaceID: s.workspaceID,
			ThreadID:    p.ThreadID,
			ItemID:      item.ItemID(),
		})
	}
}

func (e *Engine) deltaParams(s *session, ev appserver.Event) (appserver.ItemDeltaEvent, bool) {
	var p appserver.ItemDeltaEvent
	if err := ev.DecodeParams(&p); err != nil || p.ThreadID == "" || p.ItemID == "" {
		e.dropEvent(ev, "missing threadId or itemId")
		return p, false
	}
	e.logger.EventDispatched(ev.Method, s.workspaceID, p.ThreadID)
	return p, true
}

func (e *Engine) dropEvent(ev appserver.Event, reason string) {
	metricEventsDropped.Inc()
	e.logger.EventDropped(ev.Method, reason)
}

// finalMessageText reads the resolved message text after the completion
// action, which may have kept previously accumulated deltas.
func finalMessageText(state thread.State, threadID, itemID string) string {
	for _, item := range state.ItemsByThread[threadID] {
		if msg, ok := item.(thread.MessageItem); ok && msg.ID == itemID {
			return msg.Text
		}
	}
	return ""
}
