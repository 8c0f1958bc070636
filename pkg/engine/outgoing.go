package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/odvcencio/overseer/pkg/appserver"
	"github.com/odvcencio/overseer/pkg/telemetry"
	"github.com/odvcencio/overseer/pkg/thread"
)

// SendOptions overrides the engine's turn defaults for one message.
type SendOptions struct {
	Model  string
	Effort string
	// AccessMode selects the sandbox: "", "current" or "workspace-write"
	// for the default write-within-workspace policy, "read-only", or
	// "full-access" (which also drops approval prompts).
	AccessMode string
}

// SendUserMessage dispatches a user turn on the workspace's active
// thread, creating or resuming one as needed. The user message is
// appended locally before the RPC and is never rolled back; a dispatch
// failure is returned alongside the thread id it was meant for.
func (e *Engine) SendUserMessage(ctx context.Context, workspaceID, text string, opts SendOptions) (string, error) {
	s, err := e.session(workspaceID)
	if err != nil {
		return "", err
	}

	threadID, _ := e.store.ActiveThread(workspaceID)
	if threadID == "" {
		threadID, err = e.StartThread(ctx, workspaceID)
		if err != nil {
			return "", err
		}
	} else if !s.isLoaded(threadID) {
		// History must be hydrated before new content lands on top of it.
		if _, err := e.ResumeThread(ctx, workspaceID, threadID, false); err != nil {
			e.logger.Warn("resume before send failed, sending against local view",
				"workspace_id", workspaceID,
				"thread_id", threadID,
				"error", err)
		}
	}

	itemID := fmt.Sprintf("user-%s", ulid.Make())
	e.store.Dispatch(
		thread.EnsureThread{WorkspaceID: workspaceID, ThreadID: threadID},
		thread.UpsertItem{ThreadID: threadID, Item: thread.MessageItem{
			ID:   itemID,
			Role: thread.RoleUser,
			Text: text,
		}},
		thread.RenameThread{WorkspaceID: workspaceID, ThreadID: threadID, Name: thread.PreviewName(text)},
		thread.MarkProcessing{ThreadID: threadID, Processing: true},
	)
	e.publish(telemetry.Signal{
		Kind:        telemetry.SignalTurnStarted,
		WorkspaceID: workspaceID,
		ThreadID:    threadID,
	})

	model := opts.Model
	if model == "" {
		model = e.opts.Model
	}
	effort := opts.Effort
	if effort == "" {
		effort = e.opts.Effort
	}
	sandbox, approval := e.turnPolicies(s, opts.AccessMode)

	res, err := s.backend.StartTurn(ctx, appserver.TurnStartParams{
		ThreadID:       threadID,
		Input:          []appserver.InputItem{appserver.TextInput(text)},
		Cwd:            s.path,
		ApprovalPolicy: approval,
		SandboxPolicy:  sandbox,
		Model:          model,
		Effort:         effort,
	})
	if err != nil {
		metricRPCFailures.WithLabelValues("turn/start").Inc()
		e.logger.RPCFailed("turn/start", workspaceID, err)
		e.publish(telemetry.Signal{
			Kind:        telemetry.SignalTurnError,
			WorkspaceID: workspaceID,
			ThreadID:    threadID,
			Err:         err.Error(),
		})
		return threadID, fmt.Errorf("send message: %w", err)
	}
	s.setTurn(threadID, res.Turn.ID)
	return threadID, nil
}

// turnPolicies maps an access mode onto the wire sandbox and approval
// policies. Full access implies no approval prompts.
func (e *Engine) turnPolicies(s *session, accessMode string) (appserver.SandboxPolicy, string) {
	mode := accessMode
	if mode == "" || mode == "current" {
		mode = e.opts.SandboxPolicy
	}
	switch mode {
	case "full-access", "danger-full-access":
		return appserver.FullAccessPolicy(), appserver.ApprovalNever
	case "read-only":
		return appserver.ReadOnlyPolicy(), e.opts.ApprovalPolicy
	default:
		return appserver.WorkspaceWritePolicy(s.path), e.opts.ApprovalPolicy
	}
}

// StartReview kicks off an agent code review on the active thread. The
// processing and reviewing flags are set optimistically and rolled back
// if the RPC fails; a review that never started must not leave the
// thread stuck reviewing.
func (e *Engine) StartReview(ctx context.Context, workspaceID, command string) error {
	s, err := e.session(workspaceID)
	if err != nil {
		return err
	}
	threadID, ok := e.store.ActiveThread(workspaceID)
	if !ok {
		return ErrNoActiveThread
	}

	target, label := ParseReviewTarget(command)
	e.store.Dispatch(
		thread.EnsureThread{WorkspaceID: workspaceID, ThreadID: threadID},
		thread.MarkProcessing{ThreadID: threadID, Processing: true},
		thread.MarkReviewing{ThreadID: threadID, Reviewing: true},
		thread.UpsertItem{ThreadID: threadID, Item: thread.ReviewItem{
			ID:    fmt.Sprintf("review-%s", ulid.Make()),
			State: thread.ReviewStarted,
			Text:  label,
		}},
	)
	e.publish(telemetry.Signal{
		Kind:        telemetry.SignalTurnStarted,
		WorkspaceID: workspaceID,
		ThreadID:    threadID,
	})

	if err := s.backend.StartReview(ctx, appserver.ReviewStartParams{
		ThreadID: threadID,
		Target:   target,
	}); err != nil {
		metricRPCFailures.WithLabelValues("review/start").Inc()
		e.logger.RPCFailed("review/start", workspaceID, err)
		e.store.Dispatch(
			thread.MarkProcessing{ThreadID: threadID, Processing: false},
			thread.MarkReviewing{ThreadID: threadID, Reviewing: false},
		)
		return fmt.Errorf("start review: %w", err)
	}
	return nil
}

// InterruptTurn stops the active thread's in-flight turn.
func (e *Engine) InterruptTurn(ctx context.Context, workspaceID string) error {
	s, err := e.session(workspaceID)
	if err != nil {
		return err
	}
	threadID, ok := e.store.ActiveThread(workspaceID)
	if !ok {
		return ErrNoActiveThread
	}
	turnID, ok := s.currentTurn(threadID)
	if !ok {
		return ErrNoActiveTurn
	}
	if err := s.backend.InterruptTurn(ctx, threadID, turnID); err != nil {
		metricRPCFailures.WithLabelValues("turn/interrupt").Inc()
		e.logger.RPCFailed("turn/interrupt", workspaceID, err)
		return fmt.Errorf("interrupt turn: %w", err)
	}
	return nil
}

// SetActiveThread switches the workspace's selection, which also clears
// the newly active thread's unread flag.
func (e *Engine) SetActiveThread(workspaceID, threadID string) {
	e.store.Dispatch(thread.SetActiveThread{WorkspaceID: workspaceID, ThreadID: threadID})
}

// ParseReviewTarget turns a free-text review command into a structured
// target and its human-readable label. The "/review" prefix is optional.
//
//	(empty)                  -> uncommitted changes
//	base <branch>            -> diff against a base branch
//	commit <sha> [title...]  -> a single commit
//	anything else            -> custom instructions
func ParseReviewTarget(command string) (appserver.ReviewTarget, string) {
	text := strings.TrimSpace(command)
	if rest, ok := strings.CutPrefix(text, "/review"); ok {
		text = strings.TrimSpace(rest)
	}
	if text == "" {
		return appserver.ReviewUncommitted(), "uncommitted changes"
	}

	fields := strings.Fields(text)
	switch fields[0] {
	case "base":
		if len(fields) >= 2 {
			branch := fields[1]
			return appserver.ReviewBaseBranch(branch), "base branch " + branch
		}
	case "commit":
		if len(fields) >= 2 {
			sha := fields[1]
			title := strings.Join(fields[2:], " ")
			label := "commit " + sha
			if title != "" {
				label += ": " + title
			}
			return appserver.ReviewCommit(sha, title), label
		}
	}
	return appserver.ReviewCustom(text), text
}
