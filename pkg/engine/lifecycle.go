package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/odvcencio/overseer/pkg/appserver"
	"github.com/odvcencio/overseer/pkg/telemetry"
	"github.com/odvcencio/overseer/pkg/thread"
)

// archiveTimeout bounds the fire-and-forget backend archive call.
const archiveTimeout = 30 * time.Second

// StartThread creates a fresh thread in the workspace, makes it active,
// and marks it fully loaded so a later resume is a no-op.
func (e *Engine) StartThread(ctx context.Context, workspaceID string) (string, error) {
	s, err := e.session(workspaceID)
	if err != nil {
		return "", err
	}

	res, err := s.backend.StartThread(ctx, s.path, e.opts.ApprovalPolicy)
	if err != nil {
		metricRPCFailures.WithLabelValues("thread/start").Inc()
		e.logger.RPCFailed("thread/start", workspaceID, err)
		return "", fmt.Errorf("start thread: %w", err)
	}
	threadID := res.Thread.ID
	if threadID == "" {
		return "", fmt.Errorf("start thread: backend returned empty thread id")
	}

	e.store.Dispatch(
		thread.EnsureThread{WorkspaceID: workspaceID, ThreadID: threadID},
		thread.SetActiveThread{WorkspaceID: workspaceID, ThreadID: threadID},
	)
	s.markLoaded(threadID)
	return threadID, nil
}

// ResumeThread hydrates a thread's item history from the backend. Already
// loaded threads are skipped unless force is set. On failure the local
// view is left untouched: stale-but-present beats empty.
func (e *Engine) ResumeThread(ctx context.Context, workspaceID, threadID string, force bool) (string, error) {
	s, err := e.session(workspaceID)
	if err != nil {
		return "", err
	}
	if !force && s.isLoaded(threadID) {
		return threadID, nil
	}

	res, err := s.backend.ResumeThread(ctx, threadID)
	if err != nil {
		metricRPCFailures.WithLabelValues("thread/resume").Inc()
		e.logger.RPCFailed("thread/resume", workspaceID, err)
		return "", fmt.Errorf("resume thread %s: %w", threadID, err)
	}

	actions := []thread.Action{thread.EnsureThread{WorkspaceID: workspaceID, ThreadID: threadID}}
	if len(res.Thread.Turns) > 0 {
		items := buildHistoryItems(res.Thread.Turns)
		// An empty rebuild must not clobber items that streamed in live
		// while this call was in flight.
		if len(items) > 0 {
			actions = append(actions, thread.SetItems{ThreadID: threadID, Items: items})
		}
		actions = append(actions, thread.MarkReviewing{
			ThreadID:  threadID,
			Reviewing: unmatchedReviewMarker(items),
		})
		if res.Thread.Preview != "" {
			actions = append(actions, thread.RenameThread{
				WorkspaceID: workspaceID,
				ThreadID:    threadID,
				Name:        thread.PreviewName(res.Thread.Preview),
			})
		}
	}
	e.store.Dispatch(actions...)
	s.markLoaded(threadID)
	return threadID, nil
}

// ListThreads replaces the workspace's thread list with the backend's
// current view: paginate fully, keep threads rooted at the workspace
// path, newest first, first occurrence of each id wins.
func (e *Engine) ListThreads(ctx context.Context, workspaceID string) error {
	s, err := e.session(workspaceID)
	if err != nil {
		return err
	}

	var all []appserver.ThreadInfo
	cursor := ""
	for {
		page, err := s.backend.ListThreads(ctx, cursor, e.opts.ListPageSize)
		if err != nil {
			metricRPCFailures.WithLabelValues("thread/list").Inc()
			e.logger.RPCFailed("thread/list", workspaceID, err)
			return fmt.Errorf("list threads: %w", err)
		}
		all = append(all, page.Data...)
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	filtered := all[:0:0]
	for _, ti := range all {
		if ti.Cwd == s.path {
			filtered = append(filtered, ti)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].CreatedAt > filtered[j].CreatedAt
	})

	seen := make(map[string]bool, len(filtered))
	summaries := make([]thread.Summary, 0, len(filtered))
	for i, ti := range filtered {
		if ti.ID == "" || seen[ti.ID] {
			continue
		}
		seen[ti.ID] = true
		name := thread.PreviewName(ti.Preview)
		if name == "" {
			name = thread.DefaultThreadName(i + 1)
		}
		summaries = append(summaries, thread.Summary{ID: ti.ID, Name: name})
	}

	e.store.Dispatch(thread.SetThreads{WorkspaceID: workspaceID, Threads: summaries})
	return nil
}

// ArchiveThread removes the thread locally right away; the backend call
// is fire-and-forget and failure only logs.
func (e *Engine) ArchiveThread(ctx context.Context, workspaceID, threadID string) error {
	s, err := e.session(workspaceID)
	if err != nil {
		return err
	}

	e.store.Dispatch(thread.RemoveThread{WorkspaceID: workspaceID, ThreadID: threadID})
	s.forgetThread(threadID)
	e.logger.ThreadArchived(workspaceID, threadID)
	e.publish(telemetry.Signal{
		Kind:        telemetry.SignalThreadArchived,
		WorkspaceID: workspaceID,
		ThreadID:    threadID,
	})

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		defer cancel()
		if err := s.backend.ArchiveThread(ctx, threadID); err != nil {
			metricRPCFailures.WithLabelValues("thread/archive").Inc()
			e.logger.RPCFailed("thread/archive", workspaceID, err)
		}
	}()
	return nil
}

// buildHistoryItems flattens every turn's items through the resumed
// history path.
func buildHistoryItems(turns []appserver.Turn) []thread.ConversationItem {
	var items []thread.ConversationItem
	for _, turn := range turns {
		for _, raw := range turn.Items {
			if item := thread.BuildHistoryItem(raw); item != nil {
				items = append(items, item)
			}
		}
	}
	return items
}

// unmatchedReviewMarker reports whether the most recent review marker in
// the rebuilt history is an unmatched "entered review".
func unmatchedReviewMarker(items []thread.ConversationItem) bool {
	reviewing := false
	for _, item := range items {
		review, ok := item.(thread.ReviewItem)
		if !ok {
			continue
		}
		reviewing = review.State == thread.ReviewStarted
	}
	return reviewing
}
