// Package engine drives thread conversation state: it consumes the
// backend event stream into the store, manages thread lifecycle RPCs,
// dispatches outgoing turns and reviews, and answers approval requests.
package engine

import (
	"context"

	"github.com/odvcencio/overseer/pkg/appserver"
)

//go:generate mockgen -package=engine -destination=mock_backend_test.go github.com/odvcencio/overseer/pkg/engine Backend

// Backend is the per-workspace RPC surface the engine drives. A live
// *appserver.Session satisfies it.
type Backend interface {
	StartThread(ctx context.Context, cwd, approvalPolicy string) (*appserver.ThreadStartResult, error)
	ResumeThread(ctx context.Context, threadID string) (*appserver.ThreadResumeResult, error)
	ListThreads(ctx context.Context, cursor string, limit int) (*appserver.ThreadListResult, error)
	ArchiveThread(ctx context.Context, threadID string) error
	StartTurn(ctx context.Context, params appserver.TurnStartParams) (*appserver.TurnStartResult, error)
	InterruptTurn(ctx context.Context, threadID, turnID string) error
	StartReview(ctx context.Context, params appserver.ReviewStartParams) error
	RespondDecision(requestID uint64, decision string) error
}
