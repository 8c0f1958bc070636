package engine

import (
	"fmt"
	"strconv"

	"github.com/odvcencio/overseer/pkg/appserver"
	"github.com/odvcencio/overseer/pkg/telemetry"
	"github.com/odvcencio/overseer/pkg/thread"
)

// Approvals returns the outstanding approval queue in arrival order.
func (e *Engine) Approvals() []thread.ApprovalRequest {
	return e.store.Approvals()
}

// Decide answers an approval request and removes it from the queue. A
// failed send keeps the entry visible so the user can retry.
func (e *Engine) Decide(req thread.ApprovalRequest, approve bool) error {
	s, err := e.session(req.WorkspaceID)
	if err != nil {
		return err
	}

	decision := appserver.DecisionDecline
	if approve {
		decision = appserver.DecisionAccept
	}
	if err := s.backend.RespondDecision(req.RequestID, decision); err != nil {
		metricRPCFailures.WithLabelValues("approval/respond").Inc()
		e.logger.RPCFailed("approval/respond", req.WorkspaceID, err)
		return fmt.Errorf("respond to approval %d: %w", req.RequestID, err)
	}

	e.store.Dispatch(thread.RemoveApproval{WorkspaceID: req.WorkspaceID, RequestID: req.RequestID})
	metricApprovalsDecided.WithLabelValues(decision).Inc()
	e.logger.ApprovalDecided(req.WorkspaceID, strconv.FormatUint(req.RequestID, 10), approve)
	e.publish(telemetry.Signal{
		Kind:        telemetry.SignalApprovalDecided,
		WorkspaceID: req.WorkspaceID,
		Data:        map[string]any{"requestId": req.RequestID, "decision": decision},
	})
	return nil
}
