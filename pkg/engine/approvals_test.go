package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odvcencio/overseer/pkg/appserver"
	"github.com/odvcencio/overseer/pkg/telemetry"
)

func queuedApproval(t *testing.T, rig *engineRig, id uint64) {
	t.Helper()
	rig.apply(serverRequest(appserver.RequestCommandApproval, id, `{"threadId":"t-1","itemId":"c-1","call":{"command":["make","deploy"]}}`))
	require.Len(t, rig.engine.Approvals(), 1)
}

func TestDecideAcceptRemovesFromQueue(t *testing.T) {
	rig := newEngineRig(t)
	signals, cancel := rig.hub.Subscribe()
	defer cancel()
	queuedApproval(t, rig, 7)

	rig.backend.EXPECT().RespondDecision(uint64(7), appserver.DecisionAccept).Return(nil)

	require.NoError(t, rig.engine.Decide(rig.engine.Approvals()[0], true))
	assert.Empty(t, rig.engine.Approvals())

	sig := waitSignal(t, signals, telemetry.SignalApprovalDecided)
	assert.Equal(t, appserver.DecisionAccept, sig.Data["decision"])
}

func TestDecideDeclineSendsDecline(t *testing.T) {
	rig := newEngineRig(t)
	queuedApproval(t, rig, 9)

	rig.backend.EXPECT().RespondDecision(uint64(9), appserver.DecisionDecline).Return(nil)

	require.NoError(t, rig.engine.Decide(rig.engine.Approvals()[0], false))
	assert.Empty(t, rig.engine.Approvals())
}

func TestDecideFailureKeepsEntry(t *testing.T) {
	rig := newEngineRig(t)
	queuedApproval(t, rig, 11)

	rig.backend.EXPECT().RespondDecision(uint64(11), appserver.DecisionAccept).Return(errors.New("pipe closed"))

	err := rig.engine.Decide(rig.engine.Approvals()[0], true)
	require.ErrorContains(t, err, "respond to approval 11")

	// The entry stays queued so the decision can be retried.
	require.Len(t, rig.engine.Approvals(), 1)
	assert.Equal(t, uint64(11), rig.engine.Approvals()[0].RequestID)
}

func TestApprovalsArrivalOrder(t *testing.T) {
	rig := newEngineRig(t)
	rig.apply(serverRequest(appserver.RequestCommandApproval, 1, `{"threadId":"t-1","itemId":"c-1"}`))
	rig.apply(serverRequest(appserver.RequestFileChangeApproval, 2, `{"threadId":"t-1","itemId":"f-1"}`))

	approvals := rig.engine.Approvals()
	require.Len(t, approvals, 2)
	assert.Equal(t, uint64(1), approvals[0].RequestID)
	assert.Equal(t, uint64(2), approvals[1].RequestID)
}
