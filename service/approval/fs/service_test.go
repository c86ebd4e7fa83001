package fs

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/viant/afs"

	"github.com/vaultflow/vaultflow/internal/clock"
	"github.com/vaultflow/vaultflow/service/approval"
	"github.com/vaultflow/vaultflow/service/dao"
)

var gateSeq int

func newTestGate(t *testing.T) *Service {
	ctx := context.Background()
	gateSeq++
	gate, err := New(ctx, afs.New(), fmt.Sprintf("mem://localhost/approvals-%d", gateSeq), "tester")
	assert.NoError(t, err)
	return gate
}

func fixClock(t *testing.T, at time.Time) func(time.Time) {
	clock.NowFunc = func() time.Time { return at }
	t.Cleanup(func() { clock.NowFunc = time.Now })
	return func(next time.Time) {
		clock.NowFunc = func() time.Time { return next }
	}
}

func TestRequestApprovalAtMostOne(t *testing.T) {
	ctx := context.Background()
	gate := newTestGate(t)

	first, err := gate.RequestApproval(ctx, &approval.Request{TaskID: "INV_1", Action: "pay invoice INV_1"})
	assert.NoError(t, err)
	assert.Equal(t, "APPROVAL_INV_1", first.ID)
	assert.Equal(t, 1, first.Revision)
	assert.True(t, first.Pending())

	// re-triggering updates in place, never duplicates
	second, err := gate.RequestApproval(ctx, &approval.Request{TaskID: "INV_1", Action: "pay invoice INV_1 (retry)"})
	assert.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 2, second.Revision)
	assert.Contains(t, second.Body, "re-triggered")

	pending, err := gate.ListPending(ctx)
	assert.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestEvaluateApproval(t *testing.T) {
	ctx := context.Background()
	gate := newTestGate(t)

	_, err := gate.RequestApproval(ctx, &approval.Request{TaskID: "INV_1", Action: "pay"})
	assert.NoError(t, err)

	// untouched request yields nothing
	outcomes, anomalies, err := gate.Evaluate(ctx)
	assert.NoError(t, err)
	assert.Empty(t, outcomes)
	assert.Empty(t, anomalies)

	assert.NoError(t, gate.Decide(ctx, "APPROVAL_INV_1", true, "alice", ""))

	outcomes, anomalies, err = gate.Evaluate(ctx)
	assert.NoError(t, err)
	assert.Empty(t, anomalies)
	if assert.Len(t, outcomes, 1) {
		assert.Equal(t, approval.StatusApproved, outcomes[0].Status)
		assert.Equal(t, "alice", outcomes[0].Request.ApprovedBy)
	}

	// outcome repeats until the engine marks it applied
	outcomes, _, err = gate.Evaluate(ctx)
	assert.NoError(t, err)
	assert.Len(t, outcomes, 1)

	assert.NoError(t, gate.MarkApplied(ctx, "APPROVAL_INV_1"))
	outcomes, _, err = gate.Evaluate(ctx)
	assert.NoError(t, err)
	assert.Empty(t, outcomes)

	resolved, err := gate.ListResolved(ctx)
	assert.NoError(t, err)
	assert.Len(t, resolved, 1)
}

func TestEvaluateAnomalies(t *testing.T) {
	ctx := context.Background()
	gate := newTestGate(t)

	testCases := []struct {
		description string
		taskID      string
		mutate      func(r *approval.Request)
		reason      string
	}{
		{
			description: "approved without approver",
			taskID:      "T1",
			mutate:      func(r *approval.Request) { r.Status = string(approval.StatusApproved) },
			reason:      "approved without approver identity",
		},
		{
			description: "rejected without reason",
			taskID:      "T2",
			mutate:      func(r *approval.Request) { r.Status = string(approval.StatusRejected) },
			reason:      "rejected without reason",
		},
		{
			description: "status outside the state machine",
			taskID:      "T3",
			mutate:      func(r *approval.Request) { r.Status = "maybe later" },
			reason:      `malformed status value "maybe later"`,
		},
	}

	for _, testCase := range testCases {
		r, err := gate.RequestApproval(ctx, &approval.Request{TaskID: testCase.taskID, Action: "act"})
		assert.NoError(t, err, testCase.description)
		testCase.mutate(r)
		r.Revision++
		assert.NoError(t, gate.Save(ctx, r), testCase.description)
	}

	outcomes, anomalies, err := gate.Evaluate(ctx)
	assert.NoError(t, err)
	assert.Empty(t, outcomes)
	assert.Len(t, anomalies, 3)
	for i, testCase := range testCases {
		assert.Equal(t, testCase.reason, anomalies[i].Reason, testCase.description)
	}

	// every refused request reverted to pending, gate stays closed
	pending, err := gate.ListPending(ctx)
	assert.NoError(t, err)
	assert.Len(t, pending, 3)
	for _, r := range pending {
		assert.Equal(t, string(approval.StatusAwaiting), r.Status)
		assert.Empty(t, r.ApprovedBy)
		assert.Contains(t, r.Body, "edit refused")
	}
}

func TestEvaluateModified(t *testing.T) {
	ctx := context.Background()
	gate := newTestGate(t)

	r, err := gate.RequestApproval(ctx, &approval.Request{TaskID: "T1", Action: "post draft"})
	assert.NoError(t, err)
	r.Status = string(approval.StatusModified)
	r.Revision++
	assert.NoError(t, gate.Save(ctx, r))

	outcomes, anomalies, err := gate.Evaluate(ctx)
	assert.NoError(t, err)
	assert.Empty(t, anomalies)
	if assert.Len(t, outcomes, 1) {
		assert.Equal(t, approval.StatusModified, outcomes[0].Status)
	}

	// the request itself went back to awaiting with the amendment recorded
	reloaded, err := gate.Load(ctx, "APPROVAL_T1")
	assert.NoError(t, err)
	assert.Equal(t, string(approval.StatusAwaiting), reloaded.Status)
	assert.Contains(t, reloaded.Body, "modification acknowledged")
}

func TestSweepTimeouts(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)
	advance := fixClock(t, created)
	gate := newTestGate(t)

	_, err := gate.RequestApproval(ctx, &approval.Request{TaskID: "T1", Action: "act"})
	assert.NoError(t, err)

	// just under the reminder threshold: nothing happens
	advance(created.Add(approval.ReminderAfter - time.Minute))
	outcomes, err := gate.Sweep(ctx)
	assert.NoError(t, err)
	assert.Empty(t, outcomes)
	r, _ := gate.Load(ctx, "APPROVAL_T1")
	assert.Nil(t, r.RemindedAt)

	// past the reminder threshold: annotated exactly once
	advance(created.Add(approval.ReminderAfter + time.Minute))
	outcomes, err = gate.Sweep(ctx)
	assert.NoError(t, err)
	assert.Empty(t, outcomes)
	r, _ = gate.Load(ctx, "APPROVAL_T1")
	assert.NotNil(t, r.RemindedAt)
	assert.Contains(t, r.Body, "reminder")
	firstReminder := *r.RemindedAt

	outcomes, err = gate.Sweep(ctx)
	assert.NoError(t, err)
	assert.Empty(t, outcomes)
	r, _ = gate.Load(ctx, "APPROVAL_T1")
	assert.True(t, firstReminder.Equal(*r.RemindedAt), "no repeat reminder")

	// just under expiry: still pending
	advance(created.Add(approval.ExpireAfter - time.Minute))
	outcomes, err = gate.Sweep(ctx)
	assert.NoError(t, err)
	assert.Empty(t, outcomes)

	// at expiry: marked expired on disk, cancellation outcome returned
	advance(created.Add(approval.ExpireAfter))
	outcomes, err = gate.Sweep(ctx)
	assert.NoError(t, err)
	if assert.Len(t, outcomes, 1) {
		assert.Equal(t, approval.StatusCancelled, outcomes[0].Status)
		assert.Equal(t, approval.ExpireAfter, outcomes[0].Elapsed)
	}
	r, _ = gate.Load(ctx, "APPROVAL_T1")
	assert.Equal(t, string(approval.StatusExpired), r.Status)
	assert.Nil(t, r.ResolvedAt, "resolution is stamped only after the outcome is applied")
	assert.Contains(t, r.Body, "expired")
}

func TestSweepOutcomeSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)
	advance := fixClock(t, created)
	base := "mem://localhost/approvals-sweep-restart"
	gate, err := New(ctx, afs.New(), base, "tester")
	assert.NoError(t, err)

	_, err = gate.RequestApproval(ctx, &approval.Request{TaskID: "T1", Action: "act"})
	assert.NoError(t, err)

	// the sweep writes the expiry mark, then the process dies before the
	// engine applies the outcome
	advance(created.Add(approval.ExpireAfter))
	outcomes, err := gate.Sweep(ctx)
	assert.NoError(t, err)
	assert.Len(t, outcomes, 1)

	restarted, err := New(ctx, afs.New(), base, "tester")
	assert.NoError(t, err)
	recovered, anomalies, err := restarted.Evaluate(ctx)
	assert.NoError(t, err)
	assert.Empty(t, anomalies)
	if assert.Len(t, recovered, 1) {
		assert.Equal(t, approval.StatusCancelled, recovered[0].Status)
		assert.Equal(t, approval.ExpireAfter, recovered[0].Elapsed)
	}

	// a repeated sweep never double-expires the request
	swept, err := restarted.Sweep(ctx)
	assert.NoError(t, err)
	assert.Empty(t, swept)

	// once applied the request leaves the Evaluate feed and awaits archiving
	assert.NoError(t, restarted.MarkApplied(ctx, "APPROVAL_T1"))
	recovered, _, err = restarted.Evaluate(ctx)
	assert.NoError(t, err)
	assert.Empty(t, recovered)
	resolved, err := restarted.ListResolved(ctx)
	assert.NoError(t, err)
	assert.Len(t, resolved, 1)
}

func TestDecide(t *testing.T) {
	ctx := context.Background()
	gate := newTestGate(t)

	_, err := gate.RequestApproval(ctx, &approval.Request{TaskID: "T1", Action: "act"})
	assert.NoError(t, err)

	assert.NoError(t, gate.Decide(ctx, "APPROVAL_T1", false, "bob", "out of budget"))
	r, err := gate.Load(ctx, "APPROVAL_T1")
	assert.NoError(t, err)
	assert.Equal(t, string(approval.StatusRejected), r.Status)
	assert.Equal(t, "out of budget", r.RejectedReason)

	// a resolved request cannot be decided again
	assert.Error(t, gate.Decide(ctx, "APPROVAL_T1", true, "alice", ""))
}

func TestStaleRevisionDefers(t *testing.T) {
	ctx := context.Background()
	gate := newTestGate(t)

	r, err := gate.RequestApproval(ctx, &approval.Request{TaskID: "T1", Action: "act"})
	assert.NoError(t, err)

	// a concurrent human edit bumps the revision on disk
	concurrent := *r
	concurrent.Revision = r.Revision + 1
	concurrent.Body = r.Body + "\nhuman note\n"
	assert.NoError(t, gate.Save(ctx, &concurrent))

	// the gate's stale copy loses
	stale := *r
	stale.Status = string(approval.StatusCancelled)
	stale.Revision = r.Revision + 1
	assert.ErrorIs(t, gate.saveChecked(ctx, &stale), dao.ErrStaleRevision)

	reloaded, err := gate.Load(ctx, "APPROVAL_T1")
	assert.NoError(t, err)
	assert.Contains(t, reloaded.Body, "human note", "human edit wins")
}

func TestLoadMissing(t *testing.T) {
	ctx := context.Background()
	gate := newTestGate(t)
	_, err := gate.Load(ctx, "APPROVAL_GHOST")
	assert.ErrorIs(t, err, dao.ErrNotFound)
}
