package approval

import (
	"context"
)

// Service defines the approval gate interface.
type Service interface {
	// RequestApproval creates a durable approval request for a source task,
	// or updates the outstanding one: at most one pending request exists
	// per task at any time.
	RequestApproval(ctx context.Context, r *Request) (*Request, error)

	// ListPending returns every request still blocking its source task.
	ListPending(ctx context.Context) ([]*Request, error)

	// Evaluate reads human edits made since the last cycle and returns the
	// honored resolutions plus any edits refused as anomalies. Outcomes are
	// returned again on later cycles until MarkApplied stamps them, which
	// makes applying them restart-safe.
	Evaluate(ctx context.Context) ([]*Outcome, []*Anomaly, error)

	// MarkApplied records that the engine finished applying an outcome to
	// the source task.
	MarkApplied(ctx context.Context, id string) error

	// ListResolved returns requests whose outcome was applied and which
	// now only wait for the archiver.
	ListResolved(ctx context.Context) ([]*Request, error)

	// Sweep applies the timeout policy: reminder annotations past
	// ReminderAfter, expiry and cancellation past ExpireAfter. Expiries are
	// returned as outcomes so the engine can cancel the source tasks.
	Sweep(ctx context.Context) ([]*Outcome, error)

	// Decide resolves a request programmatically by writing the same
	// fields a human editor would, revision bump included. The resolution
	// still takes effect through Evaluate on the next cycle.
	Decide(ctx context.Context, id string, approved bool, actor, reason string) error
}
