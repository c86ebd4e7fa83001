package vaultflow

import (
	"context"

	"github.com/vaultflow/vaultflow/model/task"
	"github.com/vaultflow/vaultflow/service/approval"
	"github.com/vaultflow/vaultflow/service/dashboard"
	"github.com/vaultflow/vaultflow/service/event"
	"github.com/vaultflow/vaultflow/service/inbox"
	"github.com/vaultflow/vaultflow/service/scheduler"
	storefs "github.com/vaultflow/vaultflow/service/store/fs"
	"github.com/vaultflow/vaultflow/service/watcher"
)

// Runtime holds the running parts of the engine: the poll-loop consumer, the
// inbox producer and the cron producer, all sharing one vault store.
type Runtime struct {
	watcher   *watcher.Service
	inbox     *inbox.Service
	scheduler *scheduler.Service
	vault     *storefs.Vault
	gate      approval.Service
	dashboard *dashboard.Service
	recorder  *event.Recorder
}

// Start launches the poll loops and the cron runner. It returns immediately;
// the loops run until ctx is done or Shutdown is called.
func (r *Runtime) Start(ctx context.Context) error {
	go r.watcher.Start(ctx)
	go r.inbox.Start(ctx)
	r.scheduler.Start()
	return nil
}

// Shutdown stops all loops. In-flight cycles finish; the next tick never
// fires.
func (r *Runtime) Shutdown(ctx context.Context) error {
	r.watcher.Shutdown()
	r.inbox.Shutdown()
	r.scheduler.Shutdown(ctx)
	return nil
}

// RunCycle executes exactly one watcher cycle. Intended for one-shot CLI
// invocations and tests; the same cycle the poll loop runs on every tick.
func (r *Runtime) RunCycle(ctx context.Context) (*watcher.CycleReport, error) {
	return r.watcher.RunCycle(ctx)
}

// ProcessInbox scans the inbox folder once and returns the task identifiers
// registered in this pass.
func (r *Runtime) ProcessInbox(ctx context.Context) ([]string, error) {
	return r.inbox.ProcessOnce(ctx)
}

// DropBriefing creates today's briefing task immediately, outside the cron
// schedule.
func (r *Runtime) DropBriefing(ctx context.Context) error {
	return r.scheduler.DropBriefing(ctx)
}

// PendingApprovals returns every request still blocking a task.
func (r *Runtime) PendingApprovals(ctx context.Context) ([]*approval.Request, error) {
	return r.gate.ListPending(ctx)
}

// Decide resolves an approval request the way a human edit would. The
// decision takes effect on the next cycle.
func (r *Runtime) Decide(ctx context.Context, requestID string, approved bool, actor, reason string) error {
	return r.gate.Decide(ctx, requestID, approved, actor, reason)
}

// Snapshot recomputes the dashboard from on-disk state and returns it.
func (r *Runtime) Snapshot(ctx context.Context) (*dashboard.Snapshot, error) {
	return r.dashboard.Refresh(ctx)
}

// Tasks lists the tasks of one vault folder.
func (r *Runtime) Tasks(ctx context.Context, folder storefs.Folder) (*storefs.Listing, error) {
	return r.vault.List(ctx, folder)
}

// pendingLister adapts the vault store to the briefing handler.
type pendingLister struct {
	vault *storefs.Vault
}

func (l pendingLister) ListPending(ctx context.Context) ([]*task.Task, error) {
	listing, err := l.vault.List(ctx, storefs.FolderPending)
	if err != nil {
		return nil, err
	}
	return listing.Tasks, nil
}
