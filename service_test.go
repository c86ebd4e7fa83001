package vaultflow

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/viant/afs"
	"github.com/viant/afs/file"

	"github.com/vaultflow/vaultflow/model/task"
	storefs "github.com/vaultflow/vaultflow/service/store/fs"
)

var rootSeq int

func newTestService(t *testing.T) *Service {
	rootSeq++
	srv, err := New(context.Background(), DefaultConfig(fmt.Sprintf("mem://localhost/vaultflow-%d", rootSeq)))
	assert.NoError(t, err)
	return srv
}

func TestNewValidation(t *testing.T) {
	ctx := context.Background()
	_, err := New(ctx, nil)
	assert.Error(t, err)

	_, err = New(ctx, &Config{})
	assert.Error(t, err, "empty base URL refused")
}

func TestFolderLayoutCreated(t *testing.T) {
	ctx := context.Background()
	srv := newTestService(t)
	fs := afs.New()
	for _, folder := range []storefs.Folder{
		storefs.FolderPending, storefs.FolderArchive, storefs.FolderApprovals,
		storefs.FolderPlans, storefs.FolderInbox, storefs.FolderAttachments,
	} {
		exists, err := fs.Exists(ctx, srv.Vault().FolderURL(folder))
		assert.NoError(t, err)
		assert.True(t, exists, string(folder))
	}
}

func TestEndToEndApprovalLifecycle(t *testing.T) {
	ctx := context.Background()
	srv := newTestService(t)
	rt := srv.Runtime()

	// drop a payload into the inbox and an invoice into the pending store
	inboxURL := srv.Vault().FolderURL(storefs.FolderInbox) + "/statement.csv"
	assert.NoError(t, afs.New().Upload(ctx, inboxURL, file.DefaultFileOsMode, strings.NewReader("a,b,c")))
	err := srv.Vault().Save(ctx, storefs.FolderPending, &task.Task{
		ID:        "INVOICE_1",
		Type:      task.TypeInvoice,
		Status:    task.StatusPending,
		CreatedAt: time.Now(),
		Body:      "# Invoice\n\nAmount due: $90.\n",
	})
	assert.NoError(t, err)

	created, err := rt.ProcessInbox(ctx)
	assert.NoError(t, err)
	assert.Len(t, created, 1)

	// cycle 1: invoice gated, file drop completed and archived
	report, err := rt.RunCycle(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 2, report.Classified)
	assert.Equal(t, 1, report.Gated)

	pending, err := rt.PendingApprovals(ctx)
	assert.NoError(t, err)
	if assert.Len(t, pending, 1) {
		assert.NoError(t, rt.Decide(ctx, pending[0].ID, true, "alice", ""))
	}

	// cycle 2: approval applied, invoice completed and archived
	report, err = rt.RunCycle(ctx)
	assert.NoError(t, err)
	assert.Contains(t, report.Archived, "INVOICE_1")

	snapshot, err := rt.Snapshot(ctx)
	assert.NoError(t, err)
	assert.GreaterOrEqual(t, snapshot.Archived, 2)

	archived, err := rt.Tasks(ctx, storefs.FolderArchive)
	assert.NoError(t, err)
	ids := map[string]bool{}
	for _, each := range archived.Tasks {
		ids[each.ID] = true
	}
	assert.True(t, ids["INVOICE_1"])
}

func TestDropBriefingThroughRuntime(t *testing.T) {
	ctx := context.Background()
	srv := newTestService(t)
	rt := srv.Runtime()

	assert.NoError(t, rt.DropBriefing(ctx))
	listing, err := rt.Tasks(ctx, storefs.FolderPending)
	assert.NoError(t, err)
	if assert.Len(t, listing.Tasks, 1) {
		assert.Equal(t, task.TypeBriefing, listing.Tasks[0].Type)
	}
}

func TestRuntimeStartShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	srv := newTestService(t)
	rt := srv.Runtime()

	assert.NoError(t, rt.Start(ctx))
	time.Sleep(20 * time.Millisecond)
	assert.NoError(t, rt.Shutdown(context.Background()))
}
