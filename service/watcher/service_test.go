package watcher

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/viant/afs"
	"github.com/viant/afs/url"

	"github.com/vaultflow/vaultflow/internal/clock"
	"github.com/vaultflow/vaultflow/model/task"
	"github.com/vaultflow/vaultflow/service/approval"
	approvalfs "github.com/vaultflow/vaultflow/service/approval/fs"
	"github.com/vaultflow/vaultflow/service/archiver"
	"github.com/vaultflow/vaultflow/service/classifier"
	"github.com/vaultflow/vaultflow/service/dashboard"
	"github.com/vaultflow/vaultflow/service/drafter/static"
	"github.com/vaultflow/vaultflow/service/event"
	"github.com/vaultflow/vaultflow/service/handler"
	"github.com/vaultflow/vaultflow/service/router"
	storefs "github.com/vaultflow/vaultflow/service/store/fs"
)

var engineSeq int

type harness struct {
	engine *Service
	vault  *storefs.Vault
	gate   approval.Service
	fs     afs.Service
	base   string
}

func newHarness(t *testing.T) *harness {
	ctx := context.Background()
	fs := afs.New()
	engineSeq++
	base := fmt.Sprintf("mem://localhost/engine-%d", engineSeq)
	return attach(t, ctx, fs, base)
}

// attach builds a fresh engine over existing on-disk state, the same thing a
// process restart does.
func attach(t *testing.T, ctx context.Context, fs afs.Service, base string) *harness {
	vault, err := storefs.New(ctx, fs, base)
	assert.NoError(t, err)

	gate, err := approvalfs.New(ctx, fs, url.Join(base, string(storefs.FolderApprovals)), "tester")
	assert.NoError(t, err)

	registry := handler.NewRegistry()
	assert.NoError(t, registry.Register(handler.NewContent(static.New())))
	assert.NoError(t, registry.Register(handler.NewPlan()))
	assert.NoError(t, registry.Register(handler.NewInvoice()))
	assert.NoError(t, registry.Register(handler.NewFileDrop()))

	recorder := event.NewRecorder()
	engine, err := New(Config{PollInterval: time.Second}, vault,
		classifier.New(), router.New(registry), gate,
		archiver.New(vault, "tester"),
		dashboard.New(vault, recorder, "tester"), recorder, "tester")
	assert.NoError(t, err)
	return &harness{engine: engine, vault: vault, gate: gate, fs: fs, base: base}
}

func (h *harness) drop(t *testing.T, aTask *task.Task) {
	assert.NoError(t, h.vault.Save(context.Background(), storefs.FolderPending, aTask))
}

func emailTask(id string, priority task.Priority, created time.Time) *task.Task {
	return &task.Task{
		ID:        id,
		Type:      task.TypeEmail,
		Status:    task.StatusPending,
		Priority:  priority,
		CreatedAt: created,
		Body:      "# Weekly update for the team\n\n- audience: colleagues\n- tone: friendly\n",
	}
}

func TestCycleEmailFlow(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.drop(t, emailTask("EMAIL_B", "", time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)))

	report, err := h.engine.RunCycle(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 1, report.Discovered)
	assert.Equal(t, 1, report.Classified)
	assert.Equal(t, 0, report.Gated, "plain email never hits the gate")
	assert.Equal(t, "EMAIL_B", report.Dispatched)
	assert.Contains(t, report.Archived, "EMAIL_B")

	archived, err := h.vault.Load(ctx, storefs.FolderArchive, "EMAIL_B")
	assert.NoError(t, err)
	assert.Equal(t, task.StatusCompleted, archived.Status)
	assert.Equal(t, "content-draft", archived.RoutedTo)
	assert.Contains(t, archived.Body, "Draft variant 1")
	assert.Contains(t, archived.Body, "Draft variant 2")
	assert.NotNil(t, archived.AnalyzedAt)
	assert.NotNil(t, archived.RoutedAt)
	assert.NotNil(t, archived.MovedAt)

	// no approval request was ever created
	pending, err := h.gate.ListPending(ctx)
	assert.NoError(t, err)
	assert.Empty(t, pending)
}

func TestCycleInvoiceApprovalFlow(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.drop(t, &task.Task{
		ID:        "INVOICE_A",
		Type:      task.TypeInvoice,
		Status:    task.StatusPending,
		CreatedAt: time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC),
		Body:      "# Invoice from ACME\n\nAmount due: $1,200.\n",
	})

	// cycle 1: classified, escalated and halted at the gate
	report, err := h.engine.RunCycle(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 1, report.Gated)
	assert.Empty(t, report.Dispatched)

	gated, err := h.vault.Load(ctx, storefs.FolderPending, "INVOICE_A")
	assert.NoError(t, err)
	assert.Equal(t, task.StatusAwaitingApproval, gated.Status)
	assert.Equal(t, task.PriorityCritical, gated.Priority)
	assert.True(t, gated.RequiresApproval)

	pending, err := h.gate.ListPending(ctx)
	assert.NoError(t, err)
	if assert.Len(t, pending, 1) {
		assert.Equal(t, "APPROVAL_INVOICE_A", pending[0].ID)
	}

	// idle cycle: nothing changes while the human is away
	report, err = h.engine.RunCycle(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 0, report.Resolved)

	// human approves
	assert.NoError(t, h.gate.Decide(ctx, "APPROVAL_INVOICE_A", true, "alice", ""))

	// cycle 2: outcome applied, handler runs, everything archives
	report, err = h.engine.RunCycle(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 1, report.Resolved)
	assert.Contains(t, report.Archived, "INVOICE_A")
	assert.Contains(t, report.Archived, "APPROVAL_INVOICE_A")

	archived, err := h.vault.Load(ctx, storefs.FolderArchive, "INVOICE_A")
	assert.NoError(t, err)
	assert.Equal(t, task.StatusCompleted, archived.Status)
	assert.Contains(t, archived.Body, "Approved by alice")

	// the gate is re-armed: no open requests remain
	pending, err = h.gate.ListPending(ctx)
	assert.NoError(t, err)
	assert.Empty(t, pending)
}

func TestCycleRejectionFlow(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.drop(t, &task.Task{
		ID:        "INVOICE_X",
		Type:      task.TypeInvoice,
		Status:    task.StatusPending,
		CreatedAt: time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC),
		Body:      "# Suspicious invoice\n",
	})

	_, err := h.engine.RunCycle(ctx)
	assert.NoError(t, err)
	assert.NoError(t, h.gate.Decide(ctx, "APPROVAL_INVOICE_X", false, "bob", "unverified vendor"))

	report, err := h.engine.RunCycle(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 1, report.Resolved)

	archived, err := h.vault.Load(ctx, storefs.FolderArchive, "INVOICE_X")
	assert.NoError(t, err)
	assert.Equal(t, task.StatusRejected, archived.Status)
	assert.Contains(t, archived.Body, "unverified vendor")
	assert.Contains(t, archived.Body, "No action was taken")
}

func TestCycleExpiryFlow(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)
	clock.NowFunc = func() time.Time { return created }
	defer func() { clock.NowFunc = time.Now }()

	h := newHarness(t)
	h.drop(t, &task.Task{
		ID:        "INVOICE_OLD",
		Type:      task.TypeInvoice,
		Status:    task.StatusPending,
		CreatedAt: created,
		Body:      "# Forgotten invoice\n",
	})
	_, err := h.engine.RunCycle(ctx)
	assert.NoError(t, err)

	// 71 hours later: reminder only, still pending
	clock.NowFunc = func() time.Time { return created.Add(71 * time.Hour) }
	report, err := h.engine.RunCycle(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 0, report.Expired)
	still, err := h.vault.Load(ctx, storefs.FolderPending, "INVOICE_OLD")
	assert.NoError(t, err)
	assert.Equal(t, task.StatusAwaitingApproval, still.Status)

	// 72 hours: expired, cancelled, archived
	clock.NowFunc = func() time.Time { return created.Add(72 * time.Hour) }
	report, err = h.engine.RunCycle(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 1, report.Expired)

	archived, err := h.vault.Load(ctx, storefs.FolderArchive, "INVOICE_OLD")
	assert.NoError(t, err)
	assert.Equal(t, task.StatusCancelled, archived.Status)
	assert.Contains(t, archived.Body, "expired after 72h0m0s")
}

func TestCycleExpiryRecoversAfterCrash(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)
	clock.NowFunc = func() time.Time { return created }
	defer func() { clock.NowFunc = time.Now }()

	h := newHarness(t)
	h.drop(t, &task.Task{
		ID:        "INVOICE_CRASH",
		Type:      task.TypeInvoice,
		Status:    task.StatusPending,
		CreatedAt: created,
		Body:      "# Forgotten invoice\n",
	})
	_, err := h.engine.RunCycle(ctx)
	assert.NoError(t, err)

	// the sweep marks the request expired, then the process dies before the
	// cancellation reaches the source task
	clock.NowFunc = func() time.Time { return created.Add(72 * time.Hour) }
	outcomes, err := h.gate.Sweep(ctx)
	assert.NoError(t, err)
	assert.Len(t, outcomes, 1)

	restarted := attach(t, ctx, h.fs, h.base)
	report, err := restarted.engine.RunCycle(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 1, report.Resolved)

	archived, err := restarted.vault.Load(ctx, storefs.FolderArchive, "INVOICE_CRASH")
	assert.NoError(t, err)
	assert.Equal(t, task.StatusCancelled, archived.Status)
	assert.Contains(t, archived.Body, "expired after 72h0m0s")

	stillPending, err := restarted.vault.Exists(ctx, storefs.FolderPending, "INVOICE_CRASH")
	assert.NoError(t, err)
	assert.False(t, stillPending)
	pending, err := restarted.gate.ListPending(ctx)
	assert.NoError(t, err)
	assert.Empty(t, pending)
}

func TestCycleUnknownTypeIsolation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.drop(t, &task.Task{
		ID:        "MYSTERY_1",
		Type:      "carrier_pigeon",
		Status:    task.StatusPending,
		CreatedAt: time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC),
		Body:      "# What is this\n",
	})
	h.drop(t, emailTask("EMAIL_OK", "", time.Date(2026, 8, 20, 9, 5, 0, 0, time.UTC)))

	report, err := h.engine.RunCycle(ctx)
	assert.NoError(t, err)
	assert.Equal(t, "EMAIL_OK", report.Dispatched, "healthy task flows past the flagged one")

	flagged, err := h.vault.Load(ctx, storefs.FolderPending, "MYSTERY_1")
	assert.NoError(t, err)
	assert.Equal(t, task.StatusPending, flagged.Status, "unknown type is never auto-routed")
	assert.Equal(t, "unrecognized type: carrier_pigeon", flagged.ReviewReason)

	// later cycles leave the flagged task untouched until a human clears it
	before := flagged.Body
	_, err = h.engine.RunCycle(ctx)
	assert.NoError(t, err)
	flagged, err = h.vault.Load(ctx, storefs.FolderPending, "MYSTERY_1")
	assert.NoError(t, err)
	assert.Equal(t, before, flagged.Body)
}

func TestCyclePriorityOrdering(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	base := time.Date(2026, 8, 20, 8, 0, 0, 0, time.UTC)
	h.drop(t, emailTask("E_LOW", task.PriorityLow, base))
	h.drop(t, emailTask("E_CRIT_EARLY", task.PriorityCritical, base.Add(time.Minute)))
	h.drop(t, emailTask("E_HIGH", task.PriorityHigh, base.Add(2*time.Minute)))
	h.drop(t, emailTask("E_CRIT_LATE", task.PriorityCritical, base.Add(3*time.Minute)))

	var order []string
	for i := 0; i < 4; i++ {
		report, err := h.engine.RunCycle(ctx)
		assert.NoError(t, err)
		order = append(order, report.Dispatched)
	}
	assert.Equal(t, []string{"E_CRIT_EARLY", "E_CRIT_LATE", "E_HIGH", "E_LOW"}, order)
}

func TestCycleSessionPlan(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	base := time.Date(2026, 8, 20, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		h.drop(t, emailTask(fmt.Sprintf("EMAIL_%d", i), task.PriorityMedium, base.Add(time.Duration(i)*time.Minute)))
	}

	report, err := h.engine.RunCycle(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 3, report.Remaining)

	plan, err := h.vault.ReadArtifact(ctx, string(storefs.FolderPlans)+"/Session_Plan.md")
	assert.NoError(t, err)
	assert.Contains(t, string(plan), "3 tasks queued after this dispatch")
	assert.Contains(t, string(plan), "EMAIL_1")
}

func TestCycleSkipsUnreadableFiles(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	brokenURL := h.vault.TaskURL(storefs.FolderPending, "BROKEN")
	assert.NoError(t, h.fs.Upload(ctx, brokenURL, 0644, strings.NewReader("no frontmatter at all")))
	h.drop(t, emailTask("EMAIL_OK", "", time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)))

	report, err := h.engine.RunCycle(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, "EMAIL_OK", report.Dispatched)

	// the unreadable file is left exactly where it was
	data, err := h.fs.DownloadWithURL(ctx, brokenURL)
	assert.NoError(t, err)
	assert.Equal(t, "no frontmatter at all", string(data))
}

func TestRestartIdempotence(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.drop(t, &task.Task{
		ID:        "INVOICE_R",
		Type:      task.TypeInvoice,
		Status:    task.StatusPending,
		CreatedAt: time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC),
		Body:      "# Invoice\n",
	})
	_, err := h.engine.RunCycle(ctx)
	assert.NoError(t, err)

	// simulate a process restart: a brand-new engine over the same files
	restarted := attach(t, ctx, h.fs, h.base)
	_, err = restarted.engine.RunCycle(ctx)
	assert.NoError(t, err)

	// still exactly one request, task still gated, nothing duplicated
	pending, err := restarted.gate.ListPending(ctx)
	assert.NoError(t, err)
	assert.Len(t, pending, 1)
	gated, err := restarted.vault.Load(ctx, storefs.FolderPending, "INVOICE_R")
	assert.NoError(t, err)
	assert.Equal(t, task.StatusAwaitingApproval, gated.Status)

	// the restarted engine carries the decision through to the end
	assert.NoError(t, restarted.gate.Decide(ctx, "APPROVAL_INVOICE_R", true, "alice", ""))
	report, err := restarted.engine.RunCycle(ctx)
	assert.NoError(t, err)
	assert.Contains(t, report.Archived, "INVOICE_R")
}

func TestDashboardWrittenEachCycle(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.drop(t, emailTask("EMAIL_D", "", time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)))

	_, err := h.engine.RunCycle(ctx)
	assert.NoError(t, err)

	data, err := h.vault.ReadArtifact(ctx, storefs.DashboardFile)
	assert.NoError(t, err)
	assert.Contains(t, string(data), "# Dashboard")
}
