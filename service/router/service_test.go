package router

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/vaultflow/vaultflow/model/task"
	"github.com/vaultflow/vaultflow/service/handler"
)

type stubHandler struct {
	name  string
	types []task.Type
}

func (h *stubHandler) Name() string { return h.name }
func (h *stubHandler) Types() []task.Type {
	return h.types
}
func (h *stubHandler) Handle(ctx context.Context, t *task.Task) (*handler.Result, error) {
	return &handler.Result{Status: task.StatusCompleted}, nil
}

func newTestRouter(t *testing.T) *Service {
	registry := handler.NewRegistry()
	err := registry.Register(&stubHandler{name: "content", types: []task.Type{task.TypeEmail, task.TypeLinkedInPost}})
	assert.NoError(t, err)
	err = registry.Register(&stubHandler{name: "invoice", types: []task.Type{task.TypeInvoice}})
	assert.NoError(t, err)
	return New(registry)
}

func TestOrder(t *testing.T) {
	base := time.Date(2026, 8, 20, 8, 0, 0, 0, time.UTC)
	low := &task.Task{ID: "low", Priority: task.PriorityLow, CreatedAt: base}
	criticalEarly := &task.Task{ID: "critical-early", Priority: task.PriorityCritical, CreatedAt: base.Add(time.Minute)}
	high := &task.Task{ID: "high", Priority: task.PriorityHigh, CreatedAt: base.Add(2 * time.Minute)}
	criticalLate := &task.Task{ID: "critical-late", Priority: task.PriorityCritical, CreatedAt: base.Add(3 * time.Minute)}

	tasks := []*task.Task{low, criticalLate, high, criticalEarly}
	Order(tasks)

	expect := []string{"critical-early", "critical-late", "high", "low"}
	var got []string
	for _, each := range tasks {
		got = append(got, each.ID)
	}
	assert.Equal(t, expect, got)
}

func TestOrderTieBreaksByID(t *testing.T) {
	at := time.Date(2026, 8, 20, 8, 0, 0, 0, time.UTC)
	b := &task.Task{ID: "b", Priority: task.PriorityHigh, CreatedAt: at}
	a := &task.Task{ID: "a", Priority: task.PriorityHigh, CreatedAt: at}

	tasks := []*task.Task{b, a}
	Order(tasks)
	assert.Equal(t, "a", tasks[0].ID)
}

func TestSplit(t *testing.T) {
	router := newTestRouter(t)
	base := time.Date(2026, 8, 20, 8, 0, 0, 0, time.UTC)

	email := &task.Task{ID: "EMAIL_1", Type: task.TypeEmail, Priority: task.PriorityMedium, CreatedAt: base}
	invoice := &task.Task{ID: "INV_1", Type: task.TypeInvoice, Priority: task.PriorityCritical, CreatedAt: base}
	unknown := &task.Task{ID: "MYSTERY", Type: "carrier_pigeon", CreatedAt: base}
	flagged := &task.Task{ID: "EMAIL_2", Type: task.TypeEmail, ReviewReason: "drafting failed twice", CreatedAt: base}
	unhandled := &task.Task{ID: "PLAN_1", Type: task.TypePlan, CreatedAt: base}

	queue, review := router.Split([]*task.Task{email, invoice, unknown, flagged, unhandled})

	assert.Len(t, queue, 2)
	assert.Equal(t, "INV_1", queue[0].ID, "critical dispatches first")
	assert.Equal(t, "EMAIL_1", queue[1].ID)

	assert.Len(t, review, 3)
	reasons := map[string]string{}
	for _, each := range review {
		reasons[each.Task.ID] = each.Reason
	}
	assert.Equal(t, "unknown task type", reasons["MYSTERY"])
	assert.Equal(t, "drafting failed twice", reasons["EMAIL_2"])
	assert.Equal(t, "no handler for type plan", reasons["PLAN_1"])
}

func TestTarget(t *testing.T) {
	router := newTestRouter(t)

	h, err := router.Target(&task.Task{ID: "E", Type: task.TypeEmail})
	assert.NoError(t, err)
	assert.Equal(t, "content", h.Name())

	_, err = router.Target(&task.Task{ID: "P", Type: task.TypePlan})
	assert.Error(t, err)
}

func TestSessionPlan(t *testing.T) {
	now := time.Date(2026, 8, 20, 9, 15, 0, 0, time.UTC)
	remaining := []*task.Task{
		{ID: "INV_1", Type: task.TypeInvoice, Priority: task.PriorityCritical, CreatedAt: now.Add(-time.Hour)},
		{ID: "EMAIL_1", Type: task.TypeEmail, Priority: task.PriorityMedium, CreatedAt: now.Add(-30 * time.Minute)},
	}
	plan := SessionPlan(remaining, now)

	assert.Contains(t, plan, "# Session Plan")
	assert.Contains(t, plan, "2 tasks queued after this dispatch")
	assert.Contains(t, plan, "1. [ ] `INV_1`")
	assert.Contains(t, plan, "2. [ ] `EMAIL_1`")
	assert.Contains(t, plan, "informational")
}
