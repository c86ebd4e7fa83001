package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/vaultflow/vaultflow/model/task"
)

// PlanHandler turns a plan task's free-form items into an ordered
// checklist.
type PlanHandler struct{}

// NewPlan creates the plan handler.
func NewPlan() *PlanHandler {
	return &PlanHandler{}
}

func (h *PlanHandler) Types() []task.Type {
	return []task.Type{task.TypePlan}
}

func (h *PlanHandler) Name() string {
	return "plan"
}

func (h *PlanHandler) Handle(_ context.Context, t *task.Task) (*Result, error) {
	items := planItems(t.Body)
	if len(items) == 0 {
		return &Result{
			Status:       t.Status,
			ReviewReason: "plan task has no actionable items",
		}, nil
	}
	var note strings.Builder
	for i, item := range items {
		note.WriteString(fmt.Sprintf("%d. [ ] %s\n", i+1, item))
	}
	return &Result{
		Status:  task.StatusCompleted,
		Heading: "Checklist",
		Note:    note.String(),
	}, nil
}

// planItems extracts list items and plain lines, skipping headings.
func planItems(body string) []string {
	var items []string
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(line, "-"), "*"))
		if line != "" {
			items = append(items, line)
		}
	}
	return items
}
