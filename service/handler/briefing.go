package handler

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/vaultflow/vaultflow/model/task"
)

// PendingLister exposes the open work the briefing summarizes. The engine
// adapts the vault store to this.
type PendingLister interface {
	ListPending(ctx context.Context) ([]*task.Task, error)
}

// BriefingHandler writes a morning-briefing summary of the pending store
// into the briefing task body.
type BriefingHandler struct {
	lister PendingLister
}

// NewBriefing creates the briefing handler.
func NewBriefing(lister PendingLister) *BriefingHandler {
	return &BriefingHandler{lister: lister}
}

func (h *BriefingHandler) Types() []task.Type {
	return []task.Type{task.TypeBriefing}
}

func (h *BriefingHandler) Name() string {
	return "briefing"
}

func (h *BriefingHandler) Handle(ctx context.Context, t *task.Task) (*Result, error) {
	pending, err := h.lister.ListPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("briefing: failed to list pending work: %w", err)
	}

	byPriority := map[task.Priority]int{}
	var open []*task.Task
	for _, candidate := range pending {
		if candidate.ID == t.ID {
			continue
		}
		byPriority[candidate.Priority]++
		open = append(open, candidate)
	}
	sort.Slice(open, func(i, j int) bool {
		if open[i].Priority.Order() != open[j].Priority.Order() {
			return open[i].Priority.Order() < open[j].Priority.Order()
		}
		return open[i].CreatedAt.Before(open[j].CreatedAt)
	})

	var note strings.Builder
	note.WriteString(fmt.Sprintf("Open tasks: %d\n\n", len(open)))
	for _, p := range []task.Priority{task.PriorityCritical, task.PriorityHigh, task.PriorityMedium, task.PriorityLow} {
		if count := byPriority[p]; count > 0 {
			note.WriteString(fmt.Sprintf("- %s: %d\n", p, count))
		}
	}
	if len(open) > 0 {
		note.WriteString("\nNext up:\n")
		limit := len(open)
		if limit > 5 {
			limit = 5
		}
		for i, candidate := range open[:limit] {
			note.WriteString(fmt.Sprintf("%d. `%s` (%s, %s)\n", i+1, candidate.ID, candidate.Type, candidate.Priority))
		}
	}
	return &Result{
		Status:  task.StatusCompleted,
		Heading: "Briefing",
		Note:    note.String(),
	}, nil
}
