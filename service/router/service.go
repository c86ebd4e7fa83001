// Package router decides which tasks run and in what order. It produces a
// strict total order over dispatchable tasks, isolates everything that must
// not be auto-routed onto a human-review list, and renders the consolidated
// session plan once a cycle leaves enough work behind.
package router

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/vaultflow/vaultflow/model/task"
	"github.com/vaultflow/vaultflow/service/handler"
)

// SessionPlanThreshold is the number of tasks that must remain after one
// dispatch for the router to emit a consolidated session plan.
const SessionPlanThreshold = 3

// Review flags a task for mandatory human attention.
type Review struct {
	Task   *task.Task
	Reason string
}

// Service orders and filters classified tasks.
type Service struct {
	registry *handler.Registry
}

// New creates a router over the given handler registry.
func New(registry *handler.Registry) *Service {
	return &Service{registry: registry}
}

// Split partitions classified tasks into the dispatch queue and the
// human-review list. Unknown-type tasks and tasks without a registered
// handler never enter the queue.
func (s *Service) Split(tasks []*task.Task) (queue []*task.Task, review []*Review) {
	for _, t := range tasks {
		if task.ParseType(string(t.Type)) == task.TypeUnknown {
			reason := t.ReviewReason
			if reason == "" {
				reason = "unknown task type"
			}
			review = append(review, &Review{Task: t, Reason: reason})
			continue
		}
		if t.ReviewReason != "" {
			review = append(review, &Review{Task: t, Reason: t.ReviewReason})
			continue
		}
		if _, ok := s.registry.Lookup(t.Type); !ok {
			review = append(review, &Review{Task: t, Reason: fmt.Sprintf("no handler for type %v", t.Type)})
			continue
		}
		queue = append(queue, t)
	}
	Order(queue)
	return queue, review
}

// Order sorts tasks in place into dispatch order: CRITICAL > HIGH > MEDIUM
// > LOW, ties broken by ascending creation time, then by ID for a stable
// total order.
func Order(tasks []*task.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].Priority.Order() != tasks[j].Priority.Order() {
			return tasks[i].Priority.Order() < tasks[j].Priority.Order()
		}
		if !tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
		}
		return tasks[i].ID < tasks[j].ID
	})
}

// Target returns the handler a task dispatches to.
func (s *Service) Target(t *task.Task) (handler.Handler, error) {
	h, ok := s.registry.Lookup(t.Type)
	if !ok {
		return nil, fmt.Errorf("no handler for type %v", t.Type)
	}
	return h, nil
}

// SessionPlan renders the ordered checklist of remaining work. It is
// informational only and never authoritative over individual task status.
func SessionPlan(remaining []*task.Task, now time.Time) string {
	var b strings.Builder
	b.WriteString("# Session Plan\n\n")
	b.WriteString(fmt.Sprintf("Generated: %s\n\n", now.Format(time.RFC3339)))
	b.WriteString(fmt.Sprintf("%d tasks queued after this dispatch:\n\n", len(remaining)))
	for i, t := range remaining {
		b.WriteString(fmt.Sprintf("%d. [ ] `%s` (%s, %s, created %s)\n",
			i+1, t.ID, t.Type, t.Priority, t.CreatedAt.Format("2006-01-02 15:04")))
	}
	b.WriteString("\nThis checklist is informational; task files remain authoritative.\n")
	return b.String()
}
