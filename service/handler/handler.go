// Package handler hosts the downstream task handlers the router dispatches
// to. The handler set is a closed registry keyed by task type; tasks whose
// type has no registered handler are surfaced for human review instead of
// being guessed at.
package handler

import (
	"context"
	"fmt"

	"github.com/vaultflow/vaultflow/model/task"
)

// Result is what a handler hands back to the engine. Handlers never touch
// the store themselves; the engine applies the result, which keeps every
// handler idempotent and restart-safe.
type Result struct {
	// Status the task advances to; validated against the state machine.
	Status task.Status
	// Note is appended to the task body under Heading. Bodies are
	// append-only.
	Heading string
	Note    string
	// RequiresApproval asks the engine to open the approval gate for
	// Action before the task may proceed.
	RequiresApproval bool
	Action           string
	// ReviewReason flags the task for the human-review list.
	ReviewReason string
}

// Handler processes one routed task.
type Handler interface {
	Name() string
	Handle(ctx context.Context, t *task.Task) (*Result, error)
}

// Registry maps task types to handlers.
type Registry struct {
	handlers map[task.Type]Handler
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: map[task.Type]Handler{}}
}

// TypeBinder is implemented by handlers that declare their own task types.
type TypeBinder interface {
	Types() []task.Type
}

// Register binds a handler to one or more task types. With no explicit
// types the handler must declare its own via TypeBinder.
func (r *Registry) Register(h Handler, types ...task.Type) error {
	if len(types) == 0 {
		binder, ok := h.(TypeBinder)
		if !ok {
			return fmt.Errorf("handler %v declares no task types", h.Name())
		}
		types = binder.Types()
	}
	for _, t := range types {
		if existing, ok := r.handlers[t]; ok {
			return fmt.Errorf("handler for %v already registered: %v", t, existing.Name())
		}
		r.handlers[t] = h
	}
	return nil
}

// Lookup returns the handler bound to a task type.
func (r *Registry) Lookup(t task.Type) (Handler, bool) {
	h, ok := r.handlers[t]
	return h, ok
}

// Types returns every registered task type.
func (r *Registry) Types() []task.Type {
	result := make([]task.Type, 0, len(r.handlers))
	for t := range r.handlers {
		result = append(result, t)
	}
	return result
}
