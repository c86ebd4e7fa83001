package handler

import (
	"context"
	"fmt"

	"github.com/vaultflow/vaultflow/model/task"
)

// InvoiceHandler prepares a payment instruction for an approved invoice.
// Invoices are sensitive: the handler refuses to run ungated even if the
// classifier was bypassed.
type InvoiceHandler struct{}

// NewInvoice creates the invoice handler.
func NewInvoice() *InvoiceHandler {
	return &InvoiceHandler{}
}

func (h *InvoiceHandler) Types() []task.Type {
	return []task.Type{task.TypeInvoice}
}

func (h *InvoiceHandler) Name() string {
	return "invoice"
}

func (h *InvoiceHandler) Handle(_ context.Context, t *task.Task) (*Result, error) {
	if t.Status != task.StatusApproved {
		return &Result{
			Status:           t.Status,
			RequiresApproval: true,
			Action:           fmt.Sprintf("pay invoice %s", t.ID),
		}, nil
	}
	return &Result{
		Status:  task.StatusCompleted,
		Heading: "Payment prepared",
		Note: "Payment instruction prepared from the approved invoice. " +
			"Execution is delegated to the finance workflow outside the vault.\n",
	}, nil
}
