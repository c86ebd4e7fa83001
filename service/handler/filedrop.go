package handler

import (
	"context"

	"github.com/vaultflow/vaultflow/model/task"
)

// FileDropHandler acknowledges inbox file drops. The payload file was
// already copied next to the task by the inbox producer; the handler only
// closes the loop.
type FileDropHandler struct{}

// NewFileDrop creates the file-drop handler.
func NewFileDrop() *FileDropHandler {
	return &FileDropHandler{}
}

func (h *FileDropHandler) Types() []task.Type {
	return []task.Type{task.TypeFileDrop}
}

func (h *FileDropHandler) Name() string {
	return "file-drop"
}

func (h *FileDropHandler) Handle(_ context.Context, t *task.Task) (*Result, error) {
	return &Result{
		Status:  task.StatusCompleted,
		Heading: "Processed",
		Note:    "File drop registered in the vault.\n",
	}, nil
}
