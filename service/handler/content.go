package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vaultflow/vaultflow/model/task"
	"github.com/vaultflow/vaultflow/service/drafter"
)

// ContentHandler drafts outbound content (email, LinkedIn, Instagram) via
// the content-generation collaborator. One handler serves every content
// type; the differences live in the drafter.ContentSpec descriptors.
type ContentHandler struct {
	drafter drafter.Service
}

// NewContent creates the content-draft handler.
func NewContent(service drafter.Service) *ContentHandler {
	return &ContentHandler{drafter: service}
}

// Name returns the handler name used in routing metadata.
func (h *ContentHandler) Types() []task.Type {
	return []task.Type{task.TypeEmail, task.TypeLinkedInPost, task.TypeInstagramPost}
}

func (h *ContentHandler) Name() string {
	return "content-draft"
}

// Handle produces two draft variants and appends them to the task. Empty
// collaborator output is retried once, then the task is review-flagged.
func (h *ContentHandler) Handle(ctx context.Context, t *task.Task) (*Result, error) {
	spec, ok := drafter.SpecFor(t.Type)
	if !ok {
		return &Result{
			Status:       t.Status,
			ReviewReason: fmt.Sprintf("no content spec for type %v", t.Type),
		}, nil
	}
	request := &drafter.Request{
		Topic:    topicOf(t),
		Audience: fieldOf(t.Body, "audience"),
		Tone:     fieldOf(t.Body, "tone"),
		Spec:     spec,
	}

	result, err := h.draftWithRetry(ctx, request)
	if err != nil {
		if errors.Is(err, drafter.ErrEmptyDraft) {
			return &Result{
				Status:       t.Status,
				ReviewReason: "collaborator returned no usable draft",
			}, nil
		}
		return nil, err
	}

	var note strings.Builder
	for i, variant := range result.Variants {
		note.WriteString(fmt.Sprintf("### Draft variant %d\n\n%s\n", i+1, variant))
	}
	return &Result{
		Status:  task.StatusCompleted,
		Heading: "Drafts",
		Note:    note.String(),
	}, nil
}

func (h *ContentHandler) draftWithRetry(ctx context.Context, request *drafter.Request) (*drafter.Result, error) {
	result, err := h.drafter.Draft(ctx, request)
	if err == nil && usable(result) {
		return result, nil
	}
	if err != nil && !errors.Is(err, drafter.ErrEmptyDraft) {
		return nil, err
	}
	// One retry on empty output, then give up to human review.
	result, err = h.drafter.Draft(ctx, request)
	if err != nil {
		return nil, err
	}
	if !usable(result) {
		return nil, drafter.ErrEmptyDraft
	}
	return result, nil
}

func usable(result *drafter.Result) bool {
	if result == nil {
		return false
	}
	for _, variant := range result.Variants {
		if strings.TrimSpace(variant) == "" {
			return false
		}
	}
	return true
}

// topicOf extracts a drafting topic: the first heading or non-empty body
// line, falling back to the task identifier.
func topicOf(t *task.Task) string {
	for _, line := range strings.Split(t.Body, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "# "))
		if line != "" && !strings.HasPrefix(line, "-") {
			return line
		}
	}
	return strings.ReplaceAll(t.ID, "_", " ")
}

// fieldOf looks for a "key: value" line in the body.
func fieldOf(body, key string) string {
	prefix := key + ":"
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "-"))
		lower := strings.ToLower(trimmed)
		if strings.HasPrefix(lower, prefix) {
			return strings.TrimSpace(trimmed[len(prefix):])
		}
	}
	return ""
}
