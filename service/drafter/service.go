// Package drafter defines the content-generation collaborator. The engine
// treats it as an opaque function from a drafting request to two textual
// variants: no side effects, no guaranteed determinism. Retries on empty or
// malformed output are the caller's responsibility.
package drafter

import (
	"context"
	"errors"
)

// Variants is the number of draft alternatives a collaborator must return.
const Variants = 2

// ErrEmptyDraft is returned when the collaborator produced no usable text.
var ErrEmptyDraft = errors.New("drafter: empty draft")

// Request carries the drafting context.
type Request struct {
	Topic    string
	Audience string
	Tone     string
	Spec     ContentSpec
}

// Result holds exactly two draft variants.
type Result struct {
	Variants [Variants]string
}

// Service is the collaborator contract.
type Service interface {
	Draft(ctx context.Context, request *Request) (*Result, error)
}
