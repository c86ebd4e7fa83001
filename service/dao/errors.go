package dao

import "errors"

// Common, reusable store errors. Sentinel variables let callers detect
// conditions with errors.Is instead of brittle string comparisons.

var (
	// ErrNotFound is returned when the requested record does not exist in
	// the underlying storage.
	ErrNotFound = errors.New("dao: not found")

	// ErrInvalidID indicates that the supplied ID/key is empty or otherwise
	// invalid.
	ErrInvalidID = errors.New("dao: invalid id")

	// ErrNilEntity is returned when the caller attempts to persist a nil
	// pointer.
	ErrNilEntity = errors.New("dao: nil entity")

	// ErrStaleRevision is returned when an optimistic-concurrency check
	// fails: the on-disk record changed between read and write.
	ErrStaleRevision = errors.New("dao: stale revision")
)
