package approval

import (
	"strings"
	"time"
)

// Timeout policy for pending requests. A request older than ReminderAfter
// gets a non-blocking reminder annotation; older than ExpireAfter it is the
// one autonomous transition in the system: expired, then cancelled.
const (
	ReminderAfter = 24 * time.Hour
	ExpireAfter   = 72 * time.Hour
)

// Status is the lifecycle state of an approval request.
type Status string

const (
	StatusAwaiting  Status = "awaiting_approval"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusModified  Status = "modified"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

// ParseStatus normalizes a human-edited status value. Unrecognized values
// return false so the gate can flag the edit as an anomaly instead of
// guessing.
func ParseStatus(value string) (Status, bool) {
	switch Status(strings.ToLower(strings.TrimSpace(value))) {
	case StatusAwaiting:
		return StatusAwaiting, true
	case StatusApproved:
		return StatusApproved, true
	case StatusRejected:
		return StatusRejected, true
	case StatusModified:
		return StatusModified, true
	case StatusExpired:
		return StatusExpired, true
	case StatusCancelled:
		return StatusCancelled, true
	}
	return "", false
}

// RiskLevel describes the blast radius of the gated action.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Request is a durable approval record, persisted as its own vault file
// distinct from the source task it references. The frontmatter fields are
// the human edit surface: resolution happens exclusively by editing status
// (plus approved_by or rejected_reason) in this file.
type Request struct {
	ID             string     `yaml:"-"`
	TaskID         string     `yaml:"task"`
	Type           string     `yaml:"type"`
	Status         string     `yaml:"status"`
	Action         string     `yaml:"action"`
	RiskLevel      RiskLevel  `yaml:"risk_level"`
	Reversible     bool       `yaml:"reversible"`
	RequestedBy    string     `yaml:"requested_by"`
	ApprovedBy     string     `yaml:"approved_by,omitempty"`
	RejectedReason string     `yaml:"rejected_reason,omitempty"`
	CreatedAt      time.Time  `yaml:"created"`
	RemindedAt     *time.Time `yaml:"reminded_at,omitempty"`
	ResolvedAt     *time.Time `yaml:"resolved_at,omitempty"`
	// Revision is bumped on every write by either side; the gate rechecks
	// it before honoring an edit so a concurrent human save is never lost.
	Revision int `yaml:"revision"`

	Body string `yaml:"-"`
}

// Pending reports whether the request still blocks its source task.
func (r *Request) Pending() bool {
	status, ok := ParseStatus(r.Status)
	if !ok {
		// Malformed status keeps the gate closed.
		return true
	}
	switch status {
	case StatusAwaiting, StatusModified:
		return true
	}
	return false
}

// Age returns how long the request has been outstanding.
func (r *Request) Age(now time.Time) time.Duration {
	return now.Sub(r.CreatedAt)
}

// Outcome describes a resolved request the engine must apply to the source
// task.
type Outcome struct {
	Request *Request
	Status  Status
	// Elapsed is set for timeout-driven cancellation and always logged.
	Elapsed time.Duration
}

// Anomaly describes a human edit the gate refused to honor: an approval
// with no approver identity, a rejection with no reason, or a status value
// outside the state machine. The request stays open.
type Anomaly struct {
	Request *Request
	Reason  string
}
