package task

import (
	"fmt"
	"strings"
	"time"
)

// Type categorizes a task by the kind of work it requires.
type Type string

const (
	TypeEmail           Type = "email"
	TypeInvoice         Type = "invoice"
	TypeLinkedInPost    Type = "linkedin_post"
	TypeInstagramPost   Type = "instagram_post"
	TypePlan            Type = "plan"
	TypeBriefing        Type = "briefing"
	TypeApprovalRequest Type = "approval_request"
	TypeFileDrop        Type = "file_drop"
	TypeUnknown         Type = "unknown"
)

// ParseType normalizes a frontmatter type value. Anything unrecognized maps
// to TypeUnknown - the caller must route such tasks to human review rather
// than guess.
func ParseType(value string) Type {
	switch Type(strings.ToLower(strings.TrimSpace(value))) {
	case TypeEmail:
		return TypeEmail
	case TypeInvoice:
		return TypeInvoice
	case TypeLinkedInPost:
		return TypeLinkedInPost
	case TypeInstagramPost:
		return TypeInstagramPost
	case TypePlan:
		return TypePlan
	case TypeBriefing:
		return TypeBriefing
	case TypeApprovalRequest:
		return TypeApprovalRequest
	case TypeFileDrop:
		return TypeFileDrop
	}
	return TypeUnknown
}

// Status represents the single authoritative lifecycle state of a task.
type Status string

const (
	StatusPending          Status = "pending"
	StatusAnalyzed         Status = "analyzed"
	StatusPlanned          Status = "planned"
	StatusDrafted          Status = "drafted"
	StatusRouted           Status = "routed"
	StatusAwaitingApproval Status = "awaiting_approval"
	StatusApproved         Status = "approved"
	StatusRejected         Status = "rejected"
	StatusModified         Status = "modified"
	StatusCompleted        Status = "completed"
	StatusCancelled        Status = "cancelled"
	StatusArchived         Status = "archived"
)

// transitions defines the legal forward moves of the task state machine.
// The machine is monotonic: the only way back is the human-triggered
// StatusModified reopen, which re-enters the queue as pending work.
var transitions = map[Status][]Status{
	StatusPending:          {StatusAnalyzed, StatusRouted, StatusAwaitingApproval, StatusCancelled},
	StatusAnalyzed:         {StatusPlanned, StatusRouted, StatusAwaitingApproval, StatusCancelled},
	StatusPlanned:          {StatusDrafted, StatusRouted, StatusAwaitingApproval, StatusCancelled},
	StatusRouted:           {StatusDrafted, StatusAwaitingApproval, StatusCompleted, StatusCancelled},
	StatusDrafted:          {StatusAwaitingApproval, StatusCompleted, StatusCancelled},
	StatusAwaitingApproval: {StatusApproved, StatusRejected, StatusModified, StatusCancelled},
	StatusApproved:         {StatusCompleted, StatusArchived},
	StatusRejected:         {StatusArchived},
	StatusModified:         {StatusPending, StatusAnalyzed, StatusAwaitingApproval},
	StatusCompleted:        {StatusArchived},
	StatusCancelled:        {StatusArchived},
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to Status) bool {
	for _, candidate := range transitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// Terminal reports whether a status indicates the task is fully resolved and
// eligible for archiving.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusRejected, StatusCancelled, StatusArchived:
		return true
	}
	return false
}

// Priority orders tasks for dispatch.
type Priority string

const (
	PriorityCritical Priority = "CRITICAL"
	PriorityHigh     Priority = "HIGH"
	PriorityMedium   Priority = "MEDIUM"
	PriorityLow      Priority = "LOW"
)

// Order returns the dispatch rank of a priority; lower runs first. Unset or
// unrecognized priorities sort last.
func (p Priority) Order() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 3
	}
	return 4
}

// Escalate raises a priority by exactly one level. Escalation is monotonic -
// it never lowers and never wraps.
func (p Priority) Escalate() Priority {
	switch p {
	case PriorityLow:
		return PriorityMedium
	case PriorityMedium:
		return PriorityHigh
	case PriorityHigh, PriorityCritical:
		return PriorityCritical
	}
	return PriorityMedium
}

// Higher reports whether p outranks other.
func (p Priority) Higher(other Priority) bool {
	return p.Order() < other.Order()
}

// Task is a file-backed unit of work. The frontmatter fields mirror the
// on-disk YAML block; Body holds everything after it and is append-only.
type Task struct {
	ID               string     `yaml:"-"`
	Type             Type       `yaml:"type"`
	Status           Status     `yaml:"status"`
	Priority         Priority   `yaml:"priority,omitempty"`
	RequiresApproval bool       `yaml:"requires_approval,omitempty"`
	Source           string     `yaml:"source,omitempty"`
	CreatedAt        time.Time  `yaml:"created"`
	AnalyzedAt       *time.Time `yaml:"analyzed_at,omitempty"`
	RoutedAt         *time.Time `yaml:"routed_at,omitempty"`
	MovedAt          *time.Time `yaml:"moved_at,omitempty"`
	RoutedTo         string     `yaml:"routed_to,omitempty"`
	ReviewReason     string     `yaml:"review_reason,omitempty"`

	Body string `yaml:"-"`
}

// Validate checks the minimal producer contract: a type, a status and a
// created timestamp must be present.
func (t *Task) Validate() error {
	if t == nil {
		return fmt.Errorf("task is nil")
	}
	if t.ID == "" {
		return fmt.Errorf("task id is empty")
	}
	if t.Type == "" {
		return fmt.Errorf("task %v: type is empty", t.ID)
	}
	if t.Status == "" {
		return fmt.Errorf("task %v: status is empty", t.ID)
	}
	if t.CreatedAt.IsZero() {
		return fmt.Errorf("task %v: created timestamp is missing", t.ID)
	}
	return nil
}

// Transition moves the task to the given status after checking legality.
func (t *Task) Transition(to Status) error {
	if !CanTransition(t.Status, to) {
		return fmt.Errorf("task %v: illegal transition %v -> %v", t.ID, t.Status, to)
	}
	t.Status = to
	return nil
}

// AppendNote appends a timestamped note to the task body. The body is never
// overwritten; every processing stage only adds to it.
func (t *Task) AppendNote(at time.Time, heading, text string) {
	var b strings.Builder
	if t.Body != "" && !strings.HasSuffix(t.Body, "\n") {
		b.WriteString("\n")
	}
	b.WriteString("\n## ")
	b.WriteString(heading)
	b.WriteString(" - ")
	b.WriteString(at.Format(time.RFC3339))
	b.WriteString("\n")
	b.WriteString(text)
	if !strings.HasSuffix(text, "\n") {
		b.WriteString("\n")
	}
	t.Body += b.String()
}

// Escalated returns a copy of the priority raised to at least the floor.
func (t *Task) Escalated(floor Priority) Priority {
	if floor.Higher(t.Priority) {
		return floor
	}
	return t.Priority
}
