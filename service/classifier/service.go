// Package classifier assigns type, priority and a sensitivity flag to
// incoming tasks using deterministic keyword rules. Anything it cannot
// recognize is marked unknown and routed to human review, never guessed.
package classifier

import (
	"strings"

	"github.com/vaultflow/vaultflow/model/task"
)

// Result is the classifier verdict for one task.
type Result struct {
	Type      task.Type
	Priority  task.Priority
	Sensitive bool
	// NeedsReview is set when the task cannot be auto-routed and must be
	// surfaced on the human-review list.
	NeedsReview bool
	// Reason explains a review flag or a sensitivity escalation.
	Reason string
}

// Config holds the keyword rule sets. The defaults mirror the vault
// handbook: financial vocabulary forces CRITICAL + approval, urgency
// vocabulary escalates by one level.
type Config struct {
	FinancialTerms []string `json:"financialTerms" yaml:"financialTerms"`
	UrgencyTerms   []string `json:"urgencyTerms" yaml:"urgencyTerms"`
	SensitiveTypes []string `json:"sensitiveTypes" yaml:"sensitiveTypes"`
}

// DefaultConfig returns the default classification rules.
func DefaultConfig() Config {
	return Config{
		FinancialTerms: []string{
			"invoice", "payment", "wire transfer", "refund", "bank",
			"iban", "account number", "amount due", "pay now",
		},
		UrgencyTerms: []string{
			"urgent", "asap", "immediately", "today", "right away", "overdue",
		},
		SensitiveTypes: []string{string(task.TypeInvoice)},
	}
}

// Service classifies tasks.
type Service struct {
	config Config
}

// New creates a classifier with the given rules; zero-value fields inherit
// the defaults.
func New(options ...Option) *Service {
	s := &Service{config: DefaultConfig()}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Classify inspects a task's metadata and body and returns its verdict.
// Priority is only ever raised, never lowered: the result priority is the
// maximum of the task's declared priority and every triggered rule.
func (s *Service) Classify(t *task.Task) Result {
	result := Result{
		Type:     task.ParseType(string(t.Type)),
		Priority: t.Priority,
	}
	if result.Priority == "" {
		result.Priority = task.PriorityMedium
	}

	if result.Type == task.TypeUnknown {
		result.NeedsReview = true
		if strings.TrimSpace(string(t.Type)) == "" {
			result.Reason = "missing type field"
		} else {
			result.Reason = "unrecognized type: " + string(t.Type)
		}
		return result
	}

	text := strings.ToLower(string(t.Type) + "\n" + t.Source + "\n" + t.Body)

	if s.isSensitiveType(result.Type) || containsAny(text, s.config.FinancialTerms) {
		result.Sensitive = true
		result.Reason = "financial action requires approval"
		result.Priority = t.Escalated(task.PriorityCritical)
	}

	if containsAny(text, s.config.UrgencyTerms) {
		result.Priority = result.Priority.Escalate()
	}
	return result
}

func (s *Service) isSensitiveType(t task.Type) bool {
	for _, candidate := range s.config.SensitiveTypes {
		if string(t) == candidate {
			return true
		}
	}
	return false
}

func containsAny(text string, terms []string) bool {
	for _, term := range terms {
		if term != "" && strings.Contains(text, term) {
			return true
		}
	}
	return false
}

// Option customizes the classifier.
type Option func(*Service)

// WithConfig replaces the default rule sets.
func WithConfig(config Config) Option {
	return func(s *Service) {
		if len(config.FinancialTerms) > 0 {
			s.config.FinancialTerms = config.FinancialTerms
		}
		if len(config.UrgencyTerms) > 0 {
			s.config.UrgencyTerms = config.UrgencyTerms
		}
		if len(config.SensitiveTypes) > 0 {
			s.config.SensitiveTypes = config.SensitiveTypes
		}
	}
}
