// Package watcher runs the engine's poll loop. One logical actor processes
// one cycle at a time; every piece of progress is persisted to the vault,
// so the process can fully restart between cycles without losing work. A
// cycle is a pure function of on-disk state plus the clock.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/vaultflow/vaultflow/internal/clock"
	"github.com/vaultflow/vaultflow/model/task"
	"github.com/vaultflow/vaultflow/service/approval"
	"github.com/vaultflow/vaultflow/service/archiver"
	"github.com/vaultflow/vaultflow/service/classifier"
	"github.com/vaultflow/vaultflow/service/dashboard"
	"github.com/vaultflow/vaultflow/service/event"
	"github.com/vaultflow/vaultflow/service/router"
	storefs "github.com/vaultflow/vaultflow/service/store/fs"
	"github.com/vaultflow/vaultflow/tracing"
)

// Config represents watcher configuration.
type Config struct {
	// PollInterval is how often the pending store is scanned.
	PollInterval time.Duration `json:"pollInterval" yaml:"pollInterval"`
}

// DefaultConfig returns the default watcher configuration.
func DefaultConfig() Config {
	return Config{PollInterval: 5 * time.Second}
}

// CycleReport summarizes one poll cycle for logs and tests.
type CycleReport struct {
	Discovered int
	Skipped    int
	Classified int
	Gated      int
	Dispatched string
	Remaining  int
	Review     []string
	Resolved   int
	Expired    int
	Anomalies  int
	Archived   []string
}

// Service drives the task lifecycle.
type Service struct {
	config     Config
	vault      *storefs.Vault
	classifier *classifier.Service
	router     *router.Service
	gate       approval.Service
	archiver   *archiver.Service
	dashboard  *dashboard.Service
	recorder   *event.Recorder
	agent      string
	shutdownCh chan struct{}
}

// New creates the watcher engine.
func New(config Config, vault *storefs.Vault, cls *classifier.Service, rtr *router.Service,
	gate approval.Service, arch *archiver.Service, dash *dashboard.Service,
	recorder *event.Recorder, agent string) (*Service, error) {
	if vault == nil {
		return nil, fmt.Errorf("vault store is required")
	}
	if cls == nil || rtr == nil || gate == nil || arch == nil {
		return nil, fmt.Errorf("classifier, router, gate and archiver are required")
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultConfig().PollInterval
	}
	if agent == "" {
		agent = "vaultflow"
	}
	return &Service{
		config:     config,
		vault:      vault,
		classifier: cls,
		router:     rtr,
		gate:       gate,
		archiver:   arch,
		dashboard:  dash,
		recorder:   recorder,
		agent:      agent,
		shutdownCh: make(chan struct{}),
	}, nil
}

// Start begins the poll loop and blocks until ctx is done or Shutdown is
// called. A failed cycle is logged and retried on the next tick, never
// fatal.
func (s *Service) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.shutdownCh:
			return nil
		case <-ticker.C:
			if _, err := s.RunCycle(ctx); err != nil {
				log.Printf("watcher: cycle failed: %v", err)
			}
		}
	}
}

// Shutdown stops the poll loop.
func (s *Service) Shutdown() {
	close(s.shutdownCh)
}

// RunCycle executes one full pass: scan, resolve approvals, sweep
// timeouts, classify, dispatch at most one task, archive resolved files
// and refresh the dashboard.
func (s *Service) RunCycle(ctx context.Context) (report *CycleReport, err error) {
	ctx, span := tracing.StartSpan(ctx, "watcher.cycle")
	defer func() { tracing.EndSpan(span, err) }()

	report = &CycleReport{}

	listing, err := s.vault.List(ctx, storefs.FolderPending)
	if err != nil {
		return report, fmt.Errorf("failed to scan pending store: %w", err)
	}
	report.Discovered = len(listing.Tasks)
	report.Skipped = len(listing.Skipped)
	for _, skipped := range listing.Skipped {
		// Unreadable files stay in place for human inspection.
		log.Printf("watcher: skipping unreadable file %v: %v", skipped.Name, skipped.Err)
		s.record(ctx, event.KindError, "", "unreadable file %s left in place: %v", skipped.Name, skipped.Err)
	}

	if err := s.applyApprovals(ctx, report); err != nil {
		log.Printf("watcher: approval evaluation failed: %v", err)
	}

	if err := s.classifyPending(ctx, listing.Tasks, report); err != nil {
		log.Printf("watcher: classification failed: %v", err)
	}

	if err := s.dispatch(ctx, report); err != nil {
		log.Printf("watcher: dispatch failed: %v", err)
	}

	if err := s.archiveResolved(ctx, report); err != nil {
		log.Printf("watcher: archiving failed: %v", err)
	}

	if s.dashboard != nil {
		if _, err := s.dashboard.Refresh(ctx); err != nil {
			log.Printf("watcher: dashboard refresh failed: %v", err)
		}
	}
	return report, nil
}

/* ---------------- approvals ------------------------------------------- */

func (s *Service) applyApprovals(ctx context.Context, report *CycleReport) (err error) {
	ctx, span := tracing.StartSpan(ctx, "watcher.approvals")
	defer func() { tracing.EndSpan(span, err) }()

	outcomes, anomalies, err := s.gate.Evaluate(ctx)
	if err != nil {
		return err
	}
	report.Anomalies = len(anomalies)
	for _, anomaly := range anomalies {
		s.record(ctx, event.KindAnomaly, anomaly.Request.TaskID,
			"approval edit refused: %s", anomaly.Reason)
	}

	expiries, err := s.gate.Sweep(ctx)
	if err != nil {
		return err
	}
	report.Expired = len(expiries)
	outcomes = append(outcomes, expiries...)

	for _, outcome := range outcomes {
		if applyErr := s.applyOutcome(ctx, outcome); applyErr != nil {
			log.Printf("watcher: failed to apply approval outcome for %v: %v",
				outcome.Request.TaskID, applyErr)
			continue
		}
		if outcome.Status != approval.StatusModified {
			if markErr := s.gate.MarkApplied(ctx, outcome.Request.ID); markErr != nil {
				log.Printf("watcher: failed to mark approval outcome applied for %v: %v",
					outcome.Request.ID, markErr)
				continue
			}
		}
		report.Resolved++
	}
	return nil
}

// applyOutcome appends the resolution to the source task and advances it.
func (s *Service) applyOutcome(ctx context.Context, outcome *approval.Outcome) error {
	request := outcome.Request
	t, err := s.vault.Load(ctx, storefs.FolderPending, request.TaskID)
	if err != nil {
		// The source task is gone (already archived or human-moved); the
		// request file still gets archived below.
		log.Printf("watcher: approval outcome for missing task %v: %v", request.TaskID, err)
		t = nil
	}
	now := clock.Now()

	// A task already past awaiting_approval had this outcome applied on an
	// earlier cycle that crashed before stamping; skip the mutation, stamp
	// only.
	stillGated := t != nil && t.Status == task.StatusAwaitingApproval

	switch outcome.Status {
	case approval.StatusApproved:
		if stillGated {
			t.AppendNote(now, "Approval", fmt.Sprintf("Approved by %s (request `%s`).", request.ApprovedBy, request.ID))
			if err := t.Transition(task.StatusApproved); err != nil {
				return err
			}
			if err := s.execute(ctx, t); err != nil {
				return err
			}
			s.record(ctx, event.KindApproved, request.TaskID, "approved by %s", request.ApprovedBy)
		}

	case approval.StatusRejected:
		if stillGated {
			t.AppendNote(now, "Approval", fmt.Sprintf("Rejected: %s (request `%s`). No action was taken.", request.RejectedReason, request.ID))
			if err := t.Transition(task.StatusRejected); err != nil {
				return err
			}
			if err := s.vault.Save(ctx, storefs.FolderPending, t); err != nil {
				return err
			}
			s.record(ctx, event.KindRejected, request.TaskID, "rejected: %s", request.RejectedReason)
		}

	case approval.StatusCancelled:
		if stillGated {
			if outcome.Elapsed > 0 {
				t.AppendNote(now, "Approval", fmt.Sprintf("Request `%s` expired after %s with no decision; task cancelled.", request.ID, outcome.Elapsed.Round(time.Minute)))
			} else {
				t.AppendNote(now, "Approval", fmt.Sprintf("Request `%s` was cancelled; task cancelled.", request.ID))
			}
			if err := t.Transition(task.StatusCancelled); err != nil {
				return err
			}
			if err := s.vault.Save(ctx, storefs.FolderPending, t); err != nil {
				return err
			}
			s.record(ctx, event.KindExpired, request.TaskID, "approval resolved as cancelled (elapsed %s)", outcome.Elapsed.Round(time.Minute))
		}

	case approval.StatusModified:
		if t != nil {
			t.AppendNote(now, "Approval", fmt.Sprintf("Request `%s` was amended and is being re-validated.", request.ID))
			if err := s.vault.Save(ctx, storefs.FolderPending, t); err != nil {
				return err
			}
		}
		// The request stays open; nothing to archive.
		return nil
	}
	return nil
}

/* ---------------- classification -------------------------------------- */

func (s *Service) classifyPending(ctx context.Context, tasks []*task.Task, report *CycleReport) (err error) {
	ctx, span := tracing.StartSpan(ctx, "watcher.classify")
	defer func() { tracing.EndSpan(span, err) }()

	for _, t := range tasks {
		if t.Status != task.StatusPending && t.Status != task.StatusModified {
			continue
		}
		if t.ReviewReason != "" {
			// Already review-flagged; waits until the human clears the
			// review_reason field.
			continue
		}
		result := s.classifier.Classify(t)
		now := clock.Now()
		t.AnalyzedAt = &now
		t.Priority = result.Priority

		if result.NeedsReview {
			// Left pending-equivalent: review-flagged tasks are never
			// auto-routed and wait for a human.
			if t.ReviewReason != result.Reason {
				t.ReviewReason = result.Reason
				s.record(ctx, event.KindReview, t.ID, "needs human review: %s", result.Reason)
			}
			if err := s.vault.Save(ctx, storefs.FolderPending, t); err != nil {
				return err
			}
			continue
		}

		t.Type = result.Type
		if err := t.Transition(task.StatusAnalyzed); err != nil {
			return err
		}
		report.Classified++
		s.record(ctx, event.KindClassified, t.ID, "type=%s priority=%s sensitive=%v",
			t.Type, t.Priority, result.Sensitive)

		if result.Sensitive {
			if err := s.openGate(ctx, t, result.Reason); err != nil {
				return err
			}
			report.Gated++
			continue
		}
		if err := s.vault.Save(ctx, storefs.FolderPending, t); err != nil {
			return err
		}
	}
	return nil
}

// openGate creates (or updates) the durable approval request and halts the
// task until a human resolves it.
func (s *Service) openGate(ctx context.Context, t *task.Task, reason string) error {
	request, err := s.gate.RequestApproval(ctx, &approval.Request{
		TaskID:     t.ID,
		Action:     fmt.Sprintf("%s: %s", t.Type, reason),
		RiskLevel:  approval.RiskHigh,
		Reversible: false,
	})
	if err != nil {
		return fmt.Errorf("failed to open approval gate for %s: %w", t.ID, err)
	}
	t.RequiresApproval = true
	t.AppendNote(clock.Now(), "Approval requested",
		fmt.Sprintf("Sensitive action halted pending request `%s`.", request.ID))
	if err := t.Transition(task.StatusAwaitingApproval); err != nil {
		return err
	}
	if err := s.vault.Save(ctx, storefs.FolderPending, t); err != nil {
		return err
	}
	s.record(ctx, event.KindGated, t.ID, "awaiting approval (request `%s`)", request.ID)
	return nil
}

/* ---------------- dispatch -------------------------------------------- */

// dispatch processes at most one task fully, so newly arrived CRITICAL
// tasks can pre-empt on the next cycle.
func (s *Service) dispatch(ctx context.Context, report *CycleReport) (err error) {
	ctx, span := tracing.StartSpan(ctx, "watcher.dispatch")
	defer func() { tracing.EndSpan(span, err) }()

	listing, err := s.vault.List(ctx, storefs.FolderPending)
	if err != nil {
		return err
	}
	// Routed tasks are included so a crash between routing and handling is
	// retried; handlers are idempotent against restart.
	var candidates []*task.Task
	for _, t := range listing.Tasks {
		switch t.Status {
		case task.StatusAnalyzed, task.StatusRouted:
			candidates = append(candidates, t)
		}
	}

	queue, review := s.router.Split(candidates)
	for _, r := range review {
		report.Review = append(report.Review, r.Task.ID)
		if r.Task.ReviewReason != r.Reason {
			r.Task.ReviewReason = r.Reason
			if err := s.vault.Save(ctx, storefs.FolderPending, r.Task); err != nil {
				return err
			}
			s.record(ctx, event.KindReview, r.Task.ID, "needs human review: %s", r.Reason)
		}
	}
	if len(queue) == 0 {
		return nil
	}

	head := queue[0]
	target, err := s.router.Target(head)
	if err != nil {
		return err
	}
	now := clock.Now()
	if head.Status != task.StatusRouted {
		if err := head.Transition(task.StatusRouted); err != nil {
			return err
		}
	}
	head.RoutedAt = &now
	head.RoutedTo = target.Name()
	if err := s.vault.Save(ctx, storefs.FolderPending, head); err != nil {
		return err
	}
	s.record(ctx, event.KindRouted, head.ID, "dispatched to %s", target.Name())

	if err := s.execute(ctx, head); err != nil {
		return err
	}
	report.Dispatched = head.ID
	report.Remaining = len(queue) - 1

	if report.Remaining >= router.SessionPlanThreshold {
		plan := router.SessionPlan(queue[1:], clock.Now())
		name := fmt.Sprintf("%s/Session_Plan.md", storefs.FolderPlans)
		if err := s.vault.WriteArtifact(ctx, name, []byte(plan)); err != nil {
			log.Printf("watcher: failed to write session plan: %v", err)
		}
	}
	return nil
}

// execute runs the designated handler and applies its result.
func (s *Service) execute(ctx context.Context, t *task.Task) (err error) {
	target, err := s.router.Target(t)
	if err != nil {
		return err
	}
	ctx, span := tracing.StartSpan(ctx, "handler."+target.Name())
	defer func() { tracing.EndSpan(span, err) }()

	result, err := target.Handle(ctx, t)
	if err != nil {
		return fmt.Errorf("handler %s failed on %s: %w", target.Name(), t.ID, err)
	}
	now := clock.Now()

	if result.RequiresApproval {
		return s.openGate(ctx, t, result.Action)
	}
	if result.ReviewReason != "" {
		t.ReviewReason = result.ReviewReason
		s.record(ctx, event.KindReview, t.ID, "needs human review: %s", result.ReviewReason)
		return s.vault.Save(ctx, storefs.FolderPending, t)
	}
	if result.Note != "" {
		heading := result.Heading
		if heading == "" {
			heading = target.Name()
		}
		t.AppendNote(now, heading, result.Note)
	}
	if result.Status != "" && result.Status != t.Status {
		if err := t.Transition(result.Status); err != nil {
			return err
		}
	}
	return s.vault.Save(ctx, storefs.FolderPending, t)
}

/* ---------------- archiving ------------------------------------------- */

func (s *Service) archiveResolved(ctx context.Context, report *CycleReport) (err error) {
	ctx, span := tracing.StartSpan(ctx, "watcher.archive")
	defer func() { tracing.EndSpan(span, err) }()

	listing, err := s.vault.List(ctx, storefs.FolderPending)
	if err != nil {
		return err
	}
	for _, t := range listing.Tasks {
		if !t.Status.Terminal() {
			continue
		}
		now := clock.Now()
		t.MovedAt = &now
		if err := s.vault.Save(ctx, storefs.FolderPending, t); err != nil {
			return err
		}
		result, archiveErr := s.archiver.Archive(ctx, &archiver.Request{
			Folder:      storefs.FolderPending,
			ID:          t.ID,
			FinalStatus: string(t.Status),
		})
		if archiveErr != nil {
			var precondition *archiver.PreconditionError
			if errors.As(archiveErr, &precondition) {
				log.Printf("watcher: archive aborted, human confirmation required: %v", precondition)
				s.record(ctx, event.KindError, t.ID, "archive aborted: %s", precondition.Reason)
				continue
			}
			return archiveErr
		}
		report.Archived = append(report.Archived, result.DestID)
		s.record(ctx, event.KindArchived, t.ID, "archived as `%s` (%s)", result.DestID, t.Status)
	}

	return s.archiveResolvedRequests(ctx, report)
}

// archiveResolvedRequests moves fully resolved approval request files out
// of the approvals folder, which is what re-arms the at-most-one gate for
// their source tasks.
func (s *Service) archiveResolvedRequests(ctx context.Context, report *CycleReport) error {
	resolved, err := s.gate.ListResolved(ctx)
	if err != nil {
		return err
	}
	for _, request := range resolved {
		result, archiveErr := s.archiver.Archive(ctx, &archiver.Request{
			Folder:      storefs.FolderApprovals,
			ID:          request.ID,
			FinalStatus: request.Status,
		})
		if archiveErr != nil {
			log.Printf("watcher: failed to archive approval request %v: %v", request.ID, archiveErr)
			continue
		}
		report.Archived = append(report.Archived, result.DestID)
	}
	return nil
}

func (s *Service) record(ctx context.Context, kind event.Kind, taskID, format string, args ...interface{}) {
	if s.recorder == nil {
		return
	}
	s.recorder.Record(ctx, kind, taskID, format, args...)
}
