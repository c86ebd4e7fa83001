// Package fs implements the approval gate over the vault's approvals
// folder. Every request is a Markdown file with YAML frontmatter; the human
// operator resolves it by editing the status field (plus approved_by or
// rejected_reason). The gate never infers approval from any other signal.
package fs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"

	"github.com/vaultflow/vaultflow/internal/clock"
	"github.com/vaultflow/vaultflow/model/task/frontmatter"
	"github.com/vaultflow/vaultflow/service/approval"
	"github.com/vaultflow/vaultflow/service/dao"
	"github.com/vaultflow/vaultflow/service/dao/criteria"
)

const (
	requestExt    = ".md"
	requestPrefix = "APPROVAL_"
)

// Service is the filesystem-backed approval gate.
type Service struct {
	fs      afs.Service
	baseURL string
	agent   string
	mu      sync.RWMutex
}

// Ensure the store side of the gate satisfies the generic DAO contract.
var _ dao.Service[string, approval.Request] = (*Service)(nil)

// New creates an approval gate rooted at the approvals folder URL. agent
// names the requesting side in request files and reminder notes.
func New(ctx context.Context, fs afs.Service, baseURL, agent string) (*Service, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("approvals base URL cannot be empty")
	}
	if agent == "" {
		agent = "vaultflow"
	}
	exists, _ := fs.Exists(ctx, baseURL)
	if !exists {
		if err := fs.Create(ctx, baseURL, file.DefaultDirOsMode, true); err != nil {
			return nil, fmt.Errorf("failed to create approvals folder %s: %w", baseURL, err)
		}
	}
	return &Service{fs: fs, baseURL: baseURL, agent: agent}, nil
}

// RequestID derives the deterministic request identifier for a source task.
// One task maps to one request name, which is what makes the at-most-one
// pending request invariant hold across restarts.
func RequestID(taskID string) string {
	return requestPrefix + taskID
}

/* ---------------- DAO operations -------------------------------------- */

// Save persists a request atomically (temp upload + rename).
func (s *Service) Save(ctx context.Context, r *approval.Request) error {
	if r == nil {
		return dao.ErrNilEntity
	}
	if r.ID == "" {
		return dao.ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(ctx, r)
}

func (s *Service) save(ctx context.Context, r *approval.Request) error {
	data, err := frontmatter.Encode(r, r.Body)
	if err != nil {
		return fmt.Errorf("failed to encode approval request %s: %w", r.ID, err)
	}
	destURL := s.requestURL(r.ID)
	tmpURL := destURL + fmt.Sprintf(".tmp-%d", clock.Now().UnixNano())
	if err := s.fs.Upload(ctx, tmpURL, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write approval request %s: %w", tmpURL, err)
	}
	if err := s.fs.Move(ctx, tmpURL, destURL); err != nil {
		return fmt.Errorf("failed to finalize approval request %s: %w", destURL, err)
	}
	return nil
}

// Load reads one request file.
func (s *Service) Load(ctx context.Context, id string) (*approval.Request, error) {
	if id == "" {
		return nil, dao.ErrInvalidID
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.load(ctx, id)
}

func (s *Service) load(ctx context.Context, id string) (*approval.Request, error) {
	requestURL := s.requestURL(id)
	exists, err := s.fs.Exists(ctx, requestURL)
	if err != nil {
		return nil, fmt.Errorf("failed to check approval request %s: %w", requestURL, err)
	}
	if !exists {
		return nil, fmt.Errorf("approval request %s: %w", id, dao.ErrNotFound)
	}
	data, err := s.fs.DownloadWithURL(ctx, requestURL)
	if err != nil {
		return nil, fmt.Errorf("failed to read approval request %s: %w", requestURL, err)
	}
	r := &approval.Request{ID: id}
	body, err := frontmatter.Decode(data, r)
	if err != nil {
		return nil, fmt.Errorf("approval request %s: %w", id, err)
	}
	r.Body = body
	return r, nil
}

// Delete removes a request file. The engine never deletes requests (they
// are archived); this exists for the DAO contract and test cleanup.
func (s *Service) Delete(ctx context.Context, id string) error {
	if id == "" {
		return dao.ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	requestURL := s.requestURL(id)
	exists, err := s.fs.Exists(ctx, requestURL)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("approval request %s: %w", id, dao.ErrNotFound)
	}
	return s.fs.Delete(ctx, requestURL)
}

// List returns all request records, optionally filtered by Status.
func (s *Service) List(ctx context.Context, parameters ...*dao.Parameter) ([]*approval.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.list(ctx, parameters...)
}

func (s *Service) list(ctx context.Context, parameters ...*dao.Parameter) ([]*approval.Request, error) {
	objects, err := s.fs.List(ctx, s.baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to list approvals folder: %w", err)
	}
	names := make([]string, 0, len(objects))
	for _, object := range objects {
		if object.IsDir() || !strings.HasSuffix(object.Name(), requestExt) {
			continue
		}
		names = append(names, object.Name())
	}
	sort.Strings(names)

	var result []*approval.Request
	for _, name := range names {
		id := strings.TrimSuffix(name, requestExt)
		r, err := s.load(ctx, id)
		if err != nil {
			// Corrupt request files stay in place for human inspection.
			log.Printf("approval: skipping unreadable request %v: %v", name, err)
			continue
		}
		if !criteria.FilterByStatus(r.Status, parameters) {
			continue
		}
		result = append(result, r)
	}
	return result, nil
}

/* ---------------- Gate operations ------------------------------------- */

// RequestApproval creates the request file for a source task or updates the
// outstanding one. Re-triggering while a request is pending never creates a
// duplicate.
func (s *Service) RequestApproval(ctx context.Context, r *approval.Request) (*approval.Request, error) {
	if r == nil {
		return nil, dao.ErrNilEntity
	}
	if r.TaskID == "" {
		return nil, fmt.Errorf("approval request without source task: %w", dao.ErrInvalidID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	id := RequestID(r.TaskID)
	existing, err := s.load(ctx, id)
	if err != nil && !errors.Is(err, dao.ErrNotFound) {
		return nil, err
	}
	now := clock.Now()
	if existing != nil {
		if !existing.Pending() {
			// Already resolved but not yet archived; the engine applies the
			// outcome first, a re-trigger waits for the next cycle.
			return existing, nil
		}
		existing.Action = r.Action
		if r.RiskLevel != "" {
			existing.RiskLevel = r.RiskLevel
		}
		existing.Revision++
		existing.Body += fmt.Sprintf("\n- %s re-triggered by %s; request updated in place\n",
			now.Format(time.RFC3339), s.agent)
		if err := s.save(ctx, existing); err != nil {
			return nil, err
		}
		return existing, nil
	}

	created := &approval.Request{
		ID:          id,
		TaskID:      r.TaskID,
		Type:        "approval_request",
		Status:      string(approval.StatusAwaiting),
		Action:      r.Action,
		RiskLevel:   r.RiskLevel,
		Reversible:  r.Reversible,
		RequestedBy: s.agent,
		CreatedAt:   now,
		Revision:    1,
		Body:        requestBody(r),
	}
	if created.RiskLevel == "" {
		created.RiskLevel = approval.RiskHigh
	}
	if err := s.save(ctx, created); err != nil {
		return nil, err
	}
	return created, nil
}

// ListPending returns every request still blocking its source task.
func (s *Service) ListPending(ctx context.Context) ([]*approval.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all, err := s.list(ctx)
	if err != nil {
		return nil, err
	}
	pending := make([]*approval.Request, 0, len(all))
	for _, r := range all {
		if r.Pending() {
			pending = append(pending, r)
		}
	}
	return pending, nil
}

// Evaluate reads human edits and returns honored resolutions plus refused
// anomalies. An approved status with no approver identity, a rejection with
// no reason, and any status value outside the state machine are all treated
// as invalid: the request is reverted to awaiting_approval with an anomaly
// note, and the gate stays closed.
func (s *Service) Evaluate(ctx context.Context) ([]*approval.Outcome, []*approval.Anomaly, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.list(ctx)
	if err != nil {
		return nil, nil, err
	}
	now := clock.Now()
	var outcomes []*approval.Outcome
	var anomalies []*approval.Anomaly
	for _, r := range all {
		if r.ResolvedAt != nil {
			// Outcome already applied; waiting for the archiver.
			continue
		}
		status, ok := approval.ParseStatus(r.Status)
		if !ok {
			anomalies = append(anomalies, s.refuse(ctx, r, now,
				fmt.Sprintf("malformed status value %q", r.Status)))
			continue
		}
		switch status {
		case approval.StatusAwaiting:
			continue
		case approval.StatusApproved:
			if strings.TrimSpace(r.ApprovedBy) == "" {
				anomalies = append(anomalies, s.refuse(ctx, r, now,
					"approved without approver identity"))
				continue
			}
			outcomes = append(outcomes, &approval.Outcome{Request: r, Status: approval.StatusApproved})
		case approval.StatusRejected:
			if strings.TrimSpace(r.RejectedReason) == "" {
				anomalies = append(anomalies, s.refuse(ctx, r, now,
					"rejected without reason"))
				continue
			}
			outcomes = append(outcomes, &approval.Outcome{Request: r, Status: approval.StatusRejected})
		case approval.StatusModified:
			// Human amended the request; acknowledge and re-validate.
			r.Status = string(approval.StatusAwaiting)
			r.Revision++
			r.Body += fmt.Sprintf("\n- %s modification acknowledged, request re-validated\n",
				now.Format(time.RFC3339))
			if err := s.saveChecked(ctx, r); err != nil {
				log.Printf("approval: deferring re-validation of %v: %v", r.ID, err)
				continue
			}
			outcomes = append(outcomes, &approval.Outcome{Request: r, Status: approval.StatusModified})
		case approval.StatusExpired, approval.StatusCancelled:
			// Timeout sweep or human-initiated cancellation; honor it
			// as-is. An expired request re-surfaces here until the engine
			// stamps resolved_at, so a crash mid-application loses nothing.
			outcome := &approval.Outcome{Request: r, Status: approval.StatusCancelled}
			if status == approval.StatusExpired {
				outcome.Elapsed = r.Age(now)
			}
			outcomes = append(outcomes, outcome)
		}
	}
	return outcomes, anomalies, nil
}

// Sweep applies the timeout policy and returns expiry outcomes.
func (s *Service) Sweep(ctx context.Context) ([]*approval.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.list(ctx, dao.NewParameter("Status", string(approval.StatusAwaiting)))
	if err != nil {
		return nil, err
	}
	now := clock.Now()
	var outcomes []*approval.Outcome
	for _, r := range all {
		elapsed := r.Age(now)
		if elapsed >= approval.ExpireAfter {
			// Only the expired mark is persisted here; resolved_at is
			// stamped by MarkApplied after the engine cancels the source
			// task, so a crash in between replays through Evaluate.
			r.Status = string(approval.StatusExpired)
			r.Revision++
			r.Body += fmt.Sprintf("\n- %s expired after %s with no decision; request cancelled\n",
				now.Format(time.RFC3339), elapsed.Round(time.Minute))
			if err := s.saveChecked(ctx, r); err != nil {
				log.Printf("approval: deferring expiry of %v: %v", r.ID, err)
				continue
			}
			log.Printf("approval: request %v expired after %v, cancelled", r.ID, elapsed.Round(time.Minute))
			outcomes = append(outcomes, &approval.Outcome{
				Request: r,
				Status:  approval.StatusCancelled,
				Elapsed: elapsed,
			})
			continue
		}
		if elapsed >= approval.ReminderAfter && r.RemindedAt == nil {
			r.RemindedAt = &now
			r.Revision++
			r.Body += fmt.Sprintf("\n- %s reminder: pending for %s, expires after %s\n",
				now.Format(time.RFC3339), elapsed.Round(time.Minute), approval.ExpireAfter)
			if err := s.saveChecked(ctx, r); err != nil {
				log.Printf("approval: deferring reminder for %v: %v", r.ID, err)
			}
		}
	}
	return outcomes, nil
}

// Decide writes a resolution the way a human editor would.
func (s *Service) Decide(ctx context.Context, id string, approved bool, actor, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if !r.Pending() {
		return fmt.Errorf("approval request %s already resolved", id)
	}
	if approved {
		r.Status = string(approval.StatusApproved)
		r.ApprovedBy = actor
	} else {
		r.Status = string(approval.StatusRejected)
		r.RejectedReason = reason
	}
	r.Revision++
	return s.saveChecked(ctx, r)
}

// MarkApplied stamps the resolution time. Until this succeeds, Evaluate
// keeps returning the outcome, so a crash mid-application loses nothing.
func (s *Service) MarkApplied(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if r.ResolvedAt != nil {
		return nil
	}
	now := clock.Now()
	r.ResolvedAt = &now
	r.Revision++
	return s.saveChecked(ctx, r)
}

// ListResolved returns requests whose outcome has been applied and which
// only await archiving.
func (s *Service) ListResolved(ctx context.Context) ([]*approval.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all, err := s.list(ctx)
	if err != nil {
		return nil, err
	}
	resolved := make([]*approval.Request, 0, len(all))
	for _, r := range all {
		if r.ResolvedAt != nil {
			resolved = append(resolved, r)
		}
	}
	return resolved, nil
}

/* ---------------- internals ------------------------------------------- */

// refuse reverts an invalid edit to awaiting_approval and records why.
func (s *Service) refuse(ctx context.Context, r *approval.Request, now time.Time, reason string) *approval.Anomaly {
	log.Printf("approval: anomaly on %v: %v", r.ID, reason)
	r.Status = string(approval.StatusAwaiting)
	r.ApprovedBy = ""
	r.Revision++
	r.Body += fmt.Sprintf("\n- %s edit refused: %s; request stays pending\n",
		now.Format(time.RFC3339), reason)
	if err := s.saveChecked(ctx, r); err != nil {
		log.Printf("approval: deferring anomaly note on %v: %v", r.ID, err)
	}
	return &approval.Anomaly{Request: r, Reason: reason}
}

// saveChecked persists r only if the on-disk revision still matches the one
// the gate evaluated. A concurrent human save wins; the gate retries next
// cycle.
func (s *Service) saveChecked(ctx context.Context, r *approval.Request) error {
	onDisk, err := s.load(ctx, r.ID)
	if err != nil && !errors.Is(err, dao.ErrNotFound) {
		return err
	}
	if onDisk != nil && onDisk.Revision != r.Revision-1 {
		return fmt.Errorf("request %s changed on disk: %w", r.ID, dao.ErrStaleRevision)
	}
	return s.save(ctx, r)
}

func (s *Service) requestURL(id string) string {
	return url.Join(s.baseURL, id+requestExt)
}

func requestBody(r *approval.Request) string {
	var b strings.Builder
	b.WriteString("# Approval Required\n\n")
	b.WriteString(fmt.Sprintf("**Action:** %s\n\n", r.Action))
	b.WriteString(fmt.Sprintf("**Source task:** %s\n\n", r.TaskID))
	b.WriteString("To resolve, edit the frontmatter of this file:\n\n")
	b.WriteString("- set `status: approved` and fill `approved_by` with your name, or\n")
	b.WriteString("- set `status: rejected` and fill `rejected_reason`.\n")
	return b.String()
}
