// Package dashboard maintains the derived Dashboard.md artifact: task
// counts by folder and status, a health label and the most recent activity
// entries. The dashboard is recomputed from the vault each cycle and is
// never a source of truth; consumers must tolerate it being one poll
// interval stale.
package dashboard

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/vaultflow/vaultflow/internal/clock"
	"github.com/vaultflow/vaultflow/model/task"
	"github.com/vaultflow/vaultflow/service/event"
	storefs "github.com/vaultflow/vaultflow/service/store/fs"
)

// MaxActivity is how many recent activity entries the dashboard keeps.
const MaxActivity = 10

// Health labels the overall vault state.
type Health string

const (
	HealthHealthy   Health = "healthy"
	HealthAttention Health = "needs attention"
	HealthBlocked   Health = "blocked"
)

// Snapshot is the derived dashboard state for one cycle.
type Snapshot struct {
	Pending        int
	Archived       int
	AwaitingHuman  int
	ReviewFlagged  int
	Skipped        int
	ByStatus       map[task.Status]int
	Health         Health
	RecentActivity []event.Activity
}

// Service rewrites the dashboard artifact.
type Service struct {
	vault    *storefs.Vault
	recorder *event.Recorder
	agent    string
	recent   []event.Activity
}

// New creates the dashboard service.
func New(vault *storefs.Vault, recorder *event.Recorder, agent string) *Service {
	if agent == "" {
		agent = "vaultflow"
	}
	return &Service{vault: vault, recorder: recorder, agent: agent}
}

// Refresh recomputes the snapshot from the vault and atomically rewrites
// Dashboard.md.
func (s *Service) Refresh(ctx context.Context) (*Snapshot, error) {
	snapshot, err := s.compute(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.vault.WriteArtifact(ctx, storefs.DashboardFile, []byte(s.render(snapshot))); err != nil {
		return nil, fmt.Errorf("dashboard: failed to write artifact: %w", err)
	}
	return snapshot, nil
}

func (s *Service) compute(ctx context.Context) (*Snapshot, error) {
	snapshot := &Snapshot{ByStatus: map[task.Status]int{}}

	pending, err := s.vault.List(ctx, storefs.FolderPending)
	if err != nil {
		return nil, fmt.Errorf("dashboard: failed to scan pending store: %w", err)
	}
	snapshot.Pending = len(pending.Tasks)
	snapshot.Skipped = len(pending.Skipped)
	for _, t := range pending.Tasks {
		snapshot.ByStatus[t.Status]++
		if t.Status == task.StatusAwaitingApproval {
			snapshot.AwaitingHuman++
		}
		if t.ReviewReason != "" || t.Type == task.TypeUnknown {
			snapshot.ReviewFlagged++
		}
	}

	archived, err := s.vault.List(ctx, storefs.FolderArchive)
	if err != nil {
		return nil, fmt.Errorf("dashboard: failed to scan archive: %w", err)
	}
	snapshot.Archived = len(archived.Tasks) + len(archived.Skipped)

	if s.recorder != nil {
		s.recent = append(s.recent, s.recorder.Drain(ctx)...)
		if overflow := len(s.recent) - MaxActivity; overflow > 0 {
			s.recent = s.recent[overflow:]
		}
	}
	snapshot.RecentActivity = s.recent
	snapshot.Health = healthOf(snapshot)
	return snapshot, nil
}

func healthOf(snapshot *Snapshot) Health {
	switch {
	case snapshot.Skipped > 0 || snapshot.AwaitingHuman > 3:
		return HealthBlocked
	case snapshot.AwaitingHuman > 0 || snapshot.ReviewFlagged > 0:
		return HealthAttention
	}
	return HealthHealthy
}

func (s *Service) render(snapshot *Snapshot) string {
	var b strings.Builder
	b.WriteString("# Dashboard\n\n")
	b.WriteString(fmt.Sprintf("Updated: %s\n\n", clock.Now().Format("2006-01-02 15:04:05")))
	b.WriteString(fmt.Sprintf("**Health:** %s\n\n", snapshot.Health))

	b.WriteString("## Counts\n\n")
	b.WriteString(fmt.Sprintf("- Pending: %d\n", snapshot.Pending))
	b.WriteString(fmt.Sprintf("- Archived: %d\n", snapshot.Archived))
	b.WriteString(fmt.Sprintf("- Awaiting human: %d\n", snapshot.AwaitingHuman))
	b.WriteString(fmt.Sprintf("- Review flagged: %d\n", snapshot.ReviewFlagged))
	b.WriteString(fmt.Sprintf("- Unreadable (left in place): %d\n", snapshot.Skipped))

	if len(snapshot.ByStatus) > 0 {
		b.WriteString("\n## By status\n\n")
		statuses := make([]string, 0, len(snapshot.ByStatus))
		for status := range snapshot.ByStatus {
			statuses = append(statuses, string(status))
		}
		sort.Strings(statuses)
		for _, status := range statuses {
			b.WriteString(fmt.Sprintf("- %s: %d\n", status, snapshot.ByStatus[task.Status(status)]))
		}
	}

	b.WriteString("\n## Recent activity\n\n")
	if len(snapshot.RecentActivity) == 0 {
		b.WriteString("- none\n")
	}
	for i := len(snapshot.RecentActivity) - 1; i >= 0; i-- {
		entry := snapshot.RecentActivity[i]
		b.WriteString("- " + entry.String() + "\n")
	}
	b.WriteString(fmt.Sprintf("\nAgent: %s\n", s.agent))
	return b.String()
}
