// Package scheduler drops calendar-driven tasks into the pending store. The
// default schedule creates one briefing task every morning so the engine
// plans the day; the poll loop then handles it like any other task.
package scheduler

import (
	"context"
	"fmt"
	"log"

	"github.com/robfig/cron/v3"

	"github.com/vaultflow/vaultflow/internal/clock"
	"github.com/vaultflow/vaultflow/model/task"
	storefs "github.com/vaultflow/vaultflow/service/store/fs"
)

// Config represents scheduler configuration.
type Config struct {
	// BriefingSpec is the cron expression for the daily briefing task.
	BriefingSpec string `json:"briefingSpec" yaml:"briefingSpec"`
}

// DefaultConfig returns the default schedule: 07:00 every day.
func DefaultConfig() Config {
	return Config{BriefingSpec: "0 7 * * *"}
}

// Service produces scheduled tasks.
type Service struct {
	config Config
	vault  *storefs.Vault
	agent  string
	cron   *cron.Cron
}

// New creates the scheduler.
func New(config Config, vault *storefs.Vault, agent string) (*Service, error) {
	if config.BriefingSpec == "" {
		config.BriefingSpec = DefaultConfig().BriefingSpec
	}
	if agent == "" {
		agent = "vaultflow"
	}
	s := &Service{config: config, vault: vault, agent: agent, cron: cron.New()}
	if _, err := s.cron.AddFunc(config.BriefingSpec, func() {
		if err := s.DropBriefing(context.Background()); err != nil {
			log.Printf("scheduler: briefing drop failed: %v", err)
		}
	}); err != nil {
		return nil, fmt.Errorf("scheduler: invalid briefing spec %q: %w", config.BriefingSpec, err)
	}
	return s, nil
}

// Start launches the cron runner; it returns immediately.
func (s *Service) Start() {
	s.cron.Start()
}

// Shutdown stops the cron runner and waits for in-flight jobs.
func (s *Service) Shutdown(ctx context.Context) {
	stopped := s.cron.Stop()
	select {
	case <-stopped.Done():
	case <-ctx.Done():
	}
}

// DropBriefing creates today's briefing task unless one already exists in
// either store (producers never reuse identifiers).
func (s *Service) DropBriefing(ctx context.Context) error {
	now := clock.Now()
	id := fmt.Sprintf("BRIEFING_%s", now.Format("2006-01-02"))
	for _, folder := range []storefs.Folder{storefs.FolderPending, storefs.FolderArchive} {
		exists, err := s.vault.Exists(ctx, folder, id)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}
	}
	t := &task.Task{
		ID:        id,
		Type:      task.TypeBriefing,
		Status:    task.StatusPending,
		Priority:  task.PriorityHigh,
		Source:    "scheduler",
		CreatedAt: now,
		Body: fmt.Sprintf("# Morning briefing %s\n\nSummarize open work and today's plan.\nScheduled by %s.\n",
			now.Format("2006-01-02"), s.agent),
	}
	return s.vault.Save(ctx, storefs.FolderPending, t)
}
