// Package inbox watches the vault's Inbox folder. A file dropped there is
// copied into the pending store together with a generated file_drop task,
// ready for the engine to pick up on its next cycle.
package inbox

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/viant/afs"

	"github.com/vaultflow/vaultflow/internal/clock"
	"github.com/vaultflow/vaultflow/model/task"
	storefs "github.com/vaultflow/vaultflow/service/store/fs"
)

// Config represents inbox producer configuration.
type Config struct {
	// PollInterval is how often the inbox folder is scanned.
	PollInterval time.Duration `json:"pollInterval" yaml:"pollInterval"`
}

// DefaultConfig returns the default inbox configuration.
func DefaultConfig() Config {
	return Config{PollInterval: 10 * time.Second}
}

// Service is the file-drop producer.
type Service struct {
	config Config
	fs     afs.Service
	vault  *storefs.Vault
	agent  string
	// processed de-duplicates within the process lifetime; across restarts
	// the on-disk task files are the authority.
	processed  map[string]bool
	shutdownCh chan struct{}
}

// New creates the inbox producer.
func New(config Config, fs afs.Service, vault *storefs.Vault, agent string) *Service {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultConfig().PollInterval
	}
	if agent == "" {
		agent = "vaultflow"
	}
	return &Service{
		config:     config,
		fs:         fs,
		vault:      vault,
		agent:      agent,
		processed:  map[string]bool{},
		shutdownCh: make(chan struct{}),
	}
}

// Start begins the inbox poll loop.
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
			if _, err := s.ProcessOnce(ctx); err != nil {
				log.Printf("inbox: scan failed: %v", err)
			}
		}
	}
}

// Shutdown stops the poll loop.
func (s *Service) Shutdown() {
	close(s.shutdownCh)
}

// ProcessOnce scans the inbox and registers every new drop. It returns the
// task identifiers created in this pass.
func (s *Service) ProcessOnce(ctx context.Context) ([]string, error) {
	objects, err := s.fs.List(ctx, s.vault.FolderURL(storefs.FolderInbox))
	if err != nil {
		return nil, fmt.Errorf("inbox: failed to list folder: %w", err)
	}
	var created []string
	for _, object := range objects {
		if object.IsDir() || strings.HasPrefix(object.Name(), ".") {
			continue
		}
		id := TaskID(object.Name())
		if s.processed[id] {
			continue
		}
		seen, err := s.alreadyRegistered(ctx, id)
		if err != nil {
			log.Printf("inbox: failed to check %v, retrying next scan: %v", object.Name(), err)
			continue
		}
		if seen {
			s.processed[id] = true
			continue
		}
		if err := s.register(ctx, object.Name(), object.URL()); err != nil {
			log.Printf("inbox: failed to register drop %v: %v", object.Name(), err)
			continue
		}
		s.processed[id] = true
		created = append(created, id)
	}
	return created, nil
}

// TaskID derives the task identifier for a dropped file name. A producer
// must never reuse an identifier already present in either store, which
// the sanitized source name guarantees per drop.
func TaskID(name string) string {
	sanitized := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		}
		return '_'
	}, name)
	sanitized = strings.TrimSuffix(sanitized, ".md")
	return "FILE_DROP_" + strings.ReplaceAll(sanitized, ".", "_")
}

func (s *Service) alreadyRegistered(ctx context.Context, id string) (bool, error) {
	for _, folder := range []storefs.Folder{storefs.FolderPending, storefs.FolderArchive} {
		exists, err := s.vault.Exists(ctx, folder, id)
		if err != nil {
			return false, err
		}
		if exists {
			return true, nil
		}
	}
	return false, nil
}

// register copies the payload into the attachments area and creates the
// metadata task. The inbox copy is left untouched; nothing is ever deleted.
func (s *Service) register(ctx context.Context, name, sourceURL string) error {
	payloadURL := s.vault.FolderURL(storefs.FolderAttachments) + "/" + name
	if err := s.fs.Copy(ctx, sourceURL, payloadURL); err != nil {
		return fmt.Errorf("failed to copy payload: %w", err)
	}
	now := clock.Now()
	t := &task.Task{
		ID:        TaskID(name),
		Type:      task.TypeFileDrop,
		Status:    task.StatusPending,
		Priority:  task.PriorityMedium,
		Source:    "inbox/" + name,
		CreatedAt: now,
		Body: fmt.Sprintf("# File drop: %s\n\nPayload copied to `%s`.\nRegistered by %s.\n",
			name, payloadURL, s.agent),
	}
	return s.vault.Save(ctx, storefs.FolderPending, t)
}
