// Package archiver moves fully resolved vault files into the archive
// folder. The archive is terminal and append-only: the archiver never
// overwrites, never deletes, and refuses to move anything that still looks
// like open work.
package archiver

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/vaultflow/vaultflow/internal/clock"
	"github.com/vaultflow/vaultflow/model/task"
	"github.com/vaultflow/vaultflow/model/task/frontmatter"
	storefs "github.com/vaultflow/vaultflow/service/store/fs"
)

// Request names one file to archive and the final status recorded in its
// audit block.
type Request struct {
	Folder      storefs.Folder
	ID          string
	FinalStatus string
}

// Result reports where the file ended up.
type Result struct {
	DestID  string
	Renamed bool
}

// PreconditionError marks an aborted archive that needs human confirmation.
type PreconditionError struct {
	ID     string
	Reason string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("archiver: refusing to move %s: %s", e.ID, e.Reason)
}

// Service archives resolved vault files.
type Service struct {
	vault *storefs.Vault
	agent string
}

// New creates an archiver over the vault store.
func New(vault *storefs.Vault, agent string) *Service {
	if agent == "" {
		agent = "vaultflow"
	}
	return &Service{vault: vault, agent: agent}
}

// Archive appends an immutable audit block and moves the file into the
// archive folder. Preconditions: the source exists, is non-empty and its
// on-disk status is not pending. A same-named archive entry causes a
// timestamp-suffix rename of the incoming file, never an overwrite. After
// the move the archiver verifies presence at the destination and absence
// at the source; on verification failure both copies are left for manual
// reconciliation.
func (s *Service) Archive(ctx context.Context, request *Request) (*Result, error) {
	exists, err := s.vault.Exists(ctx, request.Folder, request.ID)
	if err != nil {
		return nil, fmt.Errorf("archiver: failed to check source %s: %w", request.ID, err)
	}
	if !exists {
		return nil, &PreconditionError{ID: request.ID, Reason: "source file does not exist"}
	}

	data, err := s.vault.ReadRaw(ctx, request.Folder, request.ID)
	if err != nil {
		return nil, fmt.Errorf("archiver: failed to read source %s: %w", request.ID, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &PreconditionError{ID: request.ID, Reason: "source file is empty"}
	}

	var meta struct {
		Status string `yaml:"status"`
	}
	if _, err := frontmatter.Decode(data, &meta); err != nil {
		return nil, &PreconditionError{ID: request.ID, Reason: fmt.Sprintf("unreadable metadata: %v", err)}
	}
	if task.Status(meta.Status) == task.StatusPending {
		return nil, &PreconditionError{ID: request.ID, Reason: "status is still pending"}
	}

	// Destination-conflict policy: suffix a timestamp, keep both copies.
	destID := request.ID
	renamed := false
	if taken, err := s.vault.Exists(ctx, storefs.FolderArchive, destID); err != nil {
		return nil, fmt.Errorf("archiver: failed to check destination %s: %w", destID, err)
	} else if taken {
		destID, err = s.freeConflictName(ctx, request.ID)
		if err != nil {
			return nil, err
		}
		renamed = true
	}

	sourceURL := s.vault.TaskURL(request.Folder, request.ID)
	destURL := s.vault.TaskURL(storefs.FolderArchive, destID)
	audited := appendAudit(data, auditBlock{
		agent:       s.agent,
		source:      sourceURL,
		destination: destURL,
		finalStatus: request.FinalStatus,
	})
	if err := s.vault.WriteRaw(ctx, request.Folder, request.ID, audited); err != nil {
		return nil, fmt.Errorf("archiver: failed to append audit block to %s: %w", request.ID, err)
	}

	if err := s.vault.Move(ctx, request.Folder, request.ID, storefs.FolderArchive, destID); err != nil {
		return nil, fmt.Errorf("archiver: move of %s failed: %w", request.ID, err)
	}

	// Verify before declaring success; on failure report and leave every
	// copy in place for manual reconciliation.
	atDest, err := s.vault.Exists(ctx, storefs.FolderArchive, destID)
	if err != nil || !atDest {
		return nil, fmt.Errorf("archiver: %s missing at destination after move (err: %v)", destID, err)
	}
	atSource, err := s.vault.Exists(ctx, request.Folder, request.ID)
	if err != nil {
		return nil, fmt.Errorf("archiver: failed to verify source removal of %s: %w", request.ID, err)
	}
	if atSource {
		return nil, fmt.Errorf("archiver: %s still present at source after move, both copies left", request.ID)
	}
	return &Result{DestID: destID, Renamed: renamed}, nil
}

// freeConflictName probes archive names until an unoccupied one is found.
// The timestamp suffix has one-second resolution, so repeated conflicts on
// the same id within one second get an extra counter suffix instead of
// overwriting each other.
func (s *Service) freeConflictName(ctx context.Context, id string) (string, error) {
	candidate := storefs.ConflictName(id)
	for attempt := 2; ; attempt++ {
		taken, err := s.vault.Exists(ctx, storefs.FolderArchive, candidate)
		if err != nil {
			return "", fmt.Errorf("archiver: failed to check destination %s: %w", candidate, err)
		}
		if !taken {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s_%d", storefs.ConflictName(id), attempt)
	}
}

type auditBlock struct {
	agent       string
	source      string
	destination string
	finalStatus string
}

// appendAudit adds the immutable audit entry to the end of the file body.
func appendAudit(data []byte, block auditBlock) []byte {
	var b strings.Builder
	b.Write(data)
	if !bytes.HasSuffix(data, []byte("\n")) {
		b.WriteString("\n")
	}
	b.WriteString("\n## Audit\n")
	b.WriteString(fmt.Sprintf("- archived_at: %s\n", clock.Now().Format(time.RFC3339)))
	b.WriteString(fmt.Sprintf("- source: %s\n", block.source))
	b.WriteString(fmt.Sprintf("- destination: %s\n", block.destination))
	b.WriteString(fmt.Sprintf("- final_status: %s\n", block.finalStatus))
	b.WriteString(fmt.Sprintf("- agent: %s\n", block.agent))
	return []byte(b.String())
}
