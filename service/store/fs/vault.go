// Package fs implements the filesystem-backed vault store. The file system
// is the only store: two primary folders (pending and archive) plus the
// approvals sub-area, a plans folder for session checklists and the derived
// dashboard artifact.
package fs

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"

	"github.com/vaultflow/vaultflow/internal/clock"
	"github.com/vaultflow/vaultflow/model/task"
	"github.com/vaultflow/vaultflow/model/task/frontmatter"
	"github.com/vaultflow/vaultflow/service/dao"
	"github.com/vaultflow/vaultflow/service/dao/criteria"
)

// Folder names a well-known vault sub-directory.
type Folder string

const (
	FolderPending     Folder = "Needs_Action"
	FolderArchive     Folder = "Done"
	FolderApprovals   Folder = "Approvals"
	FolderPlans       Folder = "Plans"
	FolderInbox       Folder = "Inbox"
	FolderAttachments Folder = "Attachments"
)

// DashboardFile is the derived summary artifact at the vault root.
const DashboardFile = "Dashboard.md"

const taskExt = ".md"

// Skipped describes a file the store could not decode. Skipped files are
// left in place for human inspection, never dropped.
type Skipped struct {
	Name string
	Err  error
}

// Listing is the result of scanning one vault folder.
type Listing struct {
	Tasks   []*task.Task
	Skipped []Skipped
}

// Vault is the directory-backed task store. All components read and mutate
// task files through it; none keeps a private copy across cycles.
type Vault struct {
	fs      afs.Service
	baseURL string
	mu      sync.RWMutex
}

// New creates a vault store rooted at baseURL and ensures the folder layout
// exists.
func New(ctx context.Context, fs afs.Service, baseURL string) (*Vault, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("vault base URL cannot be empty")
	}
	v := &Vault{fs: fs, baseURL: baseURL}
	for _, folder := range []Folder{FolderPending, FolderArchive, FolderApprovals, FolderPlans, FolderInbox, FolderAttachments} {
		dir := v.FolderURL(folder)
		exists, _ := fs.Exists(ctx, dir)
		if exists {
			continue
		}
		if err := fs.Create(ctx, dir, file.DefaultDirOsMode, true); err != nil {
			return nil, fmt.Errorf("failed to create vault folder %s: %w", dir, err)
		}
	}
	return v, nil
}

// BaseURL returns the vault root.
func (v *Vault) BaseURL() string {
	return v.baseURL
}

// FolderURL returns the URL of a vault folder.
func (v *Vault) FolderURL(folder Folder) string {
	return url.Join(v.baseURL, string(folder))
}

// TaskURL returns the URL of a task file within a folder.
func (v *Vault) TaskURL(folder Folder, id string) string {
	return url.Join(v.baseURL, string(folder), id+taskExt)
}

// Save persists a task to the given folder. The write is atomic: content is
// uploaded to a temporary name and moved into place, so a concurrent human
// editor never observes a partial file.
func (v *Vault) Save(ctx context.Context, folder Folder, t *task.Task) error {
	if t == nil {
		return dao.ErrNilEntity
	}
	if t.ID == "" {
		return dao.ErrInvalidID
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	data, err := frontmatter.Encode(t, t.Body)
	if err != nil {
		return fmt.Errorf("failed to encode task %s: %w", t.ID, err)
	}
	return v.atomicUpload(ctx, v.TaskURL(folder, t.ID), data)
}

// Load reads and decodes one task file.
func (v *Vault) Load(ctx context.Context, folder Folder, id string) (*task.Task, error) {
	if id == "" {
		return nil, dao.ErrInvalidID
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.load(ctx, folder, id)
}

func (v *Vault) load(ctx context.Context, folder Folder, id string) (*task.Task, error) {
	taskURL := v.TaskURL(folder, id)
	exists, err := v.fs.Exists(ctx, taskURL)
	if err != nil {
		return nil, fmt.Errorf("failed to check task %s: %w", taskURL, err)
	}
	if !exists {
		return nil, fmt.Errorf("task %s in %s: %w", id, folder, dao.ErrNotFound)
	}
	data, err := v.fs.DownloadWithURL(ctx, taskURL)
	if err != nil {
		return nil, fmt.Errorf("failed to read task file %s: %w", taskURL, err)
	}
	t := &task.Task{ID: id}
	body, err := frontmatter.Decode(data, t)
	if err != nil {
		return nil, fmt.Errorf("task %s: %w", id, err)
	}
	t.Body = body
	return t, nil
}

// List scans one folder in directory order and decodes every task file.
// Files that cannot be decoded are reported in Listing.Skipped and left in
// place. An optional Status parameter filters the result.
func (v *Vault) List(ctx context.Context, folder Folder, parameters ...*dao.Parameter) (*Listing, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	objects, err := v.fs.List(ctx, v.FolderURL(folder))
	if err != nil {
		return nil, fmt.Errorf("failed to list vault folder %s: %w", folder, err)
	}
	names := make([]string, 0, len(objects))
	for _, object := range objects {
		if object.IsDir() || !strings.HasSuffix(object.Name(), taskExt) {
			continue
		}
		names = append(names, object.Name())
	}
	sort.Strings(names)

	listing := &Listing{}
	for _, name := range names {
		id := strings.TrimSuffix(name, taskExt)
		t, err := v.load(ctx, folder, id)
		if err != nil {
			listing.Skipped = append(listing.Skipped, Skipped{Name: name, Err: err})
			continue
		}
		if !criteria.FilterByStatus(string(t.Status), parameters) {
			continue
		}
		listing.Tasks = append(listing.Tasks, t)
	}
	return listing, nil
}

// Exists reports whether a task file is present in a folder.
func (v *Vault) Exists(ctx context.Context, folder Folder, id string) (bool, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.fs.Exists(ctx, v.TaskURL(folder, id))
}

// Move relocates a task file between folders under destID via atomic
// rename. There is no window in which the task exists in neither folder.
func (v *Vault) Move(ctx context.Context, from Folder, id string, to Folder, destID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	source := v.TaskURL(from, id)
	dest := v.TaskURL(to, destID)
	if err := v.fs.Move(ctx, source, dest); err != nil {
		return fmt.Errorf("failed to move %s to %s: %w", source, dest, err)
	}
	return nil
}

// Size returns the byte size of a task file.
func (v *Vault) Size(ctx context.Context, folder Folder, id string) (int64, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	object, err := v.fs.Object(ctx, v.TaskURL(folder, id))
	if err != nil {
		return 0, fmt.Errorf("failed to stat task %s: %w", id, err)
	}
	return object.Size(), nil
}

// ReadRaw returns the undecoded bytes of a vault file. The archiver uses
// this so approval requests and tasks round-trip without loss.
func (v *Vault) ReadRaw(ctx context.Context, folder Folder, id string) ([]byte, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	data, err := v.fs.DownloadWithURL(ctx, v.TaskURL(folder, id))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s/%s: %w", folder, id, err)
	}
	return data, nil
}

// WriteRaw atomically replaces the bytes of a vault file.
func (v *Vault) WriteRaw(ctx context.Context, folder Folder, id string, data []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.atomicUpload(ctx, v.TaskURL(folder, id), data)
}

// WriteArtifact atomically writes a derived artifact (dashboard, session
// plan) relative to the vault root.
func (v *Vault) WriteArtifact(ctx context.Context, relative string, data []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.atomicUpload(ctx, url.Join(v.baseURL, relative), data)
}

// ReadArtifact reads a derived artifact relative to the vault root.
func (v *Vault) ReadArtifact(ctx context.Context, relative string) ([]byte, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	artifactURL := url.Join(v.baseURL, relative)
	exists, err := v.fs.Exists(ctx, artifactURL)
	if err != nil || !exists {
		return nil, dao.ErrNotFound
	}
	return v.fs.DownloadWithURL(ctx, artifactURL)
}

func (v *Vault) atomicUpload(ctx context.Context, destURL string, data []byte) error {
	tmpURL := destURL + fmt.Sprintf(".tmp-%d", clock.Now().UnixNano())
	if err := v.fs.Upload(ctx, tmpURL, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmpURL, err)
	}
	if err := v.fs.Move(ctx, tmpURL, destURL); err != nil {
		return fmt.Errorf("failed to finalize write of %s: %w", destURL, err)
	}
	return nil
}

// ConflictName derives an archive rename candidate for id by suffixing a
// timestamp, e.g. task_20260823T101500. The suffix has one-second
// resolution; callers must still check the destination before moving.
func ConflictName(id string) string {
	return fmt.Sprintf("%s_%s", id, clock.Now().UTC().Format("20060102T150405"))
}
