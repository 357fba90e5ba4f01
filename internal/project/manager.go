package project

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"coursekit/internal/catalog"
	"coursekit/internal/config"
	"coursekit/internal/course"
	"coursekit/internal/fileutil"
	"coursekit/internal/logging"
	"coursekit/internal/mediastore"
	"coursekit/internal/staging"
)

const (
	recordFile = "project.json"
	mediaDir   = "media"
	backupDir  = "backups"
	lockDir    = ".locks"
)

// Manager creates, loads and removes projects.
type Manager struct {
	cfg     *config.Config
	catalog *catalog.Store
	logger  *slog.Logger
	now     func() time.Time
}

// NewManager returns a manager rooted at cfg.Paths.ProjectsDir.
func NewManager(cfg *config.Config, cat *catalog.Store, logger *slog.Logger) *Manager {
	return &Manager{
		cfg:     cfg,
		catalog: cat,
		logger:  logging.NewComponentLogger(logger, "project"),
		now:     time.Now,
	}
}

// Config returns the configuration the manager was built with.
func (m *Manager) Config() *config.Config { return m.cfg }

// Catalog returns the registry backing the manager.
func (m *Manager) Catalog() *catalog.Store { return m.catalog }

// Dir returns the directory of project id.
func (m *Manager) Dir(id string) string { return filepath.Join(m.cfg.Paths.ProjectsDir, id) }

// RecordPath returns the location of project.json for id.
func (m *Manager) RecordPath(id string) string { return filepath.Join(m.Dir(id), recordFile) }

// MediaStore opens the payload store of project id.
func (m *Manager) MediaStore(id string) (*mediastore.FileStore, error) {
	if err := validateProjectID(id); err != nil {
		return nil, err
	}
	return mediastore.New(filepath.Join(m.Dir(id), mediaDir), m.logger)
}

// Lock takes the exclusive lock of project id without blocking.
func (m *Manager) Lock(id string) (*flock.Flock, error) {
	if err := validateProjectID(id); err != nil {
		return nil, err
	}
	dir := filepath.Join(m.cfg.Paths.ProjectsDir, lockDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	lock := flock.New(filepath.Join(dir, id+".lock"))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire project lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, id)
	}
	return lock, nil
}

// Create writes a new empty project named name and registers it.
func (m *Manager) Create(ctx context.Context, name string) (*Record, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("project name is required")
	}
	now := m.now().UTC()
	rec := &Record{
		Version:   RecordVersion,
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
		Graph: course.Graph{
			Welcome:    course.Page{Title: "Welcome"},
			Objectives: course.Page{Title: "Learning Objectives"},
		},
	}

	dir := m.Dir(rec.ID)
	if err := os.MkdirAll(filepath.Join(dir, mediaDir), 0o755); err != nil {
		return nil, fmt.Errorf("create project dir: %w", err)
	}
	if _, err := m.catalog.Insert(ctx, catalog.Entry{ID: rec.ID, Name: rec.Name, Version: rec.Version, Dir: dir, CreatedAt: now}); err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}
	if err := m.writeRecord(rec); err != nil {
		m.discard(ctx, rec.ID, dir)
		return nil, err
	}
	if err := m.catalog.MarkReady(ctx, rec.ID); err != nil {
		m.discard(ctx, rec.ID, dir)
		return nil, err
	}
	m.logger.InfoContext(ctx, "project created",
		logging.ProjectID(rec.ID),
		logging.String("name", rec.Name),
		logging.String(logging.FieldEventType, "project_created"),
	)
	return rec, nil
}

// Load reads the record of a ready project.
func (m *Manager) Load(ctx context.Context, id string) (*Record, error) {
	if err := m.requireReady(ctx, id); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(m.RecordPath(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s (record file missing)", ErrNotFound, id)
		}
		return nil, fmt.Errorf("read project record: %w", err)
	}
	rec, err := DecodeRecord(data)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", id, err)
	}
	if rec.ID != id {
		return nil, fmt.Errorf("load %s: %w: record carries id %q", id, ErrInvalidRecord, rec.ID)
	}
	return rec, nil
}

// Save backs up the current record, then atomically replaces it with rec.
func (m *Manager) Save(ctx context.Context, rec *Record) error {
	if rec == nil {
		return errors.New("project record is nil")
	}
	if err := m.requireReady(ctx, rec.ID); err != nil {
		return err
	}
	rec.Version = RecordVersion
	rec.UpdatedAt = m.now().UTC()
	if err := rec.Validate(); err != nil {
		return err
	}

	if m.cfg.Backup.Enabled {
		if err := m.backup(ctx, rec.ID); err != nil {
			return err
		}
	}
	if err := m.writeRecord(rec); err != nil {
		return err
	}
	if err := m.catalog.Touch(ctx, rec.ID, rec.Name); err != nil {
		return err
	}
	if m.cfg.Backup.Enabled && m.cfg.Backup.Keep > 0 {
		if _, err := m.PruneBackups(ctx, rec.ID, m.cfg.Backup.Keep); err != nil {
			logging.WarnWithContext(logging.WithContext(ctx, m.logger), "backup pruning failed", "backup_prune_failed",
				logging.ProjectID(rec.ID),
				logging.Error(err),
				logging.String(logging.FieldImpact, "old backups kept on disk"),
			)
		}
	}
	return nil
}

// Delete removes project id from disk and from the catalog. Deleting a
// missing project is not an error.
func (m *Manager) Delete(ctx context.Context, id string) error {
	if err := validateProjectID(id); err != nil {
		return err
	}
	dir := m.Dir(id)
	if entry, err := m.catalog.Get(ctx, id); err == nil && entry.Dir != "" {
		dir = entry.Dir
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove project dir: %w", err)
	}
	removed, err := m.catalog.Delete(ctx, id)
	if err != nil {
		return err
	}
	if removed {
		m.logger.InfoContext(ctx, "project deleted",
			logging.ProjectID(id),
			logging.String(logging.FieldEventType, "project_deleted"),
		)
	}
	return nil
}

// List returns the ready projects.
func (m *Manager) List(ctx context.Context) ([]*catalog.Entry, error) {
	return m.catalog.List(ctx)
}

// Install moves a fully staged project directory into place and registers
// it. The catalog row is staged until the rename succeeds; any failure
// removes both the row and whatever reached the projects directory.
func (m *Manager) Install(ctx context.Context, stagedDir string, rec *Record, sourceArchive string) error {
	if err := validateProjectID(rec.ID); err != nil {
		return err
	}
	dir := m.Dir(rec.ID)
	if _, err := os.Stat(dir); err == nil {
		return fmt.Errorf("install %s: target directory already exists", rec.ID)
	}
	if _, err := m.catalog.Insert(ctx, catalog.Entry{
		ID:            rec.ID,
		Name:          rec.Name,
		Version:       rec.Version,
		Dir:           dir,
		SourceArchive: sourceArchive,
		CreatedAt:     rec.CreatedAt,
	}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		m.discard(ctx, rec.ID, "")
		return err
	}
	if err := os.Rename(stagedDir, dir); err != nil {
		m.discard(ctx, rec.ID, "")
		return fmt.Errorf("install %s: %w", rec.ID, err)
	}
	_ = fileutil.SyncDir(m.cfg.Paths.ProjectsDir)
	if err := m.catalog.MarkReady(ctx, rec.ID); err != nil {
		m.discard(ctx, rec.ID, dir)
		return err
	}
	return nil
}

// CleanStaleStaging removes import staging directories left behind by
// interrupted imports. A directory whose import still holds the project lock
// is kept. One whose project is mid-install in the catalog is kept until it
// is older than maxAge. Every other import directory is removed.
func (m *Manager) CleanStaleStaging(ctx context.Context, maxAge time.Duration) (staging.Report, error) {
	staged, err := m.catalog.List(ctx, catalog.StateStaged)
	if err != nil {
		return staging.Report{}, err
	}
	installing := make(map[string]bool, len(staged))
	for _, e := range staged {
		installing[e.ID] = true
	}
	now := m.now()
	return staging.Clean(ctx, m.cfg.Paths.StagingDir, func(d staging.Dir) bool {
		if m.importRunning(d.ProjectID) {
			return false
		}
		if installing[d.ProjectID] {
			return d.Age(now) > maxAge
		}
		return true
	}, m.logger), nil
}

// importRunning reports whether another process holds the lock of id.
func (m *Manager) importRunning(id string) bool {
	lock, err := m.Lock(id)
	if err != nil {
		return true
	}
	_ = lock.Unlock()
	return false
}

func (m *Manager) requireReady(ctx context.Context, id string) error {
	if err := validateProjectID(id); err != nil {
		return err
	}
	entry, err := m.catalog.Get(ctx, id)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return err
	}
	if entry.State != catalog.StateReady {
		return fmt.Errorf("%w: %s", ErrNotReady, id)
	}
	return nil
}

func (m *Manager) writeRecord(rec *Record) error {
	data, err := rec.Encode()
	if err != nil {
		return err
	}
	if err := fileutil.WriteFileAtomic(m.RecordPath(rec.ID), data, 0o644); err != nil {
		return fmt.Errorf("write project record: %w", err)
	}
	return nil
}

// discard rolls back a partially created project.
func (m *Manager) discard(ctx context.Context, id, dir string) {
	if dir != "" {
		_ = os.RemoveAll(dir)
	}
	if _, err := m.catalog.Delete(context.WithoutCancel(ctx), id); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, m.logger), "failed to remove catalog row", "catalog_cleanup_failed",
			logging.ProjectID(id),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "run 'coursekit project delete "+id+"'"),
		)
	}
}

func validateProjectID(id string) error {
	id = strings.TrimSpace(id)
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." || strings.HasPrefix(id, ".") {
		return fmt.Errorf("invalid project id %q", id)
	}
	return nil
}
