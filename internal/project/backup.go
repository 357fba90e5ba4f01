package project

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"coursekit/internal/fileutil"
	"coursekit/internal/logging"
)

const backupTimeLayout = "20060102T150405.000000000Z"

// Recovery describes the newest backup available for a project.
type Recovery struct {
	Available bool
	Path      string
	Timestamp time.Time
}

// Backup is one stored copy of a previous record.
type Backup struct {
	Path      string
	Timestamp time.Time
}

// Backups lists the stored record backups of id, newest first.
func (m *Manager) Backups(id string) ([]Backup, error) {
	if err := validateProjectID(id); err != nil {
		return nil, err
	}
	dir := filepath.Join(m.Dir(id), backupDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read backups: %w", err)
	}
	var backups []Backup
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		stamp, ok := parseBackupName(entry.Name())
		if !ok {
			continue
		}
		backups = append(backups, Backup{Path: filepath.Join(dir, entry.Name()), Timestamp: stamp})
	}
	sort.Slice(backups, func(i, j int) bool { return backups[i].Timestamp.After(backups[j].Timestamp) })
	return backups, nil
}

// CheckRecovery reports whether a backup exists for id.
func (m *Manager) CheckRecovery(id string) (Recovery, error) {
	backups, err := m.Backups(id)
	if err != nil || len(backups) == 0 {
		return Recovery{}, err
	}
	return Recovery{Available: true, Path: backups[0].Path, Timestamp: backups[0].Timestamp}, nil
}

// Recover restores the newest backup that still decodes as a valid record.
// The current record is itself backed up first so recovery can be undone.
func (m *Manager) Recover(ctx context.Context, id string) (*Record, error) {
	if err := m.requireReady(ctx, id); err != nil {
		return nil, err
	}
	backups, err := m.Backups(id)
	if err != nil {
		return nil, err
	}
	if len(backups) == 0 {
		return nil, fmt.Errorf("recover %s: no backup found", id)
	}

	var rec *Record
	var source Backup
	for _, b := range backups {
		data, err := os.ReadFile(b.Path)
		if err != nil {
			continue
		}
		candidate, err := DecodeRecord(data)
		if err != nil || candidate.ID != id {
			logging.WarnWithContext(logging.WithContext(ctx, m.logger), "skipping unusable backup", "backup_invalid",
				logging.ProjectID(id),
				logging.String("path", b.Path),
				logging.String(logging.FieldImpact, "older backup used for recovery"),
			)
			continue
		}
		rec, source = candidate, b
		break
	}
	if rec == nil {
		return nil, fmt.Errorf("recover %s: %w: no backup decodes", id, ErrInvalidRecord)
	}

	if err := m.backup(ctx, id); err != nil {
		return nil, err
	}
	if err := m.writeRecord(rec); err != nil {
		return nil, err
	}
	if err := m.catalog.Touch(ctx, id, rec.Name); err != nil {
		return nil, err
	}
	m.logger.InfoContext(ctx, "project recovered from backup",
		logging.ProjectID(id),
		logging.String("backup", source.Path),
		logging.String(logging.FieldEventType, "project_recovered"),
	)
	return rec, nil
}

// PruneBackups deletes all but the newest keep backups of id and returns
// the number removed.
func (m *Manager) PruneBackups(ctx context.Context, id string, keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}
	backups, err := m.Backups(id)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, b := range backups[min(keep, len(backups)):] {
		if err := os.Remove(b.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return removed, fmt.Errorf("remove backup: %w", err)
		}
		removed++
	}
	if removed > 0 {
		m.logger.DebugContext(ctx, "pruned record backups", logging.ProjectID(id), logging.Int("removed", removed))
	}
	return removed, nil
}

// backup copies the current record into backups/. A project without a
// record has nothing to back up.
func (m *Manager) backup(ctx context.Context, id string) error {
	src := m.RecordPath(id)
	if _, err := os.Stat(src); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat project record: %w", err)
	}
	dir := filepath.Join(m.Dir(id), backupDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create backup dir: %w", err)
	}
	dst := filepath.Join(dir, backupName(m.now()))
	if _, err := fileutil.CopyVerified(src, dst); err != nil {
		return fmt.Errorf("backup project record: %w", err)
	}
	m.logger.DebugContext(ctx, "project record backed up", logging.ProjectID(id), logging.String("path", dst))
	return nil
}

func backupName(t time.Time) string {
	return "project-" + t.UTC().Format(backupTimeLayout) + ".json"
}

func parseBackupName(name string) (time.Time, bool) {
	if !strings.HasPrefix(name, "project-") || !strings.HasSuffix(name, ".json") {
		return time.Time{}, false
	}
	stamp := strings.TrimSuffix(strings.TrimPrefix(name, "project-"), ".json")
	t, err := time.Parse(backupTimeLayout, stamp)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
