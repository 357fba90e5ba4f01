// Package staging manages the scratch directories archive imports build a
// project in before it is moved into the projects directory.
package staging

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"coursekit/internal/logging"
)

// ImportPrefix names the staging directories created by archive imports.
const ImportPrefix = "import-"

// Dir is one directory below the staging root.
type Dir struct {
	Name string `json:"name"`
	Path string `json:"path"`
	// ProjectID is empty for directories not created by an import.
	ProjectID string    `json:"project_id,omitempty"`
	ModTime   time.Time `json:"mod_time"`
	Size      int64     `json:"size_bytes"`
}

// Age returns how long ago d was last modified.
func (d Dir) Age(now time.Time) time.Duration { return now.Sub(d.ModTime) }

// Create makes an empty staging directory for an import of projectID,
// clearing any leftover from an earlier attempt.
func Create(root, projectID string) (string, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return "", errors.New("staging dir not configured")
	}
	dir := filepath.Join(root, ImportPrefix+projectID)
	if err := os.RemoveAll(dir); err != nil {
		return "", fmt.Errorf("clear staging dir: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create staging dir: %w", err)
	}
	return dir, nil
}

// ProjectID returns the project an import staging directory name belongs to.
func ProjectID(name string) (string, bool) {
	id, ok := strings.CutPrefix(name, ImportPrefix)
	return id, ok && id != ""
}

// Scan lists the directories below root with their total size. A missing
// or unset root has no directories.
func Scan(root string) ([]Dir, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var dirs []Dir
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		path := filepath.Join(root, entry.Name())
		id, _ := ProjectID(entry.Name())
		dirs = append(dirs, Dir{
			Name:      entry.Name(),
			Path:      path,
			ProjectID: id,
			ModTime:   info.ModTime(),
			Size:      treeSize(path),
		})
	}
	return dirs, nil
}

// Failure is a directory Clean could not remove.
type Failure struct {
	Path string
	Err  error
}

// Report is the outcome of Clean.
type Report struct {
	Removed []Dir
	Failed  []Failure
}

// Bytes returns the disk space reclaimed.
func (r Report) Bytes() int64 {
	var n int64
	for _, d := range r.Removed {
		n += d.Size
	}
	return n
}

// Clean removes the import directories below root for which expired
// returns true. Directories without the import prefix are never touched.
// A cancelled ctx stops the sweep early.
func Clean(ctx context.Context, root string, expired func(Dir) bool, logger *slog.Logger) Report {
	var report Report
	dirs, err := Scan(root)
	if err != nil {
		report.Failed = append(report.Failed, Failure{Path: root, Err: err})
		return report
	}
	log := logging.WithContext(ctx, logger)
	for _, d := range dirs {
		if ctx.Err() != nil {
			break
		}
		if d.ProjectID == "" || !expired(d) {
			continue
		}
		if err := os.RemoveAll(d.Path); err != nil {
			report.Failed = append(report.Failed, Failure{Path: d.Path, Err: err})
			logging.WarnWithContext(log, "staging directory could not be removed", "staging_cleanup_failed",
				logging.String("path", d.Path),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check staging_dir permissions"),
				logging.String(logging.FieldImpact, "disk space not reclaimed"),
			)
			continue
		}
		report.Removed = append(report.Removed, d)
		log.Info("staging directory removed",
			logging.String("path", d.Path),
			logging.ProjectID(d.ProjectID),
			logging.Int64("bytes", d.Size),
			logging.String(logging.FieldEventType, "staging_cleanup"),
		)
	}
	return report
}

func treeSize(root string) int64 {
	var size int64
	_ = filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			size += info.Size()
		}
		return nil
	})
	return size
}
