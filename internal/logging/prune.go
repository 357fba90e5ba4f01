package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"
)

// PruneLogs removes files in dir matching pattern whose modification time is
// more than keepDays before now. Paths in keep are never removed. keepDays
// of zero or less disables pruning. It returns the removed paths.
func PruneLogs(logger *slog.Logger, dir, pattern string, keepDays int, now time.Time, keep ...string) []string {
	if keepDays <= 0 || dir == "" {
		return nil
	}
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil
	}
	cutoff := now.AddDate(0, 0, -keepDays)
	kept := make([]string, 0, len(keep))
	for _, p := range keep {
		kept = append(kept, filepath.Clean(p))
	}

	var removed []string
	for _, path := range matches {
		if slices.Contains(kept, filepath.Clean(path)) {
			continue
		}
		info, err := os.Stat(path)
		if err != nil || info.IsDir() || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil {
			WarnWithContext(logger, "old log file could not be removed", "log_prune_failed",
				String("path", path),
				Error(err),
				String(FieldErrorHint, "check permissions on log_dir"),
				String(FieldImpact, "old log file stays on disk"),
			)
			continue
		}
		removed = append(removed, path)
	}
	if len(removed) > 0 && logger != nil {
		logger.Info("old log files pruned",
			Int("count", len(removed)),
			String(FieldEventType, "logs_pruned"),
		)
	}
	return removed
}
