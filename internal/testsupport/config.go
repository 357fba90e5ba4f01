package testsupport

import (
	"path/filepath"
	"testing"

	"coursekit/internal/config"
)

// ConfigOption adjusts a test configuration before its directories are created.
type ConfigOption func(*config.Config)

// NewConfig returns a valid configuration whose projects, staging, log and
// catalog paths all live under one fresh t.TempDir. The free-space headroom
// is disabled so imports do not depend on the host disk.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths = config.Paths{
		ProjectsDir: filepath.Join(base, "projects"),
		StagingDir:  filepath.Join(base, "staging"),
		LogDir:      filepath.Join(base, "logs"),
		CatalogPath: filepath.Join(base, "catalog", "catalog.db"),
	}
	cfg.Archive.MinFreeMiB = 0
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return &cfg
}

// WithBackupKeep keeps keep record backups; zero turns backups off.
func WithBackupKeep(keep int) ConfigOption {
	return func(c *config.Config) {
		c.Backup.Enabled = keep > 0
		c.Backup.Keep = keep
	}
}

// WithMaxEntryMiB caps the size of a single archive entry on import.
func WithMaxEntryMiB(mib int) ConfigOption {
	return func(c *config.Config) { c.Archive.MaxEntryMiB = mib }
}

// BaseDir returns the temp directory NewConfig placed everything under.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StagingDir)
}
