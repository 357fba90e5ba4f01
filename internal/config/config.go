package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains the directories coursekit reads and writes.
type Paths struct {
	ProjectsDir string `toml:"projects_dir"`
	StagingDir  string `toml:"staging_dir"`
	LogDir      string `toml:"log_dir"`
	CatalogPath string `toml:"catalog_path"`
}

// Archive contains settings for project export and import.
type Archive struct {
	CompressionLevel  int  `toml:"compression_level"`
	MinFreeMiB        int  `toml:"min_free_mib"`
	MaxEntryMiB       int  `toml:"max_entry_mib"`
	StagingMaxAgeHrs  int  `toml:"staging_max_age_hours"`
	VerifyAfterExport bool `toml:"verify_after_export"`
}

// Backup controls the copies kept of a project record before each save.
type Backup struct {
	Enabled bool `toml:"enabled"`
	Keep    int  `toml:"keep"`
}

// Cache contains settings for the in-memory media cache.
type Cache struct {
	HandleScheme string `toml:"handle_scheme"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for coursekit.
//
// Configuration sections by subsystem:
//   - Paths: project storage, staging, catalog database, and logs
//   - Archive: export compression and import safety limits
//   - Backup: project record backups taken before each save
//   - Cache: transient media handle settings
//   - Logging: log format, level, and retention
type Config struct {
	Paths   Paths   `toml:"paths"`
	Archive Archive `toml:"archive"`
	Backup  Backup  `toml:"backup"`
	Cache   Cache   `toml:"cache"`
	Logging Logging `toml:"logging"`
}

// ErrConfigExists is returned by WriteSample when the target already exists.
var ErrConfigExists = errors.New("config file already exists")

// Source reports where a loaded configuration came from.
type Source struct {
	Path string
	// Found is false when no file existed and only defaults were used.
	Found bool
}

// DefaultConfigPath returns ~/.config/coursekit/config.toml, expanded.
func DefaultConfigPath() (string, error) {
	return ExpandPath("~/.config/coursekit/config.toml")
}

// Load reads the configuration at path, or searches the default locations
// when path is empty, then applies environment overrides, normalizes and
// validates it. Unknown keys are an error.
func Load(path string) (*Config, Source, error) {
	src, err := locate(path)
	if err != nil {
		return nil, Source{}, err
	}
	cfg := Default()
	if src.Found {
		data, err := os.ReadFile(src.Path)
		if err != nil {
			return nil, src, fmt.Errorf("read config: %w", err)
		}
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			return nil, src, fmt.Errorf("parse %s: %w", src.Path, err)
		}
	}
	if err := cfg.normalize(); err != nil {
		return nil, src, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, src, err
	}
	return &cfg, src, nil
}

// locate resolves an explicit path as-is. Without one it tries the user
// config file and then ./coursekit.toml, falling back to the user path.
func locate(path string) (Source, error) {
	if path != "" {
		expanded, err := ExpandPath(path)
		if err != nil {
			return Source{}, err
		}
		found, err := isFile(expanded)
		return Source{Path: expanded, Found: found}, err
	}
	userPath, err := DefaultConfigPath()
	if err != nil {
		return Source{}, err
	}
	localPath, err := filepath.Abs("coursekit.toml")
	if err != nil {
		return Source{}, err
	}
	for _, candidate := range []string{userPath, localPath} {
		if found, _ := isFile(candidate); found {
			return Source{Path: candidate, Found: true}, nil
		}
	}
	return Source{Path: userPath}, nil
}

func isFile(path string) (bool, error) {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("stat config: %w", err)
	}
	return !info.IsDir(), nil
}

// EnsureDirectories creates the project, staging, log and catalog directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.ProjectsDir, c.Paths.StagingDir, c.Paths.LogDir, filepath.Dir(c.Paths.CatalogPath)} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// ExpandPath resolves a leading ~ to the home directory and makes p absolute.
func ExpandPath(p string) (string, error) {
	if p == "" {
		return "", nil
	}
	if p == "~" || strings.HasPrefix(p, "~/") || strings.HasPrefix(p, `~\`) {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		p = filepath.Join(home, strings.TrimLeft(p[1:], `/\`))
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", p, err)
	}
	return abs, nil
}

// WriteSample writes the annotated sample configuration to path, creating
// parent directories. An existing file is kept unless overwrite is set.
func WriteSample(path string, overwrite bool) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !overwrite {
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("%w at %s (use --overwrite to replace it)", ErrConfigExists, path)
	}
	if err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	if _, err := f.WriteString(sampleConfig); err != nil {
		f.Close()
		return fmt.Errorf("write sample config: %w", err)
	}
	return f.Close()
}

// MinFreeBytes is the disk headroom an import must leave, in bytes.
func (c *Config) MinFreeBytes() uint64 {
	return uint64(max(c.Archive.MinFreeMiB, 0)) << 20
}

// MaxEntryBytes is the largest archive entry an import accepts, in bytes.
// Zero means no limit.
func (c *Config) MaxEntryBytes() int64 {
	return int64(max(c.Archive.MaxEntryMiB, 0)) << 20
}
