package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"coursekit/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	cfg, src, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if src.Path != filepath.Join(tempHome, ".config", "coursekit", "config.toml") {
		t.Fatalf("unexpected default path %q", src.Path)
	}
	if src.Found {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantProjects := filepath.Join(tempHome, ".local", "share", "coursekit", "projects")
	if cfg.Paths.ProjectsDir != wantProjects {
		t.Fatalf("unexpected projects dir: got %q want %q", cfg.Paths.ProjectsDir, wantProjects)
	}
	if cfg.Paths.CatalogPath != filepath.Join(tempHome, ".local", "share", "coursekit", "catalog.db") {
		t.Fatalf("unexpected catalog path: %q", cfg.Paths.CatalogPath)
	}
	if cfg.Archive.CompressionLevel != config.Default().Archive.CompressionLevel {
		t.Fatalf("unexpected compression level: %d", cfg.Archive.CompressionLevel)
	}
	if !cfg.Backup.Enabled || cfg.Backup.Keep != 5 {
		t.Fatalf("unexpected backup defaults: %+v", cfg.Backup)
	}
	if cfg.Cache.HandleScheme != "blob" {
		t.Fatalf("unexpected handle scheme: %q", cfg.Cache.HandleScheme)
	}
	if cfg.Logging.Format != "console" || cfg.Logging.Level != "info" {
		t.Fatalf("unexpected logging defaults: %+v", cfg.Logging)
	}
}

func TestLoadCustomConfigOverrides(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	configPath := filepath.Join(t.TempDir(), "config.toml")
	payload := map[string]any{
		"paths": map[string]any{
			"projects_dir": "~/courses",
			"staging_dir":  "~/courses-staging",
		},
		"archive": map[string]any{
			"compression_level": 0,
			"min_free_mib":      -5,
		},
		"logging": map[string]any{
			"format": "JSON",
			"level":  "Debug",
		},
	}
	data, err := toml.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, src, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !src.Found || src.Path != configPath {
		t.Fatalf("expected explicit config to resolve, got %+v", src)
	}
	if cfg.Paths.ProjectsDir != filepath.Join(tempHome, "courses") {
		t.Fatalf("unexpected projects dir: %q", cfg.Paths.ProjectsDir)
	}
	if cfg.Archive.CompressionLevel != 0 {
		t.Fatalf("expected store-only compression, got %d", cfg.Archive.CompressionLevel)
	}
	if cfg.Archive.MinFreeMiB != 0 || cfg.MinFreeBytes() != 0 {
		t.Fatalf("expected negative headroom clamped to zero, got %d", cfg.Archive.MinFreeMiB)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected logging: %+v", cfg.Logging)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	configPath := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(configPath, []byte("[paths]\nlibrary_dir = \"~/x\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, err := config.Load(configPath); err == nil {
		t.Fatal("expected unknown key to be rejected")
	}
}

func TestEnvironmentOverridesProjectsDir(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	override := t.TempDir()
	t.Setenv("COURSEKIT_PROJECTS_DIR", override)
	t.Setenv("COURSEKIT_LOG_LEVEL", "WARN")

	cfg, _, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Paths.ProjectsDir != override {
		t.Fatalf("expected env override %q, got %q", override, cfg.Paths.ProjectsDir)
	}
	if cfg.Logging.Level != "warn" {
		t.Fatalf("expected env log level, got %q", cfg.Logging.Level)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{
			name:   "compression too high",
			mutate: func(c *config.Config) { c.Archive.CompressionLevel = 12 },
			want:   "archive.compression_level",
		},
		{
			name: "staging inside projects",
			mutate: func(c *config.Config) {
				c.Paths.StagingDir = filepath.Join(c.Paths.ProjectsDir, "staging")
			},
			want: "paths.staging_dir",
		},
		{
			name:   "bad scheme",
			mutate: func(c *config.Config) { c.Cache.HandleScheme = "9blob" },
			want:   "cache.handle_scheme",
		},
		{
			name:   "bad level",
			mutate: func(c *config.Config) { c.Logging.Level = "verbose" },
			want:   "logging.level",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Paths.ProjectsDir = "/srv/courses"
			cfg.Paths.StagingDir = "/srv/staging"
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}

func TestWriteSampleRoundTrips(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.WriteSample(path, false); err != nil {
		t.Fatalf("WriteSample returned error: %v", err)
	}
	cfg, src, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load sample: %v", err)
	}
	if !src.Found {
		t.Fatal("expected sample to exist")
	}
	if cfg.Archive.MaxEntryMiB != 4096 || cfg.MaxEntryBytes() != 4096<<20 {
		t.Fatalf("unexpected sample max entry: %d", cfg.Archive.MaxEntryMiB)
	}

	if err := config.WriteSample(path, false); !errors.Is(err, config.ErrConfigExists) {
		t.Fatalf("expected ErrConfigExists, got %v", err)
	}
	if err := config.WriteSample(path, true); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
}

func TestExpandPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	tests := map[string]string{
		"~":             home,
		"~/courses":     filepath.Join(home, "courses"),
		"/srv/../srv/x": "/srv/x",
		"":              "",
	}
	for in, want := range tests {
		got, err := config.ExpandPath(in)
		if err != nil || got != want {
			t.Errorf("ExpandPath(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
}

func TestEnsureDirectories(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.ProjectsDir = filepath.Join(base, "projects")
	cfg.Paths.StagingDir = filepath.Join(base, "staging")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.CatalogPath = filepath.Join(base, "db", "catalog.db")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, dir := range []string{"projects", "staging", "logs", "db"} {
		if info, err := os.Stat(filepath.Join(base, dir)); err != nil || !info.IsDir() {
			t.Fatalf("expected %s directory, err=%v", dir, err)
		}
	}
}
