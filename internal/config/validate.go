package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateArchive(); err != nil {
		return err
	}
	if err := c.validateCache(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.ProjectsDir) == "" {
		return errors.New("paths.projects_dir must be set")
	}
	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		return errors.New("paths.staging_dir must be set")
	}
	if strings.TrimSpace(c.Paths.CatalogPath) == "" {
		return errors.New("paths.catalog_path must be set")
	}
	projects := filepath.Clean(c.Paths.ProjectsDir)
	staging := filepath.Clean(c.Paths.StagingDir)
	if projects == staging {
		return errors.New("paths.staging_dir must differ from paths.projects_dir")
	}
	if rel, err := filepath.Rel(projects, staging); err == nil && !strings.HasPrefix(rel, "..") {
		return errors.New("paths.staging_dir must not live inside paths.projects_dir")
	}
	return nil
}

func (c *Config) validateArchive() error {
	level := c.Archive.CompressionLevel
	if level < minCompressionLevel || level > maxCompressionLevel {
		return fmt.Errorf("archive.compression_level must be between %d and %d", minCompressionLevel, maxCompressionLevel)
	}
	return nil
}

func (c *Config) validateCache() error {
	scheme := c.Cache.HandleScheme
	if scheme == "" {
		return errors.New("cache.handle_scheme must be set")
	}
	for _, r := range scheme {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '+' && r != '-' && r != '.' {
			return fmt.Errorf("cache.handle_scheme %q contains invalid characters", scheme)
		}
	}
	if scheme[0] < 'a' || scheme[0] > 'z' {
		return fmt.Errorf("cache.handle_scheme %q must start with a letter", scheme)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
}
