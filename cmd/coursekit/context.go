package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"coursekit/internal/catalog"
	"coursekit/internal/config"
	"coursekit/internal/logging"
	"coursekit/internal/project"
	"coursekit/internal/studio"
)

type commandContext struct {
	configFlag *string
	jsonFlag   *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error
}

func newCommandContext(configFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		jsonFlag:   jsonFlag,
	}
}

// JSONMode reports whether --json was passed.
func (c *commandContext) JSONMode() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// ensureLogger writes CLI logs to a dated file so command output stays clean.
func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		logger, _, err := logging.ForConfig(cfg, time.Now())
		if err != nil {
			c.loggerErr = fmt.Errorf("create logger: %w", err)
			return
		}
		c.logger = logger
	})
	return c.logger, c.loggerErr
}

// operationContext tags the command context with an operation name and a
// fresh correlation id for log lines.
func operationContext(cmd *cobra.Command, op string) context.Context {
	ctx := logging.WithOperation(cmd.Context(), op)
	return logging.WithCorrelationID(ctx, uuid.NewString())
}

// withProjects opens the catalog and hands a project manager to fn.
func (c *commandContext) withProjects(fn func(*project.Manager, *slog.Logger) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return err
	}
	store, err := catalog.Open(cfg)
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	defer store.Close()
	return fn(project.NewManager(cfg, store, logger), logger)
}

// withSession opens an exclusive editing session on project id.
func (c *commandContext) withSession(ctx context.Context, id string, fn func(*studio.Session, *project.Manager) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	return c.withProjects(func(projects *project.Manager, logger *slog.Logger) error {
		session, _, err := studio.Open(ctx, projects, cfg, id, logger)
		if err != nil {
			return err
		}
		defer session.Close()
		return fn(session, projects)
	})
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
