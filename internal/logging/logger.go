package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"coursekit/internal/config"
)

// DailyFilePattern matches the files created by ForConfig.
const DailyFilePattern = "coursekit-*.log"

// Options describes logger construction parameters.
type Options struct {
	Level  string
	Format string
	// Outputs lists file paths or the names "stdout" and "stderr". An empty
	// list logs to stderr.
	Outputs []string
	// Source adds file:line to every record. Debug level turns it on too.
	Source bool
}

// New constructs a slog logger writing to every output in opts.
func New(opts Options) (*slog.Logger, error) {
	level := parseLevel(opts.Level)
	w, err := openOutputs(opts.Outputs)
	if err != nil {
		return nil, err
	}
	source := opts.Source || level <= slog.LevelDebug

	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "", "console":
		return slog.New(newConsoleHandler(w, level, source)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, jsonOptions(level, source))), nil
	default:
		return nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
	}
}

// DailyFileName returns the log file name used for day t.
func DailyFileName(t time.Time) string {
	return "coursekit-" + t.Format("20060102") + ".log"
}

// ForConfig opens the log file for day now below cfg.Paths.LogDir and prunes
// daily files older than the configured retention. It returns the logger
// and the path it writes to.
func ForConfig(cfg *config.Config, now time.Time) (*slog.Logger, string, error) {
	if cfg == nil || strings.TrimSpace(cfg.Paths.LogDir) == "" {
		logger, err := New(Options{Level: "info"})
		return logger, "", err
	}
	path := filepath.Join(cfg.Paths.LogDir, DailyFileName(now))
	logger, err := New(Options{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		Outputs: []string{path},
	})
	if err != nil {
		return nil, "", err
	}
	PruneLogs(logger, cfg.Paths.LogDir, DailyFilePattern, cfg.Logging.RetentionDays, now, path)
	return logger, path, nil
}

// parseLevel accepts the slog level names in any case. Unknown names log at info.
func parseLevel(name string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(name))); err != nil {
		return slog.LevelInfo
	}
	return level
}

func openOutputs(outputs []string) (io.Writer, error) {
	if len(outputs) == 0 {
		return os.Stderr, nil
	}
	var writers []io.Writer
	opened := make(map[string]bool, len(outputs))
	for _, out := range outputs {
		out = strings.TrimSpace(out)
		if out == "" || opened[out] {
			continue
		}
		opened[out] = true
		switch out {
		case "stdout":
			writers = append(writers, os.Stdout)
		case "stderr":
			writers = append(writers, os.Stderr)
		default:
			if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
				return nil, fmt.Errorf("create log directory: %w", err)
			}
			f, err := os.OpenFile(out, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return nil, fmt.Errorf("open log file %s: %w", out, err)
			}
			writers = append(writers, f)
		}
	}
	switch len(writers) {
	case 0:
		return os.Stderr, nil
	case 1:
		return writers[0], nil
	}
	return io.MultiWriter(writers...), nil
}

// jsonOptions renames the built-in keys to ts/level/msg, lowercases the
// level and shortens source paths to the file name.
func jsonOptions(level slog.Level, source bool) *slog.HandlerOptions {
	return &slog.HandlerOptions{
		Level:     level,
		AddSource: source,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) > 0 {
				return a
			}
			switch a.Key {
			case slog.TimeKey:
				return slog.String("ts", a.Value.Time().UTC().Format(time.RFC3339))
			case slog.LevelKey:
				return slog.String("level", strings.ToLower(a.Value.String()))
			case slog.SourceKey:
				if src, ok := a.Value.Any().(*slog.Source); ok && src != nil {
					return slog.String("source", fmt.Sprintf("%s:%d", filepath.Base(src.File), src.Line))
				}
			}
			return a
		},
	}
}
