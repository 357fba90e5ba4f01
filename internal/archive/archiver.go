package archive

import (
	"log/slog"

	"coursekit/internal/config"
	"coursekit/internal/course"
	"coursekit/internal/logging"
	"coursekit/internal/project"
)

// Phase names a stage of an export or import.
type Phase string

const (
	PhaseInspect  Phase = "inspect"
	PhaseMedia    Phase = "media"
	PhaseFinalize Phase = "finalize"
)

// Progress is reported after each unit of work.
type Progress struct {
	Phase   Phase
	Done    int
	Total   int
	MediaID string
}

// ProgressFunc receives progress updates. It runs on the calling goroutine.
type ProgressFunc func(Progress)

// Summary describes a finished export or import.
type Summary struct {
	ProjectID   string
	Name        string
	MediaCount  int
	RemoteCount int
	Bytes       int64
	Skipped     []string
	Corrections []course.Correction
}

// Archiver moves projects in and out of zip archives.
type Archiver struct {
	projects *project.Manager
	cfg      *config.Config
	logger   *slog.Logger
	progress ProgressFunc
}

// Option configures an Archiver.
type Option func(*Archiver)

// WithProgress installs a progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(a *Archiver) { a.progress = fn }
}

// New returns an archiver for the projects managed by projects. A nil cfg
// uses the configuration of projects, so imports stage next to the projects
// directory they are installed into.
func New(projects *project.Manager, cfg *config.Config, logger *slog.Logger, opts ...Option) *Archiver {
	if cfg == nil {
		cfg = projects.Config()
	}
	a := &Archiver{
		projects: projects,
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "archive"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Archiver) report(phase Phase, done, total int, id string) {
	if a.progress != nil {
		a.progress(Progress{Phase: phase, Done: done, Total: total, MediaID: id})
	}
}
