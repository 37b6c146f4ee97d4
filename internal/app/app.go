package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"code.cloudfoundry.org/clock"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/specialistvlad/buildmeup/internal/action"
	"github.com/specialistvlad/buildmeup/internal/ctxlog"
	"github.com/specialistvlad/buildmeup/internal/project"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW    io.Writer
	logger  *slog.Logger
	config  *Config
	project *project.Project
	actions *action.Registry
	clock   clock.Clock
	dest    billy.Filesystem
}

// Option customizes an App.
type Option func(*App)

// WithClock replaces the wall clock used for durations and history.
func WithClock(c clock.Clock) Option {
	return func(a *App) { a.clock = c }
}

// WithDestination replaces the filesystem artifacts are installed into. The
// default is the host filesystem rooted at "/".
func WithDestination(fs billy.Filesystem) Option {
	return func(a *App) { a.dest = fs }
}

// WithActions replaces the registry of build kinds.
func WithActions(reg *action.Registry) Option {
	return func(a *App) { a.actions = reg }
}

// NewApp is the constructor for the main application. The report goes to
// outW and log lines to logW. The project is loaded here, so a broken
// project is reported before anything runs.
func NewApp(ctx context.Context, outW, logW io.Writer, cfg *Config, opts ...Option) (*App, error) {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, logW)
	ctx = ctxlog.WithLogger(ctx, logger)
	logger.Debug("Logger configured successfully.")

	a := &App{
		outW:    outW,
		logger:  logger,
		config:  cfg,
		actions: action.DefaultRegistry(),
		clock:   clock.NewClock(),
		dest:    osfs.New("/"),
	}
	for _, opt := range opts {
		opt(a)
	}

	proj, err := project.NewLoader(a.actions).WithOverrides(cfg.Overrides).Load(ctx, cfg.ProjectPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load project: %w", err)
	}
	a.project = proj
	logger.Debug("Project loaded.", "project", proj.Name, "root", proj.Root, "files", len(proj.Files))

	return a, nil
}

// Project returns the loaded project. This is primarily for testing.
func (a *App) Project() *project.Project {
	return a.project
}
