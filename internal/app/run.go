package app

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/specialistvlad/buildmeup/internal/ctxlog"
	"github.com/specialistvlad/buildmeup/internal/events"
	"github.com/specialistvlad/buildmeup/internal/install"
	"github.com/specialistvlad/buildmeup/internal/orchestrator"
	"github.com/specialistvlad/buildmeup/internal/report"
)

// DefaultPrefixDir is the sandbox prefix, relative to the project root, used
// when neither the command line nor the project sets one.
const DefaultPrefixDir = "out"

// Run builds the configured targets, writes the report and returns the
// result. Module failures are part of the result; the error is reserved
// for fatal problems. With ListModules set it prints the module tree
// instead and returns a nil result.
func (a *App) Run(ctx context.Context) (*orchestrator.Result, error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	if a.config.ListModules {
		return nil, a.ListModules(ctx)
	}

	newInstaller, err := a.installer()
	if err != nil {
		return nil, err
	}
	reporter, closeReporter := a.reporter(ctx)
	defer closeReporter()

	orch := orchestrator.New(orchestrator.Options{
		Probes:       a.project.Probes,
		NewInstaller: newInstaller,
		Workers:      a.config.Workers,
		Clock:        a.clock,
		Reporter:     reporter,
	})

	selector := a.config.Platform
	if selector == "" {
		selector = a.project.DefaultPlatform
	}
	res, buildErr := orch.Build(ctx, orchestrator.Request{
		Project:   a.project.Name,
		Root:      a.project.Root,
		Modules:   a.project.Modules,
		Platforms: a.project.Platforms,
		Platform:  selector,
		Overrides: a.config.Overrides,
		Targets:   a.config.Targets,
		RunTests:  a.config.RunTests,
	})
	if res == nil {
		return nil, buildErr
	}

	doc := report.New(res)
	if err := report.Write(a.outW, a.config.ReportFormat, doc); err != nil {
		return res, fmt.Errorf("failed to write report: %w", err)
	}
	if a.config.ReportDB != "" {
		if err := a.record(ctx, doc); err != nil {
			return res, err
		}
	}

	a.logger.Debug("App.Run method finished.")
	return res, buildErr
}

// installer assembles the installer from the command line and the project's
// install block. The command line wins. Each call of the returned function
// gives a fresh installer with an empty classification cache.
func (a *App) installer() (func() orchestrator.Installer, error) {
	kind := a.config.InstallKind
	if kind == "" {
		kind = a.project.Install.Kind
	}
	if kind == "" {
		kind = install.KindSandbox
	}
	rules, err := install.DefaultRules(kind)
	if err != nil {
		return nil, err
	}
	rules = append(rules, a.project.Install.Rules...)

	prefix := a.config.Prefix
	if prefix == "" {
		prefix = a.project.Install.Prefix
	}
	if prefix == "" {
		prefix = filepath.Join(a.project.Root, DefaultPrefixDir)
	}
	prefix, err = filepath.Abs(prefix)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("Installer configured.", "kind", kind, "prefix", prefix, "rules", len(rules))

	src := osfs.New(a.project.Root)
	vars := install.DefaultVars(prefix, a.project.Name)
	return func() orchestrator.Installer {
		return install.NewInstaller(install.Options{
			Source:     src,
			Dest:       a.dest,
			Classifier: install.NewClassifier(src, a.project.Classify.ClassifyRules(), a.project.Classify.DefaultType),
			Rules:      rules,
			Vars:       vars,
		})
	}, nil
}

// reporter returns the module state reporter and a function releasing it.
// An unreachable events server is logged and otherwise ignored.
func (a *App) reporter(ctx context.Context) (events.Reporter, func()) {
	if a.config.EventsURL == "" {
		return events.LogReporter{}, func() {}
	}
	sio, err := events.DialSocketIO(ctx, events.SocketIOOptions{URL: a.config.EventsURL})
	if err != nil {
		a.logger.Warn("Event server unavailable, continuing without it.", "url", a.config.EventsURL, "error", err)
		return events.LogReporter{}, func() {}
	}
	return events.Multi{events.LogReporter{}, sio}, func() {
		if err := sio.Close(); err != nil {
			a.logger.Debug("Closing event connection failed.", "error", err)
		}
	}
}

func (a *App) record(ctx context.Context, doc report.Document) error {
	h, err := report.OpenHistory(ctx, a.config.ReportDB)
	if err != nil {
		return err
	}
	defer h.Close()
	id, err := h.Record(ctx, doc, a.clock.Now())
	if err != nil {
		return fmt.Errorf("failed to record build history: %w", err)
	}
	a.logger.Info("Build recorded.", "db", a.config.ReportDB, "run", id)
	return nil
}
