// Package orchestrator drives a build: it resolves the target platform,
// registers the module tree, walks the requested part of it and, for every
// visited module, configures, builds and installs it.
//
// A module failure never stops the run. The failing module's descendants are
// skipped while unrelated subtrees carry on, and independent subtrees are
// processed in parallel up to the configured number of workers.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/specialistvlad/buildmeup/internal/action"
	"github.com/specialistvlad/buildmeup/internal/capability"
	"github.com/specialistvlad/buildmeup/internal/ctxlog"
	"github.com/specialistvlad/buildmeup/internal/events"
	"github.com/specialistvlad/buildmeup/internal/install"
	"github.com/specialistvlad/buildmeup/internal/modgraph"
	"github.com/specialistvlad/buildmeup/internal/platform"
	"github.com/specialistvlad/buildmeup/internal/statestore"
	"golang.org/x/sync/errgroup"
)

// Installer places artifacts. *install.Installer implements it.
type Installer interface {
	Install(ctx context.Context, a install.Artifact, profile platform.Profile) (install.Location, error)
}

// Options configures an Orchestrator.
type Options struct {
	// Probes checks capabilities by name. Every Build starts with an empty
	// capability cache.
	Probes map[string]capability.Probe
	// NewInstaller is called once per Build, so nothing the installer
	// caches outlives the run. Nil means artifacts cannot be installed.
	NewInstaller func() Installer
	// Workers bounds how many modules are processed at once. Values below
	// one mean one.
	Workers  int
	Clock    clock.Clock
	Reporter events.Reporter
}

// Orchestrator runs builds. One Orchestrator can serve several runs one
// after another or at once; capability results and artifact classifications
// are cached per run and never shared between runs.
type Orchestrator struct {
	probes       map[string]capability.Probe
	newInstaller func() Installer
	workers      int
	clock        clock.Clock
	reporter     events.Reporter
}

// New creates an orchestrator.
func New(opts Options) *Orchestrator {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Clock == nil {
		opts.Clock = clock.NewClock()
	}
	if opts.Reporter == nil {
		opts.Reporter = events.Nop{}
	}
	return &Orchestrator{
		probes:       opts.Probes,
		newInstaller: opts.NewInstaller,
		workers:      opts.Workers,
		clock:        opts.Clock,
		reporter:     opts.Reporter,
	}
}

// Request describes one run.
type Request struct {
	Project string
	// Root is the project directory; module paths are relative to it.
	Root      string
	Modules   []modgraph.Declaration
	Platforms platform.Table
	// Platform selects the profile by exact name or unambiguous prefix. An
	// empty selector picks the host's platform, else the first entry.
	Platform string
	// Overrides set TARGET_* platform variables and module variables. Other
	// keys are reported in Result.IgnoredVariables.
	Overrides map[string]string
	// Targets are module selectors; empty means every module.
	Targets []string
	// RunTests runs every installed module's tests.
	RunTests bool
}

// run is the state of one Build call.
type run struct {
	*Orchestrator
	req          Request
	profile      platform.Profile
	configurator *capability.Configurator
	installer    Installer
	store        *statestore.Store
	results      map[modgraph.Handle]*ModuleResult
	done         map[modgraph.Handle]chan struct{}
}

// Build runs req. Fatal problems (unknown platform, broken module tree,
// unknown target) are returned as errors before any module is touched.
// Module failures are reported in the Result instead. If ctx is cancelled
// the partial Result is returned together with the context's error.
func (o *Orchestrator) Build(ctx context.Context, req Request) (*Result, error) {
	logger := ctxlog.FromContext(ctx)

	selector := req.Platform
	if selector == "" {
		name, err := req.Platforms.DefaultName(ctx)
		if err != nil {
			return nil, err
		}
		selector = name
		logger.Debug("No platform selected, using default.", "platform", selector)
	}
	profile, unknown, err := req.Platforms.Resolve(selector, req.Overrides)
	if err != nil {
		return nil, err
	}

	g := modgraph.New()
	if err := g.RegisterDeclarations(req.Modules); err != nil {
		return nil, err
	}
	var ignored []string
	for _, k := range unknown {
		if !g.DeclaresVariable(k) {
			logger.Warn("Ignoring unrecognized variable.", "variable", k)
			ignored = append(ignored, k)
		}
	}
	seq, err := g.Traverse(req.Targets)
	if err != nil {
		return nil, err
	}

	ctx, logger = ctxlog.With(ctx, "project", req.Project, "platform", profile.Name())
	logger.Info("Starting build.", "modules", g.Len(), "targets", req.Targets, "workers", o.workers)

	r := &run{
		Orchestrator: o,
		req:          req,
		profile:      profile,
		configurator: capability.NewConfigurator(o.probes),
		store:        statestore.New(),
		results:      make(map[modgraph.Handle]*ModuleResult),
		done:         make(map[modgraph.Handle]chan struct{}),
	}
	if o.newInstaller != nil {
		r.installer = o.newInstaller()
	}

	var order []*modgraph.Module
	var eg errgroup.Group
	eg.SetLimit(o.workers)
	for m := range seq {
		order = append(order, m)
		mr := &ModuleResult{Name: m.FullName()}
		r.results[m.Handle()] = mr
		done := make(chan struct{})
		r.done[m.Handle()] = done

		// The parent, when it was visited at all, was yielded earlier.
		var parentDone chan struct{}
		if p := m.Parent(); p != nil {
			parentDone = r.done[p.Handle()]
		}

		eg.Go(func() error {
			defer close(done)
			r.process(ctx, m, parentDone, mr)
			return nil
		})
	}
	_ = eg.Wait()

	res := &Result{
		Project:          req.Project,
		Platform:         profile,
		Success:          true,
		IgnoredVariables: ignored,
	}
	for _, m := range order {
		mr := r.results[m.Handle()]
		res.Modules = append(res.Modules, *mr)
		res.Installed = append(res.Installed, mr.Installed...)
		if mr.Status != Built {
			res.Success = false
		}
	}

	counts := res.Counts()
	passed, failed := res.TestCounts()
	logger.Info("Build finished.",
		"success", res.Success,
		"built", counts[Built],
		"failed", counts[ConfigurationFailed]+counts[BuildFailed]+counts[InstallFailed]+counts[TestFailed],
		"skipped", counts[Skipped],
		"tests_passed", passed,
		"tests_failed", failed,
		"capability_checks", r.configurator.ProbeCount())

	if err := ctx.Err(); err != nil {
		return res, fmt.Errorf("build interrupted: %w", err)
	}
	return res, nil
}

// visit is one module being processed.
type visit struct {
	m     *modgraph.Module
	mr    *ModuleResult
	start time.Time
}

// process takes one module through its lifecycle. It never returns an error:
// every outcome is recorded in mr and the state store.
func (r *run) process(ctx context.Context, m *modgraph.Module, parentDone <-chan struct{}, mr *ModuleResult) {
	name := m.FullName()
	ctx, logger := ctxlog.With(ctx, "module", name)
	v := &visit{m: m, mr: mr}

	if parentDone != nil {
		<-parentDone
		if p := m.Parent(); r.store.State(p.Handle()) != statestore.Installed {
			r.finish(ctx, v, statestore.Skipped, Skipped, &ParentFailedError{Module: name, Parent: p.FullName()})
			return
		}
	}
	if err := ctx.Err(); err != nil {
		r.finish(ctx, v, statestore.Skipped, Skipped, err)
		return
	}

	v.start = r.clock.Now()
	r.move(ctx, v, statestore.Configuring, nil)
	cfg, err := r.configurator.Resolve(ctx, name, m.Requires, r.profile)
	if err != nil {
		r.finish(ctx, v, statestore.ConfigurationFailed, ConfigurationFailed, err)
		return
	}
	r.move(ctx, v, statestore.Configured, nil)

	r.move(ctx, v, statestore.Building, nil)
	var artifacts []install.Artifact
	if m.Action != nil {
		artifacts, err = m.Action.Build(ctx, r.env(m, cfg, logger))
		if err != nil {
			r.finish(ctx, v, statestore.BuildFailed, BuildFailed, &BuildActionError{Module: name, Err: err})
			return
		}
	}
	for i := range artifacts {
		if artifacts[i].Module == "" {
			artifacts[i].Module = name
		}
	}
	mr.Artifacts = artifacts
	r.move(ctx, v, statestore.Built, nil)

	r.move(ctx, v, statestore.Installing, nil)
	for _, a := range artifacts {
		if r.installer == nil {
			r.finish(ctx, v, statestore.InstallFailed, InstallFailed, errors.New("no installer configured"))
			return
		}
		loc, err := r.installer.Install(ctx, a, r.profile)
		if err != nil {
			r.finish(ctx, v, statestore.InstallFailed, InstallFailed, err)
			return
		}
		mr.Installed = append(mr.Installed, loc)
	}
	r.finish(ctx, v, statestore.Installed, Built, nil)

	if r.req.RunTests && len(m.Tests) > 0 {
		r.test(ctx, m, r.env(m, cfg, logger), mr)
	}
}

// test runs the tests of an installed module. Failures are recorded in mr
// and do not affect other modules: children only need their parent
// installed.
func (r *run) test(ctx context.Context, m *modgraph.Module, env *action.Env, mr *ModuleResult) {
	logger := env.Logger
	for _, t := range m.Tests {
		start := r.clock.Now()
		err := t.Run(ctx, env)
		tr := TestResult{Name: t.Name, Passed: err == nil, Duration: r.clock.Since(start)}
		if err != nil {
			tr.Err = &TestFailedError{Module: mr.Name, Test: t.Name, Err: err}
			logger.Warn("Test failed.", "test", t.Name, "error", err)
		} else {
			logger.Info("Test passed.", "test", t.Name)
		}
		mr.Tests = append(mr.Tests, tr)
	}
	for _, tr := range mr.Tests {
		if !tr.Passed {
			mr.Status = TestFailed
			mr.Err = tr.Err
			return
		}
	}
}

// env describes m to its build action and tests.
func (r *run) env(m *modgraph.Module, cfg *capability.Context, logger *slog.Logger) *action.Env {
	return &action.Env{
		Module:    m.FullName(),
		Path:      m.Path,
		Dir:       r.moduleDir(m),
		Context:   cfg,
		Variables: m.VariableValues(r.req.Overrides),
		Logger:    logger,
	}
}

func (r *run) moduleDir(m *modgraph.Module) string {
	if m.Path == "" {
		return r.req.Root
	}
	if filepath.IsAbs(m.Path) {
		return m.Path
	}
	return filepath.Join(r.req.Root, filepath.FromSlash(m.Path))
}

// finish records the module's terminal state.
func (r *run) finish(ctx context.Context, v *visit, state statestore.State, status Status, err error) {
	v.mr.Status = status
	v.mr.Err = err
	if !v.start.IsZero() {
		v.mr.Duration = r.clock.Since(v.start)
	}
	r.move(ctx, v, state, err)
}

// move records a transition and publishes it. Transitions are only made
// from the goroutine that owns the module, so a refused transition is a bug.
func (r *run) move(ctx context.Context, v *visit, to statestore.State, cause error) {
	if err := r.store.Transition(v.m.Handle(), to, cause); err != nil {
		panic(err)
	}
	ev := events.Event{
		Project:  r.req.Project,
		Platform: r.profile.Name(),
		Module:   v.mr.Name,
		State:    to,
		Err:      cause,
		Time:     r.clock.Now(),
	}
	if to.Terminal() {
		ev.Duration = v.mr.Duration
	}
	r.reporter.ModuleState(ctx, ev)
}
