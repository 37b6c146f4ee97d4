package capability

import (
	"context"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/specialistvlad/buildmeup/internal/ctxlog"
	"github.com/specialistvlad/buildmeup/internal/platform"
	"golang.org/x/sync/singleflight"
)

// Configurator resolves module requirements into configuration contexts.
// It is safe for concurrent use; all of its caches are append-only.
type Configurator struct {
	probes map[string]Probe

	// results holds one Status per "<platform>\x00<capability>".
	results sync.Map
	// contexts holds one *Context per "<platform>\x00<sorted capability set>".
	contexts sync.Map
	group    singleflight.Group

	probeCount atomic.Int64
}

// NewConfigurator creates a configurator with the given probes keyed by
// capability name.
func NewConfigurator(probes map[string]Probe) *Configurator {
	p := make(map[string]Probe, len(probes))
	for k, v := range probes {
		p[k] = v
	}
	return &Configurator{probes: p}
}

// ProbeCount returns how many probes have actually run.
func (c *Configurator) ProbeCount() int64 {
	return c.probeCount.Load()
}

// Resolve probes (or recalls) every requirement of module for profile. When a
// required capability is unavailable the returned error is a
// *ConfigurationError; the context is still returned so callers can report
// what was found.
func (c *Configurator) Resolve(ctx context.Context, module string, reqs []Requirement, profile platform.Profile) (*Context, error) {
	logger := ctxlog.FromContext(ctx).With("module", module, "platform", profile.Name())

	names := make([]string, 0, len(reqs))
	for _, r := range reqs {
		names = append(names, r.Name)
	}
	slices.Sort(names)
	names = slices.Compact(names)

	ctxKey := profile.Name() + "\x00" + strings.Join(names, ",")
	if cached, ok := c.contexts.Load(ctxKey); ok {
		logger.Debug("Configuration context recalled from cache.")
		resolved := cached.(*Context).clone()
		return resolved, c.check(module, reqs, resolved)
	}

	resolved := &Context{Profile: profile, Capabilities: make(map[string]Status, len(names))}
	for _, name := range names {
		st, err := c.status(ctx, name, profile)
		if err != nil {
			// Only cancellation escapes status; the run is stopping.
			return nil, err
		}
		resolved.Capabilities[name] = st
	}
	actual, _ := c.contexts.LoadOrStore(ctxKey, resolved)
	resolved = actual.(*Context).clone()
	return resolved, c.check(module, reqs, resolved)
}

func (c *Configurator) check(module string, reqs []Requirement, resolved *Context) error {
	for _, r := range reqs {
		if r.Optional {
			continue
		}
		if st := resolved.Capabilities[r.Name]; !st.Available {
			return &ConfigurationError{Module: module, Capability: r.Name, Details: st.Details}
		}
	}
	return nil
}

// status returns the memoized status of one capability, probing it on the
// first request. Concurrent first requests for the same key share a single
// probe.
func (c *Configurator) status(ctx context.Context, name string, profile platform.Profile) (Status, error) {
	key := profile.Name() + "\x00" + name
	if st, ok := c.results.Load(key); ok {
		return st.(Status), nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		if st, ok := c.results.Load(key); ok {
			return st, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		st := c.probe(ctx, name, profile)
		c.results.Store(key, st)
		return st, nil
	})
	if err != nil {
		return Status{}, err
	}
	return v.(Status), nil
}

func (c *Configurator) probe(ctx context.Context, name string, profile platform.Profile) Status {
	logger := ctxlog.FromContext(ctx).With("capability", name, "platform", profile.Name())

	p, ok := c.probes[name]
	if !ok {
		logger.Warn("No probe declared for capability.")
		return Unavailable("no probe declared")
	}

	c.probeCount.Add(1)
	st, err := p.Probe(ctx, profile)
	if err != nil {
		logger.Warn("Capability probe failed.", "error", err)
		return Unavailable(err.Error())
	}
	logger.Debug("Capability probed.", "available", st.Available, "details", st.Details)
	return st
}
