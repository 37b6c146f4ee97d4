// Package capability decides which tools, libraries and platform features a
// module can rely on.
//
// A capability is a name bound to a Probe. The Configurator resolves the
// capabilities a module requires against the active platform profile and
// memoizes every probe result per (platform, capability): a probe runs the
// first time any module asks for it and never again during the run, even
// when many modules ask concurrently.
package capability

import (
	"context"
	"fmt"
	"maps"

	"github.com/specialistvlad/buildmeup/internal/platform"
)

// Status is the tagged result of probing a capability.
type Status struct {
	Available bool
	// Details describes what was found (a path, a version) or why the
	// capability is unavailable.
	Details string
}

// Available builds an available status.
func Available(details string) Status { return Status{Available: true, Details: details} }

// Unavailable builds an unavailable status.
func Unavailable(reason string) Status { return Status{Details: reason} }

func (s Status) String() string {
	if s.Available {
		return "available(" + s.Details + ")"
	}
	return "unavailable(" + s.Details + ")"
}

// Requirement is a capability a module's build action declares.
type Requirement struct {
	Name     string
	Optional bool
}

// Probe checks whether a capability is present for a platform.
type Probe interface {
	Probe(ctx context.Context, profile platform.Profile) (Status, error)
}

// ProbeFunc adapts a function to the Probe interface.
type ProbeFunc func(ctx context.Context, profile platform.Profile) (Status, error)

// Probe implements Probe.
func (f ProbeFunc) Probe(ctx context.Context, profile platform.Profile) (Status, error) {
	return f(ctx, profile)
}

// Context is the resolved configuration a module builds against.
type Context struct {
	Profile      platform.Profile
	Capabilities map[string]Status
}

// Has reports whether a capability was resolved as available.
func (c *Context) Has(name string) bool {
	return c.Capabilities[name].Available
}

// Details returns the details recorded for a capability.
func (c *Context) Details(name string) string {
	return c.Capabilities[name].Details
}

func (c *Context) clone() *Context {
	return &Context{Profile: c.Profile, Capabilities: maps.Clone(c.Capabilities)}
}

// ConfigurationError is returned when a required capability is unavailable.
type ConfigurationError struct {
	Module     string
	Capability string
	Details    string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("module %q: required capability %q unavailable: %s", e.Module, e.Capability, e.Details)
}
