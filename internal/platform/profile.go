// Package platform describes the target environments a project can be built
// for. A Profile is an immutable bundle of TARGET_* variables; a Table is the
// ordered set of profiles a project declares.
//
// Profiles are either static (variables come from the table) or custom (the
// table entry carries no variables and every required TARGET_* key must be
// supplied as an override).
package platform

import (
	"maps"
	"slices"
)

// Target component keys recognized as profile variables, in the order they
// are reported.
const (
	KeyVendor          = "TARGET_VENDOR"
	KeyArchType        = "TARGET_ARCH_TYPE"
	KeyArch            = "TARGET_ARCH"
	KeyOSType          = "TARGET_OS_TYPE"
	KeyOS              = "TARGET_OS"
	KeyOSVersion       = "TARGET_OS_VERSION"
	KeyOSKernel        = "TARGET_OS_KERNEL"
	KeyOSKernelVersion = "TARGET_OS_KERNEL_VERSION"
	KeyABI             = "TARGET_ABI"
	KeyLibC            = "TARGET_LIBC"
	KeyObjectFormat    = "TARGET_OBJFMT"
	KeySupport         = "TARGET_SUPPORT"
)

// CustomName is the conventional name of the custom platform entry.
const CustomName = "Custom"

// ComponentKeys lists every recognized TARGET_* key.
var ComponentKeys = []string{
	KeyVendor,
	KeyArchType,
	KeyArch,
	KeyOSType,
	KeyOS,
	KeyOSVersion,
	KeyOSKernel,
	KeyOSKernelVersion,
	KeyABI,
	KeyLibC,
	KeyObjectFormat,
	KeySupport,
}

// RequiredKeys are the keys a custom profile cannot be resolved without.
var RequiredKeys = []string{
	KeyArchType,
	KeyArch,
	KeyOSType,
	KeyOS,
	KeyOSKernel,
	KeyObjectFormat,
	KeySupport,
}

// IsComponentKey reports whether key is a recognized TARGET_* variable.
func IsComponentKey(key string) bool {
	return slices.Contains(ComponentKeys, key)
}

// Profile is a resolved, immutable target environment.
type Profile struct {
	name        string
	description string
	variables   map[string]string
	custom      bool
}

// NewProfile builds a profile, copying vars so later mutation of the caller's
// map cannot leak in.
func NewProfile(name, description string, vars map[string]string, custom bool) Profile {
	return Profile{
		name:        name,
		description: description,
		variables:   maps.Clone(vars),
		custom:      custom,
	}
}

// Name returns the profile name as declared in the platform table.
func (p Profile) Name() string { return p.name }

// Description returns the human readable description.
func (p Profile) Description() string { return p.description }

// IsCustom reports whether the variables came from external overrides.
func (p Profile) IsCustom() bool { return p.custom }

// Variables returns a copy of the profile variables.
func (p Profile) Variables() map[string]string {
	out := maps.Clone(p.variables)
	if out == nil {
		out = map[string]string{}
	}
	return out
}

// Var returns a single variable and whether it is set to a non-empty value.
func (p Profile) Var(key string) (string, bool) {
	v, ok := p.variables[key]
	return v, ok && v != ""
}

// Entry is one row of a platform table. A nil Variables map marks the entry
// as custom.
type Entry struct {
	Name        string
	Description string
	Variables   map[string]string
}

// Custom reports whether the entry expects externally supplied variables.
func (e Entry) Custom() bool { return e.Variables == nil }

// Table is an ordered list of platform entries. Order matters: it decides the
// fallback default platform.
type Table []Entry

// Names returns the entry names in declaration order.
func (t Table) Names() []string {
	names := make([]string, 0, len(t))
	for _, e := range t {
		names = append(names, e.Name)
	}
	return names
}

// Lookup returns the entry with exactly the given name.
func (t Table) Lookup(name string) (Entry, bool) {
	for _, e := range t {
		if e.Name == name {
			return e, true
		}
	}
	return Entry{}, false
}
