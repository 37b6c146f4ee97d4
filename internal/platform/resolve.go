package platform

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shirou/gopsutil/v3/host"
)

// UnresolvedPlatformError is returned when a platform selector does not
// identify exactly one table entry.
type UnresolvedPlatformError struct {
	Selector   string
	Ambiguous  bool
	Candidates []string
}

func (e *UnresolvedPlatformError) Error() string {
	if e.Ambiguous {
		return fmt.Sprintf("ambiguous target platform %q (candidates: %s)", e.Selector, strings.Join(e.Candidates, ", "))
	}
	return fmt.Sprintf("unknown target platform %q (known: %s)", e.Selector, strings.Join(e.Candidates, ", "))
}

// MissingPlatformVariableError is returned when a custom profile lacks one
// or more required TARGET_* variables.
type MissingPlatformVariableError struct {
	Platform string
	Missing  []string
}

func (e *MissingPlatformVariableError) Error() string {
	return fmt.Sprintf("platform %q is missing required variables: %s", e.Platform, strings.Join(e.Missing, ", "))
}

// MatchName resolves selector against the table names. An exact name always
// wins; otherwise the selector must be an unambiguous prefix, matched
// case-sensitively first and case-insensitively second.
func (t Table) MatchName(selector string) (string, error) {
	names := t.Names()
	if selector == "" {
		return "", &UnresolvedPlatformError{Selector: selector, Candidates: names}
	}
	for _, n := range names {
		if n == selector {
			return n, nil
		}
	}

	var exact, folded []string
	for _, n := range names {
		switch {
		case strings.HasPrefix(n, selector):
			exact = append(exact, n)
		case strings.HasPrefix(strings.ToUpper(n), strings.ToUpper(selector)):
			folded = append(folded, n)
		}
	}
	switch {
	case len(exact) == 1:
		return exact[0], nil
	case len(exact) > 1:
		return "", &UnresolvedPlatformError{Selector: selector, Ambiguous: true, Candidates: exact}
	case len(folded) == 1:
		return folded[0], nil
	case len(folded) > 1:
		return "", &UnresolvedPlatformError{Selector: selector, Ambiguous: true, Candidates: folded}
	}
	return "", &UnresolvedPlatformError{Selector: selector, Candidates: names}
}

// Resolve turns a selector plus externally supplied overrides into a
// profile. Override keys that are not TARGET_* components are returned in
// ignored (sorted) and otherwise have no effect.
func (t Table) Resolve(selector string, overrides map[string]string) (Profile, []string, error) {
	name, err := t.MatchName(selector)
	if err != nil {
		return Profile{}, nil, err
	}
	entry, _ := t.Lookup(name)

	recognized := make(map[string]string)
	var ignored []string
	for k, v := range overrides {
		if IsComponentKey(k) {
			recognized[k] = v
			continue
		}
		ignored = append(ignored, k)
	}
	sort.Strings(ignored)

	if entry.Custom() {
		var missing []string
		for _, k := range RequiredKeys {
			if recognized[k] == "" {
				missing = append(missing, k)
			}
		}
		if len(missing) > 0 {
			return Profile{}, ignored, &MissingPlatformVariableError{Platform: entry.Name, Missing: missing}
		}
		return NewProfile(entry.Name, entry.Description, recognized, true), ignored, nil
	}

	vars := make(map[string]string, len(entry.Variables)+len(recognized))
	for k, v := range entry.Variables {
		vars[k] = v
	}
	for k, v := range recognized {
		vars[k] = v
	}
	return NewProfile(entry.Name, entry.Description, vars, false), ignored, nil
}

// hostInfo is swapped in tests.
var hostInfo = host.InfoWithContext

// DefaultName picks the platform a build targets when none is requested: the
// entry matching the host operating system (case-insensitively), or the
// first entry of the table.
func (t Table) DefaultName(ctx context.Context) (string, error) {
	if len(t) == 0 {
		return "", &UnresolvedPlatformError{Selector: "<default>"}
	}
	if info, err := hostInfo(ctx); err == nil && info != nil {
		for _, e := range t {
			if strings.EqualFold(e.Name, info.OS) {
				return e.Name, nil
			}
		}
	}
	return t[0].Name, nil
}
