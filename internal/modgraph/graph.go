package modgraph

import (
	"iter"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/specialistvlad/buildmeup/internal/action"
	"github.com/specialistvlad/buildmeup/internal/capability"
)

// Handle is a stable reference to a module in a Graph's arena.
type Handle int

// Root is the parent handle used to register a root module.
const Root Handle = -1

// Separator joins the names of a module lineage.
const Separator = ":"

var validName = regexp.MustCompile(`^[A-Za-z0-9._]+$`)

// Module is a single buildable unit.
type Module struct {
	// Name is the module's own name, unique among its siblings.
	Name string
	// Path locates the module's sources.
	Path string
	// Description is free text shown in listings and reports.
	Description string
	// Requires lists the capabilities the build action needs.
	Requires []capability.Requirement
	// Variables are declared by this module and visible to its subtree.
	Variables []Variable
	// Action produces the module's artifacts. A nil action builds nothing.
	Action action.Action
	// Tests check the module once it is installed.
	Tests []*action.Test

	handle   Handle
	parent   *Module
	children []*Module
}

// Handle returns the module's arena handle.
func (m *Module) Handle() Handle { return m.handle }

// Parent returns the parent module, or nil for a root.
func (m *Module) Parent() *Module { return m.parent }

// Children returns the child modules in declaration order.
func (m *Module) Children() []*Module { return slices.Clone(m.children) }

// FullName returns the ':'-joined lineage from the root to this module.
func (m *Module) FullName() string {
	parts := []string{m.Name}
	for p := m.parent; p != nil; p = p.parent {
		parts = append(parts, p.Name)
	}
	slices.Reverse(parts)
	return strings.Join(parts, Separator)
}

// IsDescendantOf reports whether m is strictly below other.
func (m *Module) IsDescendantOf(other *Module) bool {
	for p := m.parent; p != nil; p = p.parent {
		if p == other {
			return true
		}
	}
	return false
}

// Graph is the arena of all modules of a project. It is built once per run
// and is not safe for concurrent mutation; concurrent reads are fine once
// registration is complete.
type Graph struct {
	modules []*Module
	roots   []*Module
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{}
}

// Len returns the number of registered modules.
func (g *Graph) Len() int { return len(g.modules) }

// Module returns the module behind a handle.
func (g *Graph) Module(h Handle) (*Module, bool) {
	if h < 0 || int(h) >= len(g.modules) {
		return nil, false
	}
	return g.modules[h], true
}

// Roots returns the root modules in declaration order.
func (g *Graph) Roots() []*Module { return slices.Clone(g.roots) }

// Register adds a module under parent (Root for a root module).
func (g *Graph) Register(name, path, description string, parent Handle) (Handle, error) {
	if !validName.MatchString(name) {
		return 0, &InvalidModuleNameError{Name: name}
	}

	var p *Module
	siblings := g.roots
	if parent != Root {
		var ok bool
		if p, ok = g.Module(parent); !ok {
			return 0, &UnknownModuleError{Name: "#" + strconv.Itoa(int(parent))}
		}
		siblings = p.children
	}
	if findChild(siblings, name) != nil {
		return 0, &DuplicateModuleError{Parent: fullNameOf(p), Name: name}
	}

	m := &Module{
		Name:        name,
		Path:        path,
		Description: description,
		handle:      Handle(len(g.modules)),
		parent:      p,
	}
	g.modules = append(g.modules, m)
	if p == nil {
		g.roots = append(g.roots, m)
	} else {
		p.children = append(p.children, m)
	}
	return m.handle, nil
}

// Reparent moves h (with its subtree) under newParent. Moving a module under
// itself or one of its descendants is a CycleError.
func (g *Graph) Reparent(h, newParent Handle) error {
	m, ok := g.Module(h)
	if !ok {
		return &UnknownModuleError{Name: "#" + strconv.Itoa(int(h))}
	}

	var p *Module
	siblings := g.roots
	if newParent != Root {
		if p, ok = g.Module(newParent); !ok {
			return &UnknownModuleError{Name: "#" + strconv.Itoa(int(newParent))}
		}
		if p == m || p.IsDescendantOf(m) {
			return &CycleError{Module: m.FullName(), Parent: p.FullName()}
		}
		siblings = p.children
	}
	if m.parent == p {
		return nil
	}
	if findChild(siblings, m.Name) != nil {
		return &DuplicateModuleError{Parent: fullNameOf(p), Name: m.Name}
	}

	if m.parent == nil {
		g.roots = removeModule(g.roots, m)
	} else {
		m.parent.children = removeModule(m.parent.children, m)
	}
	m.parent = p
	if p == nil {
		g.roots = append(g.roots, m)
	} else {
		p.children = append(p.children, m)
	}
	return nil
}

// Lookup finds a module by its full ':'-separated name.
func (g *Graph) Lookup(fullName string) (*Module, bool) {
	if fullName == "" {
		return nil, false
	}
	var cur *Module
	level := g.roots
	for _, part := range strings.Split(fullName, Separator) {
		cur = findChild(level, part)
		if cur == nil {
			return nil, false
		}
		level = cur.children
	}
	return cur, true
}

// Traverse validates targets and returns a lazy pre-order sequence over the
// union of their subtrees. Each module is yielded at most once, parents
// before children, siblings in declaration order. With no targets, every
// root is requested. Targets are selectors, see Select.
func (g *Graph) Traverse(targets []string) (iter.Seq[*Module], error) {
	requested := make(map[*Module]bool)
	if len(targets) == 0 {
		for _, r := range g.roots {
			requested[r] = true
		}
	}
	for _, t := range targets {
		ms, err := g.Select(t)
		if err != nil {
			return nil, err
		}
		for _, m := range ms {
			requested[m] = true
		}
	}

	return func(yield func(*Module) bool) {
		var walk func(level []*Module, inside bool) bool
		walk = func(level []*Module, inside bool) bool {
			for _, m := range level {
				in := inside || requested[m]
				if in && !yield(m) {
					return false
				}
				// Only descend where a requested module can still be found.
				if in || hasRequestedBelow(m, requested) {
					if !walk(m.children, in) {
						return false
					}
				}
			}
			return true
		}
		walk(g.roots, false)
	}, nil
}

// Select returns the modules a selector names, in pre-order. A selector is
// a full name whose ':'-separated segments may be empty; an empty segment
// stands for any number of levels, including none. So "hello:" is hello and
// everything below it, ":tests" is every module named tests and "a::c" is
// every c somewhere below a. A selector without empty segments is a plain
// full name. Selecting nothing is an UnknownModuleError.
func (g *Graph) Select(selector string) ([]*Module, error) {
	pattern := strings.Split(selector, Separator)
	for i := range pattern {
		pattern[i] = strings.TrimSpace(pattern[i])
	}
	if !slices.Contains(pattern, "") {
		m, ok := g.Lookup(strings.Join(pattern, Separator))
		if !ok {
			return nil, &UnknownModuleError{Name: selector}
		}
		return []*Module{m}, nil
	}

	var out []*Module
	var walk func(level []*Module, lineage []string)
	walk = func(level []*Module, lineage []string) {
		for _, m := range level {
			names := append(slices.Clip(lineage), m.Name)
			if matchSegments(pattern, names) {
				out = append(out, m)
			}
			walk(m.children, names)
		}
	}
	walk(g.roots, nil)
	if len(out) == 0 {
		return nil, &UnknownModuleError{Name: selector}
	}
	return out, nil
}

// matchSegments matches a lineage against a selector pattern in which an
// empty segment matches zero or more names.
func matchSegments(pattern, names []string) bool {
	if len(pattern) == 0 {
		return len(names) == 0
	}
	if pattern[0] == "" {
		for i := 0; i <= len(names); i++ {
			if matchSegments(pattern[1:], names[i:]) {
				return true
			}
		}
		return false
	}
	return len(names) > 0 && pattern[0] == names[0] && matchSegments(pattern[1:], names[1:])
}

// Descendants returns every module strictly below m in pre-order.
func Descendants(m *Module) []*Module {
	var out []*Module
	var walk func(*Module)
	walk = func(n *Module) {
		for _, c := range n.children {
			out = append(out, c)
			walk(c)
		}
	}
	walk(m)
	return out
}

func hasRequestedBelow(m *Module, requested map[*Module]bool) bool {
	for r := range requested {
		if r.IsDescendantOf(m) {
			return true
		}
	}
	return false
}

func findChild(level []*Module, name string) *Module {
	for _, m := range level {
		if m.Name == name {
			return m
		}
	}
	return nil
}

func removeModule(level []*Module, m *Module) []*Module {
	return slices.DeleteFunc(level, func(x *Module) bool { return x == m })
}

func fullNameOf(m *Module) string {
	if m == nil {
		return ""
	}
	return m.FullName()
}
