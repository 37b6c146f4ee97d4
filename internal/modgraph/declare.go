package modgraph

import (
	"github.com/specialistvlad/buildmeup/internal/action"
	"github.com/specialistvlad/buildmeup/internal/capability"
)

// Declaration is the static description of a module as found in the
// project's module table. Children are declared inline; a declaration can
// instead name its parent by full name, in which case it is attached once
// that parent exists.
type Declaration struct {
	Name        string
	Path        string
	Description string
	Parent      string
	Requires    []capability.Requirement
	Variables   []Variable
	Action      action.Action
	Tests       []*action.Test
	Children    []Declaration
}

// RegisterDeclarations registers decls (and their inline children) into g.
// Declarations naming a Parent are attached after everything else, in as
// many rounds as needed. Parent names are full names, so every link of a
// parent chain is strictly shorter than the module it places and a chain
// cannot loop; a parent that never appears is UnknownModuleError.
func (g *Graph) RegisterDeclarations(decls []Declaration) error {
	var deferred []Declaration
	for _, d := range decls {
		if d.Parent != "" {
			deferred = append(deferred, d)
			continue
		}
		if err := g.registerTree(d, Root); err != nil {
			return err
		}
	}

	for len(deferred) > 0 {
		var next []Declaration
		for _, d := range deferred {
			p, ok := g.Lookup(d.Parent)
			if !ok {
				next = append(next, d)
				continue
			}
			if err := g.registerTree(d, p.handle); err != nil {
				return err
			}
		}
		if len(next) == len(deferred) {
			return unresolvedParents(next)
		}
		deferred = next
	}
	return nil
}

func (g *Graph) registerTree(d Declaration, parent Handle) error {
	h, err := g.Register(d.Name, d.Path, d.Description, parent)
	if err != nil {
		return err
	}
	m := g.modules[h]
	m.Requires = d.Requires
	m.Variables = d.Variables
	m.Action = d.Action
	m.Tests = d.Tests
	for _, c := range d.Children {
		if c.Parent != "" {
			// An inline child is already placed by nesting.
			c.Parent = ""
		}
		if err := g.registerTree(c, h); err != nil {
			return err
		}
	}
	return nil
}

// unresolvedParents names the parent that blocks the pending declarations:
// the first one that no pending declaration would create either.
func unresolvedParents(pending []Declaration) error {
	provided := make(map[string]bool, len(pending))
	for _, d := range pending {
		provided[d.Parent+Separator+d.Name] = true
	}
	for _, d := range pending {
		if !provided[d.Parent] {
			return &UnknownModuleError{Name: d.Parent}
		}
	}
	return &UnknownModuleError{Name: pending[0].Parent}
}
