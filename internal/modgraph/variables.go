package modgraph

import "slices"

// Variable is a module setting that can be changed from the command line.
// A variable declared by a module is visible to its whole subtree; a
// descendant declaring the same name shadows it.
type Variable struct {
	Name        string
	Default     string
	Description string
}

// VariableValues returns the variables visible to m, each taken from
// overrides when set there and from the nearest declaration otherwise.
func (m *Module) VariableValues(overrides map[string]string) map[string]string {
	var lineage []*Module
	for n := m; n != nil; n = n.parent {
		lineage = append(lineage, n)
	}
	slices.Reverse(lineage)

	out := make(map[string]string)
	for _, n := range lineage {
		for _, v := range n.Variables {
			out[v.Name] = v.Default
		}
	}
	for k := range out {
		if v, ok := overrides[k]; ok {
			out[k] = v
		}
	}
	return out
}

// DeclaresVariable reports whether any module of g declares name.
func (g *Graph) DeclaresVariable(name string) bool {
	for _, m := range g.modules {
		for _, v := range m.Variables {
			if v.Name == name {
				return true
			}
		}
	}
	return false
}
