// Package project loads a build project from HCL files: its platform table,
// capability probes, module tree and install configuration.
package project

import (
	"github.com/specialistvlad/buildmeup/internal/capability"
	"github.com/specialistvlad/buildmeup/internal/install"
	"github.com/specialistvlad/buildmeup/internal/modgraph"
	"github.com/specialistvlad/buildmeup/internal/platform"
)

// ModuleFileName is the collaborator file read from a module's directory.
const ModuleFileName = "module.hcl"

// Project is a fully decoded project.
type Project struct {
	Name string
	// Root is the absolute project directory. Module paths are relative to it.
	Root string
	// DefaultPlatform is the selector used when the caller gives none.
	DefaultPlatform string
	// Platforms is the builtin table unless the project declares its own.
	Platforms platform.Table
	Probes    map[string]capability.Probe
	Modules   []modgraph.Declaration
	Install   Install
	Classify  Classify
	// Files lists every file that was read, in reading order.
	Files []string
}

// Install is the project's install block.
type Install struct {
	// Kind is one of install.Kinds; empty means not set.
	Kind string
	// Prefix is absolute; empty means not set.
	Prefix string
	// Rules are appended to the defaults of the chosen kind.
	Rules install.RuleSet
}

// Classify holds the project's extra classification rules, which are tried
// before the defaults.
type Classify struct {
	Rules       []install.ClassifyRule
	DefaultType install.ArtifactType
}

// ClassifyRules returns the project rules followed by the defaults.
func (c Classify) ClassifyRules() []install.ClassifyRule {
	return append(append([]install.ClassifyRule(nil), c.Rules...), install.DefaultClassifyRules()...)
}

// ModuleNames lists the full names of all declared modules in declaration
// order, inline children after their parent.
func (p *Project) ModuleNames() []string {
	var out []string
	var walk func(prefix string, decls []modgraph.Declaration)
	walk = func(prefix string, decls []modgraph.Declaration) {
		for _, d := range decls {
			name := d.Name
			switch {
			case prefix != "":
				name = prefix + modgraph.Separator + d.Name
			case d.Parent != "":
				name = d.Parent + modgraph.Separator + d.Name
			}
			out = append(out, name)
			walk(name, d.Children)
		}
	}
	walk("", p.Modules)
	return out
}
