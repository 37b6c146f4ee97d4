package app

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/specialistvlad/buildmeup/internal/ctxlog"
	"github.com/specialistvlad/buildmeup/internal/modgraph"
)

// ListModules prints the project's module tree, one full name per line,
// indented by depth, with the module path and description. Each module's
// variables follow it as -D NAME=DEFAULT lines.
func (a *App) ListModules(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)

	g := modgraph.New()
	if err := g.RegisterDeclarations(a.project.Modules); err != nil {
		return err
	}
	logger.Debug("Listing modules.", "count", g.Len())

	tw := tabwriter.NewWriter(a.outW, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MODULE\tPATH\tDESCRIPTION")
	var walk func(ms []*modgraph.Module, depth int)
	walk = func(ms []*modgraph.Module, depth int) {
		for _, m := range ms {
			p := m.Path
			if p == "" {
				p = "."
			}
			indent := strings.Repeat("  ", depth)
			fmt.Fprintf(tw, "%s%s\t%s\t%s\n", indent, m.FullName(), p, m.Description)
			for _, v := range m.Variables {
				fmt.Fprintf(tw, "%s  -D %s=%s\t\t%s\n", indent, v.Name, v.Default, v.Description)
			}
			walk(m.Children(), depth+1)
		}
	}
	walk(g.Roots(), 0)
	return tw.Flush()
}
