package project

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/specialistvlad/buildmeup/internal/action"
	"github.com/specialistvlad/buildmeup/internal/capability"
	"github.com/specialistvlad/buildmeup/internal/ctxlog"
	"github.com/specialistvlad/buildmeup/internal/fsutil"
	"github.com/specialistvlad/buildmeup/internal/install"
	"github.com/specialistvlad/buildmeup/internal/modgraph"
	"github.com/specialistvlad/buildmeup/internal/platform"
	"github.com/zclconf/go-cty/cty"
)

// Loader reads project files.
type Loader struct {
	actions   *action.Registry
	overrides map[string]string
}

// NewLoader creates a loader that decodes build blocks with actions. A nil
// registry means action.DefaultRegistry.
func NewLoader(actions *action.Registry) *Loader {
	if actions == nil {
		actions = action.DefaultRegistry()
	}
	return &Loader{actions: actions}
}

// WithOverrides sets the command line variable values that build and test
// bodies see through var.NAME in place of the declared defaults.
func (l *Loader) WithOverrides(overrides map[string]string) *Loader {
	l.overrides = overrides
	return l
}

// variableName is what a module variable may be called. Names are exported
// to build commands as environment variables.
var variableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// load is the state of one Load call.
type load struct {
	*Loader
	parser  *hclparse.Parser
	root    string
	project *Project
	probes  map[string]hcl.Range
	seen    map[string]bool

	sawProject bool
	sawInstall bool
}

// Load reads the project at p, which is either a single .hcl file or a
// directory whose top-level .hcl files (except module.hcl) together make up
// the project. Module directories may hold a module.hcl declaring children.
func (l *Loader) Load(ctx context.Context, p string) (*Project, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Project loader started.", "path", p)

	abs, err := filepath.Abs(p)
	if err != nil {
		return nil, fmt.Errorf("error accessing path %s: %w", p, err)
	}
	isDir, err := fsutil.IsDir(abs)
	if err != nil {
		return nil, fmt.Errorf("error accessing path %s: %w", p, err)
	}

	var files []string
	root := abs
	if isDir {
		all, err := fsutil.ListFilesByExtension(abs, ".hcl")
		if err != nil {
			return nil, err
		}
		for _, f := range all {
			if filepath.Base(f) != ModuleFileName {
				files = append(files, f)
			}
		}
		if len(files) == 0 {
			return nil, fmt.Errorf("no project files found in %s", p)
		}
	} else {
		root = filepath.Dir(abs)
		files = []string{abs}
	}
	logger.Debug("Discovered project files.", "count", len(files))

	ld := &load{
		Loader: l,
		parser: hclparse.NewParser(),
		root:   root,
		project: &Project{
			Name:   filepath.Base(root),
			Root:   root,
			Probes: make(map[string]capability.Probe),
		},
		probes: make(map[string]hcl.Range),
		seen:   make(map[string]bool),
	}

	roots := make([]*fileRoot, 0, len(files))
	for _, file := range files {
		body, err := ld.parse(file)
		if err != nil {
			return nil, err
		}
		var fr fileRoot
		if diags := gohcl.DecodeBody(body, nil, &fr); diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode HCL file %s: %w", file, diags)
		}
		roots = append(roots, &fr)
	}

	// Project-wide settings first: module bodies may refer to the project.
	for _, fr := range roots {
		if err := ld.applySettings(fr); err != nil {
			return nil, err
		}
	}
	for i, fr := range roots {
		if err := ld.addCapabilities(files[i], fr.Capabilities); err != nil {
			return nil, err
		}
	}
	for i, fr := range roots {
		decls, err := ld.translateModules(ctx, files[i], fr.Modules, "", nil)
		if err != nil {
			return nil, err
		}
		ld.project.Modules = append(ld.project.Modules, decls...)
	}

	proj := ld.project
	if len(proj.Platforms) == 0 {
		proj.Platforms = platform.Builtin()
	}
	if proj.DefaultPlatform != "" {
		if _, err := proj.Platforms.MatchName(proj.DefaultPlatform); err != nil {
			return nil, fmt.Errorf("project %s: default_platform: %w", proj.Name, err)
		}
	}

	logger.Debug("Project loading complete.",
		"project", proj.Name,
		"files", len(proj.Files),
		"platforms", len(proj.Platforms),
		"capabilities", len(proj.Probes),
		"modules", len(proj.ModuleNames()))
	return proj, nil
}

func (ld *load) parse(file string) (hcl.Body, error) {
	hclFile, diags := ld.parser.ParseHCLFile(file)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
	}
	ld.seen[file] = true
	ld.project.Files = append(ld.project.Files, file)
	return hclFile.Body, nil
}

func (ld *load) applySettings(fr *fileRoot) error {
	proj := ld.project
	fail := func(r hcl.Range, format string, args ...any) error {
		return fmt.Errorf("%s: %s", r, fmt.Sprintf(format, args...))
	}

	for _, pb := range fr.Projects {
		if ld.sawProject {
			return fail(pb.DefRange, "duplicate project block")
		}
		ld.sawProject = true
		proj.Name = pb.Name
		if pb.DefaultPlatform != nil {
			proj.DefaultPlatform = *pb.DefaultPlatform
		}
		if pb.DefaultType != nil {
			t, err := install.ParseType(*pb.DefaultType)
			if err != nil {
				return fail(pb.DefRange, "default_type: %v", err)
			}
			proj.Classify.DefaultType = t
		}
	}

	for _, b := range fr.Platforms {
		if _, dup := proj.Platforms.Lookup(b.Name); dup {
			return fail(b.DefRange, "platform %q declared twice", b.Name)
		}
		entry := platform.Entry{Name: b.Name}
		if b.Description != nil {
			entry.Description = *b.Description
		}
		custom := b.Custom != nil && *b.Custom
		switch {
		case custom && len(b.Variables) > 0:
			return fail(b.DefRange, "platform %q: a custom platform takes no variables", b.Name)
		case custom:
		default:
			entry.Variables = make(map[string]string, len(b.Variables))
			for k, v := range b.Variables {
				if !platform.IsComponentKey(k) {
					return fail(b.DefRange, "platform %q: %q is not a TARGET_* variable", b.Name, k)
				}
				entry.Variables[k] = v
			}
		}
		proj.Platforms = append(proj.Platforms, entry)
	}

	for _, b := range fr.Installs {
		if ld.sawInstall {
			return fail(b.DefRange, "duplicate install block")
		}
		ld.sawInstall = true
		if b.Kind != nil {
			if !slices.Contains(install.Kinds, *b.Kind) {
				return fail(b.DefRange, "unknown install kind %q (known: %s)", *b.Kind, strings.Join(install.Kinds, ", "))
			}
			proj.Install.Kind = *b.Kind
		}
		if b.Prefix != nil {
			prefix := *b.Prefix
			if !filepath.IsAbs(prefix) {
				prefix = filepath.Join(ld.root, prefix)
			}
			proj.Install.Prefix = prefix
		}
		for _, rb := range b.Rules {
			t, err := install.ParseType(rb.Type)
			if err != nil {
				return fail(rb.DefRange, "rule: %v", err)
			}
			r := install.Rule{Type: t, Platform: install.AnyPlatform, Destination: rb.Destination}
			if rb.Platform != nil {
				r.Platform = *rb.Platform
			}
			proj.Install.Rules = append(proj.Install.Rules, r)
		}
	}

	for _, b := range fr.Classifies {
		t, err := install.ParseType(b.Type)
		if err != nil {
			return fail(b.DefRange, "classify: %v", err)
		}
		r := install.ClassifyRule{Type: t, Patterns: b.Patterns}
		if b.Executable != nil {
			r.Executable = *b.Executable
		}
		if b.Magic != nil {
			r.Magic = *b.Magic
		}
		for _, pat := range r.Patterns {
			if _, err := path.Match(pat, ""); err != nil {
				return fail(b.DefRange, "classify %s: bad pattern %q", t, pat)
			}
		}
		proj.Classify.Rules = append(proj.Classify.Rules, r)
	}
	return nil
}

func (ld *load) addCapabilities(file string, blocks []*capabilityBlock) error {
	for _, b := range blocks {
		if prev, dup := ld.probes[b.Name]; dup {
			return fmt.Errorf("%s: capability %q already declared at %s", b.DefRange, b.Name, prev)
		}
		spec := capability.Spec{Kind: b.Kind, Dirs: b.Dirs}
		if b.Value != nil {
			spec.Value = *b.Value
		}
		if b.Key != nil {
			spec.Key = *b.Key
		}
		if b.Available != nil {
			spec.Available = *b.Available
		}
		if spec.Kind == "file" || spec.Kind == "objfmt" {
			if spec.Value != "" && !filepath.IsAbs(spec.Value) {
				spec.Value = filepath.Join(filepath.Dir(file), spec.Value)
			}
		}
		probe, err := capability.NewProbe(spec)
		if err != nil {
			return fmt.Errorf("%s: capability %q: %w", b.DefRange, b.Name, err)
		}
		ld.probes[b.Name] = b.DefRange
		ld.project.Probes[b.Name] = probe
	}
	return nil
}

// translateModules turns module blocks found in file into declarations.
// parentPath is the slash path of the enclosing module, used when a block
// gives no path of its own; parentVars are the variable values visible in
// the enclosing module.
func (ld *load) translateModules(ctx context.Context, file string, blocks []*moduleBlock, parentPath string, parentVars map[string]string) ([]modgraph.Declaration, error) {
	var out []modgraph.Declaration
	for _, b := range blocks {
		d, err := ld.translateModule(ctx, file, b, parentPath, parentVars)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func (ld *load) translateModule(ctx context.Context, file string, b *moduleBlock, parentPath string, parentVars map[string]string) (modgraph.Declaration, error) {
	d := modgraph.Declaration{Name: b.Name, Path: parentPath}
	if b.Path != nil {
		p, err := ld.relPath(file, *b.Path)
		if err != nil {
			return d, fmt.Errorf("%s: module %q: %w", b.DefRange, b.Name, err)
		}
		d.Path = p
	}
	if b.Description != nil {
		d.Description = *b.Description
	}
	if b.Parent != nil {
		d.Parent = *b.Parent
	}
	for _, c := range b.Requires {
		d.Requires = append(d.Requires, capability.Requirement{Name: c})
	}
	for _, c := range b.Optional {
		d.Requires = append(d.Requires, capability.Requirement{Name: c, Optional: true})
	}

	vars, err := ld.translateVariables(b, &d, parentVars)
	if err != nil {
		return d, err
	}
	evalCtx := ld.evalContext(d, vars)

	switch len(b.Builds) {
	case 0:
	case 1:
		act, diags := ld.actions.Decode(b.Builds[0].Kind, b.Builds[0].Body, evalCtx)
		if diags.HasErrors() {
			return d, fmt.Errorf("failed to decode HCL file %s: module %q: %w", file, b.Name, diags)
		}
		d.Action = act
	default:
		return d, fmt.Errorf("%s: module %q has more than one build block", b.Builds[1].DefRange, b.Name)
	}

	seenTests := make(map[string]bool, len(b.Tests))
	for _, tb := range b.Tests {
		if seenTests[tb.Name] {
			return d, fmt.Errorf("%s: module %q already has a test named %q", tb.DefRange, b.Name, tb.Name)
		}
		seenTests[tb.Name] = true
		test, diags := action.DecodeTest(tb.Name, tb.Body, evalCtx)
		if diags.HasErrors() {
			return d, fmt.Errorf("failed to decode HCL file %s: module %q: %w", file, b.Name, diags)
		}
		d.Tests = append(d.Tests, test)
	}

	children, err := ld.translateModules(ctx, file, b.Modules, d.Path, vars)
	if err != nil {
		return d, err
	}
	d.Children = children

	// Only modules with a directory of their own get a module.hcl.
	if b.Path == nil {
		return d, nil
	}
	collab, err := ld.moduleFile(ctx, d, vars)
	if err != nil {
		return d, err
	}
	d.Children = append(d.Children, collab...)
	return d, nil
}

// translateVariables records b's variable declarations in d and returns the
// values visible inside b: the enclosing module's, then b's own defaults,
// each replaced by a command line value when there is one.
func (ld *load) translateVariables(b *moduleBlock, d *modgraph.Declaration, parentVars map[string]string) (map[string]string, error) {
	vars := maps.Clone(parentVars)
	if vars == nil {
		vars = make(map[string]string)
	}
	seen := make(map[string]bool, len(b.Variables))
	for _, vb := range b.Variables {
		switch {
		case !variableName.MatchString(vb.Name):
			return nil, fmt.Errorf("%s: module %q: invalid variable name %q", vb.DefRange, b.Name, vb.Name)
		case platform.IsComponentKey(vb.Name), strings.HasPrefix(vb.Name, "BMU_"):
			return nil, fmt.Errorf("%s: module %q: variable name %q is reserved", vb.DefRange, b.Name, vb.Name)
		case seen[vb.Name]:
			return nil, fmt.Errorf("%s: module %q declares variable %q twice", vb.DefRange, b.Name, vb.Name)
		}
		seen[vb.Name] = true

		v := modgraph.Variable{Name: vb.Name}
		if vb.Default != nil {
			v.Default = *vb.Default
		}
		if vb.Description != nil {
			v.Description = *vb.Description
		}
		d.Variables = append(d.Variables, v)
		vars[v.Name] = v.Default
		if o, ok := ld.overrides[v.Name]; ok {
			vars[v.Name] = o
		}
	}
	return vars, nil
}

// moduleFile reads the module.hcl collaborator file of d, if there is one.
func (ld *load) moduleFile(ctx context.Context, d modgraph.Declaration, vars map[string]string) ([]modgraph.Declaration, error) {
	file := filepath.Join(ld.root, filepath.FromSlash(d.Path), ModuleFileName)
	if ld.seen[file] {
		return nil, nil
	}
	if _, err := os.Stat(file); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("error accessing path %s: %w", file, err)
	}
	ctxlog.FromContext(ctx).Debug("Reading module file.", "module", d.Name, "file", file)

	body, err := ld.parse(file)
	if err != nil {
		return nil, err
	}
	var mr moduleFileRoot
	if diags := gohcl.DecodeBody(body, nil, &mr); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", file, diags)
	}
	if err := ld.addCapabilities(file, mr.Capabilities); err != nil {
		return nil, err
	}
	for _, b := range mr.Modules {
		if b.Parent != nil {
			return nil, fmt.Errorf("%s: module %q: parent cannot be set in %s", b.DefRange, b.Name, ModuleFileName)
		}
	}
	return ld.translateModules(ctx, file, mr.Modules, d.Path, vars)
}

// relPath resolves p, written in file, to a slash path relative to the
// project root. Paths may not leave the project.
func (ld *load) relPath(file, p string) (string, error) {
	abs := filepath.FromSlash(p)
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(filepath.Dir(file), abs)
	}
	rel, err := filepath.Rel(ld.root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q is outside the project", p)
	}
	if rel == "." {
		return "", nil
	}
	return filepath.ToSlash(rel), nil
}

// evalContext is what build and test bodies may refer to: project.name,
// project.root, module.name, module.path and var.NAME for every variable
// visible in the module.
func (ld *load) evalContext(d modgraph.Declaration, vars map[string]string) *hcl.EvalContext {
	varVals := make(map[string]cty.Value, len(vars))
	for k, v := range vars {
		varVals[k] = cty.StringVal(v)
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"project": cty.ObjectVal(map[string]cty.Value{
				"name": cty.StringVal(ld.project.Name),
				"root": cty.StringVal(ld.root),
			}),
			"module": cty.ObjectVal(map[string]cty.Value{
				"name": cty.StringVal(d.Name),
				"path": cty.StringVal(d.Path),
			}),
			"var": cty.ObjectVal(varVals),
		},
	}
}
