package action

import (
	"context"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/specialistvlad/buildmeup/internal/fsutil"
	"github.com/specialistvlad/buildmeup/internal/install"
)

// outputBlock declares one produced file with an explicit type or name.
type outputBlock struct {
	Path        string  `hcl:"path,label"`
	Type        *string `hcl:"type,optional"`
	InstallName *string `hcl:"install_name,optional"`
}

func (o outputBlock) artifact(env *Env) (install.Artifact, error) {
	a := env.Artifact(o.Path, "")
	if o.Type != nil {
		t, err := install.ParseType(*o.Type)
		if err != nil {
			return install.Artifact{}, err
		}
		a.Type = t
	}
	if o.InstallName != nil {
		a.InstallName = *o.InstallName
	}
	return a, nil
}

// Command runs an external program in the module directory.
type Command struct {
	Argv    []string
	Env     map[string]string
	Outputs []outputBlock
	// StopTimeout bounds how long a cancelled command may take to stop
	// after it was interrupted. Zero means DefaultStopTimeout.
	StopTimeout time.Duration
}

type commandConfig struct {
	Command     []string          `hcl:"command"`
	Env         map[string]string `hcl:"env,optional"`
	Outputs     []string          `hcl:"outputs,optional"`
	StopTimeout *string           `hcl:"stop_timeout,optional"`
	OutputBlock []outputBlock     `hcl:"output,block"`
}

func decodeCommand(body hcl.Body, evalCtx *hcl.EvalContext) (Action, hcl.Diagnostics) {
	var cfg commandConfig
	if diags := gohcl.DecodeBody(body, evalCtx, &cfg); diags.HasErrors() {
		return nil, diags
	}
	if len(cfg.Command) == 0 {
		return nil, hcl.Diagnostics{{
			Severity: hcl.DiagError,
			Summary:  "Empty command",
			Detail:   "The command attribute must name a program to run.",
			Subject:  body.MissingItemRange().Ptr(),
		}}
	}
	c := &Command{Argv: cfg.Command, Env: cfg.Env}
	if cfg.StopTimeout != nil {
		d, diags := parseStopTimeout(*cfg.StopTimeout, body)
		if diags.HasErrors() {
			return nil, diags
		}
		c.StopTimeout = d
	}
	for _, o := range cfg.Outputs {
		c.Outputs = append(c.Outputs, outputBlock{Path: o})
	}
	c.Outputs = append(c.Outputs, cfg.OutputBlock...)
	return c, nil
}

// Build implements Action.
func (c *Command) Build(ctx context.Context, env *Env) ([]install.Artifact, error) {
	env.Logger.Debug("Running build command.", "argv", c.Argv, "dir", env.Dir)
	out, err := run(ctx, env, c.Argv, c.Env, c.StopTimeout)
	if err != nil {
		return nil, err
	}
	if out != "" {
		env.Logger.Debug("Build command output.", "output", out)
	}

	artifacts := make([]install.Artifact, 0, len(c.Outputs))
	for _, o := range c.Outputs {
		if _, err := os.Stat(filepath.Join(env.Dir, o.Path)); err != nil {
			return nil, fmt.Errorf("declared output %q was not produced: %w", o.Path, err)
		}
		a, err := o.artifact(env)
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, a)
	}
	return artifacts, nil
}

// commandEnv exposes the target profile, the resolved capabilities and the
// module variables to the child process.
func commandEnv(env *Env, extra map[string]string) []string {
	vals := map[string]string{"BMU_MODULE": env.Module}
	if env.Context != nil {
		vals["BMU_PLATFORM"] = env.Context.Profile.Name()
		maps.Copy(vals, env.Context.Profile.Variables())
		for name, st := range env.Context.Capabilities {
			if st.Available {
				vals["BMU_CAP_"+envName(name)] = st.Details
			}
		}
	}
	// Later sources win.
	maps.Copy(vals, env.Variables)
	maps.Copy(vals, extra)

	vars := make([]string, 0, len(vals))
	for _, k := range slices.Sorted(maps.Keys(vals)) {
		vars = append(vars, k+"="+vals[k])
	}
	return vars
}

func envName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		}
		return '_'
	}, s)
}

func outputTail(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	const limit = 2048
	if len(s) > limit {
		s = "..." + s[len(s)-limit:]
	}
	return "\n" + s
}

// Files publishes files that already exist in the module directory.
type Files struct {
	Outputs   []outputBlock
	Directory string
	Extension string
	Type      string
}

type filesConfig struct {
	Files       []string      `hcl:"files,optional"`
	Directory   *string       `hcl:"directory,optional"`
	Extension   *string       `hcl:"extension,optional"`
	Type        *string       `hcl:"type,optional"`
	OutputBlock []outputBlock `hcl:"output,block"`
}

func decodeFiles(body hcl.Body, evalCtx *hcl.EvalContext) (Action, hcl.Diagnostics) {
	var cfg filesConfig
	if diags := gohcl.DecodeBody(body, evalCtx, &cfg); diags.HasErrors() {
		return nil, diags
	}
	f := &Files{}
	if cfg.Type != nil {
		if _, err := install.ParseType(*cfg.Type); err != nil {
			return nil, hcl.Diagnostics{{
				Severity: hcl.DiagError,
				Summary:  "Invalid artifact type",
				Detail:   err.Error(),
				Subject:  body.MissingItemRange().Ptr(),
			}}
		}
		f.Type = *cfg.Type
	}
	for _, p := range cfg.Files {
		o := outputBlock{Path: p}
		if cfg.Type != nil {
			o.Type = cfg.Type
		}
		f.Outputs = append(f.Outputs, o)
	}
	f.Outputs = append(f.Outputs, cfg.OutputBlock...)
	if cfg.Directory != nil || cfg.Extension != nil {
		if cfg.Extension == nil || *cfg.Extension == "" {
			return nil, hcl.Diagnostics{{
				Severity: hcl.DiagError,
				Summary:  "Missing extension",
				Detail:   "A files build that scans a directory needs a non-empty extension.",
				Subject:  body.MissingItemRange().Ptr(),
			}}
		}
		f.Extension = *cfg.Extension
		f.Directory = "."
		if cfg.Directory != nil {
			f.Directory = *cfg.Directory
		}
	}
	return f, nil
}

// Build implements Action.
func (f *Files) Build(_ context.Context, env *Env) ([]install.Artifact, error) {
	var artifacts []install.Artifact
	for _, o := range f.Outputs {
		if _, err := os.Stat(filepath.Join(env.Dir, o.Path)); err != nil {
			return nil, err
		}
		a, err := o.artifact(env)
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, a)
	}

	if f.Extension == "" {
		return artifacts, nil
	}
	found, err := fsutil.FindFilesByExtension(filepath.Join(env.Dir, f.Directory), f.Extension)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", f.Directory, err)
	}
	var t install.ArtifactType
	if f.Type != "" {
		t, _ = install.ParseType(f.Type)
	}
	for _, p := range found {
		rel, err := filepath.Rel(env.Dir, p)
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, env.Artifact(rel, t))
	}
	return artifacts, nil
}

// Noop builds nothing. It is useful for grouping modules.
type Noop struct{}

func decodeNoop(body hcl.Body, evalCtx *hcl.EvalContext) (Action, hcl.Diagnostics) {
	var cfg struct{}
	if diags := gohcl.DecodeBody(body, evalCtx, &cfg); diags.HasErrors() {
		return nil, diags
	}
	return Noop{}, nil
}

// Build implements Action.
func (Noop) Build(context.Context, *Env) ([]install.Artifact, error) {
	return nil, nil
}
