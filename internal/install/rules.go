package install

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/specialistvlad/buildmeup/internal/platform"
	"github.com/zclconf/go-cty/cty"
)

// AnyPlatform is the platform name of a rule that applies everywhere.
const AnyPlatform = "*"

// Install kinds, from least to most invasive.
const (
	KindSandbox = "sandbox"
	KindUser    = "user"
	KindLocal   = "local"
	KindSystem  = "system"
)

// Kinds lists the valid install kinds.
var Kinds = []string{KindSandbox, KindUser, KindLocal, KindSystem}

// Rule routes one artifact type on one platform to a destination directory.
// Destination is an HCL template; see Vars for the variables it may use.
type Rule struct {
	Type        ArtifactType
	Platform    string
	Destination hcl.Expression
}

// RuleSet is an ordered rule table. Later rules override earlier ones for
// the same (type, platform) pair, which lets project rules be appended to
// the defaults.
type RuleSet []Rule

// Lookup finds the rule for (t, platformName), falling back to (t, "*").
func (rs RuleSet) Lookup(t ArtifactType, platformName string) (Rule, bool) {
	for _, want := range []string{platformName, AnyPlatform} {
		for i := len(rs) - 1; i >= 0; i-- {
			if rs[i].Type == t && rs[i].Platform == want {
				return rs[i], true
			}
		}
	}
	return Rule{}, false
}

// Template parses a destination template such as "${prefix}/bin".
func Template(src string) (hcl.Expression, error) {
	expr, diags := hclsyntax.ParseTemplate([]byte(src), "<destination>", hcl.InitialPos)
	if diags.HasErrors() {
		return nil, fmt.Errorf("invalid destination %q: %w", src, diags)
	}
	return expr, nil
}

func mustTemplate(src string) hcl.Expression {
	expr, err := Template(src)
	if err != nil {
		panic(err)
	}
	return expr
}

func rule(t ArtifactType, platformName, dest string) Rule {
	return Rule{Type: t, Platform: platformName, Destination: mustTemplate(dest)}
}

// DefaultRules returns the built-in rule table for an install kind.
//
// Sandbox installs go under ${prefix} for every platform. The other kinds
// follow the Linux FHS (user installs use the XDG base directories for
// binaries, data and configuration) and put everything but binaries and
// manuals into a ${project} sub-directory.
func DefaultRules(kind string) (RuleSet, error) {
	switch kind {
	case KindSandbox:
		return RuleSet{
			rule(Binary, AnyPlatform, "${prefix}/bin"),
			rule(SharedLibrary, AnyPlatform, "${prefix}/lib"),
			rule(StaticLibrary, AnyPlatform, "${prefix}/lib"),
			rule(Data, AnyPlatform, "${prefix}/share"),
			rule(Config, AnyPlatform, "${prefix}/etc"),
			rule(Documentation, AnyPlatform, "${prefix}/doc"),
			rule(Header, AnyPlatform, "${prefix}/include"),
			rule(Manual, AnyPlatform, "${prefix}/man"),
		}, nil
	case KindSystem:
		return linuxRules("/usr", "/etc", "/usr/share/man", "/usr/bin", "/usr/share"), nil
	case KindLocal:
		return linuxRules("/usr/local", "/usr/local/etc", "/usr/local/man", "/usr/local/bin", "/usr/local/share"), nil
	case KindUser:
		rs := linuxRules("/usr", "${xdg_config_home}", "/usr/share/man", "${home}/.local/bin", "/usr/share")
		return append(rs, rule(Data, "Linux", "${xdg_data_home}/${project}")), nil
	}
	return nil, fmt.Errorf("unknown install kind %q (want one of %s)", kind, strings.Join(Kinds, ", "))
}

func linuxRules(base, cfg, man, bin, share string) RuleSet {
	const p = "Linux"
	return RuleSet{
		rule(Binary, p, bin),
		rule(SharedLibrary, p, base+"/lib/${project}"),
		rule(StaticLibrary, p, base+"/lib/${project}"),
		rule(Data, p, share+"/${project}"),
		rule(Config, p, cfg+"/${project}"),
		rule(Documentation, p, share+"/doc/${project}"),
		rule(Header, p, base+"/include/${project}"),
		rule(Manual, p, man),
	}
}

// Vars are the run-wide values destination templates can refer to, next to
// ${platform} and the ${target} map of TARGET_* variables.
type Vars struct {
	Prefix        string
	Project       string
	Home          string
	XDGDataHome   string
	XDGConfigHome string
}

// DefaultVars fills Home and the XDG directories from the environment.
func DefaultVars(prefix, project string) Vars {
	home := os.Getenv("HOME")
	if home == "" {
		home = os.TempDir()
	}
	v := Vars{
		Prefix:        filepath.ToSlash(prefix),
		Project:       project,
		Home:          filepath.ToSlash(home),
		XDGDataHome:   os.Getenv("XDG_DATA_HOME"),
		XDGConfigHome: os.Getenv("XDG_CONFIG_HOME"),
	}
	if v.XDGDataHome == "" {
		v.XDGDataHome = v.Home + "/.local/share"
	}
	if v.XDGConfigHome == "" {
		v.XDGConfigHome = v.Home + "/.config"
	}
	return v
}

func (v Vars) evalContext(profile platform.Profile) *hcl.EvalContext {
	target := make(map[string]cty.Value)
	for k, val := range profile.Variables() {
		target[k] = cty.StringVal(val)
	}
	targetVal := cty.EmptyObjectVal
	if len(target) > 0 {
		targetVal = cty.ObjectVal(target)
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"prefix":          cty.StringVal(v.Prefix),
			"project":         cty.StringVal(v.Project),
			"home":            cty.StringVal(v.Home),
			"xdg_data_home":   cty.StringVal(v.XDGDataHome),
			"xdg_config_home": cty.StringVal(v.XDGConfigHome),
			"platform":        cty.StringVal(profile.Name()),
			"target":          targetVal,
		},
	}
}

// evaluate renders a destination template into a clean slash path.
func (v Vars) evaluate(expr hcl.Expression, profile platform.Profile) (string, error) {
	val, diags := expr.Value(v.evalContext(profile))
	if diags.HasErrors() {
		return "", diags
	}
	if val.IsNull() || !val.IsKnown() || val.Type() != cty.String {
		return "", fmt.Errorf("destination must be a string, got %s", val.Type().FriendlyName())
	}
	return path.Clean(val.AsString()), nil
}
