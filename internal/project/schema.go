package project

import "github.com/hashicorp/hcl/v2"

// fileRoot decodes every top-level block a project file may contain.
type fileRoot struct {
	Projects     []*projectBlock    `hcl:"project,block"`
	Platforms    []*platformBlock   `hcl:"platform,block"`
	Capabilities []*capabilityBlock `hcl:"capability,block"`
	Modules      []*moduleBlock     `hcl:"module,block"`
	Installs     []*installBlock    `hcl:"install,block"`
	Classifies   []*classifyBlock   `hcl:"classify,block"`
}

// moduleFileRoot decodes a module.hcl collaborator file found in a module's
// directory. It may only add capabilities and child modules.
type moduleFileRoot struct {
	Capabilities []*capabilityBlock `hcl:"capability,block"`
	Modules      []*moduleBlock     `hcl:"module,block"`
}

type projectBlock struct {
	Name            string    `hcl:"name,label"`
	DefaultPlatform *string   `hcl:"default_platform,optional"`
	DefaultType     *string   `hcl:"default_type,optional"`
	DefRange        hcl.Range `hcl:",def_range"`
}

type platformBlock struct {
	Name        string            `hcl:"name,label"`
	Description *string           `hcl:"description,optional"`
	Variables   map[string]string `hcl:"variables,optional"`
	Custom      *bool             `hcl:"custom,optional"`
	DefRange    hcl.Range         `hcl:",def_range"`
}

type capabilityBlock struct {
	Name      string    `hcl:"name,label"`
	Kind      string    `hcl:"kind"`
	Value     *string   `hcl:"value,optional"`
	Key       *string   `hcl:"key,optional"`
	Dirs      []string  `hcl:"dirs,optional"`
	Available *bool     `hcl:"available,optional"`
	DefRange  hcl.Range `hcl:",def_range"`
}

type moduleBlock struct {
	Name        string           `hcl:"name,label"`
	Path        *string          `hcl:"path,optional"`
	Description *string          `hcl:"description,optional"`
	Parent      *string          `hcl:"parent,optional"`
	Requires    []string         `hcl:"requires,optional"`
	Optional    []string         `hcl:"optional,optional"`
	Variables   []*variableBlock `hcl:"variable,block"`
	Builds      []*buildBlock    `hcl:"build,block"`
	Tests       []*testBlock     `hcl:"test,block"`
	Modules     []*moduleBlock   `hcl:"module,block"`
	DefRange    hcl.Range        `hcl:",def_range"`
}

type variableBlock struct {
	Name        string    `hcl:"name,label"`
	Default     *string   `hcl:"default,optional"`
	Description *string   `hcl:"description,optional"`
	DefRange    hcl.Range `hcl:",def_range"`
}

type testBlock struct {
	Name     string    `hcl:"name,label"`
	Body     hcl.Body  `hcl:",remain"`
	DefRange hcl.Range `hcl:",def_range"`
}

type buildBlock struct {
	Kind     string    `hcl:"kind,label"`
	Body     hcl.Body  `hcl:",remain"`
	DefRange hcl.Range `hcl:",def_range"`
}

type installBlock struct {
	Kind     *string      `hcl:"kind,optional"`
	Prefix   *string      `hcl:"prefix,optional"`
	Rules    []*ruleBlock `hcl:"rule,block"`
	DefRange hcl.Range    `hcl:",def_range"`
}

type ruleBlock struct {
	Type        string         `hcl:"type,label"`
	Platform    *string        `hcl:"platform,optional"`
	Destination hcl.Expression `hcl:"destination"`
	DefRange    hcl.Range      `hcl:",def_range"`
}

type classifyBlock struct {
	Type       string    `hcl:"type,label"`
	Patterns   []string  `hcl:"patterns,optional"`
	Executable *bool     `hcl:"executable,optional"`
	Magic      *bool     `hcl:"magic,optional"`
	DefRange   hcl.Range `hcl:",def_range"`
}
