// Package action defines the boundary between the orchestrator and the
// tools that actually compile, link or generate files.
//
// An Action receives the module's resolved configuration context and returns
// the artifacts it produced. Actions are opaque to the orchestrator: it only
// guarantees that each module's action runs at most once per run and only
// after its configuration succeeded.
package action

import (
	"context"
	"log/slog"
	"path"
	"path/filepath"

	"github.com/specialistvlad/buildmeup/internal/capability"
	"github.com/specialistvlad/buildmeup/internal/install"
)

// Env is everything an action knows about the module it builds.
type Env struct {
	// Module is the module's full name.
	Module string
	// Path is the module directory relative to the project root, slash
	// separated. Artifact payloads are expressed relative to the project
	// root, so they usually start with Path.
	Path string
	// Dir is the absolute module directory on the host.
	Dir     string
	Context *capability.Context
	// Variables are the module variables in effect: declared defaults of the
	// module and its ancestors, then command line values.
	Variables map[string]string
	Logger    *slog.Logger
}

// Payload converts a path relative to the module directory into an artifact
// payload path.
func (e *Env) Payload(rel string) string {
	return path.Join(e.Path, filepath.ToSlash(rel))
}

// Artifact builds an artifact of this module.
func (e *Env) Artifact(rel string, t install.ArtifactType) install.Artifact {
	return install.Artifact{Module: e.Module, Type: t, Payload: e.Payload(rel)}
}

// Action builds one module.
type Action interface {
	Build(ctx context.Context, env *Env) ([]install.Artifact, error)
}

// Func adapts a function to the Action interface.
type Func func(ctx context.Context, env *Env) ([]install.Artifact, error)

// Build implements Action.
func (f Func) Build(ctx context.Context, env *Env) ([]install.Artifact, error) {
	return f(ctx, env)
}
