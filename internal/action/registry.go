package action

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/hashicorp/hcl/v2"
)

// DecodeFunc turns the body of a `build "<kind>" {}` block into an Action.
type DecodeFunc func(body hcl.Body, evalCtx *hcl.EvalContext) (Action, hcl.Diagnostics)

// Registry maps build kinds to their decoders.
type Registry struct {
	kinds map[string]DecodeFunc
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{kinds: make(map[string]DecodeFunc)}
}

// DefaultRegistry returns a registry with the built-in kinds: command, files
// and noop.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("command", decodeCommand)
	r.Register("files", decodeFiles)
	r.Register("noop", decodeNoop)
	return r
}

// Register adds a build kind. Registering a kind twice is a programming
// error and panics.
func (r *Registry) Register(kind string, decode DecodeFunc) {
	if _, exists := r.kinds[kind]; exists {
		panic(fmt.Sprintf("build kind '%s' already registered", kind))
	}
	slog.Debug("Registering build kind.", "kind", kind)
	r.kinds[kind] = decode
}

// Kinds returns the registered kinds in sorted order.
func (r *Registry) Kinds() []string {
	return slices.Sorted(maps.Keys(r.kinds))
}

// Decode builds the action of the given kind from an HCL body.
func (r *Registry) Decode(kind string, body hcl.Body, evalCtx *hcl.EvalContext) (Action, hcl.Diagnostics) {
	decode, ok := r.kinds[kind]
	if !ok {
		return nil, hcl.Diagnostics{{
			Severity: hcl.DiagError,
			Summary:  "Unknown build kind",
			Detail:   fmt.Sprintf("Build kind %q is not registered; available kinds: %v.", kind, r.Kinds()),
			Subject:  body.MissingItemRange().Ptr(),
		}}
	}
	return decode(body, evalCtx)
}
