package testutil

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/specialistvlad/buildmeup/internal/action"
	"github.com/specialistvlad/buildmeup/internal/install"
)

// ExecutionRecord holds the start and end times of one module's build.
type ExecutionRecord struct {
	Start time.Time
	End   time.Time
}

// Recorder is a build kind for tests. A `build "record" {}` block makes the
// module sleep, optionally fail, and publish its listed files; every call is
// recorded per module.
//
//	build "record" {
//	  sleep = "50ms"
//	  fail  = "boom"
//	  files = ["out.txt"]
//	}
type Recorder struct {
	mu    sync.Mutex
	runs  map[string][]ExecutionRecord
	calls int
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{runs: make(map[string][]ExecutionRecord)}
}

// Registry returns the default build kinds plus "record".
func (r *Recorder) Registry() *action.Registry {
	reg := action.DefaultRegistry()
	reg.Register("record", r.decode)
	return reg
}

// Runs returns the recorded executions of module.
func (r *Recorder) Runs(module string) []ExecutionRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ExecutionRecord(nil), r.runs[module]...)
}

// Calls returns how many builds ran in total.
func (r *Recorder) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type recordConfig struct {
	Sleep *string  `hcl:"sleep,optional"`
	Fail  *string  `hcl:"fail,optional"`
	Files []string `hcl:"files,optional"`
}

func (r *Recorder) decode(body hcl.Body, evalCtx *hcl.EvalContext) (action.Action, hcl.Diagnostics) {
	var cfg recordConfig
	if diags := gohcl.DecodeBody(body, evalCtx, &cfg); diags.HasErrors() {
		return nil, diags
	}
	var sleep time.Duration
	if cfg.Sleep != nil {
		d, err := time.ParseDuration(*cfg.Sleep)
		if err != nil {
			return nil, hcl.Diagnostics{{
				Severity: hcl.DiagError,
				Summary:  "Invalid sleep",
				Detail:   err.Error(),
				Subject:  body.MissingItemRange().Ptr(),
			}}
		}
		sleep = d
	}

	return action.Func(func(ctx context.Context, env *action.Env) ([]install.Artifact, error) {
		start := time.Now()
		select {
		case <-time.After(sleep):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		r.mu.Lock()
		r.runs[env.Module] = append(r.runs[env.Module], ExecutionRecord{Start: start, End: time.Now()})
		r.calls++
		r.mu.Unlock()

		if cfg.Fail != nil {
			return nil, errors.New(*cfg.Fail)
		}
		var out []install.Artifact
		for _, f := range cfg.Files {
			out = append(out, env.Artifact(f, ""))
		}
		return out, nil
	}), nil
}
