package action

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
)

// Test checks an installed module by running a program in its directory.
// It passes when the program exits zero and, if Expect is set, prints
// exactly Expect (surrounding whitespace ignored).
type Test struct {
	Name        string
	Argv        []string
	Env         map[string]string
	Expect      *string
	StopTimeout time.Duration
}

type testConfig struct {
	Command     []string          `hcl:"command"`
	Env         map[string]string `hcl:"env,optional"`
	Expect      *string           `hcl:"expect_output,optional"`
	StopTimeout *string           `hcl:"stop_timeout,optional"`
}

// ValidTestName reports whether name may name a test: letters, digits,
// spaces and ".-_".
func ValidTestName(name string) bool {
	if strings.TrimSpace(name) == "" {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case strings.ContainsRune(".-_ ", r):
		default:
			return false
		}
	}
	return true
}

// DecodeTest decodes the body of a `test "<name>" {}` block.
func DecodeTest(name string, body hcl.Body, evalCtx *hcl.EvalContext) (*Test, hcl.Diagnostics) {
	if !ValidTestName(name) {
		return nil, hcl.Diagnostics{{
			Severity: hcl.DiagError,
			Summary:  "Invalid test name",
			Detail:   fmt.Sprintf("Test name %q may only contain letters, digits, spaces and \".-_\".", name),
			Subject:  body.MissingItemRange().Ptr(),
		}}
	}
	var cfg testConfig
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
	t := &Test{Name: name, Argv: cfg.Command, Env: cfg.Env, Expect: cfg.Expect}
	if cfg.StopTimeout != nil {
		d, diags := parseStopTimeout(*cfg.StopTimeout, body)
		if diags.HasErrors() {
			return nil, diags
		}
		t.StopTimeout = d
	}
	return t, nil
}

// Run executes the test. A nil error means it passed.
func (t *Test) Run(ctx context.Context, env *Env) error {
	env.Logger.Debug("Running test.", "test", t.Name, "argv", t.Argv)
	out, err := run(ctx, env, t.Argv, t.Env, t.StopTimeout)
	if err != nil {
		return err
	}
	if t.Expect != nil && out != strings.TrimSpace(*t.Expect) {
		return &UnexpectedOutputError{Want: strings.TrimSpace(*t.Expect), Got: out}
	}
	return nil
}

// UnexpectedOutputError is returned by a test whose program printed
// something other than what was expected.
type UnexpectedOutputError struct {
	Want string
	Got  string
}

func (e *UnexpectedOutputError) Error() string {
	return fmt.Sprintf("unexpected output: want %q, got %q", e.Want, e.Got)
}
