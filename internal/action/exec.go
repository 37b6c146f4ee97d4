package action

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
)

// DefaultStopTimeout is how long a cancelled command gets between the
// interrupt and being killed.
const DefaultStopTimeout = 10 * time.Second

// run executes argv in the module directory with the module environment and
// returns its combined output.
//
// Cancelling ctx interrupts the process instead of killing it, so it can
// clean up. If it has not exited after stopTimeout it is killed, and pipes
// still held by its own children are closed so the call returns.
func run(ctx context.Context, env *Env, argv []string, extra map[string]string, stopTimeout time.Duration) (string, error) {
	if stopTimeout <= 0 {
		stopTimeout = DefaultStopTimeout
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = env.Dir
	cmd.Env = append(os.Environ(), commandEnv(env, extra)...)
	cmd.Cancel = func() error {
		env.Logger.Debug("Interrupting command.", "argv", argv, "stop_timeout", stopTimeout)
		if err := cmd.Process.Signal(os.Interrupt); err != nil {
			// Interrupts are not deliverable everywhere (Windows).
			return cmd.Process.Kill()
		}
		return nil
	}
	cmd.WaitDelay = stopTimeout

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err != nil {
		return out.String(), fmt.Errorf("%s: %w%s", argv[0], err, outputTail(out.String()))
	}
	return strings.TrimSpace(out.String()), nil
}

func parseStopTimeout(s string, body hcl.Body) (time.Duration, hcl.Diagnostics) {
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, hcl.Diagnostics{{
			Severity: hcl.DiagError,
			Summary:  "Invalid stop_timeout",
			Detail:   fmt.Sprintf("stop_timeout must be a non-negative duration such as \"10s\", got %q.", s),
			Subject:  body.MissingItemRange().Ptr(),
		}}
	}
	return d, nil
}
