package orchestrator

import (
	"fmt"
	"time"

	"github.com/specialistvlad/buildmeup/internal/install"
	"github.com/specialistvlad/buildmeup/internal/platform"
)

// Process exit codes.
const (
	ExitOK            = 0
	ExitFatal         = 1
	ExitUsage         = 2
	ExitConfiguration = 3
	ExitBuild         = 4
	ExitInstall       = 5
	ExitTest          = 6
)

// Status is the reported outcome of one module.
type Status string

const (
	Built               Status = "Built"
	ConfigurationFailed Status = "ConfigurationFailed"
	BuildFailed         Status = "BuildFailed"
	InstallFailed       Status = "InstallFailed"
	// TestFailed modules were installed but at least one of their tests
	// failed.
	TestFailed Status = "TestFailed"
	Skipped    Status = "Skipped"
)

// ModuleResult is the outcome of one visited module.
type ModuleResult struct {
	Name      string
	Status    Status
	Err       error
	Artifacts []install.Artifact
	Installed []install.Location
	// Tests is empty unless tests were requested.
	Tests    []TestResult
	Duration time.Duration
}

// TestResult is the outcome of one module test.
type TestResult struct {
	Name     string
	Passed   bool
	Err      error
	Duration time.Duration
}

// Result is the outcome of a run. Modules and Installed are in traversal
// order.
type Result struct {
	Project          string
	Platform         platform.Profile
	Modules          []ModuleResult
	Installed        []install.Location
	Success          bool
	IgnoredVariables []string
}

// ExitCode maps the result to a process exit code. The first failed module
// in traversal order decides.
func (r *Result) ExitCode() int {
	for _, m := range r.Modules {
		switch m.Status {
		case ConfigurationFailed:
			return ExitConfiguration
		case BuildFailed:
			return ExitBuild
		case InstallFailed:
			return ExitInstall
		case TestFailed:
			return ExitTest
		}
	}
	if !r.Success {
		return ExitFatal
	}
	return ExitOK
}

// Counts tallies modules per status.
func (r *Result) Counts() map[Status]int {
	out := make(map[Status]int)
	for _, m := range r.Modules {
		out[m.Status]++
	}
	return out
}

// TestCounts tallies passed and failed tests over all modules.
func (r *Result) TestCounts() (passed, failed int) {
	for _, m := range r.Modules {
		for _, t := range m.Tests {
			if t.Passed {
				passed++
			} else {
				failed++
			}
		}
	}
	return passed, failed
}

// BuildActionError wraps a failure of a module's build action.
type BuildActionError struct {
	Module string
	Err    error
}

func (e *BuildActionError) Error() string {
	return fmt.Sprintf("module %q: build failed: %v", e.Module, e.Err)
}

func (e *BuildActionError) Unwrap() error { return e.Err }

// ParentFailedError is recorded for modules skipped because their parent
// did not complete.
type ParentFailedError struct {
	Module string
	Parent string
}

func (e *ParentFailedError) Error() string {
	return fmt.Sprintf("module %q skipped: parent %q did not complete", e.Module, e.Parent)
}

// TestFailedError is recorded for a module test that did not pass.
type TestFailedError struct {
	Module string
	Test   string
	Err    error
}

func (e *TestFailedError) Error() string {
	return fmt.Sprintf("module %q: test %q failed: %v", e.Module, e.Test, e.Err)
}

func (e *TestFailedError) Unwrap() error { return e.Err }
