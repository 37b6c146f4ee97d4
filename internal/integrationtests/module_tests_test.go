package integrationtests

import (
	"os/exec"
	"testing"

	"github.com/specialistvlad/buildmeup/internal/app"
	"github.com/specialistvlad/buildmeup/internal/orchestrator"
	"github.com/specialistvlad/buildmeup/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// helloTested is the hello program with its output check: the greeting
// gets an exclamation mark when ADD_EXCLAMATION is set.
const helloTested = `
project "example" {}

module "hello" {
  path = "hello"

  variable "ADD_EXCLAMATION" {
    default     = ""
    description = "Set to ! to shout."
  }

  build "files" {
    output "hello" {
      type = "BIN"
    }
  }

  test "hello-output" {
    command       = ["sh", "hello"]
    expect_output = "Hello World${var.ADD_EXCLAMATION}"
  }

  module "tests" {
    test "still-runs" {
      command = ["true"]
    }
  }
}
`

func TestModuleTests(t *testing.T) {
	t.Parallel()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	testCases := []struct {
		name       string
		program    string
		overrides  map[string]string
		runTests   bool
		wantExit   int
		wantOutput []string
	}{
		{
			name:       "passing with defaults",
			program:    "echo \"Hello World$ADD_EXCLAMATION\"\n",
			runTests:   true,
			wantExit:   orchestrator.ExitOK,
			wantOutput: []string{"PASSED - [hello] hello-output\n", "PASSED - [hello:tests] still-runs\n", "Tests complete (2 passed, 0 failed)\n"},
		},
		{
			name:       "variable reaches the program and the expectation",
			program:    "echo \"Hello World$ADD_EXCLAMATION\"\n",
			overrides:  map[string]string{"ADD_EXCLAMATION": "!"},
			runTests:   true,
			wantExit:   orchestrator.ExitOK,
			wantOutput: []string{"Tests complete (2 passed, 0 failed)\n"},
		},
		{
			name:      "program ignoring the variable fails",
			program:   "echo \"Hello World\"\n",
			overrides: map[string]string{"ADD_EXCLAMATION": "!"},
			runTests:  true,
			wantExit:  orchestrator.ExitTest,
			wantOutput: []string{
				"FAILED - [hello] hello-output\n",
				"PASSED - [hello:tests] still-runs\n",
				"Tests complete (1 passed, 1 failed)\n",
			},
		},
		{
			name:     "tests only run on request",
			program:  "echo \"Hello World\"\n",
			wantExit: orchestrator.ExitOK,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			files := map[string]string{
				"project.hcl": helloTested,
				"hello/hello": tc.program,
			}

			result := testutil.RunProject(t, files, app.Config{
				Platform:  "Linux",
				Overrides: tc.overrides,
				RunTests:  tc.runTests,
			}, nil)

			require.NoError(t, result.Err)
			assert.Equal(t, tc.wantExit, result.Result.ExitCode())
			assert.Equal(t, []string{"hello", "hello:tests"}, testutil.VisitedModules(result))
			testutil.AssertInstalled(t, result, "/sandbox/bin/hello", tc.program)
			for _, want := range tc.wantOutput {
				assert.Contains(t, result.Output, want)
			}
			if !tc.runTests {
				assert.NotContains(t, result.Output, "Tests complete")
			}
			assert.Empty(t, result.Result.IgnoredVariables)
		})
	}
}

func TestSelectors(t *testing.T) {
	t.Parallel()
	files := map[string]string{
		"project.hcl":     helloGoodbye + "\nmodule \"tests\" {\n  parent = \"goodbye\"\n}\n",
		"hello/hello":     "hello\n",
		"goodbye/goodbye": "goodbye\n",
	}

	testCases := []struct {
		name    string
		targets []string
		want    []string
	}{
		{name: "subtree", targets: []string{"goodbye:"}, want: []string{"goodbye", "goodbye:tests"}},
		{name: "any depth", targets: []string{":tests"}, want: []string{"goodbye:tests"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			result := testutil.RunProject(t, files, app.Config{Platform: "Linux", Targets: tc.targets}, nil)
			require.NoError(t, result.Err)
			assert.Equal(t, tc.want, testutil.VisitedModules(result))
		})
	}
}
