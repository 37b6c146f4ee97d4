package testutil

import (
	"testing"

	"github.com/go-git/go-billy/v5/util"
	"github.com/specialistvlad/buildmeup/internal/orchestrator"
	"github.com/stretchr/testify/require"
)

// AssertModuleStatus checks the reported status of one module.
func AssertModuleStatus(t *testing.T, result *HarnessResult, module string, want orchestrator.Status) {
	t.Helper()
	require.NotNil(t, result.Result, "run produced no result: %v", result.Err)
	for _, m := range result.Result.Modules {
		if m.Name == module {
			require.Equal(t, want, m.Status, "module %s: %v", module, m.Err)
			return
		}
	}
	require.Failf(t, "module not visited", "module %s is not part of the result", module)
}

// AssertInstalled checks that path exists in the destination filesystem
// with the given content.
func AssertInstalled(t *testing.T, result *HarnessResult, path, content string) {
	t.Helper()
	got, err := util.ReadFile(result.Dest, path)
	require.NoError(t, err, "expected %s to be installed", path)
	require.Equal(t, content, string(got), "content of %s", path)
}

// VisitedModules lists the result's modules in traversal order.
func VisitedModules(result *HarnessResult) []string {
	if result.Result == nil {
		return nil
	}
	out := make([]string, 0, len(result.Result.Modules))
	for _, m := range result.Result.Modules {
		out = append(out, m.Name)
	}
	return out
}
