package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/specialistvlad/buildmeup/internal/capability"
	"github.com/specialistvlad/buildmeup/internal/install"
	"github.com/specialistvlad/buildmeup/internal/orchestrator"
	"github.com/specialistvlad/buildmeup/internal/platform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v2"
)

func sampleResult() *orchestrator.Result {
	return &orchestrator.Result{
		Project:  "example",
		Platform: platform.NewProfile("Linux", "", nil, false),
		Modules: []orchestrator.ModuleResult{
			{
				Name:     "hello",
				Status:   orchestrator.Built,
				Duration: 1500 * time.Millisecond,
				Installed: []install.Location{
					{Module: "hello", Type: install.Binary, Payload: "hello/hello", Path: "/out/bin/hello"},
				},
				Tests: []orchestrator.TestResult{{Name: "hello-output", Passed: true, Duration: 20 * time.Millisecond}},
			},
			{
				Name:   "hello:tests",
				Status: orchestrator.BuildFailed,
				Err:    &orchestrator.BuildActionError{Module: "hello:tests", Err: errors.New("cc exploded\nline two")},
			},
			{
				Name:   "hello:tests:docs",
				Status: orchestrator.Skipped,
				Err:    &orchestrator.ParentFailedError{Module: "hello:tests:docs", Parent: "hello:tests"},
			},
		},
		IgnoredVariables: []string{"CC"},
	}
}

func TestErrorKind(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		err  error
		want string
	}{
		{&capability.ConfigurationError{Module: "m", Capability: "cc"}, KindConfiguration},
		{&orchestrator.BuildActionError{Module: "m", Err: errors.New("x")}, KindBuild},
		{fmt.Errorf("wrapped: %w", &install.UnknownArtifactTypeError{Module: "m", Payload: "p"}), KindUnknownType},
		{&install.NoInstallRuleError{Module: "m", Type: install.Binary, Platform: "Linux"}, KindNoInstallRule},
		{&orchestrator.ParentFailedError{Module: "m", Parent: "p"}, KindParentFailed},
		{&orchestrator.TestFailedError{Module: "m", Test: "t", Err: errors.New("x")}, KindTest},
		{context.Canceled, KindInterrupted},
		{errors.New("other"), KindOther},
	}
	for _, tc := range testCases {
		t.Run(tc.want, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, ErrorKind(tc.err))
		})
	}
}

func TestNew(t *testing.T) {
	t.Parallel()
	doc := New(sampleResult())

	assert.Equal(t, "example", doc.Project)
	assert.Equal(t, "Linux", doc.Platform)
	assert.False(t, doc.Success)
	assert.Equal(t, orchestrator.ExitBuild, doc.ExitCode)
	require.Len(t, doc.Modules, 3)
	assert.Equal(t, Module{
		Name:       "hello",
		Status:     "Built",
		DurationMS: 1500,
		Installed:  []Installed{{Type: "BIN", Payload: "hello/hello", Path: "/out/bin/hello"}},
		Tests:      []Test{{Name: "hello-output", Passed: true, DurationMS: 20}},
	}, doc.Modules[0])
	assert.Equal(t, 1, doc.TestsPassed)
	assert.Zero(t, doc.TestsFailed)
	assert.Equal(t, KindBuild, doc.Modules[1].ErrorKind)
	assert.Equal(t, KindParentFailed, doc.Modules[2].ErrorKind)
}

func TestWrite_Text(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatText, New(sampleResult())))

	out := buf.String()
	assert.Contains(t, out, "Project example on Linux: FAILED (exit 4)\n")
	assert.Contains(t, out, "Ignored variables: CC\n")
	assert.Regexp(t, `hello\s+Built\s+1\.5s`, out)
	assert.Regexp(t, `BIN\s+hello/hello\s+-> /out/bin/hello`, out)
	assert.Contains(t, out, "build: module \"hello:tests\": build failed: cc exploded\n")
	assert.NotContains(t, out, "line two")
}

func TestWrite_TextTests(t *testing.T) {
	t.Parallel()
	res := &orchestrator.Result{
		Project:  "example",
		Platform: platform.NewProfile("Linux", "", nil, false),
		Modules: []orchestrator.ModuleResult{
			{
				Name:   "hello",
				Status: orchestrator.TestFailed,
				Err: &orchestrator.TestFailedError{
					Module: "hello", Test: "hello-output",
					Err: errors.New(`unexpected output: want "Hello World!", got "Hello World"`),
				},
				Tests: []orchestrator.TestResult{
					{Name: "runs", Passed: true},
					{Name: "hello-output", Err: errors.New("unexpected output")},
				},
			},
			{Name: "goodbye", Status: orchestrator.Built},
		},
	}
	doc := New(res)
	assert.Equal(t, orchestrator.ExitTest, doc.ExitCode)
	assert.Equal(t, KindTest, doc.Modules[0].ErrorKind)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatText, doc))
	out := buf.String()
	assert.Contains(t, out, "FAILED (exit 6)")
	assert.Contains(t, out, "PASSED - [hello] runs\n")
	assert.Contains(t, out, "FAILED - [hello] hello-output\n      unexpected output\n")
	assert.Contains(t, out, "Tests complete (1 passed, 1 failed)\n")

	// Runs without tests print no test summary.
	buf.Reset()
	require.NoError(t, Write(&buf, FormatText, New(&orchestrator.Result{Project: "p", Success: true})))
	assert.NotContains(t, buf.String(), "Tests complete")
}

func TestWrite_Structured(t *testing.T) {
	t.Parallel()
	doc := New(sampleResult())

	var js bytes.Buffer
	require.NoError(t, Write(&js, FormatJSON, doc))
	var fromJSON Document
	require.NoError(t, json.Unmarshal(js.Bytes(), &fromJSON))
	if diff := cmp.Diff(doc, fromJSON); diff != "" {
		t.Errorf("json report mismatch (-want +got):\n%s", diff)
	}
	assert.Contains(t, js.String(), `"exit_code": 4`)

	var ym bytes.Buffer
	require.NoError(t, Write(&ym, FormatYAML, doc))
	var fromYAML Document
	require.NoError(t, yaml.Unmarshal(ym.Bytes(), &fromYAML))
	if diff := cmp.Diff(doc, fromYAML); diff != "" {
		t.Errorf("yaml report mismatch (-want +got):\n%s", diff)
	}
	assert.Contains(t, ym.String(), "error_kind: parent-failed")

	require.Error(t, Write(&js, "xml", doc))
}

func TestHistory(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")

	h, err := OpenHistory(ctx, path)
	require.NoError(t, err)
	doc := New(sampleResult())
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	first, err := h.Record(ctx, doc, at)
	require.NoError(t, err)
	require.NoError(t, h.Close())

	// Reopening keeps earlier runs.
	h, err = OpenHistory(ctx, path)
	require.NoError(t, err)
	defer h.Close()
	doc.Success, doc.ExitCode = true, 0
	second, err := h.Record(ctx, doc, at.Add(time.Hour))
	require.NoError(t, err)
	assert.Greater(t, second, first)

	runs, err := h.Runs(ctx, "example")
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second, runs[0].ID)
	assert.True(t, runs[0].Success)
	assert.False(t, runs[1].Success)
	assert.Equal(t, orchestrator.ExitBuild, runs[1].ExitCode)
	assert.Equal(t, at, runs[1].FinishedAt)
	if diff := cmp.Diff(doc.Modules, runs[1].Modules); diff != "" {
		t.Errorf("stored modules mismatch (-want +got):\n%s", diff)
	}

	none, err := h.Runs(ctx, "other")
	require.NoError(t, err)
	assert.Empty(t, none)
}
