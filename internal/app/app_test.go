package app

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"code.cloudfoundry.org/clock/fakeclock"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/specialistvlad/buildmeup/internal/orchestrator"
	"github.com/specialistvlad/buildmeup/internal/report"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const exampleProject = `
project "example" {
  default_platform = "Linux"
}

capability "cc" {
  kind      = "static"
  value     = "cc 1.0"
  available = true
}

capability "fortran" {
  kind  = "static"
  value = "no fortran compiler"
}

module "hello" {
  path        = "hello"
  description = "Hello World program."
  requires    = ["cc"]

  variable "ADD_EXCLAMATION" {
    default     = "0"
    description = "Append an exclamation mark."
  }

  build "files" {
    output "hello.sh" {
      type = "BIN"
    }
    files = ["README.md"]
  }

  module "tests" {
    build "noop" {}
  }
}

module "goodbye" {
  path = "goodbye"

  build "files" {
    files = ["goodbye.sh"]
    type  = "BIN"
  }
}

module "legacy" {
  requires = ["fortran"]
}
`

func writeProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"project.hcl":        exampleProject,
		"hello/hello.sh":     "#!/bin/sh\necho hello\n",
		"hello/README.md":    "# hello\n",
		"goodbye/goodbye.sh": "#!/bin/sh\necho goodbye\n",
	}
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o755))
	}
	return dir
}

type testApp struct {
	app  *App
	out  *bytes.Buffer
	logs *bytes.Buffer
	dest billy.Filesystem
}

func newTestApp(t *testing.T, cfg Config) *testApp {
	t.Helper()
	c, err := NewConfig(cfg)
	require.NoError(t, err)
	c.LogLevel = "debug"

	ta := &testApp{out: &bytes.Buffer{}, logs: &bytes.Buffer{}, dest: memfs.New()}
	ta.app, err = NewApp(context.Background(), ta.out, ta.logs, c,
		WithDestination(ta.dest),
		WithClock(fakeclock.NewFakeClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))))
	require.NoError(t, err)
	t.Cleanup(func() {
		if os.Getenv("BMU_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), ta.logs.String())
		}
	})
	return ta
}

func TestNewConfig(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "defaults", cfg: Config{ProjectPath: "."}},
		{name: "missing project", cfg: Config{}, wantErr: "ProjectPath"},
		{name: "negative workers", cfg: Config{ProjectPath: ".", Workers: -1}, wantErr: "workers"},
		{name: "bad log level", cfg: Config{ProjectPath: ".", LogLevel: "loud"}, wantErr: "log-level"},
		{name: "bad log format", cfg: Config{ProjectPath: ".", LogFormat: "xml"}, wantErr: "log-format"},
		{name: "bad report", cfg: Config{ProjectPath: ".", ReportFormat: "csv"}, wantErr: "report"},
		{name: "bad install kind", cfg: Config{ProjectPath: ".", InstallKind: "global"}, wantErr: "install-kind"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg, err := NewConfig(tc.cfg)
			if tc.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 4, cfg.Workers)
			assert.Equal(t, "info", cfg.LogLevel)
			assert.Equal(t, "text", cfg.LogFormat)
			assert.Equal(t, report.FormatText, cfg.ReportFormat)
		})
	}
}

func TestNewLogger(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	logger := newLogger("warn", "json", &buf)
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "shown", line["msg"])
	assert.Equal(t, "v", line["k"])

	assert.True(t, newLogger("nonsense", "text", &buf).Enabled(context.Background(), slog.LevelInfo))
	assert.False(t, newLogger("nonsense", "text", &buf).Enabled(context.Background(), slog.LevelDebug))
}

func TestRun_BuildsAndInstalls(t *testing.T) {
	t.Parallel()
	dir := writeProject(t)
	db := filepath.Join(t.TempDir(), "history.db")
	ta := newTestApp(t, Config{
		ProjectPath: dir,
		Targets:     []string{"hello", "goodbye"},
		Prefix:      "/sandbox",
		ReportDB:    db,
	})

	res, err := ta.app.Run(context.Background())
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, orchestrator.ExitOK, res.ExitCode())
	assert.Equal(t, "Linux", res.Platform.Name())

	for path, content := range map[string]string{
		"/sandbox/bin/hello.sh":   "#!/bin/sh\necho hello\n",
		"/sandbox/doc/README.md":  "# hello\n",
		"/sandbox/bin/goodbye.sh": "#!/bin/sh\necho goodbye\n",
	} {
		got, err := util.ReadFile(ta.dest, path)
		require.NoError(t, err, path)
		assert.Equal(t, content, string(got), path)
	}

	out := ta.out.String()
	assert.Contains(t, out, "Project example on Linux: ok")
	assert.Regexp(t, `hello:tests\s+Built`, out)
	assert.NotContains(t, out, "legacy")

	h, err := report.OpenHistory(context.Background(), db)
	require.NoError(t, err)
	defer h.Close()
	runs, err := h.Runs(context.Background(), "example")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.True(t, runs[0].Success)
	assert.Len(t, runs[0].Modules, 3)

	assert.Contains(t, ta.logs.String(), "Build recorded.")
}

func TestRun_ConfigurationFailure(t *testing.T) {
	t.Parallel()
	ta := newTestApp(t, Config{
		ProjectPath:  writeProject(t),
		Targets:      []string{"legacy"},
		ReportFormat: report.FormatJSON,
	})

	res, err := ta.app.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, orchestrator.ExitConfiguration, res.ExitCode())

	var doc report.Document
	require.NoError(t, json.Unmarshal(ta.out.Bytes(), &doc))
	require.Len(t, doc.Modules, 1)
	assert.Equal(t, report.KindConfiguration, doc.Modules[0].ErrorKind)
	assert.Contains(t, doc.Modules[0].Cause, "no fortran compiler")
}

func TestRun_FatalErrors(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		cfg  Config
	}{
		{name: "unknown platform", cfg: Config{Platform: "Amiga"}},
		{name: "unknown target", cfg: Config{Targets: []string{"nope"}}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			tc.cfg.ProjectPath = writeProject(t)
			ta := newTestApp(t, tc.cfg)
			res, err := ta.app.Run(context.Background())
			require.Error(t, err)
			assert.Nil(t, res)
			assert.Empty(t, ta.out.String())
		})
	}
}

func TestRun_DefaultPrefix(t *testing.T) {
	t.Parallel()
	dir := writeProject(t)
	ta := newTestApp(t, Config{ProjectPath: dir, Targets: []string{"goodbye"}})

	_, err := ta.app.Run(context.Background())
	require.NoError(t, err)
	_, err = ta.dest.Stat(filepath.ToSlash(filepath.Join(dir, DefaultPrefixDir, "bin", "goodbye.sh")))
	require.NoError(t, err)
}

func TestRun_ListModules(t *testing.T) {
	t.Parallel()
	ta := newTestApp(t, Config{ProjectPath: writeProject(t), ListModules: true})

	res, err := ta.app.Run(context.Background())
	require.NoError(t, err)
	assert.Nil(t, res)

	out := ta.out.String()
	assert.Regexp(t, `(?m)^hello\s+hello\s+Hello World program\.$`, out)
	assert.Regexp(t, `(?m)^  -D ADD_EXCLAMATION=0\s+Append an exclamation mark\.$`, out)
	assert.Regexp(t, `(?m)^  hello:tests\s+hello\s*$`, out)
	assert.Regexp(t, `(?m)^legacy\s+\.\s*$`, out)
}

func TestRun_ModuleVariableOverrides(t *testing.T) {
	t.Parallel()
	ta := newTestApp(t, Config{
		ProjectPath: writeProject(t),
		Targets:     []string{"hello"},
		Overrides:   map[string]string{"ADD_EXCLAMATION": "1", "CC": "clang"},
	})

	res, err := ta.app.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"CC"}, res.IgnoredVariables, "a declared module variable is not ignored")
	assert.Contains(t, ta.out.String(), "Ignored variables: CC\n")
}

func TestNewApp_BrokenProject(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "p.hcl"), []byte(`module "x" {`), 0o644))
	cfg, err := NewConfig(Config{ProjectPath: dir})
	require.NoError(t, err)

	_, err = NewApp(context.Background(), &bytes.Buffer{}, &bytes.Buffer{}, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load project")
	assert.Contains(t, err.Error(), "p.hcl")
}
