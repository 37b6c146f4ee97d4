// Package testutil holds helpers for end-to-end tests that run whole
// projects through the application.
package testutil

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/specialistvlad/buildmeup/internal/action"
	"github.com/specialistvlad/buildmeup/internal/app"
	"github.com/specialistvlad/buildmeup/internal/orchestrator"
	"github.com/stretchr/testify/require"
)

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

// Write implements the io.Writer interface for SafeBuffer.
func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

// String implements the fmt.Stringer interface for SafeBuffer.
func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// HarnessResult holds the outcomes of an end-to-end run.
type HarnessResult struct {
	LogOutput string
	Output    string // the report
	Result    *orchestrator.Result
	Err       error
	App       *app.App
	// Root is the temporary project directory.
	Root string
	// Dest is the in-memory filesystem artifacts were installed into.
	Dest billy.Filesystem
}

// RunProject writes files (slash paths relative to the project root) into a
// temporary directory, loads it as a project and runs cfg against it.
// cfg.ProjectPath defaults to the project root and the install prefix to
// /sandbox. A nil registry means the default build kinds.
func RunProject(t *testing.T, files map[string]string, cfg app.Config, reg *action.Registry) *HarnessResult {
	t.Helper()
	return RunProjectWithContext(context.Background(), t, files, cfg, reg)
}

// RunProjectWithContext is RunProject with a caller supplied context.
func RunProjectWithContext(ctx context.Context, t *testing.T, files map[string]string, cfg app.Config, reg *action.Registry) *HarnessResult {
	t.Helper()

	root := t.TempDir()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}

	if cfg.ProjectPath == "" {
		cfg.ProjectPath = root
	} else if !filepath.IsAbs(cfg.ProjectPath) {
		cfg.ProjectPath = filepath.Join(root, cfg.ProjectPath)
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "/sandbox"
	}
	cfg.LogLevel = "debug"
	appConfig, err := app.NewConfig(cfg)
	require.NoError(t, err)

	logBuffer := &SafeBuffer{}
	out := &SafeBuffer{}
	res := &HarnessResult{Root: root, Dest: memfs.New()}

	opts := []app.Option{app.WithDestination(res.Dest)}
	if reg != nil {
		opts = append(opts, app.WithActions(reg))
	}
	res.App, res.Err = app.NewApp(ctx, out, logBuffer, appConfig, opts...)
	if res.Err == nil {
		res.Result, res.Err = res.App.Run(ctx)
	}

	if os.Getenv("BMU_TEST_LOGS") == "true" {
		t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logBuffer.String())
	}
	res.LogOutput = logBuffer.String()
	res.Output = out.String()
	return res
}
