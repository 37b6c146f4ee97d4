package cli

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/specialistvlad/buildmeup/internal/app"
	"github.com/specialistvlad/buildmeup/internal/orchestrator"
	"github.com/spf13/cobra"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

func usageError(format string, args ...any) *ExitError {
	return &ExitError{Code: orchestrator.ExitUsage, Message: fmt.Sprintf(format, args...)}
}

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")

	var (
		raw       app.Config
		overrides []string
		config    *app.Config
	)

	cmd := &cobra.Command{
		Use:   "bmu [flags] [TARGET...]",
		Short: "Build, configure and install the modules of a project",
		Long: `bmu - a build orchestrator for hierarchical module projects.

Each TARGET is a module selector: a full name such as "hello" or
"hello:tests", where an empty segment matches any number of levels ("hello:"
is hello and everything below it, ":tests" every module named tests).
Without targets every module is built. Modules are configured against the
selected platform, built, and their artifacts installed by type. With --test
each installed module's tests run afterwards.

Exit codes: 0 ok, 1 fatal, 2 usage, 3 configuration, 4 build, 5 install,
6 test.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, targets []string) error {
			raw.Targets = targets
			raw.LogLevel = strings.ToLower(raw.LogLevel)
			raw.LogFormat = strings.ToLower(raw.LogFormat)
			raw.ReportFormat = strings.ToLower(raw.ReportFormat)

			if len(overrides) > 0 {
				raw.Overrides = make(map[string]string, len(overrides))
			}
			for _, kv := range overrides {
				k, v, ok := strings.Cut(kv, "=")
				if !ok || k == "" {
					return usageError("invalid --set %q: expected KEY=VALUE", kv)
				}
				raw.Overrides[k] = v
			}
			if raw.Workers < 1 {
				return usageError("invalid --workers %d: must be at least 1", raw.Workers)
			}
			slog.Debug("CLI parameter validation complete.")

			cfg, err := app.NewConfig(raw)
			if err != nil {
				return usageError("%s", err)
			}
			config = cfg
			return nil
		},
	}
	if args == nil {
		// cobra falls back to os.Args for a nil slice.
		args = []string{}
	}
	cmd.SetArgs(args)
	cmd.SetOut(output)
	cmd.SetErr(output)

	f := cmd.Flags()
	f.StringVarP(&raw.ProjectPath, "project", "f", ".", "Project file or directory.")
	f.StringVarP(&raw.Platform, "target", "t", "", "Target platform name or unambiguous prefix (default: host platform).")
	f.StringArrayVarP(&overrides, "set", "D", nil, "Set a TARGET_* platform variable or a module variable, KEY=VALUE (repeatable).")
	f.StringVar(&raw.Prefix, "prefix", "", "Install prefix (default: the project's, else <project>/out).")
	f.StringVar(&raw.InstallKind, "install-kind", "", "Install layout: sandbox, user, local or system.")
	f.IntVarP(&raw.Workers, "workers", "j", 4, "Number of modules processed in parallel.")
	f.BoolVar(&raw.RunTests, "test", false, "Run module tests after installing.")
	f.StringVar(&raw.LogLevel, "log-level", "info", "Logging level: debug, info, warn or error.")
	f.StringVar(&raw.LogFormat, "log-format", "text", "Log output format: text or json.")
	f.StringVar(&raw.ReportFormat, "report", "text", "Report format: text, json or yaml.")
	f.StringVar(&raw.ReportDB, "report-db", "", "Append the build report to this SQLite database.")
	f.StringVar(&raw.EventsURL, "events-url", "", "Publish module state changes to this socket.io server.")
	f.BoolVar(&raw.ListModules, "list-modules", false, "Print the module tree and exit.")

	if err := cmd.Execute(); err != nil {
		if exitErr, ok := err.(*ExitError); ok {
			return nil, false, exitErr
		}
		return nil, false, usageError("%s", err)
	}
	if config == nil {
		// Help was requested.
		return nil, true, nil
	}

	slog.Debug("CLI parser finished successfully.", "config", config)
	return config, false, nil
}
