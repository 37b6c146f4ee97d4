package app

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/specialistvlad/buildmeup/internal/install"
	"github.com/specialistvlad/buildmeup/internal/report"
)

// Valid values for the logging options.
var (
	LogLevels  = []string{"debug", "info", "warn", "error"}
	LogFormats = []string{"text", "json"}
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	ProjectPath string // project file or directory
	Targets     []string

	Platform  string            // platform selector, empty for the project default
	Overrides map[string]string // TARGET_* and module variable values

	Prefix      string // install prefix, empty for the project default
	InstallKind string // empty for the project default

	Workers  int
	RunTests bool // run module tests after installing

	LogFormat string
	LogLevel  string

	ReportFormat string
	ReportDB     string // SQLite history database, empty to disable
	EventsURL    string // socket.io server, empty to disable

	ListModules bool
}

// NewConfig validates cfg and fills defaults.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.ProjectPath == "" {
		return nil, errors.New("ProjectPath is a required configuration field and cannot be empty")
	}
	if cfg.Workers == 0 {
		cfg.Workers = 4
	}
	if cfg.Workers < 0 {
		return nil, fmt.Errorf("invalid workers %d: must be at least 1", cfg.Workers)
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}
	if cfg.ReportFormat == "" {
		cfg.ReportFormat = report.FormatText
	}
	if err := oneOf("log-level", cfg.LogLevel, LogLevels); err != nil {
		return nil, err
	}
	if err := oneOf("log-format", cfg.LogFormat, LogFormats); err != nil {
		return nil, err
	}
	if err := oneOf("report", cfg.ReportFormat, report.Formats); err != nil {
		return nil, err
	}
	if cfg.InstallKind != "" {
		if err := oneOf("install-kind", cfg.InstallKind, install.Kinds); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

func oneOf(name, value string, valid []string) error {
	if slices.Contains(valid, value) {
		return nil
	}
	return fmt.Errorf("invalid %s %q: must be one of %s", name, value, strings.Join(valid, ", "))
}
