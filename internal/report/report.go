// Package report renders the result of a build for people and machines and
// keeps an optional history of runs in SQLite.
package report

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/specialistvlad/buildmeup/internal/capability"
	"github.com/specialistvlad/buildmeup/internal/install"
	"github.com/specialistvlad/buildmeup/internal/orchestrator"
	"gopkg.in/yaml.v2"
)

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Formats lists the supported output formats.
var Formats = []string{FormatText, FormatJSON, FormatYAML}

// Error kinds.
const (
	KindConfiguration = "configuration"
	KindBuild         = "build"
	KindUnknownType   = "unknown-artifact-type"
	KindNoInstallRule = "no-install-rule"
	KindParentFailed  = "parent-failed"
	KindTest          = "test"
	KindInterrupted   = "interrupted"
	KindOther         = "error"
)

// Document is the serializable form of a run.
type Document struct {
	Project          string   `json:"project" yaml:"project"`
	Platform         string   `json:"platform" yaml:"platform"`
	Success          bool     `json:"success" yaml:"success"`
	ExitCode         int      `json:"exit_code" yaml:"exit_code"`
	IgnoredVariables []string `json:"ignored_variables,omitempty" yaml:"ignored_variables,omitempty"`
	Modules          []Module `json:"modules" yaml:"modules"`
	// TestsPassed and TestsFailed count the tests of every module.
	TestsPassed int `json:"tests_passed,omitempty" yaml:"tests_passed,omitempty"`
	TestsFailed int `json:"tests_failed,omitempty" yaml:"tests_failed,omitempty"`
}

// Module is one row of the breakdown.
type Module struct {
	Name       string      `json:"name" yaml:"name"`
	Status     string      `json:"status" yaml:"status"`
	ErrorKind  string      `json:"error_kind,omitempty" yaml:"error_kind,omitempty"`
	Cause      string      `json:"cause,omitempty" yaml:"cause,omitempty"`
	DurationMS int64       `json:"duration_ms" yaml:"duration_ms"`
	Installed  []Installed `json:"installed,omitempty" yaml:"installed,omitempty"`
	Tests      []Test      `json:"tests,omitempty" yaml:"tests,omitempty"`
}

// Test is the outcome of one module test.
type Test struct {
	Name       string `json:"name" yaml:"name"`
	Passed     bool   `json:"passed" yaml:"passed"`
	Cause      string `json:"cause,omitempty" yaml:"cause,omitempty"`
	DurationMS int64  `json:"duration_ms" yaml:"duration_ms"`
}

// Installed is one placed artifact.
type Installed struct {
	Type    string `json:"type" yaml:"type"`
	Payload string `json:"payload" yaml:"payload"`
	Path    string `json:"path" yaml:"path"`
}

// New converts a result.
func New(res *orchestrator.Result) Document {
	doc := Document{
		Project:          res.Project,
		Platform:         res.Platform.Name(),
		Success:          res.Success,
		ExitCode:         res.ExitCode(),
		IgnoredVariables: res.IgnoredVariables,
		Modules:          make([]Module, 0, len(res.Modules)),
	}
	doc.TestsPassed, doc.TestsFailed = res.TestCounts()
	for _, m := range res.Modules {
		row := Module{
			Name:       m.Name,
			Status:     string(m.Status),
			DurationMS: m.Duration.Milliseconds(),
		}
		if m.Err != nil {
			row.ErrorKind = ErrorKind(m.Err)
			row.Cause = m.Err.Error()
		}
		for _, loc := range m.Installed {
			row.Installed = append(row.Installed, Installed{
				Type:    string(loc.Type),
				Payload: loc.Payload,
				Path:    loc.Path,
			})
		}
		for _, t := range m.Tests {
			tr := Test{Name: t.Name, Passed: t.Passed, DurationMS: t.Duration.Milliseconds()}
			if t.Err != nil {
				tr.Cause = t.Err.Error()
			}
			row.Tests = append(row.Tests, tr)
		}
		doc.Modules = append(doc.Modules, row)
	}
	return doc
}

// ErrorKind names the category of a module error.
func ErrorKind(err error) string {
	var (
		cfgErr    *capability.ConfigurationError
		buildErr  *orchestrator.BuildActionError
		typeErr   *install.UnknownArtifactTypeError
		ruleErr   *install.NoInstallRuleError
		parentErr *orchestrator.ParentFailedError
		testErr   *orchestrator.TestFailedError
	)
	switch {
	case errors.As(err, &cfgErr):
		return KindConfiguration
	case errors.As(err, &buildErr):
		return KindBuild
	case errors.As(err, &typeErr):
		return KindUnknownType
	case errors.As(err, &ruleErr):
		return KindNoInstallRule
	case errors.As(err, &parentErr):
		return KindParentFailed
	case errors.As(err, &testErr):
		return KindTest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindInterrupted
	}
	return KindOther
}

// Write renders doc to w in the given format.
func Write(w io.Writer, format string, doc Document) error {
	switch format {
	case FormatText, "":
		return writeText(w, doc)
	case FormatJSON:
		return writeJSON(w, doc)
	case FormatYAML:
		out, err := yaml.Marshal(doc)
		if err != nil {
			return fmt.Errorf("encoding report: %w", err)
		}
		_, err = w.Write(out)
		return err
	}
	return fmt.Errorf("unknown report format %q", format)
}
