// Package install classifies the artifacts a module produces and copies them
// to the location the active platform's install rules dictate.
package install

import (
	"fmt"
	"strings"
)

// ArtifactType is the installation category of an artifact.
type ArtifactType string

const (
	Binary        ArtifactType = "BIN"
	SharedLibrary ArtifactType = "SHLIB"
	StaticLibrary ArtifactType = "LIB"
	Header        ArtifactType = "INC"
	Documentation ArtifactType = "DOC"
	Manual        ArtifactType = "MAN"
	Data          ArtifactType = "DATA"
	Config        ArtifactType = "CFG"
)

// Types lists every artifact type in a stable order.
var Types = []ArtifactType{Binary, SharedLibrary, StaticLibrary, Header, Documentation, Manual, Data, Config}

// ParseType accepts a type name in any case.
func ParseType(s string) (ArtifactType, error) {
	t := ArtifactType(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Types {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown artifact type %q", s)
}

// Artifact is an output of a module's build action.
type Artifact struct {
	// Module is the full name of the producing module.
	Module string
	// Type is optional. When set it overrides classification.
	Type ArtifactType
	// Payload is the slash-separated path of the file in the installer's
	// source filesystem.
	Payload string
	// InstallName renames the file at its destination. Defaults to the
	// payload's base name.
	InstallName string
}

// Location records where an artifact was installed.
type Location struct {
	Module  string
	Type    ArtifactType
	Payload string
	Path    string
}

// UnknownArtifactTypeError is returned when no classification rule matches an
// untagged artifact and no default type is configured.
type UnknownArtifactTypeError struct {
	Module  string
	Payload string
}

func (e *UnknownArtifactTypeError) Error() string {
	return fmt.Sprintf("module %q: cannot classify artifact %q", e.Module, e.Payload)
}

// NoInstallRuleError is returned when neither a platform specific nor a
// default rule exists for an artifact type.
type NoInstallRuleError struct {
	Module   string
	Type     ArtifactType
	Platform string
}

func (e *NoInstallRuleError) Error() string {
	return fmt.Sprintf("module %q: no install rule for %s artifacts on platform %q", e.Module, e.Type, e.Platform)
}
