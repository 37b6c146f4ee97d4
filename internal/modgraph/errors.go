package modgraph

import "fmt"

// DuplicateModuleError is returned when a name collides with a sibling.
type DuplicateModuleError struct {
	Parent string // full name of the parent, empty for roots
	Name   string
}

func (e *DuplicateModuleError) Error() string {
	if e.Parent == "" {
		return fmt.Sprintf("module %q already declared", e.Name)
	}
	return fmt.Sprintf("module %q already declared under %q", e.Name, e.Parent)
}

// CycleError is returned when a module would end up as its own descendant.
type CycleError struct {
	Module string
	Parent string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("module %q cannot be placed under %q: cycle in module tree", e.Module, e.Parent)
}

// UnknownModuleError is returned for a target or parent that does not exist.
type UnknownModuleError struct {
	Name string
}

func (e *UnknownModuleError) Error() string {
	return fmt.Sprintf("unknown module %q", e.Name)
}

// InvalidModuleNameError is returned for names outside [A-Za-z0-9._]+.
type InvalidModuleNameError struct {
	Name string
}

func (e *InvalidModuleNameError) Error() string {
	return fmt.Sprintf("invalid module name %q: only letters, digits, '.' and '_' are allowed", e.Name)
}
