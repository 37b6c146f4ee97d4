package statestore

import (
	"fmt"
	"sync"

	"github.com/specialistvlad/buildmeup/internal/modgraph"
)

// State is a module's lifecycle state.
type State int

const (
	Unvisited State = iota
	Configuring
	Configured
	ConfigurationFailed
	Building
	Built
	BuildFailed
	Installing
	Installed
	InstallFailed
	Skipped
)

var stateNames = [...]string{
	Unvisited:           "Unvisited",
	Configuring:         "Configuring",
	Configured:          "Configured",
	ConfigurationFailed: "ConfigurationFailed",
	Building:            "Building",
	Built:               "Built",
	BuildFailed:         "BuildFailed",
	Installing:          "Installing",
	Installed:           "Installed",
	InstallFailed:       "InstallFailed",
	Skipped:             "Skipped",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	switch s {
	case ConfigurationFailed, BuildFailed, Installed, InstallFailed, Skipped:
		return true
	}
	return false
}

// Failed reports whether the state is one of the failure states.
func (s State) Failed() bool {
	return s == ConfigurationFailed || s == BuildFailed || s == InstallFailed
}

// allowed lists the states each state may move to.
var allowed = map[State][]State{
	Unvisited:   {Configuring, Skipped},
	Configuring: {Configured, ConfigurationFailed},
	Configured:  {Building, Skipped},
	Building:    {Built, BuildFailed},
	Built:       {Installing},
	Installing:  {Installed, InstallFailed},
}

// TransitionError is returned for a transition the lifecycle forbids.
type TransitionError struct {
	Module modgraph.Handle
	From   State
	To     State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("module #%d: illegal transition %s -> %s", e.Module, e.From, e.To)
}

type entry struct {
	state State
	err   error
}

// Store holds one entry per module handle.
type Store struct {
	entries sync.Map // Key: modgraph.Handle, Value: *entry
}

// New creates an empty store; every module starts Unvisited.
func New() *Store {
	return &Store{}
}

// State returns a module's current state.
func (s *Store) State(h modgraph.Handle) State {
	e, ok := s.entries.Load(h)
	if !ok {
		return Unvisited
	}
	return e.(*entry).state
}

// Err returns the error recorded with a module's last transition, if any.
func (s *Store) Err(h modgraph.Handle) error {
	e, ok := s.entries.Load(h)
	if !ok {
		return nil
	}
	return e.(*entry).err
}

// Transition moves a module to state to, recording err with it. It fails
// with *TransitionError if the move is not allowed from the current state,
// including when another goroutine won a race for the same transition.
func (s *Store) Transition(h modgraph.Handle, to State, err error) error {
	for {
		raw, loaded := s.entries.Load(h)
		from := Unvisited
		if loaded {
			from = raw.(*entry).state
		}
		if !canMove(from, to) {
			return &TransitionError{Module: h, From: from, To: to}
		}

		next := &entry{state: to, err: err}
		if !loaded {
			if _, raced := s.entries.LoadOrStore(h, next); !raced {
				return nil
			}
			continue
		}
		if s.entries.CompareAndSwap(h, raw, next) {
			return nil
		}
	}
}

func canMove(from, to State) bool {
	for _, s := range allowed[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Snapshot returns the state of every module that has left Unvisited.
func (s *Store) Snapshot() map[modgraph.Handle]State {
	out := make(map[modgraph.Handle]State)
	s.entries.Range(func(k, v any) bool {
		out[k.(modgraph.Handle)] = v.(*entry).state
		return true
	})
	return out
}
