package statestore

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/specialistvlad/buildmeup/internal/modgraph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHappyPath(t *testing.T) {
	s := New()
	h := modgraph.Handle(0)

	assert.Equal(t, Unvisited, s.State(h))
	for _, st := range []State{Configuring, Configured, Building, Built, Installing, Installed} {
		require.NoError(t, s.Transition(h, st, nil))
		assert.Equal(t, st, s.State(h))
	}
	assert.True(t, s.State(h).Terminal())
	assert.Nil(t, s.Err(h))
}

func TestFailureRecordsError(t *testing.T) {
	s := New()
	h := modgraph.Handle(3)
	cause := errors.New("cc not found")

	require.NoError(t, s.Transition(h, Configuring, nil))
	require.NoError(t, s.Transition(h, ConfigurationFailed, cause))

	assert.Equal(t, ConfigurationFailed, s.State(h))
	assert.True(t, s.State(h).Failed())
	assert.Equal(t, cause, s.Err(h))
}

func TestIllegalTransitions(t *testing.T) {
	testCases := []struct {
		name string
		path []State
		bad  State
	}{
		{name: "build before configure", bad: Building},
		{name: "install before build", path: []State{Configuring, Configured}, bad: Installing},
		{name: "build twice", path: []State{Configuring, Configured, Building, Built}, bad: Building},
		{name: "skip a started build", path: []State{Configuring, Configured, Building}, bad: Skipped},
		{name: "leave terminal state", path: []State{Skipped}, bad: Configuring},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := New()
			for _, st := range tc.path {
				require.NoError(t, s.Transition(1, st, nil))
			}
			err := s.Transition(1, tc.bad, nil)
			var te *TransitionError
			require.ErrorAs(t, err, &te)
			assert.Equal(t, tc.bad, te.To)
		})
	}
}

func TestBuildingIsEnteredOnce(t *testing.T) {
	s := New()
	h := modgraph.Handle(9)
	require.NoError(t, s.Transition(h, Configuring, nil))
	require.NoError(t, s.Transition(h, Configured, nil))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.Transition(h, Building, nil) == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestSnapshot(t *testing.T) {
	s := New()
	require.NoError(t, s.Transition(0, Configuring, nil))
	require.NoError(t, s.Transition(1, Skipped, nil))

	assert.Equal(t, map[modgraph.Handle]State{0: Configuring, 1: Skipped}, s.Snapshot())
	assert.Equal(t, "ConfigurationFailed", ConfigurationFailed.String())
	assert.Equal(t, "State(42)", State(42).String())
}
