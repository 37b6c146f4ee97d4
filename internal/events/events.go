// Package events publishes module state changes while a build runs.
package events

import (
	"context"
	"time"

	"github.com/specialistvlad/buildmeup/internal/ctxlog"
	"github.com/specialistvlad/buildmeup/internal/statestore"
)

// Event is one module state change.
type Event struct {
	Project  string
	Platform string
	Module   string
	State    statestore.State
	// Err is set for failure and skip states.
	Err      error
	Duration time.Duration
	Time     time.Time
}

// Reporter receives state changes. Implementations must be safe for
// concurrent use and must not block the build for long.
type Reporter interface {
	ModuleState(ctx context.Context, ev Event)
}

// Nop discards every event.
type Nop struct{}

// ModuleState implements Reporter.
func (Nop) ModuleState(context.Context, Event) {}

// LogReporter writes every event to the context logger.
type LogReporter struct{}

// ModuleState implements Reporter.
func (LogReporter) ModuleState(ctx context.Context, ev Event) {
	logger := ctxlog.FromContext(ctx)
	args := []any{"module", ev.Module, "state", ev.State.String()}
	if ev.Duration > 0 {
		args = append(args, "duration", ev.Duration)
	}
	switch {
	case ev.Err != nil && ev.State.Failed():
		logger.Error("Module failed.", append(args, "error", ev.Err)...)
	case ev.Err != nil:
		logger.Warn("Module skipped.", append(args, "reason", ev.Err)...)
	case ev.State.Terminal() || ev.State == statestore.Built:
		logger.Info("Module state changed.", args...)
	default:
		logger.Debug("Module state changed.", args...)
	}
}

// Multi fans every event out to several reporters in order.
type Multi []Reporter

// ModuleState implements Reporter.
func (m Multi) ModuleState(ctx context.Context, ev Event) {
	for _, r := range m {
		r.ModuleState(ctx, ev)
	}
}
