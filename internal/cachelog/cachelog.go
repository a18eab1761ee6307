// Package cachelog is the core's internal "swallow and log" facility.
//
// Removal-listener panics and refresh-path loader failures are captured
// and logged here, never surfaced to a caller and never allowed to halt
// the drain. A nil Logger (the default) makes every call here a no-op,
// mirroring the zero-Config-is-usable rule the rest of the package
// follows.
package cachelog

import (
	"github.com/rs/zerolog"
)

// Logger is the narrow logging surface the core depends on. Swap in any
// zerolog.Logger (including zerolog.Nop() to disable logging explicitly).
type Logger struct {
	zl zerolog.Logger
	on bool
}

// New wraps a zerolog.Logger for use by the cache core.
func New(zl zerolog.Logger) Logger { return Logger{zl: zl, on: true} }

// Disabled returns a Logger that drops every event without allocating.
func Disabled() Logger { return Logger{} }

func (l Logger) ListenerPanic(recovered any) {
	if !l.on {
		return
	}
	l.zl.Error().Interface("panic", recovered).Msg("removal listener panicked; suppressed")
}

func (l Logger) RefreshLoadFailed(err error) {
	if !l.on {
		return
	}
	l.zl.Warn().Err(err).Msg("refresh load failed; retaining stale value")
}

func (l Logger) DrainPanic(recovered any) {
	if !l.on {
		return
	}
	l.zl.Error().Interface("panic", recovered).Msg("maintenance drain panicked; state left consistent")
}
