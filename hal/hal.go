package hal

import (
	"errors"
	"sync/atomic"
)

// Logger writes newline-delimited log lines.
type Logger interface {
	WriteLineString(s string)
	WriteLineBytes(b []byte)
}

var ErrNotImplemented = errors.New("not implemented")

// Time provides a base tick stream.
//
// Every tick advances the hardware counters of each core by one.
type Time interface {
	Ticks() <-chan uint64
}

// Timer is a free-running hardware counter.
//
// Now is monotonic; the unit is platform-defined (nanoseconds on the host).
// The kernel samples it for execution-time budgets, lock-time budgets,
// rate limiting and CPU load.
type Timer interface {
	Now() uint64
}

// HAL provides the only contact point between the OS and the outside world.
type HAL interface {
	Logger() Logger
	Time() Time
	Timer() Timer
}

// Monitor is the host-side view of a running system: something that can be
// stepped once per host frame and that can describe itself.
type Monitor interface {
	Step() error
	StatusLines() []string
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) WriteLineString(string) {}
func (NopLogger) WriteLineBytes([]byte)  {}

// ManualTimer is a Timer that only moves when told to.
// Tests and deterministic replays use it instead of a clock.
type ManualTimer struct {
	now atomic.Uint64
}

func (t *ManualTimer) Now() uint64 { return t.now.Load() }

// Advance moves the timer forward by d and returns the new value.
func (t *ManualTimer) Advance(d uint64) uint64 { return t.now.Add(d) }

// Set moves the timer to v.
func (t *ManualTimer) Set(v uint64) { t.now.Store(v) }
