//go:build !tinygo

package hal

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

type hostHAL struct {
	logger *hostLogger
	t      *hostTime
	timer  Timer
}

// HostConfig tunes the host HAL.
type HostConfig struct {
	// Tick is the duration of one counter tick. Zero means one millisecond.
	Tick time.Duration
	// Out receives log lines. Nil means stdout.
	Out io.Writer
}

// New returns a host HAL implementation.
func New() HAL {
	return NewWithConfig(HostConfig{})
}

// NewWithConfig returns a host HAL implementation tuned by cfg.
func NewWithConfig(cfg HostConfig) HAL {
	out := cfg.Out
	if out == nil {
		out = os.Stdout
	}
	return &hostHAL{
		logger: &hostLogger{w: out},
		t:      newHostTime(cfg.Tick),
		timer:  newHostTimer(),
	}
}

func (h *hostHAL) Logger() Logger { return h.logger }
func (h *hostHAL) Time() Time     { return h.t }
func (h *hostHAL) Timer() Timer   { return h.timer }

type hostLogger struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *hostLogger) WriteLineString(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.w, s)
}

func (l *hostLogger) WriteLineBytes(b []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.w.Write(b)
	l.w.Write([]byte{'\n'})
}
