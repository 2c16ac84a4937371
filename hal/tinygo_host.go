//go:build tinygo && !baremetal

package hal

import "time"

type tinyGoHostHAL struct {
	logger tinyGoHostLogger
	t      *tickSource
	timer  sinceBoot
}

// New returns a TinyGo-on-host HAL implementation.
//
// This is used by `tinygo run` targets like linux/wasm where there is no MCU pin mapping.
func New() HAL {
	return &tinyGoHostHAL{
		t:     newTickSource(time.Millisecond),
		timer: sinceBoot{start: time.Now()},
	}
}

func (h *tinyGoHostHAL) Logger() Logger { return h.logger }
func (h *tinyGoHostHAL) Time() Time     { return h.t }
func (h *tinyGoHostHAL) Timer() Timer   { return h.timer }

type tinyGoHostLogger struct{}

func (tinyGoHostLogger) WriteLineString(s string) { println(s) }
func (tinyGoHostLogger) WriteLineBytes(b []byte)  { println(string(b)) }
