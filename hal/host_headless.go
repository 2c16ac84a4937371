//go:build !tinygo

package hal

import (
	"context"
	"fmt"
	"time"
)

// HeadlessConfig controls the no-window host runner.
type HeadlessConfig struct {
	Enabled bool
	Hz      int
	Ticks   uint64
	// Tick is the counter tick duration handed to the host HAL.
	Tick time.Duration
	// StatusEvery prints the monitor status every N frames (0 = never).
	StatusEvery uint64
}

// RunHeadless runs the OS without opening a window.
func RunHeadless(ctx context.Context, newApp func(HAL) (Monitor, error), cfg HeadlessConfig) error {
	if cfg.Hz <= 0 {
		cfg.Hz = 60
	}

	h := NewWithConfig(HostConfig{Tick: cfg.Tick}).(*hostHAL)
	m, err := newApp(h)
	if err != nil {
		return err
	}

	d := time.Second / time.Duration(cfg.Hz)
	if d <= 0 {
		return fmt.Errorf("invalid headless hz: %d", cfg.Hz)
	}
	t := time.NewTicker(d)
	defer t.Stop()

	var frame uint64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			h.t.step(1)
			if m != nil {
				if err := m.Step(); err != nil {
					return err
				}
			}
			frame++
			if m != nil && cfg.StatusEvery > 0 && frame%cfg.StatusEvery == 0 {
				for _, line := range m.StatusLines() {
					h.logger.WriteLineString(line)
				}
			}
			if cfg.Ticks > 0 && frame >= cfg.Ticks {
				return nil
			}
		}
	}
}
