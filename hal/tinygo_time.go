//go:build tinygo

package hal

import "time"

// tickSource emits one tick per period from a ticker goroutine, dropping
// ticks nobody drains.
type tickSource struct {
	ch  chan uint64
	seq uint64
}

func newTickSource(period time.Duration) *tickSource {
	t := &tickSource{ch: make(chan uint64, 16)}
	go func() {
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for range ticker.C {
			t.seq++
			select {
			case t.ch <- t.seq:
			default:
			}
		}
	}()
	return t
}

func (t *tickSource) Ticks() <-chan uint64 { return t.ch }

// sinceBoot is a Timer counting nanoseconds from HAL creation.
type sinceBoot struct {
	start time.Time
}

func (t sinceBoot) Now() uint64 { return uint64(time.Since(t.start)) }
