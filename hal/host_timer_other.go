//go:build !linux && !tinygo

package hal

import "time"

type wallTimer struct {
	start time.Time
}

func newHostTimer() Timer { return &wallTimer{start: time.Now()} }

func (t *wallTimer) Now() uint64 { return uint64(time.Since(t.start)) }
