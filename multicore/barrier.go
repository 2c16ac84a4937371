package multicore

import (
	"context"
	"errors"
	"runtime"
	"sync/atomic"
)

// ErrSyncCorrupt is returned when a barrier slot holds a generation that no
// core could have written.
var ErrSyncCorrupt = errors.New("sync array corrupted")

// SyncArray is the shared array used by SyncHere. Every core owns one slot
// and only ever increments it.
type SyncArray struct {
	slot [MaxCores]atomic.Uint32
}

// Slot returns the generation count of core id.
func (a *SyncArray) Slot(id CoreID) uint32 { return a.slot[id].Load() }

// Poke overwrites a slot. It exists for fault injection in tests.
func (a *SyncArray) Poke(id CoreID, v uint32) { a.slot[id].Store(v) }

// Arrive increments the slot of core self to gen and spins until every core in
// mask() has reached gen. mask is re-read on every round so cores that halt
// while others wait drop out of the barrier. idle, when non-nil, runs between
// rounds. A slot behind gen-1 or ahead of gen+1 cannot be produced by a
// well-behaved core and is reported as corruption.
func (a *SyncArray) Arrive(ctx context.Context, self CoreID, gen uint32, mask func() uint32, idle func()) error {
	if a.slot[self].Load()+1 != gen {
		return ErrSyncCorrupt
	}
	a.slot[self].Store(gen)

	for {
		m := mask() | 1<<self
		done := true
		for i := 0; i < MaxCores; i++ {
			if m&(1<<i) == 0 {
				continue
			}
			v := a.slot[i].Load()
			if int32(gen-v) > 1 || int32(v-gen) > 1 {
				return ErrSyncCorrupt
			}
			if int32(v-gen) < 0 {
				done = false
			}
		}
		if done {
			return nil
		}
		if ctx != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}
		if idle != nil {
			idle()
		}
		runtime.Gosched()
	}
}
