package multicore

import "sync/atomic"

// Owner identifies the holder of a spinlock. The zero value means free.
type Owner uint32

// MakeOwner encodes a core plus a core-local unit identifier.
func MakeOwner(core CoreID, unit uint16) Owner {
	return Owner(1<<31 | uint32(core)<<16 | uint32(unit))
}

// Core returns the core of the owner.
func (o Owner) Core() CoreID { return CoreID(uint32(o) >> 16 & 0xFF) }

// Unit returns the core-local unit of the owner.
func (o Owner) Unit() uint16 { return uint16(o) }

// Spinlocks is a fixed table of test-and-set locks.
type Spinlocks struct {
	owner []atomic.Uint32
}

// NewSpinlocks creates n free spinlocks.
func NewSpinlocks(n int) *Spinlocks {
	return &Spinlocks{owner: make([]atomic.Uint32, n)}
}

// Len returns the number of spinlocks.
func (s *Spinlocks) Len() int { return len(s.owner) }

// TryLock takes lock id for o if it is free.
func (s *Spinlocks) TryLock(id int, o Owner) bool {
	return s.owner[id].CompareAndSwap(0, uint32(o))
}

// Unlock frees lock id if it is held by o.
func (s *Spinlocks) Unlock(id int, o Owner) bool {
	return s.owner[id].CompareAndSwap(uint32(o), 0)
}

// Owner returns the current holder of lock id.
func (s *Spinlocks) Owner(id int) (Owner, bool) {
	v := s.owner[id].Load()
	return Owner(v), v != 0
}
