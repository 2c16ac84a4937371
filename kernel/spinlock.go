package kernel

import (
	"runtime"

	"ecuos/multicore"
)

const (
	unitTask = 1 << 14
	unitISR  = 2 << 14
)

// owner encodes the core plus the task or ISR in a spinlock owner word.
func (k *Kernel) owner(c caller) multicore.Owner {
	unit := uint16(unitTask)
	if c.kind == callerISR {
		unit = unitISR
	}
	return multicore.MakeOwner(k.core, unit|c.id)
}

// spinCheck runs the checks shared by GetSpinlock and TryToGetSpinlock.
func (k *Kernel) spinCheck(c caller, s SpinlockID) (*lockRef, Status) {
	if int(s) >= len(k.cfg.Spinlocks) {
		return nil, StatusID
	}
	chain := k.chainOf(c)
	if chain == nil {
		return nil, StatusCallLevel
	}
	if !k.permitted(c, k.cfg.Spinlocks[s].Permissions) {
		return nil, StatusPermission
	}
	if o, held := k.sys.locks.Owner(int(s)); held && o.Core() == k.core {
		return nil, StatusDeadlock
	}
	if order := k.cfg.Spinlocks[s].Order; order != 0 {
		for l := *chain; l != noLock; l = k.nextLock(l) {
			if !l.isSpinlock() {
				continue
			}
			if top := k.cfg.Spinlocks[l.id()].Order; top != 0 && top >= order {
				return nil, StatusNesting
			}
			break
		}
	}
	return chain, StatusOK
}

// GetSpinlock takes spinlock s, busy-waiting while another core holds it.
// The core keeps serving cross-core requests while it waits.
func (k *Kernel) GetSpinlock(s SpinlockID) Status {
	return k.service(ServiceGetSpinlock, uint32(s), 0, func(c caller) Status {
		chain, st := k.spinCheck(c, s)
		if st != StatusOK {
			return st
		}
		o := k.owner(c)
		for !k.sys.locks.TryLock(int(s), o) {
			if holder, held := k.sys.locks.Owner(int(s)); held && !k.sys.cores.Up(holder.Core()) &&
				k.sys.cores.State(holder.Core()) != multicore.CoreShuttingDown {
				return StatusCoreIsDown
			}
			k.serveInbox()
			runtime.Gosched()
		}
		k.pushSpinlock(chain, s)
		return StatusOK
	})
}

// TryToGetSpinlock takes spinlock s if it is free.
func (k *Kernel) TryToGetSpinlock(s SpinlockID) (bool, Status) {
	var ok bool
	st := k.service(ServiceTryToGetSpinlock, uint32(s), 0, func(c caller) Status {
		chain, st := k.spinCheck(c, s)
		if st != StatusOK {
			return st
		}
		if k.sys.locks.TryLock(int(s), k.owner(c)) {
			k.pushSpinlock(chain, s)
			ok = true
		}
		return StatusOK
	})
	return ok, st
}

// ReleaseSpinlock releases s, which must be the most recent lock of the
// executing task or ISR.
func (k *Kernel) ReleaseSpinlock(s SpinlockID) Status {
	return k.service(ServiceReleaseSpinlock, uint32(s), 0, func(c caller) Status {
		if int(s) >= len(k.cfg.Spinlocks) {
			return StatusID
		}
		chain := k.chainOf(c)
		if chain == nil {
			return StatusCallLevel
		}
		if o, held := k.sys.locks.Owner(int(s)); !held || o != k.owner(c) {
			return StatusState
		}
		if *chain != spinlockRef(s) {
			return StatusNoFunc
		}
		k.popSpinlock(c, chain)
		return StatusOK
	})
}

func (k *Kernel) pushSpinlock(chain *lockRef, s SpinlockID) {
	k.spinNext[s] = *chain
	*chain = spinlockRef(s)
}

func (k *Kernel) popSpinlock(c caller, chain *lockRef) {
	s := SpinlockID(chain.id())
	*chain = k.spinNext[s]
	k.spinNext[s] = noLock
	if !k.sys.locks.Unlock(int(s), k.owner(c)) {
		k.logf("spinlock %s was not held by %s", k.cfg.Spinlocks[s].Name, c)
	}
}
