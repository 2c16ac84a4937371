package kernel

// lockRef names one entry of a lock chain: a resource or a spinlock. Every
// task and ISR owns a chain, a stack linked through the locks themselves with
// the most recent acquisition on top.
type lockRef uint32

const noLock lockRef = 0

const (
	lockResource = 1 << 16
	lockSpinlock = 2 << 16
)

func resourceRef(r ResourceID) lockRef { return lockRef(lockResource | uint32(r)) }
func spinlockRef(s SpinlockID) lockRef { return lockRef(lockSpinlock | uint32(s)) }

func (l lockRef) isSpinlock() bool { return l&lockSpinlock != 0 }
func (l lockRef) id() uint16 { return uint16(l) }

type resourceDyn struct {
	taken     bool
	taker     caller
	savedPrio Priority
	savedMask uint8
	next      lockRef
}

// chainOf returns the lock chain head of c, or nil for callers that cannot
// hold locks.
func (k *Kernel) chainOf(c caller) *lockRef {
	switch c.kind {
	case callerTask:
		return &k.tasks[c.id].lastLock
	case callerISR:
		return &k.isrs[c.id].lastLock
	}
	return nil
}

func (k *Kernel) nextLock(l lockRef) lockRef {
	if l.isSpinlock() {
		return k.spinNext[l.id()]
	}
	return k.resources[l.id()].next
}

// lockCheck reports what a non-empty chain blocks: spinlocks take precedence
// over resources.
func (k *Kernel) lockCheck(head lockRef) Status {
	if head == noLock {
		return StatusOK
	}
	for l := head; l != noLock; l = k.nextLock(l) {
		if l.isSpinlock() {
			return StatusSpinlock
		}
	}
	return StatusResource
}

// staticPriority is the configured priority of a task or the unified
// priority of an ISR.
func (k *Kernel) staticPriority(c caller) Priority {
	if c.kind == callerISR {
		return ISRPriority(k.cfg.ISRs[c.id].Level)
	}
	return k.cfg.Tasks[c.id].Priority
}

// GetResource takes resource r for the executing task or ISR using the
// priority ceiling protocol.
func (k *Kernel) GetResource(r ResourceID) Status {
	return k.service(ServiceGetResource, uint32(r), 0, func(c caller) Status {
		if int(r) >= len(k.cfg.Resources) {
			return StatusID
		}
		chain := k.chainOf(c)
		if chain == nil {
			return StatusCallLevel
		}
		rc := &k.cfg.Resources[r]
		if !k.ownsResource(r) {
			return StatusAccess
		}
		if !k.permitted(c, rc.Permissions) {
			return StatusPermission
		}
		rd := &k.resources[r]
		if rd.taken {
			return StatusInUse
		}
		if k.staticPriority(c) > rc.Ceiling {
			return StatusCeiling
		}

		rd.taken = true
		rd.taker = c
		rd.savedMask = k.intMask
		rd.next = *chain
		*chain = resourceRef(r)
		if c.kind == callerTask {
			t := TaskID(c.id)
			rd.savedPrio = k.tasks[t].prio
			if rc.Ceiling > rd.savedPrio {
				k.setPriority(t, rc.Ceiling)
			}
		}
		if lvl := interruptLevel(rc.Ceiling); lvl > k.intMask {
			k.intMask = lvl
		}
		return StatusOK
	})
}

// ReleaseResource releases r, which must be the most recent lock of the
// executing task or ISR.
func (k *Kernel) ReleaseResource(r ResourceID) Status {
	return k.service(ServiceReleaseResource, uint32(r), 0, func(c caller) Status {
		if int(r) >= len(k.cfg.Resources) {
			return StatusID
		}
		chain := k.chainOf(c)
		if chain == nil {
			return StatusCallLevel
		}
		if *chain != resourceRef(r) {
			return StatusNoFunc
		}
		k.popResource(c, chain)
		return StatusOK
	})
}

// popResource releases the resource on top of chain.
func (k *Kernel) popResource(c caller, chain *lockRef) {
	r := ResourceID(chain.id())
	rd := &k.resources[r]
	*chain = rd.next
	rd.next = noLock
	rd.taken = false
	rd.taker = caller{}
	k.intMask = rd.savedMask
	if c.kind == callerTask {
		t := TaskID(c.id)
		if s := k.tasks[t].state; s == TaskRunning || s.Ready() {
			k.setPriority(t, rd.savedPrio)
		} else {
			k.tasks[t].prio = rd.savedPrio
		}
	}
}

// releaseChain force-releases every lock of c, newest first.
func (k *Kernel) releaseChain(c caller) {
	chain := k.chainOf(c)
	if chain == nil {
		return
	}
	for *chain != noLock {
		if chain.isSpinlock() {
			k.popSpinlock(c, chain)
		} else {
			k.popResource(c, chain)
		}
	}
}
