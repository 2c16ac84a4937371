package kernel

type isrDyn struct {
	pending     bool
	quarantined bool
	lastLock    lockRef
	exec        execWindow
	rate        rateWindow
	count       uint64
}

// RaiseInterrupt marks category-2 interrupt i pending. It is the entry point
// of the interrupt controller: the ISR runs as soon as its level is above the
// current interrupt mask, which may be before RaiseInterrupt returns.
func (k *Kernel) RaiseInterrupt(i ISRID) Status {
	return k.service(ServiceRaiseInterrupt, uint32(i), 0, func(c caller) Status {
		if int(i) >= len(k.cfg.ISRs) {
			return StatusID
		}
		if !k.ownsISR(i) {
			return k.remote(k.cfg.ISRs[i].Core, opRaiseInterrupt, uint64(i), 0, 0).st
		}
		if k.isrs[i].quarantined {
			return StatusQuarantined
		}
		k.isrs[i].pending = true
		return StatusOK
	})
}

// GetISRID returns the innermost running ISR, or InvalidISR.
func (k *Kernel) GetISRID() ISRID {
	for i := len(k.stack) - 1; i >= 0; i-- {
		if k.stack[i].kind == callerISR {
			return ISRID(k.stack[i].id)
		}
	}
	return InvalidISR
}

func (k *Kernel) interruptsLocked() bool {
	return k.disableAll+k.suspendAll+k.suspendOS > 0
}

// currentLevel is the interrupt level below which nothing is delivered.
func (k *Kernel) currentLevel() uint8 {
	lvl := k.intMask
	for _, c := range k.stack {
		if c.kind == callerISR {
			if l := k.cfg.ISRs[c.id].Level; l > lvl {
				lvl = l
			}
		}
	}
	return lvl
}

// deliverInterrupts runs pending ISRs, highest level first, while the mask
// allows it.
func (k *Kernel) deliverInterrupts() {
	for !k.halted && !k.interruptsLocked() {
		best := InvalidISR
		lvl := k.currentLevel()
		for i := range k.isrs {
			d := &k.isrs[i]
			if !d.pending || !k.ownsISR(ISRID(i)) {
				continue
			}
			if l := k.cfg.ISRs[i].Level; l > lvl {
				best, lvl = ISRID(i), l
			}
		}
		if best == InvalidISR {
			return
		}
		k.isrs[best].pending = false
		k.runISR(best)
	}
}

func (k *Kernel) runISR(i ISRID) {
	d := &k.isrs[i]
	ic := &k.cfg.ISRs[i]
	if d.quarantined {
		return
	}
	now := k.now()
	if !d.rate.check(ic.Rate, now) {
		k.report(ServiceRaiseInterrupt, StatusRateLimit, uint32(i), 0)
		return
	}
	d.rate.record(ic.Rate, now)

	self := caller{kind: callerISR, id: uint16(i)}
	k.sample()
	if !k.push(self) {
		k.report(ServiceRaiseInterrupt, StatusNesting, uint32(i), 0)
		return
	}
	outer := k.lock
	k.lock = lockWindow{}
	d.exec = execWindow{}
	d.count++
	k.traceISR(i, true)

	k.invokeISR(i, self)

	k.sample()
	if d.lastLock != noLock {
		k.report(ServiceISRExit, k.lockCheck(d.lastLock), uint32(i), 0)
		k.releaseChain(self)
	}
	if k.interruptsLocked() {
		k.disableAll, k.suspendAll, k.suspendOS = 0, 0, 0
		k.report(ServiceISRExit, StatusState, uint32(i), 1)
	}
	k.lock = outer
	k.traceISR(i, false)
	k.pop()
	if k.GetISRID() == InvalidISR {
		k.asyncPreempt = true
	}
}

func (k *Kernel) invokeISR(i ISRID, self caller) {
	h := k.cfg.ISRs[i].Handler
	if h == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			k.logf("isr %s panicked: %v", k.cfg.ISRs[i].Name, r)
			k.report(ServiceISRExit, StatusUnknownCall, uint32(i), 2)
			k.quarantineISR(i)
		}
	}()
	h.Handle(&Context{k: k, who: self})
}

func (k *Kernel) quarantineISR(i ISRID) {
	d := &k.isrs[i]
	if d.quarantined {
		return
	}
	k.releaseChain(caller{kind: callerISR, id: uint16(i)})
	d.quarantined = true
	d.pending = false
	k.version++
	k.logf("isr %s quarantined", k.cfg.ISRs[i].Name)
}

// UnquarantineISR re-enables a quarantined ISR. Only trusted callers may do
// this.
func (k *Kernel) UnquarantineISR(i ISRID) Status {
	return k.service(ServiceUnquarantine, uint32(i), 1, func(c caller) Status {
		if int(i) >= len(k.cfg.ISRs) {
			return StatusID
		}
		if !k.trusted(c) || !k.ownsISR(i) {
			return StatusAccess
		}
		if !k.isrs[i].quarantined {
			return StatusState
		}
		k.isrs[i].quarantined = false
		k.version++
		return StatusOK
	})
}

// DisableAllInterrupts masks every interrupt. It does not nest.
func (k *Kernel) DisableAllInterrupts() {
	k.service(ServiceInterruptLock, 0, 0, func(c caller) Status {
		if k.disableAll > 0 {
			return StatusNesting
		}
		k.lockInterrupts(c, &k.disableAll, Budget.allLock)
		return StatusOK
	})
}

// EnableAllInterrupts undoes DisableAllInterrupts.
func (k *Kernel) EnableAllInterrupts() {
	k.service(ServiceInterruptLock, 1, 0, func(caller) Status {
		return k.unlockInterrupts(&k.disableAll)
	})
}

// SuspendAllInterrupts masks every interrupt; calls nest.
func (k *Kernel) SuspendAllInterrupts() {
	k.service(ServiceInterruptLock, 2, 0, func(c caller) Status {
		k.lockInterrupts(c, &k.suspendAll, Budget.allLock)
		return StatusOK
	})
}

// ResumeAllInterrupts undoes one SuspendAllInterrupts.
func (k *Kernel) ResumeAllInterrupts() {
	k.service(ServiceInterruptLock, 3, 0, func(caller) Status {
		return k.unlockInterrupts(&k.suspendAll)
	})
}

// SuspendOSInterrupts masks category-2 interrupts; calls nest.
func (k *Kernel) SuspendOSInterrupts() {
	k.service(ServiceInterruptLock, 4, 0, func(c caller) Status {
		k.lockInterrupts(c, &k.suspendOS, Budget.osLock)
		return StatusOK
	})
}

// ResumeOSInterrupts undoes one SuspendOSInterrupts.
func (k *Kernel) ResumeOSInterrupts() {
	k.service(ServiceInterruptLock, 5, 0, func(caller) Status {
		return k.unlockInterrupts(&k.suspendOS)
	})
}

func (k *Kernel) lockInterrupts(c caller, n *int, limit func(Budget) uint64) {
	if !k.interruptsLocked() {
		var b Budget
		switch c.kind {
		case callerTask:
			b = k.cfg.Tasks[c.id].Budget
		case callerISR:
			b = k.cfg.ISRs[c.id].Budget
		}
		if l := limit(b); l > 0 {
			k.lock = lockWindow{active: true, start: k.now(), limit: l, owner: c}
		}
	}
	*n++
}

func (k *Kernel) unlockInterrupts(n *int) Status {
	if *n == 0 {
		return StatusNoFunc
	}
	*n--
	if !k.interruptsLocked() {
		k.lock = lockWindow{}
	}
	return StatusOK
}
