package kernel

type counterDyn struct {
	value Tick
	// err is the number of ticks since the queue base: the head's delta is
	// measured from value-err.
	err    uint64
	head   AlarmID
	locked bool
}

func (k *Kernel) modulus(c CounterID) uint64 {
	return uint64(k.cfg.Counters[c].MaxAllowedValue) + 1
}

// IncrementCounter advances software counter c by one tick.
func (k *Kernel) IncrementCounter(c CounterID) Status {
	return k.service(ServiceIncrementCounter, uint32(c), 0, func(who caller) Status {
		if int(c) >= len(k.cfg.Counters) || k.cfg.Counters[c].Hardware {
			return StatusID
		}
		if !k.permitted(who, k.cfg.Counters[c].Permissions) {
			return StatusPermission
		}
		if !k.ownsCounter(c) {
			return StatusAccess
		}
		k.advance(c, 1)
		return StatusOK
	})
}

// AdvanceCounter advances counter c by ticks. It is the timer interrupt entry
// point for hardware counters.
func (k *Kernel) AdvanceCounter(c CounterID, ticks Tick) Status {
	return k.service(ServiceAdvanceCounter, uint32(c), uint32(ticks), func(who caller) Status {
		if int(c) >= len(k.cfg.Counters) {
			return StatusID
		}
		if !k.ownsCounter(c) {
			return StatusAccess
		}
		k.advance(c, uint64(ticks))
		return StatusOK
	})
}

// Tick advances every hardware counter of the core by one tick.
func (k *Kernel) Tick() {
	k.service(ServiceAdvanceCounter, uint32(InvalidCounter), 1, func(caller) Status {
		for i := range k.counters {
			c := CounterID(i)
			if k.cfg.Counters[i].Hardware && k.ownsCounter(c) {
				k.advance(c, 1)
			}
		}
		return StatusOK
	})
}

// GetCounterValue returns the current value of counter c.
func (k *Kernel) GetCounterValue(c CounterID) (Tick, Status) {
	var v Tick
	st := k.service(ServiceGetCounterValue, uint32(c), 0, func(who caller) Status {
		if int(c) >= len(k.cfg.Counters) {
			return StatusID
		}
		if !k.permitted(who, k.cfg.Counters[c].Permissions) {
			return StatusPermission
		}
		if !k.ownsCounter(c) {
			r := k.remote(k.cfg.Counters[c].Core, opGetCounterValue, uint64(c), 0, 0)
			v = Tick(r.v0)
			return r.st
		}
		v = k.counters[c].value
		return StatusOK
	})
	return v, st
}

// GetElapsedValue returns the current value of counter c and the ticks that
// passed since prev, modulo the counter range.
func (k *Kernel) GetElapsedValue(c CounterID, prev Tick) (value, elapsed Tick, st Status) {
	st = k.service(ServiceGetElapsedValue, uint32(c), uint32(prev), func(who caller) Status {
		if int(c) >= len(k.cfg.Counters) {
			return StatusID
		}
		cc := &k.cfg.Counters[c]
		if !k.permitted(who, cc.Permissions) {
			return StatusPermission
		}
		if prev > cc.MaxAllowedValue {
			return StatusValue
		}
		if !k.ownsCounter(c) {
			r := k.remote(cc.Core, opGetCounterValue, uint64(c), 0, 0)
			if r.st != StatusOK {
				return r.st
			}
			value = Tick(r.v0)
		} else {
			value = k.counters[c].value
		}
		m := k.modulus(c)
		elapsed = Tick((uint64(value) + m - uint64(prev)) % m)
		return StatusOK
	})
	return value, elapsed, st
}

// advance adds ticks to counter c and expires every alarm that became due.
// A nested advance of the same counter only accumulates; the outer loop
// picks the ticks up.
func (k *Kernel) advance(c CounterID, ticks uint64) {
	cd := &k.counters[c]
	m := k.modulus(c)
	cd.value = Tick((uint64(cd.value) + ticks) % m)
	cd.err += ticks
	k.version++
	if cd.locked {
		return
	}
	cd.locked = true
	for cd.head != InvalidAlarm && k.alarms[cd.head].delta <= cd.err {
		a := cd.head
		ad := &k.alarms[a]
		cd.err -= ad.delta
		cd.head = ad.next
		ad.next = InvalidAlarm
		if ad.period > 0 {
			k.insertAlarm(c, a, uint64(ad.period))
		} else {
			ad.state = AlarmIdle
		}
		k.expire(a)
		if k.halted {
			break
		}
	}
	if cd.head == InvalidAlarm {
		cd.err = 0
	}
	cd.locked = false
}

// expire runs the action of alarm a with interrupts enabled.
func (k *Kernel) expire(a AlarmID) {
	saved := k.critical
	k.critical = 0
	k.runAlarmAction(a)
	k.deliverInterrupts()
	k.critical = saved
}

// insertAlarm links a into the queue of counter c, due d ticks after the
// queue base.
func (k *Kernel) insertAlarm(c CounterID, a AlarmID, d uint64) {
	cd := &k.counters[c]
	prev := InvalidAlarm
	cur := cd.head
	for cur != InvalidAlarm && k.alarms[cur].delta <= d {
		d -= k.alarms[cur].delta
		prev, cur = cur, k.alarms[cur].next
	}
	ad := &k.alarms[a]
	ad.delta = d
	ad.next = cur
	if cur != InvalidAlarm {
		k.alarms[cur].delta -= d
	}
	if prev == InvalidAlarm {
		cd.head = a
	} else {
		k.alarms[prev].next = a
	}
}

// removeAlarm unlinks a from the queue of counter c, donating its delta to
// its successor.
func (k *Kernel) removeAlarm(c CounterID, a AlarmID) bool {
	cd := &k.counters[c]
	prev := InvalidAlarm
	for cur := cd.head; cur != InvalidAlarm; prev, cur = cur, k.alarms[cur].next {
		if cur != a {
			continue
		}
		ad := &k.alarms[a]
		if ad.next != InvalidAlarm {
			k.alarms[ad.next].delta += ad.delta
		}
		if prev == InvalidAlarm {
			cd.head = ad.next
		} else {
			k.alarms[prev].next = ad.next
		}
		ad.next = InvalidAlarm
		if cd.head == InvalidAlarm && !cd.locked {
			cd.err = 0
		}
		return true
	}
	return false
}

// remaining returns the ticks until alarm a expires.
func (k *Kernel) remaining(a AlarmID) uint64 {
	c := k.sys.alarmCounter[a]
	cd := &k.counters[c]
	var sum uint64
	for cur := cd.head; cur != InvalidAlarm; cur = k.alarms[cur].next {
		sum += k.alarms[cur].delta
		if cur == a {
			break
		}
	}
	if sum <= cd.err {
		return 0
	}
	return sum - cd.err
}
