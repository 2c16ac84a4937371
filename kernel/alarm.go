package kernel

type alarmDyn struct {
	state  AlarmState
	delta  uint64
	period Tick
	next   AlarmID
}

// AlarmBase describes the counter behind an alarm.
type AlarmBase struct {
	MaxAllowedValue Tick
	TicksPerBase    Tick
	MinCycle        Tick
}

// SetRelAlarm arms alarm a to expire inc ticks from now, then every cycle
// ticks unless cycle is zero.
func (k *Kernel) SetRelAlarm(a AlarmID, inc, cycle Tick) Status {
	return k.SetAlarm(a, inc, cycle, true)
}

// SetAbsAlarm arms alarm a to expire when its counter reaches start.
func (k *Kernel) SetAbsAlarm(a AlarmID, start, cycle Tick) Status {
	return k.SetAlarm(a, start, cycle, false)
}

// SetAlarm arms alarm a relative to the counter value or at an absolute
// counter value.
func (k *Kernel) SetAlarm(a AlarmID, start, cycle Tick, relative bool) Status {
	svc, op := ServiceSetAbsAlarm, opSetAbsAlarm
	if relative {
		svc, op = ServiceSetRelAlarm, opSetRelAlarm
	}
	return k.service(svc, uint32(a), uint32(start), func(c caller) Status {
		if int(a) >= len(k.cfg.Alarms) {
			return StatusID
		}
		if !k.permitted(c, k.cfg.Alarms[a].Permissions) {
			return StatusPermission
		}
		if ctr := k.cfg.Alarms[a].Counter; !k.ownsCounter(ctr) {
			return k.remote(k.cfg.Counters[ctr].Core, op, uint64(a), uint64(start), uint64(cycle)).st
		}
		return k.setAlarm(a, start, cycle, relative)
	})
}

func (k *Kernel) setAlarm(a AlarmID, start, cycle Tick, relative bool) Status {
	ad := &k.alarms[a]
	c := k.sys.alarmCounter[a]
	cc := &k.cfg.Counters[c]
	cd := &k.counters[c]
	switch ad.state {
	case AlarmQuarantined:
		return StatusQuarantined
	case AlarmInUse:
		return StatusInUse
	}
	if cycle != 0 && (cycle < cc.MinCycle || cycle > cc.MaxAllowedValue) {
		return StatusValue
	}
	if start > cc.MaxAllowedValue || (relative && start == 0) {
		return StatusValue
	}
	delta := uint64(start)
	if !relative {
		m := k.modulus(c)
		delta = (uint64(start) + m - uint64(cd.value)) % m
		if delta == 0 {
			delta = m
		}
	}
	ad.state = AlarmInUse
	ad.period = cycle
	k.insertAlarm(c, a, delta+cd.err)
	return StatusOK
}

// CancelAlarm stops alarm a. Cancelling an alarm that is not armed returns
// StatusNoFunc and changes nothing.
func (k *Kernel) CancelAlarm(a AlarmID) Status {
	return k.service(ServiceCancelAlarm, uint32(a), 0, func(c caller) Status {
		if int(a) >= len(k.cfg.Alarms) {
			return StatusID
		}
		if !k.permitted(c, k.cfg.Alarms[a].Permissions) {
			return StatusPermission
		}
		if ctr := k.cfg.Alarms[a].Counter; !k.ownsCounter(ctr) {
			return k.remote(k.cfg.Counters[ctr].Core, opCancelAlarm, uint64(a), 0, 0).st
		}
		return k.cancelAlarm(a, AlarmIdle)
	})
}

// cancelAlarm dequeues an armed alarm and leaves it in state to.
func (k *Kernel) cancelAlarm(a AlarmID, to AlarmState) Status {
	ad := &k.alarms[a]
	if ad.state != AlarmInUse {
		return StatusNoFunc
	}
	k.removeAlarm(k.sys.alarmCounter[a], a)
	ad.state = to
	ad.period = 0
	return StatusOK
}

// QuarantineAlarm cancels alarm a and keeps it from being armed again until
// UnquarantineAlarm.
func (k *Kernel) QuarantineAlarm(a AlarmID) Status {
	return k.service(ServiceCancelAlarm, uint32(a), 1, func(c caller) Status {
		if int(a) >= len(k.cfg.Alarms) {
			return StatusID
		}
		if !k.trusted(c) || !k.ownsCounter(k.cfg.Alarms[a].Counter) {
			return StatusAccess
		}
		k.quarantineAlarm(a)
		return StatusOK
	})
}

func (k *Kernel) quarantineAlarm(a AlarmID) {
	if k.cancelAlarm(a, AlarmQuarantined) != StatusOK {
		k.alarms[a].state = AlarmQuarantined
	}
}

// UnquarantineAlarm returns a quarantined alarm to the idle state.
func (k *Kernel) UnquarantineAlarm(a AlarmID) Status {
	return k.service(ServiceUnquarantine, uint32(a), 2, func(c caller) Status {
		if int(a) >= len(k.cfg.Alarms) {
			return StatusID
		}
		if !k.trusted(c) || !k.ownsCounter(k.cfg.Alarms[a].Counter) {
			return StatusAccess
		}
		if k.alarms[a].state != AlarmQuarantined {
			return StatusState
		}
		k.alarms[a].state = AlarmIdle
		return StatusOK
	})
}

// GetAlarm returns the ticks left until alarm a expires.
func (k *Kernel) GetAlarm(a AlarmID) (Tick, Status) {
	var left Tick
	st := k.service(ServiceGetAlarm, uint32(a), 0, func(c caller) Status {
		if int(a) >= len(k.cfg.Alarms) {
			return StatusID
		}
		if !k.permitted(c, k.cfg.Alarms[a].Permissions) {
			return StatusPermission
		}
		if ctr := k.cfg.Alarms[a].Counter; !k.ownsCounter(ctr) {
			r := k.remote(k.cfg.Counters[ctr].Core, opGetAlarm, uint64(a), 0, 0)
			left = Tick(r.v0)
			return r.st
		}
		if k.alarms[a].state != AlarmInUse {
			return StatusNoFunc
		}
		left = Tick(k.remaining(a))
		return StatusOK
	})
	return left, st
}

// GetAlarmBase returns the counter characteristics of alarm a.
func (k *Kernel) GetAlarmBase(a AlarmID) (AlarmBase, Status) {
	var b AlarmBase
	st := k.service(ServiceGetAlarmBase, uint32(a), 0, func(c caller) Status {
		if int(a) >= len(k.cfg.Alarms) {
			return StatusID
		}
		if !k.permitted(c, k.cfg.Alarms[a].Permissions) {
			return StatusPermission
		}
		cc := &k.cfg.Counters[k.cfg.Alarms[a].Counter]
		b = AlarmBase{MaxAllowedValue: cc.MaxAllowedValue, TicksPerBase: cc.TicksPerBase, MinCycle: cc.MinCycle}
		return StatusOK
	})
	return b, st
}

// runAlarmAction performs what expiring alarm a does.
func (k *Kernel) runAlarmAction(a AlarmID) {
	if n := len(k.cfg.Alarms); int(a) >= n {
		k.tableExpire(ScheduleTableID(int(a) - n))
		return
	}
	act := k.cfg.Alarms[a].Action
	if st := k.runAction(act); st != StatusOK {
		k.report(ServiceAlarmAction, st, uint32(a), uint32(act.Kind))
	}
}

// runAction performs one alarm or expiry-point action.
func (k *Kernel) runAction(act Action) Status {
	switch act.Kind {
	case ActionActivateTask:
		if !k.ownsTask(act.Task) {
			return k.remote(k.cfg.Tasks[act.Task].Core, opActivateTask, uint64(act.Task), 0, 0).st
		}
		return k.activate(act.Task)
	case ActionSetEvent:
		if !k.ownsTask(act.Task) {
			return k.remote(k.cfg.Tasks[act.Task].Core, opSetEvent, uint64(act.Task), uint64(act.Event), 0).st
		}
		return k.setEvent(act.Task, act.Event)
	case ActionIncrementCounter:
		if !k.ownsCounter(act.Counter) {
			return StatusAccess
		}
		k.advance(act.Counter, 1)
		return StatusOK
	case ActionCallback:
		if act.Callback != nil {
			k.runHook(func() { act.Callback(k) })
		}
		return StatusOK
	default:
		return StatusUnknownCall
	}
}
