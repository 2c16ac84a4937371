package kernel

type taskDyn struct {
	state    TaskState
	prio     Priority
	act      uint8
	next     TaskID
	lastLock lockRef
	events   EventMask
	waitMask EventMask
	exec     execWindow
	rate     rateWindow
	fresh    bool
}

// ActivateTask activates task t.
func (k *Kernel) ActivateTask(t TaskID) Status {
	return k.service(ServiceActivateTask, uint32(t), 0, func(c caller) Status {
		if int(t) >= len(k.cfg.Tasks) {
			return StatusID
		}
		if !k.permitted(c, k.cfg.Tasks[t].Permissions) {
			return StatusPermission
		}
		if !k.ownsTask(t) {
			r := k.remote(k.cfg.Tasks[t].Core, opActivateTask, uint64(t), 0, 0)
			return r.st
		}
		return k.activate(t)
	})
}

// canActivate checks whether activate(t) would succeed without changing
// anything.
func (k *Kernel) canActivate(t TaskID) Status {
	d := &k.tasks[t]
	tc := &k.cfg.Tasks[t]
	switch {
	case d.state == TaskQuarantined:
		return StatusQuarantined
	case k.apps[tc.App] == AppTerminated:
		return StatusAccess
	case d.state != TaskSuspended && d.act >= tc.MaxActivations:
		return StatusLimit
	case !d.rate.check(tc.Rate, k.now()):
		return StatusRateLimit
	}
	return StatusOK
}

func (k *Kernel) activate(t TaskID) Status {
	if st := k.canActivate(t); st != StatusOK {
		return st
	}
	d := &k.tasks[t]
	d.rate.record(k.cfg.Tasks[t].Rate, k.now())
	if d.state != TaskSuspended {
		d.act++
		return StatusOK
	}
	d.act = 1
	d.events = 0
	d.waitMask = 0
	d.exec = execWindow{}
	d.prio = k.cfg.Tasks[t].Priority
	d.state = TaskNew
	k.enqueue(t, false)
	k.trace(t, TaskNew)
	return StatusOK
}

// TerminateTask terminates the calling task.
func (k *Kernel) TerminateTask() Status {
	return k.service(ServiceTerminateTask, 0, 0, func(c caller) Status {
		if c.kind != callerTask {
			return StatusCallLevel
		}
		t := TaskID(c.id)
		if st := k.lockCheck(k.tasks[t].lastLock); st != StatusOK {
			return st
		}
		k.terminate(t)
		return StatusOK
	})
}

// ChainTask terminates the calling task and activates t in one step.
func (k *Kernel) ChainTask(t TaskID) Status {
	return k.service(ServiceChainTask, uint32(t), 0, func(c caller) Status {
		if c.kind != callerTask {
			return StatusCallLevel
		}
		if int(t) >= len(k.cfg.Tasks) {
			return StatusID
		}
		if !k.permitted(c, k.cfg.Tasks[t].Permissions) {
			return StatusPermission
		}
		self := TaskID(c.id)
		if st := k.lockCheck(k.tasks[self].lastLock); st != StatusOK {
			return st
		}
		if !k.ownsTask(t) {
			if r := k.remote(k.cfg.Tasks[t].Core, opActivateTask, uint64(t), 0, 0); r.st != StatusOK {
				return r.st
			}
			k.terminate(self)
			return StatusOK
		}
		if t != self {
			if st := k.canActivate(t); st != StatusOK {
				return st
			}
		}
		k.terminate(self)
		return k.activate(t)
	})
}

// terminate ends the current activation of t.
func (k *Kernel) terminate(t TaskID) {
	d := &k.tasks[t]
	if k.current == t {
		k.postTask()
		k.current = InvalidTask
	}
	k.dequeue(t)
	if d.act > 0 {
		d.act--
	}
	d.prio = k.cfg.Tasks[t].Priority
	d.fresh = false
	if d.act > 0 {
		d.state = TaskNew
		d.events = 0
		d.exec = execWindow{}
		k.enqueue(t, false)
	} else {
		d.state = TaskSuspended
	}
	k.trace(t, d.state)
}

// Schedule lets a task running above its queue priority give way to ready
// tasks between the two.
func (k *Kernel) Schedule() Status {
	return k.service(ServiceSchedule, 0, 0, func(c caller) Status {
		if c.kind != callerTask {
			return StatusCallLevel
		}
		t := TaskID(c.id)
		d := &k.tasks[t]
		if st := k.lockCheck(d.lastLock); st != StatusOK {
			return st
		}
		base := k.cfg.Tasks[t].Priority
		if d.prio <= base {
			return StatusOK
		}
		for cur := k.readyHead; cur != InvalidTask; cur = k.tasks[cur].next {
			if cur != t && k.tasks[cur].prio >= base {
				k.dequeue(t)
				d.prio = base
				k.enqueue(t, false)
				break
			}
		}
		return StatusOK
	})
}

// GetTaskID returns the running task, or InvalidTask.
func (k *Kernel) GetTaskID() TaskID { return k.current }

// GetTaskState returns the state of task t.
func (k *Kernel) GetTaskState(t TaskID) (TaskState, Status) {
	var s TaskState
	st := k.service(ServiceGetTaskState, uint32(t), 0, func(c caller) Status {
		if int(t) >= len(k.cfg.Tasks) {
			return StatusID
		}
		if !k.permitted(c, k.cfg.Tasks[t].Permissions) {
			return StatusPermission
		}
		if !k.ownsTask(t) {
			r := k.remote(k.cfg.Tasks[t].Core, opGetTaskState, uint64(t), 0, 0)
			s = TaskState(r.v0)
			return r.st
		}
		s = k.tasks[t].state
		return StatusOK
	})
	return s, st
}

// UnquarantineTask returns a quarantined task to the suspended state. Only
// trusted callers may do this.
func (k *Kernel) UnquarantineTask(t TaskID) Status {
	return k.service(ServiceUnquarantine, uint32(t), 0, func(c caller) Status {
		if int(t) >= len(k.cfg.Tasks) {
			return StatusID
		}
		if !k.trusted(c) || !k.ownsTask(t) {
			return StatusAccess
		}
		d := &k.tasks[t]
		if d.state != TaskQuarantined {
			return StatusState
		}
		d.state = TaskSuspended
		d.act = 0
		k.trace(t, TaskSuspended)
		return StatusOK
	})
}

// quarantineTask removes t from scheduling for good and releases whatever it
// holds.
func (k *Kernel) quarantineTask(t TaskID) {
	d := &k.tasks[t]
	if d.state == TaskQuarantined {
		return
	}
	k.releaseChain(caller{kind: callerTask, id: uint16(t)})
	k.dequeue(t)
	if k.current == t {
		k.current = InvalidTask
		k.dropInterruptLocks()
	}
	d.state = TaskQuarantined
	d.act = 0
	d.prio = k.cfg.Tasks[t].Priority
	d.waitMask = 0
	k.trace(t, TaskQuarantined)
	k.logf("task %s quarantined", k.cfg.Tasks[t].Name)
}

// killTask drops every activation of t and releases its locks.
func (k *Kernel) killTask(t TaskID) {
	d := &k.tasks[t]
	if d.state == TaskSuspended || d.state == TaskQuarantined {
		return
	}
	k.releaseChain(caller{kind: callerTask, id: uint16(t)})
	k.dequeue(t)
	if k.current == t {
		k.current = InvalidTask
		k.dropInterruptLocks()
	}
	d.state = TaskSuspended
	d.act = 0
	d.prio = k.cfg.Tasks[t].Priority
	d.events, d.waitMask = 0, 0
	k.trace(t, TaskSuspended)
}

// dropInterruptLocks undoes the interrupt locks of a task that is removed
// while running.
func (k *Kernel) dropInterruptLocks() {
	if len(k.stack) > 0 && k.GetISRID() != InvalidISR {
		return
	}
	k.disableAll, k.suspendAll, k.suspendOS = 0, 0, 0
	k.lock = lockWindow{}
}
