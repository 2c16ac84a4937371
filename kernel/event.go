package kernel

// SetEvent sets events in the pending mask of extended task t and releases it
// if it waits for any of them.
func (k *Kernel) SetEvent(t TaskID, mask EventMask) Status {
	return k.service(ServiceSetEvent, uint32(t), uint32(mask), func(c caller) Status {
		if int(t) >= len(k.cfg.Tasks) {
			return StatusID
		}
		if !k.permitted(c, k.cfg.Tasks[t].Permissions) {
			return StatusPermission
		}
		if !k.ownsTask(t) {
			return k.remote(k.cfg.Tasks[t].Core, opSetEvent, uint64(t), uint64(mask), 0).st
		}
		return k.setEvent(t, mask)
	})
}

func (k *Kernel) setEvent(t TaskID, mask EventMask) Status {
	if !k.cfg.Tasks[t].Extended {
		return StatusAccess
	}
	d := &k.tasks[t]
	switch d.state {
	case TaskSuspended:
		return StatusState
	case TaskQuarantined:
		return StatusQuarantined
	}
	d.events |= mask
	if d.state == TaskWaiting && d.events&d.waitMask != 0 {
		d.waitMask = 0
		d.prio = k.cfg.Tasks[t].Priority
		d.state = TaskReadySync
		k.enqueue(t, false)
		k.trace(t, TaskReadySync)
	}
	return StatusOK
}

// ClearEvent clears events of the calling extended task.
func (k *Kernel) ClearEvent(mask EventMask) Status {
	return k.service(ServiceClearEvent, uint32(mask), 0, func(c caller) Status {
		if c.kind != callerTask {
			return StatusCallLevel
		}
		if !k.cfg.Tasks[c.id].Extended {
			return StatusAccess
		}
		k.tasks[c.id].events &^= mask
		return StatusOK
	})
}

// GetEvent returns the pending events of extended task t.
func (k *Kernel) GetEvent(t TaskID) (EventMask, Status) {
	var ev EventMask
	st := k.service(ServiceGetEvent, uint32(t), 0, func(c caller) Status {
		if int(t) >= len(k.cfg.Tasks) {
			return StatusID
		}
		if !k.permitted(c, k.cfg.Tasks[t].Permissions) {
			return StatusPermission
		}
		if !k.ownsTask(t) {
			r := k.remote(k.cfg.Tasks[t].Core, opGetEvent, uint64(t), 0, 0)
			ev = EventMask(r.v0)
			return r.st
		}
		if !k.cfg.Tasks[t].Extended {
			return StatusAccess
		}
		if k.tasks[t].state == TaskSuspended {
			return StatusState
		}
		ev = k.tasks[t].events
		return StatusOK
	})
	return ev, st
}

// WaitEvent puts the calling extended task into the waiting state unless one
// of the events in mask is already pending. A task holding a resource or a
// spinlock is refused and keeps running with everything it holds.
func (k *Kernel) WaitEvent(mask EventMask) Status {
	return k.service(ServiceWaitEvent, uint32(mask), 0, func(c caller) Status {
		if c.kind != callerTask {
			return StatusCallLevel
		}
		t := TaskID(c.id)
		if !k.cfg.Tasks[t].Extended {
			return StatusAccess
		}
		d := &k.tasks[t]
		if st := k.lockCheck(d.lastLock); st != StatusOK {
			return st
		}
		if d.events&mask != 0 {
			return StatusOK
		}
		k.postTask()
		k.dequeue(t)
		k.current = InvalidTask
		d.waitMask = mask
		d.prio = k.cfg.Tasks[t].Priority
		d.state = TaskWaiting
		k.trace(t, TaskWaiting)
		return StatusOK
	})
}
