package kernel

// Context is handed to a task body or an ISR handler. Calls made through it
// act for that task or ISR and fail with StatusCallLevel once it no longer
// holds the CPU.
type Context struct {
	k     *Kernel
	who   caller
	first bool
}

// Kernel returns the kernel of the core the unit runs on.
func (c *Context) Kernel() *Kernel { return c.k }

// TaskID returns the task of the context, or InvalidTask for an ISR.
func (c *Context) TaskID() TaskID {
	if c.who.kind != callerTask {
		return InvalidTask
	}
	return TaskID(c.who.id)
}

// ISRID returns the ISR of the context, or InvalidISR for a task.
func (c *Context) ISRID() ISRID {
	if c.who.kind != callerISR {
		return InvalidISR
	}
	return ISRID(c.who.id)
}

// First reports whether this is the first step of a fresh activation.
func (c *Context) First() bool { return c.first }

func (c *Context) check() Status {
	if c.k == nil || c.k.who() != c.who {
		return StatusCallLevel
	}
	if c.k.quarantined(c.who) {
		return StatusQuarantined
	}
	return StatusOK
}

// ActivateTask activates task t.
func (c *Context) ActivateTask(t TaskID) Status {
	if st := c.check(); st != StatusOK {
		return st
	}
	return c.k.ActivateTask(t)
}

// TerminateTask ends the calling task.
func (c *Context) TerminateTask() Status {
	if st := c.check(); st != StatusOK {
		return st
	}
	return c.k.TerminateTask()
}

// ChainTask ends the calling task and activates t.
func (c *Context) ChainTask(t TaskID) Status {
	if st := c.check(); st != StatusOK {
		return st
	}
	return c.k.ChainTask(t)
}

// Schedule lets a higher priority ready task run.
func (c *Context) Schedule() Status {
	if st := c.check(); st != StatusOK {
		return st
	}
	return c.k.Schedule()
}

// SetEvent sets mask on extended task t.
func (c *Context) SetEvent(t TaskID, mask EventMask) Status {
	if st := c.check(); st != StatusOK {
		return st
	}
	return c.k.SetEvent(t, mask)
}

// ClearEvent clears mask on the calling task.
func (c *Context) ClearEvent(mask EventMask) Status {
	if st := c.check(); st != StatusOK {
		return st
	}
	return c.k.ClearEvent(mask)
}

// Events returns the pending events of the context's own task.
func (c *Context) Events() (EventMask, Status) {
	if st := c.check(); st != StatusOK {
		return 0, st
	}
	return c.k.GetEvent(c.TaskID())
}

// WaitEvent blocks the calling task until one of mask is set.
func (c *Context) WaitEvent(mask EventMask) Status {
	if st := c.check(); st != StatusOK {
		return st
	}
	return c.k.WaitEvent(mask)
}

// GetResource takes resource r and raises to its ceiling.
func (c *Context) GetResource(r ResourceID) Status {
	if st := c.check(); st != StatusOK {
		return st
	}
	return c.k.GetResource(r)
}

// ReleaseResource gives back r, the most recently taken resource.
func (c *Context) ReleaseResource(r ResourceID) Status {
	if st := c.check(); st != StatusOK {
		return st
	}
	return c.k.ReleaseResource(r)
}

// SetRelAlarm arms alarm a inc ticks from now.
func (c *Context) SetRelAlarm(a AlarmID, inc, cycle Tick) Status {
	if st := c.check(); st != StatusOK {
		return st
	}
	return c.k.SetRelAlarm(a, inc, cycle)
}

// SetAbsAlarm arms alarm a at counter value start.
func (c *Context) SetAbsAlarm(a AlarmID, start, cycle Tick) Status {
	if st := c.check(); st != StatusOK {
		return st
	}
	return c.k.SetAbsAlarm(a, start, cycle)
}

// CancelAlarm stops alarm a.
func (c *Context) CancelAlarm(a AlarmID) Status {
	if st := c.check(); st != StatusOK {
		return st
	}
	return c.k.CancelAlarm(a)
}

// IncrementCounter advances software counter ctr by one tick.
func (c *Context) IncrementCounter(ctr CounterID) Status {
	if st := c.check(); st != StatusOK {
		return st
	}
	return c.k.IncrementCounter(ctr)
}

// GetSpinlock spins until spinlock s is held.
func (c *Context) GetSpinlock(s SpinlockID) Status {
	if st := c.check(); st != StatusOK {
		return st
	}
	return c.k.GetSpinlock(s)
}

// TryToGetSpinlock takes spinlock s if it is free.
func (c *Context) TryToGetSpinlock(s SpinlockID) (bool, Status) {
	if st := c.check(); st != StatusOK {
		return false, st
	}
	return c.k.TryToGetSpinlock(s)
}

// ReleaseSpinlock frees spinlock s.
func (c *Context) ReleaseSpinlock(s SpinlockID) Status {
	if st := c.check(); st != StatusOK {
		return st
	}
	return c.k.ReleaseSpinlock(s)
}
