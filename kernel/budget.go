package kernel

// execWindow accumulates the execution time of one activation of a task or
// one invocation of an ISR.
type execWindow struct {
	used uint64
	off  bool
}

// lockWindow times the outermost interrupt lock of a unit.
type lockWindow struct {
	active bool
	off    bool
	start  uint64
	limit  uint64
	owner  caller
}

func (b Budget) allLock() uint64 { return b.AllLock }
func (b Budget) osLock() uint64 { return b.OSLock }

// rateWindow remembers the timer stamps of the last activations.
type rateWindow struct {
	stamps [MaxRateCount]uint64
	n      int
	idx    int
}

// check reports whether one more activation at now stays within l.
func (r *rateWindow) check(l RateLimit, now uint64) bool {
	if l.Count == 0 || r.n < l.Count {
		return true
	}
	return now-r.stamps[r.idx] >= l.Window
}

func (r *rateWindow) record(l RateLimit, now uint64) {
	if l.Count == 0 {
		return
	}
	r.stamps[r.idx] = now
	r.idx = (r.idx + 1) % l.Count
	if r.n < l.Count {
		r.n++
	}
}

// runningUnit returns the task or ISR that consumes the CPU right now.
func (k *Kernel) runningUnit() caller {
	if i := k.GetISRID(); i != InvalidISR {
		return caller{kind: callerISR, id: uint16(i)}
	}
	if k.current != InvalidTask {
		return caller{kind: callerTask, id: uint16(k.current)}
	}
	return caller{}
}

// sample reads the free-running timer, charges the time since the previous
// sample to the running unit and enforces its budgets.
func (k *Kernel) sample() {
	now := k.now()
	delta := now - k.mark
	k.mark = now
	u := k.runningUnit()
	k.load.account(delta, u.kind != callerNone)

	switch u.kind {
	case callerTask:
		d := &k.tasks[u.id]
		d.exec.used += delta
		if b := k.cfg.Tasks[u.id].Budget.Exec; b > 0 && !d.exec.off && d.exec.used > b {
			d.exec.off = true
			k.exceed(u, StatusExecBudget)
		}
	case callerISR:
		d := &k.isrs[u.id]
		d.exec.used += delta
		if b := k.cfg.ISRs[u.id].Budget.Exec; b > 0 && !d.exec.off && d.exec.used > b {
			d.exec.off = true
			k.exceed(u, StatusExecBudget)
		}
	}
	if w := &k.lock; w.active && !w.off && now-w.start > w.limit {
		w.off = true
		k.exceed(w.owner, StatusLockBudget)
	}
}

// CheckBudget samples the timer outside of any service. The core loop calls
// it on every iteration.
func (k *Kernel) CheckBudget() {
	if k.halted {
		return
	}
	k.enter()
	k.leave()
}

// ExceedExecTime treats the running task or ISR as having overrun its
// execution budget.
func (k *Kernel) ExceedExecTime() {
	if k.halted {
		return
	}
	k.enter()
	if u := k.runningUnit(); u.kind != callerNone {
		k.exceed(u, StatusExecBudget)
	}
	k.leave()
}

// exceed applies the protection reaction to unit u.
func (k *Kernel) exceed(u caller, st Status) {
	k.report(ServiceBudget, st, uint32(u.kind), uint32(u.id))
	action := ProtectionQuarantine
	if h := k.sys.opts.Hooks.Protection; h != nil {
		k.runHook(func() { action = h(k, st) })
	}
	k.logf("%s on %s: %s", st, u, action)

	switch action {
	case ProtectionIgnore:
	case ProtectionTerminateApp:
		if app := k.appOf(u); app != InvalidApplication {
			k.terminateApplication(app, false)
		}
	case ProtectionShutdown:
		k.shutdown(st, false)
	default:
		switch u.kind {
		case callerTask:
			k.quarantineTask(TaskID(u.id))
		case callerISR:
			k.quarantineISR(ISRID(u.id))
		}
	}
}
