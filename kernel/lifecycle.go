package kernel

import (
	"errors"

	"ecuos/multicore"
)

// StartCore marks core id as started. It must be called before StartOS on
// the calling core.
func (k *Kernel) StartCore(id CoreID) Status {
	return k.service(ServiceStartCore, uint32(id), 0, func(caller) Status {
		if int(id) >= k.sys.NumCores() {
			return StatusID
		}
		if k.started {
			return StatusCallLevel
		}
		if !k.sys.cores.Transition(id, multicore.CoreDown, multicore.CoreStarting) {
			return StatusState
		}
		k.logf("core %d started", id)
		return StatusOK
	})
}

// StartOS brings the core up in application mode mode: it meets the other
// started cores, runs the startup hooks, meets them again and then performs
// the autostart of the mode.
func (k *Kernel) StartOS(mode AppModeID) Status {
	if k.started || k.halted {
		k.report(ServiceStartOS, StatusState, uint32(mode), 0)
		return StatusState
	}
	if k.sys.cores.State(k.core) != multicore.CoreStarting {
		k.report(ServiceStartOS, StatusCoreIsDown, uint32(mode), 0)
		return StatusCoreIsDown
	}
	if int(mode) >= k.cfg.AppModes {
		k.report(ServiceStartOS, StatusValue, uint32(mode), 0)
		return StatusValue
	}
	k.mode = mode

	if st := k.SyncHere(); st != StatusOK {
		return st
	}
	k.sys.cores.Set(k.core, multicore.CoreRunning)
	k.started = true
	k.logf("started in mode %d", mode)

	k.runHook(func() {
		if h := k.sys.opts.Hooks.Startup; h != nil {
			h(k)
		}
		for i := range k.cfg.Applications {
			if a := &k.cfg.Applications[i]; a.Core == k.core && a.StartupHook != nil {
				a.StartupHook(k)
			}
		}
	})
	if st := k.SyncHere(); st != StatusOK {
		return st
	}

	k.enter()
	k.autostart(mode)
	k.leave()
	return StatusOK
}

func (k *Kernel) autostart(mode AppModeID) {
	for i := range k.cfg.Tasks {
		t := TaskID(i)
		if !k.ownsTask(t) {
			continue
		}
		for _, m := range k.cfg.Tasks[i].Autostart {
			if m == mode {
				if st := k.activate(t); st != StatusOK {
					k.report(ServiceStartOS, st, uint32(t), 0)
				}
				break
			}
		}
	}
	for i := range k.cfg.Alarms {
		a := AlarmID(i)
		if !k.ownsCounter(k.cfg.Alarms[i].Counter) {
			continue
		}
		for _, as := range k.cfg.Alarms[i].Autostart {
			if as.Mode == mode {
				if st := k.setAlarm(a, as.Start, as.Cycle, as.Method == StartRelative); st != StatusOK {
					k.report(ServiceStartOS, st, uint32(a), 1)
				}
				break
			}
		}
	}
	for i := range k.cfg.ScheduleTables {
		st := ScheduleTableID(i)
		if k.tableCore(st) != k.core {
			continue
		}
		for _, as := range k.cfg.ScheduleTables[i].Autostart {
			if as.Mode != mode {
				continue
			}
			var s Status
			switch as.Method {
			case StartRelative:
				s = k.startTableRel(st, as.Offset)
			case StartAbsolute:
				s = k.startTableAbs(st, as.Offset)
			case StartSynchron:
				s = k.tableStartable(st)
				if s == StatusOK {
					k.tables[st].status = TableWaiting
				}
			}
			if s != StatusOK {
				k.report(ServiceStartOS, s, uint32(st), 2)
			}
			break
		}
	}
}

// GetActiveApplicationMode returns the mode StartOS was called with.
func (k *Kernel) GetActiveApplicationMode() AppModeID { return k.mode }

// SyncHere waits until every started core has reached the same barrier.
// A corrupted barrier is fatal.
func (k *Kernel) SyncHere() Status {
	gen := k.syncGen + 1
	err := k.sys.sync.Arrive(k.ctx, k.core, gen, k.sys.cores.Participants, k.serveInbox)
	switch {
	case err == nil:
		k.syncGen = gen
		return StatusOK
	case errors.Is(err, multicore.ErrSyncCorrupt):
		k.Panic(StatusSyncCorrupt)
		return StatusSyncCorrupt
	default:
		k.logf("sync: %v", err)
		return StatusShutdown
	}
}

// ShutdownOS shuts the calling core down.
func (k *Kernel) ShutdownOS(st Status) Status {
	if k.halted {
		return StatusShutdown
	}
	k.shutdown(st, false)
	return StatusOK
}

// ShutdownAllCores shuts every started core down; the cores run their
// shutdown hooks and then meet before halting.
func (k *Kernel) ShutdownAllCores(st Status) Status {
	if k.halted {
		return StatusShutdown
	}
	if !k.started {
		k.report(ServiceShutdownAllCores, StatusCallLevel, uint32(st), 0)
		return StatusCallLevel
	}
	for i := 0; i < k.sys.NumCores(); i++ {
		if id := CoreID(i); id != k.core {
			k.post(id, opShutdown, uint64(st))
		}
	}
	k.shutdown(st, true)
	return StatusOK
}

// shutdown runs the shutdown hooks and halts the core. Hooks are
// best-effort: a Go panic inside one is logged and the next hook still runs.
func (k *Kernel) shutdown(st Status, sync bool) {
	if k.halted || k.sys.cores.State(k.core) == multicore.CoreShuttingDown {
		return
	}
	k.sys.cores.Set(k.core, multicore.CoreShuttingDown)
	k.logf("shutdown: %s", st)

	for i := range k.cfg.Applications {
		if a := &k.cfg.Applications[i]; a.Core == k.core && a.ShutdownHook != nil {
			k.safeHook(a.Name, func() { a.ShutdownHook(k, st) })
		}
	}
	if h := k.sys.opts.Hooks.Shutdown; h != nil {
		k.safeHook("global", func() { h(k, st) })
	}
	if sync && k.started {
		k.SyncHere()
	}

	k.halted = true
	k.current = InvalidTask
	k.readyHead = InvalidTask
	k.serveInbox()
	k.sys.cores.Set(k.core, multicore.CoreHalted)
	k.version++
	k.publish()
}

func (k *Kernel) safeHook(name string, fn func()) {
	n, depth := len(k.stack), k.depth
	defer func() {
		if r := recover(); r != nil {
			k.stack, k.depth = k.stack[:n], depth
			k.logf("shutdown hook %s panicked: %v", name, r)
		}
	}()
	k.runHook(fn)
}

// PanicInfo describes the first panic of a system.
type PanicInfo struct {
	Core   CoreID
	Status Status
	Info   ErrorInfo
	Stack  []byte
}

// Panic is the last resort for faults the core cannot recover from. The
// first panic of the system is recorded and handed to Options.Panic; the
// core then shuts down.
func (k *Kernel) Panic(st Status) {
	k.sys.panicOnce.Do(func() {
		info := PanicInfo{Core: k.core, Status: st, Info: k.errInfo, Stack: captureStack()}
		k.sys.panicMu.Lock()
		k.sys.panicInfo = &info
		k.sys.panicMu.Unlock()
		if fn := k.sys.opts.Panic; fn != nil {
			fn(info)
		}
	})
	k.logf("panic: %s", st)
	k.shutdown(st, false)
}
