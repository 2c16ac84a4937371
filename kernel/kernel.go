// Package kernel is the per-core real-time kernel: tasks, events,
// priority-ceiling resources, category-2 interrupts, counters and alarms,
// schedule tables, execution budgets, spinlocks and cross-core calls.
//
// A Kernel is owned by exactly one goroutine, the one that runs its core.
// The only state shared between cores lives in package multicore and is
// reached through System.
package kernel

import (
	"context"
	"fmt"
	"sync/atomic"

	"ecuos/hal"
	"ecuos/multicore"
)

const maxCallerNesting = 32

type callerKind uint8

const (
	callerNone callerKind = iota
	callerTask
	callerISR
	callerHook
	callerRemote
)

// caller is the unit on whose behalf a service runs.
type caller struct {
	kind callerKind
	id   uint16
}

func (c caller) String() string {
	switch c.kind {
	case callerTask:
		return fmt.Sprintf("task %d", c.id)
	case callerISR:
		return fmt.Sprintf("isr %d", c.id)
	case callerHook:
		return "hook"
	case callerRemote:
		return "remote"
	default:
		return "none"
	}
}

// ErrorInfo describes the last failed service of a core.
type ErrorInfo struct {
	Service ServiceID
	Status  Status
	Params  [2]uint32
	Core    CoreID
}

// Kernel is the kernel instance of one core.
type Kernel struct {
	sys   *System
	cfg   *Config
	core  CoreID
	log   hal.Logger
	timer hal.Timer

	tasks     []taskDyn
	isrs      []isrDyn
	resources []resourceDyn
	counters  []counterDyn
	alarms    []alarmDyn
	tables    []tableDyn
	apps      []ApplicationState
	spinNext  []lockRef

	readyHead TaskID
	current   TaskID

	// stack holds the ISRs, hooks and remote requests that interrupted the
	// current task, innermost last.
	stack []caller

	critical int
	depth    int

	intMask    uint8
	disableAll int
	suspendAll int
	suspendOS  int
	lock       lockWindow

	asyncPreempt bool
	dispatching  bool

	started bool
	halted  bool
	mode    AppModeID
	syncGen uint32
	ctx     context.Context

	errInfo     ErrorInfo
	inErrorHook bool
	errCount    uint64

	mark uint64
	load cpuLoad

	inbox   *multicore.Mailbox[request]
	snap    atomic.Pointer[Snapshot]
	version uint64
	pubVer  uint64
}

func newKernel(s *System, id CoreID) *Kernel {
	c := &s.cfg
	k := &Kernel{
		sys:       s,
		cfg:       c,
		core:      id,
		log:       s.opts.Logger,
		timer:     s.opts.Timer,
		tasks:     make([]taskDyn, len(c.Tasks)),
		isrs:      make([]isrDyn, len(c.ISRs)),
		resources: make([]resourceDyn, len(c.Resources)),
		counters:  make([]counterDyn, len(c.Counters)),
		alarms:    make([]alarmDyn, len(s.alarmCounter)),
		tables:    make([]tableDyn, len(c.ScheduleTables)),
		apps:      make([]ApplicationState, len(c.Applications)),
		spinNext:  make([]lockRef, len(c.Spinlocks)),
		readyHead: InvalidTask,
		current:   InvalidTask,
		stack:     make([]caller, 0, maxCallerNesting),
		ctx:       context.Background(),
		inbox:     multicore.NewMailbox[request](),
	}
	for i := range k.tasks {
		k.tasks[i].next = InvalidTask
		k.tasks[i].prio = c.Tasks[i].Priority
	}
	for i := range k.counters {
		k.counters[i].head = InvalidAlarm
	}
	for i := range k.alarms {
		k.alarms[i].next = InvalidAlarm
	}
	for i := range k.tables {
		k.tables[i].chain = InvalidScheduleTable
	}
	k.load.init(c.CPULoad)
	k.mark = k.timer.Now()
	k.publish()
	return k
}

// System returns the system the kernel belongs to.
func (k *Kernel) System() *System { return k.sys }

// GetCoreID returns the core the kernel runs on.
func (k *Kernel) GetCoreID() CoreID { return k.core }

// GetNumberOfActivatedCores returns the number of cores that have been
// started and not shut down.
func (k *Kernel) GetNumberOfActivatedCores() int {
	n := 0
	for m := k.sys.cores.Participants(); m != 0; m &= m - 1 {
		n++
	}
	return n
}

// GetErrorInfo returns the last error recorded on this core.
func (k *Kernel) GetErrorInfo() ErrorInfo { return k.errInfo }

// Halted reports whether the core has shut down.
func (k *Kernel) Halted() bool { return k.halted }

// who returns the unit currently executing on this core.
func (k *Kernel) who() caller {
	if n := len(k.stack); n > 0 {
		return k.stack[n-1]
	}
	if k.current != InvalidTask {
		return caller{kind: callerTask, id: uint16(k.current)}
	}
	return caller{}
}

func (k *Kernel) push(c caller) bool {
	if len(k.stack) == cap(k.stack) {
		return false
	}
	k.stack = append(k.stack, c)
	return true
}

func (k *Kernel) pop() { k.stack = k.stack[:len(k.stack)-1] }

func (k *Kernel) appOf(c caller) ApplicationID {
	switch c.kind {
	case callerTask:
		return k.cfg.Tasks[c.id].App
	case callerISR:
		return k.cfg.ISRs[c.id].App
	default:
		return InvalidApplication
	}
}

// trusted reports whether c may act on objects of other applications
// regardless of their permission masks.
func (k *Kernel) trusted(c caller) bool {
	app := k.appOf(c)
	return app == InvalidApplication || k.cfg.Applications[app].Trusted
}

func (k *Kernel) permitted(c caller, m AppMask) bool {
	return k.trusted(c) || m.allows(k.appOf(c))
}

func (k *Kernel) quarantined(c caller) bool {
	switch c.kind {
	case callerTask:
		return k.tasks[c.id].state == TaskQuarantined
	case callerISR:
		return k.isrs[c.id].quarantined
	}
	return false
}

// service runs fn as kernel service id on behalf of the executing unit. It
// brackets fn with the emulated interrupt lock, samples budgets, reports
// failures and dispatches when the outermost service returns.
func (k *Kernel) service(id ServiceID, p0, p1 uint32, fn func(c caller) Status) Status {
	if k.halted {
		return StatusShutdown
	}
	c := k.who()
	k.enter()
	var st Status
	switch {
	case k.halted:
		st = StatusShutdown
	case k.quarantined(c):
		st = StatusQuarantined
	default:
		st = fn(c)
	}
	if st != StatusOK && !k.halted {
		k.report(id, st, p0, p1)
	}
	k.leave()
	return st
}

func (k *Kernel) enter() {
	k.depth++
	k.critical++
	k.sample()
}

func (k *Kernel) leave() {
	k.critical--
	if k.critical == 0 {
		k.deliverInterrupts()
	}
	k.depth--
	if k.depth == 0 {
		k.dispatch()
	}
}

// report records a failed service and runs the error hooks. The hooks
// cannot recurse into themselves.
func (k *Kernel) report(id ServiceID, st Status, p0, p1 uint32) {
	c := k.who()
	k.errInfo = ErrorInfo{Service: id, Status: st, Params: [2]uint32{p0, p1}, Core: k.core}
	k.errCount++
	k.version++
	k.logf("%s(%d, %d) by %s: %s", id, p0, p1, c, st)

	if k.inErrorHook {
		return
	}
	k.inErrorHook = true
	app := k.appOf(c)
	k.runHook(func() {
		if h := k.sys.opts.Hooks.Error; h != nil {
			h(k, st)
		}
		if app != InvalidApplication {
			if h := k.cfg.Applications[app].ErrorHook; h != nil {
				h(k, st)
			}
		}
	})
	k.inErrorHook = false
}

// runHook runs fn in hook context. Services called by a hook never dispatch.
func (k *Kernel) runHook(fn func()) {
	if !k.push(caller{kind: callerHook}) {
		return
	}
	k.depth++
	fn()
	k.depth--
	k.pop()
}

func (k *Kernel) logf(format string, args ...any) {
	k.log.WriteLineString(fmt.Sprintf("os[c%d]: ", k.core) + fmt.Sprintf(format, args...))
}

func (k *Kernel) now() uint64 { return k.timer.Now() }

func (k *Kernel) trace(t TaskID, s TaskState) {
	k.version++
	if tr := k.sys.opts.Tracer; tr != nil {
		tr.TaskState(k.core, t, s, k.now())
	}
}

func (k *Kernel) traceISR(i ISRID, enter bool) {
	k.version++
	if tr := k.sys.opts.Tracer; tr != nil {
		tr.ISR(k.core, i, enter, k.now())
	}
}

func (k *Kernel) ownsTask(t TaskID) bool { return k.cfg.Tasks[t].Core == k.core }
func (k *Kernel) ownsISR(i ISRID) bool { return k.cfg.ISRs[i].Core == k.core }
func (k *Kernel) ownsCounter(c CounterID) bool { return k.cfg.Counters[c].Core == k.core }

func (k *Kernel) ownsResource(r ResourceID) bool {
	return k.cfg.Applications[k.cfg.Resources[r].App].Core == k.core
}

func (k *Kernel) ownsApp(a ApplicationID) bool { return k.cfg.Applications[a].Core == k.core }
