package kernel

import (
	"context"
	"fmt"
	"strings"

	"ecuos/multicore"
)

// Run is the core loop. It serves cross-core requests, samples budgets,
// steps the running task body and turns every value received from ticks
// into one Tick. It returns nil once the core halts and ctx.Err() when ctx
// ends first. ticks may be nil.
func (k *Kernel) Run(ctx context.Context, ticks <-chan uint64) error {
	k.ctx = ctx
	for {
		if k.halted {
			return nil
		}
		k.serveInbox()
		k.CheckBudget()
		k.publish()

		if k.step() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case _, ok := <-ticks:
				if !ok {
					ticks = nil
					continue
				}
				k.Tick()
			default:
			}
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-ticks:
			if !ok {
				ticks = nil
				continue
			}
			k.Tick()
		case <-k.inbox.Doorbell():
		}
	}
}

// step runs one Step of the running task, reporting whether there was one.
// A task without a body terminates immediately.
func (k *Kernel) step() bool {
	t := k.current
	if t == InvalidTask || !k.started || k.halted {
		return false
	}
	body := k.cfg.Tasks[t].Body
	if body == nil {
		k.TerminateTask()
		return true
	}
	d := &k.tasks[t]
	ctx := &Context{k: k, who: caller{kind: callerTask, id: uint16(t)}, first: d.fresh}
	d.fresh = false
	k.stepBody(t, body, ctx)
	return true
}

func (k *Kernel) stepBody(t TaskID, body TaskBody, ctx *Context) {
	defer func() {
		if r := recover(); r != nil {
			k.unwind()
			k.logf("task %s panicked: %v", k.cfg.Tasks[t].Name, r)
			k.enter()
			k.report(ServiceNone, StatusUnknownCall, uint32(t), 0)
			k.quarantineTask(t)
			k.leave()
		}
	}()
	body.Step(ctx)
}

// unwind resets the nesting state left behind by a Go panic that escaped
// from inside a service.
func (k *Kernel) unwind() {
	k.stack = k.stack[:0]
	k.depth = 0
	k.critical = 0
	k.dispatching = false
	k.inErrorHook = false
	for i := range k.counters {
		k.counters[i].locked = false
	}
}

// Snapshot is a copy of the observable state of one core, published by the
// core loop for monitors running on other goroutines.
type Snapshot struct {
	Core      CoreID
	State     multicore.CoreState
	Mode      AppModeID
	Running   TaskID
	Ready     []TaskID
	Tasks     []TaskState
	Counters  []Tick
	Tables    []ScheduleTableStatus
	Errors    uint64
	LastError ErrorInfo
	Load      uint8
	PeakLoad  uint8
}

// Snapshot returns the last published snapshot. It is safe to call from any
// goroutine.
func (k *Kernel) Snapshot() Snapshot {
	if s := k.snap.Load(); s != nil {
		return *s
	}
	return Snapshot{Core: k.core, Running: InvalidTask}
}

func (k *Kernel) publish() {
	if k.snap.Load() != nil && k.version == k.pubVer {
		return
	}
	s := &Snapshot{
		Core:      k.core,
		State:     k.sys.cores.State(k.core),
		Mode:      k.mode,
		Running:   k.current,
		Ready:     k.ReadyQueue(),
		Tasks:     make([]TaskState, len(k.tasks)),
		Counters:  make([]Tick, len(k.counters)),
		Tables:    make([]ScheduleTableStatus, len(k.tables)),
		Errors:    k.errCount,
		LastError: k.errInfo,
	}
	for i := range k.tasks {
		s.Tasks[i] = k.tasks[i].state
	}
	for i := range k.counters {
		s.Counters[i] = k.counters[i].value
	}
	for i := range k.tables {
		s.Tables[i] = k.tables[i].status
	}
	if k.load.interval > 0 {
		s.Load = k.load.average()
		s.PeakLoad = k.load.peak
	}
	k.snap.Store(s)
	k.pubVer = k.version
}

// Summary renders the snapshot as one line using the task names of cfg.
func (s Snapshot) Summary(cfg *Config) string {
	var b strings.Builder
	fmt.Fprintf(&b, "c%d %s", s.Core, s.State)
	if int(s.Running) < len(cfg.Tasks) {
		fmt.Fprintf(&b, " run=%s", cfg.Tasks[s.Running].Name)
	} else {
		b.WriteString(" run=idle")
	}
	var ready []string
	for _, t := range s.Ready {
		if t != s.Running {
			ready = append(ready, cfg.Tasks[t].Name)
		}
	}
	if len(ready) > 0 {
		b.WriteString(" ready=" + strings.Join(ready, ","))
	}
	if cfg.CPULoad.Interval > 0 {
		fmt.Fprintf(&b, " load=%d%% peak=%d%%", s.Load, s.PeakLoad)
	}
	if s.Errors > 0 {
		fmt.Fprintf(&b, " errors=%d last=%s:%s", s.Errors, s.LastError.Service, s.LastError.Status)
	}
	return b.String()
}
