package kernel

import (
	"context"
	"fmt"
	"sync"

	"ecuos/hal"
	"ecuos/multicore"
)

// Hooks are the global OS hooks. Every field is optional.
type Hooks struct {
	Startup  func(*Kernel)
	Shutdown func(*Kernel, Status)
	Error    func(*Kernel, Status)
	PreTask  func(*Kernel)
	PostTask func(*Kernel)
	// Protection chooses the reaction to a budget or rate violation. The
	// default is ProtectionQuarantine.
	Protection func(*Kernel, Status) ProtectionAction
}

// Tracer observes scheduling transitions. Implementations must be safe for
// concurrent use by every core.
type Tracer interface {
	TaskState(core CoreID, t TaskID, s TaskState, at uint64)
	ISR(core CoreID, isr ISRID, enter bool, at uint64)
}

// Options configure a System beyond its static tables.
type Options struct {
	Logger hal.Logger
	Timer  hal.Timer
	Hooks  Hooks
	Tracer Tracer
	// Panic is called once, with the first panic of the system.
	Panic func(PanicInfo)
}

// System is one configured OS instance: a kernel per core plus the state the
// cores share.
type System struct {
	cfg  Config
	opts Options

	cores *multicore.Cores
	locks *multicore.Spinlocks
	sync  multicore.SyncArray

	kernels []*Kernel

	// alarmCounter maps every alarm, including the ones owned by schedule
	// tables, to its counter.
	alarmCounter []CounterID

	panicOnce sync.Once
	panicMu   sync.Mutex
	panicInfo *PanicInfo
}

// NewSystem validates cfg and builds the per-core kernels. Core 0 is the
// master core and starts in the starting state; other cores stay down until
// StartCore.
func NewSystem(cfg Config, opts Options) (*System, error) {
	c, err := normalize(cfg)
	if err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = hal.NopLogger{}
	}
	if opts.Timer == nil {
		opts.Timer = &hal.ManualTimer{}
	}

	s := &System{
		cfg:   c,
		opts:  opts,
		cores: multicore.NewCores(c.Cores),
		locks: multicore.NewSpinlocks(len(c.Spinlocks)),
	}
	s.alarmCounter = make([]CounterID, 0, len(c.Alarms)+len(c.ScheduleTables))
	for _, a := range c.Alarms {
		s.alarmCounter = append(s.alarmCounter, a.Counter)
	}
	for _, st := range c.ScheduleTables {
		s.alarmCounter = append(s.alarmCounter, st.Counter)
	}

	for i := 0; i < c.Cores; i++ {
		s.kernels = append(s.kernels, newKernel(s, CoreID(i)))
	}
	s.cores.Set(0, multicore.CoreStarting)
	return s, nil
}

// Config returns the normalized configuration.
func (s *System) Config() *Config { return &s.cfg }

// Kernel returns the kernel of core id.
func (s *System) Kernel(id CoreID) *Kernel {
	if int(id) >= len(s.kernels) {
		return nil
	}
	return s.kernels[id]
}

// NumCores returns the number of configured cores.
func (s *System) NumCores() int { return len(s.kernels) }

// CoreState returns the lifecycle state of core id.
func (s *System) CoreState(id CoreID) multicore.CoreState { return s.cores.State(id) }

// Panicked returns the recorded panic, if any.
func (s *System) Panicked() (PanicInfo, bool) {
	s.panicMu.Lock()
	defer s.panicMu.Unlock()
	if s.panicInfo == nil {
		return PanicInfo{}, false
	}
	return *s.panicInfo, true
}

// Call runs fn on the goroutine of core id and returns its status. It is the
// entry point for code that runs outside every core, such as a console. The
// core must be executing Run. A request still queued when ctx ends is dropped
// without running fn; one already running completes on the core.
func (s *System) Call(ctx context.Context, id CoreID, fn func(*Kernel) Status) (Status, error) {
	k := s.Kernel(id)
	if k == nil {
		return StatusID, fmt.Errorf("call: core %d: %w", id, StatusID.Err())
	}
	rep := &reply{}
	req := request{op: opCall, from: remoteExternal, fn: fn, rep: rep}
	for !k.inbox.TrySend(req) {
		if !s.cores.Up(id) {
			return StatusCoreIsDown, StatusCoreIsDown.Err()
		}
		if err := ctxYield(ctx); err != nil {
			return StatusOK, err
		}
	}
	for !rep.done.Load() {
		st := s.cores.State(id)
		if (st == multicore.CoreHalted || st == multicore.CoreDown) && !rep.done.Load() {
			return StatusCoreIsDown, StatusCoreIsDown.Err()
		}
		if err := ctxYield(ctx); err != nil {
			rep.abandoned.Store(true)
			return StatusOK, err
		}
	}
	return rep.st, nil
}

func (s *System) taskName(t TaskID) string {
	if int(t) < len(s.cfg.Tasks) {
		return s.cfg.Tasks[t].Name
	}
	return "-"
}

func (s *System) isrName(i ISRID) string {
	if int(i) < len(s.cfg.ISRs) {
		return s.cfg.ISRs[i].Name
	}
	return "-"
}
