// Package multicore holds the state that is shared between the kernel
// instances of different cores: the core state table, the spinlock table,
// the SyncHere barrier and the cross-core mailboxes.
//
// Everything in here is safe for concurrent use. Nothing else in the kernel
// is shared between cores.
package multicore

import "sync/atomic"

// MaxCores is the number of core slots.
const MaxCores = 8

// CoreID identifies a core.
type CoreID uint8

// CoreState is the lifecycle state of one core.
type CoreState uint32

const (
	CoreDown CoreState = iota
	CoreStarting
	CoreRunning
	CoreShuttingDown
	CoreHalted
)

func (s CoreState) String() string {
	switch s {
	case CoreDown:
		return "down"
	case CoreStarting:
		return "starting"
	case CoreRunning:
		return "running"
	case CoreShuttingDown:
		return "shutting down"
	case CoreHalted:
		return "halted"
	default:
		return "unknown"
	}
}

// Cores is the table of core states.
type Cores struct {
	n     int
	state [MaxCores]atomic.Uint32
}

// NewCores creates a table for n cores, all down.
func NewCores(n int) *Cores {
	if n < 1 {
		n = 1
	}
	if n > MaxCores {
		n = MaxCores
	}
	return &Cores{n: n}
}

// Len returns the number of configured cores.
func (c *Cores) Len() int { return c.n }

// State returns the state of core id.
func (c *Cores) State(id CoreID) CoreState {
	if int(id) >= c.n {
		return CoreDown
	}
	return CoreState(c.state[id].Load())
}

// Set unconditionally stores a core state.
func (c *Cores) Set(id CoreID, s CoreState) {
	if int(id) >= c.n {
		return
	}
	c.state[id].Store(uint32(s))
}

// Transition moves core id from one state to another, reporting whether
// the core was in the expected state.
func (c *Cores) Transition(id CoreID, from, to CoreState) bool {
	if int(id) >= c.n {
		return false
	}
	return c.state[id].CompareAndSwap(uint32(from), uint32(to))
}

// Up reports whether the core accepts cross-core requests.
func (c *Cores) Up(id CoreID) bool {
	s := c.State(id)
	return s == CoreStarting || s == CoreRunning
}

// Activated returns a bit mask of cores that are starting or running.
func (c *Cores) Activated() uint32 {
	var mask uint32
	for i := 0; i < c.n; i++ {
		s := CoreState(c.state[i].Load())
		if s == CoreStarting || s == CoreRunning {
			mask |= 1 << i
		}
	}
	return mask
}

// Participants returns a bit mask of cores that take part in a barrier:
// every core that has been started and has not halted yet.
func (c *Cores) Participants() uint32 {
	var mask uint32
	for i := 0; i < c.n; i++ {
		switch CoreState(c.state[i].Load()) {
		case CoreStarting, CoreRunning, CoreShuttingDown:
			mask |= 1 << i
		}
	}
	return mask
}
