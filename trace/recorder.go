// Package trace records scheduling transitions of a running system and
// renders them as a per-core timeline.
package trace

import (
	"fmt"
	"sync"

	"ecuos/kernel"
)

// Kind tells what an Event describes.
type Kind uint8

const (
	KindTask Kind = iota
	KindISREnter
	KindISRExit
)

func (k Kind) String() string {
	switch k {
	case KindTask:
		return "task"
	case KindISREnter:
		return "isr-enter"
	case KindISRExit:
		return "isr-exit"
	default:
		return "unknown"
	}
}

// Event is one recorded transition.
type Event struct {
	Kind  Kind
	Core  kernel.CoreID
	Task  kernel.TaskID
	ISR   kernel.ISRID
	State kernel.TaskState
	At    uint64
}

func (e Event) String() string {
	switch e.Kind {
	case KindTask:
		return fmt.Sprintf("%d c%d task %d %s", e.At, e.Core, e.Task, e.State)
	default:
		return fmt.Sprintf("%d c%d isr %d %s", e.At, e.Core, e.ISR, e.Kind)
	}
}

// Recorder is a bounded ring of events. When full, the oldest events are
// overwritten. It is safe for use by every core at once.
type Recorder struct {
	mu      sync.Mutex
	buf     []Event
	next    int
	full    bool
	dropped uint64
}

// NewRecorder returns a recorder that keeps the last n events.
func NewRecorder(n int) *Recorder {
	if n <= 0 {
		n = 1
	}
	return &Recorder{buf: make([]Event, n)}
}

func (r *Recorder) TaskState(core kernel.CoreID, t kernel.TaskID, s kernel.TaskState, at uint64) {
	r.add(Event{Kind: KindTask, Core: core, Task: t, ISR: kernel.InvalidISR, State: s, At: at})
}

func (r *Recorder) ISR(core kernel.CoreID, isr kernel.ISRID, enter bool, at uint64) {
	kind := KindISRExit
	if enter {
		kind = KindISREnter
	}
	r.add(Event{Kind: kind, Core: core, Task: kernel.InvalidTask, ISR: isr, At: at})
}

func (r *Recorder) add(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.full {
		r.dropped++
	}
	r.buf[r.next] = e
	r.next++
	if r.next == len(r.buf) {
		r.next = 0
		r.full = true
	}
}

// Events returns the recorded events, oldest first.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		return append([]Event(nil), r.buf[:r.next]...)
	}
	out := make([]Event, 0, len(r.buf))
	out = append(out, r.buf[r.next:]...)
	return append(out, r.buf[:r.next]...)
}

// Dropped returns how many events were overwritten.
func (r *Recorder) Dropped() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Reset forgets every recorded event.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next, r.full, r.dropped = 0, false, 0
}
