package trace

import (
	"sort"

	"ecuos/kernel"
)

// Span is an interval during which a task ran or an ISR was active on a core.
type Span struct {
	Core  kernel.CoreID
	ISR   bool
	ID    uint16
	Depth int
	Start uint64
	End   uint64
}

// Spans folds events into intervals. Intervals still open at the last event
// end at end.
func Spans(events []Event, end uint64) []Span {
	type coreState struct {
		running  kernel.TaskID
		since    uint64
		isrStack []Span
	}
	cores := map[kernel.CoreID]*coreState{}
	get := func(c kernel.CoreID) *coreState {
		cs, ok := cores[c]
		if !ok {
			cs = &coreState{running: kernel.InvalidTask}
			cores[c] = cs
		}
		return cs
	}

	var out []Span
	closeTask := func(c kernel.CoreID, cs *coreState, at uint64) {
		if cs.running == kernel.InvalidTask {
			return
		}
		out = append(out, Span{Core: c, ID: uint16(cs.running), Start: cs.since, End: at})
		cs.running = kernel.InvalidTask
	}

	for _, e := range events {
		cs := get(e.Core)
		switch e.Kind {
		case KindTask:
			if e.State == kernel.TaskRunning {
				closeTask(e.Core, cs, e.At)
				cs.running, cs.since = e.Task, e.At
			} else if e.Task == cs.running {
				closeTask(e.Core, cs, e.At)
			}
		case KindISREnter:
			cs.isrStack = append(cs.isrStack, Span{Core: e.Core, ISR: true, ID: uint16(e.ISR), Depth: len(cs.isrStack), Start: e.At})
		case KindISRExit:
			// Exits without a matching enter were recorded before the ring
			// wrapped; skip them.
			n := len(cs.isrStack)
			if n == 0 || cs.isrStack[n-1].ID != uint16(e.ISR) {
				continue
			}
			sp := cs.isrStack[n-1]
			cs.isrStack = cs.isrStack[:n-1]
			sp.End = e.At
			out = append(out, sp)
		}
	}

	for c, cs := range cores {
		closeTask(c, cs, end)
		for i := len(cs.isrStack) - 1; i >= 0; i-- {
			sp := cs.isrStack[i]
			sp.End = end
			out = append(out, sp)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Core != out[j].Core {
			return out[i].Core < out[j].Core
		}
		return out[i].Start < out[j].Start
	})
	return out
}

// End returns the latest timestamp among events.
func End(events []Event) uint64 {
	var end uint64
	for _, e := range events {
		if e.At > end {
			end = e.At
		}
	}
	return end
}
