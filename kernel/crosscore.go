package kernel

import (
	"context"
	"runtime"
	"sync/atomic"

	"ecuos/multicore"
)

type op uint8

const (
	opCall op = iota
	opActivateTask
	opSetEvent
	opGetTaskState
	opGetEvent
	opGetCounterValue
	opSetRelAlarm
	opSetAbsAlarm
	opCancelAlarm
	opGetAlarm
	opStartTableRel
	opStartTableAbs
	opStopTable
	opRaiseInterrupt
	opShutdown
)

// remoteExternal marks requests that come from outside every core.
const remoteExternal CoreID = 0xFF

// request is one cross-core call. Requests carry plain values; the reply is
// written by the target core and published through done.
type request struct {
	op         op
	from       CoreID
	a0, a1, a2 uint64
	fn         func(*Kernel) Status
	rep        *reply
}

type reply struct {
	st   Status
	v0   uint64
	done atomic.Bool
	// abandoned is set once the caller stopped waiting; fn is skipped then.
	abandoned atomic.Bool
}

type result struct {
	st Status
	v0 uint64
}

// remote sends a request to core and waits for the answer, serving this
// core's own inbox meanwhile so two cores calling each other make progress.
func (k *Kernel) remote(core CoreID, o op, a0, a1, a2 uint64) result {
	if !k.sys.cores.Up(core) {
		return result{st: StatusCoreIsDown}
	}
	target := k.sys.kernels[core]
	rep := &reply{}
	req := request{op: o, from: k.core, a0: a0, a1: a1, a2: a2, rep: rep}
	for !target.inbox.TrySend(req) {
		if !k.sys.cores.Up(core) {
			return result{st: StatusCoreIsDown}
		}
		k.serveInbox()
		runtime.Gosched()
	}
	for !rep.done.Load() {
		if s := k.sys.cores.State(core); s == multicore.CoreHalted || s == multicore.CoreDown {
			if !rep.done.Load() {
				return result{st: StatusCoreIsDown}
			}
			break
		}
		k.serveInbox()
		runtime.Gosched()
	}
	return result{st: rep.st, v0: rep.v0}
}

// post sends a request without waiting for it.
func (k *Kernel) post(core CoreID, o op, a0 uint64) bool {
	if !k.sys.cores.Up(core) {
		return false
	}
	target := k.sys.kernels[core]
	req := request{op: o, from: k.core, a0: a0}
	for !target.inbox.TrySend(req) {
		if !k.sys.cores.Up(core) {
			return false
		}
		k.serveInbox()
		runtime.Gosched()
	}
	return true
}

// serveInbox executes every queued cross-core request.
func (k *Kernel) serveInbox() {
	for {
		req, ok := k.inbox.TryRecv()
		if !ok {
			return
		}
		if k.halted {
			answer(req, result{st: StatusCoreIsDown})
			continue
		}
		if !k.push(caller{kind: callerRemote}) {
			answer(req, result{st: StatusNesting})
			continue
		}
		r := k.handle(req)
		k.pop()
		answer(req, r)
		if k.depth == 0 {
			k.dispatch()
		}
	}
}

func answer(req request, r result) {
	if req.rep == nil {
		return
	}
	req.rep.st = r.st
	req.rep.v0 = r.v0
	req.rep.done.Store(true)
}

func (k *Kernel) handle(req request) result {
	switch req.op {
	case opCall:
		if req.fn == nil {
			return result{st: StatusUnknownCall}
		}
		if req.rep != nil && req.rep.abandoned.Load() {
			return result{st: StatusNoFunc}
		}
		k.depth++
		st := req.fn(k)
		k.depth--
		return result{st: st}
	case opActivateTask:
		return result{st: k.ActivateTask(TaskID(req.a0))}
	case opSetEvent:
		return result{st: k.SetEvent(TaskID(req.a0), EventMask(req.a1))}
	case opGetTaskState:
		s, st := k.GetTaskState(TaskID(req.a0))
		return result{st: st, v0: uint64(s)}
	case opGetEvent:
		ev, st := k.GetEvent(TaskID(req.a0))
		return result{st: st, v0: uint64(ev)}
	case opGetCounterValue:
		v, st := k.GetCounterValue(CounterID(req.a0))
		return result{st: st, v0: uint64(v)}
	case opSetRelAlarm:
		return result{st: k.SetRelAlarm(AlarmID(req.a0), Tick(req.a1), Tick(req.a2))}
	case opSetAbsAlarm:
		return result{st: k.SetAbsAlarm(AlarmID(req.a0), Tick(req.a1), Tick(req.a2))}
	case opCancelAlarm:
		return result{st: k.CancelAlarm(AlarmID(req.a0))}
	case opGetAlarm:
		v, st := k.GetAlarm(AlarmID(req.a0))
		return result{st: st, v0: uint64(v)}
	case opStartTableRel:
		return result{st: k.StartScheduleTableRel(ScheduleTableID(req.a0), Tick(req.a1))}
	case opStartTableAbs:
		return result{st: k.StartScheduleTableAbs(ScheduleTableID(req.a0), Tick(req.a1))}
	case opStopTable:
		return result{st: k.StopScheduleTable(ScheduleTableID(req.a0))}
	case opRaiseInterrupt:
		return result{st: k.RaiseInterrupt(ISRID(req.a0))}
	case opShutdown:
		k.shutdown(Status(req.a0), true)
		return result{st: StatusOK}
	default:
		return result{st: StatusUnknownCall}
	}
}

// ctxYield gives up the processor once and reports a cancelled context.
func ctxYield(ctx context.Context) error {
	if ctx != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
	runtime.Gosched()
	return nil
}
