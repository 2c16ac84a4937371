package kernel

import (
	"testing"

	"ecuos/hal"
)

func boot(t *testing.T, cfg Config, opts Options) (*Kernel, *hal.ManualTimer) {
	t.Helper()
	tm := &hal.ManualTimer{}
	if opts.Timer == nil {
		opts.Timer = tm
	}
	sys, err := NewSystem(cfg, opts)
	if err != nil {
		t.Fatalf("NewSystem: %v", err)
	}
	k := sys.Kernel(0)
	if st := k.StartOS(0); st != StatusOK {
		t.Fatalf("StartOS = %s", st)
	}
	return k, tm
}

func mustOK(t *testing.T, what string, st Status) {
	t.Helper()
	if st != StatusOK {
		t.Fatalf("%s = %s; want ok", what, st)
	}
}

func taskState(t *testing.T, k *Kernel, id TaskID) TaskState {
	t.Helper()
	s, st := k.GetTaskState(id)
	if st != StatusOK {
		t.Fatalf("GetTaskState(%d) = %s", id, st)
	}
	return s
}

func TestPriorityCeilingDefersPreemption(t *testing.T) {
	const low, high = TaskID(0), TaskID(1)
	k, _ := boot(t, Config{
		Tasks: []TaskConfig{
			{Name: "low", Priority: 1, Resources: []ResourceID{0}},
			{Name: "high", Priority: 5, Resources: []ResourceID{0}},
		},
		Resources: []ResourceConfig{{Name: "res"}},
	}, Options{})

	if got := k.sys.cfg.Resources[0].Ceiling; got != 5 {
		t.Fatalf("computed ceiling = %d; want 5", got)
	}

	mustOK(t, "ActivateTask(low)", k.ActivateTask(low))
	if got := k.GetTaskID(); got != low {
		t.Fatalf("running = %d; want low", got)
	}
	mustOK(t, "GetResource", k.GetResource(0))
	mustOK(t, "ActivateTask(high)", k.ActivateTask(high))

	if got := k.GetTaskID(); got != low {
		t.Fatalf("running while resource held = %d; want low", got)
	}
	if got := taskState(t, k, high); got != TaskNew {
		t.Fatalf("high state = %s; want new", got)
	}

	mustOK(t, "ReleaseResource", k.ReleaseResource(0))
	if got := k.GetTaskID(); got != high {
		t.Fatalf("running after release = %d; want high", got)
	}
	if got := taskState(t, k, low); got != TaskReadySync {
		t.Fatalf("low state = %s; want ready-sync", got)
	}
	if got := k.tasks[low].prio; got != 1 {
		t.Fatalf("low priority after release = %d; want 1", got)
	}

	mustOK(t, "TerminateTask(high)", k.TerminateTask())
	if got := k.GetTaskID(); got != low {
		t.Fatalf("running after high terminated = %d; want low", got)
	}
	if got := taskState(t, k, low); got != TaskRunning {
		t.Fatalf("low state = %s; want running", got)
	}
}

func TestTerminateHoldingResourceFails(t *testing.T) {
	k, _ := boot(t, Config{
		Tasks:     []TaskConfig{{Name: "t", Priority: 1, Resources: []ResourceID{0}}},
		Resources: []ResourceConfig{{Name: "r"}},
	}, Options{})
	mustOK(t, "ActivateTask", k.ActivateTask(0))
	mustOK(t, "GetResource", k.GetResource(0))

	if st := k.TerminateTask(); st != StatusResource {
		t.Fatalf("TerminateTask = %s; want %s", st, StatusResource)
	}
	if got := taskState(t, k, 0); got != TaskRunning {
		t.Fatalf("state = %s; want running", got)
	}
	if !k.resources[0].taken {
		t.Fatal("resource released by failed TerminateTask")
	}
	if info := k.GetErrorInfo(); info.Service != ServiceTerminateTask || info.Status != StatusResource {
		t.Fatalf("error info = %+v", info)
	}

	mustOK(t, "ReleaseResource", k.ReleaseResource(0))
	mustOK(t, "TerminateTask", k.TerminateTask())
	if got := taskState(t, k, 0); got != TaskSuspended {
		t.Fatalf("state = %s; want suspended", got)
	}
}

func TestResourcesReleaseInStackOrder(t *testing.T) {
	k, _ := boot(t, Config{
		Tasks:     []TaskConfig{{Name: "t", Priority: 1, Resources: []ResourceID{0, 1}}},
		Resources: []ResourceConfig{{Name: "a", Ceiling: 3}, {Name: "b", Ceiling: 7}},
	}, Options{})
	mustOK(t, "ActivateTask", k.ActivateTask(0))
	mustOK(t, "GetResource(a)", k.GetResource(0))
	mustOK(t, "GetResource(b)", k.GetResource(1))

	if st := k.GetResource(0); st != StatusInUse {
		t.Fatalf("GetResource(a) again = %s; want %s", st, StatusInUse)
	}
	if st := k.ReleaseResource(0); st != StatusNoFunc {
		t.Fatalf("out-of-order ReleaseResource = %s; want %s", st, StatusNoFunc)
	}
	if got := k.tasks[0].prio; got != 7 {
		t.Fatalf("priority = %d; want 7", got)
	}
	mustOK(t, "ReleaseResource(b)", k.ReleaseResource(1))
	if got := k.tasks[0].prio; got != 3 {
		t.Fatalf("priority = %d; want 3", got)
	}
	mustOK(t, "ReleaseResource(a)", k.ReleaseResource(0))
	if got := k.tasks[0].prio; got != 1 {
		t.Fatalf("priority = %d; want 1", got)
	}
}

func TestGetResourceAboveCeiling(t *testing.T) {
	k, _ := boot(t, Config{
		Tasks: []TaskConfig{
			{Name: "user", Priority: 3, Resources: []ResourceID{0}},
			{Name: "intruder", Priority: 5},
		},
		Resources: []ResourceConfig{{Name: "r"}},
	}, Options{})
	mustOK(t, "ActivateTask", k.ActivateTask(1))
	if st := k.GetResource(0); st != StatusCeiling {
		t.Fatalf("GetResource = %s; want %s", st, StatusCeiling)
	}
}

func TestActivationLimit(t *testing.T) {
	k, _ := boot(t, Config{
		Tasks: []TaskConfig{{Name: "t", Priority: 1, MaxActivations: 3}},
	}, Options{})
	for i := 0; i < 3; i++ {
		mustOK(t, "ActivateTask", k.ActivateTask(0))
	}
	if st := k.ActivateTask(0); st != StatusLimit {
		t.Fatalf("fourth ActivateTask = %s; want %s", st, StatusLimit)
	}
	for i := 0; i < 3; i++ {
		if got := k.GetTaskID(); got != 0 {
			t.Fatalf("activation %d: running = %d; want 0", i, got)
		}
		if !k.tasks[0].fresh {
			t.Fatalf("activation %d not fresh", i)
		}
		mustOK(t, "TerminateTask", k.TerminateTask())
	}
	if got := taskState(t, k, 0); got != TaskSuspended {
		t.Fatalf("state = %s; want suspended", got)
	}
	if got := k.GetTaskID(); got != InvalidTask {
		t.Fatalf("running = %d; want none", got)
	}
}

func TestChainTask(t *testing.T) {
	k, _ := boot(t, Config{
		Tasks: []TaskConfig{
			{Name: "a", Priority: 2},
			{Name: "b", Priority: 1},
		},
	}, Options{})
	mustOK(t, "ActivateTask", k.ActivateTask(0))
	mustOK(t, "ChainTask", k.ChainTask(1))
	if got := k.GetTaskID(); got != 1 {
		t.Fatalf("running = %d; want b", got)
	}
	if got := taskState(t, k, 0); got != TaskSuspended {
		t.Fatalf("a = %s; want suspended", got)
	}

	// Chaining to itself restarts the activation.
	mustOK(t, "ChainTask(self)", k.ChainTask(1))
	if got := k.GetTaskID(); got != 1 || !k.tasks[1].fresh {
		t.Fatalf("running = %d fresh = %v; want b, fresh", got, k.tasks[1].fresh)
	}
}

func TestNonPreemptiveTaskYieldsOnSchedule(t *testing.T) {
	k, _ := boot(t, Config{
		Tasks: []TaskConfig{
			{Name: "np", Priority: 1, RunPriority: 10},
			{Name: "mid", Priority: 4},
		},
	}, Options{})
	mustOK(t, "ActivateTask(np)", k.ActivateTask(0))
	mustOK(t, "ActivateTask(mid)", k.ActivateTask(1))
	if got := k.GetTaskID(); got != 0 {
		t.Fatalf("running = %d; want np", got)
	}
	mustOK(t, "Schedule", k.Schedule())
	if got := k.GetTaskID(); got != 1 {
		t.Fatalf("running after Schedule = %d; want mid", got)
	}
	mustOK(t, "TerminateTask(mid)", k.TerminateTask())
	if got := k.GetTaskID(); got != 0 {
		t.Fatalf("running = %d; want np", got)
	}
	if got := k.tasks[0].prio; got != 10 {
		t.Fatalf("np priority = %d; want run priority 10", got)
	}
}

func TestWaitEventHoldingSpinlock(t *testing.T) {
	k, _ := boot(t, Config{
		Tasks:     []TaskConfig{{Name: "ext", Priority: 1, Extended: true}},
		Spinlocks: []SpinlockConfig{{Name: "s"}},
	}, Options{})
	mustOK(t, "ActivateTask", k.ActivateTask(0))
	mustOK(t, "GetSpinlock", k.GetSpinlock(0))

	if st := k.WaitEvent(1); st != StatusSpinlock {
		t.Fatalf("WaitEvent = %s; want %s", st, StatusSpinlock)
	}
	if got := taskState(t, k, 0); got != TaskRunning {
		t.Fatalf("state = %s; want running", got)
	}
	if _, held := k.sys.locks.Owner(0); !held {
		t.Fatal("spinlock dropped by failed WaitEvent")
	}

	mustOK(t, "ReleaseSpinlock", k.ReleaseSpinlock(0))
	mustOK(t, "WaitEvent", k.WaitEvent(1))
	if got := taskState(t, k, 0); got != TaskWaiting {
		t.Fatalf("state = %s; want waiting", got)
	}
	if got := k.GetTaskID(); got != InvalidTask {
		t.Fatalf("running = %d; want none", got)
	}

	mustOK(t, "SetEvent(2)", k.SetEvent(0, 2))
	if got := taskState(t, k, 0); got != TaskWaiting {
		t.Fatalf("state after unrelated event = %s; want waiting", got)
	}
	mustOK(t, "SetEvent(1)", k.SetEvent(0, 1))
	if got := k.GetTaskID(); got != 0 {
		t.Fatalf("running = %d; want ext", got)
	}
	ev, st := k.GetEvent(0)
	if st != StatusOK || ev != 3 {
		t.Fatalf("GetEvent = %b, %s; want 11, ok", ev, st)
	}
	mustOK(t, "ClearEvent", k.ClearEvent(1))
	// A pending event satisfies WaitEvent without blocking.
	mustOK(t, "WaitEvent(2)", k.WaitEvent(2))
	if got := taskState(t, k, 0); got != TaskRunning {
		t.Fatalf("state = %s; want running", got)
	}
}

func TestEventsOnBasicTask(t *testing.T) {
	k, _ := boot(t, Config{
		Tasks: []TaskConfig{{Name: "basic", Priority: 1}},
	}, Options{})
	mustOK(t, "ActivateTask", k.ActivateTask(0))
	if st := k.SetEvent(0, 1); st != StatusAccess {
		t.Fatalf("SetEvent = %s; want %s", st, StatusAccess)
	}
	if st := k.WaitEvent(1); st != StatusAccess {
		t.Fatalf("WaitEvent = %s; want %s", st, StatusAccess)
	}
}

func TestSpinlockOrderingAndDeadlock(t *testing.T) {
	k, _ := boot(t, Config{
		Tasks: []TaskConfig{{Name: "t", Priority: 1}},
		Spinlocks: []SpinlockConfig{
			{Name: "a", Order: 1},
			{Name: "b", Order: 2},
		},
	}, Options{})
	mustOK(t, "ActivateTask", k.ActivateTask(0))
	mustOK(t, "GetSpinlock(b)", k.GetSpinlock(1))
	if st := k.GetSpinlock(0); st != StatusNesting {
		t.Fatalf("GetSpinlock(a) after b = %s; want %s", st, StatusNesting)
	}
	if st := k.GetSpinlock(1); st != StatusDeadlock {
		t.Fatalf("GetSpinlock(b) twice = %s; want %s", st, StatusDeadlock)
	}
	ok, st := k.TryToGetSpinlock(1)
	if ok || st != StatusDeadlock {
		t.Fatalf("TryToGetSpinlock(b) = %v, %s; want false, %s", ok, st, StatusDeadlock)
	}
	if st := k.TerminateTask(); st != StatusSpinlock {
		t.Fatalf("TerminateTask = %s; want %s", st, StatusSpinlock)
	}
	mustOK(t, "ReleaseSpinlock", k.ReleaseSpinlock(1))
	if st := k.ReleaseSpinlock(1); st != StatusState {
		t.Fatalf("second ReleaseSpinlock = %s; want %s", st, StatusState)
	}
}

func TestPermissions(t *testing.T) {
	k, _ := boot(t, Config{
		Applications: []ApplicationConfig{
			{Name: "trusted", Trusted: true},
			{Name: "a"},
			{Name: "b"},
		},
		Tasks: []TaskConfig{
			{Name: "ta", App: 1, Priority: 1},
			{Name: "tb", App: 2, Priority: 1, Permissions: 1 << 2},
			{Name: "open", App: 2, Priority: 1},
		},
	}, Options{})
	mustOK(t, "ActivateTask(ta)", k.ActivateTask(0))
	if st := k.ActivateTask(1); st != StatusPermission {
		t.Fatalf("ActivateTask(tb) from app a = %s; want %s", st, StatusPermission)
	}
	mustOK(t, "ActivateTask(open)", k.ActivateTask(2))
}

func TestErrorHookDoesNotRecurse(t *testing.T) {
	calls := 0
	k, _ := boot(t, Config{
		Tasks: []TaskConfig{{Name: "t", Priority: 1}},
	}, Options{Hooks: Hooks{Error: func(hk *Kernel, st Status) {
		calls++
		if st != StatusID {
			t.Errorf("hook status = %s; want %s", st, StatusID)
		}
		hk.ActivateTask(99)
	}}})

	if st := k.ActivateTask(42); st != StatusID {
		t.Fatalf("ActivateTask(42) = %s; want %s", st, StatusID)
	}
	if calls != 1 {
		t.Fatalf("error hook ran %d times; want 1", calls)
	}
	if got := k.GetErrorInfo().Params[0]; got != 99 {
		t.Fatalf("last error param = %d; want 99", got)
	}
}

func TestTerminateApplication(t *testing.T) {
	k, _ := boot(t, Config{
		Applications: []ApplicationConfig{
			{Name: "system", Trusted: true},
			{Name: "app", Restartable: true, RestartTask: 2},
		},
		Tasks: []TaskConfig{
			{Name: "sys", Priority: 1},
			{Name: "worker", App: 1, Priority: 2},
			{Name: "restart", App: 1, Priority: 3},
		},
	}, Options{})
	mustOK(t, "ActivateTask(sys)", k.ActivateTask(0))
	mustOK(t, "ActivateTask(worker)", k.ActivateTask(1))
	if got := k.GetTaskID(); got != 1 {
		t.Fatalf("running = %d; want worker", got)
	}

	mustOK(t, "TerminateApplication", k.TerminateApplication(1, false))
	if got := taskState(t, k, 1); got != TaskSuspended {
		t.Fatalf("worker = %s; want suspended", got)
	}
	if s, _ := k.GetApplicationState(1); s != AppTerminated {
		t.Fatalf("app = %s; want terminated", s)
	}
	if st := k.ActivateTask(1); st != StatusAccess {
		t.Fatalf("ActivateTask into terminated app = %s; want %s", st, StatusAccess)
	}
	if st := k.TerminateApplication(1, false); st != StatusState {
		t.Fatalf("second TerminateApplication = %s; want %s", st, StatusState)
	}
}

func TestRestartApplication(t *testing.T) {
	k, _ := boot(t, Config{
		Applications: []ApplicationConfig{
			{Name: "system", Trusted: true},
			{Name: "app", Restartable: true, RestartTask: 1},
		},
		Tasks: []TaskConfig{
			{Name: "worker", App: 1, Priority: 2},
			{Name: "restart", App: 1, Priority: 3},
		},
	}, Options{})
	mustOK(t, "ActivateTask(worker)", k.ActivateTask(0))
	mustOK(t, "TerminateApplication", k.TerminateApplication(1, true))

	if s, _ := k.GetApplicationState(1); s != AppRestarting {
		t.Fatalf("app = %s; want restarting", s)
	}
	if got := k.GetTaskID(); got != 1 {
		t.Fatalf("running = %d; want restart task", got)
	}
	mustOK(t, "AllowAccess", k.AllowAccess())
	if s, _ := k.GetApplicationState(1); s != AppAccessible {
		t.Fatalf("app = %s; want accessible", s)
	}
}

func TestSnapshotPublishesQueue(t *testing.T) {
	k, _ := boot(t, Config{
		Tasks: []TaskConfig{
			{Name: "a", Priority: 1},
			{Name: "b", Priority: 2},
		},
	}, Options{})
	k.ActivateTask(0)
	k.ActivateTask(1)
	k.publish()

	s := k.Snapshot()
	if s.Running != 1 {
		t.Fatalf("snapshot running = %d; want 1", s.Running)
	}
	if len(s.Ready) != 2 || s.Ready[0] != 1 || s.Ready[1] != 0 {
		t.Fatalf("snapshot ready = %v; want [1 0]", s.Ready)
	}
	if got := s.Summary(k.sys.Config()); got != "c0 running run=b ready=a" {
		t.Fatalf("Summary = %q", got)
	}
}
