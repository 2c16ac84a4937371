package kernel

import (
	"context"
	"testing"
	"time"
)

func TestStepRunsBodyUntilTerminate(t *testing.T) {
	var firsts []bool
	var saved *Context
	cfg := Config{Tasks: []TaskConfig{{Name: "t", Priority: 1}}}
	cfg.Tasks[0].Body = TaskFunc(func(c *Context) {
		firsts = append(firsts, c.First())
		saved = c
		if len(firsts) == 3 {
			c.TerminateTask()
		}
	})
	k, _ := boot(t, cfg, Options{})
	mustOK(t, "ActivateTask", k.ActivateTask(0))

	for i := 0; i < 3; i++ {
		if !k.step() {
			t.Fatalf("step %d found no task", i)
		}
	}
	if k.step() {
		t.Fatal("step ran a terminated task")
	}
	if len(firsts) != 3 || !firsts[0] || firsts[1] || firsts[2] {
		t.Fatalf("First() = %v; want [true false false]", firsts)
	}
	if st := saved.ActivateTask(0); st != StatusCallLevel {
		t.Fatalf("stale context ActivateTask = %s; want %s", st, StatusCallLevel)
	}
}

func TestStepTerminatesBodylessTask(t *testing.T) {
	k, _ := boot(t, Config{Tasks: []TaskConfig{{Name: "t", Priority: 1}}}, Options{})
	mustOK(t, "ActivateTask", k.ActivateTask(0))
	k.step()
	if got := taskState(t, k, 0); got != TaskSuspended {
		t.Fatalf("state = %s; want suspended", got)
	}
}

func TestPanickingBodyIsQuarantined(t *testing.T) {
	cfg := Config{
		Tasks:     []TaskConfig{{Name: "bad", Priority: 1, Resources: []ResourceID{0}}},
		Resources: []ResourceConfig{{Name: "r"}},
	}
	cfg.Tasks[0].Body = TaskFunc(func(c *Context) {
		c.GetResource(0)
		panic("boom")
	})
	k, _ := boot(t, cfg, Options{})
	mustOK(t, "ActivateTask", k.ActivateTask(0))
	k.step()

	if got := taskState(t, k, 0); got != TaskQuarantined {
		t.Fatalf("state = %s; want quarantined", got)
	}
	if k.resources[0].taken {
		t.Fatal("resource still held by quarantined task")
	}
	if info := k.GetErrorInfo(); info.Status != StatusUnknownCall {
		t.Fatalf("error = %s; want %s", info.Status, StatusUnknownCall)
	}
	if k.depth != 0 || k.critical != 0 {
		t.Fatalf("depth = %d, critical = %d after recovery", k.depth, k.critical)
	}
}

func TestRunDrivesTicksUntilShutdown(t *testing.T) {
	cfg := Config{
		Tasks: []TaskConfig{{Name: "stopper", Priority: 1}},
		Counters: []CounterConfig{{Name: "hw", MaxAllowedValue: 999, Hardware: true}},
		Alarms: []AlarmConfig{{
			Name: "a", Counter: 0,
			Action:    Action{Kind: ActionActivateTask, Task: 0},
			Autostart: []AlarmAutostart{{Mode: 0, Method: StartRelative, Start: 5}},
		}},
	}
	cfg.Tasks[0].Body = TaskFunc(func(c *Context) {
		c.Kernel().ShutdownOS(StatusOK)
	})
	k, _ := boot(t, cfg, Options{})

	ticks := make(chan uint64)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- k.Run(ctx, ticks) }()

	for i := uint64(1); i <= 5; i++ {
		select {
		case ticks <- i:
		case err := <-done:
			t.Fatalf("Run returned early: %v", err)
		}
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run = %v; want nil", err)
		}
	case <-ctx.Done():
		t.Fatal("core did not shut down")
	}
	if !k.Halted() {
		t.Fatal("core not halted")
	}
	if s := k.Snapshot(); s.State.String() != "halted" {
		t.Fatalf("snapshot state = %s; want halted", s.State)
	}
}

func TestRunStopsOnContext(t *testing.T) {
	k, _ := boot(t, Config{}, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := k.Run(ctx, nil); err != context.Canceled {
		t.Fatalf("Run = %v; want %v", err, context.Canceled)
	}
}

func TestPanicIsRecordedOnce(t *testing.T) {
	var calls int
	k, _ := boot(t, Config{}, Options{Panic: func(PanicInfo) { calls++ }})
	k.sys.sync.Poke(0, 42)
	if st := k.SyncHere(); st != StatusSyncCorrupt {
		t.Fatalf("SyncHere = %s; want %s", st, StatusSyncCorrupt)
	}
	k.Panic(StatusUnknownCall)

	info, ok := k.sys.Panicked()
	if !ok || info.Status != StatusSyncCorrupt || info.Core != 0 {
		t.Fatalf("Panicked = %+v, %v; want sync-corrupt on core 0", info, ok)
	}
	if calls != 1 {
		t.Fatalf("panic handler ran %d times; want 1", calls)
	}
	if !k.Halted() {
		t.Fatal("core not halted after panic")
	}
}

func TestShutdownHooksSurvivePanics(t *testing.T) {
	var ran []string
	k, _ := boot(t, Config{
		Applications: []ApplicationConfig{{
			Name: "app", Trusted: true,
			ShutdownHook: func(*Kernel, Status) { ran = append(ran, "app"); panic("bad hook") },
		}},
	}, Options{Hooks: Hooks{Shutdown: func(*Kernel, Status) { ran = append(ran, "global") }}})
	mustOK(t, "ShutdownOS", k.ShutdownOS(StatusValue))
	if len(ran) != 2 || ran[0] != "app" || ran[1] != "global" {
		t.Fatalf("hooks ran %v; want [app global]", ran)
	}
	if st := k.ShutdownOS(StatusOK); st != StatusShutdown {
		t.Fatalf("second ShutdownOS = %s; want %s", st, StatusShutdown)
	}
}
