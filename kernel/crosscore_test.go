package kernel

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"ecuos/multicore"
)

func twoCoreConfig(body TaskBody) Config {
	return Config{
		Cores: 2,
		Applications: []ApplicationConfig{
			{Name: "core0", Core: 0, Trusted: true},
			{Name: "core1", Core: 1, Trusted: true},
		},
		Tasks: []TaskConfig{
			{Name: "t0", App: 0, Core: 0, Priority: 1},
			{Name: "t1", App: 1, Core: 1, Priority: 1, Body: body},
		},
		Counters: []CounterConfig{{Name: "c1", App: 1, Core: 1, MaxAllowedValue: 99}},
	}
}

func TestRemoteCallToDownCore(t *testing.T) {
	k, _ := boot(t, twoCoreConfig(nil), Options{})
	if st := k.ActivateTask(1); st != StatusCoreIsDown {
		t.Fatalf("ActivateTask on down core = %s; want %s", st, StatusCoreIsDown)
	}
	if _, st := k.GetCounterValue(0); st != StatusCoreIsDown {
		t.Fatalf("GetCounterValue on down core = %s; want %s", st, StatusCoreIsDown)
	}
	if st := k.IncrementCounter(0); st != StatusAccess {
		t.Fatalf("IncrementCounter of foreign counter = %s; want %s", st, StatusAccess)
	}
	if n := k.GetNumberOfActivatedCores(); n != 1 {
		t.Fatalf("activated cores = %d; want 1", n)
	}
}

func TestStartCore(t *testing.T) {
	sys, err := NewSystem(twoCoreConfig(nil), Options{})
	if err != nil {
		t.Fatal(err)
	}
	k := sys.Kernel(0)
	mustOK(t, "StartCore", k.StartCore(1))
	if st := k.StartCore(1); st != StatusState {
		t.Fatalf("second StartCore = %s; want %s", st, StatusState)
	}
	if st := k.StartCore(5); st != StatusID {
		t.Fatalf("StartCore(5) = %s; want %s", st, StatusID)
	}
	if got := sys.CoreState(1); got != multicore.CoreStarting {
		t.Fatalf("core 1 = %s; want starting", got)
	}
}

func TestCrossCoreServices(t *testing.T) {
	var runs atomic.Int32
	body := TaskFunc(func(c *Context) {
		runs.Add(1)
		c.TerminateTask()
	})
	sys, err := NewSystem(twoCoreConfig(body), Options{})
	if err != nil {
		t.Fatal(err)
	}
	mustOK(t, "StartCore", sys.Kernel(0).StartCore(1))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < sys.NumCores(); i++ {
		k := sys.Kernel(CoreID(i))
		g.Go(func() error {
			if st := k.StartOS(0); st != StatusOK {
				return fmt.Errorf("core %d: StartOS: %w", k.GetCoreID(), st.Err())
			}
			return k.Run(gctx, nil)
		})
	}

	call := func(core CoreID, fn func(*Kernel) Status) Status {
		t.Helper()
		st, err := sys.Call(ctx, core, fn)
		if err != nil {
			t.Fatalf("Call(core %d): %v", core, err)
		}
		return st
	}

	if st := call(0, func(k *Kernel) Status { return k.ActivateTask(1) }); st != StatusOK {
		t.Fatalf("remote ActivateTask = %s", st)
	}
	for runs.Load() == 0 {
		if ctx.Err() != nil {
			t.Fatal("task on core 1 never ran")
		}
		time.Sleep(time.Millisecond)
	}

	for i := 0; i < 3; i++ {
		if st := call(1, func(k *Kernel) Status { return k.IncrementCounter(0) }); st != StatusOK {
			t.Fatalf("IncrementCounter on core 1 = %s", st)
		}
	}
	var v Tick
	if st := call(0, func(k *Kernel) Status {
		var st Status
		v, st = k.GetCounterValue(0)
		return st
	}); st != StatusOK || v != 3 {
		t.Fatalf("remote GetCounterValue = %d, %s; want 3, ok", v, st)
	}

	var n int
	call(0, func(k *Kernel) Status { n = k.GetNumberOfActivatedCores(); return StatusOK })
	if n != 2 {
		t.Fatalf("activated cores = %d; want 2", n)
	}

	// The caller may see the core halt before the answer is published.
	st, err := sys.Call(ctx, 0, func(k *Kernel) Status { return k.ShutdownAllCores(StatusOK) })
	if err != nil && StatusOf(err) != StatusCoreIsDown {
		t.Fatalf("ShutdownAllCores: %v", err)
	}
	if err == nil && st != StatusOK {
		t.Fatalf("ShutdownAllCores = %s", st)
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("cores: %v", err)
	}
	for i := 0; i < sys.NumCores(); i++ {
		if got := sys.CoreState(CoreID(i)); got != multicore.CoreHalted {
			t.Fatalf("core %d = %s; want halted", i, got)
		}
	}
}

func TestCallDropsAbandonedRequest(t *testing.T) {
	k, _ := boot(t, Config{}, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ran := false
	_, err := k.sys.Call(ctx, 0, func(*Kernel) Status { ran = true; return StatusOK })
	if err != context.Canceled {
		t.Fatalf("Call = %v; want %v", err, context.Canceled)
	}
	k.serveInbox()
	if ran {
		t.Fatal("fn ran after the caller gave up")
	}
}
