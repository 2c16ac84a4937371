package multicore

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func fixed(m uint32) func() uint32 { return func() uint32 { return m } }

func TestSyncArrayAllCoresMeet(t *testing.T) {
	var a SyncArray
	const cores = 3
	mask := uint32(1<<cores - 1)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var wg sync.WaitGroup
	errs := make(chan error, cores*3)
	for c := 0; c < cores; c++ {
		wg.Add(1)
		go func(c CoreID) {
			defer wg.Done()
			for gen := uint32(1); gen <= 3; gen++ {
				errs <- a.Arrive(ctx, c, gen, fixed(mask), nil)
			}
		}(CoreID(c))
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("Arrive() = %v; want nil", err)
		}
	}
	for c := CoreID(0); c < cores; c++ {
		if got := a.Slot(c); got != 3 {
			t.Fatalf("Slot(%d) = %d; want 3", c, got)
		}
	}
}

func TestSyncArrayWaitsForLateCore(t *testing.T) {
	var a SyncArray
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := a.Arrive(ctx, 0, 1, fixed(0b11), nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Arrive() without peer = %v; want deadline exceeded", err)
	}
}

func TestSyncArrayHaltedCoreDropsOut(t *testing.T) {
	var a SyncArray
	var mask atomic.Uint32
	mask.Store(0b11)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	idles := 0
	err := a.Arrive(ctx, 0, 1, mask.Load, func() {
		idles++
		if idles == 3 {
			mask.Store(0b01)
		}
	})
	if err != nil {
		t.Fatalf("Arrive() = %v; want nil once core 1 leaves the mask", err)
	}
	if idles != 3 {
		t.Fatalf("idle ran %d times; want 3", idles)
	}
}

func TestSyncArrayDetectsCorruption(t *testing.T) {
	var a SyncArray
	a.Poke(1, 40)

	err := a.Arrive(context.Background(), 0, 1, fixed(0b11), nil)
	if !errors.Is(err, ErrSyncCorrupt) {
		t.Fatalf("Arrive() = %v; want ErrSyncCorrupt", err)
	}
}

func TestSyncArraySingleCore(t *testing.T) {
	var a SyncArray
	if err := a.Arrive(context.Background(), 0, 1, fixed(0b1), nil); err != nil {
		t.Fatalf("Arrive() = %v; want nil", err)
	}
	if err := a.Arrive(context.Background(), 0, 3, fixed(0b1), nil); !errors.Is(err, ErrSyncCorrupt) {
		t.Fatalf("Arrive() skipping a generation = %v; want ErrSyncCorrupt", err)
	}
}

func TestCoresTransition(t *testing.T) {
	c := NewCores(2)
	if c.Up(1) {
		t.Fatal("Up(1) = true for a fresh table")
	}
	if !c.Transition(1, CoreDown, CoreStarting) {
		t.Fatal("Transition(down->starting) = false")
	}
	if c.Transition(1, CoreDown, CoreRunning) {
		t.Fatal("Transition from wrong state = true")
	}
	if got := c.Activated(); got != 0b10 {
		t.Fatalf("Activated() = %#b; want 0b10", got)
	}
	if got := c.State(5); got != CoreDown {
		t.Fatalf("State(out of range) = %v; want down", got)
	}
}
