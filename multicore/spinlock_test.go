package multicore

import (
	"runtime"
	"sync"
	"testing"
)

func TestOwnerEncoding(t *testing.T) {
	o := MakeOwner(3, 0x1234)
	if o == 0 {
		t.Fatal("MakeOwner() = 0, want non-zero")
	}
	if got := o.Core(); got != 3 {
		t.Fatalf("Core() = %d; want 3", got)
	}
	if got := o.Unit(); got != 0x1234 {
		t.Fatalf("Unit() = %#x; want 0x1234", got)
	}
}

func TestSpinlockTryLockUnlock(t *testing.T) {
	s := NewSpinlocks(2)
	a := MakeOwner(0, 1)
	b := MakeOwner(1, 1)

	if !s.TryLock(0, a) {
		t.Fatal("TryLock(free) = false; want true")
	}
	if s.TryLock(0, b) {
		t.Fatal("TryLock(held) = true; want false")
	}
	if s.Unlock(0, b) {
		t.Fatal("Unlock by non-owner = true; want false")
	}
	if o, held := s.Owner(0); !held || o != a {
		t.Fatalf("Owner() = %v,%v; want %v,true", o, held, a)
	}
	if !s.Unlock(0, a) {
		t.Fatal("Unlock by owner = false; want true")
	}
	if _, held := s.Owner(0); held {
		t.Fatal("Owner() held after unlock")
	}
}

func TestSpinlockMutualExclusion(t *testing.T) {
	oldProcs := runtime.GOMAXPROCS(4)
	defer runtime.GOMAXPROCS(oldProcs)

	const (
		cores = 4
		iters = 5_000
	)
	s := NewSpinlocks(1)
	counter := 0

	var wg sync.WaitGroup
	wg.Add(cores)
	for c := 0; c < cores; c++ {
		go func(c int) {
			defer wg.Done()
			o := MakeOwner(CoreID(c), 0)
			for i := 0; i < iters; i++ {
				for !s.TryLock(0, o) {
					runtime.Gosched()
				}
				counter++
				s.Unlock(0, o)
			}
		}(c)
	}
	wg.Wait()

	if counter != cores*iters {
		t.Fatalf("counter = %d; want %d", counter, cores*iters)
	}
}
