package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"ecuos/hal"
	"ecuos/internal/oscfg"
	"ecuos/kernel"
)

type lineLog struct {
	mu    sync.Mutex
	lines []string
}

func (l *lineLog) WriteLineString(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, s)
}

func (l *lineLog) WriteLineBytes(b []byte) { l.WriteLineString(string(b)) }

func (l *lineLog) contains(sub string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, line := range l.lines {
		if strings.Contains(line, sub) {
			return true
		}
	}
	return false
}

type testHAL struct {
	log   *lineLog
	ticks chan uint64
	timer hal.ManualTimer
}

func newTestHAL() *testHAL {
	return &testHAL{log: &lineLog{}, ticks: make(chan uint64, 1024)}
}

func (h *testHAL) Logger() hal.Logger { return h.log }
func (h *testHAL) Time() hal.Time     { return h }
func (h *testHAL) Timer() hal.Timer   { return &h.timer }

func (h *testHAL) Ticks() <-chan uint64 { return h.ticks }

func TestDemoRunsAcrossCores(t *testing.T) {
	h := newTestHAL()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s, err := New(ctx, h, Config{OS: oscfg.DemoConfig(h.log)})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	var seq uint64
	for {
		seq++
		h.ticks <- seq
		var steps kernel.Tick
		st, err := s.OS().Call(ctx, 0, func(k *kernel.Kernel) kernel.Status {
			var st kernel.Status
			steps, st = k.GetCounterValue(oscfg.CtrSteps)
			return st
		})
		if err != nil {
			t.Fatalf("Call: %v", err)
		}
		if st != kernel.StatusOK {
			t.Fatalf("GetCounterValue = %s", st)
		}
		if steps > 0 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if !h.log.contains("init: mode 0") {
		t.Fatal("init task did not log")
	}
	if err := s.Step(); err != nil {
		t.Fatalf("Step while running = %v", err)
	}
	if lines := s.StatusLines(); len(lines) != 2 || !strings.HasPrefix(lines[1], "c1 running") {
		t.Fatalf("StatusLines = %q", lines)
	}

	_, err = s.OS().Call(ctx, 0, func(k *kernel.Kernel) kernel.Status { return k.ShutdownAllCores(kernel.StatusOK) })
	if err != nil && kernel.StatusOf(err) != kernel.StatusCoreIsDown {
		t.Fatalf("ShutdownAllCores: %v", err)
	}
	select {
	case <-s.Done():
	case <-ctx.Done():
		t.Fatal("cores did not halt")
	}
	if err := s.Step(); !errors.Is(err, ErrHalted) {
		t.Fatalf("Step after shutdown = %v; want %v", err, ErrHalted)
	}
	for i, line := range s.StatusLines() {
		if !strings.Contains(line, "halted") {
			t.Fatalf("status line %d = %q; want halted", i, line)
		}
	}
}

func TestCloseStopsCores(t *testing.T) {
	h := newTestHAL()
	cfg := kernel.Config{Tasks: []kernel.TaskConfig{{Name: "idle", Priority: 1}}}
	s, err := New(context.Background(), h, Config{OS: cfg})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close = %v", err)
	}
	if err := s.Step(); !errors.Is(err, ErrHalted) {
		t.Fatalf("Step after Close = %v; want %v", err, ErrHalted)
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(context.Background(), newTestHAL(), Config{OS: kernel.Config{Cores: 99}})
	if err == nil || !strings.HasPrefix(err.Error(), "app: ") {
		t.Fatalf("New = %v; want app error", err)
	}
}

func TestStartOSFailureIsReported(t *testing.T) {
	s, err := New(context.Background(), newTestHAL(), Config{Mode: 3})
	if err != nil {
		t.Fatal(err)
	}
	<-s.Done()
	if err := s.Err(); err == nil || !strings.Contains(err.Error(), "start os") {
		t.Fatalf("Err = %v; want start os failure", err)
	}
	if err := s.Step(); errors.Is(err, ErrHalted) {
		t.Fatal("Step hid the start failure")
	}
}

func TestPanicLinesWrap(t *testing.T) {
	info := kernel.PanicInfo{
		Core:   1,
		Status: kernel.StatusSyncCorrupt,
		Stack:  []byte("goroutine 1 [running]:\n" + strings.Repeat("x", 25) + "\n"),
	}
	lines := panicLines(info, 10)
	for _, line := range lines {
		if n := len([]rune(line)); n > 10 {
			t.Fatalf("line %q has %d runes; want <= 10", line, n)
		}
	}
	full := panicLines(info, 0)
	if full[0] != "ecuos panic: core=1 status=sync array corrupted" {
		t.Fatalf("first line = %q", full[0])
	}
	if full[len(full)-1] != strings.Repeat("x", 25) {
		t.Fatalf("last line = %q", full[len(full)-1])
	}
}

func TestTakeRunes(t *testing.T) {
	for _, tc := range []struct {
		s          string
		n          int
		prefix, rest string
	}{
		{"hello", 10, "hello", ""},
		{"hello", 2, "he", "llo"},
		{"héllo", 2, "hé", "llo"},
		{"", 3, "", ""},
		{"abc", 0, "", "abc"},
	} {
		p, r := takeRunes(tc.s, tc.n)
		if p != tc.prefix || r != tc.rest {
			t.Fatalf("takeRunes(%q, %d) = %q, %q; want %q, %q", tc.s, tc.n, p, r, tc.prefix, tc.rest)
		}
	}
}
