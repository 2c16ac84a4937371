package trace

import (
	"bytes"
	"image/png"
	"reflect"
	"sync"
	"testing"

	"ecuos/kernel"
)

func TestRecorderWraps(t *testing.T) {
	r := NewRecorder(3)
	for i := uint64(1); i <= 5; i++ {
		r.TaskState(0, kernel.TaskID(i), kernel.TaskRunning, i)
	}
	var ats []uint64
	for _, e := range r.Events() {
		ats = append(ats, e.At)
	}
	if !reflect.DeepEqual(ats, []uint64{3, 4, 5}) {
		t.Fatalf("events at %v; want [3 4 5]", ats)
	}
	if got := r.Dropped(); got != 2 {
		t.Fatalf("Dropped = %d; want 2", got)
	}
	r.Reset()
	if n := len(r.Events()); n != 0 {
		t.Fatalf("%d events after Reset; want 0", n)
	}
}

func TestRecorderConcurrent(t *testing.T) {
	r := NewRecorder(1000)
	var wg sync.WaitGroup
	for c := 0; c < 4; c++ {
		wg.Add(1)
		go func(core kernel.CoreID) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				r.ISR(core, 0, i%2 == 0, uint64(i))
			}
		}(kernel.CoreID(c))
	}
	wg.Wait()
	if n := len(r.Events()); n != 400 {
		t.Fatalf("recorded %d events; want 400", n)
	}
}

func TestSpans(t *testing.T) {
	events := []Event{
		{Kind: KindTask, Core: 0, Task: 1, State: kernel.TaskRunning, At: 10},
		{Kind: KindISREnter, Core: 0, ISR: 0, At: 12},
		{Kind: KindISREnter, Core: 0, ISR: 1, At: 13},
		{Kind: KindISRExit, Core: 0, ISR: 1, At: 14},
		{Kind: KindISRExit, Core: 0, ISR: 0, At: 15},
		{Kind: KindTask, Core: 0, Task: 2, State: kernel.TaskRunning, At: 20},
		{Kind: KindTask, Core: 0, Task: 1, State: kernel.TaskReadyAsync, At: 20},
		{Kind: KindTask, Core: 0, Task: 2, State: kernel.TaskSuspended, At: 30},
		{Kind: KindTask, Core: 1, Task: 4, State: kernel.TaskRunning, At: 25},
	}
	got := Spans(events, 40)
	want := []Span{
		{Core: 0, ID: 1, Start: 10, End: 20},
		{Core: 0, ISR: true, ID: 0, Start: 12, End: 15},
		{Core: 0, ISR: true, ID: 1, Depth: 1, Start: 13, End: 14},
		{Core: 0, ID: 2, Start: 20, End: 30},
		{Core: 1, ID: 4, Start: 25, End: 40},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Spans =\n%+v\nwant\n%+v", got, want)
	}
}

func TestSpansSkipsOrphanExit(t *testing.T) {
	got := Spans([]Event{{Kind: KindISRExit, Core: 0, ISR: 3, At: 5}}, 10)
	if len(got) != 0 {
		t.Fatalf("Spans = %+v; want none", got)
	}
}

func TestRenderPNG(t *testing.T) {
	cfg := &kernel.Config{
		Cores: 2,
		Tasks: []kernel.TaskConfig{{Name: "a"}, {Name: "b"}},
		ISRs:  []kernel.ISRConfig{{Name: "irq", Level: 1}},
	}
	spans := []Span{
		{Core: 0, ID: 0, Start: 0, End: 50},
		{Core: 0, ISR: true, ID: 0, Start: 10, End: 20},
		{Core: 1, ID: 1, Start: 30, End: 100},
	}
	var buf bytes.Buffer
	if err := RenderPNG(&buf, cfg, spans, RenderOptions{Width: 400, LaneH: 20, Margin: 4}); err != nil {
		t.Fatal(err)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 400 || b.Dy() != 4*2+2*2*20+20 {
		t.Fatalf("image is %dx%d", b.Dx(), b.Dy())
	}
}

func TestRenderEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderPNG(&buf, &kernel.Config{}, nil, RenderOptions{}); err != nil {
		t.Fatal(err)
	}
	if buf.Len() == 0 {
		t.Fatal("empty png")
	}
}

func TestEnd(t *testing.T) {
	evs := []Event{{At: 4}, {At: 9}, {At: 7}}
	if got := End(evs); got != 9 {
		t.Fatalf("End = %d; want 9", got)
	}
	if got := End(nil); got != 0 {
		t.Fatalf("End(nil) = %d; want 0", got)
	}
}
