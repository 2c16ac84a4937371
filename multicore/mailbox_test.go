package multicore

import (
	"runtime"
	"sync"
	"testing"
)

func TestMailboxTryRecvEmpty(t *testing.T) {
	mb := NewMailbox[uint32]()

	_, ok := mb.TryRecv()
	if ok {
		t.Fatalf("TryRecv() ok = true, want false")
	}
}

func TestMailboxTrySendFull(t *testing.T) {
	mb := NewMailbox[uint32]()

	for i := 0; i < MailboxSlots; i++ {
		if ok := mb.TrySend(uint32(i)); !ok {
			t.Fatalf("TrySend() ok = false at slot %d, want true", i)
		}
	}
	if ok := mb.TrySend(99); ok {
		t.Fatalf("TrySend() ok = true when full, want false")
	}
	if got := mb.Len(); got != MailboxSlots {
		t.Fatalf("Len() = %d, want %d", got, MailboxSlots)
	}

	for i := 0; i < MailboxSlots; i++ {
		v, ok := mb.TryRecv()
		if !ok {
			t.Fatalf("TryRecv() ok = false at slot %d, want true", i)
		}
		if v != uint32(i) {
			t.Fatalf("TryRecv() = %d, want %d", v, i)
		}
	}
	if ok := mb.TrySend(1); !ok {
		t.Fatalf("TrySend() after drain ok = false, want true")
	}
}

func TestMailboxDoorbell(t *testing.T) {
	mb := NewMailbox[int]()
	mb.Send(7)
	select {
	case <-mb.Doorbell():
	default:
		t.Fatalf("Doorbell() not signalled after Send")
	}
	if got := mb.Recv(); got != 7 {
		t.Fatalf("Recv() = %d, want 7", got)
	}
}

func TestMailboxConcurrentProducers(t *testing.T) {
	oldProcs := runtime.GOMAXPROCS(2)
	defer runtime.GOMAXPROCS(oldProcs)

	const (
		producers = 4
		perProd   = 10_000
		total     = producers * perProd
	)

	mb := NewMailbox[uint32]()

	start := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(producers)
	for producerID := 0; producerID < producers; producerID++ {
		go func(producerID int) {
			defer wg.Done()
			<-start
			for i := 0; i < perProd; i++ {
				mb.Send(uint32(producerID*perProd + i))
			}
		}(producerID)
	}
	close(start)

	seen := make([]bool, total)
	last := make([]int, producers)
	for i := range last {
		last[i] = -1
	}
	for i := 0; i < total; i++ {
		id := mb.Recv()
		if int(id) >= total {
			t.Fatalf("Recv() id = %d, want < %d", id, total)
		}
		if seen[id] {
			t.Fatalf("Recv() duplicate id %d", id)
		}
		seen[id] = true

		// Messages from one producer arrive in send order.
		p, seq := int(id)/perProd, int(id)%perProd
		if seq <= last[p] {
			t.Fatalf("Recv() producer %d seq %d after %d", p, seq, last[p])
		}
		last[p] = seq
	}

	wg.Wait()
}
