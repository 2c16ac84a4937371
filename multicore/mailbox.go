package multicore

import (
	"runtime"
	"sync/atomic"
)

// MailboxSlots is the capacity of every cross-core mailbox.
const MailboxSlots = 16

type mailboxSlot[T any] struct {
	seq atomic.Uint32
	msg T
}

// Mailbox is a fixed-size multi-producer, single-consumer queue used for
// requests sent from one core's kernel to another.
//
// Memory ordering: a message stored by TrySend is visible to the receiver that
// observes the slot sequence published after the store. The doorbell channel
// only wakes an idle receiver; it carries no data.
//
// It does not allocate after construction and never blocks on TrySend/TryRecv.
type Mailbox[T any] struct {
	_     [0]func() // prevent accidental copying.
	head  atomic.Uint32
	tail  atomic.Uint32
	slots [MailboxSlots]mailboxSlot[T]
	bell  chan struct{}
}

// NewMailbox creates an empty mailbox.
func NewMailbox[T any]() *Mailbox[T] {
	mb := &Mailbox[T]{bell: make(chan struct{}, 1)}
	for i := range mb.slots {
		mb.slots[i].seq.Store(uint32(i))
	}
	return mb
}

// TrySend attempts to enqueue a message, returning false if the mailbox is full.
func (mb *Mailbox[T]) TrySend(msg T) bool {
	for {
		head := mb.head.Load()
		slot := &mb.slots[head%MailboxSlots]
		seq := slot.seq.Load()
		switch {
		case seq == head:
			// Reserve the slot, then publish it.
			if !mb.head.CompareAndSwap(head, head+1) {
				continue
			}
			slot.msg = msg
			slot.seq.Store(head + 1)
			mb.ring()
			return true
		case int32(seq-head) < 0:
			return false
		}
	}
}

// Send enqueues a message, yielding until there is room.
func (mb *Mailbox[T]) Send(msg T) {
	for !mb.TrySend(msg) {
		runtime.Gosched()
	}
}

// TryRecv attempts to dequeue one message, returning false if empty.
//
// Only the owning core may receive.
func (mb *Mailbox[T]) TryRecv() (T, bool) {
	var zero T
	tail := mb.tail.Load()
	slot := &mb.slots[tail%MailboxSlots]
	if slot.seq.Load() != tail+1 {
		return zero, false
	}
	msg := slot.msg
	slot.msg = zero
	mb.tail.Store(tail + 1)
	slot.seq.Store(tail + MailboxSlots)
	return msg, true
}

// Recv blocks until one message is available.
func (mb *Mailbox[T]) Recv() T {
	for {
		msg, ok := mb.TryRecv()
		if ok {
			return msg
		}
		<-mb.bell
	}
}

// Len reports the number of queued messages.
func (mb *Mailbox[T]) Len() int {
	return int(mb.head.Load() - mb.tail.Load())
}

// Doorbell is signalled after every successful send.
func (mb *Mailbox[T]) Doorbell() <-chan struct{} { return mb.bell }

func (mb *Mailbox[T]) ring() {
	select {
	case mb.bell <- struct{}{}:
	default:
	}
}
