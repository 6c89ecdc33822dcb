package ipc

import (
	"github.com/Donzels/ToRTOS/kerr"
	"github.com/Donzels/ToRTOS/klog"
	"github.com/Donzels/ToRTOS/sched"
	"github.com/Donzels/ToRTOS/timer"
)

// Queue is a bounded ring buffer of fixed-size items (spec.md §4.9). Unlike
// semaphore and mutex it has two independent wait conditions — a sender
// blocks on "full", a receiver blocks on "empty" — so it keeps its own pair
// of waiterLists rather than embedding the single-list object.
//
// There is no urgent-front-insert send: spec.md §4.9 notes the core
// semantics define only FIFO enqueue, so Send always appends at the tail.
type Queue struct {
	valid bool
	s     *sched.Scheduler

	buf      []byte
	itemSize int
	capacity int

	head, tail int // item indices, not byte offsets
	count      int

	senders   waiterList // blocked on full
	receivers waiterList // blocked on empty
}

// CreateQueue initializes q to store up to capacity items of itemSize bytes
// each, backed by a caller-supplied buffer of at least itemSize*capacity
// bytes. mode governs both the sender and receiver waiter-list ordering.
func CreateQueue(q *Queue, s *sched.Scheduler, mode Mode, itemSize, capacity int, buf []byte) kerr.Result {
	if itemSize <= 0 || capacity <= 0 {
		return kerr.Invalid
	}
	if len(buf) < itemSize*capacity {
		return kerr.Invalid
	}
	q.s = s
	q.buf = buf
	q.itemSize = itemSize
	q.capacity = capacity
	q.head = 0
	q.tail = 0
	q.count = 0
	q.senders.init(mode)
	q.receivers.init(mode)
	q.valid = true
	return kerr.OK
}

// Valid reports whether the queue has not yet been deleted.
func (q *Queue) Valid() bool { return q.valid }

func (q *Queue) slot(index int) []byte {
	off := index * q.itemSize
	return q.buf[off : off+q.itemSize]
}

// Send copies item (which must be exactly itemSize bytes) into the ring,
// blocking up to timeout ticks if the queue is full. Wakes one waiting
// receiver, if any, once the item lands.
func (q *Queue) Send(item []byte, timeout timer.Tick) kerr.Result {
	if !q.valid {
		return kerr.Deleted
	}
	if len(item) != q.itemSize {
		return kerr.Invalid
	}

	enqueueItem := func() {
		copy(q.slot(q.tail), item)
		q.tail = (q.tail + 1) % q.capacity
		q.count++
	}

	if q.count < q.capacity {
		enqueueItem()
		if woken, ok := q.receivers.wakeOne(q.s); ok {
			klog.L.IPC().Str("thread", woken.Name).Log("queue data ready")
			q.s.Switch()
		}
		return kerr.OK
	}
	if timeout == 0 {
		return kerr.Generic
	}

	t := q.s.Current()
	return q.senders.wait(q.s, t, timeout, func() bool { return q.valid }, func() bool {
		if q.count >= q.capacity {
			return false
		}
		enqueueItem()
		if woken, ok := q.receivers.wakeOne(q.s); ok {
			klog.L.IPC().Str("thread", woken.Name).Log("queue data ready")
			q.s.Switch()
		}
		return true
	})
}

// Receive copies the oldest queued item into out (which must be exactly
// itemSize bytes), blocking up to timeout ticks if the queue is empty.
// Wakes one waiting sender, if any, once a slot frees up.
func (q *Queue) Receive(out []byte, timeout timer.Tick) kerr.Result {
	if !q.valid {
		return kerr.Deleted
	}
	if len(out) != q.itemSize {
		return kerr.Invalid
	}

	dequeueItem := func() {
		copy(out, q.slot(q.head))
		q.head = (q.head + 1) % q.capacity
		q.count--
	}

	if q.count > 0 {
		dequeueItem()
		if woken, ok := q.senders.wakeOne(q.s); ok {
			klog.L.IPC().Str("thread", woken.Name).Log("queue space ready")
			q.s.Switch()
		}
		return kerr.OK
	}
	if timeout == 0 {
		return kerr.Generic
	}

	t := q.s.Current()
	return q.receivers.wait(q.s, t, timeout, func() bool { return q.valid }, func() bool {
		if q.count <= 0 {
			return false
		}
		dequeueItem()
		if woken, ok := q.senders.wakeOne(q.s); ok {
			klog.L.IPC().Str("thread", woken.Name).Log("queue space ready")
			q.s.Switch()
		}
		return true
	})
}

// Count returns the number of items currently queued, for tests and
// diagnostics.
func (q *Queue) Count() int { return q.count }

// Delete idempotently invalidates q, releasing every sender and receiver
// waiter with kerr.Deleted.
func (q *Queue) Delete() kerr.Result {
	if !q.valid {
		return kerr.OK
	}
	woken := q.senders.wakeAll(q.s)
	woken = append(woken, q.receivers.wakeAll(q.s)...)
	q.valid = false
	q.count = 0
	q.head = 0
	q.tail = 0
	if len(woken) > 0 {
		q.s.Switch()
	}
	return kerr.OK
}
