// Package ipc implements the kernel's synchronous inter-thread primitives
// (spec.md §4.6–§4.9): the shared waiter-list suspend/resume mechanics,
// a counting semaphore, a mutex with single-level priority inheritance, a
// recursive mutex, and a bounded fixed-item-size message queue.
//
// Every primitive embeds object, which owns the waiter list and the
// FIFO/PRIO ordering discipline; type-specific payload and operations
// build on top of it the way the eventloop package layers its
// Loop on top of ChunkedIngress rather than re-deriving ring-buffer
// mechanics per consumer.
package ipc

import (
	"github.com/Donzels/ToRTOS/internal/list"
	"github.com/Donzels/ToRTOS/kerr"
	"github.com/Donzels/ToRTOS/klog"
	"github.com/Donzels/ToRTOS/sched"
	"github.com/Donzels/ToRTOS/timer"
)

// Mode selects waiter-list ordering.
type Mode int

const (
	// FIFO orders waiters by arrival.
	FIFO Mode = iota
	// PRIO orders waiters by thread priority at suspend time, ties broken
	// by arrival.
	PRIO
)

// Forever is the timeout sentinel meaning "no timer is programmed; wait
// indefinitely." A timeout of exactly zero means "non-blocking."
const Forever timer.Tick = 1<<32 - 1

// waiterList is one ordered list of blocked threads plus the ordering
// discipline to apply on insert. Factored out of object so that primitives
// needing more than one independent wait condition (the bounded queue's
// senders-wait-for-space and receivers-wait-for-data lists) don't have to
// duplicate the enqueue/wake mechanics.
type waiterList struct {
	head list.Node
	mode Mode
}

func (w *waiterList) init(mode Mode) {
	w.head.Init()
	w.mode = mode
}

// enqueue inserts t per w's mode: tail for FIFO, or the first position
// strictly after every waiter of equal-or-higher priority for PRIO
// (spec.md §4.6).
func (w *waiterList) enqueue(s *sched.Scheduler, t *sched.Thread) {
	n := t.Node()
	if w.mode == FIFO {
		n.PushBack(&w.head)
		return
	}
	for cur := w.head.Front(); cur != nil && cur != &w.head; cur = cur.Next() {
		if s.HigherPriority(t.Priority(), cur.Value.(*sched.Thread).Priority()) {
			n.InsertBefore(cur)
			return
		}
	}
	n.PushBack(&w.head)
}

// wakeOne pops the head waiter, if any, and returns it made READY. The
// caller is responsible for requesting a Switch afterwards (spec.md §4.6:
// "the contract is wake then switch").
func (w *waiterList) wakeOne(s *sched.Scheduler) (*sched.Thread, bool) {
	head := w.head.Front()
	if head == nil {
		return nil, false
	}
	t := head.Value.(*sched.Thread)
	head.Remove()
	s.Resume(t)
	return t, true
}

// wakeAll pops every waiter, marking each READY, and returns them in wake
// order. Used by Delete, which must release everyone with "deleted."
func (w *waiterList) wakeAll(s *sched.Scheduler) []*sched.Thread {
	var woken []*sched.Thread
	for {
		t, ok := w.wakeOne(s)
		if !ok {
			break
		}
		woken = append(woken, t)
	}
	return woken
}

// wait implements spec.md §4.6's common blocking/timeout discipline for a
// caller that has already confirmed the resource is unavailable on waiter
// list w. valid reports whether the owning object is still live; retry is
// called after every wake (spurious or real) to re-check the resource and
// either claim it (returning ok=true) or continue waiting; wait loops
// until retry succeeds, the object is deleted, or the timeout elapses.
//
// retry executes with the object's invariants intact but no lock held, as
// the common code itself never inspects type-specific payload.
func (w *waiterList) wait(s *sched.Scheduler, t *sched.Thread, timeout timer.Tick, valid func() bool, retry func() bool) kerr.Result {
	// The timer callback unlinks t from whatever waiter list it is on and
	// readies it, exactly what a producer's wakeOne does manually; wait's
	// own loop distinguishes a real timeout from a producer's wake by
	// remaining-time arithmetic and by retry's result, per spec.md §4.6's
	// "a spurious wake ... re-enters the loop."
	onTimeout := func(param any) {
		waiter := param.(*sched.Thread)
		if waiter.Node().Linked() {
			waiter.Node().Remove()
		}
		s.Resume(waiter)
	}

	remaining := timeout
	for {
		w.enqueue(s, t)
		s.Suspend(t)
		if remaining != Forever {
			start := s.Clock().Now()
			s.Clock().Start(t.Timer(), remaining, onTimeout, t)
			s.Switch()
			s.Clock().Stop(t.Timer())
			elapsed := s.Clock().Now() - start
			if elapsed >= remaining {
				remaining = 0
			} else {
				remaining -= elapsed
			}
		} else {
			s.Switch()
		}

		if !valid() {
			return kerr.Deleted
		}
		if retry() {
			return kerr.OK
		}
		if remaining == 0 && timeout != Forever {
			klog.L.IPC().Str("thread", t.Name).Log("wait timeout")
			return kerr.Generic
		}
	}
}

// object is the common state most IPC primitives embed: a valid flag
// (spec.md §3's "0 = deleted"), a single waiter list, and an
// allocation-origin flag for pool-backed objects.
type object struct {
	valid   bool
	waiters waiterList
	dynamic bool
}

func (o *object) init(mode Mode) {
	o.waiters.init(mode)
	o.valid = true
}

// Valid reports whether the object has not yet been deleted.
func (o *object) Valid() bool { return o.valid }

func (o *object) wakeOne(s *sched.Scheduler) (*sched.Thread, bool) { return o.waiters.wakeOne(s) }

func (o *object) wakeAll(s *sched.Scheduler) []*sched.Thread { return o.waiters.wakeAll(s) }

func (o *object) wait(s *sched.Scheduler, t *sched.Thread, timeout timer.Tick, retry func() bool) kerr.Result {
	return o.waiters.wait(s, t, timeout, func() bool { return o.valid }, retry)
}
