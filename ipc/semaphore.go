package ipc

import (
	"github.com/Donzels/ToRTOS/kerr"
	"github.com/Donzels/ToRTOS/klog"
	"github.com/Donzels/ToRTOS/sched"
	"github.com/Donzels/ToRTOS/timer"
)

// Semaphore is a counting semaphore bounded by a maximum count
// (spec.md §4.7).
type Semaphore struct {
	object
	s        *sched.Scheduler
	count    int
	capacity int
}

// CreateSemaphore initializes sem with the given capacity and initial
// count, both of which must satisfy 0 <= initial <= capacity.
func CreateSemaphore(sem *Semaphore, s *sched.Scheduler, mode Mode, capacity, initial int) kerr.Result {
	if capacity <= 0 || initial < 0 || initial > capacity {
		return kerr.Invalid
	}
	sem.object.init(mode)
	sem.s = s
	sem.capacity = capacity
	sem.count = initial
	return kerr.OK
}

// Receive consumes one unit, blocking up to timeout ticks (0 = non-
// blocking, Forever = indefinite) if the count is currently zero.
func (sem *Semaphore) Receive(timeout timer.Tick) kerr.Result {
	if !sem.valid {
		return kerr.Deleted
	}
	if sem.count > 0 {
		sem.count--
		return kerr.OK
	}
	if timeout == 0 {
		return kerr.Generic
	}
	t := sem.s.Current()
	return sem.wait(sem.s, t, timeout, func() bool {
		if sem.count > 0 {
			sem.count--
			return true
		}
		return false
	})
}

// Send increases the count up to capacity, waking one waiter if any were
// queued. Returns kerr.Generic if the semaphore is already at capacity
// (spec.md §4.7).
func (sem *Semaphore) Send() kerr.Result {
	if !sem.valid {
		return kerr.Deleted
	}
	if sem.count >= sem.capacity {
		return kerr.Generic
	}
	sem.count++
	if woken, ok := sem.wakeOne(sem.s); ok {
		klog.L.IPC().Str("thread", woken.Name).Log("semaphore wake")
		sem.s.Switch()
	}
	return kerr.OK
}

// Delete idempotently invalidates the semaphore, releasing every waiter
// with kerr.Deleted.
func (sem *Semaphore) Delete() kerr.Result {
	if !sem.valid {
		return kerr.OK
	}
	woken := sem.wakeAll(sem.s)
	sem.valid = false
	sem.count = 0
	sem.capacity = 0
	if len(woken) > 0 {
		sem.s.Switch()
	}
	return kerr.OK
}

// Count returns the current available count, for tests and diagnostics.
func (sem *Semaphore) Count() int { return sem.count }
