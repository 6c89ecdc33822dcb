package ipc

import (
	"github.com/Donzels/ToRTOS/kerr"
	"github.com/Donzels/ToRTOS/klog"
	"github.com/Donzels/ToRTOS/sched"
	"github.com/Donzels/ToRTOS/timer"
)

// Mutex is a non-recursive lock with single-level priority inheritance
// (spec.md §4.8). Re-acquiring by the current owner succeeds without
// nesting; a second genuine lock attempt by a different thread blocks.
type Mutex struct {
	object
	s      *sched.Scheduler
	holder *sched.Thread
	depth  int

	savedPriority    int
	hasSavedPriority bool

	recursive bool
	maxDepth  int
}

// CreateMutex initializes m as a plain (non-recursive) mutex.
func CreateMutex(m *Mutex, s *sched.Scheduler, mode Mode) kerr.Result {
	m.object.init(mode)
	m.s = s
	return kerr.OK
}

// CreateRecursiveMutex initializes m so the owning thread may re-acquire
// it up to maxDepth times (spec.md §4.8's "bounded by an implementation-
// defined ceiling").
func CreateRecursiveMutex(m *Mutex, s *sched.Scheduler, mode Mode, maxDepth int) kerr.Result {
	if maxDepth <= 0 {
		return kerr.Invalid
	}
	m.object.init(mode)
	m.s = s
	m.recursive = true
	m.maxDepth = maxDepth
	return kerr.OK
}

// Acquire locks m, blocking up to timeout ticks if another thread holds
// it. A caller that already holds m returns success immediately (plain
// mutex) or increments its recursion depth (recursive mutex).
func (m *Mutex) Acquire(timeout timer.Tick) kerr.Result {
	if !m.valid {
		return kerr.Deleted
	}
	caller := m.s.Current()

	if m.holder == nil {
		m.holder = caller
		m.depth = 1
		return kerr.OK
	}
	if m.holder == caller {
		if !m.recursive {
			return kerr.OK
		}
		if m.depth >= m.maxDepth {
			return kerr.Generic
		}
		m.depth++
		return kerr.OK
	}

	if timeout == 0 {
		return kerr.Generic
	}

	m.inherit(caller)

	return m.wait(m.s, caller, timeout, func() bool {
		if m.holder != nil {
			return false
		}
		m.holder = caller
		m.depth = 1
		return true
	})
}

// inherit implements spec.md §4.8's single-level priority inheritance:
// if caller outranks the holder's current (possibly already-inherited)
// priority, save the holder's original priority the first time it's
// displaced, then raise it to caller's.
func (m *Mutex) inherit(caller *sched.Thread) {
	holder := m.holder
	if !m.s.HigherPriority(caller.Priority(), holder.Priority()) {
		return
	}
	if !m.hasSavedPriority {
		m.savedPriority = holder.Priority()
		m.hasSavedPriority = true
	}
	m.s.Ctrl(holder, sched.CtrlSetPriority, caller.Priority())
	klog.L.IPC().Str("holder", holder.Name).Int("priority", caller.Priority()).Log("priority inherit")
}

// Release unlocks m. For a recursive mutex held more than once, this only
// decrements the recursion depth. On the final release, the holder's
// original priority (if inheritance raised it) is restored and the head
// waiter, if any, is woken to contend for ownership.
func (m *Mutex) Release() kerr.Result {
	if !m.valid {
		return kerr.Deleted
	}
	caller := m.s.Current()
	if m.holder != caller {
		return kerr.Invalid
	}
	if m.recursive {
		m.depth--
		if m.depth > 0 {
			return kerr.OK
		}
	}
	m.depth = 0
	m.holder = nil

	// Clear holder and wake the waiter before touching priority: Ctrl
	// requests its own Switch when it changes the caller's scheduled
	// priority, and that Switch must see the woken waiter already back on
	// the ready list, or a third thread sitting between the caller's
	// original and inherited priority could run first.
	woken, hasWaiter := m.wakeOne(m.s)
	if hasWaiter {
		klog.L.IPC().Str("thread", woken.Name).Log("mutex wake")
	}

	restoring := m.hasSavedPriority
	if restoring {
		m.s.Ctrl(caller, sched.CtrlSetPriority, m.savedPriority)
		m.hasSavedPriority = false
		klog.L.IPC().Str("holder", caller.Name).Int("priority", m.savedPriority).Log("priority restore")
	}

	if hasWaiter && !restoring {
		m.s.Switch()
	}
	return kerr.OK
}

// Holder returns the current owner, or nil if unlocked.
func (m *Mutex) Holder() *sched.Thread { return m.holder }

// Delete idempotently invalidates m, releasing every waiter with
// kerr.Deleted.
func (m *Mutex) Delete() kerr.Result {
	if !m.valid {
		return kerr.OK
	}
	woken := m.wakeAll(m.s)
	m.valid = false
	m.holder = nil
	m.depth = 0
	if len(woken) > 0 {
		m.s.Switch()
	}
	return kerr.OK
}
