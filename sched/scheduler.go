// Package sched implements the kernel's fixed-priority preemptive
// scheduler and thread lifecycle (spec.md §4.3/§4.4), grounded on the
// teacher eventloop package's single-goroutine dispatch loop and its
// FastState atomic state machine (state.go), generalized here from "one
// loop, one state" to "one ready list per priority level, up to 32 priority
// levels, one running thread."
//
// Scheduler and Thread are a single Go package because spec.md's
// Scheduler and Thread modules are mutually recursive (a thread's
// lifecycle operations mutate scheduler ready-list state; the scheduler's
// dispatch operations mutate thread status) — modeling them as two
// packages would require an import cycle Go doesn't allow.
package sched

import (
	"math/bits"

	"github.com/Donzels/ToRTOS/config"
	"github.com/Donzels/ToRTOS/internal/list"
	"github.com/Donzels/ToRTOS/klog"
	"github.com/Donzels/ToRTOS/port"
	"github.com/Donzels/ToRTOS/timer"
)

// Scheduler owns the ready-list bitmap, the per-priority ready lists, the
// currently running thread, the scheduler-suspend nesting counter, and the
// software timer Clock that drives Sleep and round-robin time slicing.
type Scheduler struct {
	cfg  config.Config
	port port.Port

	ready  []list.Node // len == cfg.PriorityLevels
	bitmap uint32

	current *Thread

	suspendCount int
	started      bool

	clock *timer.Clock

	termList list.Node // deferred-termination list, drained by the idle thread

	registry *Registry // handle table for every thread CreateStatic creates
}

// NewScheduler constructs a Scheduler for the given resolved configuration
// and CPU port, with its own software timer Clock.
func NewScheduler(cfg config.Config, p port.Port) *Scheduler {
	s := &Scheduler{
		cfg:   cfg,
		port:  p,
		ready:    make([]list.Node, cfg.PriorityLevels),
		clock:    timer.NewClock(),
		registry: NewRegistry(),
	}
	for i := range s.ready {
		s.ready[i].Init()
	}
	s.termList.Init()
	return s
}

// Clock returns the scheduler's software timer clock, for IPC timeout use.
func (s *Scheduler) Clock() *timer.Clock { return s.clock }

// Registry returns the scheduler's thread handle table, for callers (e.g. a
// debug console) that want to name a thread by a small stable integer
// instead of holding its *Thread directly.
func (s *Scheduler) Registry() *Registry { return s.registry }

// Current returns the currently running thread, or nil before Start.
func (s *Scheduler) Current() *Thread { return s.current }

// HigherPriority reports whether priority a outranks priority b under the
// scheduler's configured PriorityDirection. Exported so the ipc package's
// PRIO waiter-list ordering doesn't need to duplicate the direction
// convention.
func (s *Scheduler) HigherPriority(a, b int) bool {
	if s.cfg.PriorityDirection == config.LowerIsHigher {
		return a < b
	}
	return a > b
}

// insertReady appends t to the tail of its priority's ready list and sets
// the corresponding bitmap bit. Caller holds IRQDisable.
func (s *Scheduler) insertReady(t *Thread) {
	head := &s.ready[t.currentPriority]
	t.node.PushBack(head)
	s.bitmap |= t.numberMask
}

// removeReady unlinks t from its priority's ready list, clearing the
// bitmap bit if the list becomes empty. Caller holds IRQDisable.
func (s *Scheduler) removeReady(t *Thread) {
	prio := t.currentPriority
	t.node.Remove()
	if s.ready[prio].Empty() {
		s.bitmap &^= t.numberMask
	}
}

// highestReady returns the index of the highest-priority non-empty ready
// list, and false if none is ready. "Highest" follows
// cfg.PriorityDirection.
func (s *Scheduler) highestReady() (int, bool) {
	if s.bitmap == 0 {
		return 0, false
	}
	if s.cfg.PriorityDirection == config.LowerIsHigher {
		if s.cfg.UseCPUBitScan {
			return s.port.FindFirstSet(s.bitmap) - 1, true
		}
		return bits.TrailingZeros32(s.bitmap), true
	}
	if s.cfg.UseCPUBitScan {
		return s.port.FindLastSet(s.bitmap) - 1, true
	}
	return 31 - bits.LeadingZeros32(s.bitmap), true
}

// Start dispatches the highest-priority READY thread and transfers control
// to it via the port's FirstSwitch, which never returns. Calling Start
// with no READY thread present is a programmer error (spec.md §4.3): the
// reference kernel.Boot always creates at least an idle thread first.
func (s *Scheduler) Start() {
	prio, ok := s.highestReady()
	if !ok {
		panic("sched: Start called with no READY thread")
	}
	head := s.ready[prio].Front()
	t := head.Value.(*Thread)
	t.status = StatusRunning
	t.remainingTick = t.initTick
	s.current = t
	s.started = true
	klog.L.Sched().Str("thread", t.Name).Log("start")
	s.port.FirstSwitch(&t.sp)
}

// Switch picks the highest-priority ready thread and, if it differs from
// the one currently RUNNING, demotes the current thread to READY and
// dispatches the new one via the port's NormalSwitch. A no-op while the
// scheduler is suspended (spec.md §4.4's nesting counter) or before Start.
func (s *Scheduler) Switch() {
	if !s.started || s.suspendCount != 0 {
		return
	}
	prio, ok := s.highestReady()
	if !ok {
		return
	}
	head := s.ready[prio].Front()
	next := head.Value.(*Thread)
	prev := s.current
	if next == prev {
		return
	}
	if prev != nil && prev.status == StatusRunning {
		prev.status = StatusReady
	}
	next.status = StatusRunning
	next.remainingTick = next.initTick
	s.current = next
	klog.L.Sched().Str("from", prev.Name).Str("to", next.Name).Log("switch")
	s.port.NormalSwitch(&prev.sp, &next.sp)
}

// RotateWithinPriority implements spec.md §4.3's Yield: if more than one
// thread sits at the current thread's priority, move it to the tail of its
// ready list before calling Switch, so the next thread at that priority
// gets a turn.
func (s *Scheduler) RotateWithinPriority() {
	t := s.current
	if t == nil {
		return
	}
	mask := s.port.IRQDisable()
	head := &s.ready[t.currentPriority]
	if head.Len() > 1 {
		t.node.Remove()
		t.node.PushBack(head)
	}
	s.port.IRQRestore(mask)
	s.Switch()
}

// Yield is an alias for RotateWithinPriority, the name callers of the
// public kernel API see.
func (s *Scheduler) Yield() { s.RotateWithinPriority() }

// SuspendScheduler increments the scheduler-suspend nesting counter. While
// non-zero, interrupts stay enabled (ready-list mutation still happens
// under IRQDisable) but Switch becomes a no-op, deferring preemption
// without the latency cost of an IRQ-disable critical section spanning
// the suspended work (spec.md §5). Distinct from Suspend(*Thread): this
// holds off the dispatcher entirely rather than parking one thread.
func (s *Scheduler) SuspendScheduler() {
	s.suspendCount++
}

// ResumeScheduler decrements the nesting counter and, once it reaches
// zero, calls Switch to let the now-unblocked preemption apply any
// ready-list changes that accumulated while suspended.
func (s *Scheduler) ResumeScheduler() {
	if s.suspendCount == 0 {
		return
	}
	s.suspendCount--
	if s.suspendCount == 0 {
		s.Switch()
	}
}

// Tick is the scheduler's per-platform-tick entry point (spec.md §4.5):
// advance the software timer clock, decrement the running thread's
// time-slice counter (reloading and rotating it to the back of its
// priority level on expiry), then fire any expired timers and let any
// thread a firing callback just woke preempt via Switch.
//
// Tick must be invoked from the currently-running thread's own execution
// context, the same way a real SysTick handler runs on top of whatever
// thread it interrupted rather than on a stack of its own — the port's
// NormalSwitch, including the one Switch below may trigger, is only
// well-defined when called on behalf of the thread currently occupying
// the CPU.
func (s *Scheduler) Tick() {
	s.clock.Advance()
	if s.started && s.current != nil && s.current.initTick != 0 {
		s.current.remainingTick--
		if s.current.remainingTick == 0 {
			s.current.remainingTick = s.current.initTick
			s.RotateWithinPriority()
		}
	}
	timer.Fire(s.clock.Expired())
	s.Switch()
}

// ReclaimOne pops the oldest TERMINATED thread off the deferred-termination
// list, marks it DELETED, and returns it so the idle thread can free its
// stack if IsDynamic. Returns (nil, false) if nothing is
// pending.
func (s *Scheduler) ReclaimOne() (*Thread, bool) {
	mask := s.port.IRQDisable()
	defer s.port.IRQRestore(mask)
	if s.termList.Empty() {
		return nil, false
	}
	n := s.termList.Front()
	n.Remove()
	t := n.Value.(*Thread)
	t.status = StatusDeleted
	return t, true
}
