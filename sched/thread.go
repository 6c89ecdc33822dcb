package sched

import (
	"unsafe"

	"github.com/Donzels/ToRTOS/internal/list"
	"github.com/Donzels/ToRTOS/kerr"
	"github.com/Donzels/ToRTOS/klog"
	"github.com/Donzels/ToRTOS/timer"
)

// Thread is a thread control block (spec.md §3's TCB: saved stack pointer,
// entry/arg, stack bounds, a list node shared between the ready and waiter
// lists, current/initial priority, the bitmap number_mask for that
// priority, the time-slice reload/remaining pair, lifecycle status, an
// embedded software timer for Sleep and IPC timeouts, and an
// allocation-origin flag for the idle thread's reclamation pass).
//
// A Thread must not be copied after CreateStatic: its embedded list.Node
// and timer.Timer hold pointers fixed up at construction time.
type Thread struct {
	Name string

	sp    uintptr
	stack []byte // retained so the GC never reclaims it out from under sp

	entry func(arg any)
	arg   any

	node list.Node // membership in exactly one of: a ready list, a waiter list, the deferred-termination list

	currentPriority int
	initPriority    int
	numberMask      uint32

	initTick      timer.Tick
	remainingTick timer.Tick

	status Status

	tmr timer.Timer // Sleep / IPC-timeout expiry

	dynamic bool // true if the stack came from a byte pool (the TCB never does)

	sched *Scheduler
}

func (t *Thread) init() {
	if t.node.Value == nil {
		t.node.Init()
		t.node.Value = t
	}
}

// Status returns the thread's current lifecycle state.
func (t *Thread) Status() Status { return t.status }

// Priority returns the thread's current (possibly inherited) priority.
func (t *Thread) Priority() int { return t.currentPriority }

// Node exposes the thread's intrusive list node for IPC waiter lists.
func (t *Thread) Node() *list.Node { return &t.node }

// Timer exposes the thread's embedded timer for Sleep and IPC timeout use.
func (t *Thread) Timer() *timer.Timer { return &t.tmr }

// IsDynamic reports whether t's stack was allocated from a byte pool, and
// so must be freed rather than merely forgotten once reclaimed. The control
// block itself is never pool-allocated.
func (t *Thread) IsDynamic() bool { return t.dynamic }

// Stack returns the backing slice t runs on, for the idle thread's
// reclamation pass to return to its origin pool when IsDynamic is true.
func (t *Thread) Stack() []byte { return t.stack }

// SetDynamic marks t's stack as having been allocated from a byte pool. Called by
// the kernel package's dynamic thread creation path, which layers pool
// allocation on top of CreateStatic rather than duplicating it.
func (t *Thread) SetDynamic(dynamic bool) { t.dynamic = dynamic }

func stackTop(stack []byte) uintptr {
	if len(stack) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&stack[len(stack)-1])) + 1
}

// CreateStatic initializes t to run entry(arg) on the given caller-supplied
// stack, at priority, with the given time-slice reload in ticks (0 disables
// round-robin preemption at that priority: the thread runs until it blocks,
// sleeps, or a higher priority becomes ready). t is left in StatusInit;
// call Startup to make it schedulable.
func (s *Scheduler) CreateStatic(t *Thread, name string, entry func(arg any), arg any, stack []byte, priority int, timeSlice timer.Tick) kerr.Result {
	if entry == nil || len(stack) == 0 {
		return kerr.Null
	}
	if priority < 0 || priority >= s.cfg.PriorityLevels {
		return kerr.Invalid
	}
	t.init()
	t.Name = name
	t.entry = entry
	t.arg = arg
	t.stack = stack
	t.currentPriority = priority
	t.initPriority = priority
	t.numberMask = 1 << uint(priority)
	t.initTick = timeSlice
	t.remainingTick = timeSlice
	t.status = StatusInit
	t.sched = s
	t.sp = s.port.BuildStackFrame(stackTop(stack), entry, arg, t.exitRoutine)
	s.registry.Register(t)
	return kerr.OK
}

// Startup transitions t from INIT to READY and inserts it into the
// scheduler's ready list at its current priority. If the scheduler has
// already Start-ed, a Switch is requested so a newly-ready higher-priority
// thread preempts immediately.
func (s *Scheduler) Startup(t *Thread) kerr.Result {
	if t.status != StatusInit {
		return kerr.Invalid
	}
	mask := s.port.IRQDisable()
	t.status = StatusReady
	s.insertReady(t)
	s.port.IRQRestore(mask)
	klog.L.Thread().Str("thread", t.Name).Int("priority", t.currentPriority).Log("startup")
	if s.started {
		s.Switch()
	}
	return kerr.OK
}

// Sleep suspends the current thread for the given number of ticks. It must
// be called by the thread itself (spec.md §4.3 models Sleep as an operation
// "on the current thread"). A zero duration is a no-op.
func (s *Scheduler) Sleep(ticks timer.Tick) kerr.Result {
	t := s.current
	if t == nil {
		return kerr.Invalid
	}
	if ticks == 0 {
		return kerr.OK
	}
	mask := s.port.IRQDisable()
	s.removeReady(t)
	t.status = StatusSuspend
	s.clock.Start(&t.tmr, ticks, s.wake, t)
	s.port.IRQRestore(mask)
	s.Switch()
	return kerr.OK
}

func (s *Scheduler) wake(param any) {
	t := param.(*Thread)
	mask := s.port.IRQDisable()
	if t.status == StatusSuspend {
		t.status = StatusReady
		s.insertReady(t)
	}
	s.port.IRQRestore(mask)
}

// Suspend removes t from the ready list and marks it SUSPEND without
// arming a wake timer, for use by IPC wait paths that manage their own
// waiter-list membership and wake conditions.
func (s *Scheduler) Suspend(t *Thread) {
	mask := s.port.IRQDisable()
	s.removeReady(t)
	t.status = StatusSuspend
	s.port.IRQRestore(mask)
}

// Resume undoes Suspend: t becomes READY and is reinserted at its current
// priority. Used by IPC post/signal/unlock paths to wake a specific
// waiter.
func (s *Scheduler) Resume(t *Thread) {
	mask := s.port.IRQDisable()
	if t.status == StatusSuspend {
		t.status = StatusReady
		s.insertReady(t)
	}
	s.port.IRQRestore(mask)
}

// Block is Suspend followed by an immediate Switch, the pairing every IPC
// wait path needs: take the current thread off the ready list, then
// actually yield the CPU to whatever is ready next. Callers that also need
// to arm a timeout timer or link the thread onto a waiter list should do
// so between IRQDisable and the Suspend/Switch pair themselves (see the
// ipc package); Block alone is for the untimed, no-waiter-list case.
func (s *Scheduler) Block(t *Thread) {
	s.Suspend(t)
	s.Switch()
}

// Delete forcibly terminates t: unlinks it from whatever ready or waiter
// list it occupies, stops its timer, marks it TERMINATED, and appends it
// to the deferred-termination list for the idle thread to reclaim. Safe to
// call on a thread other than the current one. Idempotent for a thread
// already TERMINATED (awaiting reclaim); an already-DELETED thread is an
// error.
func (s *Scheduler) Delete(t *Thread) kerr.Result {
	if t.status == StatusTerminated {
		return kerr.OK
	}
	if t.status == StatusDeleted {
		return kerr.Invalid
	}
	mask := s.port.IRQDisable()
	s.detach(t)
	s.port.IRQRestore(mask)
	if t == s.current {
		s.Switch()
	}
	return kerr.OK
}

// detach is the shared unlink-and-park-on-termList step used by both
// Delete and the self-terminating exitRoutine. Caller holds IRQDisable.
func (s *Scheduler) detach(t *Thread) {
	if t.status == StatusReady || t.status == StatusRunning {
		s.removeReady(t)
	} else {
		t.node.Remove()
	}
	s.clock.Stop(&t.tmr)
	t.status = StatusTerminated
	t.node.PushBack(&s.termList)
	if h, ok := s.registry.HandleOf(t); ok {
		s.registry.Release(h)
	}
}

// Restart re-initializes a DELETED thread to run from the top of entry
// again at its original priority, leaving it READY. A merely TERMINATED
// thread (awaiting idle-thread reclaim) is not yet eligible: its node is
// still linked onto the deferred-termination list, and relinking it into
// the ready list here would corrupt that list's ring.
func (s *Scheduler) Restart(t *Thread) kerr.Result {
	if t.status != StatusDeleted {
		return kerr.Invalid
	}
	mask := s.port.IRQDisable()
	t.currentPriority = t.initPriority
	t.numberMask = 1 << uint(t.initPriority)
	t.remainingTick = t.initTick
	t.sp = s.port.BuildStackFrame(stackTop(t.stack), t.entry, t.arg, t.exitRoutine)
	t.status = StatusReady
	s.insertReady(t)
	s.registry.Register(t)
	s.port.IRQRestore(mask)
	return kerr.OK
}

// exitRoutine is the return address baked into every thread's initial
// stack frame (spec.md §4.2): reached when entry(arg) returns normally, or
// called directly by Exit for a thread that terminates itself
// intentionally. It never returns to its caller.
func (t *Thread) exitRoutine() {
	s := t.sched
	mask := s.port.IRQDisable()
	s.detach(t)
	s.port.IRQRestore(mask)
	s.Switch()
	// A real CPU port never resumes an unready, unscheduled thread; this
	// loop is the same safety net spec.md §4.3 describes for Exit.
	select {}
}

// Exit terminates the current thread. Equivalent to returning from entry,
// spelled out for threads that want to terminate explicitly mid-function.
func (s *Scheduler) Exit() {
	t := s.current
	if t == nil {
		return
	}
	t.exitRoutine()
}

// CtrlCommand selects the operation Ctrl performs.
type CtrlCommand int

const (
	// CtrlGetPriority reads the thread's current priority.
	CtrlGetPriority CtrlCommand = iota
	// CtrlSetPriority writes the thread's current priority, reinserting it
	// into the ready list at the new level if it is currently READY or
	// RUNNING.
	CtrlSetPriority
	// CtrlGetStatus reads the thread's lifecycle status.
	CtrlGetStatus
)

// Ctrl implements spec.md §4.3's generic thread-control operation: get or
// set priority, or read status. arg is the new priority for
// CtrlSetPriority and is ignored otherwise. Returns the resulting or
// current value for get commands.
func (s *Scheduler) Ctrl(t *Thread, cmd CtrlCommand, arg int) (int, kerr.Result) {
	switch cmd {
	case CtrlGetPriority:
		return t.currentPriority, kerr.OK
	case CtrlGetStatus:
		return int(t.status), kerr.OK
	case CtrlSetPriority:
		if arg < 0 || arg >= s.cfg.PriorityLevels {
			return 0, kerr.Invalid
		}
		mask := s.port.IRQDisable()
		wasScheduled := t.status == StatusReady || t.status == StatusRunning
		if wasScheduled {
			s.removeReady(t)
		}
		t.currentPriority = arg
		t.numberMask = 1 << uint(arg)
		if wasScheduled {
			t.status = StatusReady
			s.insertReady(t)
		}
		s.port.IRQRestore(mask)
		if s.started && wasScheduled {
			s.Switch()
		}
		return arg, kerr.OK
	default:
		return 0, kerr.Unsupported
	}
}
