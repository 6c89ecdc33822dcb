// Package timer implements the kernel's software timer subsystem
// (spec.md §4.5): a monotonic wrapping tick counter and two sorted lists
// of scheduled timers — "current" (expirations not yet wrapped relative
// to now) and "overflow" (expirations that wrapped past Tick's max) — with
// the two list heads swapped whenever the tick counter itself wraps.
//
// Thread safety: like eventloop's ChunkedIngress ("NOT thread-safe...
// the caller must provide external synchronization"), Clock is not
// internally synchronized. spec.md §5 assigns protection of timer-list
// mutation to an IRQ-disable critical section owned by the caller (the
// scheduler's tick handler and IPC timeout paths), so adding a second lock
// here would just be redundant nesting.
package timer

import "github.com/Donzels/ToRTOS/internal/list"

// Tick is the kernel's monotonic, wrapping time unit.
type Tick uint32

// Callback runs when a Timer fires. Per spec.md §4.5 it executes with
// interrupts enabled and must not block; the canonical callback (see the
// sched package) wakes the owning thread.
type Callback func(param any)

// Timer is one schedulable expiration. The zero value is a valid, unscheduled
// timer (its embedded node self-links on first use via Clock.Start).
type Timer struct {
	node     list.Node
	clock    *Clock
	onList   *list.Node // which of clock.current/clock.overflow, if scheduled
	callback Callback
	param    any
	period   Tick
	expiry   Tick
}

func (t *Timer) init() {
	if t.node.Value == nil {
		t.node.Init()
		t.node.Value = t
	}
}

// Scheduled reports whether t is currently linked into a Clock's list.
func (t *Timer) Scheduled() bool {
	return t.onList != nil
}

// Expiry returns the absolute tick at which t last was (or is) scheduled
// to fire. Meaningless if !t.Scheduled().
func (t *Timer) Expiry() Tick { return t.expiry }

// Period returns the duration in ticks t was last started with.
func (t *Timer) Period() Tick { return t.period }

// Clock owns the tick counter and the current/overflow timer lists.
type Clock struct {
	now Tick

	listA list.Node
	listB list.Node

	current  *list.Node
	overflow *list.Node
}

// NewClock returns an initialized Clock with the tick counter at zero.
func NewClock() *Clock {
	c := &Clock{}
	c.listA.Init()
	c.listB.Init()
	c.current = &c.listA
	c.overflow = &c.listB
	return c
}

// Now returns the current tick count.
func (c *Clock) Now() Tick { return c.now }

// Start (re)schedules t to fire after ticks, computing its absolute
// expiration as Now()+ticks. If t was already scheduled it is first
// removed. A zero-duration timer's expiry equals the tick it is started
// on, so it goes on the overflow list and does not fire until the tick
// counter has wrapped and come back round to that tick.
func (c *Clock) Start(t *Timer, ticks Tick, cb Callback, param any) {
	t.init()
	c.Stop(t)
	t.clock = c
	t.callback = cb
	t.param = param
	t.period = ticks
	expiry := c.now + ticks

	// spec.md §4.5: current if expiration > now, otherwise overflow. A
	// zero-tick timer (expiry == now) is therefore deferred to the
	// overflow list, exactly like a wrapped expiry; callers that want an
	// immediate fire should invoke the callback directly instead of
	// arming a zero-duration timer (see ipc's timeout==0 fast path).
	var target *list.Node
	if expiry > c.now {
		target = c.current
	} else {
		target = c.overflow
	}
	t.expiry = expiry
	t.onList = target
	insertSorted(&t.node, target, expiry)
}

// Stop unlinks t if scheduled. Safe to call on an unscheduled timer.
func (c *Clock) Stop(t *Timer) {
	if t.onList == nil {
		return
	}
	t.node.Remove()
	t.onList = nil
}

// Restart re-arms t with its previously configured period and callback,
// equivalent to Start(t, t.Period(), ...) with the same callback/param.
// Per spec.md §8's timer-idempotence law, start;stop;start with an
// unchanged period schedules exactly one expiry.
func (c *Clock) Restart(t *Timer) {
	c.Start(t, t.period, t.callback, t.param)
}

// Advance increments the tick counter by one tick, swapping the
// current/overflow list roles if the counter wrapped to zero. Returns
// true if a wrap occurred.
func (c *Clock) Advance() (wrapped bool) {
	c.now++
	if c.now == 0 {
		c.current, c.overflow = c.overflow, c.current
		return true
	}
	return false
}

// Expired unlinks and returns, in ascending expiry order, every timer at
// the head of the current list whose expiry has passed (expiry <= now).
// Callers must invoke each returned Timer's callback themselves, outside
// of any critical section the caller may be holding (spec.md §4.5: "with
// interrupts enabled, invoke each expired timer's callback exactly
// once").
func (c *Clock) Expired() []*Timer {
	var expired []*Timer
	for !c.current.Empty() {
		head := c.current.Front()
		t := timerFromNode(head)
		if t.expiry > c.now {
			break
		}
		head.Remove()
		t.onList = nil
		expired = append(expired, t)
	}
	return expired
}

// Fire invokes cb(param) for every Timer returned by Expired. Split out
// from Expired so callers that need the list (e.g. for logging) can still
// drive firing themselves.
func Fire(expired []*Timer) {
	for _, t := range expired {
		if t.callback != nil {
			t.callback(t.param)
		}
	}
}

func insertSorted(n *list.Node, head *list.Node, expiry Tick) {
	for cur := head.Front(); cur != nil && cur != head; cur = cur.Next() {
		if timerFromNode(cur).expiry > expiry {
			n.InsertBefore(cur)
			return
		}
	}
	n.PushBack(head)
}

// timerFromNode recovers the *Timer owning n via the Node.Value
// back-pointer stashed by Timer.init.
func timerFromNode(n *list.Node) *Timer {
	return n.Value.(*Timer)
}
