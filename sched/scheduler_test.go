package sched

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Donzels/ToRTOS/config"
	"github.com/Donzels/ToRTOS/kerr"
	"github.com/Donzels/ToRTOS/port"
)

func newTestScheduler(t *testing.T) (*Scheduler, *port.Sim) {
	t.Helper()
	cfg, err := config.Resolve(config.WithPriorityLevels(8))
	require.NoError(t, err)
	sim := port.NewSim()
	return NewScheduler(cfg, sim), sim
}

// TestHighPriorityPreemptsLowPriority starts a low-priority thread that,
// once RUNNING, itself creates and starts up a higher-priority one —
// mirroring how a real kernel's Startup is always invoked on behalf of
// whichever thread currently owns the CPU, never from an unrelated
// context. Startup on an already-started scheduler must request an
// immediate Switch, preempting the low-priority thread mid-run rather
// than waiting for it to block or time-slice out.
func TestHighPriorityPreemptsLowPriority(t *testing.T) {
	s, _ := newTestScheduler(t)

	events := make(chan string, 16)

	var hi, lo Thread
	hiStack := make([]byte, 256)
	loStack := make([]byte, 256)

	require.Equal(t, kerr.OK, s.CreateStatic(&hi, "hi", func(any) {
		events <- "hi-ran"
		s.Block(&hi)
	}, nil, hiStack, 1, 0))

	require.Equal(t, kerr.OK, s.CreateStatic(&lo, "lo", func(any) {
		events <- "lo-start"
		if res := s.Startup(&hi); res != kerr.OK {
			// t.Errorf is safe to call from a non-test goroutine, unlike
			// require's FailNow; this thread body runs on its own
			// simulated goroutine, not the test's.
			t.Errorf("Startup(hi) = %v, want OK", res)
		}
		events <- "lo-resumed"
		s.Block(&lo)
	}, nil, loStack, 5, 0))

	require.Equal(t, kerr.OK, s.Startup(&lo))

	go s.Start()

	require.Equal(t, "lo-start", <-events)
	require.Equal(t, "hi-ran", <-events)
	require.Equal(t, "lo-resumed", <-events)
}

// TestRoundRobinWithinPriority verifies that two equal-priority threads
// alternate via RotateWithinPriority rather than one starving the other.
func TestRoundRobinWithinPriority(t *testing.T) {
	s, _ := newTestScheduler(t)

	events := make(chan string, 16)
	var a, b Thread
	aStack := make([]byte, 256)
	bStack := make([]byte, 256)

	require.Equal(t, kerr.OK, s.CreateStatic(&a, "a", func(any) {
		events <- "a"
		s.Yield()
		events <- "a2"
		s.Block(&a)
	}, nil, aStack, 3, 0))

	require.Equal(t, kerr.OK, s.CreateStatic(&b, "b", func(any) {
		events <- "b"
		s.Block(&b)
	}, nil, bStack, 3, 0))

	require.Equal(t, kerr.OK, s.Startup(&a))
	require.Equal(t, kerr.OK, s.Startup(&b))

	go s.Start()

	var order []string
	for i := 0; i < 3; i++ {
		order = append(order, <-events)
	}

	require.Equal(t, []string{"a", "b", "a2"}, order)
}

// TestThreadSleepYieldsToReadyThread has the higher-priority sleeper block
// on Sleep, the lower-priority other take over, and other itself drive the
// tick clock (standing in for a SysTick handler running on top of
// whichever thread it interrupts) until sleeper's timer wakes it and
// preempts other back out.
func TestThreadSleepYieldsToReadyThread(t *testing.T) {
	s, _ := newTestScheduler(t)

	var order []string
	done := make(chan struct{})

	var sleeper, other Thread
	sleeperStack := make([]byte, 256)
	otherStack := make([]byte, 256)

	require.Equal(t, kerr.OK, s.CreateStatic(&sleeper, "sleeper", func(any) {
		order = append(order, "sleeper-start")
		s.Sleep(5)
		order = append(order, "sleeper-woke")
		close(done)
		s.Block(&sleeper)
	}, nil, sleeperStack, 2, 0))

	require.Equal(t, kerr.OK, s.CreateStatic(&other, "other", func(any) {
		order = append(order, "other-start")
		for i := 0; i < 6; i++ {
			s.Tick()
		}
		s.Block(&other)
	}, nil, otherStack, 5, 0))

	require.Equal(t, kerr.OK, s.Startup(&sleeper))
	require.Equal(t, kerr.OK, s.Startup(&other))

	go s.Start()
	<-done

	require.Equal(t, []string{"sleeper-start", "other-start", "sleeper-woke"}, order)
}

// TestDeleteReclaimedByIdlePattern exercises Delete and ReclaimOne on
// threads that were created and started up but never dispatched (the
// scheduler's Start is never called), so the assertions need no
// cross-goroutine synchronization at all.
func TestDeleteReclaimedByIdlePattern(t *testing.T) {
	s, _ := newTestScheduler(t)

	var victim, keeper Thread
	victimStack := make([]byte, 256)
	keeperStack := make([]byte, 256)

	require.Equal(t, kerr.OK, s.CreateStatic(&victim, "victim", func(any) {
		s.Block(&victim)
	}, nil, victimStack, 4, 0))
	require.Equal(t, kerr.OK, s.CreateStatic(&keeper, "keeper", func(any) {
		s.Block(&keeper)
	}, nil, keeperStack, 6, 0))

	require.Equal(t, kerr.OK, s.Startup(&victim))
	require.Equal(t, kerr.OK, s.Startup(&keeper))
	require.Equal(t, StatusReady, victim.Status())

	require.Equal(t, kerr.OK, s.Delete(&victim))
	require.Equal(t, StatusTerminated, victim.Status())

	reclaimed, ok := s.ReclaimOne()
	require.True(t, ok)
	require.Same(t, &victim, reclaimed)
	require.Equal(t, StatusDeleted, victim.Status())

	_, ok = s.ReclaimOne()
	require.False(t, ok)
}

func TestCtrlSetPriorityReordersReadyList(t *testing.T) {
	s, _ := newTestScheduler(t)

	var a Thread
	stack := make([]byte, 256)
	require.Equal(t, kerr.OK, s.CreateStatic(&a, "a", func(any) {
		s.Block(&a)
	}, nil, stack, 4, 0))
	require.Equal(t, kerr.OK, s.Startup(&a))

	prio, res := s.Ctrl(&a, CtrlGetPriority, 0)
	require.Equal(t, kerr.OK, res)
	require.Equal(t, 4, prio)

	prio, res = s.Ctrl(&a, CtrlSetPriority, 1)
	require.Equal(t, kerr.OK, res)
	require.Equal(t, 1, prio)
	require.Equal(t, 1, a.Priority())

	_, res = s.Ctrl(&a, CtrlSetPriority, 99)
	require.Equal(t, kerr.Invalid, res)
}
