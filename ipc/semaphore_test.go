package ipc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Donzels/ToRTOS/config"
	"github.com/Donzels/ToRTOS/kerr"
	"github.com/Donzels/ToRTOS/port"
	"github.com/Donzels/ToRTOS/sched"
)

func newTestScheduler(t *testing.T) *sched.Scheduler {
	t.Helper()
	cfg, err := config.Resolve(config.WithPriorityLevels(16))
	require.NoError(t, err)
	return sched.NewScheduler(cfg, port.NewSim())
}

// wakeOrderScenario drives: a (created and started first) blocks on the
// semaphore while it is the highest-priority ready thread; the producer runs
// next and starts b up from within its own execution (mirroring the self-Startup
// pattern from the scheduler tests, since Startup must run on behalf of
// whichever thread is current), so b enqueues strictly after a regardless
// of priority; the producer then sends twice and the order both waiters
// observe "got" is recorded.
func wakeOrderScenario(t *testing.T, mode Mode, aPriority, bPriority int) []string {
	t.Helper()
	s := newTestScheduler(t)

	var sem Semaphore
	require.Equal(t, kerr.OK, CreateSemaphore(&sem, s, mode, 1, 0))

	events := make(chan string, 16)

	var a, b, p sched.Thread
	aStack := make([]byte, 256)
	bStack := make([]byte, 256)
	pStack := make([]byte, 256)

	require.Equal(t, kerr.OK, s.CreateStatic(&a, "a", func(any) {
		events <- "a-before"
		if res := sem.Receive(Forever); res != kerr.OK {
			t.Errorf("a Receive = %v, want OK", res)
		}
		events <- "a-got"
		s.Block(&a)
	}, nil, aStack, aPriority, 0))

	require.Equal(t, kerr.OK, s.CreateStatic(&b, "b", func(any) {
		events <- "b-before"
		if res := sem.Receive(Forever); res != kerr.OK {
			t.Errorf("b Receive = %v, want OK", res)
		}
		events <- "b-got"
		s.Block(&b)
	}, nil, bStack, bPriority, 0))

	require.Equal(t, kerr.OK, s.CreateStatic(&p, "p", func(any) {
		events <- "p-start"
		if res := s.Startup(&b); res != kerr.OK {
			t.Errorf("Startup(b) = %v, want OK", res)
		}
		if res := sem.Send(); res != kerr.OK {
			t.Errorf("first Send = %v, want OK", res)
		}
		if res := sem.Send(); res != kerr.OK {
			t.Errorf("second Send = %v, want OK", res)
		}
		s.Block(&p)
	}, nil, pStack, 10, 0))

	require.Equal(t, kerr.OK, s.Startup(&a))
	require.Equal(t, kerr.OK, s.Startup(&p))

	go s.Start()

	var order []string
	for i := 0; i < 5; i++ {
		order = append(order, <-events)
	}
	return order
}

// TestSemaphoreFIFOWakeOrder: FIFO mode wakes in arrival order even though
// b has a numerically better priority than a.
func TestSemaphoreFIFOWakeOrder(t *testing.T) {
	order := wakeOrderScenario(t, FIFO, 5, 2)
	require.Equal(t, []string{"a-before", "p-start", "b-before", "a-got", "b-got"}, order)
}

// TestSemaphorePRIOWakeOrder: PRIO mode wakes the higher-priority waiter
// first even though a enqueued before b.
func TestSemaphorePRIOWakeOrder(t *testing.T) {
	order := wakeOrderScenario(t, PRIO, 5, 2)
	require.Equal(t, []string{"a-before", "p-start", "b-before", "b-got", "a-got"}, order)
}

// TestSemaphoreNonBlockingReceive exercises the immediate-success and
// zero-timeout-failure paths without ever starting the scheduler, since
// neither path calls Switch.
func TestSemaphoreNonBlockingReceive(t *testing.T) {
	s := newTestScheduler(t)
	var sem Semaphore
	require.Equal(t, kerr.OK, CreateSemaphore(&sem, s, FIFO, 2, 1))

	require.Equal(t, kerr.OK, sem.Receive(0))
	require.Equal(t, 0, sem.Count())
	require.Equal(t, kerr.Generic, sem.Receive(0))

	require.Equal(t, kerr.OK, sem.Send())
	require.Equal(t, 1, sem.Count())
	require.Equal(t, kerr.OK, sem.Send())
	require.Equal(t, 2, sem.Count())
	require.Equal(t, kerr.Generic, sem.Send())
}

// TestSemaphoreCapacityValidation rejects an out-of-range initial count.
func TestSemaphoreCapacityValidation(t *testing.T) {
	s := newTestScheduler(t)
	var sem Semaphore
	require.Equal(t, kerr.Invalid, CreateSemaphore(&sem, s, FIFO, 2, 3))
	require.Equal(t, kerr.Invalid, CreateSemaphore(&sem, s, FIFO, 0, 0))
}
