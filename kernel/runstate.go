package kernel

import "sync/atomic"

// runState is a lock-free boot-once state machine, adapted from the
// teacher eventloop package's FastState/LoopState (state.go): the same
// cache-line-padded atomic.Uint64 with CAS-guarded transitions, narrowed
// from the loop's five states to the three a kernel that boots once and
// then runs forever actually has. There is no "Sleeping" or "Terminating"
// counterpart here — an RTOS kernel under spec.md §4.1 never stops itself,
// so runState only needs to make double-Boot a detectable error.
type runKernelState uint64

const (
	// stateCreated is a Kernel that exists but has not Booted.
	stateCreated runKernelState = 0
	// stateBooting is between CAS-claiming Boot and the idle thread's
	// Startup; only Boot itself ever observes this value.
	stateBooting runKernelState = 1
	// stateRunning is a Kernel whose scheduler has Started.
	stateRunning runKernelState = 2
)

// runState is a cache-line-padded CAS guard, same layout rationale as
// state.go's FastState: avoid false sharing with neighboring fields on a
// multi-core host even though this single-core kernel itself never
// contends on it from more than one real core.
type runState struct {
	_ [64]byte
	v atomic.Uint64
	_ [56]byte
}

func newRunState() *runState {
	s := &runState{}
	s.v.Store(uint64(stateCreated))
	return s
}

func (s *runState) load() runKernelState { return runKernelState(s.v.Load()) }

func (s *runState) tryTransition(from, to runKernelState) bool {
	return s.v.CompareAndSwap(uint64(from), uint64(to))
}

func (s *runState) store(to runKernelState) { s.v.Store(uint64(to)) }
