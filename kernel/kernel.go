// Package kernel ties the scheduler, IPC, and allocator packages together
// into the single entry point spec.md's reference board startup sequence
// uses: construct a Kernel, Boot it with an idle thread, then create
// application threads either statically (caller-supplied control block and
// stack) or dynamically (stack carved from the kernel's default byte pool;
// the control block is an ordinary Go allocation).
package kernel

import (
	"github.com/Donzels/ToRTOS/alloc"
	"github.com/Donzels/ToRTOS/config"
	"github.com/Donzels/ToRTOS/kerr"
	"github.com/Donzels/ToRTOS/klog"
	"github.com/Donzels/ToRTOS/port"
	"github.com/Donzels/ToRTOS/sched"
	"github.com/Donzels/ToRTOS/timer"
)

// Kernel owns one Scheduler, one optional default byte pool for dynamic
// thread creation, and the idle thread spec.md §4.1 requires always be
// runnable at the lowest configured priority.
type Kernel struct {
	cfg   config.Config
	sched *sched.Scheduler
	pool  *alloc.Pool

	state *runState

	idle      sched.Thread
	idleStack []byte
}

// New constructs a Kernel from a resolved configuration and CPU port. It
// does not yet have an idle thread or a running scheduler; call Boot.
func New(cfg config.Config, p port.Port) *Kernel {
	return &Kernel{
		cfg:   cfg,
		sched: sched.NewScheduler(cfg, p),
		state: newRunState(),
	}
}

// Scheduler returns the kernel's underlying scheduler, for creating
// additional static threads and IPC objects before or after Boot.
func (k *Kernel) Scheduler() *sched.Scheduler { return k.sched }

// Running reports whether Boot has completed and the scheduler has
// Started.
func (k *Kernel) Running() bool { return k.state.load() == stateRunning }

// Pool returns the kernel's default dynamic-allocation pool, or nil if
// config.DynamicAllocationEnabled is false.
func (k *Kernel) Pool() *alloc.Pool { return k.pool }

func idlePriority(cfg config.Config) int {
	if cfg.PriorityDirection == config.LowerIsHigher {
		return cfg.PriorityLevels - 1
	}
	return 0
}

// Boot installs the default dynamic-allocation pool (if enabled), creates
// and starts the reference idle thread at the lowest configured priority,
// then starts the scheduler on a new goroutine the same way every test in
// this module hands control to Start — the real port's FirstSwitch never
// returns either way, it just does so on real hardware instead of a
// simulated one. Boot may only run once per Kernel; a second call returns
// kerr.Invalid.
func (k *Kernel) Boot() kerr.Result {
	if !k.state.tryTransition(stateCreated, stateBooting) {
		return kerr.Invalid
	}

	if k.cfg.DynamicAllocationEnabled {
		poolBuf := make([]byte, k.cfg.DynamicPoolSize)
		var p alloc.Pool
		if res := alloc.Create(&p, k.sched, poolBuf); res != kerr.OK {
			return res
		}
		k.pool = &p
		alloc.SetDefault(k.pool)
	}

	k.idleStack = make([]byte, k.cfg.IdleStackSize)
	if res := k.sched.CreateStatic(&k.idle, "idle", k.idleLoop, nil, k.idleStack, idlePriority(k.cfg), 0); res != kerr.OK {
		return res
	}
	if res := k.sched.Startup(&k.idle); res != kerr.OK {
		return res
	}

	k.state.store(stateRunning)
	klog.L.Sched().Int("priority-levels", k.cfg.PriorityLevels).Log("kernel boot")
	go k.sched.Start()
	return kerr.OK
}

// idleLoop is the reference idle thread (spec.md §4.1's "always one
// runnable thread"): drain the deferred-termination list one thread at a
// time, returning dynamic threads' stacks to the pool they came from, then
// yield. It runs forever at the lowest priority, so it only gets the CPU
// when nothing else is ready.
func (k *Kernel) idleLoop(any) {
	for {
		if t, ok := k.sched.ReclaimOne(); ok {
			if t.IsDynamic() && k.pool != nil {
				k.pool.Free(t.Stack())
			}
			klog.L.Thread().Str("thread", t.Name).Log("idle reclaim")
			continue
		}
		k.sched.Yield()
	}
}

// CreateThread creates and starts a thread whose control block and stack
// are both sourced dynamically: the stack from the kernel's default pool
// (spec.md §4.10's motivating use case for the allocator), the control
// block as an ordinary Go allocation, since overlaying a pointer-bearing
// Thread struct on raw pool bytes would leave the garbage collector unable
// to trace it — carving the stack alone from the pool is what spec.md's
// allocator is actually for; the control block's own few dozen bytes were
// never the scarce resource.
func (k *Kernel) CreateThread(name string, entry func(arg any), arg any, stackSize, priority int, timeSlice timer.Tick) (*sched.Thread, kerr.Result) {
	if k.pool == nil {
		return nil, kerr.Invalid
	}
	stack, res := k.pool.Allocate(stackSize)
	if res != kerr.OK {
		return nil, res
	}

	t := &sched.Thread{}
	if res := k.sched.CreateStatic(t, name, entry, arg, stack, priority, timeSlice); res != kerr.OK {
		k.pool.Free(stack)
		return nil, res
	}
	t.SetDynamic(true)
	if res := k.sched.Startup(t); res != kerr.OK {
		return nil, res
	}
	return t, kerr.OK
}
