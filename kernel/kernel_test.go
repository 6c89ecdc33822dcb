package kernel

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Donzels/ToRTOS/alloc"
	"github.com/Donzels/ToRTOS/config"
	"github.com/Donzels/ToRTOS/kerr"
	"github.com/Donzels/ToRTOS/port"
)

func newTestConfig(t *testing.T, opts ...config.Option) config.Config {
	t.Helper()
	cfg, err := config.Resolve(opts...)
	require.NoError(t, err)
	return cfg
}

// TestKernelBootStartsIdleAndRejectsDoubleBoot checks Boot's CAS guard
// without ever needing to synchronize with the background scheduler
// goroutine it launches: Running becomes true synchronously, before Start
// is even handed to its own goroutine.
func TestKernelBootStartsIdleAndRejectsDoubleBoot(t *testing.T) {
	cfg := newTestConfig(t, config.WithPriorityLevels(4))
	k := New(cfg, port.NewSim())

	require.False(t, k.Running())
	require.Equal(t, kerr.OK, k.Boot())
	require.True(t, k.Running())
	require.Equal(t, kerr.Invalid, k.Boot())
}

// TestKernelCreateThreadBeforeBootFails checks that dynamic creation
// requires a pool, which only Boot installs.
func TestKernelCreateThreadBeforeBootFails(t *testing.T) {
	cfg := newTestConfig(t, config.WithPriorityLevels(4))
	k := New(cfg, port.NewSim())
	_, res := k.CreateThread("child", func(any) {}, nil, 128, 0, 0)
	require.Equal(t, kerr.Invalid, res)
}

// TestKernelDynamicThreadLifecycleReclaimsStack drives the dynamic create →
// terminate → reclaim → free pipeline by hand, single-threaded: it installs
// a pool the same way Boot does but never starts the scheduler, so there is
// no concurrent idle goroutine to race against while inspecting pool state.
// CreateThread's internal Startup is safe here because the scheduler has
// not Started, so it never attempts a live Switch.
func TestKernelDynamicThreadLifecycleReclaimsStack(t *testing.T) {
	cfg := newTestConfig(t, config.WithPriorityLevels(4), config.WithDynamicAllocation(true, 4096))
	k := New(cfg, port.NewSim())

	var p alloc.Pool
	require.Equal(t, kerr.OK, alloc.Create(&p, k.sched, make([]byte, cfg.DynamicPoolSize)))
	k.pool = &p

	before := p.Available()

	child, res := k.CreateThread("child", func(any) {}, nil, 128, 0, 0)
	require.Equal(t, kerr.OK, res)
	require.True(t, child.IsDynamic())
	require.Less(t, p.Available(), before)

	// Force child straight to TERMINATED the way its own exitRoutine would
	// have, without ever starting the scheduler.
	require.Equal(t, kerr.OK, k.sched.Delete(child))

	reclaimed, ok := k.sched.ReclaimOne()
	require.True(t, ok)
	require.Same(t, child, reclaimed)
	require.True(t, reclaimed.IsDynamic())
	require.Equal(t, kerr.OK, k.pool.Free(reclaimed.Stack()))

	// Free alone recovers only the block's own current payload, not the
	// 8-byte header the original split introduced; that header is only
	// recovered by a later Allocate's lazy coalesce (alloc.TestPoolWrapAroundCoalesce
	// covers that path directly).
	require.Equal(t, before-8, p.Available())
}
