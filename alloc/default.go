package alloc

import (
	"sync"

	"github.com/Donzels/ToRTOS/kerr"
	"github.com/Donzels/ToRTOS/sched"
)

// defaultPool backs the legacy global Malloc/Free façade (spec.md's
// supplemented "one pool most callers never have to name"). It is installed
// lazily, by the first EnsureDefault call or by SetDefault (which
// kernel.Boot uses to install its own pool), rather than at package init, since it needs a scheduler and a backing region
// that only exist once the kernel has one.
var (
	defaultMu   sync.Mutex
	defaultPool *Pool
)

// EnsureDefault installs buf as the default pool if one hasn't already been
// installed. Idempotent: once a default pool exists, later calls leave it
// in place.
func EnsureDefault(s *sched.Scheduler, buf []byte) kerr.Result {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultPool != nil {
		return kerr.OK
	}
	p := &Pool{}
	if res := Create(p, s, buf); res != kerr.OK {
		return res
	}
	defaultPool = p
	return kerr.OK
}

// SetDefault installs an already-created pool as the default one, for a
// kernel that keeps its own *Pool handle and wants the legacy Malloc/Free
// façade to operate on that same instance rather than a second pool
// carved out of the same backing buffer.
func SetDefault(p *Pool) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultPool = p
}

// ResetDefault clears the installed default pool, for tests that need a
// fresh one.
func ResetDefault() {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultPool = nil
}

// Malloc allocates from the default pool. Returns kerr.Invalid if no
// default pool has been installed yet.
func Malloc(size int) ([]byte, kerr.Result) {
	defaultMu.Lock()
	p := defaultPool
	defaultMu.Unlock()
	if p == nil {
		return nil, kerr.Invalid
	}
	return p.Allocate(size)
}

// Free returns ptr to the default pool.
func Free(ptr []byte) kerr.Result {
	defaultMu.Lock()
	p := defaultPool
	defaultMu.Unlock()
	if p == nil {
		return kerr.Invalid
	}
	return p.Free(ptr)
}
