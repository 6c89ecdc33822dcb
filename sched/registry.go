package sched

import "sync"

// Registry is a handle table mapping small integer handles to *Thread,
// grounded on eventloop's registry.go id->data mapping — minus the
// weak.Pointer GC hook that design
// needs for promises, since a TCB is never garbage collected
// independently of the scheduler's own create/delete/idle-reclaim cycle
// (spec.md §9's "ownership is naturally an index/handle into an arena of
// thread control blocks" note). Unlike eventloop's registry, whose promise
// IDs only ever grow, released handles go on a free list and are reused
// (most recently released first), so a long-running kernel that cycles through many dynamic threads does not
// grow the handle space without bound.
type Registry struct {
	mu      sync.RWMutex
	threads map[int]*Thread
	handles map[*Thread]int
	free    []int
	next    int
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		threads: make(map[int]*Thread),
		handles: make(map[*Thread]int),
	}
}

// Register assigns t a stable handle, reusing a Released slot if one is
// available, and returns it.
func (r *Registry) Register(t *Thread) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	var h int
	if n := len(r.free); n > 0 {
		h = r.free[n-1]
		r.free = r.free[:n-1]
	} else {
		h = r.next
		r.next++
	}
	r.threads[h] = t
	r.handles[t] = h
	return h
}

// Lookup resolves handle back to its Thread, or nil if unknown.
func (r *Registry) Lookup(handle int) *Thread {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.threads[handle]
}

// HandleOf returns t's current handle, if it has one.
func (r *Registry) HandleOf(t *Thread) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handles[t]
	return h, ok
}

// Release frees handle for reuse by a future Register call. A no-op if
// the handle is already unknown.
func (r *Registry) Release(handle int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.threads[handle]
	if !ok {
		return
	}
	delete(r.threads, handle)
	delete(r.handles, t)
	r.free = append(r.free, handle)
}
