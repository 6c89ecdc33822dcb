// Package alloc implements the kernel's optional byte-pool dynamic
// allocator (spec.md §4.10): an address-ordered ring of free and allocated
// blocks, a roving first-fit search pointer, lazy coalescing performed only
// during allocation, and owner-field pool identification so Free can reject
// a pointer that belongs to a different pool.
//
// Each block's header (next-offset, owner tag) lives inside the pool's own
// backing buffer, exactly as spec.md describes ("a two-field header at its
// start ... block size is implicit from the address difference between
// consecutive headers"); offsets stand in for the original's raw pointers,
// the same substitution sched/thread.go's stackTop makes for stack
// addresses, since Go slices don't support pointer arithmetic directly.
//
// Mutation of a pool's free-list ring is protected by the scheduler's
// suspend/resume nesting counter, not IRQ-disable (spec.md §5: "allocations
// may be long"), so a malloc/free walk cannot be preempted mid-splice by
// another thread while ticks and device interrupts stay live.
package alloc

import (
	"encoding/binary"
	"unsafe"

	"github.com/Donzels/ToRTOS/kerr"
	"github.com/Donzels/ToRTOS/sched"
)

// headerSize is the two-field block header: a uint32 offset of the next
// block in address order, and a uint32 owner tag.
const headerSize = 8

// alignment is the granularity every block payload and header offset is
// rounded to. 8 bytes matches the worst-case alignment a Cortex-M4F load/
// store instruction needs (double-word), and keeps headerSize itself a
// whole number of alignment units so header-adjacent offsets stay aligned
// without separate bookkeeping.
const alignment = 8

// freeOwner marks a block's owner field as free. A pool's own magic is
// derived from its address and is never zero, so free blocks can never be
// mistaken for a valid owner.
const freeOwner = 0

// Pool is one byte-pool arena. The zero value is not valid; use Create.
type Pool struct {
	s   *sched.Scheduler
	buf []byte

	magic     uint32
	available int
	fragments int
	searchOff uint32
	headOff   uint32

	ready bool
}

func alignUp(n, to int) int {
	return (n + to - 1) &^ (to - 1)
}

func alignDown(n, to int) int {
	return n &^ (to - 1)
}

// Create installs a pool over buf: one initial free block spanning the
// whole (aligned) region, closed by a permanently-allocated sentinel block.
// Returns kerr.Invalid if buf is too small to hold a free block plus the
// sentinel.
func Create(p *Pool, s *sched.Scheduler, buf []byte) kerr.Result {
	end := alignDown(len(buf), alignment)
	if end < 2*headerSize+alignment {
		return kerr.Invalid
	}

	p.s = s
	p.buf = buf[:end]
	p.magic = poolMagic(p)
	p.headOff = 0
	p.searchOff = 0
	p.fragments = 1

	sentinelOff := uint32(end - headerSize)
	p.setHeader(0, sentinelOff, freeOwner)
	p.setHeader(sentinelOff, p.headOff, p.magic)
	p.available = int(sentinelOff) - headerSize
	p.ready = true
	return kerr.OK
}

func poolMagic(p *Pool) uint32 {
	magic := uint32(uintptr(unsafe.Pointer(p)))
	if magic == freeOwner {
		magic = 1
	}
	return magic
}

func (p *Pool) headerAt(off uint32) (next, owner uint32) {
	return binary.LittleEndian.Uint32(p.buf[off:]), binary.LittleEndian.Uint32(p.buf[off+4:])
}

func (p *Pool) setHeader(off, next, owner uint32) {
	binary.LittleEndian.PutUint32(p.buf[off:], next)
	binary.LittleEndian.PutUint32(p.buf[off+4:], owner)
}

func (p *Pool) nextOf(off uint32) uint32 {
	next, _ := p.headerAt(off)
	return next
}

func (p *Pool) ownerOf(off uint32) uint32 {
	_, owner := p.headerAt(off)
	return owner
}

func (p *Pool) setOwner(off, owner uint32) {
	binary.LittleEndian.PutUint32(p.buf[off+4:], owner)
}

// blockSize returns the payload size of the block at off: the address gap
// to the next header, minus this block's own header.
func (p *Pool) blockSize(off uint32) int {
	return int(p.nextOf(off)) - int(off) - headerSize
}

func (p *Pool) payload(off uint32, size int) []byte {
	start := off + headerSize
	return p.buf[start : start+uint32(size) : start+uint32(size)]
}

// offsetOf recovers the block offset a previously-returned payload slice
// started at, by comparing backing-array addresses the same way
// sched/thread.go's stackTop computes a stack's top address: neither Go
// slice carries its source offset, so low-level code that hands out and
// later reclaims sub-slices of one arena has no alternative to comparing
// raw addresses.
func (p *Pool) offsetOf(ptr []byte) uint32 {
	base := uintptr(unsafe.Pointer(&p.buf[0]))
	addr := uintptr(unsafe.Pointer(&ptr[0]))
	return uint32(addr-base) - headerSize
}

// firstFit walks the ring starting at searchOff, lazily coalescing every
// free block it visits with its immediate free neighbors along the way,
// and inspects at most fragments+1 free blocks (there are only fragments
// of them to ever find; +1 covers a block that grows through coalescing
// mid-walk) before giving up. Allocated headers in between are skipped
// without counting against that bound. Returns the offset of the first
// block found (after coalescing) whose payload is large enough, and false
// if none fits.
func (p *Pool) firstFit(size int) (uint32, bool) {
	start := p.searchOff
	off := start
	inspected := 0
	for {
		if p.ownerOf(off) == freeOwner {
			p.coalesce(off)
			if p.blockSize(off) >= size {
				return off, true
			}
			inspected++
			if inspected > p.fragments {
				return 0, false
			}
		}
		off = p.nextOf(off)
		if off == start {
			return 0, false
		}
	}
}

// coalesce splices every immediately-following free block into off's span,
// stopping at the first allocated neighbor (the sentinel, being
// permanently allocated, always stops the chain). Each merge recovers the
// absorbed block's header as payload, so available grows to match.
func (p *Pool) coalesce(off uint32) {
	for {
		next := p.nextOf(off)
		if next == off || p.ownerOf(next) != freeOwner {
			return
		}
		p.setHeader(off, p.nextOf(next), freeOwner)
		p.fragments--
		p.available += headerSize
	}
}

// Allocate returns a zero-filled slice of size bytes from the pool, or nil
// with a non-OK result if size is invalid or no free block is large enough.
func (p *Pool) Allocate(size int) ([]byte, kerr.Result) {
	if !p.ready || size <= 0 {
		return nil, kerr.Invalid
	}
	want := size
	size = alignUp(size, alignment)

	p.s.SuspendScheduler()
	defer p.s.ResumeScheduler()

	if size > p.available {
		return nil, kerr.Generic
	}
	off, ok := p.firstFit(size)
	if !ok {
		return nil, kerr.Generic
	}

	// total is the (possibly just-coalesced) free block's current payload.
	// Splitting carves [size bytes allocated][new header][remainder
	// payload] out of it; the new header itself permanently leaves
	// available, since it belongs to neither the allocation nor any
	// free block's payload.
	total := p.blockSize(off)
	if remainder := total - size - headerSize; remainder >= alignment {
		splitOff := off + headerSize + uint32(size)
		p.setHeader(splitOff, p.nextOf(off), freeOwner)
		p.setHeader(off, splitOff, p.magic)
		p.fragments++
		p.available -= size + headerSize
	} else {
		p.setOwner(off, p.magic)
		p.available -= total
	}
	p.fragments--
	p.searchOff = p.nextOf(off)

	out := p.payload(off, want)
	for i := range out {
		out[i] = 0
	}
	return out, kerr.OK
}

// Free returns ptr (a slice previously returned by Allocate on this pool)
// to the free list. A nil ptr is a no-op returning kerr.Null; a pointer
// whose owner tag doesn't match this pool's magic is rejected with
// kerr.Invalid rather than corrupting another pool's ring.
func (p *Pool) Free(ptr []byte) kerr.Result {
	if ptr == nil {
		return kerr.Null
	}
	if !p.ready {
		return kerr.Invalid
	}
	off := p.offsetOf(ptr)

	p.s.SuspendScheduler()
	defer p.s.ResumeScheduler()

	if p.ownerOf(off) != p.magic {
		return kerr.Invalid
	}
	size := p.blockSize(off)
	p.available += size
	p.setOwner(off, freeOwner)
	p.fragments++
	if off < p.searchOff {
		p.searchOff = off
	}
	return kerr.OK
}

// Available returns the current total free payload bytes, for tests and
// diagnostics.
func (p *Pool) Available() int { return p.available }

// Fragments returns the current count of free blocks, for tests and
// diagnostics.
func (p *Pool) Fragments() int { return p.fragments }
