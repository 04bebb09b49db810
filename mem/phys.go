// Package mem implements the physical-frame allocator (spec.md C7) and a
// software-simulated physical memory arena standing in for the RISC-V
// hart's DRAM (spec.md treats the MMU/hardware as given; this kernel has
// no real hart to back a page table with, so physical memory is a
// []byte arena addressed by Pa_t, grounded on biscuit's mem.Physmem_t
// stack-allocator discipline).
package mem

import (
	"fmt"
	"sync"
)

// Pa_t is a physical address: a byte offset into the simulated arena.
type Pa_t uint64

// Ppn returns the physical page number for an address.
func (p Pa_t) Ppn() uint64 { return uint64(p) >> PageShift }

const (
	PageShift = 12
	PageSize  = 1 << PageShift
)

// PageAligned reports whether an address is frame-aligned.
func (p Pa_t) PageAligned() bool { return uint64(p)&(PageSize-1) == 0 }

// Physmem_t is the global physical memory arena and stack-discipline frame
// allocator, grounded on biscuit/src/mem/mem.go's Physmem_t and on
// original_source's os/src/mm/frame_allocator.rs StackFrameAllocator.
type Physmem_t struct {
	sync.Mutex
	arena    []byte
	nframes  uint64
	current  uint64   // next never-allocated frame index
	recycled []uint64 // LIFO of freed frame indices
}

// NewPhysmem allocates a simulated arena of nframes physical pages.
func NewPhysmem(nframes uint64) *Physmem_t {
	return &Physmem_t{
		arena:   make([]byte, nframes*PageSize),
		nframes: nframes,
	}
}

// alloc returns a fresh frame index using the recycled list first, falling
// back to bumping current, matching StackFrameAllocator::alloc.
func (p *Physmem_t) alloc() (uint64, bool) {
	p.Lock()
	defer p.Unlock()
	if n := len(p.recycled); n > 0 {
		idx := p.recycled[n-1]
		p.recycled = p.recycled[:n-1]
		return idx, true
	}
	if p.current < p.nframes {
		idx := p.current
		p.current++
		return idx, true
	}
	return 0, false
}

// dealloc returns a frame to the recycled list. Panics (kernel-fatal,
// spec.md §7) if the frame was never allocated or is already free —
// mirroring StackFrameAllocator::dealloc's two assertions.
func (p *Physmem_t) dealloc(idx uint64) {
	p.Lock()
	defer p.Unlock()
	if idx >= p.current {
		panic(fmt.Sprintf("mem: dealloc of never-allocated frame %d", idx))
	}
	for _, r := range p.recycled {
		if r == idx {
			panic(fmt.Sprintf("mem: double free of frame %d", idx))
		}
	}
	p.recycled = append(p.recycled, idx)
}

// Bytes returns the byte-addressable backing store for a physical page,
// standing in for biscuit's Dmap direct-map accessor.
func (p *Physmem_t) Bytes(pa Pa_t) []byte {
	off := uint64(pa)
	return p.arena[off : off+PageSize]
}

// Free returns the frame at pa to the allocator. Idempotent calls panic,
// matching the invariant in spec.md §3 ("destruction is idempotent
// relative to the allocator" — i.e. a double Free is a bug, not a no-op).
func (p *Physmem_t) Free(pa Pa_t) {
	p.dealloc(pa.Ppn())
}

// NumFree reports the number of frames available for allocation, used by
// cmd/kstat's pprof-backed counters.
func (p *Physmem_t) NumFree() uint64 {
	p.Lock()
	defer p.Unlock()
	return (p.nframes - p.current) + uint64(len(p.recycled))
}
