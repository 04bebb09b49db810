package mem

// FrameHandle is the RAII-style owner of one physical frame (spec.md §3):
// construction zero-fills the frame, Release returns it to the allocator.
// Ownership is exclusive and never duplicated — copying a FrameHandle
// value is a bug the caller must avoid (Go cannot forbid it statically,
// so FrameHandle values must always be passed by pointer once created).
type FrameHandle struct {
	phys *Physmem_t
	pa   Pa_t
	live bool
}

// AllocFrame acquires a fresh zero-filled frame, or reports failure — the
// caller decides whether that failure is user-recoverable (ENOMEM) or
// kernel-fatal, per spec.md §7.
func AllocFrame(phys *Physmem_t) (*FrameHandle, bool) {
	idx, ok := phys.alloc()
	if !ok {
		return nil, false
	}
	pa := Pa_t(idx * PageSize)
	buf := phys.Bytes(pa)
	for i := range buf {
		buf[i] = 0
	}
	return &FrameHandle{phys: phys, pa: pa, live: true}, true
}

// Pa returns the physical address backing this frame.
func (f *FrameHandle) Pa() Pa_t { return f.pa }

// Bytes returns the frame's byte-addressable contents.
func (f *FrameHandle) Bytes() []byte { return f.phys.Bytes(f.pa) }

// Release returns the frame to its allocator. Calling Release twice is a
// bug and panics on the handle's own released-state check, before the
// allocator is reached.
func (f *FrameHandle) Release() {
	if !f.live {
		panic("mem: FrameHandle released twice")
	}
	f.live = false
	f.phys.Free(f.pa)
}
