package fd

import (
	"sync"

	"efskernel/fs"
	"efskernel/vm"
)

// OSInode augments an fs.Inode with the process-facing bits easy-fs
// itself doesn't track: open-mode permissions and the per-open-file
// cursor offset, matching fs::inode::OSInode.
type OSInode struct {
	readable, writable bool
	mu                 sync.Mutex
	offset             uint32
	inode              *fs.Inode
}

// NewOSInode wraps an already-resolved fs.Inode, matching OSInode::new.
func NewOSInode(readable, writable bool, inode *fs.Inode) *OSInode {
	return &OSInode{readable: readable, writable: writable, inode: inode}
}

func (f *OSInode) Readable() bool { return f.readable }
func (f *OSInode) Writable() bool { return f.writable }

// ReadAll drains the whole file from the current offset, matching
// OSInode::read_all.
func (f *OSInode) ReadAll() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []byte
	var chunk [fs.BlockSize]byte
	for {
		n := f.inode.ReadAt(f.offset, chunk[:])
		if n == 0 {
			break
		}
		f.offset += uint32(n)
		out = append(out, chunk[:n]...)
	}
	return out
}

// Read fills buf (across every segment) from the cursor and advances the
// cursor by the bytes delivered, matching File::read for OSInode.
func (f *OSInode) Read(buf *vm.UserBuffer) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	tmp := make([]byte, buf.Len())
	n := f.inode.ReadAt(f.offset, tmp)
	written := buf.Write(tmp[:n])
	f.offset += uint32(written)
	return written
}

// Write writes buf's full contents at the cursor, matching
// File::write for OSInode (which asserts every slice is written in full).
func (f *OSInode) Write(buf *vm.UserBuffer) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	data := make([]byte, buf.Len())
	n := buf.Read(data)
	written := f.inode.WriteAt(f.offset, data[:n])
	if written != n {
		panic("fd: short write to inode")
	}
	f.offset += uint32(written)
	return written
}

// OpenFlags mirrors fs::inode::OpenFlags. Defined here (not reused from
// defs.OpenFlags) because ReadWrite's tri-state decoding is an fd-layer
// policy, not a syscall-numbering concern.
type OpenFlags uint32

const (
	ORdOnly OpenFlags = 0
	OWrOnly OpenFlags = 1 << 0
	ORdWr   OpenFlags = 1 << 1
	OCreate OpenFlags = 1 << 9
	OTrunc  OpenFlags = 1 << 10
)

// ReadWrite decodes the (readable, writable) pair, matching
// OpenFlags::read_write.
func (o OpenFlags) ReadWrite() (readable, writable bool) {
	switch {
	case o&(OWrOnly|ORdWr) == 0:
		return true, false
	case o&OWrOnly != 0:
		return false, true
	default:
		return true, true
	}
}

// OpenFile resolves name under root with flags, matching
// fs::inode::open_file: OCreate truncates an existing file or creates a
// new one; otherwise a bare lookup, truncating first if OTrunc is set.
func OpenFile(root *fs.Inode, name string, flags OpenFlags) (*OSInode, bool) {
	readable, writable := flags.ReadWrite()
	if flags&OCreate != 0 {
		if existing, ok := root.Find(name); ok {
			existing.Clear()
			return NewOSInode(readable, writable, existing), true
		}
		created, ok := root.Create(name)
		if !ok {
			return nil, false
		}
		return NewOSInode(readable, writable, created), true
	}
	found, ok := root.Find(name)
	if !ok {
		return nil, false
	}
	if flags&OTrunc != 0 {
		found.Clear()
	}
	return NewOSInode(readable, writable, found), true
}
