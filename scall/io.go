package scall

import (
	"efskernel/config"
	"efskernel/defs"
	"efskernel/fd"
	"efskernel/vm"
)

// stage maps n bytes of scratch space at the task's current heap break,
// growing the break by one page-aligned region, and returns a UserBuffer
// translated through the task's own page table. This is how Read/Write
// exercise vm.TranslatedByteBuffer even though task bodies hand over
// plain Go []byte values rather than raw user pointers — see
// SPEC_FULL.md §4.13.
func (s *Syscalls) stage(n int) (*vm.UserBuffer, bool) {
	s.tcb.Lock()
	start := s.tcb.HeapEnd
	end := start + uint64(n)
	grown := s.tcb.MemorySet.InsertFramedArea(vm.Va_t(start), vm.Va_t(end), vm.PermR|vm.PermW|vm.PermU, nil)
	if grown {
		s.tcb.HeapEnd = (end + config.PageSize - 1) &^ (config.PageSize - 1)
	}
	pt := s.tcb.MemorySet.PageTable()
	phys := s.tcb.MemorySet.Phys()
	s.tcb.Unlock()
	if !grown {
		return nil, false
	}
	segs, ok := vm.TranslatedByteBuffer(pt, phys, vm.Va_t(start), n)
	if !ok {
		return nil, false
	}
	return vm.NewUserBuffer(segs), true
}

// Read reads up to len(buf) bytes from fd into buf, matching sys_read.
func (s *Syscalls) Read(fdNum int, buf []byte) int64 {
	f, ok := s.openFile(fdNum)
	if !ok {
		return defs.EBADF.Rc()
	}
	if !f.Readable() {
		return defs.EBADF.Rc()
	}
	ub, ok := s.stage(len(buf))
	if !ok {
		return defs.ENOMEM.Rc()
	}
	n := f.Read(ub)
	ub.Read(buf[:n])
	return int64(n)
}

// Write writes buf to fd, matching sys_write.
func (s *Syscalls) Write(fdNum int, buf []byte) int64 {
	f, ok := s.openFile(fdNum)
	if !ok {
		return defs.EBADF.Rc()
	}
	if !f.Writable() {
		return defs.EBADF.Rc()
	}
	ub, ok := s.stage(len(buf))
	if !ok {
		return defs.ENOMEM.Rc()
	}
	ub.Write(buf)
	n := f.Write(ub)
	return int64(n)
}

// Open resolves name under the filesystem root and installs it in the
// calling task's fd table, matching sys_open / fs::inode::open_file.
// Returns the new fd, or -ENOENT if name does not resolve and flags does
// not request creation.
func (s *Syscalls) Open(name string, flags defs.OpenFlags) int64 {
	inode, ok := fd.OpenFile(s.root, name, fd.OpenFlags(flags))
	if !ok {
		return defs.ENOENT.Rc()
	}
	s.tcb.Lock()
	defer s.tcb.Unlock()
	fdNum := s.tcb.Fds.Alloc()
	s.tcb.Fds.Set(fdNum, inode)
	return int64(fdNum)
}

// Close releases fd, matching sys_close.
func (s *Syscalls) Close(fdNum int) int64 {
	s.tcb.Lock()
	defer s.tcb.Unlock()
	if !s.tcb.Fds.Close(fdNum) {
		return defs.EBADF.Rc()
	}
	return 0
}
