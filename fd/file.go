// Package fd adapts fs.Inode and the console into the File abstraction
// syscalls operate on (spec.md C13), grounded on
// original_source/os/src/fs (mod.rs, inode.rs, stdio.rs) and styled
// after biscuit/src/fs's Fd_t/Fdops_t split.
package fd

import "efskernel/vm"

// File is the narrow read/write surface every fd-table entry implements,
// matching fs::File. Console devices and OSInode both satisfy it.
type File interface {
	Readable() bool
	Writable() bool
	Read(buf *vm.UserBuffer) int
	Write(buf *vm.UserBuffer) int
}
