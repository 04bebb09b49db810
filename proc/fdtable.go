package proc

import "efskernel/fd"

// FdTable is a process's open-file table: a sparse slice of File handles
// indexed by small integer fd, matching TaskControlBlockInner::fd_table
// and TaskControlBlockInner::alloc_fd.
type FdTable struct {
	files []fd.File
}

// NewStdioFdTable seeds fds 0/1/2 as stdin/stdout/stderr, matching
// TaskControlBlock::new's fd_table initializer.
func NewStdioFdTable(stdin, stdout fd.File) *FdTable {
	return &FdTable{files: []fd.File{stdin, stdout, stdout}}
}

// Alloc returns the lowest free fd, growing the table if every slot is
// taken, matching TaskControlBlockInner::alloc_fd.
func (t *FdTable) Alloc() int {
	for i, f := range t.files {
		if f == nil {
			return i
		}
	}
	t.files = append(t.files, nil)
	return len(t.files) - 1
}

// Set installs f at fd (from Alloc).
func (t *FdTable) Set(fdNum int, f fd.File) { t.files[fdNum] = f }

// Get returns the file at fd, or (nil, false) if fd is closed/out of range.
func (t *FdTable) Get(fdNum int) (fd.File, bool) {
	if fdNum < 0 || fdNum >= len(t.files) || t.files[fdNum] == nil {
		return nil, false
	}
	return t.files[fdNum], true
}

// Close clears fd, matching sys_close.
func (t *FdTable) Close(fdNum int) bool {
	if _, ok := t.Get(fdNum); !ok {
		return false
	}
	t.files[fdNum] = nil
	return true
}

// Clone deep-copies the fd slots (not the underlying files, which are
// shared), matching TaskControlBlock::fork's new_fd_table construction.
func (t *FdTable) Clone() *FdTable {
	out := make([]fd.File, len(t.files))
	copy(out, t.files)
	return &FdTable{files: out}
}
