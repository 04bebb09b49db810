package defs

// Syscall numbers, spec.md §4.12. Numbering matches the rCore-Tutorial ABI
// this kernel's file-descriptor and process model is grounded on.
const (
	SYS_READ    = 63
	SYS_WRITE   = 64
	SYS_OPEN    = 56
	SYS_CLOSE   = 57
	SYS_EXIT    = 93
	SYS_YIELD   = 124
	SYS_GETPID  = 172
	SYS_GETTIME = 169
	SYS_SBRK    = 214
	SYS_FORK    = 220
	SYS_EXEC    = 221
	SYS_WAITPID = 260
)

// OpenFlags are OR-combinable, spec.md §4.11.
type OpenFlags uint32

const (
	O_RDONLY OpenFlags = 0
	O_WRONLY OpenFlags = 1
	O_RDWR   OpenFlags = 2
	O_CREATE OpenFlags = 1 << 9
	O_TRUNC  OpenFlags = 1 << 10
)

// ReadWrite derives the (readable, writable) access pair from the RD/WR
// bits, matching rCore's OpenFlags::read_write.
func (f OpenFlags) ReadWrite() (readable, writable bool) {
	switch f & 0x3 {
	case O_RDONLY:
		return true, false
	case O_WRONLY:
		return false, true
	default: // O_RDWR (and any combination of both bits)
		return true, true
	}
}
