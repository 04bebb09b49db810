// Package scall is the syscall dispatch surface a task body calls into,
// matching spec.md C14 / original_source's os/src/syscall. Grounded on
// syscall/process.rs for exit/yield/get_time/sbrk, and on spec.md §5/§6
// directly for fork/exec/waitpid/read/write/open/close, which weren't
// present in the retrieved original_source slice.
package scall

import (
	"efskernel/fd"
	"efskernel/fs"
	"efskernel/proc"
	"efskernel/trap"
	"efskernel/vm"
)

// TaskBody is the narrow "instruction stream" adaptation SPEC_FULL.md
// §4.13 documents: a task's user-mode code is a Go closure that issues
// syscalls through *Syscalls exactly as compiled user code would via
// ecall. Its return value is the task's implicit exit code if it never
// calls Exit itself.
type TaskBody func(*Syscalls) int

// Scheduler is the callback surface Syscalls needs from the task
// manager: give up the current quantum, terminate the current task,
// fork/reap children, and report quantum exhaustion. Satisfied by
// sched.TaskManager; declared here (not imported from sched) so sched
// can depend on scall without an import cycle.
type Scheduler interface {
	trap.Scheduler
	QuantumExpired() bool
	ForkChild(parent *proc.TCB, body TaskBody) (*proc.TCB, bool)
	FindZombieChild(parent *proc.TCB, pid int64) (*proc.TCB, bool)
	ReapChild(parent *proc.TCB, child *proc.TCB)
}

// Syscalls is the per-task handle a TaskBody is given: its own TCB plus
// the kernel-wide collaborators syscalls need — the scheduler and the
// filesystem root (for Open/Exec) and the shared trampoline PPN (for
// Exec's address-space rebuild).
type Syscalls struct {
	tcb           *proc.TCB
	sched         Scheduler
	root          *fs.Inode
	trampolinePpn vm.Ppn_t
}

// New binds a Syscalls handle to one task.
func New(tcb *proc.TCB, sched Scheduler, root *fs.Inode, trampolinePpn vm.Ppn_t) *Syscalls {
	return &Syscalls{tcb: tcb, sched: sched, root: root, trampolinePpn: trampolinePpn}
}

// Pid returns the calling task's pid, for tests and diagnostics.
func (s *Syscalls) Pid() uint64 { return s.tcb.Pid }

func (s *Syscalls) openFile(fdNum int) (fd.File, bool) {
	s.tcb.Lock()
	defer s.tcb.Unlock()
	return s.tcb.Fds.Get(fdNum)
}
