package scall

import (
	"efskernel/defs"
	"efskernel/fd"
	"efskernel/klog"
	"efskernel/trap"
	"efskernel/vm"
)

// Yield gives up the rest of the current quantum, matching sys_yield.
func (s *Syscalls) Yield() int64 {
	s.sched.SuspendCurrent()
	return 0
}

// Exit terminates the calling task with exitCode, matching sys_exit.
// Like sys_exit, this never returns to the caller: ExitCurrent stops the
// task's goroutine outright.
func (s *Syscalls) Exit(exitCode int) {
	klog.Kernf("Application exited with code %d", exitCode)
	s.sched.ExitCurrent(exitCode)
}

// GetTime returns milliseconds since boot, matching sys_get_time.
func (s *Syscalls) GetTime() int64 { return trap.GetTimeMs() }

// GetPid returns the calling task's pid, matching sys_getpid (named in
// spec.md's syscall table though absent from the retrieved process.rs
// slice).
func (s *Syscalls) GetPid() uint64 { return s.tcb.Pid }

// Sbrk grows the heap by delta bytes and returns the previous break,
// matching sys_sbrk / change_program_brk. A non-positive delta is a
// no-op that still reports the current break; shrinking is not
// reclaimed, a pragmatic simplification recorded in DESIGN.md.
func (s *Syscalls) Sbrk(delta int32) (oldBrk uint64, ok bool) {
	s.tcb.Lock()
	defer s.tcb.Unlock()
	old := s.tcb.HeapEnd
	if delta <= 0 {
		return old, true
	}
	newEnd := old + uint64(delta)
	if !s.tcb.MemorySet.InsertFramedArea(vm.Va_t(old), vm.Va_t(newEnd), vm.PermR|vm.PermW|vm.PermU, nil) {
		return 0, false
	}
	s.tcb.HeapEnd = newEnd
	return old, true
}

// CheckPreempt is the cooperative stand-in for an asynchronous
// SupervisorTimer interrupt: a task body calls it at its own loop
// checkpoints, and the scheduler decides (based on wall-clock quantum
// elapsed) whether this is a preemption point, matching the
// SupervisorTimer arm of trap_handler plus set_next_trigger. See
// SPEC_FULL.md §4.13.
func (s *Syscalls) CheckPreempt() {
	if s.sched.QuantumExpired() {
		trap.Handle(trap.SupervisorTimer, s.sched, 0)
	}
}

// Fork spawns a child task running childBody, sharing this task's open
// files and a copy-on-creation address space, matching
// TaskControlBlock::fork (spec.md §4.9 "fork"). Returns the child's pid,
// or -ENOMEM if the address space/kernel stack could not be allocated.
func (s *Syscalls) Fork(childBody TaskBody) int64 {
	child, ok := s.sched.ForkChild(s.tcb, childBody)
	if !ok {
		return defs.ENOMEM.Rc()
	}
	return int64(child.Pid)
}

// Exec replaces the calling task's address space with the ELF image
// found at path, matching spec.md §4.9 "exec": -ENOENT if path does not
// resolve. Because task bodies are Go closures rather than an
// instruction stream, Exec's observable effect here is the address-space
// replacement (exercising fs+vm exactly as the original does) — it
// cannot also discard "the rest of the caller's code", since there is no
// such code to discard; see SPEC_FULL.md §4.13.
func (s *Syscalls) Exec(path string) int64 {
	inode, ok := s.root.Find(path)
	if !ok {
		return defs.ENOENT.Rc()
	}
	elfData := fd.NewOSInode(true, false, inode).ReadAll()
	ms, userSp, entry, err := vm.FromElf(s.tcb.MemorySet.Phys(), s.trampolinePpn, elfData)
	if err != nil {
		return defs.ENOENT.Rc()
	}
	s.tcb.Exec(ms, userSp, entry)
	return 0
}

// WaitPid reaps a zombie child matching pid (-1 for any), matching
// spec.md §4.9's non-blocking waitpid: -1 if no matching child exists at
// all, -2 if some match but none has exited yet, otherwise the reaped
// child's pid with exitCode populated. Callers that want blocking
// semantics loop calling WaitPid and Yield, same as the original's user
// programs looping on sys_waitpid returning -2.
func (s *Syscalls) WaitPid(pid int64) (childPid int64, exitCode int32) {
	child, ok := s.sched.FindZombieChild(s.tcb, pid)
	if !ok {
		s.tcb.Lock()
		hasMatch := false
		for _, c := range s.tcb.Children {
			if pid == -1 || int64(c.Pid) == pid {
				hasMatch = true
				break
			}
		}
		s.tcb.Unlock()
		if hasMatch {
			return -2, 0
		}
		return -1, 0
	}
	code := int32(child.ExitCode)
	reapedPid := int64(child.Pid)
	s.sched.ReapChild(s.tcb, child)
	return reapedPid, code
}
