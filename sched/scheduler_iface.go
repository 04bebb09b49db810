package sched

import (
	"runtime"
	"time"

	"efskernel/proc"
	"efskernel/scall"
)

// ExitCurrent finalizes the currently-running task with exitCode,
// releasing its address space and kernel stack and reparenting any
// children to the init task, matching exit_current_and_run_next. Called
// from inside the task's own goroutine (via Syscalls.Exit, or implicitly
// when a TaskBody returns) so it must hand the scheduling baton back
// before the goroutine ends. It then ends that goroutine with
// runtime.Goexit, so it never returns to the exiting task.
func (tm *TaskManager) ExitCurrent(exitCode int) {
	tm.mu.Lock()
	cur := tm.current
	tm.current = nil
	init := tm.initTask
	tm.mu.Unlock()

	cur.tcb.Lock()
	cur.tcb.Status = proc.Zombie
	cur.tcb.ExitCode = exitCode
	children := cur.tcb.Children
	cur.tcb.Children = nil
	ms := cur.tcb.MemorySet
	ks := cur.tcb.KernelStack
	cur.tcb.Unlock()

	if init != nil {
		init.Lock()
		for _, c := range children {
			c.Lock()
			c.Parent = init
			c.Unlock()
			init.Children = append(init.Children, c)
		}
		init.Unlock()
	}

	ms.Release()
	ks.Release(tm.kernelSpace)

	tm.schedCh <- struct{}{}
	runtime.Goexit()
}

// SuspendCurrent parks the currently-running task back onto the ready
// queue and blocks its goroutine until RunTasks hands it the baton
// again, matching suspend_current_and_run_next.
func (tm *TaskManager) SuspendCurrent() {
	tm.mu.Lock()
	cur := tm.current
	tm.current = nil
	tm.mu.Unlock()

	cur.tcb.Lock()
	cur.tcb.Status = proc.Ready
	cur.tcb.Unlock()

	tm.mu.Lock()
	tm.ready = append(tm.ready, cur)
	tm.mu.Unlock()

	tm.schedCh <- struct{}{}
	<-cur.cont
}

// QuantumExpired reports whether the currently-running task has held the
// baton for at least tm.quantum, the wall-clock analogue of a
// SupervisorTimer interrupt firing (SPEC_FULL.md §4.13).
func (tm *TaskManager) QuantumExpired() bool {
	tm.mu.Lock()
	cur := tm.current
	q := tm.quantum
	tm.mu.Unlock()
	if cur == nil {
		return false
	}
	return time.Since(cur.quantumStart) >= q
}

// ForkChild derives a child TCB from parent via proc.TCB.Fork and spawns
// it as a new ready task running body, matching sys_fork's "create a
// copy-on-creation child and enqueue it" half (the Scheduler side of
// Syscalls.Fork).
func (tm *TaskManager) ForkChild(parent *proc.TCB, body scall.TaskBody) (*proc.TCB, bool) {
	tm.mu.Lock()
	pids := tm.pids
	kernelSpace := tm.kernelSpace
	trampolinePpn := tm.trampolinePpn
	tm.mu.Unlock()

	child, ok := parent.Fork(pids, kernelSpace, trampolinePpn)
	if !ok {
		return nil, false
	}
	tm.Spawn(child, body)
	return child, true
}

// FindZombieChild looks up one of parent's children matching pid
// (-1 for any) that has already exited, without removing it, matching
// the lookup half of sys_waitpid.
func (tm *TaskManager) FindZombieChild(parent *proc.TCB, pid int64) (*proc.TCB, bool) {
	parent.Lock()
	children := append([]*proc.TCB(nil), parent.Children...)
	parent.Unlock()

	for _, c := range children {
		c.Lock()
		matches := pid == -1 || int64(c.Pid) == pid
		isZombie := c.Status == proc.Zombie
		c.Unlock()
		if matches && isZombie {
			return c, true
		}
	}
	return nil, false
}

// ReapChild removes child from parent's children list and reclaims its
// pid, matching the reaping half of sys_waitpid. The child's address
// space and kernel stack were already released in ExitCurrent.
func (tm *TaskManager) ReapChild(parent *proc.TCB, child *proc.TCB) {
	parent.Lock()
	for i, c := range parent.Children {
		if c == child {
			parent.Children = append(parent.Children[:i], parent.Children[i+1:]...)
			break
		}
	}
	parent.Unlock()

	tm.mu.Lock()
	delete(tm.byPid, child.Pid)
	tm.mu.Unlock()

	tm.pids.Dealloc(child.Pid)
}
