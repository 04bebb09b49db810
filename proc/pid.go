// Package proc implements process/task bookkeeping: PID allocation, the
// per-task kernel stack mapping, and the task control block itself
// (spec.md C11), grounded on original_source's os/src/task (pid.rs,
// task.rs) and styled after biscuit/src/proc's Proc_t/Tid_t.
package proc

import (
	"fmt"
	"sync"

	"efskernel/config"
	"efskernel/vm"
)

// PidAllocator hands out process ids with the same stack-discipline as
// mem.Physmem_t's frame allocator, matching task::pid::PidAllocator.
type PidAllocator struct {
	mu       sync.Mutex
	current  uint64
	recycled []uint64
}

// NewPidAllocator constructs an empty allocator.
func NewPidAllocator() *PidAllocator { return &PidAllocator{} }

// Alloc returns a fresh pid, preferring a recycled one, matching
// PidAllocator::alloc.
func (p *PidAllocator) Alloc() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n := len(p.recycled); n > 0 {
		pid := p.recycled[n-1]
		p.recycled = p.recycled[:n-1]
		return pid
	}
	pid := p.current
	p.current++
	return pid
}

// Dealloc returns pid to the pool. Panics on a never-issued or
// already-freed pid, matching PidAllocator::dealloc's assertions.
func (p *PidAllocator) Dealloc(pid uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pid >= p.current {
		panic(fmt.Sprintf("proc: dealloc of never-allocated pid %d", pid))
	}
	for _, r := range p.recycled {
		if r == pid {
			panic(fmt.Sprintf("proc: pid %d deallocated twice", pid))
		}
	}
	p.recycled = append(p.recycled, pid)
}

// KernelStackPosition returns the [bottom, top) virtual-address window
// reserved for pid's kernel stack within the kernel address space, one
// guard page below the next-higher stack, matching
// pid::kernel_stack_position.
func KernelStackPosition(pid uint64) (bottom, top vm.Va_t) {
	t := uint64(config.Trampoline) - pid*(uint64(config.KernelStackSize)+config.PageSize)
	return vm.Va_t(t - config.KernelStackSize), vm.Va_t(t)
}

// KernelStack is a task's mapped kernel-stack window within the kernel
// MemorySet, matching task::pid::KernelStack.
type KernelStack struct {
	pid   uint64
	top   vm.Va_t
	start vm.Vpn_t
}

// NewKernelStack maps pid's kernel stack into kernelSpace, matching
// KernelStack::new.
func NewKernelStack(kernelSpace *vm.MemorySet, pid uint64) *KernelStack {
	bottom, top := KernelStackPosition(pid)
	if !kernelSpace.InsertFramedArea(bottom, top, vm.PermR|vm.PermW, nil) {
		panic("proc: out of frames mapping kernel stack")
	}
	return &KernelStack{pid: pid, top: top, start: bottom.Floor()}
}

// Top returns the highest address of this stack, matching
// KernelStack::get_top.
func (k *KernelStack) Top() vm.Va_t { return k.top }

// Release unmaps this stack's area from kernelSpace, matching
// KernelStack's Drop impl (explicit here — Go has no destructors).
func (k *KernelStack) Release(kernelSpace *vm.MemorySet) {
	kernelSpace.RemoveAreaWithStartVpn(k.start)
}
