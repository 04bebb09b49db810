package proc

import (
	"sync"

	"efskernel/fd"
	"efskernel/vm"
)

// TaskStatus mirrors task::task::TaskStatus.
type TaskStatus int

const (
	Ready TaskStatus = iota
	Running
	Zombie
)

// TCB is the task control block: everything that outlives a single
// scheduling quantum for one task, matching
// task::task::TaskControlBlock(Inner). Unlike the original there is no
// saved register TaskContext — task execution is a live goroutine, so
// "suspending" a task means blocking its goroutine on a channel rather
// than saving a jump target (see sched.RunTasks).
type TCB struct {
	mu sync.Mutex

	Pid         uint64
	KernelStack *KernelStack
	MemorySet   *vm.MemorySet
	BaseSize    uint64 // highest address the loaded program occupies
	EntryPoint  uint64

	Status   TaskStatus
	Parent   *TCB
	Children []*TCB
	ExitCode int

	Fds *FdTable

	// HeapEnd is the current program break, matching
	// TaskControlBlockInner's (unmodeled in the retrieved task.rs slice,
	// but named by spec.md's change_program_brk) growable heap region;
	// it starts at userSp rounded up to a page boundary, i.e. directly
	// above the user stack, and grows upward from there.
	HeapEnd uint64
}

// New constructs a fresh, parentless task from a loaded address space,
// matching TaskControlBlock::new (minus ELF-specific trap-context
// initialization — see sched/trap for how a task body actually begins
// running).
func New(pids *PidAllocator, kernelSpace *vm.MemorySet, ms *vm.MemorySet, userSp, entry uint64, stdin, stdout fd.File) *TCB {
	pid := pids.Alloc()
	return &TCB{
		Pid:         pid,
		KernelStack: NewKernelStack(kernelSpace, pid),
		MemorySet:   ms,
		BaseSize:    userSp,
		EntryPoint:  entry,
		Status:      Ready,
		Fds:         NewStdioFdTable(stdin, stdout),
		HeapEnd:     alignUp(userSp),
	}
}

func alignUp(v uint64) uint64 {
	const pageSize = 4096
	return (v + pageSize - 1) &^ (pageSize - 1)
}

// Lock/Unlock expose the TCB's own mutex to callers (scall, sched) that
// must serialize access to its mutable fields, mirroring the original's
// UPSafeCell::exclusive_access.
func (t *TCB) Lock()   { t.mu.Lock() }
func (t *TCB) Unlock() { t.mu.Unlock() }

// IsZombie reports whether Exit has been called, matching
// TaskControlBlockInner::is_zombie.
func (t *TCB) IsZombie() bool { return t.Status == Zombie }

// Exec replaces this task's address space in place, matching
// TaskControlBlock::exec. The caller supplies the already-built
// MemorySet (from vm.FromElf) since loading it from a path is an
// fs+scall concern, not a proc one.
func (t *TCB) Exec(ms *vm.MemorySet, userSp, entry uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	old := t.MemorySet
	t.MemorySet = ms
	t.BaseSize = userSp
	t.EntryPoint = entry
	t.HeapEnd = alignUp(userSp)
	old.Release()
}

// Fork derives a child TCB with its own copy of this task's fd table
// (the open files themselves are shared), matching
// TaskControlBlock::fork.
func (t *TCB) Fork(pids *PidAllocator, kernelSpace *vm.MemorySet, trampolinePpn vm.Ppn_t) (*TCB, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	childMs, ok := vm.FromExistedUser(t.MemorySet.Phys(), t.MemorySet, trampolinePpn)
	if !ok {
		return nil, false
	}
	pid := pids.Alloc()
	child := &TCB{
		Pid:         pid,
		KernelStack: NewKernelStack(kernelSpace, pid),
		MemorySet:   childMs,
		BaseSize:    t.BaseSize,
		EntryPoint:  t.EntryPoint,
		Status:      Ready,
		Parent:      t,
		Fds:         t.Fds.Clone(),
		HeapEnd:     t.HeapEnd,
	}
	t.Children = append(t.Children, child)
	return child, true
}
