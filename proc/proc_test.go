package proc

import (
	"bytes"
	"testing"

	"efskernel/config"
	"efskernel/fd"
	"efskernel/mem"
	"efskernel/vm"
)

func newPhys(t *testing.T) *mem.Physmem_t {
	t.Helper()
	return mem.NewPhysmem(uint64(config.MemoryEnd) / mem.PageSize)
}

func TestPidAllocatorRecyclesAndRejectsDoubleFree(t *testing.T) {
	p := NewPidAllocator()
	a := p.Alloc()
	b := p.Alloc()
	if a == b {
		t.Fatalf("expected distinct pids, got %d twice", a)
	}
	p.Dealloc(a)
	c := p.Alloc()
	if c != a {
		t.Fatalf("expected recycled pid %d, got %d", a, c)
	}

	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on double free")
		}
	}()
	p.Dealloc(a)
	p.Dealloc(a)
}

func TestPidAllocatorRejectsNeverAllocated(t *testing.T) {
	p := NewPidAllocator()
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on never-allocated pid")
		}
	}()
	p.Dealloc(999)
}

func TestKernelStackPositionIsBelowTrampolineWithGuardPage(t *testing.T) {
	bottom0, top0 := KernelStackPosition(0)
	bottom1, top1 := KernelStackPosition(1)
	if uint64(top0) != config.Trampoline {
		t.Fatalf("pid 0 stack should top out at the trampoline, got %#x", top0)
	}
	if uint64(bottom0)-uint64(top1) != config.PageSize {
		t.Fatalf("expected one guard page between stacks, got gap %#x", uint64(bottom0)-uint64(top1))
	}
}

func TestFdTableAllocSetGetCloseAndClone(t *testing.T) {
	stdin := fd.NewStdin(bytes.NewReader(nil))
	stdout := fd.NewStdout(&bytes.Buffer{})
	t1 := NewStdioFdTable(stdin, stdout)

	if _, ok := t1.Get(0); !ok {
		t.Fatalf("expected fd 0 (stdin) to be populated")
	}
	fdNum := t1.Alloc()
	if fdNum != 3 {
		t.Fatalf("expected first allocated fd to be 3, got %d", fdNum)
	}
	t1.Set(fdNum, stdout)

	t2 := t1.Clone()
	if !t2.Close(fdNum) {
		t.Fatalf("expected Close on cloned table to succeed")
	}
	if _, ok := t1.Get(fdNum); !ok {
		t.Fatalf("closing the clone's fd must not affect the original table")
	}
}

func TestForkProducesIndependentAddressSpaceSharingFds(t *testing.T) {
	phys := newPhys(t)
	kernelSpace, trampolinePpn, ok := vm.NewKernel(phys)
	if !ok {
		t.Fatalf("NewKernel failed")
	}
	ms, ok := vm.NewBare(phys)
	if !ok {
		t.Fatalf("NewBare failed")
	}
	pids := NewPidAllocator()
	stdin := fd.NewStdin(bytes.NewReader(nil))
	stdout := fd.NewStdout(&bytes.Buffer{})
	parent := New(pids, kernelSpace, ms, 0, 0, stdin, stdout)

	child, ok := parent.Fork(pids, kernelSpace, trampolinePpn)
	if !ok {
		t.Fatalf("Fork failed")
	}
	if child.Pid == parent.Pid {
		t.Fatalf("child must have a distinct pid")
	}
	if len(parent.Children) != 1 || parent.Children[0] != child {
		t.Fatalf("expected parent to record child")
	}
	if child.Parent != parent {
		t.Fatalf("expected child.Parent == parent")
	}
	if child.Fds == parent.Fds {
		t.Fatalf("expected fd tables to be distinct (shallow-copied) instances")
	}
	if child.MemorySet == parent.MemorySet {
		t.Fatalf("expected child to get its own address space")
	}
	parentOut, _ := parent.Fds.Get(1)
	childOut, _ := child.Fds.Get(1)
	if parentOut != childOut {
		t.Fatalf("expected child to share the parent's open files")
	}
}
