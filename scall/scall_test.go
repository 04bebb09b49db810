package scall

import (
	"bytes"
	"testing"

	"efskernel/config"
	"efskernel/defs"
	"efskernel/fd"
	"efskernel/fs"
	"efskernel/mem"
	"efskernel/proc"
	"efskernel/vm"
)

type fakeScheduler struct {
	suspendCalls int
	exitCalls    int
	lastExitCode int
	quantumUp    bool
	forked       *proc.TCB
	zombies      map[uint64]*proc.TCB
	reaped       []*proc.TCB
}

func (f *fakeScheduler) ExitCurrent(exitCode int) { f.exitCalls++; f.lastExitCode = exitCode }
func (f *fakeScheduler) SuspendCurrent()          { f.suspendCalls++ }
func (f *fakeScheduler) QuantumExpired() bool     { return f.quantumUp }

func (f *fakeScheduler) ForkChild(parent *proc.TCB, body TaskBody) (*proc.TCB, bool) {
	if f.forked == nil {
		return nil, false
	}
	return f.forked, true
}

func (f *fakeScheduler) FindZombieChild(parent *proc.TCB, pid int64) (*proc.TCB, bool) {
	if f.zombies == nil {
		return nil, false
	}
	if pid == -1 {
		for _, z := range f.zombies {
			return z, true
		}
		return nil, false
	}
	z, ok := f.zombies[uint64(pid)]
	return z, ok
}

func (f *fakeScheduler) ReapChild(parent *proc.TCB, child *proc.TCB) {
	f.reaped = append(f.reaped, child)
}

func newTestSyscalls(t *testing.T, sched Scheduler) (*Syscalls, *proc.TCB) {
	t.Helper()
	phys := mem.NewPhysmem(uint64(config.MemoryEnd) / mem.PageSize)
	kernelSpace, trampolinePpn, ok := vm.NewKernel(phys)
	if !ok {
		t.Fatalf("NewKernel failed")
	}
	ms, ok := vm.NewBare(phys)
	if !ok {
		t.Fatalf("NewBare failed")
	}
	pids := proc.NewPidAllocator()
	stdin := fd.NewStdin(bytes.NewReader(nil))
	stdout := fd.NewStdout(&bytes.Buffer{})
	tcb := proc.New(pids, kernelSpace, ms, 0x1000, 0, stdin, stdout)

	dev := fs.NewMemDevice(4096)
	efs := fs.Create(dev, 4096, 1)
	root := efs.RootInode()

	return New(tcb, sched, root, trampolinePpn), tcb
}

func TestYieldCallsSuspendCurrent(t *testing.T) {
	f := &fakeScheduler{}
	s, _ := newTestSyscalls(t, f)
	if rc := s.Yield(); rc != 0 {
		t.Fatalf("expected 0, got %d", rc)
	}
	if f.suspendCalls != 1 {
		t.Fatalf("expected SuspendCurrent to be called once, got %d", f.suspendCalls)
	}
}

func TestExitCallsExitCurrentWithCode(t *testing.T) {
	f := &fakeScheduler{}
	s, _ := newTestSyscalls(t, f)
	s.Exit(7)
	if f.exitCalls != 1 || f.lastExitCode != 7 {
		t.Fatalf("expected ExitCurrent(7) once, got calls=%d code=%d", f.exitCalls, f.lastExitCode)
	}
}

func TestSbrkGrowsHeapAndReportsOldBreak(t *testing.T) {
	f := &fakeScheduler{}
	s, tcb := newTestSyscalls(t, f)
	before := tcb.HeapEnd

	old, ok := s.Sbrk(4096)
	if !ok {
		t.Fatalf("Sbrk failed")
	}
	if old != before {
		t.Fatalf("expected old break %#x, got %#x", before, old)
	}
	if tcb.HeapEnd != before+4096 {
		t.Fatalf("expected heap end to grow by 4096, got %#x", tcb.HeapEnd)
	}
}

func TestSbrkNonPositiveDeltaIsNoOp(t *testing.T) {
	f := &fakeScheduler{}
	s, tcb := newTestSyscalls(t, f)
	before := tcb.HeapEnd
	old, ok := s.Sbrk(0)
	if !ok || old != before {
		t.Fatalf("expected no-op returning current break")
	}
	if tcb.HeapEnd != before {
		t.Fatalf("heap end must not change on non-positive delta")
	}
}

func TestCheckPreemptSuspendsOnlyWhenQuantumExpired(t *testing.T) {
	f := &fakeScheduler{}
	s, _ := newTestSyscalls(t, f)
	s.CheckPreempt()
	if f.suspendCalls != 0 {
		t.Fatalf("expected no suspend before quantum expires")
	}
	f.quantumUp = true
	s.CheckPreempt()
	if f.suspendCalls != 1 {
		t.Fatalf("expected suspend once quantum expires")
	}
}

func TestWaitPidNoMatchingChildReturnsMinusOne(t *testing.T) {
	f := &fakeScheduler{}
	s, _ := newTestSyscalls(t, f)
	pid, _ := s.WaitPid(-1)
	if pid != -1 {
		t.Fatalf("expected -1, got %d", pid)
	}
}

func TestWaitPidMatchingNonZombieChildReturnsMinusTwo(t *testing.T) {
	f := &fakeScheduler{}
	s, tcb := newTestSyscalls(t, f)
	tcb.Children = append(tcb.Children, &proc.TCB{Pid: 99})
	pid, _ := s.WaitPid(-1)
	if pid != -2 {
		t.Fatalf("expected -2, got %d", pid)
	}
}

func TestWaitPidZombieChildReapsAndReturnsExitCode(t *testing.T) {
	f := &fakeScheduler{zombies: map[uint64]*proc.TCB{}}
	s, _ := newTestSyscalls(t, f)
	zombie := &proc.TCB{Pid: 5, Status: proc.Zombie, ExitCode: 42}
	f.zombies[5] = zombie

	pid, code := s.WaitPid(5)
	if pid != 5 || code != 42 {
		t.Fatalf("expected (5, 42), got (%d, %d)", pid, code)
	}
	if len(f.reaped) != 1 || f.reaped[0] != zombie {
		t.Fatalf("expected ReapChild to be called with the zombie")
	}
}

func TestForkReturnsChildPidOrENOMEM(t *testing.T) {
	f := &fakeScheduler{}
	s, _ := newTestSyscalls(t, f)
	if rc := s.Fork(func(*Syscalls) int { return 0 }); rc != defs.ENOMEM.Rc() {
		t.Fatalf("expected ENOMEM when scheduler can't fork, got %d", rc)
	}

	f.forked = &proc.TCB{Pid: 3}
	if rc := s.Fork(func(*Syscalls) int { return 0 }); rc != 3 {
		t.Fatalf("expected child pid 3, got %d", rc)
	}
}

func TestOpenCreateWriteReadCloseRoundTrip(t *testing.T) {
	f := &fakeScheduler{}
	s, _ := newTestSyscalls(t, f)

	fdNum := s.Open("greeting", defs.O_CREATE|defs.O_RDWR)
	if fdNum < 0 {
		t.Fatalf("Open failed: %d", fdNum)
	}
	n := s.Write(int(fdNum), []byte("hi"))
	if n != 2 {
		t.Fatalf("expected to write 2 bytes, got %d", n)
	}
	rfd := s.Open("greeting", defs.O_RDONLY)
	if rfd < 0 {
		t.Fatalf("reopen failed: %d", rfd)
	}
	got := make([]byte, 2)
	if n := s.Read(int(rfd), got); n != 2 || string(got) != "hi" {
		t.Fatalf("expected to read back %q, got %d bytes %q", "hi", n, got)
	}
	if rc := s.Close(int(fdNum)); rc != 0 {
		t.Fatalf("expected Close to succeed, got %d", rc)
	}
	if rc := s.Close(int(fdNum)); rc != defs.EBADF.Rc() {
		t.Fatalf("expected EBADF on double close, got %d", rc)
	}
}

func TestReadWriteUnreadableOrUnwritableFdReturnsEBADF(t *testing.T) {
	f := &fakeScheduler{}
	s, _ := newTestSyscalls(t, f)
	// fd 0 is stdin: readable, not writable.
	if rc := s.Write(0, []byte("x")); rc != defs.EBADF.Rc() {
		t.Fatalf("expected EBADF writing to stdin, got %d", rc)
	}
	// fd 1 is stdout: writable, not readable.
	if rc := s.Read(1, make([]byte, 1)); rc != defs.EBADF.Rc() {
		t.Fatalf("expected EBADF reading from stdout, got %d", rc)
	}
}
