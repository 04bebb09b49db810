package kernel

import (
	"bytes"
	"sync/atomic"
	"testing"
	"time"

	"efskernel/fd"
	"efskernel/fs"
	"efskernel/scall"
)

func newTestKernel(t *testing.T) *Kernel {
	t.Helper()
	dev := fs.NewMemDevice(4096)
	k, err := Boot(dev, 4096, 1, 50)
	if err != nil {
		t.Fatalf("Boot: %v", err)
	}
	return k
}

func stdio() (fd.File, fd.File) {
	return fd.NewStdin(bytes.NewReader(nil)), fd.NewStdout(&bytes.Buffer{})
}

// TestForkExitWait exercises spec.md §8's E4 scenario: a task forks a
// child, the child exits with a distinct code, and the parent's
// non-blocking WaitPid eventually reaps it.
func TestForkExitWait(t *testing.T) {
	k := newTestKernel(t)
	stdin, stdout := stdio()

	var sawChildPid int64
	var sawExitCode int32

	parentBody := func(sc *scall.Syscalls) int {
		childPid := sc.Fork(func(csc *scall.Syscalls) int {
			return 42
		})
		if childPid < 0 {
			t.Errorf("fork failed: %d", childPid)
			return -1
		}
		for {
			pid, code := sc.WaitPid(childPid)
			if pid == -2 {
				sc.Yield()
				continue
			}
			sawChildPid = pid
			sawExitCode = code
			break
		}
		return 0
	}

	if _, err := k.SpawnBody(parentBody, stdin, stdout); err != nil {
		t.Fatalf("SpawnBody: %v", err)
	}
	k.Run()

	if sawChildPid <= 0 {
		t.Fatalf("expected a reaped child pid, got %d", sawChildPid)
	}
	if sawExitCode != 42 {
		t.Fatalf("expected exit code 42, got %d", sawExitCode)
	}
}

// TestWaitPidNoChildReturnsMinusOne checks the non-blocking waitpid
// contract: no matching child at all reports -1 immediately.
func TestWaitPidNoChildReturnsMinusOne(t *testing.T) {
	k := newTestKernel(t)
	stdin, stdout := stdio()

	var result int64ResultBox
	body := func(sc *scall.Syscalls) int {
		pid, _ := sc.WaitPid(-1)
		result.v = pid
		return 0
	}
	if _, err := k.SpawnBody(body, stdin, stdout); err != nil {
		t.Fatalf("SpawnBody: %v", err)
	}
	k.Run()
	if result.v != -1 {
		t.Fatalf("expected -1, got %d", result.v)
	}
}

type int64ResultBox struct{ v int64 }

// TestSchedulerRoundRobinsYieldingTasks checks that two tasks which
// repeatedly yield both make progress rather than one starving the
// other, matching spec.md §5's fairness expectation for Ready tasks.
func TestSchedulerRoundRobinsYieldingTasks(t *testing.T) {
	k := newTestKernel(t)
	stdin1, stdout1 := stdio()
	stdin2, stdout2 := stdio()

	var counterA, counterB int32
	makeBody := func(counter *int32) scall.TaskBody {
		return func(sc *scall.Syscalls) int {
			for i := 0; i < 5; i++ {
				atomic.AddInt32(counter, 1)
				sc.Yield()
			}
			return 0
		}
	}

	if _, err := k.SpawnBody(makeBody(&counterA), stdin1, stdout1); err != nil {
		t.Fatalf("SpawnBody a: %v", err)
	}
	if _, err := k.SpawnBody(makeBody(&counterB), stdin2, stdout2); err != nil {
		t.Fatalf("SpawnBody b: %v", err)
	}
	k.Run()

	if atomic.LoadInt32(&counterA) != 5 || atomic.LoadInt32(&counterB) != 5 {
		t.Fatalf("expected both tasks to run to completion, got a=%d b=%d", counterA, counterB)
	}
}

// TestWriteSyscallExercisesPageTableTranslation drives sys_write through
// a task body, confirming the scratch-heap staging area in scall.io.go
// round-trips bytes through vm.TranslatedByteBuffer correctly.
func TestWriteSyscallExercisesPageTableTranslation(t *testing.T) {
	k := newTestKernel(t)
	out := &bytes.Buffer{}
	stdin := fd.NewStdin(bytes.NewReader(nil))
	stdout := fd.NewStdout(out)

	body := func(sc *scall.Syscalls) int {
		n := sc.Write(1, []byte("hello kernel"))
		if n != int64(len("hello kernel")) {
			return -1
		}
		return 0
	}
	if _, err := k.SpawnBody(body, stdin, stdout); err != nil {
		t.Fatalf("SpawnBody: %v", err)
	}
	k.Run()

	if out.String() != "hello kernel" {
		t.Fatalf("expected %q, got %q", "hello kernel", out.String())
	}
}

// TestCheckPreemptSuspendsAfterQuantum confirms a task looping on
// CheckPreempt alone (without ever calling Yield) still gets suspended
// once its wall-clock quantum elapses, matching the SupervisorTimer path
// of trap.Handle.
func TestCheckPreemptSuspendsAfterQuantum(t *testing.T) {
	dev := fs.NewMemDevice(4096)
	k, err := Boot(dev, 4096, 1, 10)
	if err != nil {
		t.Fatalf("Boot: %v", err)
	}
	stdin, stdout := stdio()

	var loops, otherRan, otherRanBeforeDone int32
	body := func(sc *scall.Syscalls) int {
		deadline := time.Now().Add(200 * time.Millisecond)
		for time.Now().Before(deadline) {
			atomic.AddInt32(&loops, 1)
			sc.CheckPreempt()
		}
		atomic.StoreInt32(&otherRanBeforeDone, atomic.LoadInt32(&otherRan))
		return 0
	}
	other := func(sc *scall.Syscalls) int {
		atomic.StoreInt32(&otherRan, 1)
		return 0
	}
	if _, err := k.SpawnBody(body, stdin, stdout); err != nil {
		t.Fatalf("SpawnBody: %v", err)
	}
	stdin2, stdout2 := stdio()
	if _, err := k.SpawnBody(other, stdin2, stdout2); err != nil {
		t.Fatalf("SpawnBody other: %v", err)
	}
	k.Run()

	if atomic.LoadInt32(&loops) == 0 {
		t.Fatalf("expected task to run at least once")
	}
	if atomic.LoadInt32(&otherRanBeforeDone) != 1 {
		t.Fatalf("expected the looping task to be suspended so the second task ran before it finished")
	}
}
