package trap

import "testing"

type fakeScheduler struct {
	exited    bool
	exitCode  int
	suspended bool
}

func (f *fakeScheduler) ExitCurrent(exitCode int) {
	f.exited = true
	f.exitCode = exitCode
}

func (f *fakeScheduler) SuspendCurrent() { f.suspended = true }

func TestHandleMemoryFaultExitsWithNegativeTwo(t *testing.T) {
	for _, cause := range []Cause{StoreFault, StorePageFault, InstructionFault, InstructionPageFault, LoadFault, LoadPageFault} {
		f := &fakeScheduler{}
		Handle(cause, f, 0x1000)
		if !f.exited || f.exitCode != -2 {
			t.Fatalf("%v: expected exit -2, got exited=%v code=%d", cause, f.exited, f.exitCode)
		}
	}
}

func TestHandleIllegalInstructionExitsWithNegativeThree(t *testing.T) {
	f := &fakeScheduler{}
	Handle(IllegalInstruction, f, 0)
	if !f.exited || f.exitCode != -3 {
		t.Fatalf("expected exit -3, got exited=%v code=%d", f.exited, f.exitCode)
	}
}

func TestHandleSupervisorTimerSuspends(t *testing.T) {
	f := &fakeScheduler{}
	Handle(SupervisorTimer, f, 0)
	if !f.suspended {
		t.Fatalf("expected SuspendCurrent to be called")
	}
}

func TestHandleUnknownCausePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on UserEnvCall reaching Handle unhandled")
		}
	}()
	Handle(UserEnvCall, &fakeScheduler{}, 0)
}

func TestIsMemoryFault(t *testing.T) {
	faults := []Cause{StoreFault, StorePageFault, InstructionFault, InstructionPageFault, LoadFault, LoadPageFault}
	for _, c := range faults {
		if !c.IsMemoryFault() {
			t.Errorf("%v should be a memory fault", c)
		}
	}
	nonFaults := []Cause{UserEnvCall, IllegalInstruction, SupervisorTimer}
	for _, c := range nonFaults {
		if c.IsMemoryFault() {
			t.Errorf("%v should not be a memory fault", c)
		}
	}
}
