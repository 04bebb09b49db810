package trap

import (
	"fmt"

	"efskernel/klog"
)

// Scheduler is the narrow callback surface Handle needs from the task
// manager: kill the running task (a memory fault or illegal instruction)
// or suspend it and run the next ready task (a timer tick). Satisfied by
// sched.TaskManager; kept as a local interface so this package does not
// import sched, matching the layering note in SPEC_FULL.md §4.13.
type Scheduler interface {
	ExitCurrent(exitCode int)
	SuspendCurrent()
}

// Handle is the single dispatch point every trap cause passes through,
// matching trap_handler's match statement (minus the UserEnvCall arm,
// which is the syscall path itself and is dispatched by scall.Syscalls
// directly rather than through here — see spec.md §4.8's note that
// UserEnvCall is "the normal case, handled separately").
func Handle(cause Cause, sched Scheduler, badAddr uint64) {
	switch {
	case cause.IsMemoryFault():
		klog.Kernf("%s in application, bad addr = %#x, kernel killed it.", cause, badAddr)
		sched.ExitCurrent(-2)
	case cause == IllegalInstruction:
		klog.Kernf("IllegalInstruction in application, kernel killed it.")
		sched.ExitCurrent(-3)
	case cause == SupervisorTimer:
		sched.SuspendCurrent()
	default:
		panic(fmt.Sprintf("trap: unsupported cause %s", cause))
	}
}
