// Package sched implements the single-hart cooperative+preemptive task
// scheduler (spec.md C12), grounded on original_source's os/src/task
// (manager.rs, processor.rs) and styled after biscuit/src/sched. Every
// task body runs on its own goroutine, but RunTasks hands exactly one of
// them the "baton" at a time via an unbuffered channel — the Go-native
// equivalent of __switch's saved-context handoff (SPEC_FULL.md §4.13).
package sched

import (
	"sync"
	"time"

	"efskernel/fs"
	"efskernel/proc"
	"efskernel/scall"
	"efskernel/vm"
)

type entry struct {
	tcb          *proc.TCB
	body         scall.TaskBody
	sc           *scall.Syscalls
	cont         chan struct{}
	finished     chan struct{}
	quantumStart time.Time
}

// TaskManager is the scheduler: a FIFO ready queue of entries plus the
// kernel-wide context every task's Syscalls handle needs, matching
// task::manager::TaskManager + task::processor::Processor combined (the
// original splits "queue of ready tasks" from "currently running task"
// across two structs; one struct is simpler here since Go doesn't need
// Processor's per-hart isolation for a single-hart kernel).
type TaskManager struct {
	mu sync.Mutex

	pids          *proc.PidAllocator
	kernelSpace   *vm.MemorySet
	trampolinePpn vm.Ppn_t
	root          *fs.Inode
	quantum       time.Duration

	ready    []*entry
	byPid    map[uint64]*entry
	current  *entry
	initTask *proc.TCB
	schedCh  chan struct{}
}

// NewTaskManager constructs an empty scheduler. quantum is the wall-time
// slice CheckPreempt uses to decide a SupervisorTimer tick has elapsed,
// standing in for config.TimerTicksSec's hardware timer period.
func NewTaskManager(pids *proc.PidAllocator, kernelSpace *vm.MemorySet, trampolinePpn vm.Ppn_t, root *fs.Inode, quantum time.Duration) *TaskManager {
	return &TaskManager{
		pids:          pids,
		kernelSpace:   kernelSpace,
		trampolinePpn: trampolinePpn,
		root:          root,
		quantum:       quantum,
		byPid:         make(map[uint64]*entry),
		schedCh:       make(chan struct{}),
	}
}

// Spawn registers tcb as a new ready task running body, matching
// manager::add_task, and starts its goroutine parked on its own baton
// channel.
func (tm *TaskManager) Spawn(tcb *proc.TCB, body scall.TaskBody) {
	e := &entry{
		tcb:      tcb,
		body:     body,
		cont:     make(chan struct{}),
		finished: make(chan struct{}),
	}
	e.sc = scall.New(tcb, tm, tm.root, tm.trampolinePpn)

	tm.mu.Lock()
	tm.byPid[tcb.Pid] = e
	tm.ready = append(tm.ready, e)
	tm.mu.Unlock()

	go tm.runEntry(e)
}

// SetInitTask designates tcb as the reparenting target for orphaned
// children, matching spec.md §4.9's "move children to the init process".
// Must be called once, after spawning the first task.
func (tm *TaskManager) SetInitTask(tcb *proc.TCB) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.initTask = tcb
}

func (tm *TaskManager) runEntry(e *entry) {
	defer close(e.finished)
	<-e.cont
	code := e.body(e.sc)
	tm.ExitCurrent(code)
}

// RunTasks drives the ready queue to completion: pop the oldest ready
// task, hand it the baton, block until it yields/exits/is preempted,
// repeat. Returns once no task is ready to run, matching run_tasks's
// idle-when-empty behavior (spec.md §5 "at most one task Running").
func (tm *TaskManager) RunTasks() {
	for {
		tm.mu.Lock()
		if len(tm.ready) == 0 {
			tm.mu.Unlock()
			return
		}
		e := tm.ready[0]
		tm.ready = tm.ready[1:]
		e.tcb.Lock()
		e.tcb.Status = proc.Running
		e.tcb.Unlock()
		e.quantumStart = time.Now()
		tm.current = e
		tm.mu.Unlock()

		e.cont <- struct{}{}
		<-tm.schedCh
	}
}
