// Package kernel wires together every other package into a runnable
// system: physical memory, the kernel address space, the EFS-backed
// filesystem, and the task scheduler, matching os/src/main.rs's rust_main
// boot sequence (spec.md §9's init order) and styled after biscuit's
// kernel bootstrap in src/main.go.
package kernel

import (
	"fmt"
	"time"

	"efskernel/config"
	"efskernel/fd"
	"efskernel/fs"
	"efskernel/klog"
	"efskernel/mem"
	"efskernel/proc"
	"efskernel/scall"
	"efskernel/sched"
	"efskernel/vm"
)

// nframes sizes the simulated physical arena to config.MemoryEnd, the
// sv39 target's usable DRAM ceiling.
const nframes = uint64(config.MemoryEnd) / mem.PageSize

// Kernel bundles every booted subsystem, the object cmd/efsk drives.
type Kernel struct {
	Phys          *mem.Physmem_t
	KernelSpace   *vm.MemorySet
	TrampolinePpn vm.Ppn_t
	Dev           fs.BlockDevice
	EFS           *fs.EasyFileSystem
	Root          *fs.Inode
	Pids          *proc.PidAllocator
	Tasks         *sched.TaskManager

	haveInit bool
}

// Boot performs the rust_main sequence: bring up the physical frame
// allocator, build the kernel's own address space, mount (or format) the
// filesystem on dev, and construct an empty task manager. totalBlocks and
// inodeBitmapBlocks are only consulted when dev is unformatted (magic
// mismatch), matching easy_fs::EasyFileSystem::open falling back to
// create. cmd/efsk and cmd/kstat pass zero for both, so they need an
// image already formatted (by cmd/mkfs, which calls fs.Create itself).
func Boot(dev fs.BlockDevice, totalBlocks, inodeBitmapBlocks uint32, quantumMs int) (*Kernel, error) {
	klog.Printf("booting: mapping %d MiB of physical memory", config.MemoryEnd/(1<<20))
	phys := mem.NewPhysmem(nframes)

	kernelSpace, trampolinePpn, ok := vm.NewKernel(phys)
	if !ok {
		return nil, fmt.Errorf("kernel: out of frames building kernel address space")
	}
	if err := kernelSpace.SelfCheckKernel(); err != nil {
		return nil, fmt.Errorf("kernel: self-check failed: %w", err)
	}

	efs, err := fs.Open(dev)
	if err != nil {
		klog.Printf("no existing filesystem found, formatting (%d blocks, %d inode-bitmap blocks)", totalBlocks, inodeBitmapBlocks)
		efs = fs.Create(dev, totalBlocks, inodeBitmapBlocks)
	}
	root := efs.RootInode()

	pids := proc.NewPidAllocator()
	tasks := sched.NewTaskManager(pids, kernelSpace, trampolinePpn, root, time.Duration(quantumMs)*time.Millisecond)

	return &Kernel{
		Phys:          phys,
		KernelSpace:   kernelSpace,
		TrampolinePpn: trampolinePpn,
		Dev:           dev,
		EFS:           efs,
		Root:          root,
		Pids:          pids,
		Tasks:         tasks,
	}, nil
}

// SpawnELF loads path from the root filesystem as a fresh task running
// body once it yields control back through a syscall (matching
// loader::get_app_data_by_name followed by TaskControlBlock::new), and
// enqueues it with the task manager. This is how cmd/efsk starts its
// first ("init") task.
func (k *Kernel) SpawnELF(path string, body scall.TaskBody, stdin, stdout fd.File) (*proc.TCB, error) {
	inode, ok := k.Root.Find(path)
	if !ok {
		return nil, fmt.Errorf("kernel: %s not found", path)
	}
	elfData := fd.NewOSInode(true, false, inode).ReadAll()
	ms, userSp, entry, err := vm.FromElf(k.Phys, k.TrampolinePpn, elfData)
	if err != nil {
		return nil, fmt.Errorf("kernel: loading %s: %w", path, err)
	}
	tcb := proc.New(k.Pids, k.KernelSpace, ms, userSp, entry, stdin, stdout)
	k.Tasks.Spawn(tcb, body)
	k.markInit(tcb)
	return tcb, nil
}

// markInit designates the first task this Kernel ever spawns as the
// orphan-reparenting target, matching os/src/main.rs spawning the
// "initproc" before any other task.
func (k *Kernel) markInit(tcb *proc.TCB) {
	if k.haveInit {
		return
	}
	k.haveInit = true
	k.Tasks.SetInitTask(tcb)
}

// SpawnBody directly enqueues body as a task without an ELF image,
// exercising the same MemorySet::new_bare + task wiring the original
// reserves for kernel-internal tasks (this kernel's tests use this to
// drive TaskBody closures without needing a compiled user binary).
func (k *Kernel) SpawnBody(body scall.TaskBody, stdin, stdout fd.File) (*proc.TCB, error) {
	ms, ok := vm.NewBare(k.Phys)
	if !ok {
		return nil, fmt.Errorf("kernel: out of frames building task address space")
	}
	tcb := proc.New(k.Pids, k.KernelSpace, ms, 0, 0, stdin, stdout)
	k.Tasks.Spawn(tcb, body)
	k.markInit(tcb)
	return tcb, nil
}

// Run drains the ready queue to completion, matching run_tasks's
// top-level scheduling loop.
func (k *Kernel) Run() { k.Tasks.RunTasks() }
