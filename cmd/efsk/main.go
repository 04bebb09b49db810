// Command efsk boots the kernel against an EFS image and runs the
// program named on the command line to completion, matching
// os/src/main.rs's rust_main entry point (spec.md §9) adapted to a
// hosted process instead of a bare-metal hart.
package main

import (
	"fmt"
	"os"

	"efskernel/fd"
	"efskernel/fs"
	"efskernel/kernel"
	"efskernel/klog"
	"efskernel/scall"
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: efsk <image> <program>\n")
	os.Exit(1)
}

func main() {
	if len(os.Args) != 3 {
		usage()
	}
	imagePath, program := os.Args[1], os.Args[2]

	dev, err := fs.OpenFileDevice(imagePath)
	if err != nil {
		klog.Kernf("opening image %s: %v", imagePath, err)
		os.Exit(1)
	}
	defer dev.Close()

	k, err := kernel.Boot(dev, 0, 0, 10)
	if err != nil {
		klog.Kernf("boot failed: %v", err)
		os.Exit(1)
	}

	stdin := fd.NewStdin(os.Stdin)
	stdout := fd.NewStdout(os.Stdout)

	initBody := runProgram
	if _, err := k.SpawnELF(program, initBody, stdin, stdout); err != nil {
		klog.Kernf("spawning %s: %v", program, err)
		os.Exit(1)
	}

	k.Run()
}

// runProgram is the placeholder TaskBody for the ELF-loaded init task:
// spec.md treats user-program semantics as opaque compiled code this
// kernel only schedules, so the one concrete body it supplies simply
// exits cleanly. A real front end would decode the loaded binary's own
// instruction stream instead of a Go closure — out of scope here, see
// SPEC_FULL.md §4.13.
func runProgram(sc *scall.Syscalls) int {
	sc.Write(1, []byte("efsk: program loaded, no bytecode interpreter wired in\n"))
	return 0
}
