// Package klog is the kernel's console logging shim. Biscuit's retrieved
// sources print diagnostics with plain fmt.Printf and have no logging
// framework in their dependency surface (see DESIGN.md); klog keeps that
// register but routes through a standard log.Logger so tests can capture
// kernel output instead of it going straight to stdout.
package klog

import (
	"log"
	"os"
	"sync"
)

var (
	mu  sync.Mutex
	out = log.New(os.Stdout, "", 0)
)

// SetOutput redirects kernel console output, e.g. to a bytes.Buffer in a
// test that needs to assert on a printed diagnostic.
func SetOutput(l *log.Logger) {
	mu.Lock()
	defer mu.Unlock()
	out = l
}

// Printf logs a kernel message with no severity prefix, the register
// used for boot-sequence progress (".text [%#x, %#x)" style lines).
func Printf(format string, args ...any) {
	mu.Lock()
	defer mu.Unlock()
	out.Printf(format, args...)
}

// Kernf logs a "[kernel] ..." diagnostic, the register trap_handler uses
// when it is about to kill a faulting task.
func Kernf(format string, args ...any) {
	Printf("[kernel] "+format, args...)
}
