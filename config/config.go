// Package config centralizes the sv39 target constants of spec.md §6.
package config

const (
	PageSize   = 4096
	PageShift  = 12
	UserStack  = 8 * 1024
	KernelStackSize = 8 * 1024
	MemoryEnd  = 0x88000000

	ClockFreq     = 12_500_000 // Hz
	TimerTicksSec = 100

	// sv39: 3 levels of 9-bit VPN indices over a 39-bit VA space.
	VaWidth   = 39
	PpnWidth  = 44
	VpnLevels = 3
	VpnBits   = 9

	// Highest page of the address space holds the trampoline; one page
	// below it holds the per-task trap context.
	Trampoline  = (1 << VaWidth) - PageSize
	TrapContext = Trampoline - PageSize
)

// MMIORange is a physical [base, base+len) window identity-mapped into
// every address space, spec.md §6.
type MMIORange struct {
	Base, Len uint64
}

var MMIO = []MMIORange{
	{Base: 0x00100000, Len: 0x2000},
	{Base: 0x10001000, Len: 0x1000},
}
