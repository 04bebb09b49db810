// Package vm implements the sv39 three-level software page table, the
// MemorySet/MapArea address-space abstraction, and the user-buffer
// translation helpers spec.md §6 describes, grounded on
// original_source/os/src/mm (page_table.rs, memory_set.rs,
// frame_allocator.rs) and styled after biscuit/src/mem and
// biscuit/src/vm.
package vm

import "efskernel/mem"

// Va_t is a virtual address (spec.md §6: 39-bit VA space, page-offset low
// 12 bits, three 9-bit VPN fields above it).
type Va_t uint64

// Vpn_t is a virtual page number: a Va_t with the page offset shifted out.
type Vpn_t uint64

// Ppn_t is a physical page number, the same numeric space as mem.Pa_t
// shifted right by PageShift.
type Ppn_t uint64

const (
	pageShift = 12
	pageSize  = 1 << pageShift
	vpnMask   = (1 << 9) - 1
)

func (v Va_t) Floor() Vpn_t      { return Vpn_t(uint64(v) >> pageShift) }
func (v Va_t) PageOffset() uint64 { return uint64(v) & (pageSize - 1) }

func (v Vpn_t) Va() Va_t { return Va_t(uint64(v) << pageShift) }

// Indexes returns the three 9-bit VPN indices from root (level 2) to leaf
// (level 0), matching VirtPageNum::indexes.
func (v Vpn_t) Indexes() [3]uint64 {
	x := uint64(v)
	return [3]uint64{
		(x >> 18) & vpnMask,
		(x >> 9) & vpnMask,
		x & vpnMask,
	}
}

func (p Ppn_t) Pa() mem.Pa_t { return mem.Pa_t(uint64(p) << pageShift) }
func paToPpn(pa mem.Pa_t) Ppn_t { return Ppn_t(pa.Ppn()) }
