package vm

// PteFlags mirrors the eight sv39 PTE permission/status bits spec.md §6
// lists: V, R, W, X, U, G, A, D.
type PteFlags uint8

const (
	PteV PteFlags = 1 << 0
	PteR PteFlags = 1 << 1
	PteW PteFlags = 1 << 2
	PteX PteFlags = 1 << 3
	PteU PteFlags = 1 << 4
	PteG PteFlags = 1 << 5
	PteA PteFlags = 1 << 6
	PteD PteFlags = 1 << 7
)

// Pte is one page-table-entry value: a physical page number packed with
// its flag byte, matching PageTableEntry::new's `ppn << 10 | flags`.
type Pte struct {
	bits uint64
}

func newPte(ppn Ppn_t, flags PteFlags) Pte {
	return Pte{bits: uint64(ppn)<<10 | uint64(flags)}
}

func (p Pte) Ppn() Ppn_t      { return Ppn_t(p.bits >> 10 & ((1 << 44) - 1)) }
func (p Pte) Flags() PteFlags { return PteFlags(p.bits & 0xff) }
func (p Pte) Valid() bool      { return p.Flags()&PteV != 0 }
func (p Pte) Readable() bool   { return p.Flags()&PteR != 0 }
func (p Pte) Writable() bool   { return p.Flags()&PteW != 0 }
func (p Pte) Executable() bool { return p.Flags()&PteX != 0 }
func (p Pte) User() bool       { return p.Flags()&PteU != 0 }
