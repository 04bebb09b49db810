package vm

import (
	"encoding/binary"
	"fmt"

	"efskernel/mem"
)

const ptesPerPage = pageSize / 8 // 512 eight-byte entries per node frame

// PageTable is one sv39 three-level page table: a root physical page
// number plus the frames backing every node it owns, matching
// page_table::PageTable. A table built via FromToken borrows another
// table's root without owning any frames, mirroring
// PageTable::from_token's read-only lookup use.
type PageTable struct {
	phys   *mem.Physmem_t
	root   Ppn_t
	frames []*mem.FrameHandle // empty for a FromToken-borrowed table
}

// New allocates a fresh root frame and an owning, empty page table,
// matching PageTable::new.
func New(phys *mem.Physmem_t) (*PageTable, bool) {
	f, ok := mem.AllocFrame(phys)
	if !ok {
		return nil, false
	}
	return &PageTable{phys: phys, root: paToPpn(f.Pa()), frames: []*mem.FrameHandle{f}}, true
}

// FromToken reconstructs a non-owning view of the table a satp token
// points at, matching PageTable::from_token. Used to translate another
// address space's buffers without taking ownership of its frames.
func FromToken(phys *mem.Physmem_t, satp uint64) *PageTable {
	return &PageTable{phys: phys, root: Ppn_t(satp & ((1 << 44) - 1))}
}

func (t *PageTable) pteArray(ppn Ppn_t) []byte {
	return t.phys.Bytes(ppn.Pa())
}

func readPte(buf []byte, idx uint64) Pte {
	return Pte{bits: binary.LittleEndian.Uint64(buf[idx*8:])}
}

func writePte(buf []byte, idx uint64, p Pte) {
	binary.LittleEndian.PutUint64(buf[idx*8:], p.bits)
}

// findPteCreate walks to vpn's leaf PTE, allocating intermediate node
// frames as needed, matching PageTable::find_pte_create.
func (t *PageTable) findPteCreate(vpn Vpn_t) (buf []byte, idx uint64, ok bool) {
	idxs := vpn.Indexes()
	ppn := t.root
	for level, ix := range idxs {
		buf := t.pteArray(ppn)
		pte := readPte(buf, ix)
		if level == 2 {
			return buf, ix, true
		}
		if !pte.Valid() {
			f, ok := mem.AllocFrame(t.phys)
			if !ok {
				return nil, 0, false
			}
			newPpn := paToPpn(f.Pa())
			writePte(buf, ix, newPte(newPpn, PteV))
			t.frames = append(t.frames, f)
			ppn = newPpn
		} else {
			ppn = pte.Ppn()
		}
	}
	return nil, 0, false
}

// findPte walks to vpn's leaf PTE without creating missing intermediate
// nodes, matching PageTable::find_pte.
func (t *PageTable) findPte(vpn Vpn_t) (buf []byte, idx uint64, ok bool) {
	idxs := vpn.Indexes()
	ppn := t.root
	for level, ix := range idxs {
		b := t.pteArray(ppn)
		pte := readPte(b, ix)
		if level == 2 {
			return b, ix, true
		}
		if !pte.Valid() {
			return nil, 0, false
		}
		ppn = pte.Ppn()
	}
	return nil, 0, false
}

// Map inserts vpn -> ppn with flags|V, panicking if vpn is already
// mapped, matching PageTable::map's assert.
func (t *PageTable) Map(vpn Vpn_t, ppn Ppn_t, flags PteFlags) {
	buf, idx, ok := t.findPteCreate(vpn)
	if !ok {
		panic("vm: out of frames while building page table")
	}
	if readPte(buf, idx).Valid() {
		panic(fmt.Sprintf("vm: vpn %#x already mapped", vpn))
	}
	writePte(buf, idx, newPte(ppn, flags|PteV))
}

// Unmap clears vpn's mapping, panicking if it was not mapped, matching
// PageTable::unmap's assert.
func (t *PageTable) Unmap(vpn Vpn_t) {
	buf, idx, ok := t.findPte(vpn)
	if !ok || !readPte(buf, idx).Valid() {
		panic(fmt.Sprintf("vm: vpn %#x not mapped before unmap", vpn))
	}
	writePte(buf, idx, Pte{})
}

// Translate returns the PTE for vpn, matching PageTable::translate.
func (t *PageTable) Translate(vpn Vpn_t) (Pte, bool) {
	buf, idx, ok := t.findPte(vpn)
	if !ok {
		return Pte{}, false
	}
	pte := readPte(buf, idx)
	if !pte.Valid() {
		return Pte{}, false
	}
	return pte, true
}

// TranslateVa resolves a byte address to its backing physical address,
// matching PageTable::translate_va.
func (t *PageTable) TranslateVa(va Va_t) (mem.Pa_t, bool) {
	pte, ok := t.Translate(va.Floor())
	if !ok {
		return 0, false
	}
	return mem.Pa_t(uint64(pte.Ppn().Pa()) + va.PageOffset()), true
}

// Token packs this table's root PPN into an sv39 satp value, matching
// PageTable::token (`8usize << 60 | root_ppn`).
func (t *PageTable) Token() uint64 {
	return 8<<60 | uint64(t.root)
}

// Release returns every node frame this table owns (root included) to
// the allocator. A no-op on a FromToken-borrowed table, which owns
// nothing.
func (t *PageTable) Release() {
	for _, f := range t.frames {
		f.Release()
	}
	t.frames = nil
}
