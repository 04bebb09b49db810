package vm

import (
	"efskernel/config"
	"efskernel/mem"
)

// MapPermission is the user-facing subset of PteFlags a MapArea carries
// (R/W/X/U), matching memory_set::MapPermission.
type MapPermission uint8

const (
	PermR MapPermission = 1 << 1
	PermW MapPermission = 1 << 2
	PermX MapPermission = 1 << 3
	PermU MapPermission = 1 << 4
)

func (p MapPermission) toPteFlags() PteFlags { return PteFlags(p) }

// MapType distinguishes a MapArea that is identity-mapped (ppn == vpn,
// used for kernel text/MMIO) from one backed by freshly-allocated
// physical frames, matching memory_set::MapType.
type MapType int

const (
	MapIdentical MapType = iota
	MapFramed
)

// MapArea is one contiguous logical segment of an address space: a VPN
// range, its mapping mode and permission bits, and — for Framed areas —
// the frames backing each of its pages, matching memory_set::MapArea.
type MapArea struct {
	startVpn, endVpn Vpn_t
	mapType          MapType
	perm             MapPermission
	frames           map[Vpn_t]*mem.FrameHandle
}

// NewMapArea describes the VPN range [startVa.Floor(), endVa rounded up).
func NewMapArea(startVa, endVa Va_t, mapType MapType, perm MapPermission) *MapArea {
	end := endVa.Floor()
	if endVa.PageOffset() != 0 {
		end++
	}
	return &MapArea{
		startVpn: startVa.Floor(),
		endVpn:   end,
		mapType:  mapType,
		perm:     perm,
		frames:   make(map[Vpn_t]*mem.FrameHandle),
	}
}

func fromAnother(a *MapArea) *MapArea {
	return &MapArea{
		startVpn: a.startVpn, endVpn: a.endVpn,
		mapType: a.mapType, perm: a.perm,
		frames: make(map[Vpn_t]*mem.FrameHandle),
	}
}

func (a *MapArea) mapOne(t *PageTable, vpn Vpn_t, phys *mem.Physmem_t) bool {
	var ppn Ppn_t
	switch a.mapType {
	case MapIdentical:
		ppn = Ppn_t(vpn)
	case MapFramed:
		f, ok := mem.AllocFrame(phys)
		if !ok {
			return false
		}
		a.frames[vpn] = f
		ppn = paToPpn(f.Pa())
	}
	t.Map(vpn, ppn, a.perm.toPteFlags())
	return true
}

func (a *MapArea) unmapOne(t *PageTable, vpn Vpn_t) {
	if a.mapType == MapFramed {
		if f, ok := a.frames[vpn]; ok {
			f.Release()
			delete(a.frames, vpn)
		}
	}
	t.Unmap(vpn)
}

func (a *MapArea) mapAll(t *PageTable, phys *mem.Physmem_t) bool {
	for vpn := a.startVpn; vpn < a.endVpn; vpn++ {
		if !a.mapOne(t, vpn, phys) {
			return false
		}
	}
	return true
}

func (a *MapArea) unmapAll(t *PageTable) {
	for vpn := a.startVpn; vpn < a.endVpn; vpn++ {
		a.unmapOne(t, vpn)
	}
}

// copyData writes data into this area's pages a page at a time, starting
// at the area's first page, matching MapArea::copy_data. The area must
// already be mapped and must be MapFramed.
func (a *MapArea) copyData(t *PageTable, phys *mem.Physmem_t, data []byte) {
	vpn := a.startVpn
	for off := 0; off < len(data); off += pageSize {
		end := off + pageSize
		if end > len(data) {
			end = len(data)
		}
		src := data[off:end]
		f := a.frames[vpn]
		copy(f.Bytes(), src)
		vpn++
	}
}

// MemorySet is one complete address space: its page table plus the
// logical segments (MapAreas) composing it, matching
// memory_set::MemorySet.
type MemorySet struct {
	phys      *mem.Physmem_t
	pageTable *PageTable
	areas     []*MapArea
}

// NewBare constructs an address space with an empty root page table,
// matching MemorySet::new_bare.
func NewBare(phys *mem.Physmem_t) (*MemorySet, bool) {
	pt, ok := New(phys)
	if !ok {
		return nil, false
	}
	return &MemorySet{phys: phys, pageTable: pt}, true
}

// Token returns this address space's satp value.
func (m *MemorySet) Token() uint64 { return m.pageTable.Token() }

// PageTable exposes the underlying table for translation helpers.
func (m *MemorySet) PageTable() *PageTable { return m.pageTable }

// Phys exposes the physical arena this address space's frames are drawn
// from, needed by callers (fork, exec) that must pass it to another
// MemorySet constructor.
func (m *MemorySet) Phys() *mem.Physmem_t { return m.phys }

// InsertFramedArea maps a fresh Framed area over [start, end), optionally
// pre-populated with data, matching MemorySet::insert_framed_area plus
// the push(..., Some(data)) pattern.
func (m *MemorySet) InsertFramedArea(start, end Va_t, perm MapPermission, data []byte) bool {
	return m.push(NewMapArea(start, end, MapFramed, perm), data)
}

func (m *MemorySet) push(area *MapArea, data []byte) bool {
	if !area.mapAll(m.pageTable, m.phys) {
		return false
	}
	if data != nil {
		area.copyData(m.pageTable, m.phys, data)
	}
	m.areas = append(m.areas, area)
	return true
}

// RemoveAreaWithStartVpn unmaps and drops the area beginning at vpn,
// matching MemorySet::remove_area_with_start_vpn.
func (m *MemorySet) RemoveAreaWithStartVpn(vpn Vpn_t) {
	for i, a := range m.areas {
		if a.startVpn == vpn {
			a.unmapAll(m.pageTable)
			m.areas = append(m.areas[:i], m.areas[i+1:]...)
			return
		}
	}
}

// mapTrampoline maps one identity frame at config.Trampoline, matching
// MemorySet::map_trampoline. There is no linker-provided strampoline
// symbol here (trap-entry assembly is out of scope); the frame is
// allocated like any other kernel page and shared by convention at the
// fixed Trampoline VPN.
func (m *MemorySet) mapTrampoline(trampolinePpn Ppn_t) {
	m.pageTable.Map(Va_t(config.Trampoline).Floor(), trampolinePpn, PteR|PteX)
}

// NewKernel builds the kernel's own address space: MMIO windows
// identity-mapped, plus the trampoline, matching MemorySet::new_kernel
// (minus the .text/.rodata/.data/.bss linker-section areas, which have
// no analogue without a real compiled kernel image).
func NewKernel(phys *mem.Physmem_t) (*MemorySet, Ppn_t, bool) {
	ms, ok := NewBare(phys)
	if !ok {
		return nil, 0, false
	}
	trampolineFrame, ok := mem.AllocFrame(phys)
	if !ok {
		return nil, 0, false
	}
	trampolinePpn := paToPpn(trampolineFrame.Pa())
	ms.mapTrampoline(trampolinePpn)
	for _, win := range config.MMIO {
		start := Va_t(win.Base)
		end := Va_t(win.Base + win.Len)
		area := NewMapArea(start, end, MapIdentical, PermR|PermW)
		ms.push(area, nil)
	}
	return ms, trampolinePpn, true
}

// FromExistedUser deep-copies another address space's framed areas,
// sharing the trampoline mapping, matching MemorySet::from_existed_user
// — the basis for fork's copy-on-creation semantics (spec.md §5 fork).
func FromExistedUser(phys *mem.Physmem_t, src *MemorySet, trampolinePpn Ppn_t) (*MemorySet, bool) {
	dst, ok := NewBare(phys)
	if !ok {
		return nil, false
	}
	dst.mapTrampoline(trampolinePpn)
	for _, area := range src.areas {
		newArea := fromAnother(area)
		if !newArea.mapAll(dst.pageTable, phys) {
			return nil, false
		}
		for vpn := area.startVpn; vpn < area.endVpn; vpn++ {
			srcPte, _ := src.pageTable.Translate(vpn)
			dstPte, _ := dst.pageTable.Translate(vpn)
			copy(phys.Bytes(dstPte.Ppn().Pa()), phys.Bytes(srcPte.Ppn().Pa()))
		}
		dst.areas = append(dst.areas, newArea)
	}
	return dst, true
}

// ReleaseAll unmaps every area, returning each Framed area's frames to
// the allocator. Rust relies on MapArea's Drop impl to do this as the
// owning Vec goes out of scope; Go has no destructors, so task exit
// calls this explicitly to avoid leaking frames (spec.md §7 "process
// exit must release every resource the process held").
func (m *MemorySet) ReleaseAll() {
	for _, a := range m.areas {
		a.unmapAll(m.pageTable)
	}
	m.areas = nil
}

// Release tears the whole address space down: every area's frames plus
// the page table's own node frames (including the root).
func (m *MemorySet) Release() {
	m.ReleaseAll()
	m.pageTable.Release()
}

// SelfCheckKernel re-walks every mapped page of a freshly-built kernel
// address space and confirms Translate finds a valid entry for each,
// supplementing the original's ad hoc remap_test with a reusable,
// assertion-based health check (spec.md §8 "page-table bijection").
func (m *MemorySet) SelfCheckKernel() error {
	for _, a := range m.areas {
		for vpn := a.startVpn; vpn < a.endVpn; vpn++ {
			if _, ok := m.pageTable.Translate(vpn); !ok {
				return errSelfCheck(vpn)
			}
		}
	}
	return nil
}

type selfCheckErr Vpn_t

func (e selfCheckErr) Error() string { return "vm: mapped vpn missing from page table" }
func errSelfCheck(vpn Vpn_t) error   { return selfCheckErr(vpn) }
