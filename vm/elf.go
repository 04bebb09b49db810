package vm

import (
	"bytes"
	"debug/elf"
	"fmt"

	"efskernel/config"
	"efskernel/mem"
)

// FromElf parses elfData's PT_LOAD segments into a fresh Framed user
// address space, appends a guard page, a user stack, and a trap-context
// page, and returns (address space, user stack top, entry point),
// matching MemorySet::from_elf. Uses the standard library's debug/elf
// rather than a third-party ELF parser — no ELF-parsing dependency
// appears anywhere in the retrieval pack to ground an import on (see
// DESIGN.md).
func FromElf(phys *mem.Physmem_t, trampolinePpn Ppn_t, elfData []byte) (*MemorySet, uint64, uint64, error) {
	ms, ok := NewBare(phys)
	if !ok {
		return nil, 0, 0, fmt.Errorf("vm: out of frames building address space")
	}
	ms.mapTrampoline(trampolinePpn)

	f, err := elf.NewFile(bytes.NewReader(elfData))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("vm: invalid elf: %w", err)
	}

	var maxEndVpn Vpn_t
	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		startVa := Va_t(prog.Vaddr)
		endVa := Va_t(prog.Vaddr + prog.Memsz)
		perm := PermU
		if prog.Flags&elf.PF_R != 0 {
			perm |= PermR
		}
		if prog.Flags&elf.PF_W != 0 {
			perm |= PermW
		}
		if prog.Flags&elf.PF_X != 0 {
			perm |= PermX
		}
		area := NewMapArea(startVa, endVa, MapFramed, perm)
		if area.endVpn > maxEndVpn {
			maxEndVpn = area.endVpn
		}
		data := make([]byte, prog.Filesz)
		if _, err := prog.ReadAt(data, 0); err != nil && prog.Filesz > 0 {
			return nil, 0, 0, fmt.Errorf("vm: reading PT_LOAD segment: %w", err)
		}
		if !ms.push(area, data) {
			return nil, 0, 0, fmt.Errorf("vm: out of frames loading segment")
		}
	}

	maxEndVa := uint64(maxEndVpn.Va())
	userStackBottom := maxEndVa + config.PageSize // guard page
	userStackTop := userStackBottom + config.UserStack

	if !ms.push(NewMapArea(Va_t(userStackBottom), Va_t(userStackTop), MapFramed, PermR|PermW|PermU), nil) {
		return nil, 0, 0, fmt.Errorf("vm: out of frames mapping user stack")
	}
	if !ms.push(NewMapArea(Va_t(config.TrapContext), Va_t(config.Trampoline), MapFramed, PermR|PermW), nil) {
		return nil, 0, 0, fmt.Errorf("vm: out of frames mapping trap context")
	}

	return ms, userStackTop, f.Entry, nil
}
