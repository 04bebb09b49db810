package vm

import "efskernel/mem"

// TranslatedByteBuffer resolves a user-space [ptr, ptr+length) range into
// a sequence of physical-memory slices, one per page crossed, matching
// page_table::translated_byte_buffer. The range must already be mapped.
func TranslatedByteBuffer(t *PageTable, phys *mem.Physmem_t, ptr Va_t, length int) ([][]byte, bool) {
	var segs [][]byte
	start := uint64(ptr)
	end := start + uint64(length)
	for start < end {
		startVa := Va_t(start)
		vpn := startVa.Floor()
		pte, ok := t.Translate(vpn)
		if !ok {
			return nil, false
		}
		nextPageVa := uint64(vpn+1) << pageShift
		endOfRange := end
		if nextPageVa < endOfRange {
			endOfRange = nextPageVa
		}
		page := phys.Bytes(pte.Ppn().Pa())
		lo := startVa.PageOffset()
		hi := lo + (endOfRange - start)
		segs = append(segs, page[lo:hi])
		start = endOfRange
	}
	return segs, true
}

// TranslatedStr reads a NUL-terminated string starting at ptr, matching
// page_table::translated_str.
func TranslatedStr(t *PageTable, phys *mem.Physmem_t, ptr Va_t) (string, bool) {
	var out []byte
	va := ptr
	for {
		pa, ok := t.TranslateVa(va)
		if !ok {
			return "", false
		}
		b := phys.Bytes(pa)[0]
		if b == 0 {
			return string(out), true
		}
		out = append(out, b)
		va++
	}
}

// UserBuffer is a translated user-space buffer viewed as a flat byte
// stream spanning one or more physical pages, matching
// page_table::UserBuffer. fd.File implementations read/write through
// this rather than touching the physical arena directly.
type UserBuffer struct {
	segments [][]byte
}

// NewUserBuffer wraps pre-translated physical segments.
func NewUserBuffer(segments [][]byte) *UserBuffer { return &UserBuffer{segments: segments} }

// Len returns the total byte length across every segment.
func (u *UserBuffer) Len() int {
	n := 0
	for _, s := range u.segments {
		n += len(s)
	}
	return n
}

// Read copies from the user buffer into dst, returning bytes copied.
func (u *UserBuffer) Read(dst []byte) int {
	n := 0
	for _, s := range u.segments {
		if n >= len(dst) {
			break
		}
		n += copy(dst[n:], s)
	}
	return n
}

// Write copies src into the user buffer, returning bytes copied.
func (u *UserBuffer) Write(src []byte) int {
	n := 0
	for _, s := range u.segments {
		if n >= len(src) {
			break
		}
		n += copy(s, src[n:])
	}
	return n
}
