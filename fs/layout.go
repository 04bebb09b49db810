package fs

import "encoding/binary"

// EFSMagic identifies a valid superblock, spec.md §3.
const EFSMagic = 0x3b800001

// InodeDirect/Indirect fan-out, spec.md §3. A DiskInode is 128 bytes so
// four pack per 512-byte block; an index block holds 128 u32 entries.
const (
	InodeDirectCount = 28
	IndirectEntries  = BlockSize / 4 // u32 per entry
	DiskInodeSize    = 128
	InodesPerBlock   = BlockSize / DiskInodeSize
)

// InodeType distinguishes files from directories, spec.md §3.
type InodeType uint32

const (
	InodeFile InodeType = iota
	InodeDirectory
)

// SuperBlock is the filesystem-wide header occupying block 0, laid out
// exactly as original_source/easy-fs/src/layout.rs's SuperBlock (six
// little-endian u32 fields, C-repr equivalent). Grounded on
// easy-fs::layout::SuperBlock.
type SuperBlock struct {
	Magic          uint32
	TotalBlocks    uint32
	InodeBitmapBlk uint32
	InodeAreaBlk   uint32
	DataBitmapBlk  uint32
	DataAreaBlk    uint32
}

// Init populates every field, mirroring SuperBlock::initialize.
func (s *SuperBlock) Init(total, inodeBitmapBlocks, inodeAreaBlocks, dataBitmapBlocks, dataAreaBlocks uint32) {
	*s = SuperBlock{
		Magic:          EFSMagic,
		TotalBlocks:    total,
		InodeBitmapBlk: inodeBitmapBlocks,
		InodeAreaBlk:   inodeAreaBlocks,
		DataBitmapBlk:  dataBitmapBlocks,
		DataAreaBlk:    dataAreaBlocks,
	}
}

// Valid reports whether the magic number matches, spec.md §3/§7.
func (s *SuperBlock) Valid() bool { return s.Magic == EFSMagic }

func (s *SuperBlock) encode(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:], s.Magic)
	binary.LittleEndian.PutUint32(buf[4:], s.TotalBlocks)
	binary.LittleEndian.PutUint32(buf[8:], s.InodeBitmapBlk)
	binary.LittleEndian.PutUint32(buf[12:], s.InodeAreaBlk)
	binary.LittleEndian.PutUint32(buf[16:], s.DataBitmapBlk)
	binary.LittleEndian.PutUint32(buf[20:], s.DataAreaBlk)
}

func (s *SuperBlock) decode(buf []byte) {
	s.Magic = binary.LittleEndian.Uint32(buf[0:])
	s.TotalBlocks = binary.LittleEndian.Uint32(buf[4:])
	s.InodeBitmapBlk = binary.LittleEndian.Uint32(buf[8:])
	s.InodeAreaBlk = binary.LittleEndian.Uint32(buf[12:])
	s.DataBitmapBlk = binary.LittleEndian.Uint32(buf[16:])
	s.DataAreaBlk = binary.LittleEndian.Uint32(buf[20:])
}

// DiskInode is the on-disk inode: size in bytes, 28 direct block
// pointers, one singly- and one doubly-indirect pointer, and a type tag
// (spec.md §3). Grounded on easy-fs::layout::DiskInode.
type DiskInode struct {
	Size     uint32
	Direct   [InodeDirectCount]uint32
	Indirect1 uint32
	Indirect2 uint32
	Type     InodeType
}

// Init resets the inode to an empty file or directory of the given
// type, matching DiskInode::initialize.
func (d *DiskInode) Init(t InodeType) {
	*d = DiskInode{Type: t}
}

func (d *DiskInode) IsDirectory() bool { return d.Type == InodeDirectory }
func (d *DiskInode) IsFile() bool      { return d.Type == InodeFile }

// dataBlocks returns the number of data blocks needed to hold Size
// bytes, matching DiskInode::data_blocks.
func (d *DiskInode) dataBlocks() uint32 {
	return blocksNeeded(d.Size)
}

func blocksNeeded(size uint32) uint32 {
	return (size + BlockSize - 1) / BlockSize
}

// totalBlocks returns the number of blocks (data + index) a file of
// `size` bytes occupies, matching DiskInode::total_blocks.
func totalBlocks(size uint32) uint32 {
	dataBlocks := blocksNeeded(size)
	total := dataBlocks
	if dataBlocks > InodeDirectCount {
		total++ // indirect1 block itself
	}
	if dataBlocks > InodeDirectCount+IndirectEntries {
		total++ // indirect2 block itself
		// indirect2 level-1 index blocks
		extra := dataBlocks - InodeDirectCount - IndirectEntries
		total += (extra + IndirectEntries - 1) / IndirectEntries
	}
	return total
}

// BlocksNeededForGrowth returns how many additional blocks must be
// allocated to grow this inode from its current size to newSize,
// matching DiskInode::blocks_num_needed.
func (d *DiskInode) BlocksNeededForGrowth(newSize uint32) uint32 {
	return totalBlocks(newSize) - totalBlocks(d.Size)
}

// GetBlockID resolves the innerID'th data block of this file to an
// absolute block id, walking direct/indirect1/indirect2 exactly as
// DiskInode::get_block_id, fetching index blocks through cm/dev.
func (d *DiskInode) GetBlockID(innerID uint32, cm *CacheManager, dev BlockDevice) uint32 {
	if innerID < InodeDirectCount {
		return d.Direct[innerID]
	}
	innerID -= InodeDirectCount
	if innerID < IndirectEntries {
		var id uint32
		c := cm.Get(int(d.Indirect1), dev)
		c.Read(0, func(buf []byte) {
			id = binary.LittleEndian.Uint32(buf[innerID*4:])
		})
		cm.Release(c)
		return id
	}
	innerID -= IndirectEntries
	l1 := innerID / IndirectEntries
	l2 := innerID % IndirectEntries
	var l1Block uint32
	c := cm.Get(int(d.Indirect2), dev)
	c.Read(0, func(buf []byte) {
		l1Block = binary.LittleEndian.Uint32(buf[l1*4:])
	})
	cm.Release(c)
	var id uint32
	c2 := cm.Get(int(l1Block), dev)
	c2.Read(0, func(buf []byte) {
		id = binary.LittleEndian.Uint32(buf[l2*4:])
	})
	cm.Release(c2)
	return id
}

// IncreaseSize grows the inode to newSize, consuming block ids from
// newBlocks in order to populate direct/indirect1/indirect2 entries (an
// index block takes the next id in newBlocks at the point the walk first
// needs it), matching DiskInode::increase_size.
func (d *DiskInode) IncreaseSize(newSize uint32, newBlocks []uint32, cm *CacheManager, dev BlockDevice) {
	current := d.dataBlocks()
	d.Size = newSize
	total := d.dataBlocks()
	idx := 0

	for current < total && current < InodeDirectCount {
		d.Direct[current] = newBlocks[idx]
		idx++
		current++
	}
	if total <= InodeDirectCount {
		return
	}

	if current == InodeDirectCount {
		d.Indirect1 = newBlocks[idx]
		idx++
	}
	current -= InodeDirectCount
	total -= InodeDirectCount
	c := cm.Get(int(d.Indirect1), dev)
	c.Modify(0, func(buf []byte) {
		for current < total && current < IndirectEntries {
			binary.LittleEndian.PutUint32(buf[current*4:], newBlocks[idx])
			idx++
			current++
		}
	})
	cm.Release(c)
	if total <= IndirectEntries {
		return
	}

	if current == IndirectEntries {
		d.Indirect2 = newBlocks[idx]
		idx++
	}
	current -= IndirectEntries
	total -= IndirectEntries
	a0 := current / IndirectEntries
	b0 := current % IndirectEntries
	a1 := total / IndirectEntries
	b1 := total % IndirectEntries

	c2 := cm.Get(int(d.Indirect2), dev)
	for a0 < a1 || (a0 == a1 && b0 < b1) {
		var l1Block uint32
		needNew := b0 == 0
		c2.Modify(0, func(buf []byte) {
			if needNew {
				l1Block = newBlocks[idx]
				idx++
				binary.LittleEndian.PutUint32(buf[a0*4:], l1Block)
			} else {
				l1Block = binary.LittleEndian.Uint32(buf[a0*4:])
			}
		})
		l1 := cm.Get(int(l1Block), dev)
		hi := IndirectEntries
		if a0 == a1 {
			hi = b1
		}
		l1.Modify(0, func(buf []byte) {
			for b0 < hi {
				binary.LittleEndian.PutUint32(buf[b0*4:], newBlocks[idx])
				idx++
				b0++
			}
		})
		cm.Release(l1)
		if b0 >= IndirectEntries {
			b0 = 0
			a0++
		}
	}
	cm.Release(c2)
}

// ClearSize empties the inode, releasing every block id it referenced
// into released (which the caller deallocates via the data bitmap),
// matching DiskInode::clear_size.
func (d *DiskInode) ClearSize(cm *CacheManager, dev BlockDevice) []uint32 {
	var released []uint32
	total := d.dataBlocks()
	current := uint32(0)

	for current < total && current < InodeDirectCount {
		released = append(released, d.Direct[current])
		d.Direct[current] = 0
		current++
	}
	if total > InodeDirectCount {
		current -= InodeDirectCount
		total -= InodeDirectCount
	} else {
		d.Size = 0
		return released
	}

	c := cm.Get(int(d.Indirect1), dev)
	c.Read(0, func(buf []byte) {
		for current < total && current < IndirectEntries {
			released = append(released, binary.LittleEndian.Uint32(buf[current*4:]))
			current++
		}
	})
	cm.Release(c)
	if total > IndirectEntries {
		released = append(released, d.Indirect1)
		d.Indirect1 = 0
		current -= IndirectEntries
		total -= IndirectEntries
	} else {
		released = append(released, d.Indirect1)
		d.Indirect1 = 0
		d.Size = 0
		return released
	}

	a1 := total / IndirectEntries
	b1 := total % IndirectEntries
	c2 := cm.Get(int(d.Indirect2), dev)
	c2.Read(0, func(buf []byte) {
		for a0 := uint32(0); a0 < a1; a0++ {
			l1Block := binary.LittleEndian.Uint32(buf[a0*4:])
			l1 := cm.Get(int(l1Block), dev)
			l1.Read(0, func(ibuf []byte) {
				for b0 := 0; b0 < IndirectEntries; b0++ {
					released = append(released, binary.LittleEndian.Uint32(ibuf[b0*4:]))
				}
			})
			cm.Release(l1)
			released = append(released, l1Block)
		}
		if b1 > 0 {
			l1Block := binary.LittleEndian.Uint32(buf[a1*4:])
			l1 := cm.Get(int(l1Block), dev)
			l1.Read(0, func(ibuf []byte) {
				for b0 := uint32(0); b0 < b1; b0++ {
					released = append(released, binary.LittleEndian.Uint32(ibuf[b0*4:]))
				}
			})
			cm.Release(l1)
			released = append(released, l1Block)
		}
	})
	cm.Release(c2)
	released = append(released, d.Indirect2)
	d.Indirect2 = 0
	d.Size = 0
	return released
}

// ReadAt copies min(len(buf), Size-offset) bytes starting at offset into
// buf, returning the number of bytes read, matching DiskInode::read_at.
func (d *DiskInode) ReadAt(offset uint32, buf []byte, cm *CacheManager, dev BlockDevice) int {
	if offset >= d.Size {
		return 0
	}
	end := offset + uint32(len(buf))
	if end > d.Size {
		end = d.Size
	}
	var read int
	startBlock := offset / BlockSize
	for cur := offset; cur < end; {
		blockEnd := min32((cur/BlockSize+1)*BlockSize, end)
		dst := buf[read : read+int(blockEnd-cur)]
		blockID := d.GetBlockID(cur/BlockSize, cm, dev)
		c := cm.Get(int(blockID), dev)
		inner := cur % BlockSize
		c.Read(0, func(b []byte) {
			copy(dst, b[inner:inner+uint32(len(dst))])
		})
		cm.Release(c)
		read += len(dst)
		cur = blockEnd
	}
	_ = startBlock
	return read
}

// WriteAt writes buf at offset, which must lie within the inode's
// current Size (callers grow the inode first), matching
// DiskInode::write_at.
func (d *DiskInode) WriteAt(offset uint32, buf []byte, cm *CacheManager, dev BlockDevice) int {
	end := offset + uint32(len(buf))
	if end > d.Size {
		end = d.Size
	}
	var written int
	for cur := offset; cur < end; {
		blockEnd := min32((cur/BlockSize+1)*BlockSize, end)
		src := buf[written : written+int(blockEnd-cur)]
		blockID := d.GetBlockID(cur/BlockSize, cm, dev)
		c := cm.Get(int(blockID), dev)
		inner := cur % BlockSize
		c.Modify(0, func(b []byte) {
			copy(b[inner:inner+uint32(len(src))], src)
		})
		cm.Release(c)
		written += len(src)
		cur = blockEnd
	}
	return written
}

func min32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}

// DirEntryName is the fixed name-field width in a DirEntry, spec.md §3
// (28 bytes name + 4 bytes inode number = 32-byte DirEntry).
const DirEntryName = 28

// DirEntrySize is the on-disk size of one directory entry.
const DirEntrySize = DirEntryName + 4

// DirEntry is one (name, inode number) pair within a directory's byte
// stream, matching easy-fs::layout::DirEntry.
type DirEntry struct {
	Name  string
	Inode uint32
}

func (e DirEntry) encode() [DirEntrySize]byte {
	var buf [DirEntrySize]byte
	n := copy(buf[:DirEntryName], e.Name)
	_ = n
	binary.LittleEndian.PutUint32(buf[DirEntryName:], e.Inode)
	return buf
}

func decodeDirEntry(buf []byte) DirEntry {
	nameEnd := 0
	for nameEnd < DirEntryName && buf[nameEnd] != 0 {
		nameEnd++
	}
	return DirEntry{
		Name:  string(buf[:nameEnd]),
		Inode: binary.LittleEndian.Uint32(buf[DirEntryName:]),
	}
}
