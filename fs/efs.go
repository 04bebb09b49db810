package fs

import (
	"fmt"
	"sync"
)

// EasyFileSystem owns the whole-disk layout: the superblock geometry and
// the two bitmap allocators, and is the factory for Inode handles
// (spec.md C3/C5, grounded on easy-fs::efs::EasyFileSystem). mu is the
// FS-wide mutex every Inode method takes before touching disk state,
// matching the original's Arc<Mutex<EasyFileSystem>> — one lock per
// mounted filesystem, not a shared global.
type EasyFileSystem struct {
	mu   sync.Mutex
	dev  BlockDevice
	cm   *CacheManager
	sb   SuperBlock
	ibmp *Bitmap
	dbmp *Bitmap
}

const inodeBitmapStart = 1

// Create lays out a fresh filesystem across totalBlocks blocks with
// inodeBitmapBlocks blocks of inode bitmap (and an inode area sized to
// match), zeroes every block, writes the superblock into block 0, and
// initializes inode 0 as the root directory. Matches
// EasyFileSystem::create.
func Create(dev BlockDevice, totalBlocks uint32, inodeBitmapBlocks uint32) *EasyFileSystem {
	cm := NewCacheManager()

	inodeBitmap := NewBitmap(inodeBitmapStart, int(inodeBitmapBlocks))
	inodeNum := uint32(inodeBitmap.Maximum())
	inodeAreaBlocks := (inodeNum*DiskInodeSize + BlockSize - 1) / BlockSize
	inodeTotalBlocks := inodeBitmapBlocks + inodeAreaBlocks

	dataTotalBlocks := totalBlocks - 1 - inodeTotalBlocks
	dataBitmapBlocks := (dataTotalBlocks + BlockBits) / (BlockBits + 1)
	if dataBitmapBlocks == 0 {
		dataBitmapBlocks = 1
	}
	dataAreaBlocks := dataTotalBlocks - dataBitmapBlocks

	dataBitmapStart := 1 + inodeTotalBlocks
	dataBitmap := NewBitmap(int(dataBitmapStart), int(dataBitmapBlocks))

	efs := &EasyFileSystem{
		dev:  dev,
		cm:   cm,
		ibmp: inodeBitmap,
		dbmp: dataBitmap,
	}
	efs.sb.Init(totalBlocks, inodeBitmapBlocks, inodeAreaBlocks, dataBitmapBlocks, dataAreaBlocks)

	for i := uint32(0); i < totalBlocks; i++ {
		c := cm.Get(int(i), dev)
		c.Modify(0, func(buf []byte) {
			for j := range buf {
				buf[j] = 0
			}
		})
		cm.Release(c)
	}
	c0 := cm.Get(0, dev)
	c0.Modify(0, func(buf []byte) { efs.sb.encode(buf) })
	cm.Release(c0)

	rootInode, ok := efs.allocInode()
	if !ok || rootInode != 0 {
		panic(fmt.Sprintf("fs: root inode must be allocation #0, got %d ok=%v", rootInode, ok))
	}
	pos := efs.diskInodePos(rootInode)
	rc := cm.Get(int(pos.block), dev)
	rc.Modify(int(pos.offset), func(buf []byte) {
		var root DiskInode
		root.Init(InodeDirectory)
		encodeDiskInode(&root, buf)
	})
	cm.Release(rc)

	cm.SyncAll()
	return efs
}

// Open mounts an existing filesystem image, validating the superblock
// magic (spec.md §7 "corrupted/unreadable filesystem image"). Matches
// EasyFileSystem::open.
func Open(dev BlockDevice) (*EasyFileSystem, error) {
	cm := NewCacheManager()
	var sb SuperBlock
	c0 := cm.Get(0, dev)
	c0.Read(0, func(buf []byte) { sb.decode(buf) })
	cm.Release(c0)
	if !sb.Valid() {
		return nil, fmt.Errorf("fs: bad superblock magic %#x", sb.Magic)
	}
	inodeTotalBlocks := sb.InodeAreaBlk + sb.InodeBitmapBlk
	ibmp := NewBitmap(inodeBitmapStart, int(sb.InodeBitmapBlk))
	dbmp := NewBitmap(int(1+inodeTotalBlocks), int(sb.DataBitmapBlk))
	return &EasyFileSystem{dev: dev, cm: cm, sb: sb, ibmp: ibmp, dbmp: dbmp}, nil
}

// RootInode returns a handle onto inode #0, the filesystem root
// directory (spec.md §3 "inode 0 is always the root").
func (efs *EasyFileSystem) RootInode() *Inode {
	return efs.inodeAt(0)
}

type inodePos struct {
	block  uint32
	offset uint32
}

func (efs *EasyFileSystem) diskInodePos(inodeID uint32) inodePos {
	perBlock := uint32(InodesPerBlock)
	block := efs.sb.InodeAreaBlk // placeholder unused; computed below
	_ = block
	areaStart := uint32(1) + efs.sb.InodeBitmapBlk
	blk := areaStart + inodeID/perBlock
	off := (inodeID % perBlock) * DiskInodeSize
	return inodePos{block: blk, offset: off}
}

func (efs *EasyFileSystem) allocInode() (uint32, bool) {
	bit, ok := efs.ibmp.Alloc(efs.cm, efs.dev)
	return uint32(bit), ok
}

// allocData grabs one free data block and returns its absolute block id
// (bit index offset by the data area start), matching
// EasyFileSystem::alloc_data.
func (efs *EasyFileSystem) allocData() (uint32, bool) {
	bit, ok := efs.dbmp.Alloc(efs.cm, efs.dev)
	if !ok {
		return 0, false
	}
	return uint32(bit) + efs.dataAreaStart(), true
}

// deallocData frees an absolute data block id, zeroing its contents
// first (matching EasyFileSystem::dealloc_data's defensive clear).
func (efs *EasyFileSystem) deallocData(blockID uint32) {
	c := efs.cm.Get(int(blockID), efs.dev)
	c.Modify(0, func(buf []byte) {
		for i := range buf {
			buf[i] = 0
		}
	})
	efs.cm.Release(c)
	efs.dbmp.Dealloc(efs.cm, efs.dev, int(blockID-efs.dataAreaStart()))
}

func (efs *EasyFileSystem) dataAreaStart() uint32 {
	inodeTotalBlocks := efs.sb.InodeAreaBlk + efs.sb.InodeBitmapBlk
	return 1 + inodeTotalBlocks + efs.sb.DataBitmapBlk
}

func (efs *EasyFileSystem) inodeAt(inodeID uint32) *Inode {
	pos := efs.diskInodePos(inodeID)
	return &Inode{id: inodeID, block: pos.block, offset: pos.offset, efs: efs}
}

func encodeDiskInode(d *DiskInode, buf []byte) {
	putU32(buf[0:], d.Size)
	for i, v := range d.Direct {
		putU32(buf[4+i*4:], v)
	}
	off := 4 + InodeDirectCount*4
	putU32(buf[off:], d.Indirect1)
	putU32(buf[off+4:], d.Indirect2)
	putU32(buf[off+8:], uint32(d.Type))
}

func decodeDiskInode(buf []byte) DiskInode {
	var d DiskInode
	d.Size = getU32(buf[0:])
	for i := range d.Direct {
		d.Direct[i] = getU32(buf[4+i*4:])
	}
	off := 4 + InodeDirectCount*4
	d.Indirect1 = getU32(buf[off:])
	d.Indirect2 = getU32(buf[off+4:])
	d.Type = InodeType(getU32(buf[off+8:]))
	return d
}

func putU32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func getU32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
