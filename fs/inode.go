package fs

// Inode is a handle onto one on-disk inode: its id, its (block, offset)
// location within the inode area, and the filesystem it belongs to.
// Every operation that touches disk state takes i.efs.mu, the owning
// filesystem's lock, matching easy-fs::vfs::Inode's EasyFileSystem-level
// Mutex (spec.md C6 — "EFS serializes all structural mutation").
type Inode struct {
	id     uint32
	block  uint32
	offset uint32
	efs    *EasyFileSystem
}

func (i *Inode) readDisk(f func(d *DiskInode)) {
	c := i.efs.cm.Get(int(i.block), i.efs.dev)
	c.Read(int(i.offset), func(buf []byte) {
		d := decodeDiskInode(buf)
		f(&d)
	})
	i.efs.cm.Release(c)
}

func (i *Inode) modifyDisk(f func(d *DiskInode)) {
	c := i.efs.cm.Get(int(i.block), i.efs.dev)
	c.Modify(int(i.offset), func(buf []byte) {
		d := decodeDiskInode(buf)
		f(&d)
		encodeDiskInode(&d, buf)
	})
	i.efs.cm.Release(c)
}

// findInodeID looks up name among this (directory) inode's entries,
// returning its inode id, matching Inode::find_inode_id. Caller must
// already hold i.efs.mu.
func (i *Inode) findInodeID(name string) (uint32, bool) {
	var found uint32
	ok := false
	i.readDisk(func(d *DiskInode) {
		count := d.Size / DirEntrySize
		var buf [DirEntrySize]byte
		for n := uint32(0); n < count; n++ {
			d.ReadAt(n*DirEntrySize, buf[:], i.efs.cm, i.efs.dev)
			e := decodeDirEntry(buf[:])
			if e.Name == name {
				found = e.Inode
				ok = true
				return
			}
		}
	})
	return found, ok
}

// Find resolves name within this directory, returning a handle onto the
// child inode, matching Inode::find (spec.md §4.2 "lookups must not
// traverse subdirectories").
func (i *Inode) Find(name string) (*Inode, bool) {
	i.efs.mu.Lock()
	defer i.efs.mu.Unlock()
	id, ok := i.findInodeID(name)
	if !ok {
		return nil, false
	}
	return i.efs.inodeAt(id), true
}

// Ls lists every entry name in this directory, matching Inode::ls.
func (i *Inode) Ls() []string {
	i.efs.mu.Lock()
	defer i.efs.mu.Unlock()
	var names []string
	i.readDisk(func(d *DiskInode) {
		count := d.Size / DirEntrySize
		var buf [DirEntrySize]byte
		for n := uint32(0); n < count; n++ {
			d.ReadAt(n*DirEntrySize, buf[:], i.efs.cm, i.efs.dev)
			names = append(names, decodeDirEntry(buf[:]).Name)
		}
	})
	return names
}

// increaseSize grows a disk inode to newSize, allocating exactly the
// blocks DiskInode.BlocksNeededForGrowth reports, matching
// Inode::increase_size.
func (i *Inode) increaseSize(newSize uint32, d *DiskInode) {
	need := d.BlocksNeededForGrowth(newSize)
	blocks := make([]uint32, 0, need)
	for k := uint32(0); k < need; k++ {
		b, ok := i.efs.allocData()
		if !ok {
			panic("fs: data bitmap exhausted mid-growth")
		}
		blocks = append(blocks, b)
	}
	d.IncreaseSize(newSize, blocks, i.efs.cm, i.efs.dev)
}

// Create makes a new regular file named `name` in this directory and
// returns its handle, or (nil, false) if the name already exists,
// matching Inode::create (spec.md §4.2 edge case "creating over an
// existing name is rejected, not overwritten").
func (i *Inode) Create(name string) (*Inode, bool) {
	i.efs.mu.Lock()
	defer i.efs.mu.Unlock()
	if _, exists := i.findInodeID(name); exists {
		return nil, false
	}
	newID, ok := i.efs.allocInode()
	if !ok {
		return nil, false
	}
	child := i.efs.inodeAt(newID)
	child.modifyDisk(func(d *DiskInode) { d.Init(InodeFile) })

	i.modifyDisk(func(d *DiskInode) {
		oldCount := d.Size / DirEntrySize
		newSize := d.Size + DirEntrySize
		i.increaseSize(newSize, d)
		e := DirEntry{Name: name, Inode: newID}
		enc := e.encode()
		d.WriteAt(oldCount*DirEntrySize, enc[:], i.efs.cm, i.efs.dev)
	})
	i.efs.cm.SyncAll()
	return child, true
}

// ReadAt reads into buf starting at offset, returning bytes read.
func (i *Inode) ReadAt(offset uint32, buf []byte) int {
	i.efs.mu.Lock()
	defer i.efs.mu.Unlock()
	var n int
	i.readDisk(func(d *DiskInode) {
		n = d.ReadAt(offset, buf, i.efs.cm, i.efs.dev)
	})
	return n
}

// WriteAt writes buf at offset, growing the inode first if needed,
// matching Inode::write_at.
func (i *Inode) WriteAt(offset uint32, buf []byte) int {
	i.efs.mu.Lock()
	defer i.efs.mu.Unlock()
	var n int
	i.modifyDisk(func(d *DiskInode) {
		end := offset + uint32(len(buf))
		if end > d.Size {
			i.increaseSize(end, d)
		}
		n = d.WriteAt(offset, buf, i.efs.cm, i.efs.dev)
	})
	i.efs.cm.SyncAll()
	return n
}

// Size returns the current byte length of this inode's contents.
func (i *Inode) Size() uint32 {
	i.efs.mu.Lock()
	defer i.efs.mu.Unlock()
	var sz uint32
	i.readDisk(func(d *DiskInode) { sz = d.Size })
	return sz
}

// IsDirectory reports the inode's type.
func (i *Inode) IsDirectory() bool {
	i.efs.mu.Lock()
	defer i.efs.mu.Unlock()
	var isDir bool
	i.readDisk(func(d *DiskInode) { isDir = d.IsDirectory() })
	return isDir
}

// Clear truncates this inode to zero length, releasing every data block
// it held back to the data bitmap, matching Inode::clear (spec.md §4.2
// "truncation releases every block immediately").
func (i *Inode) Clear() {
	i.efs.mu.Lock()
	defer i.efs.mu.Unlock()
	i.modifyDisk(func(d *DiskInode) {
		released := d.ClearSize(i.efs.cm, i.efs.dev)
		for _, b := range released {
			i.efs.deallocData(b)
		}
	})
	i.efs.cm.SyncAll()
}

// ReadAll reads the whole inode's contents in BlockSize-sized chunks,
// supplementing the original spec's per-offset ReadAt/WriteAt with the
// convenience original_source's os/src/fs/inode.rs::OSInode::read_all
// provides to user-facing file reads.
func (i *Inode) ReadAll() []byte {
	size := i.Size()
	out := make([]byte, size)
	var offset uint32
	for offset < size {
		chunk := out[offset:]
		if len(chunk) > BlockSize {
			chunk = chunk[:BlockSize]
		}
		n := i.ReadAt(offset, chunk)
		if n == 0 {
			break
		}
		offset += uint32(n)
	}
	return out
}
