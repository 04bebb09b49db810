package fs

import (
	"bytes"
	"testing"

	"github.com/kylelemons/godebug/pretty"
)

func newTestFS(t *testing.T, blocks uint32) *EasyFileSystem {
	t.Helper()
	dev := NewMemDevice(int(blocks))
	return Create(dev, blocks, 1)
}

func TestCreateAndOpenRoundTrip(t *testing.T) {
	dev := NewMemDevice(512)
	efs := Create(dev, 512, 1)
	root := efs.RootInode()
	if !root.IsDirectory() {
		t.Fatal("root inode must be a directory")
	}

	reopened, err := Open(dev)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if diff := pretty.Compare(efs.sb, reopened.sb); diff != "" {
		t.Fatalf("superblock mismatch after reopen (-create +open):\n%s", diff)
	}
}

// TestDataBitmapSizingMatchesOriginalFormula picks a totalBlocks where the
// naive ceiling-division formula (dataTotalBlocks+BlockBits-1)/(BlockBits+1)
// diverges from EasyFileSystem::create's actual
// (data_total_blocks+4096)/4097: dataTotalBlocks=4098 gives 1 under the
// naive formula but 2 under the correct one, stranding the top data block.
func TestDataBitmapSizingMatchesOriginalFormula(t *testing.T) {
	dev := NewMemDevice(5124)
	efs := Create(dev, 5124, 1)
	if efs.sb.DataBitmapBlk != 2 {
		t.Fatalf("DataBitmapBlk = %d, want 2 (dataTotalBlocks=4098 needs ceil-by-packing-ratio, not plain ceiling division)", efs.sb.DataBitmapBlk)
	}
	if efs.sb.DataAreaBlk != 4096 {
		t.Fatalf("DataAreaBlk = %d, want 4096", efs.sb.DataAreaBlk)
	}

	// Every data block up to and including the highest id must be
	// allocatable; under the naive formula the bitmap was one block too
	// small to address the last of them.
	for i := 0; i < int(efs.sb.DataAreaBlk); i++ {
		if _, ok := efs.allocData(); !ok {
			t.Fatalf("allocData failed after %d allocations, want %d available", i, efs.sb.DataAreaBlk)
		}
	}
}

func TestCreateFileAndWriteReadRoundTrip(t *testing.T) {
	efs := newTestFS(t, 4096)
	root := efs.RootInode()

	f, ok := root.Create("hello.txt")
	if !ok {
		t.Fatal("Create failed")
	}
	want := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog\n"), 200)
	if n := f.WriteAt(0, want); n != len(want) {
		t.Fatalf("WriteAt wrote %d bytes, want %d", n, len(want))
	}

	got := f.ReadAll()
	if !bytes.Equal(got, want) {
		t.Fatalf("round-trip mismatch: got %d bytes, want %d", len(got), len(want))
	}
}

func TestCreateDuplicateNameRejected(t *testing.T) {
	efs := newTestFS(t, 4096)
	root := efs.RootInode()

	if _, ok := root.Create("dup"); !ok {
		t.Fatal("first Create should succeed")
	}
	if _, ok := root.Create("dup"); ok {
		t.Fatal("second Create of the same name must fail")
	}
}

func TestFindAndLs(t *testing.T) {
	efs := newTestFS(t, 4096)
	root := efs.RootInode()
	names := []string{"a", "b", "c"}
	for _, n := range names {
		if _, ok := root.Create(n); !ok {
			t.Fatalf("Create(%q) failed", n)
		}
	}

	ls := root.Ls()
	if diff := pretty.Compare(names, ls); diff != "" {
		t.Fatalf("Ls mismatch (-want +got):\n%s", diff)
	}

	for _, n := range names {
		if _, ok := root.Find(n); !ok {
			t.Errorf("Find(%q) failed", n)
		}
	}
	if _, ok := root.Find("missing"); ok {
		t.Error("Find of a nonexistent name should fail")
	}
}

func TestClearReleasesBlocks(t *testing.T) {
	efs := newTestFS(t, 4096)
	root := efs.RootInode()
	f, _ := root.Create("big")
	buf := bytes.Repeat([]byte{0xAB}, BlockSize*40)
	f.WriteAt(0, buf)

	free := efs.dbmp.Maximum()
	f.Clear()
	if f.Size() != 0 {
		t.Fatalf("Size after Clear = %d, want 0", f.Size())
	}
	// Clearing must return every data block: a second large write must
	// succeed without the bitmap reporting exhaustion.
	if n := f.WriteAt(0, buf); n != len(buf) {
		t.Fatalf("WriteAt after Clear wrote %d, want %d", n, len(buf))
	}
	_ = free
}

func TestBitmapAllocDeallocRoundTrip(t *testing.T) {
	dev := NewMemDevice(16)
	cm := NewCacheManager()
	bmp := NewBitmap(0, 16)

	var got []int
	for i := 0; i < 10; i++ {
		bit, ok := bmp.Alloc(cm, dev)
		if !ok {
			t.Fatalf("Alloc %d failed", i)
		}
		got = append(got, bit)
	}
	want := []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	if diff := pretty.Compare(want, got); diff != "" {
		t.Fatalf("allocation order mismatch (-want +got):\n%s", diff)
	}

	bmp.Dealloc(cm, dev, 3)
	bit, ok := bmp.Alloc(cm, dev)
	if !ok || bit != 3 {
		t.Fatalf("Alloc after Dealloc(3) = (%d, %v), want (3, true)", bit, ok)
	}
}

func TestBitmapDoubleFreePanics(t *testing.T) {
	dev := NewMemDevice(16)
	cm := NewCacheManager()
	bmp := NewBitmap(0, 16)
	bmp.Alloc(cm, dev)

	defer func() {
		if recover() == nil {
			t.Fatal("Dealloc of an already-clear bit should panic")
		}
	}()
	bmp.Dealloc(cm, dev, 5)
}

func TestCacheEvictsOldestUnpinnedSlot(t *testing.T) {
	dev := NewMemDevice(MaxCachedBlocks + 4)
	cm := NewCacheManager()

	for i := 0; i < MaxCachedBlocks; i++ {
		c := cm.Get(i, dev)
		cm.Release(c)
	}
	// Pin block 0 so it cannot be evicted; it must survive further misses.
	pinned := cm.Get(0, dev)
	for i := MaxCachedBlocks; i < MaxCachedBlocks+3; i++ {
		c := cm.Get(i, dev)
		cm.Release(c)
	}
	cm.Release(pinned)

	found := false
	for _, c := range cm.order {
		if c.id == 0 {
			found = true
		}
	}
	if !found {
		t.Fatal("pinned block 0 was evicted")
	}
}

func TestCacheExhaustionPanics(t *testing.T) {
	dev := NewMemDevice(MaxCachedBlocks + 1)
	cm := NewCacheManager()

	var pins []*CachedBlock
	for i := 0; i < MaxCachedBlocks; i++ {
		pins = append(pins, cm.Get(i, dev))
	}
	defer func() {
		if recover() == nil {
			t.Fatal("Get beyond the slot budget with every slot pinned should panic")
		}
		for _, p := range pins {
			cm.Release(p)
		}
	}()
	cm.Get(MaxCachedBlocks, dev)
}

func TestDiskInodeAddressingAcrossIndirectTiers(t *testing.T) {
	// direct(28) + indirect1(128) + a few into indirect2.
	const fileBlocks = InodeDirectCount + IndirectEntries + 5
	efs := newTestFS(t, 20000)
	root := efs.RootInode()
	f, _ := root.Create("sparse")

	buf := make([]byte, fileBlocks*BlockSize)
	for i := range buf {
		buf[i] = byte(i)
	}
	if n := f.WriteAt(0, buf); n != len(buf) {
		t.Fatalf("WriteAt wrote %d, want %d", n, len(buf))
	}
	got := f.ReadAll()
	if !bytes.Equal(got, buf) {
		t.Fatal("content mismatch spanning direct/indirect1/indirect2 tiers")
	}
}
