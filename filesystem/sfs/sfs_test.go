package sfs

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

// tempImage returns a fresh *os.File backing a small formatted SFS image,
// with rsvdBlocks reserved blocks and the given total block count.
func tempImage(t *testing.T, totalBlocks uint64, rsvdBlocks uint32) (*FileSystem, func()) {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "sfs-*.img")
	require.NoError(t, err)

	fs, err := Format(f, FormatOptions{
		TotalBlocks: totalBlocks,
		RsvdBlocks:  rsvdBlocks,
		BlockExp:    2, // 1 << (2+7) = 512 bytes/block
		VolumeName:  "testvol",
	})
	require.NoError(t, err)
	return fs, func() { _ = f.Close() }
}

func TestFormatOpenRoundTrip(t *testing.T) {
	fs, cleanup := tempImage(t, 64, 2)
	defer cleanup()

	require.EqualValues(t, 512, fs.sb.blockSize())
	require.False(t, fs.IsDir("anything"))
	require.False(t, fs.IsFile("anything"))
}

func TestMkdirCreateAndLookup(t *testing.T) {
	fs, cleanup := tempImage(t, 64, 2)
	defer cleanup()

	require.NoError(t, fs.Mkdir("d"))
	require.True(t, fs.IsDir("d"))

	require.NoError(t, fs.Create("d/f"))
	require.True(t, fs.IsFile("d/f"))
	require.EqualValues(t, 0, fs.GetFileSize("d/f"))

	require.Error(t, fs.Mkdir("d"))
	require.Error(t, fs.Create("d/f"))

	require.Error(t, fs.Create("nope/f"))
}

// TestCreateGrowShrinkInPlace mirrors the create/grow/shrink scenario: a
// file created fresh should land at the reserved-block boundary, grow in
// place, then shrink back while releasing blocks to the free list.
func TestCreateGrowShrinkInPlace(t *testing.T) {
	fs, cleanup := tempImage(t, 64, 2)
	defer cleanup()

	rsvd := uint64(2)
	require.NoError(t, fs.Create("a"))

	bs := uint64(fs.sb.blockSize())
	require.NoError(t, fs.Resize("a", 3*bs))

	a := fs.findLive("a")
	require.EqualValues(t, rsvd, a.startBlock)
	require.EqualValues(t, rsvd+2, a.endBlock)

	require.NoError(t, fs.Resize("a", bs))
	a = fs.findLive("a")
	require.EqualValues(t, rsvd, a.startBlock)
	require.EqualValues(t, rsvd, a.endBlock)
}

// TestRelocationOnGrow mirrors the relocation scenario: two adjacent
// files, growing the first past the second's blocks forces a relocate.
func TestRelocationOnGrow(t *testing.T) {
	fs, cleanup := tempImage(t, 64, 2)
	defer cleanup()

	bs := uint64(fs.sb.blockSize())
	require.NoError(t, fs.Create("a"))
	require.NoError(t, fs.Create("b"))
	require.NoError(t, fs.Resize("a", 2*bs))
	require.NoError(t, fs.Resize("b", 2*bs))

	aStart := fs.findLive("a").startBlock
	require.NoError(t, fs.Resize("a", 4*bs))
	a := fs.findLive("a")
	require.NotEqual(t, aStart, a.startBlock)
	require.EqualValues(t, 4, a.endBlock-a.startBlock+1)
}

func TestWriteReadRoundTrip(t *testing.T) {
	fs, cleanup := tempImage(t, 64, 2)
	defer cleanup()

	require.NoError(t, fs.Create("f"))
	require.NoError(t, fs.Resize("f", 16))

	data := []byte("0123456789abcdef")
	n, err := fs.Write("f", data, uint64(len(data)), 0)
	require.NoError(t, err)
	require.Equal(t, len(data), n)

	buf := make([]byte, 16)
	n, err = fs.Read("f", buf, 16, 0)
	require.NoError(t, err)
	require.Equal(t, data, buf[:n])

	// Reading at offset == file_len returns 0.
	n, err = fs.Read("f", buf, 16, 16)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestWriteBeyondEndTruncatesShort(t *testing.T) {
	fs, cleanup := tempImage(t, 64, 2)
	defer cleanup()

	require.NoError(t, fs.Create("f"))
	require.NoError(t, fs.Resize("f", 8))

	n, err := fs.Write("f", []byte("0123456789"), 10, 0)
	require.NoError(t, err)
	require.Equal(t, 8, n)
}

func TestDeleteEmptyAndNonEmptyFile(t *testing.T) {
	fs, cleanup := tempImage(t, 64, 2)
	defer cleanup()

	require.NoError(t, fs.Create("empty"))
	require.NoError(t, fs.Delete("empty"))
	require.False(t, fs.IsFile("empty"))

	require.NoError(t, fs.Create("big"))
	require.NoError(t, fs.Resize("big", uint64(fs.sb.blockSize())))
	require.NoError(t, fs.Delete("big"))
	require.False(t, fs.IsFile("big"))

	var found *freeNode
	for n := fs.free.head; n != nil; n = n.next {
		if n.delfile != nil {
			found = n
		}
	}
	require.NotNil(t, found, "expected a delfile node for the deleted file's blocks")
}

// TestTombstoneReuse mirrors the tombstone-reuse scenario: a deleted
// file's Index Area slot becomes reusable while its data blocks stay
// claimed until something else picks them up.
func TestTombstoneReuse(t *testing.T) {
	fs, cleanup := tempImage(t, 64, 2)
	defer cleanup()

	require.NoError(t, fs.Create("a"))
	require.NoError(t, fs.Resize("a", uint64(fs.sb.blockSize())))
	aBlocks := fs.findLive("a").startBlock

	require.NoError(t, fs.Delete("a"))
	require.NoError(t, fs.Create("c"))
	require.True(t, fs.IsFile("c"))

	var delfileStillThere bool
	for n := fs.free.head; n != nil; n = n.next {
		if n.delfile != nil && n.start == aBlocks {
			delfileStillThere = true
		}
	}
	require.True(t, delfileStillThere)
}

func TestDirectoryRenameCarriesChildren(t *testing.T) {
	fs, cleanup := tempImage(t, 64, 2)
	defer cleanup()

	require.NoError(t, fs.Mkdir("d"))
	require.NoError(t, fs.Create("d/x"))
	require.NoError(t, fs.Mkdir("d/y"))
	require.NoError(t, fs.Create("d/y/z"))

	require.NoError(t, fs.Rename("d", "d2", false))

	require.True(t, fs.IsDir("d2"))
	require.True(t, fs.IsFile("d2/x"))
	require.True(t, fs.IsDir("d2/y"))
	require.True(t, fs.IsFile("d2/y/z"))
	require.False(t, fs.IsDir("d"))
}

func TestRenameNoOpWhenEqual(t *testing.T) {
	fs, cleanup := tempImage(t, 64, 2)
	defer cleanup()

	require.NoError(t, fs.Create("f"))
	require.NoError(t, fs.Rename("f", "f", false))
	require.True(t, fs.IsFile("f"))
}

func TestRmdirRefusesNonEmpty(t *testing.T) {
	fs, cleanup := tempImage(t, 64, 2)
	defer cleanup()

	require.NoError(t, fs.Mkdir("p"))
	require.NoError(t, fs.Create("p/f"))

	err := fs.Rmdir("p")
	require.Error(t, err)
	k, ok := KindOf(err)
	require.True(t, ok)
	require.Equal(t, KindNotEmpty, k)

	require.NoError(t, fs.Delete("p/f"))
	require.NoError(t, fs.Rmdir("p"))
	require.False(t, fs.IsDir("p"))
}

func TestFirstNextEnumeratesChildren(t *testing.T) {
	fs, cleanup := tempImage(t, 64, 2)
	defer cleanup()

	require.NoError(t, fs.Mkdir("d"))
	require.NoError(t, fs.Create("d/a"))
	require.NoError(t, fs.Create("d/b"))
	require.NoError(t, fs.Create("top"))

	seen := map[string]bool{}
	for name, ok := fs.First("d"); ok; name, ok = fs.Next() {
		seen[name] = true
	}
	require.Equal(t, map[string]bool{"a": true, "b": true}, seen)

	seen = map[string]bool{}
	for name, ok := fs.First(""); ok; name, ok = fs.Next() {
		seen[name] = true
	}
	require.Equal(t, map[string]bool{"d": true, "top": true}, seen)
}

// TestIndexAreaGrowth mirrors the index-area-growth scenario: once every
// reusable slot is gone, the next create must grow the Index Area.
func TestIndexAreaGrowth(t *testing.T) {
	fs, cleanup := tempImage(t, 512, 2)
	defer cleanup()

	oldIndexSize := fs.sb.indexSize
	oldStartOffset := fs.entries.head.offset

	for i := 0; i < 8; i++ {
		require.NoError(t, fs.Create(string(rune('a'+i))))
	}

	require.Greater(t, fs.sb.indexSize, oldIndexSize)
	require.Less(t, fs.entries.head.offset, oldStartOffset)
}

func TestBoundaryNumCont(t *testing.T) {
	require.Equal(t, 0, numContFor(kindFile, 29))
	require.Equal(t, 1, numContFor(kindFile, 30))
	require.Equal(t, 1, numContFor(kindFile, 93))
	require.Equal(t, 2, numContFor(kindFile, 94))
}

// TestOpenRebuildsFreeListFromDisk populates an image, reopens it from
// the same file, and verifies the rebuilt free list excludes every live
// file's blocks: a reopened volume must never hand out space still
// belonging to live data.
func TestOpenRebuildsFreeListFromDisk(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "sfs-*.img")
	require.NoError(t, err)
	defer f.Close()

	fs, err := Format(f, FormatOptions{
		TotalBlocks: 64,
		RsvdBlocks:  2,
		BlockExp:    2,
		VolumeName:  "reopen",
	})
	require.NoError(t, err)

	bs := uint64(fs.sb.blockSize())
	require.NoError(t, fs.Create("a"))
	require.NoError(t, fs.Resize("a", 2*bs))
	require.NoError(t, fs.Create("b"))
	require.NoError(t, fs.Resize("b", 3*bs))
	require.NoError(t, fs.Create("gone"))
	require.NoError(t, fs.Resize("gone", bs))
	require.NoError(t, fs.Delete("gone"))

	payload := []byte("payload")
	_, err = fs.Write("a", payload, uint64(len(payload)), 0)
	require.NoError(t, err)

	reopened, err := Open(f)
	require.NoError(t, err)

	a := reopened.findLive("a")
	b := reopened.findLive("b")
	require.NotNil(t, a)
	require.NotNil(t, b)

	for _, n := range reopened.FreeNodes() {
		if n.Tombstone || n.Length == 0 {
			continue
		}
		for _, e := range []*Entry{a, b} {
			overlaps := n.Start <= e.endBlock && e.startBlock <= n.Start+n.Length-1
			require.False(t, overlaps,
				"free node [%d,%d) overlaps live file %q [%d,%d]",
				n.Start, n.Start+n.Length, e.name, e.startBlock, e.endBlock)
		}
	}

	// 5 live blocks plus the tombstoned block are not free.
	require.EqualValues(t, reopened.TotalDataBlocks()-6, reopened.FreeBlockCount())

	// A fresh allocation must not land on live blocks, and live content
	// must survive it.
	require.NoError(t, reopened.Create("c"))
	require.NoError(t, reopened.Resize("c", bs))
	c := reopened.findLive("c")
	for _, e := range []*Entry{a, b} {
		overlaps := c.startBlock <= e.endBlock && e.startBlock <= c.endBlock
		require.False(t, overlaps, "new file %q [%d,%d] overlaps live file %q [%d,%d]",
			c.name, c.startBlock, c.endBlock, e.name, e.startBlock, e.endBlock)
	}

	buf := make([]byte, len(payload))
	n, err := reopened.Read("a", buf, uint64(len(payload)), 0)
	require.NoError(t, err)
	require.Equal(t, payload, buf[:n])
}

func TestResizeToZeroFreesAllBlocks(t *testing.T) {
	fs, cleanup := tempImage(t, 64, 2)
	defer cleanup()

	require.NoError(t, fs.Create("f"))
	require.NoError(t, fs.Resize("f", 3*uint64(fs.sb.blockSize())))
	start := fs.findLive("f").startBlock

	require.NoError(t, fs.Resize("f", 0))
	f := fs.findLive("f")
	require.EqualValues(t, start-1, f.endBlock)
}
