package sfs

import (
	"os"
	"strings"
	"testing"

	"github.com/go-test/deep"
	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, e *Entry) *Entry {
	t.Helper()
	buf := e.toBytes()
	got, err := decodeEntry(buf, e.offset)
	require.NoError(t, err)
	return got
}

func TestEntryRoundTripDir(t *testing.T) {
	e := &Entry{kind: kindDir, name: "docs", timestamp: 12345, numCont: numContFor(kindDir, len("docs"))}
	got := roundTrip(t, e)
	require.Equal(t, "docs", got.name)
	require.EqualValues(t, 12345, got.timestamp)
	require.Equal(t, 0, got.numCont)
}

func TestEntryRoundTripFile(t *testing.T) {
	e := &Entry{
		kind: kindFile, name: "a.txt", timestamp: 99,
		startBlock: 10, endBlock: 20, fileLen: 4096,
		numCont: numContFor(kindFile, len("a.txt")),
	}
	got := roundTrip(t, e)
	require.Equal(t, "a.txt", got.name)
	require.EqualValues(t, 10, got.startBlock)
	require.EqualValues(t, 20, got.endBlock)
	require.EqualValues(t, 4096, got.fileLen)
}

func TestEntryRoundTripLongNameWithContinuations(t *testing.T) {
	name := strings.Repeat("x", 93) // fileFirstChars(29) + 64: exactly 1 continuation
	e := &Entry{kind: kindFile, name: name, numCont: numContFor(kindFile, len(name))}
	require.Equal(t, 1, e.numCont)
	got := roundTrip(t, e)
	require.Equal(t, name, got.name)
	require.Equal(t, 1, got.numCont)
}

func TestEntryRoundTripVolumeAndUnusable(t *testing.T) {
	vol := &Entry{kind: kindVolume, name: "myvol", timestamp: 7}
	got := roundTrip(t, vol)
	require.Equal(t, "myvol", got.name)

	unusable := &Entry{kind: kindUnusable, startBlock: 3, endBlock: 9}
	got = roundTrip(t, unusable)
	require.EqualValues(t, 3, got.startBlock)
	require.EqualValues(t, 9, got.endBlock)
}

func TestEntryDecodeRejectsBadChecksum(t *testing.T) {
	e := &Entry{kind: kindStart}
	buf := e.toBytes()
	buf[0] ^= 0xff // corrupt without fixing the checksum
	_, err := decodeEntry(buf, 0)
	require.Error(t, err)
	k, ok := KindOf(err)
	require.True(t, ok)
	require.Equal(t, KindBadChecksum, k)
}

// TestEntryListRoundTripDeep formats a volume, reloads its entry list from
// disk, and diffs the two in-memory lists field by field with go-test/deep,
// which reports exactly which field of which entry drifted instead of just
// "not equal".
func TestEntryListRoundTripDeep(t *testing.T) {
	f, cleanup := tempFileForEntryList(t)
	defer cleanup()

	fs, err := Format(f, FormatOptions{TotalBlocks: 64, RsvdBlocks: 2, BlockExp: 2, VolumeName: "deeptest"})
	require.NoError(t, err)
	require.NoError(t, fs.Mkdir("d"))
	require.NoError(t, fs.Create("d/f"))

	reloaded, err := loadEntryList(f, fs.sb)
	require.NoError(t, err)

	if diff := deep.Equal(snapshotList(fs.entries), snapshotList(reloaded)); diff != nil {
		t.Errorf("entry list did not round-trip through disk: %v", diff)
	}
}

// snapshotList flattens an entry list into exported, link-free records so
// deep.Equal can diff every field.
func snapshotList(l *entryList) []EntrySnapshot {
	var out []EntrySnapshot
	for cur := l.head; cur != nil; cur = cur.next {
		out = append(out, EntrySnapshot{
			Offset:     cur.offset,
			Kind:       publicKind(cur.kind),
			Name:       cur.name,
			NumCont:    cur.numCont,
			StartBlock: cur.startBlock,
			EndBlock:   cur.endBlock,
			FileLen:    cur.fileLen,
			Timestamp:  cur.timestamp,
			ChecksumOK: true,
		})
	}
	return out
}

func tempFileForEntryList(t *testing.T) (*os.File, func()) {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "entrylist-*.img")
	require.NoError(t, err)
	return f, func() { _ = f.Close() }
}

func TestUsableSpaceByKind(t *testing.T) {
	require.Equal(t, 1, (&Entry{kind: kindUnused}).usableSpace())
	require.Equal(t, 3, (&Entry{kind: kindFileDel, numCont: 2}).usableSpace())
	require.Equal(t, 0, (&Entry{kind: kindDir}).usableSpace())
}
