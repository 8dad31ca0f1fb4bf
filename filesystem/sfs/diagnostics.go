package sfs

// This file exposes a read-only snapshot of the in-memory entry list and
// free list for tools that are not part of the core itself: internal/fsck's
// invariant checker and internal/view's pretty-printer. The core's own
// operations never consult this snapshot; it exists purely so those tools
// can walk the same structures the core already built without reaching
// into unexported fields from another package.

// EntryKind is the public name of an Index Area record's type byte.
type EntryKind string

const (
	KindEntryVolume   EntryKind = "volume"
	KindEntryStart    EntryKind = "start"
	KindEntryUnused   EntryKind = "unused"
	KindEntryDir      EntryKind = "dir"
	KindEntryFile     EntryKind = "file"
	KindEntryUnusable EntryKind = "unusable"
	KindEntryDirDel   EntryKind = "dir-deleted"
	KindEntryFileDel  EntryKind = "file-deleted"
)

func publicKind(k entryKind) EntryKind {
	switch k {
	case kindVolume:
		return KindEntryVolume
	case kindStart:
		return KindEntryStart
	case kindUnused:
		return KindEntryUnused
	case kindDir:
		return KindEntryDir
	case kindFile:
		return KindEntryFile
	case kindUnusable:
		return KindEntryUnusable
	case kindDirDel:
		return KindEntryDirDel
	case kindFileDel:
		return KindEntryFileDel
	default:
		return ""
	}
}

// EntrySnapshot is a read-only copy of one Index Area record.
type EntrySnapshot struct {
	Offset     int64
	Kind       EntryKind
	Name       string
	NumCont    int
	StartBlock uint64
	EndBlock   uint64
	FileLen    uint64
	Timestamp  Timestamp

	// ChecksumOK reports whether the record's encoded bytes carry a valid
	// wrap-around checksum; the live in-memory list is always built from
	// checksum-verified records, so this is true for entries produced by
	// Entries(), but kept explicit so checkers can report on it.
	ChecksumOK bool
}

// EntryBytes is the total on-disk size (header slot plus continuations)
// of the record this snapshot describes.
func (es EntrySnapshot) EntryBytes() int64 {
	return int64(1+es.NumCont) * slotSize
}

// Entries returns a snapshot of every record currently in the Index Area,
// in image-offset order (Start Marker first, Volume ID last).
func (fs *FileSystem) Entries() []EntrySnapshot {
	var out []EntrySnapshot
	for cur := fs.entries.head; cur != nil; cur = cur.next {
		buf := cur.toBytes()
		out = append(out, EntrySnapshot{
			Offset:     cur.offset,
			Kind:       publicKind(cur.kind),
			Name:       cur.name,
			NumCont:    cur.numCont,
			StartBlock: cur.startBlock,
			EndBlock:   cur.endBlock,
			FileLen:    cur.fileLen,
			Timestamp:  cur.timestamp,
			ChecksumOK: verifyChecksum(buf),
		})
	}
	return out
}

// FreeNodeSnapshot is a read-only copy of one free-list node.
type FreeNodeSnapshot struct {
	Start     uint64
	Length    uint64
	Tombstone bool
	// TombstoneOffset is the image offset of the File-deleted entry this
	// node's delfile points at, valid only when Tombstone is true.
	TombstoneOffset int64
}

// FreeNodes returns a snapshot of the free list, ascending by start block.
func (fs *FileSystem) FreeNodes() []FreeNodeSnapshot {
	var out []FreeNodeSnapshot
	for n := fs.free.head; n != nil; n = n.next {
		fns := FreeNodeSnapshot{Start: n.start, Length: n.length}
		if n.delfile != nil {
			fns.Tombstone = true
			fns.TombstoneOffset = n.delfile.offset
		}
		out = append(out, fns)
	}
	return out
}

// RsvdBlocks returns the number of blocks in the Reserved Area.
func (fs *FileSystem) RsvdBlocks() uint64 { return uint64(fs.sb.rsvdBlocks) }

// IndexSize returns the superblock's recorded Index Area size, in bytes.
func (fs *FileSystem) IndexSize() uint64 { return fs.sb.indexSize }

// FirstIndexBlock returns the block number where the Index Area begins.
func (fs *FileSystem) FirstIndexBlock() uint64 { return fs.sb.firstIndexBlock() }

// ImagePath has no stored path on FileSystem (util.File is the abstraction
// actually held); VolumeName reports the decoded Volume ID entry's name.
func (fs *FileSystem) VolumeName() string {
	if fs.entries.tail != nil {
		return fs.entries.tail.name
	}
	return ""
}

// VolumeTimestamp reports the decoded Volume ID entry's timestamp.
func (fs *FileSystem) VolumeTimestamp() Timestamp {
	if fs.entries.tail != nil {
		return fs.entries.tail.timestamp
	}
	return 0
}
