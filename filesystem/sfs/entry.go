package sfs

import (
	"bytes"
	"math"
)

// entryKind is the on-disk type byte of an Index Area record. Modeled as a
// tagged variant rather than a union: payload fields unrelated to a given
// kind are simply left zero.
type entryKind uint8

const (
	kindVolume   entryKind = 0x01
	kindStart    entryKind = 0x02
	kindUnused   entryKind = 0x10
	kindDir      entryKind = 0x11
	kindFile     entryKind = 0x12
	kindUnusable entryKind = 0x18
	kindDirDel   entryKind = 0x19
	kindFileDel  entryKind = 0x1a
)

const (
	slotSize = 64

	volumeNameLen  = 52
	dirFirstChars  = 53
	fileFirstChars = 29
)

// Entry is one logical Index Area record, possibly spanning multiple
// 64-byte continuation slots.
type Entry struct {
	kind    entryKind
	offset  int64
	numCont int

	timestamp Timestamp
	name      string

	startBlock uint64
	endBlock   uint64
	fileLen    uint64

	next *Entry
}

func (e *Entry) isDir() bool       { return e.kind == kindDir }
func (e *Entry) isFile() bool      { return e.kind == kindFile }
func (e *Entry) isDirDel() bool    { return e.kind == kindDirDel }
func (e *Entry) isFileDel() bool   { return e.kind == kindFileDel }
func (e *Entry) isUnused() bool    { return e.kind == kindUnused }
func (e *Entry) isUnusable() bool  { return e.kind == kindUnusable }
func (e *Entry) isStart() bool     { return e.kind == kindStart }
func (e *Entry) isVolume() bool    { return e.kind == kindVolume }
func (e *Entry) isTombstone() bool { return e.isDirDel() || e.isFileDel() }
func (e *Entry) isLiveDir() bool   { return e.isDir() }
func (e *Entry) isLiveFile() bool  { return e.isFile() }

// Name returns the entry's path name (directories and files only).
func (e *Entry) Name() string { return e.name }

// Timestamp returns the entry's recorded time.
func (e *Entry) Timestamp() Timestamp { return e.timestamp }

// FileLen returns the recorded length of a file entry.
func (e *Entry) FileLen() uint64 { return e.fileLen }

// slotCount is 1 + num_cont: the number of 64-byte records this entry
// physically occupies.
func (e *Entry) slotCount() int {
	if e.isDir() || e.isFile() || e.isDirDel() || e.isFileDel() {
		return 1 + e.numCont
	}
	return 1
}

// entryBytes is the total on-disk size of the entry, continuations
// included.
func (e *Entry) entryBytes() int64 {
	return int64(e.slotCount()) * slotSize
}

// usableSpace is how many 64-byte slots insert_entry may claim from this
// entry when scanning for a reusable run: 1 for Unused, 1+num_cont for a
// tombstone, 0 otherwise.
func (e *Entry) usableSpace() int {
	switch {
	case e.isUnused():
		return 1
	case e.isTombstone():
		return 1 + e.numCont
	default:
		return 0
	}
}

// firstSlotCapacity returns how many bytes of name the first slot of a Dir
// or File variant can hold.
func firstSlotCapacity(k entryKind) int {
	switch k {
	case kindDir, kindDirDel:
		return dirFirstChars
	case kindFile, kindFileDel:
		return fileFirstChars
	default:
		return 0
	}
}

// numContFor computes num_cont from a name's length: it fits in the first
// slot when short enough, otherwise every additional 64-byte continuation
// holds 64 more bytes.
func numContFor(k entryKind, nameLen int) int {
	cap0 := firstSlotCapacity(k)
	if nameLen <= cap0 {
		return 0
	}
	remaining := nameLen - cap0
	return int(math.Ceil(float64(remaining) / slotSize))
}

// peekHeader reads just the type and, for variable-length kinds, the
// num_cont byte from a single 64-byte slot, so the caller knows how many
// continuation slots still need to be read from disk.
func peekHeader(slot []byte) (kind entryKind, numCont int) {
	kind = entryKind(slot[0])
	switch kind {
	case kindDir, kindFile, kindDirDel, kindFileDel:
		numCont = int(slot[2])
	}
	return
}

// decodeEntry decodes a complete entry, header slot plus any
// continuations, verifying its checksum.
func decodeEntry(buf []byte, offset int64) (*Entry, error) {
	if len(buf) < slotSize {
		return nil, newError(KindIO, "entry buffer shorter than one slot")
	}
	if !verifyChecksum(buf) {
		return nil, newError(KindBadChecksum, "entry checksum mismatch")
	}

	kind := entryKind(buf[0])
	e := &Entry{kind: kind, offset: offset}

	switch kind {
	case kindVolume:
		e.timestamp = Timestamp(decodeI64(buf, 2))
		e.name = decodeName(buf[10:10+volumeNameLen], volumeNameLen)
	case kindStart, kindUnused:
		// no payload
	case kindDir, kindDirDel:
		e.numCont = int(buf[2])
		e.timestamp = Timestamp(decodeI64(buf, 3))
		e.name = decodeContinuedName(buf, dirFirstChars, e.numCont)
	case kindFile, kindFileDel:
		e.numCont = int(buf[2])
		e.timestamp = Timestamp(decodeI64(buf, 3))
		e.startBlock = decodeU64(buf, 11)
		e.endBlock = decodeU64(buf, 19)
		e.fileLen = decodeU64(buf, 27)
		e.name = decodeContinuedName(buf, fileFirstChars, e.numCont)
	case kindUnusable:
		e.startBlock = decodeU64(buf, 2)
		e.endBlock = decodeU64(buf, 10)
	default:
		return nil, newError(KindBadState, "unrecognized entry type byte")
	}
	return e, nil
}

// toBytes renders the entry's on-disk record, continuations included, and
// stamps its checksum.
func (e *Entry) toBytes() []byte {
	buf := make([]byte, e.entryBytes())
	buf[0] = byte(e.kind)

	switch e.kind {
	case kindVolume:
		encodeI64(buf, 2, int64(e.timestamp))
		encodeName(buf[10:10+volumeNameLen], e.name, volumeNameLen)
	case kindStart, kindUnused:
		// no payload
	case kindDir, kindDirDel:
		buf[2] = byte(e.numCont)
		encodeI64(buf, 3, int64(e.timestamp))
		encodeContinuedName(buf, dirFirstChars, e.numCont, e.name)
	case kindFile, kindFileDel:
		buf[2] = byte(e.numCont)
		encodeI64(buf, 3, int64(e.timestamp))
		encodeU64(buf, 11, e.startBlock)
		encodeU64(buf, 19, e.endBlock)
		encodeU64(buf, 27, e.fileLen)
		encodeContinuedName(buf, fileFirstChars, e.numCont, e.name)
	case kindUnusable:
		encodeU64(buf, 2, e.startBlock)
		encodeU64(buf, 10, e.endBlock)
	}

	buf[1] = 0
	buf[1] = checksum(buf)
	return buf
}

// decodeName reads a NUL-terminated name out of a fixed-capacity field.
func decodeName(b []byte, capacity int) string {
	n := bytes.IndexByte(b, 0)
	if n < 0 {
		n = capacity
	}
	return string(b[:n])
}

// decodeContinuedName reassembles a name spread across a first slot and
// num_cont 64-byte continuations.
func decodeContinuedName(buf []byte, cap0, numCont int) string {
	total := cap0 + numCont*slotSize
	firstOff := slotSize - cap0
	joined := make([]byte, 0, total)
	joined = append(joined, buf[firstOff:slotSize]...)
	for i := 0; i < numCont; i++ {
		start := slotSize + i*slotSize
		joined = append(joined, buf[start:start+slotSize]...)
	}
	return decodeName(joined, total)
}

// encodeName writes s into a fixed-capacity field, NUL-terminated and
// zero-padded.
func encodeName(b []byte, s string, capacity int) {
	n := copy(b, s)
	for i := n; i < capacity; i++ {
		b[i] = 0
	}
}

// encodeContinuedName writes a name across the first slot's tail and any
// continuation slots.
func encodeContinuedName(buf []byte, cap0, numCont int, name string) {
	firstOff := slotSize - cap0
	encodeName(buf[firstOff:slotSize], name, cap0)
	rest := ""
	if len(name) > cap0 {
		rest = name[cap0:]
	}
	for i := 0; i < numCont; i++ {
		chunk := ""
		if off := i * slotSize; off < len(rest) {
			end := off + slotSize
			if end > len(rest) {
				end = len(rest)
			}
			chunk = rest[off:end]
		}
		start := slotSize + i*slotSize
		encodeName(buf[start:start+slotSize], chunk, slotSize)
	}
}
