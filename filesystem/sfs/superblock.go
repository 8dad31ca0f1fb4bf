package sfs

import (
	uuid "github.com/satori/go.uuid"
)

const (
	// superblockOffset is the fixed byte offset of the superblock record
	// within the image, inside the Reserved Area.
	superblockOffset int64 = 0x18e
	// superblockSize is the on-disk length of the superblock record.
	superblockSize = 42

	magicSFS   = "SFS"
	versionSFS = 0x11

	// superblockChecksumStart is the offset, within the 42-byte record,
	// of the magic field: the checksum covers magic through crc.
	superblockChecksumStart = 24

	// DefaultVolumeName is a fixed volume name. Format does not use it:
	// an empty FormatOptions.VolumeName gets a random UUID instead.
	DefaultVolumeName = "sfs_volume"
)

// superblock mirrors the 42-byte on-disk super record.
type superblock struct {
	timeStamp   Timestamp
	dataSize    uint64
	indexSize   uint64
	totalBlocks uint64
	rsvdBlocks  uint32
	blockExp    uint8
}

// blockSize derives the actual block size in bytes from the log exponent:
// 1 << (exponent + 7), e.g. exponent 2 -> 512 bytes.
func (sb *superblock) blockSize() int64 {
	return int64(1) << (uint(sb.blockExp) + 7)
}

// superblockFromBytes decodes and validates a 42-byte superblock record.
func superblockFromBytes(b []byte) (*superblock, error) {
	if len(b) != superblockSize {
		return nil, newError(KindIO, "superblock record has wrong length")
	}

	magic := string(b[superblockChecksumStart : superblockChecksumStart+3])
	if magic != magicSFS {
		return nil, newError(KindBadMagic, "image does not carry the SFS magic")
	}
	version := b[superblockChecksumStart+3]
	if version != versionSFS {
		return nil, newError(KindBadVersion, "unsupported SFS version")
	}

	if !verifyChecksum(b[superblockChecksumStart:]) {
		return nil, newError(KindBadChecksum, "superblock checksum mismatch")
	}

	sb := &superblock{
		timeStamp:   Timestamp(decodeI64(b, 0)),
		dataSize:    decodeU64(b, 8),
		indexSize:   decodeU64(b, 16),
		totalBlocks: decodeU64(b, 28),
		rsvdBlocks:  decodeU32(b, 36),
		blockExp:    decodeU8(b, 40),
	}
	return sb, nil
}

// toBytes refreshes time_stamp to now, recomputes the checksum, and
// returns the 42-byte on-disk record.
func (sb *superblock) toBytes() []byte {
	sb.timeStamp = now()

	b := make([]byte, superblockSize)
	encodeI64(b, 0, int64(sb.timeStamp))
	encodeU64(b, 8, sb.dataSize)
	encodeU64(b, 16, sb.indexSize)
	copy(b[24:27], magicSFS)
	b[27] = versionSFS
	encodeU64(b, 28, sb.totalBlocks)
	encodeU32(b, 36, sb.rsvdBlocks)
	b[40] = sb.blockExp

	b[41] = 0
	b[41] = checksum(b[superblockChecksumStart:])
	return b
}

// readSuper seeks to the superblock offset, reads and decodes the record.
func readSuper(f fileReaderAt) (*superblock, error) {
	buf := make([]byte, superblockSize)
	if _, err := f.ReadAt(buf, superblockOffset); err != nil {
		return nil, wrapError(KindIO, "reading superblock", err)
	}
	return superblockFromBytes(buf)
}

// writeSuper encodes and persists the superblock record in place.
func writeSuper(f fileWriterAt, sb *superblock) error {
	buf := sb.toBytes()
	if _, err := f.WriteAt(buf, superblockOffset); err != nil {
		return wrapError(KindIO, "writing superblock", err)
	}
	return nil
}

// defaultVolumeUUID generates a fresh random volume identifier, mirroring
// how a freshly-formatted image picks a volume name when none is given.
func defaultVolumeUUID() string {
	return uuid.NewV4().String()
}

type fileReaderAt interface {
	ReadAt(b []byte, off int64) (int, error)
}

type fileWriterAt interface {
	WriteAt(b []byte, off int64) (int, error)
}
