package sfs

import "encoding/binary"

// decodeU8/u16/u32/u64/i64 and encode_* pack and unpack the little-endian
// fixed-offset fields that make up the superblock and every entry variant.
// checksum computes the byte that forces a buffer's sum to zero mod 256.

func decodeU8(b []byte, off int) uint8 {
	return b[off]
}

func decodeU16(b []byte, off int) uint16 {
	return binary.LittleEndian.Uint16(b[off : off+2])
}

func decodeU32(b []byte, off int) uint32 {
	return binary.LittleEndian.Uint32(b[off : off+4])
}

func decodeU64(b []byte, off int) uint64 {
	return binary.LittleEndian.Uint64(b[off : off+8])
}

func decodeI64(b []byte, off int) int64 {
	return int64(binary.LittleEndian.Uint64(b[off : off+8]))
}

func encodeU8(b []byte, off int, v uint8) {
	b[off] = v
}

func encodeU16(b []byte, off int, v uint16) {
	binary.LittleEndian.PutUint16(b[off:off+2], v)
}

func encodeU32(b []byte, off int, v uint32) {
	binary.LittleEndian.PutUint32(b[off:off+4], v)
}

func encodeU64(b []byte, off int, v uint64) {
	binary.LittleEndian.PutUint64(b[off:off+8], v)
}

func encodeI64(b []byte, off int, v int64) {
	binary.LittleEndian.PutUint64(b[off:off+8], uint64(v))
}

// checksum returns the byte that, appended to buf, makes the sum of all
// bytes in buf wrap to zero mod 256. buf's own checksum byte (if already
// present) must be zeroed by the caller before calling checksum.
func checksum(buf []byte) byte {
	var sum byte
	for _, c := range buf {
		sum += c
	}
	return byte(256 - int(sum)&0xff)
}

// verifyChecksum reports whether the byte sum of buf wraps to zero mod 256.
func verifyChecksum(buf []byte) bool {
	var sum byte
	for _, c := range buf {
		sum += c
	}
	return sum == 0
}
