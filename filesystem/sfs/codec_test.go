package sfs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIntCodecRoundTrip(t *testing.T) {
	buf := make([]byte, 32)
	encodeU8(buf, 0, 0xAB)
	encodeU16(buf, 1, 0x1234)
	encodeU32(buf, 3, 0xdeadbeef)
	encodeU64(buf, 7, 0x0102030405060708)
	encodeI64(buf, 15, -42)

	require.EqualValues(t, 0xAB, decodeU8(buf, 0))
	require.EqualValues(t, 0x1234, decodeU16(buf, 1))
	require.EqualValues(t, 0xdeadbeef, decodeU32(buf, 3))
	require.EqualValues(t, 0x0102030405060708, decodeU64(buf, 7))
	require.EqualValues(t, -42, decodeI64(buf, 15))
}

func TestChecksumZeroesByteSum(t *testing.T) {
	buf := []byte{0x01, 0x02, 0x03, 0xff, 0x00}
	c := checksum(buf)
	buf = append(buf, c)

	var sum byte
	for _, b := range buf {
		sum += b
	}
	require.EqualValues(t, 0, sum)
	require.True(t, verifyChecksum(buf))

	buf[0] ^= 0xff
	require.False(t, verifyChecksum(buf))
}
