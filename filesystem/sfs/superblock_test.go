package sfs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSuperblockRoundTrip(t *testing.T) {
	sb := &superblock{
		dataSize:    1000,
		indexSize:   128,
		totalBlocks: 64,
		rsvdBlocks:  2,
		blockExp:    2,
	}
	buf := sb.toBytes()
	require.Len(t, buf, superblockSize)

	got, err := superblockFromBytes(buf)
	require.NoError(t, err)
	require.EqualValues(t, 1000, got.dataSize)
	require.EqualValues(t, 128, got.indexSize)
	require.EqualValues(t, 64, got.totalBlocks)
	require.EqualValues(t, 2, got.rsvdBlocks)
	require.EqualValues(t, 2, got.blockExp)
	require.EqualValues(t, 512, got.blockSize())
}

func TestSuperblockRejectsBadMagicAndVersion(t *testing.T) {
	sb := &superblock{totalBlocks: 1}
	buf := sb.toBytes()

	corrupted := append([]byte(nil), buf...)
	corrupted[superblockChecksumStart] = 'X'
	_, err := superblockFromBytes(corrupted)
	require.Error(t, err)
	k, _ := KindOf(err)
	require.Equal(t, KindBadMagic, k)

	corrupted = append([]byte(nil), buf...)
	corrupted[superblockChecksumStart+3] = 0x01
	_, err = superblockFromBytes(corrupted)
	require.Error(t, err)
	k, _ = KindOf(err)
	require.Equal(t, KindBadVersion, k)
}

func TestSuperblockRejectsBadChecksum(t *testing.T) {
	sb := &superblock{totalBlocks: 1}
	buf := sb.toBytes()
	buf[28] ^= 0xff // corrupt a covered field without fixing the checksum
	_, err := superblockFromBytes(buf)
	require.Error(t, err)
	k, _ := KindOf(err)
	require.Equal(t, KindBadChecksum, k)
}
