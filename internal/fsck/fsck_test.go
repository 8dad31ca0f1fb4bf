package fsck

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/naens/sfs/filesystem/sfs"
)

func tempFS(t *testing.T) *sfs.FileSystem {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "fsck-*.img")
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	fs, err := sfs.Format(f, sfs.FormatOptions{
		TotalBlocks: 64,
		RsvdBlocks:  2,
		BlockExp:    2,
		VolumeName:  "fscktest",
	})
	require.NoError(t, err)
	return fs
}

func TestCheckCleanVolumeHasNoViolations(t *testing.T) {
	fs := tempFS(t)
	require.NoError(t, fs.Mkdir("d"))
	require.NoError(t, fs.Create("d/a"))
	require.NoError(t, fs.Resize("d/a", 1000))
	require.NoError(t, fs.Create("d/b"))
	require.NoError(t, fs.Resize("d/b", 500))
	require.NoError(t, fs.Delete("d/a"))

	violations, err := Check(fs)
	require.NoError(t, err)
	require.Empty(t, violations)
}

func TestCheckSurvivesIndexAreaGrowth(t *testing.T) {
	fs := tempFS(t)
	for i := 0; i < 8; i++ {
		require.NoError(t, fs.Create(string(rune('a'+i))))
	}
	violations, err := Check(fs)
	require.NoError(t, err)
	require.Empty(t, violations)
}
