package view

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/naens/sfs/filesystem/sfs"
)

func tempFS(t *testing.T) (*sfs.FileSystem, string) {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "view-*.img")
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	fs, err := sfs.Format(f, sfs.FormatOptions{
		TotalBlocks: 64,
		RsvdBlocks:  2,
		BlockExp:    2,
		VolumeName:  "viewtest",
	})
	require.NoError(t, err)
	return fs, f.Name()
}

func TestRenderListsChildren(t *testing.T) {
	fs, _ := tempFS(t)
	require.NoError(t, fs.Mkdir("d"))
	require.NoError(t, fs.Create("d/a"))
	require.NoError(t, fs.Create("top"))

	out, err := Render(fs, "", Options{}, false)
	require.NoError(t, err)
	require.Contains(t, out, "viewtest")
	require.Contains(t, out, "top")
	require.Contains(t, out, "dir")
}

func TestRenderFilter(t *testing.T) {
	fs, _ := tempFS(t)
	require.NoError(t, fs.Create("keep.txt"))
	require.NoError(t, fs.Create("skip.bin"))

	out, err := Render(fs, "", Options{Filter: "*.txt"}, false)
	require.NoError(t, err)
	require.True(t, strings.Contains(out, "keep.txt"))
	require.False(t, strings.Contains(out, "skip.bin"))
}
