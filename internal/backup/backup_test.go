package backup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFakeImage(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "volume.img")
	data := make([]byte, 64*1024)
	for i := range data {
		data[i] = byte(i % 251)
	}
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func TestBackupRestoreRoundTrip(t *testing.T) {
	for _, format := range []Format{FormatZstd, FormatLZ4, FormatXZ} {
		format := format
		t.Run(string(format), func(t *testing.T) {
			dir := t.TempDir()
			imagePath := writeFakeImage(t, dir)
			original, err := os.ReadFile(imagePath)
			require.NoError(t, err)

			archivePath := filepath.Join(dir, "volume.bak")
			require.NoError(t, Backup(imagePath, archivePath, format))

			restoredPath := filepath.Join(dir, "volume.restored")
			require.NoError(t, Restore(archivePath, restoredPath))

			restored, err := os.ReadFile(restoredPath)
			require.NoError(t, err)
			require.Equal(t, original, restored)
		})
	}
}

func TestRestoreRejectsTamperedArchive(t *testing.T) {
	dir := t.TempDir()
	imagePath := writeFakeImage(t, dir)
	archivePath := filepath.Join(dir, "volume.bak")
	require.NoError(t, Backup(imagePath, archivePath, FormatZstd))

	manifest, err := readManifest(manifestPath(archivePath))
	require.NoError(t, err)
	manifest.DigestBlake2b = "deadbeef"
	require.NoError(t, writeManifest(manifestPath(archivePath), manifest))

	err = Restore(archivePath, filepath.Join(dir, "volume.restored"))
	require.Error(t, err)
}
