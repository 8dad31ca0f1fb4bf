// Package backup implements an external safety net for SFS images. The
// format carries no journal and makes no crash recovery guarantees, so the
// only protection against a botched mutation or a failing disk is a
// verbatim, checksummed, compressed copy taken before the fact and
// restorable after.
package backup

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"
	"golang.org/x/crypto/blake2b"
)

// Format selects the compression codec used for a backup archive.
type Format string

const (
	FormatZstd Format = "zstd"
	FormatLZ4  Format = "lz4"
	FormatXZ   Format = "xz"
)

// Manifest is the sidecar JSON document written alongside a backup
// archive, recording enough to verify and restore it independently of the
// volume's own on-disk checksums (which the manifest's digest does not
// rely on being intact).
type Manifest struct {
	ID             string    `json:"id"`
	Format         Format    `json:"format"`
	OriginalSize   int64     `json:"original_size"`
	DigestBlake2b  string    `json:"digest_blake2b_256"`
	CreatedAt      time.Time `json:"created_at"`
	SourceBasename string    `json:"source_basename"`
}

func manifestPath(destPath string) string {
	return destPath + ".manifest.json"
}

func newEncoder(w io.Writer, format Format) (io.WriteCloser, error) {
	switch format {
	case "", FormatZstd:
		return zstd.NewWriter(w)
	case FormatLZ4:
		zw := lz4.NewWriter(w)
		return zw, nil
	case FormatXZ:
		xw, err := xz.NewWriter(w)
		if err != nil {
			return nil, err
		}
		return xw, nil
	default:
		return nil, fmt.Errorf("backup: unknown format %q", format)
	}
}

func newDecoder(r io.Reader, format Format) (io.Reader, func() error, error) {
	switch format {
	case "", FormatZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return zr, func() error { zr.Close(); return nil }, nil
	case FormatLZ4:
		return lz4.NewReader(r), func() error { return nil }, nil
	case FormatXZ:
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return xr, func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("backup: unknown format %q", format)
	}
}

// Backup reads imagePath in full, compresses it with format (defaulting
// to zstd), writes the compressed archive to destPath, and seals a
// manifest at destPath+".manifest.json" carrying the uncompressed size
// and a blake2b-256 digest of the original bytes.
func Backup(imagePath, destPath string, format Format) error {
	src, err := os.Open(imagePath)
	if err != nil {
		return fmt.Errorf("backup: opening image: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("backup: creating archive: %w", err)
	}
	defer dst.Close()

	enc, err := newEncoder(dst, format)
	if err != nil {
		return fmt.Errorf("backup: building encoder: %w", err)
	}

	digest, err := blake2b.New256(nil)
	if err != nil {
		return fmt.Errorf("backup: building digest: %w", err)
	}

	counted := &countingReader{r: src}
	mw := io.MultiWriter(enc, digest)
	if _, err := io.Copy(mw, counted); err != nil {
		_ = enc.Close()
		return fmt.Errorf("backup: compressing image: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("backup: flushing encoder: %w", err)
	}

	manifest := Manifest{
		ID:             uuid.New().String(),
		Format:         effectiveFormat(format),
		OriginalSize:   counted.n,
		DigestBlake2b:  fmt.Sprintf("%x", digest.Sum(nil)),
		CreatedAt:      time.Now().UTC(),
		SourceBasename: basename(imagePath),
	}
	return writeManifest(manifestPath(destPath), manifest)
}

// Restore decompresses srcPath (format taken from its sidecar manifest),
// verifies the result's blake2b-256 digest against the manifest, and
// writes it to imagePath only once the digest checks out.
func Restore(srcPath, imagePath string) error {
	manifest, err := readManifest(manifestPath(srcPath))
	if err != nil {
		return fmt.Errorf("restore: reading manifest: %w", err)
	}

	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("restore: opening archive: %w", err)
	}
	defer src.Close()

	dec, closeDec, err := newDecoder(src, manifest.Format)
	if err != nil {
		return fmt.Errorf("restore: building decoder: %w", err)
	}
	defer closeDec()

	tmp, err := os.CreateTemp(dirOf(imagePath), "sfs-restore-*")
	if err != nil {
		return fmt.Errorf("restore: creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	digest, err := blake2b.New256(nil)
	if err != nil {
		tmp.Close()
		return fmt.Errorf("restore: building digest: %w", err)
	}

	mw := io.MultiWriter(tmp, digest)
	n, err := io.Copy(mw, dec)
	tmp.Close()
	if err != nil {
		return fmt.Errorf("restore: decompressing archive: %w", err)
	}
	if n != manifest.OriginalSize {
		return fmt.Errorf("restore: size mismatch: got %d bytes, manifest says %d", n, manifest.OriginalSize)
	}
	if got := fmt.Sprintf("%x", digest.Sum(nil)); got != manifest.DigestBlake2b {
		return fmt.Errorf("restore: digest mismatch: archive is corrupt or manifest does not match")
	}

	return os.Rename(tmpPath, imagePath)
}

func effectiveFormat(f Format) Format {
	if f == "" {
		return FormatZstd
	}
	return f
}

func writeManifest(path string, m Manifest) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0644)
}

func readManifest(path string) (Manifest, error) {
	var m Manifest
	b, err := os.ReadFile(path)
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return m, err
	}
	return m, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func basename(p string) string {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '/' {
			return p[i+1:]
		}
	}
	return p
}

func dirOf(p string) string {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '/' {
			return p[:i]
		}
	}
	return "."
}
