// Package util holds small abstractions shared across filesystem packages.
package util

import "io"

// File is the minimal handle an image is opened through: a seekable,
// random-access, truncatable byte store. *os.File satisfies it directly.
type File interface {
	io.ReaderAt
	io.WriterAt
	io.Seeker
	io.Closer
	Truncate(size int64) error
}
