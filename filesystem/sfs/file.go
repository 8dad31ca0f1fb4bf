package sfs

import (
	"io"
	"os"

	"github.com/naens/sfs/filesystem"
)

// File is a single open file handle within an SFS image, tracking its own
// read/write offset the way an *os.File does.
type File struct {
	fs     *FileSystem
	path   string
	offset int64
}

// Read reads up to len(b) bytes at the handle's current offset.
func (fl *File) Read(b []byte) (int, error) {
	n, err := fl.fs.Read(fl.path, b, uint64(len(b)), uint64(fl.offset))
	if err != nil {
		return n, err
	}
	fl.offset += int64(n)
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

// Write writes len(b) bytes at the handle's current offset, resizing the
// file first if the write would extend past its current length.
func (fl *File) Write(b []byte) (int, error) {
	e := fl.fs.findLive(fl.path)
	if e == nil {
		return 0, newError(KindNotFound, "write: no such file")
	}
	end := uint64(fl.offset) + uint64(len(b))
	if end > e.fileLen {
		if err := fl.fs.Resize(fl.path, end); err != nil {
			return 0, err
		}
	}
	n, err := fl.fs.Write(fl.path, b, uint64(len(b)), uint64(fl.offset))
	fl.offset += int64(n)
	return n, err
}

// Seek repositions the handle's offset.
func (fl *File) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = fl.offset
	case io.SeekEnd:
		base = int64(fl.fs.GetFileSize(fl.path))
	}
	newOffset := base + offset
	if newOffset < 0 {
		return fl.offset, newError(KindIO, "seek before start of file")
	}
	fl.offset = newOffset
	return fl.offset, nil
}

// Close is a no-op: SFS writes through immediately, there is no buffered
// state to flush.
func (fl *File) Close() error { return nil }

// OpenFile opens path, creating it first when flag carries os.O_CREATE
// and no file exists yet.
func (fs *FileSystem) OpenFile(p string, flag int) (filesystem.File, error) {
	p = normalizePath(p)
	e := fs.findLive(p)
	switch {
	case e == nil && flag&os.O_CREATE != 0:
		if err := fs.Create(p); err != nil {
			return nil, err
		}
	case e == nil:
		return nil, newError(KindNotFound, "open: no such file")
	case !e.isLiveFile():
		return nil, newError(KindTypeMismatch, "open: not a file")
	}
	return &File{fs: fs, path: p}, nil
}
