package sfs

import (
	"os"
	"time"

	"github.com/naens/sfs/filesystem"
)

// fileInfo is the os.FileInfo view of a live Directory or File entry,
// with fixed mode bits per the kernel bridge contract (0755 for
// directories, 0644 for files).
type fileInfo struct {
	name    string
	size    int64
	isDir   bool
	modTime time.Time
}

func (fi *fileInfo) Name() string { return fi.name }
func (fi *fileInfo) Size() int64  { return fi.size }
func (fi *fileInfo) Mode() os.FileMode {
	if fi.isDir {
		return os.ModeDir | 0755
	}
	return 0644
}
func (fi *fileInfo) ModTime() time.Time { return fi.modTime }
func (fi *fileInfo) IsDir() bool        { return fi.isDir }
func (fi *fileInfo) Sys() interface{}   { return nil }

func (fs *FileSystem) fileInfoFor(e *Entry) os.FileInfo {
	var size int64
	if e.isLiveFile() {
		size = int64(e.fileLen)
	}
	return &fileInfo{name: baseOf(e.name), size: size, isDir: e.isLiveDir(), modTime: e.timestamp.Time()}
}

// ReadDir lists the direct children of a directory as os.FileInfo values,
// built from the First/Next iterator.
func (fs *FileSystem) ReadDir(p string) ([]os.FileInfo, error) {
	p = normalizePath(p)
	if p != "" && !fs.IsDir(p) {
		return nil, newError(KindNotFound, "readdir: no such directory")
	}

	var infos []os.FileInfo
	name, ok := fs.First(p)
	for ok {
		full := name
		if p != "" {
			full = p + "/" + name
		}
		if e := fs.findLive(full); e != nil {
			infos = append(infos, fs.fileInfoFor(e))
		}
		name, ok = fs.Next()
	}
	return infos, nil
}

var _ filesystem.FileSystem = (*FileSystem)(nil)
