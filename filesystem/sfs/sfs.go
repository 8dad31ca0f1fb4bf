// Package sfs implements the Simple File System: a flat, journal-free
// on-disk layout backed by a single image file, addressed through a
// Data Area of fixed-size blocks and an Index Area of variable-length
// entry records growing down from the end of the image.
package sfs

import (
	"strings"

	"github.com/naens/sfs/filesystem"
	"github.com/naens/sfs/util"
	"github.com/sirupsen/logrus"
)

// FileSystem is a live handle on an open SFS image: the decoded
// superblock plus the in-memory entry list and free-space list built
// from it. It implements the generic filesystem.FileSystem interface and
// exposes the format's full path-addressed operation set directly.
type FileSystem struct {
	file    util.File
	sb      *superblock
	entries *entryList
	free    *freeList
	logger  *logrus.Logger

	iterPath string
	iterPos  *Entry
}

// FormatOptions parametrizes the creation of a fresh SFS image.
type FormatOptions struct {
	TotalBlocks uint64
	RsvdBlocks  uint32
	BlockExp    uint8
	VolumeName  string
}

// Format lays out a brand-new SFS image on f: a superblock, a lone Start
// Marker, and a lone Volume ID, with the rest of the Data Area free.
func Format(f util.File, opts FormatOptions, options ...Option) (*FileSystem, error) {
	bs := int64(1) << (uint(opts.BlockExp) + 7)
	imageEnd := int64(opts.TotalBlocks) * bs
	if err := f.Truncate(imageEnd); err != nil {
		return nil, wrapError(KindIO, "sizing image", err)
	}

	indexSize := uint64(2 * slotSize)
	dataBytes := uint64(opts.RsvdBlocks) * uint64(bs)
	if uint64(imageEnd) < dataBytes+indexSize {
		return nil, newError(KindNoSpace, "image too small for reserved area and index")
	}
	sb := &superblock{
		dataSize:    uint64(imageEnd) - dataBytes - indexSize,
		indexSize:   indexSize,
		totalBlocks: opts.TotalBlocks,
		rsvdBlocks:  opts.RsvdBlocks,
		blockExp:    opts.BlockExp,
	}

	volName := opts.VolumeName
	if volName == "" {
		volName = defaultVolumeUUID()
	}

	startOffset := imageEnd - int64(indexSize)
	startEntry := &Entry{kind: kindStart, offset: startOffset}
	volEntry := &Entry{kind: kindVolume, offset: imageEnd - slotSize, timestamp: now(), name: volName}
	startEntry.next = volEntry

	if _, err := f.WriteAt(startEntry.toBytes(), startEntry.offset); err != nil {
		return nil, wrapError(KindIO, "writing start marker", err)
	}
	if _, err := f.WriteAt(volEntry.toBytes(), volEntry.offset); err != nil {
		return nil, wrapError(KindIO, "writing volume id", err)
	}
	if err := writeSuper(f, sb); err != nil {
		return nil, err
	}

	entries := &entryList{file: f, sb: sb, head: startEntry, tail: volEntry}
	free, err := buildFreeList(entries, sb)
	if err != nil {
		return nil, err
	}

	fs := &FileSystem{file: f, sb: sb, entries: entries, free: free, logger: discardLogger()}
	for _, o := range options {
		o(fs)
	}
	return fs, nil
}

// Open loads super, the entry list, and the free list from an existing
// image file.
func Open(f util.File, opts ...Option) (*FileSystem, error) {
	sb, err := readSuper(f)
	if err != nil {
		return nil, err
	}
	entries, err := loadEntryList(f, sb)
	if err != nil {
		return nil, err
	}
	free, err := buildFreeList(entries, sb)
	if err != nil {
		return nil, err
	}
	fs := &FileSystem{file: f, sb: sb, entries: entries, free: free, logger: discardLogger()}
	for _, o := range opts {
		o(fs)
	}
	return fs, nil
}

// Close releases in-memory state and closes the image handle.
func (fs *FileSystem) Close() error {
	return fs.file.Close()
}

// Type identifies this as the SFS format to the generic interface.
func (fs *FileSystem) Type() filesystem.Type { return filesystem.TypeSFS }

// FreeBlockCount returns how many Data Area blocks are currently unclaimed.
func (fs *FileSystem) FreeBlockCount() uint64 { return uint64(fs.free.FreeBlockCount()) }

// TotalDataBlocks returns the size of the Data Area in blocks.
func (fs *FileSystem) TotalDataBlocks() uint64 { return fs.free.dataBlocks }

// BlockSize returns the image's block size in bytes.
func (fs *FileSystem) BlockSize() int64 { return fs.sb.blockSize() }

// normalizePath strips a leading slash and any trailing slash, per the
// kernel bridge's path normalization contract.
func normalizePath(p string) string {
	p = strings.TrimPrefix(p, "/")
	p = strings.TrimSuffix(p, "/")
	return p
}

func baseOf(path string) string {
	i := strings.LastIndex(path, "/")
	if i < 0 {
		return path
	}
	return path[i+1:]
}

func parentOf(path string) string {
	i := strings.LastIndex(path, "/")
	if i < 0 {
		return ""
	}
	return path[:i]
}

// findLive returns the live Directory or File entry named path, or nil.
func (fs *FileSystem) findLive(path string) *Entry {
	for cur := fs.entries.head; cur != nil; cur = cur.next {
		if (cur.isLiveDir() || cur.isLiveFile()) && cur.name == path {
			return cur
		}
	}
	return nil
}

// IsDir reports whether path names a live directory.
func (fs *FileSystem) IsDir(path string) bool {
	e := fs.findLive(normalizePath(path))
	return e != nil && e.isLiveDir()
}

// IsFile reports whether path names a live file.
func (fs *FileSystem) IsFile(path string) bool {
	e := fs.findLive(normalizePath(path))
	return e != nil && e.isLiveFile()
}

// GetFileSize returns the recorded length of path, or 0 if it is not a
// live file.
func (fs *FileSystem) GetFileSize(path string) uint64 {
	e := fs.findLive(normalizePath(path))
	if e == nil || !e.isLiveFile() {
		return 0
	}
	return e.fileLen
}

// checkNewName validates that path can be the name of a freshly created
// entry: non-empty basename, not already taken, and (if not top-level) a
// parent directory that actually exists.
func (fs *FileSystem) checkNewName(path string) error {
	if baseOf(path) == "" {
		return newError(KindTypeMismatch, "empty name")
	}
	if fs.findLive(path) != nil {
		return newError(KindAlreadyExists, "path already exists")
	}
	if parent := parentOf(path); parent != "" {
		pe := fs.findLive(parent)
		if pe == nil || !pe.isLiveDir() {
			return newError(KindNotFound, "parent directory does not exist")
		}
	}
	return nil
}

// Mkdir creates an empty directory entry at path.
func (fs *FileSystem) Mkdir(path string) error {
	path = normalizePath(path)
	if err := fs.checkNewName(path); err != nil {
		return err
	}
	e := &Entry{kind: kindDir, timestamp: now(), name: path}
	e.numCont = numContFor(kindDir, len(path))
	return fs.entries.putNewEntry(fs.free, e)
}

// Create creates an empty (zero-length) file entry at path.
func (fs *FileSystem) Create(path string) error {
	path = normalizePath(path)
	if err := fs.checkNewName(path); err != nil {
		return err
	}
	start := uint64(fs.sb.rsvdBlocks)
	e := &Entry{
		kind:       kindFile,
		timestamp:  now(),
		name:       path,
		startBlock: start,
		endBlock:   start - 1, // empty sentinel: end < start
		fileLen:    0,
	}
	e.numCont = numContFor(kindFile, len(path))
	return fs.entries.putNewEntry(fs.free, e)
}

func ceilDivU(a, b uint64) uint64 {
	if a == 0 {
		return 0
	}
	return (a + b - 1) / b
}

// copyBlocks copies n blocks of data from block src to block dst, one
// block at a time.
func (fs *FileSystem) copyBlocks(src, dst, n uint64) error {
	if n == 0 || src == dst {
		return nil
	}
	bs := fs.sb.blockSize()
	buf := make([]byte, bs)
	for i := uint64(0); i < n; i++ {
		if _, err := fs.file.ReadAt(buf, (int64(src)+int64(i))*bs); err != nil {
			return wrapError(KindIO, "resize: copying block", err)
		}
		if _, err := fs.file.WriteAt(buf, (int64(dst)+int64(i))*bs); err != nil {
			return wrapError(KindIO, "resize: copying block", err)
		}
	}
	return nil
}

// zeroRange zero-fills the byte range [start*bs+from, start*bs+to) of a
// file's blocks, used when resize grows the file's logical length.
func (fs *FileSystem) zeroRange(startBlock, from, to uint64) error {
	if to <= from {
		return nil
	}
	bs := fs.sb.blockSize()
	zeros := make([]byte, to-from)
	off := int64(startBlock)*bs + int64(from)
	if _, err := fs.file.WriteAt(zeros, off); err != nil {
		return wrapError(KindIO, "resize: zero-filling", err)
	}
	return nil
}

// Resize grows, shrinks, or relocates a file to exactly newLen bytes.
func (fs *FileSystem) Resize(path string, newLen uint64) error {
	path = normalizePath(path)
	e := fs.findLive(path)
	if e == nil {
		return newError(KindNotFound, "resize: no such file")
	}
	if !e.isLiveFile() {
		return newError(KindTypeMismatch, "resize: not a file")
	}

	bs := uint64(fs.sb.blockSize())
	l0, l1 := e.fileLen, newLen
	b0, b1 := ceilDivU(l0, bs), ceilDivU(l1, bs)
	s0 := e.startBlock
	var s1 uint64

	switch {
	case b1 > b0:
		grow := b1 - b0
		node, err := fs.free.find(s0+b0, grow)
		if err == nil && node.start == s0+b0 {
			if err := fs.free.del(fs.entries, node, grow); err != nil {
				return err
			}
			s1 = s0
		} else {
			if b0 > 0 {
				fs.free.add(s0, b0)
			}
			found, ferr := fs.free.find(0, b1)
			if ferr != nil {
				return ferr
			}
			s1 = found.start
			if err := fs.free.del(fs.entries, found, b1); err != nil {
				return err
			}
			if err := fs.copyBlocks(s0, s1, b0); err != nil {
				return err
			}
			fs.logger.WithFields(logrus.Fields{
				"op": "resize", "path": path, "from": s0, "to": s1, "blocks": b1,
			}).Debug("relocated file")
		}
	case b0 > b1:
		fs.free.add(s0+b1, b0-b1)
		s1 = s0
	default:
		s1 = s0
	}

	if l1 > l0 {
		if err := fs.zeroRange(s1, l0, l1); err != nil {
			return err
		}
	}

	e.fileLen = l1
	e.startBlock = s1
	if l1 == 0 {
		e.endBlock = s1 - 1
	} else {
		e.endBlock = s1 + b1 - 1
	}
	return fs.entries.rewrite(e)
}

// Read copies up to size bytes starting at offset into buf, clamped to
// the file's recorded length.
func (fs *FileSystem) Read(path string, buf []byte, size, offset uint64) (int, error) {
	path = normalizePath(path)
	e := fs.findLive(path)
	if e == nil || !e.isLiveFile() {
		return 0, newError(KindNotFound, "read: no such file")
	}
	if offset >= e.fileLen {
		return 0, nil
	}
	if size > e.fileLen-offset {
		size = e.fileLen - offset
	}
	bs := fs.sb.blockSize()
	off := int64(e.startBlock)*bs + int64(offset)
	n, err := fs.file.ReadAt(buf[:size], off)
	if err != nil {
		return n, wrapError(KindIO, "read", err)
	}
	return n, nil
}

// Write copies size bytes from buf into the file at offset. A write that
// would extend past the file's current length is silently truncated to
// fit; callers that mean to grow the file must Resize first.
func (fs *FileSystem) Write(path string, buf []byte, size, offset uint64) (int, error) {
	path = normalizePath(path)
	e := fs.findLive(path)
	if e == nil || !e.isLiveFile() {
		return 0, newError(KindNotFound, "write: no such file")
	}
	if offset > e.fileLen {
		return 0, newError(KindBadState, "write: offset beyond file length")
	}
	if offset+size > e.fileLen {
		size = e.fileLen - offset
	}
	bs := fs.sb.blockSize()
	off := int64(e.startBlock)*bs + int64(offset)
	n, err := fs.file.WriteAt(buf[:size], off)
	if err != nil {
		return n, wrapError(KindIO, "write", err)
	}
	return n, nil
}

// Delete removes a file. An empty file's slot is simply reclaimed; a
// non-empty file becomes a File-deleted tombstone whose blocks stay
// claimed until reassigned.
func (fs *FileSystem) Delete(path string) error {
	path = normalizePath(path)
	e := fs.findLive(path)
	if e == nil {
		return newError(KindNotFound, "delete: no such file")
	}
	if !e.isLiveFile() {
		return newError(KindTypeMismatch, "delete: not a file")
	}
	if e.fileLen == 0 {
		return fs.entries.deleteEntry(e)
	}
	e.kind = kindFileDel
	fs.free.addTombstone(e)
	fs.logger.WithFields(logrus.Fields{
		"op": "delete", "path": path, "start": e.startBlock, "end": e.endBlock,
	}).Debug("tombstoned file")
	return fs.entries.rewrite(e)
}

// Rmdir removes an empty directory, turning it into a Directory-deleted
// tombstone.
func (fs *FileSystem) Rmdir(path string) error {
	path = normalizePath(path)
	e := fs.findLive(path)
	if e == nil {
		return newError(KindNotFound, "rmdir: no such directory")
	}
	if !e.isLiveDir() {
		return newError(KindTypeMismatch, "rmdir: not a directory")
	}
	prefix := path + "/"
	for cur := fs.entries.head; cur != nil; cur = cur.next {
		if (cur.isLiveDir() || cur.isLiveFile()) && strings.HasPrefix(cur.name, prefix) {
			return newError(KindNotEmpty, "rmdir: directory not empty")
		}
	}
	e.kind = kindDirDel
	return fs.entries.rewrite(e)
}

// renameEntry rebuilds e under newName, preserving its payload, by
// deleting the old record and placing a fresh one.
func (fs *FileSystem) renameEntry(e *Entry, newName string) error {
	newE := &Entry{
		kind:       e.kind,
		timestamp:  e.timestamp,
		name:       newName,
		startBlock: e.startBlock,
		endBlock:   e.endBlock,
		fileLen:    e.fileLen,
	}
	newE.numCont = numContFor(newE.kind, len(newName))
	if err := fs.entries.deleteEntry(e); err != nil {
		return err
	}
	return fs.entries.putNewEntry(fs.free, newE)
}

// Rename moves source to dest, optionally replacing an existing dest,
// carrying an entire directory subtree's names when source is a
// directory.
func (fs *FileSystem) Rename(source, dest string, replace bool) error {
	source = normalizePath(source)
	dest = normalizePath(dest)
	if source == dest {
		return nil
	}

	se := fs.findLive(source)
	if se == nil {
		return newError(KindNotFound, "rename: source does not exist")
	}
	if baseOf(dest) == "" {
		return newError(KindTypeMismatch, "rename: invalid destination name")
	}

	if de := fs.findLive(dest); de != nil {
		if !replace {
			return newError(KindAlreadyExists, "rename: destination exists")
		}
		if de.isLiveDir() != se.isLiveDir() {
			return newError(KindTypeMismatch, "rename: type mismatch with destination")
		}
		if de.isLiveDir() {
			prefix := dest + "/"
			for cur := fs.entries.head; cur != nil; cur = cur.next {
				if (cur.isLiveDir() || cur.isLiveFile()) && strings.HasPrefix(cur.name, prefix) {
					return newError(KindNotEmpty, "rename: destination directory not empty")
				}
			}
		}
		if err := fs.entries.deleteEntry(de); err != nil {
			return err
		}
	}

	if se.isLiveFile() {
		return fs.renameEntry(se, dest)
	}

	prefix := source + "/"
	var subtree []*Entry
	for cur := fs.entries.head; cur != nil; cur = cur.next {
		if !(cur.isLiveDir() || cur.isLiveFile()) {
			continue
		}
		if cur == se || strings.HasPrefix(cur.name, prefix) {
			subtree = append(subtree, cur)
		}
	}
	for _, cur := range subtree {
		newName := dest + cur.name[len(source):]
		if err := fs.renameEntry(cur, newName); err != nil {
			return err
		}
	}
	return nil
}

// First resets the directory iterator for path and returns its first
// child's basename, if any.
func (fs *FileSystem) First(path string) (string, bool) {
	fs.iterPath = normalizePath(path)
	fs.iterPos = fs.entries.head
	return fs.advanceIter()
}

// Next resumes the directory iterator started by First.
func (fs *FileSystem) Next() (string, bool) {
	return fs.advanceIter()
}

func (fs *FileSystem) advanceIter() (string, bool) {
	prefix := ""
	if fs.iterPath != "" {
		prefix = fs.iterPath + "/"
	}
	for cur := fs.iterPos; cur != nil; cur = cur.next {
		if !(cur.isLiveDir() || cur.isLiveFile()) {
			continue
		}
		name := cur.name
		var rel string
		matched := false
		if fs.iterPath == "" {
			if !strings.Contains(name, "/") {
				rel, matched = name, true
			}
		} else if strings.HasPrefix(name, prefix) {
			rest := name[len(prefix):]
			if !strings.Contains(rest, "/") {
				rel, matched = rest, true
			}
		}
		if matched {
			fs.iterPos = cur.next
			return rel, true
		}
	}
	fs.iterPos = nil
	return "", false
}

// SFSTime returns the superblock's last-write timestamp.
func (fs *FileSystem) SFSTime() Timestamp { return fs.sb.timeStamp }

// DirTime returns a directory entry's recorded timestamp.
func (fs *FileSystem) DirTime(path string) (Timestamp, error) {
	e := fs.findLive(normalizePath(path))
	if e == nil || !e.isLiveDir() {
		return 0, newError(KindNotFound, "no such directory")
	}
	return e.timestamp, nil
}

// FileTime returns a file entry's recorded timestamp.
func (fs *FileSystem) FileTime(path string) (Timestamp, error) {
	e := fs.findLive(normalizePath(path))
	if e == nil || !e.isLiveFile() {
		return 0, newError(KindNotFound, "no such file")
	}
	return e.timestamp, nil
}

// SetTime updates a directory or file entry's recorded timestamp.
func (fs *FileSystem) SetTime(path string, t Timestamp) error {
	e := fs.findLive(normalizePath(path))
	if e == nil {
		return newError(KindNotFound, "no such entry")
	}
	e.timestamp = t
	return fs.entries.rewrite(e)
}
