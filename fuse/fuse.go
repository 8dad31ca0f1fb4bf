// Package fuse bridges an sfs.FileSystem to the kernel via jacobsa/fuse,
// exposing the single flat volume as a read-write mount.
package fuse

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/naens/sfs/filesystem/sfs"
)

// MountOptions configures a Mount call.
type MountOptions struct {
	ReadOnly bool
	Logger   *logrus.Logger
}

// Mount mounts fs at mountpoint and returns the live *fuse.MountedFileSystem,
// whose Join blocks until the mount is torn down.
func Mount(ctx context.Context, fs *sfs.FileSystem, mountpoint string, opts MountOptions) (*fuse.MountedFileSystem, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
	}
	sessionID := uuid.New().String()

	server := fuseutil.NewFileSystemServer(&bridge{
		fs:       fs,
		logger:   logger.WithField("session", sessionID),
		uid:      uint32(os.Getuid()),
		gid:      uint32(os.Getgid()),
		inodes:   newInodeCache(),
		handles:  make(map[fuseops.HandleID]string),
		readOnly: opts.ReadOnly,
	})

	cfg := &fuse.MountConfig{
		FSName:   "sfs",
		ReadOnly: opts.ReadOnly,
		Options: map[string]string{
			"allow_other": "",
		},
	}
	return fuse.Mount(mountpoint, server, cfg)
}

// bridge implements fuseutil.FileSystem over a single sfs.FileSystem volume,
// keyed by normalized slash-separated path rather than by on-disk inode: sfs
// entries do not carry a stable numeric identity of their own, so the inode
// space is synthesized and kept in sync with LookUpInode/ForgetInode calls.
type bridge struct {
	fuseutil.NotImplementedFileSystem

	fs       *sfs.FileSystem
	logger   *logrus.Entry
	uid, gid uint32
	readOnly bool

	// mu serializes every call into the core as well as guarding the
	// inode and handle tables: the core's in-memory lists are not safe
	// to touch from concurrent request threads.
	mu      sync.Mutex
	inodes  *inodeCache
	nextH   fuseops.HandleID
	handles map[fuseops.HandleID]string
}

func errno(err error) error {
	if err == nil {
		return nil
	}
	kind, ok := sfs.KindOf(err)
	if !ok {
		return fuse.EIO
	}
	switch kind {
	case sfs.KindNotFound:
		return fuse.ENOENT
	case sfs.KindAlreadyExists:
		return syscall.EEXIST
	case sfs.KindNotEmpty:
		return syscall.ENOTEMPTY
	case sfs.KindTypeMismatch:
		return syscall.EISDIR
	case sfs.KindNoSpace:
		return syscall.ENOSPC
	case sfs.KindBadState:
		return syscall.EINVAL
	default:
		return fuse.EIO
	}
}

func (b *bridge) attrsFor(path string) (fuseops.InodeAttributes, error) {
	if path == "" {
		return fuseops.InodeAttributes{
			Size:  0,
			Nlink: 1,
			Mode:  os.ModeDir | 0755,
			Uid:   b.uid,
			Gid:   b.gid,
			Atime: time.Now(),
			Mtime: time.Now(),
			Ctime: time.Now(),
		}, nil
	}
	switch {
	case b.fs.IsDir(path):
		ts, err := b.fs.DirTime(path)
		if err != nil {
			return fuseops.InodeAttributes{}, err
		}
		t := ts.Time()
		return fuseops.InodeAttributes{
			Nlink: 1,
			Mode:  os.ModeDir | 0755,
			Uid:   b.uid,
			Gid:   b.gid,
			Atime: t, Mtime: t, Ctime: t,
		}, nil
	case b.fs.IsFile(path):
		ts, err := b.fs.FileTime(path)
		if err != nil {
			return fuseops.InodeAttributes{}, err
		}
		t := ts.Time()
		return fuseops.InodeAttributes{
			Size:  b.fs.GetFileSize(path),
			Nlink: 1,
			Mode:  0644,
			Uid:   b.uid,
			Gid:   b.gid,
			Atime: t, Mtime: t, Ctime: t,
		}, nil
	default:
		return fuseops.InodeAttributes{}, sfs.NewError(sfs.KindNotFound, "no such path")
	}
}

func (b *bridge) StatFS(ctx context.Context, op *fuseops.StatFSOp) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	op.BlockSize = uint32(b.fs.BlockSize())
	op.IoSize = 65536
	op.Blocks = b.fs.TotalDataBlocks()
	op.BlocksFree = b.fs.FreeBlockCount()
	op.BlocksAvailable = op.BlocksFree
	return nil
}

func (b *bridge) LookUpInode(ctx context.Context, op *fuseops.LookUpInodeOp) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	parent, ok := b.inodes.path(op.Parent)
	if !ok {
		return fuse.ENOENT
	}
	child := op.Name
	if parent != "" {
		child = parent + "/" + op.Name
	}
	attrs, err := b.attrsFor(child)
	if err != nil {
		return errno(err)
	}
	op.Entry.Child = b.inodes.allocate(child)
	op.Entry.Attributes = attrs
	op.Entry.AttributesExpiration = time.Now().Add(time.Second)
	op.Entry.EntryExpiration = time.Now().Add(time.Second)
	return nil
}

func (b *bridge) ForgetInode(ctx context.Context, op *fuseops.ForgetInodeOp) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inodes.forget(op.Inode, op.N)
	return nil
}

func (b *bridge) GetInodeAttributes(ctx context.Context, op *fuseops.GetInodeAttributesOp) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	path, ok := b.inodes.path(op.Inode)
	if !ok {
		return fuse.ENOENT
	}
	attrs, err := b.attrsFor(path)
	if err != nil {
		return errno(err)
	}
	op.Attributes = attrs
	op.AttributesExpiration = time.Now().Add(time.Second)
	return nil
}

func (b *bridge) SetInodeAttributes(ctx context.Context, op *fuseops.SetInodeAttributesOp) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	path, ok := b.inodes.path(op.Inode)
	if !ok {
		return fuse.ENOENT
	}
	if op.Size != nil {
		if err := b.fs.Resize(path, *op.Size); err != nil {
			return errno(err)
		}
	}
	attrs, err := b.attrsFor(path)
	if err != nil {
		return errno(err)
	}
	op.Attributes = attrs
	return nil
}

func (b *bridge) MkDir(ctx context.Context, op *fuseops.MkDirOp) error {
	if b.readOnly {
		return syscall.EROFS
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	parent, ok := b.inodes.path(op.Parent)
	if !ok {
		return fuse.ENOENT
	}
	path := joinPath(parent, op.Name)
	if err := b.fs.Mkdir(path); err != nil {
		return errno(err)
	}
	attrs, err := b.attrsFor(path)
	if err != nil {
		return errno(err)
	}
	op.Entry.Child = b.inodes.allocate(path)
	op.Entry.Attributes = attrs
	return nil
}

func (b *bridge) RmDir(ctx context.Context, op *fuseops.RmDirOp) error {
	if b.readOnly {
		return syscall.EROFS
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	parent, ok := b.inodes.path(op.Parent)
	if !ok {
		return fuse.ENOENT
	}
	return errno(b.fs.Rmdir(joinPath(parent, op.Name)))
}

func (b *bridge) CreateFile(ctx context.Context, op *fuseops.CreateFileOp) error {
	if b.readOnly {
		return syscall.EROFS
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	parent, ok := b.inodes.path(op.Parent)
	if !ok {
		return fuse.ENOENT
	}
	path := joinPath(parent, op.Name)
	if err := b.fs.Create(path); err != nil {
		return errno(err)
	}
	attrs, err := b.attrsFor(path)
	if err != nil {
		return errno(err)
	}
	op.Entry.Child = b.inodes.allocate(path)
	op.Entry.Attributes = attrs
	op.Handle = b.openHandle(path)
	return nil
}

func (b *bridge) Unlink(ctx context.Context, op *fuseops.UnlinkOp) error {
	if b.readOnly {
		return syscall.EROFS
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	parent, ok := b.inodes.path(op.Parent)
	if !ok {
		return fuse.ENOENT
	}
	return errno(b.fs.Delete(joinPath(parent, op.Name)))
}

func (b *bridge) Rename(ctx context.Context, op *fuseops.RenameOp) error {
	if b.readOnly {
		return syscall.EROFS
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	oldParent, ok := b.inodes.path(op.OldParent)
	if !ok {
		return fuse.ENOENT
	}
	newParent, ok := b.inodes.path(op.NewParent)
	if !ok {
		return fuse.ENOENT
	}
	src := joinPath(oldParent, op.OldName)
	dst := joinPath(newParent, op.NewName)
	if err := b.fs.Rename(src, dst, true); err != nil {
		return errno(err)
	}
	b.inodes.rename(src, dst)
	return nil
}

func (b *bridge) OpenDir(ctx context.Context, op *fuseops.OpenDirOp) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	path, ok := b.inodes.path(op.Inode)
	if !ok {
		return fuse.ENOENT
	}
	if path != "" && !b.fs.IsDir(path) {
		return syscall.ENOTDIR
	}
	return nil
}

func (b *bridge) ReadDir(ctx context.Context, op *fuseops.ReadDirOp) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	path, ok := b.inodes.path(op.Inode)
	if !ok {
		return fuse.ENOENT
	}

	infos, err := b.fs.ReadDir(path)
	if err != nil {
		return errno(err)
	}

	var entries []fuseutil.Dirent
	for i, fi := range infos {
		typ := fuseutil.DT_File
		if fi.IsDir() {
			typ = fuseutil.DT_Directory
		}
		child := joinPath(path, fi.Name())
		inode := b.inodes.allocate(child)
		entries = append(entries, fuseutil.Dirent{
			Offset: fuseops.DirOffset(i + 1),
			Inode:  inode,
			Name:   fi.Name(),
			Type:   typ,
		})
	}

	if int(op.Offset) > len(entries) {
		return syscall.EINVAL
	}
	for _, e := range entries[op.Offset:] {
		n := fuseutil.WriteDirent(op.Dst[op.BytesRead:], e)
		if n == 0 {
			break
		}
		op.BytesRead += n
	}
	return nil
}

func (b *bridge) OpenFile(ctx context.Context, op *fuseops.OpenFileOp) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	path, ok := b.inodes.path(op.Inode)
	if !ok {
		return fuse.ENOENT
	}
	if !b.fs.IsFile(path) {
		return fuse.ENOENT
	}
	op.Handle = b.openHandle(path)
	op.KeepPageCache = false
	return nil
}

// openHandle must be called with b.mu held.
func (b *bridge) openHandle(path string) fuseops.HandleID {
	b.nextH++
	h := b.nextH
	b.handles[h] = path
	return h
}

func (b *bridge) ReleaseFileHandle(ctx context.Context, op *fuseops.ReleaseFileHandleOp) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handles, op.Handle)
	return nil
}

func (b *bridge) ReadFile(ctx context.Context, op *fuseops.ReadFileOp) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	path, ok := b.handles[op.Handle]
	if !ok {
		return fuse.EIO
	}
	n, err := b.fs.Read(path, op.Dst, uint64(len(op.Dst)), uint64(op.Offset))
	op.BytesRead = n
	if err == io.EOF {
		err = nil
	}
	if err != nil {
		return errno(err)
	}
	return nil
}

func (b *bridge) WriteFile(ctx context.Context, op *fuseops.WriteFileOp) error {
	if b.readOnly {
		return syscall.EROFS
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	path, ok := b.handles[op.Handle]
	if !ok {
		return fuse.EIO
	}
	end := uint64(op.Offset) + uint64(len(op.Data))
	if end > b.fs.GetFileSize(path) {
		if err := b.fs.Resize(path, end); err != nil {
			return errno(err)
		}
	}
	_, err := b.fs.Write(path, op.Data, uint64(len(op.Data)), uint64(op.Offset))
	return errno(err)
}

func (b *bridge) FlushFile(ctx context.Context, op *fuseops.FlushFileOp) error { return nil }
func (b *bridge) SyncFile(ctx context.Context, op *fuseops.SyncFileOp) error  { return nil }

func (b *bridge) Destroy() {
	_ = b.fs.Close()
}

func joinPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "/" + name
}

// Unmount detaches a mount lazily, so a still-open file descriptor from a
// lingering process does not cause the call to fail outright.
func Unmount(mountpoint string) error {
	return unix.Unmount(mountpoint, unix.MNT_DETACH)
}

func (b *bridge) String() string {
	return fmt.Sprintf("sfs-fuse(session=%s)", b.logger.Data["session"])
}
