package fuse

import (
	"strings"

	"github.com/jacobsa/fuse/fuseops"
)

// inodeCache is the bidirectional path <-> fuseops.InodeID table backing
// the bridge: sfs entries carry no stable numeric identity of their own, so
// inode numbers are synthesized lazily on LookUpInode and retired on
// ForgetInode, exactly as the kernel's reference-counting protocol expects.
type inodeCache struct {
	byPath  map[string]fuseops.InodeID
	byInode map[fuseops.InodeID]string
	refs    map[fuseops.InodeID]uint64
	next    fuseops.InodeID
}

func newInodeCache() *inodeCache {
	c := &inodeCache{
		byPath:  make(map[string]fuseops.InodeID),
		byInode: make(map[fuseops.InodeID]string),
		refs:    make(map[fuseops.InodeID]uint64),
		next:    fuseops.RootInodeID,
	}
	c.byPath[""] = fuseops.RootInodeID
	c.byInode[fuseops.RootInodeID] = ""
	c.refs[fuseops.RootInodeID] = 1
	c.next = fuseops.RootInodeID + 1
	return c
}

// allocate returns the inode for path, minting a fresh one if this is the
// first time path has been looked up, and bumping its lookup refcount.
func (c *inodeCache) allocate(path string) fuseops.InodeID {
	if id, ok := c.byPath[path]; ok {
		c.refs[id]++
		return id
	}
	id := c.next
	c.next++
	c.byPath[path] = id
	c.byInode[id] = path
	c.refs[id] = 1
	return id
}

func (c *inodeCache) path(id fuseops.InodeID) (string, bool) {
	p, ok := c.byInode[id]
	return p, ok
}

// forget drops n lookup references to id, retiring it once the count hits
// zero (the root inode, whose path is "", is never retired).
func (c *inodeCache) forget(id fuseops.InodeID, n uint64) {
	if id == fuseops.RootInodeID {
		return
	}
	if c.refs[id] <= n {
		if p, ok := c.byInode[id]; ok {
			delete(c.byPath, p)
		}
		delete(c.byInode, id)
		delete(c.refs, id)
		return
	}
	c.refs[id] -= n
}

// rename updates every cached inode whose path was src or nested under
// src/, after a successful filesystem-level move of a file or a whole
// directory subtree.
func (c *inodeCache) rename(src, dst string) {
	for id, p := range c.byInode {
		if p != src && !strings.HasPrefix(p, src+"/") {
			continue
		}
		newPath := dst + strings.TrimPrefix(p, src)
		delete(c.byPath, p)
		c.byInode[id] = newPath
		c.byPath[newPath] = id
	}
}
