package sfs

import (
	"sort"

	"github.com/bits-and-blooms/bitset"
)

// freeNode is one sorted range of the Data Area: either pure-free
// (delfile == nil) or a File-deleted entry's still-occupied range
// (delfile points at the tombstone that owns it).
type freeNode struct {
	start   uint64
	length  uint64
	delfile *Entry

	prev, next *freeNode
}

// freeList is the sorted-by-start_block mirror of the Data Area: an
// ascending chain of freeNodes, terminated by a node covering the range up
// to the first Index Area block (possibly zero length when the image is
// full).
type freeList struct {
	head *freeNode
	last *freeNode

	dataBlocks uint64
	bitmap     *bitset.BitSet
}

// buildFreeList derives the free list from a freshly loaded entry list.
// Live-File and Unusable ranges are occupied: they never become nodes,
// they only bound the gaps. Only File-deleted ranges (still claimed, slot
// reusable) and the pure-free gaps between occupied ranges (and up to the
// first Index Area block) are emitted.
func buildFreeList(entries *entryList, sb *superblock) (*freeList, error) {
	type raw struct {
		start, length uint64
		delfile       *Entry
	}
	var occupied []raw
	for cur := entries.head; cur != nil; cur = cur.next {
		switch {
		case cur.isLiveFile() && cur.fileLen > 0:
			occupied = append(occupied, raw{start: cur.startBlock, length: cur.endBlock - cur.startBlock + 1})
		case cur.isUnusable():
			occupied = append(occupied, raw{start: cur.startBlock, length: cur.endBlock - cur.startBlock + 1})
		case cur.isFileDel():
			occupied = append(occupied, raw{start: cur.startBlock, length: cur.endBlock - cur.startBlock + 1, delfile: cur})
		}
	}
	sort.Slice(occupied, func(i, j int) bool { return occupied[i].start < occupied[j].start })

	fl := &freeList{}
	firstDataBlock := uint64(sb.rsvdBlocks)
	prevEnd := firstDataBlock

	appendNode := func(n *freeNode) {
		if fl.head == nil {
			fl.head = n
		} else {
			fl.last.next = n
			n.prev = fl.last
		}
		fl.last = n
	}

	for _, rn := range occupied {
		if rn.start > prevEnd {
			appendNode(&freeNode{start: prevEnd, length: rn.start - prevEnd})
		}
		if rn.delfile != nil {
			appendNode(&freeNode{start: rn.start, length: rn.length, delfile: rn.delfile})
		}
		prevEnd = rn.start + rn.length
	}

	fib := sb.firstIndexBlock()
	if fib > prevEnd {
		appendNode(&freeNode{start: prevEnd, length: fib - prevEnd})
	} else {
		appendNode(&freeNode{start: fib, length: 0})
	}

	fl.dataBlocks = fib - firstDataBlock
	fl.rebuildBitmap()
	return fl, nil
}

// firstIndexBlock is the block number where the Index Area begins: the
// last addressable Data Area block is firstIndexBlock-1.
func (sb *superblock) firstIndexBlock() uint64 {
	blocks := ceilDiv(int64(sb.indexSize), sb.blockSize())
	return sb.totalBlocks - uint64(blocks)
}

func ceilDiv(a, b int64) int64 {
	if a <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

// rebuildBitmap refreshes the bits-and-blooms/bitset mirror that
// FreeBlockCount counts; it is a read-side convenience cache, not part of
// the persisted state.
func (fl *freeList) rebuildBitmap() {
	bm := bitset.New(uint(fl.dataBlocks))
	for n := fl.head; n != nil; n = n.next {
		if n.delfile == nil {
			for b := n.start; b < n.start+n.length; b++ {
				bm.Set(uint(b))
			}
		}
	}
	fl.bitmap = bm
}

// FreeBlockCount returns how many Data Area blocks are currently free.
func (fl *freeList) FreeBlockCount() uint {
	if fl.bitmap == nil {
		return 0
	}
	return fl.bitmap.Count()
}

func (fl *freeList) unlink(n *freeNode) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		fl.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	}
	if fl.last == n {
		fl.last = n.prev
	}
}

func (fl *freeList) insertBetween(prev, next, n *freeNode) {
	n.prev = prev
	n.next = next
	if prev != nil {
		prev.next = n
	} else {
		fl.head = n
	}
	if next != nil {
		next.prev = n
	} else {
		fl.last = n
	}
}

// addTombstone inserts a node that keeps a File-deleted entry's blocks
// claimed: unlike add, it never merges with pure-free neighbors, since a
// delfile node is never pure-free itself.
func (fl *freeList) addTombstone(e *Entry) {
	start := e.startBlock
	length := e.endBlock - e.startBlock + 1
	var prev *freeNode
	cur := fl.head
	for cur != nil && cur.start < start {
		prev = cur
		cur = cur.next
	}
	fl.insertBetween(prev, cur, &freeNode{start: start, length: length, delfile: e})
	fl.rebuildBitmap()
}

// find scans for a run of adjacent nodes (abutting regardless of delfile
// status) starting at a block >= startMin, with cumulative length >=
// length, and returns the first node of that run.
func (fl *freeList) find(startMin, length uint64) (*freeNode, error) {
	for n := fl.head; n != nil; n = n.next {
		if n.start < startMin {
			continue
		}
		total := uint64(0)
		cur := n
		for cur != nil {
			total += cur.length
			if total >= length {
				return n, nil
			}
			next := cur.next
			if next == nil || next.start != cur.start+cur.length {
				break
			}
			cur = next
		}
	}
	return nil, newError(KindNotFound, "free list: no run large enough")
}

// del consumes length blocks starting at the head of from, peeling whole
// nodes (purging any tombstone they carried from the entry list) before
// trimming the final partial node.
func (fl *freeList) del(entries *entryList, from *freeNode, length uint64) error {
	remaining := length
	cur := from
	for remaining > 0 && cur != nil {
		if cur.length <= remaining {
			remaining -= cur.length
			if cur.delfile != nil {
				if err := entries.deleteEntry(cur.delfile); err != nil {
					return err
				}
			}
			if cur == fl.last {
				// The terminal node always covers the range up to the
				// first Index Area block; trim it to zero instead of
				// unlinking it.
				cur.start += cur.length
				cur.length = 0
				cur.delfile = nil
				cur = cur.next
				continue
			}
			next := cur.next
			fl.unlink(cur)
			cur = next
		} else {
			cur.start += remaining
			cur.length -= remaining
			cur.delfile = nil
			remaining = 0
		}
	}
	if remaining > 0 {
		return newError(KindNoSpace, "free list: run exhausted before requested length")
	}
	fl.rebuildBitmap()
	return nil
}

// add inserts a normal (pure-free) range, merging with an abutting
// neighbor only when that neighbor is itself pure-free, so a pure-free run
// is always a single node.
func (fl *freeList) add(start, length uint64) {
	if length == 0 {
		return
	}
	var prev *freeNode
	cur := fl.head
	for cur != nil && cur.start < start {
		prev = cur
		cur = cur.next
	}
	mergedPrev := prev != nil && prev.delfile == nil && prev.start+prev.length == start
	mergedNext := cur != nil && cur.delfile == nil && start+length == cur.start

	switch {
	case mergedPrev && mergedNext:
		prev.length += length + cur.length
		fl.unlink(cur)
	case mergedPrev:
		prev.length += length
	case mergedNext:
		cur.start = start
		cur.length += length
	default:
		fl.insertBetween(prev, cur, &freeNode{start: start, length: length})
	}
	fl.rebuildBitmap()
}

// tombstoneToNormal clears a File-deleted back-pointer once its slot has
// been reused by insert_entry, merging the now-pure-free node with
// abutting pure-free neighbors.
func (fl *freeList) tombstoneToNormal(delfile *Entry) error {
	var n *freeNode
	for cur := fl.head; cur != nil; cur = cur.next {
		if cur.delfile == delfile {
			n = cur
			break
		}
	}
	if n == nil {
		return newError(KindBadState, "free list: tombstone node not found")
	}
	n.delfile = nil
	if n.prev != nil && n.prev.delfile == nil && n.prev.start+n.prev.length == n.start {
		prev := n.prev
		prev.length += n.length
		fl.unlink(n)
		n = prev
	}
	if n.next != nil && n.next.delfile == nil && n.start+n.length == n.next.start {
		next := n.next
		n.length += next.length
		fl.unlink(next)
	}
	fl.rebuildBitmap()
	return nil
}
