package sfs

import "github.com/naens/sfs/util"

// entryList is the singly linked, offset-ordered mirror of the Index
// Area: head is the Start Marker, tail is the Volume ID.
type entryList struct {
	file util.File
	sb   *superblock

	head *Entry
	tail *Entry
}

// loadEntryList reads the Index Area slot by slot, starting at
// end_of_image - index_size, linking entries in read order, and stops
// once the Volume ID has been decoded.
func loadEntryList(f util.File, sb *superblock) (*entryList, error) {
	l := &entryList{file: f, sb: sb}

	imageEnd := int64(sb.totalBlocks) * sb.blockSize()
	pos := imageEnd - int64(sb.indexSize)

	var prev *Entry
	for {
		header := make([]byte, slotSize)
		if _, err := f.ReadAt(header, pos); err != nil {
			return nil, wrapError(KindIO, "reading index entry", err)
		}
		kind, numCont := peekHeader(header)

		full := header
		if numCont > 0 {
			full = make([]byte, slotSize*(1+numCont))
			copy(full, header)
			if _, err := f.ReadAt(full[slotSize:], pos+slotSize); err != nil {
				return nil, wrapError(KindIO, "reading entry continuations", err)
			}
		}

		e, err := decodeEntry(full, pos)
		if err != nil {
			return nil, err
		}

		if prev == nil {
			l.head = e
		} else {
			prev.next = e
		}
		prev = e
		pos += e.entryBytes()

		if kind == kindVolume {
			l.tail = e
			break
		}
	}
	return l, nil
}

// persistEntry writes e's current payload to its recorded offset.
func (l *entryList) persistEntry(e *Entry) error {
	if _, err := l.file.WriteAt(e.toBytes(), e.offset); err != nil {
		return wrapError(KindIO, "writing index entry", err)
	}
	return nil
}

// findPrev walks the list to find the node immediately preceding e, or
// nil if e is the head.
func (l *entryList) findPrev(e *Entry) *Entry {
	if l.head == e {
		return nil
	}
	for cur := l.head; cur != nil; cur = cur.next {
		if cur.next == e {
			return cur
		}
	}
	return nil
}

// insertEntry scans for a contiguous run of reusable entries (Unused
// slots and tombstones) whose usable space totals at least new's slot
// count, reclaims it, and places new at the start of that run, padding
// any leftover slots with fresh Unused entries.
func (l *entryList) insertEntry(fl *freeList, newEntry *Entry) error {
	k := newEntry.slotCount()

	var runStart, runPrev, prev *Entry
	runTotal := 0

	for cur := l.head; cur != nil; cur = cur.next {
		u := cur.usableSpace()
		if u == 0 {
			runStart, runTotal = nil, 0
		} else {
			if runStart == nil {
				runStart = cur
				runPrev = prev
			}
			runTotal += u
			if runTotal >= k {
				return l.claimRun(fl, runPrev, runStart, cur, runTotal, newEntry)
			}
		}
		prev = cur
	}
	return newError(KindNoSpace, "no reusable run large enough")
}

// claimRun retires every entry in [runStart, runEnd], releasing any
// File-deleted tombstone's blocks back to normal, then places newEntry at
// the freed offset and pads the remainder with Unused slots.
func (l *entryList) claimRun(fl *freeList, runPrev, runStart, runEnd *Entry, runTotal int, newEntry *Entry) error {
	for cur := runStart; ; cur = cur.next {
		if cur.isFileDel() {
			if err := fl.tombstoneToNormal(cur); err != nil {
				return err
			}
		}
		if cur == runEnd {
			break
		}
	}

	startOffset := runStart.offset
	after := runEnd.next

	newEntry.offset = startOffset
	if err := l.persistEntry(newEntry); err != nil {
		return err
	}
	newEntry.next = after
	if runPrev == nil {
		l.head = newEntry
	} else {
		runPrev.next = newEntry
	}

	remaining := runTotal - newEntry.slotCount()
	off := startOffset + newEntry.entryBytes()
	cursor := newEntry
	for i := 0; i < remaining; i++ {
		u := &Entry{kind: kindUnused, offset: off}
		if err := l.persistEntry(u); err != nil {
			return err
		}
		u.next = cursor.next
		cursor.next = u
		cursor = u
		off += slotSize
	}
	return nil
}

// prependEntry grows the Index Area toward the Superblock when no
// reusable run exists: the Start Marker migrates to a lower offset and
// new occupies the slot(s) vacated between its old and new position.
func (l *entryList) prependEntry(fl *freeList, newEntry *Entry) error {
	s := newEntry.entryBytes()
	bs := l.sb.blockSize()

	if fl.last == nil || int64(fl.last.length)*bs < s {
		return newError(KindNoSpace, "index area cannot grow: data area exhausted")
	}

	oldIndexSize := int64(l.sb.indexSize)
	newIndexSize := oldIndexSize + s
	oldBlocks := ceilDiv(oldIndexSize, bs)
	newBlocks := ceilDiv(newIndexSize, bs)
	if consumed := newBlocks - oldBlocks; consumed > 0 {
		fl.last.length -= uint64(consumed)
		fl.dataBlocks -= uint64(consumed)
	}

	start := l.head
	if !start.isStart() {
		return newError(KindBadState, "entry list head is not the Start Marker")
	}
	oldStartOffset := start.offset
	start.offset = oldStartOffset - s
	newEntry.offset = oldStartOffset + slotSize - s

	if err := l.persistEntry(newEntry); err != nil {
		return err
	}
	if err := l.persistEntry(start); err != nil {
		return err
	}
	l.sb.indexSize = uint64(newIndexSize)
	if err := writeSuper(l.file, l.sb); err != nil {
		return err
	}

	newEntry.next = start.next
	start.next = newEntry
	fl.rebuildBitmap()
	return nil
}

// deleteEntry replaces e's slots with individually-persisted Unused
// entries in place and unlinks e from the list.
func (l *entryList) deleteEntry(e *Entry) error {
	n := e.slotCount()
	off := e.offset

	var firstU, lastU *Entry
	for i := 0; i < n; i++ {
		u := &Entry{kind: kindUnused, offset: off}
		if err := l.persistEntry(u); err != nil {
			return err
		}
		if firstU == nil {
			firstU = u
		} else {
			lastU.next = u
		}
		lastU = u
		off += slotSize
	}

	prev := l.findPrev(e)
	lastU.next = e.next
	if prev == nil {
		l.head = firstU
	} else {
		prev.next = firstU
	}
	if l.tail == e {
		l.tail = lastU
	}
	return nil
}

// rewrite rebuilds e's on-disk record from its current payload and
// persists it in place.
func (l *entryList) rewrite(e *Entry) error {
	return l.persistEntry(e)
}

// putNewEntry tries insertEntry first, falling back to prependEntry when
// no reusable run is found.
func (l *entryList) putNewEntry(fl *freeList, newEntry *Entry) error {
	err := l.insertEntry(fl, newEntry)
	if err == nil {
		return nil
	}
	if k, ok := KindOf(err); ok && k == KindNoSpace {
		return l.prependEntry(fl, newEntry)
	}
	return err
}
