// Package fsck checks an SFS volume's structural invariants: extent
// bounds, extent overlap, free-list coalescing, whole-volume block
// accounting, Index Area contiguity, and per-entry checksums.
package fsck

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/naens/sfs/filesystem/sfs"
)

// Violation describes a single invariant failure.
type Violation struct {
	Property string
	Detail   string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s", v.Property, v.Detail)
}

// Check runs every invariant check concurrently against a snapshot of fs's
// entry list and free list, since each check reads a disjoint view of the
// same frozen state and none mutate it. All violations are collected
// rather than stopping at the first, so one run reports everything wrong
// with an image at once.
func Check(fs *sfs.FileSystem) ([]Violation, error) {
	entries := fs.Entries()
	free := fs.FreeNodes()

	checks := []func() []Violation{
		func() []Violation { return checkExtentBounds(fs, entries) },
		func() []Violation { return checkExtentOverlap(entries) },
		func() []Violation { return checkFreeCoalescing(free) },
		func() []Violation { return checkBlockAccounting(fs, entries, free) },
		func() []Violation { return checkIndexContiguity(entries) },
		func() []Violation { return checkIndexSize(fs, entries) },
		func() []Violation { return checkEntryChecksums(entries) },
	}

	results := make([][]Violation, len(checks))
	g, _ := errgroup.WithContext(context.Background())
	for i, check := range checks {
		i, check := i, check
		g.Go(func() error {
			results[i] = check()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []Violation
	for _, r := range results {
		all = append(all, r...)
	}
	return all, nil
}

// checkExtentBounds verifies every live file's end_block lies strictly
// before the first Index Area block.
func checkExtentBounds(fs *sfs.FileSystem, entries []sfs.EntrySnapshot) []Violation {
	var out []Violation
	fib := fs.FirstIndexBlock()
	for _, e := range entries {
		if e.Kind != sfs.KindEntryFile || e.FileLen == 0 {
			continue
		}
		if e.EndBlock >= fib {
			out = append(out, Violation{"file-extent-bounds", fmt.Sprintf("file %q end_block %d >= first index block %d", e.Name, e.EndBlock, fib)})
		}
	}
	return out
}

type blockRange struct {
	name       string
	start, end uint64
}

// checkExtentOverlap verifies live-file and Unusable block ranges are
// pairwise disjoint.
func checkExtentOverlap(entries []sfs.EntrySnapshot) []Violation {
	var ranges []blockRange
	for _, e := range entries {
		switch {
		case e.Kind == sfs.KindEntryFile && e.FileLen > 0:
			ranges = append(ranges, blockRange{e.Name, e.StartBlock, e.EndBlock})
		case e.Kind == sfs.KindEntryUnusable:
			ranges = append(ranges, blockRange{"<unusable>", e.StartBlock, e.EndBlock})
		}
	}
	var out []Violation
	for i := 0; i < len(ranges); i++ {
		for j := i + 1; j < len(ranges); j++ {
			a, b := ranges[i], ranges[j]
			if a.start <= b.end && b.start <= a.end {
				out = append(out, Violation{"extent-overlap", fmt.Sprintf("%q [%d,%d] overlaps %q [%d,%d]", a.name, a.start, a.end, b.name, b.start, b.end)})
			}
		}
	}
	return out
}

// checkFreeCoalescing verifies no two abutting free-list nodes are both
// pure-free: a pure-free run is always maximally coalesced into one node.
func checkFreeCoalescing(free []sfs.FreeNodeSnapshot) []Violation {
	var out []Violation
	for i := 0; i+1 < len(free); i++ {
		a, b := free[i], free[i+1]
		if !a.Tombstone && !b.Tombstone && a.Start+a.Length >= b.Start {
			out = append(out, Violation{"free-coalescing", fmt.Sprintf("adjacent pure-free nodes at %d and %d were not coalesced", a.Start, b.Start)})
		}
	}
	return out
}

// checkBlockAccounting verifies live-file + unusable + tombstoned-file +
// pure-free block counts sum to the Data Area size.
func checkBlockAccounting(fs *sfs.FileSystem, entries []sfs.EntrySnapshot, free []sfs.FreeNodeSnapshot) []Violation {
	var total uint64
	for _, e := range entries {
		switch {
		case e.Kind == sfs.KindEntryFile && e.FileLen > 0:
			total += e.EndBlock - e.StartBlock + 1
		case e.Kind == sfs.KindEntryUnusable:
			total += e.EndBlock - e.StartBlock + 1
		}
	}
	for _, n := range free {
		total += n.Length
	}
	dataSize := fs.FirstIndexBlock() - fs.RsvdBlocks()
	if total != dataSize {
		return []Violation{{"block-accounting", fmt.Sprintf("accounted blocks %d != data area size %d", total, dataSize)}}
	}
	return nil
}

// checkIndexContiguity verifies the entry list's offsets are contiguous.
func checkIndexContiguity(entries []sfs.EntrySnapshot) []Violation {
	var out []Violation
	for i := 0; i+1 < len(entries); i++ {
		e, next := entries[i], entries[i+1]
		if e.Offset+e.EntryBytes() != next.Offset {
			out = append(out, Violation{"index-contiguity", fmt.Sprintf("entry at %d (size %d) does not abut entry at %d", e.Offset, e.EntryBytes(), next.Offset)})
		}
	}
	return out
}

// checkIndexSize verifies the superblock's recorded index_size matches the
// sum of every entry's on-disk size.
func checkIndexSize(fs *sfs.FileSystem, entries []sfs.EntrySnapshot) []Violation {
	var sum int64
	for _, e := range entries {
		sum += e.EntryBytes()
	}
	if uint64(sum) != fs.IndexSize() {
		return []Violation{{"index-size", fmt.Sprintf("sum of entry sizes %d != super.index_size %d", sum, fs.IndexSize())}}
	}
	return nil
}

// checkEntryChecksums verifies every entry's on-disk checksum wraps to
// zero.
func checkEntryChecksums(entries []sfs.EntrySnapshot) []Violation {
	var out []Violation
	for _, e := range entries {
		if !e.ChecksumOK {
			out = append(out, Violation{"entry-checksum", fmt.Sprintf("entry %q at offset %d fails its checksum", e.Name, e.Offset)})
		}
	}
	return out
}
