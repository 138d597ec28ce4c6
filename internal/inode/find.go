package inode

import (
	"github.com/bnahill/FLogFS/internal/layout"
	"github.com/bnahill/FLogFS/internal/pagecache"
)

// Result bundles a live entry with the iterator position it was found at.
type Result struct {
	Entry    layout.InodeAllocationEntry
	Invalid  layout.InodeInvalidationEntry
	Iterator *Iterator
}

// FindFile walks the table from inode0 looking for a live entry with the
// given name (§4.3). On a miss, the returned iterator is left positioned
// at the first free entry, ready for PrepareNew — callers that need to
// create a new entry on a miss can reuse it directly instead of walking
// the table again.
func FindFile(pc *pagecache.Shim, geom layout.Geometry, name string) (*Result, *Iterator, bool, error) {
	it, err := FromInode0(pc, geom)
	if err != nil {
		return nil, nil, false, err
	}
	for {
		entry, inval, err := it.ReadEntry()
		if err != nil {
			return nil, nil, false, err
		}
		if entry.FileID == layout.FileIDInvalid {
			return nil, it, false, nil
		}
		if entry.Name() == name && inval.Timestamp == layout.TimestampInvalid {
			return &Result{Entry: entry, Invalid: inval, Iterator: it}, it, true, nil
		}
		if err := it.Next(); err != nil {
			return nil, nil, false, err
		}
		if it.AtEnd() {
			return nil, it, false, nil
		}
	}
}

// Entry is one name surfaced by List.
type Entry struct {
	Name   string
	FileID uint32
}

// List enumerates every live filename in inode-position order (§8,
// property 5), used by ls_start/ls_iterate.
func List(pc *pagecache.Shim, geom layout.Geometry) ([]Entry, error) {
	it, err := FromInode0(pc, geom)
	if err != nil {
		return nil, err
	}
	var out []Entry
	for {
		entry, inval, err := it.ReadEntry()
		if err != nil {
			return nil, err
		}
		if entry.FileID == layout.FileIDInvalid {
			return out, nil
		}
		if inval.Timestamp == layout.TimestampInvalid {
			out = append(out, Entry{Name: entry.Name(), FileID: entry.FileID})
		}
		if err := it.Next(); err != nil {
			return nil, err
		}
		if it.AtEnd() {
			return out, nil
		}
	}
}
