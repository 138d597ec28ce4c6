// Package lockset provides the three named locks of §5: a global
// filesystem lock, and two narrow inner locks (allocate, delete) that
// serialize the allocator state and the deletion chain-walk respectively.
//
// Grounded on lockmap/lock.go's acquire/release shape, simplified from a
// sharded per-address lock map down to three fixed locks: FLogFS's
// concurrency model is "one fs-lock held for the duration of every public
// operation", not independent per-block locking, so sharding buys nothing
// here.
package lockset

import "sync"

// Locks bundles the three locks a Filesystem holds, enforcing the
// outermost-to-innermost order of §5: fs-lock, then flash-lock (owned by
// the flash.Device itself), then at most one of allocate-lock or
// delete-lock.
type Locks struct {
	fs       sync.Mutex
	allocate sync.Mutex
	deleteMu sync.Mutex
}

// FS acquires the global filesystem lock held for the entirety of every
// public operation (mount, format, open, close, read, write, remove, ls).
func (l *Locks) FS() func() {
	l.fs.Lock()
	return l.fs.Unlock
}

// Allocate acquires the narrow region guarding prealloc, dirty_block,
// free_block_bitmap, allocate_head, and num_free_blocks (§4.4). Callers
// must already hold FS and must not also hold Delete.
func (l *Locks) Allocate() func() {
	l.allocate.Lock()
	return l.allocate.Unlock
}

// Delete acquires the region guarding the chain-invalidation walk and
// t_allocation_ceiling (§4.7/§4.8). Callers must already hold FS and must
// not also hold Allocate.
func (l *Locks) Delete() func() {
	l.deleteMu.Lock()
	return l.deleteMu.Unlock
}
