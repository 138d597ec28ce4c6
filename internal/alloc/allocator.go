// Package alloc implements the free-block allocator and wear-leveling
// policy of §4.4: a bitmap of free blocks, a small preallocation list that
// remembers blocks previously rejected for being too young to skip, a
// moving scan head, and the one-slot "dirty block" protocol that lets
// allocation return a block before it has actually been erased.
package alloc

import (
	"fmt"

	"github.com/bnahill/FLogFS/internal/blockio"
	"github.com/bnahill/FLogFS/internal/layout"
	"github.com/bnahill/FLogFS/internal/pagecache"
)

// DirtyHolder is implemented by whatever claimed the allocator's one dirty
// block slot (always a write-file, §4.6). FlushDirty must force that
// file's buffered sector out, which erases the block the first time it is
// actually touched — this is how "erase lazily when first needed" (§4.4)
// is realized without the allocator knowing anything about file state.
type DirtyHolder interface {
	FlushDirty() error
}

type dirtyRecord struct {
	block  uint32
	age    uint32
	holder DirtyHolder
}

// Candidate is a block handed out by AllocateBlock, not yet erased.
type Candidate struct {
	Block uint32
	Age   uint32
}

// Allocator holds the in-RAM allocator state of §4.4. None of it is
// persisted; it is rebuilt at mount by a scan that calls MarkFree for every
// free block found, and kept in sync
// incrementally afterward. Callers are expected to already hold the
// allocate-lock (lockset.Locks.Allocate) for the duration of any call.
type Allocator struct {
	pc   *pagecache.Shim
	geom layout.Geometry

	bitmap   bitset
	numFree  uint32
	freeSum  uint64
	numTotal uint32

	prealloc *prealloc
	head     uint32

	dirty *dirtyRecord
}

// PreallocCapacity is the fixed size of the preallocation list (§4.4).
const PreallocCapacity = 8

func New(pc *pagecache.Shim, geom layout.Geometry) *Allocator {
	return &Allocator{
		pc:       pc,
		geom:     geom,
		bitmap:   newBitset(geom.Blocks),
		numTotal: geom.Blocks,
		prealloc: newPrealloc(PreallocCapacity),
	}
}

// MarkFree records block as free with the given age, called once per free
// block discovered during the mount scan (§4.9) and again whenever a block
// is erased and returned to the pool (deletion, §4.8).
func (a *Allocator) MarkFree(block, age uint32) {
	if a.bitmap.isFree(block) {
		return
	}
	a.bitmap.setFree(block)
	a.numFree++
	a.freeSum += uint64(age)
}

// NumFree reports the number of free blocks currently tracked.
func (a *Allocator) NumFree() uint32 { return a.numFree }

func (a *Allocator) meanFreeAge() uint32 {
	if a.numFree == 0 {
		return 0
	}
	return uint32(a.freeSum / uint64(a.numFree))
}

// Claim registers holder as owning block (reserved at age) in the
// allocator's one dirty-block slot. Only one file may hold the slot at a
// time; AllocateBlock drains any previous holder before returning a new
// block.
func (a *Allocator) Claim(holder DirtyHolder, block, age uint32) {
	a.dirty = &dirtyRecord{block: block, age: age, holder: holder}
}

// Release clears the dirty slot if holder is its current occupant. Called
// by a write-file once it has actually written to the block itself,
// making the lazy flush unnecessary.
func (a *Allocator) Release(holder DirtyHolder) {
	if a.dirty != nil && a.dirty.holder == holder {
		a.dirty = nil
	}
}

// flushDirty drains the one outstanding dirty-block reservation, if any,
// before a new allocation is handed out (§4.4).
func (a *Allocator) flushDirty() error {
	if a.dirty == nil {
		return nil
	}
	d := a.dirty
	a.dirty = nil
	return d.holder.FlushDirty()
}

// maxScanSteps bounds the iterate loop below: threshold strictly
// decreases every step so the loop is guaranteed to terminate once it
// goes low enough that any free block qualifies, but a hard ceiling
// guards against a corrupt bitmap (numFree inconsistent with the actual
// bit pattern) spinning forever.
func (a *Allocator) maxScanSteps() int {
	return int(a.numTotal)*2 + 8
}

// AllocateBlock returns an unerased free block whose age is at least
// threshold below the current mean free age, per the sufficiency rule of
// §4.4, relaxing by one each rejected candidate so it always eventually
// succeeds. It drains any pending dirty-block reservation first.
func (a *Allocator) AllocateBlock(threshold int32) (Candidate, error) {
	if err := a.flushDirty(); err != nil {
		return Candidate{}, fmt.Errorf("alloc: flush dirty block: %w", err)
	}
	if a.numFree == 0 {
		return Candidate{}, ErrNoSpace
	}

	for steps := 0; steps < a.maxScanSteps(); steps++ {
		if c, ok := a.prealloc.popMeeting(a.meanFreeAge(), threshold); ok {
			a.claim(c)
			return Candidate{Block: c.block, Age: c.age}, nil
		}

		if c, found, err := a.iterate(); err != nil {
			return Candidate{}, err
		} else if found {
			if sufficientlyWorn(c.age, a.meanFreeAge(), threshold) {
				a.claim(c)
				return Candidate{Block: c.block, Age: c.age}, nil
			}
			a.prealloc.push(c)
		}

		threshold--
	}
	return Candidate{}, ErrNoSpace
}

// iterate examines the bit at head, advancing head afterward regardless
// of outcome (§4.4, allocate_block_iterate).
func (a *Allocator) iterate() (candidate, bool, error) {
	block := a.head
	a.head = (a.head + 1) % a.numTotal

	if !a.bitmap.isFree(block) {
		return candidate{}, false, nil
	}
	stat, err := blockio.ReadStat(a.pc, a.geom, block)
	if err != nil {
		return candidate{}, false, err
	}
	return candidate{block: block, age: stat.Age}, true, nil
}

// claim removes block from the free pool's bookkeeping; it does not erase
// or otherwise touch the block itself.
func (a *Allocator) claim(c candidate) {
	a.bitmap.clearFree(c.block)
	a.numFree--
	a.freeSum -= uint64(c.age)
	a.prealloc.removeBlock(c.block)
}

// Reclaim removes a specific block from the free pool, used by mount
// recovery (§4.10) when a block the scan found free turns out to have
// actually been mid-allocation at crash time. Unlike AllocateBlock, the
// caller picks the block; Reclaim is a no-op if it wasn't tracked free.
func (a *Allocator) Reclaim(block, age uint32) {
	if !a.bitmap.isFree(block) {
		return
	}
	a.claim(candidate{block: block, age: age})
}
