// Package inode implements the inode chain and its iterator (§4.3): the
// singly (and doubly, via previous_block) linked chain of inode blocks
// holding the filename table, and the chain-growing operation that
// allocates a new inode block when the table fills.
package inode

import (
	"errors"
	"fmt"

	"github.com/bnahill/FLogFS/internal/alloc"
	"github.com/bnahill/FLogFS/internal/clock"
	"github.com/bnahill/FLogFS/internal/layout"
	"github.com/bnahill/FLogFS/internal/pagecache"
)

// ErrCorrupt is returned when a block expected to carry an inode chain
// link does not have the expected type tag (§4.1: "any other byte means
// corrupt").
var ErrCorrupt = errors.New("inode: unexpected block type in chain")

// Iterator walks the inode entry table two sectors at a time (§4.3).
type Iterator struct {
	pc   *pagecache.Shim
	geom layout.Geometry

	block         uint32
	previousBlock uint16
	nextBlock     uint16
	inodeBlockIdx uint16
	inodeIdx      uint32
	sector        uint32

	// atEnd marks the one-past-end position reached when Next() could not
	// step into a successor block; PrepareNew reads this to know a new
	// inode block must be allocated before the position becomes writable.
	atEnd bool
}

// Inode0 is the absolute block index of the first inode block (§3).
const Inode0 = 0

// FromInode0 initializes an iterator positioned at the first entry slot of
// the live inode chain, starting from inode0.
func FromInode0(pc *pagecache.Shim, geom layout.Geometry) (*Iterator, error) {
	return fromBlock(pc, geom, Inode0)
}

func fromBlock(pc *pagecache.Shim, geom layout.Geometry, block uint32) (*Iterator, error) {
	it := &Iterator{pc: pc, geom: geom, block: block}
	if err := it.loadBlockHeader(); err != nil {
		return nil, err
	}
	it.sector = geom.FirstEntrySector()
	return it, nil
}

// loadBlockHeader reads the current block's init sector (previous_block,
// absolute inode_block_idx) and tail sector (next_block), called whenever
// the iterator steps onto a new inode block.
func (it *Iterator) loadBlockHeader() error {
	if err := it.pc.OpenSector(it.block, 0); err != nil {
		return err
	}
	spare := make([]byte, layout.InodeInitSpareSize)
	if err := it.pc.ReadSpare(spare, 0); err != nil {
		return err
	}
	sp := layout.DecodeInodeInitSpare(spare)
	if sp.TypeID != layout.BlockInode {
		return fmt.Errorf("inode: block %d: %w", it.block, ErrCorrupt)
	}
	it.inodeBlockIdx = sp.InodeIndex

	buf := make([]byte, layout.InodeInitSectorSize)
	if err := it.pc.ReadSector(buf, 0, 0, uint32(len(buf))); err != nil {
		return err
	}
	hdr := layout.DecodeInodeInitSector(buf)
	it.previousBlock = hdr.PreviousBlock

	return it.loadTailLink()
}

// loadTailLink reads just the next_block field out of the current block's
// tail sector.
func (it *Iterator) loadTailLink() error {
	tailSector := it.geom.TailSector()
	if err := it.pc.OpenSector(it.block, tailSector); err != nil {
		return err
	}
	buf := make([]byte, layout.FileTailHeaderSize)
	if err := it.pc.ReadSector(buf, tailSector, 0, uint32(len(buf))); err != nil {
		return err
	}
	// The tail sector of an inode block reuses the universal
	// next_block/timestamp shape; only next_block is meaningful here.
	tail := layout.DecodeFileTailHeader(buf)
	it.nextBlock = tail.NextBlock
	return nil
}

// Block returns the absolute index of the block the iterator currently
// sits in.
func (it *Iterator) Block() uint32 { return it.block }

// Sector returns the allocation-sector index the iterator currently sits
// at (the invalidation sector is always Sector()+1).
func (it *Iterator) Sector() uint32 { return it.sector }

// AtEnd reports whether the iterator has walked off the end of every
// allocated inode block, meaning a PrepareNew call is required before this
// position is writable.
func (it *Iterator) AtEnd() bool { return it.atEnd }

// Next advances two sectors (§4.3). If that would run past the block's
// last usable entry, it steps into next_block when one exists, otherwise
// it stops at the one-past-end position (AtEnd becomes true).
func (it *Iterator) Next() error {
	if it.atEnd {
		return nil
	}
	it.inodeIdx++
	if it.sector+2 <= it.geom.LastEntrySector() {
		it.sector += 2
		return nil
	}
	if it.nextBlock == layout.BlockIndexInvalid {
		it.sector += 2
		it.atEnd = true
		return nil
	}
	it.block = uint32(it.nextBlock)
	if err := it.loadBlockHeader(); err != nil {
		return err
	}
	it.sector = it.geom.FirstEntrySector()
	return nil
}

// Prev is the mirror of Next, using the init sector's previous_block
// back-link (§4.3, §9 "Inode back-link").
func (it *Iterator) Prev() error {
	it.atEnd = false
	if it.sector > it.geom.FirstEntrySector() {
		it.sector -= 2
		return nil
	}
	if it.previousBlock == layout.BlockIndexInvalid {
		return nil
	}
	it.block = uint32(it.previousBlock)
	if err := it.loadBlockHeader(); err != nil {
		return err
	}
	it.sector = it.geom.LastEntrySector()
	return nil
}

// ReadEntry reads the allocation and invalidation sectors at the
// iterator's current position.
func (it *Iterator) ReadEntry() (layout.InodeAllocationEntry, layout.InodeInvalidationEntry, error) {
	if err := it.pc.OpenSector(it.block, it.sector); err != nil {
		return layout.InodeAllocationEntry{}, layout.InodeInvalidationEntry{}, err
	}
	abuf := make([]byte, layout.InodeAllocationEntrySize)
	if err := it.pc.ReadSector(abuf, it.sector, 0, uint32(len(abuf))); err != nil {
		return layout.InodeAllocationEntry{}, layout.InodeInvalidationEntry{}, err
	}
	entry := layout.DecodeInodeAllocationEntry(abuf)

	if err := it.pc.OpenSector(it.block, it.sector+1); err != nil {
		return layout.InodeAllocationEntry{}, layout.InodeInvalidationEntry{}, err
	}
	ibuf := make([]byte, layout.InodeInvalidationEntrySize)
	if err := it.pc.ReadSector(ibuf, it.sector+1, 0, uint32(len(ibuf))); err != nil {
		return layout.InodeAllocationEntry{}, layout.InodeInvalidationEntry{}, err
	}
	inval := layout.DecodeInodeInvalidationEntry(ibuf)
	return entry, inval, nil
}

// WriteAllocation writes just the allocation half of the entry at the
// iterator's current position and commits.
func (it *Iterator) WriteAllocation(e layout.InodeAllocationEntry) error {
	if err := it.pc.OpenSector(it.block, it.sector); err != nil {
		return err
	}
	if err := it.pc.WriteSector(e.Encode(), it.sector, 0); err != nil {
		return err
	}
	return it.pc.Commit()
}

// WriteInvalidation writes the invalidation half of the entry at the
// iterator's current position and commits.
func (it *Iterator) WriteInvalidation(e layout.InodeInvalidationEntry) error {
	if err := it.pc.OpenSector(it.block, it.sector+1); err != nil {
		return err
	}
	if err := it.pc.WriteSector(e.Encode(), it.sector+1, 0); err != nil {
		return err
	}
	return it.pc.Commit()
}

// PrepareNew makes the iterator's current position writable, extending
// the inode chain with a freshly allocated block first if the iterator
// has walked off the end of the table (§4.3).
func (it *Iterator) PrepareNew(a *alloc.Allocator, clk *clock.Counter) error {
	if !it.atEnd {
		return nil
	}

	cand, err := a.AllocateBlock(0)
	if err != nil {
		return fmt.Errorf("inode: extend chain: %w", err)
	}

	oldBlock := it.block
	ts := clk.Next()
	tail := layout.FileTailHeader{
		NextBlock: uint16(cand.Block),
		NextAge:   cand.Age + 1,
		Timestamp: ts,
	}
	tailSector := it.geom.TailSector()
	if err := it.pc.OpenSector(oldBlock, tailSector); err != nil {
		return err
	}
	if err := it.pc.WriteSector(tail.Encode(), tailSector, 0); err != nil {
		return err
	}
	if err := it.pc.Commit(); err != nil {
		return err
	}

	if err := it.pc.Erase(cand.Block); err != nil {
		return err
	}
	newIdx := it.inodeBlockIdx + 1
	initHdr := layout.InodeInitSector{Age: cand.Age + 1, Timestamp: ts, PreviousBlock: uint16(oldBlock)}
	if err := it.pc.OpenSector(cand.Block, 0); err != nil {
		return err
	}
	if err := it.pc.WriteSector(initHdr.Encode(), 0, 0); err != nil {
		return err
	}
	initSpare := layout.InodeInitSpare{TypeID: layout.BlockInode, InodeIndex: newIdx}
	if err := it.pc.WriteSpare(initSpare.Encode(), 0); err != nil {
		return err
	}
	if err := it.pc.Commit(); err != nil {
		return err
	}

	it.block = cand.Block
	it.previousBlock = uint16(oldBlock)
	it.nextBlock = layout.BlockIndexInvalid
	it.inodeBlockIdx = newIdx
	it.sector = it.geom.FirstEntrySector()
	it.atEnd = false
	return nil
}
