package flogfs

import (
	"errors"
	"fmt"

	"github.com/bnahill/FLogFS/internal/alloc"
	"github.com/bnahill/FLogFS/internal/blockio"
	"github.com/bnahill/FLogFS/internal/flash"
	"github.com/bnahill/FLogFS/internal/layout"
	"github.com/bnahill/FLogFS/internal/util"
)

// Format lays down a fresh filesystem across every good block (§4.9): each
// block's age is preserved if it carries FLogFS's magic stat key from a
// previous format, or reset to zero otherwise, then the block is erased and
// restamped. Block 0 always becomes inode0: if block 0 is bad, Format fails
// with ErrCorrupt and does not place inode0 on another good block.
func (fs *Filesystem) Format() error {
	unlock := fs.locks.FS()
	defer unlock()

	fs.dev.Lock()
	defer fs.dev.Unlock()

	a := alloc.New(fs.pc, fs.geom)

	// inode0 is pinned to block 0 (internal/inode.Inode0): the chain
	// iterator has no way to record a dynamic inode0 location, so block 0
	// must be good. This is the same assumption the original's static
	// INODE0_BLOCK constant makes.
	const inode0Block = 0
	if err := fs.pc.OpenBlockInit(inode0Block); err != nil {
		if errors.Is(err, flash.ErrBlockBad) {
			return fmt.Errorf("flogfs: format: block 0 is bad, cannot host inode0: %w", ErrCorrupt)
		}
		return fmt.Errorf("flogfs: format: block 0 unreadable: %w", err)
	}
	if fs.pc.BlockIsBad() {
		return fmt.Errorf("flogfs: format: block 0 is bad, cannot host inode0: %w", ErrCorrupt)
	}
	stat0, err := blockio.ReadStat(fs.pc, fs.geom, inode0Block)
	if err != nil {
		return fmt.Errorf("flogfs: format: read stat block 0: %w", err)
	}
	age0 := uint32(0)
	if stat0.HasMagic() {
		age0 = stat0.Age
	}
	if err := blockio.EraseAndStamp(fs.pc, fs.geom, inode0Block, layout.BlockStatRecord{
		Age: age0, NextBlock: layout.BlockIndexInvalid, NextAge: layout.TimestampInvalid,
		Timestamp: 0, Key: layout.StatMagic,
	}); err != nil {
		return fmt.Errorf("flogfs: format: stamp block 0: %w", err)
	}

	for block := uint32(1); block < fs.geom.Blocks; block++ {
		if err := fs.pc.OpenBlockInit(block); err != nil {
			util.DPrintf(2, "format: block %d unreadable, skipping: %v", block, err)
			continue
		}
		if fs.pc.BlockIsBad() {
			util.DPrintf(2, "format: block %d marked bad, skipping", block)
			continue
		}

		stat, err := blockio.ReadStat(fs.pc, fs.geom, block)
		if err != nil {
			return fmt.Errorf("flogfs: format: read stat block %d: %w", block, err)
		}
		age := uint32(0)
		if stat.HasMagic() {
			age = stat.Age
		}

		rec := layout.BlockStatRecord{
			Age: age, NextBlock: layout.BlockIndexInvalid, NextAge: layout.TimestampInvalid,
			Timestamp: 0, Key: layout.StatMagic,
		}
		if err := blockio.EraseAndStamp(fs.pc, fs.geom, block, rec); err != nil {
			return fmt.Errorf("flogfs: format: stamp block %d: %w", block, err)
		}
		a.MarkFree(block, age)
	}

	if err := fs.pc.OpenSector(inode0Block, 0); err != nil {
		return err
	}
	hdr := layout.InodeInitSector{Timestamp: 0, PreviousBlock: layout.BlockIndexInvalid}
	if err := fs.pc.WriteSector(hdr.Encode(), 0, 0); err != nil {
		return err
	}
	spare := layout.InodeInitSpare{TypeID: layout.BlockInode, InodeIndex: 0}
	if err := fs.pc.WriteSpare(spare.Encode(), 0); err != nil {
		return err
	}
	if err := fs.pc.Commit(); err != nil {
		return err
	}

	util.DPrintf(1, "format: %d free blocks, inode0 at block %d", a.NumFree(), inode0Block)
	return nil
}
