// Package blockio provides the small set of sector-level read/write
// helpers shared by the allocator, inode, file, and deletion packages:
// reading a block's type tag, reading/writing its stat record, and
// reading/writing its init header. Factoring these out keeps each of
// those packages focused on its own chain-walking logic instead of
// re-deriving sector offsets from layout.Geometry.
package blockio

import (
	"fmt"

	"github.com/bnahill/FLogFS/internal/layout"
	"github.com/bnahill/FLogFS/internal/pagecache"
)

// ClassifyBlock opens block's init sector and reports its BlockType.
func ClassifyBlock(pc *pagecache.Shim, geom layout.Geometry, block uint32) (layout.BlockType, error) {
	if err := pc.OpenBlockInit(block); err != nil {
		return 0, err
	}
	spare := make([]byte, layout.FileSectorSpareSize)
	if err := pc.ReadSpare(spare, 0); err != nil {
		return 0, err
	}
	return layout.Classify(spare[0]), nil
}

// ReadStat reads the BlockStatRecord out of block's invalidation sector.
// Used to learn a free block's age cheaply (the record lives at a fixed
// offset, §4.4) and to hop forward through a chain of freed blocks during
// recovery.
func ReadStat(pc *pagecache.Shim, geom layout.Geometry, block uint32) (layout.BlockStatRecord, error) {
	sector := geom.InvalidationSector()
	if err := pc.OpenSector(block, sector); err != nil {
		return layout.BlockStatRecord{}, err
	}
	buf := make([]byte, layout.BlockStatRecordSize)
	if err := pc.ReadSector(buf, sector, 0, uint32(len(buf))); err != nil {
		return layout.BlockStatRecord{}, err
	}
	return layout.DecodeBlockStatRecord(buf), nil
}

// WriteStat writes rec into block's invalidation sector and commits.
// Callers must erase the block first if they need the sector to start
// from the erased state (the usual case, since WriteStat is how erase
// survives: age is preserved across the very erase that wipes it).
func WriteStat(pc *pagecache.Shim, geom layout.Geometry, block uint32, rec layout.BlockStatRecord) error {
	sector := geom.InvalidationSector()
	if err := pc.OpenSector(block, sector); err != nil {
		return err
	}
	if err := pc.WriteSector(rec.Encode(), sector, 0); err != nil {
		return err
	}
	return pc.Commit()
}

// EraseAndStamp erases block then immediately writes its stat record, in
// that order: §9's design notes call out a stale draft that wrote the
// header before erasing (which would destroy it) as a bug to avoid.
func EraseAndStamp(pc *pagecache.Shim, geom layout.Geometry, block uint32, rec layout.BlockStatRecord) error {
	if err := pc.Erase(block); err != nil {
		return fmt.Errorf("blockio: erase block %d: %w", block, err)
	}
	return WriteStat(pc, geom, block, rec)
}
