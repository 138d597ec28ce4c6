// Package delete implements file removal and chain invalidation (§4.7,
// §4.8): marking an inode entry deleted, then walking its block chain,
// erasing each block and returning it to the free pool.
package delete

import (
	"errors"

	"github.com/bnahill/FLogFS/internal/alloc"
	"github.com/bnahill/FLogFS/internal/blockio"
	"github.com/bnahill/FLogFS/internal/clock"
	"github.com/bnahill/FLogFS/internal/inode"
	"github.com/bnahill/FLogFS/internal/layout"
	"github.com/bnahill/FLogFS/internal/pagecache"
)

// ErrNotFound is returned by Remove when no live entry matches name.
var ErrNotFound = errors.New("delete: not found")

// Remove finds name's live inode entry, marks it invalidated, then
// reclaims its block chain (§4.7).
func Remove(pc *pagecache.Shim, geom layout.Geometry, a *alloc.Allocator, clk *clock.Counter, name string) error {
	res, _, found, err := inode.FindFile(pc, geom, name)
	if err != nil {
		return err
	}
	if !found {
		return ErrNotFound
	}

	lastBlock, err := walkToLastBlock(pc, geom, uint32(res.Entry.FirstBlock), res.Entry.FileID)
	if err != nil {
		return err
	}

	ts := clk.Next()
	if err := res.Iterator.WriteInvalidation(layout.InodeInvalidationEntry{Timestamp: ts, LastBlock: uint16(lastBlock)}); err != nil {
		return err
	}

	return InvalidateChain(pc, geom, a, clk, uint32(res.Entry.FirstBlock), res.Entry.FileID)
}

func walkToLastBlock(pc *pagecache.Shim, geom layout.Geometry, firstBlock, fileID uint32) (uint32, error) {
	block := firstBlock
	for {
		tailSector := geom.TailSector()
		if err := pc.OpenSector(block, tailSector); err != nil {
			return 0, err
		}
		buf := make([]byte, layout.FileTailHeaderSize)
		if err := pc.ReadSector(buf, tailSector, 0, uint32(len(buf))); err != nil {
			return 0, err
		}
		tail := layout.DecodeFileTailHeader(buf)
		if tail.NextBlock == layout.BlockIndexInvalid || tail.Timestamp == layout.TimestampInvalid {
			return block, nil
		}

		if err := pc.OpenSector(uint32(tail.NextBlock), 0); err != nil {
			return 0, err
		}
		hdrBuf := make([]byte, layout.FileInitHeaderSize)
		if err := pc.ReadSector(hdrBuf, 0, 0, uint32(len(hdrBuf))); err != nil {
			return 0, err
		}
		if layout.DecodeFileInitHeader(hdrBuf).FileID != fileID {
			return block, nil
		}
		block = uint32(tail.NextBlock)
	}
}

// InvalidateChain walks the block chain starting at firstBlock, erasing
// and freeing each block that still belongs to fileID, stopping early if
// the chain was already partially reclaimed by a crash (§4.7).
//
// InvalidateChain raises clk's allocation ceiling for the duration of the
// walk and clears it on return (§4.8), so callers (Remove, mount recovery)
// do not bracket it themselves.
func InvalidateChain(pc *pagecache.Shim, geom layout.Geometry, a *alloc.Allocator, clk *clock.Counter, firstBlock, fileID uint32) error {
	clk.RaiseCeiling()
	defer clk.ClearCeiling()

	block := firstBlock
	for block != uint32(layout.BlockIndexInvalid) {
		typ, err := blockio.ClassifyBlock(pc, geom, block)
		if err != nil {
			return err
		}

		if typ == layout.BlockUnallocated {
			stat, err := blockio.ReadStat(pc, geom, block)
			if err != nil {
				return err
			}
			if stat.NextBlock == layout.BlockIndexInvalid {
				return nil
			}
			block = uint32(stat.NextBlock)
			continue
		}

		if typ != layout.BlockFile {
			return nil // superseded by another allocation; chain truncated here
		}

		hdrBuf := make([]byte, layout.FileInitHeaderSize)
		if err := pc.OpenSector(block, 0); err != nil {
			return err
		}
		if err := pc.ReadSector(hdrBuf, 0, 0, uint32(len(hdrBuf))); err != nil {
			return err
		}
		hdr := layout.DecodeFileInitHeader(hdrBuf)
		if hdr.FileID != fileID {
			return nil // reclaimed by another file already
		}

		tailSector := geom.TailSector()
		if err := pc.OpenSector(block, tailSector); err != nil {
			return err
		}
		tailBuf := make([]byte, layout.FileTailHeaderSize)
		if err := pc.ReadSector(tailBuf, tailSector, 0, uint32(len(tailBuf))); err != nil {
			return err
		}
		tail := layout.DecodeFileTailHeader(tailBuf)

		age := hdr.Age
		ts := clk.Next()
		rec := layout.BlockStatRecord{
			Age: age, NextBlock: tail.NextBlock, NextAge: tail.NextAge,
			Timestamp: ts, Key: layout.StatMagic,
		}
		if err := blockio.EraseAndStamp(pc, geom, block, rec); err != nil {
			return err
		}
		a.MarkFree(block, age)

		if tail.Timestamp == layout.TimestampInvalid {
			return nil // tail never committed: chain genuinely ends here
		}
		block = uint32(tail.NextBlock)
	}
	return nil
}
