package flogfs

import (
	"fmt"

	"github.com/bnahill/FLogFS/internal/alloc"
	"github.com/bnahill/FLogFS/internal/blockio"
	"github.com/bnahill/FLogFS/internal/delete"
	"github.com/bnahill/FLogFS/internal/inode"
	"github.com/bnahill/FLogFS/internal/layout"
	"github.com/bnahill/FLogFS/internal/pagecache"
	"github.com/bnahill/FLogFS/internal/util"
)

// allocEvent is the winning "last allocation" candidate tracked across the
// block scan and the inode-chain pass (§4.10).
type allocEvent struct {
	isInode bool

	// Shared: the block whose not-yet-committed successor this event
	// describes, and that successor's identity.
	predecessor    uint32
	predecessorIdx uint16 // inode-chain position, only meaningful for isInode
	successor      uint32
	successorAge   uint32
	fileID         uint32 // only meaningful when !isInode
	timestamp      uint32
}

// deletionEvent is the winning "last deletion" candidate from the
// inode-chain pass (§4.10).
type deletionEvent struct {
	fileID     uint32
	firstBlock uint32
	lastBlock  uint32
	timestamp  uint32
}

// Mount performs the single-pass recovery scan of §4.10: rebuild the free
// block bitmap, find the live inode0, resume the allocation and file-id
// clocks past anything already on media, and finish any allocation or
// deletion that was interrupted by a crash.
func (fs *Filesystem) Mount() error {
	unlock := fs.locks.FS()
	defer unlock()

	if fs.mounted {
		return nil
	}

	fs.dev.Lock()
	defer fs.dev.Unlock()

	a := alloc.New(fs.pc, fs.geom)

	var (
		maxAge          uint32
		maxTimestamp    uint32
		inode0Candidate = uint32(inode.Inode0)
		haveCandidate   bool
		bestInitTS      uint32
		lastAlloc       allocEvent
	)
	trackTimestamp := func(ts uint32) {
		if ts != layout.TimestampInvalid && ts > maxTimestamp {
			maxTimestamp = ts
		}
	}

	for block := uint32(0); block < fs.geom.Blocks; block++ {
		if err := fs.pc.OpenBlockInit(block); err != nil {
			util.DPrintf(2, "mount: block %d unreadable, treating as bad: %v", block, err)
			continue
		}
		if fs.pc.BlockIsBad() {
			continue
		}

		typ, err := blockio.ClassifyBlock(fs.pc, fs.geom, block)
		if err != nil {
			return fmt.Errorf("flogfs: mount: classify block %d: %w", block, err)
		}

		switch typ {
		case layout.BlockUnallocated:
			stat, err := blockio.ReadStat(fs.pc, fs.geom, block)
			if err != nil {
				return fmt.Errorf("flogfs: mount: read stat block %d: %w", block, err)
			}
			if !stat.HasMagic() {
				util.DPrintf(2, "mount: block %d has no stat magic, leaving untracked", block)
				continue
			}
			a.MarkFree(block, stat.Age)
			if stat.Age > maxAge {
				maxAge = stat.Age
			}
			trackTimestamp(stat.Timestamp)

		case layout.BlockInode:
			if err := fs.pc.OpenSector(block, 0); err != nil {
				return err
			}
			buf := make([]byte, layout.InodeInitSectorSize)
			if err := fs.pc.ReadSector(buf, 0, 0, uint32(len(buf))); err != nil {
				return err
			}
			initSector := layout.DecodeInodeInitSector(buf)

			spareBuf := make([]byte, layout.InodeInitSpareSize)
			if err := fs.pc.ReadSpare(spareBuf, 0); err != nil {
				return err
			}
			spare := layout.DecodeInodeInitSpare(spareBuf)

			if initSector.Age > maxAge {
				maxAge = initSector.Age
			}
			trackTimestamp(initSector.Timestamp)

			if spare.InodeIndex == 0 {
				if !haveCandidate || initSector.Timestamp < bestInitTS {
					if haveCandidate {
						util.DPrintf(1, "mount: duplicate inode0 candidate at block %d superseded by block %d", inode0Candidate, block)
					}
					inode0Candidate = block
					bestInitTS = initSector.Timestamp
					haveCandidate = true
				}
			}

			tail, err := readTailHeader(fs.pc, fs.geom, block)
			if err != nil {
				return err
			}
			trackTimestamp(tail.Timestamp)
			if tail.Timestamp != layout.TimestampInvalid && tail.Timestamp > lastAlloc.timestamp {
				lastAlloc = allocEvent{
					isInode: true, predecessor: block, predecessorIdx: spare.InodeIndex,
					successor: uint32(tail.NextBlock), successorAge: tail.NextAge,
					timestamp: tail.Timestamp,
				}
			}

		case layout.BlockFile:
			if err := fs.pc.OpenSector(block, 0); err != nil {
				return err
			}
			buf := make([]byte, layout.FileInitHeaderSize)
			if err := fs.pc.ReadSector(buf, 0, 0, uint32(len(buf))); err != nil {
				return err
			}
			hdr := layout.DecodeFileInitHeader(buf)
			if hdr.Age > maxAge {
				maxAge = hdr.Age
			}

			tail, err := readTailHeader(fs.pc, fs.geom, block)
			if err != nil {
				return err
			}
			trackTimestamp(tail.Timestamp)
			if tail.Timestamp != layout.TimestampInvalid && tail.Timestamp > lastAlloc.timestamp {
				lastAlloc = allocEvent{
					isInode: false, predecessor: block, fileID: hdr.FileID,
					successor: uint32(tail.NextBlock), successorAge: tail.NextAge,
					timestamp: tail.Timestamp,
				}
			}
		}
	}

	if !haveCandidate {
		return fmt.Errorf("flogfs: mount: %w: no inode0 block found (not formatted?)", ErrCorrupt)
	}

	maxFileID, lastDeletion, err := fs.inodeChainPass(inode0Candidate, &lastAlloc, trackTimestamp)
	if err != nil {
		return err
	}

	if lastAlloc.timestamp > 0 {
		if err := recoverAllocation(fs.pc, fs.geom, a, lastAlloc); err != nil {
			return fmt.Errorf("flogfs: mount: allocation recovery: %w", err)
		}
		fs.clk.SetFloor(lastAlloc.timestamp + 1)
	}

	if lastDeletion.timestamp > 0 {
		if err := fs.recoverDeletion(a, lastDeletion); err != nil {
			return fmt.Errorf("flogfs: mount: deletion recovery: %w", err)
		}
	}

	// Safety net beyond the literal recovery branches: resume every clock
	// past the highest timestamp observed anywhere on media, not just the
	// one the recovery branches happened to touch.
	fs.clk.SetFloor(maxTimestamp + 1)
	fs.fileIDs.SetFloor(maxFileID)
	fs.alloc = a
	fs.mounted = true

	util.DPrintf(1, "mount: %d free blocks, inode0=%d, max_age=%d, t=%d, max_file_id=%d",
		a.NumFree(), inode0Candidate, maxAge, fs.clk.Peek(), maxFileID)
	return nil
}

func readTailHeader(pc *pagecache.Shim, geom layout.Geometry, block uint32) (layout.FileTailHeader, error) {
	tailSector := geom.TailSector()
	if err := pc.OpenSector(block, tailSector); err != nil {
		return layout.FileTailHeader{}, err
	}
	buf := make([]byte, layout.FileTailHeaderSize)
	if err := pc.ReadSector(buf, tailSector, 0, uint32(len(buf))); err != nil {
		return layout.FileTailHeader{}, err
	}
	return layout.DecodeFileTailHeader(buf), nil
}

// inodeChainPass walks the live inode0 chain tracking max_file_id and the
// highest invalidation timestamp (last_deletion), and overrides lastAlloc
// if a live entry records a newer allocation than anything the block scan
// saw (the single-block-file-with-no-tail-yet crash window, §4.10).
func (fs *Filesystem) inodeChainPass(inode0 uint32, lastAlloc *allocEvent, trackTimestamp func(uint32)) (uint32, deletionEvent, error) {
	if inode0 != inode.Inode0 {
		// Block 0 is architecturally fixed as inode0 (Format never places
		// it elsewhere); a different winning candidate here would mean a
		// stray duplicate-index-0 inode block written by media we didn't
		// format ourselves. We still scanned it above for free-block and
		// timestamp accounting, but the chain walk below always starts
		// from block 0, matching internal/inode's fixed Inode0 constant.
		util.DPrintf(1, "mount: inode0 candidate at block %d ignored in favor of fixed block %d", inode0, inode.Inode0)
	}
	it, err := inode.FromInode0(fs.pc, fs.geom)
	if err != nil {
		return 0, deletionEvent{}, err
	}

	var maxFileID uint32
	var lastDeletion deletionEvent
	for {
		entry, inval, err := it.ReadEntry()
		if err != nil {
			return 0, deletionEvent{}, err
		}
		if entry.FileID == layout.FileIDInvalid {
			break
		}
		if entry.FileID > maxFileID {
			maxFileID = entry.FileID
		}
		trackTimestamp(entry.Timestamp)
		trackTimestamp(inval.Timestamp)

		if inval.Timestamp != layout.TimestampInvalid {
			if inval.Timestamp > lastDeletion.timestamp {
				lastDeletion = deletionEvent{
					fileID: entry.FileID, firstBlock: uint32(entry.FirstBlock),
					lastBlock: uint32(inval.LastBlock), timestamp: inval.Timestamp,
				}
			}
		} else if entry.Timestamp != layout.TimestampInvalid && entry.Timestamp > lastAlloc.timestamp {
			*lastAlloc = allocEvent{
				isInode: false, fileID: entry.FileID,
				successor: uint32(entry.FirstBlock), successorAge: entry.FirstBlockAge,
				timestamp: entry.Timestamp,
			}
		}

		if err := it.Next(); err != nil {
			return 0, deletionEvent{}, err
		}
		if it.AtEnd() {
			break
		}
	}
	return maxFileID, lastDeletion, nil
}

// recoverAllocation finishes an allocation whose successor block was
// reserved but never initialized before the crash (§4.10).
func recoverAllocation(pc *pagecache.Shim, geom layout.Geometry, a *alloc.Allocator, ev allocEvent) error {
	if ev.isInode {
		typ, err := blockio.ClassifyBlock(pc, geom, ev.successor)
		if err != nil {
			return err
		}
		if typ == layout.BlockInode {
			return nil // already fully initialized, nothing to recover
		}

		if err := pc.OpenSector(ev.successor, 0); err != nil {
			return err
		}
		initSector := layout.InodeInitSector{Age: ev.successorAge, Timestamp: ev.timestamp, PreviousBlock: uint16(ev.predecessor)}
		if err := pc.WriteSector(initSector.Encode(), 0, 0); err != nil {
			return err
		}
		spare := layout.InodeInitSpare{TypeID: layout.BlockInode, InodeIndex: ev.predecessorIdx + 1}
		if err := pc.WriteSpare(spare.Encode(), 0); err != nil {
			return err
		}
		if err := pc.Commit(); err != nil {
			return err
		}
		a.Reclaim(ev.successor, ev.successorAge)
		return nil
	}

	if err := pc.OpenSector(ev.successor, 0); err != nil {
		return err
	}
	buf := make([]byte, layout.FileInitHeaderSize)
	if err := pc.ReadSector(buf, 0, 0, uint32(len(buf))); err != nil {
		return err
	}
	hdr := layout.DecodeFileInitHeader(buf)
	if hdr.FileID == ev.fileID {
		return nil // already initialized, nothing to recover
	}

	newHdr := layout.FileInitHeader{Age: ev.successorAge, FileID: ev.fileID}
	if err := pc.WriteSector(newHdr.Encode(), 0, 0); err != nil {
		return err
	}
	spare := layout.FileSectorSpare{TypeID: layout.BlockFile, NBytes: 0}
	if err := pc.WriteSpare(spare.Encode(), 0); err != nil {
		return err
	}
	if err := pc.Commit(); err != nil {
		return err
	}
	a.Reclaim(ev.successor, ev.successorAge)
	return nil
}

// recoverDeletion finishes an invalidate_chain call that was interrupted
// before it finished reclaiming every block (§4.10).
func (fs *Filesystem) recoverDeletion(a *alloc.Allocator, ev deletionEvent) error {
	typ, err := blockio.ClassifyBlock(fs.pc, fs.geom, ev.lastBlock)
	if err != nil {
		return err
	}
	if typ != layout.BlockFile {
		return nil // already reclaimed (or superseded)
	}

	if err := fs.pc.OpenSector(ev.lastBlock, 0); err != nil {
		return err
	}
	buf := make([]byte, layout.FileInitHeaderSize)
	if err := fs.pc.ReadSector(buf, 0, 0, uint32(len(buf))); err != nil {
		return err
	}
	if layout.DecodeFileInitHeader(buf).FileID != ev.fileID {
		return nil // reclaimed and reassigned already
	}

	sector := fs.geom.InvalidationSector()
	if err := fs.pc.OpenSector(ev.lastBlock, sector); err != nil {
		return err
	}
	raw := make([]byte, layout.BlockStatRecordSize)
	if err := fs.pc.ReadSector(raw, sector, 0, uint32(len(raw))); err != nil {
		return err
	}
	if !layout.IsErasedSpare(raw) {
		return nil // stat record already written: reclaim already completed
	}

	return delete.InvalidateChain(fs.pc, fs.geom, a, &fs.clk, ev.firstBlock, ev.fileID)
}
