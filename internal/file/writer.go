package file

import (
	"fmt"

	"github.com/bnahill/FLogFS/internal/alloc"
	"github.com/bnahill/FLogFS/internal/clock"
	"github.com/bnahill/FLogFS/internal/inode"
	"github.com/bnahill/FLogFS/internal/layout"
	"github.com/bnahill/FLogFS/internal/pagecache"
)

// Writer is the open-write state of §4.6. It implements alloc.DirtyHolder
// so the allocator can force a flush if a later allocation needs to drain
// this writer's one-slot block reservation.
type Writer struct {
	pc   *pagecache.Shim
	geom layout.Geometry
	a    *alloc.Allocator
	clk  *clock.Counter

	fileID        uint32
	block         uint32
	blockAge      uint32
	sector        uint32
	offset        uint32
	bytesInBlock  uint32
	baseThreshold int32

	buf    []byte
	erased bool // whether w.block has been erased since it was claimed
}

// OpenWrite finds name's live entry and seeks to its logical end, or
// creates a new file if none exists (§4.6).
func OpenWrite(pc *pagecache.Shim, geom layout.Geometry, a *alloc.Allocator, clk *clock.Counter, fileIDs *clock.Counter, name string, baseThreshold int32) (*Writer, error) {
	filename, ok := layout.NewFilename(name)
	if !ok {
		return nil, ErrNameTooLong
	}

	res, it, found, err := inode.FindFile(pc, geom, name)
	if err != nil {
		return nil, err
	}
	if found {
		return openExisting(pc, geom, a, clk, res.Entry, baseThreshold)
	}
	return createNew(pc, geom, a, clk, fileIDs, it, filename, baseThreshold)
}

func createNew(pc *pagecache.Shim, geom layout.Geometry, a *alloc.Allocator, clk, fileIDs *clock.Counter, it *inode.Iterator, filename [layout.MaxFilenameLen]byte, baseThreshold int32) (*Writer, error) {
	if err := it.PrepareNew(a, clk); err != nil {
		return nil, err
	}

	cand, err := a.AllocateBlock(baseThreshold)
	if err != nil {
		return nil, fmt.Errorf("file: create: %w", err)
	}

	w := &Writer{
		pc: pc, geom: geom, a: a, clk: clk,
		fileID: fileIDs.Next(), block: cand.Block, blockAge: cand.Age + 1,
		sector: 0, offset: layout.FileInitHeaderSize,
		baseThreshold: baseThreshold,
		buf:           make([]byte, geom.SectorSize),
	}
	a.Claim(w, cand.Block, cand.Age)

	ts := clk.Next()
	entry := layout.InodeAllocationEntry{
		FileID: w.fileID, FirstBlock: uint16(cand.Block), FirstBlockAge: cand.Age + 1,
		Timestamp: ts, Filename: filename,
	}
	if err := it.WriteAllocation(entry); err != nil {
		return nil, err
	}
	return w, nil
}

func openExisting(pc *pagecache.Shim, geom layout.Geometry, a *alloc.Allocator, clk *clock.Counter, entry layout.InodeAllocationEntry, baseThreshold int32) (*Writer, error) {
	w := &Writer{
		pc: pc, geom: geom, a: a, clk: clk,
		fileID: entry.FileID, baseThreshold: baseThreshold,
		buf: make([]byte, geom.SectorSize),
	}

	block := uint32(entry.FirstBlock)
	blockAge := entry.FirstBlockAge
	for {
		tail, err := w.readTailHeader(block)
		if err != nil {
			return nil, err
		}
		if tail.Timestamp == layout.TimestampInvalid {
			break // incomplete tail: this is the active block
		}
		block = uint32(tail.NextBlock)
		blockAge = tail.NextAge
	}

	w.block = block
	w.blockAge = blockAge
	w.erased = true // an existing, previously-written block is already erased
	if err := w.seekToFirstWritableSector(); err != nil {
		return nil, err
	}
	return w, nil
}

// seekToFirstWritableSector scans the active block's data sectors for the
// first one still in erased state (§4.6, open-write existing-file case).
func (w *Writer) seekToFirstWritableSector() error {
	var bytesInBlock uint32
	for s := uint32(0); s < w.geom.TailSector(); s++ {
		if err := w.pc.OpenSector(w.block, s); err != nil {
			return err
		}
		spare := make([]byte, layout.FileSectorSpareSize)
		if err := w.pc.ReadSpare(spare, s); err != nil {
			return err
		}
		if layout.IsErasedSpare(spare) {
			w.sector = s
			if s == 0 {
				w.offset = layout.FileInitHeaderSize
			} else {
				w.offset = 0
			}
			w.bytesInBlock = bytesInBlock
			return nil
		}
		bytesInBlock += uint32(layout.DecodeFileSectorSpare(spare).NBytes)
	}
	// Every data sector is full but the tail is still incomplete: the next
	// write must roll over to a new block.
	w.sector = w.geom.TailSector()
	w.bytesInBlock = bytesInBlock
	return nil
}

func (w *Writer) readTailHeader(block uint32) (layout.FileTailHeader, error) {
	tailSector := w.geom.TailSector()
	if err := w.pc.OpenSector(block, tailSector); err != nil {
		return layout.FileTailHeader{}, err
	}
	buf := make([]byte, layout.FileTailHeaderSize)
	if err := w.pc.ReadSector(buf, tailSector, 0, uint32(len(buf))); err != nil {
		return layout.FileTailHeader{}, err
	}
	return layout.DecodeFileTailHeader(buf), nil
}

// Write buffers p into the current sector, committing (and rolling over to
// a freshly allocated block) whenever a sector fills (§4.6).
func (w *Writer) Write(p []byte) (int, error) {
	written := 0
	for written < len(p) {
		if w.sector == w.geom.TailSector() {
			if err := w.rollToNewBlock(); err != nil {
				return written, err
			}
		}
		capacity := w.geom.SectorSize - w.offset
		take := uint32(len(p) - written)
		if take > capacity {
			take = capacity
		}
		copy(w.buf[w.offset:w.offset+take], p[written:written+int(take)])
		w.offset += take
		written += int(take)

		if w.offset == w.geom.SectorSize {
			if err := w.commitCurrentSector(); err != nil {
				return written, err
			}
		}
	}
	return written, nil
}

// commitCurrentSector is commit_file_sector's case 1 (§4.6): write the
// buffered bytes, stamp the init header if this is sector 0, write the
// spare, commit, and advance.
func (w *Writer) commitCurrentSector() error {
	headerLen := uint32(0)
	if w.sector == 0 {
		headerLen = layout.FileInitHeaderSize
		if !w.erased {
			if err := w.pc.Erase(w.block); err != nil {
				return err
			}
			w.erased = true
			w.a.Release(w)
		}
	}

	if err := w.pc.OpenSector(w.block, w.sector); err != nil {
		return err
	}
	dataLen := w.offset - headerLen
	if dataLen > 0 {
		if err := w.pc.WriteSector(w.buf[headerLen:w.offset], w.sector, headerLen); err != nil {
			return err
		}
	}
	if w.sector == 0 {
		hdr := layout.FileInitHeader{Age: w.blockAge, FileID: w.fileID}
		if err := w.pc.WriteSector(hdr.Encode(), 0, 0); err != nil {
			return err
		}
	}
	spare := layout.FileSectorSpare{TypeID: layout.BlockFile, NBytes: uint16(dataLen)}
	if err := w.pc.WriteSpare(spare.Encode(), w.sector); err != nil {
		return err
	}
	if err := w.pc.Commit(); err != nil {
		return err
	}

	w.bytesInBlock += dataLen
	w.sector++
	w.offset = 0
	for i := range w.buf {
		w.buf[i] = 0
	}
	return nil
}

// rollToNewBlock is commit_file_sector's case 2 (§4.6): allocate a
// successor, stamp the current block's tail header, and reinitialize
// writer state at the new block's sector 0.
func (w *Writer) rollToNewBlock() error {
	cand, err := w.a.AllocateBlock(w.baseThreshold)
	if err != nil {
		return fmt.Errorf("file: grow: %w", err)
	}

	ts := w.clk.Next()
	tail := layout.FileTailHeader{
		NextBlock: uint16(cand.Block), NextAge: cand.Age + 1,
		Timestamp: ts, BytesInBlock: uint16(w.bytesInBlock),
	}
	tailSector := w.geom.TailSector()
	if err := w.pc.OpenSector(w.block, tailSector); err != nil {
		return err
	}
	if err := w.pc.WriteSector(tail.Encode(), tailSector, 0); err != nil {
		return err
	}
	if err := w.pc.Commit(); err != nil {
		return err
	}

	w.block = cand.Block
	w.blockAge = cand.Age + 1
	w.sector = 0
	w.offset = layout.FileInitHeaderSize
	w.bytesInBlock = 0
	w.erased = false
	for i := range w.buf {
		w.buf[i] = 0
	}
	w.a.Claim(w, cand.Block, cand.Age)
	return nil
}

// FlushDirty implements alloc.DirtyHolder: force the current (always
// not-yet-erased) sector 0 reservation to actually commit.
func (w *Writer) FlushDirty() error {
	return w.commitCurrentSector()
}

// Close flushes any buffered partial sector (§4.6, flush_write). It is a
// no-op if the writer sits exactly at the tail boundary with nothing
// pending, since allocating a new block purely to close would strand it.
func (w *Writer) Close() error {
	if w.sector == w.geom.TailSector() {
		return nil
	}
	return w.commitCurrentSector()
}
