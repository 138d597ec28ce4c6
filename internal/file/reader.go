// Package file implements the file read and write paths of §4.5/§4.6: a
// Reader that follows the forward block chain sector by sector, and a
// Writer that buffers into a sector-sized buffer and hands off to a freshly
// allocated block when a chain's tail sector is reached.
package file

import (
	"github.com/bnahill/FLogFS/internal/inode"
	"github.com/bnahill/FLogFS/internal/layout"
	"github.com/bnahill/FLogFS/internal/pagecache"
)

// Reader is the open-read state of §4.5.
type Reader struct {
	pc   *pagecache.Shim
	geom layout.Geometry

	fileID    uint32
	block     uint32
	sector    uint32
	offset    uint32
	remaining uint32
	eof       bool
}

// OpenRead locates name's live inode entry and positions a Reader at its
// first byte (§4.5).
func OpenRead(pc *pagecache.Shim, geom layout.Geometry, name string) (*Reader, error) {
	res, _, found, err := inode.FindFile(pc, geom, name)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}

	r := &Reader{pc: pc, geom: geom, fileID: res.Entry.FileID, block: uint32(res.Entry.FirstBlock)}
	nbytes, erased, err := r.spareNBytes(r.block, 0)
	if err != nil {
		return nil, err
	}
	if erased {
		r.eof = true
		return r, nil
	}
	if nbytes != 0 {
		r.sector = 0
		r.offset = layout.FileInitHeaderSize
		r.remaining = nbytes
	} else {
		r.sector = 1
		r.offset = 0
		r.remaining = 0
	}
	return r, nil
}

// FileID returns the open file's identifier.
func (r *Reader) FileID() uint32 { return r.fileID }

func (r *Reader) spareNBytes(block, sector uint32) (uint32, bool, error) {
	if err := r.pc.OpenSector(block, sector); err != nil {
		return 0, false, err
	}
	spare := make([]byte, layout.FileSectorSpareSize)
	if err := r.pc.ReadSpare(spare, sector); err != nil {
		return 0, false, err
	}
	if layout.IsErasedSpare(spare) {
		return 0, true, nil
	}
	return uint32(layout.DecodeFileSectorSpare(spare).NBytes), false, nil
}

// Read copies up to len(dst) bytes into dst, following the chain across
// block boundaries as needed, and reports io.EOF-style exhaustion via a
// short count with a nil error (no more bytes currently exist on media).
func (r *Reader) Read(dst []byte) (int, error) {
	n := 0
	for n < len(dst) && !r.eof {
		if r.remaining == 0 {
			if err := r.advance(); err != nil {
				return n, err
			}
			if r.eof {
				break
			}
			continue
		}
		take := r.remaining
		if want := uint32(len(dst) - n); take > want {
			take = want
		}
		if err := r.pc.ReadSector(dst[n:n+int(take)], r.sector, r.offset, take); err != nil {
			return n, err
		}
		n += int(take)
		r.offset += take
		r.remaining -= take
	}
	return n, nil
}

// advance crosses to the next sector, hopping to the successor block when
// the tail sector boundary is reached (§4.5, increment_sector).
func (r *Reader) advance() error {
	next := r.sector + 1
	if next < r.geom.TailSector() {
		nbytes, erased, err := r.spareNBytes(r.block, next)
		if err != nil {
			return err
		}
		if erased {
			r.eof = true
			return nil
		}
		r.sector = next
		r.offset = 0
		r.remaining = nbytes
		return nil
	}

	tail, err := r.readTailHeader(r.block)
	if err != nil {
		return err
	}
	if tail.NextBlock == layout.BlockIndexInvalid {
		r.eof = true
		return nil
	}
	nextBlock := uint32(tail.NextBlock)
	if err := r.pc.OpenSector(nextBlock, 0); err != nil {
		return err
	}
	hdrBuf := make([]byte, layout.FileInitHeaderSize)
	if err := r.pc.ReadSector(hdrBuf, 0, 0, uint32(len(hdrBuf))); err != nil {
		return err
	}
	hdr := layout.DecodeFileInitHeader(hdrBuf)
	if hdr.FileID != r.fileID {
		// The successor hasn't been written yet (crash recovery window)
		// or was reclaimed by another file: either way, EOF for us.
		r.eof = true
		return nil
	}

	nbytes, erased, err := r.spareNBytes(nextBlock, 0)
	if err != nil {
		return err
	}
	r.block = nextBlock
	if erased {
		r.eof = true
		return nil
	}
	r.sector = 0
	r.offset = layout.FileInitHeaderSize
	r.remaining = nbytes
	return nil
}

func (r *Reader) readTailHeader(block uint32) (layout.FileTailHeader, error) {
	tailSector := r.geom.TailSector()
	if err := r.pc.OpenSector(block, tailSector); err != nil {
		return layout.FileTailHeader{}, err
	}
	buf := make([]byte, layout.FileTailHeaderSize)
	if err := r.pc.ReadSector(buf, tailSector, 0, uint32(len(buf))); err != nil {
		return layout.FileTailHeader{}, err
	}
	return layout.DecodeFileTailHeader(buf), nil
}

// Close releases the reader. There is no flushable state on the read
// side; Close exists for API symmetry with Writer and to make call sites
// read naturally next to close_read (§6).
func (r *Reader) Close() error { return nil }
