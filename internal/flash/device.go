// Package flash defines the external flash-driver contract FLogFS consumes
// (§6) and provides two reference implementations of it: an in-memory
// device for tests and a file-backed device for real use, grounded on the
// teacher's disk.Disk interface and its memDisk/fileDisk implementations.
package flash

import "errors"

// ErrBlockBad is returned by EraseBlock/OpenPage when the driver (or the
// manufacturer bad-block marker) refuses to operate on a block.
var ErrBlockBad = errors.New("flash: block is bad")

// Geometry describes the physical layout of the device: a flat array of
// Blocks blocks, each with PagesPerBlock pages of SectorsPerPage sectors of
// SectorSize bytes, plus a small spare area per sector.
type Geometry struct {
	SectorSize     uint32
	SectorsPerPage uint32
	PagesPerBlock  uint32
	Blocks         uint32
	SpareSize      uint32
}

// SectorsPerBlock is SectorsPerPage * PagesPerBlock.
func (g Geometry) SectorsPerBlock() uint32 {
	return g.SectorsPerPage * g.PagesPerBlock
}

// PageOf returns the page containing sector within a block.
func (g Geometry) PageOf(sector uint32) uint32 {
	return sector / g.SectorsPerPage
}

// Device is the flash driver contract of §6: a single open-page cache,
// page-at-a-time programming, and whole-block erase. All methods operate on
// the block/page most recently opened except where a sector or block index
// is passed explicitly.
//
// Device is not safe for concurrent use; callers serialize access with
// Lock/Unlock (the "flash-lock" of §5).
type Device interface {
	// Geometry returns the device's fixed geometry.
	Geometry() Geometry

	// Lock and Unlock implement the coarse device mutex of §5. Lock
	// acquisition order is fs-lock, then flash-lock, then allocate-lock or
	// delete-lock (never both); see internal/lockset.
	Lock()
	Unlock()

	// OpenPage reads page of block into the device's single page cache.
	// Returns ErrBlockBad if the block is bad.
	OpenPage(block, page uint32) error

	// ClosePage discards the open-page cache without erasing anything.
	ClosePage()

	// EraseBlock erases block. Returns ErrBlockBad if the block refuses to
	// erase (which marks it permanently bad for the session).
	EraseBlock(block uint32) error

	// BlockIsBad queries the manufacturer/driver bad-block marker of the
	// currently open page. Ground truth, not a heuristic.
	BlockIsBad() bool

	// ReadSector reads n bytes at offset within sector (which must belong
	// to the currently open page) into dst.
	ReadSector(dst []byte, sector uint32, offset uint32, n uint32) error

	// WriteSector programs all of src at offset within sector into the
	// cached page. Not durable until Commit.
	WriteSector(src []byte, sector uint32, offset uint32) error

	// ReadSpare reads the spare area of sector into dst.
	ReadSpare(dst []byte, sector uint32) error

	// WriteSpare programs the spare area of sector from src. Not durable
	// until Commit.
	WriteSpare(src []byte, sector uint32) error

	// Commit flushes all programs issued against the open page to media.
	// Endurance-critical: callers invoke it at minimum granularity.
	Commit() error

	// Close releases device resources.
	Close() error
}
