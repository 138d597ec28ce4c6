// Package layout defines the bit-exact on-media record formats of §3/§4.1
// and the block-type classification rule of §4.1. Every record is encoded
// field-by-field through tchajed/marshal rather than relying on Go struct
// layout, per the "Packed on-media records" design note.
package layout

import (
	"github.com/bnahill/FLogFS/internal/flash"
	"github.com/bnahill/FLogFS/internal/util"
)

// statFlipTolerance is the number of bit-flips Classify/IsErasedSpare
// tolerate when decoding a status byte that lives outside ECC protection
// (§9, Bit-flip tolerance): a single flipped bit decodes back to the value
// it started as, except between two valid values only two flips apart
// (see Classify).
const statFlipTolerance = 1

// BlockType is the persistent type tag stored in a block's first-sector
// spare (§3).
type BlockType uint8

const (
	BlockUnallocated BlockType = 0xFF
	BlockInode       BlockType = 1
	BlockFile        BlockType = 2
)

// MaxFilenameLen is the maximum filename length including the trailing
// NUL (§6).
const MaxFilenameLen = 32

// Sentinel values for 16/32-bit fields whose erased (all-ones) encoding
// means "invalid"/"none".
const (
	BlockIndexInvalid uint16 = 0xFFFF
	FileIDInvalid     uint32 = 0xFFFFFFFF
	TimestampInvalid  uint32 = 0xFFFFFFFF
)

// StatMagic is the compile-time magic string written into a block-stat
// record so Format can distinguish previously-formatted media (whose age
// should be preserved) from virgin or corrupt media. Grounded on the
// original implementation's fs_header_buffer version-stamp idea.
var StatMagic = [8]byte{'F', 'L', 'O', 'G', 'F', 'S', 0, 1}

// Geometry carries flash.Geometry plus the sector roles derived from it
// (§3): tail and invalidation sectors, and the first inode-entry sector.
type Geometry struct {
	flash.Geometry
}

// TailSector returns the index of the tail (chain-continuation) sector of
// every block: second-to-last sector.
func (g Geometry) TailSector() uint32 {
	return g.SectorsPerBlock() - 2
}

// InvalidationSector returns the index of the last sector of every block.
func (g Geometry) InvalidationSector() uint32 {
	return g.SectorsPerBlock() - 1
}

// FirstEntrySector is the first sector of an inode block not overlapping
// block metadata (§4.3): the first sector past the init sector's page.
func (g Geometry) FirstEntrySector() uint32 {
	return g.SectorsPerPage
}

// LastEntrySector is the last sector available for an inode entry's
// allocation half (entries occupy pairs of sectors, so the final valid
// starting sector is two before the tail sector).
func (g Geometry) LastEntrySector() uint32 {
	return g.TailSector() - 2
}

// InitHeaderSize is the byte size of the universal 4-byte age header that
// begins every block's init sector (§4.1).
const InitHeaderSize = 4

// FileInitHeaderSize is the byte size of a file init sector's header
// (age, file_id).
const FileInitHeaderSize = 8

// FileTailHeaderSize is the byte size of a file tail sector's header.
const FileTailHeaderSize = 12

// Classify reads a block's first-sector spare and reports its BlockType.
// A byte within statFlipTolerance bit-flips of one of UNALLOCATED/INODE/
// FILE is read as that type (§9), checked in that order. UNALLOCATED is
// seven flips from each of the other two tags, but INODE (1) and FILE (2)
// are only two flips apart: a byte one flip from both (0x00 or 0x03, e.g.
// FILE with bit 0 or bit 1 flipped) matches INODE first and is read as
// INODE. Anything else means the block is corrupt and must be treated as bad for
// the session (§4.1).
func Classify(spareByte uint8) BlockType {
	switch {
	case util.NearStatus(spareByte, uint8(BlockUnallocated), statFlipTolerance):
		return BlockUnallocated
	case util.NearStatus(spareByte, uint8(BlockInode), statFlipTolerance):
		return BlockInode
	case util.NearStatus(spareByte, uint8(BlockFile), statFlipTolerance):
		return BlockFile
	default:
		return 0 // corrupt: not one of the three valid tags
	}
}

// IsErasedSpare reports whether a spare buffer is still in the erased
// (all 0xFF) state, meaning the sector it belongs to has not been written
// since the block was last erased. Each byte is matched within
// statFlipTolerance bit-flips of 0xFF (§9).
func IsErasedSpare(spare []byte) bool {
	for _, b := range spare {
		if !util.NearStatus(b, 0xFF, statFlipTolerance) {
			return false
		}
	}
	return true
}
