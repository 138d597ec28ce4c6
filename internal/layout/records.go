package layout

import "github.com/tchajed/marshal"

// marshal has no native 16-bit or 8-bit primitive (only PutInt/GetInt for
// 64-bit and PutInt32/GetInt32 for 32-bit); put16/get16 and put8/get8 carry
// the remaining field widths through PutBytes/GetBytes with an explicit
// little-endian encoding, the narrowest possible extension of the same
// codec rather than a parallel one.
func put16(enc marshal.Enc, v uint16) {
	enc.PutBytes([]byte{byte(v), byte(v >> 8)})
}

func get16(dec marshal.Dec) uint16 {
	b := dec.GetBytes(2)
	return uint16(b[0]) | uint16(b[1])<<8
}

func put8(enc marshal.Enc, v uint8) {
	enc.PutBytes([]byte{v})
}

func get8(dec marshal.Dec) uint8 {
	return dec.GetBytes(1)[0]
}

// FileInitHeader is the first FileInitHeaderSize bytes of a file block's
// init sector (§4.1).
type FileInitHeader struct {
	Age    uint32
	FileID uint32
}

func (h FileInitHeader) Encode() []byte {
	enc := marshal.NewEnc(FileInitHeaderSize)
	enc.PutInt32(h.Age)
	enc.PutInt32(h.FileID)
	return enc.Finish()
}

func DecodeFileInitHeader(b []byte) FileInitHeader {
	dec := marshal.NewDec(b)
	return FileInitHeader{Age: dec.GetInt32(), FileID: dec.GetInt32()}
}

// FileTailHeader is the content of a file block's tail sector (§4.1).
type FileTailHeader struct {
	NextBlock    uint16
	NextAge      uint32
	Timestamp    uint32
	BytesInBlock uint16
}

func (h FileTailHeader) Encode() []byte {
	enc := marshal.NewEnc(FileTailHeaderSize)
	put16(enc, h.NextBlock)
	enc.PutInt32(h.NextAge)
	enc.PutInt32(h.Timestamp)
	put16(enc, h.BytesInBlock)
	return enc.Finish()
}

func DecodeFileTailHeader(b []byte) FileTailHeader {
	dec := marshal.NewDec(b)
	return FileTailHeader{
		NextBlock:    get16(dec),
		NextAge:      dec.GetInt32(),
		Timestamp:    dec.GetInt32(),
		BytesInBlock: get16(dec),
	}
}

// FileSectorSpare is the first 4 bytes of every file data/init sector's
// spare (§4.1).
type FileSectorSpare struct {
	TypeID   BlockType
	Reserved uint8
	NBytes   uint16
}

const FileSectorSpareSize = 4

func (s FileSectorSpare) Encode() []byte {
	enc := marshal.NewEnc(FileSectorSpareSize)
	put8(enc, uint8(s.TypeID))
	put8(enc, s.Reserved)
	put16(enc, s.NBytes)
	return enc.Finish()
}

func DecodeFileSectorSpare(b []byte) FileSectorSpare {
	dec := marshal.NewDec(b)
	return FileSectorSpare{
		TypeID:   BlockType(get8(dec)),
		Reserved: get8(dec),
		NBytes:   get16(dec),
	}
}

// InodeInitSector is the content of an inode block's init sector (§4.1).
type InodeInitSector struct {
	Age           uint32
	Timestamp     uint32
	PreviousBlock uint16
}

const InodeInitSectorSize = 10

func (s InodeInitSector) Encode() []byte {
	enc := marshal.NewEnc(InodeInitSectorSize)
	enc.PutInt32(s.Age)
	enc.PutInt32(s.Timestamp)
	put16(enc, s.PreviousBlock)
	return enc.Finish()
}

func DecodeInodeInitSector(b []byte) InodeInitSector {
	dec := marshal.NewDec(b)
	return InodeInitSector{
		Age:           dec.GetInt32(),
		Timestamp:     dec.GetInt32(),
		PreviousBlock: get16(dec),
	}
}

// InodeInitSpare is the first 4 bytes of an inode block's init-sector
// spare (§4.1).
type InodeInitSpare struct {
	TypeID     BlockType
	Reserved   uint8
	InodeIndex uint16
}

const InodeInitSpareSize = 4

func (s InodeInitSpare) Encode() []byte {
	enc := marshal.NewEnc(InodeInitSpareSize)
	put8(enc, uint8(s.TypeID))
	put8(enc, s.Reserved)
	put16(enc, s.InodeIndex)
	return enc.Finish()
}

func DecodeInodeInitSpare(b []byte) InodeInitSpare {
	dec := marshal.NewDec(b)
	return InodeInitSpare{
		TypeID:     BlockType(get8(dec)),
		Reserved:   get8(dec),
		InodeIndex: get16(dec),
	}
}

// InodeAllocationEntry is the allocation half of an inode entry (§3): the
// first of the two sectors an inode entry occupies.
type InodeAllocationEntry struct {
	FileID        uint32
	FirstBlock    uint16
	FirstBlockAge uint32
	Timestamp     uint32
	Filename      [MaxFilenameLen]byte
}

const InodeAllocationHeaderSize = 4 + 2 + 4 + 4 // FileID, FirstBlock, FirstBlockAge, Timestamp
const InodeAllocationEntrySize = InodeAllocationHeaderSize + MaxFilenameLen

func (e InodeAllocationEntry) Encode() []byte {
	enc := marshal.NewEnc(InodeAllocationEntrySize)
	enc.PutInt32(e.FileID)
	put16(enc, e.FirstBlock)
	enc.PutInt32(e.FirstBlockAge)
	enc.PutInt32(e.Timestamp)
	enc.PutBytes(e.Filename[:])
	return enc.Finish()
}

func DecodeInodeAllocationEntry(b []byte) InodeAllocationEntry {
	dec := marshal.NewDec(b)
	e := InodeAllocationEntry{
		FileID:        dec.GetInt32(),
		FirstBlock:    get16(dec),
		FirstBlockAge: dec.GetInt32(),
		Timestamp:     dec.GetInt32(),
	}
	copy(e.Filename[:], dec.GetBytes(MaxFilenameLen))
	return e
}

// DecodeInodeAllocationHeader decodes just the fixed header, without
// paying for the filename bytes; used by fast scans (mount, find).
func DecodeInodeAllocationHeader(b []byte) InodeAllocationEntry {
	dec := marshal.NewDec(b)
	return InodeAllocationEntry{
		FileID:        dec.GetInt32(),
		FirstBlock:    get16(dec),
		FirstBlockAge: dec.GetInt32(),
		Timestamp:     dec.GetInt32(),
	}
}

// Name returns the filename as a string, trimmed at the first NUL.
func (e InodeAllocationEntry) Name() string {
	n := 0
	for n < len(e.Filename) && e.Filename[n] != 0 {
		n++
	}
	return string(e.Filename[:n])
}

// NewFilename builds a zero-padded, NUL-terminated filename array, or
// reports false if name (plus its terminator) doesn't fit.
func NewFilename(name string) ([MaxFilenameLen]byte, bool) {
	var out [MaxFilenameLen]byte
	if len(name) > MaxFilenameLen-1 {
		return out, false
	}
	copy(out[:], name)
	return out, true
}

// InodeInvalidationEntry is the invalidation half of an inode entry
// (§3). A Timestamp of TimestampInvalid means the file is live.
type InodeInvalidationEntry struct {
	Timestamp uint32
	LastBlock uint16
}

const InodeInvalidationEntrySize = 6

func (e InodeInvalidationEntry) Encode() []byte {
	enc := marshal.NewEnc(InodeInvalidationEntrySize)
	enc.PutInt32(e.Timestamp)
	put16(enc, e.LastBlock)
	return enc.Finish()
}

func DecodeInodeInvalidationEntry(b []byte) InodeInvalidationEntry {
	dec := marshal.NewDec(b)
	return InodeInvalidationEntry{Timestamp: dec.GetInt32(), LastBlock: get16(dec)}
}

// BlockStatRecord is written into a block's invalidation sector whenever
// the block is erased, so that age survives the erase that wipes
// everything else (§3, invariant 7; §4.4, age tracking across erase).
type BlockStatRecord struct {
	Age       uint32
	NextBlock uint16
	NextAge   uint32
	Timestamp uint32
	Key       [8]byte
}

const BlockStatRecordSize = 4 + 2 + 4 + 4 + 8

func (s BlockStatRecord) Encode() []byte {
	enc := marshal.NewEnc(BlockStatRecordSize)
	enc.PutInt32(s.Age)
	put16(enc, s.NextBlock)
	enc.PutInt32(s.NextAge)
	enc.PutInt32(s.Timestamp)
	enc.PutBytes(s.Key[:])
	return enc.Finish()
}

func DecodeBlockStatRecord(b []byte) BlockStatRecord {
	dec := marshal.NewDec(b)
	s := BlockStatRecord{
		Age:       dec.GetInt32(),
		NextBlock: get16(dec),
		NextAge:   dec.GetInt32(),
		Timestamp: dec.GetInt32(),
	}
	copy(s.Key[:], dec.GetBytes(8))
	return s
}

// HasMagic reports whether the record's key matches StatMagic, meaning the
// block was previously formatted by this filesystem (as opposed to virgin
// or foreign media).
func (s BlockStatRecord) HasMagic() bool {
	return s.Key == StatMagic
}
