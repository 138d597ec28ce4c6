package layout

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFileInitHeaderRoundTrip(t *testing.T) {
	h := FileInitHeader{Age: 7, FileID: 42}
	got := DecodeFileInitHeader(h.Encode())
	assert.Equal(t, h, got)
}

func TestFileTailHeaderRoundTrip(t *testing.T) {
	h := FileTailHeader{NextBlock: 0x1234, NextAge: 9, Timestamp: 100, BytesInBlock: 511}
	b := h.Encode()
	assert.Len(t, b, FileTailHeaderSize)
	assert.Equal(t, h, DecodeFileTailHeader(b))
}

func TestFileSectorSpareRoundTrip(t *testing.T) {
	s := FileSectorSpare{TypeID: BlockFile, Reserved: 0, NBytes: 509}
	assert.Equal(t, s, DecodeFileSectorSpare(s.Encode()))
}

func TestInodeAllocationEntryRoundTrip(t *testing.T) {
	name, ok := NewFilename("hello.txt")
	assert.True(t, ok)
	e := InodeAllocationEntry{
		FileID:        3,
		FirstBlock:    12,
		FirstBlockAge: 4,
		Timestamp:     55,
		Filename:      name,
	}
	got := DecodeInodeAllocationEntry(e.Encode())
	assert.Equal(t, e, got)
	assert.Equal(t, "hello.txt", got.Name())
}

func TestNewFilenameTooLong(t *testing.T) {
	long := make([]byte, MaxFilenameLen)
	for i := range long {
		long[i] = 'a'
	}
	_, ok := NewFilename(string(long))
	assert.False(t, ok)

	ok2Name := make([]byte, MaxFilenameLen-1)
	for i := range ok2Name {
		ok2Name[i] = 'b'
	}
	_, ok2 := NewFilename(string(ok2Name))
	assert.True(t, ok2)
}

func TestBlockStatRecordMagic(t *testing.T) {
	s := BlockStatRecord{Age: 1, NextBlock: BlockIndexInvalid, NextAge: 0, Timestamp: 0, Key: StatMagic}
	got := DecodeBlockStatRecord(s.Encode())
	assert.True(t, got.HasMagic())

	other := s
	other.Key = [8]byte{}
	assert.False(t, other.HasMagic())
}

func TestClassify(t *testing.T) {
	assert.Equal(t, BlockUnallocated, Classify(0xFF))
	assert.Equal(t, BlockInode, Classify(1))
	assert.Equal(t, BlockFile, Classify(2))
	assert.Equal(t, BlockType(0), Classify(0x55), "byte more than one flip from every tag classifies as corrupt")
}

// A single flipped bit in a status byte living outside ECC protection must
// still decode to the tag it started as (§9).
func TestClassifyTolerateSingleBitFlip(t *testing.T) {
	assert.Equal(t, BlockUnallocated, Classify(0xFF^0x10), "one flip off UNALLOCATED")
	assert.Equal(t, BlockInode, Classify(1^0x04), "one flip off INODE")
	assert.Equal(t, BlockFile, Classify(2^0x08), "one flip off FILE")
}

func TestIsErasedSpare(t *testing.T) {
	assert.True(t, IsErasedSpare([]byte{0xFF, 0xFF, 0xFF}))
	assert.True(t, IsErasedSpare([]byte{0xFF, 0xFF ^ 0x01, 0xFF}), "single bit-flip in an erased spare byte still reads as erased")
	assert.False(t, IsErasedSpare([]byte{0xFF, 0x00, 0xFF}))
}
