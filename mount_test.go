package flogfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnahill/FLogFS/internal/flash"
)

func TestMountRejectsUnformattedDevice(t *testing.T) {
	dev := flash.NewMemDevice(testGeometry())
	fs := New(dev)
	err := fs.Mount()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestMountRejectsBadBlockZero(t *testing.T) {
	dev := flash.NewMemDevice(testGeometry())
	fs := New(dev)
	require.NoError(t, fs.Format())

	dev2 := flash.NewMemDevice(testGeometry(), 0)
	fs2 := New(dev2)
	err := fs2.Mount()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestMountIsIdempotentAcrossRemounts(t *testing.T) {
	fs := newMounted(t)
	writeFile(t, fs, "a", []byte("one"))
	writeFile(t, fs, "b", []byte("two"))
	require.NoError(t, fs.Remove("a"))

	dev := fs.dev
	fs2 := New(dev)
	require.NoError(t, fs2.Mount())

	ok, err := fs2.Exists("a")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = fs2.Exists("b")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "two", string(readAll(t, fs2, "b")))
}

// A second Mount() call on the very same *Filesystem must be a no-op
// (§8: "mount(); mount() is a no-op on the second call"), not a full
// device rescan that replaces fs.alloc out from under anything still
// holding a reference to it (e.g. an open *WriteHandle's dirty-block
// reservation).
func TestMountOnAlreadyMountedFilesystemIsNoOp(t *testing.T) {
	fs := newMounted(t)
	writeFile(t, fs, "a", []byte("one"))

	allocBefore := fs.alloc

	require.NoError(t, fs.Mount())

	assert.Same(t, allocBefore, fs.alloc)
	assert.Equal(t, "one", string(readAll(t, fs, "a")))
}

// TestMountRecoversInterruptedFileAllocation simulates a crash in the
// single-block-chain-growth window of §4.6/§4.10: rollToNewBlock has
// already committed the predecessor's tail header pointing at a freshly
// allocated successor, but the successor's own sector 0 was never
// committed (still buffered only in the writer's RAM, which a crash
// loses). Mount must finish initializing the successor so the chain walk
// and the free-block accounting stay consistent.
func TestMountRecoversInterruptedFileAllocation(t *testing.T) {
	dev := flash.NewMemDevice(testGeometry())
	fs := New(dev)
	require.NoError(t, fs.Format())
	require.NoError(t, fs.Mount())

	w, err := fs.OpenWrite("big")
	require.NoError(t, err)

	// SectorSize=64, SectorsPerBlock=8, TailSector=6: one data sector's
	// header eats 8 bytes, leaving 56+5*64=376 bytes of block capacity.
	// One more byte forces rollToNewBlock without ever committing the
	// new block's sector 0.
	data := make([]byte, 377)
	for i := range data {
		data[i] = byte(i)
	}
	n, err := w.Write(data)
	require.NoError(t, err)
	require.Equal(t, len(data), n)
	// No Close(): the crash discards the one buffered byte that never
	// reached media.

	fs2 := New(dev)
	require.NoError(t, fs2.Mount())

	got := readAll(t, fs2, "big")
	assert.Equal(t, data[:376], got)

	// The recovered filesystem must still be fully usable afterward.
	w2, err := fs2.OpenWrite("big")
	require.NoError(t, err)
	_, err = w2.Write([]byte("!"))
	require.NoError(t, err)
	require.NoError(t, w2.Close())

	assert.Equal(t, append(append([]byte{}, data[:376]...), '!'), readAll(t, fs2, "big"))
}

func TestMountRecoversFreeBlockAccounting(t *testing.T) {
	fs := newMounted(t)
	before := fs.alloc.NumFree()

	writeFile(t, fs, "f", []byte("some bytes"))
	require.NoError(t, fs.Remove("f"))

	dev := fs.dev
	fs2 := New(dev)
	require.NoError(t, fs2.Mount())

	assert.Equal(t, before, fs2.alloc.NumFree())
}
