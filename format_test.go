package flogfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnahill/FLogFS/internal/flash"
)

func testGeometry() flash.Geometry {
	return flash.Geometry{
		SectorSize: 64, SectorsPerPage: 4, PagesPerBlock: 2, Blocks: 16, SpareSize: 16,
	}
}

func TestFormatThenMountSucceeds(t *testing.T) {
	dev := flash.NewMemDevice(testGeometry())
	fs := New(dev)
	require.NoError(t, fs.Format())
	require.NoError(t, fs.Mount())
}

func TestFormatRejectsBadBlockZero(t *testing.T) {
	dev := flash.NewMemDevice(testGeometry(), 0)
	fs := New(dev)
	err := fs.Format()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestFormatSkipsOtherBadBlocks(t *testing.T) {
	dev := flash.NewMemDevice(testGeometry(), 5, 9)
	fs := New(dev)
	require.NoError(t, fs.Format())
	require.NoError(t, fs.Mount())

	w, err := fs.OpenWrite("a")
	require.NoError(t, err)
	_, err = w.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
}

func TestFormatIsRepeatable(t *testing.T) {
	dev := flash.NewMemDevice(testGeometry())
	fs := New(dev)
	require.NoError(t, fs.Format())
	require.NoError(t, fs.Mount())

	w, err := fs.OpenWrite("x")
	require.NoError(t, err)
	_, err = w.Write([]byte("data"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	// Reformatting discards any existing files.
	fs2 := New(dev)
	require.NoError(t, fs2.Format())
	require.NoError(t, fs2.Mount())

	ok, err := fs2.Exists("x")
	require.NoError(t, err)
	assert.False(t, ok)
}
