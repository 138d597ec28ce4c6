package pagecache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnahill/FLogFS/internal/flash"
)

func testGeom() flash.Geometry {
	return flash.Geometry{SectorSize: 64, SectorsPerPage: 4, PagesPerBlock: 2, Blocks: 4, SpareSize: 16}
}

func TestOpenSectorHitMiss(t *testing.T) {
	dev := flash.NewMemDevice(testGeom())
	s := New(dev)

	require.NoError(t, s.OpenSector(1, 0))
	require.NoError(t, s.WriteSector([]byte("a"), 0, 0))

	// same page (sector 1 is also page 0 of block 1) should not need reopen
	require.NoError(t, s.OpenSector(1, 1))
	require.NoError(t, s.WriteSector([]byte("b"), 1, 0))

	dst := make([]byte, 1)
	require.NoError(t, s.ReadSector(dst, 0, 0, 1))
	assert.Equal(t, byte('a'), dst[0])
}

func TestCommitInvalidatesCache(t *testing.T) {
	dev := flash.NewMemDevice(testGeom())
	s := New(dev)
	require.NoError(t, s.OpenSector(0, 0))
	require.NoError(t, s.Commit())
	// after commit, OpenSector must reopen even the same page (no panic/error expected)
	require.NoError(t, s.OpenSector(0, 0))
}
