package alloc

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnahill/FLogFS/internal/blockio"
	"github.com/bnahill/FLogFS/internal/flash"
	"github.com/bnahill/FLogFS/internal/layout"
	"github.com/bnahill/FLogFS/internal/pagecache"
)

func testGeom() layout.Geometry {
	return layout.Geometry{Geometry: flash.Geometry{
		SectorSize: 64, SectorsPerPage: 4, PagesPerBlock: 2, Blocks: 8, SpareSize: 16,
	}}
}

// seed stamps every block's stat record with the given age and marks it
// free, mimicking the mount-time scan that populates an Allocator.
func seed(t *testing.T, pc *pagecache.Shim, geom layout.Geometry, a *Allocator, ages map[uint32]uint32) {
	t.Helper()
	for block, age := range ages {
		rec := layout.BlockStatRecord{Age: age, NextBlock: layout.BlockIndexInvalid, Timestamp: layout.TimestampInvalid, Key: layout.StatMagic}
		require.NoError(t, blockio.WriteStat(pc, geom, block, rec))
		a.MarkFree(block, age)
	}
}

func newTestAllocator(t *testing.T) (*Allocator, *pagecache.Shim, layout.Geometry) {
	t.Helper()
	geom := testGeom()
	dev := flash.NewMemDevice(geom.Geometry)
	pc := pagecache.New(dev)
	return New(pc, geom), pc, geom
}

func TestAllocateBlockPrefersLowAge(t *testing.T) {
	a, pc, geom := newTestAllocator(t)
	seed(t, pc, geom, a, map[uint32]uint32{0: 1000, 1: 10, 2: 1000, 3: 10})

	c, err := a.AllocateBlock(5)
	require.NoError(t, err)
	assert.Contains(t, []uint32{1, 3}, c.Block, "should prefer one of the low-age blocks")
}

func TestAllocateBlockExhaustsFreePool(t *testing.T) {
	a, pc, geom := newTestAllocator(t)
	seed(t, pc, geom, a, map[uint32]uint32{0: 1, 1: 1})

	_, err := a.AllocateBlock(0)
	require.NoError(t, err)
	_, err = a.AllocateBlock(0)
	require.NoError(t, err)

	_, err = a.AllocateBlock(0)
	assert.True(t, errors.Is(err, ErrNoSpace))
}

func TestClaimedBlockNotReallocated(t *testing.T) {
	a, pc, geom := newTestAllocator(t)
	seed(t, pc, geom, a, map[uint32]uint32{0: 5, 1: 5, 2: 5})

	seen := map[uint32]bool{}
	for i := 0; i < 3; i++ {
		c, err := a.AllocateBlock(0)
		require.NoError(t, err)
		assert.False(t, seen[c.Block], "block %d allocated twice", c.Block)
		seen[c.Block] = true
	}
}

type fakeHolder struct {
	flushed bool
	err     error
}

func (f *fakeHolder) FlushDirty() error {
	f.flushed = true
	return f.err
}

func TestAllocateBlockFlushesPriorDirtyHolder(t *testing.T) {
	a, pc, geom := newTestAllocator(t)
	seed(t, pc, geom, a, map[uint32]uint32{0: 1, 1: 1})

	c1, err := a.AllocateBlock(0)
	require.NoError(t, err)
	h := &fakeHolder{}
	a.Claim(h, c1.Block, c1.Age)

	_, err = a.AllocateBlock(0)
	require.NoError(t, err)
	assert.True(t, h.flushed, "second allocation must flush the first holder's dirty slot")
}

func TestReleaseOnlyClearsMatchingHolder(t *testing.T) {
	a, pc, geom := newTestAllocator(t)
	seed(t, pc, geom, a, map[uint32]uint32{0: 1})

	c, err := a.AllocateBlock(0)
	require.NoError(t, err)
	h1 := &fakeHolder{}
	h2 := &fakeHolder{}
	a.Claim(h1, c.Block, c.Age)

	a.Release(h2)
	assert.NotNil(t, a.dirty, "release from a non-owning holder must be a no-op")

	a.Release(h1)
	assert.Nil(t, a.dirty)
}

// A negative threshold must admit a candidate whose age sits above the
// current mean free age (§4.4: threshold is decremented below zero across
// rejected candidates specifically so allocation can eventually admit
// such a block). Clamping threshold to 0 before comparing would make this
// permanently false regardless of how negative threshold gets.
func TestSufficientlyWornAdmitsAboveMeanAgeAtNegativeThreshold(t *testing.T) {
	assert.False(t, sufficientlyWorn(100, 50, 0), "age above mean must fail at threshold 0")
	assert.False(t, sufficientlyWorn(100, 50, -10), "still short of the -50 gap")
	assert.True(t, sufficientlyWorn(100, 50, -50), "exactly meets the gap")
	assert.True(t, sufficientlyWorn(100, 50, -100), "comfortably below the gap")
}

func TestMarkFreeIdempotent(t *testing.T) {
	a, _, _ := newTestAllocator(t)
	a.MarkFree(0, 10)
	a.MarkFree(0, 999)
	assert.Equal(t, uint32(1), a.NumFree())
}
