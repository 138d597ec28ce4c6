package flash

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGeom() Geometry {
	return Geometry{SectorSize: 64, SectorsPerPage: 4, PagesPerBlock: 2, Blocks: 8, SpareSize: 16}
}

func TestMemDeviceEraseIsAllOnes(t *testing.T) {
	d := NewMemDevice(testGeom())
	require.NoError(t, d.OpenPage(0, 0))
	dst := make([]byte, 4)
	require.NoError(t, d.ReadSector(dst, 0, 0, 4))
	assert.Equal(t, []byte{0xFF, 0xFF, 0xFF, 0xFF}, dst)
}

func TestMemDeviceProgramOnlyClearsBits(t *testing.T) {
	d := NewMemDevice(testGeom())
	require.NoError(t, d.OpenPage(0, 0))
	require.NoError(t, d.WriteSector([]byte{0x0F}, 0, 0))
	// writing 0xFF again must not re-set the cleared high bits
	require.NoError(t, d.WriteSector([]byte{0xFF}, 0, 0))
	dst := make([]byte, 1)
	require.NoError(t, d.ReadSector(dst, 0, 0, 1))
	assert.Equal(t, byte(0x0F), dst[0])
}

func TestMemDeviceBadBlock(t *testing.T) {
	d := NewMemDevice(testGeom(), 3)
	err := d.OpenPage(3, 0)
	assert.ErrorIs(t, err, ErrBlockBad)
}

func TestMemDeviceEraseResets(t *testing.T) {
	d := NewMemDevice(testGeom())
	require.NoError(t, d.OpenPage(1, 0))
	require.NoError(t, d.WriteSector([]byte{0x00}, 0, 0))
	require.NoError(t, d.EraseBlock(1))
	require.NoError(t, d.OpenPage(1, 0))
	dst := make([]byte, 1)
	require.NoError(t, d.ReadSector(dst, 0, 0, 1))
	assert.Equal(t, byte(0xFF), dst[0])
}

func TestFileDeviceRoundTrip(t *testing.T) {
	path := t.TempDir() + "/image.bin"
	geom := testGeom()
	d, err := NewFileDevice(path, geom)
	require.NoError(t, err)
	defer d.Close()

	require.NoError(t, d.OpenPage(2, 0))
	require.NoError(t, d.WriteSector([]byte("hi"), 1, 0))
	require.NoError(t, d.WriteSpare([]byte{1, 2, 3}, 1))
	require.NoError(t, d.Commit())
	d.ClosePage()

	require.NoError(t, d.OpenPage(2, 0))
	dst := make([]byte, 2)
	require.NoError(t, d.ReadSector(dst, 1, 0, 2))
	assert.Equal(t, []byte("hi"), dst)
	spare := make([]byte, 3)
	require.NoError(t, d.ReadSpare(spare, 1))
	assert.Equal(t, []byte{1, 2, 3}, spare)
}

func TestFileDevicePersistsAcrossReopen(t *testing.T) {
	path := t.TempDir() + "/image2.bin"
	geom := testGeom()
	d, err := NewFileDevice(path, geom)
	require.NoError(t, err)
	require.NoError(t, d.OpenPage(0, 0))
	require.NoError(t, d.WriteSector([]byte("persist"), 0, 0))
	require.NoError(t, d.Commit())
	require.NoError(t, d.Close())

	d2, err := NewFileDevice(path, geom)
	require.NoError(t, err)
	defer d2.Close()
	require.NoError(t, d2.OpenPage(0, 0))
	dst := make([]byte, len("persist"))
	require.NoError(t, d2.ReadSector(dst, 0, 0, uint32(len(dst))))
	assert.Equal(t, "persist", string(dst))

	_, statErr := os.Stat(path)
	assert.NoError(t, statErr)
}
