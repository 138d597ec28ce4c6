package flash

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// FileDevice is a Device backed by a regular file, grounded on the
// teacher's disk.fileDisk (disk/disk_impl.go): it opens (or creates) the
// file, sizes it to the full device, and uses pread/pwrite/fsync directly
// rather than going through the page cache, the way the teacher bypasses
// buffered I/O for its NFS-backing file disk.
type FileDevice struct {
	geom Geometry
	fd   int
	bad  map[uint32]bool

	openBlock uint32
	openPage  uint32
	isOpen    bool
}

func (g Geometry) sectorStride() int64 {
	return int64(g.SectorSize) + int64(g.SpareSize)
}

func (g Geometry) blockStride() int64 {
	return g.sectorStride() * int64(g.SectorsPerBlock())
}

func (g Geometry) sectorDataOffset(block, sector uint32) int64 {
	return int64(block)*g.blockStride() + int64(sector)*g.sectorStride()
}

func (g Geometry) sectorSpareOffset(block, sector uint32) int64 {
	return g.sectorDataOffset(block, sector) + int64(g.SectorSize)
}

func (g Geometry) totalSize() int64 {
	return g.blockStride() * int64(g.Blocks)
}

// NewFileDevice opens (creating if necessary) path as a file-backed flash
// device of the given geometry, initializing it to the fully-erased state
// if newly created or undersized.
func NewFileDevice(path string, geom Geometry, bad ...uint32) (*FileDevice, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT, 0o666)
	if err != nil {
		return nil, fmt.Errorf("flash: opening %q: %w", path, err)
	}
	var stat unix.Stat_t
	if err := unix.Fstat(fd, &stat); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("flash: stat %q: %w", path, err)
	}

	d := &FileDevice{geom: geom, fd: fd, bad: make(map[uint32]bool)}
	for _, b := range bad {
		d.bad[b] = true
	}

	needsInit := stat.Size != geom.totalSize()
	if needsInit {
		if err := unix.Ftruncate(fd, geom.totalSize()); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("flash: truncate %q: %w", path, err)
		}
		for b := uint32(0); b < geom.Blocks; b++ {
			if d.bad[b] {
				continue
			}
			if err := d.EraseBlock(b); err != nil {
				unix.Close(fd)
				return nil, err
			}
		}
	}
	return d, nil
}

func (d *FileDevice) Geometry() Geometry { return d.geom }

func (d *FileDevice) Lock()   {}
func (d *FileDevice) Unlock() {}

func (d *FileDevice) OpenPage(block, page uint32) error {
	if d.bad[block] {
		return ErrBlockBad
	}
	d.openBlock = block
	d.openPage = page
	d.isOpen = true
	return nil
}

func (d *FileDevice) ClosePage() {
	d.isOpen = false
}

func (d *FileDevice) EraseBlock(block uint32) error {
	if d.bad[block] {
		return ErrBlockBad
	}
	erased := erasedBytes(int(d.geom.sectorStride()))
	for s := uint32(0); s < d.geom.SectorsPerBlock(); s++ {
		off := d.geom.sectorDataOffset(block, s)
		if _, err := unix.Pwrite(d.fd, erased, off); err != nil {
			return fmt.Errorf("flash: erase block %d: %w", block, err)
		}
	}
	d.isOpen = false
	return nil
}

func (d *FileDevice) BlockIsBad() bool {
	return d.bad[d.openBlock]
}

func (d *FileDevice) requireOpenPage(sector uint32) error {
	if !d.isOpen {
		return fmt.Errorf("flash: no page open for sector %d", sector)
	}
	if d.geom.PageOf(sector) != d.openPage {
		return fmt.Errorf("flash: sector %d not in open page %d", sector, d.openPage)
	}
	return nil
}

func (d *FileDevice) ReadSector(dst []byte, sector uint32, offset uint32, n uint32) error {
	if err := d.requireOpenPage(sector); err != nil {
		return err
	}
	off := d.geom.sectorDataOffset(d.openBlock, sector) + int64(offset)
	_, err := unix.Pread(d.fd, dst[:n], off)
	return err
}

func (d *FileDevice) WriteSector(src []byte, sector uint32, offset uint32) error {
	if err := d.requireOpenPage(sector); err != nil {
		return err
	}
	off := d.geom.sectorDataOffset(d.openBlock, sector) + int64(offset)
	merged, err := d.programMerge(off, src)
	if err != nil {
		return err
	}
	_, err = unix.Pwrite(d.fd, merged, off)
	return err
}

func (d *FileDevice) ReadSpare(dst []byte, sector uint32) error {
	if err := d.requireOpenPage(sector); err != nil {
		return err
	}
	off := d.geom.sectorSpareOffset(d.openBlock, sector)
	_, err := unix.Pread(d.fd, dst, off)
	return err
}

func (d *FileDevice) WriteSpare(src []byte, sector uint32) error {
	if err := d.requireOpenPage(sector); err != nil {
		return err
	}
	off := d.geom.sectorSpareOffset(d.openBlock, sector)
	merged, err := d.programMerge(off, src)
	if err != nil {
		return err
	}
	_, err = unix.Pwrite(d.fd, merged, off)
	return err
}

// programMerge simulates real NAND program semantics: a program can only
// clear bits that are currently set, never set a cleared bit.
func (d *FileDevice) programMerge(off int64, src []byte) ([]byte, error) {
	cur := make([]byte, len(src))
	if _, err := unix.Pread(d.fd, cur, off); err != nil {
		return nil, err
	}
	for i, b := range src {
		cur[i] &= b
	}
	return cur, nil
}

func (d *FileDevice) Commit() error {
	return unix.Fsync(d.fd)
}

func (d *FileDevice) Close() error {
	return unix.Close(d.fd)
}
