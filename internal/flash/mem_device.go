package flash

import "fmt"

// MemDevice is an in-memory Device, grounded on the teacher's memDisk. It
// simulates real NAND program semantics (a program can only clear bits,
// never set them) and erased-state spares/data (all-ones), which the core
// relies on to detect "not yet written".
type MemDevice struct {
	geom Geometry

	data  [][]byte // data[block*SectorsPerBlock+sector] = sector payload
	spare [][]byte // spare[block*SectorsPerBlock+sector] = sector spare

	bad map[uint32]bool

	openBlock uint32
	openPage  uint32
	isOpen    bool
}

// NewMemDevice allocates a fully-erased in-memory device with the given
// geometry. bad lists the block indices that should report as permanently
// bad, as a manufacturer bad-block table would.
func NewMemDevice(geom Geometry, bad ...uint32) *MemDevice {
	spb := int(geom.SectorsPerBlock())
	total := int(geom.Blocks) * spb
	d := &MemDevice{
		geom:  geom,
		data:  make([][]byte, total),
		spare: make([][]byte, total),
		bad:   make(map[uint32]bool),
	}
	for _, b := range bad {
		d.bad[b] = true
	}
	for i := 0; i < int(geom.Blocks); i++ {
		d.eraseBlockUnchecked(uint32(i))
	}
	return d
}

func (d *MemDevice) eraseBlockUnchecked(block uint32) {
	spb := int(d.geom.SectorsPerBlock())
	base := int(block) * spb
	for s := 0; s < spb; s++ {
		d.data[base+s] = erasedBytes(int(d.geom.SectorSize))
		d.spare[base+s] = erasedBytes(int(d.geom.SpareSize))
	}
}

func erasedBytes(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = 0xFF
	}
	return b
}

func (d *MemDevice) Geometry() Geometry { return d.geom }

func (d *MemDevice) Lock()   {}
func (d *MemDevice) Unlock() {}

func (d *MemDevice) index(sector uint32) (uint32, []byte, []byte) {
	idx := d.openBlock*d.geom.SectorsPerBlock() + sector
	return idx, d.data[idx], d.spare[idx]
}

func (d *MemDevice) OpenPage(block, page uint32) error {
	if d.bad[block] {
		return ErrBlockBad
	}
	d.openBlock = block
	d.openPage = page
	d.isOpen = true
	return nil
}

func (d *MemDevice) ClosePage() {
	d.isOpen = false
}

func (d *MemDevice) EraseBlock(block uint32) error {
	if d.bad[block] {
		return ErrBlockBad
	}
	d.eraseBlockUnchecked(block)
	d.isOpen = false
	return nil
}

func (d *MemDevice) BlockIsBad() bool {
	return d.bad[d.openBlock]
}

func (d *MemDevice) requireOpenPage(sector uint32) error {
	if !d.isOpen {
		return fmt.Errorf("flash: no page open for sector %d", sector)
	}
	if d.geom.PageOf(sector) != d.openPage {
		return fmt.Errorf("flash: sector %d not in open page %d", sector, d.openPage)
	}
	return nil
}

func (d *MemDevice) ReadSector(dst []byte, sector uint32, offset uint32, n uint32) error {
	if err := d.requireOpenPage(sector); err != nil {
		return err
	}
	_, blk, _ := d.index(sector)
	copy(dst[:n], blk[offset:offset+n])
	return nil
}

func (d *MemDevice) WriteSector(src []byte, sector uint32, offset uint32) error {
	if err := d.requireOpenPage(sector); err != nil {
		return err
	}
	_, blk, _ := d.index(sector)
	for i, b := range src {
		blk[int(offset)+i] &= b // NAND program can only clear bits
	}
	return nil
}

func (d *MemDevice) ReadSpare(dst []byte, sector uint32) error {
	if err := d.requireOpenPage(sector); err != nil {
		return err
	}
	_, _, sp := d.index(sector)
	copy(dst, sp)
	return nil
}

func (d *MemDevice) WriteSpare(src []byte, sector uint32) error {
	if err := d.requireOpenPage(sector); err != nil {
		return err
	}
	_, _, sp := d.index(sector)
	for i, b := range src {
		sp[i] &= b
	}
	return nil
}

func (d *MemDevice) Commit() error {
	return nil
}

func (d *MemDevice) Close() error {
	return nil
}
