// Package pagecache implements the single-open-page shim of §4.2: the
// flash driver exposes exactly one cached page, so the shim only issues a
// driver OpenPage on a miss and invalidates itself on any Commit or erase.
package pagecache

import "github.com/bnahill/FLogFS/internal/flash"

// Shim tracks the single open page against a flash.Device and elides
// redundant OpenPage calls, grounded on the page-cache described in §4.2.
// It is purely single-threaded within the filesystem lock.
type Shim struct {
	dev  flash.Device
	geom flash.Geometry

	open  bool
	block uint32
	page  uint32
}

func New(dev flash.Device) *Shim {
	return &Shim{dev: dev, geom: dev.Geometry()}
}

// OpenSector maps (block, sector) to the page containing sector and opens
// it only if it isn't already the cached page.
func (s *Shim) OpenSector(block, sector uint32) error {
	page := s.geom.PageOf(sector)
	if s.open && s.block == block && s.page == page {
		return nil
	}
	if err := s.dev.OpenPage(block, page); err != nil {
		s.open = false
		return err
	}
	s.open = true
	s.block = block
	s.page = page
	return nil
}

// OpenBlockInit opens the first page of block, used to read/write the
// init sector (sector 0) and to probe BlockIsBad.
func (s *Shim) OpenBlockInit(block uint32) error {
	return s.OpenSector(block, 0)
}

func (s *Shim) ReadSector(dst []byte, sector, offset, n uint32) error {
	return s.dev.ReadSector(dst, sector, offset, n)
}

func (s *Shim) WriteSector(src []byte, sector, offset uint32) error {
	return s.dev.WriteSector(src, sector, offset)
}

func (s *Shim) ReadSpare(dst []byte, sector uint32) error {
	return s.dev.ReadSpare(dst, sector)
}

func (s *Shim) WriteSpare(src []byte, sector uint32) error {
	return s.dev.WriteSpare(src, sector)
}

func (s *Shim) BlockIsBad() bool {
	return s.dev.BlockIsBad()
}

// Commit flushes pending programs and, per §4.2, invalidates the cache:
// any subsequent access must reopen even the same page, because a commit
// is also issued immediately before an erase elsewhere in the core.
func (s *Shim) Commit() error {
	err := s.dev.Commit()
	s.invalidate()
	return err
}

// Erase erases block and invalidates the cache.
func (s *Shim) Erase(block uint32) error {
	err := s.dev.EraseBlock(block)
	s.invalidate()
	return err
}

// Close discards the cache without flushing.
func (s *Shim) Close() {
	s.dev.ClosePage()
	s.invalidate()
}

func (s *Shim) invalidate() {
	s.open = false
}

func (s *Shim) Geometry() flash.Geometry {
	return s.geom
}

// Device returns the underlying flash.Device.
func (s *Shim) Device() flash.Device {
	return s.dev
}
