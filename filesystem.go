// Package flogfs is the top-level append-only log-structured filesystem
// for raw SLC NAND flash (§1/§2): a Filesystem value, one per New call,
// wraps a flash.Device and exposes format/mount plus the open/read/write/remove/ls
// operations of §6, each one holding the filesystem lock for its entire
// duration (§5).
package flogfs

import (
	"errors"
	"fmt"

	"github.com/bnahill/FLogFS/internal/alloc"
	"github.com/bnahill/FLogFS/internal/clock"
	"github.com/bnahill/FLogFS/internal/delete"
	"github.com/bnahill/FLogFS/internal/file"
	"github.com/bnahill/FLogFS/internal/flash"
	"github.com/bnahill/FLogFS/internal/inode"
	"github.com/bnahill/FLogFS/internal/layout"
	"github.com/bnahill/FLogFS/internal/lockset"
	"github.com/bnahill/FLogFS/internal/pagecache"
)

// DefaultBaseThreshold is the starting wear-leveling sufficiency margin
// passed to alloc.Allocator.AllocateBlock (§4.4) when a caller doesn't
// override it with an Option.
const DefaultBaseThreshold int32 = 4

// Filesystem is the in-RAM state of a mounted (or not-yet-mounted) FLogFS
// volume. The zero value is not usable; construct with New.
type Filesystem struct {
	locks lockset.Locks

	dev  flash.Device
	pc   *pagecache.Shim
	geom layout.Geometry

	baseThreshold int32

	alloc   *alloc.Allocator
	clk     clock.Counter
	fileIDs clock.Counter

	mounted bool
}

// Option configures a Filesystem at construction time (§1 ambient
// configuration note: small explicit constructor parameters rather than a
// global config object).
type Option func(*Filesystem)

// WithBaseThreshold overrides the wear-leveling sufficiency margin used by
// every allocation this filesystem performs.
func WithBaseThreshold(threshold int32) Option {
	return func(fs *Filesystem) { fs.baseThreshold = threshold }
}

// New wraps dev in a Filesystem. Callers must Format or Mount before using
// any other operation.
func New(dev flash.Device, opts ...Option) *Filesystem {
	fs := &Filesystem{
		dev:           dev,
		pc:            pagecache.New(dev),
		geom:          layout.Geometry{Geometry: dev.Geometry()},
		baseThreshold: DefaultBaseThreshold,
	}
	for _, opt := range opts {
		opt(fs)
	}
	return fs
}

// mapErr translates internal package sentinels to the public ones (§7).
func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, file.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, file.ErrNameTooLong):
		return ErrNameTooLong
	case errors.Is(err, alloc.ErrNoSpace):
		return ErrNoSpace
	case errors.Is(err, inode.ErrCorrupt):
		return ErrCorrupt
	case errors.Is(err, delete.ErrNotFound):
		return ErrNotFound
	default:
		return err
	}
}

func (fs *Filesystem) requireMounted() error {
	if !fs.mounted {
		return ErrNotMounted
	}
	return nil
}

// ReadHandle is an open file positioned for reading (§4.5, §6 open_read).
type ReadHandle struct {
	fs *Filesystem
	r  *file.Reader
}

// OpenRead locates name's live entry and positions a ReadHandle at its
// first byte.
func (fs *Filesystem) OpenRead(name string) (*ReadHandle, error) {
	unlock := fs.locks.FS()
	defer unlock()
	if err := fs.requireMounted(); err != nil {
		return nil, err
	}
	fs.dev.Lock()
	defer fs.dev.Unlock()

	r, err := file.OpenRead(fs.pc, fs.geom, name)
	if err != nil {
		return nil, mapErr(err)
	}
	return &ReadHandle{fs: fs, r: r}, nil
}

// Read copies up to len(dst) bytes, returning 0 with a nil error at EOF.
func (h *ReadHandle) Read(dst []byte) (int, error) {
	unlock := h.fs.locks.FS()
	defer unlock()
	h.fs.dev.Lock()
	defer h.fs.dev.Unlock()

	n, err := h.r.Read(dst)
	return n, mapErr(err)
}

// Close releases the read handle.
func (h *ReadHandle) Close() error {
	unlock := h.fs.locks.FS()
	defer unlock()
	return h.r.Close()
}

// WriteHandle is an open file positioned for appending (§4.6, §6
// open_write).
type WriteHandle struct {
	fs *Filesystem
	w  *file.Writer
}

// OpenWrite locates name's live entry and seeks to its logical end,
// creating a new file if none exists.
func (fs *Filesystem) OpenWrite(name string) (*WriteHandle, error) {
	unlock := fs.locks.FS()
	defer unlock()
	if err := fs.requireMounted(); err != nil {
		return nil, err
	}
	fs.dev.Lock()
	defer fs.dev.Unlock()
	releaseAlloc := fs.locks.Allocate()
	defer releaseAlloc()

	w, err := file.OpenWrite(fs.pc, fs.geom, fs.alloc, &fs.clk, &fs.fileIDs, name, fs.baseThreshold)
	if err != nil {
		return nil, mapErr(err)
	}
	return &WriteHandle{fs: fs, w: w}, nil
}

// Write appends p to the file, growing its block chain as needed.
func (h *WriteHandle) Write(p []byte) (int, error) {
	unlock := h.fs.locks.FS()
	defer unlock()
	h.fs.dev.Lock()
	defer h.fs.dev.Unlock()
	releaseAlloc := h.fs.locks.Allocate()
	defer releaseAlloc()

	n, err := h.w.Write(p)
	return n, mapErr(err)
}

// Close flushes any buffered partial sector to media.
func (h *WriteHandle) Close() error {
	unlock := h.fs.locks.FS()
	defer unlock()
	h.fs.dev.Lock()
	defer h.fs.dev.Unlock()

	return mapErr(h.w.Close())
}

// Remove invalidates name's live entry and reclaims its block chain.
// Removing a name that doesn't exist is not an error (§7: idempotent
// deletion).
func (fs *Filesystem) Remove(name string) error {
	unlock := fs.locks.FS()
	defer unlock()
	if err := fs.requireMounted(); err != nil {
		return err
	}
	fs.dev.Lock()
	defer fs.dev.Unlock()
	releaseDel := fs.locks.Delete()
	defer releaseDel()

	err := delete.Remove(fs.pc, fs.geom, fs.alloc, &fs.clk, name)
	if errors.Is(err, delete.ErrNotFound) {
		return nil
	}
	return mapErr(err)
}

// Exists reports whether name currently has a live inode entry.
func (fs *Filesystem) Exists(name string) (bool, error) {
	unlock := fs.locks.FS()
	defer unlock()
	if err := fs.requireMounted(); err != nil {
		return false, err
	}
	fs.dev.Lock()
	defer fs.dev.Unlock()

	_, _, found, err := inode.FindFile(fs.pc, fs.geom, name)
	if err != nil {
		return false, mapErr(err)
	}
	return found, nil
}

// ListIterator enumerates live filenames in inode-position order (§6
// ls_start/ls_iterate/ls_stop).
type ListIterator struct {
	entries []inode.Entry
	idx     int
}

// ListStart snapshots every live filename at the moment of the call.
func (fs *Filesystem) ListStart() (*ListIterator, error) {
	unlock := fs.locks.FS()
	defer unlock()
	if err := fs.requireMounted(); err != nil {
		return nil, err
	}
	fs.dev.Lock()
	defer fs.dev.Unlock()

	entries, err := inode.List(fs.pc, fs.geom)
	if err != nil {
		return nil, mapErr(err)
	}
	return &ListIterator{entries: entries}, nil
}

// Next returns the next name, or ok=false once the snapshot is exhausted.
func (it *ListIterator) Next() (name string, ok bool) {
	if it.idx >= len(it.entries) {
		return "", false
	}
	name = it.entries[it.idx].Name
	it.idx++
	return name, true
}

// Stop releases the iterator. There is nothing to flush; it exists for API
// symmetry with ls_stop (§6).
func (it *ListIterator) Stop() {}

func (fs *Filesystem) String() string {
	return fmt.Sprintf("flogfs.Filesystem{mounted=%v, blocks=%d}", fs.mounted, fs.geom.Blocks)
}
