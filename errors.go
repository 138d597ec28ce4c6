package flogfs

import "errors"

// Sentinel errors returned by the public API (§7).
var (
	ErrNotFound    = errors.New("flogfs: file not found")
	ErrExists      = errors.New("flogfs: file already exists")
	ErrNoSpace     = errors.New("flogfs: no free space")
	ErrCorrupt     = errors.New("flogfs: corrupt filesystem structure")
	ErrNameTooLong = errors.New("flogfs: filename too long")
	ErrNotMounted  = errors.New("flogfs: filesystem not mounted")
)
