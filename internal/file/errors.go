package file

import "errors"

var (
	// ErrNotFound is returned by OpenRead when no live inode entry matches
	// the requested name.
	ErrNotFound = errors.New("file: not found")
	// ErrNameTooLong is returned by OpenWrite when name (plus its NUL
	// terminator) does not fit in MaxFilenameLen bytes (§6).
	ErrNameTooLong = errors.New("file: name too long")
)
