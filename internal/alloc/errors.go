package alloc

import "errors"

// ErrNoSpace is returned by AllocateBlock when no free block can be found
// (including because none remain at all).
var ErrNoSpace = errors.New("alloc: no free block available")
