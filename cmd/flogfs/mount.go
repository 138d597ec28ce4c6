package main

import (
	"fmt"

	flogfs "github.com/bnahill/FLogFS"
)

// openMounted opens the image and mounts it, returning a cleanup func that
// closes the underlying device.
func openMounted() (*flogfs.Filesystem, func(), error) {
	dev, err := openDevice()
	if err != nil {
		return nil, nil, err
	}
	fs := flogfs.New(dev)
	if err := fs.Mount(); err != nil {
		dev.Close()
		return nil, nil, fmt.Errorf("mount %q: %w", imagePath, err)
	}
	return fs, func() { dev.Close() }, nil
}
