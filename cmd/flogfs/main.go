// Command flogfs is a small CLI wrapper around the core filesystem:
// format, mount-and-ls, mount-and-cat, mount-and-put, mount-and-rm against
// a file-backed flash image (§6 external interfaces, driven from a shell
// instead of from Go code).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bnahill/FLogFS/internal/flash"
)

var (
	imagePath      string
	sectorSize     uint32
	sectorsPerPage uint32
	pagesPerBlock  uint32
	numBlocks      uint32
	spareSize      uint32

	logger *zap.Logger
)

func geometry() flash.Geometry {
	return flash.Geometry{
		SectorSize:     sectorSize,
		SectorsPerPage: sectorsPerPage,
		PagesPerBlock:  pagesPerBlock,
		Blocks:         numBlocks,
		SpareSize:      spareSize,
	}
}

func openDevice() (*flash.FileDevice, error) {
	return flash.NewFileDevice(imagePath, geometry())
}

func main() {
	var err error
	logger, err = zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "flogfs: logger init: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	if err := newRootCmd().Execute(); err != nil {
		logger.Error("command failed", zap.Error(err))
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "flogfs",
		Short: "Inspect and manipulate a FLogFS flash image",
	}

	flags := root.PersistentFlags()
	flags.StringVar(&imagePath, "image", "flogfs.img", "path to the file-backed flash image")
	flags.Uint32Var(&sectorSize, "sector-size", 512, "bytes per sector")
	flags.Uint32Var(&sectorsPerPage, "sectors-per-page", 4, "sectors per page")
	flags.Uint32Var(&pagesPerBlock, "pages-per-block", 64, "pages per block")
	flags.Uint32Var(&numBlocks, "blocks", 1024, "number of blocks in the image")
	flags.Uint32Var(&spareSize, "spare-size", 16, "out-of-band spare bytes per sector")

	root.AddCommand(
		newFormatCmd(),
		newLsCmd(),
		newCatCmd(),
		newPutCmd(),
		newRmCmd(),
	)
	return root
}
