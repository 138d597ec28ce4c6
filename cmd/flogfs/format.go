package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	flogfs "github.com/bnahill/FLogFS"
)

func newFormatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "format",
		Short: "Format a new (or existing) image, discarding any files it holds",
		RunE: func(cmd *cobra.Command, args []string) error {
			dev, err := openDevice()
			if err != nil {
				return err
			}
			defer dev.Close()

			fs := flogfs.New(dev)
			if err := fs.Format(); err != nil {
				return err
			}
			logger.Info("formatted image", zap.String("path", imagePath), zap.Uint32("blocks", geometry().Blocks))
			return nil
		},
	}
}
