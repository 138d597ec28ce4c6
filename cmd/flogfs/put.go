package main

import (
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newPutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put SRC NAME",
		Short: "Write a local file into the image under NAME",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, name := args[0], args[1]

			in, err := os.Open(src)
			if err != nil {
				return err
			}
			defer in.Close()

			fs, cleanup, err := openMounted()
			if err != nil {
				return err
			}
			defer cleanup()

			w, err := fs.OpenWrite(name)
			if err != nil {
				return err
			}

			n, copyErr := io.Copy(w, in)
			closeErr := w.Close()
			if copyErr != nil {
				return copyErr
			}
			if closeErr != nil {
				return closeErr
			}

			logger.Info("wrote file", zap.String("name", name), zap.Int64("bytes", n))
			return nil
		},
	}
}
