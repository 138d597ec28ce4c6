package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm NAME",
		Short: "Remove a file from the image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fs, cleanup, err := openMounted()
			if err != nil {
				return err
			}
			defer cleanup()

			if err := fs.Remove(args[0]); err != nil {
				return err
			}
			logger.Info("removed file", zap.String("name", args[0]))
			return nil
		},
	}
}
