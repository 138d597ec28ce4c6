package main

import (
	"os"

	"github.com/spf13/cobra"
)

func newCatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cat NAME",
		Short: "Print a file's contents to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fs, cleanup, err := openMounted()
			if err != nil {
				return err
			}
			defer cleanup()

			r, err := fs.OpenRead(args[0])
			if err != nil {
				return err
			}
			defer r.Close()

			buf := make([]byte, 4096)
			for {
				n, err := r.Read(buf)
				if err != nil {
					return err
				}
				if n == 0 {
					return nil
				}
				if _, err := os.Stdout.Write(buf[:n]); err != nil {
					return err
				}
			}
		},
	}
}
