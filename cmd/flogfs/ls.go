package main

import (
	"os"

	"github.com/rodaine/table"
	"github.com/spf13/cobra"
)

func newLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List every live file in the image",
		RunE: func(cmd *cobra.Command, args []string) error {
			fs, cleanup, err := openMounted()
			if err != nil {
				return err
			}
			defer cleanup()

			it, err := fs.ListStart()
			if err != nil {
				return err
			}
			defer it.Stop()

			tbl := table.New("NAME")
			tbl.WithWriter(os.Stdout)
			for {
				name, ok := it.Next()
				if !ok {
					break
				}
				tbl.AddRow(name)
			}
			tbl.Print()
			return nil
		},
	}
}
