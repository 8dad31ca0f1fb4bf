package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/naens/sfs/filesystem/sfs"
	"github.com/naens/sfs/internal/fsck"
)

var fsckCmd = &cobra.Command{
	Use:   "fsck <image-file>",
	Short: "Check an SFS image against its structural invariants",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.OpenFile(args[0], os.O_RDWR, 0)
		if err != nil {
			return fmt.Errorf("fsck: opening image: %w", err)
		}
		defer f.Close()

		volume, err := sfs.Open(f)
		if err != nil {
			return fmt.Errorf("fsck: reading image: %w", err)
		}
		defer volume.Close()

		violations, err := fsck.Check(volume)
		if err != nil {
			return fmt.Errorf("fsck: running checks: %w", err)
		}
		if len(violations) == 0 {
			fmt.Println("ok: no invariant violations found")
			return nil
		}
		for _, v := range violations {
			fmt.Println(v.String())
		}
		os.Exit(1)
		return nil
	},
}
