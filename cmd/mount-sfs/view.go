package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/naens/sfs/filesystem/sfs"
	"github.com/naens/sfs/internal/view"
)

var (
	flagViewFilter    string
	flagViewVerbose   bool
	flagViewHostTimes bool
	flagViewColor     string
)

var viewCmd = &cobra.Command{
	Use:   "view <image-file> [path]",
	Short: "Print a directory listing and diagnostic info for an SFS image",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		imagePath := args[0]
		path := ""
		if len(args) == 2 {
			path = args[1]
		}

		f, err := os.OpenFile(imagePath, os.O_RDONLY, 0)
		if err != nil {
			return fmt.Errorf("view: opening image: %w", err)
		}
		defer f.Close()

		volume, err := sfs.Open(f)
		if err != nil {
			return fmt.Errorf("view: reading image: %w", err)
		}
		defer volume.Close()

		opts := view.Options{
			Filter:    flagViewFilter,
			Verbose:   flagViewVerbose,
			HostTimes: flagViewHostTimes,
			ImagePath: imagePath,
		}
		switch flagViewColor {
		case "always":
			t := true
			opts.Color = &t
		case "never":
			f := false
			opts.Color = &f
		}

		out, err := view.Render(volume, path, opts, view.IsTTY(os.Stdout.Fd()))
		if err != nil {
			return fmt.Errorf("view: rendering: %w", err)
		}
		fmt.Print(out)
		return nil
	},
}

func init() {
	viewCmd.Flags().StringVar(&flagViewFilter, "filter", "", "glob pattern restricting the listing")
	viewCmd.Flags().BoolVar(&flagViewVerbose, "verbose", false, "dump raw entry and free-list structures")
	viewCmd.Flags().BoolVar(&flagViewHostTimes, "host-times", false, "report the host image file's own birth/access/change times")
	viewCmd.Flags().StringVar(&flagViewColor, "color", "auto", "colorize output: auto, always, never")
}
