package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/naens/sfs/filesystem/sfs"
	"github.com/naens/sfs/fuse"
)

var (
	flagImageName string
	flagReadOnly  bool
)

// mountCmd mounts an image read-write: `mount-sfs mount --name=<image-file>
// <mountpoint>`. Exit 0 ok, 1 bad args, 2 image not readable.
var mountCmd = &cobra.Command{
	Use:   "mount <mountpoint>",
	Short: "Mount an SFS image at a mountpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagImageName == "" {
			fmt.Fprintln(os.Stderr, "mount-sfs: --name is required")
			os.Exit(1)
		}
		mountpoint := args[0]

		f, err := os.OpenFile(flagImageName, os.O_RDWR, 0)
		if err != nil {
			fmt.Fprintf(os.Stderr, "mount-sfs: cannot open image %q: %v\n", flagImageName, err)
			os.Exit(2)
		}

		volume, err := sfs.Open(f, sfs.WithLogger(log))
		if err != nil {
			fmt.Fprintf(os.Stderr, "mount-sfs: cannot read image %q: %v\n", flagImageName, err)
			_ = f.Close()
			os.Exit(2)
		}
		defer volume.Close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		mfs, err := fuse.Mount(ctx, volume, mountpoint, fuse.MountOptions{
			ReadOnly: flagReadOnly,
			Logger:   log,
		})
		if err != nil {
			return fmt.Errorf("mounting %q at %q: %w", flagImageName, mountpoint, err)
		}

		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, unix.SIGINT, unix.SIGTERM)
		go func() {
			<-sigs
			_ = fuse.Unmount(mountpoint)
		}()

		if err := mfs.Join(ctx); err != nil {
			return fmt.Errorf("serving %q: %w", mountpoint, err)
		}
		return nil
	},
}

func init() {
	mountCmd.Flags().StringVar(&flagImageName, "name", "", "path to the SFS image file (required)")
	mountCmd.Flags().BoolVar(&flagReadOnly, "read-only", false, "mount read-only")
}
