// Command mount-sfs is the CLI surface of the Simple File System: mounting
// an image via FUSE, plus the fsck/view/backup/restore tools built around
// the core. A thin composition root with no business logic of its own
// beyond argv wiring.
package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var log = logrus.New()

var rootCmd = &cobra.Command{
	Use:   "mount-sfs",
	Short: "Mount, inspect, and back up Simple File System images",
	Long: `mount-sfs mounts a Simple File System (SFS) image as a FUSE
filesystem, and provides fsck, view, backup, and restore subcommands for
inspecting and protecting an image without mounting it.`,
}

var flagVerbose bool

func init() {
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable verbose logging")
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if flagVerbose {
			log.SetLevel(logrus.DebugLevel)
		}
	}

	rootCmd.AddCommand(mountCmd)
	rootCmd.AddCommand(fsckCmd)
	rootCmd.AddCommand(viewCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(restoreCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
