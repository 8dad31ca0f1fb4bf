package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/naens/sfs/internal/backup"
)

// formatFlag is a pflag.Value restricting --format to the three codecs
// internal/backup actually implements.
type formatFlag struct {
	value backup.Format
}

func (f *formatFlag) String() string { return string(f.value) }

func (f *formatFlag) Set(s string) error {
	switch backup.Format(s) {
	case backup.FormatZstd, backup.FormatLZ4, backup.FormatXZ:
		f.value = backup.Format(s)
		return nil
	default:
		return fmt.Errorf("must be one of zstd, lz4, xz")
	}
}

func (f *formatFlag) Type() string { return "format" }

var flagBackupFormat = &formatFlag{value: backup.FormatZstd}

var _ pflag.Value = flagBackupFormat

var backupCmd = &cobra.Command{
	Use:   "backup <image-file> <dest-file>",
	Short: "Compress and checksum a copy of an SFS image",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := backup.Backup(args[0], args[1], flagBackupFormat.value); err != nil {
			return err
		}
		fmt.Printf("backed up %s -> %s (%s)\n", args[0], args[1], flagBackupFormat.value)
		return nil
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore <backup-file> <image-file>",
	Short: "Verify and restore an SFS image from a backup archive",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := backup.Restore(args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("restored %s -> %s\n", args[0], args[1])
		return nil
	},
}

func init() {
	backupCmd.Flags().Var(flagBackupFormat, "format", "compression codec: zstd, lz4, xz")
}
