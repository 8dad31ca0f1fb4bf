// Package view renders diagnostic listings of an SFS volume: directory
// contents, raw entry and free-list structures, and the backing image
// file's host-level times. It lives outside the core so inspection never
// touches mutation paths.
package view

import (
	"bytes"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/fatih/color"
	"github.com/gobwas/glob"
	"github.com/mattn/go-isatty"
	times "gopkg.in/djherbis/times.v1"

	"github.com/naens/sfs/filesystem/sfs"
)

// Options controls a Render call.
type Options struct {
	// Filter, if non-empty, is a glob pattern (github.com/gobwas/glob
	// syntax) restricting the listing to matching entry names.
	Filter string
	// Color forces ANSI coloring on or off; nil lets Render decide from
	// whether stdout looks like a TTY.
	Color *bool
	// Verbose adds a davecgh/go-spew dump of each listed item's
	// os.FileInfo under its line and, after the listing, a dump of every
	// Index Area entry and every free-list node.
	Verbose bool
	// HostTimes annotates the report with the backing image file's own
	// birth/access/change times, read via gopkg.in/djherbis/times.v1 —
	// distinct from the volume's internal 48.16 entry timestamps.
	HostTimes bool
	// ImagePath is required when HostTimes is set; it is the path to the
	// image file backing fs, used only to stat host-level times.
	ImagePath string
}

func useColor(opts Options, out bool) bool {
	if opts.Color != nil {
		return *opts.Color
	}
	return out
}

// Render walks path (empty string for the root) and produces a
// tabwriter-aligned listing of its direct children: type, size,
// timestamp, name.
func Render(fs *sfs.FileSystem, path string, opts Options, stdoutIsTTY bool) (string, error) {
	var g glob.Glob
	if opts.Filter != "" {
		var err error
		g, err = glob.Compile(opts.Filter)
		if err != nil {
			return "", fmt.Errorf("view: invalid --filter pattern: %w", err)
		}
	}

	colorOn := useColor(opts, stdoutIsTTY)
	dirColor := color.New(color.FgBlue, color.Bold)
	fileColor := color.New(color.FgWhite)
	if !colorOn {
		dirColor.DisableColor()
		fileColor.DisableColor()
	}

	var buf bytes.Buffer
	tw := tabwriter.NewWriter(&buf, 2, 4, 2, ' ', 0)

	fmt.Fprintf(tw, "volume\t%s\t%s\n", fs.VolumeName(), fs.VolumeTimestamp().Time().UTC().Format(time.RFC3339))

	infos, err := fs.ReadDir(path)
	if err != nil {
		return "", err
	}
	for _, fi := range infos {
		if g != nil && !g.Match(fi.Name()) {
			continue
		}
		label := fileColor.Sprint(fi.Name())
		typ := "file"
		if fi.IsDir() {
			typ = "dir"
			label = dirColor.Sprint(fi.Name())
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", typ, fi.Size(), fi.ModTime().UTC().Format(time.RFC3339), label)

		if opts.Verbose {
			fmt.Fprintf(tw, "\t\t\t%s\n", spewOneLine(fi))
		}
	}
	if err := tw.Flush(); err != nil {
		return "", err
	}

	out := buf.String()
	if opts.Verbose {
		out += renderEntriesAndFreeList(fs)
	}
	if opts.HostTimes && opts.ImagePath != "" {
		hostTimes, err := times.Stat(opts.ImagePath)
		if err == nil {
			out += renderHostTimes(hostTimes)
		}
	}
	return out, nil
}

func spewOneLine(v interface{}) string {
	s := spew.Sdump(v)
	return fmt.Sprintf("%q", s)
}

func renderEntriesAndFreeList(fs *sfs.FileSystem) string {
	var buf bytes.Buffer
	buf.WriteString("\nentries:\n")
	for _, e := range fs.Entries() {
		buf.WriteString(spew.Sdump(e))
	}
	buf.WriteString("\nfree list:\n")
	for _, n := range fs.FreeNodes() {
		buf.WriteString(spew.Sdump(n))
	}
	return buf.String()
}

func renderHostTimes(t times.Timespec) string {
	var buf bytes.Buffer
	buf.WriteString("\nhost image file times:\n")
	fmt.Fprintf(&buf, "  modified: %s\n", t.ModTime().UTC().Format(time.RFC3339))
	fmt.Fprintf(&buf, "  accessed: %s\n", t.AccessTime().UTC().Format(time.RFC3339))
	if t.HasChangeTime() {
		fmt.Fprintf(&buf, "  changed:  %s\n", t.ChangeTime().UTC().Format(time.RFC3339))
	}
	if t.HasBirthTime() {
		fmt.Fprintf(&buf, "  birth:    %s\n", t.BirthTime().UTC().Format(time.RFC3339))
	}
	return buf.String()
}

// IsTTY reports whether the given file descriptor looks like a terminal,
// used by the CLI layer to decide a default for Options.Color.
func IsTTY(fd uintptr) bool {
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
