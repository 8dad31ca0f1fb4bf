package sfs

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Option configures a FileSystem at Format or Open time.
type Option func(*FileSystem)

// WithLogger attaches a structured logger; by default a FileSystem logs
// nowhere.
func WithLogger(l *logrus.Logger) Option {
	return func(fs *FileSystem) { fs.logger = l }
}

func discardLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
