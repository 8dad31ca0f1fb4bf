package sfs

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies the errors the core must distinguish, per the error
// handling policy: structural errors abort the current operation with no
// partial commit; BadState signals an invariant violation and is a
// programming error, not a recoverable condition.
type Kind int

const (
	// KindBadMagic means the image does not carry the SFS magic bytes.
	KindBadMagic Kind = iota
	// KindBadVersion means the image's version byte is unsupported.
	KindBadVersion
	// KindBadChecksum means a record's checksum does not sum to zero.
	KindBadChecksum
	// KindIO wraps an underlying read/write/seek failure.
	KindIO
	// KindNotFound means no such path exists.
	KindNotFound
	// KindAlreadyExists means the target name is already taken.
	KindAlreadyExists
	// KindNotEmpty means rmdir was attempted on a non-empty directory.
	KindNotEmpty
	// KindTypeMismatch means an operation targeted the wrong entry type.
	KindTypeMismatch
	// KindNoSpace means neither the free list nor the Index Area can
	// satisfy the request.
	KindNoSpace
	// KindBadState means an invariant was found violated; this indicates
	// a bug in the core, not a recoverable runtime condition.
	KindBadState
)

func (k Kind) String() string {
	switch k {
	case KindBadMagic:
		return "bad magic"
	case KindBadVersion:
		return "bad version"
	case KindBadChecksum:
		return "bad checksum"
	case KindIO:
		return "io error"
	case KindNotFound:
		return "not found"
	case KindAlreadyExists:
		return "already exists"
	case KindNotEmpty:
		return "not empty"
	case KindTypeMismatch:
		return "type mismatch"
	case KindNoSpace:
		return "no space"
	case KindBadState:
		return "bad state"
	default:
		return "unknown error"
	}
}

// Error is the error type every core operation returns. Kind lets callers
// (the kernel bridge, the CLI) switch on category without string matching.
type Error struct {
	Kind Kind
	msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.msg, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.msg)
}

func (e *Error) Unwrap() error { return e.err }

func newError(k Kind, msg string) error {
	return errors.WithStack(&Error{Kind: k, msg: msg})
}

// NewError builds an *Error of the given Kind, for callers outside this
// package (the kernel bridge, the CLI) that need to originate one, e.g. when
// translating an inode-table miss into the same Kind a core operation would
// have returned.
func NewError(k Kind, msg string) error {
	return newError(k, msg)
}

func wrapError(k Kind, msg string, cause error) error {
	return errors.WithStack(&Error{Kind: k, msg: msg, err: cause})
}

// KindOf extracts the Kind from err, if err (or something it wraps) is an
// *Error. Ok is false for errors the core did not originate.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
