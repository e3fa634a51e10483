package common

import (
	"github.com/pkg/errors"
)

// Kind classifies an error the way the pipeline's callers need to react to
// it: by exit code, by whether retrying would ever help (it never does
// here), and by what diagnostic to print.
type Kind int

const (
	// KindNone is what KindOf reports for a nil error; unclassified non-nil
	// errors report KindIO.
	KindNone Kind = iota
	// KindIO is an open/read/write/seek/lock failure surfaced by the OS.
	KindIO
	// KindInvalidInput is a malformed blob key or a seek past a declared limit.
	KindInvalidInput
	// KindInvalidData is a snapshot that fails to deserialize, an
	// out-of-range index during restore, or a chunk source path that
	// can't be matched to a walked file during backup.
	KindInvalidData
	// KindIntegrity is a BLAKE3 mismatch between a stored chunk and its
	// recorded hash.
	KindIntegrity
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "io"
	case KindInvalidInput:
		return "invalid input"
	case KindInvalidData:
		return "invalid data"
	case KindIntegrity:
		return "integrity"
	default:
		return "unknown"
	}
}

type kindError struct {
	kind Kind
	err  error
}

func (e *kindError) Error() string { return e.err.Error() }
func (e *kindError) Cause() error  { return e.err }
func (e *kindError) Unwrap() error { return e.err }

// WrapKind tags err with a Kind and a pkg/errors stack trace, in one call.
func WrapKind(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: kind, err: errors.Wrap(err, msg)}
}

// WrapKindf is WrapKind with a formatted message.
func WrapKindf(kind Kind, err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: kind, err: errors.Wrapf(err, format, args...)}
}

// NewKind creates a fresh error already classified with a Kind.
func NewKind(kind Kind, msg string) error {
	return &kindError{kind: kind, err: errors.New(msg)}
}

// NewKindf is NewKind with a formatted message.
func NewKindf(kind Kind, format string, args ...interface{}) error {
	return &kindError{kind: kind, err: errors.Errorf(format, args...)}
}

// KindOf walks err's cause chain looking for a classification. Unclassified
// errors (e.g. raw os.PathError from a library call we didn't wrap) report
// KindIO, since nearly every unclassified failure in this codebase
// originates from a filesystem call.
func KindOf(err error) Kind {
	for err != nil {
		if ke, ok := err.(*kindError); ok {
			return ke.kind
		}
		cause, ok := err.(interface{ Cause() error })
		if !ok {
			break
		}
		next := cause.Cause()
		if next == nil || next == err {
			break
		}
		err = next
	}
	if err != nil {
		return KindIO
	}
	return KindNone
}

// ExitCode maps a Kind to a process exit code for the CLI layer.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch KindOf(err) {
	case KindInvalidInput:
		return 2
	case KindInvalidData:
		return 3
	case KindIntegrity:
		return 4
	default:
		return 1
	}
}
