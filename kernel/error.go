package kernel

import "github.com/pkg/errors"

// ErrorKind classifies a kernel error so callers can react to a family of
// failures without comparing against every sentinel.
type ErrorKind uint8

// The supported error kinds.
const (
	// KindUnknown is the zero value used by errors that do not need to
	// be classified.
	KindUnknown ErrorKind = iota

	// InvalidInput reports a misaligned or out-of-range request. It is
	// always detected before any state is mutated.
	InvalidInput

	// NoMemory reports a frame or page-table node allocation failure.
	NoMemory

	// BadAddress reports a page table whose state is inconsistent with
	// what the owner of the mapping expects.
	BadAddress

	// AlreadyExists reports an attempt to install a mapping on top of an
	// existing one.
	AlreadyExists
)

// String implements fmt.Stringer for ErrorKind.
func (k ErrorKind) String() string {
	switch k {
	case InvalidInput:
		return "invalid input"
	case NoMemory:
		return "no memory"
	case BadAddress:
		return "bad address"
	case AlreadyExists:
		return "already exists"
	default:
		return "unknown"
	}
}

// Error describes a kernel kerror. All kernel errors must be defined as global
// variables that are pointers to the Error structure. This keeps error paths
// free of allocations which matters when they are reached while holding a
// lock that masks interrupts.
type Error struct {
	// The module where the error occurred.
	Module string

	// The error message
	Message string

	// The error classification.
	Kind ErrorKind
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// IsKind returns true if err (or the error it wraps) is a *kernel.Error of
// the requested kind.
func IsKind(err error, kind ErrorKind) bool {
	if err == nil {
		return false
	}

	kerr, ok := errors.Cause(err).(*Error)
	return ok && kerr != nil && kerr.Kind == kind
}
