package cache

import "fmt"

// Kind classifies the failures the core can surface to a caller.
// InvalidArgument and IllegalState are raised at the call boundary;
// LoaderFailure only on the read-through path. A panicking or erroring
// RemovalListener is never surfaced to a caller; it is logged internally
// instead.
type Kind int

const (
	// InvalidArgument covers a negative MaximumSize or MaximumWeight, both
	// bounds set together, a negative duration, and NewLoading without a
	// Loader. Nil keys and values are not checked, a zero bound means
	// unbounded, and a negative Weigher result is not rejected: it is
	// treated as weight 0.
	InvalidArgument Kind = iota
	// IllegalState covers reentrant computeIfAbsent on a colliding bin
	// chain and a weigher required but absent.
	IllegalState
	// LoaderFailure wraps an error returned by a configured Loader during
	// a read-through GetOrLoad, or reports that no Loader is configured.
	// A panicking Loader is not recovered.
	LoaderFailure
)

func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "InvalidArgument"
	case IllegalState:
		return "IllegalState"
	case LoaderFailure:
		return "LoaderFailure"
	default:
		return "Unknown"
	}
}

// Error is the error type returned by the core's call-boundary checks and
// by read-through loads. Callers distinguish kinds with errors.As and the
// Kind field, or with the Is* helpers below.
type Error struct {
	Kind Kind
	Msg  string
	Err  error // underlying cause, e.g. a loader's returned error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cache: %s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("cache: %s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func newInvalidArgument(msg string) *Error {
	return &Error{Kind: InvalidArgument, Msg: msg}
}

func newIllegalState(msg string) *Error {
	return &Error{Kind: IllegalState, Msg: msg}
}

func newLoaderFailure(err error) *Error {
	return &Error{Kind: LoaderFailure, Msg: "loader failed", Err: err}
}

// IsInvalidArgument reports whether err is an InvalidArgument cache error.
func IsInvalidArgument(err error) bool { return kindIs(err, InvalidArgument) }

// IsIllegalState reports whether err is an IllegalState cache error.
func IsIllegalState(err error) bool { return kindIs(err, IllegalState) }

// IsLoaderFailure reports whether err is a LoaderFailure cache error.
func IsLoaderFailure(err error) bool { return kindIs(err, LoaderFailure) }

func kindIs(err error, k Kind) bool {
	var ce *Error
	for err != nil {
		if e, ok := err.(*Error); ok {
			ce = e
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return ce != nil && ce.Kind == k
}
