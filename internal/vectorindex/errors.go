package vectorindex

import "errors"

var (
	// ErrDimensionMismatch is a caller error: the vector length differs from
	// the index dimension. It is never retried.
	ErrDimensionMismatch = errors.New("vectorindex: dimension mismatch")

	// ErrIndexOperationTimeout is returned when an engine call misses the
	// execution deadline.
	ErrIndexOperationTimeout = errors.New("vectorindex: operation timed out")

	// ErrIndexOperationFailed is returned when an engine call panics, is
	// abandoned, or rejects its input.
	ErrIndexOperationFailed = errors.New("vectorindex: operation failed")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("vectorindex: closed")
)
