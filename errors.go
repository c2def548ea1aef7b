package growpipe

import (
	"github.com/pkg/errors"
)

var (
	// ErrOutOfMemory is returned by a write when the buffer could not grow.
	// The pipe is unchanged. Cursors never move back, so once the
	// configured limit is reached every later write fails the same way.
	ErrOutOfMemory = errors.New("growpipe: out of memory")

	// ErrUnderflow reports a take with no unread byte. It is raised as a
	// panic by the pipe because it can only follow a synchronization bug.
	ErrUnderflow = errors.New("growpipe: buffer underflow")

	// ErrStoreFull reports an append without room for one more byte.
	ErrStoreFull = errors.New("growpipe: append without capacity")

	// ErrCancelled is matched by errors returned from an interrupted read.
	ErrCancelled = errors.New("growpipe: read cancelled")

	// ErrClosed is returned by operations started after Close.
	ErrClosed = errors.New("growpipe: pipe closed")

	// ErrInvalidCapacity is returned by New for unusable capacity options.
	ErrInvalidCapacity = errors.New("growpipe: invalid capacity")
)

// CancelledError is returned when a blocked read is interrupted. No byte is
// consumed by the interrupted call.
type CancelledError struct {
	// Cause is the context cause, or ErrClosed if the pipe was torn down
	// while the read was waiting.
	Cause error
}

func (e *CancelledError) Error() string {
	if e.Cause == nil {
		return ErrCancelled.Error()
	}
	return ErrCancelled.Error() + ": " + e.Cause.Error()
}

// Is reports whether target is ErrCancelled.
func (e *CancelledError) Is(target error) bool {
	return target == ErrCancelled
}

func (e *CancelledError) Unwrap() error {
	return e.Cause
}
