package shardex

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingUniqueKey is returned when the schema does not name a
	// unique key field, or the document carries no value for it. Writes
	// cannot be routed without a key.
	ErrMissingUniqueKey = errors.New("schema has no unique key field")

	// ErrBadRequest is the sentinel wrapped by every request validation
	// failure. Use errors.Is to distinguish caller mistakes from
	// infrastructure failures.
	ErrBadRequest = errors.New("bad request")

	// ErrClosed is returned by operations on a closed Writer.
	ErrClosed = errors.New("writer is closed")
)

// BadRequestError describes a rejected request. It unwraps to
// ErrBadRequest.
type BadRequestError struct {
	Reason string
}

func (e *BadRequestError) Error() string {
	return fmt.Sprintf("bad request: %s", e.Reason)
}

func (e *BadRequestError) Unwrap() error { return ErrBadRequest }

func badRequest(format string, args ...any) error {
	return &BadRequestError{Reason: fmt.Sprintf(format, args...)}
}
