package kb

import (
	"errors"
	"fmt"
)

var (
	// ErrUpstream marks every failure reported by or on the way to the knowledge box.
	ErrUpstream = errors.New("knowledge box request failed")
	// ErrNotConfigured is returned by New when the knowledge box is not identified.
	ErrNotConfigured = errors.New("knowledge box not configured")
	// ErrEmptyMetadata is returned when a patch carries no usable metadata.
	ErrEmptyMetadata = errors.New("no valid metadata provided to patch")
)

// Error describes a failed knowledge box call.
type Error struct {
	Op         string
	StatusCode int
	Detail     string
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Op, e.Detail)
}

// Unwrap exposes ErrUpstream and the underlying cause, if any.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrUpstream}
	}
	return []error{ErrUpstream, e.Err}
}
