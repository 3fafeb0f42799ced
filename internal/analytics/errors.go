package analytics

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInterval = errors.New("analytics: unsupported interval")
	ErrInvalidField    = errors.New("analytics: unsupported field")
	ErrInvalidLimit    = errors.New("analytics: limit must be positive")
	ErrInvalidRange    = errors.New("analytics: invalid time range")
	// ErrQuery wraps store failures so callers can tell them apart from an empty result.
	ErrQuery = errors.New("analytics: query failed")
)

// ValidationError names the argument that was rejected before any store access.
type ValidationError struct {
	Arg   string
	Value string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %v", e.Arg, e.Value, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }
