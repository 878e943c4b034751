package errors

import "errors"

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrDependencyUnavailable marks failures of an external capability
	// (embedding, clustering, completion, evidence sources).
	ErrDependencyUnavailable = errors.New("dependency unavailable")
	// ErrTerminalStatus marks an attempt to transition a generation that is
	// already failed or applied.
	ErrTerminalStatus = errors.New("generation status is terminal")
)
