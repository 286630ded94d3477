package worker

import "errors"

// Domain-specific errors for the worker package.
var (
	// ErrStopped is returned by Submit once Kill has been called.
	ErrStopped = errors.New("worker: stopped")

	// ErrCapabilityPanic wraps a panic recovered from a device call.
	ErrCapabilityPanic = errors.New("worker: capability panicked")

	// ErrInvalidInterval is returned for non-positive or unparsable intervals.
	ErrInvalidInterval = errors.New("worker: invalid update interval")
)
