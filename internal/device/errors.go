package device

import (
	"errors"
	"fmt"
)

// Domain errors for the device package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, device.ErrNotFound) {
//	    // unknown capability
//	}
var (
	// ErrNotFound is returned when a capability is not declared by the adapter.
	ErrNotFound = errors.New("device: capability not found")

	// ErrInvalidArgs is returned when a capability rejects its arguments.
	ErrInvalidArgs = errors.New("device: invalid arguments")

	// ErrReservedName is returned when registering a capability whose name
	// the worker handles itself.
	ErrReservedName = errors.New("device: reserved capability name")

	// ErrDuplicateCapability is returned when a capability name is registered twice.
	ErrDuplicateCapability = errors.New("device: capability already registered")

	// ErrInvalidName is returned for empty names or names containing spaces.
	ErrInvalidName = errors.New("device: invalid name")

	// ErrUnknownAdapter is returned by Open when no factory matches the worker name.
	ErrUnknownAdapter = errors.New("device: unknown adapter")
)

// AdapterError reports a failure inside the device itself (I/O, protocol,
// refused command), as opposed to a bad request.
type AdapterError struct {
	Op  string
	Err error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("device: %s: %v", e.Op, e.Err)
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}

// InvalidArgs returns an error wrapping ErrInvalidArgs.
func InvalidArgs(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgs, fmt.Sprintf(format, args...))
}
