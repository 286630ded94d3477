package protocol

import "errors"

var (
	// ErrFrameTooLarge is returned when a frame length exceeds the reader's
	// limit or the 32-bit length field. The stream cannot be resynchronised
	// after this error and the connection should be closed.
	ErrFrameTooLarge = errors.New("protocol: frame too large")

	// ErrMalformedStatus is returned when a status line does not have the
	// HEADER TIMESTAMP PAYLOAD shape.
	ErrMalformedStatus = errors.New("protocol: malformed status message")
)
