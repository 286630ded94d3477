package server

import "errors"

// Domain-specific errors for the server package.
var (
	// ErrBindExhausted is returned when no port in the retry range could be bound.
	ErrBindExhausted = errors.New("server: could not bind listener")

	// ErrNotListening is returned by Run when Listen has not succeeded.
	ErrNotListening = errors.New("server: not listening")

	// ErrShutdown is returned by Register after Shutdown.
	ErrShutdown = errors.New("server: shut down")
)
