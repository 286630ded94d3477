// Package protocol defines the devserver wire formats.
//
// Client to server: newline-terminated ASCII task lines of the form
//
//	TYPE ARG1 ARG2 ...
//
// Server to client: status messages, each sent as one frame made of a 4-byte
// big-endian length followed by that many bytes of
//
//	HEADER TIMESTAMP PAYLOAD
//
// TIMESTAMP is decimal Unix seconds with microsecond precision and PAYLOAD
// is JSON.
package protocol
