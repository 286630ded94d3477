// Package console implements the operator prompt on the server's terminal.
//
// Lines are read from an io.Reader on their own goroutine and delivered on
// a channel, so the server can select over console input and client
// connections together. Handle executes one line:
//
//	HELP          list commands
//	STATUS        listener address, client count, queued tasks
//	DEVICESTATUS  print the device snapshot locally (PUPDATE)
//	CMD <text>    submit <text> to the worker as if a client sent it
//	KILL          shut the server down
//
// Command words are case-insensitive.
package console
