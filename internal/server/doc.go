// Package server accepts client connections and fans status messages out
// to them.
//
// Each TCP client gets a session with a reader goroutine, which turns
// received lines into worker tasks, and a writer goroutine, which sends
// length-prefixed frames. The Broadcaster owns the session registry and
// implements worker.Publisher, so every message the worker produces reaches
// every live session. Sessions from other transports (WebSocket) join the
// same registry through the Session interface.
//
// Lifecycle:
//
//	b := server.New(cfg.Server, w)
//	if err := b.Listen(); err != nil { ... } // ErrBindExhausted is fatal
//	w.AddPublisher(b)
//	err := b.Run(ctx, console)              // until KILL or ctx done
//	b.Shutdown()
package server
