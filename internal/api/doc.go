// Package api implements the HTTP surface of devserver.
//
// This package provides:
//   - GET /health: JSON report of worker, client and runtime state
//   - GET /metrics: Prometheus exposition of the devserver collectors
//   - GET /ws: WebSocket client sessions
//
// # WebSocket clients
//
// A WebSocket client is a peer of the TCP clients: each text message it
// sends is split into task lines and submitted to the worker, and every
// status message the worker publishes arrives as one text message. The
// sessions join the same registry as TCP sessions, so KILL and shutdown
// treat both transports alike.
//
// The server follows the same lifecycle pattern as other components:
//
//	srv, err := api.New(deps)
//	srv.Start(ctx)
//	defer srv.Close()
package api
