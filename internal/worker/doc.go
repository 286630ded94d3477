// Package worker serializes all device access behind a single goroutine.
//
// Clients, the console, the MQTT relay and the Updater submit task lines
// to the Worker's queue. The Worker takes them one at a time, dispatches
// each to the device adapter or to one of its built-in handlers, and
// publishes the resulting status messages to every registered Publisher.
//
// Because the adapter is only ever touched from the Worker goroutine,
// adapters need no locking of their own.
//
// Lifecycle:
//
//	w := worker.New(adapter, worker.Config{Interval: time.Second})
//	w.AddPublisher(broadcaster)
//	w.Start(ctx)
//	...
//	w.Stop() // Kill + Wait, then closes the adapter
package worker
