// Package device defines the contract between the worker and the hardware
// it drives.
//
// An Adapter is a black box with a fixed set of named capabilities. The
// worker calls it from a single goroutine, so adapters need no locking of
// their own. Adapters never see reserved task names (METHODSAVAILABLE,
// UPDATEINTERVAL, PUPDATE, PLOT*, SPECIALREQUEST*); Table refuses to
// register them.
//
// Adapter implementations register a Factory under a short name from an
// init function, and the server opens one by worker name:
//
//	import _ "github.com/nerrad567/gray-logic-devserver/internal/device/simulated"
//
//	adapter, err := device.Open(ctx, "SimulatedWorker", device.Options{})
//
// The "Worker" suffix is optional and names match case-insensitively.
package device
