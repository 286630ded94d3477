// Package relay mirrors the worker's status messages to an MQTT broker and
// feeds task lines received from the broker back to the worker.
//
// Topics are built by mqtt.Topics:
//
//	{prefix}/{worker}/status/{HEADER}  every status message (not retained)
//	{prefix}/{worker}/state            latest STATUS payload (retained)
//	{prefix}/{worker}/command          inbound task lines
//
// Publishing is asynchronous. The relay implements worker.Publisher with a
// buffered queue drained by its own goroutine, so a slow or disconnected
// broker never stalls the worker. Messages that do not fit in the queue are
// dropped and counted.
package relay
