// Package eventbridge carries hub-originated status changes to the bus worker.
//
// The bridge consists of two pieces shared between the hub worker and the
// bus worker:
//
//   - Queue: a bounded FIFO of Event values. Enqueue never blocks; when the
//     queue is full the new event is dropped. The bus worker drains it only
//     while no inbound telegram is pending.
//   - SharedState: the anti-echo lock and the last-known fan/flap levels.
//     The dispatcher sets the lock after issuing a hub action; the poller
//     clears it after consuming the next poll result.
//
// # Thread Safety
//
// Both types are safe for concurrent use from multiple goroutines.
package eventbridge
