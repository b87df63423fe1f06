// Package queue provides the unbounded FIFO buffers used by a connection.
//
// Two users share the same ring buffer:
//   - the outgoing message buffer, which holds envelopes until the
//     connection becomes writable and puts a failed write back at the head
//   - the serialized task queue that every state mutation runs on
package queue
