// Package connection keeps one logical, always-on channel to a server on top
// of a replaceable transport.
//
// A Conn owns:
//   - the ready state (CONNECTING, OPEN, CLOSING, CLOSED) and online state
//   - the transport of the current session
//   - the reconnect policy and its retry timer
//   - the heartbeat monitor of the open session
//   - the outgoing buffer, drained in order whenever the channel becomes writable
//
// Every mutation runs on a single serialized loop. Public methods, transport
// callbacks, timer fires and reachability changes are all posted to it, so
// callers may use a Conn from any goroutine and event handlers run one at a
// time on the loop.
package connection
