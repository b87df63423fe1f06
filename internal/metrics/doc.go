// Package metrics exports connection activity to Prometheus.
//
// Key metrics:
//   - ready state and network state of the connection
//   - public events by name and errors by kind
//   - reconnect delays
//   - outgoing buffer depth and messages discarded at end
package metrics
