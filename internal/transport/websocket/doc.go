// Package websocket implements transport.Transport on top of
// github.com/gorilla/websocket.
//
// Each Transport value is one physical connection:
//   - Connect dials in the background and reports OnOpen or OnError/OnEnd
//   - a writer goroutine drains a bounded queue with a write deadline
//   - a read loop delivers frames and pongs until the socket ends
//   - optional pinned certificate fingerprints are checked during the
//     TLS handshake, and cookies come from the configured jar
package websocket
