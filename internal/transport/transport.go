// Package transport defines the capability a connection needs from the
// network: open, write, ping and end one physical connection, and report
// what happens to it through a Handler.
package transport

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// Errors
var (
	ErrNotOpen     = errors.New("transport not open")
	ErrQueueFull   = errors.New("transport write queue full")
	ErrUnknownName = errors.New("unknown transport")
)

// FrameType distinguishes text and binary frames on the wire.
type FrameType int

const (
	TextFrame FrameType = iota + 1
	BinaryFrame
)

func (t FrameType) String() string {
	switch t {
	case TextFrame:
		return "text"
	case BinaryFrame:
		return "binary"
	}
	return "unknown"
}

// Frame is one wire message.
type Frame struct {
	Type FrameType
	Data []byte
}

// Options is forwarded untouched from the connection configuration.
type Options struct {
	Header           http.Header       // Extra handshake headers
	Hints            map[string]string // Transport-specific settings
	HandshakeTimeout time.Duration     // Upper bound for the dial itself
}

// Handler receives the lifecycle of one transport instance. Calls may come
// from any goroutine.
type Handler interface {
	OnOpen()
	OnFrame(Frame)
	OnPong(payload []byte)
	OnError(error)
	// OnEnd is called once when the physical connection is gone.
	OnEnd(code int, reason string, wasClean bool)
}

// Transport is one connection attempt. Implementations must not block on
// network I/O in any method; results are reported through the Handler.
type Transport interface {
	// Connect starts dialing target. A nil return only means the attempt
	// started; OnOpen or OnError/OnEnd follow.
	Connect(ctx context.Context, target string, opts Options) error

	// Write queues a frame for sending.
	Write(Frame) error

	// Ping sends a liveness probe; the peer's answer arrives as OnPong.
	Ping(payload []byte) error

	// End closes the connection with the given close code and reason.
	End(code int, reason string) error
}

// Factory builds a transport that reports to h.
type Factory func(h Handler) Transport
