package connection

import (
	"errors"
	"fmt"
	"time"

	"github.com/rickgao/primus-go/internal/codec"
	"github.com/rickgao/primus-go/internal/transport"
)

// Errors
var (
	ErrAlreadyActive      = errors.New("connection already active")
	ErrNetworkUnavailable = errors.New("network unavailable")
	ErrHandshakeFailed    = errors.New("handshake failed")
	ErrHeartbeatTimeout   = errors.New("heartbeat timeout")
	ErrConnectionLost     = errors.New("connection lost")
	ErrCancelled          = errors.New("cancelled by close")
	ErrDecodeFailure      = errors.New("decode failure")
	ErrEncodeFailure      = errors.New("encode failure")
	ErrNotReconnectable   = errors.New("connection not reconnectable")
	ErrShutdown           = errors.New("connection shut down")
)

// ProtocolViolationError reports a close status that blames what was sent.
type ProtocolViolationError struct {
	Code   int
	Reason string
}

func (e *ProtocolViolationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("protocol violation: %d (%s)", e.Code, transport.CloseText(e.Code))
	}
	return fmt.Sprintf("protocol violation: %d (%s): %s", e.Code, transport.CloseText(e.Code), e.Reason)
}

// ReadyState is the coarse lifecycle phase of a Conn.
type ReadyState int32

const (
	Closed ReadyState = iota
	Connecting
	Open
	Closing
)

func (s ReadyState) String() string {
	switch s {
	case Closed:
		return "CLOSED"
	case Connecting:
		return "CONNECTING"
	case Open:
		return "OPEN"
	case Closing:
		return "CLOSING"
	}
	return fmt.Sprintf("ReadyState(%d)", int32(s))
}

// Envelope is a message waiting in the outgoing buffer.
type Envelope struct {
	Message    codec.Message
	EnqueuedAt time.Time
}
