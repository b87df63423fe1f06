package connection

import (
	"time"

	"github.com/rickgao/primus-go/internal/transport"
)

// Public event names. The payload type of each is noted alongside.
const (
	EventOpen         = "open"         // nil
	EventClose        = "close"        // CloseEvent
	EventEnd          = "end"          // EndEvent
	EventReconnecting = "reconnecting" // ReconnectingEvent
	EventReconnect    = "reconnect"    // ReconnectEvent
	EventError        = "error"        // error
	EventData         = "data"         // codec.Message
	EventOnline       = "online"       // nil
	EventOffline      = "offline"      // nil
	EventTimeout      = "timeout"      // TimeoutEvent
)

// PublicEvents lists every public event name.
var PublicEvents = []string{
	EventOpen, EventClose, EventEnd, EventReconnecting, EventReconnect,
	EventError, EventData, EventOnline, EventOffline, EventTimeout,
}

// Internal events: transport callbacks come in as incoming::*, and every
// request made to the transport is announced as outgoing::*.
const (
	incomingOpen  = "incoming::open"  // nil
	incomingData  = "incoming::data"  // transport.Frame
	incomingPong  = "incoming::pong"  // []byte
	incomingError = "incoming::error" // error
	incomingEnd   = "incoming::end"   // endInfo

	outgoingOpen      = "outgoing::open"      // string target
	outgoingData      = "outgoing::data"      // transport.Frame
	outgoingPing      = "outgoing::ping"      // []byte
	outgoingEnd       = "outgoing::end"       // CloseEvent
	outgoingReconnect = "outgoing::reconnect" // int attempt
)

// CloseEvent is emitted when an established or closing session is gone.
type CloseEvent struct {
	Code     int
	Reason   string
	WasClean bool // false if the close triggered a reconnect or the transport never confirmed it
}

// EndEvent is emitted when the connection stops for good: a local close, a
// clean remote close or an exhausted reconnect policy.
type EndEvent struct {
	Exhausted bool // reconnect attempts ran out
	Discarded int  // buffered messages dropped with the connection
}

// ReconnectingEvent announces a scheduled retry.
type ReconnectingEvent struct {
	Attempt int
	Delay   time.Duration
}

// ReconnectEvent follows EventOpen when the open ended a retry cycle.
type ReconnectEvent struct {
	Attempts int
}

// TimeoutStage says which timer expired.
type TimeoutStage string

const (
	TimeoutHandshake TimeoutStage = "handshake"
	TimeoutHeartbeat TimeoutStage = "heartbeat"
)

// TimeoutEvent is emitted before the timeout is handled as a failure.
type TimeoutEvent struct {
	Stage TimeoutStage
	After time.Duration
}

type endInfo struct {
	code     int
	reason   string
	wasClean bool
}

func (e endInfo) class() transport.CloseClass {
	return transport.ClassifyClose(e.code)
}
