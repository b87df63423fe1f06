package connection

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/rickgao/primus-go/internal/backoff"
	"github.com/rickgao/primus-go/internal/codec"
	"github.com/rickgao/primus-go/internal/heartbeat"
	"github.com/rickgao/primus-go/internal/reachability"
	"github.com/rickgao/primus-go/internal/timers"
	"github.com/rickgao/primus-go/internal/transport"
)

// DefaultTimeout bounds the handshake and the wait for a close confirmation.
const DefaultTimeout = 10 * time.Second

// Options is captured by New. Only Reconfigure may change it, and only
// while the connection is closed.
type Options struct {
	Target        string        // Server address handed to the transport
	Timeout       time.Duration // Handshake timeout, 0 = DefaultTimeout
	ManualConnect bool          // Do not Open on construction

	Header http.Header       // Forwarded to the transport
	Hints  map[string]string // Forwarded to the transport

	Transport transport.Factory
	Codec     codec.Codec // nil = codec.Raw

	Reconnect backoff.Options
	Heartbeat heartbeat.Options // Zero value disables pings

	// ReconnectOnCleanClose retries after the server closes with 1000/1001.
	// Otherwise a clean remote close ends the connection.
	ReconnectOnCleanClose bool

	Reachability reachability.Source // nil = always online
	Clock        timers.Clock        // nil = real time
	Logger       *slog.Logger
	Plugins      []Plugin
}

func (o Options) withDefaults() Options {
	if o.Timeout == 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Codec == nil {
		o.Codec = codec.Raw{}
	}
	if o.Reachability == nil {
		o.Reachability = reachability.Always{}
	}
	if o.Clock == nil {
		o.Clock = timers.RealClock{}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Heartbeat.Interval > 0 && o.Heartbeat.Timeout == 0 {
		o.Heartbeat.Timeout = heartbeat.DefaultTimeout
	}
	o.Reconnect = o.Reconnect.WithDefaults()
	return o
}

// Validate reports options a Conn cannot run with.
func (o Options) Validate() error {
	if o.Target == "" {
		return errors.New("target is required")
	}
	if o.Transport == nil {
		return errors.New("transport factory is required")
	}
	if o.Timeout < 0 {
		return errors.New("timeout must be >= 0")
	}
	if o.Heartbeat.Interval < 0 || o.Heartbeat.Timeout < 0 {
		return errors.New("heartbeat durations must be >= 0")
	}
	if err := o.Reconnect.WithDefaults().Validate(); err != nil {
		return fmt.Errorf("reconnect: %w", err)
	}
	return nil
}

func (o Options) transportOptions() transport.Options {
	return transport.Options{
		Header:           o.Header,
		Hints:            o.Hints,
		HandshakeTimeout: o.Timeout,
	}
}

// Plugin extends a Conn, usually by subscribing to its events.
type Plugin interface {
	Name() string
	// Attach is called once from New, before the first Open.
	Attach(c *Conn) error
}
