package websocket

import (
	"crypto/tls"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Hint keys read from transport.Options.Hints.
const (
	HintSubprotocols = "subprotocols" // Comma separated list
	HintCompression  = "compression"  // "true" enables permessage-deflate
)

// Config configures every transport built by a Factory.
type Config struct {
	Dialer       *websocket.Dialer // nil = websocket.DefaultDialer
	WriteTimeout time.Duration     // Deadline for each frame write
	CloseGrace   time.Duration     // Wait for the peer's close frame before dropping the socket
	QueueSize    int               // Outgoing frame queue length
	PinnedSHA256 []string          // Hex SHA-256 fingerprints of accepted certificates (empty = no pinning)
	Jar          http.CookieJar    // Cookies attached to the handshake
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		WriteTimeout: 5 * time.Second,
		CloseGrace:   250 * time.Millisecond,
		QueueSize:    256,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.WriteTimeout == 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.CloseGrace == 0 {
		c.CloseGrace = d.CloseGrace
	}
	if c.QueueSize == 0 {
		c.QueueSize = d.QueueSize
	}
	return c
}

// dialer builds the per-attempt dialer from the base dialer and hints.
func (c Config) dialer(handshakeTimeout time.Duration, hints map[string]string) *websocket.Dialer {
	base := c.Dialer
	if base == nil {
		base = websocket.DefaultDialer
	}
	d := *base

	if handshakeTimeout > 0 {
		d.HandshakeTimeout = handshakeTimeout
	}
	if c.Jar != nil {
		d.Jar = c.Jar
	}
	if v := hints[HintSubprotocols]; v != "" {
		var protocols []string
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				protocols = append(protocols, p)
			}
		}
		d.Subprotocols = protocols
	}
	if hints[HintCompression] == "true" {
		d.EnableCompression = true
	}
	if len(c.PinnedSHA256) > 0 {
		var tlsCfg *tls.Config
		if d.TLSClientConfig != nil {
			tlsCfg = d.TLSClientConfig.Clone()
		} else {
			tlsCfg = &tls.Config{}
		}
		tlsCfg.VerifyConnection = verifyPinned(c.PinnedSHA256)
		d.TLSClientConfig = tlsCfg
	}
	return &d
}
