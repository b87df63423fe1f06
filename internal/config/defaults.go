package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultTransport         = "websocket"
	DefaultCodec             = "raw"
	DefaultTimeout           = 10 * time.Second
	DefaultReconnectMin      = 500 * time.Millisecond
	DefaultReconnectMax      = 30 * time.Second
	DefaultReconnectFactor   = 2.0
	DefaultHeartbeatInterval = 25 * time.Second
	DefaultHeartbeatTimeout  = 10 * time.Second
	DefaultWriteTimeout      = 5 * time.Second
	DefaultCloseGrace        = 250 * time.Millisecond
	DefaultQueueSize         = 256
	DefaultProbeInterval     = 5 * time.Second
	DefaultProbeTimeout      = 2 * time.Second
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "text"
	DefaultMetricsPort       = 9090
	DefaultMetricsPath       = "/metrics"
	DefaultMetricsNamespace  = "primus"
	DefaultDBPort            = 5432
	DefaultDBSSLMode         = "prefer"
	DefaultMaxConns          = 4
	DefaultMinConns          = 1
	DefaultJournalTable      = "connection_events"
	DefaultJournalBatchSize  = 100
	DefaultJournalFlush      = 1 * time.Second
)

func (c *Config) applyDefaults() {
	// Connection defaults
	if c.Connection.Transport == "" {
		c.Connection.Transport = DefaultTransport
	}
	if c.Connection.Codec == "" {
		c.Connection.Codec = DefaultCodec
	}
	if c.Connection.Timeout == 0 {
		c.Connection.Timeout = DefaultTimeout
	}

	// Reconnect defaults
	if c.Reconnect.MinDelay == 0 {
		c.Reconnect.MinDelay = DefaultReconnectMin
	}
	if c.Reconnect.MaxDelay == 0 {
		c.Reconnect.MaxDelay = DefaultReconnectMax
	}
	if c.Reconnect.Factor == 0 {
		c.Reconnect.Factor = DefaultReconnectFactor
	}

	// Heartbeat defaults
	if !c.Heartbeat.Disabled {
		if c.Heartbeat.Interval == 0 {
			c.Heartbeat.Interval = DefaultHeartbeatInterval
		}
		if c.Heartbeat.Timeout == 0 {
			c.Heartbeat.Timeout = DefaultHeartbeatTimeout
		}
	}

	// WebSocket defaults
	if c.WebSocket.WriteTimeout == 0 {
		c.WebSocket.WriteTimeout = DefaultWriteTimeout
	}
	if c.WebSocket.CloseGrace == 0 {
		c.WebSocket.CloseGrace = DefaultCloseGrace
	}
	if c.WebSocket.QueueSize == 0 {
		c.WebSocket.QueueSize = DefaultQueueSize
	}

	// Reachability defaults
	if c.Reachability.ProbeAddress != "" {
		if c.Reachability.Interval == 0 {
			c.Reachability.Interval = DefaultProbeInterval
		}
		if c.Reachability.Timeout == 0 {
			c.Reachability.Timeout = DefaultProbeTimeout
		}
	}

	// Logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = DefaultMetricsNamespace
	}

	// Journal defaults
	if c.Journal.Enabled {
		applyDBDefaults(&c.Journal.Database)
		if c.Journal.Table == "" {
			c.Journal.Table = DefaultJournalTable
		}
		if c.Journal.BatchSize == 0 {
			c.Journal.BatchSize = DefaultJournalBatchSize
		}
		if c.Journal.FlushInterval == 0 {
			c.Journal.FlushInterval = DefaultJournalFlush
		}
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
