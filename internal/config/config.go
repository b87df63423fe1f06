package config

import "time"

// Config is the root configuration of a client.
type Config struct {
	Connection   ConnectionConfig   `yaml:"connection"`
	Reconnect    ReconnectConfig    `yaml:"reconnect"`
	Heartbeat    HeartbeatConfig    `yaml:"heartbeat"`
	WebSocket    WebSocketConfig    `yaml:"websocket"`
	Reachability ReachabilityConfig `yaml:"reachability"`
	Logging      LoggingConfig      `yaml:"logging"`
	Metrics      MetricsConfig      `yaml:"metrics"`
	Journal      JournalConfig      `yaml:"journal"`
}

// ConnectionConfig describes the server and the session.
type ConnectionConfig struct {
	URL                   string            `yaml:"url"`
	Transport             string            `yaml:"transport"` // Registered transport name
	Codec                 string            `yaml:"codec"`     // "raw" or "json"
	Timeout               time.Duration     `yaml:"timeout"`   // Handshake timeout
	ManualConnect         bool              `yaml:"manual_connect"`
	ReconnectOnCleanClose bool              `yaml:"reconnect_on_clean_close"`
	Headers               map[string]string `yaml:"headers"`
	Hints                 map[string]string `yaml:"hints"`
}

// ReconnectConfig is the backoff policy.
type ReconnectConfig struct {
	MinDelay    time.Duration `yaml:"min_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
	Factor      float64       `yaml:"factor"`
	MaxAttempts int           `yaml:"max_attempts"` // 0 = unlimited
	Jitter      float64       `yaml:"jitter"`
}

// HeartbeatConfig controls pings.
type HeartbeatConfig struct {
	Disabled bool          `yaml:"disabled"`
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

// WebSocketConfig holds settings of the websocket transport.
type WebSocketConfig struct {
	WriteTimeout time.Duration     `yaml:"write_timeout"`
	CloseGrace   time.Duration     `yaml:"close_grace"`
	QueueSize    int               `yaml:"queue_size"`
	PinnedSHA256 []string          `yaml:"pinned_sha256"`
	Cookies      map[string]string `yaml:"cookies"` // Sent with the handshake
}

// ReachabilityConfig selects how the client decides it is online.
// An empty probe address means always online.
type ReachabilityConfig struct {
	ProbeAddress       string        `yaml:"probe_address"`
	Interval           time.Duration `yaml:"interval"`
	Timeout            time.Duration `yaml:"timeout"`
	MaxProbesPerSecond float64       `yaml:"max_probes_per_second"`
}

// LoggingConfig configures the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Port      int    `yaml:"port"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}

// JournalConfig holds the PostgreSQL event journal.
type JournalConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Database      DBConfig      `yaml:"database"`
	Table         string        `yaml:"table"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	SkipData      bool          `yaml:"skip_data"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}
