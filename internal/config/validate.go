package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Connection.URL == "" {
		return errors.New("connection.url is required")
	}
	u, err := url.Parse(c.Connection.URL)
	if err != nil {
		return fmt.Errorf("connection.url is invalid: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss", "http", "https":
	default:
		return fmt.Errorf("connection.url scheme must be ws, wss, http or https, got %q", u.Scheme)
	}
	switch c.Connection.Codec {
	case "raw", "json":
	default:
		return fmt.Errorf("connection.codec must be raw or json, got %q", c.Connection.Codec)
	}
	if c.Connection.Timeout < 0 {
		return errors.New("connection.timeout must be >= 0")
	}

	if c.Reconnect.MinDelay <= 0 {
		return errors.New("reconnect.min_delay must be > 0")
	}
	if c.Reconnect.MaxDelay < c.Reconnect.MinDelay {
		return fmt.Errorf("reconnect.max_delay (%s) cannot be less than min_delay (%s)", c.Reconnect.MaxDelay, c.Reconnect.MinDelay)
	}
	if c.Reconnect.Factor < 1 {
		return errors.New("reconnect.factor must be >= 1")
	}
	if c.Reconnect.MaxAttempts < 0 {
		return errors.New("reconnect.max_attempts must be >= 0")
	}
	if c.Reconnect.Jitter < 0 || c.Reconnect.Jitter >= 1 {
		return errors.New("reconnect.jitter must be in [0, 1)")
	}

	if !c.Heartbeat.Disabled && (c.Heartbeat.Interval <= 0 || c.Heartbeat.Timeout <= 0) {
		return errors.New("heartbeat.interval and heartbeat.timeout must be > 0")
	}

	if c.WebSocket.QueueSize < 1 {
		return errors.New("websocket.queue_size must be >= 1")
	}

	if c.Reachability.MaxProbesPerSecond < 0 {
		return errors.New("reachability.max_probes_per_second must be >= 0")
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Logging.Level)); err != nil {
		return fmt.Errorf("logging.level is invalid: %w", err)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	if c.Metrics.Enabled && (c.Metrics.Port < 1 || c.Metrics.Port > 65535) {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	if c.Journal.Enabled {
		if err := c.Journal.Database.validate("journal.database"); err != nil {
			return err
		}
		if c.Journal.BatchSize < 1 {
			return errors.New("journal.batch_size must be >= 1")
		}
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
