package config

import (
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sort"

	"github.com/rickgao/primus-go/internal/backoff"
	"github.com/rickgao/primus-go/internal/codec"
	"github.com/rickgao/primus-go/internal/connection"
	"github.com/rickgao/primus-go/internal/heartbeat"
	"github.com/rickgao/primus-go/internal/journal"
	"github.com/rickgao/primus-go/internal/reachability"
	"github.com/rickgao/primus-go/internal/transport"
	"github.com/rickgao/primus-go/internal/transport/websocket"
)

// ConnectionOptions converts the file config into connection options.
// Logger, Reachability and Plugins are left for the caller.
func (c *Config) ConnectionOptions(factory transport.Factory) (connection.Options, error) {
	cd, err := codec.ByName(c.Connection.Codec)
	if err != nil {
		return connection.Options{}, err
	}

	opts := connection.Options{
		Target:                c.Connection.URL,
		Timeout:               c.Connection.Timeout,
		ManualConnect:         c.Connection.ManualConnect,
		Hints:                 c.Connection.Hints,
		Transport:             factory,
		Codec:                 cd,
		ReconnectOnCleanClose: c.Connection.ReconnectOnCleanClose,
		Reconnect: backoff.Options{
			Min:         c.Reconnect.MinDelay,
			Max:         c.Reconnect.MaxDelay,
			Factor:      c.Reconnect.Factor,
			MaxAttempts: c.Reconnect.MaxAttempts,
			Jitter:      c.Reconnect.Jitter,
		},
	}
	if !c.Heartbeat.Disabled {
		opts.Heartbeat = heartbeat.Options{
			Interval: c.Heartbeat.Interval,
			Timeout:  c.Heartbeat.Timeout,
		}
	}
	if len(c.Connection.Headers) > 0 {
		opts.Header = make(http.Header, len(c.Connection.Headers))
		for k, v := range c.Connection.Headers {
			opts.Header.Set(k, v)
		}
	}
	return opts, nil
}

// WebSocketConfig builds the websocket transport settings, including a
// cookie jar seeded for the connection URL.
func (c *Config) WebSocketConfig() (websocket.Config, error) {
	wc := websocket.Config{
		WriteTimeout: c.WebSocket.WriteTimeout,
		CloseGrace:   c.WebSocket.CloseGrace,
		QueueSize:    c.WebSocket.QueueSize,
		PinnedSHA256: c.WebSocket.PinnedSHA256,
	}
	if len(c.WebSocket.Cookies) == 0 {
		return wc, nil
	}

	u, err := url.Parse(c.Connection.URL)
	if err != nil {
		return wc, fmt.Errorf("parse connection url: %w", err)
	}
	// The jar matches cookies on http(s) URLs only.
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return wc, fmt.Errorf("create cookie jar: %w", err)
	}
	names := make([]string, 0, len(c.WebSocket.Cookies))
	for name := range c.WebSocket.Cookies {
		names = append(names, name)
	}
	sort.Strings(names)
	cookies := make([]*http.Cookie, 0, len(names))
	for _, name := range names {
		cookies = append(cookies, &http.Cookie{Name: name, Value: c.WebSocket.Cookies[name]})
	}
	jar.SetCookies(u, cookies)
	wc.Jar = jar
	return wc, nil
}

// ProberConfig returns the reachability prober settings. ok is false when
// no probe address is configured.
func (c *Config) ProberConfig() (cfg reachability.ProberConfig, ok bool) {
	if c.Reachability.ProbeAddress == "" {
		return reachability.ProberConfig{}, false
	}
	return reachability.ProberConfig{
		Address:            c.Reachability.ProbeAddress,
		Interval:           c.Reachability.Interval,
		Timeout:            c.Reachability.Timeout,
		MaxProbesPerSecond: c.Reachability.MaxProbesPerSecond,
	}, true
}

// JournalConfig returns the database and writer settings of the journal.
func (c *Config) JournalConfig() (journal.DBConfig, journal.Config) {
	db := c.Journal.Database
	return journal.DBConfig{
			Host:     db.Host,
			Port:     db.Port,
			Name:     db.Name,
			User:     db.User,
			Password: db.Password,
			SSLMode:  db.SSLMode,
			MinConns: db.MinConns,
			MaxConns: db.MaxConns,
		}, journal.Config{
			Table:         c.Journal.Table,
			BatchSize:     c.Journal.BatchSize,
			FlushInterval: c.Journal.FlushInterval,
			SkipData:      c.Journal.SkipData,
		}
}
