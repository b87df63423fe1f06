// Package heartbeat probes an open connection and detects silence.
//
// While running, the monitor pings every Interval. After a ping it expects
// some inbound traffic (data or pong) within Timeout; Touch records that
// traffic. If the window passes without any, the timeout callback runs once
// and the monitor stops itself.
package heartbeat

import (
	"log/slog"
	"time"

	"github.com/rickgao/primus-go/internal/timers"
)

const (
	DefaultInterval = 25 * time.Second
	DefaultTimeout  = 10 * time.Second

	pingTimer = "heartbeat.ping"
	pongTimer = "heartbeat.pong"
)

// Options configures the probe. Interval 0 disables the monitor.
type Options struct {
	Interval time.Duration
	Timeout  time.Duration
}

// Monitor schedules pings and the silence timeout on a timers.Set. Like the
// Set, it must only be used from the owner's serialized context.
type Monitor struct {
	opts      Options
	timers    *timers.Set
	ping      func()
	onTimeout func()
	logger    *slog.Logger

	running  bool
	lastSeen time.Time
}

// New creates a stopped monitor. ping sends the probe; onTimeout is called
// when the silence window expires.
func New(opts Options, set *timers.Set, ping, onTimeout func(), logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Interval > 0 && opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Monitor{
		opts:      opts,
		timers:    set,
		ping:      ping,
		onTimeout: onTimeout,
		logger:    logger,
	}
}

// Enabled reports whether pings are configured.
func (m *Monitor) Enabled() bool {
	return m.opts.Interval > 0
}

// Running reports whether the monitor is started.
func (m *Monitor) Running() bool {
	return m.running
}

// LastSeen returns the time of the most recent Touch or Start.
func (m *Monitor) LastSeen() time.Time {
	return m.lastSeen
}

// Start begins probing. Starting a running monitor restarts it.
func (m *Monitor) Start() {
	if !m.Enabled() {
		return
	}
	m.Stop()
	m.running = true
	m.lastSeen = m.timers.Now()
	m.timers.Schedule(pingTimer, m.opts.Interval, m.fire)
}

// Stop cancels both timers.
func (m *Monitor) Stop() {
	m.timers.Clear(pingTimer)
	m.timers.Clear(pongTimer)
	m.running = false
}

// Touch records inbound traffic and closes the current silence window.
func (m *Monitor) Touch() {
	if !m.running {
		return
	}
	m.lastSeen = m.timers.Now()
	m.timers.Clear(pongTimer)
}

func (m *Monitor) fire() {
	if !m.running {
		return
	}
	m.ping()
	if !m.timers.Active(pongTimer) {
		m.timers.Schedule(pongTimer, m.opts.Timeout, m.expire)
	}
	m.timers.Schedule(pingTimer, m.opts.Interval, m.fire)
}

func (m *Monitor) expire() {
	if !m.running {
		return
	}
	m.logger.Warn("heartbeat timed out",
		"last_seen", m.lastSeen,
		"timeout", m.opts.Timeout,
	)
	m.Stop()
	m.onTimeout()
}
