package reachability

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultProbeInterval = 5 * time.Second
	DefaultProbeTimeout  = 2 * time.Second
)

// ProberConfig configures a Prober.
type ProberConfig struct {
	// Address is dialed over TCP ("host:port").
	Address  string
	Interval time.Duration
	Timeout  time.Duration

	// MaxProbesPerSecond caps probes, including ones requested by Check.
	// Zero means one probe per Interval.
	MaxProbesPerSecond float64
}

// DialFunc opens a connection for a probe. Tests replace it.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Prober decides reachability by periodically dialing an address. It
// starts online and flips after the first failed probe.
type Prober struct {
	cfg     ProberConfig
	dial    DialFunc
	limiter *rate.Limiter
	logger  *slog.Logger

	mu     sync.Mutex
	online bool
	w      watchers

	cancel context.CancelFunc
	done   chan struct{}
}

// NewProber creates a stopped Prober.
func NewProber(cfg ProberConfig, logger *slog.Logger) *Prober {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultProbeInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultProbeTimeout
	}
	limit := rate.Every(cfg.Interval)
	if cfg.MaxProbesPerSecond > 0 {
		limit = rate.Limit(cfg.MaxProbesPerSecond)
	}

	var d net.Dialer
	return &Prober{
		cfg:     cfg,
		dial:    d.DialContext,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger.With("component", "reachability", "address", cfg.Address),
		online:  true,
	}
}

// WithDialer replaces the dial function. It must be called before Start.
func (p *Prober) WithDialer(dial DialFunc) *Prober {
	p.dial = dial
	return p
}

func (p *Prober) Online() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.online
}

func (p *Prober) Watch(fn func(bool)) func() {
	return p.w.add(fn)
}

// Start launches the probe loop.
func (p *Prober) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.run(ctx, p.done)
}

// Stop ends the probe loop and waits for it to exit.
func (p *Prober) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Check runs one probe now, waiting on the rate limiter, and returns the
// resulting state.
func (p *Prober) Check(ctx context.Context) (bool, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return p.Online(), err
	}
	return p.probe(ctx), nil
}

func (p *Prober) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.logger.Debug("prober started", "interval", p.cfg.Interval)
	for {
		if _, err := p.Check(ctx); err != nil {
			return
		}
		select {
		case <-ctx.Done():
			p.logger.Debug("prober stopped")
			return
		case <-ticker.C:
		}
	}
}

func (p *Prober) probe(parent context.Context) bool {
	ctx, cancel := context.WithTimeout(parent, p.cfg.Timeout)
	defer cancel()

	conn, err := p.dial(ctx, "tcp", p.cfg.Address)
	online := err == nil
	if conn != nil {
		conn.Close()
	}
	// shutting down; a cancelled dial says nothing about the network
	if err != nil && parent.Err() != nil {
		return p.Online()
	}

	if p.w.set(&p.mu, &p.online, online) {
		if online {
			p.logger.Info("network reachable")
		} else {
			p.logger.Warn("network unreachable", "error", err)
		}
	}
	return online
}
