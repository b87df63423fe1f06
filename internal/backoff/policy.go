// Package backoff decides whether and when a dropped connection is retried.
//
// Delays grow geometrically: min(Max, Min * Factor^attempt), where attempt
// counts the retries already scheduled in the current cycle.
package backoff

import (
	"errors"
	"math"
	"math/rand"
	"time"
)

// Default values for Options fields left at zero.
const (
	DefaultMin    = 500 * time.Millisecond
	DefaultMax    = 30 * time.Second
	DefaultFactor = 2.0
)

var ErrInvalidOptions = errors.New("invalid backoff options")

// Options is the immutable retry policy.
type Options struct {
	Min    time.Duration // Floor of the computed delay
	Max    time.Duration // Ceiling of the computed delay
	Factor float64       // Growth per attempt
	Jitter float64       // Fraction in [0,1) of randomization, 0 = deterministic

	// MaxAttempts caps the retries in one cycle, not the disconnects: the
	// drop that starts a cycle is not counted, so 3 allows the first drop
	// plus three failed retries. 0 = unlimited.
	MaxAttempts int
}

// WithDefaults fills zero fields with the package defaults.
func (o Options) WithDefaults() Options {
	if o.Min == 0 {
		o.Min = DefaultMin
	}
	if o.Max == 0 {
		o.Max = DefaultMax
	}
	if o.Factor == 0 {
		o.Factor = DefaultFactor
	}
	return o
}

// Validate reports inconsistent options.
func (o Options) Validate() error {
	switch {
	case o.Min <= 0:
		return errors.Join(ErrInvalidOptions, errors.New("min must be > 0"))
	case o.Max < o.Min:
		return errors.Join(ErrInvalidOptions, errors.New("max must be >= min"))
	case o.Factor < 1:
		return errors.Join(ErrInvalidOptions, errors.New("factor must be >= 1"))
	case o.MaxAttempts < 0:
		return errors.Join(ErrInvalidOptions, errors.New("max attempts must be >= 0"))
	case o.Jitter < 0 || o.Jitter >= 1:
		return errors.Join(ErrInvalidOptions, errors.New("jitter must be in [0,1)"))
	}
	return nil
}

// Delay returns the deterministic delay for the given zero-based attempt.
func (o Options) Delay(attempt int) time.Duration {
	d := float64(o.Min) * math.Pow(o.Factor, float64(attempt))
	if d >= float64(o.Max) || math.IsInf(d, 0) || math.IsNaN(d) {
		return o.Max
	}
	return time.Duration(d)
}

// Attempt describes one scheduled retry.
type Attempt struct {
	Number int           // 1-based retry number within the cycle
	Delay  time.Duration // Time to wait before connecting
}

// Policy tracks the attempt state of one reconnect cycle. It is not safe
// for concurrent use.
type Policy struct {
	opts    Options
	attempt int
	delay   time.Duration
	rand    *rand.Rand
}

// New creates a Policy. Zero option fields take the package defaults.
func New(opts Options) *Policy {
	return &Policy{
		opts: opts.WithDefaults(),
		rand: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Options returns the effective options.
func (p *Policy) Options() Options {
	return p.opts
}

// Attempt returns the number of retries scheduled since the last Reset.
func (p *Policy) Attempt() int {
	return p.attempt
}

// Delay returns the delay of the most recently scheduled retry.
func (p *Policy) Delay() time.Duration {
	return p.delay
}

// Exhausted reports whether no further retry is allowed.
func (p *Policy) Exhausted() bool {
	return p.opts.MaxAttempts > 0 && p.attempt >= p.opts.MaxAttempts
}

// Next computes the next retry. ok is false once MaxAttempts retries have
// been scheduled; the attempt counter is then left unchanged.
func (p *Policy) Next() (a Attempt, ok bool) {
	if p.Exhausted() {
		return Attempt{}, false
	}

	delay := p.opts.Delay(p.attempt)
	if p.opts.Jitter > 0 {
		spread := float64(delay) * p.opts.Jitter
		delay = time.Duration(float64(delay) - spread + p.rand.Float64()*2*spread)
		if delay > p.opts.Max {
			delay = p.opts.Max
		}
	}

	p.attempt++
	p.delay = delay
	return Attempt{Number: p.attempt, Delay: delay}, true
}

// Reset starts a new cycle and returns the attempt count it replaced.
func (p *Policy) Reset() int {
	prev := p.attempt
	p.attempt = 0
	p.delay = 0
	return prev
}
