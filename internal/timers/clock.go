// Package timers provides the schedule-once/cancel capability used by the
// connection and its heartbeat.
package timers

import (
	"sort"
	"sync"
	"time"
)

// Stopper cancels a scheduled callback.
type Stopper interface {
	// Stop prevents the callback from firing. It reports whether the call
	// stopped the timer, false if it already fired or was stopped.
	Stop() bool
}

// Clock schedules a callback to run once after d on its own goroutine.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Stopper
	Now() time.Time
}

// RealClock is backed by the time package.
type RealClock struct{}

func (RealClock) AfterFunc(d time.Duration, f func()) Stopper {
	return time.AfterFunc(d, f)
}

func (RealClock) Now() time.Time {
	return time.Now()
}

// ManualClock only moves when Advance is called. Due callbacks run
// synchronously on the caller's goroutine, earliest deadline first.
type ManualClock struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*manualTimer
}

type manualTimer struct {
	clock *ManualClock
	at    time.Time
	seq   int
	after time.Duration
	f     func()
	done  bool
}

// NewManualClock returns a clock frozen at start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) AfterFunc(d time.Duration, f func()) Stopper {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	t := &manualTimer{clock: c, at: c.now.Add(d), seq: c.seq, after: d, f: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves the clock forward by d and fires every timer that became due.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		next := c.nextDueLocked(target)
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		next.done = true
		c.now = next.at
		c.removeLocked(next)
		c.mu.Unlock()

		next.f()
	}
}

// Pending returns the delays, as originally requested, of the timers that
// have not fired or been stopped, ordered by deadline.
func (c *ManualClock) Pending() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	sorted := make([]*manualTimer, len(c.timers))
	copy(sorted, c.timers)
	sortTimers(sorted)

	out := make([]time.Duration, 0, len(sorted))
	for _, t := range sorted {
		out = append(out, t.after)
	}
	return out
}

func (c *ManualClock) nextDueLocked(target time.Time) *manualTimer {
	var next *manualTimer
	for _, t := range c.timers {
		if t.at.After(target) {
			continue
		}
		if next == nil || t.at.Before(next.at) || (t.at.Equal(next.at) && t.seq < next.seq) {
			next = t
		}
	}
	return next
}

func (c *ManualClock) removeLocked(target *manualTimer) {
	for i, t := range c.timers {
		if t == target {
			c.timers = append(c.timers[:i], c.timers[i+1:]...)
			return
		}
	}
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	if t.done {
		return false
	}
	t.done = true
	t.clock.removeLocked(t)
	return true
}

func sortTimers(ts []*manualTimer) {
	sort.Slice(ts, func(i, j int) bool {
		if ts[i].at.Equal(ts[j].at) {
			return ts[i].seq < ts[j].seq
		}
		return ts[i].at.Before(ts[j].at)
	})
}
