package timers

import (
	"time"
)

// Executor runs a task on the owner's serialized context.
type Executor func(task func())

// Set holds named single-shot timers. Scheduling a name that is already
// armed replaces the earlier timer.
//
// A Set is owned by one serialized context: Schedule, Clear and ClearAll must
// be called from it, and fired callbacks are posted back to it through the
// Executor. A callback whose timer was cleared or replaced after it fired
// but before it ran is discarded.
type Set struct {
	clock  Clock
	exec   Executor
	gen    uint64
	timers map[string]*entry
}

type entry struct {
	gen     uint64
	stopper Stopper
}

// NewSet creates a Set that schedules on clock and runs callbacks via exec.
func NewSet(clock Clock, exec Executor) *Set {
	if clock == nil {
		clock = RealClock{}
	}
	return &Set{
		clock:  clock,
		exec:   exec,
		timers: make(map[string]*entry),
	}
}

// Schedule arms name to run f after d.
func (s *Set) Schedule(name string, d time.Duration, f func()) {
	s.Clear(name)

	s.gen++
	gen := s.gen
	e := &entry{gen: gen}
	e.stopper = s.clock.AfterFunc(d, func() {
		s.exec(func() {
			current, ok := s.timers[name]
			if !ok || current.gen != gen {
				return
			}
			delete(s.timers, name)
			f()
		})
	})
	s.timers[name] = e
}

// Active reports whether name is armed.
func (s *Set) Active(name string) bool {
	_, ok := s.timers[name]
	return ok
}

// Clear cancels name. It reports whether a timer was armed.
func (s *Set) Clear(name string) bool {
	e, ok := s.timers[name]
	if !ok {
		return false
	}
	e.stopper.Stop()
	delete(s.timers, name)
	return true
}

// ClearAll cancels every armed timer.
func (s *Set) ClearAll() {
	for name := range s.timers {
		s.Clear(name)
	}
}

// Now returns the current time of the underlying clock.
func (s *Set) Now() time.Time {
	return s.clock.Now()
}
