// Package reachability reports whether the network is usable.
//
// A Source is consulted before connecting and watched for transitions. The
// connection treats "offline" as a signal to buffer outbound messages and to
// hold reconnect attempts until the network comes back.
package reachability

import (
	"sync"
)

// Source reports network availability.
type Source interface {
	// Online reports the current state.
	Online() bool

	// Watch calls fn on every transition until stop is called. fn may be
	// called from any goroutine.
	Watch(fn func(online bool)) (stop func())
}

// watchers fans out transitions to registered callbacks. Transitions are
// delivered in the order they were applied.
type watchers struct {
	mu    sync.Mutex
	order sync.Mutex
	next  int
	fns   map[int]func(bool)
}

func (w *watchers) add(fn func(bool)) func() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.fns == nil {
		w.fns = make(map[int]func(bool))
	}
	w.next++
	id := w.next
	w.fns[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			w.mu.Lock()
			delete(w.fns, id)
			w.mu.Unlock()
		})
	}
}

func (w *watchers) notify(online bool) {
	w.mu.Lock()
	fns := make([]func(bool), 0, len(w.fns))
	for _, fn := range w.fns {
		fns = append(fns, fn)
	}
	w.mu.Unlock()

	for _, fn := range fns {
		fn(online)
	}
}

// set stores next into *state under mu and notifies on change. Callbacks
// must not set the state again from the same goroutine.
func (w *watchers) set(mu *sync.Mutex, state *bool, next bool) bool {
	w.order.Lock()
	defer w.order.Unlock()

	mu.Lock()
	changed := *state != next
	*state = next
	mu.Unlock()

	if changed {
		w.notify(next)
	}
	return changed
}

// Static is a Source whose state is set by hand. The zero value is offline;
// use NewStatic for an online one.
type Static struct {
	mu     sync.Mutex
	online bool
	w      watchers
}

// NewStatic returns a Static source in the given state.
func NewStatic(online bool) *Static {
	return &Static{online: online}
}

func (s *Static) Online() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

func (s *Static) Watch(fn func(bool)) func() {
	return s.w.add(fn)
}

// Set changes the state and notifies watchers if it changed.
func (s *Static) Set(online bool) {
	s.w.set(&s.mu, &s.online, online)
}

// Always is an always-online Source with no transitions.
type Always struct{}

func (Always) Online() bool { return true }

func (Always) Watch(func(bool)) func() { return func() {} }
