// Package eventbus is an ordered, synchronous pub/sub dispatcher for named
// events. A connection publishes both its public and its internal events
// through one Bus.
package eventbus

import (
	"fmt"
	"log/slog"
	"sync"
)

// Handler receives the payload passed to Emit.
type Handler func(payload any)

// Subscription identifies one registration. Handlers are funcs and cannot be
// compared, so Off takes the token returned by On.
type Subscription uint64

type listener struct {
	sub     Subscription
	handler Handler
	once    bool
}

// Bus dispatches events to listeners in registration order.
type Bus struct {
	logger *slog.Logger

	mu        sync.Mutex
	nextSub   Subscription
	listeners map[string][]*listener
}

// New creates an empty Bus.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		logger:    logger,
		listeners: make(map[string][]*listener),
	}
}

// On registers handler for name.
func (b *Bus) On(name string, handler Handler) Subscription {
	return b.add(name, handler, false)
}

// Once registers handler for name and removes it after its first call.
func (b *Bus) Once(name string, handler Handler) Subscription {
	return b.add(name, handler, true)
}

func (b *Bus) add(name string, handler Handler, once bool) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextSub++
	l := &listener{sub: b.nextSub, handler: handler, once: once}
	b.listeners[name] = append(b.listeners[name], l)
	return l.sub
}

// Off removes the registration sub from name. It reports whether a listener
// was removed.
func (b *Bus) Off(name string, sub Subscription) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.removeLocked(name, sub)
}

// Clear removes every listener registered for name.
func (b *Bus) Clear(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.listeners, name)
}

// Listeners returns the number of listeners registered for name.
func (b *Bus) Listeners(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.listeners[name])
}

// Emit calls every listener of name with payload and returns how many were
// called. The listener set is captured before the first call, so handlers
// added or removed during dispatch take effect from the next Emit.
func (b *Bus) Emit(name string, payload any) int {
	b.mu.Lock()
	current := b.listeners[name]
	if len(current) == 0 {
		b.mu.Unlock()
		return 0
	}
	snapshot := make([]*listener, len(current))
	copy(snapshot, current)
	for _, l := range snapshot {
		if l.once {
			b.removeLocked(name, l.sub)
		}
	}
	b.mu.Unlock()

	for _, l := range snapshot {
		b.call(name, l, payload)
	}
	return len(snapshot)
}

func (b *Bus) call(name string, l *listener, payload any) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"event", name,
				"subscription", uint64(l.sub),
				"panic", fmt.Sprint(r),
			)
		}
	}()
	l.handler(payload)
}

// removeLocked must be called with the lock held.
func (b *Bus) removeLocked(name string, sub Subscription) bool {
	current := b.listeners[name]
	for i, l := range current {
		if l.sub != sub {
			continue
		}
		next := make([]*listener, 0, len(current)-1)
		next = append(next, current[:i]...)
		next = append(next, current[i+1:]...)
		if len(next) == 0 {
			delete(b.listeners, name)
		} else {
			b.listeners[name] = next
		}
		return true
	}
	return false
}
