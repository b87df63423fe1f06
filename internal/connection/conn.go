package connection

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/rickgao/primus-go/internal/backoff"
	"github.com/rickgao/primus-go/internal/codec"
	"github.com/rickgao/primus-go/internal/eventbus"
	"github.com/rickgao/primus-go/internal/heartbeat"
	"github.com/rickgao/primus-go/internal/queue"
	"github.com/rickgao/primus-go/internal/timers"
	"github.com/rickgao/primus-go/internal/transport"
)

const (
	taskQueueSize = 64
	outboxSize    = 64
)

// Conn is a self-healing connection. Create it with New.
type Conn struct {
	logger *slog.Logger
	bus    *eventbus.Bus
	tasks  *queue.Buffer[func()]
	outbox *queue.Buffer[Envelope]
	opts   atomic.Pointer[Options]

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	stateSnap   atomic.Int32
	onlineSnap  atomic.Bool
	stopped     atomic.Bool
	stopWatch   func()
	plugins     map[string]Plugin
	pluginOrder []string

	// Owned by the loop.
	state           ReadyState
	online          bool
	session         *session
	timers          *timers.Set
	policy          *backoff.Policy
	heartbeat       *heartbeat.Monitor
	awaitingNetwork bool
	exhausted       bool
	halted          bool
	closeCode       int
	closeReason     string
}

// New validates opts, starts the connection's loop and attaches plugins.
// Unless opts.ManualConnect is set, the connection starts opening at once.
func New(opts Options) (*Conn, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	opts = opts.withDefaults()

	logger := opts.Logger.With("component", "connection", "target", opts.Target)
	ctx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		logger:  logger,
		bus:     eventbus.New(logger),
		tasks:   queue.NewBuffer[func()](taskQueueSize),
		outbox:  queue.NewBuffer[Envelope](outboxSize),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		plugins: make(map[string]Plugin),
		online:  opts.Reachability.Online(),
	}
	c.opts.Store(&opts)
	c.onlineSnap.Store(c.online)
	c.timers = timers.NewSet(opts.Clock, func(task func()) { c.post(task) })
	c.configure(opts)

	c.bus.On(incomingOpen, func(any) { c.handleOpen() })
	c.bus.On(incomingData, func(p any) { c.handleFrame(p.(transport.Frame)) })
	c.bus.On(incomingPong, func(any) { c.heartbeat.Touch() })
	c.bus.On(incomingError, func(p any) { c.handleError(p.(error)) })
	c.bus.On(incomingEnd, func(p any) { c.handleEnd(p.(endInfo)) })

	for _, p := range opts.Plugins {
		name := p.Name()
		if _, dup := c.plugins[name]; dup {
			cancel()
			return nil, fmt.Errorf("plugin %q registered twice", name)
		}
		if err := p.Attach(c); err != nil {
			cancel()
			return nil, fmt.Errorf("attach plugin %s: %w", name, err)
		}
		c.plugins[name] = p
		c.pluginOrder = append(c.pluginOrder, name)
	}

	reach := opts.Reachability
	// The loop applies the source's current state, so a late notification
	// cannot overwrite a newer one.
	c.stopWatch = reach.Watch(func(bool) {
		c.post(func() { c.setOnline(reach.Online()) })
	})
	// catch a transition that happened before Watch
	c.post(func() { c.setOnline(reach.Online()) })

	go c.run()

	if !opts.ManualConnect {
		c.post(c.open)
	}
	return c, nil
}

// configure builds the per-options collaborators. Loop only, or before the
// loop starts.
func (c *Conn) configure(opts Options) {
	c.policy = backoff.New(opts.Reconnect)
	c.heartbeat = heartbeat.New(opts.Heartbeat, c.timers, c.sendHeartbeat, c.heartbeatExpired, c.logger)
}

func (c *Conn) run() {
	defer close(c.done)
	for {
		task, ok := c.tasks.Pop()
		if !ok {
			return
		}
		task()
	}
}

// post queues task on the loop. It returns false after Shutdown.
func (c *Conn) post(task func()) bool {
	return c.tasks.Push(task)
}

func (c *Conn) options() Options {
	return *c.opts.Load()
}

// Open starts a fresh session. It fails with ErrAlreadyActive unless the
// connection is closed.
func (c *Conn) Open() error {
	if c.stopped.Load() {
		return ErrShutdown
	}
	if c.ReadyState() != Closed {
		return ErrAlreadyActive
	}
	if !c.post(c.open) {
		return ErrShutdown
	}
	return nil
}

// Close ends the connection with a normal close status.
func (c *Conn) Close() error {
	return c.CloseWith(transport.CloseNormal, "")
}

// CloseWith ends the connection with the given close status. Closing an
// already closed connection is a no-op, except that a pending retry is
// cancelled.
func (c *Conn) CloseWith(code int, reason string) error {
	if c.stopped.Load() {
		return nil
	}
	c.post(func() { c.close(code, reason) })
	return nil
}

// Reconnect retries at once, skipping the backoff delay. It is only valid
// while the connection is closed after an unplanned disconnect; otherwise
// an error event with ErrNotReconnectable is emitted.
func (c *Conn) Reconnect() error {
	if !c.post(c.reconnectNow) {
		return ErrShutdown
	}
	return nil
}

// ForceReconnect drops the current session, whatever its state, and starts
// a new one with a fresh retry cycle.
func (c *Conn) ForceReconnect() error {
	if !c.post(c.forceReconnect) {
		return ErrShutdown
	}
	return nil
}

// Send writes m when the connection is writable and buffers it otherwise.
// Buffered messages are written in order once it becomes writable again.
func (c *Conn) Send(m codec.Message) error {
	if c.stopped.Load() {
		return ErrShutdown
	}
	env := Envelope{Message: m, EnqueuedAt: c.timers.Now()}
	if !c.post(func() { c.send(env) }) {
		return ErrShutdown
	}
	return nil
}

// SendPing sends a transport-level ping on the open session.
func (c *Conn) SendPing(payload []byte) error {
	if c.stopped.Load() {
		return ErrShutdown
	}
	if c.ReadyState() != Open {
		return transport.ErrNotOpen
	}
	c.post(func() {
		if c.state == Open {
			c.ping(payload)
		}
	})
	return nil
}

// On registers handler for event. Handlers run on the connection's loop and
// must not block.
func (c *Conn) On(event string, handler eventbus.Handler) eventbus.Subscription {
	return c.bus.On(event, handler)
}

// Once registers handler for the next emission of event only.
func (c *Conn) Once(event string, handler eventbus.Handler) eventbus.Subscription {
	return c.bus.Once(event, handler)
}

// Off removes a registration made with On or Once.
func (c *Conn) Off(event string, sub eventbus.Subscription) bool {
	return c.bus.Off(event, sub)
}

// ReadyState returns the current lifecycle phase.
func (c *Conn) ReadyState() ReadyState {
	return ReadyState(c.stateSnap.Load())
}

// Online reports the last known network state.
func (c *Conn) Online() bool {
	return c.onlineSnap.Load()
}

// Writable reports whether Send would write immediately.
func (c *Conn) Writable() bool {
	return c.Online() && c.ReadyState() == Open
}

// Buffered returns the number of messages waiting to be written.
func (c *Conn) Buffered() int {
	return c.outbox.Len()
}

// Target returns the configured server address.
func (c *Conn) Target() string {
	return c.options().Target
}

// Logger returns the connection's logger, for plugins.
func (c *Conn) Logger() *slog.Logger {
	return c.logger
}

// Plugin returns the attached plugin called name.
func (c *Conn) Plugin(name string) (Plugin, bool) {
	p, ok := c.plugins[name]
	return p, ok
}

// Plugins returns the names of the attached plugins in attach order.
func (c *Conn) Plugins() []string {
	out := make([]string, len(c.pluginOrder))
	copy(out, c.pluginOrder)
	return out
}

// Reconfigure applies fn to a copy of the options. It is only allowed while
// the connection is closed with nothing pending. Reachability, Clock,
// Logger and Plugins are fixed at construction and keep their values.
func (c *Conn) Reconfigure(fn func(*Options)) error {
	if c.stopped.Load() {
		return ErrShutdown
	}
	if c.ReadyState() != Closed {
		return ErrAlreadyActive
	}

	current := c.options()
	next := current
	fn(&next)
	next.Reachability = current.Reachability
	next.Clock = current.Clock
	next.Logger = current.Logger
	next.Plugins = current.Plugins
	if err := next.Validate(); err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}
	next = next.withDefaults()

	c.post(func() {
		if c.state != Closed || c.timers.Active(reconnectTimer) || c.awaitingNetwork {
			c.emitError(fmt.Errorf("reconfigure: %w", ErrAlreadyActive))
			return
		}
		c.opts.Store(&next)
		c.configure(next)
		c.logger.Info("connection reconfigured")
	})
	return nil
}

// Shutdown closes the connection without waiting for the transport to
// confirm, stops the loop and waits for it to exit or for ctx to expire.
// The Conn cannot be used afterwards.
func (c *Conn) Shutdown(ctx context.Context) error {
	if c.stopped.Swap(true) {
		return c.wait(ctx)
	}

	c.stopWatch()
	c.post(func() {
		c.shutdown()
		c.tasks.Close()
	})
	return c.wait(ctx)
}

func (c *Conn) wait(ctx context.Context) error {
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown: %w", ctx.Err())
	}
}
