package connection

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rickgao/primus-go/internal/backoff"
	"github.com/rickgao/primus-go/internal/codec"
	"github.com/rickgao/primus-go/internal/reachability"
	"github.com/rickgao/primus-go/internal/timers"
	"github.com/rickgao/primus-go/internal/transport"
)

const testTarget = "ws://example.test/primus"

// fakeTransport records what the connection asks of it. Tests drive its
// handler directly to simulate the network.
type fakeTransport struct {
	h   transport.Handler
	net *fakeNet

	mu       sync.Mutex
	target   string
	opts     transport.Options
	frames   []transport.Frame
	pings    int
	ended    bool
	endCode  int
	endCause string
}

func (t *fakeTransport) Connect(ctx context.Context, target string, opts transport.Options) error {
	t.mu.Lock()
	t.target = target
	t.opts = opts
	t.mu.Unlock()
	return t.net.connectError()
}

func (t *fakeTransport) Write(f transport.Frame) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if limit := t.net.limit(); limit > 0 && len(t.frames) >= limit {
		return transport.ErrQueueFull
	}
	t.frames = append(t.frames, f)
	return nil
}

func (t *fakeTransport) Ping(payload []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pings++
	return nil
}

func (t *fakeTransport) End(code int, reason string) error {
	t.mu.Lock()
	t.ended = true
	t.endCode = code
	t.endCause = reason
	t.mu.Unlock()

	if !t.net.silent() {
		t.h.OnEnd(code, reason, true)
	}
	return nil
}

func (t *fakeTransport) written() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.frames))
	for _, f := range t.frames {
		out = append(out, string(f.Data))
	}
	return out
}

func (t *fakeTransport) pingCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pings
}

func (t *fakeTransport) wasEnded() (bool, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ended, t.endCode
}

// fakeNet is the transport factory.
type fakeNet struct {
	mu         sync.Mutex
	all        []*fakeTransport
	connectErr error
	writeLimit int  // writes accepted per transport, 0 = unlimited
	silentEnd  bool // End is never confirmed
}

func (n *fakeNet) factory(h transport.Handler) transport.Transport {
	n.mu.Lock()
	defer n.mu.Unlock()
	t := &fakeTransport{h: h, net: n}
	n.all = append(n.all, t)
	return t
}

func (n *fakeNet) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.all)
}

func (n *fakeNet) last() *fakeTransport {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.all) == 0 {
		return nil
	}
	return n.all[len(n.all)-1]
}

func (n *fakeNet) setWriteLimit(limit int) {
	n.mu.Lock()
	n.writeLimit = limit
	n.mu.Unlock()
}

func (n *fakeNet) limit() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.writeLimit
}

func (n *fakeNet) silent() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.silentEnd
}

func (n *fakeNet) connectError() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.connectErr
}

type recorded struct {
	name    string
	payload any
}

// recorder captures public events in emission order.
type recorder struct {
	mu  sync.Mutex
	log []recorded
}

func record(c *Conn) *recorder {
	r := &recorder{}
	for _, name := range PublicEvents {
		name := name
		c.On(name, func(p any) {
			r.mu.Lock()
			r.log = append(r.log, recorded{name: name, payload: p})
			r.mu.Unlock()
		})
	}
	return r
}

func (r *recorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.log))
	for _, e := range r.log {
		out = append(out, e.name)
	}
	return out
}

func (r *recorder) of(name string) []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []any
	for _, e := range r.log {
		if e.name == name {
			out = append(out, e.payload)
		}
	}
	return out
}

func (r *recorder) errs() []error {
	var out []error
	for _, p := range r.of(EventError) {
		out = append(out, p.(error))
	}
	return out
}

func (r *recorder) reconnecting() []ReconnectingEvent {
	var out []ReconnectingEvent
	for _, p := range r.of(EventReconnecting) {
		out = append(out, p.(ReconnectingEvent))
	}
	return out
}

func (r *recorder) closes() []CloseEvent {
	var out []CloseEvent
	for _, p := range r.of(EventClose) {
		out = append(out, p.(CloseEvent))
	}
	return out
}

func (r *recorder) ends() []EndEvent {
	var out []EndEvent
	for _, p := range r.of(EventEnd) {
		out = append(out, p.(EndEvent))
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	r.log = nil
	r.mu.Unlock()
}

type harness struct {
	t      *testing.T
	conn   *Conn
	net    *fakeNet
	clock  *timers.ManualClock
	reach  *reachability.Static
	events *recorder
}

func newHarness(t *testing.T, mutate ...func(*Options)) *harness {
	t.Helper()

	h := &harness{
		t:     t,
		net:   &fakeNet{},
		clock: timers.NewManualClock(time.Unix(1700000000, 0)),
		reach: reachability.NewStatic(true),
	}
	opts := Options{
		Target:        testTarget,
		ManualConnect: true,
		Transport:     h.net.factory,
		Reconnect: backoff.Options{
			Min:    time.Second,
			Max:    30 * time.Second,
			Factor: 2,
		},
		Reachability: h.reach,
		Clock:        h.clock,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, m := range mutate {
		m(&opts)
	}

	c, err := New(opts)
	require.NoError(t, err)
	h.conn = c
	h.events = record(c)
	h.settle()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = c.Shutdown(ctx)
	})
	return h
}

// settle waits until the loop has run everything queued so far, including
// tasks queued by those tasks.
func (h *harness) settle() {
	h.t.Helper()
	for i := 0; i < 100; i++ {
		remaining := make(chan int, 1)
		if !h.conn.post(func() { remaining <- h.conn.tasks.Len() }) {
			return
		}
		select {
		case n := <-remaining:
			if n == 0 {
				return
			}
		case <-time.After(2 * time.Second):
			h.t.Fatal("connection loop stalled")
		}
	}
	h.t.Fatal("connection loop never settled")
}

func (h *harness) advance(d time.Duration) {
	h.t.Helper()
	h.clock.Advance(d)
	h.settle()
}

// open opens the connection and accepts the handshake.
func (h *harness) open() *fakeTransport {
	h.t.Helper()
	require.NoError(h.t, h.conn.Open())
	h.settle()
	tr := h.net.last()
	require.NotNil(h.t, tr)
	tr.h.OnOpen()
	h.settle()
	require.Equal(h.t, Open, h.conn.ReadyState())
	return tr
}

// drop simulates the network dying under the current transport.
func (h *harness) drop() {
	h.t.Helper()
	h.net.last().h.OnEnd(transport.CloseAbnormal, "", false)
	h.settle()
}

// failAttempt makes the current connection attempt fail.
func (h *harness) failAttempt() {
	h.t.Helper()
	h.net.last().h.OnError(errors.New("connection refused"))
	h.settle()
}

func (h *harness) send(texts ...string) {
	h.t.Helper()
	for _, s := range texts {
		require.NoError(h.t, h.conn.Send(codec.Text(s)))
	}
	h.settle()
}

// recordingPlugin counts the events it sees.
type recordingPlugin struct {
	name      string
	attachErr error
	attached  *Conn
	opens     int
}

func (p *recordingPlugin) Name() string { return p.name }

func (p *recordingPlugin) Attach(c *Conn) error {
	if p.attachErr != nil {
		return p.attachErr
	}
	p.attached = c
	c.On(EventOpen, func(any) { p.opens++ })
	return nil
}
