package metrics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/primus-go/internal/connection"
	"github.com/rickgao/primus-go/internal/transport"
)

// loopback opens as soon as it is asked to connect.
type loopback struct {
	mu sync.Mutex
	h  transport.Handler
}

func (l *loopback) factory(h transport.Handler) transport.Transport {
	l.mu.Lock()
	l.h = h
	l.mu.Unlock()
	return l
}

func (l *loopback) handler() transport.Handler {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.h
}

func (l *loopback) Connect(ctx context.Context, target string, opts transport.Options) error {
	l.handler().OnOpen()
	return nil
}

func (l *loopback) Write(transport.Frame) error { return nil }
func (l *loopback) Ping([]byte) error           { return nil }

func (l *loopback) End(code int, reason string) error {
	l.handler().OnEnd(code, reason, true)
	return nil
}

// sample returns the value of the named series whose labels include want.
func sample(t *testing.T, reg *prometheus.Registry, name string, want map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)

	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			matched := 0
			for _, lp := range m.GetLabel() {
				if want[lp.GetName()] == lp.GetValue() {
					matched++
				}
			}
			if matched != len(want) {
				continue
			}
			switch {
			case m.GetCounter() != nil:
				return m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				return m.GetGauge().GetValue()
			}
		}
	}
	return 0
}

func TestPlugin_RecordsConnectionActivity(t *testing.T) {
	reg := prometheus.NewRegistry()
	lb := &loopback{}

	c, err := connection.New(connection.Options{
		Target:    "ws://example.test",
		Transport: lb.factory,
		Plugins:   []connection.Plugin{New(reg, "test")},
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Shutdown(context.Background()) })

	require.Eventually(t, func() bool {
		return sample(t, reg, "test_events_total", map[string]string{"event": "open"}) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 2.0, sample(t, reg, "test_ready_state", nil))
	assert.Equal(t, 1.0, sample(t, reg, "test_online", nil))

	// invalid UTF-8 in a text frame fails to decode
	lb.handler().OnFrame(transport.Frame{Type: transport.TextFrame, Data: []byte{0xff}})
	require.Eventually(t, func() bool {
		return sample(t, reg, "test_errors_total", map[string]string{"kind": "decode"}) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, c.Close())
	require.Eventually(t, func() bool {
		return sample(t, reg, "test_events_total", map[string]string{"event": "end"}) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0.0, sample(t, reg, "test_ready_state", nil))
	assert.Equal(t, 1.0, sample(t, reg, "test_events_total", map[string]string{"event": "close"}))
}

func TestPlugin_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	lb := &loopback{}
	opts := connection.Options{
		Target:        "ws://example.test",
		Transport:     lb.factory,
		ManualConnect: true,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	opts.Plugins = []connection.Plugin{New(reg, "dup")}
	c, err := connection.New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Shutdown(context.Background()) })

	opts.Plugins = []connection.Plugin{New(reg, "dup")}
	_, err = connection.New(opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "register metrics")
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&connection.ProtocolViolationError{Code: 1008}, "protocol"},
		{fmt.Errorf("%w: bad json", connection.ErrDecodeFailure), "decode"},
		{connection.ErrEncodeFailure, "encode"},
		{fmt.Errorf("%w: refused", connection.ErrHandshakeFailed), "handshake"},
		{connection.ErrHeartbeatTimeout, "heartbeat"},
		{fmt.Errorf("connect: %w", connection.ErrNetworkUnavailable), "network"},
		{connection.ErrConnectionLost, "lost"},
		{connection.ErrCancelled, "cancelled"},
		{errors.New("something else"), "other"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorKind(tt.err))
		})
	}
}
