package connection

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/primus-go/internal/codec"
	"github.com/rickgao/primus-go/internal/heartbeat"
	"github.com/rickgao/primus-go/internal/transport"
)

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr string
	}{
		{
			name:    "missing target",
			opts:    Options{Transport: (&fakeNet{}).factory},
			wantErr: "target is required",
		},
		{
			name:    "missing transport",
			opts:    Options{Target: testTarget},
			wantErr: "transport factory is required",
		},
		{
			name:    "negative timeout",
			opts:    Options{Target: testTarget, Transport: (&fakeNet{}).factory, Timeout: -time.Second},
			wantErr: "timeout must be >= 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opts)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestReadyState_String(t *testing.T) {
	assert.Equal(t, "CLOSED", Closed.String())
	assert.Equal(t, "CONNECTING", Connecting.String())
	assert.Equal(t, "OPEN", Open.String())
	assert.Equal(t, "CLOSING", Closing.String())
	assert.Equal(t, "ReadyState(9)", ReadyState(9).String())
}

func TestConn_AutoConnect(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.ManualConnect = false })

	require.Equal(t, 1, h.net.count())
	assert.Equal(t, Connecting, h.conn.ReadyState())
	assert.Equal(t, testTarget, h.net.last().target)
	assert.Equal(t, DefaultTimeout, h.net.last().opts.HandshakeTimeout)
}

func TestConn_OpenLifecycle(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, Closed, h.conn.ReadyState())
	assert.False(t, h.conn.Writable())

	require.NoError(t, h.conn.Open())
	h.settle()
	assert.Equal(t, Connecting, h.conn.ReadyState())
	assert.ErrorIs(t, h.conn.Open(), ErrAlreadyActive)

	h.net.last().h.OnOpen()
	h.settle()

	assert.Equal(t, Open, h.conn.ReadyState())
	assert.True(t, h.conn.Writable())
	assert.Equal(t, []string{EventOpen}, h.events.names())
	assert.ErrorIs(t, h.conn.Open(), ErrAlreadyActive)
	assert.Equal(t, 1, h.net.count())
}

func TestConn_BufferedSendsFlushInOrder(t *testing.T) {
	h := newHarness(t)

	h.send("A", "B", "C")
	assert.Equal(t, 3, h.conn.Buffered())

	tr := h.open()

	assert.Equal(t, []string{"A", "B", "C"}, tr.written())
	assert.Equal(t, 0, h.conn.Buffered())
}

func TestConn_SendWhileOpenWritesImmediately(t *testing.T) {
	h := newHarness(t)
	tr := h.open()

	h.send("hello")

	assert.Equal(t, []string{"hello"}, tr.written())
	assert.Equal(t, 0, h.conn.Buffered())
}

func TestConn_OfflineBuffersUntilOnline(t *testing.T) {
	h := newHarness(t)
	tr := h.open()

	h.reach.Set(false)
	h.settle()

	assert.Equal(t, Open, h.conn.ReadyState())
	assert.False(t, h.conn.Online())
	assert.False(t, h.conn.Writable())

	h.send("A", "B")
	assert.Empty(t, tr.written())
	assert.Equal(t, 2, h.conn.Buffered())

	h.reach.Set(true)
	h.settle()

	assert.Equal(t, []string{"A", "B"}, tr.written())
	assert.Equal(t, 0, h.conn.Buffered())
	assert.Equal(t, []string{EventOpen, EventOffline, EventOnline}, h.events.names())
}

func TestConn_DrainStopsOnWriteFailure(t *testing.T) {
	h := newHarness(t)
	h.send("A", "B", "C")

	h.net.setWriteLimit(1)
	tr := h.open()

	assert.Equal(t, []string{"A"}, tr.written())
	assert.Equal(t, 2, h.conn.Buffered())

	h.net.setWriteLimit(0)
	h.send("D")

	assert.Equal(t, []string{"A", "B", "C", "D"}, tr.written())
	assert.Equal(t, 0, h.conn.Buffered())
}

func TestConn_EncodeFailureReported(t *testing.T) {
	h := newHarness(t)
	tr := h.open()

	require.NoError(t, h.conn.Send(codec.Text(string([]byte{0xff, 0xfe}))))
	h.settle()

	require.Len(t, h.events.errs(), 1)
	assert.ErrorIs(t, h.events.errs()[0], ErrEncodeFailure)
	assert.Empty(t, tr.written())
	assert.Equal(t, 0, h.conn.Buffered())
}

func TestConn_DecodeFailureKeepsOpen(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.Codec = codec.JSON{} })
	tr := h.open()

	tr.h.OnFrame(transport.Frame{Type: transport.TextFrame, Data: []byte("not json")})
	h.settle()

	require.Len(t, h.events.errs(), 1)
	assert.ErrorIs(t, h.events.errs()[0], ErrDecodeFailure)
	assert.Equal(t, Open, h.conn.ReadyState())

	frame, err := codec.JSON{}.Encode(codec.Text("hi"))
	require.NoError(t, err)
	tr.h.OnFrame(frame)
	h.settle()

	data := h.events.of(EventData)
	require.Len(t, data, 1)
	assert.True(t, codec.Text("hi").Equal(data[0].(codec.Message)))
	assert.Empty(t, h.events.reconnecting())
}

func TestConn_ReconnectDelaySequence(t *testing.T) {
	h := newHarness(t)
	h.open()
	h.drop()

	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second,
		30 * time.Second,
	}
	for i, delay := range want {
		got := h.events.reconnecting()
		require.Len(t, got, i+1)
		assert.Equal(t, ReconnectingEvent{Attempt: i + 1, Delay: delay}, got[i])

		h.advance(delay)
		require.Equal(t, i+2, h.net.count(), "retry %d did not connect", i+1)
		h.failAttempt()
	}
}

func TestConn_MaxAttemptsEndsCycle(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.Reconnect.MaxAttempts = 3 })
	h.open()
	h.drop()

	for _, delay := range []time.Duration{time.Second, 2 * time.Second, 4 * time.Second} {
		assert.Equal(t, []time.Duration{delay}, h.clock.Pending())
		h.advance(delay)
		h.failAttempt()
	}

	assert.Len(t, h.events.reconnecting(), 3)
	require.Len(t, h.events.ends(), 1)
	assert.True(t, h.events.ends()[0].Exhausted)
	assert.Empty(t, h.clock.Pending(), "no retry after the policy gave up")
	assert.Equal(t, Closed, h.conn.ReadyState())
	assert.Equal(t, 4, h.net.count())

	h.advance(time.Minute)
	assert.Equal(t, 4, h.net.count())

	// the application can still ask for another cycle
	require.NoError(t, h.conn.Reconnect())
	h.settle()
	assert.Equal(t, 5, h.net.count())
	assert.Equal(t, Connecting, h.conn.ReadyState())
}

func TestConn_OpenResetsAttempts(t *testing.T) {
	h := newHarness(t)
	h.open()
	h.drop()

	h.advance(time.Second)
	h.failAttempt()
	h.advance(2 * time.Second)

	h.net.last().h.OnOpen()
	h.settle()

	reconnects := h.events.of(EventReconnect)
	require.Len(t, reconnects, 1)
	assert.Equal(t, ReconnectEvent{Attempts: 2}, reconnects[0])

	h.drop()
	got := h.events.reconnecting()
	assert.Equal(t, ReconnectingEvent{Attempt: 1, Delay: time.Second}, got[len(got)-1])
}

func TestConn_UnplannedDropEventOrder(t *testing.T) {
	h := newHarness(t)
	h.open()
	h.events.reset()

	h.drop()

	assert.Equal(t, []string{EventError, EventClose, EventReconnecting}, h.events.names())
	assert.ErrorIs(t, h.events.errs()[0], ErrConnectionLost)
	assert.Equal(t, CloseEvent{Code: transport.CloseAbnormal}, h.events.closes()[0])
}

func TestConn_CloseTwiceEmitsOneClose(t *testing.T) {
	h := newHarness(t)
	tr := h.open()
	h.send("A")

	require.NoError(t, h.conn.Close())
	require.NoError(t, h.conn.Close())
	h.settle()
	require.NoError(t, h.conn.Close())
	h.settle()

	assert.Equal(t, []CloseEvent{{Code: transport.CloseNormal, WasClean: true}}, h.events.closes())
	assert.Len(t, h.events.ends(), 1)
	assert.Empty(t, h.events.errs())
	assert.Equal(t, Closed, h.conn.ReadyState())

	ended, code := tr.wasEnded()
	assert.True(t, ended)
	assert.Equal(t, transport.CloseNormal, code)
}

func TestConn_CloseWaitsForTransport(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.Timeout = 3 * time.Second })
	h.net.silentEnd = true
	h.open()

	require.NoError(t, h.conn.CloseWith(4000, "bye"))
	h.settle()
	assert.Equal(t, Closing, h.conn.ReadyState())
	assert.Empty(t, h.events.closes())

	h.advance(3 * time.Second)
	assert.Equal(t, Closed, h.conn.ReadyState())
	assert.Equal(t, []CloseEvent{{Code: 4000, Reason: "bye", WasClean: false}}, h.events.closes())
}

func TestConn_CloseCancelsPendingRetry(t *testing.T) {
	h := newHarness(t)
	h.open()
	h.drop()
	require.Len(t, h.events.reconnecting(), 1)

	require.NoError(t, h.conn.Close())
	h.settle()

	assert.Len(t, h.events.closes(), 1, "only the close from the drop")
	require.Len(t, h.events.ends(), 1)
	assert.False(t, h.events.ends()[0].Exhausted)
	assert.Empty(t, h.clock.Pending())

	h.advance(time.Minute)
	assert.Equal(t, 1, h.net.count())
}

func TestConn_CloseWhileConnectingIsCancelled(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.conn.Open())
	h.settle()

	require.NoError(t, h.conn.Close())
	h.settle()

	require.Len(t, h.events.errs(), 1)
	assert.ErrorIs(t, h.events.errs()[0], ErrCancelled)
	assert.Len(t, h.events.ends(), 1)
	assert.Empty(t, h.events.reconnecting())
	assert.Equal(t, Closed, h.conn.ReadyState())
}

func TestConn_EndDiscardsBuffer(t *testing.T) {
	h := newHarness(t)
	h.open()
	h.reach.Set(false)
	h.settle()
	h.send("A", "B")

	require.NoError(t, h.conn.Close())
	h.settle()

	require.Len(t, h.events.ends(), 1)
	assert.Equal(t, 2, h.events.ends()[0].Discarded)
	assert.Equal(t, 0, h.conn.Buffered())
}

func TestConn_FailureTriggersSameReconnect(t *testing.T) {
	tests := []struct {
		name    string
		trigger func(h *harness, tr *fakeTransport)
		wantErr error
	}{
		{
			name: "transport error",
			trigger: func(h *harness, tr *fakeTransport) {
				tr.h.OnError(errors.New("read: connection reset"))
				h.settle()
			},
			wantErr: ErrConnectionLost,
		},
		{
			name: "heartbeat timeout",
			trigger: func(h *harness, tr *fakeTransport) {
				h.advance(10 * time.Second)
				require.Equal(t, 1, tr.pingCount())
				h.advance(5 * time.Second)
			},
			wantErr: ErrHeartbeatTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, func(o *Options) {
				o.Heartbeat = heartbeat.Options{Interval: 10 * time.Second, Timeout: 5 * time.Second}
			})
			tr := h.open()

			tt.trigger(h, tr)

			require.Len(t, h.events.errs(), 1)
			assert.ErrorIs(t, h.events.errs()[0], tt.wantErr)
			require.Len(t, h.events.closes(), 1)
			assert.False(t, h.events.closes()[0].WasClean)
			assert.Equal(t, []ReconnectingEvent{{Attempt: 1, Delay: time.Second}}, h.events.reconnecting())
			assert.Equal(t, []time.Duration{time.Second}, h.clock.Pending(), "heartbeat timers are gone")
			assert.Equal(t, Closed, h.conn.ReadyState())

			ended, _ := tr.wasEnded()
			assert.True(t, ended)
		})
	}
}

func TestConn_HeartbeatTimeoutEvent(t *testing.T) {
	h := newHarness(t, func(o *Options) {
		o.Heartbeat = heartbeat.Options{Interval: 10 * time.Second, Timeout: 5 * time.Second}
	})
	h.open()

	h.advance(10 * time.Second)
	h.advance(5 * time.Second)

	timeouts := h.events.of(EventTimeout)
	require.Len(t, timeouts, 1)
	assert.Equal(t, TimeoutEvent{Stage: TimeoutHeartbeat, After: 5 * time.Second}, timeouts[0])
}

func TestConn_PongKeepsAlive(t *testing.T) {
	h := newHarness(t, func(o *Options) {
		o.Heartbeat = heartbeat.Options{Interval: 10 * time.Second, Timeout: 5 * time.Second}
	})
	tr := h.open()

	for i := 1; i <= 3; i++ {
		h.advance(10 * time.Second)
		require.Equal(t, i, tr.pingCount())
		tr.h.OnPong(nil)
		h.settle()
	}

	assert.Equal(t, Open, h.conn.ReadyState())
	assert.Empty(t, h.events.of(EventTimeout))
}

func TestConn_HandshakeTimeout(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.Timeout = 3 * time.Second })
	require.NoError(t, h.conn.Open())
	h.settle()
	tr := h.net.last()

	h.advance(3 * time.Second)

	assert.Equal(t, []string{EventTimeout, EventError, EventReconnecting}, h.events.names())
	assert.Equal(t, TimeoutEvent{Stage: TimeoutHandshake, After: 3 * time.Second}, h.events.of(EventTimeout)[0])
	assert.ErrorIs(t, h.events.errs()[0], ErrHandshakeFailed)
	ended, _ := tr.wasEnded()
	assert.True(t, ended)
}

func TestConn_ConnectErrorIsHandshakeFailure(t *testing.T) {
	h := newHarness(t)
	h.net.connectErr = errors.New("bad target")

	require.NoError(t, h.conn.Open())
	h.settle()

	require.Len(t, h.events.errs(), 1)
	assert.ErrorIs(t, h.events.errs()[0], ErrHandshakeFailed)
	assert.Len(t, h.events.reconnecting(), 1)
}

func TestConn_StaleCallbacksIgnored(t *testing.T) {
	h := newHarness(t)
	old := h.open()

	require.NoError(t, h.conn.ForceReconnect())
	h.settle()
	require.Equal(t, 2, h.net.count())
	assert.Equal(t, Connecting, h.conn.ReadyState())

	old.h.OnOpen()
	old.h.OnFrame(transport.Frame{Type: transport.TextFrame, Data: []byte("late")})
	old.h.OnEnd(transport.CloseAbnormal, "", false)
	h.settle()

	assert.Equal(t, Connecting, h.conn.ReadyState())
	assert.Empty(t, h.events.of(EventData))
	assert.Empty(t, h.events.reconnecting())

	h.net.last().h.OnOpen()
	h.settle()
	assert.Equal(t, []string{EventOpen, EventClose, EventOpen}, h.events.names())
}

func TestConn_ForceReconnectResetsAttempts(t *testing.T) {
	h := newHarness(t)
	h.open()
	h.drop()
	h.advance(time.Second)
	h.failAttempt()
	require.Len(t, h.events.reconnecting(), 2)

	require.NoError(t, h.conn.ForceReconnect())
	h.settle()

	assert.Equal(t, 3, h.net.count())
	assert.Equal(t, []time.Duration{DefaultTimeout}, h.clock.Pending(), "only the handshake timer")

	h.net.last().h.OnOpen()
	h.settle()
	assert.Empty(t, h.events.of(EventReconnect))
}

func TestConn_ForceReconnectWhileClosing(t *testing.T) {
	h := newHarness(t)
	h.net.silentEnd = true
	h.net.setWriteLimit(1)
	h.open()
	h.send("A", "B")
	require.Equal(t, 1, h.conn.Buffered())

	require.NoError(t, h.conn.Close())
	h.settle()
	require.Equal(t, Closing, h.conn.ReadyState())

	require.NoError(t, h.conn.ForceReconnect())
	h.settle()

	assert.Equal(t, Connecting, h.conn.ReadyState())
	assert.Equal(t, 2, h.net.count())
	assert.Empty(t, h.events.ends())
	assert.Equal(t, []CloseEvent{{Code: transport.CloseGoingAway, Reason: reasonReconnect}}, h.events.closes())
	assert.Equal(t, 1, h.conn.Buffered())
	assert.Equal(t, []time.Duration{DefaultTimeout}, h.clock.Pending(), "close timer cleared")

	tr := h.net.last()
	tr.h.OnOpen()
	h.settle()
	assert.Equal(t, []string{"B"}, tr.written())
	assert.Equal(t, 0, h.conn.Buffered())
}

func TestConn_ForceReconnectWhileConnecting(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.conn.Open())
	h.settle()
	first := h.net.last()

	require.NoError(t, h.conn.ForceReconnect())
	h.settle()

	ended, _ := first.wasEnded()
	assert.True(t, ended)
	assert.Equal(t, 2, h.net.count())
	assert.Equal(t, Connecting, h.conn.ReadyState())
	assert.Empty(t, h.events.closes())
	assert.Empty(t, h.events.ends())
}

func TestConn_ReconnectBypassesDelay(t *testing.T) {
	h := newHarness(t)
	h.open()
	h.drop()
	require.Equal(t, []time.Duration{time.Second}, h.clock.Pending())

	require.NoError(t, h.conn.Reconnect())
	h.settle()

	assert.Equal(t, 2, h.net.count())
	assert.Equal(t, Connecting, h.conn.ReadyState())
	assert.Equal(t, []time.Duration{DefaultTimeout}, h.clock.Pending())
}

func TestConn_ReconnectRequiresUnplannedClose(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.conn.Reconnect())
	h.settle()
	require.Len(t, h.events.errs(), 1)
	assert.ErrorIs(t, h.events.errs()[0], ErrNotReconnectable)

	h.open()
	require.NoError(t, h.conn.Reconnect())
	h.settle()
	assert.Len(t, h.events.errs(), 2)
	assert.Equal(t, 1, h.net.count())
}

func TestConn_CleanRemoteClose(t *testing.T) {
	tests := []struct {
		name      string
		reconnect bool
		wantClose CloseEvent
		wantRetry bool
	}{
		{
			name:      "terminal by default",
			wantClose: CloseEvent{Code: transport.CloseNormal, Reason: "bye", WasClean: true},
		},
		{
			name:      "reconnect when configured",
			reconnect: true,
			wantClose: CloseEvent{Code: transport.CloseNormal, Reason: "bye"},
			wantRetry: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, func(o *Options) { o.ReconnectOnCleanClose = tt.reconnect })
			tr := h.open()

			tr.h.OnEnd(transport.CloseNormal, "bye", true)
			h.settle()

			assert.Equal(t, []CloseEvent{tt.wantClose}, h.events.closes())
			assert.Empty(t, h.events.errs())
			if tt.wantRetry {
				assert.Len(t, h.events.reconnecting(), 1)
				assert.Empty(t, h.events.ends())
			} else {
				assert.Empty(t, h.events.reconnecting())
				assert.Len(t, h.events.ends(), 1)
			}
		})
	}
}

func TestConn_ProtocolViolation(t *testing.T) {
	h := newHarness(t)
	tr := h.open()

	tr.h.OnEnd(transport.ClosePolicyViolation, "not allowed", true)
	h.settle()

	require.Len(t, h.events.errs(), 1)
	var pv *ProtocolViolationError
	require.ErrorAs(t, h.events.errs()[0], &pv)
	assert.Equal(t, transport.ClosePolicyViolation, pv.Code)
	assert.Equal(t, "not allowed", pv.Reason)
	assert.Len(t, h.events.reconnecting(), 1)
}

func TestConn_OpenWhileOffline(t *testing.T) {
	h := newHarness(t)
	h.reach.Set(false)
	h.settle()

	require.NoError(t, h.conn.Open())
	h.settle()

	require.Len(t, h.events.errs(), 1)
	assert.ErrorIs(t, h.events.errs()[0], ErrNetworkUnavailable)
	assert.Equal(t, Closed, h.conn.ReadyState())
	assert.Equal(t, 0, h.net.count())
	assert.Empty(t, h.clock.Pending())

	h.reach.Set(true)
	h.settle()

	require.Equal(t, 1, h.net.count())
	h.net.last().h.OnOpen()
	h.settle()
	assert.Equal(t, Open, h.conn.ReadyState())
	assert.Empty(t, h.events.of(EventReconnect), "waiting for the network is not a retry")
}

func TestConn_OnlineFollowsLatestState(t *testing.T) {
	h := newHarness(t)
	h.reach.Set(false)
	h.reach.Set(true)
	h.reach.Set(false)
	h.settle()

	assert.False(t, h.conn.Online())
	assert.Len(t, h.events.of(EventOffline), 1)
	assert.Empty(t, h.events.of(EventOnline))
}

func TestConn_RetryWhileOfflineWaitsForNetwork(t *testing.T) {
	h := newHarness(t)
	h.open()
	h.reach.Set(false)
	h.settle()
	h.drop()

	h.advance(time.Second)
	assert.Equal(t, 1, h.net.count())
	assert.ErrorIs(t, h.events.errs()[len(h.events.errs())-1], ErrNetworkUnavailable)
	assert.Empty(t, h.clock.Pending())

	h.reach.Set(true)
	h.settle()
	assert.Equal(t, 2, h.net.count())
	assert.Equal(t, Connecting, h.conn.ReadyState())
}

func TestConn_SendPing(t *testing.T) {
	h := newHarness(t)
	assert.ErrorIs(t, h.conn.SendPing(nil), transport.ErrNotOpen)

	tr := h.open()
	require.NoError(t, h.conn.SendPing([]byte("are you there")))
	h.settle()
	assert.Equal(t, 1, tr.pingCount())
}

func TestConn_OnceAndOff(t *testing.T) {
	h := newHarness(t)

	var once, always int
	h.conn.Once(EventOpen, func(any) { once++ })
	sub := h.conn.On(EventOpen, func(any) { always++ })

	h.open()
	require.NoError(t, h.conn.ForceReconnect())
	h.settle()
	h.net.last().h.OnOpen()
	h.settle()

	assert.Equal(t, 1, once)
	assert.Equal(t, 2, always)

	assert.True(t, h.conn.Off(EventOpen, sub))
	assert.False(t, h.conn.Off(EventOpen, sub))
}

func TestConn_Plugins(t *testing.T) {
	a := &recordingPlugin{name: "a"}
	b := &recordingPlugin{name: "b"}
	h := newHarness(t, func(o *Options) { o.Plugins = []Plugin{a, b} })

	assert.Equal(t, []string{"a", "b"}, h.conn.Plugins())
	got, ok := h.conn.Plugin("b")
	require.True(t, ok)
	assert.Same(t, b, got)
	assert.Same(t, h.conn, a.attached)

	h.open()
	assert.Equal(t, 1, a.opens)
}

func TestConn_PluginErrors(t *testing.T) {
	net := &fakeNet{}
	base := Options{Target: testTarget, Transport: net.factory, ManualConnect: true}

	opts := base
	opts.Plugins = []Plugin{&recordingPlugin{name: "x", attachErr: errors.New("boom")}}
	_, err := New(opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "attach plugin x")

	opts = base
	opts.Plugins = []Plugin{&recordingPlugin{name: "x"}, &recordingPlugin{name: "x"}}
	_, err = New(opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "registered twice")
}

func TestConn_Reconfigure(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.conn.Reconfigure(func(o *Options) {
		o.Target = "ws://other.test/primus"
		o.Reconnect.Min = 2 * time.Second
	}))
	tr := h.open()
	assert.Equal(t, "ws://other.test/primus", tr.target)
	assert.Equal(t, "ws://other.test/primus", h.conn.Target())

	assert.ErrorIs(t, h.conn.Reconfigure(func(o *Options) {}), ErrAlreadyActive)

	h.drop()
	assert.Equal(t, []ReconnectingEvent{{Attempt: 1, Delay: 2 * time.Second}}, h.events.reconnecting())
}

func TestConn_ReconfigureRejectsInvalid(t *testing.T) {
	h := newHarness(t)

	err := h.conn.Reconfigure(func(o *Options) { o.Target = "" })
	require.Error(t, err)
	assert.Equal(t, testTarget, h.conn.Target())
}

func TestConn_Shutdown(t *testing.T) {
	h := newHarness(t)
	h.open()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.conn.Shutdown(ctx))
	require.NoError(t, h.conn.Shutdown(ctx))

	assert.Equal(t, Closed, h.conn.ReadyState())
	assert.Equal(t, []CloseEvent{{Code: transport.CloseGoingAway, Reason: "shutdown", WasClean: false}}, h.events.closes())
	assert.Len(t, h.events.ends(), 1)

	assert.ErrorIs(t, h.conn.Send(codec.Text("late")), ErrShutdown)
	assert.ErrorIs(t, h.conn.Open(), ErrShutdown)
	assert.ErrorIs(t, h.conn.Reconnect(), ErrShutdown)
	assert.NoError(t, h.conn.Close())
}
