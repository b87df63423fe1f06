package websocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/primus-go/internal/transport"
)

// controlQueueSize bounds queued ping and close frames.
const controlQueueSize = 4

// control is a ping or close frame for the writer goroutine.
type control struct {
	msgType int
	data    []byte
}

// Transport is one WebSocket connection. Every socket write happens on its
// writer goroutine, so callers never wait on the network.
type Transport struct {
	cfg     Config
	handler transport.Handler
	logger  *slog.Logger

	send    chan transport.Frame
	control chan control
	done    chan struct{}

	mu        sync.Mutex
	conn      *websocket.Conn
	cancel    context.CancelFunc
	started   bool
	ending    bool
	endCode   int
	endReason string

	endOnce sync.Once
}

// NewFactory returns a transport.Factory building WebSocket transports.
func NewFactory(cfg Config, logger *slog.Logger) transport.Factory {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	return func(h transport.Handler) transport.Transport {
		return New(cfg, h, logger)
	}
}

// New creates a transport reporting to h.
func New(cfg Config, h transport.Handler, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	return &Transport{
		cfg:     cfg,
		handler: h,
		logger:  logger,
		send:    make(chan transport.Frame, cfg.QueueSize),
		control: make(chan control, controlQueueSize),
		done:    make(chan struct{}),
	}
}

// Connect starts dialing target in the background.
func (t *Transport) Connect(ctx context.Context, target string, opts transport.Options) error {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return errors.New("transport already started")
	}
	t.started = true
	ctx, t.cancel = context.WithCancel(ctx)
	t.mu.Unlock()

	dialer := t.cfg.dialer(opts.HandshakeTimeout, opts.Hints)
	go t.dial(ctx, dialer, target, opts)
	return nil
}

func (t *Transport) dial(ctx context.Context, dialer *websocket.Dialer, target string, opts transport.Options) {
	conn, resp, err := dialer.DialContext(ctx, target, opts.Header)
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("%w (http status %d)", err, resp.StatusCode)
		}
		t.mu.Lock()
		ending, code, reason := t.ending, t.endCode, t.endReason
		t.mu.Unlock()

		if ending {
			t.finish(code, reason, true)
			return
		}
		t.handler.OnError(fmt.Errorf("dial websocket: %w", err))
		t.finish(transport.CloseAbnormal, "", false)
		return
	}

	t.mu.Lock()
	if t.ending {
		code, reason := t.endCode, t.endReason
		t.mu.Unlock()
		_ = conn.Close()
		t.finish(code, reason, true)
		return
	}
	t.conn = conn
	t.mu.Unlock()

	conn.SetPongHandler(func(data string) error {
		t.handler.OnPong([]byte(data))
		return nil
	})

	t.logger.Debug("websocket connected", "url", target, "subprotocol", conn.Subprotocol())
	t.handler.OnOpen()

	// started after OnOpen so an immediate drop cannot be reported first
	go t.writeLoop(conn)
	go t.readLoop(conn)
}

// Write queues f for the writer goroutine.
func (t *Transport) Write(f transport.Frame) error {
	t.mu.Lock()
	open := t.conn != nil && !t.ending
	t.mu.Unlock()
	if !open {
		return transport.ErrNotOpen
	}

	select {
	case t.send <- f:
		return nil
	case <-t.done:
		return transport.ErrNotOpen
	default:
		return transport.ErrQueueFull
	}
}

// Ping queues a ping control frame.
func (t *Transport) Ping(payload []byte) error {
	t.mu.Lock()
	open := t.conn != nil && !t.ending
	t.mu.Unlock()
	if !open {
		return transport.ErrNotOpen
	}

	select {
	case t.control <- control{msgType: websocket.PingMessage, data: payload}:
		return nil
	case <-t.done:
		return transport.ErrNotOpen
	default:
		return transport.ErrQueueFull
	}
}

// End starts the closing handshake. The socket is dropped if the peer does
// not answer within CloseGrace.
func (t *Transport) End(code int, reason string) error {
	t.mu.Lock()
	if t.ending {
		t.mu.Unlock()
		return nil
	}
	t.ending = true
	t.endCode = code
	t.endReason = reason
	conn := t.conn
	cancel := t.cancel
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn == nil {
		if cancel == nil {
			// never connected
			t.finish(code, reason, true)
		}
		return nil
	}

	msg := websocket.FormatCloseMessage(code, reason)
	select {
	case t.control <- control{msgType: websocket.CloseMessage, data: msg}:
		return nil
	default:
		_ = conn.Close()
		return fmt.Errorf("write close: %w", transport.ErrQueueFull)
	}
}

func (t *Transport) writeLoop(conn *websocket.Conn) {
	closeSent := false
	for {
		select {
		case <-t.done:
			return
		case c := <-t.control:
			if closeSent {
				continue
			}
			if err := conn.WriteControl(c.msgType, c.data, time.Now().Add(t.cfg.WriteTimeout)); err != nil {
				if c.msgType != websocket.CloseMessage {
					t.handler.OnError(fmt.Errorf("write ping: %w", err))
				}
				_ = conn.Close()
				return
			}
			if c.msgType == websocket.CloseMessage {
				closeSent = true
				time.AfterFunc(t.cfg.CloseGrace, func() { _ = conn.Close() })
			}
		case f := <-t.send:
			if closeSent {
				continue
			}
			msgType := websocket.TextMessage
			if f.Type == transport.BinaryFrame {
				msgType = websocket.BinaryMessage
			}

			_ = conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout))
			if err := conn.WriteMessage(msgType, f.Data); err != nil {
				t.handler.OnError(fmt.Errorf("write websocket: %w", err))
				// the read loop observes the closed socket and ends the transport
				_ = conn.Close()
				return
			}
		}
	}
}

func (t *Transport) readLoop(conn *websocket.Conn) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			t.readFailed(err)
			_ = conn.Close()
			return
		}

		switch msgType {
		case websocket.TextMessage:
			t.handler.OnFrame(transport.Frame{Type: transport.TextFrame, Data: data})
		case websocket.BinaryMessage:
			t.handler.OnFrame(transport.Frame{Type: transport.BinaryFrame, Data: data})
		}
	}
}

func (t *Transport) readFailed(err error) {
	t.mu.Lock()
	ending, code, reason := t.ending, t.endCode, t.endReason
	t.mu.Unlock()

	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		t.finish(ce.Code, ce.Text, ce.Code != websocket.CloseAbnormalClosure)
		return
	}
	if ending {
		t.finish(code, reason, true)
		return
	}

	t.handler.OnError(fmt.Errorf("read websocket: %w", err))
	t.finish(transport.CloseAbnormal, "", false)
}

// finish reports OnEnd exactly once and stops the writer.
func (t *Transport) finish(code int, reason string, wasClean bool) {
	t.endOnce.Do(func() {
		close(t.done)
		t.logger.Debug("websocket ended", "code", code, "reason", reason, "clean", wasClean)
		t.handler.OnEnd(code, reason, wasClean)
	})
}
