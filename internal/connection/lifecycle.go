package connection

import (
	"fmt"

	"github.com/rickgao/primus-go/internal/transport"
)

// Everything in this file runs on the loop.

const (
	handshakeTimer = "connection.handshake"
	reconnectTimer = "connection.reconnect"
	closeTimer     = "connection.close"

	reasonReconnect = "reconnect"
	reasonShutdown  = "shutdown"
)

func (c *Conn) setState(s ReadyState) {
	if c.state == s {
		return
	}
	c.logger.Debug("ready state changed", "from", c.state, "to", s)
	c.state = s
	c.stateSnap.Store(int32(s))
}

func (c *Conn) writable() bool {
	return c.online && c.state == Open
}

func (c *Conn) emitError(err error) {
	c.logger.Warn("connection error", "state", c.state, "error", err)
	c.bus.Emit(EventError, err)
}

func (c *Conn) open() {
	if c.state != Closed {
		c.emitError(ErrAlreadyActive)
		return
	}
	c.timers.Clear(reconnectTimer)
	c.awaitingNetwork = false
	c.exhausted = false
	c.policy.Reset()
	c.connect()
}

// connect starts a new session from Closed. While offline it only records
// that a connect is owed; coming back online pays it.
func (c *Conn) connect() {
	if c.halted {
		return
	}
	if !c.online {
		c.awaitingNetwork = true
		c.emitError(fmt.Errorf("connect: %w", ErrNetworkUnavailable))
		return
	}
	c.awaitingNetwork = false

	opts := c.options()
	s := newSession(c, opts.Transport)
	c.session = s
	c.setState(Connecting)
	c.logger.Info("connecting", "session", s.id, "attempt", c.policy.Attempt())

	c.timers.Schedule(handshakeTimer, opts.Timeout, c.handshakeExpired)
	c.bus.Emit(outgoingOpen, opts.Target)
	if err := s.transport.Connect(c.ctx, opts.Target, opts.transportOptions()); err != nil {
		c.fail(fmt.Errorf("%w: %w", ErrHandshakeFailed, err), transport.CloseAbnormal, "")
	}
}

func (c *Conn) handleOpen() {
	if c.state != Connecting {
		return
	}
	c.timers.Clear(handshakeTimer)
	c.setState(Open)
	attempts := c.policy.Reset()
	c.exhausted = false
	c.heartbeat.Start()
	c.logger.Info("connection open", "session", c.session.id, "attempts", attempts)

	c.bus.Emit(EventOpen, nil)
	if attempts > 0 {
		c.bus.Emit(EventReconnect, ReconnectEvent{Attempts: attempts})
	}
	c.drain()
}

func (c *Conn) handleFrame(f transport.Frame) {
	if c.state != Open {
		return
	}
	c.heartbeat.Touch()

	msg, err := c.options().Codec.Decode(f)
	if err != nil {
		c.emitError(fmt.Errorf("%w: %w", ErrDecodeFailure, err))
		return
	}
	c.bus.Emit(EventData, msg)
}

func (c *Conn) handleError(err error) {
	switch c.state {
	case Connecting:
		c.fail(fmt.Errorf("%w: %w", ErrHandshakeFailed, err), transport.CloseAbnormal, "")
	case Open:
		c.fail(fmt.Errorf("%w: %w", ErrConnectionLost, err), transport.CloseAbnormal, "")
	default:
		// Closing: the end callback finishes the job
		c.logger.Debug("transport error ignored", "state", c.state, "error", err)
	}
}

func (c *Conn) handleEnd(e endInfo) {
	if c.session != nil {
		c.session.ended = true
	}

	switch c.state {
	case Closing:
		c.finishClose(e.wasClean)
	case Connecting:
		err := fmt.Errorf("%w: closed with %d (%s)", ErrHandshakeFailed, e.code, transport.CloseText(e.code))
		c.fail(err, e.code, e.reason)
	case Open:
		switch e.class() {
		case transport.ClassClean:
			if e.wasClean && !c.options().ReconnectOnCleanClose {
				c.remoteClosed(e)
				return
			}
			c.fail(nil, e.code, e.reason)
		case transport.ClassProtocol:
			c.fail(&ProtocolViolationError{Code: e.code, Reason: e.reason}, e.code, e.reason)
		default:
			c.fail(fmt.Errorf("%w: %s", ErrConnectionLost, transport.CloseText(e.code)), e.code, e.reason)
		}
	}
}

func (c *Conn) handshakeExpired() {
	if c.state != Connecting {
		return
	}
	timeout := c.options().Timeout
	c.bus.Emit(EventTimeout, TimeoutEvent{Stage: TimeoutHandshake, After: timeout})
	c.fail(fmt.Errorf("%w: no open within %s", ErrHandshakeFailed, timeout), transport.CloseAbnormal, "handshake timeout")
}

func (c *Conn) heartbeatExpired() {
	if c.state != Open {
		return
	}
	c.bus.Emit(EventTimeout, TimeoutEvent{Stage: TimeoutHeartbeat, After: c.options().Heartbeat.Timeout})
	c.fail(ErrHeartbeatTimeout, transport.CloseAbnormal, "heartbeat timeout")
}

func (c *Conn) sendHeartbeat() {
	c.ping(nil)
}

func (c *Conn) ping(payload []byte) {
	if c.session == nil {
		return
	}
	if err := c.session.transport.Ping(payload); err != nil {
		c.logger.Debug("ping failed", "session", c.session.id, "error", err)
		return
	}
	c.bus.Emit(outgoingPing, payload)
}

// teardown stops everything tied to the current session and ends its
// transport unless it is already gone.
func (c *Conn) teardown(code int, reason string) {
	c.heartbeat.Stop()
	c.timers.Clear(handshakeTimer)
	c.timers.Clear(closeTimer)

	s := c.session
	c.session = nil
	if s == nil || s.ended {
		return
	}
	s.ended = true
	c.bus.Emit(outgoingEnd, CloseEvent{Code: code, Reason: reason})
	if err := s.transport.End(code, reason); err != nil {
		c.logger.Debug("end transport", "session", s.id, "error", err)
	}
}

// fail is the unplanned disconnect path: error, close if the session was
// open, then a retry or the terminal end.
func (c *Conn) fail(err error, code int, reason string) {
	wasOpen := c.state == Open
	c.teardown(transport.CloseGoingAway, reason)
	c.setState(Closed)

	if err != nil {
		c.emitError(err)
	}
	if wasOpen {
		c.bus.Emit(EventClose, CloseEvent{Code: code, Reason: reason})
	}
	c.scheduleRetry()
}

func (c *Conn) remoteClosed(e endInfo) {
	c.teardown(e.code, e.reason)
	c.setState(Closed)
	c.policy.Reset()
	c.logger.Info("closed by server", "code", e.code, "reason", e.reason)

	c.bus.Emit(EventClose, CloseEvent{Code: e.code, Reason: e.reason, WasClean: true})
	c.terminate(EndEvent{})
}

func (c *Conn) scheduleRetry() {
	a, ok := c.policy.Next()
	if !ok {
		c.exhausted = true
		c.logger.Warn("reconnect attempts exhausted", "attempts", c.policy.Attempt())
		c.terminate(EndEvent{Exhausted: true})
		return
	}

	c.logger.Info("scheduling reconnect", "attempt", a.Number, "delay", a.Delay)
	c.timers.Schedule(reconnectTimer, a.Delay, func() { c.retry(a.Number) })
	c.bus.Emit(EventReconnecting, ReconnectingEvent{Attempt: a.Number, Delay: a.Delay})
}

func (c *Conn) retry(attempt int) {
	if c.state != Closed {
		return
	}
	c.bus.Emit(outgoingReconnect, attempt)
	c.connect()
}

func (c *Conn) reconnectNow() {
	pending := c.timers.Active(reconnectTimer)
	if c.state != Closed || !(pending || c.awaitingNetwork || c.exhausted) {
		c.emitError(ErrNotReconnectable)
		return
	}

	c.timers.Clear(reconnectTimer)
	if c.exhausted {
		c.exhausted = false
		c.policy.Reset()
	}
	c.bus.Emit(outgoingReconnect, c.policy.Attempt())
	c.connect()
}

func (c *Conn) forceReconnect() {
	switch c.state {
	case Closing, Open:
		// A pending local close is superseded, so no end is emitted.
		c.teardown(transport.CloseGoingAway, reasonReconnect)
		c.setState(Closed)
		c.bus.Emit(EventClose, CloseEvent{Code: transport.CloseGoingAway, Reason: reasonReconnect})
	case Connecting:
		c.teardown(transport.CloseGoingAway, reasonReconnect)
		c.setState(Closed)
	}

	c.timers.Clear(reconnectTimer)
	c.awaitingNetwork = false
	c.exhausted = false
	c.policy.Reset()
	c.bus.Emit(outgoingReconnect, 0)
	c.connect()
}

func (c *Conn) close(code int, reason string) {
	switch c.state {
	case Closed:
		if c.timers.Clear(reconnectTimer) || c.awaitingNetwork {
			c.awaitingNetwork = false
			c.policy.Reset()
			c.logger.Info("pending reconnect cancelled")
			c.terminate(EndEvent{})
		}
	case Closing:
		// already waiting for the transport
	case Connecting, Open:
		if c.state == Connecting {
			c.emitError(fmt.Errorf("connect: %w", ErrCancelled))
		}
		c.heartbeat.Stop()
		c.timers.Clear(handshakeTimer)
		c.closeCode, c.closeReason = code, reason
		c.setState(Closing)

		s := c.session
		s.ended = true
		c.bus.Emit(outgoingEnd, CloseEvent{Code: code, Reason: reason, WasClean: true})
		if err := s.transport.End(code, reason); err != nil {
			c.logger.Debug("end transport", "session", s.id, "error", err)
			c.finishClose(false)
			return
		}
		c.timers.Schedule(closeTimer, c.options().Timeout, func() {
			c.logger.Warn("close not confirmed", "after", c.options().Timeout)
			c.finishClose(false)
		})
	}
}

// finishClose completes a local close, on confirmation from the transport
// or when the close timer gives up waiting. wasClean reports whether the
// transport confirmed the close.
func (c *Conn) finishClose(wasClean bool) {
	if c.state != Closing {
		return
	}
	c.timers.Clear(closeTimer)
	c.session = nil
	c.setState(Closed)
	c.policy.Reset()
	c.logger.Info("connection closed", "code", c.closeCode, "reason", c.closeReason)

	c.bus.Emit(EventClose, CloseEvent{Code: c.closeCode, Reason: c.closeReason, WasClean: wasClean})
	c.terminate(EndEvent{})
}

// terminate emits the terminal end, dropping whatever is still buffered.
func (c *Conn) terminate(ev EndEvent) {
	if dropped := c.outbox.Drain(0); len(dropped) > 0 {
		ev.Discarded = len(dropped)
		c.logger.Warn("discarding buffered messages", "count", len(dropped))
	}
	c.bus.Emit(EventEnd, ev)
}

func (c *Conn) setOnline(online bool) {
	if c.online == online {
		return
	}
	c.online = online
	c.onlineSnap.Store(online)

	if !online {
		c.logger.Info("network offline")
		c.bus.Emit(EventOffline, nil)
		return
	}

	c.logger.Info("network online")
	c.bus.Emit(EventOnline, nil)
	switch {
	case c.state == Open:
		c.drain()
	case c.state == Closed && c.awaitingNetwork:
		c.connect()
	}
}

func (c *Conn) shutdown() {
	switch c.state {
	case Connecting, Open:
		c.close(transport.CloseGoingAway, reasonShutdown)
		c.finishClose(false)
	case Closing:
		c.finishClose(false)
	case Closed:
		c.close(transport.CloseGoingAway, reasonShutdown)
	}

	c.halted = true
	c.heartbeat.Stop()
	c.timers.ClearAll()
	c.cancel()
	c.logger.Info("connection shut down")
}
