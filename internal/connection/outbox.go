package connection

import (
	"fmt"
)

// send runs on the loop. The message goes straight to the transport only
// when nothing is queued ahead of it.
func (c *Conn) send(env Envelope) {
	if c.writable() && c.outbox.Len() == 0 {
		if !c.write(env) {
			c.outbox.Push(env)
		}
		return
	}
	c.outbox.Push(env)
	c.drain()
}

// drain writes buffered envelopes head to tail while writable. A failed
// write goes back to the head and stops the pass.
func (c *Conn) drain() {
	for c.writable() {
		env, ok := c.outbox.TryPop()
		if !ok {
			return
		}
		if !c.write(env) {
			c.outbox.PushFront(env)
			return
		}
	}
}

// write hands env to the transport. It returns false if the transport
// refused the frame; an envelope that cannot be encoded is reported and
// counts as consumed.
func (c *Conn) write(env Envelope) bool {
	frame, err := c.options().Codec.Encode(env.Message)
	if err != nil {
		c.emitError(fmt.Errorf("%w: %w", ErrEncodeFailure, err))
		return true
	}
	if err := c.session.transport.Write(frame); err != nil {
		c.logger.Warn("write failed, keeping message buffered",
			"session", c.session.id,
			"queued_for", c.timers.Now().Sub(env.EnqueuedAt),
			"error", err,
		)
		return false
	}
	c.bus.Emit(outgoingData, frame)
	return true
}
