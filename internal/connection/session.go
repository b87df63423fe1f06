package connection

import (
	"github.com/google/uuid"

	"github.com/rickgao/primus-go/internal/transport"
)

// session is the transport.Handler of one transport instance. Its callbacks
// are marshalled onto the loop and become incoming::* events, unless a newer
// session has replaced it in the meantime.
type session struct {
	id        string
	conn      *Conn
	transport transport.Transport
	ended     bool // OnEnd seen or End requested
}

func newSession(c *Conn, factory transport.Factory) *session {
	s := &session{id: uuid.NewString(), conn: c}
	s.transport = factory(s)
	return s
}

func (s *session) deliver(event string, payload any) {
	c := s.conn
	c.post(func() {
		if c.session != s {
			c.logger.Debug("dropping stale transport event", "session", s.id, "event", event)
			return
		}
		c.bus.Emit(event, payload)
	})
}

func (s *session) OnOpen()                   { s.deliver(incomingOpen, nil) }
func (s *session) OnFrame(f transport.Frame) { s.deliver(incomingData, f) }
func (s *session) OnPong(payload []byte)     { s.deliver(incomingPong, payload) }
func (s *session) OnError(err error)         { s.deliver(incomingError, err) }

func (s *session) OnEnd(code int, reason string, wasClean bool) {
	s.deliver(incomingEnd, endInfo{code: code, reason: reason, wasClean: wasClean})
}
