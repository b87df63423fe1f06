// Package codec converts application messages to wire frames and back.
package codec

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/rickgao/primus-go/internal/transport"
)

var (
	ErrEmptyMessage = errors.New("message has no kind")
	ErrMalformed    = errors.New("malformed frame")
	ErrInvalidText  = errors.New("text message is not valid utf-8")
)

// Kind tags the payload held by a Message.
type Kind int

const (
	KindText Kind = iota + 1
	KindBinary
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindBinary:
		return "binary"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Message is either text or binary. Use Text and Binary to build one.
type Message struct {
	kind   Kind
	text   string
	binary []byte
}

// Text builds a text message.
func Text(s string) Message {
	return Message{kind: KindText, text: s}
}

// Binary builds a binary message. The slice is not copied.
func Binary(b []byte) Message {
	if b == nil {
		b = []byte{}
	}
	return Message{kind: KindBinary, binary: b}
}

// Kind returns the payload tag, 0 for the zero Message.
func (m Message) Kind() Kind {
	return m.kind
}

// IsZero reports whether m was never set.
func (m Message) IsZero() bool {
	return m.kind == 0
}

// Text returns the text payload and whether m is a text message.
func (m Message) Text() (string, bool) {
	return m.text, m.kind == KindText
}

// Binary returns the binary payload and whether m is a binary message.
func (m Message) Binary() ([]byte, bool) {
	return m.binary, m.kind == KindBinary
}

// Bytes returns the payload as bytes regardless of kind.
func (m Message) Bytes() []byte {
	if m.kind == KindText {
		return []byte(m.text)
	}
	return m.binary
}

// Len returns the payload size in bytes.
func (m Message) Len() int {
	if m.kind == KindText {
		return len(m.text)
	}
	return len(m.binary)
}

// Equal reports whether both messages have the same kind and payload.
func (m Message) Equal(o Message) bool {
	if m.kind != o.kind {
		return false
	}
	if m.kind == KindText {
		return m.text == o.text
	}
	return bytes.Equal(m.binary, o.binary)
}

func (m Message) String() string {
	switch m.kind {
	case KindText:
		return fmt.Sprintf("text(%q)", m.text)
	case KindBinary:
		return fmt.Sprintf("binary(%d bytes)", len(m.binary))
	}
	return "empty"
}

// Codec encodes messages into frames and decodes frames into messages.
// For every message m it accepts, Decode(Encode(m)) equals m.
type Codec interface {
	Name() string
	Encode(Message) (transport.Frame, error)
	Decode(transport.Frame) (Message, error)
}
