package codec

import (
	"fmt"
	"unicode/utf8"

	"github.com/rickgao/primus-go/internal/transport"
)

// Raw maps text messages to text frames and binary messages to binary
// frames without touching the payload.
type Raw struct{}

func NewRaw() Raw { return Raw{} }

func (Raw) Name() string { return "raw" }

func (Raw) Encode(m Message) (transport.Frame, error) {
	switch m.kind {
	case KindText:
		if !utf8.ValidString(m.text) {
			return transport.Frame{}, ErrInvalidText
		}
		return transport.Frame{Type: transport.TextFrame, Data: []byte(m.text)}, nil
	case KindBinary:
		return transport.Frame{Type: transport.BinaryFrame, Data: m.binary}, nil
	}
	return transport.Frame{}, ErrEmptyMessage
}

func (Raw) Decode(f transport.Frame) (Message, error) {
	switch f.Type {
	case transport.TextFrame:
		if !utf8.Valid(f.Data) {
			return Message{}, fmt.Errorf("%w: text frame is not valid utf-8", ErrMalformed)
		}
		return Text(string(f.Data)), nil
	case transport.BinaryFrame:
		return Binary(f.Data), nil
	}
	return Message{}, fmt.Errorf("%w: frame type %v", ErrMalformed, f.Type)
}
