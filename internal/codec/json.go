package codec

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/rickgao/primus-go/internal/transport"
)

// JSON wraps every message in a JSON envelope sent as a text frame, so
// binary payloads survive text-only transports:
//
//	{"type":"text","data":"hello"}
//	{"type":"binary","data":"AQI="}
type JSON struct{}

func NewJSON() JSON { return JSON{} }

type jsonEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func (JSON) Name() string { return "json" }

func (JSON) Encode(m Message) (transport.Frame, error) {
	var (
		env jsonEnvelope
		err error
	)
	switch m.kind {
	case KindText:
		if !utf8.ValidString(m.text) {
			return transport.Frame{}, ErrInvalidText
		}
		env.Type = "text"
		env.Data, err = json.Marshal(m.text)
	case KindBinary:
		env.Type = "binary"
		// []byte marshals as base64
		env.Data, err = json.Marshal(m.binary)
	default:
		return transport.Frame{}, ErrEmptyMessage
	}
	if err != nil {
		return transport.Frame{}, fmt.Errorf("encode payload: %w", err)
	}

	data, err := json.Marshal(env)
	if err != nil {
		return transport.Frame{}, fmt.Errorf("encode envelope: %w", err)
	}
	return transport.Frame{Type: transport.TextFrame, Data: data}, nil
}

func (JSON) Decode(f transport.Frame) (Message, error) {
	var env jsonEnvelope
	if err := json.Unmarshal(f.Data, &env); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch env.Type {
	case "text":
		var s string
		if err := json.Unmarshal(env.Data, &s); err != nil {
			return Message{}, fmt.Errorf("%w: text data: %v", ErrMalformed, err)
		}
		return Text(s), nil
	case "binary":
		var b []byte
		if err := json.Unmarshal(env.Data, &b); err != nil {
			return Message{}, fmt.Errorf("%w: binary data: %v", ErrMalformed, err)
		}
		return Binary(b), nil
	}
	return Message{}, fmt.Errorf("%w: unknown type %q", ErrMalformed, env.Type)
}

// ByName returns the codec registered under name.
func ByName(name string) (Codec, error) {
	switch name {
	case "", "raw":
		return NewRaw(), nil
	case "json":
		return NewJSON(), nil
	}
	return nil, fmt.Errorf("unknown codec %q", name)
}
