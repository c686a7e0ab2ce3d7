package linestream

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"

	"github.com/pkg/errors"
)

// Message is an application message carried by one frame.
// It is either Ping or Hello.
type Message interface {
	isMessage()
}

// Ping carries no data.
type Ping struct{}

// Hello carries a text and a counter.
type Hello struct {
	Text  string
	Count uint32
}

func (Ping) isMessage()  {}
func (Hello) isMessage() {}

// Codec is the interface for message encoding and decoding.
//
// Decode receives exactly one frame, without its delimiter. The frame may
// alias a buffer that is reused after Decode returns, so implementations
// must not retain it.
type Codec interface {
	// Decode decodes a single frame into a Message.
	Decode(frame []byte) (Message, error)
	// Encode encodes a Message into a frame. The result must not contain
	// the delimiter.
	Encode(Message) ([]byte, error)
}

// JSONCodec encodes messages as externally tagged JSON:
//
//	"Ping"
//	{"Hello":["text",12]}
type JSONCodec struct{}

const (
	tagPing  = "Ping"
	tagHello = "Hello"
)

func (JSONCodec) Decode(frame []byte) (Message, error) {
	frame = bytes.TrimSpace(frame)
	if len(frame) == 0 {
		return nil, errors.New("empty frame")
	}

	if frame[0] == '"' {
		var tag string
		if err := json.Unmarshal(frame, &tag); err != nil {
			return nil, err
		}
		if tag != tagPing {
			return nil, errors.Errorf("unknown unit variant %q", tag)
		}
		return Ping{}, nil
	}

	var variant map[string]json.RawMessage
	if err := json.Unmarshal(frame, &variant); err != nil {
		return nil, err
	}
	if len(variant) != 1 {
		return nil, errors.Errorf("expected one variant, got %d", len(variant))
	}
	for tag, body := range variant {
		switch tag {
		case tagHello:
			var fields []json.RawMessage
			if err := json.Unmarshal(body, &fields); err != nil {
				return nil, errors.Wrap(err, "hello")
			}
			if len(fields) != 2 {
				return nil, errors.Errorf("hello: expected 2 fields, got %d", len(fields))
			}
			var hello Hello
			if err := json.Unmarshal(fields[0], &hello.Text); err != nil {
				return nil, errors.Wrap(err, "hello text")
			}
			if err := json.Unmarshal(fields[1], &hello.Count); err != nil {
				return nil, errors.Wrap(err, "hello count")
			}
			return hello, nil
		case tagPing:
			if !bytes.Equal(bytes.TrimSpace(body), []byte("null")) {
				return nil, errors.New("ping: unexpected content")
			}
			return Ping{}, nil
		default:
			return nil, errors.Errorf("unknown variant %q", tag)
		}
	}
	panic("unreachable")
}

func (JSONCodec) Encode(msg Message) ([]byte, error) {
	switch m := msg.(type) {
	case Ping:
		return json.Marshal(tagPing)
	case Hello:
		return json.Marshal(map[string][2]any{tagHello: {m.Text, m.Count}})
	default:
		return nil, errors.Errorf("unsupported message %T", msg)
	}
}

// Encoder writes delimited frames to an io.Writer.
type Encoder struct {
	w     *bufio.Writer
	codec Codec
}

// NewEncoder returns an Encoder writing frames encoded by codec to w.
// A nil codec means JSONCodec.
func NewEncoder(w io.Writer, codec Codec) *Encoder {
	if codec == nil {
		codec = JSONCodec{}
	}
	return &Encoder{w: bufio.NewWriter(w), codec: codec}
}

// Encode buffers msg followed by the delimiter. Call Flush to send.
func (e *Encoder) Encode(msg Message) error {
	frame, err := e.codec.Encode(msg)
	if err != nil {
		return err
	}
	return e.WriteFrame(frame)
}

// WriteFrame buffers an already encoded frame followed by the delimiter.
func (e *Encoder) WriteFrame(frame []byte) error {
	if bytes.IndexByte(frame, Delimiter) >= 0 {
		return errors.New("linestream: frame contains delimiter")
	}
	if _, err := e.w.Write(frame); err != nil {
		return &TransportError{Op: "write", Err: err}
	}
	if err := e.w.WriteByte(Delimiter); err != nil {
		return &TransportError{Op: "write", Err: err}
	}
	return nil
}

// Flush writes any buffered frames to the underlying writer.
func (e *Encoder) Flush() error {
	if err := e.w.Flush(); err != nil {
		return &TransportError{Op: "write", Err: err}
	}
	return nil
}
