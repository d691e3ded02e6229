// Package wire defines the messages exchanged between the ferry client and
// server. A connection carries exactly one Command from the client, answered
// by one or more Frames from the server. Connection identity (user, session,
// think) travels in the URL query, never in the message body.
package wire

import (
	"encoding/json"
	"fmt"
)

// Command is the single client-to-server message on a connection.
type Command struct {
	Name string         `json:"command"`
	Args map[string]any `json:"args,omitempty"`
}

// FrameKind discriminates the two frame shapes on the wire.
type FrameKind int

const (
	// FrameNone is the zero frame. The dispatcher drops it silently,
	// letting a handler suppress output in a branch without a sentinel.
	FrameNone FrameKind = iota
	// FrameRaw is an unwrapped text chunk (chat deltas, VM output).
	FrameRaw
	// FrameEnvelope is a JSON object with exactly one of result/error.
	FrameEnvelope
)

// Frame is one server-to-client message: either a raw text chunk or a JSON
// envelope. Which shapes a command produces is fixed by its handler; the
// consumer selects its parsing strategy from the command it issued.
type Frame struct {
	kind   FrameKind
	text   string
	result any
	errMsg string
	isErr  bool
}

// Raw returns a raw text frame.
func Raw(text string) Frame {
	return Frame{kind: FrameRaw, text: text}
}

// Result returns an envelope frame carrying a result value.
func Result(v any) Frame {
	return Frame{kind: FrameEnvelope, result: v}
}

// Error returns an envelope frame carrying an error message.
func Error(msg string) Frame {
	return Frame{kind: FrameEnvelope, errMsg: msg, isErr: true}
}

// Kind returns the frame's shape.
func (f Frame) Kind() FrameKind { return f.kind }

// IsZero reports whether the frame carries no value at all.
func (f Frame) IsZero() bool { return f.kind == FrameNone }

// Text returns the payload of a raw frame.
func (f Frame) Text() string { return f.text }

// Marshal renders the frame as the bytes sent on the wire. Raw frames pass
// through unwrapped; envelope frames marshal to {"result": ...} or
// {"error": ...}.
func (f Frame) Marshal() ([]byte, error) {
	switch f.kind {
	case FrameRaw:
		return []byte(f.text), nil
	case FrameEnvelope:
		if f.isErr {
			return json.Marshal(map[string]any{"error": f.errMsg})
		}
		return json.Marshal(map[string]any{"result": f.result})
	default:
		return nil, fmt.Errorf("cannot marshal empty frame")
	}
}

// Envelope is the parsed form of an envelope frame on the client side.
// Exactly one of Result/Error is present on a well-formed frame.
type Envelope struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  json.RawMessage `json:"error,omitempty"`
}

// ParseEnvelope reports whether data is a JSON object containing a result or
// error member. Frames that are not envelopes (raw chunks, stray output)
// return ok=false and no error; the caller keeps waiting.
func ParseEnvelope(data []byte) (env Envelope, ok bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return Envelope{}, false
	}
	res, hasResult := fields["result"]
	errv, hasError := fields["error"]
	if !hasResult && !hasError {
		return Envelope{}, false
	}
	return Envelope{Result: res, Error: errv}, true
}

// Err converts an error-shaped envelope into a Go error, or nil for a
// result-shaped one.
func (e Envelope) Err() error {
	if len(e.Error) == 0 {
		return nil
	}
	var msg string
	if err := json.Unmarshal(e.Error, &msg); err == nil {
		return fmt.Errorf("server error: %s", msg)
	}
	return fmt.Errorf("server error: %s", string(e.Error))
}
