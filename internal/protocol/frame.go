// Package protocol defines the JSON frame envelope exchanged over the
// persistent connection and the normalization of chat payloads into the
// canonical model types.
package protocol

import "encoding/json"

// FrameType identifies the type of a frame.
type FrameType string

const (
	// Heartbeat
	FrameTypePing FrameType = "ping"
	FrameTypePong FrameType = "pong"

	// Chat messages. Both spellings appear on the wire; they carry the
	// same payload shape.
	FrameTypeChatMessage    FrameType = "chat.message"
	FrameTypeChatMessageNew FrameType = "chat.message.new"
)

// Frame is the envelope for every message on the connection. Unrecognized
// types are logged and ignored by consumers, keeping the protocol
// forward-compatible.
type Frame struct {
	Type    FrameType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Ping carries the sender's clock so the pong can echo it back.
type Ping struct {
	Timestamp int64 `json:"timestamp"`
}

// Pong echoes the timestamp of the ping it answers.
type Pong struct {
	Timestamp int64 `json:"timestamp"`
}

// IsChatMessage reports whether the frame carries an inbound chat message.
func (f *Frame) IsChatMessage() bool {
	return f.Type == FrameTypeChatMessage || f.Type == FrameTypeChatMessageNew
}

// NewFrame builds a frame with the given type and marshalled payload.
func NewFrame(t FrameType, payload any) (*Frame, error) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	return &Frame{Type: t, Payload: raw}, nil
}

// ParsePayload unmarshals the frame payload into v. A nil payload is a no-op.
func (f *Frame) ParsePayload(v any) error {
	if f.Payload == nil {
		return nil
	}
	return json.Unmarshal(f.Payload, v)
}

// Encode marshals the whole frame for transmission.
func (f *Frame) Encode() ([]byte, error) {
	return json.Marshal(f)
}

// Decode parses raw bytes into a frame.
func Decode(data []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return &f, nil
}
