package protocol

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/imramesh222/bms-chat/internal/model"
)

func frame(t *testing.T, typ FrameType, payload string) *Frame {
	t.Helper()
	return &Frame{Type: typ, Payload: json.RawMessage(payload)}
}

func TestParseChatMessageSenderVariants(t *testing.T) {
	tests := []struct {
		name       string
		payload    string
		wantSender string
		wantName   string
	}{
		{
			name:       "flat sender_id",
			payload:    `{"conversation_id":"c1","message_id":"m1","content":"hi","sender_id":"u2"}`,
			wantSender: "u2",
		},
		{
			name:       "sender object with username",
			payload:    `{"conversation_id":"c1","message_id":"m1","content":"hi","sender":{"id":"u2","username":"bea"}}`,
			wantSender: "u2",
			wantName:   "bea",
		},
		{
			name:       "sender object with name only",
			payload:    `{"conversation_id":"c1","message_id":"m1","content":"hi","sender":{"id":"u2","name":"Bea"}}`,
			wantSender: "u2",
			wantName:   "Bea",
		},
		{
			name:       "sender as bare string",
			payload:    `{"conversation_id":"c1","message_id":"m1","content":"hi","sender":"u2"}`,
			wantSender: "u2",
		},
		{
			name:       "object overrides flat id",
			payload:    `{"conversation_id":"c1","message_id":"m1","sender_id":"stale","sender":{"id":"u2"}}`,
			wantSender: "u2",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := ParseChatMessage(frame(t, FrameTypeChatMessage, tt.payload))
			if err != nil {
				t.Fatal(err)
			}
			if msg.SenderID != tt.wantSender {
				t.Errorf("SenderID = %q, want %q", msg.SenderID, tt.wantSender)
			}
			if msg.SenderName != tt.wantName {
				t.Errorf("SenderName = %q, want %q", msg.SenderName, tt.wantName)
			}
		})
	}
}

func TestParseChatMessageBothTypeSpellings(t *testing.T) {
	payload := `{"conversation_id":"c1","message_id":"m1","sender_id":"u2"}`
	for _, typ := range []FrameType{FrameTypeChatMessage, FrameTypeChatMessageNew} {
		if _, err := ParseChatMessage(frame(t, typ, payload)); err != nil {
			t.Errorf("type %s: %v", typ, err)
		}
	}
}

func TestParseChatMessageRejectsMissingFields(t *testing.T) {
	tests := []struct {
		name    string
		typ     FrameType
		payload string
	}{
		{"wrong type", FrameTypePing, `{"conversation_id":"c1","sender_id":"u2"}`},
		{"no conversation", FrameTypeChatMessage, `{"message_id":"m1","sender_id":"u2"}`},
		{"no sender", FrameTypeChatMessage, `{"conversation_id":"c1","message_id":"m1"}`},
		{"garbage payload", FrameTypeChatMessage, `"not an object"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseChatMessage(frame(t, tt.typ, tt.payload)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestParseTimestampLayouts(t *testing.T) {
	want := time.Date(2026, 8, 30, 10, 30, 0, 0, time.UTC)
	for _, s := range []string{
		"2026-08-30T10:30:00Z",
		"2026-08-30T10:30:00.000Z",
		"2026-08-30T10:30:00",
	} {
		got := ParseTimestamp(s)
		if !got.Equal(want) {
			t.Errorf("%s: got %v, want %v", s, got, want)
		}
	}
}

func TestParseTimestampFallsBackToNow(t *testing.T) {
	before := time.Now()
	got := ParseTimestamp("not-a-time")
	if got.Before(before) || got.After(time.Now()) {
		t.Errorf("fallback %v not within call bounds", got)
	}
}

func TestChatFrameRoundTrip(t *testing.T) {
	f, err := NewChatFrame(model.Message{
		ID:             "m1",
		ConversationID: "c1",
		SenderID:       "u1",
		Content:        "hello",
		Timestamp:      time.Now(),
	})
	if err != nil {
		t.Fatal(err)
	}
	data, err := f.Encode()
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	msg, err := ParseChatMessage(decoded)
	if err != nil {
		t.Fatal(err)
	}
	if msg.ID != "m1" || msg.ConversationID != "c1" || msg.Content != "hello" {
		t.Errorf("round trip lost fields: %+v", msg)
	}
}
