package rest

import (
	"testing"
	"time"
)

func TestDecodeCollectionRejectsUnknownEnvelope(t *testing.T) {
	for _, body := range []string{`{"items":[]}`, `"just a string"`, `42`} {
		if _, err := DecodeCollection([]byte(body)); err == nil {
			t.Errorf("body %s: expected error", body)
		}
	}
}

func TestDecodeCollectionEmpty(t *testing.T) {
	items, err := DecodeCollection([]byte(`{"results":[]}`))
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 0 {
		t.Errorf("items = %d, want 0", len(items))
	}
}

func TestDecodeConversationEmbeddedLastMessage(t *testing.T) {
	conv, err := decodeConversation([]byte(`{
		"id": "c1",
		"is_group": true,
		"name": "Ops",
		"last_message": {"id":"m1","content":"done","sender_id":"u2","timestamp":"2026-08-30T09:00:00Z"},
		"unread_count": 3
	}`))
	if err != nil {
		t.Fatal(err)
	}
	if conv.LastMessage == nil || conv.LastMessage.ID != "m1" {
		t.Fatal("last message not decoded")
	}
	if conv.Unread != 3 || !conv.IsGroup {
		t.Errorf("got %+v", conv)
	}
	// updated_at absent: falls back to the last message timestamp.
	want := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
	if !conv.UpdatedAt.Equal(want) {
		t.Errorf("UpdatedAt = %v, want %v", conv.UpdatedAt, want)
	}
}

func TestDecodeConversationNullLastMessage(t *testing.T) {
	conv, err := decodeConversation([]byte(`{"id":"c1","last_message":null}`))
	if err != nil {
		t.Fatal(err)
	}
	if conv.LastMessage != nil {
		t.Error("null last_message decoded as present")
	}
}

func TestDecodeMessageSenderAsString(t *testing.T) {
	msg, err := decodeMessage([]byte(`{"id":"m1","content":"x","sender":"u7"}`), "c1")
	if err != nil {
		t.Fatal(err)
	}
	if msg.SenderID != "u7" {
		t.Errorf("SenderID = %q, want u7", msg.SenderID)
	}
	if msg.ConversationID != "c1" {
		t.Errorf("ConversationID = %q, want fallback c1", msg.ConversationID)
	}
}
