package model

import "testing"

func TestTempIDs(t *testing.T) {
	id := NewTempID()
	if !IsTempID(id) {
		t.Errorf("generated ID %q not recognized as temporary", id)
	}
	if IsTempID("a1b2c3") {
		t.Error("server ID classified as temporary")
	}

	if NewTempID() == NewTempID() {
		t.Error("consecutive temp IDs collided")
	}
}

func TestMessagePending(t *testing.T) {
	if !(Message{ID: NewTempID()}).Pending() {
		t.Error("temp-ID message not pending")
	}
	if (Message{ID: "m1"}).Pending() {
		t.Error("confirmed message reported pending")
	}
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		name string
		conv Conversation
		want string
	}{
		{
			name: "explicit name wins",
			conv: Conversation{ID: "c1", Name: "Ops", Participants: []Participant{{ID: "u2", Name: "Bea"}}},
			want: "Ops",
		},
		{
			name: "other participants joined",
			conv: Conversation{ID: "c1", Participants: []Participant{
				{ID: "u1", Name: "Me"}, {ID: "u2", Name: "Bea"}, {ID: "u3", Name: "Cho"},
			}},
			want: "Bea, Cho",
		},
		{
			name: "falls back to id",
			conv: Conversation{ID: "c1", Participants: []Participant{{ID: "u1", Name: "Me"}}},
			want: "c1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.conv.DisplayName("u1"); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
