package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TempIDPrefix marks client-generated message IDs awaiting server confirmation.
const TempIDPrefix = "temp-"

// Participant is a user reference inside a conversation.
type Participant struct {
	ID   string
	Name string
}

// Message is a single chat message. ID is either a client temp ID or a
// server-assigned ID, never both: reconciliation replaces the temp ID in place.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	SenderName     string
	Content        string
	Timestamp      time.Time
	Read           bool
}

// Pending reports whether the message still carries a client temp ID.
func (m Message) Pending() bool {
	return IsTempID(m.ID)
}

// Conversation is an in-memory conversation record. LastMessage and Unread are
// maintained by the store; Participants are unique by ID.
type Conversation struct {
	ID           string
	Name         string
	IsGroup      bool
	Participants []Participant
	LastMessage  *Message
	Unread       int
	UpdatedAt    time.Time
}

// DisplayName resolves a human-readable name: explicit name, else the other
// participants' names, else the conversation ID.
func (c Conversation) DisplayName(selfID string) string {
	if c.Name != "" {
		return c.Name
	}
	var names []string
	for _, p := range c.Participants {
		if p.ID == selfID {
			continue
		}
		if p.Name != "" {
			names = append(names, p.Name)
		}
	}
	if len(names) > 0 {
		return strings.Join(names, ", ")
	}
	return c.ID
}

// NewTempID generates a client message ID of the form temp-<unix-ms>-<uuid8>.
// The timestamp keeps IDs roughly sortable; the uuid suffix makes rapid
// successive sends collision-free.
func NewTempID() string {
	return fmt.Sprintf("%s%d-%s", TempIDPrefix, time.Now().UnixMilli(), uuid.NewString()[:8])
}

// IsTempID reports whether id is a client-generated temporary ID.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}
