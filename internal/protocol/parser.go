package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/imramesh222/bms-chat/internal/model"
)

// chatPayload is the wire shape of chat.message / chat.message.new payloads.
// The sender arrives either as a bare "sender_id" string or as an embedded
// "sender" object, depending on which backend path produced the frame.
type chatPayload struct {
	ConversationID string          `json:"conversation_id"`
	MessageID      string          `json:"message_id"`
	Content        string          `json:"content"`
	SenderID       string          `json:"sender_id"`
	Sender         json.RawMessage `json:"sender"`
	Timestamp      string          `json:"timestamp"`
	Read           bool            `json:"read"`
}

type senderObject struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
}

// ParseChatMessage normalizes a chat frame payload into a model.Message.
// A missing timestamp falls back to the current time (client-assigned).
func ParseChatMessage(f *Frame) (model.Message, error) {
	if !f.IsChatMessage() {
		return model.Message{}, fmt.Errorf("frame type %q is not a chat message", f.Type)
	}

	var p chatPayload
	if err := f.ParsePayload(&p); err != nil {
		return model.Message{}, fmt.Errorf("decode chat payload: %w", err)
	}
	if p.ConversationID == "" {
		return model.Message{}, fmt.Errorf("chat payload missing conversation_id")
	}

	senderID, senderName := p.SenderID, ""
	if len(p.Sender) > 0 && string(p.Sender) != "null" {
		var obj senderObject
		if err := json.Unmarshal(p.Sender, &obj); err == nil && obj.ID != "" {
			senderID = obj.ID
			senderName = obj.Username
			if senderName == "" {
				senderName = obj.Name
			}
		} else {
			// Some senders arrive as a bare ID string.
			var id string
			if json.Unmarshal(p.Sender, &id) == nil && id != "" {
				senderID = id
			}
		}
	}
	if senderID == "" {
		return model.Message{}, fmt.Errorf("chat payload missing sender")
	}

	return model.Message{
		ID:             p.MessageID,
		ConversationID: p.ConversationID,
		SenderID:       senderID,
		SenderName:     senderName,
		Content:        p.Content,
		Timestamp:      ParseTimestamp(p.Timestamp),
		Read:           p.Read,
	}, nil
}

// NewChatFrame builds an outbound chat.message frame for a locally authored
// message.
func NewChatFrame(msg model.Message) (*Frame, error) {
	return NewFrame(FrameTypeChatMessage, chatPayload{
		ConversationID: msg.ConversationID,
		MessageID:      msg.ID,
		Content:        msg.Content,
		SenderID:       msg.SenderID,
		Timestamp:      msg.Timestamp.UTC().Format(time.RFC3339Nano),
	})
}

// ParseTimestamp parses an ISO-8601 timestamp, returning the current time
// when the field is absent or malformed.
func ParseTimestamp(s string) time.Time {
	if s == "" {
		return time.Now()
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Now()
}
