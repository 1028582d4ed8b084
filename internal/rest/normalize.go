package rest

import (
	"encoding/json"
	"fmt"

	"github.com/imramesh222/bms-chat/internal/model"
	"github.com/imramesh222/bms-chat/internal/protocol"
)

// DecodeCollection normalizes the backend's heterogeneous collection
// envelopes (a bare array, {"results": [...]}, {"data": [...]} or
// {"members": [...]}) into a flat slice of raw records. This is the single
// place that knows about envelope shapes; call sites never sniff.
func DecodeCollection(body []byte) ([]json.RawMessage, error) {
	var arr []json.RawMessage
	if err := json.Unmarshal(body, &arr); err == nil {
		return arr, nil
	}

	var env struct {
		Results []json.RawMessage `json:"results"`
		Data    []json.RawMessage `json:"data"`
		Members []json.RawMessage `json:"members"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("unrecognized collection envelope: %w", err)
	}
	switch {
	case env.Results != nil:
		return env.Results, nil
	case env.Data != nil:
		return env.Data, nil
	case env.Members != nil:
		return env.Members, nil
	}
	return nil, fmt.Errorf("unrecognized collection envelope")
}

// conversationRecord is the wire shape of a conversation.
type conversationRecord struct {
	ID           string              `json:"id"`
	Name         string              `json:"name"`
	IsGroup      bool                `json:"is_group"`
	Participants []participantRecord `json:"participants"`
	LastMessage  json.RawMessage     `json:"last_message"`
	Unread       int                 `json:"unread_count"`
	UpdatedAt    string              `json:"updated_at"`
}

type participantRecord struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
}

// messageRecord is the wire shape of a message. The sender arrives either as
// "sender_id" or an embedded "sender" object, same as on the transport.
type messageRecord struct {
	ID             string          `json:"id"`
	ConversationID string          `json:"conversation"`
	Content        string          `json:"content"`
	SenderID       string          `json:"sender_id"`
	Sender         json.RawMessage `json:"sender"`
	Timestamp      string          `json:"timestamp"`
	Read           bool            `json:"read"`
}

func decodeConversation(raw []byte) (model.Conversation, error) {
	var rec conversationRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return model.Conversation{}, fmt.Errorf("decode conversation: %w", err)
	}
	if rec.ID == "" {
		return model.Conversation{}, fmt.Errorf("conversation record missing id")
	}

	conv := model.Conversation{
		ID:      rec.ID,
		Name:    rec.Name,
		IsGroup: rec.IsGroup,
		Unread:  rec.Unread,
	}
	for _, p := range rec.Participants {
		name := p.Username
		if name == "" {
			name = p.Name
		}
		conv.Participants = append(conv.Participants, model.Participant{ID: p.ID, Name: name})
	}
	if len(rec.LastMessage) > 0 && string(rec.LastMessage) != "null" {
		if last, err := decodeMessage(rec.LastMessage, rec.ID); err == nil {
			conv.LastMessage = &last
		}
	}
	if rec.UpdatedAt != "" {
		conv.UpdatedAt = protocol.ParseTimestamp(rec.UpdatedAt)
	} else if conv.LastMessage != nil {
		conv.UpdatedAt = conv.LastMessage.Timestamp
	}
	return conv, nil
}

func decodeMessage(raw []byte, conversationID string) (model.Message, error) {
	var rec messageRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return model.Message{}, fmt.Errorf("decode message: %w", err)
	}
	if rec.ID == "" {
		return model.Message{}, fmt.Errorf("message record missing id")
	}

	senderID, senderName := rec.SenderID, ""
	if len(rec.Sender) > 0 && string(rec.Sender) != "null" {
		var obj participantRecord
		if err := json.Unmarshal(rec.Sender, &obj); err == nil && obj.ID != "" {
			senderID = obj.ID
			senderName = obj.Username
			if senderName == "" {
				senderName = obj.Name
			}
		} else {
			var id string
			if json.Unmarshal(rec.Sender, &id) == nil && id != "" {
				senderID = id
			}
		}
	}

	convID := rec.ConversationID
	if convID == "" {
		convID = conversationID
	}

	return model.Message{
		ID:             rec.ID,
		ConversationID: convID,
		SenderID:       senderID,
		SenderName:     senderName,
		Content:        rec.Content,
		Timestamp:      protocol.ParseTimestamp(rec.Timestamp),
		Read:           rec.Read,
	}, nil
}
