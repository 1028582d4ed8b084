// Package store holds the in-memory model of conversations and their
// messages. All mutation flows through the reconciler, the delivery
// coordinator, or explicit hydration calls; UI layers only read snapshots
// and re-render on bus notifications.
package store

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/imramesh222/bms-chat/internal/bus"
	"github.com/imramesh222/bms-chat/internal/model"
)

type conversationEntry struct {
	conv     model.Conversation
	messages []model.Message
}

// Store is the in-memory conversation/message collection. It owns unread
// accounting: a conversation's counter goes up by one for every appended
// message that was not authored by the local user while the conversation is
// not the active one, and only MarkRead resets it.
type Store struct {
	mu     sync.RWMutex
	convs  map[string]*conversationEntry
	active string
	selfID string
	bus    *bus.Bus
	logger *zap.Logger
}

// New creates an empty store for the given local user. b may be nil, in
// which case no change notifications are published.
func New(selfID string, b *bus.Bus, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		convs:  make(map[string]*conversationEntry),
		selfID: selfID,
		bus:    b,
		logger: logger,
	}
}

// SelfID returns the local user ID the store was built for.
func (s *Store) SelfID() string { return s.selfID }

// SetActive marks a conversation as the currently selected one; its inbound
// messages no longer count as unread. Pass "" to deselect.
func (s *Store) SetActive(id string) {
	s.mu.Lock()
	s.active = id
	s.mu.Unlock()
}

// Active returns the currently selected conversation ID.
func (s *Store) Active() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// UpsertConversation inserts or updates a conversation, preserving the
// existing message list, unread counter and last-message pointer unless the
// incoming record carries them.
func (s *Store) UpsertConversation(c model.Conversation) {
	s.mu.Lock()
	entry, ok := s.convs[c.ID]
	if !ok {
		if c.UpdatedAt.IsZero() {
			c.UpdatedAt = time.Now()
		}
		s.convs[c.ID] = &conversationEntry{conv: c}
	} else {
		if c.Name != "" {
			entry.conv.Name = c.Name
		}
		entry.conv.IsGroup = c.IsGroup
		if len(c.Participants) > 0 {
			entry.conv.Participants = dedupParticipants(c.Participants)
		}
		if c.LastMessage != nil {
			entry.conv.LastMessage = c.LastMessage
		}
		if !c.UpdatedAt.IsZero() {
			entry.conv.UpdatedAt = c.UpdatedAt
		}
	}
	s.mu.Unlock()

	s.publish(bus.KindConversationUpserted, c.ID)
}

// ListConversations returns a snapshot ordered most-recently-updated first.
func (s *Store) ListConversations() []model.Conversation {
	s.mu.RLock()
	out := make([]model.Conversation, 0, len(s.convs))
	for _, entry := range s.convs {
		out = append(out, entry.conv)
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

// GetConversation returns a conversation snapshot by ID.
func (s *Store) GetConversation(id string) (model.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.convs[id]
	if !ok {
		return model.Conversation{}, false
	}
	return entry.conv, true
}

// Messages returns a snapshot of a conversation's message sequence in
// insertion order.
func (s *Store) Messages(conversationID string) []model.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.convs[conversationID]
	if !ok {
		return nil
	}
	out := make([]model.Message, len(entry.messages))
	copy(out, entry.messages)
	return out
}

// HasMessage reports whether the conversation already holds a message with
// the given ID.
func (s *Store) HasMessage(conversationID, messageID string) bool {
	if messageID == "" {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.convs[conversationID]
	if !ok {
		return false
	}
	for i := range entry.messages {
		if entry.messages[i].ID == messageID {
			return true
		}
	}
	return false
}

// MarkRead resets a conversation's unread counter to zero. Idempotent;
// unknown conversations are ignored.
func (s *Store) MarkRead(id string) {
	s.mu.Lock()
	entry, ok := s.convs[id]
	if !ok || entry.conv.Unread == 0 {
		s.mu.Unlock()
		return
	}
	entry.conv.Unread = 0
	s.mu.Unlock()

	s.publish(bus.KindConversationRead, id)
}

// AppendMessage adds a message to its conversation, creating the
// conversation from the sender and the local user when it is unknown. The
// last-message pointer always advances; the unread counter advances only for
// messages from other users into a non-active conversation.
func (s *Store) AppendMessage(msg model.Message) {
	s.mu.Lock()
	entry, ok := s.convs[msg.ConversationID]
	if !ok {
		entry = &conversationEntry{conv: s.synthesizeLocked(msg)}
		s.convs[msg.ConversationID] = entry
	}
	entry.messages = append(entry.messages, msg)
	s.touchLocked(entry, msg)
	s.mu.Unlock()

	s.publish(bus.KindMessageUpserted, msg.ConversationID)
}

// ReplaceMessage swaps the entry identified by oldID for the confirmed
// message, in place, preserving its position in the sequence. Returns false
// when oldID is not present.
func (s *Store) ReplaceMessage(conversationID, oldID string, msg model.Message) bool {
	s.mu.Lock()
	entry, ok := s.convs[conversationID]
	if !ok {
		s.mu.Unlock()
		return false
	}
	replaced := false
	for i := range entry.messages {
		if entry.messages[i].ID == oldID {
			entry.messages[i] = msg
			replaced = true
			break
		}
	}
	if replaced && entry.conv.LastMessage != nil && entry.conv.LastMessage.ID == oldID {
		last := msg
		entry.conv.LastMessage = &last
	}
	s.mu.Unlock()

	if replaced {
		s.publish(bus.KindMessageUpserted, conversationID)
	}
	return replaced
}

// RemoveMessage deletes a message, rolling back an optimistic insert. The
// last-message pointer falls back to the new tail. Returns false when the
// message is not present.
func (s *Store) RemoveMessage(conversationID, messageID string) bool {
	s.mu.Lock()
	entry, ok := s.convs[conversationID]
	if !ok {
		s.mu.Unlock()
		return false
	}
	removed := false
	for i := range entry.messages {
		if entry.messages[i].ID == messageID {
			entry.messages = append(entry.messages[:i], entry.messages[i+1:]...)
			removed = true
			break
		}
	}
	if removed && entry.conv.LastMessage != nil && entry.conv.LastMessage.ID == messageID {
		if n := len(entry.messages); n > 0 {
			last := entry.messages[n-1]
			entry.conv.LastMessage = &last
		} else {
			entry.conv.LastMessage = nil
		}
	}
	s.mu.Unlock()

	if removed {
		s.publish(bus.KindMessageRemoved, conversationID)
	}
	return removed
}

// Hydrate replaces the entire conversation collection with a REST-sourced
// snapshot. A full replace, not a merge, so stale entries cannot accumulate.
func (s *Store) Hydrate(convs []model.Conversation) {
	s.mu.Lock()
	s.convs = make(map[string]*conversationEntry, len(convs))
	for _, c := range convs {
		c.Participants = dedupParticipants(c.Participants)
		if c.UpdatedAt.IsZero() && c.LastMessage != nil {
			c.UpdatedAt = c.LastMessage.Timestamp
		}
		s.convs[c.ID] = &conversationEntry{conv: c}
	}
	s.mu.Unlock()

	s.publish(bus.KindConversationHydrated, "")
}

// HydrateMessages replaces one conversation's message sequence with a
// REST-sourced snapshot. Unknown conversations get a bare entry.
func (s *Store) HydrateMessages(conversationID string, msgs []model.Message) {
	s.mu.Lock()
	entry, ok := s.convs[conversationID]
	if !ok {
		entry = &conversationEntry{conv: model.Conversation{ID: conversationID, UpdatedAt: time.Now()}}
		s.convs[conversationID] = entry
	}
	entry.messages = make([]model.Message, len(msgs))
	copy(entry.messages, msgs)
	if n := len(msgs); n > 0 {
		last := msgs[n-1]
		entry.conv.LastMessage = &last
		if last.Timestamp.After(entry.conv.UpdatedAt) {
			entry.conv.UpdatedAt = last.Timestamp
		}
	}
	s.mu.Unlock()

	s.publish(bus.KindConversationHydrated, conversationID)
}

// synthesizeLocked builds a conversation record for a message referencing an
// unknown conversation ID: a two-party conversation between the sender and
// the local user.
func (s *Store) synthesizeLocked(msg model.Message) model.Conversation {
	participants := []model.Participant{{ID: msg.SenderID, Name: msg.SenderName}}
	if msg.SenderID != s.selfID {
		participants = append(participants, model.Participant{ID: s.selfID})
	}
	s.logger.Debug("synthesizing conversation from inbound message",
		zap.String("conversation_id", msg.ConversationID),
		zap.String("sender_id", msg.SenderID))
	return model.Conversation{
		ID:           msg.ConversationID,
		Participants: participants,
		UpdatedAt:    time.Now(),
	}
}

func (s *Store) touchLocked(entry *conversationEntry, msg model.Message) {
	last := msg
	entry.conv.LastMessage = &last
	entry.conv.UpdatedAt = time.Now()
	if msg.SenderID != s.selfID && entry.conv.ID != s.active {
		entry.conv.Unread++
	}
}

func (s *Store) publish(kind, conversationID string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(bus.Event{
		Kind:      kind,
		Timestamp: time.Now(),
		Payload:   conversationID,
	})
}

func dedupParticipants(in []model.Participant) []model.Participant {
	seen := make(map[string]struct{}, len(in))
	out := make([]model.Participant, 0, len(in))
	for _, p := range in {
		if _, ok := seen[p.ID]; ok {
			continue
		}
		seen[p.ID] = struct{}{}
		out = append(out, p)
	}
	return out
}
