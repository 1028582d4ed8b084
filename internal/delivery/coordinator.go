// Package delivery orchestrates the send path: optimistic insert, transport
// send when the connection is open, authoritative REST persistence, and
// reconciliation of the confirmed record.
package delivery

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/imramesh222/bms-chat/internal/bus"
	"github.com/imramesh222/bms-chat/internal/model"
	"github.com/imramesh222/bms-chat/internal/protocol"
	"github.com/imramesh222/bms-chat/internal/reconcile"
	"github.com/imramesh222/bms-chat/internal/store"
)

// Transport is the connection-manager surface the coordinator needs. The
// transport leg is attempted only while the connection is open; delivery
// never queues, the REST leg is the fallback of record.
type Transport interface {
	IsOpen() bool
	Send(*protocol.Frame) error
}

// API is the REST surface the coordinator needs.
type API interface {
	CreateMessage(ctx context.Context, conversationID, content, senderID string) (model.Message, error)
}

// Coordinator exposes the single send contract to UI callers.
type Coordinator struct {
	store      *store.Store
	transport  Transport
	api        API
	reconciler *reconcile.Reconciler
	bus        *bus.Bus
	logger     *zap.Logger
}

// New creates a delivery coordinator.
func New(st *store.Store, tr Transport, api API, rec *reconcile.Reconciler, b *bus.Bus, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		store:      st,
		transport:  tr,
		api:        api,
		reconciler: rec,
		bus:        b,
		logger:     logger,
	}
}

// SendMessage validates, inserts optimistically, attempts the transport leg,
// and persists over REST. It returns false, with the optimistic entry rolled
// back, when validation fails or the REST leg fails; there is no automatic
// retry, a repeated user action starts a fresh send.
func (c *Coordinator) SendMessage(ctx context.Context, conversationID, content string) bool {
	if strings.TrimSpace(content) == "" {
		c.logger.Warn("rejecting empty message", zap.String("conversation_id", conversationID))
		return false
	}
	if _, ok := c.store.GetConversation(conversationID); !ok {
		c.logger.Warn("rejecting message for unknown conversation",
			zap.String("conversation_id", conversationID))
		return false
	}

	optimistic := model.Message{
		ID:             model.NewTempID(),
		ConversationID: conversationID,
		SenderID:       c.store.SelfID(),
		Content:        content,
		Timestamp:      time.Now(),
	}
	c.store.AppendMessage(optimistic)

	// Transport leg: best-effort realtime fan-out. Failures are logged and
	// swallowed; the REST leg is authoritative.
	if c.transport != nil && c.transport.IsOpen() {
		frame, err := protocol.NewChatFrame(optimistic)
		if err == nil {
			err = c.transport.Send(frame)
		}
		if err != nil {
			c.logger.Warn("transport send failed, relying on REST leg",
				zap.Error(err), zap.String("temp_id", optimistic.ID))
		}
	}

	confirmed, err := c.api.CreateMessage(ctx, conversationID, content, optimistic.SenderID)
	if err != nil {
		c.logger.Error("message delivery failed",
			zap.Error(err),
			zap.String("conversation_id", conversationID),
			zap.String("temp_id", optimistic.ID))
		c.store.RemoveMessage(conversationID, optimistic.ID)
		if c.bus != nil {
			c.bus.Publish(bus.Event{
				Kind:      bus.KindMessageSendFailed,
				Timestamp: time.Now(),
				Payload:   map[string]string{"conversation_id": conversationID, "temp_id": optimistic.ID},
			})
		}
		return false
	}

	c.reconciler.Apply(confirmed)
	return true
}
