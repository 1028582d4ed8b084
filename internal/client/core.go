// Package client composes the messaging core (connection manager, event
// bus, reconciler, store and delivery coordinator) behind one explicitly
// constructed facade with a process-wide lifecycle: built at app start, torn
// down at app shutdown, fresh per test.
package client

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/imramesh222/bms-chat/internal/bus"
	"github.com/imramesh222/bms-chat/internal/conn"
	"github.com/imramesh222/bms-chat/internal/delivery"
	"github.com/imramesh222/bms-chat/internal/model"
	"github.com/imramesh222/bms-chat/internal/protocol"
	"github.com/imramesh222/bms-chat/internal/reconcile"
	"github.com/imramesh222/bms-chat/internal/rest"
	"github.com/imramesh222/bms-chat/internal/store"
)

// Core is the realtime messaging core. UI layers call its operations and
// subscribe to its bus; they never touch the store or transport directly.
type Core struct {
	serverURL  string
	conn       *conn.Manager
	bus        *bus.Bus
	store      *store.Store
	reconciler *reconcile.Reconciler
	delivery   *delivery.Coordinator
	api        *rest.Client
	logger     *zap.Logger
}

// Deps are the collaborators a Core is built from.
type Deps struct {
	ServerURL  string
	Conn       *conn.Manager
	Bus        *bus.Bus
	Store      *store.Store
	Reconciler *reconcile.Reconciler
	Delivery   *delivery.Coordinator
	API        *rest.Client
	Logger     *zap.Logger
}

// New wires the core: inbound frames route to the reconciler and
// connection-state transitions are republished on the bus under
// "connection.".
func New(d Deps) *Core {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	c := &Core{
		serverURL:  d.ServerURL,
		conn:       d.Conn,
		bus:        d.Bus,
		store:      d.Store,
		reconciler: d.Reconciler,
		delivery:   d.Delivery,
		api:        d.API,
		logger:     d.Logger,
	}
	c.conn.OnMessage(c.handleFrame)
	c.conn.OnConnectionChange(c.handleStateChange)
	return c
}

// Connect establishes the persistent connection to the realtime endpoint.
func (c *Core) Connect(ctx context.Context) error {
	return c.conn.Connect(ctx, c.serverURL)
}

// Disconnect tears down the connection and suppresses auto-reconnect.
func (c *Core) Disconnect() {
	c.conn.Disconnect()
}

// Reconnect forces a fresh connection attempt, e.g. after the Failed state.
func (c *Core) Reconnect() {
	c.conn.Reconnect()
}

// ConnectionState returns the current connection state.
func (c *Core) ConnectionState() conn.State {
	return c.conn.State()
}

// Bus exposes the event bus for UI subscriptions.
func (c *Core) Bus() *bus.Bus { return c.bus }

// Store exposes read-only snapshots of conversations and messages.
func (c *Core) Store() *store.Store { return c.store }

// SendMessage delivers one message; see delivery.Coordinator.SendMessage.
func (c *Core) SendMessage(ctx context.Context, conversationID, content string) bool {
	return c.delivery.SendMessage(ctx, conversationID, content)
}

// LoadConversations hydrates the store with the server's conversation list,
// replacing the local collection.
func (c *Core) LoadConversations(ctx context.Context) error {
	convs, err := c.api.Conversations(ctx)
	if err != nil {
		return fmt.Errorf("load conversations: %w", err)
	}
	c.store.Hydrate(convs)
	c.logger.Info("conversations hydrated", zap.Int("count", len(convs)))
	return nil
}

// OpenConversation hydrates a conversation's history, makes it the active
// one and marks it read locally and server-side. The server-side mark-read
// is best-effort; a failure leaves the local state authoritative for the UI.
func (c *Core) OpenConversation(ctx context.Context, conversationID string) error {
	msgs, err := c.api.Messages(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("open conversation %s: %w", conversationID, err)
	}
	c.store.HydrateMessages(conversationID, msgs)
	c.store.SetActive(conversationID)
	c.store.MarkRead(conversationID)
	if err := c.api.MarkRead(ctx, conversationID); err != nil {
		c.logger.Warn("server-side mark read failed", zap.Error(err),
			zap.String("conversation_id", conversationID))
	}
	return nil
}

// CloseConversation deselects the active conversation; subsequent inbound
// messages count as unread again.
func (c *Core) CloseConversation() {
	c.store.SetActive("")
}

// CreateConversation creates a conversation server-side and upserts it
// locally. Groups (more than two participants) require a name.
func (c *Core) CreateConversation(ctx context.Context, participantIDs []string, name string) (model.Conversation, error) {
	if len(participantIDs) == 0 {
		return model.Conversation{}, fmt.Errorf("at least one participant required")
	}
	isGroup := len(participantIDs) > 2
	if isGroup && name == "" {
		return model.Conversation{}, fmt.Errorf("group conversations require a name")
	}
	conv, err := c.api.CreateConversation(ctx, participantIDs, isGroup, name)
	if err != nil {
		return model.Conversation{}, fmt.Errorf("create conversation: %w", err)
	}
	c.store.UpsertConversation(conv)
	return conv, nil
}

// handleFrame routes inbound application frames. Unrecognized types are
// logged and ignored for forward compatibility.
func (c *Core) handleFrame(f *protocol.Frame) {
	switch {
	case f.IsChatMessage():
		msg, err := protocol.ParseChatMessage(f)
		if err != nil {
			c.logger.Warn("dropping malformed chat frame", zap.Error(err))
			return
		}
		outcome := c.reconciler.Apply(msg)
		c.logger.Debug("chat frame reconciled",
			zap.String("conversation_id", msg.ConversationID),
			zap.String("outcome", outcome.String()))
	default:
		c.logger.Debug("ignoring unrecognized frame type", zap.String("type", string(f.Type)))
	}
}

func (c *Core) handleStateChange(evt conn.StateEvent) {
	c.bus.Publish(bus.Event{
		Kind:      bus.KindConnectionState,
		Timestamp: time.Now(),
		Payload:   evt,
	})
}
