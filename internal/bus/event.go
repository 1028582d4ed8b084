package bus

import "time"

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Event kinds published by the core. Subscribers filter by namespace prefix,
// e.g. "message." matches both upserted and removed.
const (
	KindMessageUpserted   = "message.upserted"
	KindMessageRemoved    = "message.removed"
	KindMessageSendFailed = "message.send_failed"

	KindConversationUpserted = "conversation.upserted"
	KindConversationRead     = "conversation.read"
	KindConversationHydrated = "conversation.hydrated"

	KindConnectionState = "connection.state"
)
