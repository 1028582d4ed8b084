// Package reconcile merges locally-originated pending messages with
// server-confirmed messages, whichever path they arrive by. Transport and
// REST confirmations for the same logical send may arrive in either order;
// applying both must converge on a single stored entry.
package reconcile

import (
	"time"

	"go.uber.org/zap"

	"github.com/imramesh222/bms-chat/internal/model"
	"github.com/imramesh222/bms-chat/internal/store"
)

// DefaultWindow is the tolerance for matching a server confirmation against
// a pending optimistic message by content and timestamp proximity. It is a
// heuristic carried over from the reference behavior, tunable per deployment;
// sender-supplied idempotency keys would supersede it if the protocol grows
// them.
const DefaultWindow = 10 * time.Second

// Outcome classifies what applying a message did to the store.
type Outcome int

const (
	// Inserted means a genuinely new message was appended.
	Inserted Outcome = iota
	// Confirmed means a pending optimistic entry was replaced in place.
	Confirmed
	// Duplicate means the message was already present and was dropped.
	Duplicate
)

func (o Outcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case Confirmed:
		return "confirmed"
	case Duplicate:
		return "duplicate"
	default:
		return "unknown"
	}
}

// Reconciler applies inbound chat messages to the store.
type Reconciler struct {
	store  *store.Store
	window time.Duration
	logger *zap.Logger
}

// New creates a reconciler. window <= 0 selects DefaultWindow.
func New(st *store.Store, window time.Duration, logger *zap.Logger) *Reconciler {
	if window <= 0 {
		window = DefaultWindow
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{store: st, window: window, logger: logger}
}

// Apply reconciles one server-sourced message against local state:
// exact server-ID dedup first, then optimistic-replace for messages the
// local user authored, else insert.
func (r *Reconciler) Apply(msg model.Message) Outcome {
	if msg.ID != "" && !model.IsTempID(msg.ID) && r.store.HasMessage(msg.ConversationID, msg.ID) {
		r.logger.Debug("duplicate delivery dropped",
			zap.String("conversation_id", msg.ConversationID),
			zap.String("message_id", msg.ID))
		return Duplicate
	}

	if msg.SenderID == r.store.SelfID() {
		if tempID, ok := r.findPending(msg); ok {
			r.store.ReplaceMessage(msg.ConversationID, tempID, msg)
			r.logger.Debug("optimistic message confirmed",
				zap.String("temp_id", tempID),
				zap.String("message_id", msg.ID))
			return Confirmed
		}
		// No pending match inside the window: a legitimate send from
		// another session of the same user.
	}

	r.store.AppendMessage(msg)
	return Inserted
}

// findPending looks for an optimistic entry with identical content whose
// timestamp lies within the tolerance window of the confirmation.
func (r *Reconciler) findPending(msg model.Message) (string, bool) {
	for _, existing := range r.store.Messages(msg.ConversationID) {
		if !existing.Pending() || existing.Content != msg.Content {
			continue
		}
		delta := msg.Timestamp.Sub(existing.Timestamp)
		if delta < 0 {
			delta = -delta
		}
		if delta <= r.window {
			return existing.ID, true
		}
	}
	return "", false
}
