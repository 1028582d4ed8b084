// Package bus provides the in-process publish/subscribe fan-out that
// decouples the transport and store layers from their consumers.
package bus

import (
	"reflect"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Handler consumes a published event.
type Handler func(Event)

type subscription struct {
	namespace string
	fn        Handler
	key       uintptr
}

// Bus is an in-process publish/subscribe event bus with namespace filtering.
// Handlers run synchronously in registration order; a panicking handler is
// logged and must not prevent the remaining handlers from running.
type Bus struct {
	mu     sync.RWMutex
	subs   []subscription
	logger *zap.Logger
}

// New creates a new event bus. logger may be nil.
func New(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{logger: logger}
}

// Subscribe registers a handler for events whose Kind has the given namespace
// prefix. Re-registering the same handler for the same namespace is a no-op.
func (b *Bus) Subscribe(namespace string, h Handler) {
	if h == nil {
		return
	}
	key := reflect.ValueOf(h).Pointer()
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		if sub.key == key && sub.namespace == namespace {
			return
		}
	}
	b.subs = append(b.subs, subscription{namespace: namespace, fn: h, key: key})
}

// Unsubscribe removes a previously registered handler. Unknown handlers are
// ignored.
func (b *Bus) Unsubscribe(namespace string, h Handler) {
	if h == nil {
		return
	}
	key := reflect.ValueOf(h).Pointer()
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, sub := range b.subs {
		if sub.key == key && sub.namespace == namespace {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// Publish delivers an event to every handler whose namespace is a prefix of
// evt.Kind, synchronously and in registration order.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	matched := make([]subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		if strings.HasPrefix(evt.Kind, sub.namespace) {
			matched = append(matched, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range matched {
		b.invoke(sub, evt)
	}
}

func (b *Bus) invoke(sub subscription, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				zap.String("kind", evt.Kind),
				zap.Any("panic", r))
		}
	}()
	sub.fn(evt)
}
