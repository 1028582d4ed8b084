package conn

import (
	"reflect"
	"sync"
)

// registry is an ordered handler list with idempotent registration: adding
// the same function twice is a no-op, keyed by its code pointer.
type registry[T any] struct {
	mu       sync.RWMutex
	handlers []T
	keys     []uintptr
}

func (r *registry[T]) add(h T) {
	key := reflect.ValueOf(h).Pointer()
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range r.keys {
		if k == key {
			return
		}
	}
	r.handlers = append(r.handlers, h)
	r.keys = append(r.keys, key)
}

func (r *registry[T]) remove(h T) {
	key := reflect.ValueOf(h).Pointer()
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, k := range r.keys {
		if k == key {
			r.handlers = append(r.handlers[:i], r.handlers[i+1:]...)
			r.keys = append(r.keys[:i], r.keys[i+1:]...)
			return
		}
	}
}

// snapshot returns the handlers in registration order.
func (r *registry[T]) snapshot() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]T, len(r.handlers))
	copy(out, r.handlers)
	return out
}
