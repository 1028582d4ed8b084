package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New(nil)
	var got []string
	b.Subscribe("conversation.", func(evt Event) { got = append(got, evt.Kind) })

	b.Publish(Event{Kind: KindConversationRead, Timestamp: time.Now()})

	if len(got) != 1 || got[0] != KindConversationRead {
		t.Errorf("got %v, want [%s]", got, KindConversationRead)
	}
}

func TestNamespaceFiltering(t *testing.T) {
	b := New(nil)
	var got []string
	b.Subscribe("message.", func(evt Event) { got = append(got, evt.Kind) })

	b.Publish(Event{Kind: KindConversationUpserted})
	b.Publish(Event{Kind: KindMessageUpserted})
	b.Publish(Event{Kind: KindConnectionState})

	if len(got) != 1 || got[0] != KindMessageUpserted {
		t.Errorf("got %v, want [%s]", got, KindMessageUpserted)
	}
}

func TestEmptyNamespaceMatchesAll(t *testing.T) {
	b := New(nil)
	var count int
	b.Subscribe("", func(Event) { count++ })

	b.Publish(Event{Kind: KindMessageUpserted})
	b.Publish(Event{Kind: KindConnectionState})

	if count != 2 {
		t.Errorf("got %d events, want 2", count)
	}
}

func TestDuplicateSubscribeIsNoop(t *testing.T) {
	b := New(nil)
	var count int
	h := func(Event) { count++ }

	b.Subscribe("message.", h)
	b.Subscribe("message.", h)

	b.Publish(Event{Kind: KindMessageUpserted})

	if count != 1 {
		t.Errorf("handler invoked %d times, want 1", count)
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New(nil)
	var count int
	h := func(Event) { count++ }

	b.Subscribe("message.", h)
	b.Unsubscribe("message.", h)

	b.Publish(Event{Kind: KindMessageUpserted})

	if count != 0 {
		t.Errorf("received event after unsubscribe")
	}
}

func TestDispatchOrderAndSynchrony(t *testing.T) {
	b := New(nil)
	var order []int
	b.Subscribe("", func(Event) { order = append(order, 1) })
	b.Subscribe("", func(Event) { order = append(order, 2) })
	b.Subscribe("", func(Event) { order = append(order, 3) })

	b.Publish(Event{Kind: KindMessageUpserted})

	// Synchronous dispatch: all handlers ran before Publish returned,
	// in registration order.
	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("got order %v, want [1 2 3]", order)
	}
}

func TestPanicIsolation(t *testing.T) {
	b := New(nil)
	var after bool
	b.Subscribe("", func(Event) { panic("boom") })
	b.Subscribe("", func(Event) { after = true })

	b.Publish(Event{Kind: KindMessageUpserted})

	if !after {
		t.Error("handler after panicking one did not run")
	}
}
