package client

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/imramesh222/bms-chat/internal/auth"
	"github.com/imramesh222/bms-chat/internal/bus"
	"github.com/imramesh222/bms-chat/internal/conn"
	"github.com/imramesh222/bms-chat/internal/delivery"
	"github.com/imramesh222/bms-chat/internal/model"
	"github.com/imramesh222/bms-chat/internal/protocol"
	"github.com/imramesh222/bms-chat/internal/reconcile"
	"github.com/imramesh222/bms-chat/internal/rest"
	"github.com/imramesh222/bms-chat/internal/store"
)

const self = "u1"

type fakeTransport struct {
	mu     sync.Mutex
	in     chan []byte
	closed bool
}

func (t *fakeTransport) ReadMessage() ([]byte, error) {
	data, ok := <-t.in
	if !ok {
		return nil, io.EOF
	}
	return data, nil
}

func (t *fakeTransport) WriteMessage([]byte) error { return nil }

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.closed = true
		close(t.in)
	}
	return nil
}

type fakeDialer struct {
	mu         sync.Mutex
	transports []*fakeTransport
}

func (d *fakeDialer) Dial(context.Context, string) (conn.Transport, error) {
	tr := &fakeTransport{in: make(chan []byte, 16)}
	d.mu.Lock()
	d.transports = append(d.transports, tr)
	d.mu.Unlock()
	return tr, nil
}

func newCore(t *testing.T, apiURL string) (*Core, *fakeDialer) {
	t.Helper()
	d := &fakeDialer{}
	tokens := auth.Static("tok")
	b := bus.New(nil)
	st := store.New(self, b, nil)
	mgr := conn.NewManager(conn.Options{
		TokenSource:  tokens,
		Dialer:       d,
		PingInterval: time.Hour,
		PongTimeout:  time.Hour,
	})
	api := rest.NewClient(apiURL, tokens, nil)
	rec := reconcile.New(st, 0, nil)
	del := delivery.New(st, mgr, api, rec, b, nil)
	return New(Deps{
		ServerURL:  "http://realtime.test/ws",
		Conn:       mgr,
		Bus:        b,
		Store:      st,
		Reconciler: rec,
		Delivery:   del,
		API:        api,
	}), d
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestConnectionStateRepublishedOnBus(t *testing.T) {
	core, _ := newCore(t, "http://api.test")
	defer core.Disconnect()

	var mu sync.Mutex
	var kinds []string
	core.Bus().Subscribe(bus.KindConnectionState, func(evt bus.Event) {
		se, ok := evt.Payload.(conn.StateEvent)
		if !ok {
			t.Errorf("payload type %T", evt.Payload)
			return
		}
		mu.Lock()
		kinds = append(kinds, se.Kind)
		mu.Unlock()
	})

	if err := core.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(kinds) == 2
	})
	mu.Lock()
	defer mu.Unlock()
	if kinds[0] != conn.EventConnecting || kinds[1] != conn.EventConnected {
		t.Errorf("kinds = %v, want [connecting connected]", kinds)
	}
}

func TestInboundChatFrameReachesStore(t *testing.T) {
	core, d := newCore(t, "http://api.test")
	defer core.Disconnect()

	if err := core.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	f, _ := protocol.NewFrame(protocol.FrameTypeChatMessageNew, map[string]any{
		"conversation_id": "c1",
		"message_id":      "m1",
		"content":         "hello",
		"sender":          map[string]string{"id": "u2", "username": "bea"},
	})
	data, _ := f.Encode()
	d.transports[0].in <- data

	waitFor(t, func() bool { return core.Store().HasMessage("c1", "m1") })

	// Conversation synthesized from the frame; reconciler counted it unread.
	c, ok := core.Store().GetConversation("c1")
	if !ok {
		t.Fatal("conversation not synthesized")
	}
	if c.Unread != 1 {
		t.Errorf("unread = %d, want 1", c.Unread)
	}
}

func TestUnrecognizedFrameIgnored(t *testing.T) {
	core, d := newCore(t, "http://api.test")
	defer core.Disconnect()

	if err := core.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	f, _ := protocol.NewFrame(protocol.FrameType("presence.update"), map[string]string{"user": "u2"})
	data, _ := f.Encode()
	d.transports[0].in <- data

	// Follow with a recognized frame to prove the read loop survived.
	chat, _ := protocol.NewFrame(protocol.FrameTypeChatMessage, map[string]any{
		"conversation_id": "c1", "message_id": "m1", "sender_id": "u2",
	})
	data, _ = chat.Encode()
	d.transports[0].in <- data

	waitFor(t, func() bool { return core.Store().HasMessage("c1", "m1") })
}

func TestOpenConversationHydratesAndMarksRead(t *testing.T) {
	var markedRead bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/messages":
			_, _ = w.Write([]byte(`[{"id":"m1","content":"hi","sender_id":"u2","timestamp":"2026-08-30T10:00:00Z"}]`))
		case "/conversations/c1/mark_as_read":
			markedRead = true
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	core, _ := newCore(t, srv.URL)
	core.Store().UpsertConversation(model.Conversation{ID: "c1"})
	core.Store().AppendMessage(model.Message{
		ID: "m0", ConversationID: "c1", SenderID: "u2", Content: "old", Timestamp: time.Now(),
	})

	if err := core.OpenConversation(context.Background(), "c1"); err != nil {
		t.Fatal(err)
	}

	if core.Store().Active() != "c1" {
		t.Errorf("active = %q, want c1", core.Store().Active())
	}
	msgs := core.Store().Messages("c1")
	if len(msgs) != 1 || msgs[0].ID != "m1" {
		t.Errorf("history not replaced: %+v", msgs)
	}
	c, _ := core.Store().GetConversation("c1")
	if c.Unread != 0 {
		t.Errorf("unread = %d, want 0", c.Unread)
	}
	if !markedRead {
		t.Error("server-side mark read not called")
	}

	core.CloseConversation()
	if core.Store().Active() != "" {
		t.Error("active conversation not cleared")
	}
}

func TestCreateConversationGroupNeedsName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"c7","is_group":true,"name":"Ops"}`))
	}))
	defer srv.Close()

	core, _ := newCore(t, srv.URL)

	if _, err := core.CreateConversation(context.Background(), []string{"u1", "u2", "u3"}, ""); err == nil {
		t.Error("unnamed group accepted")
	}
	if _, err := core.CreateConversation(context.Background(), nil, "x"); err == nil {
		t.Error("empty participant list accepted")
	}

	conv, err := core.CreateConversation(context.Background(), []string{"u1", "u2", "u3"}, "Ops")
	if err != nil {
		t.Fatal(err)
	}
	if conv.ID != "c7" {
		t.Errorf("conv = %+v", conv)
	}
	if _, ok := core.Store().GetConversation("c7"); !ok {
		t.Error("created conversation not upserted locally")
	}

	// Two participants: direct conversation, no name required.
	if _, err := core.CreateConversation(context.Background(), []string{"u1", "u2"}, ""); err != nil {
		t.Errorf("direct conversation rejected: %v", err)
	}
}
