package conn

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Transport is one live bidirectional connection. ReadMessage blocks until a
// frame arrives or the transport dies; both methods return an error once the
// transport is closed.
type Transport interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// Dialer opens a Transport. Swapping the dialer lets tests drive the manager
// with an in-memory fake instead of a real socket.
type Dialer interface {
	Dial(ctx context.Context, rawURL string) (Transport, error)
}

// WebsocketDialer dials a gorilla websocket and adapts it to Transport.
type WebsocketDialer struct{}

// Dial implements Dialer.
func (WebsocketDialer) Dial(ctx context.Context, rawURL string) (Transport, error) {
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, rawURL, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial: %w (HTTP %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	return &wsTransport{ws: ws}, nil
}

// wsTransport serializes writers: gorilla supports at most one concurrent
// writer, and the manager writes from the heartbeat loop, the read loop's
// pong reply and Send callers.
type wsTransport struct {
	writeMu sync.Mutex
	ws      *websocket.Conn
}

func (t *wsTransport) ReadMessage() ([]byte, error) {
	_, data, err := t.ws.ReadMessage()
	return data, err
}

func (t *wsTransport) WriteMessage(data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.ws.WriteMessage(websocket.TextMessage, data)
}

func (t *wsTransport) Close() error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	_ = t.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), closeDeadline())
	return t.ws.Close()
}

func closeDeadline() time.Time {
	return time.Now().Add(time.Second)
}

// connectURL converts an http(s) base URL to its ws(s) equivalent and appends
// the bearer token as a query parameter.
func connectURL(rawURL, token string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	switch {
	case u.Scheme == "http" || strings.EqualFold(u.Scheme, "ws"):
		u.Scheme = "ws"
	default:
		u.Scheme = "wss"
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
