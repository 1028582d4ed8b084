// Package conn owns the single persistent connection to the realtime
// backend: connect/disconnect/reconnect, the application-level heartbeat,
// the connection state machine, and queueing of outbound frames while the
// connection is down.
package conn

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/imramesh222/bms-chat/internal/auth"
	"github.com/imramesh222/bms-chat/internal/protocol"
)

// ErrNoToken is returned by Connect when the token supplier has no valid
// bearer token. No connection attempt is made and no retry is scheduled.
var ErrNoToken = errors.New("no authentication token available")

// ErrHeartbeatTimeout marks a connection declared dead because no pong
// arrived in time. It is handled internally like any transport drop.
var ErrHeartbeatTimeout = errors.New("heartbeat timeout")

// ErrClosed is returned when an explicit Disconnect raced a connect attempt.
var ErrClosed = errors.New("connection closed")

// Reference tunables. Options fields left zero fall back to these.
const (
	DefaultPingInterval  = 25 * time.Second
	DefaultPongTimeout   = 10 * time.Second
	DefaultBackoffBase   = time.Second
	DefaultBackoffCap    = 30 * time.Second
	DefaultBackoffJitter = time.Second
	DefaultMaxAttempts   = 5
	DefaultQueueCap      = 500
)

// MessageHandler receives inbound application frames. Heartbeat frames are
// consumed internally and never reach message handlers.
type MessageHandler func(*protocol.Frame)

// StateHandler receives connection-state transitions.
type StateHandler func(StateEvent)

// Options configures a Manager.
type Options struct {
	TokenSource   auth.TokenSource
	Dialer        Dialer
	Logger        *zap.Logger
	PingInterval  time.Duration
	PongTimeout   time.Duration
	BackoffBase   time.Duration
	BackoffCap    time.Duration
	BackoffJitter time.Duration
	MaxAttempts   int
	QueueCap      int
}

func (o *Options) defaults() {
	if o.Dialer == nil {
		o.Dialer = WebsocketDialer{}
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.PingInterval <= 0 {
		o.PingInterval = DefaultPingInterval
	}
	if o.PongTimeout <= 0 {
		o.PongTimeout = DefaultPongTimeout
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = DefaultBackoffBase
	}
	if o.BackoffCap <= 0 {
		o.BackoffCap = DefaultBackoffCap
	}
	if o.BackoffJitter < 0 {
		o.BackoffJitter = 0
	} else if o.BackoffJitter == 0 {
		o.BackoffJitter = DefaultBackoffJitter
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.QueueCap <= 0 {
		o.QueueCap = DefaultQueueCap
	}
}

type inflight struct {
	url  string
	done chan struct{}
	err  error
}

// Manager maintains at most one live transport at a time. It is constructed
// explicitly and injected into its consumers; there is no package-level
// singleton.
type Manager struct {
	opts   Options
	logger *zap.Logger

	machine       *machine
	msgHandlers   registry[MessageHandler]
	stateHandlers registry[StateHandler]

	mu             sync.Mutex
	url            string
	transport      Transport
	gen            int
	closed         bool
	queue          [][]byte
	bo             backoff
	reconnectTimer *time.Timer
	pongTimer      *time.Timer
	done           chan struct{}
	infl           *inflight
	lastPing       time.Time // zero when the last ping was answered
}

// NewManager creates a connection manager. It does not connect.
func NewManager(opts Options) *Manager {
	opts.defaults()
	return &Manager{
		opts:    opts,
		logger:  opts.Logger,
		machine: newMachine(),
		bo: backoff{
			base:        opts.BackoffBase,
			cap:         opts.BackoffCap,
			jitter:      opts.BackoffJitter,
			maxAttempts: opts.MaxAttempts,
		},
	}
}

// State returns the current connection state.
func (m *Manager) State() State {
	return m.machine.Current()
}

// IsOpen reports whether frames can be transmitted immediately.
func (m *Manager) IsOpen() bool {
	return m.machine.Current() == Open
}

// OnMessage registers a frame handler. Re-adding the same handler is a no-op.
func (m *Manager) OnMessage(h MessageHandler) { m.msgHandlers.add(h) }

// OffMessage removes a frame handler.
func (m *Manager) OffMessage(h MessageHandler) { m.msgHandlers.remove(h) }

// OnConnectionChange registers a state-transition handler. Re-adding the
// same handler is a no-op.
func (m *Manager) OnConnectionChange(h StateHandler) { m.stateHandlers.add(h) }

// OffConnectionChange removes a state-transition handler.
func (m *Manager) OffConnectionChange(h StateHandler) { m.stateHandlers.remove(h) }

// Connect establishes the connection. It is idempotent: when already Open
// against the same URL it returns nil, and a concurrent call while an attempt
// is in flight joins that attempt instead of opening a second transport.
// An empty token from the supplier fails with ErrNoToken before any network
// I/O.
func (m *Manager) Connect(ctx context.Context, rawURL string) error {
	token := ""
	if m.opts.TokenSource != nil {
		token = m.opts.TokenSource.Token()
	}
	if token == "" {
		return ErrNoToken
	}

	m.mu.Lock()
	if m.machine.Current() == Open {
		url := m.url
		m.mu.Unlock()
		if url == rawURL {
			return nil
		}
		return fmt.Errorf("already connected to %s", url)
	}
	if fl := m.infl; fl != nil {
		m.mu.Unlock()
		if fl.url != rawURL {
			return fmt.Errorf("connect already in flight for %s", fl.url)
		}
		<-fl.done
		return fl.err
	}
	// Validate the transition before touching url/closed so a rejected call
	// leaves the manager exactly as it found it.
	if err := m.machine.Transition(Connecting); err != nil {
		m.mu.Unlock()
		return err
	}
	m.closed = false
	m.url = rawURL
	m.stopReconnectTimerLocked()
	fl := &inflight{url: rawURL, done: make(chan struct{})}
	m.infl = fl
	m.mu.Unlock()

	m.emit(StateEvent{Kind: EventConnecting, State: Connecting})

	err := m.dial(ctx, rawURL, token)

	m.mu.Lock()
	fl.err = err
	m.infl = nil
	m.mu.Unlock()
	close(fl.done)
	return err
}

func (m *Manager) dial(ctx context.Context, rawURL, token string) error {
	wsURL, err := connectURL(rawURL, token)
	if err != nil {
		m.failAttempt(err)
		return err
	}

	tr, err := m.opts.Dialer.Dial(ctx, wsURL)
	if err != nil {
		err = fmt.Errorf("connect %s: %w", rawURL, err)
		m.failAttempt(err)
		return err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		_ = tr.Close()
		return ErrClosed
	}
	m.gen++
	gen := m.gen
	m.transport = tr
	m.done = make(chan struct{})
	done := m.done
	_ = m.machine.Transition(Open)
	m.bo.reset()
	m.lastPing = time.Time{}
	queued := m.queue
	m.queue = nil
	m.flushLocked(tr, queued)
	m.mu.Unlock()

	m.emit(StateEvent{Kind: EventConnected, State: Open})

	go m.readLoop(gen, tr)
	go m.heartbeatLoop(gen, tr, done)
	return nil
}

// flushLocked drains frames queued while disconnected, strictly FIFO. The
// caller holds m.mu, so a concurrent Send cannot take the Open fast path and
// overtake older queued frames. Frames that could not be written go back to
// the head of the queue.
func (m *Manager) flushLocked(tr Transport, queued [][]byte) {
	for i, data := range queued {
		if err := tr.WriteMessage(data); err != nil {
			m.logger.Warn("queue flush interrupted", zap.Error(err), zap.Int("remaining", len(queued)-i))
			m.queue = append(append([][]byte{}, queued[i:]...), m.queue...)
			return
		}
	}
	if len(queued) > 0 {
		m.logger.Info("outbound queue flushed", zap.Int("frames", len(queued)))
	}
}

// failAttempt handles a dial failure: unless the caller disconnected in the
// meantime, a reconnect is scheduled with backoff.
func (m *Manager) failAttempt(cause error) {
	m.mu.Lock()
	if m.closed {
		_ = m.machine.Transition(Closed)
		m.mu.Unlock()
		return
	}
	evt := m.scheduleReconnectLocked(cause)
	m.mu.Unlock()
	if evt != nil {
		m.emit(*evt)
	}
}

// scheduleReconnectLocked transitions to Reconnecting and arms the backoff
// timer, or to Failed when the attempt budget is exhausted. Exactly one
// reconnect timer is live at a time.
func (m *Manager) scheduleReconnectLocked(cause error) *StateEvent {
	if m.bo.exhausted() {
		_ = m.machine.Transition(Reconnecting)
		_ = m.machine.Transition(Failed)
		m.logger.Error("reconnect attempts exhausted",
			zap.Int("attempts", m.bo.attempt), zap.Error(cause))
		return &StateEvent{Kind: EventError, State: Failed, Attempt: m.bo.attempt, Err: cause}
	}
	_ = m.machine.Transition(Reconnecting)
	delay := m.bo.next()
	attempt := m.bo.attempt
	gen := m.gen
	m.reconnectTimer = time.AfterFunc(delay, func() { m.retry(gen) })
	m.logger.Warn("connection lost, reconnect scheduled",
		zap.Int("attempt", attempt), zap.Duration("delay", delay), zap.Error(cause))
	return &StateEvent{Kind: EventReconnecting, State: Reconnecting, Attempt: attempt, Err: cause}
}

func (m *Manager) retry(gen int) {
	m.mu.Lock()
	if m.closed || gen != m.gen || m.infl != nil {
		m.mu.Unlock()
		return
	}
	m.reconnectTimer = nil
	url := m.url
	m.mu.Unlock()

	err := m.Connect(context.Background(), url)
	if errors.Is(err, ErrNoToken) {
		// Auth failures are not retried automatically.
		m.mu.Lock()
		_ = m.machine.Transition(Failed)
		m.mu.Unlock()
		m.emit(StateEvent{Kind: EventError, State: Failed, Err: err})
	}
}

// Reconnect forces a fresh connection attempt with the backoff counter reset
// to zero. It is a no-op while an attempt is already in flight.
func (m *Manager) Reconnect() {
	m.mu.Lock()
	if m.infl != nil {
		m.mu.Unlock()
		return
	}
	m.bo.reset()
	m.stopReconnectTimerLocked()
	url := m.url
	m.mu.Unlock()
	if url == "" {
		return
	}
	go func() {
		if err := m.Connect(context.Background(), url); err != nil {
			m.logger.Warn("manual reconnect failed", zap.Error(err))
		}
	}()
}

// Disconnect marks the connection explicitly closed, suppressing
// auto-reconnect, and tears down the transport together with every pending
// timer. Safe to call from any state, including when already disconnected.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.closed = true
	m.gen++
	m.stopTimersLocked()
	if m.transport != nil {
		_ = m.machine.Transition(Closing)
		_ = m.transport.Close()
		m.transport = nil
	}
	_ = m.machine.Transition(Closed)
	m.lastPing = time.Time{}
	m.mu.Unlock()

	m.emit(StateEvent{Kind: EventDisconnected, State: Closed})
}

// Send transmits a frame immediately when Open; otherwise the frame joins
// the bounded FIFO queue and, if no attempt is pending, a reconnect is
// kicked off. When the queue is full the oldest frame is dropped with a
// warning.
func (m *Manager) Send(f *protocol.Frame) error {
	data, err := f.Encode()
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}

	m.mu.Lock()
	if m.machine.Current() == Open && m.transport != nil {
		tr := m.transport
		m.mu.Unlock()
		return tr.WriteMessage(data)
	}

	if len(m.queue) >= m.opts.QueueCap {
		m.queue = m.queue[1:]
		m.logger.Warn("outbound queue full, dropping oldest frame", zap.Int("cap", m.opts.QueueCap))
	}
	m.queue = append(m.queue, data)

	cur := m.machine.Current()
	kick := (cur == Closed || cur == Idle) && m.url != "" && m.infl == nil
	url := m.url
	m.mu.Unlock()

	if kick {
		go func() {
			if err := m.Connect(context.Background(), url); err != nil {
				m.logger.Warn("reconnect for queued send failed", zap.Error(err))
			}
		}()
	}
	return nil
}

// QueueLen returns the number of frames waiting for the connection to open.
func (m *Manager) QueueLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

func (m *Manager) readLoop(gen int, tr Transport) {
	for {
		data, err := tr.ReadMessage()
		if err != nil {
			m.transportDown(gen, err)
			return
		}

		frame, err := protocol.Decode(data)
		if err != nil {
			m.logger.Warn("malformed frame", zap.Error(err))
			continue
		}

		switch frame.Type {
		case protocol.FrameTypePing:
			// Answer immediately, echoing the remote timestamp. Heartbeat
			// frames never reach message handlers.
			var p protocol.Ping
			_ = frame.ParsePayload(&p)
			pong, _ := protocol.NewFrame(protocol.FrameTypePong, protocol.Pong{Timestamp: p.Timestamp})
			out, _ := pong.Encode()
			if err := tr.WriteMessage(out); err != nil {
				m.logger.Debug("pong write failed", zap.Error(err))
			}
		case protocol.FrameTypePong:
			m.mu.Lock()
			if gen == m.gen {
				m.lastPing = time.Time{}
				if m.pongTimer != nil {
					m.pongTimer.Stop()
					m.pongTimer = nil
				}
			}
			m.mu.Unlock()
		default:
			for _, h := range m.msgHandlers.snapshot() {
				m.invokeMessage(h, frame)
			}
		}
	}
}

func (m *Manager) invokeMessage(h MessageHandler, f *protocol.Frame) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("message handler panicked",
				zap.String("type", string(f.Type)), zap.Any("panic", r))
		}
	}()
	h(f)
}

// heartbeatLoop sends a ping every PingInterval. The first ping after a pong
// arms a watchdog; if that ping is still unanswered PingInterval+PongTimeout
// later, the connection is declared dead exactly once.
func (m *Manager) heartbeatLoop(gen int, tr Transport, done chan struct{}) {
	ticker := time.NewTicker(m.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
		}

		now := time.Now()
		m.mu.Lock()
		if m.closed || gen != m.gen {
			m.mu.Unlock()
			return
		}
		if m.lastPing.IsZero() {
			m.lastPing = now
			deadline := m.opts.PingInterval + m.opts.PongTimeout
			m.pongTimer = time.AfterFunc(deadline, func() { m.pongDeadline(gen, now) })
		}
		m.mu.Unlock()

		ping, _ := protocol.NewFrame(protocol.FrameTypePing, protocol.Ping{Timestamp: now.UnixMilli()})
		out, _ := ping.Encode()
		if err := tr.WriteMessage(out); err != nil {
			// The read loop observes the dead transport and recovers.
			m.logger.Debug("ping write failed", zap.Error(err))
		}
	}
}

func (m *Manager) pongDeadline(gen int, pingAt time.Time) {
	m.mu.Lock()
	if m.closed || gen != m.gen || m.lastPing.IsZero() || !m.lastPing.Equal(pingAt) {
		m.mu.Unlock()
		return
	}
	evt := m.teardownLocked(ErrHeartbeatTimeout)
	m.mu.Unlock()
	if evt != nil {
		m.emit(*evt)
	}
}

func (m *Manager) transportDown(gen int, cause error) {
	m.mu.Lock()
	if m.closed || gen != m.gen {
		m.mu.Unlock()
		return
	}
	evt := m.teardownLocked(cause)
	m.mu.Unlock()
	if evt != nil {
		m.emit(*evt)
	}
}

// teardownLocked invalidates the current generation, closes the transport and
// heartbeat, and schedules the reconnect. Callers hold m.mu.
func (m *Manager) teardownLocked(cause error) *StateEvent {
	m.gen++
	m.stopTimersLocked()
	if m.transport != nil {
		_ = m.transport.Close()
		m.transport = nil
	}
	m.lastPing = time.Time{}
	return m.scheduleReconnectLocked(cause)
}

func (m *Manager) stopReconnectTimerLocked() {
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
}

func (m *Manager) stopTimersLocked() {
	m.stopReconnectTimerLocked()
	if m.pongTimer != nil {
		m.pongTimer.Stop()
		m.pongTimer = nil
	}
	if m.done != nil {
		close(m.done)
		m.done = nil
	}
}

func (m *Manager) emit(evt StateEvent) {
	for _, h := range m.stateHandlers.snapshot() {
		m.invokeState(h, evt)
	}
}

func (m *Manager) invokeState(h StateHandler, evt StateEvent) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("state handler panicked",
				zap.String("kind", evt.Kind), zap.Any("panic", r))
		}
	}()
	h(evt)
}
