package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/groundplan/client/internal/logging"
	"github.com/groundplan/client/internal/monitoring"
	"github.com/groundplan/client/internal/protocol"
	"github.com/groundplan/client/internal/store"
	"go.uber.org/zap"
)

// ReconnectFailedMessage is surfaced in the error state once the
// reconnection schedule is exhausted.
const ReconnectFailedMessage = "Connection failed after multiple attempts"

var (
	ErrNotConnected    = errors.New("stream is not connected")
	ErrNoCredential    = errors.New("no credential available")
	ErrSessionRequired = errors.New("session id is required")

	errSuperseded = errors.New("connection superseded")
)

// TokenSource resolves the bearer credential. It is consulted at
// connect time and again at every reconnect attempt.
type TokenSource interface {
	Token() (string, bool)
}

// Dispatcher receives every inbound envelope, in arrival order.
type Dispatcher interface {
	Dispatch(env protocol.Envelope)
}

// Config tunes the connection manager.
type Config struct {
	// BaseURL is the service's HTTP base (http:// or https://); the
	// stream endpoint and scheme are derived from it.
	BaseURL string

	HeartbeatInterval time.Duration
	HandshakeTimeout  time.Duration
	WriteTimeout      time.Duration

	// FeedBuffer is the per-subscriber envelope buffer; slow
	// subscribers drop overflow rather than stalling the read loop.
	FeedBuffer int

	// Reconnection schedule overrides, zero means default.
	MaxAttempts int
	BackoffBase time.Duration
	BackoffCap  time.Duration
}

func (c Config) withDefaults() Config {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.FeedBuffer <= 0 {
		c.FeedBuffer = 64
	}
	return c
}

// Manager maintains the stream connection and its lifecycle.
type Manager struct {
	cfg        Config
	tokens     TokenSource
	dispatcher Dispatcher
	store      *store.Store
	metrics    *monitoring.Metrics
	log        *logging.Logger
	backoff    *backoff

	mu         sync.Mutex
	conn       *websocket.Conn
	sessionID  string
	generation uint64
	status     store.ConnectionStatus
	hbStop     chan struct{}
	retryTimer *time.Timer

	writeMu sync.Mutex

	feedMu   sync.Mutex
	feeds    map[uint64]chan protocol.Envelope
	nextFeed uint64
}

// New creates a connection manager. The manager owns all connection
// state; the store only mirrors it for observers.
func New(cfg Config, tokens TokenSource, dispatcher Dispatcher, st *store.Store, metrics *monitoring.Metrics, log *logging.Logger) *Manager {
	cfg = cfg.withDefaults()
	return &Manager{
		cfg:        cfg,
		tokens:     tokens,
		dispatcher: dispatcher,
		store:      st,
		metrics:    metrics,
		log:        log.Named("stream"),
		backoff:    newBackoff(cfg.MaxAttempts, cfg.BackoffBase, cfg.BackoffCap),
		status:     store.StatusDisconnected,
		feeds:      make(map[uint64]chan protocol.Envelope),
	}
}

// Connect binds the manager to a session and opens the stream. An
// existing connection, including a pending reconnect, is torn down
// first. A dial failure starts the reconnection schedule and is also
// returned to the caller.
func (m *Manager) Connect(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrSessionRequired
	}

	m.mu.Lock()
	m.teardownLocked()
	m.sessionID = sessionID
	m.backoff.reset()
	expect := m.generation
	m.mu.Unlock()

	token, ok := m.tokens.Token()
	if !ok {
		return ErrNoCredential
	}

	if err := m.dial(ctx, expect, sessionID, token, false); err != nil {
		if errors.Is(err, errSuperseded) {
			return nil
		}
		m.scheduleReconnect()
		return err
	}
	return nil
}

// Disconnect closes the stream and cancels any pending reconnect.
// This is the only path that stops a scheduled retry. Idempotent.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teardownLocked()
	m.sessionID = ""
}

// Send writes an envelope to the stream. Envelopes are dropped with
// ErrNotConnected unless the stream is connected; cancel is the
// exception and goes out whenever a socket handle still exists.
func (m *Manager) Send(env protocol.Envelope) error {
	m.mu.Lock()
	conn := m.conn
	status := m.status
	m.mu.Unlock()

	if env.Type == protocol.TypeCancel {
		if conn == nil {
			m.log.Debug("dropping cancel without a socket")
			m.metrics.FramesDropped.Inc()
			return ErrNotConnected
		}
	} else if status != store.StatusConnected || conn == nil {
		m.log.Debug("dropping envelope while not connected", zap.String("type", string(env.Type)))
		m.metrics.FramesDropped.Inc()
		return ErrNotConnected
	}

	return m.write(conn, env)
}

// Subscribe attaches a feed that receives every inbound envelope.
// Slow consumers lose envelopes instead of blocking the read loop.
func (m *Manager) Subscribe() (<-chan protocol.Envelope, func()) {
	m.feedMu.Lock()
	defer m.feedMu.Unlock()

	id := m.nextFeed
	m.nextFeed++
	ch := make(chan protocol.Envelope, m.cfg.FeedBuffer)
	m.feeds[id] = ch

	cancel := func() {
		m.feedMu.Lock()
		defer m.feedMu.Unlock()
		delete(m.feeds, id)
	}
	return ch, cancel
}

// Status returns the manager's view of the connection state.
func (m *Manager) Status() store.ConnectionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// SessionID returns the bound session, empty when disconnected.
func (m *Manager) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionID
}

func (m *Manager) dial(ctx context.Context, expect uint64, sessionID, token string, isRetry bool) error {
	endpoint, err := m.streamURL(sessionID, token)
	if err != nil {
		return err
	}

	m.setStatus(store.StatusConnecting)

	dialer := websocket.Dialer{HandshakeTimeout: m.cfg.HandshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		m.log.Warn("stream dial failed", zap.Error(err), zap.Bool("retry", isRetry))
		return fmt.Errorf("dial stream: %w", err)
	}

	m.mu.Lock()
	if m.generation != expect {
		m.mu.Unlock()
		conn.Close()
		return errSuperseded
	}
	m.generation++
	m.conn = conn
	m.hbStop = make(chan struct{})
	hbStop := m.hbStop
	gen := m.generation
	m.backoff.reset()
	m.setStatusLocked(store.StatusConnected)
	m.mu.Unlock()

	if isRetry {
		m.metrics.Reconnects.Inc()
	}
	m.log.Info("stream connected", zap.String("session_id", sessionID), zap.Bool("retry", isRetry))

	go m.heartbeat(hbStop)
	go m.readLoop(conn, gen)
	return nil
}

// readLoop is the sole reader of a physical connection. Every decoded
// envelope is fanned out to subscribers and then dispatched, so store
// mutations follow arrival order.
func (m *Manager) readLoop(conn *websocket.Conn, gen uint64) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.handleReadExit(gen, err)
			return
		}

		env, err := protocol.Decode(data)
		if err != nil {
			m.log.Warn("dropping undecodable frame", zap.Error(err))
			m.metrics.FramesDropped.Inc()
			continue
		}

		m.metrics.RecordEnvelopeReceived(string(env.Type))
		m.publish(env)
		m.dispatcher.Dispatch(env)

		switch p := env.Payload.(type) {
		case *protocol.ConnectedPayload:
			// The server confirmed the session; the retry budget
			// starts over.
			m.backoff.reset()
		case *protocol.ErrorPayload:
			if !p.Recoverable {
				m.log.Warn("unrecoverable service error, closing stream",
					zap.String("code", p.Code), zap.String("message", p.Message))
				m.Disconnect()
				return
			}
		}
	}
}

func (m *Manager) handleReadExit(gen uint64, cause error) {
	m.mu.Lock()
	if m.generation != gen {
		// Intentional teardown already superseded this connection.
		m.mu.Unlock()
		return
	}
	if m.hbStop != nil {
		close(m.hbStop)
		m.hbStop = nil
	}
	m.conn = nil
	m.mu.Unlock()

	m.log.Warn("stream closed uncleanly", zap.Error(cause))
	m.scheduleReconnect()
}

func (m *Manager) scheduleReconnect() {
	m.mu.Lock()
	if m.sessionID == "" {
		m.mu.Unlock()
		return
	}

	delay, ok := m.backoff.next()
	if !ok {
		m.status = store.StatusError
		m.mu.Unlock()
		m.metrics.SetConnectionState(monitoring.StateError)
		m.store.SetConnectionError(ReconnectFailedMessage)
		m.log.Error("reconnection attempts exhausted")
		return
	}

	m.setStatusLocked(store.StatusConnecting)
	attempt := m.backoff.current()
	expect := m.generation
	m.retryTimer = time.AfterFunc(delay, func() { m.retry(expect) })
	m.mu.Unlock()

	m.metrics.ReconnectAttempts.Inc()
	m.log.Info("reconnect scheduled", zap.Int("attempt", attempt), zap.Duration("delay", delay))
}

func (m *Manager) retry(expect uint64) {
	m.mu.Lock()
	if m.generation != expect || m.sessionID == "" {
		m.mu.Unlock()
		return
	}
	sessionID := m.sessionID
	m.retryTimer = nil
	m.mu.Unlock()

	// Re-resolve the credential at fire time so a rotation during
	// the backoff window is picked up.
	token, ok := m.tokens.Token()
	if !ok {
		m.log.Warn("no credential available for reconnect")
		m.scheduleReconnect()
		return
	}

	if err := m.dial(context.Background(), expect, sessionID, token, true); err != nil {
		if errors.Is(err, errSuperseded) {
			return
		}
		m.scheduleReconnect()
	}
}

// heartbeat pings the server at the configured interval while the
// stream is up. Send's own gating stops pings the moment the state
// leaves connected.
func (m *Manager) heartbeat(stop <-chan struct{}) {
	ticker := time.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := m.Send(protocol.NewPing()); err != nil {
				return
			}
		}
	}
}

func (m *Manager) write(conn *websocket.Conn, env protocol.Envelope) error {
	data, err := protocol.Encode(env)
	if err != nil {
		return err
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(m.cfg.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write %s envelope: %w", env.Type, err)
	}
	m.metrics.RecordEnvelopeSent(string(env.Type))
	return nil
}

func (m *Manager) publish(env protocol.Envelope) {
	m.feedMu.Lock()
	defer m.feedMu.Unlock()

	for _, ch := range m.feeds {
		select {
		case ch <- env:
		default:
			m.log.Warn("feed subscriber lagging, dropping envelope",
				zap.String("type", string(env.Type)))
		}
	}
}

// teardownLocked releases the current connection and all of its
// goroutines and timers. Callers must hold m.mu.
func (m *Manager) teardownLocked() {
	m.generation++
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
	if m.hbStop != nil {
		close(m.hbStop)
		m.hbStop = nil
	}
	if m.conn != nil {
		_ = m.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = m.conn.Close()
		m.conn = nil
	}
	m.setStatusLocked(store.StatusDisconnected)
}

func (m *Manager) streamURL(sessionID, token string) (string, error) {
	base, err := url.Parse(m.cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}

	scheme := "ws"
	if base.Scheme == "https" || base.Scheme == "wss" {
		scheme = "wss"
	}

	endpoint := url.URL{
		Scheme: scheme,
		Host:   base.Host,
		Path:   path.Join(base.Path, "ws", "chat", sessionID),
	}
	q := url.Values{}
	q.Set("token", token)
	endpoint.RawQuery = q.Encode()
	return endpoint.String(), nil
}

func (m *Manager) setStatus(s store.ConnectionStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setStatusLocked(s)
}

func (m *Manager) setStatusLocked(s store.ConnectionStatus) {
	m.status = s
	m.store.SetConnectionStatus(s)
	m.metrics.SetConnectionState(connectionGauge(s))
}

func connectionGauge(s store.ConnectionStatus) int {
	switch s {
	case store.StatusConnecting:
		return monitoring.StateConnecting
	case store.StatusConnected:
		return monitoring.StateConnected
	case store.StatusError:
		return monitoring.StateError
	default:
		return monitoring.StateDisconnected
	}
}
