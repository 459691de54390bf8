// Package wsclient keeps a client WebSocket connection alive: it reconnects
// with exponential backoff after any close, resends the subscription message
// on every successful connect and gives up after a bounded number of attempts.
package wsclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"market-relay/src/helpers"
	"market-relay/src/logger"

	"github.com/gorilla/websocket"
)

const (
	DefaultMaxAttempts = 5
	DefaultBaseDelay   = 1000 * time.Millisecond

	// NoReconnect as Config.MaxAttempts reports the first close as terminal.
	NoReconnect = -1
)

// ErrConnectionFailed is reported once reconnection attempts are exhausted.
var ErrConnectionFailed = errors.New("websocket connection failed")

// -----------------------------------------------------------------------------
// Transport seams
// -----------------------------------------------------------------------------

// Conn is the subset of *websocket.Conn the manager uses.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, url string) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context, url string) (Conn, error) {
	return f(ctx, url)
}

type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type gorillaDialer struct {
	dialer *websocket.Dialer
}

func (g gorillaDialer) Dial(ctx context.Context, url string) (Conn, error) {
	conn, _, err := g.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// -----------------------------------------------------------------------------
// Manager
// -----------------------------------------------------------------------------

// Config of a Manager. A zero MaxAttempts means DefaultMaxAttempts, a
// negative one disables reconnection. A zero BaseDelay means DefaultBaseDelay.
type Config struct {
	URL         string
	MaxAttempts int
	BaseDelay   time.Duration
}

type Option func(*Manager)

func WithDialer(d Dialer) Option {
	return func(m *Manager) { m.dialer = d }
}

func WithScheduler(s Scheduler) Option {
	return func(m *Manager) { m.scheduler = s }
}

func WithLogger(l *logger.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// Manager owns one logical client connection.
type Manager struct {
	cfg       Config
	dialer    Dialer
	scheduler Scheduler
	logger    *logger.Logger
	onMessage func([]byte)
	onError   func(error)

	mu         sync.Mutex
	writeMu    sync.Mutex
	conn       Conn
	attempts   int
	initial    []byte
	timer      Timer
	cancelDial context.CancelFunc
	stopped    bool
	gen        uint64 // bumped by every connect and by Disconnect
}

func NewManager(cfg Config, onMessage func([]byte), onError func(error), opts ...Option) *Manager {
	switch {
	case cfg.MaxAttempts == 0:
		cfg.MaxAttempts = DefaultMaxAttempts
	case cfg.MaxAttempts < 0:
		cfg.MaxAttempts = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	if onMessage == nil {
		onMessage = func([]byte) {}
	}
	if onError == nil {
		onError = func(error) {}
	}

	m := &Manager{
		cfg:       cfg,
		dialer:    gorillaDialer{dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second}},
		scheduler: realScheduler{},
		onMessage: onMessage,
		onError:   onError,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = logger.NewLogger("WebSocketManager").With("url", cfg.URL)
	}
	return m
}

// -----------------------------------------------------------------------------

// Connect dials the endpoint and, once open, sends initial (when non-nil).
// initial is remembered and resent after every successful reconnect. A failed
// dial is reported to onError and starts the backoff cycle.
func (m *Manager) Connect(initial []byte) {
	m.mu.Lock()
	m.stopped = false
	m.initial = initial
	m.mu.Unlock()

	m.connect()
}

func (m *Manager) connect() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.gen++
	gen := m.gen
	old := m.conn
	m.conn = nil
	ctx, cancel := context.WithCancel(context.Background())
	m.cancelDial = cancel
	m.mu.Unlock()

	if old != nil {
		old.Close()
	}

	conn, err := m.dialer.Dial(ctx, m.cfg.URL)
	cancel()

	m.mu.Lock()
	if m.stopped || gen != m.gen {
		m.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	m.cancelDial = nil
	if err != nil {
		m.mu.Unlock()
		m.logger.Warning("Connect failed: %v", err)
		m.onError(helpers.NewTransportError("websocket dial failed", err))
		m.attemptReconnect(gen)
		return
	}
	m.conn = conn
	m.attempts = 0
	initial := m.initial
	m.mu.Unlock()

	m.logger.Info("WebSocket connected")

	if initial != nil {
		if err := m.write(conn, websocket.TextMessage, initial); err != nil {
			m.logger.Warning("Initial message not sent: %v", err)
		}
	}

	go m.readLoop(conn, gen)
}

// -----------------------------------------------------------------------------

func (m *Manager) readLoop(conn Conn, gen uint64) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.mu.Lock()
			current := !m.stopped && gen == m.gen
			if m.conn == conn {
				m.conn = nil
			}
			m.mu.Unlock()

			conn.Close()
			if !current {
				return
			}

			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				m.logger.Info("WebSocket closed")
			} else {
				m.logger.Warning("WebSocket error: %v", err)
				m.onError(helpers.NewTransportError("websocket connection lost", err))
			}
			m.attemptReconnect(gen)
			return
		}
		m.dispatch(data)
	}
}

// dispatch hands one frame to onMessage; a panicking handler drops the frame.
func (m *Manager) dispatch(data []byte) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Message handler panicked, frame dropped: %v", r)
		}
	}()
	m.onMessage(data)
}

// -----------------------------------------------------------------------------

// attemptReconnect schedules the next connect after BaseDelay*2^attempts, or
// reports ErrConnectionFailed once MaxAttempts reconnects were made.
func (m *Manager) attemptReconnect(gen uint64) {
	m.mu.Lock()
	if m.stopped || gen != m.gen {
		m.mu.Unlock()
		return
	}

	if m.attempts >= m.cfg.MaxAttempts {
		attempts := m.attempts
		m.mu.Unlock()
		m.logger.Error("Max reconnection attempts (%d) reached", attempts)
		m.onError(ErrConnectionFailed)
		return
	}

	delay := m.cfg.BaseDelay * time.Duration(1<<m.attempts)
	m.logger.Info("Reconnecting in %v (attempt %d/%d)", delay, m.attempts+1, m.cfg.MaxAttempts)

	m.timer = m.scheduler.AfterFunc(delay, func() {
		m.mu.Lock()
		if m.stopped || gen != m.gen {
			m.mu.Unlock()
			return
		}
		m.timer = nil
		m.attempts++
		m.mu.Unlock()

		m.connect()
	})
	m.mu.Unlock()
}

// -----------------------------------------------------------------------------

// Send transmits data when connected. Otherwise the data is dropped and Send
// reports false.
func (m *Manager) Send(data []byte) bool {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()

	if conn == nil {
		return false
	}
	if err := m.write(conn, websocket.TextMessage, data); err != nil {
		m.logger.Warning("Send failed: %v", err)
		return false
	}
	return true
}

func (m *Manager) write(conn Conn, messageType int, data []byte) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if err := conn.WriteMessage(messageType, data); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// -----------------------------------------------------------------------------

// Disconnect stops the manager: the pending reconnect timer is cancelled, an
// in-flight dial is aborted and the socket is closed. No connect happens
// afterwards until Connect is called again.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.stopped = true
	m.gen++
	timer := m.timer
	m.timer = nil
	cancel := m.cancelDial
	m.cancelDial = nil
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
	if cancel != nil {
		cancel()
	}
	if conn != nil {
		m.write(conn, websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
	}
}

// Attempts returns the number of reconnects made since the last successful
// connect.
func (m *Manager) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn != nil
}
