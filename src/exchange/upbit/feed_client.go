package upbit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"market-relay/src/helpers"
	"market-relay/src/logger"
	"market-relay/src/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a control frame.
	writeWait = 2 * time.Second

	defaultPingInterval = 30 * time.Second
)

// Sink receives every upstream frame unmodified.
type Sink func(messageType int, data []byte)

// -----------------------------------------------------------------------------

// FeedClient owns one upstream WebSocket connection carrying one subscription.
// It never retries; the owner decides what to do when the feed fails.
type FeedClient struct {
	url          string
	sub          models.MSubscription
	pingInterval time.Duration
	dialer       *websocket.Dialer
	sink         Sink
	onError      func(error)
	logger       *logger.Logger

	mu         sync.Mutex
	conn       *websocket.Conn
	cancelDial context.CancelFunc
	started    bool
	closed     bool

	done     chan struct{}
	doneOnce sync.Once
}

// -----------------------------------------------------------------------------

func NewFeedClient(cfg models.MExchangeConfig, sub models.MSubscription, sink Sink, onError func(error)) *FeedClient {
	interval := time.Duration(cfg.PingIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = defaultPingInterval
	}
	if onError == nil {
		onError = func(error) {}
	}

	return &FeedClient{
		url:          cfg.WSURL,
		sub:          sub,
		pingInterval: interval,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
		sink:    sink,
		onError: onError,
		logger: logger.NewLogger("UpbitFeed").
			With("type", string(sub.DataType)).
			With("codes", strings.Join(sub.Symbols, ",")),
		done: make(chan struct{}),
	}
}

// -----------------------------------------------------------------------------

// Connect dials the exchange, sends the subscribe frame and starts forwarding.
// It returns helpers.ErrFeedClosed when Close won the race against the dial.
func (f *FeedClient) Connect(ctx context.Context) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return helpers.ErrFeedClosed
	}
	if f.started {
		f.mu.Unlock()
		return errors.New("feed already connected")
	}
	f.started = true
	dialCtx, cancel := context.WithCancel(ctx)
	f.cancelDial = cancel
	f.mu.Unlock()

	conn, _, err := f.dialer.DialContext(dialCtx, f.url, nil)
	cancel()

	f.mu.Lock()
	f.cancelDial = nil
	if f.closed {
		f.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return helpers.ErrFeedClosed
	}
	if err != nil {
		f.mu.Unlock()
		return helpers.NewTransportError("upstream dial failed", err)
	}
	f.conn = conn
	f.mu.Unlock()

	frame, err := BuildSubscribeFrame(uuid.NewString(), f.sub)
	if err != nil {
		f.Close()
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		if f.isClosed() {
			return helpers.ErrFeedClosed
		}
		f.Close()
		return helpers.NewTransportError("upstream subscribe failed", err)
	}

	pongWait := 2 * f.pingInterval
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	f.logger.Debug("Upstream subscribed")

	go f.readLoop(conn, pongWait)
	go f.keepAlive(conn)
	return nil
}

// -----------------------------------------------------------------------------

func (f *FeedClient) readLoop(conn *websocket.Conn, pongWait time.Duration) {
	defer f.stop()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			f.mu.Lock()
			deliberate := f.closed
			f.conn = nil
			f.mu.Unlock()

			conn.Close()
			if !deliberate {
				f.logger.Warning("Upstream connection lost: %v", err)
				f.onError(helpers.NewTransportError("upstream connection lost", err))
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		// Holding mu keeps frames from being forwarded once Close returns.
		f.mu.Lock()
		if f.closed {
			f.mu.Unlock()
			return
		}
		f.sink(messageType, data)
		f.mu.Unlock()
	}
}

// -----------------------------------------------------------------------------

// keepAlive sends periodic pings to keep the connection alive
func (f *FeedClient) keepAlive(conn *websocket.Conn) {
	ticker := time.NewTicker(f.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-f.done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				f.logger.Debug("Ping failed: %v", err)
				return
			}
		}
	}
}

// -----------------------------------------------------------------------------

// Close terminates the feed. It is safe to call at any time and more than once;
// an in-flight dial is aborted. A deliberate Close never reports an error.
func (f *FeedClient) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	cancel := f.cancelDial
	conn := f.conn
	f.conn = nil
	f.mu.Unlock()

	f.stop()
	if cancel != nil {
		cancel()
	}
	if conn == nil {
		return nil
	}

	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	return conn.Close()
}

// Connected reports whether the upstream socket is currently open.
func (f *FeedClient) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conn != nil
}

func (f *FeedClient) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *FeedClient) stop() {
	f.doneOnce.Do(func() { close(f.done) })
}

// -----------------------------------------------------------------------------

// BuildSubscribeFrame renders the exchange subscribe request:
// [{"ticket":"..."},{"type":"ticker","codes":["KRW-BTC"]}]
func BuildSubscribeFrame(ticket string, sub models.MSubscription) ([]byte, error) {
	dataType := sub.DataType
	if dataType == "" {
		dataType = models.DataTypeTicker
	}
	codes := sub.Symbols
	if codes == nil {
		codes = []string{}
	}

	frame := []interface{}{
		models.MUpstreamTicket{Ticket: ticket},
		models.MUpstreamRequest{Type: string(dataType), Codes: codes},
	}
	return json.Marshal(frame)
}
