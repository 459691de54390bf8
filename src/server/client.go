package server

import (
	"sync"
	"time"

	"market-relay/src/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// -----------------------------------------------------------------------------
// Constants
// -----------------------------------------------------------------------------

const (
	writeWait             = 2 * time.Second
	pongWait              = 60 * time.Second
	pingPeriod            = (pongWait * 9) / 10
	defaultMaxMessageSize = 1024 * 1024
	defaultSendBuffer     = 256
)

// -----------------------------------------------------------------------------
// Client Structure
// -----------------------------------------------------------------------------

type outbound struct {
	messageType int
	data        []byte
}

// Client is one browser WebSocket connection. Frames reach the socket only
// through send, which writePump drains in order.
type Client struct {
	id          string
	hub         *Hub
	conn        *websocket.Conn
	send        chan outbound
	remoteAddr  string
	connectedAt time.Time
	logger      *logger.Logger

	done      chan struct{}
	closeOnce sync.Once
	closeCode int
	closeText string
}

func newClient(hub *Hub, conn *websocket.Conn, sendBuffer int) *Client {
	if sendBuffer <= 0 {
		sendBuffer = defaultSendBuffer
	}
	id := uuid.NewString()
	return &Client{
		id:          id,
		hub:         hub,
		conn:        conn,
		send:        make(chan outbound, sendBuffer),
		remoteAddr:  conn.RemoteAddr().String(),
		connectedAt: time.Now(),
		logger:      hub.logger.With("conn_id", id),
		done:        make(chan struct{}),
	}
}

// ID returns the connection identity assigned at upgrade.
func (c *Client) ID() string {
	return c.id
}

// -----------------------------------------------------------------------------

// enqueue queues one frame without blocking. A full queue means the browser
// is not keeping up; the connection is closed rather than stalling the feed.
func (c *Client) enqueue(messageType int, data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- outbound{messageType: messageType, data: data}:
		return true
	default:
		c.logger.Warning("Send queue full (%d frames), dropping slow client", cap(c.send))
		c.hub.metrics.slowConsumers.Inc()
		c.close(websocket.CloseTryAgainLater, "send queue full")
		return false
	}
}

// close asks writePump to send a close frame with code and stop. Only the
// first call has any effect.
func (c *Client) close(code int, text string) {
	c.closeOnce.Do(func() {
		c.closeCode = code
		c.closeText = text
		close(c.done)
	})
}

// -----------------------------------------------------------------------------
// readPump - handles incoming control frames from the browser
// -----------------------------------------------------------------------------

func (c *Client) readPump(maxMessageSize int64) {
	defer func() {
		c.hub.unregisterClient(c)
		c.close(websocket.CloseNormalClosure, "")
		c.logger.Info("Client disconnected")
	}()

	if maxMessageSize <= 0 {
		maxMessageSize = defaultMaxMessageSize
	}
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Info("WebSocket error: %v", err)
			}
			break
		}
		c.hub.handleControl(c, message)
	}
}

// -----------------------------------------------------------------------------
// writePump - writes queued frames verbatim and keeps the connection alive
// -----------------------------------------------------------------------------

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(msg.messageType, msg.data); err != nil {
				c.logger.Info("Write error: %v", err)
				c.close(websocket.CloseAbnormalClosure, "")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close(websocket.CloseAbnormalClosure, "")
				return
			}

		case <-c.done:
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(c.closeCode, c.closeText),
				time.Now().Add(writeWait))
			return
		}
	}
}
