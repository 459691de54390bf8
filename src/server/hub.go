package server

import (
	"context"
	"errors"
	"sort"

	"market-relay/src/exchange/upbit"
	"market-relay/src/helpers"
	"market-relay/src/logger"
	"market-relay/src/models"

	"github.com/gorilla/websocket"
)

// -----------------------------------------------------------------------------
// Connection state
// -----------------------------------------------------------------------------

type ConnState int

const (
	StateConnected ConnState = iota
	StateStreaming
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateStreaming:
		return "streaming"
	default:
		return "closed"
	}
}

// -----------------------------------------------------------------------------
// Upstream feeds
// -----------------------------------------------------------------------------

// Feed is one upstream subscription owned by a browser session.
type Feed interface {
	Connect(ctx context.Context) error
	Close() error
}

// FeedFactory builds a feed delivering frames to sink and reporting an
// unexpected disconnect through onError.
type FeedFactory func(sub models.MSubscription, sink upbit.Sink, onError func(error)) Feed

// UpbitFeedFactory returns a FeedFactory dialing the configured exchange.
func UpbitFeedFactory(cfg models.MExchangeConfig) FeedFactory {
	return func(sub models.MSubscription, sink upbit.Sink, onError func(error)) Feed {
		return upbit.NewFeedClient(cfg, sub, sink, onError)
	}
}

// -----------------------------------------------------------------------------
// Hub
// -----------------------------------------------------------------------------

type session struct {
	client *Client
	state  ConnState
	feed   Feed
	ref    *feedRef
	sub    *models.MSubscription
}

// feedRef identifies one subscription. It exists before the feed is built so
// a failure reported from inside the factory still matches its session.
type feedRef struct {
	sub models.MSubscription
}

type controlMessage struct {
	client *Client
	data   []byte
}

type feedDownEvent struct {
	clientID string
	ref      *feedRef
	err      error
}

type disconnectRequest struct {
	id    string
	reply chan bool
}

// Hub owns every browser session. All session state is mutated on the Run
// goroutine only.
type Hub struct {
	cfg     *models.MConfig
	logger  *logger.Logger
	metrics *Metrics
	newFeed FeedFactory

	sessions map[string]*session

	register      chan *Client
	unregister    chan *Client
	control       chan controlMessage
	feedDown      chan feedDownEvent
	statusReq     chan chan models.MRelayStatus
	disconnectReq chan disconnectRequest

	ctx  context.Context
	quit chan struct{}
}

func NewHub(cfg *models.MConfig, newFeed FeedFactory, metrics *Metrics, log *logger.Logger) *Hub {
	if log == nil {
		log = logger.NewLogger("RelayHub")
	}
	if metrics == nil {
		metrics = NewMetrics("market_relay")
	}
	if newFeed == nil {
		newFeed = UpbitFeedFactory(cfg.Exchange)
	}

	return &Hub{
		cfg:           cfg,
		logger:        log,
		metrics:       metrics,
		newFeed:       newFeed,
		sessions:      make(map[string]*session),
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		control:       make(chan controlMessage, 64),
		feedDown:      make(chan feedDownEvent),
		statusReq:     make(chan chan models.MRelayStatus),
		disconnectReq: make(chan disconnectRequest),
		ctx:           context.Background(),
		quit:          make(chan struct{}),
	}
}

// -----------------------------------------------------------------------------

// Run is the hub event loop. It returns when ctx is done, after closing every
// upstream feed and every browser connection.
func (h *Hub) Run(ctx context.Context) {
	h.ctx = ctx
	defer h.shutdown()

	for {
		select {
		case client := <-h.register:
			h.sessions[client.id] = &session{client: client, state: StateConnected}
			h.updateGauges()
			client.logger.Info("Client connected from %s", client.remoteAddr)

		case client := <-h.unregister:
			if s, ok := h.sessions[client.id]; ok {
				h.closeFeed(s)
				s.state = StateClosed
				delete(h.sessions, client.id)
				h.updateGauges()
			}

		case msg := <-h.control:
			if s, ok := h.sessions[msg.client.id]; ok {
				h.applyControl(s, msg.data)
			}

		case ev := <-h.feedDown:
			h.handleFeedDown(ev)

		case reply := <-h.statusReq:
			reply <- h.snapshot()

		case req := <-h.disconnectReq:
			s, ok := h.sessions[req.id]
			if ok {
				h.closeFeed(s)
				s.client.close(websocket.CloseNormalClosure, "disconnected by operator")
			}
			req.reply <- ok

		case <-ctx.Done():
			return
		}
	}
}

func (h *Hub) shutdown() {
	for id, s := range h.sessions {
		h.closeFeed(s)
		s.state = StateClosed
		s.client.close(websocket.CloseGoingAway, "relay shutting down")
		delete(h.sessions, id)
	}
	h.updateGauges()
	close(h.quit)
}

// -----------------------------------------------------------------------------
// Calls from other goroutines
// -----------------------------------------------------------------------------

func (h *Hub) registerClient(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.quit:
		return false
	}
}

func (h *Hub) unregisterClient(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.quit:
	}
}

func (h *Hub) handleControl(c *Client, data []byte) {
	select {
	case h.control <- controlMessage{client: c, data: data}:
	case <-h.quit:
	}
}

func (h *Hub) reportFeedDown(clientID string, ref *feedRef, err error) {
	select {
	case h.feedDown <- feedDownEvent{clientID: clientID, ref: ref, err: err}:
	case <-h.quit:
	}
}

// Status returns a snapshot of every session.
func (h *Hub) Status() models.MRelayStatus {
	reply := make(chan models.MRelayStatus, 1)
	select {
	case h.statusReq <- reply:
		return <-reply
	case <-h.quit:
		return models.MRelayStatus{Sessions: []models.MSessionStatus{}}
	}
}

// Disconnect force-closes one browser session.
func (h *Hub) Disconnect(id string) bool {
	req := disconnectRequest{id: id, reply: make(chan bool, 1)}
	select {
	case h.disconnectReq <- req:
		return <-req.reply
	case <-h.quit:
		return false
	}
}

// -----------------------------------------------------------------------------
// Event loop internals
// -----------------------------------------------------------------------------

func (h *Hub) applyControl(s *session, data []byte) {
	frame, err := ParseControlFrame(data, h.cfg.Exchange.DefaultSymbols)
	if err != nil {
		h.metrics.controlFrames.WithLabelValues("invalid").Inc()
		s.client.logger.Warning("Ignoring control frame: %v", err)
		return
	}
	h.metrics.controlFrames.WithLabelValues(frame.Kind.String()).Inc()

	switch frame.Kind {
	case FrameSubscribe:
		h.subscribe(s, frame.Subscription)
	case FrameUnsubscribe:
		if s.feed != nil {
			s.client.logger.Info("Unsubscribed")
		}
		h.closeFeed(s)
	default:
		s.client.logger.Debug("Ignoring control frame of type %q", frame.Type)
	}
}

// subscribe replaces the session's feed. The old feed is closed before the new
// one is created, so a session never has two live upstreams.
func (h *Hub) subscribe(s *session, sub models.MSubscription) {
	h.closeFeed(s)

	client := s.client
	ref := &feedRef{sub: sub}
	feed := h.newFeed(sub,
		func(messageType int, data []byte) {
			if client.enqueue(messageType, data) {
				h.metrics.framesForwarded.Inc()
			}
		},
		func(err error) {
			// May run on the event loop itself.
			go h.reportFeedDown(client.id, ref, err)
		})

	s.feed = feed
	s.ref = ref
	s.sub = &sub
	s.state = StateStreaming
	h.updateGauges()
	client.logger.Info("Subscribed to %s %v", sub.DataType, sub.Symbols)

	ctx := h.ctx
	go func() {
		if err := feed.Connect(ctx); err != nil && !errors.Is(err, helpers.ErrFeedClosed) {
			h.reportFeedDown(client.id, ref, err)
		}
	}()
}

func (h *Hub) closeFeed(s *session) {
	if s.feed == nil {
		return
	}
	if err := s.feed.Close(); err != nil {
		s.client.logger.Debug("Closing upstream: %v", err)
	}
	s.feed = nil
	s.ref = nil
	s.sub = nil
	if s.state == StateStreaming {
		s.state = StateConnected
	}
	h.updateGauges()
}

// handleFeedDown reacts to a failure of the session's current feed: the
// session falls back to connected and the browser is closed with 1011 so its
// reconnection manager re-establishes and resubscribes. Failures of replaced
// feeds are stale and ignored.
func (h *Hub) handleFeedDown(ev feedDownEvent) {
	s, ok := h.sessions[ev.clientID]
	if !ok || s.ref == nil || s.ref != ev.ref {
		return
	}

	h.metrics.upstreamFailures.Inc()
	s.client.logger.Error("Upstream failed: %v", ev.err)

	h.closeFeed(s)
	s.client.close(websocket.CloseInternalServerErr, "upstream unavailable")
}

func (h *Hub) snapshot() models.MRelayStatus {
	status := models.MRelayStatus{
		Connections: len(h.sessions),
		Sessions:    make([]models.MSessionStatus, 0, len(h.sessions)),
	}
	for id, s := range h.sessions {
		if s.state == StateStreaming {
			status.Streaming++
		}
		entry := models.MSessionStatus{
			ID:          id,
			State:       s.state.String(),
			RemoteAddr:  s.client.remoteAddr,
			ConnectedAt: s.client.connectedAt,
		}
		if s.sub != nil {
			sub := *s.sub
			entry.Subscription = &sub
		}
		status.Sessions = append(status.Sessions, entry)
	}
	sort.Slice(status.Sessions, func(i, j int) bool {
		return status.Sessions[i].ConnectedAt.Before(status.Sessions[j].ConnectedAt)
	})
	return status
}

func (h *Hub) updateGauges() {
	streaming := 0
	for _, s := range h.sessions {
		if s.state == StateStreaming {
			streaming++
		}
	}
	h.metrics.connections.Set(float64(len(h.sessions)))
	h.metrics.streaming.Set(float64(streaming))
}
