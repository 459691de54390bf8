package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"market-relay/src/interfaces"
	"market-relay/src/logger"
	"market-relay/src/marketdata"
	"market-relay/src/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const marketsCacheTTL = 5 * time.Minute

// -----------------------------------------------------------------------------
// RelayServer
// -----------------------------------------------------------------------------

// Dependencies are the collaborators of the HTTP surface. TickerCache may be
// nil when Redis is not configured.
type Dependencies struct {
	Hub         *Hub
	Market      interfaces.IMarketAPI
	Store       interfaces.IKeyValueStore
	TickerCache interfaces.IKeyValueStore
	Metrics     *Metrics
}

type RelayServer struct {
	Config *models.MConfig
	Logger *logger.Logger

	engine     *gin.Engine
	httpServer *http.Server
	upgrader   websocket.Upgrader

	hub         *Hub
	market      interfaces.IMarketAPI
	store       interfaces.IKeyValueStore
	tickerCache interfaces.IKeyValueStore
	snapshots   *marketdata.SnapshotCache
	metrics     *Metrics
}

// -----------------------------------------------------------------------------
// Constructor
// -----------------------------------------------------------------------------

func NewRelayServer(cfg *models.MConfig, log *logger.Logger, deps Dependencies) *RelayServer {
	if strings.ToUpper(cfg.LogLevel) != "DEBUG" {
		gin.SetMode(gin.ReleaseMode)
	}
	if log == nil {
		log = logger.NewLogger("RelayServer")
	}
	if deps.Metrics == nil {
		deps.Metrics = deps.Hub.metrics
	}

	s := &RelayServer{
		Config:      cfg,
		Logger:      log,
		engine:      gin.New(),
		hub:         deps.Hub,
		market:      deps.Market,
		store:       deps.Store,
		tickerCache: deps.TickerCache,
		metrics:     deps.Metrics,
		snapshots:   marketdata.NewSnapshotCache(deps.Store, marketsCacheTTL, log),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}

	s.engine.Use(gin.Recovery())
	s.engine.Use(s.corsMiddleware())
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// -----------------------------------------------------------------------------
// Route Setup
// -----------------------------------------------------------------------------

func (s *RelayServer) setupRoutes() {
	api := s.engine.Group("/api")
	api.Use(s.countRequests())
	{
		api.GET("/health", s.getHealth)
		api.GET("/status", s.getStatus)
		api.GET("/markets", s.getMarkets)
		api.GET("/ticker", s.getTicker)
		api.GET("/price/:symbol", s.getPrice)
		api.GET("/orderbook", s.getOrderbook)
		api.GET("/orderbook/:symbol", s.getOrderbook)
	}

	s.engine.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	// WebSocket endpoint
	s.engine.GET("/ws", s.handleWebSocket)
}

// Handler exposes the router (tests drive it through httptest).
func (s *RelayServer) Handler() http.Handler {
	return s.engine
}

// -----------------------------------------------------------------------------
// Server Lifecycle
// -----------------------------------------------------------------------------

// Start serves HTTP until Stop is called.
func (s *RelayServer) Start() error {
	s.Logger.Info("Starting relay on %s", s.httpServer.Addr)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// -----------------------------------------------------------------------------

// Stop shuts the HTTP server down. Calling it before Start makes Start return
// immediately.
func (s *RelayServer) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *RelayServer) originAllowed(origin string) bool {
	if origin == "" {
		return true
	}
	if len(s.Config.Relay.AllowedOrigins) == 0 {
		return strings.HasPrefix(origin, "http://127.0.0.1:") || strings.HasPrefix(origin, "http://localhost:")
	}
	for _, allowed := range s.Config.Relay.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func (s *RelayServer) checkOrigin(r *http.Request) bool {
	return s.originAllowed(r.Header.Get("Origin"))
}

func (s *RelayServer) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func (s *RelayServer) countRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		s.metrics.apiRequests.WithLabelValues(c.FullPath(), fmt.Sprintf("%d", c.Writer.Status())).Inc()
	}
}

// -----------------------------------------------------------------------------
// WebSocket
// -----------------------------------------------------------------------------

func (s *RelayServer) handleWebSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.Logger.Info("Failed to upgrade websocket: %v", err)
		return
	}

	client := newClient(s.hub, conn, s.Config.Relay.SendBuffer)
	if !s.hub.registerClient(client) {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "relay shutting down"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump(s.Config.Relay.MaxMessageSize)
}
