package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"market-relay/src/helpers"
	"market-relay/src/models"

	"github.com/gin-gonic/gin"
)

const (
	marketsCacheKey = "relay_markets"
	tickerKeyPrefix = "ticker:"
	healthTimeout   = 2 * time.Second
)

// -----------------------------------------------------------------------------
// Health & status
// -----------------------------------------------------------------------------

func (s *RelayServer) getHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	health := models.MHealth{
		Status:      "ok",
		Timestamp:   time.Now().UTC(),
		Connections: s.hub.Status().Connections,
		Services: models.MServicesHealth{
			Database: serviceState(ctx, s.store),
			Redis:    serviceState(ctx, s.tickerCache),
		},
	}

	code := http.StatusOK
	if health.Services.Database == models.ServiceDisconnected || health.Services.Redis == models.ServiceDisconnected {
		health.Status = "degraded"
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, health)
}

type pinger interface {
	Ping(ctx context.Context) error
}

func serviceState(ctx context.Context, svc pinger) string {
	if svc == nil {
		return models.ServiceDisabled
	}
	if err := svc.Ping(ctx); err != nil {
		return models.ServiceDisconnected
	}
	return models.ServiceConnected
}

// -----------------------------------------------------------------------------

func (s *RelayServer) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.hub.Status())
}

// -----------------------------------------------------------------------------
// Market data (proxied to the exchange REST API)
// -----------------------------------------------------------------------------

// getMarkets lists markets quoted in the configured currency, served from the
// durable store for five minutes.
func (s *RelayServer) getMarkets(c *gin.Context) {
	ctx := c.Request.Context()

	var markets []models.MMarket
	if s.snapshots.Load(ctx, marketsCacheKey, &markets) {
		c.JSON(http.StatusOK, markets)
		return
	}

	all, err := s.market.Markets(ctx)
	if err != nil {
		s.upstreamError(c, "markets", err)
		return
	}

	prefix := s.Config.Exchange.MarketPrefix
	markets = make([]models.MMarket, 0, len(all))
	for _, m := range all {
		if strings.HasPrefix(m.Market, prefix) {
			markets = append(markets, m)
		}
	}

	s.snapshots.Save(ctx, marketsCacheKey, markets)
	c.JSON(http.StatusOK, markets)
}

// -----------------------------------------------------------------------------

func (s *RelayServer) getTicker(c *gin.Context) {
	codes := splitCodes(c.Query("markets"))
	if len(codes) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "markets query parameter is required"})
		return
	}
	s.serveTickers(c, codes)
}

func (s *RelayServer) getPrice(c *gin.Context) {
	code := s.marketCode(c.Param("symbol"))

	records, ok := s.tickers(c, []string{code})
	if !ok {
		return
	}
	if len(records) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown market " + code})
		return
	}
	c.JSON(http.StatusOK, records[0])
}

// -----------------------------------------------------------------------------

// serveTickers answers from the Redis ticker cache when possible.
func (s *RelayServer) serveTickers(c *gin.Context, codes []string) {
	ctx := c.Request.Context()
	key := tickerKeyPrefix + strings.Join(codes, ",")

	if s.tickerCache != nil {
		if raw, err := s.tickerCache.Get(ctx, key); err == nil {
			c.Data(http.StatusOK, "application/json; charset=utf-8", raw)
			return
		} else if !errors.Is(err, helpers.ErrKeyNotFound) {
			s.Logger.Warning("Ticker cache read failed: %v", err)
		}
	}

	records, ok := s.tickers(c, codes)
	if !ok {
		return
	}

	raw, err := json.Marshal(records)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if s.tickerCache != nil {
		if err := s.tickerCache.Set(ctx, key, raw); err != nil {
			s.Logger.Warning("Ticker cache write failed: %v", err)
		}
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", raw)
}

func (s *RelayServer) tickers(c *gin.Context, codes []string) ([]models.MMarketRecord, bool) {
	records, err := s.market.Tickers(c.Request.Context(), codes)
	if err != nil {
		s.upstreamError(c, "ticker", err)
		return nil, false
	}
	return records, true
}

// -----------------------------------------------------------------------------

func (s *RelayServer) getOrderbook(c *gin.Context) {
	code := c.Query("markets")
	if symbol := c.Param("symbol"); symbol != "" {
		code = s.marketCode(symbol)
	}
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "markets query parameter is required"})
		return
	}

	book, err := s.market.Orderbook(c.Request.Context(), code)
	if err != nil {
		s.upstreamError(c, "orderbook", err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", book)
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

// marketCode turns "btc" into "KRW-BTC"; full codes pass through.
func (s *RelayServer) marketCode(symbol string) string {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if strings.Contains(symbol, "-") {
		return symbol
	}
	return s.Config.Exchange.MarketPrefix + symbol
}

func splitCodes(csv string) []string {
	var codes []string
	for _, part := range strings.Split(csv, ",") {
		if part = strings.TrimSpace(part); part != "" {
			codes = append(codes, part)
		}
	}
	return models.NewSubscription(models.DataTypeTicker, codes).Symbols
}

func (s *RelayServer) upstreamError(c *gin.Context, what string, err error) {
	s.Logger.Error("Exchange %s request failed: %v", what, err)
	c.JSON(http.StatusBadGateway, gin.H{"error": "exchange " + what + " request failed"})
}
