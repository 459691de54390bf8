package marketdata

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"market-relay/src/helpers"
	"market-relay/src/interfaces"
	"market-relay/src/logger"
	"market-relay/src/models"
)

const defaultRefreshInterval = 5 * time.Second

// -----------------------------------------------------------------------------
// Symbols
// -----------------------------------------------------------------------------

// MarketToSymbol turns "KRW-BTC" into "BTCKRW" for prefix "KRW-".
func MarketToSymbol(market, prefix string) string {
	quote := strings.TrimSuffix(prefix, "-")
	return strings.TrimPrefix(market, prefix) + quote
}

// SymbolToMarket turns "BTCKRW" into "KRW-BTC" for prefix "KRW-".
func SymbolToMarket(symbol, prefix string) string {
	quote := strings.TrimSuffix(prefix, "-")
	return prefix + strings.TrimSuffix(symbol, quote)
}

// -----------------------------------------------------------------------------
// Store
// -----------------------------------------------------------------------------

// Store is the client-side view of the market: the coin list, the latest
// ticker record per market and the last orderbook/trade frame per market.
// REST snapshots replace records wholesale; live ticker frames merge field by
// field into the record with the same market code.
type Store struct {
	api     interfaces.IMarketAPI
	cache   *SnapshotCache
	monitor *helpers.ErrorMonitor
	logger  *logger.Logger
	prefix  string

	mu          sync.RWMutex
	interval    time.Duration
	coins       []models.MCoinInfo
	records     []models.MMarketRecord
	orderbooks  map[string]models.MMarketRecord
	trades      map[string]models.MMarketRecord
	selected    string
	loading     bool
	err         error
	lastUpdated time.Time

	coinsReady      chan struct{}
	intervalChanged chan struct{}
	onChange        func()
}

func NewStore(cfg *models.MConfig, api interfaces.IMarketAPI, kv interfaces.IKeyValueStore, log *logger.Logger) *Store {
	if log == nil {
		log = logger.NewLogger("MarketStore")
	}

	interval := time.Duration(cfg.Client.RefreshIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = defaultRefreshInterval
	}
	selected := cfg.Client.SelectedCoin
	if selected == "" {
		selected = "BTCKRW"
	}

	return &Store{
		api: api,
		cache: NewSnapshotCache(kv, time.Duration(cfg.Client.CacheDurationSeconds)*time.Second, log,
			KeyMarketData, KeyAvailableCoins, KeyLastUpdated),
		monitor:    helpers.NewErrorMonitor(),
		logger:     log,
		prefix:     cfg.Exchange.MarketPrefix,
		interval:   interval,
		orderbooks: make(map[string]models.MMarketRecord),
		trades:     make(map[string]models.MMarketRecord),
		selected:   selected,
		loading:    true,
		coinsReady: make(chan struct{}, 1),
		onChange:   func() {},

		intervalChanged: make(chan struct{}, 1),
	}
}

// SetRefreshInterval changes the polling period used by Run. A running poll
// loop picks it up immediately.
func (s *Store) SetRefreshInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	s.mu.Lock()
	s.interval = d
	s.mu.Unlock()

	select {
	case s.intervalChanged <- struct{}{}:
	default:
	}
}

func (s *Store) refreshInterval() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.interval
}

// OnChange registers a callback invoked after every state change.
func (s *Store) OnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Cache exposes the snapshot cache backing the store.
func (s *Store) Cache() *SnapshotCache {
	return s.cache
}

func (s *Store) notify() {
	s.mu.RLock()
	fn := s.onChange
	s.mu.RUnlock()
	fn()
}

// -----------------------------------------------------------------------------
// Loading
// -----------------------------------------------------------------------------

// LoadCached seeds coins and market data from fresh cache entries. It reports
// whether a coin list was found.
func (s *Store) LoadCached(ctx context.Context) bool {
	var coins []models.MCoinInfo
	var records []models.MMarketRecord

	hasCoins := s.cache.Load(ctx, KeyAvailableCoins, &coins)
	hasRecords := s.cache.Load(ctx, KeyMarketData, &records)

	s.mu.Lock()
	if hasCoins {
		s.coins = coins
		s.loading = false
	}
	if hasRecords {
		s.records = records
	}
	s.mu.Unlock()

	if hasCoins {
		s.signalCoins()
	}
	if hasCoins || hasRecords {
		s.notify()
	}
	return hasCoins
}

// FetchData loads the market list, keeps the markets of the configured quote
// currency and caches the result. A failure becomes the visible error state.
func (s *Store) FetchData(ctx context.Context) error {
	s.mu.Lock()
	s.loading = true
	s.err = nil
	s.mu.Unlock()
	s.notify()

	markets, err := s.api.Markets(ctx)
	if err != nil {
		fetchErr := helpers.NewFetchError("market list request failed", err)
		s.logger.Error("Data fetch error: %v", err)
		s.monitor.LogError(fetchErr, helpers.SeverityHigh, map[string]interface{}{"operation": "fetch_markets"})

		s.mu.Lock()
		s.err = fetchErr
		s.loading = false
		s.mu.Unlock()
		s.notify()
		return fetchErr
	}

	coins := make([]models.MCoinInfo, 0, len(markets))
	for _, m := range markets {
		if !strings.HasPrefix(m.Market, s.prefix) {
			continue
		}
		coins = append(coins, models.MCoinInfo{
			Symbol: MarketToSymbol(m.Market, s.prefix),
			Name:   m.KoreanName,
			Market: m.Market,
		})
	}

	now := time.Now()
	s.mu.Lock()
	s.coins = coins
	s.loading = false
	s.lastUpdated = now
	s.mu.Unlock()

	s.cache.Save(ctx, KeyAvailableCoins, coins)
	s.cache.Save(ctx, KeyLastUpdated, now.UnixMilli())

	s.signalCoins()
	s.notify()
	return nil
}

// FetchMarketData requests tickers for every known coin in one call and
// replaces the record set. Failures are logged only.
func (s *Store) FetchMarketData(ctx context.Context) error {
	s.mu.RLock()
	codes := make([]string, 0, len(s.coins))
	for _, c := range s.coins {
		codes = append(codes, c.Market)
	}
	s.mu.RUnlock()

	if len(codes) == 0 {
		return nil
	}

	records, err := s.api.Tickers(ctx, codes)
	if err != nil {
		s.logger.Warning("Market data fetch error: %v", err)
		s.monitor.LogError(err, helpers.SeverityMedium, map[string]interface{}{"operation": "fetch_tickers"})
		return err
	}

	s.mu.Lock()
	s.records = records
	s.mu.Unlock()

	s.cache.Save(ctx, KeyMarketData, records)
	s.notify()
	return nil
}

// Run polls FetchMarketData once a coin list exists: immediately, then every
// refresh interval until ctx is done.
func (s *Store) Run(ctx context.Context) error {
	for !s.hasCoins() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.coinsReady:
		}
	}

	s.FetchMarketData(ctx)

	ticker := time.NewTicker(s.refreshInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.intervalChanged:
			ticker.Reset(s.refreshInterval())
		case <-ticker.C:
			s.FetchMarketData(ctx)
		}
	}
}

// ClearCache purges the cache namespace and reloads the market list.
func (s *Store) ClearCache(ctx context.Context) error {
	if err := s.cache.Clear(ctx); err != nil {
		s.logger.Warning("Cache clear incomplete: %v", err)
	}
	return s.FetchData(ctx)
}

func (s *Store) hasCoins() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.coins) > 0
}

func (s *Store) signalCoins() {
	select {
	case s.coinsReady <- struct{}{}:
	default:
	}
}

// -----------------------------------------------------------------------------
// Live frames
// -----------------------------------------------------------------------------

// ApplyFrame applies one live frame. Ticker frames merge every field they
// carry into the record whose market equals the frame's code; frames for
// unknown codes are ignored. Orderbook and trade frames are kept as the latest
// per code. Undecodable frames are dropped with a DecodeError.
func (s *Store) ApplyFrame(data []byte) error {
	var frame models.MMarketRecord
	if err := json.Unmarshal(data, &frame); err != nil {
		s.logger.Warning("WebSocket message parsing error: %v", err)
		return helpers.NewDecodeError("invalid live frame", err)
	}

	frameType, _ := frame["type"].(string)
	code, _ := frame["code"].(string)

	switch models.DataType(frameType) {
	case models.DataTypeTicker:
		if !s.mergeTicker(code, frame) {
			return nil
		}
	case models.DataTypeOrderbook:
		s.mu.Lock()
		s.orderbooks[code] = frame
		s.mu.Unlock()
	case models.DataTypeTrade:
		s.mu.Lock()
		s.trades[code] = frame
		s.mu.Unlock()
	default:
		s.logger.Debug("Ignoring live frame of type %q", frameType)
		return nil
	}

	s.notify()
	return nil
}

func (s *Store) mergeTicker(code string, frame models.MMarketRecord) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged := false
	for i, rec := range s.records {
		if rec.Market() != code {
			continue
		}
		next := rec.Clone()
		for k, v := range frame {
			next[k] = v
		}
		s.records[i] = next
		merged = true
	}
	return merged
}

// -----------------------------------------------------------------------------
// Accessors
// -----------------------------------------------------------------------------

func (s *Store) Coins() []models.MCoinInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.MCoinInfo(nil), s.coins...)
}

// MarketData returns copies of the current records.
func (s *Store) MarketData() []models.MMarketRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.MMarketRecord, len(s.records))
	for i, r := range s.records {
		out[i] = r.Clone()
	}
	return out
}

func (s *Store) Record(market string) (models.MMarketRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.records {
		if r.Market() == market {
			return r.Clone(), true
		}
	}
	return nil, false
}

func (s *Store) Orderbook(market string) (models.MMarketRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.orderbooks[market]
	if !ok {
		return nil, false
	}
	return r.Clone(), true
}

func (s *Store) LastTrade(market string) (models.MMarketRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.trades[market]
	if !ok {
		return nil, false
	}
	return r.Clone(), true
}

func (s *Store) SelectedCoin() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected
}

func (s *Store) SetSelectedCoin(symbol string) {
	s.mu.Lock()
	s.selected = symbol
	s.mu.Unlock()
	s.notify()
}

// SelectedMarket returns the market code of the selected coin.
func (s *Store) SelectedMarket() string {
	return SymbolToMarket(s.SelectedCoin(), s.prefix)
}

func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Err returns the visible error state, nil when healthy.
func (s *Store) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// SetError makes err the visible error state.
func (s *Store) SetError(err error) {
	s.monitor.LogError(err, helpers.SeverityHigh, nil)
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	s.notify()
}

// RecordError keeps err in the error log without surfacing it.
func (s *Store) RecordError(err error) {
	s.monitor.LogError(err, helpers.SeverityLow, nil)
}

func (s *Store) LastUpdated() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUpdated
}

// Errors returns the recent error log, newest first.
func (s *Store) Errors() []helpers.ErrorLog {
	return s.monitor.Logs()
}
