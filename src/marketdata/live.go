package marketdata

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"market-relay/src/exchange/upbit"
	"market-relay/src/logger"
	"market-relay/src/models"
	"market-relay/src/wsclient"

	"github.com/google/uuid"
)

const (
	ModeRelay  = "relay"
	ModeDirect = "direct"
)

// -----------------------------------------------------------------------------

// LiveUpdater streams ticker frames for the selected coin into a Store. In
// relay mode it talks to the relay's /ws endpoint; in direct mode it
// subscribes at the exchange itself.
type LiveUpdater struct {
	store  *Store
	mode   string
	url    string
	prefix string
	wscfg  wsclient.Config
	opts   []wsclient.Option
	logger *logger.Logger

	mu      sync.Mutex
	manager *wsclient.Manager
}

func NewLiveUpdater(cfg *models.MConfig, store *Store, opts ...wsclient.Option) *LiveUpdater {
	mode := cfg.Client.Mode
	url := cfg.Client.WSURL
	if mode == ModeDirect {
		url = cfg.Exchange.WSURL
	}

	// reconnect_attempts: 0 in the config means no reconnection
	attempts := cfg.Client.ReconnectAttempts
	if attempts <= 0 {
		attempts = wsclient.NoReconnect
	}

	return &LiveUpdater{
		store:  store,
		mode:   mode,
		url:    url,
		prefix: cfg.Exchange.MarketPrefix,
		wscfg: wsclient.Config{
			URL:         url,
			MaxAttempts: attempts,
			BaseDelay:   time.Duration(cfg.Client.ReconnectDelayMs) * time.Millisecond,
		},
		opts:   opts,
		logger: logger.NewLogger("LiveUpdater").With("mode", mode),
	}
}

// -----------------------------------------------------------------------------

// SubscribeMessage renders the subscription for one coin symbol.
func (u *LiveUpdater) SubscribeMessage(symbol string) ([]byte, error) {
	market := SymbolToMarket(symbol, u.prefix)
	sub := models.NewSubscription(models.DataTypeTicker, []string{market})

	if u.mode == ModeDirect {
		return upbit.BuildSubscribeFrame(uuid.NewString(), sub)
	}
	return json.Marshal(models.MControlCommand{
		Type:     "subscribe",
		DataType: string(sub.DataType),
		Symbols:  sub.Symbols,
	})
}

// Start connects for the store's selected coin.
func (u *LiveUpdater) Start() error {
	return u.SetCoin(u.store.SelectedCoin())
}

// SetCoin selects symbol and replaces the live connection with one
// subscribed to it.
func (u *LiveUpdater) SetCoin(symbol string) error {
	if symbol == "" {
		return nil
	}
	msg, err := u.SubscribeMessage(symbol)
	if err != nil {
		return err
	}

	u.store.SetSelectedCoin(symbol)

	manager := wsclient.NewManager(u.wscfg, u.handleMessage, u.handleError, u.opts...)

	u.mu.Lock()
	previous := u.manager
	u.manager = manager
	u.mu.Unlock()

	if previous != nil {
		previous.Disconnect()
	}

	u.logger.Info("Streaming %s from %s", symbol, u.url)
	manager.Connect(msg)
	return nil
}

// Stop disconnects the live connection.
func (u *LiveUpdater) Stop() {
	u.mu.Lock()
	manager := u.manager
	u.manager = nil
	u.mu.Unlock()

	if manager != nil {
		manager.Disconnect()
	}
}

// Connected reports whether the live connection is open.
func (u *LiveUpdater) Connected() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.manager != nil && u.manager.Connected()
}

// -----------------------------------------------------------------------------

func (u *LiveUpdater) handleMessage(data []byte) {
	u.store.ApplyFrame(data)
}

func (u *LiveUpdater) handleError(err error) {
	if errors.Is(err, wsclient.ErrConnectionFailed) {
		u.logger.Error("Live updates unavailable: %v", err)
		u.store.SetError(err)
		return
	}
	u.logger.Warning("WebSocket error: %v", err)
	u.store.RecordError(err)
}
