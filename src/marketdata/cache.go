package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"market-relay/src/helpers"
	"market-relay/src/interfaces"
	"market-relay/src/logger"
	"market-relay/src/models"
)

// Cache keys of the client-side snapshot namespace.
const (
	KeyMarketData     = "crypto_market_data"
	KeyAvailableCoins = "crypto_available_coins"
	KeyLastUpdated    = "crypto_last_updated"

	DefaultCacheDuration = 5 * time.Minute
)

// -----------------------------------------------------------------------------

// SnapshotCache stores JSON values wrapped in a {data, timestamp} envelope and
// serves them only while younger than ttl. Every failure is a miss.
type SnapshotCache struct {
	store  interfaces.IKeyValueStore
	ttl    time.Duration
	logger *logger.Logger
	now    func() time.Time

	mu   sync.Mutex
	keys map[string]struct{}
}

// NewSnapshotCache wraps store. keys pre-registers the namespace purged by
// Clear; keys passed to Save are added automatically.
func NewSnapshotCache(store interfaces.IKeyValueStore, ttl time.Duration, log *logger.Logger, keys ...string) *SnapshotCache {
	if ttl <= 0 {
		ttl = DefaultCacheDuration
	}
	if log == nil {
		log = logger.NewLogger("SnapshotCache")
	}

	c := &SnapshotCache{
		store:  store,
		ttl:    ttl,
		logger: log,
		now:    time.Now,
		keys:   make(map[string]struct{}, len(keys)),
	}
	for _, k := range keys {
		c.keys[k] = struct{}{}
	}
	return c
}

// SetClock replaces the time source.
func (c *SnapshotCache) SetClock(now func() time.Time) {
	c.now = now
}

// -----------------------------------------------------------------------------

// Save stores value under key stamped with the current time. Failures are
// logged and returned; callers may ignore them.
func (c *SnapshotCache) Save(ctx context.Context, key string, value interface{}) error {
	c.track(key)

	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Error("Cache encode failed for %s: %v", key, err)
		return helpers.NewCacheError("cache encode failed", err)
	}

	entry, err := json.Marshal(models.MCacheEntry{Data: data, Timestamp: c.now().UnixMilli()})
	if err != nil {
		return helpers.NewCacheError("cache encode failed", err)
	}

	if err := c.store.Set(ctx, key, entry); err != nil {
		c.logger.Error("Cache save failed for %s: %v", key, err)
		return helpers.NewCacheError("cache save failed", err)
	}
	return nil
}

// -----------------------------------------------------------------------------

// Load decodes the cached value of key into out. It reports false when the
// entry is missing, expired, corrupt or unreadable; expired entries are never
// served.
func (c *SnapshotCache) Load(ctx context.Context, key string, out interface{}) bool {
	raw, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, helpers.ErrKeyNotFound) {
			c.logger.Error("Cache load failed for %s: %v", key, err)
		}
		return false
	}

	var entry models.MCacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		c.logger.Warning("Discarding corrupt cache entry %s: %v", key, err)
		return false
	}

	age := c.now().UnixMilli() - entry.Timestamp
	if age >= c.ttl.Milliseconds() {
		c.logger.Debug("Cache entry %s expired (%d ms old)", key, age)
		return false
	}

	if err := json.Unmarshal(entry.Data, out); err != nil {
		c.logger.Warning("Discarding corrupt cache payload %s: %v", key, err)
		return false
	}
	return true
}

// -----------------------------------------------------------------------------

// Clear removes every key of the namespace.
func (c *SnapshotCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	keys := make([]string, 0, len(c.keys))
	for k := range c.keys {
		keys = append(keys, k)
	}
	c.mu.Unlock()

	var errs []error
	for _, k := range keys {
		if err := c.store.Delete(ctx, k); err != nil {
			c.logger.Error("Cache delete failed for %s: %v", k, err)
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return helpers.NewCacheError("cache clear failed", errors.Join(errs...))
	}
	return nil
}

func (c *SnapshotCache) track(key string) {
	c.mu.Lock()
	c.keys[key] = struct{}{}
	c.mu.Unlock()
}
