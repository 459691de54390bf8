package main

import (
	"errors"
	"time"

	"market-relay/src/exchange/upbit"
	"market-relay/src/grpc_control"
	"market-relay/src/interfaces"
	"market-relay/src/logger"
	"market-relay/src/models"
	"market-relay/src/network"
	"market-relay/src/server"
	"market-relay/src/storage"
)

// -----------------------------------------------------------------------------

// components holds everything the relay process owns.
type components struct {
	store       interfaces.IKeyValueStore
	tickerCache interfaces.IKeyValueStore
	hub         *server.Hub
	relay       *server.RelayServer
	control     *grpc_control.ControlService
}

func (c *components) Close() error {
	var errs []error
	if c.tickerCache != nil {
		errs = append(errs, c.tickerCache.Close())
	}
	if c.store != nil {
		errs = append(errs, c.store.Close())
	}
	return errors.Join(errs...)
}

// -----------------------------------------------------------------------------

// setupComponents wires storage, the exchange clients, the hub and the HTTP
// and gRPC surfaces.
func setupComponents(cfg *models.MConfig, appLogger *logger.Logger) (*components, error) {
	comps := &components{}

	store, err := setupStorage(cfg, appLogger)
	if err != nil {
		return nil, err
	}
	comps.store = store
	comps.tickerCache = setupTickerCache(cfg, appLogger)

	market := setupMarketAPI(cfg)
	metrics := server.NewMetrics("market_relay")

	comps.hub = server.NewHub(cfg, server.UpbitFeedFactory(cfg.Exchange), metrics, logger.NewLogger("RelayHub"))
	comps.relay = server.NewRelayServer(cfg, logger.NewLogger("RelayServer"), server.Dependencies{
		Hub:         comps.hub,
		Market:      market,
		Store:       store,
		TickerCache: comps.tickerCache,
		Metrics:     metrics,
	})
	comps.control = grpc_control.NewControlService(comps.hub, logger.NewLogger("ControlService"))

	return comps, nil
}

// -----------------------------------------------------------------------------

// setupStorage opens the durable store based on config
func setupStorage(cfg *models.MConfig, appLogger *logger.Logger) (interfaces.IKeyValueStore, error) {
	store, err := storage.NewStore(cfg.Storage, logger.NewLogger("Storage"))
	if err != nil {
		appLogger.Error("Failed to open %s store: %v", cfg.Storage.DBType, err)
		return nil, err
	}
	appLogger.Info("Using %s store", cfg.Storage.DBType)
	return store, nil
}

// setupTickerCache connects Redis when configured. A Redis outage at startup
// disables the ticker cache instead of failing the relay.
func setupTickerCache(cfg *models.MConfig, appLogger *logger.Logger) interfaces.IKeyValueStore {
	if cfg.Redis.Addr == "" {
		appLogger.Info("Redis not configured, ticker cache disabled")
		return nil
	}

	ttl := time.Duration(cfg.Redis.TickerTTLMs) * time.Millisecond
	rs, err := storage.NewRedisStore(cfg.Redis, cfg.Name+":", ttl, logger.NewLogger("RedisStore"))
	if err != nil {
		appLogger.Warning("Ticker cache disabled: %v", err)
		return nil
	}
	return rs
}

// -----------------------------------------------------------------------------

// setupMarketAPI builds the exchange REST client over the retrying network manager
func setupMarketAPI(cfg *models.MConfig) interfaces.IMarketAPI {
	networkManager := network.NewAsyncNetworkManager(cfg, logger.NewLogger("NetworkManager"))
	return upbit.NewRestClient(cfg.Exchange.RestURL, upbit.UpbitEndpoints, networkManager)
}
