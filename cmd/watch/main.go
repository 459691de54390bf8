package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"market-relay/src/config"
	"market-relay/src/exchange/upbit"
	"market-relay/src/interfaces"
	"market-relay/src/logger"
	"market-relay/src/marketdata"
	"market-relay/src/models"
	"market-relay/src/network"
	"market-relay/src/storage"
)

const renderInterval = time.Second

func main() {
	// 1. Parse command line flags
	configPath := flag.String("config", "config/default.yaml", "path to config file")
	coin := flag.String("coin", "", "coin to watch, e.g. ETHKRW (default from config)")
	mode := flag.String("mode", "", "relay or direct (default from config)")
	clearCache := flag.Bool("clear-cache", false, "purge the local cache before loading")
	flag.Parse()

	// 2. Load config
	conf, err := config.NewConfig(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	if err := conf.OverrideClient(*mode, *coin); err != nil {
		fmt.Printf("Invalid flags: %v\n", err)
		os.Exit(1)
	}

	logger.Init(conf.MConfig)
	appLogger := logger.NewLogger("Watch")

	// 3. Local cache
	cache, err := storage.NewSQLiteStore(conf.Client.CachePath, logger.NewLogger("ClientCache"))
	if err != nil {
		appLogger.Error("Failed to open cache %s: %v", conf.Client.CachePath, err)
		os.Exit(1)
	}
	defer cache.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Store: cached snapshot first, then fresh data
	store := marketdata.NewStore(conf.MConfig, marketAPI(conf.MConfig), cache, logger.NewLogger("MarketStore"))

	if *clearCache {
		appLogger.Info("Clearing cache")
		store.ClearCache(ctx)
	} else {
		if store.LoadCached(ctx) {
			appLogger.Info("Loaded %d coins from cache", len(store.Coins()))
		}
		store.FetchData(ctx)
	}

	changed := make(chan struct{}, 1)
	store.OnChange(func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})

	go store.Run(ctx)

	// 5. Live updates
	updater := marketdata.NewLiveUpdater(conf.MConfig, store)
	if err := updater.Start(); err != nil {
		appLogger.Error("Live updates not started: %v", err)
	}
	defer updater.Stop()

	render(store)
	ticker := time.NewTicker(renderInterval)
	defer ticker.Stop()

	dirty := false
	for {
		select {
		case <-ctx.Done():
			fmt.Println()
			return
		case <-changed:
			dirty = true
		case <-ticker.C:
			if dirty {
				render(store)
				dirty = false
			}
		}
	}
}

// -----------------------------------------------------------------------------

// marketAPI talks to the relay's REST surface, or to the exchange in direct mode.
func marketAPI(cfg *models.MConfig) interfaces.IMarketAPI {
	nm := network.NewAsyncNetworkManager(cfg, logger.NewLogger("NetworkManager"))
	if cfg.Client.Mode == marketdata.ModeDirect {
		return upbit.NewRestClient(cfg.Exchange.RestURL, upbit.UpbitEndpoints, nm)
	}
	return upbit.NewRestClient(cfg.Client.APIURL, upbit.RelayEndpoints, nm)
}

func render(store *marketdata.Store) {
	if err := store.Err(); err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	if store.Loading() {
		fmt.Println("loading...")
		return
	}

	market := store.SelectedMarket()
	rec, ok := store.Record(market)
	if !ok {
		fmt.Printf("%s  waiting for data (%d coins)\n", market, len(store.Coins()))
		return
	}

	price, _ := rec["trade_price"].(float64)
	rate, _ := rec["change_rate"].(float64)
	volume, _ := rec["acc_trade_volume_24h"].(float64)
	fmt.Printf("%s %s  %.0f  %+.2f%%  vol24h %.4f\n",
		time.Now().Format("15:04:05"), market, price, rate*100, volume)
}
