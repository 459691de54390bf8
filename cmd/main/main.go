package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"market-relay/src/config"
	"market-relay/src/logger"
)

func main() {
	// 1. Parse command line flags
	configPath := flag.String("config", "config/default.yaml", "path to config file")
	dumpConfig := flag.String("dump-config", "", "write the effective config to this path and exit")
	flag.Parse()

	// 2. Load config
	conf, err := config.NewConfig(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	if *dumpConfig != "" {
		if err := conf.Save(*dumpConfig); err != nil {
			fmt.Printf("Error saving config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Config written to %s\n", *dumpConfig)
		return
	}

	// 3. Setup Logger
	logger.Init(conf.MConfig)
	appLogger := logger.NewLogger(conf.Name)

	// 4. Setup Components
	comps, err := setupComponents(conf.MConfig, appLogger)
	if err != nil {
		appLogger.Error("Startup failed: %v", err)
		os.Exit(1)
	}
	defer comps.Close()

	// 5. Run until interrupted
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := runServers(ctx, conf.MConfig, comps, appLogger); err != nil {
		appLogger.Error("Relay stopped with error: %v", err)
		os.Exit(1)
	}
	appLogger.Info("Shutdown complete")
}
