package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"market-relay/src/grpc_control"
	"market-relay/src/logger"
	"market-relay/src/models"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

const shutdownTimeout = 10 * time.Second

// -----------------------------------------------------------------------------

// runServers starts the hub, the HTTP relay and the gRPC control server and
// blocks until ctx is cancelled or one of them fails.
func runServers(ctx context.Context, cfg *models.MConfig, comps *components, appLogger *logger.Logger) error {
	g, ctx := errgroup.WithContext(ctx)

	// 1. Hub event loop
	g.Go(func() error {
		comps.hub.Run(ctx)
		return nil
	})

	// 2. HTTP relay (REST + /ws + /metrics)
	g.Go(func() error {
		return comps.relay.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		appLogger.Info("Stopping HTTP relay...")
		return comps.relay.Stop(shutdownCtx)
	})

	// 3. gRPC control server
	port := cfg.GrpcPort
	if port == 0 {
		port = 50051
	}
	lis, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.GrpcHost, port))
	if err != nil {
		return fmt.Errorf("failed to listen for gRPC: %w", err)
	}
	grpcServer, healthServer := grpc_control.NewServer(comps.control, logger.NewLogger("ControlService"))

	g.Go(func() error {
		appLogger.Info("Starting gRPC Control Server on %s", lis.Addr())
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		healthServer.Shutdown()
		grpcServer.GracefulStop()
		return nil
	})

	return g.Wait()
}
