// Skywatch - AT Protocol Profile Change Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skywatch

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/skywatch/internal/api"
	"github.com/tomtom215/skywatch/internal/appview"
	"github.com/tomtom215/skywatch/internal/config"
	"github.com/tomtom215/skywatch/internal/database"
	"github.com/tomtom215/skywatch/internal/jetstream"
	"github.com/tomtom215/skywatch/internal/logging"
	"github.com/tomtom215/skywatch/internal/resolver"
	"github.com/tomtom215/skywatch/internal/status"
	"github.com/tomtom215/skywatch/internal/supervisor"
	"github.com/tomtom215/skywatch/internal/supervisor/services"
	ws "github.com/tomtom215/skywatch/internal/websocket"
)

func main() {
	// Load configuration first to get logging settings
	cfg, err := config.Load()
	if err != nil {
		// Use default logger for config errors (config not yet available)
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize zerolog with configuration
	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().Msg("Starting Skywatch with supervisor tree")
	logging.Info().
		Strs("jetstream_hosts", cfg.Jetstream.Hosts).
		Str("db_path", cfg.Database.Path).
		Int("max_wanted_dids", cfg.Jetstream.MaxWantedDIDs).
		Msg("Configuration loaded")

	// Initialize DuckDB store
	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()
	logging.Info().Msg("Database initialized successfully")

	// DID-to-handle resolution with LRU cache over the PLC directory
	didResolver := resolver.New(&cfg.Resolver)

	// AppView client for authoritative follow lists
	appviewClient := appview.NewClient(&cfg.AppView)

	// Status broadcaster fans snapshots out to subscribers. The stream layer
	// is attached after construction because it depends on the broadcaster.
	broadcaster := status.NewBroadcaster(db)

	// WebSocket hub pushes status and cursor frames to connected clients
	wsHub := ws.NewHub()
	broadcaster.Register(wsHub)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Main Jetstream subscription and the temporary backfill pool
	mainStream := jetstream.NewMainStream(&cfg.Jetstream, db, didResolver, appviewClient, broadcaster)
	backfillPool := jetstream.NewTempManager(ctx, &cfg.Jetstream, db, didResolver, mainStream, broadcaster)
	broadcaster.Attach(mainStream, backfillPool)
	broadcaster.AttachResolver(didResolver)

	if cfg.Admin.DID == "" {
		logging.Info().Msg("Admin API disabled (ADMIN_DID not set)")
	} else {
		logging.Info().Str("admin_did", cfg.Admin.DID).Msg("Admin API enabled")
	}

	handler := api.NewHandler(db, cfg, mainStream, backfillPool, broadcaster, appviewClient, wsHub)
	chiMiddleware := api.NewChiMiddlewareFromServer(
		cfg.Server.CORSOrigins,
		cfg.Server.RateLimitReqs,
		cfg.Server.RateLimitWindow,
	)
	router := api.NewRouter(handler, chiMiddleware)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.SetupChi(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	// Create structured logger for supervisor using our slog adapter
	// This bridges zerolog to slog for sutureslog compatibility
	slogLogger := logging.NewSlogLogger()

	tree, err := supervisor.NewSupervisorTree(slogLogger, supervisor.DefaultTreeConfig())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	// Stream layer services
	tree.AddStreamService(services.NewMainStreamService(mainStream, 10*time.Second))
	tree.AddStreamService(services.NewBackfillPoolService(backfillPool))

	// Messaging layer services
	tree.AddMessagingService(services.NewWebSocketHubService(wsHub))
	tree.AddMessagingService(services.NewStatusTickerService(broadcaster, 30*time.Second))

	// API layer services
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	// Wait for supervisor to finish (either from signal or error)
	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	// Wait for the error channel to close (supervisor finished)
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	// Report any services that failed to stop within timeout
	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	logging.Info().Msg("Application stopped gracefully")
}
