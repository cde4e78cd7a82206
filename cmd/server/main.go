// Vetbridge - Practice Management Integration Core
// Copyright 2026 Vetbridge Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vetbridge/vetbridge

// Package main is the entry point for the Vetbridge server.
//
// Vetbridge keeps a multi-tenant fleet of veterinary clinics in sync with
// their practice-management provider. The server initializes components in
// the following order:
//
//  1. Configuration: layered loading from config file and VETBRIDGE_
//     environment variables (Koanf v2)
//  2. Storage: shared Postgres pool plus idempotent schema setup
//  3. Provider transport: credential source, sliding-window rate limiter,
//     and the retrying HTTP client with per-clinic circuit breakers
//  4. Sync core: per-resource orchestrator, fleet runner, webhook processor
//  5. HTTP server: webhook receiver, trigger endpoints, sync log API
//  6. Supervision: suture tree running the scheduler and the HTTP server
//
// Graceful shutdown on SIGINT and SIGTERM: the supervisor drains both
// layers, the HTTP server finishes in-flight requests, and any sync pass in
// progress observes context cancellation between clinics.
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

	"github.com/vetbridge/vetbridge/internal/api"
	"github.com/vetbridge/vetbridge/internal/config"
	"github.com/vetbridge/vetbridge/internal/logging"
	"github.com/vetbridge/vetbridge/internal/provider"
	"github.com/vetbridge/vetbridge/internal/store/pg"
	"github.com/vetbridge/vetbridge/internal/supervisor"
	"github.com/vetbridge/vetbridge/internal/supervisor/services"
	"github.com/vetbridge/vetbridge/internal/sync"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})

	if err := cfg.Validate(); err != nil {
		logging.Fatal().Err(err).Msg("Invalid configuration")
	}

	logging.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Dur("sync_interval", cfg.Sync.Interval).
		Msg("Starting Vetbridge")

	st, err := pg.Open(cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open database")
	}
	defer func() {
		if err := st.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := st.Ping(ctx); err != nil {
		logging.Fatal().Err(err).Msg("Database unreachable")
	}
	if err := st.EnsureSchema(ctx); err != nil {
		logging.Fatal().Err(err).Msg("Failed to ensure database schema")
	}
	logging.Info().Msg("Database initialized")

	// Provider transport. The token source and the HTTP client share one
	// underlying client so connection pooling covers both.
	httpClient := &http.Client{Timeout: cfg.Provider.RequestTimeout}
	tokens := provider.NewTokenSource(st, httpClient, cfg.Provider.RefreshBuffer, cfg.Provider.TokenEndpointRate)
	limiter := provider.NewSlidingWindow(provider.LimiterConfig{
		PerEndpoint:  cfg.Provider.RateLimitPerEndpoint,
		Global:       cfg.Provider.RateLimitGlobal,
		Availability: cfg.Provider.RateLimitAvailability,
	})
	client := provider.NewClient(cfg.Provider, tokens, limiter, st)

	// Sync core.
	orchestrator := sync.NewOrchestrator(st, client, cfg.Sync, cfg.Provider)
	runner := sync.NewRunner(st, orchestrator, cfg.Sync.Lookback)
	processor := sync.NewProcessor(st, orchestrator, cfg.Sync.WebhookWindow)

	// HTTP surface.
	handler := api.NewHandler(st, orchestrator, runner, processor)
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewRouter(handler, cfg.Security),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	// Supervision tree. The slog logger bridges zerolog for sutureslog.
	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddSyncService(services.NewSchedulerService(runner, cfg.Sync.Interval))
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
	logging.Info().Str("addr", server.Addr).Msg("Services added to supervisor tree")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Shutting down, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	if unstopped, _ := tree.UnstoppedServiceReport(); len(unstopped) > 0 {
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
		}
	}

	logging.Info().Msg("Vetbridge stopped")
}
