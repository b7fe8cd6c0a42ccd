// FieldSync - Defensive Positioning Trainer for Baseball Coaching
// Copyright 2026 benchcoach
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/benchcoach/fieldsync

// Command server runs the FieldSync scenario-state server: the
// versioned record store, the realtime broadcast channel and the REST
// fallback surface, supervised as one tree.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/benchcoach/fieldsync/internal/api"
	"github.com/benchcoach/fieldsync/internal/auth"
	"github.com/benchcoach/fieldsync/internal/config"
	"github.com/benchcoach/fieldsync/internal/logging"
	"github.com/benchcoach/fieldsync/internal/scenario"
	"github.com/benchcoach/fieldsync/internal/store"
	"github.com/benchcoach/fieldsync/internal/supervisor"
	ws "github.com/benchcoach/fieldsync/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("addr", cfg.Server.Addr()).
		Str("store_path", cfg.Store.Path).
		Str("auth_mode", cfg.Security.AuthMode).
		Msg("Starting FieldSync")

	st, err := store.Open(store.Config{
		Path:       cfg.Store.Path,
		InMemory:   cfg.Store.InMemory,
		SyncWrites: cfg.Store.SyncWrites,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open record store")
	}
	defer func() {
		if err := st.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing record store")
		}
	}()

	service := scenario.NewService(st, cfg.Store.OpTimeout)

	jwtManager, err := auth.NewJWTManager(&cfg.Security)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize token manager")
	}

	hub := ws.NewHub()
	dispatcher := ws.NewDispatcher(service, hub)

	handler := api.NewHandler(service, st, cfg, jwtManager, hub, dispatcher)
	authMW := auth.NewMiddleware(jwtManager, cfg.Security.AuthMode)
	router := api.NewRouter(handler, authMW, cfg)

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddMessagingService(supervisor.NewHubService(hub))
	tree.AddAPIService(supervisor.NewHTTPService(server, supervisor.DefaultTreeConfig().ShutdownTimeout))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

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

	logging.Info().Msg("FieldSync stopped")
}
