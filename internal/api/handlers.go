// FieldSync - Defensive Positioning Trainer for Baseball Coaching
// Copyright 2026 benchcoach
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/benchcoach/fieldsync

package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/benchcoach/fieldsync/internal/auth"
	"github.com/benchcoach/fieldsync/internal/config"
	"github.com/benchcoach/fieldsync/internal/logging"
	"github.com/benchcoach/fieldsync/internal/scenario"
	"github.com/benchcoach/fieldsync/internal/store"
	ws "github.com/benchcoach/fieldsync/internal/websocket"
)

// Handler contains dependencies for the API handlers.
//
// Handler methods are split across files:
//   - handlers.go: Handler struct, constructor, channel upgrade (this file)
//   - handlers_records.go: positions / correct-positions / guidelines endpoints
//   - handlers_auth.go: login
//   - handlers_health.go: health and readiness probes
type Handler struct {
	service      *scenario.Service
	st           *store.Store
	config       *config.Config
	jwtManager   *auth.JWTManager
	credentials  *auth.Credentials
	loginLimiter *auth.IPLimiter
	wsHub        *ws.Hub
	dispatcher   *ws.Dispatcher
	startTime    time.Time
}

// NewHandler creates the API handler.
//
// The store is passed alongside the service only for the readiness
// probe; all data access goes through the service.
func NewHandler(svc *scenario.Service, st *store.Store, cfg *config.Config, jwtManager *auth.JWTManager, wsHub *ws.Hub, dispatcher *ws.Dispatcher) *Handler {
	return &Handler{
		service:      svc,
		st:           st,
		config:       cfg,
		jwtManager:   jwtManager,
		credentials:  auth.NewCredentials(&cfg.Security),
		loginLimiter: auth.NewIPLimiter(cfg.Security.LoginRatePerMinute),
		wsHub:        wsHub,
		dispatcher:   dispatcher,
		startTime:    time.Now(),
	}
}

// getUpgrader creates a WebSocket upgrader with origin checking and a
// handshake timeout against slow-client attacks.
func (h *Handler) getUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkWebSocketOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
}

// checkWebSocketOrigin validates WebSocket connection origins.
//
// A missing Origin header is rejected: legitimate browser WebSockets
// always include it, and allowing empty Origin would bypass CORS.
func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		logging.Warn().Msg("WebSocket connection rejected: missing Origin header")
		return false
	}

	if h.config == nil {
		return true
	}

	for _, allowed := range h.config.Security.CORSOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}

	logging.Warn().Str("origin", origin).Msg("WebSocket connection rejected from unauthorized origin")
	return false
}

// WebSocket upgrades the request onto the realtime channel.
//
// The connection is bound to the actor derived from the authenticated
// request; identity claims inside channel commands are never trusted.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	if h.wsHub == nil {
		logging.Warn().Msg("WebSocket connection rejected: hub not initialized")
		http.Error(w, "websocket service unavailable", http.StatusServiceUnavailable)
		return
	}

	actor := auth.ActorFromContext(r.Context())

	upgrader := h.getUpgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error().Err(err).Msg("WebSocket upgrade error")
		return
	}

	client := ws.NewClient(h.wsHub, conn, actor, h.dispatcher)
	h.wsHub.Register <- client
	client.Start()
}
