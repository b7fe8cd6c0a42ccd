// FieldSync - Defensive Positioning Trainer for Baseball Coaching
// Copyright 2026 benchcoach
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/benchcoach/fieldsync

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/benchcoach/fieldsync/internal/auth"
	"github.com/benchcoach/fieldsync/internal/config"
	"github.com/benchcoach/fieldsync/internal/middleware"
	"github.com/benchcoach/fieldsync/internal/models"
)

// Router wires the handlers into the chi route tree.
type Router struct {
	handler *Handler
	authMW  *auth.Middleware
	cfg     *config.Config
}

// NewRouter creates a router for the given handler and auth middleware.
func NewRouter(handler *Handler, authMW *auth.Middleware, cfg *config.Config) *Router {
	return &Router{handler: handler, authMW: authMW, cfg: cfg}
}

// Setup builds the HTTP handler.
//
// Middleware ordering: request IDs first so every later log line can
// carry one, CORS global so OPTIONS preflight works, rate limiting and
// authentication scoped per route group.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   router.cfg.Security.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	r.Handle("/metrics", promhttp.Handler())

	// Permissive limit on health probes: monitoring polls frequently.
	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(httprate.Limit(1000, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
		r.Get("/", router.handler.Health)
		r.Get("/live", router.handler.HealthLive)
		r.Get("/ready", router.handler.HealthReady)
	})

	// Strict limit on login: brute force prevention. The handler adds
	// a per-IP token bucket on top.
	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Use(httprate.Limit(10, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
		r.Post("/login", router.handler.Login)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(router.rateLimit())
		r.Use(middleware.Metrics)
		r.Use(router.authMW.Authenticate)

		r.Get("/ws", router.handler.WebSocket)
		r.Get("/scenarios", router.handler.Scenarios)

		router.mountKindRoutes(r, "/positions", models.KindPositions)
		router.mountKindRoutes(r, "/correct-positions", models.KindCorrectPositions)
		router.mountKindRoutes(r, "/guidelines", models.KindGuidelines)
	})

	return r
}

// mountKindRoutes mounts the shared CRUD surface for one record kind.
// Reads are open to any authenticated user; mutations and history
// require a privileged role.
func (router *Router) mountKindRoutes(r chi.Router, path string, kind models.Kind) {
	privileged := router.authMW.RequireRole("admin", "coach")

	r.Route(path, func(r chi.Router) {
		r.Get("/{scenario}", router.handler.GetActive(kind))
		r.With(privileged).Get("/{scenario}/history", router.handler.History(kind))
		r.With(privileged).Post("/", router.handler.SetActive(kind))
		r.With(privileged).Put("/{id}", router.handler.UpdateActive(kind))
		r.With(privileged).Delete("/{scenario}", router.handler.ClearActive(kind))
	})
}

// rateLimit builds the standard data-route limiter from config.
func (router *Router) rateLimit() func(http.Handler) http.Handler {
	if router.cfg.Security.RateLimitDisabled {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(
		router.cfg.Security.RateLimitReqs,
		router.cfg.Security.RateLimitWindow,
		httprate.WithKeyFuncs(httprate.KeyByIP),
	)
}
