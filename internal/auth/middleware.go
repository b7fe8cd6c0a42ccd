// FieldSync - Defensive Positioning Trainer for Baseball Coaching
// Copyright 2026 benchcoach
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/benchcoach/fieldsync

package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/benchcoach/fieldsync/internal/logging"
	"github.com/benchcoach/fieldsync/internal/scenario"
)

type contextKey string

// ClaimsContextKey is the request-context key for authenticated claims.
const ClaimsContextKey contextKey = "claims"

// Middleware provides authentication middleware for the HTTP surface.
type Middleware struct {
	jwtManager *JWTManager
	authMode   string
}

// NewMiddleware creates authentication middleware. In auth mode "none"
// every request proceeds as an anonymous viewer; mutations are then
// rejected downstream by the state service's role check.
func NewMiddleware(jwtManager *JWTManager, authMode string) *Middleware {
	return &Middleware{jwtManager: jwtManager, authMode: authMode}
}

// Authenticate enforces authentication and attaches the validated
// claims to the request context.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.authMode == "none" {
			claims := &Claims{Username: "anonymous", Role: "viewer"}
			next.ServeHTTP(w, r.WithContext(
				context.WithValue(r.Context(), ClaimsContextKey, claims)))
			return
		}

		token, ok := extractToken(r)
		if !ok {
			http.Error(w, "Unauthorized: missing token", http.StatusUnauthorized)
			return
		}

		claims, err := m.jwtManager.ValidateToken(token)
		if err != nil {
			logging.Debug().Err(err).Msg("token validation failed")
			http.Error(w, "Unauthorized: invalid token", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(
			context.WithValue(r.Context(), ClaimsContextKey, claims)))
	})
}

// RequireRole enforces that the authenticated user holds one of the
// given roles. Must run after Authenticate.
func (m *Middleware) RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(roles))
	for _, role := range roles {
		allowed[role] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok || !allowed[claims.Role] {
				http.Error(w, "Forbidden: insufficient role", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// TokenCookieName is the cookie that carries the JWT for browser
// clients.
const TokenCookieName = "token"

// extractToken pulls the JWT from the Authorization header, the token
// cookie, or the token query parameter. The query parameter exists for
// browser WebSocket upgrades, which cannot set headers.
func extractToken(r *http.Request) (string, bool) {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1], true
		}
		return "", false
	}

	if cookie, err := r.Cookie(TokenCookieName); err == nil && cookie.Value != "" {
		return cookie.Value, true
	}

	if token := r.URL.Query().Get("token"); token != "" {
		return token, true
	}

	return "", false
}

// ClaimsFromContext retrieves the authenticated claims, if any.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(ClaimsContextKey).(*Claims)
	return claims, ok
}

// ActorFromContext derives the acting identity for the state service
// from the authenticated claims. A request without claims yields a
// zero actor, which fails every privileged check.
func ActorFromContext(ctx context.Context) scenario.Actor {
	claims, ok := ClaimsFromContext(ctx)
	if !ok {
		return scenario.Actor{}
	}
	return scenario.Actor{ID: claims.Username, Role: claims.Role}
}
