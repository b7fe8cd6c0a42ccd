// FieldSync - Defensive Positioning Trainer for Baseball Coaching
// Copyright 2026 benchcoach
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/benchcoach/fieldsync

package api

import (
	"net"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/benchcoach/fieldsync/internal/auth"
	"github.com/benchcoach/fieldsync/internal/logging"
	"github.com/benchcoach/fieldsync/internal/metrics"
	"github.com/benchcoach/fieldsync/internal/models"
	"github.com/benchcoach/fieldsync/internal/validation"
)

// Login handles POST /api/v1/auth/login.
//
// Failed attempts are counted against a per-IP token bucket before the
// bcrypt comparison runs, so credential stuffing burns the budget
// without burning CPU.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)
	if h.loginLimiter != nil && !h.loginLimiter.Allow(ip) {
		metrics.RecordLoginAttempt("rate_limited")
		respondJSON(w, http.StatusTooManyRequests, models.LoginResponse{Success: false, Error: "too many login attempts"})
		return
	}

	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, models.LoginResponse{Success: false, Error: "malformed JSON body"})
		return
	}
	if err := validation.ValidateStruct(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, models.LoginResponse{Success: false, Error: err.Error()})
		return
	}

	role, err := h.credentials.Verify(req.Username, req.Password)
	if err != nil {
		metrics.RecordLoginAttempt("failure")
		logging.Warn().Str("username", req.Username).Str("ip", ip).Msg("Login rejected")
		respondJSON(w, http.StatusUnauthorized, models.LoginResponse{Success: false, Error: "invalid credentials"})
		return
	}

	token, expiresAt, err := h.jwtManager.GenerateToken(req.Username, role)
	if err != nil {
		metrics.RecordLoginAttempt("failure")
		logging.Error().Err(err).Msg("Token generation failed")
		respondJSON(w, http.StatusInternalServerError, models.LoginResponse{Success: false, Error: "internal error"})
		return
	}

	// Cookie lets browser WebSocket upgrades authenticate without a
	// header; the body token serves non-browser clients.
	http.SetCookie(w, &http.Cookie{
		Name:     auth.TokenCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})

	metrics.RecordLoginAttempt("success")
	logging.Info().Str("username", req.Username).Str("role", role).Msg("Login succeeded")
	respondJSON(w, http.StatusOK, models.LoginResponse{
		Success:   true,
		Token:     token,
		Role:      role,
		ExpiresAt: expiresAt,
	})
}

// clientIP extracts the remote IP, without the port.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
