// FieldSync - Defensive Positioning Trainer for Baseball Coaching
// Copyright 2026 benchcoach
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/benchcoach/fieldsync

// Package api provides the HTTP surface: the REST fallback endpoints,
// authentication, health probes and the realtime channel upgrade.
package api

import (
	"errors"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/benchcoach/fieldsync/internal/logging"
	"github.com/benchcoach/fieldsync/internal/models"
	"github.com/benchcoach/fieldsync/internal/scenario"
	"github.com/benchcoach/fieldsync/internal/store"
	"github.com/benchcoach/fieldsync/internal/validation"
)

// respondJSON writes a JSON body with proper headers.
func respondJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// respondRecord writes the per-kind success envelope. The record may be
// nil: a scenario with no admin-set state answers success with a null
// record, not an error.
func respondRecord(w http.ResponseWriter, kind models.Kind, record *models.Record) {
	if kind == models.KindGuidelines {
		respondJSON(w, http.StatusOK, models.GuidelinesEnvelope{Success: true, Guidelines: record})
		return
	}
	respondJSON(w, http.StatusOK, models.PositionsEnvelope{Success: true, Positions: record})
}

// respondServiceError maps a service failure onto the per-kind error
// envelope with the appropriate status code.
func respondServiceError(w http.ResponseWriter, kind models.Kind, err error) {
	status, message := statusForError(err)
	if kind == models.KindGuidelines {
		respondJSON(w, status, models.GuidelinesEnvelope{Success: false, Error: message})
		return
	}
	respondJSON(w, status, models.PositionsEnvelope{Success: false, Error: message})
}

// statusForError translates service and store errors into HTTP status
// codes. Unknown errors become opaque 500s so internal details never
// reach clients.
func statusForError(err error) (int, string) {
	var reqErr *validation.RequestError
	switch {
	case errors.As(err, &reqErr):
		return http.StatusBadRequest, reqErr.Error()
	case errors.Is(err, scenario.ErrUnauthorized):
		return http.StatusForbidden, "insufficient privileges"
	case errors.Is(err, scenario.ErrActorRequired):
		return http.StatusBadRequest, "actor identity required"
	case errors.Is(err, store.ErrInvalidPayload):
		return http.StatusBadRequest, "invalid payload"
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "record not found"
	case errors.Is(err, scenario.ErrTimeout):
		return http.StatusGatewayTimeout, "operation timed out"
	default:
		logging.Error().Err(err).Msg("Unhandled service error")
		return http.StatusInternalServerError, "internal error"
	}
}
