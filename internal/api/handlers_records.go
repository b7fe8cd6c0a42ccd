// FieldSync - Defensive Positioning Trainer for Baseball Coaching
// Copyright 2026 benchcoach
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/benchcoach/fieldsync

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/benchcoach/fieldsync/internal/auth"
	"github.com/benchcoach/fieldsync/internal/models"
	"github.com/benchcoach/fieldsync/internal/scenario"
	"github.com/benchcoach/fieldsync/internal/validation"
)

// The three record kinds share one handler set, parameterized by kind.
// Only positions and guidelines broadcast on the realtime channel;
// correct positions are an answer key consulted through REST and stay
// off the wire so drilling players cannot observe them.

// setRequest is the decoded body of a set or update request, reduced
// to the fields the service needs.
type setRequest struct {
	Scenario string
	Payload  json.RawMessage
}

// decodeSetRequest parses and validates the request body for the kind.
func decodeSetRequest(r *http.Request, kind models.Kind) (setRequest, error) {
	if kind == models.KindGuidelines {
		var req models.SetGuidelinesRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return setRequest{}, validation.NewRequestError("malformed JSON body")
		}
		if err := validation.ValidateStruct(&req); err != nil {
			return setRequest{}, err
		}
		payload, err := json.Marshal(req.Shapes)
		if err != nil {
			return setRequest{}, err
		}
		return setRequest{Scenario: req.Scenario, Payload: payload}, nil
	}

	var req models.SetPositionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return setRequest{}, validation.NewRequestError("malformed JSON body")
	}
	if err := validation.ValidateStruct(&req); err != nil {
		return setRequest{}, err
	}
	payload, err := json.Marshal(req.Positions)
	if err != nil {
		return setRequest{}, err
	}
	return setRequest{Scenario: req.Scenario, Payload: payload}, nil
}

// broadcastable reports whether mutations of the kind fan out on the
// realtime channel.
func broadcastable(kind models.Kind) bool {
	return kind == models.KindPositions || kind == models.KindGuidelines
}

func (h *Handler) broadcastRecord(kind models.Kind, record *models.Record) {
	if h.wsHub == nil || !broadcastable(kind) {
		return
	}
	ts := record.UpdatedAt
	h.wsHub.BroadcastStateUpdated(kind, record.Scenario, scenario.State{
		Payload:   record.Payload,
		SetBy:     scenario.SetByAdmin,
		Timestamp: &ts,
	})
}

// GetActive handles GET /api/v1/<kind>/{scenario}. Absence is a valid
// answer: success with a null record.
func (h *Handler) GetActive(kind models.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		record, err := h.service.ActiveRecord(r.Context(), chi.URLParam(r, "scenario"), kind)
		if err != nil {
			respondServiceError(w, kind, err)
			return
		}
		respondRecord(w, kind, record)
	}
}

// SetActive handles POST /api/v1/<kind>. The previous active record is
// superseded and the new one broadcast to connected viewers.
func (h *Handler) SetActive(kind models.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := decodeSetRequest(r, kind)
		if err != nil {
			respondServiceError(w, kind, err)
			return
		}

		actor := auth.ActorFromContext(r.Context())
		record, err := h.service.SetState(r.Context(), req.Scenario, kind, req.Payload, actor)
		if err != nil {
			respondServiceError(w, kind, err)
			return
		}

		h.broadcastRecord(kind, record)
		respondRecord(w, kind, record)
	}
}

// UpdateActive handles PUT /api/v1/<kind>/{id}. The id must name the
// currently active record; stale ids answer 404.
func (h *Handler) UpdateActive(kind models.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := decodeSetRequest(r, kind)
		if err != nil {
			respondServiceError(w, kind, err)
			return
		}

		actor := auth.ActorFromContext(r.Context())
		record, err := h.service.UpdateStateByID(r.Context(), chi.URLParam(r, "id"), req.Scenario, kind, req.Payload, actor)
		if err != nil {
			respondServiceError(w, kind, err)
			return
		}

		h.broadcastRecord(kind, record)
		respondRecord(w, kind, record)
	}
}

// ClearActive handles DELETE /api/v1/<kind>/{scenario}. Idempotent:
// clearing a scenario with no active state still succeeds.
func (h *Handler) ClearActive(kind models.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scenarioKey := chi.URLParam(r, "scenario")
		actor := auth.ActorFromContext(r.Context())

		if err := h.service.ClearState(r.Context(), scenarioKey, kind, actor); err != nil {
			respondServiceError(w, kind, err)
			return
		}

		if h.wsHub != nil && broadcastable(kind) {
			h.wsHub.BroadcastStateCleared(kind, scenarioKey)
		}
		respondRecord(w, kind, nil)
	}
}

// History handles GET /api/v1/<kind>/{scenario}/history: every version
// ever written, newest first. Privileged.
func (h *Handler) History(kind models.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scenarioKey := chi.URLParam(r, "scenario")
		actor := auth.ActorFromContext(r.Context())

		records, err := h.service.History(r.Context(), scenarioKey, kind, actor)
		if err != nil {
			status, message := statusForError(err)
			respondJSON(w, status, models.HistoryEnvelope{Success: false, Scenario: scenarioKey, Kind: kind, Error: message})
			return
		}

		respondJSON(w, http.StatusOK, models.HistoryEnvelope{
			Success:  true,
			Scenario: scenarioKey,
			Kind:     kind,
			History:  records,
		})
	}
}

// Scenarios handles GET /api/v1/scenarios: the distinct scenarios that
// currently have any active state, for picker UIs.
func (h *Handler) Scenarios(w http.ResponseWriter, r *http.Request) {
	scenarios, err := h.service.Scenarios(r.Context())
	if err != nil {
		status, message := statusForError(err)
		respondJSON(w, status, models.ScenariosEnvelope{Success: false, Error: message})
		return
	}
	respondJSON(w, http.StatusOK, models.ScenariosEnvelope{Success: true, Scenarios: scenarios})
}
