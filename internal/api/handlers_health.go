// FieldSync - Defensive Positioning Trainer for Baseball Coaching
// Copyright 2026 benchcoach
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/benchcoach/fieldsync

package api

import (
	"net/http"
	"time"

	"github.com/benchcoach/fieldsync/internal/models"
)

// Version is the build version, injected at link time.
var Version = "dev"

// Health handles GET /api/v1/health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, models.HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Version:   Version,
	})
}

// HealthLive handles the liveness probe. Answering at all is the
// signal; no dependencies are consulted.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, models.HealthResponse{
		Status:    "alive",
		Timestamp: time.Now().UTC(),
	})
}

// HealthReady handles the readiness probe. Ready means the record
// store is open and answering reads.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	ready := h.st != nil
	if ready {
		if _, err := h.st.ListScenarios(r.Context()); err != nil {
			ready = false
		}
	}

	status := "ready"
	statusCode := http.StatusOK
	if !ready {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
	}

	respondJSON(w, statusCode, models.HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC(),
	})
}
