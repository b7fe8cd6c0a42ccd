// FieldSync - Defensive Positioning Trainer for Baseball Coaching
// Copyright 2026 benchcoach
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/benchcoach/fieldsync

package models

import (
	"time"
)

// PositionsEnvelope is the response wrapper for the positions and
// correct-positions REST endpoints.
//
// Record is the active record for the request's scenario, or null when
// no admin-set state exists (absence is a valid, non-error answer).
// Error is populated only when Success is false.
//
// Example:
//
//	{
//	  "success": true,
//	  "positions": {
//	    "id": "0b6f...",
//	    "scenario": "Bunt Defense",
//	    "kind": "positions",
//	    "payload": {"P": {"x": 50, "y": 50, "color": "bg-emerald-500", "label": "P"}, ...},
//	    "isActive": true
//	  }
//	}
type PositionsEnvelope struct {
	Success   bool    `json:"success"`
	Positions *Record `json:"positions"`
	Error     string  `json:"error,omitempty"`
}

// GuidelinesEnvelope is the response wrapper for the guidelines REST
// endpoints. Same semantics as PositionsEnvelope.
type GuidelinesEnvelope struct {
	Success    bool    `json:"success"`
	Guidelines *Record `json:"guidelines"`
	Error      string  `json:"error,omitempty"`
}

// HistoryEnvelope wraps the version-history endpoints: every record
// ever written for a (scenario, kind), newest first, active or not.
type HistoryEnvelope struct {
	Success  bool      `json:"success"`
	Scenario string    `json:"scenario"`
	Kind     Kind      `json:"kind"`
	History  []*Record `json:"history"`
	Error    string    `json:"error,omitempty"`
}

// ScenariosEnvelope lists the distinct scenarios that currently have
// any active state, for scenario-picker UIs.
type ScenariosEnvelope struct {
	Success   bool     `json:"success"`
	Scenarios []string `json:"scenarios"`
	Error     string   `json:"error,omitempty"`
}

// SetPositionsRequest is the body for POST /api/v1/positions.
type SetPositionsRequest struct {
	Scenario  string      `json:"scenario" validate:"required"`
	Positions PositionSet `json:"positions" validate:"required"`
}

// UpdatePositionsRequest is the body for PUT /api/v1/positions/{id}.
type UpdatePositionsRequest struct {
	Scenario  string      `json:"scenario" validate:"required"`
	Positions PositionSet `json:"positions" validate:"required"`
}

// SetGuidelinesRequest is the body for POST /api/v1/guidelines.
type SetGuidelinesRequest struct {
	Scenario string  `json:"scenario" validate:"required"`
	Shapes   []Shape `json:"shapes" validate:"required"`
}

// UpdateGuidelinesRequest is the body for PUT /api/v1/guidelines/{id}.
type UpdateGuidelinesRequest struct {
	Scenario string  `json:"scenario" validate:"required"`
	Shapes   []Shape `json:"shapes" validate:"required"`
}

// LoginRequest is the body for POST /api/v1/auth/login.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse carries the issued token on successful login.
type LoginResponse struct {
	Success   bool      `json:"success"`
	Token     string    `json:"token,omitempty"`
	Role      string    `json:"role,omitempty"`
	ExpiresAt time.Time `json:"expiresAt,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// HealthResponse is returned by the health endpoints.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version,omitempty"`
}
