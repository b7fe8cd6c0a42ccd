// FieldSync - Defensive Positioning Trainer for Baseball Coaching
// Copyright 2026 benchcoach
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/benchcoach/fieldsync

package models

import (
	"time"

	"github.com/goccy/go-json"
)

// Record is one version of scenario state for a (scenario, kind) pair.
//
// Records are append-only: a new set deactivates the previous version
// and installs a new record; a clear deactivates without replacement;
// history survives as inactive records. At most one record per
// (scenario, kind) is active at any time.
//
// Payload holds the kind-specific document verbatim: a PositionSet map
// for positions/correct_positions, an ordered Shape list for
// guidelines. Keeping it as raw JSON preserves shape order and unknown
// fields byte-for-byte through store and wire.
type Record struct {
	ID        string          `json:"id"`
	Scenario  string          `json:"scenario"`
	Kind      Kind            `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	CreatedBy string          `json:"createdBy"`
	IsActive  bool            `json:"isActive"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}
