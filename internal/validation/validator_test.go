// FieldSync - Defensive Positioning Trainer for Baseball Coaching
// Copyright 2026 benchcoach
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/benchcoach/fieldsync

package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benchcoach/fieldsync/internal/models"
)

func TestValidateStruct(t *testing.T) {
	ok := models.SetPositionsRequest{
		Scenario: "Bunt Defense",
		Positions: models.PositionSet{
			"P": {X: 50, Y: 50, Color: "bg-emerald-500", Label: "P"},
		},
	}
	assert.NoError(t, ValidateStruct(&ok))

	missing := models.SetPositionsRequest{Positions: ok.Positions}
	err := ValidateStruct(&missing)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scenario is required")
}

func TestValidateLoginRequest(t *testing.T) {
	err := ValidateStruct(&models.LoginRequest{Username: "skipper"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "password is required")

	assert.NoError(t, ValidateStruct(&models.LoginRequest{Username: "skipper", Password: "x"}))
}
