// FieldSync - Defensive Positioning Trainer for Baseball Coaching
// Copyright 2026 benchcoach
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/benchcoach/fieldsync

package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLevels(t *testing.T) {
	tests := []struct {
		name  string
		level string
	}{
		{"debug level", "debug"},
		{"info level", "info"},
		{"warn level", "warn"},
		{"error level", "error"},
		{"unknown falls back to info", "bogus"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Level = tt.level
			Init(cfg)
			// Logger must be usable regardless of level string.
			logger := Logger()
			logger.Info().Msg("probe")
		})
	}
}

func TestNewTestLoggerWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewTestLogger(&buf)

	logger.Info().Str("component", "store").Msg("record saved")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "record saved", entry["message"])
	assert.Equal(t, "store", entry["component"])
}

func TestRequestIDContext(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, RequestIDFromContext(ctx))

	id := GenerateRequestID()
	require.NotEmpty(t, id)

	ctx = ContextWithRequestID(ctx, id)
	assert.Equal(t, id, RequestIDFromContext(ctx))
}

func TestCtxAttachesRequestID(t *testing.T) {
	var buf bytes.Buffer
	prev := Logger()
	setLogger(NewTestLogger(&buf))
	defer setLogger(prev)

	ctx := ContextWithRequestID(context.Background(), "req-123")
	Ctx(ctx).Info().Msg("with request id")

	assert.True(t, strings.Contains(buf.String(), "req-123"))
}
