// FieldSync - Defensive Positioning Trainer for Baseball Coaching
// Copyright 2026 benchcoach
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/benchcoach/fieldsync

package websocket

import (
	"time"

	"github.com/goccy/go-json"

	"github.com/benchcoach/fieldsync/internal/models"
)

// Inbound message types. The set/update/clear commands are privileged
// and mutate state; the get commands are read-only queries answered to
// the sender alone.
const (
	MessageTypeSetPositions    = "set_positions"
	MessageTypeUpdatePositions = "update_positions"
	MessageTypeClearPositions  = "clear_positions"
	MessageTypeGetPositions    = "get_positions"

	MessageTypeSetGuidelines    = "set_guidelines"
	MessageTypeUpdateGuidelines = "update_guidelines"
	MessageTypeClearGuidelines  = "clear_guidelines"
	MessageTypeGetGuidelines    = "get_guidelines"

	MessageTypePing = "ping"
	MessageTypePong = "pong"
)

// Outbound message types. The *_updated and *_cleared events fan out
// to every connected client; *_received, *_saved, and *_error go to a
// single client only.
const (
	MessageTypePositionsUpdated  = "positions_updated"
	MessageTypePositionsCleared  = "positions_cleared"
	MessageTypePositionsReceived = "positions_received"
	MessageTypePositionsSaved    = "positions_saved"
	MessageTypePositionsError    = "positions_error"

	MessageTypeGuidelinesUpdated  = "guidelines_updated"
	MessageTypeGuidelinesCleared  = "guidelines_cleared"
	MessageTypeGuidelinesReceived = "guidelines_received"
	MessageTypeGuidelinesSaved    = "guidelines_saved"
	MessageTypeGuidelinesError    = "guidelines_error"
)

// Message represents a WebSocket message
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// inboundMessage defers payload decoding until the type is known.
type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// CommandData is the payload of every inbound command. Positions and
// Shapes stay raw so the stored document is exactly what the client
// sent. Commands carry no actor identity; the acting user comes from
// the authenticated connection.
type CommandData struct {
	Scenario  string          `json:"scenario"`
	Positions json.RawMessage `json:"positions,omitempty"`
	Shapes    json.RawMessage `json:"shapes,omitempty"`
}

// payload returns the kind-appropriate payload field.
func (d CommandData) payload(kind models.Kind) json.RawMessage {
	if kind == models.KindGuidelines {
		return d.Shapes
	}
	return d.Positions
}

// StateData is the payload of *_updated broadcasts and *_received
// query responses. For a scenario with no admin-set state, the payload
// field is absent, SetBy is "none", and Timestamp is null.
type StateData struct {
	Scenario  string          `json:"scenario"`
	Positions json.RawMessage `json:"positions,omitempty"`
	Shapes    json.RawMessage `json:"shapes,omitempty"`
	SetBy     string          `json:"setBy"`
	Timestamp *time.Time      `json:"timestamp"`
}

// ClearedData is the payload of *_cleared broadcasts.
type ClearedData struct {
	Scenario  string    `json:"scenario"`
	Timestamp time.Time `json:"timestamp"`
}

// SavedData acknowledges a successful mutate command to its sender.
type SavedData struct {
	Scenario string    `json:"scenario"`
	RecordID string    `json:"recordId,omitempty"`
	SavedAt  time.Time `json:"savedAt"`
}

// ErrorData reports a failed command to its sender. Code is one of
// "unauthorized", "validation", "not_found", "timeout", "internal".
type ErrorData struct {
	Scenario string `json:"scenario,omitempty"`
	Code     string `json:"code"`
	Message  string `json:"message"`
}

// newStateData builds a StateData with the payload in the right field
// for the kind.
func newStateData(kind models.Kind, scenarioKey string, payload json.RawMessage, setBy string, timestamp *time.Time) StateData {
	data := StateData{Scenario: scenarioKey, SetBy: setBy, Timestamp: timestamp}
	if kind == models.KindGuidelines {
		data.Shapes = payload
	} else {
		data.Positions = payload
	}
	return data
}
