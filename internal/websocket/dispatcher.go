// FieldSync - Defensive Positioning Trainer for Baseball Coaching
// Copyright 2026 benchcoach
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/benchcoach/fieldsync

package websocket

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"

	"github.com/benchcoach/fieldsync/internal/logging"
	"github.com/benchcoach/fieldsync/internal/metrics"
	"github.com/benchcoach/fieldsync/internal/models"
	"github.com/benchcoach/fieldsync/internal/scenario"
	"github.com/benchcoach/fieldsync/internal/store"
)

// commandOp is the operation a command maps onto.
type commandOp int

const (
	opSet commandOp = iota
	opUpdate
	opClear
	opGet
)

// commandRoute binds an inbound message type to its kind, operation,
// and the outbound types used for the sender-only responses.
type commandRoute struct {
	kind      models.Kind
	op        commandOp
	savedType string
	errorType string
	recvType  string
}

var commandRoutes = map[string]commandRoute{
	MessageTypeSetPositions:    {models.KindPositions, opSet, MessageTypePositionsSaved, MessageTypePositionsError, ""},
	MessageTypeUpdatePositions: {models.KindPositions, opUpdate, MessageTypePositionsSaved, MessageTypePositionsError, ""},
	MessageTypeClearPositions:  {models.KindPositions, opClear, MessageTypePositionsSaved, MessageTypePositionsError, ""},
	MessageTypeGetPositions:    {models.KindPositions, opGet, "", MessageTypePositionsError, MessageTypePositionsReceived},

	MessageTypeSetGuidelines:    {models.KindGuidelines, opSet, MessageTypeGuidelinesSaved, MessageTypeGuidelinesError, ""},
	MessageTypeUpdateGuidelines: {models.KindGuidelines, opUpdate, MessageTypeGuidelinesSaved, MessageTypeGuidelinesError, ""},
	MessageTypeClearGuidelines:  {models.KindGuidelines, opClear, MessageTypeGuidelinesSaved, MessageTypeGuidelinesError, ""},
	MessageTypeGetGuidelines:    {models.KindGuidelines, opGet, "", MessageTypeGuidelinesError, MessageTypeGuidelinesReceived},
}

// Dispatcher maps inbound commands onto the scenario state service.
// For every mutate command: service call first; on success a broadcast
// to all clients, then a private ack to the sender. On any failure a
// private error event only — other clients never see a phantom update.
type Dispatcher struct {
	service *scenario.Service
	hub     *Hub
}

// NewDispatcher creates a dispatcher for the given service and hub.
func NewDispatcher(service *scenario.Service, hub *Hub) *Dispatcher {
	return &Dispatcher{service: service, hub: hub}
}

// Dispatch processes one inbound command from a client.
func (d *Dispatcher) Dispatch(ctx context.Context, client *Client, msgType string, data json.RawMessage) {
	route, ok := commandRoutes[msgType]
	if !ok {
		client.Send(Message{
			Type: MessageTypePositionsError,
			Data: ErrorData{Code: "validation", Message: "unknown command: " + msgType},
		})
		metrics.RecordCommand(msgType, errors.New("unknown command"))
		return
	}

	cmd, err := decodeCommand(data)
	if err == nil && cmd.Scenario == "" {
		err = errors.New("scenario is required")
	}
	if err != nil {
		client.Send(Message{
			Type: route.errorType,
			Data: ErrorData{Scenario: cmd.Scenario, Code: "validation", Message: err.Error()},
		})
		metrics.RecordCommand(msgType, err)
		return
	}

	if route.op == opGet {
		d.dispatchQuery(ctx, client, route, cmd)
		return
	}
	d.dispatchMutation(ctx, client, msgType, route, cmd)
}

// dispatchQuery answers a read command to the requesting client only;
// queries never broadcast.
func (d *Dispatcher) dispatchQuery(ctx context.Context, client *Client, route commandRoute, cmd CommandData) {
	state, err := d.service.GetState(ctx, cmd.Scenario, route.kind)
	if err != nil {
		client.Send(Message{
			Type: route.errorType,
			Data: ErrorData{Scenario: cmd.Scenario, Code: errorCode(err), Message: err.Error()},
		})
		metrics.RecordCommand(route.recvType, err)
		return
	}

	client.Send(Message{
		Type: route.recvType,
		Data: newStateData(route.kind, cmd.Scenario, state.Payload, state.SetBy, state.Timestamp),
	})
	metrics.RecordCommand(route.recvType, nil)
}

// dispatchMutation runs a privileged command: authorize and persist via
// the service, broadcast the new state to all clients, then ack the
// sender. No broadcast fires on failure.
func (d *Dispatcher) dispatchMutation(ctx context.Context, client *Client, msgType string, route commandRoute, cmd CommandData) {
	var (
		record *models.Record
		err    error
	)

	switch route.op {
	case opSet:
		record, err = d.service.SetState(ctx, cmd.Scenario, route.kind, cmd.payload(route.kind), client.actor)
	case opUpdate:
		record, err = d.service.UpdateState(ctx, cmd.Scenario, route.kind, cmd.payload(route.kind), client.actor)
	case opClear:
		err = d.service.ClearState(ctx, cmd.Scenario, route.kind, client.actor)
	}

	metrics.RecordCommand(msgType, err)

	if err != nil {
		logging.Ctx(ctx).Debug().
			Err(err).
			Str("command", msgType).
			Str("scenario", cmd.Scenario).
			Str("actor", client.actor.ID).
			Msg("command rejected")

		client.Send(Message{
			Type: route.errorType,
			Data: ErrorData{Scenario: cmd.Scenario, Code: errorCode(err), Message: err.Error()},
		})
		return
	}

	ack := SavedData{Scenario: cmd.Scenario}
	if route.op == opClear {
		d.hub.BroadcastStateCleared(route.kind, cmd.Scenario)
		ack.SavedAt = time.Now().UTC()
	} else {
		ts := record.UpdatedAt
		d.hub.BroadcastStateUpdated(route.kind, cmd.Scenario, scenario.State{
			Payload:   record.Payload,
			SetBy:     scenario.SetByAdmin,
			Timestamp: &ts,
		})
		ack.RecordID = record.ID
		ack.SavedAt = record.UpdatedAt
	}

	client.Send(Message{Type: route.savedType, Data: ack})
}

// errorCode maps service and store errors onto wire error codes.
func errorCode(err error) string {
	switch {
	case errors.Is(err, scenario.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, scenario.ErrActorRequired),
		errors.Is(err, store.ErrInvalidPayload):
		return "validation"
	case errors.Is(err, store.ErrNotFound):
		return "not_found"
	case errors.Is(err, scenario.ErrTimeout):
		return "timeout"
	default:
		return "internal"
	}
}
