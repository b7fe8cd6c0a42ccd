// FieldSync - Defensive Positioning Trainer for Baseball Coaching
// Copyright 2026 benchcoach
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/benchcoach/fieldsync

package websocket

import (
	"context"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benchcoach/fieldsync/internal/scenario"
	"github.com/benchcoach/fieldsync/internal/store"
)

var (
	adminActor  = scenario.Actor{ID: "admin1", Role: "admin"}
	viewerActor = scenario.Actor{ID: "user1", Role: "user"}
)

// setupDispatcher wires a running hub, a badger-backed service, and a
// dispatcher, plus one registered observer client.
func setupDispatcher(t *testing.T) (*Dispatcher, *Hub, *Client) {
	t.Helper()

	st, err := store.Open(store.Config{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, st.Close())
	})

	hub := setupHub(t)
	dispatcher := NewDispatcher(scenario.NewService(st, 0), hub)

	observer := createTestClient(hub, viewerActor)
	registerClient(hub, observer)

	return dispatcher, hub, observer
}

// collect drains messages for the given window.
func collect(client *Client, window time.Duration) []Message {
	var messages []Message
	deadline := time.After(window)
	for {
		select {
		case msg, ok := <-client.send:
			if !ok {
				return messages
			}
			messages = append(messages, msg)
		case <-deadline:
			return messages
		}
	}
}

func messageTypes(messages []Message) []string {
	types := make([]string, 0, len(messages))
	for _, m := range messages {
		types = append(types, m.Type)
	}
	return types
}

func setPositionsData(t *testing.T) json.RawMessage {
	t.Helper()
	return json.RawMessage(`{"scenario":"Bunt Defense","positions":{"P":{"x":50,"y":50,"color":"bg-emerald-500","label":"P"}}}`)
}

func TestMutateBroadcastsAndAcks(t *testing.T) {
	dispatcher, hub, observer := setupDispatcher(t)

	sender := createTestClient(hub, adminActor)
	registerClient(hub, sender)

	dispatcher.Dispatch(context.Background(), sender, MessageTypeSetPositions, setPositionsData(t))

	senderTypes := messageTypes(collect(sender, 200*time.Millisecond))
	observerTypes := messageTypes(collect(observer, 200*time.Millisecond))

	// The sender gets the broadcast AND the private ack.
	assert.Contains(t, senderTypes, MessageTypePositionsSaved)
	assert.Contains(t, senderTypes, MessageTypePositionsUpdated)

	// The observer sees exactly the broadcast.
	assert.Equal(t, []string{MessageTypePositionsUpdated}, observerTypes)
}

func TestFailedMutateSendsPrivateErrorOnly(t *testing.T) {
	dispatcher, hub, observer := setupDispatcher(t)

	sender := createTestClient(hub, viewerActor)
	registerClient(hub, sender)

	dispatcher.Dispatch(context.Background(), sender, MessageTypeSetPositions, setPositionsData(t))

	senderMsgs := collect(sender, 200*time.Millisecond)
	require.Len(t, senderMsgs, 1)
	assert.Equal(t, MessageTypePositionsError, senderMsgs[0].Type)

	errData, ok := senderMsgs[0].Data.(ErrorData)
	require.True(t, ok)
	assert.Equal(t, "unauthorized", errData.Code)

	// Zero broadcasts: other clients see nothing.
	assert.Empty(t, collect(observer, 200*time.Millisecond))
}

func TestQueryAnswersSenderOnly(t *testing.T) {
	dispatcher, hub, observer := setupDispatcher(t)

	admin := createTestClient(hub, adminActor)
	registerClient(hub, admin)
	dispatcher.Dispatch(context.Background(), admin, MessageTypeSetPositions, setPositionsData(t))
	collect(admin, 200*time.Millisecond)
	collect(observer, 200*time.Millisecond)

	reader := createTestClient(hub, viewerActor)
	registerClient(hub, reader)

	dispatcher.Dispatch(context.Background(), reader, MessageTypeGetPositions,
		json.RawMessage(`{"scenario":"Bunt Defense"}`))

	readerMsgs := collect(reader, 200*time.Millisecond)
	require.Len(t, readerMsgs, 1)
	assert.Equal(t, MessageTypePositionsReceived, readerMsgs[0].Type)

	data, ok := readerMsgs[0].Data.(StateData)
	require.True(t, ok)
	assert.Equal(t, "Bunt Defense", data.Scenario)
	assert.Equal(t, scenario.SetByAdmin, data.SetBy)
	assert.NotNil(t, data.Timestamp)
	assert.NotEmpty(t, data.Positions)

	assert.Empty(t, collect(observer, 200*time.Millisecond), "queries never broadcast")
}

func TestQueryAbsentScenario(t *testing.T) {
	dispatcher, hub, _ := setupDispatcher(t)

	reader := createTestClient(hub, viewerActor)
	registerClient(hub, reader)

	dispatcher.Dispatch(context.Background(), reader, MessageTypeGetGuidelines,
		json.RawMessage(`{"scenario":"Nobody Set This"}`))

	msgs := collect(reader, 200*time.Millisecond)
	require.Len(t, msgs, 1)
	assert.Equal(t, MessageTypeGuidelinesReceived, msgs[0].Type)

	data, ok := msgs[0].Data.(StateData)
	require.True(t, ok)
	assert.Equal(t, scenario.SetByNone, data.SetBy)
	assert.Nil(t, data.Timestamp)
	assert.Empty(t, data.Shapes)
}

func TestClearBroadcasts(t *testing.T) {
	dispatcher, hub, observer := setupDispatcher(t)

	admin := createTestClient(hub, adminActor)
	registerClient(hub, admin)

	dispatcher.Dispatch(context.Background(), admin, MessageTypeSetPositions, setPositionsData(t))
	collect(admin, 200*time.Millisecond)
	collect(observer, 200*time.Millisecond)

	dispatcher.Dispatch(context.Background(), admin, MessageTypeClearPositions,
		json.RawMessage(`{"scenario":"Bunt Defense"}`))

	observerTypes := messageTypes(collect(observer, 200*time.Millisecond))
	assert.Equal(t, []string{MessageTypePositionsCleared}, observerTypes)

	adminTypes := messageTypes(collect(admin, 200*time.Millisecond))
	assert.Contains(t, adminTypes, MessageTypePositionsSaved)
	assert.Contains(t, adminTypes, MessageTypePositionsCleared)
}

func TestGuidelinesRoundTripOverChannel(t *testing.T) {
	dispatcher, hub, observer := setupDispatcher(t)

	admin := createTestClient(hub, adminActor)
	registerClient(hub, admin)

	shapes := `[{"id":"g1","type":"arrow","points":[10,10,40,40],"stroke":"#000000","strokeWidth":3}]`
	dispatcher.Dispatch(context.Background(), admin, MessageTypeSetGuidelines,
		json.RawMessage(`{"scenario":"S","shapes":`+shapes+`}`))

	observerMsgs := collect(observer, 200*time.Millisecond)
	require.Len(t, observerMsgs, 1)
	assert.Equal(t, MessageTypeGuidelinesUpdated, observerMsgs[0].Type)

	data, ok := observerMsgs[0].Data.(StateData)
	require.True(t, ok)
	assert.JSONEq(t, shapes, string(data.Shapes))
}

func TestDispatchValidation(t *testing.T) {
	dispatcher, hub, _ := setupDispatcher(t)

	sender := createTestClient(hub, adminActor)
	registerClient(hub, sender)

	t.Run("unknown command", func(t *testing.T) {
		dispatcher.Dispatch(context.Background(), sender, "steal_signs", nil)
		msgs := collect(sender, 100*time.Millisecond)
		require.Len(t, msgs, 1)
		data := msgs[0].Data.(ErrorData)
		assert.Equal(t, "validation", data.Code)
	})

	t.Run("missing scenario", func(t *testing.T) {
		dispatcher.Dispatch(context.Background(), sender, MessageTypeSetPositions,
			json.RawMessage(`{"positions":{}}`))
		msgs := collect(sender, 100*time.Millisecond)
		require.Len(t, msgs, 1)
		data := msgs[0].Data.(ErrorData)
		assert.Equal(t, "validation", data.Code)
	})

	t.Run("malformed payload", func(t *testing.T) {
		dispatcher.Dispatch(context.Background(), sender, MessageTypeSetPositions,
			json.RawMessage(`{"scenario":"S","positions":{}}`))
		msgs := collect(sender, 100*time.Millisecond)
		require.Len(t, msgs, 1)
		data := msgs[0].Data.(ErrorData)
		assert.Equal(t, "validation", data.Code)
	})
}
