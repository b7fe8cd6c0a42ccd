// FieldSync - Defensive Positioning Trainer for Baseball Coaching
// Copyright 2026 benchcoach
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/benchcoach/fieldsync

package websocket

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/benchcoach/fieldsync/internal/logging"
	"github.com/benchcoach/fieldsync/internal/models"
	"github.com/benchcoach/fieldsync/internal/scenario"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{Level: "disabled", Output: io.Discard})
}

// setupHub creates and starts a hub, stopping it when the test ends.
func setupHub(t *testing.T) *Hub {
	t.Helper()

	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = hub.RunWithContext(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	time.Sleep(10 * time.Millisecond)
	return hub
}

// createTestClient creates a hub-only client with no live connection.
func createTestClient(hub *Hub, actor scenario.Actor) *Client {
	return &Client{
		id:    clientIDCounter.Add(1),
		hub:   hub,
		send:  make(chan Message, 256),
		done:  make(chan struct{}),
		actor: actor,
	}
}

// registerClient registers a client and waits for registration to complete
func registerClient(hub *Hub, client *Client) {
	hub.Register <- client
	time.Sleep(20 * time.Millisecond)
}

func TestNewHub(t *testing.T) {
	hub := NewHub()

	if hub == nil {
		t.Fatal("NewHub returned nil")
	}

	checks := []struct {
		name   string
		check  bool
		errMsg string
	}{
		{"clients map", hub.clients != nil, "clients map not initialized"},
		{"broadcast channel", hub.broadcast != nil, "broadcast channel not initialized"},
		{"Register channel", hub.Register != nil, "Register channel not initialized"},
		{"Unregister channel", hub.Unregister != nil, "Unregister channel not initialized"},
		{"empty clients", len(hub.clients) == 0, "clients map should be empty"},
	}

	for _, c := range checks {
		if !c.check {
			t.Error(c.errMsg)
		}
	}
}

func TestHubClientCount(t *testing.T) {
	hub := NewHub()

	if hub.ClientCount() != 0 {
		t.Errorf("Expected 0 clients initially, got %d", hub.ClientCount())
	}

	for i := 0; i < 5; i++ {
		hub.clients[createTestClient(hub, scenario.Actor{})] = true
	}

	if hub.ClientCount() != 5 {
		t.Errorf("Expected 5 clients, got %d", hub.ClientCount())
	}
}

func TestHubRegisterUnregister(t *testing.T) {
	hub := setupHub(t)

	client := createTestClient(hub, scenario.Actor{ID: "viewer1", Role: "user"})
	registerClient(hub, client)

	if hub.ClientCount() != 1 {
		t.Fatalf("Expected 1 client after register, got %d", hub.ClientCount())
	}

	hub.Unregister <- client
	time.Sleep(20 * time.Millisecond)

	if hub.ClientCount() != 0 {
		t.Fatalf("Expected 0 clients after unregister, got %d", hub.ClientCount())
	}

	// Unregistering signals the client's done channel.
	select {
	case <-client.done:
	default:
		t.Error("done channel should be closed after unregister")
	}
}

func TestBroadcastReachesAllClients(t *testing.T) {
	hub := setupHub(t)

	first := createTestClient(hub, scenario.Actor{ID: "a", Role: "user"})
	second := createTestClient(hub, scenario.Actor{ID: "b", Role: "user"})
	registerClient(hub, first)
	registerClient(hub, second)

	ts := time.Now().UTC()
	hub.BroadcastStateUpdated(models.KindPositions, "Bunt Defense", scenario.State{
		Payload:   json.RawMessage(`{"P":{"x":50,"y":50,"color":"bg-emerald-500","label":"P"}}`),
		SetBy:     scenario.SetByAdmin,
		Timestamp: &ts,
	})

	for _, client := range []*Client{first, second} {
		select {
		case msg := <-client.send:
			if msg.Type != MessageTypePositionsUpdated {
				t.Errorf("expected %s, got %s", MessageTypePositionsUpdated, msg.Type)
			}
			data, ok := msg.Data.(StateData)
			if !ok {
				t.Fatalf("unexpected data type %T", msg.Data)
			}
			if data.Scenario != "Bunt Defense" || data.SetBy != scenario.SetByAdmin {
				t.Errorf("unexpected broadcast data: %+v", data)
			}
		case <-time.After(time.Second):
			t.Fatal("client did not receive broadcast")
		}
	}
}

func TestBroadcastClearedEventType(t *testing.T) {
	hub := setupHub(t)
	client := createTestClient(hub, scenario.Actor{ID: "a", Role: "user"})
	registerClient(hub, client)

	hub.BroadcastStateCleared(models.KindGuidelines, "Bunt Defense")

	select {
	case msg := <-client.send:
		if msg.Type != MessageTypeGuidelinesCleared {
			t.Errorf("expected %s, got %s", MessageTypeGuidelinesCleared, msg.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("client did not receive cleared broadcast")
	}
}

func TestSlowClientDroppedDuringBroadcast(t *testing.T) {
	hub := setupHub(t)

	slow := createTestClient(hub, scenario.Actor{ID: "slow", Role: "user"})
	slow.send = make(chan Message) // unbuffered and never drained
	registerClient(hub, slow)

	healthy := createTestClient(hub, scenario.Actor{ID: "ok", Role: "user"})
	registerClient(hub, healthy)

	hub.BroadcastStateCleared(models.KindPositions, "S")
	time.Sleep(50 * time.Millisecond)

	if hub.ClientCount() != 1 {
		t.Errorf("expected slow client to be dropped, count=%d", hub.ClientCount())
	}

	select {
	case msg := <-healthy.send:
		if msg.Type != MessageTypePositionsCleared {
			t.Errorf("unexpected message type %s", msg.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("healthy client did not receive broadcast")
	}
}

func TestSendAfterDropDoesNotPanic(t *testing.T) {
	hub := setupHub(t)

	slow := createTestClient(hub, scenario.Actor{ID: "slow", Role: "user"})
	slow.send = make(chan Message) // unbuffered and never drained
	registerClient(hub, slow)

	hub.BroadcastStateCleared(models.KindPositions, "S")
	time.Sleep(50 * time.Millisecond)

	if hub.ClientCount() != 0 {
		t.Fatalf("expected slow client to be dropped, count=%d", hub.ClientCount())
	}

	// The client's read pump can still be answering a command after the
	// hub dropped it; that delivery must fail quietly, never panic.
	if slow.Send(Message{Type: MessageTypePong}) {
		t.Error("Send should report false for a dropped client")
	}
}

func TestRunWithContextShutdown(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		errCh <- hub.RunWithContext(ctx)
	}()
	time.Sleep(10 * time.Millisecond)

	client := createTestClient(hub, scenario.Actor{})
	registerClient(hub, client)

	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("hub did not stop on context cancel")
	}

	if hub.ClientCount() != 0 {
		t.Errorf("expected all clients closed on shutdown, count=%d", hub.ClientCount())
	}
}
