// FieldSync - Defensive Positioning Trainer for Baseball Coaching
// Copyright 2026 benchcoach
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/benchcoach/fieldsync

// Package websocket implements the realtime broadcast channel: a hub
// holding every connected client, per-connection read/write pumps, and
// a dispatcher that maps inbound commands onto the scenario state
// service. Mutations broadcast to all clients on success only; queries
// and errors answer the issuing client alone.
package websocket

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/benchcoach/fieldsync/internal/logging"
	"github.com/benchcoach/fieldsync/internal/metrics"
	"github.com/benchcoach/fieldsync/internal/models"
	"github.com/benchcoach/fieldsync/internal/scenario"
)

// ShutdownReason identifies why the hub is shutting down.
type ShutdownReason string

const (
	// ShutdownReasonContextCanceled is the normal graceful shutdown
	// path (e.g., SIGTERM).
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"

	// ShutdownReasonContextDeadline may indicate a hung operation
	// during shutdown.
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// Hub maintains the set of active clients and broadcasts messages to
// the clients. It is constructed once at startup and passed by
// reference to the API handlers; there is no package-level instance.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates a new Hub
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan Message, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
	}
}

// RunWithContext starts the hub with context support for graceful
// shutdown, designed for suture supervision. When the context is
// canceled all connected clients are closed and ctx.Err() is returned.
//
// DETERMINISM: Uses priority-based selection so behavior is predictable
// when multiple channels are ready:
// - Priority 1: Context cancellation (shutdown)
// - Priority 2: Client lifecycle events (Register/Unregister)
// - Priority 3: Broadcast messages
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		// Priority 1: Check for shutdown (highest priority, non-blocking)
		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		default:
		}

		// Priority 2: Handle client lifecycle events (non-blocking check)
		select {
		case client := <-h.Register:
			h.addClient(client)
			continue
		case client := <-h.Unregister:
			h.removeClient(client)
			continue
		default:
		}

		// Priority 3: Handle broadcast messages or wait for any event
		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()

		case client := <-h.Register:
			h.addClient(client)

		case client := <-h.Unregister:
			h.removeClient(client)

		case message := <-h.broadcast:
			h.broadcastToClients(message)
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	total := len(h.clients)
	h.mu.Unlock()

	metrics.ConnectedClients.Set(float64(total))
	logging.Info().
		Int("total_clients", total).
		Str("actor", client.actor.ID).
		Msg("websocket client connected")
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		client.disconnect()
	}
	total := len(h.clients)
	h.mu.Unlock()

	metrics.ConnectedClients.Set(float64(total))
	logging.Info().Int("total_clients", total).Msg("websocket client disconnected")
}

// broadcastToClients sends a message to all connected clients in a
// deterministic order.
//
// DETERMINISM: Sorts clients by ID for consistent iteration order;
// Go's map iteration would otherwise deliver in random order.
func (h *Hub) broadcastToClients(message Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})

	// Track clients to remove (can't modify map during iteration)
	var toRemove []*Client

	for _, client := range clients {
		select {
		case client.send <- message:
		default:
			// Channel full, mark for removal
			toRemove = append(toRemove, client)
		}
	}

	// The send channel stays open: the client's read pump may be inside
	// Send concurrently, and a closed channel would panic it. disconnect
	// signals the write pump instead.
	for _, client := range toRemove {
		client.disconnect()
		delete(h.clients, client)
	}
	if len(toRemove) > 0 {
		metrics.ConnectedClients.Set(float64(len(h.clients)))
		logging.Warn().Int("dropped", len(toRemove)).Msg("dropped slow websocket clients during broadcast")
	}
}

// closeAllClients closes all connected clients in ID order, for clean
// shutdown.
func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})

	for _, client := range clients {
		client.disconnect()
		delete(h.clients, client)
	}
	metrics.ConnectedClients.Set(0)
}

// logGracefulShutdown closes all clients and logs structured shutdown
// information. ctx.Err() is not logged as an error: cancellation is
// expected during graceful shutdown.
func (h *Hub) logGracefulShutdown(ctx context.Context) {
	clientCount := h.ClientCount()
	h.closeAllClients()

	logging.Info().
		Str("component", "websocket-hub").
		Str("reason", string(getShutdownReason(ctx))).
		Int("clients_closed", clientCount).
		Msg("websocket hub stopped")
}

func getShutdownReason(ctx context.Context) ShutdownReason {
	if ctx.Err() == context.DeadlineExceeded {
		return ShutdownReasonContextDeadline
	}
	return ShutdownReasonContextCanceled
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// enqueue places a message on the broadcast channel, dropping it when
// the channel is full rather than blocking the caller.
func (h *Hub) enqueue(message Message) {
	select {
	case h.broadcast <- message:
		metrics.RecordBroadcast(message.Type)
	default:
		logging.Warn().Str("message_type", message.Type).Msg("broadcast channel full, dropping message")
	}
}

// BroadcastStateUpdated fans the new state for (scenario, kind) out to
// every connected client, the issuing client included.
func (h *Hub) BroadcastStateUpdated(kind models.Kind, scenarioKey string, state scenario.State) {
	messageType := MessageTypePositionsUpdated
	if kind == models.KindGuidelines {
		messageType = MessageTypeGuidelinesUpdated
	}

	h.enqueue(Message{
		Type: messageType,
		Data: newStateData(kind, scenarioKey, state.Payload, state.SetBy, state.Timestamp),
	})
}

// BroadcastStateCleared announces to every client that the state for
// (scenario, kind) was cleared.
func (h *Hub) BroadcastStateCleared(kind models.Kind, scenarioKey string) {
	messageType := MessageTypePositionsCleared
	if kind == models.KindGuidelines {
		messageType = MessageTypeGuidelinesCleared
	}

	h.enqueue(Message{
		Type: messageType,
		Data: ClearedData{Scenario: scenarioKey, Timestamp: time.Now().UTC()},
	})
}
