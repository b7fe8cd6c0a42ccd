// FieldSync - Defensive Positioning Trainer for Baseball Coaching
// Copyright 2026 benchcoach
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/benchcoach/fieldsync

package websocket

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/benchcoach/fieldsync/internal/logging"
	"github.com/benchcoach/fieldsync/internal/scenario"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024 // 512 KB
)

// clientIDCounter generates unique, monotonically increasing IDs for
// clients, giving broadcasts a deterministic fan-out order.
var clientIDCounter atomic.Uint64

// Client is a middleman between one websocket connection and the hub.
// It carries the actor derived from the authenticated upgrade request;
// that identity, never anything in a command payload, authorizes the
// client's commands.
type Client struct {
	id         uint64
	hub        *Hub
	conn       *websocket.Conn
	send       chan Message
	done       chan struct{}
	closeOnce  sync.Once
	actor      scenario.Actor
	dispatcher *Dispatcher
}

// NewClient creates a Client for an upgraded connection.
func NewClient(hub *Hub, conn *websocket.Conn, actor scenario.Actor, dispatcher *Dispatcher) *Client {
	return &Client{
		id:         clientIDCounter.Add(1),
		hub:        hub,
		conn:       conn,
		send:       make(chan Message, 256),
		done:       make(chan struct{}),
		actor:      actor,
		dispatcher: dispatcher,
	}
}

// ID returns the client's unique identifier.
func (c *Client) ID() uint64 {
	return c.id
}

// Actor returns the authenticated identity bound to this connection.
func (c *Client) Actor() scenario.Actor {
	return c.actor
}

// Send queues a message for this client only. Returns false when the
// client's buffer is full or the client has been dropped; the message
// is dropped rather than blocking.
func (c *Client) Send(message Message) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- message:
		return true
	default:
		return false
	}
}

// disconnect signals the write pump to stop. The send channel is never
// closed: the read pump may still be delivering a reply through Send
// when the hub drops this client, and a send on a closed channel would
// panic the whole process.
func (c *Client) disconnect() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// readPump pumps inbound messages from the websocket connection into
// the dispatcher. Commands from one client are processed in arrival
// order; clients are independent of each other.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister <- c
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logging.Error().Err(err).Msg("failed to set read deadline")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg inboundMessage
		err := c.conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Error().Err(err).Msg("unexpected websocket close error")
			}
			break
		}

		if msg.Type == MessageTypePing {
			c.Send(Message{Type: MessageTypePong})
			continue
		}

		c.dispatcher.Dispatch(context.Background(), c, msg.Type, msg.Data)
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Msg("failed to set write deadline")
				return
			}

			if err := c.conn.WriteJSON(message); err != nil {
				logging.Error().Err(err).Msg("failed to write JSON message")
				return
			}

		case <-c.done:
			// The hub dropped this client
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
				logging.Error().Err(err).Msg("failed to write close message")
			}
			return

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Msg("failed to set write deadline for ping")
				return
			}

			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Start begins reading and writing for the client.
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}

// decodeCommand unmarshals a command payload, tolerating a missing
// data field so malformed commands surface as validation errors rather
// than closing the connection.
func decodeCommand(data json.RawMessage) (CommandData, error) {
	var cmd CommandData
	if len(data) == 0 {
		return cmd, nil
	}
	err := json.Unmarshal(data, &cmd)
	return cmd, err
}
