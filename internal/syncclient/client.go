// FieldSync - Defensive Positioning Trainer for Baseball Coaching
// Copyright 2026 benchcoach
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/benchcoach/fieldsync

package syncclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/benchcoach/fieldsync/internal/logging"
	"github.com/benchcoach/fieldsync/internal/models"
)

// ErrNotConnected is returned when a command is issued while the
// WebSocket connection is down. The caller may retry; the listener
// reconnects in the background.
var ErrNotConnected = errors.New("syncclient: not connected")

const (
	commandGetPositions  = "get_positions"
	commandGetGuidelines = "get_guidelines"

	handshakeTimeout = 10 * time.Second
	writeTimeout     = 10 * time.Second
	readTimeout      = 60 * time.Second
	pingInterval     = 30 * time.Second

	initialReconnectDelay = 1 * time.Second
	maxReconnectDelay     = 32 * time.Second
)

// command is the wire shape of outgoing read requests.
type command struct {
	Type string      `json:"type"`
	Data commandData `json:"data"`
}

type commandData struct {
	Scenario string `json:"scenario"`
}

// serverMessage is the wire envelope of incoming events.
type serverMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Client maintains a live view of scenario state over the realtime
// channel. It connects to the server's WebSocket endpoint, applies
// every broadcast to its Cache, and issues read commands on demand.
//
// Key Features:
//   - Automatic reconnection with exponential backoff (1s doubling to 32s)
//   - Catch-up after reconnect: re-reads every cached scenario so state
//     mutated while the link was down is not missed
//   - Ping keepalive (30-second interval)
//   - Graceful shutdown handling
type Client struct {
	baseURL string // server URL (http://localhost:8090)
	token   string // bearer token for the upgrade handshake

	cache *Cache

	conn     *websocket.Conn
	connMu   sync.RWMutex
	writeMu  sync.Mutex
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// Callback for cache changes (thread-safe)
	callbackMu sync.RWMutex
	onChange   func(scenario string)
}

// NewClient creates a sync client for the given server. The returned
// client is not yet connected; call Connect.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL:  baseURL,
		token:    token,
		cache:    NewCache(),
		stopChan: make(chan struct{}),
	}
}

// Cache exposes the client's state mirror.
func (c *Client) Cache() *Cache {
	return c.cache
}

// SetOnChange registers a handler invoked after any cache mutation,
// with the scenario that changed. Pass nil to unregister.
//
// Thread Safety: safe for concurrent calls.
func (c *Client) SetOnChange(fn func(scenario string)) {
	c.callbackMu.Lock()
	defer c.callbackMu.Unlock()
	c.onChange = fn
}

// Connect establishes the WebSocket connection and starts the listener
// and keepalive goroutines. Safe to call once per client; subsequent
// reconnects are handled internally by the listener.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.dial(ctx); err != nil {
		return err
	}

	c.wg.Add(2)
	go c.listen(ctx)
	go c.pingLoop(ctx)

	return nil
}

// dial establishes the raw connection. It does not start goroutines,
// so the listener can call it during reconnection.
func (c *Client) dial(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn != nil {
		return nil
	}

	wsURL, err := c.buildWebSocketURL()
	if err != nil {
		return fmt.Errorf("build websocket url: %w", err)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout:  handshakeTimeout,
		EnableCompression: true,
	}

	// The server rejects upgrades without an Origin header; gorilla's
	// dialer does not send one on its own.
	header := http.Header{}
	if origin := c.originHeader(); origin != "" {
		header.Set("Origin", origin)
	}

	conn, resp, err := dialer.DialContext(ctx, wsURL, header)
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return fmt.Errorf("websocket dial failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("websocket dial: %w", err)
	}

	c.conn = conn
	logging.Info().Str("url", c.baseURL).Msg("Sync channel connected")
	return nil
}

// originHeader derives the Origin value for the upgrade handshake from
// the configured base URL.
func (c *Client) originHeader() string {
	parsed, err := url.Parse(c.baseURL)
	if err != nil || parsed.Host == "" {
		return ""
	}
	origin := url.URL{Scheme: parsed.Scheme, Host: parsed.Host}
	return origin.String()
}

// buildWebSocketURL converts the HTTP base URL to the channel endpoint,
// injecting the bearer token as a query parameter (browser WebSocket
// clients cannot set headers, so the server accepts ?token=).
func (c *Client) buildWebSocketURL() (string, error) {
	parsed, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}

	scheme := "ws"
	if parsed.Scheme == "https" {
		scheme = "wss"
	}

	endpoint := url.URL{Scheme: scheme, Host: parsed.Host, Path: "/api/v1/ws"}
	if c.token != "" {
		q := endpoint.Query()
		q.Set("token", c.token)
		endpoint.RawQuery = q.Encode()
	}

	return endpoint.String(), nil
}

// listen processes incoming events and drives reconnection.
//
// Reconnection Strategy:
//   - Exponential backoff: 1s, 2s, 4s, 8s, 16s, max 32s
//   - Unlimited attempts until context canceled or Close called
//   - After a successful reconnect, re-issues read commands for every
//     cached scenario so the mirror catches up on missed mutations
func (c *Client) listen(ctx context.Context) {
	defer c.wg.Done()

	reconnectDelay := initialReconnectDelay

	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("Sync listener stopping (context canceled)")
			return
		case <-c.stopChan:
			logging.Info().Msg("Sync listener stopping (stop signal received)")
			return
		default:
			c.connMu.RLock()
			conn := c.conn
			c.connMu.RUnlock()

			if conn == nil {
				logging.Info().Dur("delay", reconnectDelay).Msg("Sync channel lost, reconnecting")
				select {
				case <-time.After(reconnectDelay):
				case <-ctx.Done():
					return
				case <-c.stopChan:
					return
				}

				reconnectDelay *= 2
				if reconnectDelay > maxReconnectDelay {
					reconnectDelay = maxReconnectDelay
				}

				if err := c.dial(ctx); err != nil {
					logging.Error().Err(err).Msg("Sync channel reconnection failed")
					continue
				}

				reconnectDelay = initialReconnectDelay
				c.resync()
				continue
			}

			if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
				logging.Warn().Err(err).Msg("Sync channel: failed to set read deadline")
			}
			_, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					logging.Info().Msg("Sync channel closed normally")
					c.closeConnection()
					continue
				}
				if ctx.Err() != nil {
					return
				}
				logging.Warn().Err(err).Msg("Sync channel read error")
				c.closeConnection()
				continue
			}

			reconnectDelay = initialReconnectDelay
			c.handleMessage(message)
		}
	}
}

// handleMessage decodes one server event and applies it to the cache.
func (c *Client) handleMessage(data []byte) {
	var msg serverMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		logging.Warn().Err(err).Msg("Failed to parse sync channel message")
		return
	}

	scenario, changed := c.cache.Apply(msg.Type, msg.Data)
	if !changed {
		return
	}

	c.callbackMu.RLock()
	fn := c.onChange
	c.callbackMu.RUnlock()
	if fn != nil {
		fn(scenario)
	}
}

// resync re-reads every cached scenario after a reconnect. State that
// changed while the link was down arrives as *_received answers and
// overwrites the stale entries.
func (c *Client) resync() {
	for _, scenario := range c.cache.PositionScenarios() {
		if err := c.RequestPositions(scenario); err != nil {
			logging.Warn().Err(err).Str("scenario", scenario).Msg("Catch-up position read failed")
		}
	}
	for _, scenario := range c.cache.GuidelineScenarios() {
		if err := c.RequestGuidelines(scenario); err != nil {
			logging.Warn().Err(err).Str("scenario", scenario).Msg("Catch-up guideline read failed")
		}
	}
}

// RequestPositions issues a read command for the scenario's alignment.
// The answer arrives asynchronously; Pending reports it in flight.
func (c *Client) RequestPositions(scenario string) error {
	c.cache.markPending(scenario, models.KindPositions)
	if err := c.sendCommand(commandGetPositions, scenario); err != nil {
		c.cache.unmarkPending(scenario, models.KindPositions)
		return err
	}
	return nil
}

// RequestGuidelines issues a read command for the scenario's overlay.
func (c *Client) RequestGuidelines(scenario string) error {
	c.cache.markPending(scenario, models.KindGuidelines)
	if err := c.sendCommand(commandGetGuidelines, scenario); err != nil {
		c.cache.unmarkPending(scenario, models.KindGuidelines)
		return err
	}
	return nil
}

func (c *Client) sendCommand(msgType, scenario string) error {
	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()

	if conn == nil {
		return ErrNotConnected
	}

	// gorilla allows one concurrent writer; serialize commands.
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := conn.WriteJSON(command{Type: msgType, Data: commandData{Scenario: scenario}}); err != nil {
		c.closeConnection()
		return fmt.Errorf("send %s: %w", msgType, err)
	}
	return nil
}

// pingLoop keeps the connection alive so intermediaries do not drop
// an idle channel between broadcasts.
func (c *Client) pingLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopChan:
			return
		case <-ticker.C:
			c.connMu.RLock()
			conn := c.conn
			c.connMu.RUnlock()

			if conn == nil {
				continue
			}

			if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeTimeout)); err != nil {
				logging.Warn().Err(err).Msg("Sync channel ping failed")
				c.closeConnection()
			}
		}
	}
}

// closeConnection tears down the connection. The listener notices the
// nil conn and reconnects unless the client is shutting down.
//
// Thread Safety: safe for concurrent calls.
func (c *Client) closeConnection() {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		return
	}
	if err := c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(1*time.Second),
	); err != nil {
		logging.Debug().Err(err).Msg("Sync channel: failed to send close message")
	}
	if err := c.conn.Close(); err != nil {
		logging.Debug().Err(err).Msg("Sync channel: failed to close connection")
	}
	c.conn = nil
}

// Close gracefully shuts down the client: signals the goroutines,
// closes the connection and waits for them to finish.
//
// Thread Safety: safe for concurrent calls.
func (c *Client) Close() error {
	c.stopOnce.Do(func() {
		close(c.stopChan)
	})
	c.closeConnection()
	c.wg.Wait()
	logging.Info().Msg("Sync client shut down")
	return nil
}

// IsConnected reports whether the channel is currently up.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.conn != nil
}
