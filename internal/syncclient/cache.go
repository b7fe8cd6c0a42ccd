// FieldSync - Defensive Positioning Trainer for Baseball Coaching
// Copyright 2026 benchcoach
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/benchcoach/fieldsync

package syncclient

import (
	"bytes"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/benchcoach/fieldsync/internal/logging"
	"github.com/benchcoach/fieldsync/internal/models"
)

// Server event types the cache reacts to. These mirror the channel
// protocol: *_updated fan-outs, *_received query answers, *_cleared
// removal events. Saved acks and error events carry no state and are
// routed to the caller via the client's callbacks instead.
const (
	eventPositionsUpdated  = "positions_updated"
	eventPositionsCleared  = "positions_cleared"
	eventPositionsReceived = "positions_received"

	eventGuidelinesUpdated  = "guidelines_updated"
	eventGuidelinesCleared  = "guidelines_cleared"
	eventGuidelinesReceived = "guidelines_received"
)

// PositionsEntry is the last known defensive alignment for one scenario.
type PositionsEntry struct {
	Positions models.PositionSet
	SetBy     string
	Timestamp *time.Time
}

// GuidelinesEntry is the last known guideline overlay for one scenario.
type GuidelinesEntry struct {
	Shapes    []models.Shape
	SetBy     string
	Timestamp *time.Time
}

// stateEvent is the wire shape of *_updated and *_received events.
type stateEvent struct {
	Scenario  string          `json:"scenario"`
	Positions json.RawMessage `json:"positions,omitempty"`
	Shapes    json.RawMessage `json:"shapes,omitempty"`
	SetBy     string          `json:"setBy"`
	Timestamp *time.Time      `json:"timestamp"`
}

// clearedEvent is the wire shape of *_cleared events.
type clearedEvent struct {
	Scenario string `json:"scenario"`
}

// Cache is the client-side mirror of scenario state. It applies server
// events with last-write-wins semantics: whatever arrived most recently
// on the connection is the current state, no version comparison.
//
// The cache is unbounded. The scenario catalog is small and curated by
// coaching staff, so eviction would only add failure modes.
//
// Thread Safety: all methods safe for concurrent use.
type Cache struct {
	mu         sync.RWMutex
	positions  map[string]PositionsEntry
	guidelines map[string]GuidelinesEntry

	// pending read requests, cleared when the *_received answer lands
	pending map[string]map[models.Kind]struct{}
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{
		positions:  make(map[string]PositionsEntry),
		guidelines: make(map[string]GuidelinesEntry),
		pending:    make(map[string]map[models.Kind]struct{}),
	}
}

// Apply routes one raw server message into the cache. It returns the
// scenario the message touched and true when the message mutated cached
// state; acks, errors and unknown event types return ("", false).
func (c *Cache) Apply(msgType string, data json.RawMessage) (string, bool) {
	switch msgType {
	case eventPositionsUpdated, eventPositionsReceived:
		return c.applyState(models.KindPositions, msgType == eventPositionsReceived, data)
	case eventGuidelinesUpdated, eventGuidelinesReceived:
		return c.applyState(models.KindGuidelines, msgType == eventGuidelinesReceived, data)
	case eventPositionsCleared:
		return c.applyCleared(models.KindPositions, data)
	case eventGuidelinesCleared:
		return c.applyCleared(models.KindGuidelines, data)
	default:
		return "", false
	}
}

func (c *Cache) applyState(kind models.Kind, isAnswer bool, data json.RawMessage) (string, bool) {
	var ev stateEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		logging.Warn().Err(err).Str("kind", string(kind)).Msg("Dropping malformed state event")
		return "", false
	}
	if ev.Scenario == "" {
		return "", false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if isAnswer {
		c.clearPendingLocked(ev.Scenario, kind)
	}

	payload := ev.Positions
	if kind == models.KindGuidelines {
		payload = ev.Shapes
	}

	// A query answer for a scenario with no active state carries a null
	// payload; the cached entry (if any) is stale and must go.
	if isNullPayload(payload) {
		c.removeLocked(ev.Scenario, kind)
		return ev.Scenario, true
	}

	switch kind {
	case models.KindGuidelines:
		var shapes []models.Shape
		if err := json.Unmarshal(payload, &shapes); err != nil {
			logging.Warn().Err(err).Str("scenario", ev.Scenario).Msg("Dropping undecodable guideline payload")
			return "", false
		}
		c.guidelines[ev.Scenario] = GuidelinesEntry{Shapes: shapes, SetBy: ev.SetBy, Timestamp: ev.Timestamp}
	default:
		var set models.PositionSet
		if err := json.Unmarshal(payload, &set); err != nil {
			logging.Warn().Err(err).Str("scenario", ev.Scenario).Msg("Dropping undecodable position payload")
			return "", false
		}
		c.positions[ev.Scenario] = PositionsEntry{Positions: set, SetBy: ev.SetBy, Timestamp: ev.Timestamp}
	}
	return ev.Scenario, true
}

func (c *Cache) applyCleared(kind models.Kind, data json.RawMessage) (string, bool) {
	var ev clearedEvent
	if err := json.Unmarshal(data, &ev); err != nil || ev.Scenario == "" {
		return "", false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(ev.Scenario, kind)
	return ev.Scenario, true
}

func (c *Cache) removeLocked(scenario string, kind models.Kind) {
	if kind == models.KindGuidelines {
		delete(c.guidelines, scenario)
		return
	}
	delete(c.positions, scenario)
}

// HasPositions reports whether an alignment is cached for the scenario.
func (c *Cache) HasPositions(scenario string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.positions[scenario]
	return ok
}

// GetPositions returns the cached alignment for the scenario.
func (c *Cache) GetPositions(scenario string) (PositionsEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.positions[scenario]
	return entry, ok
}

// HasGuidelines reports whether a guideline overlay is cached for the scenario.
func (c *Cache) HasGuidelines(scenario string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.guidelines[scenario]
	return ok
}

// GetGuidelines returns the cached overlay for the scenario.
func (c *Cache) GetGuidelines(scenario string) (GuidelinesEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.guidelines[scenario]
	return entry, ok
}

// Pending reports whether any read request for the scenario is still
// waiting for its answer.
func (c *Cache) Pending(scenario string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.pending[scenario]) > 0
}

func (c *Cache) markPending(scenario string, kind models.Kind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	kinds, ok := c.pending[scenario]
	if !ok {
		kinds = make(map[models.Kind]struct{})
		c.pending[scenario] = kinds
	}
	kinds[kind] = struct{}{}
}

func (c *Cache) unmarkPending(scenario string, kind models.Kind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearPendingLocked(scenario, kind)
}

func (c *Cache) clearPendingLocked(scenario string, kind models.Kind) {
	kinds, ok := c.pending[scenario]
	if !ok {
		return
	}
	delete(kinds, kind)
	if len(kinds) == 0 {
		delete(c.pending, scenario)
	}
}

// PositionScenarios returns the scenarios with a cached alignment.
func (c *Cache) PositionScenarios() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.positions))
	for scenario := range c.positions {
		out = append(out, scenario)
	}
	return out
}

// GuidelineScenarios returns the scenarios with a cached overlay.
func (c *Cache) GuidelineScenarios() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.guidelines))
	for scenario := range c.guidelines {
		out = append(out, scenario)
	}
	return out
}

func isNullPayload(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
