// FieldSync - Defensive Positioning Trainer for Baseball Coaching
// Copyright 2026 benchcoach
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/benchcoach/fieldsync

// Package scenario implements the scenario state service: the single
// gateway between callers (realtime channel, REST handlers) and the
// versioned record store. It owns authorization for mutations and the
// replace/update/clear orchestration.
package scenario

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/benchcoach/fieldsync/internal/logging"
	"github.com/benchcoach/fieldsync/internal/models"
	"github.com/benchcoach/fieldsync/internal/store"
)

// Sentinel errors surfaced to callers.
var (
	// ErrUnauthorized indicates the actor's role does not permit mutation.
	ErrUnauthorized = errors.New("actor not authorized")

	// ErrActorRequired indicates a mutation with no actor identity.
	// Upstream auth normally guarantees one; the check is a sanity
	// check on the server-derived actor, retained intentionally.
	ErrActorRequired = errors.New("actor id required")

	// ErrTimeout indicates a store call overran the configured bound.
	ErrTimeout = errors.New("store operation timed out")
)

// DefaultOpTimeout bounds each store call when no explicit timeout is
// configured.
const DefaultOpTimeout = 5 * time.Second

// SetByAdmin and SetByNone are the provenance markers carried on state
// reads and broadcast events.
const (
	SetByAdmin = "admin"
	SetByNone  = "none"
)

// Actor is the server-derived identity of a command issuer. It comes
// from the authenticated session only; identity fields inside command
// payloads are never consulted for authorization.
type Actor struct {
	ID   string
	Role string
}

// Privileged reports whether the actor's role grants mutation rights.
func (a Actor) Privileged() bool {
	return a.Role == "admin" || a.Role == "coach"
}

// State is the read-model answer for one (scenario, kind) pair.
// Absence of admin-set state is a valid answer: Payload nil, SetBy
// "none", Timestamp nil.
type State struct {
	Payload   json.RawMessage `json:"payload"`
	SetBy     string          `json:"setBy"`
	Timestamp *time.Time      `json:"timestamp"`
}

// Service orchestrates all access to the versioned record store.
type Service struct {
	store     *store.Store
	opTimeout time.Duration
}

// NewService creates a scenario state service around the given store.
// opTimeout bounds each store call; zero selects DefaultOpTimeout.
func NewService(st *store.Store, opTimeout time.Duration) *Service {
	if opTimeout <= 0 {
		opTimeout = DefaultOpTimeout
	}
	return &Service{store: st, opTimeout: opTimeout}
}

// authorize enforces the privileged-role requirement and the actor-ID
// presence sanity check, in that order.
func authorize(actor Actor) error {
	if !actor.Privileged() {
		return fmt.Errorf("%w: role %q", ErrUnauthorized, actor.Role)
	}
	if actor.ID == "" {
		return ErrActorRequired
	}
	return nil
}

// call runs fn with a bounded deadline. A store call that overruns the
// bound surfaces as ErrTimeout; the stray goroutine finishes in the
// background against the buffered channel.
func (s *Service) call(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("%w: %s", ErrTimeout, ctx.Err())
	}
}

// SetState replaces the active state for (scenario, kind) wholesale:
// the previous active version is deactivated and a new version
// installed atomically. Used for first-time and full-replace sets.
func (s *Service) SetState(ctx context.Context, scenarioKey string, kind models.Kind, payload json.RawMessage, actor Actor) (*models.Record, error) {
	if err := authorize(actor); err != nil {
		return nil, err
	}

	var record *models.Record
	err := s.call(ctx, func(ctx context.Context) error {
		var err error
		record, err = s.store.InsertActive(ctx, scenarioKey, kind, payload, actor.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	logging.Ctx(ctx).Info().
		Str("scenario", scenarioKey).
		Str("kind", string(kind)).
		Str("actor", actor.ID).
		Str("record_id", record.ID).
		Msg("state replaced")

	return record, nil
}

// UpdateState edits the active state in place when one exists,
// preserving the record's identity, creator, and creation time. With no
// active record it falls back to the set path; store absence is handled
// here and never surfaced to the caller.
func (s *Service) UpdateState(ctx context.Context, scenarioKey string, kind models.Kind, payload json.RawMessage, actor Actor) (*models.Record, error) {
	if err := authorize(actor); err != nil {
		return nil, err
	}

	var record *models.Record
	err := s.call(ctx, func(ctx context.Context) error {
		var err error
		record, err = s.store.MutateActive(ctx, scenarioKey, kind, payload)
		if errors.Is(err, store.ErrNotFound) {
			record, err = s.store.InsertActive(ctx, scenarioKey, kind, payload, actor.ID)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	logging.Ctx(ctx).Info().
		Str("scenario", scenarioKey).
		Str("kind", string(kind)).
		Str("actor", actor.ID).
		Str("record_id", record.ID).
		Msg("state updated")

	return record, nil
}

// UpdateStateByID edits a record addressed by ID. The ID must name the
// active record for (scenario, kind); anything else is store.ErrNotFound,
// which propagates to the caller. The id check and the edit run in one
// store transaction, so a concurrent replace cannot be edited under the
// stale id.
func (s *Service) UpdateStateByID(ctx context.Context, id, scenarioKey string, kind models.Kind, payload json.RawMessage, actor Actor) (*models.Record, error) {
	if err := authorize(actor); err != nil {
		return nil, err
	}

	var record *models.Record
	err := s.call(ctx, func(ctx context.Context) error {
		var err error
		record, err = s.store.MutateActiveByID(ctx, id, scenarioKey, kind, payload)
		return err
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// ClearState deactivates the active state for (scenario, kind). Same
// privileged-role requirement as SetState; idempotent when nothing is
// active.
func (s *Service) ClearState(ctx context.Context, scenarioKey string, kind models.Kind, actor Actor) error {
	if err := authorize(actor); err != nil {
		return err
	}

	err := s.call(ctx, func(ctx context.Context) error {
		return s.store.DeactivateAllActive(ctx, scenarioKey, kind)
	})
	if err != nil {
		return err
	}

	logging.Ctx(ctx).Info().
		Str("scenario", scenarioKey).
		Str("kind", string(kind)).
		Str("actor", actor.ID).
		Msg("state cleared")

	return nil
}

// GetState returns the current state for (scenario, kind). No
// authorization: any authenticated viewer may read.
func (s *Service) GetState(ctx context.Context, scenarioKey string, kind models.Kind) (State, error) {
	var record *models.Record
	err := s.call(ctx, func(ctx context.Context) error {
		var err error
		record, err = s.store.FindActive(ctx, scenarioKey, kind)
		return err
	})
	if err != nil {
		return State{}, err
	}

	if record == nil {
		return State{SetBy: SetByNone}, nil
	}

	ts := record.UpdatedAt
	return State{Payload: record.Payload, SetBy: SetByAdmin, Timestamp: &ts}, nil
}

// ActiveRecord returns the active record itself, or (nil, nil) when
// none exists. The REST surface uses this for its record envelopes.
func (s *Service) ActiveRecord(ctx context.Context, scenarioKey string, kind models.Kind) (*models.Record, error) {
	var record *models.Record
	err := s.call(ctx, func(ctx context.Context) error {
		var err error
		record, err = s.store.FindActive(ctx, scenarioKey, kind)
		return err
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// History lists every version of (scenario, kind), newest first.
// Privileged: version history exposes superseded answer keys.
func (s *Service) History(ctx context.Context, scenarioKey string, kind models.Kind, actor Actor) ([]*models.Record, error) {
	if err := authorize(actor); err != nil {
		return nil, err
	}

	var records []*models.Record
	err := s.call(ctx, func(ctx context.Context) error {
		var err error
		records, err = s.store.ListVersions(ctx, scenarioKey, kind)
		return err
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Scenarios lists the distinct scenarios that currently have active
// state of any kind.
func (s *Service) Scenarios(ctx context.Context) ([]string, error) {
	var scenarios []string
	err := s.call(ctx, func(ctx context.Context) error {
		var err error
		scenarios, err = s.store.ListScenarios(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return scenarios, nil
}
