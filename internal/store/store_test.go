// FieldSync - Defensive Positioning Trainer for Baseball Coaching
// Copyright 2026 benchcoach
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/benchcoach/fieldsync

package store

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benchcoach/fieldsync/internal/logging"
	"github.com/benchcoach/fieldsync/internal/models"
)

func init() {
	logging.Init(logging.Config{Level: "disabled", Output: io.Discard})
}

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(Config{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, s.Close())
	})
	return s
}

func positionsPayload(x, y float64) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(
		`{"P":{"x":%g,"y":%g,"color":"bg-emerald-500","label":"P"}}`, x, y))
}

var shapesPayload = json.RawMessage(
	`[{"id":"g1","type":"arrow","points":[10,10,40,40],"stroke":"#000000","strokeWidth":3}]`)

func TestFindActiveAbsence(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	record, err := s.FindActive(ctx, "Bunt Defense", models.KindPositions)
	require.NoError(t, err)
	assert.Nil(t, record, "absence must be a valid non-error answer")
}

func TestInsertActive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	record, err := s.InsertActive(ctx, "Bunt Defense", models.KindPositions, positionsPayload(50, 50), "admin1")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.NotEmpty(t, record.ID)
	assert.Equal(t, "Bunt Defense", record.Scenario)
	assert.Equal(t, models.KindPositions, record.Kind)
	assert.Equal(t, "admin1", record.CreatedBy)
	assert.True(t, record.IsActive)
	assert.False(t, record.CreatedAt.IsZero())

	found, err := s.FindActive(ctx, "Bunt Defense", models.KindPositions)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, record.ID, found.ID)
	assert.JSONEq(t, string(positionsPayload(50, 50)), string(found.Payload))
}

func TestInsertActiveValidation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		kind    models.Kind
		payload json.RawMessage
		actorID string
	}{
		{"missing actor id", models.KindPositions, positionsPayload(50, 50), ""},
		{"empty positions", models.KindPositions, json.RawMessage(`{}`), "admin1"},
		{"missing coordinates", models.KindPositions, json.RawMessage(`{"P":{"color":"c","label":"P"}}`), "admin1"},
		{"shape without type", models.KindGuidelines, json.RawMessage(`[{"id":"g1","points":[1,2]}]`), "admin1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.InsertActive(ctx, "S", tt.kind, tt.payload, tt.actorID)
			assert.ErrorIs(t, err, ErrInvalidPayload)
		})
	}
}

func TestInsertSupersedesPrevious(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.InsertActive(ctx, "S", models.KindPositions, positionsPayload(10, 10), "admin1")
	require.NoError(t, err)

	second, err := s.InsertActive(ctx, "S", models.KindPositions, positionsPayload(20, 20), "admin1")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	active, err := s.FindActive(ctx, "S", models.KindPositions)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, second.ID, active.ID)

	// The superseded version survives as history, inactive.
	old, err := s.FindByID(ctx, first.ID, "S", models.KindPositions)
	require.NoError(t, err)
	assert.False(t, old.IsActive)
}

func TestSingleActiveInvariant(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := s.InsertActive(ctx, "S", models.KindPositions, positionsPayload(float64(i), float64(i)), "admin1")
		require.NoError(t, err)
	}
	require.NoError(t, s.DeactivateAllActive(ctx, "S", models.KindPositions))
	_, err := s.InsertActive(ctx, "S", models.KindPositions, positionsPayload(99, 99), "admin1")
	require.NoError(t, err)

	versions, err := s.ListVersions(ctx, "S", models.KindPositions)
	require.NoError(t, err)
	require.Len(t, versions, 6)

	active := 0
	for _, v := range versions {
		if v.IsActive {
			active++
		}
	}
	assert.Equal(t, 1, active, "at most one active record per (scenario, kind)")
}

func TestSingleActiveInvariantConcurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Conflicting writers may exhaust retries; losing is fine,
			// corrupting the invariant is not.
			_, _ = s.InsertActive(ctx, "S", models.KindPositions, positionsPayload(float64(i), 0), "admin1")
		}(i)
	}
	wg.Wait()

	versions, err := s.ListVersions(ctx, "S", models.KindPositions)
	require.NoError(t, err)

	active := 0
	for _, v := range versions {
		if v.IsActive {
			active++
		}
	}
	assert.LessOrEqual(t, active, 1)

	record, err := s.FindActive(ctx, "S", models.KindPositions)
	require.NoError(t, err)
	if active == 1 {
		assert.NotNil(t, record)
	}
}

func TestDeactivateAllActiveIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// No-op when nothing is active.
	require.NoError(t, s.DeactivateAllActive(ctx, "S", models.KindPositions))

	_, err := s.InsertActive(ctx, "S", models.KindPositions, positionsPayload(50, 50), "admin1")
	require.NoError(t, err)

	require.NoError(t, s.DeactivateAllActive(ctx, "S", models.KindPositions))
	require.NoError(t, s.DeactivateAllActive(ctx, "S", models.KindPositions))

	record, err := s.FindActive(ctx, "S", models.KindPositions)
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestMutateActive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	inserted, err := s.InsertActive(ctx, "S", models.KindPositions, positionsPayload(10, 10), "admin1")
	require.NoError(t, err)

	mutated, err := s.MutateActive(ctx, "S", models.KindPositions, positionsPayload(70, 30))
	require.NoError(t, err)

	// Identity preserved, payload replaced.
	assert.Equal(t, inserted.ID, mutated.ID)
	assert.Equal(t, inserted.CreatedBy, mutated.CreatedBy)
	assert.True(t, inserted.CreatedAt.Equal(mutated.CreatedAt))
	assert.JSONEq(t, string(positionsPayload(70, 30)), string(mutated.Payload))
	assert.True(t, mutated.UpdatedAt.After(inserted.UpdatedAt) || mutated.UpdatedAt.Equal(inserted.UpdatedAt))
}

func TestMutateActiveNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.MutateActive(context.Background(), "S", models.KindPositions, positionsPayload(1, 1))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMutateActiveByID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	inserted, err := s.InsertActive(ctx, "S", models.KindPositions, positionsPayload(10, 10), "admin1")
	require.NoError(t, err)

	mutated, err := s.MutateActiveByID(ctx, inserted.ID, "S", models.KindPositions, positionsPayload(70, 30))
	require.NoError(t, err)
	assert.Equal(t, inserted.ID, mutated.ID)
	assert.JSONEq(t, string(positionsPayload(70, 30)), string(mutated.Payload))
}

func TestMutateActiveByIDRejectsSuperseded(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.InsertActive(ctx, "S", models.KindPositions, positionsPayload(10, 10), "admin1")
	require.NoError(t, err)

	// A replace lands before the edit by id; the stale id must not edit
	// the replacement.
	second, err := s.InsertActive(ctx, "S", models.KindPositions, positionsPayload(20, 20), "admin2")
	require.NoError(t, err)

	_, err = s.MutateActiveByID(ctx, first.ID, "S", models.KindPositions, positionsPayload(99, 99))
	assert.ErrorIs(t, err, ErrNotFound)

	active, err := s.FindActive(ctx, "S", models.KindPositions)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, second.ID, active.ID)
	assert.JSONEq(t, string(positionsPayload(20, 20)), string(active.Payload))
}

func TestFindByIDNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.FindByID(context.Background(), "does-not-exist", "S", models.KindPositions)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestKindsAreIndependent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.InsertActive(ctx, "S", models.KindPositions, positionsPayload(50, 50), "admin1")
	require.NoError(t, err)
	_, err = s.InsertActive(ctx, "S", models.KindGuidelines, shapesPayload, "admin1")
	require.NoError(t, err)

	require.NoError(t, s.DeactivateAllActive(ctx, "S", models.KindPositions))

	positions, err := s.FindActive(ctx, "S", models.KindPositions)
	require.NoError(t, err)
	assert.Nil(t, positions)

	guidelines, err := s.FindActive(ctx, "S", models.KindGuidelines)
	require.NoError(t, err)
	assert.NotNil(t, guidelines, "clearing positions must not touch guidelines")
}

func TestShapeOrderPreserved(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	payload := json.RawMessage(`[` +
		`{"id":"g1","type":"line","points":[1,1,2,2],"stroke":"#111111","strokeWidth":1},` +
		`{"id":"g2","type":"arrow","points":[3,3,4,4],"stroke":"#222222","strokeWidth":2},` +
		`{"id":"g3","type":"dottedArrow","points":[5,5,6,6],"stroke":"#333333","strokeWidth":3}]`)

	_, err := s.InsertActive(ctx, "S", models.KindGuidelines, payload, "admin1")
	require.NoError(t, err)

	record, err := s.FindActive(ctx, "S", models.KindGuidelines)
	require.NoError(t, err)

	var shapes []models.Shape
	require.NoError(t, json.Unmarshal(record.Payload, &shapes))
	require.Len(t, shapes, 3)
	assert.Equal(t, "g1", shapes[0].ID)
	assert.Equal(t, "g2", shapes[1].ID)
	assert.Equal(t, "g3", shapes[2].ID)
}

func TestListVersionsNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		r, err := s.InsertActive(ctx, "S", models.KindPositions, positionsPayload(float64(i), 0), "admin1")
		require.NoError(t, err)
		ids = append(ids, r.ID)
	}

	versions, err := s.ListVersions(ctx, "S", models.KindPositions)
	require.NoError(t, err)
	require.Len(t, versions, 3)
	assert.Equal(t, ids[2], versions[0].ID)
	assert.True(t, versions[0].IsActive)
	assert.False(t, versions[1].IsActive)
	assert.False(t, versions[2].IsActive)
}

func TestListVersionsScopedToScenario(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// "A:positions" shares a key prefix with ("A", positions); version
	// history must not leak across the two scenarios.
	a, err := s.InsertActive(ctx, "A", models.KindPositions, positionsPayload(10, 10), "admin1")
	require.NoError(t, err)
	_, err = s.InsertActive(ctx, "A:positions", models.KindPositions, positionsPayload(20, 20), "admin1")
	require.NoError(t, err)

	versions, err := s.ListVersions(ctx, "A", models.KindPositions)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, a.ID, versions[0].ID)
	assert.Equal(t, "A", versions[0].Scenario)
}

func TestListScenarios(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.InsertActive(ctx, "Bunt Defense", models.KindPositions, positionsPayload(50, 50), "admin1")
	require.NoError(t, err)
	_, err = s.InsertActive(ctx, "Fly ball to LF", models.KindGuidelines, shapesPayload, "admin1")
	require.NoError(t, err)
	_, err = s.InsertActive(ctx, "Cleared", models.KindPositions, positionsPayload(1, 1), "admin1")
	require.NoError(t, err)
	require.NoError(t, s.DeactivateAllActive(ctx, "Cleared", models.KindPositions))

	scenarios, err := s.ListScenarios(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Bunt Defense", "Fly ball to LF"}, scenarios)
}
