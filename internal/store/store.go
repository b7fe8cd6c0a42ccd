// FieldSync - Defensive Positioning Trainer for Baseball Coaching
// Copyright 2026 benchcoach
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/benchcoach/fieldsync

// Package store implements the versioned record store on BadgerDB.
//
// Records are append-only. For every (scenario, kind) pair the store
// keeps a log of record versions plus one "active pointer" key naming
// the current version. Replacing state deactivates the previous version
// and installs the new one inside a single Badger transaction, so there
// is never a window where zero or two records are active: concurrent
// writers to the same pair conflict at commit and one of them retries.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/benchcoach/fieldsync/internal/logging"
	"github.com/benchcoach/fieldsync/internal/metrics"
	"github.com/benchcoach/fieldsync/internal/models"
)

// Sentinel errors returned by store operations.
var (
	// ErrNotFound indicates no matching record exists.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidPayload indicates a structurally malformed payload or a
	// missing actor ID on insert.
	ErrInvalidPayload = errors.New("invalid payload")
)

// conflictRetries bounds optimistic-transaction retries when two
// writers race on the same (scenario, kind) pair.
const conflictRetries = 3

// Key prefixes for BadgerDB storage
const (
	recordKeyPrefix = "record:"
	activeKeyPrefix = "active:"
)

// activePointer is the value stored under the active key. It carries
// scenario and kind redundantly so scenario listing never has to parse
// key bytes (scenario names may themselves contain separators).
type activePointer struct {
	Scenario string      `json:"scenario"`
	Kind     models.Kind `json:"kind"`
	ID       string      `json:"id"`
}

// Config holds store configuration.
type Config struct {
	// Path is the BadgerDB directory. Ignored when InMemory is set.
	Path string

	// InMemory runs Badger without disk persistence. Used in tests.
	InMemory bool

	// SyncWrites fsyncs every write. Slower, safer.
	SyncWrites bool
}

// Store is the BadgerDB-backed versioned record store.
type Store struct {
	db *badger.DB
}

// Open creates (or reopens) the store at the configured path.
func Open(cfg Config) (*Store, error) {
	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.SyncWrites = cfg.SyncWrites

	// Reduce logging verbosity
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	logging.Info().
		Str("path", cfg.Path).
		Bool("in_memory", cfg.InMemory).
		Bool("sync_writes", cfg.SyncWrites).
		Msg("record store opened")

	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func recordKey(scenario string, kind models.Kind, id string) []byte {
	return []byte(recordKeyPrefix + scenario + ":" + string(kind) + ":" + id)
}

func recordPrefix(scenario string, kind models.Kind) []byte {
	return []byte(recordKeyPrefix + scenario + ":" + string(kind) + ":")
}

func activeKey(scenario string, kind models.Kind) []byte {
	return []byte(activeKeyPrefix + scenario + ":" + string(kind))
}

// getPointer reads the active pointer inside txn. Returns ErrNotFound
// when no active record exists for the pair.
func getPointer(txn *badger.Txn, scenario string, kind models.Kind) (*activePointer, error) {
	item, err := txn.Get(activeKey(scenario, kind))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get active pointer: %w", err)
	}

	var ptr activePointer
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &ptr)
	}); err != nil {
		return nil, fmt.Errorf("decode active pointer: %w", err)
	}
	return &ptr, nil
}

// getRecord reads one record by key inside txn.
func getRecord(txn *badger.Txn, key []byte) (*models.Record, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}

	var record models.Record
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &record)
	}); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return &record, nil
}

// putRecord writes one record inside txn.
func putRecord(txn *badger.Txn, record *models.Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	return txn.Set(recordKey(record.Scenario, record.Kind, record.ID), data)
}

// update runs fn in a write transaction, retrying on optimistic
// conflicts from concurrent writers to the same keys.
func (s *Store) update(fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < conflictRetries; attempt++ {
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

// FindActive returns the active record for (scenario, kind), or
// (nil, nil) when none exists. Absence is a valid "no admin-set state"
// answer, not an error.
func (s *Store) FindActive(ctx context.Context, scenario string, kind models.Kind) (*models.Record, error) {
	start := time.Now()
	var record *models.Record

	err := s.db.View(func(txn *badger.Txn) error {
		ptr, err := getPointer(txn, scenario, kind)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		record, err = getRecord(txn, recordKey(scenario, kind, ptr.ID))
		return err
	})

	metrics.RecordStoreOperation("find_active", time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return record, nil
}

// DeactivateAllActive marks the active record for (scenario, kind)
// inactive and drops the pointer. Idempotent: deactivating when nothing
// is active is a no-op.
func (s *Store) DeactivateAllActive(ctx context.Context, scenario string, kind models.Kind) error {
	start := time.Now()

	err := s.update(func(txn *badger.Txn) error {
		ptr, err := getPointer(txn, scenario, kind)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		record, err := getRecord(txn, recordKey(scenario, kind, ptr.ID))
		if err != nil {
			return err
		}

		record.IsActive = false
		record.UpdatedAt = time.Now().UTC()
		if err := putRecord(txn, record); err != nil {
			return err
		}

		return txn.Delete(activeKey(scenario, kind))
	})

	metrics.RecordStoreOperation("deactivate_all", time.Since(start), err)
	return err
}

// InsertActive validates the payload, deactivates any previous active
// record, and installs a new active record — all in one transaction.
// Returns ErrInvalidPayload when the payload fails kind-specific
// structural validation or actorID is empty.
func (s *Store) InsertActive(ctx context.Context, scenario string, kind models.Kind, payload json.RawMessage, actorID string) (*models.Record, error) {
	start := time.Now()

	if actorID == "" {
		metrics.RecordStoreOperation("insert_active", time.Since(start), ErrInvalidPayload)
		return nil, fmt.Errorf("%w: actor id required", ErrInvalidPayload)
	}
	if err := models.ValidatePayload(kind, payload); err != nil {
		metrics.RecordStoreOperation("insert_active", time.Since(start), err)
		return nil, fmt.Errorf("%w: %s", ErrInvalidPayload, err)
	}

	now := time.Now().UTC()
	record := &models.Record{
		ID:        uuid.New().String(),
		Scenario:  scenario,
		Kind:      kind,
		Payload:   payload,
		CreatedBy: actorID,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.update(func(txn *badger.Txn) error {
		// Supersede the previous active version, if any.
		ptr, err := getPointer(txn, scenario, kind)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		if ptr != nil {
			prev, err := getRecord(txn, recordKey(scenario, kind, ptr.ID))
			if err != nil {
				return err
			}
			prev.IsActive = false
			prev.UpdatedAt = now
			if err := putRecord(txn, prev); err != nil {
				return err
			}
		}

		if err := putRecord(txn, record); err != nil {
			return err
		}

		ptrData, err := json.Marshal(activePointer{Scenario: scenario, Kind: kind, ID: record.ID})
		if err != nil {
			return fmt.Errorf("marshal active pointer: %w", err)
		}
		return txn.Set(activeKey(scenario, kind), ptrData)
	})

	metrics.RecordStoreOperation("insert_active", time.Since(start), err)
	if err != nil {
		return nil, err
	}

	logging.Debug().
		Str("scenario", scenario).
		Str("kind", string(kind)).
		Str("record_id", record.ID).
		Msg("active record installed")

	return record, nil
}

// MutateActive updates the active record's payload in place, preserving
// its ID, CreatedBy, and CreatedAt. Returns ErrNotFound when no active
// record exists for the pair.
func (s *Store) MutateActive(ctx context.Context, scenario string, kind models.Kind, payload json.RawMessage) (*models.Record, error) {
	start := time.Now()

	if err := models.ValidatePayload(kind, payload); err != nil {
		metrics.RecordStoreOperation("mutate_active", time.Since(start), err)
		return nil, fmt.Errorf("%w: %s", ErrInvalidPayload, err)
	}

	var record *models.Record
	err := s.update(func(txn *badger.Txn) error {
		ptr, err := getPointer(txn, scenario, kind)
		if err != nil {
			return err
		}

		record, err = getRecord(txn, recordKey(scenario, kind, ptr.ID))
		if err != nil {
			return err
		}

		record.Payload = payload
		record.UpdatedAt = time.Now().UTC()
		return putRecord(txn, record)
	})

	metrics.RecordStoreOperation("mutate_active", time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return record, nil
}

// MutateActiveByID updates the active record's payload in place, but
// only when id names the current active record for (scenario, kind).
// The pointer check and the edit share one transaction, so a replace
// racing with this call cannot slip in between: the stale id answers
// ErrNotFound rather than silently editing the replacement.
func (s *Store) MutateActiveByID(ctx context.Context, id, scenario string, kind models.Kind, payload json.RawMessage) (*models.Record, error) {
	start := time.Now()

	if err := models.ValidatePayload(kind, payload); err != nil {
		metrics.RecordStoreOperation("mutate_active_by_id", time.Since(start), err)
		return nil, fmt.Errorf("%w: %s", ErrInvalidPayload, err)
	}

	var record *models.Record
	err := s.update(func(txn *badger.Txn) error {
		ptr, err := getPointer(txn, scenario, kind)
		if err != nil {
			return err
		}
		if ptr.ID != id {
			return fmt.Errorf("record %s: %w", id, ErrNotFound)
		}

		record, err = getRecord(txn, recordKey(scenario, kind, ptr.ID))
		if err != nil {
			return err
		}

		record.Payload = payload
		record.UpdatedAt = time.Now().UTC()
		return putRecord(txn, record)
	})

	metrics.RecordStoreOperation("mutate_active_by_id", time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return record, nil
}

// FindByID returns the record with the given ID within (scenario, kind),
// active or not. Returns ErrNotFound when it does not exist.
func (s *Store) FindByID(ctx context.Context, id, scenario string, kind models.Kind) (*models.Record, error) {
	start := time.Now()
	var record *models.Record

	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		record, err = getRecord(txn, recordKey(scenario, kind, id))
		return err
	})

	metrics.RecordStoreOperation("find_by_id", time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return record, nil
}

// ListVersions returns every record ever written for (scenario, kind),
// newest first. History is never hard-deleted.
func (s *Store) ListVersions(ctx context.Context, scenario string, kind models.Kind) ([]*models.Record, error) {
	start := time.Now()
	var records []*models.Record

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = recordPrefix(scenario, kind)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var record models.Record
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &record)
			}); err != nil {
				return fmt.Errorf("decode record: %w", err)
			}
			// Key segments are colon-joined, so the prefix scan also
			// matches scenarios that extend this one ("A" vs
			// "A:positions"). The decoded fields are authoritative.
			if record.Scenario != scenario || record.Kind != kind {
				continue
			}
			records = append(records, &record)
		}
		return nil
	})

	metrics.RecordStoreOperation("list_versions", time.Since(start), err)
	if err != nil {
		return nil, err
	}

	// Keys are ordered by UUID, not time; sort newest first.
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	return records, nil
}

// ListScenarios returns the distinct scenarios that currently have at
// least one active record of any kind, sorted.
func (s *Store) ListScenarios(ctx context.Context) ([]string, error) {
	start := time.Now()
	seen := make(map[string]struct{})

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(activeKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var ptr activePointer
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &ptr)
			}); err != nil {
				return fmt.Errorf("decode active pointer: %w", err)
			}
			seen[ptr.Scenario] = struct{}{}
		}
		return nil
	})

	metrics.RecordStoreOperation("list_scenarios", time.Since(start), err)
	if err != nil {
		return nil, err
	}

	scenarios := make([]string, 0, len(seen))
	for scenario := range seen {
		scenarios = append(scenarios, scenario)
	}
	sort.Strings(scenarios)
	return scenarios, nil
}
