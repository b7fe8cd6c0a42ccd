// FieldSync - Defensive Positioning Trainer for Baseball Coaching
// Copyright 2026 benchcoach
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/benchcoach/fieldsync

// Package models defines the domain data structures shared across FieldSync:
// record kinds, field positions, guideline shapes, and the wire envelopes for
// the realtime channel and the REST surface.
package models

import (
	"fmt"

	"github.com/goccy/go-json"
)

// Kind identifies one of the three versioned record kinds. Each
// (scenario, kind) pair is its own consistency domain: at most one
// active record exists per pair at any time.
type Kind string

const (
	// KindPositions is the current field layout shown to viewers.
	KindPositions Kind = "positions"
	// KindCorrectPositions is the answer-key layout used for grading drills.
	KindCorrectPositions Kind = "correct_positions"
	// KindGuidelines is the freehand annotation overlay (lines and arrows).
	KindGuidelines Kind = "guidelines"
)

// Valid reports whether k is one of the three known record kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindPositions, KindCorrectPositions, KindGuidelines:
		return true
	}
	return false
}

// PositionLabels are the nine fixed defensive position labels. Every
// positions payload is keyed by these labels.
var PositionLabels = []string{"P", "C", "1B", "2B", "3B", "SS", "LF", "CF", "RF"}

// Position is a single player marker on the field diagram.
//
// X and Y are percentages of field width/height (0-100). The store does
// not clamp them; the UI clamps drag targets to [5,95] but persisted
// values are taken as-is.
type Position struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Color string  `json:"color"`
	Label string  `json:"label"`
}

// PositionSet maps position label (P, C, 1B, ...) to a Position.
type PositionSet map[string]Position

// ShapeType enumerates the guideline annotation styles.
type ShapeType string

const (
	ShapeLine        ShapeType = "line"
	ShapeArrow       ShapeType = "arrow"
	ShapeDottedArrow ShapeType = "dottedArrow"
)

// Valid reports whether t is a known shape type.
func (t ShapeType) Valid() bool {
	switch t {
	case ShapeLine, ShapeArrow, ShapeDottedArrow:
		return true
	}
	return false
}

// Shape is one freehand guideline annotation drawn on the field diagram.
//
// Points is the flattened x,y pair sequence in percentage units, so a
// two-point arrow is [x1, y1, x2, y2]. Shape order within a guidelines
// payload is preserved through store and wire.
type Shape struct {
	ID          string    `json:"id"`
	Type        ShapeType `json:"type"`
	Points      []float64 `json:"points"`
	Stroke      string    `json:"stroke"`
	StrokeWidth float64   `json:"strokeWidth"`
}

// ValidatePayload checks the structural requirements of a raw payload
// for the given kind. Positions payloads must decode to a non-empty map
// whose entries all carry numeric x and y. Guidelines payloads must
// decode to a shape list satisfying ValidateShapes. Coordinates are not
// range checked (UI concern).
func ValidatePayload(kind Kind, payload json.RawMessage) error {
	switch kind {
	case KindPositions, KindCorrectPositions:
		var positions map[string]struct {
			X     *float64 `json:"x"`
			Y     *float64 `json:"y"`
			Color string   `json:"color"`
			Label string   `json:"label"`
		}
		if err := json.Unmarshal(payload, &positions); err != nil {
			return fmt.Errorf("decoding positions payload: %w", err)
		}
		if len(positions) == 0 {
			return fmt.Errorf("positions payload is empty")
		}
		for key, pos := range positions {
			if pos.X == nil || pos.Y == nil {
				return fmt.Errorf("position %q: x and y are required", key)
			}
		}
		return nil
	case KindGuidelines:
		var shapes []Shape
		if err := json.Unmarshal(payload, &shapes); err != nil {
			return fmt.Errorf("decoding shapes payload: %w", err)
		}
		return ValidateShapes(shapes)
	default:
		return fmt.Errorf("unknown record kind %q", kind)
	}
}

// ValidateShapes checks the structural requirements of a guidelines
// payload: every shape needs a known type and a non-empty, even-length
// point sequence.
func ValidateShapes(shapes []Shape) error {
	for i, shape := range shapes {
		if !shape.Type.Valid() {
			return fmt.Errorf("shape %d: unknown type %q", i, shape.Type)
		}
		if len(shape.Points) == 0 {
			return fmt.Errorf("shape %d: points are required", i)
		}
		if len(shape.Points)%2 != 0 {
			return fmt.Errorf("shape %d: points must be x,y pairs (got %d values)", i, len(shape.Points))
		}
	}
	return nil
}
