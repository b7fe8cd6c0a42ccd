// FieldSync - Defensive Positioning Trainer for Baseball Coaching
// Copyright 2026 benchcoach
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/benchcoach/fieldsync

package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"

	"github.com/benchcoach/fieldsync/internal/config"
)

// ErrInvalidCredentials is returned for any failed login. The message
// never distinguishes unknown user from wrong password.
var ErrInvalidCredentials = errors.New("invalid credentials")

// dummyHash is compared against when the username is unknown, so a
// failed lookup costs the same as a failed password check.
var dummyHash = []byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy")

// Credentials verifies login credentials against the configured admin
// and coach accounts using bcrypt.
type Credentials struct {
	adminUsername string
	adminHash     []byte
	coachHash     []byte
	coaches       map[string]bool
}

// NewCredentials builds the credential checker from security config.
func NewCredentials(cfg *config.SecurityConfig) *Credentials {
	coaches := make(map[string]bool, len(cfg.CoachUsernames))
	for _, name := range cfg.CoachUsernames {
		coaches[name] = true
	}

	return &Credentials{
		adminUsername: cfg.AdminUsername,
		adminHash:     []byte(cfg.AdminPasswordHash),
		coachHash:     []byte(cfg.CoachPasswordHash),
		coaches:       coaches,
	}
}

// Verify checks a username/password pair and returns the user's role
// ("admin" or "coach"). Returns ErrInvalidCredentials on any mismatch.
func (c *Credentials) Verify(username, password string) (string, error) {
	switch {
	case username == c.adminUsername && len(c.adminHash) > 0:
		if err := bcrypt.CompareHashAndPassword(c.adminHash, []byte(password)); err != nil {
			return "", ErrInvalidCredentials
		}
		return "admin", nil

	case c.coaches[username] && len(c.coachHash) > 0:
		if err := bcrypt.CompareHashAndPassword(c.coachHash, []byte(password)); err != nil {
			return "", ErrInvalidCredentials
		}
		return "coach", nil

	default:
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return "", ErrInvalidCredentials
	}
}
