// FieldSync - Defensive Positioning Trainer for Baseball Coaching
// Copyright 2026 benchcoach
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/benchcoach/fieldsync

// Package config loads FieldSync configuration from layered sources:
// built-in defaults, an optional YAML file, and environment variables,
// in ascending precedence.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the FieldSync server.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Store    StoreConfig    `koanf:"store"`
	Security SecurityConfig `koanf:"security"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`
}

// Addr returns the host:port listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// StoreConfig holds versioned record store settings.
type StoreConfig struct {
	// Path is the BadgerDB directory.
	Path string `koanf:"path"`

	// InMemory disables persistence. Development only.
	InMemory bool `koanf:"in_memory"`

	// SyncWrites fsyncs every write.
	SyncWrites bool `koanf:"sync_writes"`

	// OpTimeout bounds each store call made by the state service.
	OpTimeout time.Duration `koanf:"op_timeout"`
}

// SecurityConfig holds authentication and rate limiting settings.
type SecurityConfig struct {
	// AuthMode selects the authentication mode: "jwt" or "none".
	// "none" is for development only; every request then acts as an
	// anonymous viewer and mutations are rejected.
	AuthMode string `koanf:"auth_mode"`

	// JWTSecret signs session tokens. Required in jwt mode, minimum 32
	// characters.
	JWTSecret string `koanf:"jwt_secret"`

	// SessionTimeout is the JWT validity window.
	SessionTimeout time.Duration `koanf:"session_timeout"`

	// AdminUsername and AdminPasswordHash (bcrypt) define the admin
	// login for /auth/login.
	AdminUsername     string `koanf:"admin_username"`
	AdminPasswordHash string `koanf:"admin_password_hash"`

	// CoachUsernames lists users who receive the coach role on login.
	// Coaches share AdminPasswordHash-independent credentials via
	// CoachPasswordHash.
	CoachUsernames    []string `koanf:"coach_usernames"`
	CoachPasswordHash string   `koanf:"coach_password_hash"`

	// CORSOrigins are the allowed browser origins, also consulted by
	// the WebSocket upgrade origin check. "*" allows any origin.
	CORSOrigins []string `koanf:"cors_origins"`

	// RateLimitReqs requests per RateLimitWindow, per client IP.
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`

	// LoginRatePerMinute bounds login attempts per IP. 0 disables the
	// per-IP login limit.
	LoginRatePerMinute int `koanf:"login_rate_per_minute"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Validate checks configuration consistency. Called after unmarshal.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1-65535, got %d", c.Server.Port)
	}

	switch c.Security.AuthMode {
	case "jwt":
		if len(c.Security.JWTSecret) < 32 {
			return fmt.Errorf("security.jwt_secret must be at least 32 characters in jwt mode")
		}
		if c.Security.AdminUsername == "" || c.Security.AdminPasswordHash == "" {
			return fmt.Errorf("security.admin_username and security.admin_password_hash are required in jwt mode")
		}
	case "none":
		// Development mode, nothing to check.
	default:
		return fmt.Errorf("security.auth_mode must be \"jwt\" or \"none\", got %q", c.Security.AuthMode)
	}

	if c.Security.LoginRatePerMinute < 0 {
		return fmt.Errorf("security.login_rate_per_minute must not be negative, got %d", c.Security.LoginRatePerMinute)
	}

	if !c.Store.InMemory && c.Store.Path == "" {
		return fmt.Errorf("store.path is required unless store.in_memory is set")
	}
	if c.Store.OpTimeout <= 0 {
		return fmt.Errorf("store.op_timeout must be positive")
	}
	return nil
}
