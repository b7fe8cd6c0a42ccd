// FieldSync - Defensive Positioning Trainer for Baseball Coaching
// Copyright 2026 benchcoach
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/benchcoach/fieldsync

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths searched for a config file, in
// order. The first file found is used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/fieldsync/config.yaml",
	"/etc/fieldsync/config.yml",
}

// ConfigPathEnvVar overrides the config file search path.
const ConfigPathEnvVar = "FIELDSYNC_CONFIG"

// defaultConfig returns the built-in defaults, applied before file and
// environment layers.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    8090,
			Timeout: 30 * time.Second,
		},
		Store: StoreConfig{
			Path:       "/data/fieldsync",
			InMemory:   false,
			SyncWrites: true,
			OpTimeout:  5 * time.Second,
		},
		Security: SecurityConfig{
			AuthMode:           "jwt",
			JWTSecret:          "",
			SessionTimeout:     24 * time.Hour,
			AdminUsername:      "",
			AdminPasswordHash:  "",
			CoachUsernames:     []string{},
			CoachPasswordHash:  "",
			CORSOrigins:        []string{"*"},
			RateLimitReqs:      100,
			RateLimitWindow:    1 * time.Minute,
			RateLimitDisabled:  false,
			LoginRatePerMinute: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// sliceConfigPaths are config keys that accept comma-separated strings
// from environment variables.
var sliceConfigPaths = []string{
	"security.coach_usernames",
	"security.cors_origins",
}

// Load builds the configuration from layered sources:
//  1. Built-in defaults
//  2. Optional YAML config file
//  3. Environment variables (highest precedence)
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first existing config file path, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransformFunc maps environment variable names to koanf paths.
// Unrecognized variables are dropped so unrelated process environment
// never leaks into the config tree.
func envTransformFunc(key string) string {
	envMappings := map[string]string{
		"HTTP_HOST":             "server.host",
		"HTTP_PORT":             "server.port",
		"HTTP_TIMEOUT":          "server.timeout",
		"STORE_PATH":            "store.path",
		"STORE_IN_MEMORY":       "store.in_memory",
		"STORE_SYNC_WRITES":     "store.sync_writes",
		"STORE_OP_TIMEOUT":      "store.op_timeout",
		"AUTH_MODE":             "security.auth_mode",
		"JWT_SECRET":            "security.jwt_secret",
		"SESSION_TIMEOUT":       "security.session_timeout",
		"ADMIN_USERNAME":        "security.admin_username",
		"ADMIN_PASSWORD_HASH":   "security.admin_password_hash",
		"COACH_USERNAMES":       "security.coach_usernames",
		"COACH_PASSWORD_HASH":   "security.coach_password_hash",
		"CORS_ORIGINS":          "security.cors_origins",
		"RATE_LIMIT_REQS":       "security.rate_limit_reqs",
		"RATE_LIMIT_WINDOW":     "security.rate_limit_window",
		"RATE_LIMIT_DISABLED":   "security.rate_limit_disabled",
		"LOGIN_RATE_PER_MINUTE": "security.login_rate_per_minute",
		"LOG_LEVEL":             "logging.level",
		"LOG_FORMAT":            "logging.format",
		"LOG_CALLER":            "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	return ""
}

// processSliceFields converts comma-separated env strings into slices
// for the keys in sliceConfigPaths. YAML-provided slices pass through.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}
