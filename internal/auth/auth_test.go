// FieldSync - Defensive Positioning Trainer for Baseball Coaching
// Copyright 2026 benchcoach
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/benchcoach/fieldsync

package auth

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/benchcoach/fieldsync/internal/config"
	"github.com/benchcoach/fieldsync/internal/logging"
)

func init() {
	logging.Init(logging.Config{Level: "disabled", Output: io.Discard})
}

const testSecret = "0123456789abcdef0123456789abcdef"

func testSecurityConfig(t *testing.T) *config.SecurityConfig {
	t.Helper()

	adminHash, err := bcrypt.GenerateFromPassword([]byte("admin-pass"), bcrypt.MinCost)
	require.NoError(t, err)
	coachHash, err := bcrypt.GenerateFromPassword([]byte("coach-pass"), bcrypt.MinCost)
	require.NoError(t, err)

	return &config.SecurityConfig{
		AuthMode:          "jwt",
		JWTSecret:         testSecret,
		SessionTimeout:    time.Hour,
		AdminUsername:     "skipper",
		AdminPasswordHash: string(adminHash),
		CoachUsernames:    []string{"casey"},
		CoachPasswordHash: string(coachHash),
	}
}

func TestJWTRoundTrip(t *testing.T) {
	m, err := NewJWTManager(testSecurityConfig(t))
	require.NoError(t, err)

	token, expiresAt, err := m.GenerateToken("skipper", "admin")
	require.NoError(t, err)
	assert.True(t, expiresAt.After(time.Now()))

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "skipper", claims.Username)
	assert.Equal(t, "admin", claims.Role)
}

func TestJWTRejectsTampering(t *testing.T) {
	m, err := NewJWTManager(testSecurityConfig(t))
	require.NoError(t, err)

	token, _, err := m.GenerateToken("skipper", "admin")
	require.NoError(t, err)

	_, err = m.ValidateToken(token + "x")
	assert.Error(t, err)

	otherCfg := testSecurityConfig(t)
	otherCfg.JWTSecret = "ffffffffffffffffffffffffffffffff"
	other, err := NewJWTManager(otherCfg)
	require.NoError(t, err)
	_, err = other.ValidateToken(token)
	assert.Error(t, err)
}

func TestJWTManagerRequiresLongSecret(t *testing.T) {
	cfg := testSecurityConfig(t)
	cfg.JWTSecret = "short"
	_, err := NewJWTManager(cfg)
	assert.Error(t, err)
}

func TestCredentialsVerify(t *testing.T) {
	creds := NewCredentials(testSecurityConfig(t))

	tests := []struct {
		name     string
		username string
		password string
		wantRole string
		wantErr  bool
	}{
		{"admin ok", "skipper", "admin-pass", "admin", false},
		{"coach ok", "casey", "coach-pass", "coach", false},
		{"admin wrong password", "skipper", "nope", "", true},
		{"coach wrong password", "casey", "nope", "", true},
		{"unknown user", "stranger", "admin-pass", "", true},
		{"coach password on admin account", "skipper", "coach-pass", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			role, err := creds.Verify(tt.username, tt.password)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidCredentials)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantRole, role)
			}
		})
	}
}

func newAuthedRequest(t *testing.T, m *JWTManager, username, role string) *http.Request {
	t.Helper()

	token, _, err := m.GenerateToken(username, role)
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/api/v1/positions/S", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	return r
}

func TestAuthenticateMiddleware(t *testing.T) {
	jwtManager, err := NewJWTManager(testSecurityConfig(t))
	require.NoError(t, err)
	mw := NewMiddleware(jwtManager, "jwt")

	var gotClaims *Claims
	handler := mw.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotClaims, _ = ClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("valid bearer token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, newAuthedRequest(t, jwtManager, "casey", "coach"))
		assert.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, gotClaims)
		assert.Equal(t, "casey", gotClaims.Username)
	})

	t.Run("missing token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("garbage token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", "Bearer garbage")
		handler.ServeHTTP(rec, r)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("token via query parameter", func(t *testing.T) {
		token, _, err := jwtManager.GenerateToken("casey", "coach")
		require.NoError(t, err)
		rec := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/api/v1/ws?token="+token, nil)
		handler.ServeHTTP(rec, r)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestAuthenticateModeNone(t *testing.T) {
	mw := NewMiddleware(nil, "none")

	handler := mw.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := ActorFromContext(r.Context())
		assert.Equal(t, "viewer", actor.Role)
		assert.False(t, actor.Privileged())
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireRole(t *testing.T) {
	jwtManager, err := NewJWTManager(testSecurityConfig(t))
	require.NoError(t, err)
	mw := NewMiddleware(jwtManager, "jwt")

	handler := mw.Authenticate(mw.RequireRole("admin", "coach")(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})))

	t.Run("coach allowed", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, newAuthedRequest(t, jwtManager, "casey", "coach"))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("viewer forbidden", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, newAuthedRequest(t, jwtManager, "fan", "user"))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestActorFromContext(t *testing.T) {
	actor := ActorFromContext(httptest.NewRequest(http.MethodGet, "/", nil).Context())
	assert.Empty(t, actor.ID)
	assert.False(t, actor.Privileged())
}

func TestIPLimiter(t *testing.T) {
	l := NewIPLimiter(3)

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("10.0.0.1"))
	}
	assert.False(t, l.Allow("10.0.0.1"), "burst exhausted")
	assert.True(t, l.Allow("10.0.0.2"), "other IPs unaffected")
}

func TestIPLimiterZeroRateDisablesLimit(t *testing.T) {
	l := NewIPLimiter(0)

	for i := 0; i < 20; i++ {
		assert.True(t, l.Allow("10.0.0.1"))
	}
}
