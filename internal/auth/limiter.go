// FieldSync - Defensive Positioning Trainer for Baseball Coaching
// Copyright 2026 benchcoach
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/benchcoach/fieldsync

package auth

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// IPLimiter applies a per-IP token bucket, used to slow down credential
// guessing against /auth/login.
type IPLimiter struct {
	mu       sync.Mutex
	limiters map[string]*ipEntry
	limit    rate.Limit
	burst    int
}

type ipEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewIPLimiter allows perMinute events per IP with a burst of the same
// size. perMinute <= 0 disables the limit entirely. Idle entries are
// dropped by the cleanup loop.
func NewIPLimiter(perMinute int) *IPLimiter {
	limit := rate.Inf
	burst := 1
	if perMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(perMinute))
		burst = perMinute
	}

	l := &IPLimiter{
		limiters: make(map[string]*ipEntry),
		limit:    limit,
		burst:    burst,
	}
	go l.cleanup(5 * time.Minute)
	return l
}

// Allow reports whether the given IP may proceed.
func (l *IPLimiter) Allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.limiters[ip]
	if !ok {
		entry = &ipEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[ip] = entry
	}
	entry.lastSeen = time.Now()
	return entry.limiter.Allow()
}

// cleanup drops entries idle for longer than maxIdle.
func (l *IPLimiter) cleanup(maxIdle time.Duration) {
	ticker := time.NewTicker(maxIdle)
	defer ticker.Stop()

	for range ticker.C {
		l.mu.Lock()
		for ip, entry := range l.limiters {
			if time.Since(entry.lastSeen) > maxIdle {
				delete(l.limiters, ip)
			}
		}
		l.mu.Unlock()
	}
}
