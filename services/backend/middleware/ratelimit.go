// Copyright (C) 2025 eulerianKnight
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"golang.org/x/time/rate"
)

// =============================================================================
// Keyed Rate Limiter
// =============================================================================

// KeyedLimiter applies an independent token bucket per key.
//
// # Description
//
// Each key gets a rate.Limiter with the configured refill interval and
// burst. Buckets idle longer than ten minutes are evicted during later
// Allow calls, so abandoned keys do not accumulate. A fresh bucket
// starts full, which means eviction also resets a key's budget; the
// idle window is long enough that this cannot be cycled faster than
// the refill rate it replaces.
//
// # Thread Safety
//
// Safe for concurrent use.
type KeyedLimiter struct {
	mu       sync.Mutex
	buckets  map[string]*bucket
	every    rate.Limit
	burst    int
	idleTTL  time.Duration
	lastScan time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewKeyedLimiter creates a limiter allowing burst immediate calls per
// key, refilling one permit per every interval.
func NewKeyedLimiter(every time.Duration, burst int) *KeyedLimiter {
	return &KeyedLimiter{
		buckets:  make(map[string]*bucket),
		every:    rate.Every(every),
		burst:    burst,
		idleTTL:  10 * time.Minute,
		lastScan: time.Now(),
	}
}

// Allow reports whether the key has budget for one more call.
func (l *KeyedLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	l.evictIdleLocked(now)

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.every, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now

	return b.limiter.Allow()
}

// evictIdleLocked sweeps idle buckets at most once per idle window.
// Caller must hold mu.
func (l *KeyedLimiter) evictIdleLocked(now time.Time) {
	if now.Sub(l.lastScan) < l.idleTTL {
		return
	}
	l.lastScan = now
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > l.idleTTL {
			delete(l.buckets, key)
		}
	}
}

// =============================================================================
// Login Rate Limit Middleware
// =============================================================================

// LoginRateLimit guards the login endpoint against credential stuffing.
//
// # Description
//
// The limiter key combines the posted username (lowercased) with the
// client IP, so hammering one account from one address runs out of
// budget without locking the account for everyone else. The body is
// buffered with ShouldBindBodyWith; the login handler must bind with
// the same call to see it.
//
// Over-limit requests abort with 429.
func LoginRateLimit(limiter *KeyedLimiter) gin.HandlerFunc {
	type loginBody struct {
		Username string `json:"username"`
	}

	return func(c *gin.Context) {
		var body loginBody
		// Binding errors fall through with an empty username; the
		// handler rejects the malformed body with a proper message.
		_ = c.ShouldBindBodyWith(&body, binding.JSON)

		key := strings.ToLower(strings.TrimSpace(body.Username)) + "|" + c.ClientIP()
		if !limiter.Allow(key) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Too many login attempts. Please try again later.",
			})
			return
		}
		c.Next()
	}
}
