// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package middleware provides HTTP middleware for the scheduler service.
//
// # Rate Limiting
//
// The rate limiter hands each client IP its own token bucket. Buckets
// refill at the configured steady rate and absorb bursts up to the
// configured size; a request that finds its bucket empty is rejected with
// 429 before reaching any handler.
//
//	Request
//	   │
//	   ▼
//	RateLimitMiddleware
//	   │
//	   ├─► Resolve client IP (c.ClientIP)
//	   │
//	   ├─► limiter.Allow()  ── no ──► 429 Too Many Requests
//	   │         │
//	   │        yes
//	   ▼         ▼
//	Handler chain continues
//
// Idle buckets are swept opportunistically during lookups, so the per-IP
// map stays bounded without a background goroutine.
package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// =============================================================================
// Defaults
// =============================================================================

const (
	// DefaultRequestsPerSecond is the steady-state refill rate per client.
	DefaultRequestsPerSecond = 50

	// DefaultBurst is the bucket capacity per client.
	DefaultBurst = 100

	// clientIdleTTL is how long an untouched bucket survives before the
	// sweep may reclaim it.
	clientIdleTTL = 10 * time.Minute

	// sweepInterval bounds how often lookups pay the full-map sweep cost.
	sweepInterval = time.Minute
)

// =============================================================================
// ClientLimiter
// =============================================================================

// clientState is one IP's bucket plus the bookkeeping the sweep needs.
type clientState struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ClientLimiter maintains an independent token bucket per client IP.
//
// # Thread Safety
//
// Safe for concurrent use. A single mutex guards the client map; the
// buckets themselves are internally synchronized by x/time/rate.
type ClientLimiter struct {
	mu        sync.Mutex
	clients   map[string]*clientState
	rps       rate.Limit
	burst     int
	lastSweep time.Time
}

// NewClientLimiter builds a per-IP limiter.
//
// # Inputs
//
//   - rps: Steady-state requests per second per client. Values <= 0 fall
//     back to DefaultRequestsPerSecond.
//   - burst: Bucket capacity per client. Values <= 0 fall back to
//     DefaultBurst.
//
// # Outputs
//
//   - *ClientLimiter: Ready to use; never nil.
func NewClientLimiter(rps float64, burst int) *ClientLimiter {
	if rps <= 0 {
		rps = DefaultRequestsPerSecond
	}
	if burst <= 0 {
		burst = DefaultBurst
	}
	return &ClientLimiter{
		clients:   make(map[string]*clientState),
		rps:       rate.Limit(rps),
		burst:     burst,
		lastSweep: time.Now(),
	}
}

// limiterFor returns the bucket for ip, creating it on first sight. Lookups
// amortize the idle sweep so the map cannot grow without bound.
func (l *ClientLimiter) limiterFor(ip string) *rate.Limiter {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) > sweepInterval {
		l.sweepLocked(now)
	}

	state, ok := l.clients[ip]
	if !ok {
		state = &clientState{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.clients[ip] = state
	}
	state.lastSeen = now
	return state.limiter
}

// sweepLocked drops buckets idle past clientIdleTTL. Caller holds l.mu.
func (l *ClientLimiter) sweepLocked(now time.Time) {
	for ip, state := range l.clients {
		if now.Sub(state.lastSeen) > clientIdleTTL {
			delete(l.clients, ip)
		}
	}
	l.lastSweep = now
}

// size reports the tracked client count.
func (l *ClientLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// =============================================================================
// Middleware
// =============================================================================

// RateLimitMiddleware rejects requests that exceed a client's token bucket.
//
// # Description
//
// Each request resolves the client IP, takes one token from that client's
// bucket, and proceeds only when a token was available. Exhausted clients
// receive 429 with a JSON error body and the request is aborted before any
// handler runs.
//
// # Inputs
//
//   - limiter: Shared ClientLimiter. Must not be nil.
//
// # Outputs
//
//   - gin.HandlerFunc: Middleware to install ahead of the route groups.
//
// # Thread Safety
//
// Safe for concurrent requests.
func RateLimitMiddleware(limiter *ClientLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.limiterFor(c.ClientIP()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
