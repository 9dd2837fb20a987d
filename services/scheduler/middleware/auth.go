// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/AleutianAI/AleutianSwarm/pkg/extensions"
	"github.com/gin-gonic/gin"
)

// =============================================================================
// Context Keys
// =============================================================================

// authInfoKey is the context key for storing AuthInfo.
// Using a dedicated key prevents collisions with other context values.
const authInfoKey = "swarm_auth_info"

// =============================================================================
// Context Helpers
// =============================================================================

// SetAuthInfo stores the authenticated caller info in the Gin context.
//
// # Description
//
// Called by AuthMiddleware after successful authentication. The stored
// AuthInfo can be retrieved by handlers and by the audit middleware via
// GetAuthInfo.
//
// # Inputs
//
//   - c: Gin context. Must not be nil.
//   - info: Authenticated caller information. May be nil.
//
// # Outputs
//
// None.
//
// # Limitations
//
//   - Only valid for the current request (context is request-scoped)
//   - Overwrites any previously set auth info
//
// # Thread Safety
//
// Safe to call concurrently (Gin context is request-scoped).
func SetAuthInfo(c *gin.Context, info *extensions.AuthInfo) {
	c.Set(authInfoKey, info)
}

// GetAuthInfo retrieves the authenticated caller info from the Gin context.
//
// # Description
//
// Called by handlers to access the caller's identity, for example to
// attribute a dependency mutation to the agent that requested it.
// Returns nil if no AuthInfo is present (request not authenticated).
//
// # Inputs
//
//   - c: Gin context. Must not be nil.
//
// # Outputs
//
//   - *extensions.AuthInfo: Caller info, or nil if not authenticated.
//
// # Examples
//
//	func (h *Handler) AddDependency(c *gin.Context) {
//	    info := middleware.GetAuthInfo(c)
//	    if info != nil {
//	        log.Info("dependency requested", "user_id", info.UserID)
//	    }
//	    // ...
//	}
//
// # Limitations
//
//   - Returns nil if SetAuthInfo was not called or called with nil
//   - Returns nil if the stored value is the wrong type
//
// # Thread Safety
//
// Safe to call concurrently (Gin context is request-scoped).
func GetAuthInfo(c *gin.Context) *extensions.AuthInfo {
	if info, exists := c.Get(authInfoKey); exists {
		if authInfo, ok := info.(*extensions.AuthInfo); ok {
			return authInfo
		}
	}
	return nil
}

// =============================================================================
// Auth Middleware
// =============================================================================

// AuthMiddleware creates a Gin middleware that authenticates requests.
//
// # Description
//
// Extracts the bearer token from the Authorization header, validates it
// using the provided AuthProvider, and stores the resulting AuthInfo in
// the context for downstream handlers.
//
//	Request
//	   │
//	   ▼
//	AuthMiddleware
//	   │
//	   ├─► Extract token from "Authorization: Bearer <token>"
//	   │
//	   ├─► provider.Validate(ctx, token) ── err ──► 401
//	   │
//	   └─► Store AuthInfo in context
//	           │
//	           ▼
//	       Handler chain continues
//
// # Open Source Behavior
//
// With NopAuthProvider (the default), every request is authenticated as
// "local-operator" with the operator role, including requests with no
// Authorization header at all. Local agent swarms need no auth
// infrastructure to talk to the scheduler.
//
// # Hosted Behavior
//
// Hosted deployments inject an AuthProvider that validates tokens against
// an identity provider and returns real caller identities, so graph
// mutations can be attributed to specific agents and operators.
//
// # Inputs
//
//   - provider: AuthProvider to validate tokens. Must not be nil.
//
// # Outputs
//
//   - gin.HandlerFunc: Middleware to install ahead of the route groups.
//
// # Examples
//
//	v1 := router.Group("/v1")
//	v1.Use(middleware.AuthMiddleware(opts.AuthProvider))
//
// # Limitations
//
//   - Only supports Bearer token authentication
//   - Does not cache validation results (validates every request)
//
// # Thread Safety
//
// Thread-safe. The returned middleware can be used concurrently.
func AuthMiddleware(provider extensions.AuthProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearerToken(c)

		authInfo, err := provider.Validate(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, extensions.ErrUnauthorized) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error": "unauthorized",
				})
				return
			}
			// Provider failures (network, identity provider outage) are
			// also refused rather than letting requests through unauthenticated.
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "authentication failed",
			})
			return
		}

		SetAuthInfo(c, authInfo)
		c.Next()
	}
}

// =============================================================================
// Helper Functions
// =============================================================================

// extractBearerToken extracts the token from the Authorization header.
//
// Expects "Bearer <token>"; the scheme is case-insensitive per RFC 7235.
// Returns empty string if the header is missing or malformed, which the
// provider is free to accept (NopAuthProvider does) or reject.
func extractBearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
