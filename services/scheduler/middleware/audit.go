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
	"net/http"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianSwarm/pkg/extensions"
	"github.com/gin-gonic/gin"
)

// =============================================================================
// Audit Middleware
// =============================================================================

// AuditMiddleware creates a Gin middleware that records one audit event
// per request.
//
// # Description
//
// After the handler chain completes, the middleware classifies the request
// into the scheduler's audit taxonomy (dag.read, dag.build, dag.dependency,
// dag.task, dag.status), attributes it to the authenticated caller, and
// hands the event to the configured AuditLogger.
//
//	Request
//	   │
//	   ▼
//	AuthMiddleware (stores AuthInfo)
//	   │
//	   ▼
//	AuditMiddleware ──► handler chain ──► classify + Log(event)
//
// # Open Source Behavior
//
// With NopAuditLogger (the default), events are discarded. The middleware
// still runs so hosted deployments only swap the logger, not the wiring.
//
// # Inputs
//
//   - auditor: AuditLogger to receive events. Must not be nil.
//
// # Outputs
//
//   - gin.HandlerFunc: Middleware to install after AuthMiddleware.
//
// # Examples
//
//	v1 := router.Group("/v1")
//	v1.Use(middleware.AuthMiddleware(opts.AuthProvider))
//	v1.Use(middleware.AuditMiddleware(opts.AuditLogger))
//
// # Limitations
//
//   - Request bodies are not captured, so dependency events carry the
//     channel but not the from/to task pair
//   - Log errors are swallowed; durable delivery is the logger's concern
//
// # Thread Safety
//
// Thread-safe. The returned middleware can be used concurrently.
func AuditMiddleware(auditor extensions.AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		eventType, action, resourceType, resourceID := classifyRequest(c)

		status := c.Writer.Status()
		outcome := "success"
		if status >= http.StatusBadRequest {
			outcome = "failure"
		}

		metadata := map[string]any{
			"client_ip":   c.ClientIP(),
			"status":      status,
			"duration_ms": time.Since(start).Milliseconds(),
		}
		if channel := c.Param("channel"); channel != "" {
			metadata["channel_id"] = channel
		}
		if len(c.Errors) > 0 {
			metadata["error"] = c.Errors.Last().Error()
		}

		event := extensions.AuditEvent{
			EventType:    eventType,
			Timestamp:    time.Now().UTC(),
			Action:       action,
			ResourceType: resourceType,
			ResourceID:   resourceID,
			Outcome:      outcome,
			Metadata:     metadata,
		}
		if info := GetAuthInfo(c); info != nil {
			event.UserID = info.UserID
		}

		// Audit failures never fail the request that produced them.
		_ = auditor.Log(c.Request.Context(), event)
	}
}

// classifyRequest maps a routed request onto the audit taxonomy. The
// route template (c.FullPath) is stable under parameter substitution, so
// suffix checks are enough to tell the mutation surfaces apart.
func classifyRequest(c *gin.Context) (eventType, action, resourceType, resourceID string) {
	path := c.FullPath()
	method := c.Request.Method
	channel := c.Param("channel")
	task := c.Param("task")

	switch {
	case method == http.MethodGet:
		return "dag.read", "read", "channel", channel
	case strings.HasSuffix(path, "/dag") && method == http.MethodPost:
		return "dag.build", "build", "channel", channel
	case strings.HasSuffix(path, "/dependencies") && method == http.MethodDelete:
		return "dag.dependency", "remove_dependency", "channel", channel
	case strings.HasSuffix(path, "/dependencies"):
		return "dag.dependency", "add_dependency", "channel", channel
	case strings.HasSuffix(path, "/status"):
		return "dag.status", "update_status", "task", task
	case strings.HasSuffix(path, "/tasks"):
		return "dag.task", "add_task", "channel", channel
	case task != "":
		return "dag.task", "remove_task", "task", task
	default:
		return "dag.read", strings.ToLower(method), "channel", channel
	}
}
