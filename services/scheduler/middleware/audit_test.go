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
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/AleutianAI/AleutianSwarm/pkg/extensions"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Setup
// =============================================================================

// recordingAuditLogger captures events for assertions.
type recordingAuditLogger struct {
	mu     sync.Mutex
	events []extensions.AuditEvent
}

func (l *recordingAuditLogger) Log(_ context.Context, event extensions.AuditEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
	return nil
}

func (l *recordingAuditLogger) Query(_ context.Context, _ extensions.AuditFilter) ([]extensions.AuditEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]extensions.AuditEvent(nil), l.events...), nil
}

func (l *recordingAuditLogger) Flush(_ context.Context) error {
	return nil
}

func (l *recordingAuditLogger) last(t *testing.T) extensions.AuditEvent {
	t.Helper()
	l.mu.Lock()
	defer l.mu.Unlock()
	require.NotEmpty(t, l.events, "no audit events recorded")
	return l.events[len(l.events)-1]
}

// auditRouter wires the scheduler's route shapes with stub handlers so the
// middleware sees realistic FullPath templates.
func auditRouter(auditor extensions.AuditLogger, status int) *gin.Engine {
	router := gin.New()
	v1 := router.Group("/v1")
	v1.Use(AuditMiddleware(auditor))

	respond := func(c *gin.Context) {
		c.JSON(status, gin.H{"status": http.StatusText(status)})
	}

	channels := v1.Group("/channels/:channel")
	channels.GET("/dag/order", respond)
	channels.POST("/dag", respond)
	channels.POST("/dependencies", respond)
	channels.DELETE("/dependencies", respond)
	channels.POST("/tasks", respond)
	channels.DELETE("/tasks/:task", respond)
	channels.PATCH("/tasks/:task/status", respond)
	return router
}

// =============================================================================
// Classification Tests
// =============================================================================

func TestAuditMiddleware_Classification(t *testing.T) {
	tests := []struct {
		name             string
		method           string
		path             string
		wantEventType    string
		wantAction       string
		wantResourceType string
		wantResourceID   string
	}{
		{
			name:             "read execution order",
			method:           "GET",
			path:             "/v1/channels/C-42/dag/order",
			wantEventType:    "dag.read",
			wantAction:       "read",
			wantResourceType: "channel",
			wantResourceID:   "C-42",
		},
		{
			name:             "build graph",
			method:           "POST",
			path:             "/v1/channels/C-42/dag",
			wantEventType:    "dag.build",
			wantAction:       "build",
			wantResourceType: "channel",
			wantResourceID:   "C-42",
		},
		{
			name:             "add dependency",
			method:           "POST",
			path:             "/v1/channels/C-42/dependencies",
			wantEventType:    "dag.dependency",
			wantAction:       "add_dependency",
			wantResourceType: "channel",
			wantResourceID:   "C-42",
		},
		{
			name:             "remove dependency",
			method:           "DELETE",
			path:             "/v1/channels/C-42/dependencies",
			wantEventType:    "dag.dependency",
			wantAction:       "remove_dependency",
			wantResourceType: "channel",
			wantResourceID:   "C-42",
		},
		{
			name:             "add task",
			method:           "POST",
			path:             "/v1/channels/C-42/tasks",
			wantEventType:    "dag.task",
			wantAction:       "add_task",
			wantResourceType: "channel",
			wantResourceID:   "C-42",
		},
		{
			name:             "remove task",
			method:           "DELETE",
			path:             "/v1/channels/C-42/tasks/T-9",
			wantEventType:    "dag.task",
			wantAction:       "remove_task",
			wantResourceType: "task",
			wantResourceID:   "T-9",
		},
		{
			name:             "update status",
			method:           "PATCH",
			path:             "/v1/channels/C-42/tasks/T-9/status",
			wantEventType:    "dag.status",
			wantAction:       "update_status",
			wantResourceType: "task",
			wantResourceID:   "T-9",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auditor := &recordingAuditLogger{}
			router := auditRouter(auditor, http.StatusOK)

			w := httptest.NewRecorder()
			req := httptest.NewRequest(tt.method, tt.path, nil)
			router.ServeHTTP(w, req)

			event := auditor.last(t)
			assert.Equal(t, tt.wantEventType, event.EventType)
			assert.Equal(t, tt.wantAction, event.Action)
			assert.Equal(t, tt.wantResourceType, event.ResourceType)
			assert.Equal(t, tt.wantResourceID, event.ResourceID)
		})
	}
}

// =============================================================================
// Outcome and Metadata Tests
// =============================================================================

func TestAuditMiddleware_SuccessOutcome(t *testing.T) {
	auditor := &recordingAuditLogger{}
	router := auditRouter(auditor, http.StatusOK)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/channels/C-42/dag", nil)
	router.ServeHTTP(w, req)

	event := auditor.last(t)
	assert.Equal(t, "success", event.Outcome)
	assert.False(t, event.Timestamp.IsZero())
}

func TestAuditMiddleware_FailureOutcome(t *testing.T) {
	auditor := &recordingAuditLogger{}
	router := auditRouter(auditor, http.StatusConflict)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/channels/C-42/dependencies", nil)
	router.ServeHTTP(w, req)

	event := auditor.last(t)
	assert.Equal(t, "failure", event.Outcome)
	assert.Equal(t, http.StatusConflict, event.Metadata["status"])
}

func TestAuditMiddleware_Metadata(t *testing.T) {
	auditor := &recordingAuditLogger{}
	router := auditRouter(auditor, http.StatusOK)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/channels/C-7/dag/order", nil)
	router.ServeHTTP(w, req)

	event := auditor.last(t)
	require.NotNil(t, event.Metadata)
	assert.Equal(t, "C-7", event.Metadata["channel_id"])
	assert.Equal(t, http.StatusOK, event.Metadata["status"])
	assert.NotEmpty(t, event.Metadata["client_ip"])

	durationMs, ok := event.Metadata["duration_ms"].(int64)
	require.True(t, ok, "duration_ms should be int64")
	assert.GreaterOrEqual(t, durationMs, int64(0))
}

func TestAuditMiddleware_OneEventPerRequest(t *testing.T) {
	auditor := &recordingAuditLogger{}
	router := auditRouter(auditor, http.StatusOK)

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/v1/channels/C-42/dag/order", nil)
		router.ServeHTTP(w, req)
	}

	auditor.mu.Lock()
	defer auditor.mu.Unlock()
	assert.Len(t, auditor.events, 3)
}

// =============================================================================
// Caller Attribution Tests
// =============================================================================

func TestAuditMiddleware_AttributesAuthenticatedCaller(t *testing.T) {
	auditor := &recordingAuditLogger{}
	provider := &mockAuthProvider{
		authInfo: &extensions.AuthInfo{UserID: "agent-7", Roles: []string{"agent"}},
	}

	router := gin.New()
	v1 := router.Group("/v1")
	v1.Use(AuthMiddleware(provider))
	v1.Use(AuditMiddleware(auditor))
	v1.POST("/channels/:channel/dag", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/channels/C-42/dag", nil)
	req.Header.Set("Authorization", "Bearer agent-token")
	router.ServeHTTP(w, req)

	event := auditor.last(t)
	assert.Equal(t, "agent-7", event.UserID)
}

func TestAuditMiddleware_NoAuthInfo(t *testing.T) {
	// Without AuthMiddleware in front, events carry no user attribution.
	auditor := &recordingAuditLogger{}
	router := auditRouter(auditor, http.StatusOK)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/channels/C-42/dag/order", nil)
	router.ServeHTTP(w, req)

	event := auditor.last(t)
	assert.Empty(t, event.UserID)
}

func TestAuditMiddleware_NopLogger(t *testing.T) {
	// The default NopAuditLogger must not interfere with requests.
	router := auditRouter(&extensions.NopAuditLogger{}, http.StatusOK)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/channels/C-42/dag", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}
