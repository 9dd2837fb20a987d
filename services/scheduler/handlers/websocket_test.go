// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// Tests for the event stream handler

package handlers

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianSwarm/services/scheduler/schedule"
)

// dialEvents starts a test server around DagEvents and opens a client
// connection to it.
func dialEvents(t *testing.T, hub *schedule.Hub, query string) *websocket.Conn {
	t.Helper()
	router := gin.New()
	router.GET("/v1/dag/events", DagEvents(hub))
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/dag/events" + query
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readEvent reads one JSON message with a deadline so a missing event fails
// fast instead of hanging the suite.
func readEvent(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg map[string]interface{}
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func testEvent(eventType schedule.Type, channelID string) schedule.Event {
	return schedule.Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		ChannelID: channelID,
		Timestamp: time.Now().UnixMilli(),
		Version:   1,
	}
}

// =============================================================================
// DagEvents Tests
// =============================================================================

func TestDagEvents_HelloThenLiveEvent(t *testing.T) {
	hub := schedule.NewHub()
	conn := dialEvents(t, hub, "")

	hello := readEvent(t, conn)
	assert.Equal(t, "subscribed", hello["action"])
	assert.NotEmpty(t, hello["session_id"])

	hub.Publish(testEvent(schedule.TypeTaskAdded, "C-1"))

	msg := readEvent(t, conn)
	assert.Equal(t, string(schedule.TypeTaskAdded), msg["type"])
	assert.Equal(t, "C-1", msg["channel_id"])
}

func TestDagEvents_ChannelFilter(t *testing.T) {
	hub := schedule.NewHub()
	conn := dialEvents(t, hub, "?channel=C-2")

	readEvent(t, conn) // hello

	hub.Publish(testEvent(schedule.TypeTaskAdded, "C-1"))
	hub.Publish(testEvent(schedule.TypeTaskAdded, "C-2"))

	msg := readEvent(t, conn)
	assert.Equal(t, "C-2", msg["channel_id"], "other channels are filtered out")
}

func TestDagEvents_TypeFilter(t *testing.T) {
	hub := schedule.NewHub()
	conn := dialEvents(t, hub, "?types=status.changed")

	readEvent(t, conn) // hello

	hub.Publish(testEvent(schedule.TypeTaskAdded, "C-1"))
	hub.Publish(testEvent(schedule.TypeStatusChanged, "C-1"))

	msg := readEvent(t, conn)
	assert.Equal(t, string(schedule.TypeStatusChanged), msg["type"])
}

func TestDagEvents_SinceReplay(t *testing.T) {
	hub := schedule.NewHub()
	hub.Publish(testEvent(schedule.TypeDagBuilt, "C-1"))
	hub.Publish(testEvent(schedule.TypeDependencyAdded, "C-1"))

	conn := dialEvents(t, hub, "?since=1")

	readEvent(t, conn) // hello

	first := readEvent(t, conn)
	assert.Equal(t, string(schedule.TypeDagBuilt), first["type"])
	second := readEvent(t, conn)
	assert.Equal(t, string(schedule.TypeDependencyAdded), second["type"])
}
