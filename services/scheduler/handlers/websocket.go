// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/AleutianSwarm/services/scheduler/schedule"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

func sendJSON(ws *websocket.Conn, v interface{}) error {
	err := ws.WriteJSON(v)
	if err != nil {
		slog.Warn("Failed to write WebSocket JSON", "error", err)
	}
	return err
}

// DagEvents streams scheduler events over a websocket.
//
// Query params:
//
//   - channel: only events for this channel (default: all channels)
//   - types: comma separated event types (default: all types)
//   - since: Unix millisecond timestamp; buffered events newer than this
//     are replayed before live delivery begins
//
// Slow consumers do not block the hub: events that cannot be queued for a
// lagging connection are dropped and counted against that session.
func DagEvents(hub *schedule.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		channelFilter := c.Query("channel")
		since, _ := strconv.ParseInt(c.Query("since"), 10, 64)
		var types []schedule.Type
		for _, t := range queryCSV(c, "types") {
			types = append(types, schedule.Type(t))
		}

		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("failed to upgrade the websocket", "error", err)
			return
		}
		defer ws.Close()

		sessionID := uuid.New().String()
		slog.Info("Event stream client connected",
			"sessionID", sessionID, "channel", channelFilter)

		wantType := make(map[schedule.Type]bool, len(types))
		for _, t := range types {
			wantType[t] = true
		}
		matches := func(ev schedule.Event) bool {
			if channelFilter != "" && ev.ChannelID != channelFilter {
				return false
			}
			if len(wantType) > 0 && !wantType[ev.Type] {
				return false
			}
			return true
		}

		// Subscribe before the hello goes out so nothing published after
		// the handshake can be missed. The subscriber runs on the
		// publisher's goroutine, so the drop counter is shared across
		// goroutines.
		events := make(chan schedule.Event, 64)
		var dropped atomic.Int64
		subID := hub.Subscribe(func(ev schedule.Event) {
			if !matches(ev) {
				return
			}
			select {
			case events <- ev:
			default:
				dropped.Add(1)
			}
		}, types...)
		defer hub.Unsubscribe(subID)

		if err := sendJSON(ws, map[string]interface{}{
			"action":     "subscribed",
			"session_id": sessionID,
			"channel_id": channelFilter,
		}); err != nil {
			return
		}

		// Replay buffered history before going live so a reconnecting
		// client sees what it missed. An event published during replay
		// can arrive twice; consumers dedupe on the event id.
		if since > 0 {
			for _, ev := range hub.RecentSince(since) {
				if !matches(ev) {
					continue
				}
				if err := sendJSON(ws, ev); err != nil {
					return
				}
			}
		}

		// The read loop exists only to notice the client going away.
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				if _, _, err := ws.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-done:
				slog.Info("Event stream client disconnected",
					"sessionID", sessionID, "dropped", dropped.Load())
				return
			case ev := <-events:
				if err := sendJSON(ws, ev); err != nil {
					return
				}
			}
		}
	}
}
