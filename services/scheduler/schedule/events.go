// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package schedule

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianSwarm/services/scheduler/dag"
)

// Type identifies the kind of scheduling event.
type Type string

const (
	// TypeDagBuilt is emitted after a channel graph is (re)built.
	TypeDagBuilt Type = "dag.built"

	// TypeDependencyAdded is emitted after an edge is committed.
	TypeDependencyAdded Type = "dependency.added"

	// TypeDependencyRemoved is emitted after an edge is removed.
	TypeDependencyRemoved Type = "dependency.removed"

	// TypeTaskAdded is emitted after a task node is added to a graph.
	TypeTaskAdded Type = "task.added"

	// TypeTaskRemoved is emitted after a task node is removed from a graph.
	TypeTaskRemoved Type = "task.removed"

	// TypeStatusChanged is emitted after a task status update is applied.
	TypeStatusChanged Type = "status.changed"

	// TypeTasksUnblocked is emitted when a completion makes dependents ready.
	TypeTasksUnblocked Type = "tasks.unblocked"

	// TypeCacheEvicted is emitted when a channel graph leaves the cache.
	TypeCacheEvicted Type = "cache.evicted"
)

// Event represents a scheduling event.
//
// Description:
//
//	Events are the mechanism for observing scheduler mutations without
//	coupling to the Scheduler implementation. Each event has a type that
//	determines the structure of its Data field; use the matching typed
//	data struct (BuildDagData, DependencyData, etc.) when reading it.
//
// Thread Safety:
//
//	Event structs should be treated as immutable after creation.
type Event struct {
	// ID is a unique identifier for this event.
	ID string `json:"id"`

	// Type identifies the kind of event.
	Type Type `json:"type"`

	// ChannelID is the channel whose graph the event concerns.
	ChannelID string `json:"channel_id"`

	// Timestamp is when the event occurred (Unix milliseconds UTC).
	Timestamp int64 `json:"timestamp"`

	// Version is the graph version after the mutation, when applicable.
	Version int64 `json:"version,omitempty"`

	// Data contains event-specific data. One of: BuildDagData,
	// DependencyData, TaskData, StatusChangeData, UnblockedData,
	// EvictionData.
	Data any `json:"data,omitempty"`
}

// BuildDagData is the data for dag.built events.
type BuildDagData struct {
	// NodeCount is the number of task nodes in the rebuilt graph.
	NodeCount int `json:"node_count"`

	// EdgeCount is the number of dependency edges in the rebuilt graph.
	EdgeCount int `json:"edge_count"`
}

// DependencyData is the data for dependency.added and dependency.removed
// events.
type DependencyData struct {
	// DependentTaskID is the task that waits.
	DependentTaskID string `json:"dependent_task_id"`

	// DependencyTaskID is the task being waited on.
	DependencyTaskID string `json:"dependency_task_id"`

	// EdgeID is the deterministic edge identifier.
	EdgeID string `json:"edge_id"`
}

// TaskData is the data for task.added and task.removed events.
type TaskData struct {
	// TaskID is the affected task.
	TaskID string `json:"task_id"`

	// Status is the task's status at event time, when known.
	Status dag.Status `json:"status,omitempty"`
}

// StatusChangeData is the data for status.changed events.
type StatusChangeData struct {
	// TaskID is the task whose status changed.
	TaskID string `json:"task_id"`

	// From is the previous status.
	From dag.Status `json:"from"`

	// To is the new status.
	To dag.Status `json:"to"`
}

// UnblockedData is the data for tasks.unblocked events.
type UnblockedData struct {
	// CompletedTaskID is the completion that released the dependents.
	CompletedTaskID string `json:"completed_task_id"`

	// Unblocked lists the tasks that became ready, in dependency order.
	Unblocked []string `json:"unblocked"`
}

// EvictionData is the data for cache.evicted events.
type EvictionData struct {
	// Reason is why the graph left the cache: "ttl_expired" or "cleared".
	Reason string `json:"reason"`
}

// =============================================================================
// Sinks
// =============================================================================

// EventSink receives scheduling events.
//
// Implementations must not block; the scheduler publishes from its mutation
// paths.
type EventSink interface {
	Publish(event Event)
}

// NoopSink discards all events. It is the default sink.
type NoopSink struct{}

// Publish discards the event.
func (NoopSink) Publish(Event) {}

// LogSink writes events to a structured logger at debug level.
type LogSink struct {
	Log *slog.Logger
}

// Publish logs the event.
func (s LogSink) Publish(event Event) {
	log := s.Log
	if log == nil {
		log = slog.Default()
	}
	log.Debug("scheduler event",
		"event_id", event.ID,
		"event_type", event.Type,
		"channel_id", event.ChannelID,
		"version", event.Version,
	)
}

// =============================================================================
// Hub
// =============================================================================

// Handler is a function that processes events.
type Handler func(event Event)

// subscription pairs a handler with its type filter.
type subscription struct {
	id      string
	handler Handler
	types   []Type
}

// Hub broadcasts events to subscribers and keeps a bounded replay buffer.
//
// Description:
//
//	Hub implements EventSink for fan-out to live consumers such as the
//	websocket event stream. Handler panics are recovered so one failing
//	consumer cannot crash the hub or starve the others. The replay buffer
//	holds the most recent events for late subscribers.
//
// Thread Safety: Hub is safe for concurrent use.
type Hub struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription
	buffer        []Event
	bufferSize    int
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithBufferSize sets the replay buffer size.
func WithBufferSize(size int) HubOption {
	return func(h *Hub) {
		if size > 0 {
			h.bufferSize = size
		}
	}
}

// NewHub creates a new event hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		subscriptions: make(map[string]*subscription),
		bufferSize:    256,
	}

	for _, opt := range opts {
		opt(h)
	}

	h.buffer = make([]Event, 0, h.bufferSize)

	return h
}

// Subscribe registers a handler for events.
//
// Inputs:
//
//	handler - Function to call for each event.
//	types - Event types to subscribe to (none = all types).
//
// Outputs:
//
//	string - Subscription ID for unsubscribing.
func (h *Hub) Subscribe(handler Handler, types ...Type) string {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub := &subscription{
		id:      uuid.NewString(),
		handler: handler,
		types:   types,
	}

	h.subscriptions[sub.id] = sub
	return sub.id
}

// Unsubscribe removes a subscription.
//
// Outputs:
//
//	bool - True if the subscription was found and removed.
func (h *Hub) Unsubscribe(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subscriptions[id]; ok {
		delete(h.subscriptions, id)
		return true
	}
	return false
}

// Publish broadcasts an event to all matching subscribers and buffers it.
//
// Thread Safety: This method is safe for concurrent use.
func (h *Hub) Publish(event Event) {
	h.mu.Lock()
	if len(h.buffer) >= h.bufferSize {
		// Drop the oldest event.
		h.buffer = h.buffer[1:]
	}
	h.buffer = append(h.buffer, event)

	subs := make([]*subscription, 0, len(h.subscriptions))
	for _, sub := range h.subscriptions {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	for _, sub := range subs {
		if sub.matches(event.Type) {
			h.safeInvoke(sub.handler, event)
		}
	}
}

// safeInvoke invokes a handler with panic recovery.
func (h *Hub) safeInvoke(handler Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("event handler panicked",
				"event_type", event.Type,
				"event_id", event.ID,
				"panic", r,
			)
		}
	}()
	handler(event)
}

// matches reports whether the subscription wants this event type.
func (s *subscription) matches(t Type) bool {
	if len(s.types) == 0 {
		return true
	}
	for _, want := range s.types {
		if want == t {
			return true
		}
	}
	return false
}

// Recent returns a copy of the replay buffer, oldest first.
func (h *Hub) Recent() []Event {
	h.mu.RLock()
	defer h.mu.RUnlock()

	events := make([]Event, len(h.buffer))
	copy(events, h.buffer)
	return events
}

// RecentSince returns buffered events newer than the given Unix-millisecond
// timestamp.
func (h *Hub) RecentSince(since int64) []Event {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var events []Event
	for _, event := range h.buffer {
		if event.Timestamp > since {
			events = append(events, event)
		}
	}
	return events
}

// SubscriptionCount returns the number of active subscriptions.
func (h *Hub) SubscriptionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscriptions)
}

// =============================================================================
// Capture Sink (testing)
// =============================================================================

// CaptureSink records events for inspection in tests.
type CaptureSink struct {
	mu     sync.RWMutex
	events []Event
}

// NewCaptureSink creates a new capturing sink.
func NewCaptureSink() *CaptureSink {
	return &CaptureSink{events: make([]Event, 0)}
}

// Publish records the event.
func (c *CaptureSink) Publish(event Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

// EventCount returns the number of recorded events.
func (c *CaptureSink) EventCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.events)
}

// Events returns all recorded events.
func (c *CaptureSink) Events() []Event {
	c.mu.RLock()
	defer c.mu.RUnlock()

	events := make([]Event, len(c.events))
	copy(events, c.events)
	return events
}

// ByType returns recorded events of a specific type.
func (c *CaptureSink) ByType(t Type) []Event {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var events []Event
	for _, event := range c.events {
		if event.Type == t {
			events = append(events, event)
		}
	}
	return events
}

// Clear removes all recorded events.
func (c *CaptureSink) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = c.events[:0]
}
