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
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/AleutianSwarm/services/scheduler/dag"
)

// =============================================================================
// Collaborator Interfaces
// =============================================================================

// Clock abstracts time for cache-expiry testing.
type Clock interface {
	Now() time.Time
}

// systemClock is the production clock.
type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SnapshotStore persists channel graphs across restarts.
//
// # Description
//
// The scheduler treats persistence as best effort: a failing store degrades
// the scheduler to memory-only operation, it never fails a mutation. Load is
// consulted on a cache miss so a restarted service can pick up where it left
// off without a rebuild from the task collaborator.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. Save is called while the
// owning channel's lock is held, so per-channel calls never overlap.
type SnapshotStore interface {
	// Save persists the graph, replacing any previous snapshot for its
	// channel.
	Save(ctx context.Context, graph *dag.TaskGraph) error

	// Load returns the stored graph for a channel. The bool reports whether
	// a snapshot existed; absence is not an error.
	Load(ctx context.Context, channelID string) (*dag.TaskGraph, bool, error)

	// Delete removes a channel's snapshot. Deleting a missing snapshot is
	// not an error.
	Delete(ctx context.Context, channelID string) error
}

// =============================================================================
// Scheduler
// =============================================================================

// channelState is one cached channel graph plus its serialization lock.
type channelState struct {
	mu        sync.Mutex
	graph     *dag.TaskGraph
	expiresAt time.Time
}

// Scheduler owns the per-channel task graphs.
//
// # Description
//
// Scheduler is the only mutation and query surface for channel DAGs. Every
// structural change for a channel happens while that channel's lock is held,
// which serializes concurrent mutations per channel; different channels
// proceed in parallel. Graphs live in an in-memory cache with a TTL that is
// refreshed on every write, and optionally round-trip through a SnapshotStore
// so a cache miss can restore the last committed state.
//
// Construct with New; the zero value is not usable.
//
// # Thread Safety
//
// All methods are safe for concurrent use.
//
// # Example
//
//	sched, err := schedule.New(schedule.DefaultConfig(),
//	    schedule.WithLogger(logger),
//	    schedule.WithEventSink(hub),
//	)
//	if err != nil {
//	    return err
//	}
//	sched.BuildDag(ctx, "chan-1", tasks)
//	order := sched.ExecutionOrder(ctx, "chan-1", schedule.OrderOptions{})
type Scheduler struct {
	cfg   Config
	log   *slog.Logger
	sink  EventSink
	store SnapshotStore
	clock Clock

	mu       sync.RWMutex
	channels map[string]*channelState

	loadGroup singleflight.Group
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(s *Scheduler) {
		if log != nil {
			s.log = log
		}
	}
}

// WithEventSink sets the event sink. Defaults to NoopSink.
func WithEventSink(sink EventSink) Option {
	return func(s *Scheduler) {
		if sink != nil {
			s.sink = sink
		}
	}
}

// WithSnapshotStore enables graph persistence. Defaults to none.
func WithSnapshotStore(store SnapshotStore) Option {
	return func(s *Scheduler) {
		s.store = store
	}
}

// WithClock overrides the time source. Defaults to the system clock.
func WithClock(clock Clock) Option {
	return func(s *Scheduler) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// New creates a Scheduler from a validated configuration.
//
// # Inputs
//
//   - cfg: Scheduler configuration. Must pass cfg.Validate().
//   - opts: Optional collaborators.
//
// # Outputs
//
//   - *Scheduler: The configured scheduler.
//   - error: Non-nil if cfg is invalid, wrapping ErrInvalidConfig.
func New(cfg Config, opts ...Option) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Scheduler{
		cfg:      cfg,
		log:      slog.Default(),
		sink:     NoopSink{},
		clock:    systemClock{},
		channels: make(map[string]*channelState),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Enabled reports whether dependency scheduling is active. When false, every
// mutation is a no-op and every query returns its permissive default.
func (s *Scheduler) Enabled() bool {
	return s.cfg.Enabled
}

// Config returns a copy of the active configuration.
func (s *Scheduler) Config() Config {
	return s.cfg
}

// =============================================================================
// Channel State Management
// =============================================================================

// acquire returns the channel state with its lock held.
//
// # Description
//
// The lookup handles three races: the entry may be replaced while we wait
// for its lock (retry against the current entry), it may have passed its
// TTL (evict, then retry as a miss), and a miss may be filled concurrently
// (the loser adopts the winner's entry). On a miss the snapshot store is
// consulted first; when create is true a miss installs an empty graph.
//
// # Outputs
//
//   - *channelState: Locked state. The caller must unlock st.mu.
//   - bool: False when the channel has no graph and create is false.
func (s *Scheduler) acquire(ctx context.Context, channelID string, create bool) (*channelState, bool) {
	for {
		s.mu.RLock()
		st, ok := s.channels[channelID]
		s.mu.RUnlock()

		if !ok {
			st, ok = s.miss(ctx, channelID, create)
			if !ok {
				return nil, false
			}
		}

		st.mu.Lock()
		if s.current(channelID) != st {
			st.mu.Unlock()
			continue
		}
		if s.clock.Now().After(st.expiresAt) {
			st.mu.Unlock()
			s.drop(ctx, channelID, st, "ttl_expired")
			continue
		}
		return st, true
	}
}

// miss fills a cache miss from the snapshot store, or with an empty graph
// when create is true.
func (s *Scheduler) miss(ctx context.Context, channelID string, create bool) (*channelState, bool) {
	if s.store != nil {
		if st := s.loadFromStore(ctx, channelID); st != nil {
			return st, true
		}
	}
	if !create {
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.channels[channelID]; ok {
		return st, true
	}
	st := &channelState{
		graph:     dag.NewTaskGraph(channelID),
		expiresAt: s.clock.Now().Add(s.cfg.CacheTTL),
	}
	s.channels[channelID] = st
	recordCached(ctx)
	return st, true
}

// loadFromStore restores a channel graph from the snapshot store.
//
// Concurrent misses for the same channel collapse into one store read.
func (s *Scheduler) loadFromStore(ctx context.Context, channelID string) *channelState {
	v, err, _ := s.loadGroup.Do(channelID, func() (any, error) {
		s.mu.RLock()
		st, ok := s.channels[channelID]
		s.mu.RUnlock()
		if ok {
			return st, nil
		}

		g, found, err := s.store.Load(ctx, channelID)
		if err != nil || !found {
			return nil, err
		}

		st = &channelState{
			graph:     g,
			expiresAt: s.clock.Now().Add(s.cfg.CacheTTL),
		}
		s.mu.Lock()
		if cur, ok := s.channels[channelID]; ok {
			st = cur
		} else {
			s.channels[channelID] = st
			recordCached(ctx)
		}
		s.mu.Unlock()
		s.log.Debug("restored channel graph from snapshot",
			"channel_id", channelID,
			"version", g.Version,
		)
		return st, nil
	})
	if err != nil {
		s.log.Warn("snapshot load failed",
			"channel_id", channelID,
			"error", err,
		)
		return nil
	}
	if v == nil {
		return nil
	}
	return v.(*channelState)
}

// current returns the channel's present cache entry, if any.
func (s *Scheduler) current(channelID string) *channelState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.channels[channelID]
}

// drop evicts a specific cache entry. The identity check makes eviction a
// no-op when the entry was already replaced.
func (s *Scheduler) drop(ctx context.Context, channelID string, st *channelState, reason string) bool {
	s.mu.Lock()
	cur, ok := s.channels[channelID]
	if !ok || cur != st {
		s.mu.Unlock()
		return false
	}
	delete(s.channels, channelID)
	s.mu.Unlock()

	recordEviction(ctx, reason, 1)
	s.emit(Event{
		Type:      TypeCacheEvicted,
		ChannelID: channelID,
		Data:      EvictionData{Reason: reason},
	})
	return true
}

// refresh extends the entry's TTL after a committed write. Caller holds
// st.mu.
func (s *Scheduler) refresh(st *channelState) {
	st.expiresAt = s.clock.Now().Add(s.cfg.CacheTTL)
}

// persistLocked saves the channel graph best-effort. Caller holds st.mu,
// which keeps per-channel saves ordered.
func (s *Scheduler) persistLocked(ctx context.Context, g *dag.TaskGraph) {
	if s.store == nil {
		return
	}
	if err := s.store.Save(ctx, g); err != nil {
		s.log.Warn("snapshot save failed",
			"channel_id", g.ChannelID,
			"version", g.Version,
			"error", err,
		)
	}
}

// emit stamps and publishes an event, honoring the EmitEvents switch.
func (s *Scheduler) emit(event Event) {
	if !s.cfg.EmitEvents {
		return
	}
	event.ID = uuid.NewString()
	event.Timestamp = s.clock.Now().UnixMilli()
	s.sink.Publish(event)
}

// =============================================================================
// Graph Construction
// =============================================================================

// BuildDag rebuilds a channel's graph from a flat task list.
//
// # Description
//
// The previous cached graph for the channel, if any, is replaced wholesale
// and the TTL restarts. Declared dependencies that point outside the task
// list are ignored, so callers may pass a filtered subset of a channel's
// tasks. The rebuilt graph starts at version 1.
//
// # Inputs
//
//   - ctx: Context for tracing and persistence.
//   - channelID: Channel whose graph to rebuild.
//   - tasks: Task descriptors, typically from the task collaborator.
//
// # Outputs
//
//   - *dag.TaskGraph: A snapshot of the rebuilt graph, or nil when the
//     scheduler is disabled.
func (s *Scheduler) BuildDag(ctx context.Context, channelID string, tasks []dag.TaskDescriptor) *dag.TaskGraph {
	if !s.cfg.Enabled {
		return nil
	}
	start := time.Now()
	ctx, span := startMutationSpan(ctx, "BuildDag", channelID)
	defer span.End()

	st, _ := s.acquire(ctx, channelID, true)
	g := dag.BuildGraph(channelID, tasks)
	st.graph = g
	s.refresh(st)
	s.persistLocked(ctx, g)
	snap := g.Snapshot()
	st.mu.Unlock()

	setMutationSpanResult(span, true, "")
	recordMutation(ctx, "build_dag", time.Since(start), true)
	s.emit(Event{
		Type:      TypeDagBuilt,
		ChannelID: channelID,
		Version:   snap.Version,
		Data: BuildDagData{
			NodeCount: snap.NodeCount(),
			EdgeCount: snap.EdgeCount(),
		},
	})
	if s.cfg.Debug {
		s.log.Debug("dag built",
			"channel_id", channelID,
			"nodes", snap.NodeCount(),
			"edges", snap.EdgeCount(),
		)
	}
	return snap
}

// AddTask inserts a single task into a channel's graph.
//
// # Description
//
// The channel graph is created lazily if the channel has none yet. Declared
// dependencies that are not present as nodes are ignored, matching BuildDag.
// Adding a task that already exists is a no-op. A fresh node has no outgoing
// edges, so the ignored-dependency rule keeps this operation cycle-safe
// without a probe.
func (s *Scheduler) AddTask(ctx context.Context, channelID string, task dag.TaskDescriptor) {
	if !s.cfg.Enabled {
		return
	}
	start := time.Now()
	ctx, span := startMutationSpan(ctx, "AddTask", channelID)
	defer span.End()

	st, _ := s.acquire(ctx, channelID, true)
	g := st.graph
	node, err := g.AddNode(task.ID, task.Status)
	if err != nil {
		st.mu.Unlock()
		setMutationSpanResult(span, false, "")
		recordMutation(ctx, "add_task", time.Since(start), false)
		if s.cfg.Debug {
			s.log.Debug("add task skipped",
				"channel_id", channelID,
				"task_id", task.ID,
				"reason", err,
			)
		}
		return
	}
	for _, dep := range task.DependsOn {
		if dep == task.ID || !g.HasNode(dep) || g.HasEdge(dep, task.ID) {
			continue
		}
		_, _ = g.AddEdge(dep, task.ID, "")
	}
	s.refresh(st)
	s.persistLocked(ctx, g)
	status := node.Status
	version := g.Version
	st.mu.Unlock()

	setMutationSpanResult(span, true, "")
	recordMutation(ctx, "add_task", time.Since(start), true)
	s.emit(Event{
		Type:      TypeTaskAdded,
		ChannelID: channelID,
		Version:   version,
		Data:      TaskData{TaskID: task.ID, Status: status},
	})
}

// RemoveTask deletes a task and its incident edges from a channel's graph.
//
// # Outputs
//
//   - bool: True when the task existed and was removed. Removing from an
//     unknown channel or an unknown task is a no-op.
func (s *Scheduler) RemoveTask(ctx context.Context, channelID, taskID string) bool {
	if !s.cfg.Enabled {
		return false
	}
	start := time.Now()
	ctx, span := startMutationSpan(ctx, "RemoveTask", channelID)
	defer span.End()

	st, ok := s.acquire(ctx, channelID, false)
	if !ok {
		setMutationSpanResult(span, false, dag.CodeNoGraph)
		return false
	}
	g := st.graph
	removed := g.RemoveNode(taskID)
	var version int64
	if removed {
		s.refresh(st)
		s.persistLocked(ctx, g)
		version = g.Version
	}
	st.mu.Unlock()

	setMutationSpanResult(span, removed, "")
	recordMutation(ctx, "remove_task", time.Since(start), removed)
	if removed {
		s.emit(Event{
			Type:      TypeTaskRemoved,
			ChannelID: channelID,
			Version:   version,
			Data:      TaskData{TaskID: taskID},
		})
	}
	return removed
}

// UpdateTaskStatus applies a task status change and propagates readiness.
//
// # Description
//
// Status updates race with task deletion and channel eviction in normal
// operation, so unknown channels, unknown tasks, and invalid statuses are
// silent no-ops rather than errors. When the update completes a task, the
// dependents it unblocks are reported through a tasks.unblocked event.
//
// With EnforceOnStatusChange set, a transition to in_progress is rejected
// while the task still has incomplete dependencies.
func (s *Scheduler) UpdateTaskStatus(ctx context.Context, channelID, taskID string, status dag.Status) {
	if !s.cfg.Enabled {
		return
	}
	start := time.Now()
	ctx, span := startMutationSpan(ctx, "UpdateTaskStatus", channelID)
	defer span.End()

	st, ok := s.acquire(ctx, channelID, false)
	if !ok {
		setMutationSpanResult(span, false, dag.CodeNoGraph)
		return
	}
	g := st.graph

	node, exists := g.Node(taskID)
	if !exists || !status.Valid() {
		st.mu.Unlock()
		setMutationSpanResult(span, false, "")
		if s.cfg.Debug {
			s.log.Debug("status update ignored",
				"channel_id", channelID,
				"task_id", taskID,
				"status", status,
			)
		}
		return
	}
	prev := node.Status

	if s.cfg.EnforceOnStatusChange && status == dag.StatusInProgress && !dag.IsTaskReady(g, taskID) {
		blocking := dag.BlockingTasks(g, taskID)
		st.mu.Unlock()
		setMutationSpanResult(span, false, "")
		recordMutation(ctx, "update_status", time.Since(start), false)
		s.log.Warn("status update rejected: task has incomplete dependencies",
			"channel_id", channelID,
			"task_id", taskID,
			"status", status,
			"blocking", blocking,
		)
		return
	}

	unblocked, applied := g.SetStatus(taskID, status)
	var version int64
	if applied {
		s.refresh(st)
		s.persistLocked(ctx, g)
		version = g.Version
	}
	st.mu.Unlock()

	setMutationSpanResult(span, applied, "")
	recordMutation(ctx, "update_status", time.Since(start), applied)
	if !applied {
		return
	}
	s.emit(Event{
		Type:      TypeStatusChanged,
		ChannelID: channelID,
		Version:   version,
		Data:      StatusChangeData{TaskID: taskID, From: prev, To: status},
	})
	if len(unblocked) > 0 {
		s.emit(Event{
			Type:      TypeTasksUnblocked,
			ChannelID: channelID,
			Version:   version,
			Data:      UnblockedData{CompletedTaskID: taskID, Unblocked: unblocked},
		})
	}
}
