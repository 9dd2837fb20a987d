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
	"sort"
	"strings"

	"github.com/AleutianAI/AleutianSwarm/services/scheduler/dag"
)

// Queries are fail-open: a disabled scheduler or an unknown channel yields
// the permissive default (ready, unblocked, empty, valid) instead of an
// error. The scheduler only constrains execution for graphs it knows about.
//
// Queries compute on an isolated snapshot taken under the channel lock, so
// they never observe a half-applied mutation and never block one for longer
// than the copy. Reads do not extend a graph's TTL.

// ReadySort selects the ready-task sort key.
type ReadySort string

const (
	// SortByAddedAt orders by node insertion time, oldest first.
	SortByAddedAt ReadySort = "added_at"

	// SortByTaskID orders lexicographically by task id.
	SortByTaskID ReadySort = "task_id"
)

// SortDirection selects ascending or descending order.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// ReadyOptions filters and shapes a ReadyTasks query.
//
// # Fields
//
//   - TaskIDs: Restrict the query to these tasks. Empty means all tasks.
//   - Limit: Page size. Zero uses the configured default; values above the
//     configured maximum are clamped.
//   - SortBy: Sort key, default SortByAddedAt.
//   - Direction: Sort direction, default SortAsc.
type ReadyOptions struct {
	TaskIDs   []string      `json:"task_ids,omitempty"`
	Limit     int           `json:"limit,omitempty"`
	SortBy    ReadySort     `json:"sort_by,omitempty"`
	Direction SortDirection `json:"direction,omitempty"`
}

// OrderOptions shapes an ExecutionOrder query.
//
// # Fields
//
//   - IncludeCompleted: Prepend already-completed tasks, in their insertion
//     order, ahead of the pending order.
//   - ReadyOnly: Keep only tasks that are ready right now. Completed tasks
//     requested via IncludeCompleted are kept.
//   - Statuses: Keep only tasks in one of these statuses. Empty keeps all.
type OrderOptions struct {
	IncludeCompleted bool         `json:"include_completed,omitempty"`
	ReadyOnly        bool         `json:"ready_only,omitempty"`
	Statuses         []dag.Status `json:"statuses,omitempty"`
}

// snapshot returns an isolated copy of the channel graph.
func (s *Scheduler) snapshot(ctx context.Context, channelID string) (*dag.TaskGraph, bool) {
	st, ok := s.acquire(ctx, channelID, false)
	if !ok {
		return nil, false
	}
	snap := st.graph.Snapshot()
	st.mu.Unlock()
	return snap, true
}

// IsTaskReady reports whether a task has no incomplete dependencies.
//
// # Description
//
// Fail open: an unknown channel or a task the graph has never seen yields
// true, because the scheduler has no recorded reason to hold the task back.
// For known tasks the answer is recomputed from predecessor statuses.
func (s *Scheduler) IsTaskReady(ctx context.Context, channelID, taskID string) bool {
	if !s.cfg.Enabled {
		return true
	}
	recordQuery(ctx, "is_task_ready")
	snap, ok := s.snapshot(ctx, channelID)
	if !ok {
		return true
	}
	if !snap.HasNode(taskID) {
		return true
	}
	return dag.IsTaskReady(snap, taskID)
}

// BlockingTasks returns the incomplete dependencies holding a task back.
//
// The slice is empty (never nil) for unknown channels, unknown tasks, and
// unblocked tasks.
func (s *Scheduler) BlockingTasks(ctx context.Context, channelID, taskID string) []string {
	if !s.cfg.Enabled {
		return []string{}
	}
	recordQuery(ctx, "blocking_tasks")
	snap, ok := s.snapshot(ctx, channelID)
	if !ok {
		return []string{}
	}
	return dag.BlockingTasks(snap, taskID)
}

// ReadyTasks returns the tasks that can start right now.
//
// # Inputs
//
//   - ctx: Context for metrics.
//   - channelID: Channel to query.
//   - opts: Filtering, sorting, and paging. See ReadyOptions.
//
// # Outputs
//
//   - []*dag.TaskNode: Ready task nodes from an isolated snapshot; safe to
//     retain. Empty (never nil) when the channel is unknown.
func (s *Scheduler) ReadyTasks(ctx context.Context, channelID string, opts ReadyOptions) []*dag.TaskNode {
	if !s.cfg.Enabled {
		return []*dag.TaskNode{}
	}
	recordQuery(ctx, "ready_tasks")
	snap, ok := s.snapshot(ctx, channelID)
	if !ok {
		return []*dag.TaskNode{}
	}

	var filter map[string]bool
	if len(opts.TaskIDs) > 0 {
		filter = make(map[string]bool, len(opts.TaskIDs))
		for _, id := range opts.TaskIDs {
			filter[id] = true
		}
	}

	ready := make([]*dag.TaskNode, 0)
	for _, n := range snap.Nodes() {
		if filter != nil && !filter[n.TaskID] {
			continue
		}
		if !n.Ready {
			continue
		}
		ready = append(ready, n)
	}

	sortReady(ready, opts.SortBy, opts.Direction)

	limit := opts.Limit
	if limit <= 0 {
		limit = s.cfg.ReadyTasksDefaultLimit
	}
	if limit > s.cfg.ReadyTasksMaxLimit {
		limit = s.cfg.ReadyTasksMaxLimit
	}
	if len(ready) > limit {
		ready = ready[:limit]
	}
	return ready
}

// sortReady orders ready nodes by the requested key. Ties break by task id
// so the order is deterministic.
func sortReady(nodes []*dag.TaskNode, by ReadySort, dir SortDirection) {
	compare := func(a, b *dag.TaskNode) int {
		switch by {
		case SortByTaskID:
			return strings.Compare(a.TaskID, b.TaskID)
		default:
			if a.AddedAt.Before(b.AddedAt) {
				return -1
			}
			if a.AddedAt.After(b.AddedAt) {
				return 1
			}
			return strings.Compare(a.TaskID, b.TaskID)
		}
	}
	sort.SliceStable(nodes, func(i, j int) bool {
		c := compare(nodes[i], nodes[j])
		if dir == SortDesc {
			return c > 0
		}
		return c < 0
	})
}

// ExecutionOrder returns a dependency-respecting task order.
//
// # Description
//
// The base order covers non-completed tasks; completed work is treated as
// already scheduled. A committed graph is acyclic by construction, so a
// sort failure indicates internal corruption; it is logged and an empty
// order returned rather than surfaced to the caller.
func (s *Scheduler) ExecutionOrder(ctx context.Context, channelID string, opts OrderOptions) []string {
	if !s.cfg.Enabled {
		return []string{}
	}
	recordQuery(ctx, "execution_order")
	snap, ok := s.snapshot(ctx, channelID)
	if !ok {
		return []string{}
	}

	res := dag.TopologicalSort(snap)
	if !res.Success {
		s.log.Warn("execution order unavailable: cached graph failed to sort",
			"channel_id", channelID,
			"error", res.Err,
		)
		return []string{}
	}

	order := make([]string, 0, len(res.CompletedTasks)+len(res.Order))
	if opts.IncludeCompleted {
		order = append(order, res.CompletedTasks...)
	}
	order = append(order, res.Order...)

	if opts.ReadyOnly {
		ready := stringSet(res.ReadyTasks)
		completed := stringSet(res.CompletedTasks)
		kept := make([]string, 0, len(order))
		for _, id := range order {
			if ready[id] || (opts.IncludeCompleted && completed[id]) {
				kept = append(kept, id)
			}
		}
		order = kept
	}

	if len(opts.Statuses) > 0 {
		want := make(map[dag.Status]bool, len(opts.Statuses))
		for _, status := range opts.Statuses {
			want[status] = true
		}
		kept := make([]string, 0, len(order))
		for _, id := range order {
			if n, ok := snap.Node(id); ok && want[n.Status] {
				kept = append(kept, id)
			}
		}
		order = kept
	}
	return order
}

// ParallelGroups returns batches of tasks that can run concurrently, in
// dependency level order. Completed tasks are excluded.
func (s *Scheduler) ParallelGroups(ctx context.Context, channelID string) [][]string {
	if !s.cfg.Enabled {
		return [][]string{}
	}
	recordQuery(ctx, "parallel_groups")
	snap, ok := s.snapshot(ctx, channelID)
	if !ok {
		return [][]string{}
	}
	return dag.FindParallelGroups(snap)
}

// CriticalPath returns the longest dependency chain through the graph.
func (s *Scheduler) CriticalPath(ctx context.Context, channelID string) []string {
	if !s.cfg.Enabled {
		return []string{}
	}
	recordQuery(ctx, "critical_path")
	snap, ok := s.snapshot(ctx, channelID)
	if !ok {
		return []string{}
	}
	return dag.FindCriticalPath(snap)
}

// ValidateDag checks a channel's graph for structural errors and hygiene
// warnings using the configured thresholds.
//
// An unknown channel validates clean: there is nothing to object to.
func (s *Scheduler) ValidateDag(ctx context.Context, channelID string) dag.ValidationReport {
	if !s.cfg.Enabled {
		return permissiveReport()
	}
	recordQuery(ctx, "validate_dag")
	snap, ok := s.snapshot(ctx, channelID)
	if !ok {
		return permissiveReport()
	}
	return dag.ValidateGraph(snap, s.cfg.ValidationPolicy())
}

// permissiveReport is the validation verdict for an absent graph.
func permissiveReport() dag.ValidationReport {
	return dag.ValidationReport{
		IsValid:  true,
		Errors:   []dag.ValidationIssue{},
		Warnings: []dag.ValidationIssue{},
	}
}

// DagStats returns size, shape, and readiness counters for a channel.
func (s *Scheduler) DagStats(ctx context.Context, channelID string) dag.Stats {
	if !s.cfg.Enabled {
		return dag.Stats{}
	}
	recordQuery(ctx, "dag_stats")
	snap, ok := s.snapshot(ctx, channelID)
	if !ok {
		return dag.Stats{}
	}
	return dag.ComputeStats(snap)
}

// GetDag returns an isolated snapshot of a channel's graph, or nil when the
// channel has none.
func (s *Scheduler) GetDag(ctx context.Context, channelID string) *dag.TaskGraph {
	if !s.cfg.Enabled {
		return nil
	}
	recordQuery(ctx, "get_dag")
	snap, ok := s.snapshot(ctx, channelID)
	if !ok {
		return nil
	}
	return snap
}

// Channels returns the ids of the channels currently cached, sorted.
func (s *Scheduler) Channels() []string {
	s.mu.RLock()
	ids := make([]string, 0, len(s.channels))
	for id := range s.channels {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// stringSet builds a membership set from a slice.
func stringSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
