// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package dag implements the dependency graph at the core of the swarm
// scheduler: a per-channel directed acyclic graph of "must complete before"
// relationships between tasks, plus the pure algorithms that answer
// scheduling queries over it (cycle detection, leveled topological sort,
// critical path, readiness).
//
// The package holds no global state. A TaskGraph is a plain value owned by
// its caller; the algorithm entry points never mutate the graph they are
// given. Concurrency control lives one layer up, in the schedule package.
package dag

import (
	"time"
)

// Status is the lifecycle state of a task as reported by the task
// management collaborator.
type Status string

const (
	// StatusPending indicates the task has not been claimed by any agent.
	StatusPending Status = "pending"

	// StatusAssigned indicates the task has an agent but work has not started.
	StatusAssigned Status = "assigned"

	// StatusInProgress indicates the task is actively being worked.
	StatusInProgress Status = "in_progress"

	// StatusCompleted indicates the task finished successfully.
	StatusCompleted Status = "completed"

	// StatusFailed indicates the task finished unsuccessfully.
	StatusFailed Status = "failed"

	// StatusCancelled indicates the task was abandoned before completion.
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is one of the known task statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAssigned, StatusInProgress,
		StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Eligible reports whether a task in this status is still waiting to run.
// Only eligible tasks can ever be "ready": a task that is already running,
// finished, or abandoned has nothing left to schedule.
func (s Status) Eligible() bool {
	return s == StatusPending || s == StatusAssigned
}

// normalizeStatus maps unknown or empty statuses to pending so that graph
// construction from caller-supplied descriptors always succeeds.
func normalizeStatus(s Status) Status {
	if !s.Valid() {
		return StatusPending
	}
	return s
}

// TaskDescriptor is the consumed interface from the task management
// collaborator: the id, status, and declared dependency list of one task.
// All other task fields (title, assignee, priority, metadata) are opaque to
// the scheduler and never reach this package.
type TaskDescriptor struct {
	ID        string   `json:"id" yaml:"id"`
	Status    Status   `json:"status" yaml:"status"`
	DependsOn []string `json:"dependsOn" yaml:"dependsOn"`
}

// TaskNode is one task as known to a channel's graph.
//
// # Description
//
// TaskNode carries only what scheduling needs: identity, status, degree
// counters, and the derived readiness flag. Degree counters are maintained
// incrementally on every edge mutation and always equal the true edge
// counts; Ready is recomputed whenever an incident edge or a predecessor
// status changes.
//
// # Thread Safety
//
// Not safe for concurrent mutation. The owning TaskGraph must be guarded by
// the schedule layer's per-channel lock.
type TaskNode struct {
	// TaskID is the opaque stable identifier, unique within a channel.
	TaskID string `json:"task_id"`

	// Status is the task's current lifecycle state.
	Status Status `json:"status"`

	// InDegree is the number of incoming dependency edges.
	InDegree int `json:"in_degree"`

	// OutDegree is the number of outgoing dependency edges.
	OutDegree int `json:"out_degree"`

	// Ready is true iff Status is eligible to run and every dependency has
	// completed. A node with zero dependencies and an eligible status is
	// ready by definition.
	Ready bool `json:"ready"`

	// AddedAt is when the node entered the graph.
	AddedAt time.Time `json:"added_at"`

	// UpdatedAt is when the node's status, degrees, or readiness last changed.
	UpdatedAt time.Time `json:"updated_at"`
}

// DependencyEdge is a directed edge From → To meaning "From must complete
// before To starts".
type DependencyEdge struct {
	// ID is derived deterministically from the ordered endpoint pair and is
	// used for existence and duplicate checks.
	ID string `json:"id"`

	// From is the dependency task (must complete first).
	From string `json:"from"`

	// To is the dependent task (waits for From).
	To string `json:"to"`

	// Label is an optional caller-supplied annotation.
	Label string `json:"label,omitempty"`

	// CreatedAt is when the edge was committed.
	CreatedAt time.Time `json:"created_at"`
}

// EdgeRef names a candidate edge by its endpoints. It is the value parameter
// used for hypothetical-edge cycle checks; it never touches a stored graph.
type EdgeRef struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// EdgeID returns the deterministic identifier for the ordered pair
// from → to. Two calls with the same pair always agree, which is what makes
// duplicate-edge detection a map lookup.
func EdgeID(from, to string) string {
	return from + "->" + to
}

// TaskGraph is the aggregate root: one dependency graph per channel.
//
// # Description
//
// The graph owns a single edge set (edges, keyed by EdgeID) and maintains
// two derived index structures, adjacency (task -> ordered direct
// dependents) and reverseAdjacency (task -> ordered direct dependencies),
// rebuilt incrementally on every mutation. A task's dependsOn list is not
// stored anywhere; DependsOn computes it from the reverse index, which
// removes one synchronization hazard.
//
// Insertion order is preserved for nodes, edges, and both index slices, so
// every traversal in this package is deterministic.
//
// # Thread Safety
//
// Not safe for concurrent use. The schedule layer serializes all mutations
// per channel and hands queries an immutable Snapshot.
type TaskGraph struct {
	// ChannelID is the logical workspace this graph belongs to.
	ChannelID string

	// Version increases monotonically on every structural or status
	// mutation. Callers use it for optimistic-concurrency checks and cache
	// invalidation; a full rebuild resets it to 1.
	Version int64

	// CreatedAt is when the graph was built.
	CreatedAt time.Time

	// UpdatedAt is when the graph last changed.
	UpdatedAt time.Time

	nodes     map[string]*TaskNode
	nodeOrder []string

	edges     map[string]*DependencyEdge
	edgeOrder []string

	// adjacency maps task id → direct dependents, in edge insertion order.
	adjacency map[string][]string

	// reverseAdjacency maps task id → direct dependencies, in edge
	// insertion order.
	reverseAdjacency map[string][]string
}

// NewTaskGraph creates an empty graph for a channel at version 1.
func NewTaskGraph(channelID string) *TaskGraph {
	now := time.Now()
	return &TaskGraph{
		ChannelID:        channelID,
		Version:          1,
		CreatedAt:        now,
		UpdatedAt:        now,
		nodes:            make(map[string]*TaskNode),
		edges:            make(map[string]*DependencyEdge),
		adjacency:        make(map[string][]string),
		reverseAdjacency: make(map[string][]string),
	}
}

// Node returns the node for taskID.
func (g *TaskGraph) Node(taskID string) (*TaskNode, bool) {
	n, ok := g.nodes[taskID]
	return n, ok
}

// HasNode reports whether taskID exists in the graph.
func (g *TaskGraph) HasNode(taskID string) bool {
	_, ok := g.nodes[taskID]
	return ok
}

// NodeCount returns the number of nodes.
func (g *TaskGraph) NodeCount() int {
	return len(g.nodes)
}

// TaskIDs returns all task ids in insertion order.
func (g *TaskGraph) TaskIDs() []string {
	ids := make([]string, len(g.nodeOrder))
	copy(ids, g.nodeOrder)
	return ids
}

// Nodes returns all nodes in insertion order.
func (g *TaskGraph) Nodes() []*TaskNode {
	out := make([]*TaskNode, 0, len(g.nodeOrder))
	for _, id := range g.nodeOrder {
		out = append(out, g.nodes[id])
	}
	return out
}

// Edge returns the edge from → to.
func (g *TaskGraph) Edge(from, to string) (*DependencyEdge, bool) {
	e, ok := g.edges[EdgeID(from, to)]
	return e, ok
}

// HasEdge reports whether the edge from → to exists.
func (g *TaskGraph) HasEdge(from, to string) bool {
	_, ok := g.edges[EdgeID(from, to)]
	return ok
}

// EdgeCount returns the number of edges.
func (g *TaskGraph) EdgeCount() int {
	return len(g.edges)
}

// Edges returns all edges in insertion order.
func (g *TaskGraph) Edges() []*DependencyEdge {
	out := make([]*DependencyEdge, 0, len(g.edgeOrder))
	for _, id := range g.edgeOrder {
		out = append(out, g.edges[id])
	}
	return out
}

// DependsOn returns the task ids taskID is blocked by, in the order the
// dependencies were added. The result is a copy; mutating it does not
// affect the graph.
func (g *TaskGraph) DependsOn(taskID string) []string {
	deps := g.reverseAdjacency[taskID]
	out := make([]string, len(deps))
	copy(out, deps)
	return out
}

// Dependents returns the task ids directly blocked by taskID, in edge
// insertion order. The result is a copy.
func (g *TaskGraph) Dependents(taskID string) []string {
	deps := g.adjacency[taskID]
	out := make([]string, len(deps))
	copy(out, deps)
	return out
}

// Snapshot returns a deep copy of the graph. Queries run against snapshots
// so they never observe a torn state while a mutation is in flight.
func (g *TaskGraph) Snapshot() *TaskGraph {
	cp := &TaskGraph{
		ChannelID:        g.ChannelID,
		Version:          g.Version,
		CreatedAt:        g.CreatedAt,
		UpdatedAt:        g.UpdatedAt,
		nodes:            make(map[string]*TaskNode, len(g.nodes)),
		nodeOrder:        make([]string, len(g.nodeOrder)),
		edges:            make(map[string]*DependencyEdge, len(g.edges)),
		edgeOrder:        make([]string, len(g.edgeOrder)),
		adjacency:        make(map[string][]string, len(g.adjacency)),
		reverseAdjacency: make(map[string][]string, len(g.reverseAdjacency)),
	}
	copy(cp.nodeOrder, g.nodeOrder)
	copy(cp.edgeOrder, g.edgeOrder)
	for id, n := range g.nodes {
		nc := *n
		cp.nodes[id] = &nc
	}
	for id, e := range g.edges {
		ec := *e
		cp.edges[id] = &ec
	}
	for id, deps := range g.adjacency {
		dc := make([]string, len(deps))
		copy(dc, deps)
		cp.adjacency[id] = dc
	}
	for id, deps := range g.reverseAdjacency {
		dc := make([]string, len(deps))
		copy(dc, deps)
		cp.reverseAdjacency[id] = dc
	}
	return cp
}
