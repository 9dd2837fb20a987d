// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package dag

import (
	"fmt"
	"time"
)

// BuildGraph constructs a graph wholesale from a flat task list.
//
// # Description
//
// Creates one node per descriptor (first occurrence wins on duplicate ids,
// unknown statuses normalize to pending), then adds an edge dependency →
// task for every declared dependency that refers to another task in the
// supplied list. Declared dependencies that are missing from the list,
// self-referential, or already present as edges are silently skipped: the
// caller may hand us a partial task set and that is not an error.
//
// By construction the result is acyclic; readiness is correct for the
// final degree and status data because every edge insertion refreshes its
// target. Version is reset to 1 regardless of how many internal mutations
// construction performed.
//
// # Inputs
//
//   - channelID: Logical workspace the graph belongs to.
//   - tasks: Task descriptors from the task management collaborator.
//
// # Outputs
//
//   - *TaskGraph: The built graph. Never nil.
func BuildGraph(channelID string, tasks []TaskDescriptor) *TaskGraph {
	g := NewTaskGraph(channelID)
	for _, t := range tasks {
		if t.ID == "" || g.HasNode(t.ID) {
			continue
		}
		_, _ = g.AddNode(t.ID, t.Status)
	}
	for _, t := range tasks {
		for _, dep := range t.DependsOn {
			if dep == t.ID || !g.HasNode(dep) || !g.HasNode(t.ID) {
				continue
			}
			if g.HasEdge(dep, t.ID) {
				continue
			}
			_, _ = g.AddEdge(dep, t.ID, "")
		}
	}
	g.Version = 1
	return g
}

// AddNode inserts a new task into the graph.
//
// # Inputs
//
//   - taskID: Unique task identifier. Must be non-empty.
//   - status: Initial status; unknown values normalize to pending.
//
// # Outputs
//
//   - *TaskNode: The inserted node.
//   - error: ErrEmptyTaskID or ErrDuplicateNode (wrapped in a NodeError).
func (g *TaskGraph) AddNode(taskID string, status Status) (*TaskNode, error) {
	if taskID == "" {
		return nil, ErrEmptyTaskID
	}
	if g.HasNode(taskID) {
		return nil, NewNodeError(taskID, ErrDuplicateNode)
	}
	now := time.Now()
	n := &TaskNode{
		TaskID:    taskID,
		Status:    normalizeStatus(status),
		AddedAt:   now,
		UpdatedAt: now,
	}
	g.nodes[taskID] = n
	g.nodeOrder = append(g.nodeOrder, taskID)
	g.refreshReady(n, now)
	g.touch(now)
	return n, nil
}

// AddEdge commits the dependency edge from → to.
//
// # Description
//
// This is the low-level commit primitive: it checks endpoint existence,
// self-reference, and duplication, but NOT acyclicity. Callers that accept
// edges from outside (the schedule layer) must run the hypothetical-edge
// cycle check first and only commit on a clean verdict. BuildGraph skips
// the check deliberately: a rebuild always succeeds, and a cycle declared
// in the input surfaces through ValidateGraph or the sort rather than as a
// construction failure.
//
// # Inputs
//
//   - from: Dependency task id (must complete first).
//   - to: Dependent task id (waits for from).
//   - label: Optional annotation stored on the edge.
//
// # Outputs
//
//   - *DependencyEdge: The committed edge.
//   - error: NodeError{ErrNodeNotFound}, ErrSelfDependency, or
//     ErrDuplicateEdge. The graph is unchanged on error.
func (g *TaskGraph) AddEdge(from, to, label string) (*DependencyEdge, error) {
	fromNode, ok := g.nodes[from]
	if !ok {
		return nil, NewNodeError(from, ErrNodeNotFound)
	}
	toNode, ok := g.nodes[to]
	if !ok {
		return nil, NewNodeError(to, ErrNodeNotFound)
	}
	if from == to {
		return nil, NewNodeError(from, ErrSelfDependency)
	}
	id := EdgeID(from, to)
	if _, exists := g.edges[id]; exists {
		return nil, fmt.Errorf("edge %s: %w", id, ErrDuplicateEdge)
	}

	now := time.Now()
	e := &DependencyEdge{
		ID:        id,
		From:      from,
		To:        to,
		Label:     label,
		CreatedAt: now,
	}
	g.edges[id] = e
	g.edgeOrder = append(g.edgeOrder, id)
	g.adjacency[from] = append(g.adjacency[from], to)
	g.reverseAdjacency[to] = append(g.reverseAdjacency[to], from)
	fromNode.OutDegree++
	fromNode.UpdatedAt = now
	toNode.InDegree++
	toNode.UpdatedAt = now
	g.refreshReady(toNode, now)
	g.touch(now)
	return e, nil
}

// RemoveEdge deletes the dependency edge from → to.
//
// # Outputs
//
//   - bool: False when the edge does not exist (no-op), true when removed.
//     Removal refreshes the dependent's readiness, which may flip to true
//     if no other incomplete predecessors remain.
func (g *TaskGraph) RemoveEdge(from, to string) bool {
	e, ok := g.edges[EdgeID(from, to)]
	if !ok {
		return false
	}
	now := time.Now()
	g.removeEdgeLocked(e, now)
	g.touch(now)
	return true
}

// RemoveNode deletes a task and every edge touching it in both directions.
//
// # Outputs
//
//   - bool: False when the task does not exist (no-op), true when removed.
//     Neighbor degrees, index slices, and readiness are all adjusted.
func (g *TaskGraph) RemoveNode(taskID string) bool {
	if !g.HasNode(taskID) {
		return false
	}
	now := time.Now()

	// Copies: removeEdgeLocked mutates the underlying index slices.
	for _, dependent := range g.Dependents(taskID) {
		if e, ok := g.edges[EdgeID(taskID, dependent)]; ok {
			g.removeEdgeLocked(e, now)
		}
	}
	for _, dependency := range g.DependsOn(taskID) {
		if e, ok := g.edges[EdgeID(dependency, taskID)]; ok {
			g.removeEdgeLocked(e, now)
		}
	}

	delete(g.nodes, taskID)
	delete(g.adjacency, taskID)
	delete(g.reverseAdjacency, taskID)
	g.nodeOrder = removeString(g.nodeOrder, taskID)
	g.touch(now)
	return true
}

// SetStatus updates a task's status and propagates readiness.
//
// # Description
//
// Absence and invalid statuses are silent no-ops (ok=false): status
// updates race with task deletion in normal operation and must never
// fail the caller. When the transition moves a task into or out of
// completed, every direct dependent's readiness is recomputed so the
// readiness invariant holds after the mutation, not just on the next
// rebuild.
//
// # Outputs
//
//   - []string: Dependent task ids whose readiness flipped to true (the
//     tasks this change unblocked), in edge insertion order.
//   - bool: True when the status was applied.
func (g *TaskGraph) SetStatus(taskID string, status Status) ([]string, bool) {
	n, ok := g.nodes[taskID]
	if !ok || !status.Valid() {
		return nil, false
	}
	prev := n.Status
	now := time.Now()
	n.Status = status
	n.UpdatedAt = now
	g.refreshReady(n, now)

	var unblocked []string
	if prev == StatusCompleted || status == StatusCompleted {
		for _, depID := range g.adjacency[taskID] {
			dep := g.nodes[depID]
			wasReady := dep.Ready
			g.refreshReady(dep, now)
			if !wasReady && dep.Ready {
				unblocked = append(unblocked, depID)
			}
		}
	}
	g.touch(now)
	return unblocked, true
}

// touch records a committed mutation.
func (g *TaskGraph) touch(now time.Time) {
	g.Version++
	g.UpdatedAt = now
}

// refreshReady recomputes one node's readiness from its status and its
// predecessors' statuses.
func (g *TaskGraph) refreshReady(n *TaskNode, now time.Time) {
	ready := n.Status.Eligible()
	if ready {
		for _, pred := range g.reverseAdjacency[n.TaskID] {
			p, ok := g.nodes[pred]
			if !ok || p.Status != StatusCompleted {
				ready = false
				break
			}
		}
	}
	if n.Ready != ready {
		n.Ready = ready
		n.UpdatedAt = now
	}
}

// removeEdgeLocked unwires one edge from every view: the edge map, its
// insertion-order slice, both index slices, and the endpoint degrees.
func (g *TaskGraph) removeEdgeLocked(e *DependencyEdge, now time.Time) {
	delete(g.edges, e.ID)
	g.edgeOrder = removeString(g.edgeOrder, e.ID)
	g.adjacency[e.From] = removeString(g.adjacency[e.From], e.To)
	if len(g.adjacency[e.From]) == 0 {
		delete(g.adjacency, e.From)
	}
	g.reverseAdjacency[e.To] = removeString(g.reverseAdjacency[e.To], e.From)
	if len(g.reverseAdjacency[e.To]) == 0 {
		delete(g.reverseAdjacency, e.To)
	}
	if n, ok := g.nodes[e.From]; ok {
		n.OutDegree--
		n.UpdatedAt = now
	}
	if n, ok := g.nodes[e.To]; ok {
		n.InDegree--
		n.UpdatedAt = now
		g.refreshReady(n, now)
	}
}

// removeString deletes the first occurrence of v, preserving order.
func removeString(s []string, v string) []string {
	for i, cur := range s {
		if cur == v {
			return append(s[:i], s[i+1:]...)
		}
	}
	return s
}
