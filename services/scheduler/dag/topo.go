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
	"sort"
)

// SortResult is the full answer of one topological sort pass.
type SortResult struct {
	// Success is false when leveling was impossible because the incomplete
	// portion of the graph contains a cycle.
	Success bool `json:"success"`

	// Order is the concatenation of Levels: a valid execution order over
	// the non-completed nodes. Empty on failure.
	Order []string `json:"order"`

	// Levels partitions Order into parallel-execution groups: every node in
	// a level has all of its incomplete dependencies in earlier levels.
	Levels [][]string `json:"levels"`

	// ReadyTasks are nodes with an eligible status and zero unmet
	// dependencies.
	ReadyTasks []string `json:"ready_tasks"`

	// BlockedTasks are the remaining non-ready, non-completed nodes.
	BlockedTasks []string `json:"blocked_tasks"`

	// CompletedTasks are nodes with status completed.
	CompletedTasks []string `json:"completed_tasks"`

	// CriticalPath is the longest dependency chain over the whole graph.
	CriticalPath []string `json:"critical_path"`

	// Err carries a CycleError ("Cycle detected: …") when Success is false.
	Err error `json:"-"`
}

// TopologicalSort computes a leveled execution order for the graph.
//
// # Description
//
// Leveled Kahn's algorithm over the non-completed nodes: the effective
// in-degree of a node counts only edges from non-completed sources; each
// round extracts every node whose effective in-degree reached zero as one
// level, then releases its outgoing edges. If nodes remain after the
// frontier empties, those nodes sit on a cycle and the sort fails with a
// CycleError naming the cycle path.
//
// The empty graph sorts successfully to empty order and levels; a single
// node yields one single-node level. Node iteration follows insertion
// order and each level is emitted in insertion order, so equal inputs
// produce equal outputs.
//
// # Inputs
//
//   - g: Graph snapshot to sort. Never mutated.
//
// # Outputs
//
//   - SortResult: Order, level partition, readiness classification,
//     critical path, and the cycle error on failure.
//
// # Limitations
//
// O(V + E) plus an O(k log k) insertion-rank sort per level. The critical
// path is computed over the whole graph, completed nodes included.
func TopologicalSort(g *TaskGraph) SortResult {
	res := SortResult{
		ReadyTasks:     make([]string, 0),
		BlockedTasks:   make([]string, 0),
		CompletedTasks: make([]string, 0),
	}
	for _, id := range g.nodeOrder {
		n := g.nodes[id]
		switch {
		case n.Status == StatusCompleted:
			res.CompletedTasks = append(res.CompletedTasks, id)
		case IsTaskReady(g, id):
			res.ReadyTasks = append(res.ReadyTasks, id)
		default:
			res.BlockedTasks = append(res.BlockedTasks, id)
		}
	}

	levels, ok := levelize(g)
	if !ok {
		cycle := DetectCycle(g, CycleCheckOptions{})
		res.Order = make([]string, 0)
		res.Err = NewCycleError(cycle.CyclePath)
		return res
	}

	res.Success = true
	res.Levels = levels
	res.Order = make([]string, 0, g.NodeCount())
	for _, level := range levels {
		res.Order = append(res.Order, level...)
	}
	res.CriticalPath = FindCriticalPath(g)
	return res
}

// FindParallelGroups partitions the non-completed nodes into groups that
// can run concurrently: level N+1 depends only on levels ≤ N. Returns an
// empty partition when the incomplete portion of the graph contains a
// cycle, since no valid leveling exists.
func FindParallelGroups(g *TaskGraph) [][]string {
	levels, ok := levelize(g)
	if !ok {
		return make([][]string, 0)
	}
	return levels
}

// levelize runs the Kahn rounds shared by TopologicalSort and
// FindParallelGroups. The boolean is false when a cycle prevents a full
// leveling of the non-completed nodes.
func levelize(g *TaskGraph) ([][]string, bool) {
	rank := make(map[string]int, len(g.nodeOrder))
	for i, id := range g.nodeOrder {
		rank[id] = i
	}

	// Effective in-degree: edges from completed sources are already
	// satisfied and do not block anything.
	eff := make(map[string]int, len(g.nodes))
	remaining := 0
	for _, id := range g.nodeOrder {
		if g.nodes[id].Status == StatusCompleted {
			continue
		}
		remaining++
		d := 0
		for _, pred := range g.reverseAdjacency[id] {
			if p, ok := g.nodes[pred]; ok && p.Status != StatusCompleted {
				d++
			}
		}
		eff[id] = d
	}

	frontier := make([]string, 0)
	for _, id := range g.nodeOrder {
		if g.nodes[id].Status != StatusCompleted && eff[id] == 0 {
			frontier = append(frontier, id)
		}
	}

	levels := make([][]string, 0)
	processed := 0
	for len(frontier) > 0 {
		levels = append(levels, frontier)
		processed += len(frontier)

		next := make([]string, 0)
		for _, id := range frontier {
			for _, succ := range g.adjacency[id] {
				s, ok := g.nodes[succ]
				if !ok || s.Status == StatusCompleted {
					continue
				}
				eff[succ]--
				if eff[succ] == 0 {
					next = append(next, succ)
				}
			}
		}
		// Discovery order depends on the previous level's layout; re-sort
		// by insertion rank to keep levels deterministic.
		sort.Slice(next, func(i, j int) bool {
			return rank[next[i]] < rank[next[j]]
		})
		frontier = next
	}

	if processed != remaining {
		return nil, false
	}
	return levels, true
}
