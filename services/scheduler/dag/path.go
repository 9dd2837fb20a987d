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

// FindCriticalPath returns the longest dependency chain in the graph.
//
// # Description
//
// Dynamic programming over a full-graph topological order:
// longest[v] = 1 + max(longest[u]) over v's predecessors, with predecessor
// pointers for path reconstruction. Strict-greater updates plus
// insertion-rank iteration mean ties resolve to the first-discovered path,
// so equal graphs always report the same chain.
//
// Completed nodes participate: the critical path describes the shape of
// the whole dependency structure, not just its unfinished part.
//
// # Outputs
//
//   - []string: Task ids along the longest chain, dependency first. Empty
//     for an empty graph and for a cyclic one; a single node yields a
//     one-element path.
func FindCriticalPath(g *TaskGraph) []string {
	if g.NodeCount() == 0 {
		return make([]string, 0)
	}

	order, ok := fullTopoOrder(g)
	if !ok {
		// Invariants forbid cycles in committed graphs; bail out rather
		// than loop if handed a corrupt value.
		return make([]string, 0)
	}

	longest := make(map[string]int, len(order))
	prev := make(map[string]string, len(order))
	for _, id := range order {
		longest[id] = 1
	}
	for _, id := range order {
		for _, succ := range g.adjacency[id] {
			if longest[id]+1 > longest[succ] {
				longest[succ] = longest[id] + 1
				prev[succ] = id
			}
		}
	}

	end := ""
	best := 0
	for _, id := range order {
		if longest[id] > best {
			best = longest[id]
			end = id
		}
	}

	path := make([]string, 0, best)
	for cur := end; cur != ""; {
		path = append(path, cur)
		next, ok := prev[cur]
		if !ok {
			break
		}
		cur = next
	}
	// Reconstruction walked dependent → dependency; flip it.
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// fullTopoOrder runs plain Kahn over every node regardless of status,
// iterating by insertion rank for determinism. The boolean is false when
// the graph contains a cycle.
func fullTopoOrder(g *TaskGraph) ([]string, bool) {
	rank := make(map[string]int, len(g.nodeOrder))
	for i, id := range g.nodeOrder {
		rank[id] = i
	}

	indeg := make(map[string]int, len(g.nodes))
	frontier := make([]string, 0)
	for _, id := range g.nodeOrder {
		indeg[id] = len(g.reverseAdjacency[id])
		if indeg[id] == 0 {
			frontier = append(frontier, id)
		}
	}

	order := make([]string, 0, len(g.nodes))
	for len(frontier) > 0 {
		order = append(order, frontier...)
		next := make([]string, 0)
		for _, id := range frontier {
			for _, succ := range g.adjacency[id] {
				indeg[succ]--
				if indeg[succ] == 0 {
					next = append(next, succ)
				}
			}
		}
		sort.Slice(next, func(i, j int) bool {
			return rank[next[i]] < rank[next[j]]
		})
		frontier = next
	}

	if len(order) != len(g.nodes) {
		return nil, false
	}
	return order, true
}
