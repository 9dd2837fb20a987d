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

// Stats summarizes the shape and scheduling state of one graph.
type Stats struct {
	// NodeCount and EdgeCount size the graph.
	NodeCount int `json:"node_count"`
	EdgeCount int `json:"edge_count"`

	// RootCount is the number of nodes with no dependencies.
	RootCount int `json:"root_count"`

	// LeafCount is the number of nodes nothing depends on.
	LeafCount int `json:"leaf_count"`

	// MaxDepth is the node count of the critical path.
	MaxDepth int `json:"max_depth"`

	// AvgInDegree and AvgOutDegree are simple means over all nodes; both
	// are 0 for an empty graph, never NaN.
	AvgInDegree  float64 `json:"avg_in_degree"`
	AvgOutDegree float64 `json:"avg_out_degree"`

	// ReadyTaskCount, BlockedTaskCount, and CompletedTaskCount classify
	// every node the same way TopologicalSort does.
	ReadyTaskCount     int `json:"ready_task_count"`
	BlockedTaskCount   int `json:"blocked_task_count"`
	CompletedTaskCount int `json:"completed_task_count"`
}

// ComputeStats derives summary statistics for the graph.
//
// # Description
//
// Roots have in-degree zero, leaves out-degree zero; max depth is the
// critical path length in nodes. Ready, blocked, and completed counts use
// the same classification as TopologicalSort: completed by status, ready by
// IsTaskReady, everything else blocked.
func ComputeStats(g *TaskGraph) Stats {
	s := Stats{
		NodeCount: g.NodeCount(),
		EdgeCount: g.EdgeCount(),
	}
	if s.NodeCount == 0 {
		return s
	}

	for _, id := range g.nodeOrder {
		n := g.nodes[id]
		if n.InDegree == 0 {
			s.RootCount++
		}
		if n.OutDegree == 0 {
			s.LeafCount++
		}
		switch {
		case n.Status == StatusCompleted:
			s.CompletedTaskCount++
		case IsTaskReady(g, id):
			s.ReadyTaskCount++
		default:
			s.BlockedTaskCount++
		}
	}

	s.MaxDepth = len(FindCriticalPath(g))
	s.AvgInDegree = float64(s.EdgeCount) / float64(s.NodeCount)
	s.AvgOutDegree = float64(s.EdgeCount) / float64(s.NodeCount)
	return s
}
