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
	"strings"
	"time"
)

// Node colors for the three-color depth-first search.
const (
	colorWhite uint8 = iota // not visited
	colorGray               // on the current DFS path
	colorBlack              // fully explored
)

// deadlineCheckStride bounds how often the walker consults the wall clock.
const deadlineCheckStride = 64

// CycleCheckOptions tunes one DetectCycle call.
type CycleCheckOptions struct {
	// Hypothetical, when non-nil, is a candidate edge that participates in
	// the traversal as if it existed. The stored graph is never touched;
	// this answers "would inserting this edge create a cycle" and is the
	// pre-commit check behind dependency adds.
	Hypothetical *EdgeRef

	// MaxVisits caps the number of node visits. Zero means unbounded.
	MaxVisits int

	// Deadline caps wall-clock time. The zero value means unbounded.
	Deadline time.Time
}

// CycleResult is the verdict of one cycle detection pass.
type CycleResult struct {
	// HasCycle is true when a cycle was found. It is false both for a clean
	// graph and for an aborted check; callers must inspect Err to tell the
	// two apart.
	HasCycle bool

	// CyclePath is the ordered cycle, starting and ending at the same task,
	// e.g. ["A", "B", "C", "A"]. Empty when no cycle was found.
	CyclePath []string

	// Description is the readable rendering of CyclePath ("A → B → C → A").
	Description string

	// Err is ErrBudgetExhausted when the check ran out of budget before
	// reaching a verdict, nil otherwise.
	Err error
}

// DetectCycle runs a three-color DFS over the graph.
//
// # Description
//
// White nodes are unvisited, gray nodes sit on the current DFS path, black
// nodes are fully explored. An edge into a gray node is a back-edge, which
// proves a cycle; the cycle path is reconstructed from the DFS path at that
// moment. Nodes are visited in insertion order so results are
// deterministic.
//
// The optional hypothetical edge in opts joins the traversal without being
// persisted anywhere. Budget caps (visits, deadline) make the check safe
// against pathological inputs: on exhaustion the result carries
// ErrBudgetExhausted and HasCycle stays false, which mutating callers must
// treat as "cannot verify, reject".
//
// # Inputs
//
//   - g: Graph to check. Never mutated.
//   - opts: Hypothetical edge and budget caps. The zero value checks the
//     stored graph with no budget.
//
// # Outputs
//
//   - CycleResult: Verdict, cycle path, and budget error if any.
func DetectCycle(g *TaskGraph, opts CycleCheckOptions) CycleResult {
	w := &cycleWalker{
		g:         g,
		hyp:       opts.Hypothetical,
		color:     make(map[string]uint8, len(g.nodes)),
		maxVisits: opts.MaxVisits,
		deadline:  opts.Deadline,
	}
	for _, id := range g.nodeOrder {
		if w.color[id] != colorWhite {
			continue
		}
		if w.visit(id) {
			break
		}
	}
	return w.result
}

// cycleWalker carries the DFS state for one DetectCycle call.
type cycleWalker struct {
	g         *TaskGraph
	hyp       *EdgeRef
	color     map[string]uint8
	path      []string
	visits    int
	maxVisits int
	deadline  time.Time
	result    CycleResult
}

// visit explores one node. Returns true when traversal must stop (cycle
// found or budget exhausted).
func (w *cycleWalker) visit(id string) bool {
	w.visits++
	if w.overBudget() {
		w.result.Err = ErrBudgetExhausted
		return true
	}
	w.color[id] = colorGray
	w.path = append(w.path, id)

	next := w.g.adjacency[id]
	if w.hyp != nil && w.hyp.From == id {
		// The candidate edge participates in traversal only.
		next = append(append(make([]string, 0, len(next)+1), next...), w.hyp.To)
	}
	for _, succ := range next {
		switch w.color[succ] {
		case colorWhite:
			if w.visit(succ) {
				return true
			}
		case colorGray:
			w.captureCycle(succ)
			return true
		}
	}

	w.path = w.path[:len(w.path)-1]
	w.color[id] = colorBlack
	return false
}

// captureCycle records the cycle closing at target using the current path.
func (w *cycleWalker) captureCycle(target string) {
	start := 0
	for i, id := range w.path {
		if id == target {
			start = i
			break
		}
	}
	cycle := make([]string, 0, len(w.path)-start+1)
	cycle = append(cycle, w.path[start:]...)
	cycle = append(cycle, target)

	w.result.HasCycle = true
	w.result.CyclePath = cycle
	w.result.Description = strings.Join(cycle, " → ")
}

// overBudget reports whether the walk exceeded its visit or time budget.
func (w *cycleWalker) overBudget() bool {
	if w.maxVisits > 0 && w.visits > w.maxVisits {
		return true
	}
	if !w.deadline.IsZero() && w.visits%deadlineCheckStride == 0 {
		return time.Now().After(w.deadline)
	}
	return false
}
