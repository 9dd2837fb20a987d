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

// IsTaskReady reports whether taskID can run right now: the task exists,
// its status is eligible to run, and every dependency has completed. This
// recomputes from predecessor statuses rather than trusting the cached
// Ready flag, so it holds on any graph value, maintained or hand-built.
func IsTaskReady(g *TaskGraph, taskID string) bool {
	n, ok := g.nodes[taskID]
	if !ok || !n.Status.Eligible() {
		return false
	}
	for _, pred := range g.reverseAdjacency[taskID] {
		p, ok := g.nodes[pred]
		if !ok || p.Status != StatusCompleted {
			return false
		}
	}
	return true
}

// BlockingTasks returns the direct dependencies of taskID that have not
// completed, in dependency insertion order. Empty when the task has no
// dependencies or does not exist.
func BlockingTasks(g *TaskGraph, taskID string) []string {
	out := make([]string, 0)
	for _, pred := range g.reverseAdjacency[taskID] {
		p, ok := g.nodes[pred]
		if !ok || p.Status != StatusCompleted {
			out = append(out, pred)
		}
	}
	return out
}

// TasksToUnblock returns the direct dependents of completedID that become
// ready once completedID is treated as completed.
//
// # Description
//
// A dependent qualifies when its own status is still eligible to run and
// every one of its other dependencies has already completed. Dependents
// that are running, finished, or abandoned are excluded; they have
// nothing left to unblock. The check treats completedID as completed
// regardless of its stored status, so callers can ask before or after
// committing the status change.
//
// # Outputs
//
//   - []string: Qualifying dependent ids in edge insertion order. Empty
//     when completedID is unknown or nothing qualifies.
func TasksToUnblock(g *TaskGraph, completedID string) []string {
	out := make([]string, 0)
	for _, depID := range g.adjacency[completedID] {
		dep, ok := g.nodes[depID]
		if !ok || !dep.Status.Eligible() {
			continue
		}
		blocked := false
		for _, pred := range g.reverseAdjacency[depID] {
			if pred == completedID {
				continue
			}
			p, ok := g.nodes[pred]
			if !ok || p.Status != StatusCompleted {
				blocked = true
				break
			}
		}
		if !blocked {
			out = append(out, depID)
		}
	}
	return out
}
