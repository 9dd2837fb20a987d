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
)

// ValidationPolicy holds the advisory thresholds for graph warnings. Zero
// values disable the corresponding check.
type ValidationPolicy struct {
	// MaxInDegree warns on nodes with more dependencies than this.
	MaxInDegree int

	// MaxOutDegree warns on nodes blocking more dependents than this.
	MaxOutDegree int

	// MaxChainLength warns when the critical path exceeds this many nodes.
	MaxChainLength int
}

// ValidationIssue is one finding from graph validation.
type ValidationIssue struct {
	// Code is the stable issue code (fatal error or warning).
	Code ErrorCode `json:"code"`

	// TaskID names the offending task, when the issue is node-scoped.
	TaskID string `json:"task_id,omitempty"`

	// EdgeID names the offending edge, when the issue is edge-scoped.
	EdgeID string `json:"edge_id,omitempty"`

	// Message is the human-readable description.
	Message string `json:"message"`
}

// ValidationReport is the full verdict of ValidateGraph.
type ValidationReport struct {
	// IsValid is true when no fatal errors were found. Warnings alone do
	// not invalidate a graph.
	IsValid bool `json:"is_valid"`

	// Errors are fatal structural findings: CYCLE_DETECTED, MISSING_NODE,
	// DUPLICATE_EDGE, SELF_DEPENDENCY.
	Errors []ValidationIssue `json:"errors"`

	// Warnings are advisory findings: HIGH_IN_DEGREE, HIGH_OUT_DEGREE,
	// LONG_CHAIN, ORPHANED_NODE.
	Warnings []ValidationIssue `json:"warnings"`

	// Stats summarizes the graph that was validated.
	Stats Stats `json:"stats"`
}

// ValidateGraph checks structural integrity and advisory thresholds.
//
// # Description
//
// Fatal checks re-verify what the mutation API already guarantees
// (endpoints exist, no self-loops, no duplicate ordered pairs, no cycles),
// so a report with errors means an invariant was violated upstream, not a
// normal operational state. Warnings apply the policy thresholds: wide
// fan-in/fan-out, overly long chains, and orphaned nodes (no edges at all,
// only flagged when the graph has more than one node).
//
// # Inputs
//
//   - g: Graph snapshot to validate. Never mutated.
//   - policy: Advisory thresholds; zero values disable individual checks.
//
// # Outputs
//
//   - ValidationReport: Errors, warnings, and graph statistics.
func ValidateGraph(g *TaskGraph, policy ValidationPolicy) ValidationReport {
	report := ValidationReport{
		Errors:   make([]ValidationIssue, 0),
		Warnings: make([]ValidationIssue, 0),
	}

	seen := make(map[string]bool, len(g.edgeOrder))
	for _, e := range g.Edges() {
		if !g.HasNode(e.From) {
			report.Errors = append(report.Errors, ValidationIssue{
				Code:    CodeMissingNode,
				TaskID:  e.From,
				EdgeID:  e.ID,
				Message: fmt.Sprintf("edge %s references missing task %q", e.ID, e.From),
			})
		}
		if !g.HasNode(e.To) {
			report.Errors = append(report.Errors, ValidationIssue{
				Code:    CodeMissingNode,
				TaskID:  e.To,
				EdgeID:  e.ID,
				Message: fmt.Sprintf("edge %s references missing task %q", e.ID, e.To),
			})
		}
		if e.From == e.To {
			report.Errors = append(report.Errors, ValidationIssue{
				Code:    CodeSelfDependency,
				TaskID:  e.From,
				EdgeID:  e.ID,
				Message: fmt.Sprintf("task %q depends on itself", e.From),
			})
		}
		pair := EdgeID(e.From, e.To)
		if seen[pair] {
			report.Errors = append(report.Errors, ValidationIssue{
				Code:    CodeDuplicateEdge,
				EdgeID:  e.ID,
				Message: fmt.Sprintf("duplicate edge %s", pair),
			})
		}
		seen[pair] = true
	}

	if cycle := DetectCycle(g, CycleCheckOptions{}); cycle.HasCycle {
		report.Errors = append(report.Errors, ValidationIssue{
			Code:    CodeCycleDetected,
			Message: "Cycle detected: " + cycle.Description,
		})
	}

	for _, n := range g.Nodes() {
		if policy.MaxInDegree > 0 && n.InDegree > policy.MaxInDegree {
			report.Warnings = append(report.Warnings, ValidationIssue{
				Code:   WarnHighInDegree,
				TaskID: n.TaskID,
				Message: fmt.Sprintf("task %q has %d dependencies (threshold %d)",
					n.TaskID, n.InDegree, policy.MaxInDegree),
			})
		}
		if policy.MaxOutDegree > 0 && n.OutDegree > policy.MaxOutDegree {
			report.Warnings = append(report.Warnings, ValidationIssue{
				Code:   WarnHighOutDegree,
				TaskID: n.TaskID,
				Message: fmt.Sprintf("task %q blocks %d dependents (threshold %d)",
					n.TaskID, n.OutDegree, policy.MaxOutDegree),
			})
		}
		if g.NodeCount() > 1 && n.InDegree == 0 && n.OutDegree == 0 {
			report.Warnings = append(report.Warnings, ValidationIssue{
				Code:    WarnOrphanedNode,
				TaskID:  n.TaskID,
				Message: fmt.Sprintf("task %q has no dependency relationships", n.TaskID),
			})
		}
	}

	report.Stats = ComputeStats(g)
	if policy.MaxChainLength > 0 && report.Stats.MaxDepth > policy.MaxChainLength {
		report.Warnings = append(report.Warnings, ValidationIssue{
			Code: WarnLongChain,
			Message: fmt.Sprintf("critical path spans %d tasks (threshold %d)",
				report.Stats.MaxDepth, policy.MaxChainLength),
		})
	}

	report.IsValid = len(report.Errors) == 0
	return report
}
