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
	"fmt"
	"time"

	"github.com/AleutianAI/AleutianSwarm/services/scheduler/dag"
)

// DependencyRequest names the two endpoints of a dependency.
//
// The dependent waits; the dependency must complete first. The stored edge
// runs dependency → dependent.
type DependencyRequest struct {
	DependentTaskID  string `json:"dependent_task_id" binding:"required"`
	DependencyTaskID string `json:"dependency_task_id" binding:"required"`
	Label            string `json:"label,omitempty"`
}

// DependencyResult reports the outcome of an AddDependency call.
//
// # Fields
//
//   - Success: True when the edge was committed.
//   - Edge: The committed edge on success.
//   - Version: Graph version after the commit.
//   - ErrorCode: Stable machine-readable failure code on rejection.
//   - CyclePath: The closed walk that the edge would have created, present
//     only with ErrorCode CYCLE_DETECTED.
//   - Err: The underlying error for logging; not serialized.
type DependencyResult struct {
	Success   bool                `json:"success"`
	Edge      *dag.DependencyEdge `json:"edge,omitempty"`
	Version   int64               `json:"version,omitempty"`
	ErrorCode dag.ErrorCode       `json:"error_code,omitempty"`
	CyclePath []string            `json:"cycle_path,omitempty"`
	Err       error               `json:"-"`
}

// failure builds a rejected DependencyResult.
func failure(code dag.ErrorCode, err error) DependencyResult {
	return DependencyResult{ErrorCode: code, Err: err}
}

// AddDependency validates and commits a dependency edge.
//
// # Description
//
// The checks run in a fixed order so clients see stable error codes:
//
//  1. NO_GRAPH - the channel has no cached graph (and no snapshot).
//  2. MISSING_NODE - either endpoint is absent, dependent checked first.
//  3. SELF_DEPENDENCY - both endpoints name the same task.
//  4. DUPLICATE_EDGE - the edge already exists.
//  5. CYCLE_DETECTED - the edge would close a cycle. The probe treats the
//     candidate edge as a hypothetical; the stored graph is not touched
//     until the verdict is clean.
//
// The cycle probe runs under the configured wall-clock budget. A probe that
// exhausts its budget rejects the edge (BUDGET_EXHAUSTED): an unverifiable
// mutation is never committed.
//
// # Inputs
//
//   - ctx: Context for tracing and persistence.
//   - channelID: Channel whose graph to mutate.
//   - req: Edge endpoints and optional label.
//
// # Outputs
//
//   - DependencyResult: Success with the committed edge, or the first
//     rejection in check order.
func (s *Scheduler) AddDependency(ctx context.Context, channelID string, req DependencyRequest) DependencyResult {
	if !s.cfg.Enabled {
		return DependencyResult{Success: true}
	}
	start := time.Now()
	ctx, span := startMutationSpan(ctx, "AddDependency", channelID)
	defer span.End()

	res := s.addDependency(ctx, channelID, req)

	setMutationSpanResult(span, res.Success, res.ErrorCode)
	if res.Err != nil {
		span.RecordError(res.Err)
	}
	recordMutation(ctx, "add_dependency", time.Since(start), res.Success)

	if res.Success {
		s.emit(Event{
			Type:      TypeDependencyAdded,
			ChannelID: channelID,
			Version:   res.Version,
			Data: DependencyData{
				DependentTaskID:  req.DependentTaskID,
				DependencyTaskID: req.DependencyTaskID,
				EdgeID:           res.Edge.ID,
			},
		})
	} else if s.cfg.Debug {
		s.log.Debug("dependency rejected",
			"channel_id", channelID,
			"dependent", req.DependentTaskID,
			"dependency", req.DependencyTaskID,
			"code", res.ErrorCode,
			"error", res.Err,
		)
	}
	return res
}

// addDependency runs the validation pipeline under the channel lock.
func (s *Scheduler) addDependency(ctx context.Context, channelID string, req DependencyRequest) DependencyResult {
	st, ok := s.acquire(ctx, channelID, false)
	if !ok {
		return failure(dag.CodeNoGraph, fmt.Errorf("%w for channel %q", ErrGraphNotFound, channelID))
	}
	defer st.mu.Unlock()
	g := st.graph

	dependent := req.DependentTaskID
	dependency := req.DependencyTaskID

	if !g.HasNode(dependent) {
		return failure(dag.CodeMissingNode, dag.NewNodeError(dependent, dag.ErrNodeNotFound))
	}
	if !g.HasNode(dependency) {
		return failure(dag.CodeMissingNode, dag.NewNodeError(dependency, dag.ErrNodeNotFound))
	}
	if dependent == dependency {
		return failure(dag.CodeSelfDependency, dag.NewNodeError(dependent, dag.ErrSelfDependency))
	}
	if g.HasEdge(dependency, dependent) {
		return failure(dag.CodeDuplicateEdge,
			fmt.Errorf("edge %s: %w", dag.EdgeID(dependency, dependent), dag.ErrDuplicateEdge))
	}

	probeStart := time.Now()
	probe := dag.DetectCycle(g, dag.CycleCheckOptions{
		Hypothetical: &dag.EdgeRef{From: dependency, To: dependent},
		MaxVisits:    probeVisitBudget(g),
		Deadline:     time.Now().Add(s.cfg.CycleCheckBudget()),
	})
	switch {
	case probe.Err != nil:
		// Fail closed: a probe we could not finish proves nothing.
		recordProbe(ctx, time.Since(probeStart), "budget_exhausted")
		return failure(dag.CodeBudgetExhausted, probe.Err)
	case probe.HasCycle:
		recordProbe(ctx, time.Since(probeStart), "cycle")
		res := failure(dag.CodeCycleDetected, dag.NewCycleError(probe.CyclePath))
		res.CyclePath = probe.CyclePath
		return res
	}
	recordProbe(ctx, time.Since(probeStart), "clean")

	edge, err := g.AddEdge(dependency, dependent, req.Label)
	if err != nil {
		// The pre-checks above make this unreachable, but the commit
		// primitive re-validates and we honor its verdict.
		return failure(dag.CodeForError(err), err)
	}
	s.refresh(st)
	s.persistLocked(ctx, g)
	return DependencyResult{Success: true, Edge: edge, Version: g.Version}
}

// RemoveDependency deletes a dependency edge.
//
// # Outputs
//
//   - bool: True when the edge existed and was removed. Unknown channels
//     and unknown edges are no-ops.
func (s *Scheduler) RemoveDependency(ctx context.Context, channelID string, req DependencyRequest) bool {
	if !s.cfg.Enabled {
		return false
	}
	start := time.Now()
	ctx, span := startMutationSpan(ctx, "RemoveDependency", channelID)
	defer span.End()

	st, ok := s.acquire(ctx, channelID, false)
	if !ok {
		setMutationSpanResult(span, false, dag.CodeNoGraph)
		return false
	}
	g := st.graph
	removed := g.RemoveEdge(req.DependencyTaskID, req.DependentTaskID)
	var version int64
	if removed {
		s.refresh(st)
		s.persistLocked(ctx, g)
		version = g.Version
	}
	st.mu.Unlock()

	setMutationSpanResult(span, removed, "")
	recordMutation(ctx, "remove_dependency", time.Since(start), removed)
	if removed {
		s.emit(Event{
			Type:      TypeDependencyRemoved,
			ChannelID: channelID,
			Version:   version,
			Data: DependencyData{
				DependentTaskID:  req.DependentTaskID,
				DependencyTaskID: req.DependencyTaskID,
				EdgeID:           dag.EdgeID(req.DependencyTaskID, req.DependentTaskID),
			},
		})
	}
	return removed
}

// probeVisitBudget caps probe work as a function of graph size. The
// wall-clock deadline is the operative guard; this bound only catches a
// probe that stops making progress.
func probeVisitBudget(g *dag.TaskGraph) int {
	return 2*(g.NodeCount()+g.EdgeCount()) + 16
}
