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
	"errors"
	"testing"
)

// task builds a descriptor for test graphs.
func task(id string, status Status, deps ...string) TaskDescriptor {
	return TaskDescriptor{ID: id, Status: status, DependsOn: deps}
}

// chainGraph builds A ← B ← C (B depends on A, C depends on A and B).
func chainGraph() *TaskGraph {
	return BuildGraph("chan-1", []TaskDescriptor{
		task("A", StatusPending),
		task("B", StatusPending, "A"),
		task("C", StatusPending, "A", "B"),
	})
}

// diamondGraph builds A → B, A → C, B → D, C → D.
func diamondGraph() *TaskGraph {
	return BuildGraph("chan-1", []TaskDescriptor{
		task("A", StatusPending),
		task("B", StatusPending, "A"),
		task("C", StatusPending, "A"),
		task("D", StatusPending, "B", "C"),
	})
}

// assertEqualIDs fails unless got matches want element for element.
func assertEqualIDs(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestBuildGraph_ChainScenario(t *testing.T) {
	g := chainGraph()

	if got := g.NodeCount(); got != 3 {
		t.Fatalf("NodeCount = %d, want 3", got)
	}
	if got := g.EdgeCount(); got != 3 {
		t.Fatalf("EdgeCount = %d, want 3", got)
	}
	if g.Version != 1 {
		t.Errorf("Version = %d, want 1 after build", g.Version)
	}

	a, _ := g.Node("A")
	b, _ := g.Node("B")
	c, _ := g.Node("C")
	if !a.Ready {
		t.Error("A should be ready (no dependencies)")
	}
	if b.Ready {
		t.Error("B should not be ready (A incomplete)")
	}
	if c.Ready {
		t.Error("C should not be ready (A and B incomplete)")
	}
	assertEqualIDs(t, g.DependsOn("C"), []string{"A", "B"})
	assertEqualIDs(t, g.Dependents("A"), []string{"B", "C"})
}

func TestBuildGraph_IgnoresMissingDependencies(t *testing.T) {
	g := BuildGraph("chan-1", []TaskDescriptor{
		task("A", StatusPending, "ghost"),
		task("B", StatusPending, "A", "also-missing"),
	})

	if got := g.EdgeCount(); got != 1 {
		t.Fatalf("EdgeCount = %d, want 1 (missing deps skipped)", got)
	}
	if !g.HasEdge("A", "B") {
		t.Error("edge A->B should exist")
	}
	a, _ := g.Node("A")
	if a.InDegree != 0 || !a.Ready {
		t.Errorf("A InDegree=%d Ready=%v, want 0/true", a.InDegree, a.Ready)
	}
}

func TestBuildGraph_SkipsDuplicatesAndSelfRefs(t *testing.T) {
	g := BuildGraph("chan-1", []TaskDescriptor{
		task("A", StatusPending),
		task("A", StatusCompleted), // duplicate id: first wins
		task("B", StatusPending, "A", "A", "B"),
	})

	if got := g.NodeCount(); got != 2 {
		t.Fatalf("NodeCount = %d, want 2", got)
	}
	a, _ := g.Node("A")
	if a.Status != StatusPending {
		t.Errorf("A status = %q, want first occurrence to win", a.Status)
	}
	if got := g.EdgeCount(); got != 1 {
		t.Fatalf("EdgeCount = %d, want 1 (dup dep and self-ref skipped)", got)
	}
}

func TestBuildGraph_NormalizesUnknownStatus(t *testing.T) {
	g := BuildGraph("chan-1", []TaskDescriptor{
		task("A", Status("bogus")),
		task("B", Status("")),
	})
	a, _ := g.Node("A")
	b, _ := g.Node("B")
	if a.Status != StatusPending || b.Status != StatusPending {
		t.Errorf("statuses = %q/%q, want pending/pending", a.Status, b.Status)
	}
}

func TestBuildGraph_IdempotentRebuild(t *testing.T) {
	tasks := []TaskDescriptor{
		task("A", StatusPending),
		task("B", StatusInProgress, "A"),
		task("C", StatusPending, "B"),
	}
	g1 := BuildGraph("chan-1", tasks)
	// Mutate between builds; the rebuild must not care.
	g1.RemoveEdge("A", "B")
	g2 := BuildGraph("chan-1", tasks)

	assertEqualIDs(t, g2.TaskIDs(), []string{"A", "B", "C"})
	if g2.EdgeCount() != 2 {
		t.Fatalf("EdgeCount = %d, want 2", g2.EdgeCount())
	}
	if g2.Version != 1 {
		t.Errorf("Version = %d, want reset to 1", g2.Version)
	}
}

func TestAddNode_EmptyID(t *testing.T) {
	g := NewTaskGraph("chan-1")
	if _, err := g.AddNode("", StatusPending); !errors.Is(err, ErrEmptyTaskID) {
		t.Errorf("empty id: got %v, want ErrEmptyTaskID", err)
	}
}

func TestAddNode_Duplicate(t *testing.T) {
	g := NewTaskGraph("chan-1")
	if _, err := g.AddNode("A", StatusPending); err != nil {
		t.Fatalf("AddNode: %v", err)
	}
	_, err := g.AddNode("A", StatusPending)
	if !errors.Is(err, ErrDuplicateNode) {
		t.Errorf("duplicate: got %v, want ErrDuplicateNode", err)
	}
	var nodeErr *NodeError
	if !errors.As(err, &nodeErr) || nodeErr.TaskID != "A" {
		t.Errorf("expected NodeError naming A, got %v", err)
	}
}

func TestAddEdge_ValidationErrors(t *testing.T) {
	g := NewTaskGraph("chan-1")
	g.AddNode("A", StatusPending)
	g.AddNode("B", StatusPending)
	g.AddEdge("A", "B", "")

	tests := []struct {
		name string
		from string
		to   string
		want error
	}{
		{"missing from", "ghost", "B", ErrNodeNotFound},
		{"missing to", "A", "ghost", ErrNodeNotFound},
		{"self loop", "A", "A", ErrSelfDependency},
		{"duplicate", "A", "B", ErrDuplicateEdge},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			before := g.Version
			_, err := g.AddEdge(tc.from, tc.to, "")
			if !errors.Is(err, tc.want) {
				t.Errorf("got %v, want %v", err, tc.want)
			}
			if g.Version != before {
				t.Error("failed AddEdge must not bump the version")
			}
		})
	}
}

func TestAddEdge_UpdatesDegreesAndReadiness(t *testing.T) {
	g := NewTaskGraph("chan-1")
	g.AddNode("A", StatusPending)
	g.AddNode("B", StatusPending)

	b, _ := g.Node("B")
	if !b.Ready {
		t.Fatal("B should start ready")
	}
	if _, err := g.AddEdge("A", "B", "blocks"); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}

	a, _ := g.Node("A")
	if a.OutDegree != 1 || b.InDegree != 1 {
		t.Errorf("degrees out=%d in=%d, want 1/1", a.OutDegree, b.InDegree)
	}
	if b.Ready {
		t.Error("B should lose readiness behind incomplete A")
	}
	e, ok := g.Edge("A", "B")
	if !ok || e.Label != "blocks" || e.ID != EdgeID("A", "B") {
		t.Errorf("edge = %+v, want label and deterministic id", e)
	}
}

func TestRemoveEdge_RestoresReadiness(t *testing.T) {
	g := chainGraph()
	if !g.RemoveEdge("A", "B") {
		t.Fatal("RemoveEdge should report true for existing edge")
	}
	if g.RemoveEdge("A", "B") {
		t.Error("second RemoveEdge should be a no-op false")
	}

	b, _ := g.Node("B")
	if b.InDegree != 0 {
		t.Errorf("B.InDegree = %d, want 0", b.InDegree)
	}
	assertEqualIDs(t, g.DependsOn("B"), []string{})
	if !b.Ready {
		t.Error("B should become ready with its only dependency removed")
	}

	// C still depends on A and B; B is not completed, so C stays blocked.
	if IsTaskReady(g, "C") {
		t.Error("C must stay blocked behind B")
	}
}

func TestRemoveNode_DetachesBothDirections(t *testing.T) {
	g := diamondGraph()
	if !g.RemoveNode("B") {
		t.Fatal("RemoveNode should report true")
	}
	if g.RemoveNode("B") {
		t.Error("second RemoveNode should be a no-op false")
	}

	if g.HasEdge("A", "B") || g.HasEdge("B", "D") {
		t.Error("edges touching B must be gone")
	}
	a, _ := g.Node("A")
	d, _ := g.Node("D")
	if a.OutDegree != 1 {
		t.Errorf("A.OutDegree = %d, want 1", a.OutDegree)
	}
	if d.InDegree != 1 {
		t.Errorf("D.InDegree = %d, want 1", d.InDegree)
	}
	assertEqualIDs(t, g.DependsOn("D"), []string{"C"})
	assertEqualIDs(t, g.TaskIDs(), []string{"A", "C", "D"})
}

func TestSetStatus_PropagatesOnCompletion(t *testing.T) {
	g := chainGraph()

	unblocked, ok := g.SetStatus("A", StatusCompleted)
	if !ok {
		t.Fatal("SetStatus should apply")
	}
	assertEqualIDs(t, unblocked, []string{"B"})

	b, _ := g.Node("B")
	c, _ := g.Node("C")
	if !b.Ready {
		t.Error("B should be ready once A completes")
	}
	if c.Ready {
		t.Error("C should stay blocked behind B")
	}

	unblocked, _ = g.SetStatus("B", StatusCompleted)
	assertEqualIDs(t, unblocked, []string{"C"})
}

func TestSetStatus_UncompleteRevokesReadiness(t *testing.T) {
	g := chainGraph()
	g.SetStatus("A", StatusCompleted)
	if !IsTaskReady(g, "B") {
		t.Fatal("B should be ready")
	}

	// Reopening A must revoke B's readiness immediately.
	if _, ok := g.SetStatus("A", StatusInProgress); !ok {
		t.Fatal("SetStatus should apply")
	}
	b, _ := g.Node("B")
	if b.Ready {
		t.Error("B must lose readiness when A is reopened")
	}
}

func TestSetStatus_NoopOnAbsentOrInvalid(t *testing.T) {
	g := chainGraph()
	if _, ok := g.SetStatus("ghost", StatusCompleted); ok {
		t.Error("unknown task must be a no-op")
	}
	before := g.Version
	if _, ok := g.SetStatus("A", Status("nonsense")); ok {
		t.Error("invalid status must be a no-op")
	}
	if g.Version != before {
		t.Error("no-op must not bump the version")
	}
}

func TestDegreeConsistency_AfterMutationSequence(t *testing.T) {
	g := diamondGraph()
	g.AddNode("E", StatusPending)
	g.AddEdge("D", "E", "")
	g.RemoveEdge("A", "C")
	g.AddEdge("C", "E", "")
	g.RemoveNode("B")
	g.SetStatus("A", StatusCompleted)

	for _, n := range g.Nodes() {
		deps := g.DependsOn(n.TaskID)
		dependents := g.Dependents(n.TaskID)
		if n.InDegree != len(deps) {
			t.Errorf("%s: InDegree=%d but %d dependencies", n.TaskID, n.InDegree, len(deps))
		}
		if n.OutDegree != len(dependents) {
			t.Errorf("%s: OutDegree=%d but %d dependents", n.TaskID, n.OutDegree, len(dependents))
		}
		if got := IsTaskReady(g, n.TaskID); got != n.Ready {
			t.Errorf("%s: cached Ready=%v but recomputed %v", n.TaskID, n.Ready, got)
		}
	}
}

func TestVersion_MonotonicAcrossMutations(t *testing.T) {
	g := NewTaskGraph("chan-1")
	last := g.Version
	step := func(name string) {
		t.Helper()
		if g.Version <= last {
			t.Fatalf("%s: version %d did not increase past %d", name, g.Version, last)
		}
		last = g.Version
	}

	g.AddNode("A", StatusPending)
	step("AddNode A")
	g.AddNode("B", StatusPending)
	step("AddNode B")
	g.AddEdge("A", "B", "")
	step("AddEdge")
	g.SetStatus("A", StatusCompleted)
	step("SetStatus")
	g.RemoveEdge("A", "B")
	step("RemoveEdge")
	g.RemoveNode("B")
	step("RemoveNode")
}

func TestSnapshot_IsolatedFromMutations(t *testing.T) {
	g := chainGraph()
	snap := g.Snapshot()

	g.SetStatus("A", StatusCompleted)
	g.RemoveNode("C")

	if snap.NodeCount() != 3 {
		t.Errorf("snapshot NodeCount = %d, want 3", snap.NodeCount())
	}
	a, _ := snap.Node("A")
	if a.Status != StatusPending {
		t.Errorf("snapshot A status = %q, want pending", a.Status)
	}
	if !snap.HasEdge("B", "C") {
		t.Error("snapshot should keep edge B->C")
	}
}
