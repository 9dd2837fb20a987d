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
	"testing"
)

func TestFindCriticalPath_Chain(t *testing.T) {
	assertEqualIDs(t, FindCriticalPath(chainGraph()), []string{"A", "B", "C"})
}

func TestFindCriticalPath_DiamondTieBreak(t *testing.T) {
	path := FindCriticalPath(diamondGraph())
	if len(path) != 3 {
		t.Fatalf("path = %v, want length 3", path)
	}
	// Both A,B,D and A,C,D are longest; first-discovered wins and B was
	// inserted before C.
	assertEqualIDs(t, path, []string{"A", "B", "D"})
}

func TestFindCriticalPath_PicksLongerBranch(t *testing.T) {
	g := BuildGraph("chan-1", []TaskDescriptor{
		task("A", StatusPending),
		task("B", StatusPending, "A"),
		task("C", StatusPending, "A"),
		task("D", StatusPending, "C"),
		task("E", StatusPending, "D"),
	})
	assertEqualIDs(t, FindCriticalPath(g), []string{"A", "C", "D", "E"})
}

func TestFindCriticalPath_DisconnectedComponents(t *testing.T) {
	g := BuildGraph("chan-1", []TaskDescriptor{
		task("A", StatusPending),
		task("B", StatusPending, "A"),
		task("X", StatusPending),
		task("Y", StatusPending, "X"),
		task("Z", StatusPending, "Y"),
	})
	assertEqualIDs(t, FindCriticalPath(g), []string{"X", "Y", "Z"})
}

func TestFindCriticalPath_IncludesCompletedNodes(t *testing.T) {
	g := chainGraph()
	g.SetStatus("A", StatusCompleted)
	// The path describes the structure, not the remaining work.
	assertEqualIDs(t, FindCriticalPath(g), []string{"A", "B", "C"})
}

func TestFindCriticalPath_EmptyAndSingle(t *testing.T) {
	if got := FindCriticalPath(NewTaskGraph("chan-1")); len(got) != 0 {
		t.Errorf("empty graph path = %v, want empty", got)
	}
	g := BuildGraph("chan-1", []TaskDescriptor{task("solo", StatusPending)})
	assertEqualIDs(t, FindCriticalPath(g), []string{"solo"})
}

func TestFindCriticalPath_NoEdges(t *testing.T) {
	g := BuildGraph("chan-1", []TaskDescriptor{
		task("A", StatusPending),
		task("B", StatusPending),
		task("C", StatusPending),
	})
	// All chains have length 1; the first node wins deterministically.
	assertEqualIDs(t, FindCriticalPath(g), []string{"A"})
}
