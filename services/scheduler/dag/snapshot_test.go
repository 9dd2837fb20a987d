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
	"bytes"
	"encoding/json"
	"errors"
	"testing"
)

func TestSnapshotRoundTrip_PreservesStructure(t *testing.T) {
	g := diamondGraph()
	g.SetStatus("A", StatusCompleted)
	g.AddEdge("A", "D", "shortcut")

	data, err := g.MarshalSnapshot()
	if err != nil {
		t.Fatalf("MarshalSnapshot: %v", err)
	}

	restored, err := UnmarshalSnapshot(data)
	if err != nil {
		t.Fatalf("UnmarshalSnapshot: %v", err)
	}

	if restored.ChannelID != g.ChannelID {
		t.Errorf("ChannelID = %q, want %q", restored.ChannelID, g.ChannelID)
	}
	if restored.Version != g.Version {
		t.Errorf("Version = %d, want %d", restored.Version, g.Version)
	}
	assertEqualIDs(t, restored.TaskIDs(), g.TaskIDs())
	if restored.EdgeCount() != g.EdgeCount() {
		t.Fatalf("EdgeCount = %d, want %d", restored.EdgeCount(), g.EdgeCount())
	}
	e, ok := restored.Edge("A", "D")
	if !ok || e.Label != "shortcut" {
		t.Errorf("edge A->D = %+v, want label preserved", e)
	}

	// Degrees and readiness are rebuilt, not read from the payload.
	for _, id := range g.TaskIDs() {
		want, _ := g.Node(id)
		got, _ := restored.Node(id)
		if got.InDegree != want.InDegree || got.OutDegree != want.OutDegree {
			t.Errorf("%s degrees = %d/%d, want %d/%d",
				id, got.InDegree, got.OutDegree, want.InDegree, want.OutDegree)
		}
		if got.Ready != want.Ready {
			t.Errorf("%s Ready = %v, want %v", id, got.Ready, want.Ready)
		}
		if got.Status != want.Status {
			t.Errorf("%s Status = %q, want %q", id, got.Status, want.Status)
		}
	}
}

func TestUnmarshalSnapshot_RejectsTamperedPayload(t *testing.T) {
	g := chainGraph()
	data, err := g.MarshalSnapshot()
	if err != nil {
		t.Fatalf("MarshalSnapshot: %v", err)
	}

	tampered := bytes.Replace(data, []byte(`"chan-1"`), []byte(`"chan-X"`), 1)
	if bytes.Equal(tampered, data) {
		t.Fatal("tampering failed to change the payload")
	}

	_, err = UnmarshalSnapshot(tampered)
	if !errors.Is(err, ErrSnapshotCorrupt) {
		t.Errorf("got %v, want ErrSnapshotCorrupt", err)
	}
}

func TestUnmarshalSnapshot_RejectsVersionMismatch(t *testing.T) {
	g := chainGraph()
	data, err := g.MarshalSnapshot()
	if err != nil {
		t.Fatalf("MarshalSnapshot: %v", err)
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	envelope["format_version"] = json.RawMessage(`"0.9.0"`)
	patched, err := json.Marshal(envelope)
	if err != nil {
		t.Fatalf("re-marshal envelope: %v", err)
	}

	_, err = UnmarshalSnapshot(patched)
	if !errors.Is(err, ErrSnapshotVersionMismatch) {
		t.Errorf("got %v, want ErrSnapshotVersionMismatch", err)
	}
}

func TestUnmarshalSnapshot_RejectsGarbage(t *testing.T) {
	if _, err := UnmarshalSnapshot([]byte("not json")); err == nil {
		t.Error("garbage must not parse")
	}
	if _, err := UnmarshalSnapshot([]byte(`{}`)); !errors.Is(err, ErrSnapshotCorrupt) {
		t.Error("missing state must report corruption")
	}
}

func TestUnmarshalSnapshot_SkipsInvalidEdges(t *testing.T) {
	g := chainGraph()
	data, err := g.MarshalSnapshot()
	if err != nil {
		t.Fatalf("MarshalSnapshot: %v", err)
	}

	// Rewrite the envelope with a self-loop and a dangling edge spliced in,
	// rebuilding the checksum so only edge filtering is under test.
	var envelope serializedGraph
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	envelope.State.Edges = append(envelope.State.Edges,
		snapshotEdge{From: "A", To: "A"},
		snapshotEdge{From: "ghost", To: "B"},
	)
	checksum, err := computeSnapshotChecksum(envelope.State, envelope.FormatVersion, envelope.SavedAt)
	if err != nil {
		t.Fatalf("checksum: %v", err)
	}
	envelope.Checksum = checksum
	patched, err := json.Marshal(&envelope)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	restored, err := UnmarshalSnapshot(patched)
	if err != nil {
		t.Fatalf("UnmarshalSnapshot: %v", err)
	}
	if restored.EdgeCount() != g.EdgeCount() {
		t.Errorf("EdgeCount = %d, want %d (invalid edges skipped)",
			restored.EdgeCount(), g.EdgeCount())
	}
}
