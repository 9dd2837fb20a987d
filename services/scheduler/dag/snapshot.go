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
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// SnapshotFormatVersion is the current serialized graph format version.
const SnapshotFormatVersion = "1.0.0"

// snapshotNode is the serializable form of one node. Degrees and readiness
// are derived state and deliberately not persisted; they are rebuilt from
// the edge list on load so the snapshot has a single source of truth.
type snapshotNode struct {
	TaskID    string    `json:"task_id"`
	Status    Status    `json:"status"`
	AddedAt   time.Time `json:"added_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// snapshotEdge is the serializable form of one edge.
type snapshotEdge struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	Label     string    `json:"label,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// graphState is the JSON-serializable copy of a TaskGraph used for
// checksumming. Node and edge slices preserve insertion order.
type graphState struct {
	ChannelID string         `json:"channel_id"`
	Version   int64          `json:"version"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	Nodes     []snapshotNode `json:"nodes"`
	Edges     []snapshotEdge `json:"edges"`
}

// serializedGraph is the on-wire envelope for a persisted graph.
type serializedGraph struct {
	State         *graphState `json:"state"`
	FormatVersion string      `json:"format_version"`
	Checksum      string      `json:"checksum"`
	SavedAt       time.Time   `json:"saved_at"`
}

// computeSnapshotChecksum calculates SHA256 of the state for integrity
// verification, excluding the checksum field itself.
func computeSnapshotChecksum(state *graphState, formatVersion string, savedAt time.Time) (string, error) {
	data := struct {
		State         *graphState `json:"state"`
		FormatVersion string      `json:"format_version"`
		SavedAt       time.Time   `json:"saved_at"`
	}{
		State:         state,
		FormatVersion: formatVersion,
		SavedAt:       savedAt,
	}
	jsonData, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("marshal for checksum: %w", err)
	}
	hash := sha256.Sum256(jsonData)
	return hex.EncodeToString(hash[:]), nil
}

// MarshalSnapshot serializes the graph for persistence.
//
// # Description
//
// Produces a self-verifying JSON envelope: format version, SHA256
// checksum, and the graph state with nodes and edges in insertion order.
// Only authoritative state travels; adjacency indexes, degrees, and
// readiness are recomputed on load.
//
// # Outputs
//
//   - []byte: The serialized envelope.
//   - error: Non-nil if JSON marshaling fails.
func (g *TaskGraph) MarshalSnapshot() ([]byte, error) {
	state := &graphState{
		ChannelID: g.ChannelID,
		Version:   g.Version,
		CreatedAt: g.CreatedAt,
		UpdatedAt: g.UpdatedAt,
		Nodes:     make([]snapshotNode, 0, len(g.nodeOrder)),
		Edges:     make([]snapshotEdge, 0, len(g.edgeOrder)),
	}
	for _, id := range g.nodeOrder {
		n := g.nodes[id]
		state.Nodes = append(state.Nodes, snapshotNode{
			TaskID:    n.TaskID,
			Status:    n.Status,
			AddedAt:   n.AddedAt,
			UpdatedAt: n.UpdatedAt,
		})
	}
	for _, id := range g.edgeOrder {
		e := g.edges[id]
		state.Edges = append(state.Edges, snapshotEdge{
			From:      e.From,
			To:        e.To,
			Label:     e.Label,
			CreatedAt: e.CreatedAt,
		})
	}

	savedAt := time.Now().UTC()
	checksum, err := computeSnapshotChecksum(state, SnapshotFormatVersion, savedAt)
	if err != nil {
		return nil, fmt.Errorf("compute checksum: %w", err)
	}

	envelope := &serializedGraph{
		State:         state,
		FormatVersion: SnapshotFormatVersion,
		Checksum:      checksum,
		SavedAt:       savedAt,
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return data, nil
}

// UnmarshalSnapshot reconstructs a graph from a serialized envelope.
//
// # Description
//
// Verifies the format version and checksum before trusting the payload,
// then rebuilds the full graph: adjacency indexes and degree counters come
// from the edge list, readiness from the restored statuses. Edges that
// reference missing nodes, self-loops, and duplicates are skipped rather
// than trusted: a snapshot is still external input.
//
// # Outputs
//
//   - *TaskGraph: The reconstructed graph.
//   - error: ErrSnapshotVersionMismatch, ErrSnapshotCorrupt, or a JSON
//     parse error.
func UnmarshalSnapshot(data []byte) (*TaskGraph, error) {
	var envelope serializedGraph
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}
	if envelope.State == nil {
		return nil, fmt.Errorf("%w: missing state", ErrSnapshotCorrupt)
	}
	if envelope.FormatVersion != SnapshotFormatVersion {
		return nil, fmt.Errorf("%w: got %q, want %q",
			ErrSnapshotVersionMismatch, envelope.FormatVersion, SnapshotFormatVersion)
	}
	expected, err := computeSnapshotChecksum(envelope.State, envelope.FormatVersion, envelope.SavedAt)
	if err != nil {
		return nil, fmt.Errorf("compute checksum: %w", err)
	}
	if expected != envelope.Checksum {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrSnapshotCorrupt)
	}

	state := envelope.State
	g := NewTaskGraph(state.ChannelID)
	for _, sn := range state.Nodes {
		if sn.TaskID == "" || g.HasNode(sn.TaskID) {
			continue
		}
		g.nodes[sn.TaskID] = &TaskNode{
			TaskID:    sn.TaskID,
			Status:    normalizeStatus(sn.Status),
			AddedAt:   sn.AddedAt,
			UpdatedAt: sn.UpdatedAt,
		}
		g.nodeOrder = append(g.nodeOrder, sn.TaskID)
	}
	for _, se := range state.Edges {
		if se.From == se.To || !g.HasNode(se.From) || !g.HasNode(se.To) {
			continue
		}
		id := EdgeID(se.From, se.To)
		if _, dup := g.edges[id]; dup {
			continue
		}
		g.edges[id] = &DependencyEdge{
			ID:        id,
			From:      se.From,
			To:        se.To,
			Label:     se.Label,
			CreatedAt: se.CreatedAt,
		}
		g.edgeOrder = append(g.edgeOrder, id)
		g.adjacency[se.From] = append(g.adjacency[se.From], se.To)
		g.reverseAdjacency[se.To] = append(g.reverseAdjacency[se.To], se.From)
		g.nodes[se.From].OutDegree++
		g.nodes[se.To].InDegree++
	}
	for _, id := range g.nodeOrder {
		// Direct assignment keeps the restored UpdatedAt stamps intact.
		g.nodes[id].Ready = IsTaskReady(g, id)
	}
	g.Version = state.Version
	g.CreatedAt = state.CreatedAt
	g.UpdatedAt = state.UpdatedAt
	return g, nil
}
