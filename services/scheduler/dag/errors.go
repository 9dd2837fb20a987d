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
	"fmt"
	"strings"
)

// Sentinel errors for the dag package.
var (
	// ErrEmptyTaskID is returned when a task id is the empty string.
	ErrEmptyTaskID = errors.New("task id must not be empty")

	// ErrDuplicateNode is returned when adding a node whose id already exists.
	ErrDuplicateNode = errors.New("node with this task id already exists")

	// ErrNodeNotFound is returned when a referenced task doesn't exist.
	ErrNodeNotFound = errors.New("node not found")

	// ErrSelfDependency is returned when an edge would point a task at itself.
	ErrSelfDependency = errors.New("task cannot depend on itself")

	// ErrDuplicateEdge is returned when the ordered edge pair already exists.
	ErrDuplicateEdge = errors.New("dependency edge already exists")

	// ErrCycleDetected is returned when a mutation would create a cycle.
	ErrCycleDetected = errors.New("cycle detected in dependency graph")

	// ErrBudgetExhausted is returned when cycle detection runs out of its
	// iteration or time budget before reaching a verdict.
	ErrBudgetExhausted = errors.New("cycle detection budget exhausted")

	// ErrSnapshotCorrupt is returned when a serialized graph fails its
	// checksum verification.
	ErrSnapshotCorrupt = errors.New("graph snapshot is corrupt")

	// ErrSnapshotVersionMismatch is returned when a serialized graph was
	// written by an incompatible format version.
	ErrSnapshotVersionMismatch = errors.New("graph snapshot version mismatch")
)

// ErrorCode is the stable string code attached to structural rejections and
// validation findings. Codes travel over diagnostic surfaces (HTTP, CLI)
// where Go error identity does not.
type ErrorCode string

const (
	// CodeNoGraph indicates no DAG exists for the channel.
	CodeNoGraph ErrorCode = "NO_GRAPH"

	// CodeMissingNode indicates a referenced task id is not in the graph.
	CodeMissingNode ErrorCode = "MISSING_NODE"

	// CodeSelfDependency indicates a task → itself edge was rejected.
	CodeSelfDependency ErrorCode = "SELF_DEPENDENCY"

	// CodeDuplicateEdge indicates the ordered pair already has an edge.
	CodeDuplicateEdge ErrorCode = "DUPLICATE_EDGE"

	// CodeCycleDetected indicates the mutation would create a cycle.
	CodeCycleDetected ErrorCode = "CYCLE_DETECTED"

	// CodeBudgetExhausted indicates cycle detection could not finish within
	// its budget; mutations fail closed with this code.
	CodeBudgetExhausted ErrorCode = "BUDGET_EXHAUSTED"
)

// Warning codes surfaced by graph validation. Warnings are advisory and
// never fail a mutation.
const (
	// WarnHighInDegree flags a node with more dependencies than the
	// configured threshold.
	WarnHighInDegree ErrorCode = "HIGH_IN_DEGREE"

	// WarnHighOutDegree flags a node blocking more dependents than the
	// configured threshold.
	WarnHighOutDegree ErrorCode = "HIGH_OUT_DEGREE"

	// WarnLongChain flags a dependency chain longer than the configured
	// threshold.
	WarnLongChain ErrorCode = "LONG_CHAIN"

	// WarnOrphanedNode flags a node with no edges in either direction.
	WarnOrphanedNode ErrorCode = "ORPHANED_NODE"
)

// CodeForError maps a dag error to its stable code. Unknown errors map to
// the empty code.
func CodeForError(err error) ErrorCode {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNodeNotFound):
		return CodeMissingNode
	case errors.Is(err, ErrSelfDependency):
		return CodeSelfDependency
	case errors.Is(err, ErrDuplicateEdge):
		return CodeDuplicateEdge
	case errors.Is(err, ErrCycleDetected):
		return CodeCycleDetected
	case errors.Is(err, ErrBudgetExhausted):
		return CodeBudgetExhausted
	}
	return ""
}

// NodeError wraps an error with the task that caused it.
type NodeError struct {
	TaskID string
	Err    error
}

// Error returns the error message.
func (e *NodeError) Error() string {
	return fmt.Sprintf("task %q: %v", e.TaskID, e.Err)
}

// Unwrap returns the underlying error.
func (e *NodeError) Unwrap() error {
	return e.Err
}

// NewNodeError creates a NodeError.
func NewNodeError(taskID string, err error) *NodeError {
	return &NodeError{
		TaskID: taskID,
		Err:    err,
	}
}

// CycleError reports a detected cycle with its ordered path. The path
// starts and ends at the same task, e.g. ["A", "B", "C", "A"].
type CycleError struct {
	Path []string
}

// Error returns a human-readable cycle description such as
// "Cycle detected: A → B → C → A".
func (e *CycleError) Error() string {
	if len(e.Path) == 0 {
		return "Cycle detected"
	}
	return "Cycle detected: " + strings.Join(e.Path, " → ")
}

// Unwrap ties CycleError into the ErrCycleDetected sentinel chain.
func (e *CycleError) Unwrap() error {
	return ErrCycleDetected
}

// NewCycleError creates a CycleError.
func NewCycleError(path []string) *CycleError {
	return &CycleError{Path: path}
}
