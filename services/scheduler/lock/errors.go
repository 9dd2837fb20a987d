// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package lock

import (
	"errors"
	"fmt"
)

// Sentinel errors for lock operations.
var (
	// ErrDirLocked indicates the directory is already locked by another process.
	ErrDirLocked = errors.New("directory is locked by another process")

	// ErrNotHeld indicates an attempt to release a lock not held by this guard.
	ErrNotHeld = errors.New("lock not held by this process")
)

// LockedError provides detailed information about a lock conflict.
//
// # Description
//
// Wraps ErrDirLocked with information about the current lock holder,
// allowing the caller to decide how to proceed (point the service at a
// different data directory, or stop the other instance).
//
// # Fields
//
//   - Dir: The directory that is locked.
//   - Holder: Information about the current lock holder, nil when the
//     holder metadata was missing or unreadable.
//   - Err: The underlying error (typically ErrDirLocked).
type LockedError struct {
	Dir    string
	Holder *HolderInfo
	Err    error
}

// Error returns a human-readable error message.
func (e *LockedError) Error() string {
	if e.Holder != nil {
		return fmt.Sprintf("directory %s is locked by PID %d on %s since %s: %v",
			e.Dir, e.Holder.PID, e.Holder.Hostname,
			e.Holder.AcquiredAt.Format("15:04:05"), e.Err)
	}
	return fmt.Sprintf("directory %s is locked: %v", e.Dir, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *LockedError) Unwrap() error {
	return e.Err
}
