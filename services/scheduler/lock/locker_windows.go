// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

//go:build windows

package lock

import (
	"errors"
	"os"

	"golang.org/x/sys/windows"
)

// WindowsFileLocker implements FileLocker using LockFileEx.
//
// # Description
//
// Uses LockFileEx via golang.org/x/sys/windows for file locking. Locks are:
// - Handle-scoped, released on handle close or process exit
// - Non-blocking when LOCKFILE_FAIL_IMMEDIATELY is specified
//
// # Thread Safety
//
// Safe for concurrent use on different files.
type WindowsFileLocker struct{}

// Lock acquires an exclusive lock using LockFileEx.
//
// # Description
//
// Locks the first byte of the file with LOCKFILE_EXCLUSIVE_LOCK and
// LOCKFILE_FAIL_IMMEDIATELY. Returns immediately if already locked.
//
// # Inputs
//
//   - f: Open file handle to lock.
//
// # Outputs
//
//   - error: nil on success, ErrDirLocked if already locked.
func (l *WindowsFileLocker) Lock(f *os.File) error {
	err := windows.LockFileEx(windows.Handle(f.Fd()),
		windows.LOCKFILE_EXCLUSIVE_LOCK|windows.LOCKFILE_FAIL_IMMEDIATELY,
		0, 1, 0, new(windows.Overlapped))
	if err != nil {
		if errors.Is(err, windows.ERROR_LOCK_VIOLATION) {
			return ErrDirLocked
		}
		return err
	}
	return nil
}

// Unlock releases the lock using UnlockFileEx.
//
// # Description
//
// Unlocks the byte range locked by Lock. Safe to call even if not locked.
//
// # Inputs
//
//   - f: Open file handle to unlock.
//
// # Outputs
//
//   - error: nil on success, error on system failure.
func (l *WindowsFileLocker) Unlock(f *os.File) error {
	return windows.UnlockFileEx(windows.Handle(f.Fd()), 0, 1, 0, new(windows.Overlapped))
}

// isProcessAlive checks if a process exists using OpenProcess.
//
// # Description
//
// Opens the process with the minimal query right. Returns false if the
// process doesn't exist or we lack permission.
//
// # Inputs
//
//   - pid: Process ID to check.
//
// # Outputs
//
//   - bool: True if process exists.
func isProcessAlive(pid int) bool {
	handle, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		return false
	}
	windows.CloseHandle(handle)
	return true
}

// newPlatformLocker returns a Windows-specific file locker.
func newPlatformLocker() FileLocker {
	return &WindowsFileLocker{}
}
