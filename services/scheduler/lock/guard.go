// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package lock guards the scheduler data directory against concurrent
// service instances.
//
// # Description
//
// Two schedulers sharing one data directory would corrupt each other's
// snapshot state. AcquireDir takes a non-blocking exclusive lock on a
// well-known lock file inside the directory before the store opens, and
// records holder metadata (PID, hostname, reason) in the file so a refused
// startup can name who holds the lock.
//
// Unix uses flock(2) via golang.org/x/sys/unix; Windows uses LockFileEx via
// golang.org/x/sys/windows. Locks are advisory and released by the OS when
// the holder exits, so a crashed process never wedges the directory.
package lock

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// LockFileName is the well-known lock file created inside a guarded
// directory.
const LockFileName = "swarm.lock"

// HolderInfo describes the process holding a directory lock.
//
// # Description
//
// Written as indented JSON into the lock file at acquisition. The flock
// itself is authoritative; this metadata only exists so conflicts and
// stray lock files can be attributed to a process.
type HolderInfo struct {
	// Path is the absolute path of the lock file.
	Path string `json:"path"`

	// PID is the holding process ID.
	PID int `json:"pid"`

	// Hostname is where the holding process runs.
	Hostname string `json:"hostname"`

	// Reason is a human-readable reason for the lock (for debugging).
	Reason string `json:"reason,omitempty"`

	// AcquiredAt is when the lock was taken.
	AcquiredAt time.Time `json:"acquired_at"`
}

// DirGuard holds an exclusive advisory lock on a directory.
//
// # Description
//
// Created by AcquireDir. Release the guard during shutdown; if the process
// dies first, the OS releases the underlying lock on its own.
//
// # Thread Safety
//
// Safe for concurrent use.
type DirGuard struct {
	dir    string
	file   *os.File
	info   *HolderInfo
	locker FileLocker
	logger *slog.Logger
	mu     sync.Mutex
	held   bool
}

// AcquireDir acquires an exclusive lock on a directory.
//
// # Description
//
// Creates the directory if needed, then takes a non-blocking exclusive
// lock on its lock file. On conflict the returned error is a *LockedError
// carrying the current holder's metadata when it could be read.
//
// # Inputs
//
//   - dir: Directory to guard. Created if it doesn't exist.
//   - reason: Human-readable reason for the lock (for debugging).
//   - logger: Optional logger. If nil, slog.Default() is used.
//
// # Outputs
//
//   - *DirGuard: The held guard. Caller should Release() on shutdown.
//   - error: ErrDirLocked (wrapped in *LockedError) on conflict, other
//     errors on filesystem failure.
//
// # Example
//
//	guard, err := lock.AcquireDir(dataDir, "scheduler snapshot store", log)
//	if err != nil {
//	    if errors.Is(err, lock.ErrDirLocked) {
//	        // Another scheduler owns this data directory.
//	    }
//	    return err
//	}
//	defer guard.Release()
func AcquireDir(dir, reason string, logger *slog.Logger) (*DirGuard, error) {
	if logger == nil {
		logger = slog.Default()
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving directory %s: %w", dir, err)
	}
	if err := os.MkdirAll(absDir, 0750); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", absDir, err)
	}

	lockPath := filepath.Join(absDir, LockFileName)
	f, err := os.OpenFile(lockPath, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening lock file %s: %w", lockPath, err)
	}

	locker := newFileLocker()
	if err := locker.Lock(f); err != nil {
		holder := readHolderInfo(lockPath)
		f.Close()
		if errors.Is(err, ErrDirLocked) {
			return nil, &LockedError{Dir: absDir, Holder: holder, Err: ErrDirLocked}
		}
		return nil, fmt.Errorf("locking %s: %w", lockPath, err)
	}

	hostname, _ := os.Hostname()
	info := &HolderInfo{
		Path:       lockPath,
		PID:        os.Getpid(),
		Hostname:   hostname,
		Reason:     reason,
		AcquiredAt: time.Now(),
	}
	if err := writeHolderInfo(f, info); err != nil {
		locker.Unlock(f)
		f.Close()
		return nil, fmt.Errorf("writing holder info: %w", err)
	}

	logger.Debug("acquired directory lock",
		slog.String("dir", absDir),
		slog.String("reason", reason))

	return &DirGuard{
		dir:    absDir,
		file:   f,
		info:   info,
		locker: locker,
		logger: logger,
		held:   true,
	}, nil
}

// Release unlocks and removes the lock file.
//
// # Description
//
// Releases the lock once; a second call returns ErrNotHeld. Unlock and
// cleanup failures are logged rather than returned because the OS lock is
// gone either way once the file handle closes.
//
// # Outputs
//
//   - error: ErrNotHeld when the guard no longer holds the lock.
func (g *DirGuard) Release() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.held {
		return ErrNotHeld
	}
	g.held = false

	if err := g.locker.Unlock(g.file); err != nil {
		g.logger.Warn("failed to unlock directory lock",
			slog.String("dir", g.dir),
			slog.String("error", err.Error()))
	}
	if err := g.file.Close(); err != nil {
		g.logger.Warn("failed to close lock file",
			slog.String("dir", g.dir),
			slog.String("error", err.Error()))
	}
	if err := os.Remove(g.info.Path); err != nil && !os.IsNotExist(err) {
		g.logger.Warn("failed to remove lock file",
			slog.String("path", g.info.Path),
			slog.String("error", err.Error()))
	}

	g.logger.Debug("released directory lock", slog.String("dir", g.dir))
	return nil
}

// Dir returns the guarded directory's absolute path.
func (g *DirGuard) Dir() string {
	return g.dir
}

// Info returns the holder metadata recorded at acquisition.
func (g *DirGuard) Info() HolderInfo {
	return *g.info
}

// readHolderInfo parses holder metadata from a lock file.
//
// Returns nil when the file is missing, unparseable, or names a process
// that no longer exists: the flock is authoritative, the metadata only
// serves the error message.
func readHolderInfo(lockPath string) *HolderInfo {
	data, err := os.ReadFile(lockPath)
	if err != nil {
		return nil
	}
	var info HolderInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil
	}
	if !IsProcessAlive(info.PID) {
		return nil
	}
	return &info
}

// writeHolderInfo replaces the lock file contents with holder metadata.
func writeHolderInfo(f *os.File, info *HolderInfo) error {
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return err
	}
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Sync()
}
