// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// fileWatcher watches a single file for changes with debouncing.
//
// # Description
//
// Most editors save by writing a temp file and renaming it over the
// target, which silently drops an inotify watch placed on the file itself.
// The watcher therefore watches the parent directory and filters events to
// the target name, so the watch survives any number of save cycles.
//
// Rapid event bursts (write + chmod + rename from one save) collapse into
// a single handler call: each matching event restarts the debounce timer
// and the handler fires only after the window passes with no new events.
//
// # Thread Safety
//
// The handler is called from the watcher's own goroutine, never
// concurrently with itself.
type fileWatcher struct {
	path     string // absolute path to the watched file
	debounce time.Duration
	handler  func()

	watcher  *fsnotify.Watcher
	done     chan struct{}
	stopOnce sync.Once
}

// newFileWatcher creates a watcher for path. Call Start to begin watching
// and Stop to release the underlying fsnotify watcher.
func newFileWatcher(path string, debounce time.Duration, handler func()) (*fileWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &fileWatcher{
		path:     abs,
		debounce: debounce,
		handler:  handler,
		watcher:  watcher,
		done:     make(chan struct{}),
	}, nil
}

// Start registers the directory watch and spawns the event loop. The loop
// exits when ctx is canceled or Stop is called.
func (w *fileWatcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}
	go w.loop(ctx)
	return nil
}

// Stop stops the watcher. Safe to call more than once.
func (w *fileWatcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.watcher.Close()
	})
}

func (w *fileWatcher) loop(ctx context.Context) {
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			// Create covers the rename-over-target save pattern.
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}
		case <-timerC:
			timer = nil
			timerC = nil
			w.handler()
		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			// Keep watching; a transient error should not kill the loop.
		}
	}
}
