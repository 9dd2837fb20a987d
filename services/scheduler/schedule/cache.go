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
	"sort"
	"sync"
	"time"
)

// =============================================================================
// Cache Control
// =============================================================================

// ClearCache evicts one channel's graph from the cache.
//
// # Description
//
// The snapshot store is not touched: a later access can restore the graph
// from its last committed snapshot. Without a store, the next access starts
// from an empty graph (or a rebuild).
//
// # Outputs
//
//   - bool: True when a cached graph existed and was evicted.
func (s *Scheduler) ClearCache(ctx context.Context, channelID string) bool {
	st := s.current(channelID)
	if st == nil {
		return false
	}
	return s.drop(ctx, channelID, st, "cleared")
}

// ClearAllCaches evicts every cached channel graph.
//
// # Outputs
//
//   - int: Number of graphs evicted.
func (s *Scheduler) ClearAllCaches(ctx context.Context) int {
	entries := s.entries()
	count := 0
	for id, st := range entries {
		if s.drop(ctx, id, st, "cleared") {
			count++
		}
	}
	return count
}

// entries returns a point-in-time copy of the cache map.
func (s *Scheduler) entries() map[string]*channelState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make(map[string]*channelState, len(s.channels))
	for id, st := range s.channels {
		entries[id] = st
	}
	return entries
}

// sweepExpired evicts every entry past its TTL.
//
// The expiry check and the eviction happen under the entry's lock, so a
// mutation that refreshes the TTL concurrently either lands before the check
// (entry survives) or waits until the sweep moves on. Expiry is one-way: an
// entry seen expired under its lock can no longer be refreshed.
//
// # Outputs
//
//   - []string: Evicted channel ids, sorted.
//   - int: Entries examined.
func (s *Scheduler) sweepExpired(ctx context.Context) ([]string, int) {
	entries := s.entries()
	now := s.clock.Now()

	evicted := make([]string, 0)
	for id, st := range entries {
		st.mu.Lock()
		if now.After(st.expiresAt) {
			if s.drop(ctx, id, st, "ttl_expired") {
				evicted = append(evicted, id)
			}
		}
		st.mu.Unlock()
	}
	sort.Strings(evicted)
	return evicted, len(entries)
}

// =============================================================================
// Sweeper
// =============================================================================

// SweeperConfig controls the background cache sweeper.
type SweeperConfig struct {
	// Interval is how often expired graphs are swept out.
	Interval time.Duration
}

// DefaultSweeperConfig returns the default sweeper configuration.
func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		Interval: 30 * time.Second,
	}
}

// SweepResult summarizes one sweep cycle.
type SweepResult struct {
	// StartTime is when the sweep began.
	StartTime time.Time `json:"start_time"`

	// EndTime is when the sweep finished.
	EndTime time.Time `json:"end_time"`

	// Examined is the number of cache entries inspected.
	Examined int `json:"examined"`

	// Evicted lists the channels whose graphs were evicted, sorted.
	Evicted []string `json:"evicted"`
}

// DurationMs returns the sweep duration in milliseconds.
func (r SweepResult) DurationMs() int64 {
	return r.EndTime.Sub(r.StartTime).Milliseconds()
}

// Sweeper periodically evicts expired channel graphs.
type Sweeper interface {
	// Start begins the background sweep loop. Returns ErrAlreadyRunning if
	// the sweeper is active.
	Start(ctx context.Context) error

	// Stop signals the sweep loop to exit. Safe to call multiple times.
	Stop() error

	// RunNow performs one sweep cycle immediately.
	RunNow(ctx context.Context) SweepResult
}

// cacheSweeper is the ticker-driven Sweeper implementation.
type cacheSweeper struct {
	sched  *Scheduler
	config SweeperConfig

	done    chan struct{}
	mu      sync.Mutex
	running bool
}

// NewSweeper creates a sweeper for the given scheduler.
//
// # Description
//
// The sweeper uses the ticker + done channel pattern for graceful shutdown.
// A non-positive interval falls back to the default. The caller owns the
// lifecycle: Start it alongside the service and Stop it during shutdown.
//
// # Example
//
//	sweeper := schedule.NewSweeper(sched, schedule.DefaultSweeperConfig())
//	if err := sweeper.Start(ctx); err != nil {
//	    return err
//	}
//	defer sweeper.Stop()
func NewSweeper(sched *Scheduler, config SweeperConfig) Sweeper {
	if config.Interval <= 0 {
		config.Interval = DefaultSweeperConfig().Interval
	}
	return &cacheSweeper{
		sched:  sched,
		config: config,
		done:   make(chan struct{}),
	}
}

// Start begins the background sweep loop.
//
// # Outputs
//
//   - error: ErrAlreadyRunning if the sweeper is active.
func (w *cacheSweeper) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return ErrAlreadyRunning
	}
	w.running = true
	w.done = make(chan struct{}) // Reset for potential restart
	w.mu.Unlock()

	w.sched.log.Info("cache sweeper starting",
		"interval", w.config.Interval.String(),
	)

	go w.runLoop(ctx)
	return nil
}

// Stop signals the sweep loop to exit. Safe to call multiple times.
func (w *cacheSweeper) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil // Already stopped
	}

	w.sched.log.Info("cache sweeper stopping")
	close(w.done)
	w.running = false
	return nil
}

// RunNow performs one sweep cycle immediately.
func (w *cacheSweeper) RunNow(ctx context.Context) SweepResult {
	result := SweepResult{StartTime: time.Now()}
	result.Evicted, result.Examined = w.sched.sweepExpired(ctx)
	result.EndTime = time.Now()
	return result
}

// runLoop is the main sweeper goroutine.
func (w *cacheSweeper) runLoop(ctx context.Context) {
	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.sched.log.Info("cache sweeper stopped (context cancelled)")
			return
		case <-w.done:
			w.sched.log.Info("cache sweeper stopped (stop requested)")
			return
		case <-ticker.C:
			w.executeSweep(ctx)
		}
	}
}

// executeSweep runs one cycle and logs what it evicted.
func (w *cacheSweeper) executeSweep(ctx context.Context) {
	result := w.RunNow(ctx)
	if len(result.Evicted) > 0 {
		w.sched.log.Info("cache sweep completed",
			"examined", result.Examined,
			"evicted", len(result.Evicted),
			"channels", result.Evicted,
			"duration_ms", result.DurationMs(),
		)
	} else {
		w.sched.log.Debug("cache sweep completed (nothing expired)",
			"examined", result.Examined,
		)
	}
}
