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
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianSwarm/services/scheduler/dag"
)

// =============================================================================
// TTL Expiry
// =============================================================================

func TestCache_ExpiredGraphIsDroppedOnAccess(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	sink := NewCaptureSink()
	s := newTestScheduler(t, WithClock(clock), WithEventSink(sink))

	s.BuildDag(ctx, "chan-1", diamondTasks())
	require.NotNil(t, s.GetDag(ctx, "chan-1"))

	clock.Advance(DefaultCacheTTL + time.Second)

	assert.Nil(t, s.GetDag(ctx, "chan-1"), "expired graph must be gone")
	assert.True(t, s.IsTaskReady(ctx, "chan-1", "D"), "expiry falls back to permissive defaults")

	evicted := sink.ByType(TypeCacheEvicted)
	require.Len(t, evicted, 1)
	data, ok := evicted[0].Data.(EvictionData)
	require.True(t, ok)
	assert.Equal(t, "ttl_expired", data.Reason)
}

func TestCache_MutationRefreshesTTL(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	s := newTestScheduler(t, WithClock(clock))

	s.BuildDag(ctx, "chan-1", diamondTasks())

	// Keep writing just inside the TTL; the graph must survive well past
	// the original deadline.
	for i := 0; i < 3; i++ {
		clock.Advance(DefaultCacheTTL - time.Second)
		s.UpdateTaskStatus(ctx, "chan-1", "A", dag.StatusAssigned)
	}

	assert.NotNil(t, s.GetDag(ctx, "chan-1"))
}

func TestCache_ExpiredMutationFailsClosed(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	s := newTestScheduler(t, WithClock(clock))

	s.BuildDag(ctx, "chan-1", diamondTasks())
	clock.Advance(DefaultCacheTTL + time.Second)

	res := s.AddDependency(ctx, "chan-1", DependencyRequest{
		DependentTaskID:  "D",
		DependencyTaskID: "A",
	})
	assert.False(t, res.Success)
	assert.Equal(t, dag.CodeNoGraph, res.ErrorCode)
}

// =============================================================================
// Sweeper
// =============================================================================

func TestSweeper_EvictsOnlyExpired(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	s := newTestScheduler(t, WithClock(clock))

	s.BuildDag(ctx, "old", diamondTasks())
	clock.Advance(DefaultCacheTTL / 2)
	s.BuildDag(ctx, "fresh", diamondTasks())
	clock.Advance(DefaultCacheTTL/2 + time.Second)

	sweeper := NewSweeper(s, DefaultSweeperConfig())
	result := sweeper.RunNow(ctx)

	assert.Equal(t, 2, result.Examined)
	assert.Equal(t, []string{"old"}, result.Evicted)
	assert.Nil(t, s.GetDag(ctx, "old"))
	assert.NotNil(t, s.GetDag(ctx, "fresh"))
}

func TestSweeper_StartStopLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestScheduler(t)
	sweeper := NewSweeper(s, SweeperConfig{Interval: time.Hour})

	require.NoError(t, sweeper.Start(ctx))
	err := sweeper.Start(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAlreadyRunning))

	require.NoError(t, sweeper.Stop())
	require.NoError(t, sweeper.Stop(), "stop is idempotent")

	// A stopped sweeper can be restarted.
	require.NoError(t, sweeper.Start(ctx))
	require.NoError(t, sweeper.Stop())
}

// =============================================================================
// Explicit Clears
// =============================================================================

func TestClearCache(t *testing.T) {
	ctx := context.Background()
	sink := NewCaptureSink()
	s := newTestScheduler(t, WithEventSink(sink))
	s.BuildDag(ctx, "chan-1", diamondTasks())

	assert.True(t, s.ClearCache(ctx, "chan-1"))
	assert.False(t, s.ClearCache(ctx, "chan-1"), "second clear is a no-op")
	assert.Nil(t, s.GetDag(ctx, "chan-1"))

	evicted := sink.ByType(TypeCacheEvicted)
	require.Len(t, evicted, 1)
	data, ok := evicted[0].Data.(EvictionData)
	require.True(t, ok)
	assert.Equal(t, "cleared", data.Reason)
}

func TestClearAllCaches(t *testing.T) {
	ctx := context.Background()
	s := newTestScheduler(t)
	s.BuildDag(ctx, "chan-1", diamondTasks())
	s.BuildDag(ctx, "chan-2", diamondTasks())

	assert.Equal(t, 2, s.ClearAllCaches(ctx))
	assert.Empty(t, s.Channels())
	assert.Equal(t, 0, s.ClearAllCaches(ctx))
}

// =============================================================================
// Snapshot Store
// =============================================================================

func TestStore_MutationsPersist(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	s := newTestScheduler(t, WithSnapshotStore(store))

	s.BuildDag(ctx, "chan-1", diamondTasks())
	s.UpdateTaskStatus(ctx, "chan-1", "A", dag.StatusCompleted)
	res := s.AddDependency(ctx, "chan-1", DependencyRequest{
		DependentTaskID:  "C",
		DependencyTaskID: "B",
	})
	require.True(t, res.Success)

	assert.Equal(t, 3, store.saveCount(), "every committed mutation saves once")
}

func TestStore_CacheMissRestoresSnapshot(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	s := newTestScheduler(t, WithSnapshotStore(store))

	s.BuildDag(ctx, "chan-1", diamondTasks())
	s.UpdateTaskStatus(ctx, "chan-1", "A", dag.StatusCompleted)
	want := s.GetDag(ctx, "chan-1")
	require.NotNil(t, want)

	// Evict, then query: the graph must come back from the store.
	require.True(t, s.ClearCache(ctx, "chan-1"))
	got := s.GetDag(ctx, "chan-1")
	require.NotNil(t, got)
	assert.Equal(t, want.Version, got.Version)
	assert.Equal(t, want.NodeCount(), got.NodeCount())
	assert.Equal(t, want.EdgeCount(), got.EdgeCount())

	node, ok := got.Node("A")
	require.True(t, ok)
	assert.Equal(t, dag.StatusCompleted, node.Status)
	assert.True(t, s.IsTaskReady(ctx, "chan-1", "B"))
	assert.False(t, s.IsTaskReady(ctx, "chan-1", "D"))
}

func TestStore_RestartRecoversState(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	s1 := newTestScheduler(t, WithSnapshotStore(store))
	s1.BuildDag(ctx, "chan-1", diamondTasks())

	// A second scheduler sharing the store sees the committed graph.
	s2 := newTestScheduler(t, WithSnapshotStore(store))
	g := s2.GetDag(ctx, "chan-1")
	require.NotNil(t, g)
	assert.Equal(t, 4, g.NodeCount())

	res := s2.AddDependency(ctx, "chan-1", DependencyRequest{
		DependentTaskID:  "C",
		DependencyTaskID: "B",
	})
	assert.True(t, res.Success)
}

func TestStore_SaveFailureDoesNotFailMutation(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.saveErr = errors.New("disk full")
	s := newTestScheduler(t, WithSnapshotStore(store))

	g := s.BuildDag(ctx, "chan-1", diamondTasks())
	require.NotNil(t, g, "persistence is best effort")
	assert.NotNil(t, s.GetDag(ctx, "chan-1"))
}

func TestStore_LoadFailureFallsBackToAbsent(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.loadErr = errors.New("corrupt")
	s := newTestScheduler(t, WithSnapshotStore(store))

	assert.Nil(t, s.GetDag(ctx, "chan-1"))
	assert.True(t, s.IsTaskReady(ctx, "chan-1", "A"))
}

func TestStore_MissLoadsOnce(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	s := newTestScheduler(t, WithSnapshotStore(store))

	// Unknown channel: first query hits the store, the result is negative
	// and not cached, so a second query hits it again. Once a graph
	// exists, queries stop consulting the store.
	s.GetDag(ctx, "chan-1")
	first := store.loadCount()
	assert.Greater(t, first, 0)

	s.BuildDag(ctx, "chan-1", diamondTasks())
	before := store.loadCount()
	s.GetDag(ctx, "chan-1")
	s.IsTaskReady(ctx, "chan-1", "A")
	assert.Equal(t, before, store.loadCount(), "cached graph must not reload")
}
