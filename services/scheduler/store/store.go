// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store persists per-channel task graph snapshots in BadgerDB.
//
// BadgerDB is used for local embedded storage with low-latency access
// (~100µs). The store maps channel IDs to opaque snapshot envelopes produced
// by the dag package; integrity and format-version checking happen inside
// dag.UnmarshalSnapshot, so a snapshot that decodes here is already verified.
//
// Use cases:
//   - Graph survival across scheduler restarts
//   - Re-hydrating a channel after TTL eviction
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
// This package follows Apache 2.0 guidelines for attribution and usage.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianSwarm/services/scheduler/dag"
)

var (
	// ErrStoreClosed is returned when operations are called on a closed store.
	ErrStoreClosed = errors.New("snapshot store is closed")

	// ErrNilGraph is returned when attempting to save a nil graph.
	ErrNilGraph = errors.New("graph must not be nil")
)

// Config holds configuration for a snapshot store.
type Config struct {
	// Path is the directory for BadgerDB files.
	// Required for persistent stores. Ignored when InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence).
	// Useful for testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	// Default: true for production, false for testing.
	SyncWrites bool

	// Logger is the logger for store and BadgerDB operations.
	// If nil, the store logs through slog.Default() and BadgerDB's internal
	// logging is disabled.
	Logger *slog.Logger

	// GCInterval is how often to run value log garbage collection.
	// Default: 5 minutes. Set to 0 to disable.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum ratio of discardable data before GC.
	// Default: 0.5 (GC when 50% of value log is garbage).
	GCDiscardRatio float64
}

// DefaultConfig returns sensible defaults for production use.
//
// Description:
//
//	Returns a Config with:
//	- SyncWrites enabled for durability
//	- 5-minute GC interval
//	- 50% discard ratio threshold
//
// Outputs:
//
//	Config - Ready-to-use production configuration. Set Path before Open.
func DefaultConfig() Config {
	return Config{
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns configuration optimized for testing.
//
// Description:
//
//	Returns a Config with:
//	- InMemory mode enabled (no disk I/O)
//	- SyncWrites disabled (faster tests)
//	- GC disabled
//
// Outputs:
//
//	Config - Ready-to-use test configuration
func InMemoryConfig() Config {
	return Config{
		InMemory:   true,
		SyncWrites: false,
		GCInterval: 0, // disabled
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if !c.InMemory && c.Path == "" {
		return errors.New("path is required for persistent store")
	}
	if c.GCInterval < 0 {
		return errors.New("gc_interval must be non-negative")
	}
	if c.GCDiscardRatio < 0 || c.GCDiscardRatio > 1 {
		return errors.New("gc_discard_ratio must be between 0 and 1")
	}
	return nil
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// snapshotKeyPrefix namespaces snapshot keys within the database.
const snapshotKeyPrefix = "dag:"

// snapshotKey generates the key for a channel's snapshot.
func snapshotKey(channelID string) []byte {
	return []byte(snapshotKeyPrefix + channelID)
}

// channelFromKey recovers the channel ID from a snapshot key.
func channelFromKey(key []byte) string {
	return string(key[len(snapshotKeyPrefix):])
}

// Store maps channel IDs to serialized task graph snapshots in BadgerDB.
//
// Key format: "dag:{channel_id}"
// Value format: dag snapshot envelope (JSON with format version and checksum)
//
// Thread Safety: Safe for concurrent use.
type Store struct {
	db       *badger.DB
	logger   *slog.Logger
	gc       *gcRunner
	path     string
	inMemory bool
	closed   atomic.Bool
}

// Open creates a snapshot store backed by BadgerDB.
//
// Description:
//
//	Opens a BadgerDB database at the configured path, or in memory if
//	InMemory is true. Creates the directory if it doesn't exist and starts
//	a value log GC goroutine when GCInterval is configured.
//
// Inputs:
//
//	cfg - Store configuration. Must pass Validate().
//
// Outputs:
//
//	*Store - The opened store. Caller must call Close() when done.
//	error - Non-nil if the configuration is invalid or BadgerDB cannot open.
//
// Thread Safety: The returned *Store is safe for concurrent use.
func Open(cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "snapshot_store"))

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		// Ensure directory exists
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}

	opts = opts.WithSyncWrites(cfg.SyncWrites)
	opts = opts.WithNumVersionsToKeep(1)

	// Configure logging
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil) // Disable BadgerDB's internal logging
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	s := &Store{
		db:       db,
		logger:   logger,
		path:     cfg.Path,
		inMemory: cfg.InMemory,
	}

	existing, err := s.Channels(context.Background())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("scan existing snapshots: %w", err)
	}

	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.gc = newGCRunner(db, cfg.GCInterval, cfg.GCDiscardRatio, logger)
		s.gc.start()
	}

	logger.Info("snapshot store opened",
		slog.String("path", cfg.Path),
		slog.Bool("in_memory", cfg.InMemory),
		slog.Bool("sync_writes", cfg.SyncWrites),
		slog.Int("snapshots", len(existing)))

	return s, nil
}

// Save persists the graph, replacing any previous snapshot for its channel.
//
// Inputs:
//
//	ctx - Context for cancellation. Must not be nil.
//	graph - The graph to persist. Must not be nil.
//
// Outputs:
//
//	error - Non-nil if serialization or the write fails.
//
// Thread Safety: Safe for concurrent use.
func (s *Store) Save(ctx context.Context, graph *dag.TaskGraph) error {
	if graph == nil {
		return ErrNilGraph
	}
	if s.closed.Load() {
		return ErrStoreClosed
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	_, span := otel.Tracer("swarm.store").Start(ctx, "store.Save",
		trace.WithAttributes(
			attribute.String("channel_id", graph.ChannelID),
		),
	)
	defer span.End()

	data, err := graph.MarshalSnapshot()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "encode failed")
		return fmt.Errorf("encode snapshot: %w", err)
	}

	key := snapshotKey(graph.ChannelID)
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "write failed")
		return fmt.Errorf("write snapshot: %w", err)
	}

	span.SetAttributes(attribute.Int("snapshot_bytes", len(data)))

	s.logger.Debug("snapshot saved",
		slog.String("channel_id", graph.ChannelID),
		slog.Int64("version", graph.Version),
		slog.Int("bytes", len(data)))

	return nil
}

// Load returns the stored graph for a channel.
//
// Description:
//
//	The bool reports whether a snapshot existed; absence is not an error.
//	A snapshot that exists but fails parsing, integrity, or format-version
//	checks is reported as an error so the caller can decide whether to
//	rebuild from the authoritative task source.
//
// Inputs:
//
//	ctx - Context for cancellation. Must not be nil.
//	channelID - The channel whose snapshot to load.
//
// Outputs:
//
//	*dag.TaskGraph - The reconstructed graph, nil when absent or on error.
//	bool - Whether a snapshot existed.
//	error - Non-nil if the read or decode fails.
//
// Thread Safety: Safe for concurrent use.
func (s *Store) Load(ctx context.Context, channelID string) (*dag.TaskGraph, bool, error) {
	if s.closed.Load() {
		return nil, false, ErrStoreClosed
	}
	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	default:
	}

	_, span := otel.Tracer("swarm.store").Start(ctx, "store.Load",
		trace.WithAttributes(
			attribute.String("channel_id", channelID),
		),
	)
	defer span.End()

	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(snapshotKey(channelID))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		span.SetAttributes(attribute.Bool("found", false))
		return nil, false, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read failed")
		return nil, false, fmt.Errorf("read snapshot: %w", err)
	}

	g, err := dag.UnmarshalSnapshot(data)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "decode failed")
		return nil, false, fmt.Errorf("decode snapshot for channel %q: %w", channelID, err)
	}

	span.SetAttributes(
		attribute.Bool("found", true),
		attribute.Int("snapshot_bytes", len(data)),
	)

	return g, true, nil
}

// Delete removes a channel's snapshot.
//
// Description:
//
//	Deleting a missing snapshot is not an error.
//
// Thread Safety: Safe for concurrent use.
func (s *Store) Delete(ctx context.Context, channelID string) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(snapshotKey(channelID))
	})
	if err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}

	s.logger.Debug("snapshot deleted", slog.String("channel_id", channelID))
	return nil
}

// Channels lists the channel IDs with a stored snapshot, in key order.
//
// Description:
//
//	Iterates keys only (values are not prefetched), so cost scales with the
//	number of channels rather than snapshot sizes. BadgerDB iterates keys in
//	byte order, which for channel IDs is lexicographic order.
//
// Thread Safety: Safe for concurrent use.
func (s *Store) Channels(ctx context.Context) ([]string, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	channels := []string{}
	prefix := []byte(snapshotKeyPrefix)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			channels = append(channels, channelFromKey(it.Item().Key()))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}

	return channels, nil
}

// Sync flushes pending writes to disk.
//
// Description:
//
//	For in-memory stores, this is a no-op.
//
// Thread Safety: Safe for concurrent use.
func (s *Store) Sync() error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	if s.inMemory {
		return nil
	}
	return s.db.Sync()
}

// Close stops garbage collection and closes the database.
//
// Description:
//
//	Safe to call multiple times; subsequent calls are no-ops.
//
// Outputs:
//
//	error - Non-nil if the database close fails.
//
// Thread Safety: Safe for concurrent use.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil // Already closed
	}

	if s.gc != nil {
		s.gc.stop()
	}

	s.logger.Info("closing snapshot store")
	return s.db.Close()
}

// Path returns the store directory, or empty string for in-memory stores.
func (s *Store) Path() string {
	return s.path
}

// gcRunner runs periodic value log garbage collection on the database.
type gcRunner struct {
	db       *badger.DB
	interval time.Duration
	ratio    float64
	stopCh   chan struct{}
	doneCh   chan struct{}
	logger   *slog.Logger
}

func newGCRunner(db *badger.DB, interval time.Duration, ratio float64, logger *slog.Logger) *gcRunner {
	return &gcRunner{
		db:       db,
		interval: interval,
		ratio:    ratio,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		logger:   logger,
	}
}

func (r *gcRunner) start() {
	go r.run()
}

// stop halts garbage collection and waits for the goroutine to exit.
func (r *gcRunner) stop() {
	close(r.stopCh)
	<-r.doneCh
}

func (r *gcRunner) run() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.runGC()
		}
	}
}

func (r *gcRunner) runGC() {
	// RunValueLogGC returns nil if GC was triggered, ErrNoRewrite if none
	// was needed.
	err := r.db.RunValueLogGC(r.ratio)
	if err == nil {
		r.logger.Debug("badger value log GC completed")
	} else if !errors.Is(err, badger.ErrNoRewrite) {
		r.logger.Warn("badger value log GC error", slog.String("error", err.Error()))
	}
}
