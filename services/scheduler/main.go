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
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/AleutianSwarm/pkg/extensions"
	"github.com/AleutianAI/AleutianSwarm/pkg/logging"
	"github.com/AleutianAI/AleutianSwarm/services/scheduler/lock"
	"github.com/AleutianAI/AleutianSwarm/services/scheduler/middleware"
	"github.com/AleutianAI/AleutianSwarm/services/scheduler/routes"
	"github.com/AleutianAI/AleutianSwarm/services/scheduler/schedule"
	"github.com/AleutianAI/AleutianSwarm/services/scheduler/store"
	"github.com/AleutianAI/AleutianSwarm/services/scheduler/telemetry"
)

func main() {
	cfg := schedule.ConfigFromEnv()

	logCfg := logging.Config{
		Level:   logging.LevelInfo,
		Service: "swarm-scheduler",
		JSON:    true,
		LogDir:  os.Getenv("SWARM_LOG_DIR"),
	}
	if cfg.Debug {
		logCfg.Level = logging.LevelDebug
	}
	rootLog := logging.New(logCfg)
	logger := rootLog.Slog()
	slog.SetDefault(logger)

	port := os.Getenv("SCHEDULER_PORT")
	if port == "" {
		port = "12270"
	}

	ctx := context.Background()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.DefaultConfig())
	if err != nil {
		slog.Error("Failed to initialize telemetry", "error", err)
		os.Exit(1)
	}

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	dataDir := os.Getenv("SWARM_DATA_DIR")
	if dataDir == "" {
		dataDir = "/var/lib/swarm/scheduler"
	}

	guard, err := lock.AcquireDir(dataDir, "scheduler snapshot store", logger)
	if err != nil {
		if errors.Is(err, lock.ErrDirLocked) {
			slog.Error("Another scheduler instance owns the data directory",
				"dir", dataDir, "error", err)
		} else {
			slog.Error("Failed to lock the data directory",
				"dir", dataDir, "error", err)
		}
		os.Exit(1)
	}

	// Snapshot persistence is best effort: a store that will not open
	// degrades the scheduler to memory-only operation.
	var snapshots *store.Store
	storeCfg := store.DefaultConfig()
	storeCfg.Path = filepath.Join(dataDir, "snapshots")
	storeCfg.Logger = logger
	snapshots, err = store.Open(storeCfg)
	if err != nil {
		slog.Warn("Snapshot store unavailable, continuing without persistence",
			"path", storeCfg.Path, "error", err)
		snapshots = nil
	}

	hub := schedule.NewHub()
	schedOpts := []schedule.Option{
		schedule.WithLogger(logger),
		schedule.WithEventSink(hub),
	}
	if snapshots != nil {
		schedOpts = append(schedOpts, schedule.WithSnapshotStore(snapshots))
	}
	sched, err := schedule.New(cfg, schedOpts...)
	if err != nil {
		slog.Error("Failed to construct the scheduler", "error", err)
		os.Exit(1)
	}

	sweeper := schedule.NewSweeper(sched, schedule.DefaultSweeperConfig())
	if err := sweeper.Start(ctx); err != nil {
		slog.Error("Failed to start the cache sweeper", "error", err)
		os.Exit(1)
	}

	router := gin.Default()
	router.Use(otelgin.Middleware("swarm-scheduler"))

	limiter := middleware.NewClientLimiter(
		envFloat("SCHEDULER_RATE_RPS"), envInt("SCHEDULER_RATE_BURST"))

	// Hosted builds swap these for real providers; the defaults are nops.
	opts := extensions.DefaultOptions()
	routes.SetupRoutes(router, sched, hub, limiter, opts)

	// Graceful shutdown on SIGINT/SIGTERM: stop the sweeper, flush the
	// store, release the directory lock, then drain telemetry.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		slog.Info("Shutting down scheduler service")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := sweeper.Stop(); err != nil {
			slog.Warn("Sweeper stop failed", "error", err)
		}
		if snapshots != nil {
			if err := snapshots.Close(); err != nil {
				slog.Warn("Snapshot store close failed", "error", err)
			}
		}
		if err := guard.Release(); err != nil {
			slog.Warn("Lock release failed", "error", err)
		}
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			slog.Warn("Telemetry shutdown failed", "error", err)
		}
		if err := rootLog.Close(); err != nil {
			slog.Warn("Log flush failed", "error", err)
		}
		os.Exit(0)
	}()

	slog.Info("Starting scheduler service",
		"port", port,
		"data_dir", dataDir,
		"dag_enabled", cfg.Enabled,
		"persistence", snapshots != nil,
	)
	if err := router.Run(":" + port); err != nil {
		slog.Error("Server exited", "error", err)
		os.Exit(1)
	}
}

// envFloat reads a float env var, zero when unset or unparseable so the
// consumer's default applies.
func envFloat(key string) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return 0
	}
	return v
}

// envInt reads an integer env var, zero when unset or unparseable.
func envInt(key string) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return 0
	}
	return v
}
