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
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianSwarm/services/scheduler/dag"
)

// Package-level tracer and meter for scheduler operations.
var (
	tracer = otel.Tracer("swarm.schedule")
	meter  = otel.Meter("swarm.schedule")
)

// Metrics for scheduler operations.
var (
	mutationLatency metric.Float64Histogram
	mutationTotal   metric.Int64Counter
	queryTotal      metric.Int64Counter
	cacheEvictions  metric.Int64Counter
	cachedGraphs    metric.Int64UpDownCounter
	probeLatency    metric.Float64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		mutationLatency, err = meter.Float64Histogram(
			"scheduler_mutation_duration_seconds",
			metric.WithDescription("Duration of graph mutation operations"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		mutationTotal, err = meter.Int64Counter(
			"scheduler_mutations_total",
			metric.WithDescription("Total number of graph mutation operations"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		queryTotal, err = meter.Int64Counter(
			"scheduler_queries_total",
			metric.WithDescription("Total number of graph query operations"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		cacheEvictions, err = meter.Int64Counter(
			"scheduler_cache_evictions_total",
			metric.WithDescription("Total channel graphs evicted from the cache"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		cachedGraphs, err = meter.Int64UpDownCounter(
			"scheduler_cached_graphs",
			metric.WithDescription("Channel graphs currently cached"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		probeLatency, err = meter.Float64Histogram(
			"scheduler_cycle_probe_duration_seconds",
			metric.WithDescription("Duration of hypothetical cycle probes"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// startMutationSpan creates a span for a graph mutation operation.
func startMutationSpan(ctx context.Context, op, channelID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Scheduler."+op,
		trace.WithAttributes(
			attribute.String("scheduler.channel_id", channelID),
		),
	)
}

// setMutationSpanResult sets result attributes on a mutation span.
func setMutationSpanResult(span trace.Span, success bool, code dag.ErrorCode) {
	span.SetAttributes(attribute.Bool("scheduler.success", success))
	if code != "" {
		span.SetAttributes(attribute.String("scheduler.error_code", string(code)))
	}
}

// recordMutation records metrics for a graph mutation operation.
func recordMutation(ctx context.Context, op string, duration time.Duration, success bool) {
	if err := initMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("operation", op),
		attribute.Bool("success", success),
	)

	mutationLatency.Record(ctx, duration.Seconds(), attrs)
	mutationTotal.Add(ctx, 1, attrs)
}

// recordQuery records a graph query operation.
func recordQuery(ctx context.Context, op string) {
	if err := initMetrics(); err != nil {
		return
	}
	queryTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", op),
	))
}

// recordEviction records channel graphs leaving the cache.
func recordEviction(ctx context.Context, reason string, count int) {
	if err := initMetrics(); err != nil {
		return
	}
	cacheEvictions.Add(ctx, int64(count), metric.WithAttributes(
		attribute.String("reason", reason),
	))
	cachedGraphs.Add(ctx, -int64(count))
}

// recordCached records a channel graph entering the cache.
func recordCached(ctx context.Context) {
	if err := initMetrics(); err != nil {
		return
	}
	cachedGraphs.Add(ctx, 1)
}

// recordProbe records the latency of a hypothetical cycle probe.
func recordProbe(ctx context.Context, duration time.Duration, outcome string) {
	if err := initMetrics(); err != nil {
		return
	}
	probeLatency.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("outcome", outcome),
	))
}
