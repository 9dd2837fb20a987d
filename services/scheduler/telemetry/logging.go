// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

// LoggerWithTrace returns a logger with trace context injected.
//
// Description:
//
//	Extracts trace_id and span_id from the context and adds them as
//	structured log fields. This enables log correlation in Grafana/Loki
//	with traces in Jaeger.
//
// Inputs:
//
//	ctx - Context containing span context. May be nil or have no active span.
//	logger - Base logger to enhance. Must not be nil.
//
// Outputs:
//
//	*slog.Logger - Logger with trace_id and span_id fields added if available.
//	              Returns the original logger if no valid span context.
//
// Example:
//
//	func (s *Scheduler) BuildDag(ctx context.Context, ...) error {
//	    logger := telemetry.LoggerWithTrace(ctx, s.logger)
//	    logger.Info("building dag")
//	    // Log output: {"level":"INFO","msg":"building dag","trace_id":"abc123","span_id":"def456"}
//	}
//
// Thread Safety: Safe for concurrent use.
func LoggerWithTrace(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	if ctx == nil {
		return logger
	}

	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return logger
	}

	return logger.With(
		slog.String("trace_id", spanCtx.TraceID().String()),
		slog.String("span_id", spanCtx.SpanID().String()),
	)
}

// LoggerWithChannel returns a logger with trace context and channel ID.
//
// Description:
//
//	Combines LoggerWithTrace with a channel identifier. Useful for
//	distinguishing log entries from different task graphs.
//
// Inputs:
//
//	ctx - Context containing span context.
//	logger - Base logger to enhance.
//	channelID - ID of the channel whose graph is being operated on.
//
// Outputs:
//
//	*slog.Logger - Logger with trace_id, span_id, and channel_id fields.
//
// Example:
//
//	func (s *Scheduler) AddDependency(ctx context.Context, channelID string, ...) error {
//	    logger := telemetry.LoggerWithChannel(ctx, s.logger, channelID)
//	    logger.Info("adding dependency", slog.String("from", from))
//	}
//
// Thread Safety: Safe for concurrent use.
func LoggerWithChannel(ctx context.Context, logger *slog.Logger, channelID string) *slog.Logger {
	return LoggerWithTrace(ctx, logger).With(
		slog.String("channel_id", channelID),
	)
}

// LoggerWithTask returns a logger with trace context, channel ID, and task ID.
//
// Description:
//
//	Adds both graph and task identifiers for operations scoped to a
//	single task, such as status transitions.
//
// Inputs:
//
//	ctx - Context containing span context.
//	logger - Base logger to enhance.
//	channelID - ID of the channel whose graph contains the task.
//	taskID - ID of the task being operated on.
//
// Outputs:
//
//	*slog.Logger - Logger with trace_id, span_id, channel_id, and task_id fields.
//
// Thread Safety: Safe for concurrent use.
func LoggerWithTask(ctx context.Context, logger *slog.Logger, channelID, taskID string) *slog.Logger {
	return LoggerWithChannel(ctx, logger, channelID).With(
		slog.String("task_id", taskID),
	)
}
