// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianSwarm/pkg/extensions"
	"github.com/AleutianAI/AleutianSwarm/services/scheduler/handlers"
	"github.com/AleutianAI/AleutianSwarm/services/scheduler/middleware"
	"github.com/AleutianAI/AleutianSwarm/services/scheduler/schedule"
	"github.com/AleutianAI/AleutianSwarm/services/scheduler/telemetry"
)

// SetupRoutes registers the scheduler's HTTP surface.
//
// Probes and metrics sit outside the rate limiter so operators keep
// visibility while the API throttles. A nil hub skips the websocket
// route; a nil limiter skips throttling entirely.
//
// Auth and audit middleware are always installed. With the default
// extensions.DefaultOptions() both are nops, so the open-source build
// pays nothing; hosted deployments swap the providers without touching
// the route table.
func SetupRoutes(router *gin.Engine, sched *schedule.Scheduler,
	hub *schedule.Hub, limiter *middleware.ClientLimiter,
	opts extensions.ServiceOptions) {

	router.GET("/healthz", handlers.HealthCheck)
	if h := telemetry.MetricsHandler(); h != nil {
		router.GET("/metrics", gin.WrapH(h))
	}

	// API version 1 group
	v1 := router.Group("/v1")
	if limiter != nil {
		v1.Use(middleware.RateLimitMiddleware(limiter))
	}
	v1.Use(middleware.AuthMiddleware(opts.AuthProvider))
	v1.Use(middleware.AuditMiddleware(opts.AuditLogger))
	{
		// Per-channel graph routes
		channels := v1.Group("/channels/:channel")
		{
			channels.GET("/dag", handlers.GetDagSummary(sched))
			channels.POST("/dag", handlers.BuildDag(sched))
			channels.GET("/dag/order", handlers.GetExecutionOrder(sched))
			channels.GET("/dag/ready", handlers.GetReadyTasks(sched))
			channels.GET("/dag/groups", handlers.GetParallelGroups(sched))
			channels.GET("/dag/critical-path", handlers.GetCriticalPath(sched))
			channels.GET("/dag/validate", handlers.ValidateDag(sched))
			channels.POST("/dependencies", handlers.AddDependency(sched))
			channels.DELETE("/dependencies", handlers.RemoveDependency(sched))
			channels.POST("/tasks", handlers.AddTask(sched))
			channels.DELETE("/tasks/:task", handlers.RemoveTask(sched))
			channels.PATCH("/tasks/:task/status", handlers.UpdateTaskStatus(sched))
			channels.GET("/tasks/:task/ready", handlers.GetTaskReady(sched))
			channels.GET("/tasks/:task/blocking", handlers.GetBlockingTasks(sched))
		}
		// Event stream route
		if hub != nil {
			v1.GET("/dag/events", handlers.DagEvents(hub))
		}
	}
}
