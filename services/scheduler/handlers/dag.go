// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianSwarm/services/scheduler/dag"
	"github.com/AleutianAI/AleutianSwarm/services/scheduler/schedule"
)

// GetDagSummary returns the full graph snapshot for a channel: nodes, edges,
// version, and computed stats. A channel with no cached graph is a 404; all
// other read endpoints stay permissive and return empty results instead.
func GetDagSummary(sched *schedule.Scheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		channel := c.Param("channel")
		g := sched.GetDag(c.Request.Context(), channel)
		if g == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"error":      "no DAG found for channel",
				"channel_id": channel,
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"channel_id": g.ChannelID,
			"version":    g.Version,
			"nodes":      g.Nodes(),
			"edges":      g.Edges(),
			"stats":      sched.DagStats(c.Request.Context(), channel),
		})
	}
}

// GetExecutionOrder returns a dependency-respecting task order.
//
// Query params: include_completed, ready_only, statuses (comma separated).
func GetExecutionOrder(sched *schedule.Scheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		channel := c.Param("channel")
		opts := schedule.OrderOptions{
			IncludeCompleted: queryBool(c, "include_completed"),
			ReadyOnly:        queryBool(c, "ready_only"),
		}
		for _, s := range queryCSV(c, "statuses") {
			opts.Statuses = append(opts.Statuses, dag.Status(s))
		}

		order := sched.ExecutionOrder(c.Request.Context(), channel, opts)
		c.JSON(http.StatusOK, gin.H{
			"channel_id": channel,
			"order":      order,
			"count":      len(order),
		})
	}
}

// GetReadyTasks returns the tasks that can start right now.
//
// Query params: task_ids (comma separated), limit, sort_by (added_at|task_id),
// sort_direction (asc|desc).
func GetReadyTasks(sched *schedule.Scheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		channel := c.Param("channel")
		opts := schedule.ReadyOptions{
			TaskIDs:   queryCSV(c, "task_ids"),
			Limit:     queryInt(c, "limit"),
			SortBy:    schedule.ReadySort(c.Query("sort_by")),
			Direction: schedule.SortDirection(c.Query("sort_direction")),
		}

		tasks := sched.ReadyTasks(c.Request.Context(), channel, opts)
		c.JSON(http.StatusOK, gin.H{
			"channel_id": channel,
			"tasks":      tasks,
			"count":      len(tasks),
		})
	}
}

// GetParallelGroups returns batches of tasks that can run concurrently, in
// dependency level order.
func GetParallelGroups(sched *schedule.Scheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		channel := c.Param("channel")
		groups := sched.ParallelGroups(c.Request.Context(), channel)
		c.JSON(http.StatusOK, gin.H{
			"channel_id": channel,
			"groups":     groups,
			"count":      len(groups),
		})
	}
}

// GetCriticalPath returns the longest dependency chain through the graph.
func GetCriticalPath(sched *schedule.Scheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		channel := c.Param("channel")
		path := sched.CriticalPath(c.Request.Context(), channel)
		c.JSON(http.StatusOK, gin.H{
			"channel_id": channel,
			"path":       path,
			"length":     len(path),
		})
	}
}

// ValidateDag runs structural and hygiene checks on a channel's graph and
// returns the full report. An absent graph validates clean.
func ValidateDag(sched *schedule.Scheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		channel := c.Param("channel")
		report := sched.ValidateDag(c.Request.Context(), channel)
		c.JSON(http.StatusOK, gin.H{
			"channel_id": channel,
			"report":     report,
		})
	}
}

// GetTaskReady reports whether a single task is free to start. Fail open:
// unknown channels and unknown tasks read as ready.
func GetTaskReady(sched *schedule.Scheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		channel := c.Param("channel")
		task := c.Param("task")
		c.JSON(http.StatusOK, gin.H{
			"channel_id": channel,
			"task_id":    task,
			"ready":      sched.IsTaskReady(c.Request.Context(), channel, task),
		})
	}
}

// GetBlockingTasks returns the incomplete dependencies holding a task back.
func GetBlockingTasks(sched *schedule.Scheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		channel := c.Param("channel")
		task := c.Param("task")
		blocking := sched.BlockingTasks(c.Request.Context(), channel, task)
		c.JSON(http.StatusOK, gin.H{
			"channel_id": channel,
			"task_id":    task,
			"blocking":   blocking,
			"count":      len(blocking),
		})
	}
}

// queryBool parses a boolean query param, treating absence and garbage as
// false.
func queryBool(c *gin.Context, key string) bool {
	v, err := strconv.ParseBool(c.Query(key))
	if err != nil {
		return false
	}
	return v
}

// queryInt parses an integer query param, treating absence and garbage as
// zero so the scheduler's configured default applies.
func queryInt(c *gin.Context, key string) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return 0
	}
	return v
}

// queryCSV splits a comma separated query param into trimmed, non-empty
// elements.
func queryCSV(c *gin.Context, key string) []string {
	raw := c.Query(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
