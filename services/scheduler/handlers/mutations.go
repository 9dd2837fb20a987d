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
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianSwarm/pkg/validation"
	"github.com/AleutianAI/AleutianSwarm/services/scheduler/dag"
	"github.com/AleutianAI/AleutianSwarm/services/scheduler/schedule"
)

// BuildDagRequest is the body for a full graph rebuild.
type BuildDagRequest struct {
	Tasks []dag.TaskDescriptor `json:"tasks" binding:"required"`
}

// UpdateStatusRequest is the body for a task status change.
type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// BuildDag replaces a channel's graph with one built from the posted task
// list. Rebuilds are idempotent: posting the same list twice yields the
// same graph.
func BuildDag(sched *schedule.Scheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		channel, ok := channelParam(c)
		if !ok {
			return
		}
		var req BuildDagRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if !sched.Enabled() {
			c.JSON(http.StatusServiceUnavailable,
				gin.H{"error": "dependency tracking is disabled"})
			return
		}

		slog.Info("Received request to build DAG",
			"channel_id", channel, "tasks", len(req.Tasks))
		g := sched.BuildDag(c.Request.Context(), channel, req.Tasks)
		if g == nil {
			c.JSON(http.StatusServiceUnavailable,
				gin.H{"error": "dependency tracking is disabled"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"channel_id": g.ChannelID,
			"version":    g.Version,
			"node_count": g.NodeCount(),
			"edge_count": g.EdgeCount(),
		})
	}
}

// AddDependency records "dependency must complete before dependent" and maps
// the structural verdict to an HTTP status: 201 on commit, 404 for unknown
// graphs and tasks, 400 for self-dependencies, 409 for duplicates, cycles,
// and exhausted cycle-check budgets.
func AddDependency(sched *schedule.Scheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		channel, ok := channelParam(c)
		if !ok {
			return
		}
		var req schedule.DependencyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if !sched.Enabled() {
			c.JSON(http.StatusServiceUnavailable,
				gin.H{"error": "dependency tracking is disabled"})
			return
		}

		result := sched.AddDependency(c.Request.Context(), channel, req)
		if !result.Success {
			c.JSON(statusForCode(result.ErrorCode), result)
			return
		}
		c.JSON(http.StatusCreated, result)
	}
}

// RemoveDependency deletes a dependency edge. Removal is idempotent; the
// response reports whether the edge existed.
func RemoveDependency(sched *schedule.Scheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		channel, ok := channelParam(c)
		if !ok {
			return
		}
		var req schedule.DependencyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		removed := sched.RemoveDependency(c.Request.Context(), channel, req)
		c.JSON(http.StatusOK, gin.H{
			"channel_id": channel,
			"removed":    removed,
		})
	}
}

// AddTask inserts one task into a channel's graph, creating the graph if
// the channel has none. Declared dependencies on unknown tasks are dropped.
func AddTask(sched *schedule.Scheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		channel, ok := channelParam(c)
		if !ok {
			return
		}
		var req dag.TaskDescriptor
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if req.ID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "task id is required"})
			return
		}
		if !sched.Enabled() {
			c.JSON(http.StatusServiceUnavailable,
				gin.H{"error": "dependency tracking is disabled"})
			return
		}

		sched.AddTask(c.Request.Context(), channel, req)
		g := sched.GetDag(c.Request.Context(), channel)
		if g == nil {
			c.JSON(http.StatusServiceUnavailable,
				gin.H{"error": "dependency tracking is disabled"})
			return
		}
		node, ok := g.Node(req.ID)
		if !ok {
			// AddNode refuses blank ids only; guarded above, so this is
			// an eviction race.
			c.JSON(http.StatusNotFound, gin.H{
				"error":      "task not present after insert",
				"channel_id": channel,
				"task_id":    req.ID,
			})
			return
		}
		c.JSON(http.StatusCreated, gin.H{
			"channel_id": channel,
			"task":       node,
			"version":    g.Version,
		})
	}
}

// RemoveTask deletes a task and its incident edges. Removal is idempotent.
func RemoveTask(sched *schedule.Scheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		channel, ok := channelParam(c)
		if !ok {
			return
		}
		task := c.Param("task")
		removed := sched.RemoveTask(c.Request.Context(), channel, task)
		c.JSON(http.StatusOK, gin.H{
			"channel_id": channel,
			"task_id":    task,
			"removed":    removed,
		})
	}
}

// UpdateTaskStatus applies a status change and reports the status the task
// actually ended up in. The scheduler refuses some transitions silently
// (an enforced in_progress on a blocked task, for one), so the handler
// re-reads the node instead of assuming the request took effect.
func UpdateTaskStatus(sched *schedule.Scheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		channel, ok := channelParam(c)
		if !ok {
			return
		}
		task := c.Param("task")
		var req UpdateStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		status := dag.Status(req.Status)
		if !status.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":  "invalid task status",
				"status": req.Status,
			})
			return
		}
		if !sched.Enabled() {
			c.JSON(http.StatusServiceUnavailable,
				gin.H{"error": "dependency tracking is disabled"})
			return
		}

		g := sched.GetDag(c.Request.Context(), channel)
		if g == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"error":      "no DAG found for channel",
				"channel_id": channel,
			})
			return
		}
		if !g.HasNode(task) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":      "unknown task",
				"channel_id": channel,
				"task_id":    task,
			})
			return
		}

		sched.UpdateTaskStatus(c.Request.Context(), channel, task, status)

		applied := false
		current := dag.Status("")
		if g := sched.GetDag(c.Request.Context(), channel); g != nil {
			if n, ok := g.Node(task); ok {
				current = n.Status
				applied = n.Status == status
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"channel_id": channel,
			"task_id":    task,
			"requested":  status,
			"status":     current,
			"applied":    applied,
		})
	}
}

// channelParam validates the :channel path parameter before it can reach
// the snapshot store as a key. A mutation on a garbage channel would mint
// a graph, and a store key, for it; queries stay permissive and treat
// garbage as an unknown channel instead.
func channelParam(c *gin.Context) (string, bool) {
	channel, err := validation.SanitizeID(c.Param("channel"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid channel id"})
		return "", false
	}
	return channel, true
}

// statusForCode maps a structural rejection code to its HTTP status.
func statusForCode(code dag.ErrorCode) int {
	switch code {
	case dag.CodeNoGraph, dag.CodeMissingNode:
		return http.StatusNotFound
	case dag.CodeSelfDependency:
		return http.StatusBadRequest
	case dag.CodeDuplicateEdge, dag.CodeCycleDetected, dag.CodeBudgetExhausted:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
