// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// Tests for the DAG mutation handlers

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianSwarm/services/scheduler/dag"
	"github.com/AleutianAI/AleutianSwarm/services/scheduler/schedule"
)

// mutationRouter wires every write endpoint the way the route table does.
func mutationRouter(sched *schedule.Scheduler) *gin.Engine {
	router := gin.New()
	router.POST("/v1/channels/:channel/dag", BuildDag(sched))
	router.POST("/v1/channels/:channel/dependencies", AddDependency(sched))
	router.DELETE("/v1/channels/:channel/dependencies", RemoveDependency(sched))
	router.POST("/v1/channels/:channel/tasks", AddTask(sched))
	router.DELETE("/v1/channels/:channel/tasks/:task", RemoveTask(sched))
	router.PATCH("/v1/channels/:channel/tasks/:task/status", UpdateTaskStatus(sched))
	return router
}

// doJSON issues a request with a JSON body and decodes the JSON response.
func doJSON(t *testing.T, router *gin.Engine, method, path, body string) (int, map[string]interface{}) {
	t.Helper()
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded))
	return w.Code, decoded
}

// =============================================================================
// BuildDag Tests
// =============================================================================

func TestBuildDag_CreatesGraph(t *testing.T) {
	sched := newTestScheduler(t)
	router := mutationRouter(sched)

	code, body := doJSON(t, router, "POST", "/v1/channels/C-build/dag",
		`{"tasks": [
			{"id": "T-1", "status": "pending"},
			{"id": "T-2", "status": "pending", "dependsOn": ["T-1"]}
		]}`)

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "C-build", body["channel_id"])
	assert.Equal(t, float64(2), body["node_count"])
	assert.Equal(t, float64(1), body["edge_count"])

	g := sched.GetDag(context.Background(), "C-build")
	require.NotNil(t, g)
	assert.True(t, g.HasEdge("T-1", "T-2"))
}

func TestBuildDag_InvalidBody(t *testing.T) {
	sched := newTestScheduler(t)
	router := mutationRouter(sched)

	code, body := doJSON(t, router, "POST", "/v1/channels/C-build/dag",
		`{"tasks": "not a list"}`)

	assert.Equal(t, http.StatusBadRequest, code)
	assert.NotEmpty(t, body["error"])
}

func TestBuildDag_Disabled(t *testing.T) {
	cfg := schedule.DefaultConfig()
	cfg.Enabled = false
	sched, err := schedule.New(cfg)
	require.NoError(t, err)
	router := mutationRouter(sched)

	code, body := doJSON(t, router, "POST", "/v1/channels/C-build/dag",
		`{"tasks": []}`)

	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, body["error"], "disabled")
}

// =============================================================================
// AddDependency Tests
// =============================================================================

func TestAddDependency_Success(t *testing.T) {
	sched := newTestScheduler(t)
	seedChain(t, sched)
	router := mutationRouter(sched)

	code, body := doJSON(t, router, "POST", "/v1/channels/C-query/dependencies",
		`{"dependent_task_id": "T-4", "dependency_task_id": "T-1", "label": "handoff"}`)

	assert.Equal(t, http.StatusCreated, code)
	assert.Equal(t, true, body["success"])
	edge, ok := body["edge"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "T-1", edge["from"])
	assert.Equal(t, "T-4", edge["to"])
	assert.Equal(t, "handoff", edge["label"])
}

func TestAddDependency_MissingField(t *testing.T) {
	sched := newTestScheduler(t)
	seedChain(t, sched)
	router := mutationRouter(sched)

	code, _ := doJSON(t, router, "POST", "/v1/channels/C-query/dependencies",
		`{"dependent_task_id": "T-4"}`)

	assert.Equal(t, http.StatusBadRequest, code)
}

func TestAddDependency_NoGraph(t *testing.T) {
	sched := newTestScheduler(t)
	router := mutationRouter(sched)

	code, body := doJSON(t, router, "POST", "/v1/channels/C-none/dependencies",
		`{"dependent_task_id": "T-2", "dependency_task_id": "T-1"}`)

	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, string(dag.CodeNoGraph), body["error_code"])
}

func TestAddDependency_MissingNode(t *testing.T) {
	sched := newTestScheduler(t)
	seedChain(t, sched)
	router := mutationRouter(sched)

	code, body := doJSON(t, router, "POST", "/v1/channels/C-query/dependencies",
		`{"dependent_task_id": "T-99", "dependency_task_id": "T-1"}`)

	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, string(dag.CodeMissingNode), body["error_code"])
}

func TestAddDependency_SelfDependency(t *testing.T) {
	sched := newTestScheduler(t)
	seedChain(t, sched)
	router := mutationRouter(sched)

	code, body := doJSON(t, router, "POST", "/v1/channels/C-query/dependencies",
		`{"dependent_task_id": "T-2", "dependency_task_id": "T-2"}`)

	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, string(dag.CodeSelfDependency), body["error_code"])
}

func TestAddDependency_DuplicateEdge(t *testing.T) {
	sched := newTestScheduler(t)
	seedChain(t, sched)
	router := mutationRouter(sched)

	code, body := doJSON(t, router, "POST", "/v1/channels/C-query/dependencies",
		`{"dependent_task_id": "T-2", "dependency_task_id": "T-1"}`)

	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, string(dag.CodeDuplicateEdge), body["error_code"])
}

func TestAddDependency_Cycle(t *testing.T) {
	sched := newTestScheduler(t)
	seedChain(t, sched)
	router := mutationRouter(sched)

	// T-2 -> T-3 exists; the reverse closes a loop.
	code, body := doJSON(t, router, "POST", "/v1/channels/C-query/dependencies",
		`{"dependent_task_id": "T-2", "dependency_task_id": "T-3"}`)

	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, string(dag.CodeCycleDetected), body["error_code"])
	assert.NotEmpty(t, body["cycle_path"])
}

// =============================================================================
// RemoveDependency Tests
// =============================================================================

func TestRemoveDependency_Idempotent(t *testing.T) {
	sched := newTestScheduler(t)
	seedChain(t, sched)
	router := mutationRouter(sched)

	body := `{"dependent_task_id": "T-3", "dependency_task_id": "T-2"}`

	code, first := doJSON(t, router, "DELETE", "/v1/channels/C-query/dependencies", body)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, first["removed"])

	code, second := doJSON(t, router, "DELETE", "/v1/channels/C-query/dependencies", body)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, second["removed"])
}

// =============================================================================
// AddTask / RemoveTask Tests
// =============================================================================

func TestAddTask_CreatesChannel(t *testing.T) {
	sched := newTestScheduler(t)
	router := mutationRouter(sched)

	code, body := doJSON(t, router, "POST", "/v1/channels/C-fresh/tasks",
		`{"id": "T-1", "status": "pending"}`)

	assert.Equal(t, http.StatusCreated, code)
	task, ok := body["task"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "T-1", task["task_id"])
	assert.Equal(t, "pending", task["status"])
	assert.Equal(t, true, task["ready"])
}

func TestAddTask_WithDependencies(t *testing.T) {
	sched := newTestScheduler(t)
	seedChain(t, sched)
	router := mutationRouter(sched)

	code, body := doJSON(t, router, "POST", "/v1/channels/C-query/tasks",
		`{"id": "T-5", "status": "pending", "dependsOn": ["T-2", "T-404"]}`)

	assert.Equal(t, http.StatusCreated, code)
	task, ok := body["task"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(1), task["in_degree"], "unknown dependencies are dropped")
	assert.Equal(t, false, task["ready"])
}

func TestAddTask_MissingID(t *testing.T) {
	sched := newTestScheduler(t)
	router := mutationRouter(sched)

	code, body := doJSON(t, router, "POST", "/v1/channels/C-fresh/tasks",
		`{"status": "pending"}`)

	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, body["error"], "task id")
}

func TestRemoveTask_Idempotent(t *testing.T) {
	sched := newTestScheduler(t)
	seedChain(t, sched)
	router := mutationRouter(sched)

	code, first := doJSON(t, router, "DELETE", "/v1/channels/C-query/tasks/T-4", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, first["removed"])

	code, second := doJSON(t, router, "DELETE", "/v1/channels/C-query/tasks/T-4", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, second["removed"])
}

// =============================================================================
// UpdateTaskStatus Tests
// =============================================================================

func TestUpdateTaskStatus_Applies(t *testing.T) {
	sched := newTestScheduler(t)
	seedChain(t, sched)
	router := mutationRouter(sched)

	code, body := doJSON(t, router, "PATCH", "/v1/channels/C-query/tasks/T-2/status",
		`{"status": "completed"}`)

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["applied"])
	assert.Equal(t, "completed", body["status"])

	// Completing T-2 frees T-3.
	assert.True(t, sched.IsTaskReady(context.Background(), "C-query", "T-3"))
}

func TestUpdateTaskStatus_InvalidStatus(t *testing.T) {
	sched := newTestScheduler(t)
	seedChain(t, sched)
	router := mutationRouter(sched)

	code, body := doJSON(t, router, "PATCH", "/v1/channels/C-query/tasks/T-2/status",
		`{"status": "done"}`)

	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, body["error"], "invalid task status")
}

func TestUpdateTaskStatus_UnknownChannel(t *testing.T) {
	sched := newTestScheduler(t)
	router := mutationRouter(sched)

	code, _ := doJSON(t, router, "PATCH", "/v1/channels/C-none/tasks/T-1/status",
		`{"status": "completed"}`)

	assert.Equal(t, http.StatusNotFound, code)
}

func TestUpdateTaskStatus_UnknownTask(t *testing.T) {
	sched := newTestScheduler(t)
	seedChain(t, sched)
	router := mutationRouter(sched)

	code, body := doJSON(t, router, "PATCH", "/v1/channels/C-query/tasks/T-99/status",
		`{"status": "completed"}`)

	assert.Equal(t, http.StatusNotFound, code)
	assert.Contains(t, body["error"], "unknown task")
}

func TestUpdateTaskStatus_EnforcementRefusal(t *testing.T) {
	cfg := schedule.DefaultConfig()
	cfg.EnforceOnStatusChange = true
	sched, err := schedule.New(cfg)
	require.NoError(t, err)
	seedChain(t, sched)
	router := mutationRouter(sched)

	// T-3 still waits on T-2, so an enforced start must not take.
	code, body := doJSON(t, router, "PATCH", "/v1/channels/C-query/tasks/T-3/status",
		`{"status": "in_progress"}`)

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["applied"])
	assert.Equal(t, "pending", body["status"])
	assert.Equal(t, "in_progress", body["requested"])
}

// =============================================================================
// Channel Validation Tests
// =============================================================================

func TestMutations_InvalidChannelRejected(t *testing.T) {
	sched := newTestScheduler(t)
	router := mutationRouter(sched)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
	}{
		{"build", "POST", "/v1/channels/.hidden/dag", `{"tasks": []}`},
		{"add dependency", "POST", "/v1/channels/.hidden/dependencies",
			`{"dependent_task_id": "T-2", "dependency_task_id": "T-1"}`},
		{"remove dependency", "DELETE", "/v1/channels/.hidden/dependencies",
			`{"dependent_task_id": "T-2", "dependency_task_id": "T-1"}`},
		{"add task", "POST", "/v1/channels/.hidden/tasks", `{"id": "T-1"}`},
		{"remove task", "DELETE", "/v1/channels/.hidden/tasks/T-1", ""},
		{"update status", "PATCH", "/v1/channels/.hidden/tasks/T-1/status",
			`{"status": "completed"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := doJSON(t, router, tt.method, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, code)
			assert.Contains(t, body["error"], "invalid channel id")
		})
	}

	// The rejected channel never reached the scheduler, so no graph was
	// minted for it.
	assert.Nil(t, sched.GetDag(context.Background(), ".hidden"))
}
