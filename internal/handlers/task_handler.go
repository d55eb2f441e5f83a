// -----------------------------------------------------------------------
// Task Handler - Extraction task API requests
// -----------------------------------------------------------------------

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tabula/internal/common"
	"github.com/ternarybob/tabula/internal/interfaces"
	"github.com/ternarybob/tabula/internal/models"
	"github.com/ternarybob/tabula/internal/storage/badger"
)

// TaskHandler handles task-related API requests
type TaskHandler struct {
	taskStorage interfaces.TaskStorage
	artifacts   interfaces.ArtifactStore
	logger      arbor.ILogger
}

// NewTaskHandler creates a new task handler
func NewTaskHandler(taskStorage interfaces.TaskStorage, artifacts interfaces.ArtifactStore, logger arbor.ILogger) *TaskHandler {
	return &TaskHandler{
		taskStorage: taskStorage,
		artifacts:   artifacts,
		logger:      logger,
	}
}

// CreateTaskRequest is the POST /api/tasks payload
type CreateTaskRequest struct {
	Selection []string `json:"selection"`
}

// CreateTaskHandler creates a new pending extraction task
// POST /api/tasks
func (h *TaskHandler) CreateTaskHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Selection) == 0 {
		http.Error(w, "Selection is required", http.StatusBadRequest)
		return
	}

	task := models.NewTask(common.NewTaskID(), req.Selection)
	if err := task.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.taskStorage.CreateTask(ctx, task); err != nil {
		h.logger.Error().Err(err).Msg("Failed to create task")
		http.Error(w, "Failed to create task", http.StatusInternalServerError)
		return
	}

	h.logger.Info().
		Str("task_id", task.ID).
		Strs("selection", task.RequestedSelection).
		Msg("Task created")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(task)
}

// ListTasksHandler returns a paginated list of tasks
// GET /api/tasks?limit=50&offset=0&status=completed
func (h *TaskHandler) ListTasksHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit := 50
	offset := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil {
			limit = parsed
		}
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if parsed, err := strconv.Atoi(offsetStr); err == nil {
			offset = parsed
		}
	}

	opts := &interfaces.TaskListOptions{
		Status: r.URL.Query().Get("status"),
		Limit:  limit,
		Offset: offset,
	}

	tasks, err := h.taskStorage.ListTasks(ctx, opts)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list tasks")
		http.Error(w, "Failed to list tasks", http.StatusInternalServerError)
		return
	}

	response := map[string]interface{}{
		"tasks":  tasks,
		"count":  len(tasks),
		"limit":  limit,
		"offset": offset,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// GetTaskHandler returns a single task by ID
// GET /api/tasks/{id}
func (h *TaskHandler) GetTaskHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	taskID := taskIDFromPath(r.URL.Path)
	if taskID == "" {
		http.Error(w, "Task ID is required", http.StatusBadRequest)
		return
	}

	task, err := h.taskStorage.GetTask(ctx, taskID)
	if err != nil {
		if errors.Is(err, badger.ErrTaskNotFound) {
			http.Error(w, "Task not found", http.StatusNotFound)
			return
		}
		h.logger.Error().Err(err).Str("task_id", taskID).Msg("Failed to get task")
		http.Error(w, "Failed to get task", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(task)
}

// DownloadArtifactHandler streams the artifact of a completed task.
// Download is refused unless the task is completed; partial artifacts are
// never exposed.
// GET /api/tasks/{id}/download
func (h *TaskHandler) DownloadArtifactHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	taskID := taskIDFromPath(r.URL.Path)
	if taskID == "" {
		http.Error(w, "Task ID is required", http.StatusBadRequest)
		return
	}

	task, err := h.taskStorage.GetTask(ctx, taskID)
	if err != nil {
		if errors.Is(err, badger.ErrTaskNotFound) {
			http.Error(w, "Task not found", http.StatusNotFound)
			return
		}
		h.logger.Error().Err(err).Str("task_id", taskID).Msg("Failed to get task")
		http.Error(w, "Failed to get task", http.StatusInternalServerError)
		return
	}

	if task.Status != models.TaskStatusCompleted {
		http.Error(w, "Task is not completed", http.StatusConflict)
		return
	}

	data, err := h.artifacts.Read(taskID)
	if err != nil {
		h.logger.Error().Err(err).Str("task_id", taskID).Msg("Failed to read artifact")
		http.Error(w, "Artifact unavailable", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename=\""+taskID+".csv\"")
	w.Write(data)
}

// GetTaskStatsHandler returns task counts by status
// GET /api/tasks/stats
func (h *TaskHandler) GetTaskStatsHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stats, err := h.taskStorage.GetStats(ctx)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to get task stats")
		http.Error(w, "Failed to get task stats", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// taskIDFromPath extracts the task ID from /api/tasks/{id} and subpaths
func taskIDFromPath(path string) string {
	pathParts := strings.Split(strings.Trim(path, "/"), "/")
	if len(pathParts) < 3 {
		return ""
	}
	return pathParts[2]
}
