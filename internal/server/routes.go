package server

import (
	"net/http"
	"strings"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// API routes - Tasks (extraction task management)
	mux.HandleFunc("/api/tasks/stats", s.app.TaskHandler.GetTaskStatsHandler)
	mux.HandleFunc("/api/tasks", s.handleTasksRoute)
	mux.HandleFunc("/api/tasks/", s.handleTaskRoutes) // Handles /api/tasks/{id} and subpaths

	// API routes - Portal options
	mux.HandleFunc("/api/options", s.app.OptionsHandler.GetOptionsHandler)

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// handleTasksRoute routes /api/tasks requests (list and create)
func (s *Server) handleTasksRoute(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "GET":
		s.app.TaskHandler.ListTasksHandler(w, r)
	case "POST":
		s.app.TaskHandler.CreateTaskHandler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleTaskRoutes routes /api/tasks/{id} requests and subpaths
func (s *Server) handleTaskRoutes(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	// GET /api/tasks/{id}/download
	if r.Method == "GET" && strings.HasSuffix(path, "/download") {
		s.app.TaskHandler.DownloadArtifactHandler(w, r)
		return
	}

	// GET /api/tasks/{id}
	if r.Method == "GET" && len(path) > len("/api/tasks/") {
		s.app.TaskHandler.GetTaskHandler(w, r)
		return
	}

	http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
}
