package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"donotmiss/pkg/jira"
	"donotmiss/pkg/task"
)

// Server is the HTTP API server.
type Server struct {
	tasks     task.Store
	lifecycle *task.Service
	jira      *jira.Client
	mux       *http.ServeMux
}

// New creates a new Server.
func New(tasks task.Store, lifecycle *task.Service, jiraClient *jira.Client) *Server {
	s := &Server{
		tasks:     tasks,
		lifecycle: lifecycle,
		jira:      jiraClient,
		mux:       http.NewServeMux(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler. Every response carries permissive
// CORS headers so the browser extension can call from any page.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.mux.ServeHTTP(w, r)
}

func (s *Server) routes() {
	// Tasks
	s.mux.HandleFunc("GET /api/tasks", s.handleTaskList)
	s.mux.HandleFunc("POST /api/tasks", s.handleTaskCreate)
	s.mux.HandleFunc("DELETE /api/tasks", s.handleTaskDeleteAll)
	s.mux.HandleFunc("GET /api/tasks/{id}", s.handleTaskGet)
	s.mux.HandleFunc("PUT /api/tasks/{id}", s.handleTaskUpdate)
	s.mux.HandleFunc("DELETE /api/tasks/{id}", s.handleTaskDelete)

	// Lifecycle
	s.mux.HandleFunc("POST /api/tasks/{id}/mark-sent", s.handleTaskMarkSent)
	s.mux.HandleFunc("POST /api/tasks/{id}/decline", s.handleTaskDecline)
	s.mux.HandleFunc("POST /api/tasks/{id}/restore", s.handleTaskRestore)

	// Jira
	s.mux.HandleFunc("POST /api/tasks/{id}/send", s.handleTaskSend)
	s.mux.HandleFunc("POST /api/tasks/create-and-send", s.handleTaskCreateAndSend)
	s.mux.HandleFunc("GET /api/jira/status", s.handleJiraStatus)

	// System
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/stats", s.handleStats)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, 200, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write json: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeTaskError maps store and validation errors onto HTTP statuses.
func writeTaskError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, task.ErrNotFound):
		writeError(w, 404, err.Error())
	case errors.Is(err, task.ErrValidation):
		writeError(w, 400, err.Error())
	default:
		writeError(w, 500, err.Error())
	}
}
