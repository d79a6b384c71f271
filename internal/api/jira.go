package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"donotmiss/pkg/task"
)

func (s *Server) handleTaskSend(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	t, err := s.lifecycle.Send(r.Context(), id)
	if err != nil {
		if errors.Is(err, task.ErrNotFound) {
			writeError(w, 404, err.Error())
			return
		}
		// Tracker or configuration failure; the task is untouched.
		writeError(w, 500, err.Error())
		return
	}
	writeJSON(w, 200, t)
}

func (s *Server) handleTaskCreateAndSend(w http.ResponseWriter, r *http.Request) {
	var req task.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, "invalid JSON: "+err.Error())
		return
	}

	t, err := s.lifecycle.CreateAndSend(r.Context(), req)
	if err != nil {
		if t != nil {
			// Persisted but not sent; hand both back so the client can retry.
			writeJSON(w, 500, map[string]any{"error": err.Error(), "task": t})
			return
		}
		writeTaskError(w, err)
		return
	}
	writeJSON(w, 201, t)
}

func (s *Server) handleJiraStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, 200, map[string]any{
		"configured": s.jira.Configured(),
		"site":       s.jira.Site,
		"project":    s.jira.ProjectKey,
	})
}
