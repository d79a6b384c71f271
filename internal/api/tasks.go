package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"donotmiss/pkg/task"
)

func (s *Server) handleTaskList(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	tasks, err := s.tasks.List(r.Context(), status)
	if err != nil {
		writeTaskError(w, err)
		return
	}
	if tasks == nil {
		tasks = []task.Task{}
	}
	writeJSON(w, 200, tasks)
}

func (s *Server) handleTaskGet(w http.ResponseWriter, r *http.Request) {
	t, err := s.tasks.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeTaskError(w, err)
		return
	}
	writeJSON(w, 200, t)
}

func (s *Server) handleTaskCreate(w http.ResponseWriter, r *http.Request) {
	var req task.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, "invalid JSON: "+err.Error())
		return
	}
	t, err := s.lifecycle.Create(r.Context(), req)
	if err != nil {
		writeTaskError(w, err)
		return
	}
	writeJSON(w, 201, t)
}

func (s *Server) handleTaskUpdate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var updates map[string]any
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		writeError(w, 400, "invalid JSON: "+err.Error())
		return
	}
	t, err := s.tasks.Update(r.Context(), id, updates)
	if err != nil {
		writeTaskError(w, err)
		return
	}
	writeJSON(w, 200, t)
}

func (s *Server) handleTaskDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.tasks.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeTaskError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTaskDeleteAll(w http.ResponseWriter, r *http.Request) {
	n, err := s.tasks.DeleteAll(r.Context())
	if err != nil {
		writeTaskError(w, err)
		return
	}
	writeJSON(w, 200, map[string]any{
		"success": true,
		"message": fmt.Sprintf("All tasks deleted (%d)", n),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.tasks.CountByStatus(r.Context())
	if err != nil {
		writeTaskError(w, err)
		return
	}
	writeJSON(w, 200, stats)
}

func (s *Server) handleTaskMarkSent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	// Body is optional; the Forge app posts jiraKey/jiraUrl after creating
	// the issue itself.
	var body struct {
		JiraKey string `json:"jiraKey"`
		JiraURL string `json:"jiraUrl"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	t, err := s.lifecycle.MarkSent(r.Context(), id, body.JiraKey, body.JiraURL)
	if err != nil {
		writeTaskError(w, err)
		return
	}
	writeJSON(w, 200, t)
}

func (s *Server) handleTaskDecline(w http.ResponseWriter, r *http.Request) {
	t, err := s.lifecycle.Decline(r.Context(), r.PathValue("id"))
	if err != nil {
		writeTaskError(w, err)
		return
	}
	writeJSON(w, 200, t)
}

func (s *Server) handleTaskRestore(w http.ResponseWriter, r *http.Request) {
	t, err := s.lifecycle.Restore(r.Context(), r.PathValue("id"))
	if err != nil {
		writeTaskError(w, err)
		return
	}
	writeJSON(w, 200, t)
}
