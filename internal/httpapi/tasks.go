package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ent0n29/checklist/internal/tasks"
)

type createTaskRequest struct {
	Text string `json:"text"`
}

type listTasksResponse struct {
	Filter tasks.FilterMode `json:"filter"`
	Tasks  []tasks.Task     `json:"tasks"`
	Counts tasks.Counts     `json:"counts"`
}

type clearCompletedResponse struct {
	Removed int `json:"removed"`
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	mode, ok := tasks.ParseFilterMode(r.URL.Query().Get("filter"))
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_filter", "filter must be one of all|active|completed")
		return
	}
	snap := s.tasks.Snapshot()
	list := make([]tasks.Task, 0, len(snap.Tasks))
	for _, t := range snap.Tasks {
		if mode.Matches(t) {
			list = append(list, t)
		}
	}
	respondJSON(w, http.StatusOK, listTasksResponse{
		Filter: mode,
		Tasks:  list,
		Counts: snap.Counts,
	})
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	task, ok := s.tasks.Add(req.Text)
	if !ok {
		// Blank text is dropped without an error state.
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.recordMutation("add")
	respondJSON(w, http.StatusCreated, task)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	taskID, ok := taskIDParam(w, r)
	if !ok {
		return
	}
	task, err := s.tasks.Get(taskID)
	if err != nil {
		if errors.Is(err, tasks.ErrTaskNotFound) {
			respondError(w, http.StatusNotFound, "task_not_found", err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "task_lookup_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, task)
}

func (s *Server) handleToggleTask(w http.ResponseWriter, r *http.Request) {
	taskID, ok := taskIDParam(w, r)
	if !ok {
		return
	}
	task, ok := s.tasks.Toggle(taskID)
	if !ok {
		respondError(w, http.StatusNotFound, "task_not_found", tasks.ErrTaskNotFound.Error())
		return
	}
	s.recordMutation("toggle")
	respondJSON(w, http.StatusOK, task)
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	taskID, ok := taskIDParam(w, r)
	if !ok {
		return
	}
	if !s.tasks.Delete(taskID) {
		respondError(w, http.StatusNotFound, "task_not_found", tasks.ErrTaskNotFound.Error())
		return
	}
	s.recordMutation("delete")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClearCompleted(w http.ResponseWriter, _ *http.Request) {
	removed := s.tasks.ClearCompleted()
	if removed > 0 {
		s.recordMutation("clear_completed")
	}
	respondJSON(w, http.StatusOK, clearCompletedResponse{Removed: removed})
}

func (s *Server) handleCounts(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.tasks.Counts())
}

func taskIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	taskID := strings.TrimSpace(chi.URLParam(r, "id"))
	if taskID == "" {
		respondError(w, http.StatusBadRequest, "invalid_task_id", "missing task id")
		return "", false
	}
	return taskID, true
}
