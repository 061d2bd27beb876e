package httpapi

import (
	"net/http"

	"github.com/ent0n29/checklist/internal/tasks"
)

type uiSettingsResponse struct {
	StoreBackend  string             `json:"store_backend"`
	Filters       []tasks.FilterMode `json:"filters"`
	DefaultFilter tasks.FilterMode   `json:"default_filter"`
	LiveUpdates   bool               `json:"live_updates"`
}

func (s *Server) handleUISettings(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, uiSettingsResponse{
		StoreBackend:  s.tasks.StoreName(),
		Filters:       tasks.FilterModes,
		DefaultFilter: tasks.FilterAll,
		LiveUpdates:   true,
	})
}
