package server

import (
	"encoding/json"
	"net/http"

	"github.com/kylerisse/aemawait/pkg/check"
)

// RunAPIResponse is the body of /api.
type RunAPIResponse struct {
	Status      RunStatus                `json:"status"`
	RunningTime string                   `json:"runningTime"`
	AbortCause  string                   `json:"abortCause,omitempty"`
	Instances   []check.ProgressSnapshot `json:"instances"`
}

func (s *Server) handleAPI(w http.ResponseWriter, _ *http.Request) {
	snaps := s.source.Snapshots()
	resp := RunAPIResponse{
		Status:      computeRunStatus(snaps, s.source.Aborted()),
		RunningTime: check.Duration(s.source.RunningTime()),
		Instances:   snaps,
	}
	if err := s.source.AbortCause(); err != nil {
		resp.AbortCause = err.Error()
	}
	s.writeJSON(w, resp)
}

func (s *Server) handleInstanceAPI(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	for _, snap := range s.source.Snapshots() {
		if snap.Instance == name {
			s.writeJSON(w, snap)
			return
		}
	}
	http.Error(w, "instance not found", http.StatusNotFound)
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Errorf("Failed to encode response: %v", err)
	}
}
