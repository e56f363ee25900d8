package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/govambam/macroscope-code-review-sub002/internal/recreate"
)

type recreateRequest struct {
	PRURL     string `json:"pr_url"`
	CacheRepo bool   `json:"cache_repo"`
}

type recreateResponse struct {
	JobID string `json:"job_id"`
	PRURL string `json:"pr_url"`
}

type jobEventsResponse struct {
	JobID  string           `json:"job_id"`
	PRURL  string           `json:"pr_url"`
	Done   bool             `json:"done"`
	Events []recreate.Event `json:"events"`
}

func (s *Server) handleRecreate(w http.ResponseWriter, r *http.Request) {
	var req recreateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if _, err := recreate.ParsePRURL(req.PRURL); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// The recreation outlives this request; progress is consumed via the
	// job endpoints.
	stream := s.engine.Recreate(context.Background(), req.PRURL, req.CacheRepo)
	job := s.jobs.Create(req.PRURL, stream)
	s.logger.Info("recreation started", "job", job.ID, "pr", req.PRURL, "cache", req.CacheRepo)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(recreateResponse{JobID: job.ID, PRURL: job.PRURL})
}

func (s *Server) handleJobEvents(w http.ResponseWriter, r *http.Request) {
	job, found := s.jobs.Get(chi.URLParam(r, "jobID"))
	if !found {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(jobEventsResponse{
		JobID:  job.ID,
		PRURL:  job.PRURL,
		Done:   job.Done(),
		Events: job.Events(),
	})
}
