package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-scraper/internal/gatekeeper"
	"github.com/JakeFAU/catalog-scraper/internal/scrape"
)

type scrapeRequest struct {
	URL          string `json:"url"`
	TargetType   string `json:"target_type"`
	ForceRefresh bool   `json:"force_refresh"`
}

type scrapeResponse struct {
	JobID int64 `json:"job_id"`
}

type failedItemsResponse struct {
	Items []scrape.FailedItem `json:"items"`
}

func (s *Server) requestScrape(w http.ResponseWriter, r *http.Request) {
	var req scrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.URL == "" {
		s.writeError(w, http.StatusBadRequest, "url required")
		return
	}
	jobID, err := s.service.RequestScrape(r.Context(), req.URL, scrape.TargetType(req.TargetType), req.ForceRefresh)
	if err != nil {
		if errors.Is(err, gatekeeper.ErrInvalidRequest) {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("scrape request failed", zap.String("url", req.URL), zap.Error(err))
		s.writeError(w, statusFor(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, scrapeResponse{JobID: jobID})
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "job_id"), 10, 64)
	if err != nil || id <= 0 {
		s.writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}
	job, err := s.service.GetJob(r.Context(), id)
	if err != nil {
		if errors.Is(err, scrape.ErrJobNotFound) {
			s.writeError(w, http.StatusNotFound, "job not found")
			return
		}
		s.writeError(w, statusFor(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, job)
}

func (s *Server) failedItems(w http.ResponseWriter, r *http.Request) {
	items, err := s.service.FailedItems(r.Context())
	if err != nil {
		s.writeError(w, statusFor(err), err.Error())
		return
	}
	if items == nil {
		items = []scrape.FailedItem{}
	}
	s.writeJSON(w, http.StatusOK, failedItemsResponse{Items: items})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
