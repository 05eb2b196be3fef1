package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/tsukimori/sakuin/internal/corpus"
	"github.com/tsukimori/sakuin/internal/ensemble"
	"github.com/tsukimori/sakuin/internal/extract"
	"github.com/tsukimori/sakuin/internal/project"
	"github.com/tsukimori/sakuin/internal/suggestion"
	"github.com/tsukimori/sakuin/internal/training"
	"github.com/tsukimori/sakuin/pkg/utils"
)

type suggestRequest struct {
	Text      string   `json:"text"`
	Limit     int      `json:"limit,omitempty"`
	Threshold *float64 `json:"threshold,omitempty"`
}

type suggestResponse struct {
	ProjectID   string            `json:"project_id"`
	Suggestions suggestion.Result `json:"suggestions"`
}

type learnRequest struct {
	Documents []corpus.Document `json:"documents"`
}

type trainRequest struct {
	// Path is a server-local corpus path (TSV, JSONL, or a document
	// directory with .key sidecars). Mutually exclusive with Documents.
	Path        string            `json:"path,omitempty"`
	Documents   []corpus.Document `json:"documents,omitempty"`
	Incremental bool              `json:"incremental,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	infos := make([]project.Info, 0)
	for _, p := range s.registry.List() {
		info, err := s.registry.Dump(p.ID)
		if err != nil {
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		infos = append(infos, info)
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"projects": infos})
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	info, err := s.registry.Dump(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusNotFound, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, info)
}

func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	p, err := s.registry.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusNotFound, err.Error())
		return
	}
	var req suggestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		s.respondError(w, http.StatusBadRequest, "text is required")
		return
	}

	opts := ensemble.Options{
		Limit:     s.config.Ensemble.DefaultLimit,
		Threshold: s.config.Ensemble.DefaultThreshold,
	}
	if req.Limit > 0 {
		opts.Limit = req.Limit
	}
	if opts.Limit > s.config.Ensemble.MaxLimit {
		opts.Limit = s.config.Ensemble.MaxLimit
	}
	if req.Threshold != nil {
		opts.Threshold = *req.Threshold
	}

	s.logger.Debug("suggest request",
		zap.String("project", p.ID),
		zap.String("text", utils.Truncate(req.Text, 120)),
		zap.Int("limit", opts.Limit))

	res, err := p.Suggest(r.Context(), req.Text, opts)
	if err != nil {
		var ex *ensemble.ExhaustedError
		if errors.As(err, &ex) {
			s.logger.Warn("all backends failed", zap.String("project", p.ID), zap.Error(err))
			s.respondError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		s.logger.Error("suggest failed", zap.String("project", p.ID), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if res == nil {
		res = suggestion.Result{}
	}
	s.respondJSON(w, http.StatusOK, suggestResponse{ProjectID: p.ID, Suggestions: res})
}

// handleLearn applies labeled documents incrementally and synchronously.
// Meant for small online updates; bulk retraining goes through the
// asynchronous train endpoint.
func (s *Server) handleLearn(w http.ResponseWriter, r *http.Request) {
	p, err := s.registry.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusNotFound, err.Error())
		return
	}
	var req learnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Documents) == 0 {
		s.respondError(w, http.StatusBadRequest, "documents are required")
		return
	}
	if s.jobs.Running(p.ID) {
		s.respondError(w, http.StatusConflict, "training already in progress")
		return
	}

	report, err := s.coordinator.Train(r.Context(), p.ID, p.Backends(), p.Engine(), req.Documents, true)
	if err != nil {
		s.logger.Error("learn failed", zap.String("project", p.ID), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, report)
}

// handleTrain starts an asynchronous training job and returns its id for
// polling.
func (s *Server) handleTrain(w http.ResponseWriter, r *http.Request) {
	p, err := s.registry.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusNotFound, err.Error())
		return
	}
	var req trainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Path == "" && len(req.Documents) == 0 {
		s.respondError(w, http.StatusBadRequest, "path or documents are required")
		return
	}
	if s.jobs.Running(p.ID) {
		s.respondError(w, http.StatusConflict, "training already in progress")
		return
	}

	docs := req.Documents
	if req.Path != "" {
		loaded, err := corpus.Load(req.Path, extract.NewExtractor())
		if err != nil {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		docs = loaded
	}

	jobID := s.jobs.Start(p.ID, func() (*training.Report, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 24*time.Hour)
		defer cancel()
		return s.coordinator.Train(ctx, p.ID, p.Backends(), p.Engine(), docs, req.Incremental)
	})
	s.respondJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID, "project_id": p.ID})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusNotFound, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, job)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.registry.Get(id); err != nil {
		s.respondError(w, http.StatusNotFound, err.Error())
		return
	}
	if s.jobs.Running(id) {
		s.respondError(w, http.StatusConflict, "training already in progress")
		return
	}
	if err := s.registry.Clear(id); err != nil {
		s.logger.Error("clear failed", zap.String("project", id), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"project_id": id, "status": "cleared"})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
