package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/lead-enricher/internal/config"
	"github.com/JakeFAU/lead-enricher/internal/enrichment"
	"github.com/JakeFAU/lead-enricher/internal/metrics"
	"github.com/JakeFAU/lead-enricher/internal/places"
)

const maxBodyBytes = 64 << 10

// Enqueuer accepts queued search jobs.
type Enqueuer interface {
	Enqueue(ctx context.Context, item enrichment.QueueItem) error
}

// Runner executes a search synchronously.
type Runner interface {
	Run(ctx context.Context, req enrichment.SearchRequest) (enrichment.Result, error)
}

// ReadyFunc reports whether downstream dependencies can take traffic.
type ReadyFunc func(ctx context.Context) error

// Server wires HTTP handlers to the dispatcher and stores.
type Server struct {
	router   chi.Router
	jobStore enrichment.JobStore
	enqueuer Enqueuer
	runner   Runner
	idGen    enrichment.IDGenerator
	clock    enrichment.Clock
	ready    ReadyFunc
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes. ready may be nil.
func NewServer(
	jobStore enrichment.JobStore,
	enqueuer Enqueuer,
	runner Runner,
	idGen enrichment.IDGenerator,
	clock enrichment.Clock,
	ready ReadyFunc,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		jobStore: jobStore,
		enqueuer: enqueuer,
		runner:   runner,
		idGen:    idGen,
		clock:    clock,
		ready:    ready,
		logger:   logger,
	}

	timeout := time.Duration(cfg.Server.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1/searches", func(r chi.Router) {
		r.Use(timeoutMiddleware(timeout))
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Post("/", s.submitSearch)
		r.Post("/run", s.runSearch)
		r.Route("/{job_id}", func(r chi.Router) {
			r.Get("/status", s.getJobStatus)
			r.Get("/result", s.getJobResult)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type searchRequest struct {
	City     string `json:"city"`
	Area     string `json:"area"`
	Industry string `json:"industry"`
	Limit    int    `json:"limit"`
}

func (req searchRequest) toDomain() enrichment.SearchRequest {
	return enrichment.SearchRequest{City: req.City, Area: req.Area, Industry: req.Industry, Limit: req.Limit}
}

func decodeSearch(w http.ResponseWriter, r *http.Request) (enrichment.SearchRequest, bool) {
	var body searchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return enrichment.SearchRequest{}, false
	}
	req := body.toDomain()
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return enrichment.SearchRequest{}, false
	}
	return req, true
}

func (s *Server) submitSearch(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeSearch(w, r)
	if !ok {
		return
	}
	jobID, err := s.enqueueJob(r.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusServiceUnavailable
		}
		s.logger.Error("enqueue search failed", zap.Error(err))
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
}

func (s *Server) runSearch(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeSearch(w, r)
	if !ok {
		return
	}
	result, err := s.runner.Run(r.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, places.ErrProvider):
			status = http.StatusBadGateway
		case errors.Is(err, enrichment.ErrInvalidRequest):
			status = http.StatusBadRequest
		case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
			status = http.StatusGatewayTimeout
		}
		s.logger.Error("synchronous search failed", zap.Error(err))
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) getJobStatus(w http.ResponseWriter, r *http.Request) {
	job, ok := s.lookupJob(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job": job})
}

func (s *Server) getJobResult(w http.ResponseWriter, r *http.Request) {
	job, ok := s.lookupJob(w, r)
	if !ok {
		return
	}
	if !job.Status.IsTerminal() {
		writeJSON(w, http.StatusAccepted, map[string]any{"job": job})
		return
	}
	placeList, err := s.jobStore.ListPlaces(r.Context(), job.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fetch job places")
		return
	}
	if placeList == nil {
		placeList = []enrichment.EnrichedPlace{}
	}
	writeJSON(w, http.StatusOK, enrichment.JobResult{Job: job, Places: placeList})
}

func (s *Server) lookupJob(w http.ResponseWriter, r *http.Request) (enrichment.Job, bool) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.jobStore.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, enrichment.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
		} else {
			writeError(w, http.StatusInternalServerError, "failed to fetch job")
		}
		return enrichment.Job{}, false
	}
	return job, true
}

func (s *Server) enqueueJob(ctx context.Context, req enrichment.SearchRequest) (string, error) {
	jobID, err := s.idGen.NewID()
	if err != nil {
		return "", fmt.Errorf("generate job id: %w", err)
	}
	now := s.clock.Now()
	job := enrichment.Job{
		ID:        jobID,
		Status:    enrichment.JobStatusQueued,
		Submitted: now,
		Request:   req,
	}
	if err := s.jobStore.CreateJob(ctx, job); err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}
	queueCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	item := enrichment.QueueItem{
		JobID:     jobID,
		Request:   req,
		Attempt:   1,
		Submitted: now.Unix(),
	}
	if err := s.enqueuer.Enqueue(queueCtx, item); err != nil {
		if uerr := s.jobStore.UpdateJobStatus(
			context.WithoutCancel(ctx), jobID, enrichment.JobStatusFailed, "enqueue failed", enrichment.Stats{},
		); uerr != nil {
			s.logger.Error("mark unqueued job failed", zap.String("job_id", jobID), zap.Error(uerr))
		}
		return "", fmt.Errorf("enqueue job: %w", err)
	}
	return jobID, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
