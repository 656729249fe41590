package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/tikun-labs/sefirot-cli/internal/model"
	"github.com/tikun-labs/sefirot-cli/internal/monitoring"
)

// estimatedRunSeconds is the rough wall time quoted to clients for a full
// ten-stage run.
const estimatedRunSeconds = 180

// Server exposes the job API over HTTP.
type Server struct {
	manager     *Manager
	collector   *monitoring.Collector
	lookback    int
	minScenario int
}

// ServerOption configures the job API server.
type ServerOption func(*Server)

// WithMetrics wires a monitoring collector behind GET /api/metrics.
func WithMetrics(c *monitoring.Collector, lookbackHours int) ServerOption {
	return func(s *Server) {
		s.collector = c
		if lookbackHours > 0 {
			s.lookback = lookbackHours
		}
	}
}

// WithMinScenarioLength overrides the minimum accepted scenario length.
func WithMinScenarioLength(n int) ServerOption {
	return func(s *Server) {
		if n > 0 {
			s.minScenario = n
		}
	}
}

// NewServer creates the job API server around a Manager.
func NewServer(m *Manager, opts ...ServerOption) *Server {
	s := &Server{
		manager:     m,
		lookback:    24,
		minScenario: 50,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes builds the API router. Responses are JSON throughout; errors use
// {"error": "..."} bodies.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Post("/analyze", s.handleAnalyze)
		r.Get("/status/{jobID}", s.handleStatus)
		r.Get("/results/{jobID}", s.handleResults)
		r.Get("/jobs", s.handleListJobs)
		r.Delete("/jobs/{jobID}", s.handleDeleteJob)
		r.Get("/metrics", s.handleMetrics)
	})
	return r
}

type analyzeResponse struct {
	JobID                    string `json:"job_id"`
	Status                   string `json:"status"`
	Message                  string `json:"message"`
	EstimatedDurationSeconds int    `json:"estimated_duration_seconds"`
}

type statusResponse struct {
	JobID                     string `json:"job_id"`
	Status                    string `json:"status"`
	Progress                  int    `json:"progress"`
	CurrentStage              string `json:"current_stage,omitempty"`
	ElapsedSeconds            int    `json:"elapsed_seconds"`
	EstimatedRemainingSeconds int    `json:"estimated_remaining_seconds"`
}

type resultsResponse struct {
	JobID                string                `json:"job_id"`
	CaseName             string                `json:"case_name"`
	Status               string                `json:"status"`
	Timestamp            string                `json:"timestamp"`
	ExecutionTimeSeconds float64               `json:"execution_time_seconds"`
	Result               *model.PipelineResult `json:"result"`
	Summary              runSummary            `json:"summary"`
}

// runSummary is the quick-read block clients show before digging into the
// full result.
type runSummary struct {
	KeterAlignment      float64 `json:"keter_alignment"`
	KeterValid          bool    `json:"keter_valid"`
	YesodRecommendation string  `json:"yesod_recommendation"`
	YesodConfidence     string  `json:"yesod_confidence"`
	PipelineQuality     string  `json:"pipeline_quality"`
	ExecutionTime       float64 `json:"execution_time"`
}

type jobSummary struct {
	JobID     string `json:"job_id"`
	CaseName  string `json:"case_name"`
	Status    string `json:"status"`
	Progress  int    `json:"progress"`
	CreatedAt string `json:"created_at"`
}

type listResponse struct {
	Total        int            `json:"total"`
	StatusCounts map[string]int `json:"status_counts"`
	Jobs         []jobSummary   `json:"jobs"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Scenario string `json:"scenario"`
		CaseName string `json:"case_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Scenario) < s.minScenario {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("scenario must be at least %d characters", s.minScenario))
		return
	}

	job, err := s.manager.Start(req.Scenario, req.CaseName)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "server is shutting down")
		return
	}

	writeJSON(w, http.StatusAccepted, analyzeResponse{
		JobID:                    job.ID,
		Status:                   string(job.Status),
		Message:                  "Analysis started. Use job_id to check status.",
		EstimatedDurationSeconds: estimatedRunSeconds,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	job, ok := s.manager.Get(chi.URLParam(r, "jobID"))
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	now := time.Now().UTC()
	writeJSON(w, http.StatusOK, statusResponse{
		JobID:                     job.ID,
		Status:                    string(job.Status),
		Progress:                  job.Progress,
		CurrentStage:              string(job.CurrentStage),
		ElapsedSeconds:            job.ElapsedSeconds(now),
		EstimatedRemainingSeconds: job.EstimatedRemainingSeconds(now),
	})
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	job, ok := s.manager.Get(chi.URLParam(r, "jobID"))
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if job.Status != StatusCompleted {
		writeError(w, http.StatusConflict,
			fmt.Sprintf("analysis not completed, current status: %s", job.Status))
		return
	}

	writeJSON(w, http.StatusOK, resultsResponse{
		JobID:                job.ID,
		CaseName:             job.CaseName,
		Status:               string(job.Status),
		Timestamp:            job.CompletedAt.Format(time.RFC3339),
		ExecutionTimeSeconds: job.ExecutionSeconds(),
		Result:               job.Result,
		Summary:              buildSummary(job),
	})
}

func (s *Server) handleListJobs(w http.ResponseWriter, _ *http.Request) {
	all := s.manager.List()
	resp := listResponse{
		Total:        len(all),
		StatusCounts: make(map[string]int),
		Jobs:         make([]jobSummary, 0, len(all)),
	}
	for _, j := range all {
		resp.StatusCounts[string(j.Status)]++
		resp.Jobs = append(resp.Jobs, jobSummary{
			JobID:     j.ID,
			CaseName:  j.CaseName,
			Status:    string(j.Status),
			Progress:  j.Progress,
			CreatedAt: j.CreatedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	err := s.manager.Delete(chi.URLParam(r, "jobID"))
	switch {
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, "job not found")
	case errors.Is(err, ErrJobRunning):
		writeError(w, http.StatusConflict, "job still running")
	case err != nil:
		writeError(w, http.StatusInternalServerError, "delete failed")
	default:
		writeJSON(w, http.StatusOK, map[string]string{"message": "job deleted"})
	}
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.collector == nil {
		writeError(w, http.StatusNotFound, "metrics not configured")
		return
	}
	snap, err := s.collector.Collect(r.Context(), s.lookback)
	if err != nil {
		zap.L().Error("jobs: metrics collection failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "metrics collection failed")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// buildSummary pulls the headline numbers out of a completed run: first
// stage alignment, final readiness decision, and the overall quality label.
func buildSummary(job Job) runSummary {
	sum := runSummary{
		YesodRecommendation: "UNKNOWN",
		YesodConfidence:     "unknown",
		ExecutionTime:       job.ExecutionSeconds(),
	}
	if job.Result == nil {
		return sum
	}
	sum.PipelineQuality = job.Result.Metrics.PipelineQuality

	for _, sr := range job.Result.StageResults {
		if !sr.OK() {
			continue
		}
		switch sr.StageID {
		case model.StageKeter:
			sum.KeterAlignment = sr.MetricOr("alignment_percentage", 0)
			sum.KeterValid = sr.BoolMetric("manifestation_valid")
		case model.StageYesod:
			if rec := sr.MapField("go_no_go_recommendation"); rec != nil {
				if d, ok := rec["decision"].(string); ok && d != "" {
					sum.YesodRecommendation = d
				}
				if c, ok := rec["confidence"].(string); ok && c != "" {
					sum.YesodConfidence = c
				}
			}
		}
	}
	return sum
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
