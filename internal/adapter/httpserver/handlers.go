package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fairyhunter13/smurfguard/internal/config"
	"github.com/fairyhunter13/smurfguard/internal/domain"
	"github.com/fairyhunter13/smurfguard/internal/usecase"
)

// Server aggregates handler dependencies.
type Server struct {
	Cfg       config.Config
	Jobs      usecase.JobControlService
	Readiness usecase.ReadinessService
}

// NewServer constructs an HTTP server with all handlers wired.
func NewServer(cfg config.Config, jobs usecase.JobControlService, readiness usecase.ReadinessService) *Server {
	return &Server{Cfg: cfg, Jobs: jobs, Readiness: readiness}
}

type jobJSON struct {
	JobType   string             `json:"job_type"`
	Name      string             `json:"name"`
	Schedule  string             `json:"schedule"`
	Enabled   bool               `json:"enabled"`
	Settings  domain.JobSettings `json:"settings"`
	UpdatedAt time.Time          `json:"updated_at"`
}

func jobView(cfg domain.JobConfiguration) jobJSON {
	return jobJSON{
		JobType:   string(cfg.JobType),
		Name:      cfg.Name,
		Schedule:  cfg.Schedule,
		Enabled:   cfg.IsActive,
		Settings:  cfg.Settings,
		UpdatedAt: cfg.UpdatedAt,
	}
}

type executionJSON struct {
	ID          string            `json:"id"`
	JobType     string            `json:"job_type"`
	Status      string            `json:"status"`
	TriggeredBy string            `json:"triggered_by"`
	StartedAt   time.Time         `json:"started_at"`
	FinishedAt  *time.Time        `json:"finished_at,omitempty"`
	Summary     domain.RunSummary `json:"summary"`
	Error       string            `json:"error,omitempty"`
	Logs        string            `json:"logs,omitempty"`
}

func executionView(e domain.JobExecution, withLogs bool) executionJSON {
	v := executionJSON{
		ID:          e.ID,
		JobType:     string(e.JobType),
		Status:      string(e.Status),
		TriggeredBy: e.TriggeredBy,
		StartedAt:   e.StartedAt,
		FinishedAt:  e.FinishedAt,
		Summary:     e.Summary,
		Error:       e.Error,
	}
	if withLogs {
		v.Logs = e.LogBlob
	}
	return v
}

type detectionJSON struct {
	ID              int64              `json:"id"`
	PUUID           string             `json:"puuid"`
	OverallScore    float64            `json:"overall_score"`
	FactorScores    map[string]float64 `json:"factor_scores"`
	Confidence      string             `json:"confidence"`
	GamesAnalyzed   int                `json:"games_analyzed"`
	QueueType       string             `json:"queue_type"`
	AnalysisVersion string             `json:"analysis_version"`
	Notes           []string           `json:"notes,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
}

func detectionView(d domain.SmurfDetection) detectionJSON {
	return detectionJSON{
		ID:              d.ID,
		PUUID:           d.PUUID,
		OverallScore:    d.OverallScore,
		FactorScores:    d.FactorScores,
		Confidence:      string(d.Confidence),
		GamesAnalyzed:   d.GamesAnalyzed,
		QueueType:       d.QueueType,
		AnalysisVersion: d.AnalysisVersion,
		Notes:           d.Notes,
		CreatedAt:       d.CreatedAt,
	}
}

type rateLimitJSON struct {
	LimitType         string    `json:"limit_type"`
	Endpoint          string    `json:"endpoint"`
	LimitValue        string    `json:"limit,omitempty"`
	CountValue        string    `json:"count,omitempty"`
	RetryAfterSeconds float64   `json:"retry_after_seconds"`
	Detail            string    `json:"detail,omitempty"`
	OccurredAt        time.Time `json:"occurred_at"`
}

func rateLimitView(e domain.RateLimitEvent) rateLimitJSON {
	return rateLimitJSON{
		LimitType:         e.LimitType,
		Endpoint:          e.Endpoint,
		LimitValue:        e.LimitValue,
		CountValue:        e.CountValue,
		RetryAfterSeconds: e.RetryAfter.Seconds(),
		Detail:            e.Detail,
		OccurredAt:        e.OccurredAt,
	}
}

// ListJobsHandler returns every job configuration.
func (s *Server) ListJobsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfgs, err := s.Jobs.ListJobs(r.Context())
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		out := make([]jobJSON, 0, len(cfgs))
		for _, c := range cfgs {
			out = append(out, jobView(c))
		}
		writeJSON(w, http.StatusOK, map[string]any{"jobs": out})
	}
}

// PatchJobHandler updates a job's enabled flag and/or schedule and
// re-registers its trigger.
func (s *Server) PatchJobHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobType := chi.URLParam(r, "job_type")
		r.Body = http.MaxBytesReader(w, r.Body, 1<<16)
		var req struct {
			Enabled  *bool   `json:"enabled"`
			Schedule *string `json:"schedule"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, fmt.Errorf("%w: invalid json", domain.ErrInvalidArgument), nil)
			return
		}
		if req.Enabled == nil && req.Schedule == nil {
			writeError(w, r, fmt.Errorf("%w: nothing to update", domain.ErrInvalidArgument), nil)
			return
		}

		ctx := r.Context()
		var (
			cfg domain.JobConfiguration
			err error
		)
		// schedule first, so enabling never registers a stale expression
		if req.Schedule != nil {
			if cfg, err = s.Jobs.UpdateJobSchedule(ctx, jobType, *req.Schedule); err != nil {
				writeError(w, r, err, nil)
				return
			}
		}
		if req.Enabled != nil {
			if cfg, err = s.Jobs.SetJobActive(ctx, jobType, *req.Enabled); err != nil {
				writeError(w, r, err, nil)
				return
			}
		}
		writeJSON(w, http.StatusOK, jobView(cfg))
	}
}

// TriggerJobHandler requests an immediate run, answering 202 with the
// claimed execution id or 409 when a run of that kind is already going.
func (s *Server) TriggerJobHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobType := chi.URLParam(r, "job_type")
		execID, err := s.Jobs.TriggerJob(r.Context(), jobType)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		LoggerFrom(r).Info("manual job trigger accepted",
			slog.String("job_type", jobType),
			slog.String("execution_id", execID))
		writeJSON(w, http.StatusAccepted, map[string]string{"execution_id": execID})
	}
}

// ListExecutionsHandler pages the run ledger, newest first. Log blobs are
// omitted from listings.
func (s *Server) ListExecutionsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		limit, err := intParam(q.Get("limit"), 20)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		offset, err := intParam(q.Get("offset"), 0)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		if limit > 100 {
			limit = 100
		}
		f := domain.ExecutionFilter{
			JobType: domain.JobType(q.Get("job_type")),
			Status:  domain.JobStatus(q.Get("status")),
			Limit:   limit,
			Offset:  offset,
		}
		rows, total, err := s.Jobs.ListExecutions(r.Context(), f)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		out := make([]executionJSON, 0, len(rows))
		for _, e := range rows {
			out = append(out, executionView(e, false))
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"executions": out,
			"total":      total,
			"limit":      limit,
			"offset":     offset,
		})
	}
}

// GetExecutionHandler returns one ledger row including its captured logs.
func (s *Server) GetExecutionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		exec, err := s.Jobs.GetExecution(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, executionView(exec, true))
	}
}

// RateLimitsHandler returns the observed throttling window.
func (s *Server) RateLimitsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var since time.Time
		if raw := q.Get("since"); raw != "" {
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				writeError(w, r, fmt.Errorf("%w: since must be RFC3339", domain.ErrInvalidArgument), nil)
				return
			}
			since = t
		}
		limit, err := intParam(q.Get("limit"), 0)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		events, err := s.Jobs.RateLimitEvents(r.Context(), since, limit)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		out := make([]rateLimitJSON, 0, len(events))
		for _, e := range events {
			out = append(out, rateLimitView(e))
		}
		writeJSON(w, http.StatusOK, map[string]any{"events": out})
	}
}

// PlayerDetectionsHandler returns a player's detection history, latest
// first.
func (s *Server) PlayerDetectionsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := intParam(r.URL.Query().Get("limit"), 0)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		dets, err := s.Jobs.PlayerDetections(r.Context(), chi.URLParam(r, "puuid"), limit)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		out := make([]detectionJSON, 0, len(dets))
		for _, d := range dets {
			out = append(out, detectionView(d))
		}
		writeJSON(w, http.StatusOK, map[string]any{"detections": out})
	}
}

// ReadyzHandler probes the backing services and the API-key presence.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		checks := s.Readiness.Readiness(ctx)
		status := http.StatusOK
		if !usecase.Ready(checks) {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, map[string]any{"checks": checks})
	}
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: bad numeric parameter %q", domain.ErrInvalidArgument, raw)
	}
	return n, nil
}
