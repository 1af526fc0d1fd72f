package usecase

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/fairyhunter13/smurfguard/internal/domain"
)

// JobTrigger starts a job run outside its schedule. The app runner implements
// it; contention with a running execution surfaces domain.ErrAlreadyRunning.
type JobTrigger interface {
	TriggerNow(ctx domain.Context, jobType domain.JobType) (string, error)
}

// ScheduleReloader re-registers a job's trigger after an operator change.
type ScheduleReloader interface {
	Reload(jobType domain.JobType) error
}

// JobControlService is the operator surface over job configurations, the
// execution ledger, observed throttling, and detection history.
type JobControlService struct {
	Configs    domain.JobConfigRepository
	Executions domain.JobExecutionRepository
	RateLimits domain.RateLimitLogRepository
	Detections domain.DetectionRepository
	Trigger    JobTrigger
	Reloader   ScheduleReloader
}

// NewJobControlService constructs a JobControlService with its dependencies.
func NewJobControlService(c domain.JobConfigRepository, e domain.JobExecutionRepository, rl domain.RateLimitLogRepository, d domain.DetectionRepository, t JobTrigger, r ScheduleReloader) JobControlService {
	return JobControlService{Configs: c, Executions: e, RateLimits: rl, Detections: d, Trigger: t, Reloader: r}
}

// ListJobs returns every job configuration.
func (s JobControlService) ListJobs(ctx domain.Context) ([]domain.JobConfiguration, error) {
	return s.Configs.List(ctx)
}

// GetJob returns the configuration for one job kind.
func (s JobControlService) GetJob(ctx domain.Context, jobType string) (domain.JobConfiguration, error) {
	t, err := parseJobType(jobType)
	if err != nil {
		return domain.JobConfiguration{}, err
	}
	return s.Configs.GetByType(ctx, t)
}

// SetJobActive enables or disables a job and re-registers its trigger.
func (s JobControlService) SetJobActive(ctx domain.Context, jobType string, active bool) (domain.JobConfiguration, error) {
	t, err := parseJobType(jobType)
	if err != nil {
		return domain.JobConfiguration{}, err
	}
	if err := s.Configs.SetActive(ctx, t, active); err != nil {
		return domain.JobConfiguration{}, err
	}
	slog.Info("job active flag changed", slog.String("job_type", string(t)), slog.Bool("active", active))
	s.reload(t)
	return s.Configs.GetByType(ctx, t)
}

// UpdateJobSchedule validates and stores a new schedule expression, then
// re-registers the trigger.
func (s JobControlService) UpdateJobSchedule(ctx domain.Context, jobType, schedule string) (domain.JobConfiguration, error) {
	t, err := parseJobType(jobType)
	if err != nil {
		return domain.JobConfiguration{}, err
	}
	if err := ValidateSchedule(schedule); err != nil {
		return domain.JobConfiguration{}, err
	}
	if err := s.Configs.UpdateSchedule(ctx, t, schedule); err != nil {
		return domain.JobConfiguration{}, err
	}
	slog.Info("job schedule changed", slog.String("job_type", string(t)), slog.String("schedule", schedule))
	s.reload(t)
	return s.Configs.GetByType(ctx, t)
}

func (s JobControlService) reload(t domain.JobType) {
	if s.Reloader == nil {
		return
	}
	if err := s.Reloader.Reload(t); err != nil {
		slog.Error("trigger reload failed", slog.String("job_type", string(t)), slog.Any("error", err))
	}
}

// TriggerJob requests an immediate run of the given job kind, returning the
// claimed execution id.
func (s JobControlService) TriggerJob(ctx domain.Context, jobType string) (string, error) {
	t, err := parseJobType(jobType)
	if err != nil {
		return "", err
	}
	if s.Trigger == nil {
		return "", fmt.Errorf("%w: manual trigger unavailable", domain.ErrInternal)
	}
	return s.Trigger.TriggerNow(ctx, t)
}

// ListExecutions pages the run ledger, newest first.
func (s JobControlService) ListExecutions(ctx domain.Context, f domain.ExecutionFilter) ([]domain.JobExecution, int, error) {
	if f.JobType != "" && !domain.ValidJobType(f.JobType) {
		return nil, 0, fmt.Errorf("%w: unknown job type %q", domain.ErrInvalidArgument, f.JobType)
	}
	if f.Status != "" && !domain.ValidJobStatus(f.Status) {
		return nil, 0, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidArgument, f.Status)
	}
	return s.Executions.List(ctx, f)
}

// GetExecution returns one ledger row including its captured log blob.
func (s JobControlService) GetExecution(ctx domain.Context, id string) (domain.JobExecution, error) {
	if strings.TrimSpace(id) == "" {
		return domain.JobExecution{}, fmt.Errorf("%w: execution id required", domain.ErrInvalidArgument)
	}
	return s.Executions.Get(ctx, id)
}

// RateLimitEvents returns the throttling log window, defaulting to the last
// 24 hours.
func (s JobControlService) RateLimitEvents(ctx domain.Context, since time.Time, limit int) ([]domain.RateLimitEvent, error) {
	if since.IsZero() {
		since = time.Now().UTC().Add(-24 * time.Hour)
	}
	if limit <= 0 {
		limit = 200
	}
	return s.RateLimits.ListSince(ctx, since, limit)
}

// PlayerDetections returns a player's detection history, latest first.
func (s JobControlService) PlayerDetections(ctx domain.Context, puuid string, limit int) ([]domain.SmurfDetection, error) {
	if strings.TrimSpace(puuid) == "" {
		return nil, fmt.Errorf("%w: puuid required", domain.ErrInvalidArgument)
	}
	if limit <= 0 {
		limit = 10
	}
	return s.Detections.ListByPlayer(ctx, puuid, limit)
}

// ValidateSchedule accepts a five-field cron expression or a descriptor such
// as @every 10m or @hourly.
func ValidateSchedule(expr string) error {
	if strings.TrimSpace(expr) == "" {
		return fmt.Errorf("%w: empty schedule", domain.ErrInvalidArgument)
	}
	if _, err := cron.ParseStandard(expr); err != nil {
		return fmt.Errorf("%w: bad schedule %q: %v", domain.ErrInvalidArgument, expr, err)
	}
	return nil
}

func parseJobType(s string) (domain.JobType, error) {
	t := domain.JobType(strings.TrimSpace(s))
	if !domain.ValidJobType(t) {
		return "", fmt.Errorf("%w: unknown job type %q", domain.ErrInvalidArgument, s)
	}
	return t, nil
}
