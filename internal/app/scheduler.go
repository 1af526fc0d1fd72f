package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/fairyhunter13/smurfguard/internal/domain"
)

// Scheduler registers one cron trigger per enabled job configuration and
// re-registers them live when operators change schedules. Next-fire tracking
// is persisted to the scheduler_state table so operators can see when each
// job will run without reading cron internals.
type Scheduler struct {
	Configs domain.JobConfigRepository
	State   domain.SchedulerStateRepository
	Runner  *Runner

	cron    *cron.Cron
	mu      sync.Mutex
	entries map[domain.JobType]cron.EntryID
}

// NewScheduler builds a scheduler around the standard five-field parser,
// which also accepts @every and @hourly style descriptors.
func NewScheduler(configs domain.JobConfigRepository, state domain.SchedulerStateRepository, runner *Runner) *Scheduler {
	return &Scheduler{
		Configs: configs,
		State:   state,
		Runner:  runner,
		cron:    cron.New(),
		entries: make(map[domain.JobType]cron.EntryID),
	}
}

// Start loads the enabled configurations, registers their triggers, and
// starts the cron engine. A configuration with an unparsable schedule is
// logged and skipped; the remaining jobs still run.
func (s *Scheduler) Start(ctx domain.Context) error {
	configs, err := s.Configs.List(ctx)
	if err != nil {
		return fmt.Errorf("op=scheduler.load_configs: %w", err)
	}

	s.mu.Lock()
	registered := 0
	seen := make(map[domain.JobType]bool, len(configs))
	for _, cfg := range configs {
		seen[cfg.JobType] = true
		if !cfg.IsActive || !domain.ValidJobType(cfg.JobType) {
			continue
		}
		if err := s.register(ctx, cfg); err != nil {
			slog.Error("trigger registration failed",
				slog.String("job_type", string(cfg.JobType)),
				slog.String("schedule", cfg.Schedule),
				slog.Any("error", err))
			continue
		}
		registered++
	}
	s.mu.Unlock()

	// Rows are provisioned by seeding, never created here. A kind without
	// one simply never fires, which is worth a line in the log.
	for _, t := range domain.KnownJobTypes() {
		if !seen[t] {
			slog.Warn("job kind has no configuration row and will not run",
				slog.String("job_type", string(t)))
		}
	}

	s.cron.Start()
	slog.Info("scheduler started",
		slog.Int("configured", len(configs)),
		slog.Int("registered", registered))
	return nil
}

// register parses the schedule, adds the cron entry, and persists the next
// fire time. Callers hold s.mu.
func (s *Scheduler) register(ctx domain.Context, cfg domain.JobConfiguration) error {
	sched, err := cron.ParseStandard(cfg.Schedule)
	if err != nil {
		return fmt.Errorf("%w: bad schedule %q: %v", domain.ErrConfigInvalid, cfg.Schedule, err)
	}

	jobType := cfg.JobType
	id, err := s.cron.AddFunc(cfg.Schedule, func() { s.fire(jobType, sched) })
	if err != nil {
		return fmt.Errorf("op=scheduler.add_trigger: %w", err)
	}
	s.entries[jobType] = id

	if err := s.State.UpsertNextRun(ctx, jobType, sched.Next(time.Now().UTC())); err != nil {
		// the state table is a convenience view; a failed write must not
		// block the trigger
		slog.Warn("next-run persistence failed",
			slog.String("job_type", string(jobType)),
			slog.Any("error", err))
	}

	slog.Info("trigger registered",
		slog.String("job_type", string(jobType)),
		slog.String("schedule", cfg.Schedule),
		slog.Time("next_run", sched.Next(time.Now().UTC())))
	return nil
}

func (s *Scheduler) fire(jobType domain.JobType, sched cron.Schedule) {
	now := time.Now().UTC()
	ctx, cancel := context.WithTimeout(context.Background(), finishTimeout)
	defer cancel()
	if err := s.State.MarkFired(ctx, jobType, now, sched.Next(now)); err != nil {
		slog.Warn("fire-time persistence failed",
			slog.String("job_type", string(jobType)),
			slog.Any("error", err))
	}
	s.Runner.FireScheduled(jobType)
}

// Reload re-registers the trigger for one job after an operator change. The
// entry is removed and, when the configuration is still active, added back
// with the current schedule. It satisfies the job control surface's reload
// hook.
func (s *Scheduler) Reload(jobType domain.JobType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.entries[jobType]; ok {
		s.cron.Remove(id)
		delete(s.entries, jobType)
	}

	ctx, cancel := context.WithTimeout(context.Background(), finishTimeout)
	defer cancel()
	cfg, err := s.Configs.GetByType(ctx, jobType)
	if err != nil {
		return fmt.Errorf("op=scheduler.reload: %w", err)
	}
	if !cfg.IsActive {
		slog.Info("trigger removed", slog.String("job_type", string(jobType)))
		return nil
	}
	return s.register(ctx, cfg)
}

// NextRuns reports the upcoming fire time per registered job, for readiness
// and debug surfaces.
func (s *Scheduler) NextRuns() map[domain.JobType]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[domain.JobType]time.Time, len(s.entries))
	for t, id := range s.entries {
		out[t] = s.cron.Entry(id).Next
	}
	return out
}

// Stop halts the trigger engine. In-flight executions keep running; the
// runner's shutdown drains or cancels them.
func (s *Scheduler) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	slog.Info("scheduler stopped")
}
