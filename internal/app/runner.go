// Package app hosts the job runtime: the runner that drives executions
// through the ledger state machine, the cron scheduler, and the stale-run
// sweeper.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fairyhunter13/smurfguard/internal/adapter/observability"
	"github.com/fairyhunter13/smurfguard/internal/domain"
	obsctx "github.com/fairyhunter13/smurfguard/internal/observability"
)

// Job is one registered job implementation. Run receives the configuration
// row current at claim time and returns the structured summary; a returned
// rate-limit error records the run as rate_limited, anything else as failed.
type Job interface {
	Type() domain.JobType
	Run(ctx context.Context, cfg domain.JobConfiguration) (domain.RunSummary, error)
}

// finishTimeout bounds the final ledger write, which must happen even when
// the run context is already dead.
const finishTimeout = 10 * time.Second

// errMsgLimit truncates failure messages stored on the ledger row.
const errMsgLimit = 500

// Runner owns the execution state machine: claim, per-run log capture,
// timeout watchdog, outcome classification, and the final ledger write. At
// most one execution per job kind runs at a time, enforced by a per-kind
// advisory mutex and backed by the store's partial unique index.
type Runner struct {
	Configs    domain.JobConfigRepository
	Executions domain.JobExecutionRepository

	defaultTimeout time.Duration

	jobs  map[domain.JobType]Job
	locks map[domain.JobType]*sync.Mutex

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRunner builds a runner with an advisory lock per known job kind.
func NewRunner(configs domain.JobConfigRepository, execs domain.JobExecutionRepository, defaultTimeout time.Duration) *Runner {
	if defaultTimeout <= 0 {
		defaultTimeout = 10 * time.Minute
	}
	base, cancel := context.WithCancel(context.Background())
	r := &Runner{
		Configs:        configs,
		Executions:     execs,
		defaultTimeout: defaultTimeout,
		jobs:           make(map[domain.JobType]Job),
		locks:          make(map[domain.JobType]*sync.Mutex),
		base:           base,
		cancel:         cancel,
	}
	for _, t := range domain.KnownJobTypes() {
		r.locks[t] = &sync.Mutex{}
	}
	return r
}

// Register adds a job implementation. Registration happens during bootstrap,
// before any trigger can fire.
func (r *Runner) Register(j Job) {
	r.jobs[j.Type()] = j
}

// TriggerNow claims and starts a manual run, returning the execution id as
// soon as the claim lands. Contention surfaces as ErrAlreadyRunning.
func (r *Runner) TriggerNow(ctx domain.Context, jobType domain.JobType) (string, error) {
	return r.start(ctx, jobType, domain.TriggerManual)
}

// FireScheduled is the cron callback. Contention is an expected overlap with
// a still-running previous tick and is only logged.
func (r *Runner) FireScheduled(jobType domain.JobType) {
	ctx, cancel := context.WithTimeout(r.base, finishTimeout)
	defer cancel()
	if _, err := r.start(ctx, jobType, domain.TriggerSchedule); err != nil {
		if errors.Is(err, domain.ErrAlreadyRunning) {
			slog.Warn("job tick skipped, previous run still going", slog.String("job_type", string(jobType)))
			return
		}
		slog.Error("scheduled job failed to start", slog.String("job_type", string(jobType)), slog.Any("error", err))
	}
}

func (r *Runner) start(ctx domain.Context, jobType domain.JobType, triggeredBy string) (string, error) {
	job, ok := r.jobs[jobType]
	if !ok {
		return "", fmt.Errorf("%w: no implementation registered for job %s", domain.ErrInternal, jobType)
	}

	cfg, err := r.Configs.GetByType(ctx, jobType)
	if err != nil {
		if domain.IsNotFound(err) {
			// a job without its configuration row never runs and never
			// writes an execution row
			return "", fmt.Errorf("%w: job %s has no configuration row", domain.ErrConfigInvalid, jobType)
		}
		return "", fmt.Errorf("op=runner.load_config: %w", err)
	}

	mu := r.locks[jobType]
	if !mu.TryLock() {
		return "", fmt.Errorf("op=runner.claim: %w", domain.ErrAlreadyRunning)
	}

	exec := domain.JobExecution{
		ID:          uuid.NewString(),
		JobConfigID: cfg.ID,
		JobType:     jobType,
		Status:      domain.JobRunning,
		TriggeredBy: triggeredBy,
		StartedAt:   time.Now().UTC(),
	}
	if err := r.Executions.InsertRunning(ctx, exec); err != nil {
		mu.Unlock()
		return "", err
	}

	r.wg.Add(1)
	go r.execute(job, cfg, exec, mu)
	return exec.ID, nil
}

func (r *Runner) execute(job Job, cfg domain.JobConfiguration, exec domain.JobExecution, mu *sync.Mutex) {
	defer r.wg.Done()
	defer mu.Unlock()

	timeout := cfg.Settings.Timeout()
	if cfg.Settings.JobTimeoutSeconds <= 0 {
		timeout = r.defaultTimeout
	}

	capture := NewLogCapture(slog.Default().Handler(), logCaptureLimit)
	lg := slog.New(capture).With(
		slog.String("job_type", string(exec.JobType)),
		slog.String("execution_id", exec.ID),
	)

	runCtx, cancel := context.WithTimeout(r.base, timeout)
	defer cancel()
	runCtx = obsctx.ContextWithLogger(runCtx, lg)
	runCtx = obsctx.ContextWithRequestID(runCtx, exec.ID)

	observability.StartJobRun(string(exec.JobType))
	start := time.Now()
	lg.Info("job execution started",
		slog.String("triggered_by", exec.TriggeredBy),
		slog.Duration("timeout", timeout))

	var (
		summary domain.RunSummary
		runErr  error
	)
	if exec.TriggeredBy == domain.TriggerSchedule && !cfg.IsActive {
		// the operator disabled the job between registration and this tick
		runErr = errSkipInactive
	} else {
		summary, runErr = job.Run(runCtx, cfg)
	}

	status, errMsg := r.classify(runErr, runCtx)
	dur := time.Since(start)
	observability.FinishJobRun(string(exec.JobType), string(status), dur)

	lg.Info("job execution finished",
		slog.String("status", string(status)),
		slog.Duration("duration", dur),
		slog.Int("processed", summary.Processed),
		slog.Int("failed", summary.Failed))
	if capture.Dropped() > 0 {
		slog.Warn("job log capture overflowed",
			slog.String("execution_id", exec.ID),
			slog.Int("dropped", capture.Dropped()))
	}

	finCtx, finCancel := context.WithTimeout(context.Background(), finishTimeout)
	defer finCancel()
	if err := r.Executions.Finish(finCtx, exec.ID, status, summary, capture.Blob(), errMsg, time.Now().UTC()); err != nil {
		slog.Error("job execution final write failed",
			slog.String("execution_id", exec.ID),
			slog.String("status", string(status)),
			slog.Any("error", err))
	}
}

// errSkipInactive routes the disabled-at-fire case through classification.
var errSkipInactive = errors.New("configuration inactive at fire time")

// classify maps a run outcome onto the ledger status and failure marker.
// Rate limiting is not a failure: the next tick retries with refilled
// buckets. The failure markers are stable prefixes operators filter on.
func (r *Runner) classify(err error, runCtx context.Context) (domain.JobStatus, string) {
	switch {
	case err == nil:
		return domain.JobSuccess, ""
	case errors.Is(err, errSkipInactive):
		return domain.JobSkipped, truncateErr(err)
	case domain.IsRateLimited(err):
		return domain.JobRateLimited, truncateErr(err)
	case r.base.Err() != nil:
		return domain.JobFailed, "shutdown: " + truncateErr(err)
	case runCtx.Err() == context.DeadlineExceeded:
		return domain.JobFailed, "timeout: " + truncateErr(err)
	case domain.IsConfigInvalid(err):
		return domain.JobFailed, "config: " + truncateErr(err)
	case domain.IsCancellation(err):
		return domain.JobFailed, "cancelled: " + truncateErr(err)
	default:
		return domain.JobFailed, truncateErr(err)
	}
}

func truncateErr(err error) string {
	msg := err.Error()
	if len(msg) > errMsgLimit {
		msg = msg[:errMsgLimit]
	}
	return msg
}

// Shutdown cancels the root run context after waiting up to grace for
// in-flight executions to drain. Runs cancelled this way finalize as failed
// with the shutdown marker.
func (r *Runner) Shutdown(grace time.Duration) {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.cancel()
		return
	case <-time.After(grace):
	}

	slog.Warn("job runs still in flight past shutdown grace, cancelling", slog.Duration("grace", grace))
	r.cancel()
	<-done
}
