package postgres

import (
	"fmt"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/smurfguard/internal/domain"
)

// SchedulerStateRepo persists the trigger engine's next-fire bookkeeping so a
// restart can report when each job last ran and will run again.
type SchedulerStateRepo struct{ Pool PgxPool }

// NewSchedulerStateRepo constructs a SchedulerStateRepo with the given pool.
func NewSchedulerStateRepo(p PgxPool) *SchedulerStateRepo { return &SchedulerStateRepo{Pool: p} }

// UpsertNextRun records the next planned fire time for a job kind.
func (r *SchedulerStateRepo) UpsertNextRun(ctx domain.Context, t domain.JobType, nextRun time.Time) error {
	tracer := otel.Tracer("repo.scheduler_state")
	ctx, span := tracer.Start(ctx, "scheduler_state.UpsertNextRun")
	defer span.End()
	q := `INSERT INTO scheduler_state (job_type, next_run, updated_at)
VALUES ($1,$2,$3)
ON CONFLICT (job_type) DO UPDATE SET next_run=EXCLUDED.next_run, updated_at=EXCLUDED.updated_at`
	if _, err := r.Pool.Exec(ctx, q, t, nextRun.UTC(), time.Now().UTC()); err != nil {
		return fmt.Errorf("op=scheduler_state.upsert_next_run: %w", err)
	}
	return nil
}

// MarkFired records a fire together with the following planned fire time.
func (r *SchedulerStateRepo) MarkFired(ctx domain.Context, t domain.JobType, firedAt, nextRun time.Time) error {
	tracer := otel.Tracer("repo.scheduler_state")
	ctx, span := tracer.Start(ctx, "scheduler_state.MarkFired")
	defer span.End()
	q := `INSERT INTO scheduler_state (job_type, last_fired, next_run, updated_at)
VALUES ($1,$2,$3,$4)
ON CONFLICT (job_type) DO UPDATE SET last_fired=EXCLUDED.last_fired, next_run=EXCLUDED.next_run, updated_at=EXCLUDED.updated_at`
	if _, err := r.Pool.Exec(ctx, q, t, firedAt.UTC(), nextRun.UTC(), time.Now().UTC()); err != nil {
		return fmt.Errorf("op=scheduler_state.mark_fired: %w", err)
	}
	return nil
}
