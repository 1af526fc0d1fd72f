package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/smurfguard/internal/domain"
)

// JobConfigRepo serves and mutates the per-kind job configuration rows.
type JobConfigRepo struct{ Pool PgxPool }

// NewJobConfigRepo constructs a JobConfigRepo with the given pool.
func NewJobConfigRepo(p PgxPool) *JobConfigRepo { return &JobConfigRepo{Pool: p} }

const jobConfigCols = `id, job_type, name, schedule, is_active, settings, created_at, updated_at`

func scanJobConfig(row pgx.Row) (domain.JobConfiguration, error) {
	var c domain.JobConfiguration
	var settings []byte
	if err := row.Scan(&c.ID, &c.JobType, &c.Name, &c.Schedule, &c.IsActive,
		&settings, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return domain.JobConfiguration{}, err
	}
	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &c.Settings); err != nil {
			return domain.JobConfiguration{}, fmt.Errorf("decode settings: %w", err)
		}
	}
	return c, nil
}

// GetByType loads the configuration row for a job kind.
func (r *JobConfigRepo) GetByType(ctx domain.Context, t domain.JobType) (domain.JobConfiguration, error) {
	tracer := otel.Tracer("repo.job_configs")
	ctx, span := tracer.Start(ctx, "job_configs.GetByType")
	defer span.End()
	q := `SELECT ` + jobConfigCols + ` FROM job_configurations WHERE job_type=$1`
	c, err := scanJobConfig(r.Pool.QueryRow(ctx, q, t))
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.JobConfiguration{}, fmt.Errorf("op=job_config.get_by_type: %w", domain.ErrNotFound)
		}
		return domain.JobConfiguration{}, fmt.Errorf("op=job_config.get_by_type: %w", err)
	}
	return c, nil
}

// List returns all configuration rows in id order.
func (r *JobConfigRepo) List(ctx domain.Context) ([]domain.JobConfiguration, error) {
	tracer := otel.Tracer("repo.job_configs")
	ctx, span := tracer.Start(ctx, "job_configs.List")
	defer span.End()
	q := `SELECT ` + jobConfigCols + ` FROM job_configurations ORDER BY id ASC`
	rows, err := r.Pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("op=job_config.list: %w", err)
	}
	defer rows.Close()
	var out []domain.JobConfiguration
	for rows.Next() {
		c, err := scanJobConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("op=job_config.list_scan: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=job_config.list_rows: %w", err)
	}
	return out, nil
}

// SetActive flips the enabled flag for a job kind.
func (r *JobConfigRepo) SetActive(ctx domain.Context, t domain.JobType, active bool) error {
	tracer := otel.Tracer("repo.job_configs")
	ctx, span := tracer.Start(ctx, "job_configs.SetActive")
	defer span.End()
	q := `UPDATE job_configurations SET is_active=$2, updated_at=$3 WHERE job_type=$1`
	tag, err := r.Pool.Exec(ctx, q, t, active, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=job_config.set_active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=job_config.set_active: %w", domain.ErrNotFound)
	}
	return nil
}

// UpdateSchedule rewrites the cron expression for a job kind. The expression
// is validated upstream; the repo stores it verbatim.
func (r *JobConfigRepo) UpdateSchedule(ctx domain.Context, t domain.JobType, schedule string) error {
	tracer := otel.Tracer("repo.job_configs")
	ctx, span := tracer.Start(ctx, "job_configs.UpdateSchedule")
	defer span.End()
	q := `UPDATE job_configurations SET schedule=$2, updated_at=$3 WHERE job_type=$1`
	tag, err := r.Pool.Exec(ctx, q, t, schedule, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=job_config.update_schedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=job_config.update_schedule: %w", domain.ErrNotFound)
	}
	return nil
}

// Upsert inserts or refreshes a configuration row by job kind. Seeding uses
// this; an existing row keeps its is_active flag so seeding never re-enables
// a job an operator paused.
func (r *JobConfigRepo) Upsert(ctx domain.Context, c domain.JobConfiguration) error {
	tracer := otel.Tracer("repo.job_configs")
	ctx, span := tracer.Start(ctx, "job_configs.Upsert")
	defer span.End()
	settings, err := json.Marshal(c.Settings)
	if err != nil {
		return fmt.Errorf("op=job_config.upsert: encode settings: %w", err)
	}
	now := time.Now().UTC()
	q := `INSERT INTO job_configurations (job_type, name, schedule, is_active, settings, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$6)
ON CONFLICT (job_type) DO UPDATE SET
	name = EXCLUDED.name,
	schedule = EXCLUDED.schedule,
	settings = EXCLUDED.settings,
	updated_at = EXCLUDED.updated_at`
	if _, err := r.Pool.Exec(ctx, q, c.JobType, c.Name, c.Schedule, c.IsActive, settings, now); err != nil {
		return fmt.Errorf("op=job_config.upsert: %w", err)
	}
	return nil
}
