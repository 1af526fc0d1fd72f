package postgres

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/smurfguard/internal/domain"
)

// ExecutionRepo is the append-only job run ledger.
type ExecutionRepo struct{ Pool PgxPool }

// NewExecutionRepo constructs an ExecutionRepo with the given pool.
func NewExecutionRepo(p PgxPool) *ExecutionRepo { return &ExecutionRepo{Pool: p} }

// uniqueViolation is the PostgreSQL error code raised when the partial unique
// index on running executions rejects a second running row per job kind.
const uniqueViolation = "23505"

const executionCols = `id, job_config_id, job_type, status, triggered_by, started_at, finished_at, summary, log_blob, COALESCE(error,''), created_at`

func scanExecution(row pgx.Row) (domain.JobExecution, error) {
	var e domain.JobExecution
	var summary []byte
	if err := row.Scan(&e.ID, &e.JobConfigID, &e.JobType, &e.Status, &e.TriggeredBy,
		&e.StartedAt, &e.FinishedAt, &summary, &e.LogBlob, &e.Error, &e.CreatedAt); err != nil {
		return domain.JobExecution{}, err
	}
	if len(summary) > 0 {
		if err := json.Unmarshal(summary, &e.Summary); err != nil {
			return domain.JobExecution{}, fmt.Errorf("decode summary: %w", err)
		}
	}
	return e, nil
}

// InsertRunning claims a run by appending a running ledger row. The partial
// unique index keeps at most one running row per job kind; losing the race
// surfaces as ErrAlreadyRunning.
func (r *ExecutionRepo) InsertRunning(ctx domain.Context, e domain.JobExecution) error {
	tracer := otel.Tracer("repo.job_executions")
	ctx, span := tracer.Start(ctx, "job_executions.InsertRunning")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.sql.table", "job_executions"),
	)
	summary, err := json.Marshal(e.Summary)
	if err != nil {
		return fmt.Errorf("op=job_execution.insert_running: encode summary: %w", err)
	}
	started := e.StartedAt
	if started.IsZero() {
		started = time.Now().UTC()
	}
	q := `INSERT INTO job_executions (id, job_config_id, job_type, status, triggered_by, started_at, summary, log_blob, error, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,'','',$8)`
	_, err = r.Pool.Exec(ctx, q, e.ID, e.JobConfigID, e.JobType, domain.JobRunning,
		e.TriggeredBy, started, summary, time.Now().UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("op=job_execution.insert_running: %w", domain.ErrAlreadyRunning)
		}
		return fmt.Errorf("op=job_execution.insert_running: %w", err)
	}
	return nil
}

// Finish writes the terminal state, summary, captured logs and finished
// timestamp in one statement. Finishing an unknown id is ErrNotFound.
func (r *ExecutionRepo) Finish(ctx domain.Context, id string, status domain.JobStatus, summary domain.RunSummary, logBlob, errMsg string, finishedAt time.Time) error {
	tracer := otel.Tracer("repo.job_executions")
	ctx, span := tracer.Start(ctx, "job_executions.Finish")
	defer span.End()
	blob, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("op=job_execution.finish: encode summary: %w", err)
	}
	q := `UPDATE job_executions SET status=$2, summary=$3, log_blob=$4, error=$5, finished_at=$6 WHERE id=$1`
	tag, err := r.Pool.Exec(ctx, q, id, status, blob, logBlob, errMsg, finishedAt.UTC())
	if err != nil {
		return fmt.Errorf("op=job_execution.finish: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=job_execution.finish: %w", domain.ErrNotFound)
	}
	return nil
}

// Get loads one ledger row by id.
func (r *ExecutionRepo) Get(ctx domain.Context, id string) (domain.JobExecution, error) {
	tracer := otel.Tracer("repo.job_executions")
	ctx, span := tracer.Start(ctx, "job_executions.Get")
	defer span.End()
	q := `SELECT ` + executionCols + ` FROM job_executions WHERE id=$1`
	e, err := scanExecution(r.Pool.QueryRow(ctx, q, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.JobExecution{}, fmt.Errorf("op=job_execution.get: %w", domain.ErrNotFound)
		}
		return domain.JobExecution{}, fmt.Errorf("op=job_execution.get: %w", err)
	}
	return e, nil
}

// List returns a filtered, newest-first page of the ledger plus the total
// row count for the same filter.
func (r *ExecutionRepo) List(ctx domain.Context, f domain.ExecutionFilter) ([]domain.JobExecution, int, error) {
	tracer := otel.Tracer("repo.job_executions")
	ctx, span := tracer.Start(ctx, "job_executions.List")
	defer span.End()

	where := ` WHERE 1=1`
	args := []any{}
	if f.JobType != "" {
		args = append(args, f.JobType)
		where += fmt.Sprintf(" AND job_type=$%d", len(args))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		where += fmt.Sprintf(" AND status=$%d", len(args))
	}

	var total int
	countQ := `SELECT COUNT(*) FROM job_executions` + where
	if err := r.Pool.QueryRow(ctx, countQ, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("op=job_execution.count: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	args = append(args, limit)
	pageQ := `SELECT ` + executionCols + ` FROM job_executions` + where +
		fmt.Sprintf(" ORDER BY started_at DESC LIMIT $%d", len(args))
	args = append(args, f.Offset)
	pageQ += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := r.Pool.Query(ctx, pageQ, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("op=job_execution.list: %w", err)
	}
	defer rows.Close()
	var out []domain.JobExecution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("op=job_execution.list_scan: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("op=job_execution.list_rows: %w", err)
	}
	return out, total, nil
}

// SweepStale finalizes running rows started before cutoff as failed with the
// given error marker and reports how many were swept. Crash recovery runs
// this; a live run older than its deadline is finalized by its own runner
// first in the normal case.
func (r *ExecutionRepo) SweepStale(ctx domain.Context, cutoff time.Time, marker string) (int64, error) {
	tracer := otel.Tracer("repo.job_executions")
	ctx, span := tracer.Start(ctx, "job_executions.SweepStale")
	defer span.End()
	q := `UPDATE job_executions SET status=$2, error=$3, finished_at=$4 WHERE status=$5 AND started_at < $1`
	tag, err := r.Pool.Exec(ctx, q, cutoff.UTC(), domain.JobFailed, marker, time.Now().UTC(), domain.JobRunning)
	if err != nil {
		return 0, fmt.Errorf("op=job_execution.sweep_stale: %w", err)
	}
	return tag.RowsAffected(), nil
}
