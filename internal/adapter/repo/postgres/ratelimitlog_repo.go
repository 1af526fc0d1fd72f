package postgres

import (
	"fmt"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/smurfguard/internal/domain"
)

// RateLimitLogRepo is the append-only record of observed throttling events.
type RateLimitLogRepo struct{ Pool PgxPool }

// NewRateLimitLogRepo constructs a RateLimitLogRepo with the given pool.
func NewRateLimitLogRepo(p PgxPool) *RateLimitLogRepo { return &RateLimitLogRepo{Pool: p} }

// Append records one throttling event.
func (r *RateLimitLogRepo) Append(ctx domain.Context, e domain.RateLimitEvent) error {
	tracer := otel.Tracer("repo.rate_limit_log")
	ctx, span := tracer.Start(ctx, "rate_limit_log.Append")
	defer span.End()
	occurred := e.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}
	q := `INSERT INTO rate_limit_log (limit_type, endpoint, limit_value, count_value, retry_after_ms, detail, occurred_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)`
	_, err := r.Pool.Exec(ctx, q, e.LimitType, e.Endpoint, e.LimitValue, e.CountValue,
		e.RetryAfter.Milliseconds(), e.Detail, occurred)
	if err != nil {
		return fmt.Errorf("op=rate_limit_log.append: %w", err)
	}
	return nil
}

// ListSince returns throttling events at or after since, newest first.
func (r *RateLimitLogRepo) ListSince(ctx domain.Context, since time.Time, limit int) ([]domain.RateLimitEvent, error) {
	tracer := otel.Tracer("repo.rate_limit_log")
	ctx, span := tracer.Start(ctx, "rate_limit_log.ListSince")
	defer span.End()
	q := `SELECT id, limit_type, endpoint, limit_value, count_value, retry_after_ms, detail, occurred_at
FROM rate_limit_log WHERE occurred_at >= $1 ORDER BY occurred_at DESC LIMIT $2`
	rows, err := r.Pool.Query(ctx, q, since.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("op=rate_limit_log.list_since: %w", err)
	}
	defer rows.Close()
	var out []domain.RateLimitEvent
	for rows.Next() {
		var e domain.RateLimitEvent
		var retryMS int64
		if err := rows.Scan(&e.ID, &e.LimitType, &e.Endpoint, &e.LimitValue, &e.CountValue,
			&retryMS, &e.Detail, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("op=rate_limit_log.list_since_scan: %w", err)
		}
		e.RetryAfter = time.Duration(retryMS) * time.Millisecond
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=rate_limit_log.list_since_rows: %w", err)
	}
	return out, nil
}
