package postgres

import (
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/smurfguard/internal/domain"
)

// TrackingRepo maintains the per (kind, identifier) freshness ledger the data
// manager consults before spending outbound budget.
type TrackingRepo struct{ Pool PgxPool }

// NewTrackingRepo constructs a TrackingRepo with the given pool.
func NewTrackingRepo(p PgxPool) *TrackingRepo { return &TrackingRepo{Pool: p} }

// Get loads the freshness row for (kind, identifier).
func (r *TrackingRepo) Get(ctx domain.Context, kind domain.DataKind, identifier string) (domain.DataTracking, error) {
	tracer := otel.Tracer("repo.data_tracking")
	ctx, span := tracer.Start(ctx, "data_tracking.Get")
	defer span.End()
	q := `SELECT data_type, identifier, last_fetched, last_updated, fetch_count, hit_count, not_found
FROM data_tracking WHERE data_type=$1 AND identifier=$2`
	var t domain.DataTracking
	err := r.Pool.QueryRow(ctx, q, kind, identifier).Scan(&t.DataType, &t.Identifier,
		&t.LastFetched, &t.LastUpdated, &t.FetchCount, &t.HitCount, &t.NotFound)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.DataTracking{}, fmt.Errorf("op=data_tracking.get: %w", domain.ErrNotFound)
		}
		return domain.DataTracking{}, fmt.Errorf("op=data_tracking.get: %w", err)
	}
	return t, nil
}

// TouchHit increments the read counter for (kind, identifier), creating the
// row on first sight. Every data-manager read lands here regardless of
// whether the read was served from cache.
func (r *TrackingRepo) TouchHit(ctx domain.Context, kind domain.DataKind, identifier string) error {
	tracer := otel.Tracer("repo.data_tracking")
	ctx, span := tracer.Start(ctx, "data_tracking.TouchHit")
	defer span.End()
	q := `INSERT INTO data_tracking (data_type, identifier, fetch_count, hit_count, not_found)
VALUES ($1,$2,0,1,FALSE)
ON CONFLICT (data_type, identifier) DO UPDATE SET hit_count = data_tracking.hit_count + 1`
	if _, err := r.Pool.Exec(ctx, q, kind, identifier); err != nil {
		return fmt.Errorf("op=data_tracking.touch_hit: %w", err)
	}
	return nil
}

// MarkFetched records a completed outbound fetch. notFound true writes the
// tombstone for identifiers the platform reported absent; a later successful
// fetch clears it.
func (r *TrackingRepo) MarkFetched(ctx domain.Context, kind domain.DataKind, identifier string, at time.Time, notFound bool) error {
	tracer := otel.Tracer("repo.data_tracking")
	ctx, span := tracer.Start(ctx, "data_tracking.MarkFetched")
	defer span.End()
	q := `INSERT INTO data_tracking (data_type, identifier, last_fetched, last_updated, fetch_count, hit_count, not_found)
VALUES ($1,$2,$3,$3,1,0,$4)
ON CONFLICT (data_type, identifier) DO UPDATE SET
	last_fetched = EXCLUDED.last_fetched,
	last_updated = EXCLUDED.last_updated,
	fetch_count = data_tracking.fetch_count + 1,
	not_found = EXCLUDED.not_found`
	if _, err := r.Pool.Exec(ctx, q, kind, identifier, at.UTC(), notFound); err != nil {
		return fmt.Errorf("op=data_tracking.mark_fetched: %w", err)
	}
	return nil
}
