package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/fairyhunter13/smurfguard/internal/domain"
)

// CleanupService enforces data retention on the operational tables. Match and
// detection data is kept forever; only the run ledger and the throttle log
// age out.
type CleanupService struct {
	Pool          PgxPool
	RetentionDays int
}

// NewCleanupService creates a new cleanup service.
func NewCleanupService(pool PgxPool, retentionDays int) *CleanupService {
	if retentionDays <= 0 {
		retentionDays = 90
	}
	return &CleanupService{Pool: pool, RetentionDays: retentionDays}
}

// CleanupOldData removes operational rows older than the retention period.
// Running executions are never deleted regardless of age.
func (s *CleanupService) CleanupOldData(ctx context.Context) error {
	cutoff := time.Now().UTC().AddDate(0, 0, -s.RetentionDays)

	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("op=cleanup.begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	execTag, err := tx.Exec(ctx,
		`DELETE FROM job_executions WHERE created_at < $1 AND status <> $2`,
		cutoff, domain.JobRunning)
	if err != nil {
		return fmt.Errorf("op=cleanup.executions: %w", err)
	}

	throttleTag, err := tx.Exec(ctx,
		`DELETE FROM rate_limit_log WHERE occurred_at < $1`, cutoff)
	if err != nil {
		return fmt.Errorf("op=cleanup.rate_limit_log: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("op=cleanup.commit: %w", err)
	}

	slog.Info("data cleanup completed",
		slog.Int64("deleted_executions", execTag.RowsAffected()),
		slog.Int64("deleted_rate_limit_rows", throttleTag.RowsAffected()),
		slog.Time("cutoff", cutoff),
	)
	return nil
}

// RunPeriodic runs cleanup on an interval until the context is cancelled.
func (s *CleanupService) RunPeriodic(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 24 * time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if err := s.CleanupOldData(ctx); err != nil {
		slog.Error("initial cleanup failed", slog.Any("error", err))
	}

	for {
		select {
		case <-ctx.Done():
			slog.Info("cleanup service stopping")
			return
		case <-ticker.C:
			if err := s.CleanupOldData(ctx); err != nil {
				slog.Error("periodic cleanup failed", slog.Any("error", err))
			}
		}
	}
}
