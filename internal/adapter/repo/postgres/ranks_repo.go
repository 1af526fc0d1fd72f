package postgres

import (
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/smurfguard/internal/domain"
)

// RankRepo maintains the per (puuid, queue_type) rank history.
type RankRepo struct{ Pool PgxPool }

// NewRankRepo constructs a RankRepo with the given pool.
func NewRankRepo(p PgxPool) *RankRepo { return &RankRepo{Pool: p} }

const rankCols = `id, puuid, queue_type, tier, division, league_points, wins, losses, hot_streak, fresh_blood, is_current, created_at`

func scanRank(row pgx.Row) (domain.PlayerRank, error) {
	var r domain.PlayerRank
	err := row.Scan(&r.ID, &r.PUUID, &r.QueueType, &r.Tier, &r.Division, &r.LeaguePoints,
		&r.Wins, &r.Losses, &r.HotStreak, &r.FreshBlood, &r.IsCurrent, &r.CreatedAt)
	return r, err
}

// UpsertCurrent demotes the standing current row for (puuid, queue_type) and
// inserts r as the new current one, in a single transaction. History rows are
// never rewritten.
func (r *RankRepo) UpsertCurrent(ctx domain.Context, pr domain.PlayerRank) error {
	tracer := otel.Tracer("repo.ranks")
	ctx, span := tracer.Start(ctx, "ranks.UpsertCurrent")
	defer span.End()
	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("op=rank.upsert_begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	demote := `UPDATE player_ranks SET is_current=FALSE WHERE puuid=$1 AND queue_type=$2 AND is_current`
	if _, err := tx.Exec(ctx, demote, pr.PUUID, pr.QueueType); err != nil {
		return fmt.Errorf("op=rank.demote_current: %w", err)
	}

	insert := `INSERT INTO player_ranks (puuid, queue_type, tier, division, league_points, wins, losses, hot_streak, fresh_blood, is_current, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,TRUE,$10)`
	created := pr.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	if _, err := tx.Exec(ctx, insert, pr.PUUID, pr.QueueType, pr.Tier, pr.Division,
		pr.LeaguePoints, pr.Wins, pr.Losses, pr.HotStreak, pr.FreshBlood, created); err != nil {
		return fmt.Errorf("op=rank.insert_current: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("op=rank.upsert_commit: %w", err)
	}
	return nil
}

// Current loads the current standing for (puuid, queue_type).
func (r *RankRepo) Current(ctx domain.Context, puuid, queueType string) (domain.PlayerRank, error) {
	tracer := otel.Tracer("repo.ranks")
	ctx, span := tracer.Start(ctx, "ranks.Current")
	defer span.End()
	q := `SELECT ` + rankCols + ` FROM player_ranks WHERE puuid=$1 AND queue_type=$2 AND is_current LIMIT 1`
	pr, err := scanRank(r.Pool.QueryRow(ctx, q, puuid, queueType))
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.PlayerRank{}, fmt.Errorf("op=rank.current: %w", domain.ErrNotFound)
		}
		return domain.PlayerRank{}, fmt.Errorf("op=rank.current: %w", err)
	}
	return pr, nil
}

// History returns the rank rows for (puuid, queue_type), newest first,
// including the current one.
func (r *RankRepo) History(ctx domain.Context, puuid, queueType string, limit int) ([]domain.PlayerRank, error) {
	tracer := otel.Tracer("repo.ranks")
	ctx, span := tracer.Start(ctx, "ranks.History")
	defer span.End()
	q := `SELECT ` + rankCols + ` FROM player_ranks WHERE puuid=$1 AND queue_type=$2 ORDER BY created_at DESC LIMIT $3`
	rows, err := r.Pool.Query(ctx, q, puuid, queueType, limit)
	if err != nil {
		return nil, fmt.Errorf("op=rank.history: %w", err)
	}
	defer rows.Close()
	var out []domain.PlayerRank
	for rows.Next() {
		pr, err := scanRank(rows)
		if err != nil {
			return nil, fmt.Errorf("op=rank.history_scan: %w", err)
		}
		out = append(out, pr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=rank.history_rows: %w", err)
	}
	return out, nil
}
