// Package postgres provides PostgreSQL database adapters.
//
// It implements the repository ports for data persistence.
// The package provides type-safe database operations with
// connection pooling and transaction support.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/smurfguard/internal/domain"
)

// PlayerRepo persists and loads players using a minimal pgx pool.
type PlayerRepo struct{ Pool PgxPool }

// PgxPool is a minimal subset of pgxpool used by the repos for easy testing.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// NewPlayerRepo constructs a PlayerRepo with the given pool.
func NewPlayerRepo(p PgxPool) *PlayerRepo { return &PlayerRepo{Pool: p} }

const playerCols = `puuid, summoner_id, game_name, tag_line, platform, account_level, is_tracked, is_analyzed, is_active, is_banned, last_ban_check, last_seen, created_at, updated_at`

func scanPlayer(row pgx.Row) (domain.Player, error) {
	var p domain.Player
	err := row.Scan(&p.PUUID, &p.SummonerID, &p.GameName, &p.TagLine, &p.Platform,
		&p.AccountLevel, &p.IsTracked, &p.IsAnalyzed, &p.IsActive, &p.IsBanned,
		&p.LastBanCheck, &p.LastSeen, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func collectPlayers(rows pgx.Rows) ([]domain.Player, error) {
	defer rows.Close()
	var out []domain.Player
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Upsert inserts the player or refreshes its identity fields. Name, tag and
// summoner id only overwrite when the incoming value is non-empty, so a
// partial profile from one endpoint does not erase data learned from another.
// Tracking is sticky: once a player is tracked an upsert never untracks it.
func (r *PlayerRepo) Upsert(ctx domain.Context, p domain.Player) error {
	tracer := otel.Tracer("repo.players")
	ctx, span := tracer.Start(ctx, "players.Upsert")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.sql.table", "players"),
	)
	now := time.Now().UTC()
	lastSeen := p.LastSeen
	if lastSeen.IsZero() {
		lastSeen = now
	}
	q := `INSERT INTO players (puuid, summoner_id, game_name, tag_line, platform, account_level, is_tracked, is_analyzed, is_active, is_banned, last_seen, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,FALSE,$8,FALSE,$9,$10,$10)
ON CONFLICT (puuid) DO UPDATE SET
	summoner_id = COALESCE(NULLIF(EXCLUDED.summoner_id,''), players.summoner_id),
	game_name = COALESCE(NULLIF(EXCLUDED.game_name,''), players.game_name),
	tag_line = COALESCE(NULLIF(EXCLUDED.tag_line,''), players.tag_line),
	platform = EXCLUDED.platform,
	account_level = GREATEST(players.account_level, EXCLUDED.account_level),
	is_tracked = players.is_tracked OR EXCLUDED.is_tracked,
	is_active = EXCLUDED.is_active,
	last_seen = EXCLUDED.last_seen,
	updated_at = EXCLUDED.updated_at`
	_, err := r.Pool.Exec(ctx, q, p.PUUID, p.SummonerID, p.GameName, p.TagLine, p.Platform,
		p.AccountLevel, p.IsTracked, p.IsActive, lastSeen, now)
	if err != nil {
		return fmt.Errorf("op=player.upsert: %w", err)
	}
	return nil
}

// Get loads a player by puuid or returns an error.
func (r *PlayerRepo) Get(ctx domain.Context, puuid string) (domain.Player, error) {
	tracer := otel.Tracer("repo.players")
	ctx, span := tracer.Start(ctx, "players.Get")
	defer span.End()
	q := `SELECT ` + playerCols + ` FROM players WHERE puuid=$1`
	p, err := scanPlayer(r.Pool.QueryRow(ctx, q, puuid))
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Player{}, fmt.Errorf("op=player.get: %w", domain.ErrNotFound)
		}
		return domain.Player{}, fmt.Errorf("op=player.get: %w", err)
	}
	return p, nil
}

// GetByRiotID resolves a player by the case-insensitive name#tag pair.
func (r *PlayerRepo) GetByRiotID(ctx domain.Context, gameName, tagLine string) (domain.Player, error) {
	tracer := otel.Tracer("repo.players")
	ctx, span := tracer.Start(ctx, "players.GetByRiotID")
	defer span.End()
	q := `SELECT ` + playerCols + ` FROM players WHERE LOWER(game_name)=LOWER($1) AND LOWER(tag_line)=LOWER($2)`
	p, err := scanPlayer(r.Pool.QueryRow(ctx, q, gameName, tagLine))
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Player{}, fmt.Errorf("op=player.get_by_riot_id: %w", domain.ErrNotFound)
		}
		return domain.Player{}, fmt.Errorf("op=player.get_by_riot_id: %w", err)
	}
	return p, nil
}

// ListTracked returns tracked active players, least recently updated first, so
// the updater cycles through the whole tracked set over successive runs.
func (r *PlayerRepo) ListTracked(ctx domain.Context, limit int) ([]domain.Player, error) {
	tracer := otel.Tracer("repo.players")
	ctx, span := tracer.Start(ctx, "players.ListTracked")
	defer span.End()
	q := `SELECT ` + playerCols + ` FROM players WHERE is_tracked AND is_active ORDER BY updated_at ASC LIMIT $1`
	rows, err := r.Pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("op=player.list_tracked: %w", err)
	}
	out, err := collectPlayers(rows)
	if err != nil {
		return nil, fmt.Errorf("op=player.list_tracked: %w", err)
	}
	return out, nil
}

// ListUnderFetched returns active players holding fewer than target stored
// matches, most recently seen first.
func (r *PlayerRepo) ListUnderFetched(ctx domain.Context, target, limit int) ([]domain.Player, error) {
	tracer := otel.Tracer("repo.players")
	ctx, span := tracer.Start(ctx, "players.ListUnderFetched")
	defer span.End()
	q := `SELECT ` + playerCols + ` FROM players p
WHERE p.is_active AND (SELECT COUNT(*) FROM match_participants mp WHERE mp.puuid = p.puuid) < $1
ORDER BY p.last_seen DESC LIMIT $2`
	rows, err := r.Pool.Query(ctx, q, target, limit)
	if err != nil {
		return nil, fmt.Errorf("op=player.list_under_fetched: %w", err)
	}
	out, err := collectPlayers(rows)
	if err != nil {
		return nil, fmt.Errorf("op=player.list_under_fetched: %w", err)
	}
	return out, nil
}

// ListForAnalysis returns active players with at least minGames stored
// matches whose newest analysis is absent or older than reanalyzeBefore,
// never-analyzed players first.
func (r *PlayerRepo) ListForAnalysis(ctx domain.Context, minGames int, reanalyzeBefore time.Time, limit int) ([]domain.Player, error) {
	tracer := otel.Tracer("repo.players")
	ctx, span := tracer.Start(ctx, "players.ListForAnalysis")
	defer span.End()
	q := `SELECT ` + playerCols + ` FROM players p
WHERE p.is_active
  AND (SELECT COUNT(*) FROM match_participants mp WHERE mp.puuid = p.puuid) >= $1
  AND NOT EXISTS (
    SELECT 1 FROM smurf_detections d WHERE d.puuid = p.puuid AND d.created_at >= $2
  )
ORDER BY (SELECT MAX(d.created_at) FROM smurf_detections d WHERE d.puuid = p.puuid) ASC NULLS FIRST
LIMIT $3`
	rows, err := r.Pool.Query(ctx, q, minGames, reanalyzeBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("op=player.list_for_analysis: %w", err)
	}
	out, err := collectPlayers(rows)
	if err != nil {
		return nil, fmt.Errorf("op=player.list_for_analysis: %w", err)
	}
	return out, nil
}

// ListForBanCheck returns active, not yet banned players carrying a high or
// medium confidence detection whose last ban check is absent or older than
// checkedBefore.
func (r *PlayerRepo) ListForBanCheck(ctx domain.Context, checkedBefore time.Time, limit int) ([]domain.Player, error) {
	tracer := otel.Tracer("repo.players")
	ctx, span := tracer.Start(ctx, "players.ListForBanCheck")
	defer span.End()
	q := `SELECT ` + playerCols + ` FROM players p
WHERE p.is_active AND NOT p.is_banned
  AND (p.last_ban_check IS NULL OR p.last_ban_check < $1)
  AND EXISTS (
    SELECT 1 FROM smurf_detections d WHERE d.puuid = p.puuid AND d.confidence IN ('high','medium')
  )
ORDER BY p.last_ban_check ASC NULLS FIRST
LIMIT $2`
	rows, err := r.Pool.Query(ctx, q, checkedBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("op=player.list_for_ban_check: %w", err)
	}
	out, err := collectPlayers(rows)
	if err != nil {
		return nil, fmt.Errorf("op=player.list_for_ban_check: %w", err)
	}
	return out, nil
}

// MarkAnalyzed flags the player as analyzed at the given time.
func (r *PlayerRepo) MarkAnalyzed(ctx domain.Context, puuid string, at time.Time) error {
	tracer := otel.Tracer("repo.players")
	ctx, span := tracer.Start(ctx, "players.MarkAnalyzed")
	defer span.End()
	q := `UPDATE players SET is_analyzed=TRUE, updated_at=$2 WHERE puuid=$1`
	_, err := r.Pool.Exec(ctx, q, puuid, at.UTC())
	if err != nil {
		return fmt.Errorf("op=player.mark_analyzed: %w", err)
	}
	return nil
}

// MarkBanCheck records a ban-check pass. A confirmed ban also deactivates the
// player so the jobs stop spending budget on it.
func (r *PlayerRepo) MarkBanCheck(ctx domain.Context, puuid string, banned bool, at time.Time) error {
	tracer := otel.Tracer("repo.players")
	ctx, span := tracer.Start(ctx, "players.MarkBanCheck")
	defer span.End()
	q := `UPDATE players SET is_banned=$2, last_ban_check=$3, is_active = CASE WHEN $2 THEN FALSE ELSE is_active END, updated_at=$3 WHERE puuid=$1`
	_, err := r.Pool.Exec(ctx, q, puuid, banned, at.UTC())
	if err != nil {
		return fmt.Errorf("op=player.mark_ban_check: %w", err)
	}
	return nil
}
