package postgres

import (
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/smurfguard/internal/domain"
)

// MatchRepo persists matches and their participants using a minimal pgx pool.
type MatchRepo struct{ Pool PgxPool }

// NewMatchRepo constructs a MatchRepo with the given pool.
func NewMatchRepo(p PgxPool) *MatchRepo { return &MatchRepo{Pool: p} }

const matchCols = `match_id, platform, queue_id, game_mode, game_creation, game_duration, game_version, is_processed, created_at`

func scanMatch(row pgx.Row) (domain.Match, error) {
	var m domain.Match
	err := row.Scan(&m.MatchID, &m.Platform, &m.QueueID, &m.GameMode,
		&m.GameCreation, &m.GameDuration, &m.GameVersion, &m.IsProcessed, &m.CreatedAt)
	return m, err
}

// UpsertWithParticipants writes the match row and all participant rows inside
// one transaction. Completed matches are immutable, so a re-ingested match id
// is a no-op rather than an overwrite; either way no partially written match
// can exist.
func (r *MatchRepo) UpsertWithParticipants(ctx domain.Context, m domain.Match, parts []domain.MatchParticipant) error {
	tracer := otel.Tracer("repo.matches")
	ctx, span := tracer.Start(ctx, "matches.UpsertWithParticipants")
	defer span.End()
	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("op=match.upsert_begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	q := `INSERT INTO matches (match_id, platform, queue_id, game_mode, game_creation, game_duration, game_version, is_processed, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (match_id) DO NOTHING`
	if _, err := tx.Exec(ctx, q, m.MatchID, m.Platform, m.QueueID, m.GameMode,
		m.GameCreation.UTC(), m.GameDuration, m.GameVersion, m.IsProcessed, time.Now().UTC()); err != nil {
		return fmt.Errorf("op=match.upsert: %w", err)
	}

	pq := `INSERT INTO match_participants (match_id, puuid, team_id, champion_id, champion_name, team_position, kills, deaths, assists, creep_score, gold_earned, damage_dealt, vision_score, win)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
ON CONFLICT (match_id, puuid) DO NOTHING`
	for _, p := range parts {
		if _, err := tx.Exec(ctx, pq, m.MatchID, p.PUUID, p.TeamID, p.ChampionID, p.ChampionName,
			p.TeamPosition, p.Kills, p.Deaths, p.Assists, p.CreepScore, p.GoldEarned,
			p.DamageDealt, p.VisionScore, p.Win); err != nil {
			return fmt.Errorf("op=match.upsert_participant: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("op=match.upsert_commit: %w", err)
	}
	return nil
}

// Get loads a match by id or returns an error.
func (r *MatchRepo) Get(ctx domain.Context, matchID string) (domain.Match, error) {
	tracer := otel.Tracer("repo.matches")
	ctx, span := tracer.Start(ctx, "matches.Get")
	defer span.End()
	q := `SELECT ` + matchCols + ` FROM matches WHERE match_id=$1`
	m, err := scanMatch(r.Pool.QueryRow(ctx, q, matchID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Match{}, fmt.Errorf("op=match.get: %w", domain.ErrNotFound)
		}
		return domain.Match{}, fmt.Errorf("op=match.get: %w", err)
	}
	return m, nil
}

// Exists reports whether the match id is already stored.
func (r *MatchRepo) Exists(ctx domain.Context, matchID string) (bool, error) {
	tracer := otel.Tracer("repo.matches")
	ctx, span := tracer.Start(ctx, "matches.Exists")
	defer span.End()
	q := `SELECT EXISTS (SELECT 1 FROM matches WHERE match_id=$1)`
	var exists bool
	if err := r.Pool.QueryRow(ctx, q, matchID).Scan(&exists); err != nil {
		return false, fmt.Errorf("op=match.exists: %w", err)
	}
	return exists, nil
}

// CountByPlayer returns how many stored matches include the player.
func (r *MatchRepo) CountByPlayer(ctx domain.Context, puuid string) (int, error) {
	tracer := otel.Tracer("repo.matches")
	ctx, span := tracer.Start(ctx, "matches.CountByPlayer")
	defer span.End()
	q := `SELECT COUNT(*) FROM match_participants WHERE puuid=$1`
	var count int
	if err := r.Pool.QueryRow(ctx, q, puuid).Scan(&count); err != nil {
		return 0, fmt.Errorf("op=match.count_by_player: %w", err)
	}
	return count, nil
}

// ListPlayerMatches returns the player's newest stored matches paired with
// that player's participant row. queueID zero means no queue filter.
func (r *MatchRepo) ListPlayerMatches(ctx domain.Context, puuid string, queueID, limit int) ([]domain.PlayerMatch, error) {
	tracer := otel.Tracer("repo.matches")
	ctx, span := tracer.Start(ctx, "matches.ListPlayerMatches")
	defer span.End()
	q := `SELECT m.match_id, m.platform, m.queue_id, m.game_mode, m.game_creation, m.game_duration, m.game_version, m.is_processed, m.created_at,
	mp.id, mp.puuid, mp.team_id, mp.champion_id, mp.champion_name, mp.team_position, mp.kills, mp.deaths, mp.assists, mp.creep_score, mp.gold_earned, mp.damage_dealt, mp.vision_score, mp.win
FROM matches m
JOIN match_participants mp ON mp.match_id = m.match_id
WHERE mp.puuid = $1`
	args := []any{puuid}
	if queueID > 0 {
		args = append(args, queueID)
		q += fmt.Sprintf(" AND m.queue_id = $%d", len(args))
	}
	args = append(args, limit)
	q += fmt.Sprintf(" ORDER BY m.game_creation DESC LIMIT $%d", len(args))

	rows, err := r.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("op=match.list_player_matches: %w", err)
	}
	defer rows.Close()
	var out []domain.PlayerMatch
	for rows.Next() {
		var pm domain.PlayerMatch
		if err := rows.Scan(
			&pm.Match.MatchID, &pm.Match.Platform, &pm.Match.QueueID, &pm.Match.GameMode,
			&pm.Match.GameCreation, &pm.Match.GameDuration, &pm.Match.GameVersion,
			&pm.Match.IsProcessed, &pm.Match.CreatedAt,
			&pm.Participant.ID, &pm.Participant.PUUID, &pm.Participant.TeamID,
			&pm.Participant.ChampionID, &pm.Participant.ChampionName, &pm.Participant.TeamPosition,
			&pm.Participant.Kills, &pm.Participant.Deaths, &pm.Participant.Assists,
			&pm.Participant.CreepScore, &pm.Participant.GoldEarned, &pm.Participant.DamageDealt,
			&pm.Participant.VisionScore, &pm.Participant.Win,
		); err != nil {
			return nil, fmt.Errorf("op=match.list_player_matches_scan: %w", err)
		}
		pm.Participant.MatchID = pm.Match.MatchID
		out = append(out, pm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=match.list_player_matches_rows: %w", err)
	}
	return out, nil
}
