package postgres

import (
	"context"
	"fmt"
	"log/slog"
)

// schemaStatements is executed in order by EnsureSchema. Every statement is
// idempotent so startup can run the whole list unconditionally.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS players (
	puuid VARCHAR(78) PRIMARY KEY,
	summoner_id VARCHAR(63) NOT NULL DEFAULT '',
	game_name TEXT NOT NULL DEFAULT '',
	tag_line TEXT NOT NULL DEFAULT '',
	platform VARCHAR(10) NOT NULL,
	account_level INTEGER NOT NULL DEFAULT 0,
	is_tracked BOOLEAN NOT NULL DEFAULT FALSE,
	is_analyzed BOOLEAN NOT NULL DEFAULT FALSE,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	is_banned BOOLEAN NOT NULL DEFAULT FALSE,
	last_ban_check TIMESTAMPTZ,
	last_seen TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
	`CREATE INDEX IF NOT EXISTS idx_players_tracked ON players (is_tracked, is_active)`,
	`CREATE INDEX IF NOT EXISTS idx_players_last_seen ON players (last_seen DESC)`,

	`CREATE TABLE IF NOT EXISTS matches (
	match_id VARCHAR(20) PRIMARY KEY,
	platform VARCHAR(10) NOT NULL,
	queue_id INTEGER NOT NULL DEFAULT 0,
	game_mode VARCHAR(20) NOT NULL DEFAULT '',
	game_creation TIMESTAMPTZ NOT NULL,
	game_duration INTEGER NOT NULL DEFAULT 0,
	game_version VARCHAR(30) NOT NULL DEFAULT '',
	is_processed BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
	`CREATE INDEX IF NOT EXISTS idx_matches_queue ON matches (queue_id)`,
	`CREATE INDEX IF NOT EXISTS idx_matches_game_creation ON matches (game_creation DESC)`,

	`CREATE TABLE IF NOT EXISTS match_participants (
	id BIGSERIAL PRIMARY KEY,
	match_id VARCHAR(20) NOT NULL REFERENCES matches(match_id) ON DELETE CASCADE,
	puuid VARCHAR(78) NOT NULL,
	team_id INTEGER NOT NULL DEFAULT 0,
	champion_id INTEGER NOT NULL DEFAULT 0,
	champion_name VARCHAR(50) NOT NULL DEFAULT '',
	team_position VARCHAR(20) NOT NULL DEFAULT '',
	kills INTEGER NOT NULL DEFAULT 0,
	deaths INTEGER NOT NULL DEFAULT 0,
	assists INTEGER NOT NULL DEFAULT 0,
	creep_score INTEGER NOT NULL DEFAULT 0,
	gold_earned INTEGER NOT NULL DEFAULT 0,
	damage_dealt INTEGER NOT NULL DEFAULT 0,
	vision_score INTEGER NOT NULL DEFAULT 0,
	win BOOLEAN NOT NULL DEFAULT FALSE,
	UNIQUE (match_id, puuid)
)`,
	`CREATE INDEX IF NOT EXISTS idx_participants_puuid ON match_participants (puuid)`,

	`CREATE TABLE IF NOT EXISTS player_ranks (
	id BIGSERIAL PRIMARY KEY,
	puuid VARCHAR(78) NOT NULL,
	queue_type VARCHAR(30) NOT NULL,
	tier VARCHAR(15) NOT NULL DEFAULT '',
	division VARCHAR(5) NOT NULL DEFAULT '',
	league_points INTEGER NOT NULL DEFAULT 0,
	wins INTEGER NOT NULL DEFAULT 0,
	losses INTEGER NOT NULL DEFAULT 0,
	hot_streak BOOLEAN NOT NULL DEFAULT FALSE,
	fresh_blood BOOLEAN NOT NULL DEFAULT FALSE,
	is_current BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
	`CREATE INDEX IF NOT EXISTS idx_ranks_player_queue ON player_ranks (puuid, queue_type, created_at DESC)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uniq_rank_current ON player_ranks (puuid, queue_type) WHERE is_current`,

	`CREATE TABLE IF NOT EXISTS smurf_detections (
	id BIGSERIAL PRIMARY KEY,
	puuid VARCHAR(78) NOT NULL,
	overall_score DOUBLE PRECISION NOT NULL,
	factor_scores JSONB NOT NULL DEFAULT '{}',
	confidence VARCHAR(10) NOT NULL,
	games_analyzed INTEGER NOT NULL DEFAULT 0,
	queue_type VARCHAR(30) NOT NULL DEFAULT '',
	analysis_version VARCHAR(20) NOT NULL,
	notes JSONB NOT NULL DEFAULT '[]',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
	`CREATE INDEX IF NOT EXISTS idx_detections_player ON smurf_detections (puuid, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_detections_confidence ON smurf_detections (confidence)`,

	`CREATE TABLE IF NOT EXISTS job_configurations (
	id BIGSERIAL PRIMARY KEY,
	job_type VARCHAR(40) NOT NULL UNIQUE,
	name TEXT NOT NULL DEFAULT '',
	schedule VARCHAR(60) NOT NULL,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	settings JSONB NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,

	`CREATE TABLE IF NOT EXISTS job_executions (
	id VARCHAR(36) PRIMARY KEY,
	job_config_id BIGINT NOT NULL,
	job_type VARCHAR(40) NOT NULL,
	status VARCHAR(15) NOT NULL,
	triggered_by VARCHAR(10) NOT NULL DEFAULT 'schedule',
	started_at TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ,
	summary JSONB NOT NULL DEFAULT '{}',
	log_blob TEXT NOT NULL DEFAULT '',
	error TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uniq_job_exec_running ON job_executions (job_config_id) WHERE status = 'running'`,
	`CREATE INDEX IF NOT EXISTS idx_executions_type_started ON job_executions (job_type, started_at DESC)`,

	`CREATE TABLE IF NOT EXISTS data_tracking (
	data_type VARCHAR(20) NOT NULL,
	identifier TEXT NOT NULL,
	last_fetched TIMESTAMPTZ,
	last_updated TIMESTAMPTZ,
	fetch_count BIGINT NOT NULL DEFAULT 0,
	hit_count BIGINT NOT NULL DEFAULT 0,
	not_found BOOLEAN NOT NULL DEFAULT FALSE,
	PRIMARY KEY (data_type, identifier)
)`,

	`CREATE TABLE IF NOT EXISTS rate_limit_log (
	id BIGSERIAL PRIMARY KEY,
	limit_type VARCHAR(20) NOT NULL,
	endpoint VARCHAR(40) NOT NULL DEFAULT '',
	limit_value TEXT NOT NULL DEFAULT '',
	count_value TEXT NOT NULL DEFAULT '',
	retry_after_ms BIGINT NOT NULL DEFAULT 0,
	detail TEXT NOT NULL DEFAULT '',
	occurred_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
	`CREATE INDEX IF NOT EXISTS idx_rate_limit_log_occurred ON rate_limit_log (occurred_at DESC)`,

	`CREATE TABLE IF NOT EXISTS scheduler_state (
	job_type VARCHAR(40) PRIMARY KEY,
	last_fired TIMESTAMPTZ,
	next_run TIMESTAMPTZ,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,

	`CREATE TABLE IF NOT EXISTS admin_settings (
	key VARCHAR(60) PRIMARY KEY,
	value TEXT NOT NULL DEFAULT '',
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
}

// EnsureSchema creates every table and index the adapters rely on. It runs at
// startup before anything touches the pool.
func EnsureSchema(ctx context.Context, pool PgxPool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("op=schema.ensure: %w", err)
		}
	}
	slog.Info("database schema ensured", slog.Int("statements", len(schemaStatements)))
	return nil
}
