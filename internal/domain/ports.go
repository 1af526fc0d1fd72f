package domain

import "time"

// Repositories (ports). Implementations live under internal/adapter/repo.

// PlayerRepository persists players and serves the jobs' working sets.
type PlayerRepository interface {
	Upsert(ctx Context, p Player) error
	Get(ctx Context, puuid string) (Player, error)
	// GetByRiotID resolves a player by the case-insensitive name#tag pair.
	GetByRiotID(ctx Context, gameName, tagLine string) (Player, error)
	// ListTracked returns tracked, active players ordered oldest update first.
	ListTracked(ctx Context, limit int) ([]Player, error)
	// ListUnderFetched returns active players with fewer than target stored
	// matches, most recently seen first.
	ListUnderFetched(ctx Context, target, limit int) ([]Player, error)
	// ListForAnalysis returns players with at least minGames stored matches
	// whose latest analysis is absent or older than reanalyzeBefore.
	ListForAnalysis(ctx Context, minGames int, reanalyzeBefore time.Time, limit int) ([]Player, error)
	// ListForBanCheck returns players with a recent high or medium confidence
	// detection whose last ban check is absent or older than checkedBefore.
	ListForBanCheck(ctx Context, checkedBefore time.Time, limit int) ([]Player, error)
	MarkAnalyzed(ctx Context, puuid string, at time.Time) error
	MarkBanCheck(ctx Context, puuid string, banned bool, at time.Time) error
}

// MatchRepository persists matches together with their participants.
type MatchRepository interface {
	// UpsertWithParticipants writes the match and all participant rows in one
	// transaction; a partially written match is impossible.
	UpsertWithParticipants(ctx Context, m Match, parts []MatchParticipant) error
	Get(ctx Context, matchID string) (Match, error)
	Exists(ctx Context, matchID string) (bool, error)
	CountByPlayer(ctx Context, puuid string) (int, error)
	// ListPlayerMatches returns the player's most recent matches (optionally
	// filtered by queue) paired with that player's participant row.
	ListPlayerMatches(ctx Context, puuid string, queueID, limit int) ([]PlayerMatch, error)
}

// RankRepository maintains the per (puuid, queue_type) rank history.
type RankRepository interface {
	// UpsertCurrent demotes the existing current row and inserts r as the new
	// current standing, in one transaction.
	UpsertCurrent(ctx Context, r PlayerRank) error
	Current(ctx Context, puuid, queueType string) (PlayerRank, error)
	History(ctx Context, puuid, queueType string, limit int) ([]PlayerRank, error)
}

// DetectionRepository stores analysis results append-only.
type DetectionRepository interface {
	Insert(ctx Context, d SmurfDetection) (int64, error)
	Latest(ctx Context, puuid string) (SmurfDetection, error)
	ListByPlayer(ctx Context, puuid string, limit int) ([]SmurfDetection, error)
}

// JobConfigRepository serves and mutates the per-kind configuration rows.
type JobConfigRepository interface {
	GetByType(ctx Context, t JobType) (JobConfiguration, error)
	List(ctx Context) ([]JobConfiguration, error)
	SetActive(ctx Context, t JobType, active bool) error
	UpdateSchedule(ctx Context, t JobType, schedule string) error
	Upsert(ctx Context, c JobConfiguration) error
}

// JobExecutionRepository is the append-only run ledger.
type JobExecutionRepository interface {
	// InsertRunning claims a run. The running-per-type uniqueness is enforced
	// by the store; contention surfaces as ErrAlreadyRunning.
	InsertRunning(ctx Context, e JobExecution) error
	// Finish writes the terminal state, summary, captured logs, and finished
	// timestamp in one statement.
	Finish(ctx Context, id string, status JobStatus, summary RunSummary, logBlob, errMsg string, finishedAt time.Time) error
	Get(ctx Context, id string) (JobExecution, error)
	List(ctx Context, f ExecutionFilter) ([]JobExecution, int, error)
	// SweepStale finalizes running rows started before cutoff as failed with
	// the given error marker, returning how many were swept.
	SweepStale(ctx Context, cutoff time.Time, marker string) (int64, error)
}

// TrackingRepository maintains the freshness ledger.
type TrackingRepository interface {
	Get(ctx Context, kind DataKind, identifier string) (DataTracking, error)
	// TouchHit increments the hit counter, creating the row if absent.
	TouchHit(ctx Context, kind DataKind, identifier string) error
	// MarkFetched records a completed outbound fetch (or a tombstone when the
	// platform reported the identifier absent).
	MarkFetched(ctx Context, kind DataKind, identifier string, at time.Time, notFound bool) error
}

// RateLimitLogRepository is the append-only throttling record.
type RateLimitLogRepository interface {
	Append(ctx Context, e RateLimitEvent) error
	ListSince(ctx Context, since time.Time, limit int) ([]RateLimitEvent, error)
}

// SchedulerStateRepository persists the trigger engine's next-fire tracking.
type SchedulerStateRepository interface {
	UpsertNextRun(ctx Context, t JobType, nextRun time.Time) error
	MarkFired(ctx Context, t JobType, firedAt, nextRun time.Time) error
}

// SettingsStore is the collaborator-owned admin settings surface. The core
// reads exactly one key from it.
type SettingsStore interface {
	// APIKey returns the active external API key; ErrNotFound when unset.
	APIKey(ctx Context) (string, error)
}

// DetectionPublisher emits detection events to downstream consumers. A no-op
// implementation satisfies it when no broker is configured.
type DetectionPublisher interface {
	PublishDetection(ctx Context, ev DetectionEvent) error
}
