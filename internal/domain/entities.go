// Package domain defines the core entities, error taxonomy, and ports of the
// smurf-detection ingestion core. It has no dependencies on adapters; all IO
// goes through the repository and collaborator interfaces declared here.
package domain

import (
	"context"
	"fmt"
	"time"
)

// Context is an alias so usecases and adapters share the std context without
// the domain importing adapter packages.
type Context = context.Context

// Queue ids for the matchmaking queues the core cares about.
const (
	QueueRankedSolo = 420
	QueueRankedFlex = 440
)

// Ranked queue type strings as the platform reports them.
const (
	QueueTypeRankedSolo = "RANKED_SOLO_5x5"
	QueueTypeRankedFlex = "RANKED_FLEX_SR"
)

// Player is keyed by the platform-assigned PUUID. Rows are created by the
// data manager on first sighting and never deleted; is_active is the soft
// delete flag.
type Player struct {
	PUUID        string
	SummonerID   string
	GameName     string
	TagLine      string
	Platform     string
	AccountLevel int
	IsTracked    bool
	IsAnalyzed   bool
	IsActive     bool
	IsBanned     bool
	LastBanCheck *time.Time
	LastSeen     time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RiotID renders the human-visible name#tag form.
func (p Player) RiotID() string { return p.GameName + "#" + p.TagLine }

// Match is keyed by the provider match id. Completed matches are immutable:
// once stored with IsProcessed true only the flag itself may be rewritten.
type Match struct {
	MatchID      string
	Platform     string
	QueueID      int
	GameMode     string
	GameCreation time.Time
	GameDuration int // seconds
	GameVersion  string
	IsProcessed  bool
	CreatedAt    time.Time
}

// IsRanked reports whether the match counts toward ranked analysis.
func IsRanked(m Match) bool {
	return m.QueueID == QueueRankedSolo || m.QueueID == QueueRankedFlex
}

// FormattedDuration renders the game duration as mm:ss.
func FormattedDuration(m Match) string {
	return fmt.Sprintf("%d:%02d", m.GameDuration/60, m.GameDuration%60)
}

// MatchParticipant is one player's snapshot inside a match. Participants are
// written in the same transaction as their match and are immutable.
type MatchParticipant struct {
	ID           int64
	MatchID      string
	PUUID        string
	TeamID       int
	ChampionID   int
	ChampionName string
	TeamPosition string
	Kills        int
	Deaths       int
	Assists      int
	CreepScore   int
	GoldEarned   int
	DamageDealt  int
	VisionScore  int
	Win          bool
}

// KDARatio computes (kills+assists)/deaths with the usual deathless clamp.
func KDARatio(p MatchParticipant) float64 {
	if p.Deaths == 0 {
		return float64(p.Kills + p.Assists)
	}
	return float64(p.Kills+p.Assists) / float64(p.Deaths)
}

// CSPerMinute computes creep score per minute for a participant in m.
func CSPerMinute(p MatchParticipant, m Match) float64 {
	if m.GameDuration <= 0 {
		return 0
	}
	return float64(p.CreepScore) / (float64(m.GameDuration) / 60.0)
}

// PlayerMatch pairs a match with the subject player's participant row. The
// scoring engine consumes these.
type PlayerMatch struct {
	Match       Match
	Participant MatchParticipant
}

// PlayerRank is one ranked standing per (puuid, queue_type). At most one row
// per pair carries IsCurrent; older rows form the history.
type PlayerRank struct {
	ID           int64
	PUUID        string
	QueueType    string
	Tier         string
	Division     string
	LeaguePoints int
	Wins         int
	Losses       int
	HotStreak    bool
	FreshBlood   bool
	IsCurrent    bool
	CreatedAt    time.Time
}

// WinRate is wins/(wins+losses), 0 when the rank has no games.
func (r PlayerRank) WinRate() float64 {
	total := r.Wins + r.Losses
	if total == 0 {
		return 0
	}
	return float64(r.Wins) / float64(total)
}

// ConfidenceLevel buckets an overall smurf score.
type ConfidenceLevel string

const (
	ConfidenceHigh     ConfidenceLevel = "high"
	ConfidenceMedium   ConfidenceLevel = "medium"
	ConfidenceLow      ConfidenceLevel = "low"
	ConfidenceUnlikely ConfidenceLevel = "unlikely"
)

// ConfidenceFor maps an overall score onto its bucket.
func ConfidenceFor(score float64) ConfidenceLevel {
	switch {
	case score >= 0.80:
		return ConfidenceHigh
	case score >= 0.60:
		return ConfidenceMedium
	case score >= 0.40:
		return ConfidenceLow
	default:
		return ConfidenceUnlikely
	}
}

// SmurfDetection is one analysis run's result for a player. Rows are
// append-only; the latest view is derived by max(created_at) per puuid.
type SmurfDetection struct {
	ID              int64
	PUUID           string
	OverallScore    float64
	FactorScores    map[string]float64
	Confidence      ConfidenceLevel
	GamesAnalyzed   int
	QueueType       string
	AnalysisVersion string
	Notes           []string
	CreatedAt       time.Time
}

// DetectionEvent is the outbound notification emitted for high and medium
// confidence detections.
type DetectionEvent struct {
	PUUID           string          `json:"puuid"`
	OverallScore    float64         `json:"overall_score"`
	Confidence      ConfidenceLevel `json:"confidence"`
	AnalysisVersion string          `json:"analysis_version"`
	DetectedAt      time.Time       `json:"detected_at"`
}

// DataKind enumerates the freshness-tracked entity kinds.
type DataKind string

const (
	DataKindAccount  DataKind = "account"
	DataKindSummoner DataKind = "summoner"
	DataKindMatch    DataKind = "match"
	DataKindMatchIDs DataKind = "match_ids"
	DataKindRank     DataKind = "rank"
)

// DataTracking records per (kind, identifier) fetch metadata used by the
// freshness policy. NotFound is the tombstone for identifiers the platform
// reported absent.
type DataTracking struct {
	DataType    DataKind
	Identifier  string
	LastFetched *time.Time
	LastUpdated *time.Time
	FetchCount  int64
	HitCount    int64
	NotFound    bool
}

// Freshness tags every data-manager read result.
type Freshness string

const (
	Fresh              Freshness = "fresh"
	StaleServed        Freshness = "stale_served"
	MissingRateLimited Freshness = "missing_rate_limited"
)

// RateLimitEvent is one observed throttling event, append-only.
type RateLimitEvent struct {
	ID         int64
	LimitType  string // app, method, or service
	Endpoint   string
	LimitValue string
	CountValue string
	RetryAfter time.Duration
	Detail     string
	OccurredAt time.Time
}
