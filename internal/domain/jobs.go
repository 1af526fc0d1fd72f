// Package domain: job framework entities (configurations, executions, run
// summaries) shared by the scheduler, the runner, and the job control surface.
package domain

import "time"

// JobType identifies one of the four recurring jobs.
type JobType string

const (
	JobTypeTrackedPlayerUpdater JobType = "tracked_player_updater"
	JobTypeMatchFetcher         JobType = "match_fetcher"
	JobTypePlayerAnalyzer       JobType = "player_analyzer"
	JobTypeBanChecker           JobType = "ban_checker"
)

// KnownJobTypes lists the job kinds the scheduler will register, in a stable
// order.
func KnownJobTypes() []JobType {
	return []JobType{
		JobTypeTrackedPlayerUpdater,
		JobTypeMatchFetcher,
		JobTypePlayerAnalyzer,
		JobTypeBanChecker,
	}
}

// ValidJobType reports whether t names a known job kind.
func ValidJobType(t JobType) bool {
	switch t {
	case JobTypeTrackedPlayerUpdater, JobTypeMatchFetcher, JobTypePlayerAnalyzer, JobTypeBanChecker:
		return true
	}
	return false
}

// JobStatus is the execution ledger state machine. Pending rows leave only to
// a terminal state, and every terminal row carries a finished timestamp.
type JobStatus string

const (
	JobPending     JobStatus = "pending"
	JobRunning     JobStatus = "running"
	JobSuccess     JobStatus = "success"
	JobFailed      JobStatus = "failed"
	JobRateLimited JobStatus = "rate_limited"
	JobSkipped     JobStatus = "skipped"
)

// ValidJobStatus reports whether s names a known ledger state.
func ValidJobStatus(s JobStatus) bool {
	switch s {
	case JobPending, JobRunning, JobSuccess, JobFailed, JobRateLimited, JobSkipped:
		return true
	}
	return false
}

// Terminal reports whether s is an end state of the ledger.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobSuccess, JobFailed, JobRateLimited, JobSkipped:
		return true
	}
	return false
}

// JobSettings is the per-job tunables blob stored as JSON on the
// configuration row. Zero values fall back to the documented defaults via the
// accessor methods; jobs never read the struct fields directly.
type JobSettings struct {
	MaxTrackedPlayersPerRun int `json:"max_tracked_players_per_run,omitempty"`
	MaxNewMatchesPerPlayer  int `json:"max_new_matches_per_player,omitempty"`
	MatchesPerPlayerPerRun  int `json:"matches_per_player_per_run,omitempty"`
	TargetMatchesPerPlayer  int `json:"target_matches_per_player,omitempty"`
	MinimumGamesForAnalysis int `json:"minimum_games_for_analysis,omitempty"`
	// ReanalysisAgeDays is how old an analysis may grow before the analyzer
	// revisits the player.
	ReanalysisAgeDays int `json:"reanalysis_age,omitempty"`
	BanCheckDays      int `json:"ban_check_days,omitempty"`
	JobTimeoutSeconds int `json:"job_timeout_seconds,omitempty"`
	PerJobConcurrency int `json:"per_job_concurrency,omitempty"`
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// TrackedPlayersPerRun caps the updater's working set.
func (s JobSettings) TrackedPlayersPerRun() int { return orDefault(s.MaxTrackedPlayersPerRun, 25) }

// NewMatchesPerPlayer caps match-id ingestion per player per updater run.
func (s JobSettings) NewMatchesPerPlayer() int { return orDefault(s.MaxNewMatchesPerPlayer, 20) }

// FetcherMatchesPerPlayer caps the match fetcher's per-player pull.
func (s JobSettings) FetcherMatchesPerPlayer() int { return orDefault(s.MatchesPerPlayerPerRun, 10) }

// TargetMatches is the per-player stored-match goal for the match fetcher.
func (s JobSettings) TargetMatches() int { return orDefault(s.TargetMatchesPerPlayer, 30) }

// MinGamesForAnalysis gates the analyzer's working set.
func (s JobSettings) MinGamesForAnalysis() int { return orDefault(s.MinimumGamesForAnalysis, 10) }

// ReanalysisAge is how stale an analysis may be before a rerun.
func (s JobSettings) ReanalysisAge() time.Duration {
	return time.Duration(orDefault(s.ReanalysisAgeDays, 7)) * 24 * time.Hour
}

// BanCheckInterval is how often the ban checker revisits a flagged player.
func (s JobSettings) BanCheckInterval() time.Duration {
	return time.Duration(orDefault(s.BanCheckDays, 3)) * 24 * time.Hour
}

// Timeout bounds one execution of the job.
func (s JobSettings) Timeout() time.Duration {
	return time.Duration(orDefault(s.JobTimeoutSeconds, 600)) * time.Second
}

// Concurrency bounds concurrent data-manager calls inside one execution.
func (s JobSettings) Concurrency() int { return orDefault(s.PerJobConcurrency, 4) }

// JobConfiguration is one row per job kind, mutated only by operators.
type JobConfiguration struct {
	ID        int64
	JobType   JobType
	Name      string
	Schedule  string
	IsActive  bool
	Settings  JobSettings
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RunSummary is the structured outcome stored with every execution. Counts
// are cumulative over the run, including partial runs that end rate limited.
type RunSummary struct {
	Processed         int  `json:"processed"`
	Updated           int  `json:"updated"`
	Failed            int  `json:"failed"`
	RateLimited       int  `json:"rate_limited"`
	MatchesIngested   int  `json:"matches_ingested,omitempty"`
	PlayersDiscovered int  `json:"players_discovered,omitempty"`
	Detections        int  `json:"detections,omitempty"`
	BansDetected      int  `json:"bans_detected,omitempty"`
	CapReached        bool `json:"cap_reached,omitempty"`
}

// TriggeredBy values for the execution ledger.
const (
	TriggerSchedule = "schedule"
	TriggerManual   = "manual"
)

// JobExecution is one append-only ledger row per run.
type JobExecution struct {
	ID          string
	JobConfigID int64
	JobType     JobType
	Status      JobStatus
	TriggeredBy string
	StartedAt   time.Time
	FinishedAt  *time.Time
	Summary     RunSummary
	LogBlob     string
	Error       string
	CreatedAt   time.Time
}

// ExecutionFilter narrows and pages ledger listings.
type ExecutionFilter struct {
	JobType JobType
	Status  JobStatus
	Limit   int
	Offset  int
}
