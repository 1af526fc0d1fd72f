// Package jobs implements the four recurring jobs: the tracked-player
// updater, the match fetcher, the player analyzer, and the ban checker. All
// four share the same outer shape: enumerate a bounded working set sized by
// the job's settings blob, call the data manager per item, and tally a
// structured summary for the execution ledger.
package jobs

import (
	"log/slog"
	"sync"

	"github.com/fairyhunter13/smurfguard/internal/domain"
	"github.com/fairyhunter13/smurfguard/internal/service/riotapi"
)

// DataProvider is the slice of the data manager the jobs call. The analyzer
// deliberately takes no provider: it reads only what earlier runs persisted.
type DataProvider interface {
	EnsurePlayerByPUUID(ctx domain.Context, platform, puuid string) (domain.Player, domain.Freshness, error)
	EnsureRanks(ctx domain.Context, player domain.Player) ([]domain.PlayerRank, domain.Freshness, error)
	EnsureMatchIDs(ctx domain.Context, player domain.Player, opts riotapi.MatchIDsOptions) ([]string, domain.Freshness, error)
	EnsureMatch(ctx domain.Context, platform, matchID string) (domain.Match, []domain.MatchParticipant, domain.Freshness, error)
	CheckAccountExists(ctx domain.Context, platform, puuid string) (exists, inconclusive bool, err error)
}

// Tally accumulates one run's counters. Safe for concurrent use by a job's
// worker goroutines.
type Tally struct {
	mu sync.Mutex
	s  domain.RunSummary
}

func (t *Tally) add(f func(*domain.RunSummary)) {
	t.mu.Lock()
	f(&t.s)
	t.mu.Unlock()
}

// AddProcessed counts one working-set item attempted.
func (t *Tally) AddProcessed() { t.add(func(s *domain.RunSummary) { s.Processed++ }) }

// AddUpdated counts one item brought fully up to date.
func (t *Tally) AddUpdated() { t.add(func(s *domain.RunSummary) { s.Updated++ }) }

// AddFailed counts one item that errored without aborting the run.
func (t *Tally) AddFailed() { t.add(func(s *domain.RunSummary) { s.Failed++ }) }

// AddRateLimited counts one item abandoned to a throttle.
func (t *Tally) AddRateLimited() { t.add(func(s *domain.RunSummary) { s.RateLimited++ }) }

// AddMatches counts matches ingested on behalf of one item.
func (t *Tally) AddMatches(n int) { t.add(func(s *domain.RunSummary) { s.MatchesIngested += n }) }

// AddDiscovered counts previously unseen players written from participants.
func (t *Tally) AddDiscovered(n int) { t.add(func(s *domain.RunSummary) { s.PlayersDiscovered += n }) }

// AddDetection counts one persisted analysis result.
func (t *Tally) AddDetection() { t.add(func(s *domain.RunSummary) { s.Detections++ }) }

// AddBan counts one account that vanished from the platform.
func (t *Tally) AddBan() { t.add(func(s *domain.RunSummary) { s.BansDetected++ }) }

// MarkCapReached records that at least one player hit its stored-match target.
func (t *Tally) MarkCapReached() { t.add(func(s *domain.RunSummary) { s.CapReached = true }) }

// Summary snapshots the counters.
func (t *Tally) Summary() domain.RunSummary {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.s
}

// recordFailure settles one failed per-item operation. Rate limits and
// cancellations abort the whole run by propagating the error; anything else
// is tallied and logged so the run keeps draining.
func recordFailure(t *Tally, lg *slog.Logger, op, puuid string, err error) error {
	switch {
	case domain.IsRateLimited(err):
		t.AddRateLimited()
		return err
	case domain.IsCancellation(err):
		return err
	default:
		t.AddFailed()
		lg.Warn(op+" failed",
			slog.String("puuid", puuid),
			slog.Any("error", err))
		return nil
	}
}
