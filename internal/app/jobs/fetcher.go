package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/fairyhunter13/smurfguard/internal/domain"
	obsctx "github.com/fairyhunter13/smurfguard/internal/observability"
	"github.com/fairyhunter13/smurfguard/internal/service/riotapi"
)

// MatchFetcher deepens coverage for players discovered inside already
// ingested matches, pulling pages of their history until each carries the
// target number of stored matches. New participants encountered along the
// way are written as minimal untracked player rows, which is how the player
// graph grows.
type MatchFetcher struct {
	Data    DataProvider
	Players domain.PlayerRepository
	Matches domain.MatchRepository
}

func NewMatchFetcher(data DataProvider, players domain.PlayerRepository, matches domain.MatchRepository) *MatchFetcher {
	return &MatchFetcher{Data: data, Players: players, Matches: matches}
}

func (j *MatchFetcher) Type() domain.JobType { return domain.JobTypeMatchFetcher }

func (j *MatchFetcher) Run(ctx context.Context, cfg domain.JobConfiguration) (domain.RunSummary, error) {
	lg := obsctx.LoggerFromContext(ctx)
	settings := cfg.Settings

	players, err := j.Players.ListUnderFetched(ctx, settings.TargetMatches(), settings.TrackedPlayersPerRun())
	if err != nil {
		return domain.RunSummary{}, fmt.Errorf("op=fetcher.working_set: %w", err)
	}
	lg.Info("under-fetched working set loaded", slog.Int("players", len(players)))

	var tally Tally
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(settings.Concurrency())
	for _, p := range players {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			return j.fetchOne(gctx, settings, p, &tally)
		})
	}
	err = g.Wait()
	return tally.Summary(), err
}

func (j *MatchFetcher) fetchOne(ctx context.Context, settings domain.JobSettings, p domain.Player, tally *Tally) error {
	lg := obsctx.LoggerFromContext(ctx)
	tally.AddProcessed()

	stored, err := j.Matches.CountByPlayer(ctx, p.PUUID)
	if err != nil {
		return recordFailure(tally, lg, "match count", p.PUUID, err)
	}
	missing := settings.TargetMatches() - stored
	if missing <= 0 {
		// raced past the target since the working-set query
		return nil
	}
	want := min(missing, settings.FetcherMatchesPerPlayer())

	// page past what is already stored; the id listing serves newest first
	ids, _, err := j.Data.EnsureMatchIDs(ctx, p, riotapi.MatchIDsOptions{
		Start: stored,
		Count: want,
		Queue: domain.QueueRankedSolo,
	})
	if err != nil {
		return recordFailure(tally, lg, "match id page", p.PUUID, err)
	}

	ingested, discovered := 0, 0
	settle := func() {
		tally.AddMatches(ingested)
		tally.AddDiscovered(discovered)
	}
	for _, id := range ids {
		exists, err := j.Matches.Exists(ctx, id)
		if err != nil {
			settle()
			return recordFailure(tally, lg, "match lookup", p.PUUID, err)
		}
		if exists {
			continue
		}
		m, parts, _, err := j.Data.EnsureMatch(ctx, p.Platform, id)
		if err != nil {
			settle()
			return recordFailure(tally, lg, "match ingest", p.PUUID, err)
		}
		ingested++
		discovered += j.discoverParticipants(ctx, lg, p, m, parts)
	}
	settle()

	if stored+ingested >= settings.TargetMatches() {
		tally.MarkCapReached()
	}
	tally.AddUpdated()
	lg.Info("player coverage extended",
		slog.String("puuid", p.PUUID),
		slog.Int("stored", stored),
		slog.Int("new_matches", ingested),
		slog.Int("discovered", discovered))
	return nil
}

// discoverParticipants writes minimal rows for participants the store has
// never seen. The upsert never downgrades an existing player, so racing the
// updater is harmless.
func (j *MatchFetcher) discoverParticipants(ctx context.Context, lg *slog.Logger, subject domain.Player, m domain.Match, parts []domain.MatchParticipant) int {
	discovered := 0
	for _, part := range parts {
		if part.PUUID == "" || part.PUUID == subject.PUUID {
			continue
		}
		if _, err := j.Players.Get(ctx, part.PUUID); err == nil {
			continue
		} else if !domain.IsNotFound(err) {
			lg.Warn("participant lookup failed",
				slog.String("puuid", part.PUUID),
				slog.Any("error", err))
			continue
		}
		row := domain.Player{
			PUUID:    part.PUUID,
			Platform: subject.Platform,
			IsActive: true,
			LastSeen: m.GameCreation,
		}
		if err := j.Players.Upsert(ctx, row); err != nil {
			lg.Warn("participant upsert failed",
				slog.String("puuid", part.PUUID),
				slog.Any("error", err))
			continue
		}
		discovered++
	}
	return discovered
}
