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

// TrackedPlayerUpdater keeps watched players current: profile, ranked
// standings, and their most recent ranked matches, oldest-updated first.
type TrackedPlayerUpdater struct {
	Data    DataProvider
	Players domain.PlayerRepository
	Matches domain.MatchRepository
}

func NewTrackedPlayerUpdater(data DataProvider, players domain.PlayerRepository, matches domain.MatchRepository) *TrackedPlayerUpdater {
	return &TrackedPlayerUpdater{Data: data, Players: players, Matches: matches}
}

func (j *TrackedPlayerUpdater) Type() domain.JobType { return domain.JobTypeTrackedPlayerUpdater }

func (j *TrackedPlayerUpdater) Run(ctx context.Context, cfg domain.JobConfiguration) (domain.RunSummary, error) {
	lg := obsctx.LoggerFromContext(ctx)
	settings := cfg.Settings

	players, err := j.Players.ListTracked(ctx, settings.TrackedPlayersPerRun())
	if err != nil {
		return domain.RunSummary{}, fmt.Errorf("op=updater.working_set: %w", err)
	}
	lg.Info("tracked working set loaded", slog.Int("players", len(players)))

	var tally Tally
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(settings.Concurrency())
	for _, p := range players {
		// a rate-limited or cancelled worker stops the drain
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			return j.updateOne(gctx, settings, p, &tally)
		})
	}
	err = g.Wait()
	return tally.Summary(), err
}

func (j *TrackedPlayerUpdater) updateOne(ctx context.Context, settings domain.JobSettings, p domain.Player, tally *Tally) error {
	lg := obsctx.LoggerFromContext(ctx)
	tally.AddProcessed()

	player, _, err := j.Data.EnsurePlayerByPUUID(ctx, p.Platform, p.PUUID)
	if err != nil {
		return recordFailure(tally, lg, "account refresh", p.PUUID, err)
	}
	if _, _, err := j.Data.EnsureRanks(ctx, player); err != nil {
		return recordFailure(tally, lg, "rank refresh", p.PUUID, err)
	}

	ids, _, err := j.Data.EnsureMatchIDs(ctx, player, riotapi.MatchIDsOptions{
		Count: settings.NewMatchesPerPlayer(),
		Queue: domain.QueueRankedSolo,
	})
	if err != nil {
		return recordFailure(tally, lg, "match id refresh", p.PUUID, err)
	}

	ingested := 0
	for _, id := range ids {
		stored, err := j.Matches.Exists(ctx, id)
		if err != nil {
			tally.AddMatches(ingested)
			return recordFailure(tally, lg, "match lookup", p.PUUID, err)
		}
		if stored {
			continue
		}
		if _, _, _, err := j.Data.EnsureMatch(ctx, p.Platform, id); err != nil {
			tally.AddMatches(ingested)
			return recordFailure(tally, lg, "match ingest", p.PUUID, err)
		}
		ingested++
	}

	tally.AddMatches(ingested)
	tally.AddUpdated()
	lg.Info("tracked player updated",
		slog.String("puuid", p.PUUID),
		slog.Int("new_matches", ingested))
	return nil
}
