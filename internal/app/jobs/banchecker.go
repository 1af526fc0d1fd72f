package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fairyhunter13/smurfguard/internal/domain"
	obsctx "github.com/fairyhunter13/smurfguard/internal/observability"
)

// BanChecker revisits players flagged by recent detections and asks the
// platform whether their accounts still resolve. A vanished account is the
// ban signal. An inconclusive probe leaves last_ban_check untouched, so the
// next run picks the player up again.
type BanChecker struct {
	Data    DataProvider
	Players domain.PlayerRepository
}

func NewBanChecker(data DataProvider, players domain.PlayerRepository) *BanChecker {
	return &BanChecker{Data: data, Players: players}
}

func (j *BanChecker) Type() domain.JobType { return domain.JobTypeBanChecker }

func (j *BanChecker) Run(ctx context.Context, cfg domain.JobConfiguration) (domain.RunSummary, error) {
	lg := obsctx.LoggerFromContext(ctx)
	settings := cfg.Settings

	checkedBefore := time.Now().UTC().Add(-settings.BanCheckInterval())
	players, err := j.Players.ListForBanCheck(ctx, checkedBefore, settings.TrackedPlayersPerRun())
	if err != nil {
		return domain.RunSummary{}, fmt.Errorf("op=ban_checker.working_set: %w", err)
	}
	lg.Info("ban check working set loaded", slog.Int("players", len(players)))

	var tally Tally
	for _, p := range players {
		if err := ctx.Err(); err != nil {
			return tally.Summary(), err
		}
		if err := j.checkOne(ctx, p, &tally); err != nil {
			return tally.Summary(), err
		}
	}
	return tally.Summary(), nil
}

func (j *BanChecker) checkOne(ctx context.Context, p domain.Player, tally *Tally) error {
	lg := obsctx.LoggerFromContext(ctx)
	tally.AddProcessed()

	exists, inconclusive, err := j.Data.CheckAccountExists(ctx, p.Platform, p.PUUID)
	if err != nil || inconclusive {
		// no conclusive answer; the check timestamp stays put so the next
		// run retries this player
		return recordFailure(tally, lg, "account probe", p.PUUID, err)
	}

	banned := !exists
	if err := j.Players.MarkBanCheck(ctx, p.PUUID, banned, time.Now().UTC()); err != nil {
		return recordFailure(tally, lg, "ban mark", p.PUUID, err)
	}
	tally.AddUpdated()
	if banned {
		tally.AddBan()
		lg.Info("account no longer resolves, marked banned", slog.String("puuid", p.PUUID))
	}
	return nil
}
