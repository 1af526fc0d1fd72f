package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fairyhunter13/smurfguard/internal/adapter/observability"
	"github.com/fairyhunter13/smurfguard/internal/domain"
	obsctx "github.com/fairyhunter13/smurfguard/internal/observability"
	"github.com/fairyhunter13/smurfguard/internal/service/scoring"
)

// PlayerAnalyzer scores analysis-ready players over their stored ranked
// windows. It makes no platform calls: a run is a pure read over the store
// plus one detection insert per player, so it keeps working while the
// external budget is exhausted.
type PlayerAnalyzer struct {
	Engine     *scoring.Engine
	EngineErr  error
	Players    domain.PlayerRepository
	Matches    domain.MatchRepository
	Ranks      domain.RankRepository
	Detections domain.DetectionRepository
	Publisher  domain.DetectionPublisher
}

// NewPlayerAnalyzer wires the analyzer. engineErr carries a weight-map
// rejection from bootstrap: the analyzer then fails each run with the config
// marker while the other jobs keep running.
func NewPlayerAnalyzer(engine *scoring.Engine, engineErr error, players domain.PlayerRepository, matches domain.MatchRepository, ranks domain.RankRepository, detections domain.DetectionRepository, publisher domain.DetectionPublisher) *PlayerAnalyzer {
	return &PlayerAnalyzer{
		Engine:     engine,
		EngineErr:  engineErr,
		Players:    players,
		Matches:    matches,
		Ranks:      ranks,
		Detections: detections,
		Publisher:  publisher,
	}
}

func (j *PlayerAnalyzer) Type() domain.JobType { return domain.JobTypePlayerAnalyzer }

func (j *PlayerAnalyzer) Run(ctx context.Context, cfg domain.JobConfiguration) (domain.RunSummary, error) {
	lg := obsctx.LoggerFromContext(ctx)
	if j.Engine == nil {
		if j.EngineErr != nil {
			return domain.RunSummary{}, j.EngineErr
		}
		return domain.RunSummary{}, fmt.Errorf("%w: scoring engine not configured", domain.ErrConfigInvalid)
	}
	settings := cfg.Settings

	reanalyzeBefore := time.Now().UTC().Add(-settings.ReanalysisAge())
	players, err := j.Players.ListForAnalysis(ctx, settings.MinGamesForAnalysis(), reanalyzeBefore, settings.TrackedPlayersPerRun())
	if err != nil {
		return domain.RunSummary{}, fmt.Errorf("op=analyzer.working_set: %w", err)
	}
	lg.Info("analysis working set loaded", slog.Int("players", len(players)))

	var tally Tally
	for _, p := range players {
		if err := ctx.Err(); err != nil {
			return tally.Summary(), err
		}
		if err := j.analyzeOne(ctx, settings, p, &tally); err != nil {
			return tally.Summary(), err
		}
	}
	return tally.Summary(), nil
}

func (j *PlayerAnalyzer) analyzeOne(ctx context.Context, settings domain.JobSettings, p domain.Player, tally *Tally) error {
	lg := obsctx.LoggerFromContext(ctx)
	tally.AddProcessed()

	window, err := j.Matches.ListPlayerMatches(ctx, p.PUUID, domain.QueueRankedSolo, j.Engine.Window())
	if err != nil {
		return recordFailure(tally, lg, "window load", p.PUUID, err)
	}
	if len(window) < settings.MinGamesForAnalysis() {
		// the working-set query raced an ingest; not an error, just not ready
		lg.Info("window below analysis minimum, skipped",
			slog.String("puuid", p.PUUID),
			slog.Int("games", len(window)))
		return nil
	}

	var ranks []domain.PlayerRank
	switch cur, err := j.Ranks.Current(ctx, p.PUUID, domain.QueueTypeRankedSolo); {
	case err == nil:
		ranks = append(ranks, cur)
	case domain.IsNotFound(err):
		// unranked; the engine notes the absence
	default:
		return recordFailure(tally, lg, "rank load", p.PUUID, err)
	}

	det := j.Engine.Score(p, window, ranks)
	if _, err := j.Detections.Insert(ctx, det); err != nil {
		return recordFailure(tally, lg, "detection insert", p.PUUID, err)
	}
	observability.ObserveDetection(det.OverallScore, string(det.Confidence))
	if err := j.Players.MarkAnalyzed(ctx, p.PUUID, time.Now().UTC()); err != nil {
		lg.Warn("analyzed mark failed",
			slog.String("puuid", p.PUUID),
			slog.Any("error", err))
	}
	tally.AddDetection()
	tally.AddUpdated()

	if j.Publisher != nil && (det.Confidence == domain.ConfidenceHigh || det.Confidence == domain.ConfidenceMedium) {
		ev := domain.DetectionEvent{
			PUUID:           det.PUUID,
			OverallScore:    det.OverallScore,
			Confidence:      det.Confidence,
			AnalysisVersion: det.AnalysisVersion,
			DetectedAt:      time.Now().UTC(),
		}
		if err := j.Publisher.PublishDetection(ctx, ev); err != nil {
			// the event stream is advisory; the detection row is the record
			lg.Warn("detection event publish failed",
				slog.String("puuid", p.PUUID),
				slog.Any("error", err))
		}
	}
	return nil
}
