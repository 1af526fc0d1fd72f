// Package scoring implements the multi-factor smurf analysis engine.
//
// The engine is pure: it receives a player with their pre-fetched match
// window and rank rows and produces a detection result. It performs no IO,
// so two invocations over the same inputs yield identical scores.
package scoring

import (
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/fairyhunter13/smurfguard/internal/domain"
)

// Factor names, also the keys of the weight map and the persisted
// factor-score JSON.
const (
	FactorRankDiscrepancy        = "rank_discrepancy"
	FactorWinRate                = "win_rate"
	FactorPerformanceTrends      = "performance_trends"
	FactorWinRateTrends          = "win_rate_trends"
	FactorRolePerformance        = "role_performance"
	FactorRankProgression        = "rank_progression"
	FactorAccountLevel           = "account_level"
	FactorPerformanceConsistency = "performance_consistency"
	FactorKDA                    = "kda"
)

// factorOrder fixes the aggregation order. Summation over a map would make
// the low float bits depend on iteration order.
var factorOrder = [...]string{
	FactorRankDiscrepancy,
	FactorWinRate,
	FactorPerformanceTrends,
	FactorWinRateTrends,
	FactorRolePerformance,
	FactorRankProgression,
	FactorAccountLevel,
	FactorPerformanceConsistency,
	FactorKDA,
}

const weightSumTolerance = 0.01

// Engine scores players against the nine weighted factors.
type Engine struct {
	weights map[string]float64
	version string
	window  int
}

// NewEngine validates the weight map and returns a ready engine. Every factor
// must be present with a weight in [0,1] and the weights must sum to 1.0
// within a 0.01 tolerance; anything else is a deployment mistake and refuses
// to initialize.
func NewEngine(weights map[string]float64, version string, window int) (*Engine, error) {
	if version == "" {
		return nil, fmt.Errorf("%w: analysis version required", domain.ErrConfigInvalid)
	}
	if window < 5 {
		return nil, fmt.Errorf("%w: analysis window %d too small", domain.ErrConfigInvalid, window)
	}
	sum := 0.0
	for _, name := range factorOrder {
		w, ok := weights[name]
		if !ok {
			return nil, fmt.Errorf("%w: missing weight for factor %q", domain.ErrConfigInvalid, name)
		}
		if w < 0 || w > 1 {
			return nil, fmt.Errorf("%w: weight for factor %q is %v, must be in [0,1]", domain.ErrConfigInvalid, name, w)
		}
		sum += w
	}
	if math.Abs(sum-1.0) > weightSumTolerance {
		return nil, fmt.Errorf("%w: factor weights sum to %.4f, expected 1.0±%.2f", domain.ErrConfigInvalid, sum, weightSumTolerance)
	}
	own := make(map[string]float64, len(factorOrder))
	for _, name := range factorOrder {
		own[name] = weights[name]
	}
	return &Engine{weights: own, version: version, window: window}, nil
}

// Version returns the analysis version stamped on every result.
func (e *Engine) Version() string { return e.version }

// Window returns the match-window size the engine expects callers to fetch.
func (e *Engine) Window() int { return e.window }

// Score analyzes a player over their match window and rank rows. Matches
// beyond the configured window are ignored; ordering of the input does not
// matter. The returned detection carries all nine factor scores, the
// weighted overall score, its confidence bucket, and any edge-case notes.
func (e *Engine) Score(player domain.Player, matches []domain.PlayerMatch, ranks []domain.PlayerRank) domain.SmurfDetection {
	s := newSample(player, matches, ranks, e.window)

	factors := make(map[string]float64, len(factorOrder))
	var notes []string
	for _, name := range factorOrder {
		score, fnotes := evalFactor(name, s)
		factors[name] = round4(clamp01(score))
		notes = append(notes, fnotes...)
	}

	overall := 0.0
	for _, name := range factorOrder {
		overall += factors[name] * e.weights[name]
	}
	overall = round4(clamp01(overall))

	det := domain.SmurfDetection{
		PUUID:           player.PUUID,
		OverallScore:    overall,
		FactorScores:    factors,
		Confidence:      domain.ConfidenceFor(overall),
		GamesAnalyzed:   len(s.games),
		QueueType:       domain.QueueTypeRankedSolo,
		AnalysisVersion: e.version,
		Notes:           notes,
	}

	slog.Info("player scored",
		slog.String("puuid", player.PUUID),
		slog.Float64("overall", overall),
		slog.String("confidence", string(det.Confidence)),
		slog.Int("games", det.GamesAnalyzed),
		slog.Float64(FactorRankDiscrepancy, factors[FactorRankDiscrepancy]),
		slog.Float64(FactorWinRate, factors[FactorWinRate]),
		slog.Float64(FactorPerformanceTrends, factors[FactorPerformanceTrends]),
		slog.Float64(FactorWinRateTrends, factors[FactorWinRateTrends]),
		slog.Float64(FactorRolePerformance, factors[FactorRolePerformance]),
		slog.Float64(FactorRankProgression, factors[FactorRankProgression]),
		slog.Float64(FactorAccountLevel, factors[FactorAccountLevel]),
		slog.Float64(FactorPerformanceConsistency, factors[FactorPerformanceConsistency]),
		slog.Float64(FactorKDA, factors[FactorKDA]))
	return det
}

func evalFactor(name string, s sample) (float64, []string) {
	switch name {
	case FactorRankDiscrepancy:
		return rankDiscrepancy(s)
	case FactorWinRate:
		return winRate(s)
	case FactorPerformanceTrends:
		return performanceTrends(s)
	case FactorWinRateTrends:
		return winRateTrends(s)
	case FactorRolePerformance:
		return rolePerformance(s)
	case FactorRankProgression:
		return rankProgression(s)
	case FactorAccountLevel:
		return accountLevel(s)
	case FactorPerformanceConsistency:
		return performanceConsistency(s)
	case FactorKDA:
		return kdaAnalysis(s)
	}
	return 0, nil
}

// sample is the precomputed view of one player's window that every factor
// reads. Games are sorted oldest first with the match id as tie-break so the
// trend factors see a stable chronology.
type sample struct {
	player domain.Player
	games  []domain.PlayerMatch
	kdas   []float64
	wins   int
	solo   *domain.PlayerRank
}

func newSample(player domain.Player, matches []domain.PlayerMatch, ranks []domain.PlayerRank, window int) sample {
	games := make([]domain.PlayerMatch, len(matches))
	copy(games, matches)
	sort.SliceStable(games, func(i, j int) bool {
		if !games[i].Match.GameCreation.Equal(games[j].Match.GameCreation) {
			return games[i].Match.GameCreation.Before(games[j].Match.GameCreation)
		}
		return games[i].Match.MatchID < games[j].Match.MatchID
	})
	if len(games) > window {
		games = games[len(games)-window:]
	}

	s := sample{player: player, games: games}
	s.kdas = make([]float64, len(games))
	for i, g := range games {
		s.kdas[i] = domain.KDARatio(g.Participant)
		if g.Participant.Win {
			s.wins++
		}
	}
	for i := range ranks {
		if ranks[i].IsCurrent && ranks[i].QueueType == domain.QueueTypeRankedSolo {
			s.solo = &ranks[i]
			break
		}
	}
	return s
}

func (s sample) winRate() float64 {
	if len(s.games) == 0 {
		return 0
	}
	return float64(s.wins) / float64(len(s.games))
}

func (s sample) avgKDA() float64 { return mean(s.kdas) }

func (s sample) avgCSPerMinute() float64 {
	if len(s.games) == 0 {
		return 0
	}
	total := 0.0
	for _, g := range s.games {
		total += domain.CSPerMinute(g.Participant, g.Match)
	}
	return total / float64(len(s.games))
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	total := 0.0
	for _, x := range xs {
		total += x
	}
	return total / float64(len(xs))
}

func stddev(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := mean(xs)
	varSum := 0.0
	for _, x := range xs {
		varSum += (x - m) * (x - m)
	}
	return math.Sqrt(varSum / float64(len(xs)))
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

func round4(x float64) float64 { return math.Round(x*10000) / 10000 }
