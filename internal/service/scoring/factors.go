package scoring

import "fmt"

// tierIndex orders the ladder for the discrepancy factor. Unknown tiers map
// to -1 and are treated as unrated.
var tierIndex = map[string]int{
	"IRON":        0,
	"BRONZE":      1,
	"SILVER":      2,
	"GOLD":        3,
	"PLATINUM":    4,
	"EMERALD":     5,
	"DIAMOND":     6,
	"MASTER":      7,
	"GRANDMASTER": 8,
	"CHALLENGER":  9,
}

const (
	minGamesForConsistency = 5
	minGamesForTrends      = 4
	minGamesPerRole        = 3
	recentWindow           = 10
)

// winRate maps the window win rate through a fixed piecewise scale. Ratios
// normal players sustain score zero.
func winRate(s sample) (float64, []string) {
	if len(s.games) == 0 {
		return 0, []string{"win_rate: no matches in window"}
	}
	switch wr := s.winRate(); {
	case wr >= 0.70:
		return 1.0, nil
	case wr >= 0.60:
		return 0.7, nil
	case wr >= 0.55:
		return 0.4, nil
	default:
		return 0, nil
	}
}

// kdaAnalysis maps the average KDA through fixed bands.
func kdaAnalysis(s sample) (float64, []string) {
	if len(s.games) == 0 {
		return 0, []string{"kda: no matches in window"}
	}
	switch kda := s.avgKDA(); {
	case kda >= 5:
		return 1.0, nil
	case kda >= 4:
		return 0.75, nil
	case kda >= 3:
		return 0.5, nil
	case kda >= 2.5:
		return 0.25, nil
	default:
		return 0, nil
	}
}

// accountLevel scores a fresh account that already performs well. The level
// base is monotone non-increasing and gated by performance so an idle old
// alt with a low level but average play does not light up.
func accountLevel(s sample) (float64, []string) {
	if s.player.AccountLevel <= 0 {
		return 0, []string{"account_level: level unknown"}
	}
	if len(s.games) == 0 {
		return 0, []string{"account_level: no matches in window"}
	}
	var base float64
	switch lvl := s.player.AccountLevel; {
	case lvl <= 40:
		base = 1.0
	case lvl <= 80:
		base = 0.6
	case lvl <= 150:
		base = 0.3
	default:
		return 0, nil
	}
	gate := clamp01(s.avgKDA() / 3)
	return base * gate, nil
}

// rankDiscrepancy compares the tier the window performance implies against
// the player's actual solo tier. Only under-ranking counts: a smurf performs
// tiers above where the ladder currently places them.
func rankDiscrepancy(s sample) (float64, []string) {
	if len(s.games) == 0 {
		return 0, []string{"rank_discrepancy: no matches in window"}
	}
	if s.solo == nil {
		return 0, []string{"rank_discrepancy: no current solo rank"}
	}
	actual, ok := tierIndex[s.solo.Tier]
	if !ok {
		return 0, []string{fmt.Sprintf("rank_discrepancy: unknown tier %q", s.solo.Tier)}
	}
	gap := impliedTier(s) - actual
	if gap <= 0 {
		return 0, nil
	}
	return clamp01(float64(gap) / 4), nil
}

// impliedTier estimates a ladder position from performance bands: silver as
// the baseline, pushed up by KDA, win rate, and farming speed.
func impliedTier(s sample) int {
	idx := tierIndex["SILVER"]
	switch kda := s.avgKDA(); {
	case kda >= 5:
		idx += 4
	case kda >= 4:
		idx += 3
	case kda >= 3:
		idx += 2
	case kda >= 2.5:
		idx++
	}
	switch wr := s.winRate(); {
	case wr >= 0.70:
		idx += 2
	case wr >= 0.60:
		idx++
	}
	switch cs := s.avgCSPerMinute(); {
	case cs >= 8:
		idx += 2
	case cs >= 7:
		idx++
	}
	if idx > tierIndex["CHALLENGER"] {
		idx = tierIndex["CHALLENGER"]
	}
	return idx
}

// performanceConsistency rewards a low coefficient of variation: smurfs are
// steady while players at their true rank swing game to game.
func performanceConsistency(s sample) (float64, []string) {
	if len(s.games) < minGamesForConsistency {
		return 0, []string{fmt.Sprintf("performance_consistency: %d games, need %d", len(s.games), minGamesForConsistency)}
	}
	m := mean(s.kdas)
	if m == 0 {
		return 0, []string{"performance_consistency: zero mean kda"}
	}
	cv := stddev(s.kdas) / m
	if cv > 1 {
		cv = 1
	}
	return 1 - cv, nil
}

// performanceTrends scores players who were already strong in the oldest
// games of the window. A genuine climber improves across the window; a smurf
// starts near their ceiling.
func performanceTrends(s sample) (float64, []string) {
	if len(s.games) < minGamesForTrends {
		return 0, []string{fmt.Sprintf("performance_trends: %d games, need %d", len(s.games), minGamesForTrends)}
	}
	whole := mean(s.kdas)
	if whole == 0 {
		return 0, []string{"performance_trends: zero mean kda"}
	}
	firstHalf := mean(s.kdas[:len(s.kdas)/2])
	if firstHalf/whole < 0.9 {
		return 0, nil
	}
	switch {
	case whole >= 4:
		return 1.0, nil
	case whole >= 3:
		return 0.6, nil
	case whole >= 2.5:
		return 0.3, nil
	default:
		return 0, nil
	}
}

// winRateTrends checks the most recent games hold the window's rate. A
// sustained rate on top of an already-high window rate scores high; a fading
// one halves the score.
func winRateTrends(s sample) (float64, []string) {
	if len(s.games) < minGamesForConsistency {
		return 0, []string{fmt.Sprintf("win_rate_trends: %d games, need %d", len(s.games), minGamesForConsistency)}
	}
	whole := s.winRate()
	n := len(s.games)
	recent := n
	if recent > recentWindow {
		recent = recentWindow
	}
	recentWins := 0
	for _, g := range s.games[n-recent:] {
		if g.Participant.Win {
			recentWins++
		}
	}
	recentRate := float64(recentWins) / float64(recent)
	score := clamp01(whole / 0.7)
	if recentRate < whole {
		score *= 0.5
	}
	return score, nil
}

// rolePerformance measures how many positions the player dominates. Carrying
// from several roles at once is a strong off-role-comfort signal.
func rolePerformance(s sample) (float64, []string) {
	perRole := map[string][]float64{}
	for i, g := range s.games {
		pos := g.Participant.TeamPosition
		if pos == "" {
			continue
		}
		perRole[pos] = append(perRole[pos], s.kdas[i])
	}
	eligible, strong := 0, 0
	for _, kdas := range perRole {
		if len(kdas) < minGamesPerRole {
			continue
		}
		eligible++
		if mean(kdas) >= 2.5 {
			strong++
		}
	}
	if eligible == 0 {
		return 0, []string{"role_performance: no position with enough games"}
	}
	ratio := float64(strong) / float64(eligible)
	breadth := clamp01(float64(eligible) / 3)
	return ratio * (0.5 + 0.5*breadth), nil
}

// rankProgression scores a fast climb: few ranked games on the current solo
// ladder with a rate that keeps pushing the player up.
func rankProgression(s sample) (float64, []string) {
	if s.solo == nil {
		return 0, []string{"rank_progression: no current solo rank"}
	}
	total := s.solo.Wins + s.solo.Losses
	if total == 0 {
		return 0, []string{"rank_progression: no ranked games recorded"}
	}
	var pace float64
	switch {
	case total <= 50:
		pace = 1.0
	case total <= 100:
		pace = 0.6
	case total <= 200:
		pace = 0.3
	default:
		return 0, nil
	}
	var rate float64
	switch wr := s.solo.WinRate(); {
	case wr >= 0.65:
		rate = 1.0
	case wr >= 0.58:
		rate = 0.6
	case wr >= 0.52:
		rate = 0.3
	default:
		return 0, nil
	}
	return pace * rate, nil
}
