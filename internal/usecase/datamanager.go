// Package usecase contains application business logic services.
package usecase

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/fairyhunter13/smurfguard/internal/adapter/observability"
	"github.com/fairyhunter13/smurfguard/internal/domain"
	"github.com/fairyhunter13/smurfguard/internal/service/riotapi"
)

// RiotGateway is the outbound platform surface the data manager consumes.
// *riotapi.Client satisfies it.
type RiotGateway interface {
	AccountByRiotID(ctx domain.Context, platform, gameName, tagLine string) (*riotapi.AccountDTO, error)
	AccountByPUUID(ctx domain.Context, platform, puuid string) (*riotapi.AccountDTO, error)
	SummonerByPUUID(ctx domain.Context, platform, puuid string) (*riotapi.SummonerDTO, error)
	MatchIDsByPUUID(ctx domain.Context, platform, puuid string, opts riotapi.MatchIDsOptions) ([]string, error)
	MatchByID(ctx domain.Context, platform, matchID string) (*riotapi.MatchDTO, error)
	LeagueEntriesBySummoner(ctx domain.Context, platform, summonerID string) ([]riotapi.LeagueEntryDTO, error)
	ActiveGameBySummoner(ctx domain.Context, platform, summonerID string) (*riotapi.ActiveGameDTO, error)
}

// FreshnessPolicy holds the per-kind TTLs the read path enforces. A zero TTL
// means the kind is never fresh by age alone: stored matches are immutable so
// their presence decides, and a match tombstone holds forever.
type FreshnessPolicy struct {
	Account  time.Duration
	Summoner time.Duration
	MatchIDs time.Duration
	Rank     time.Duration
}

// DefaultFreshnessPolicy returns the documented per-kind TTLs.
func DefaultFreshnessPolicy() FreshnessPolicy {
	return FreshnessPolicy{
		Account:  24 * time.Hour,
		Summoner: 24 * time.Hour,
		MatchIDs: 5 * time.Minute,
		Rank:     time.Hour,
	}
}

// TTL returns the freshness window for one tracked data kind.
func (p FreshnessPolicy) TTL(kind domain.DataKind) time.Duration {
	switch kind {
	case domain.DataKindAccount:
		return p.Account
	case domain.DataKindSummoner:
		return p.Summoner
	case domain.DataKindMatchIDs:
		return p.MatchIDs
	case domain.DataKindRank:
		return p.Rank
	}
	return 0
}

// DataManager is the database-first entry point for every read the jobs make.
// It checks the freshness ledger, fetches through the platform client when
// stale, persists what it fetched, and serves the stored copy when the
// platform is throttling or failing.
type DataManager struct {
	Riot     RiotGateway
	Players  domain.PlayerRepository
	Matches  domain.MatchRepository
	Ranks    domain.RankRepository
	Tracking domain.TrackingRepository
	Policy   FreshnessPolicy

	sf singleflight.Group
}

// NewDataManager constructs a DataManager with its dependencies.
func NewDataManager(riot RiotGateway, players domain.PlayerRepository, matches domain.MatchRepository, ranks domain.RankRepository, tracking domain.TrackingRepository, policy FreshnessPolicy) *DataManager {
	return &DataManager{Riot: riot, Players: players, Matches: matches, Ranks: ranks, Tracking: tracking, Policy: policy}
}

// readOutcome classifies one pass of the read policy.
type readOutcome int

const (
	readFresh    readOutcome = iota // stored copy within TTL, or refetched now
	readAbsent                      // platform reports the identifier gone
	readDegraded                    // throttled or transient-exhausted, nothing refreshed
	readFailed                      // hard failure, no stale serving
)

// readThrough drives the read policy for one tracked identifier. fetch pulls
// from the platform and persists; its value is shared between concurrent
// callers of the same (kind, identifier). A nil value under readFresh means
// the stored copy was within TTL and no call was made.
func (m *DataManager) readThrough(ctx domain.Context, kind domain.DataKind, identifier string, fetch func(domain.Context) (any, error)) (any, readOutcome, error) {
	if err := m.Tracking.TouchHit(ctx, kind, identifier); err != nil {
		slog.Warn("hit counter update failed",
			slog.String("kind", string(kind)), slog.String("identifier", identifier), slog.Any("error", err))
	}

	tr, err := m.Tracking.Get(ctx, kind, identifier)
	switch {
	case err == nil && tr.LastFetched != nil:
		ttl := m.Policy.TTL(kind)
		inTTL := ttl > 0 && time.Since(*tr.LastFetched) <= ttl
		if tr.NotFound && (inTTL || ttl == 0) {
			return nil, readAbsent, fmt.Errorf("op=data.%s: %w", kind, domain.ErrNotFound)
		}
		if !tr.NotFound && inTTL {
			return nil, readFresh, nil
		}
	case err != nil && !domain.IsNotFound(err):
		return nil, readFailed, err
	}

	v, fetchErr, _ := m.sf.Do(string(kind)+":"+identifier, func() (any, error) {
		v, ferr := fetch(ctx)
		switch {
		case ferr == nil:
			m.markFetched(ctx, kind, identifier, false)
		case domain.IsNotFound(ferr):
			m.markFetched(ctx, kind, identifier, true)
		}
		return v, ferr
	})
	switch {
	case fetchErr == nil:
		return v, readFresh, nil
	case domain.IsNotFound(fetchErr):
		return nil, readAbsent, fetchErr
	case domain.IsRateLimited(fetchErr), domain.IsTransient(fetchErr):
		return nil, readDegraded, fetchErr
	default:
		return nil, readFailed, fetchErr
	}
}

func (m *DataManager) markFetched(ctx domain.Context, kind domain.DataKind, identifier string, notFound bool) {
	if err := m.Tracking.MarkFetched(ctx, kind, identifier, time.Now().UTC(), notFound); err != nil {
		slog.Warn("fetch ledger update failed",
			slog.String("kind", string(kind)), slog.String("identifier", identifier), slog.Any("error", err))
	}
}

func observeRead(kind domain.DataKind, fr domain.Freshness) {
	observability.ObserveDataRead(string(kind), string(fr))
}

// EnsurePlayerByPUUID returns the player behind puuid, refreshing the account
// and summoner profile from the platform when the stored copy is stale.
func (m *DataManager) EnsurePlayerByPUUID(ctx domain.Context, platform, puuid string) (domain.Player, domain.Freshness, error) {
	if platform == "" || puuid == "" {
		return domain.Player{}, "", fmt.Errorf("%w: platform and puuid required", domain.ErrInvalidArgument)
	}
	v, outcome, ferr := m.readThrough(ctx, domain.DataKindAccount, puuid, func(fctx domain.Context) (any, error) {
		acct, err := m.Riot.AccountByPUUID(fctx, platform, puuid)
		if err != nil {
			return nil, err
		}
		return m.storePlayer(fctx, platform, acct)
	})
	switch outcome {
	case readFresh:
		if p, ok := v.(domain.Player); ok {
			observeRead(domain.DataKindAccount, domain.Fresh)
			return p, domain.Fresh, nil
		}
		p, err := m.Players.Get(ctx, puuid)
		if err != nil {
			return domain.Player{}, "", err
		}
		observeRead(domain.DataKindAccount, domain.Fresh)
		return p, domain.Fresh, nil
	case readDegraded:
		if p, err := m.Players.Get(ctx, puuid); err == nil {
			slog.Warn("serving stale player",
				slog.String("puuid", puuid), slog.Any("cause", ferr))
			observeRead(domain.DataKindAccount, domain.StaleServed)
			return p, domain.StaleServed, nil
		}
		observeRead(domain.DataKindAccount, domain.MissingRateLimited)
		return domain.Player{}, domain.MissingRateLimited, ferr
	default:
		return domain.Player{}, "", ferr
	}
}

// EnsurePlayerByRiotID resolves the name#tag pair to a player, preferring the
// stored copy and spending platform quota only when the pair is unknown
// locally or the stored profile is stale.
func (m *DataManager) EnsurePlayerByRiotID(ctx domain.Context, platform, gameName, tagLine string) (domain.Player, domain.Freshness, error) {
	if platform == "" || gameName == "" || tagLine == "" {
		return domain.Player{}, "", fmt.Errorf("%w: platform, game name and tag line required", domain.ErrInvalidArgument)
	}
	if p, err := m.Players.GetByRiotID(ctx, gameName, tagLine); err == nil {
		return m.EnsurePlayerByPUUID(ctx, platform, p.PUUID)
	} else if !domain.IsNotFound(err) {
		return domain.Player{}, "", err
	}

	key := riotIDKey(gameName, tagLine)
	v, outcome, ferr := m.readThrough(ctx, domain.DataKindAccount, key, func(fctx domain.Context) (any, error) {
		acct, err := m.Riot.AccountByRiotID(fctx, platform, gameName, tagLine)
		if err != nil {
			return nil, err
		}
		return m.storePlayer(fctx, platform, acct)
	})
	switch outcome {
	case readFresh:
		if p, ok := v.(domain.Player); ok {
			slog.Info("resolved new player",
				slog.String("riot_id", p.RiotID()), slog.String("puuid", p.PUUID))
			observeRead(domain.DataKindAccount, domain.Fresh)
			return p, domain.Fresh, nil
		}
		p, err := m.Players.GetByRiotID(ctx, gameName, tagLine)
		if err != nil {
			return domain.Player{}, "", err
		}
		observeRead(domain.DataKindAccount, domain.Fresh)
		return p, domain.Fresh, nil
	case readDegraded:
		observeRead(domain.DataKindAccount, domain.MissingRateLimited)
		return domain.Player{}, domain.MissingRateLimited, ferr
	default:
		return domain.Player{}, "", ferr
	}
}

// storePlayer merges the account profile with the platform summoner profile
// and upserts the result, returning the stored row.
func (m *DataManager) storePlayer(ctx domain.Context, platform string, acct *riotapi.AccountDTO) (domain.Player, error) {
	p := domain.Player{
		PUUID:    acct.PUUID,
		GameName: acct.GameName,
		TagLine:  acct.TagLine,
		Platform: platform,
		IsActive: true,
		LastSeen: time.Now().UTC(),
	}
	summ, err := m.Riot.SummonerByPUUID(ctx, platform, acct.PUUID)
	switch {
	case err == nil:
		p.SummonerID = summ.ID
		p.AccountLevel = int(summ.SummonerLevel)
		m.markFetched(ctx, domain.DataKindSummoner, acct.PUUID, false)
	case domain.IsNotFound(err):
		// account exists without a summoner on this platform; keep what we have
		m.markFetched(ctx, domain.DataKindSummoner, acct.PUUID, true)
	default:
		return domain.Player{}, err
	}
	if err := m.Players.Upsert(ctx, p); err != nil {
		return domain.Player{}, err
	}
	return m.Players.Get(ctx, acct.PUUID)
}

// EnsureRanks returns the player's current ranked standings, refreshing from
// the platform when stale. New standings demote the previous current row into
// history; an unchanged standing writes nothing.
func (m *DataManager) EnsureRanks(ctx domain.Context, player domain.Player) ([]domain.PlayerRank, domain.Freshness, error) {
	if player.PUUID == "" {
		return nil, "", fmt.Errorf("%w: puuid required", domain.ErrInvalidArgument)
	}
	if player.SummonerID == "" {
		return nil, "", fmt.Errorf("%w: summoner id required for rank lookup", domain.ErrInvalidArgument)
	}
	_, outcome, ferr := m.readThrough(ctx, domain.DataKindRank, player.PUUID, func(fctx domain.Context) (any, error) {
		entries, err := m.Riot.LeagueEntriesBySummoner(fctx, player.Platform, player.SummonerID)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.QueueType != domain.QueueTypeRankedSolo && e.QueueType != domain.QueueTypeRankedFlex {
				continue
			}
			r := rankFromDTO(player.PUUID, e)
			cur, err := m.Ranks.Current(fctx, player.PUUID, e.QueueType)
			if err == nil && sameStanding(cur, r) {
				continue
			}
			if err := m.Ranks.UpsertCurrent(fctx, r); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	switch outcome {
	case readFresh:
		ranks, err := m.loadRanks(ctx, player.PUUID)
		if err != nil {
			return nil, "", err
		}
		observeRead(domain.DataKindRank, domain.Fresh)
		return ranks, domain.Fresh, nil
	case readDegraded:
		if ranks, err := m.loadRanks(ctx, player.PUUID); err == nil && len(ranks) > 0 {
			slog.Warn("serving stale ranks",
				slog.String("puuid", player.PUUID), slog.Any("cause", ferr))
			observeRead(domain.DataKindRank, domain.StaleServed)
			return ranks, domain.StaleServed, nil
		}
		observeRead(domain.DataKindRank, domain.MissingRateLimited)
		return nil, domain.MissingRateLimited, ferr
	default:
		return nil, "", ferr
	}
}

func (m *DataManager) loadRanks(ctx domain.Context, puuid string) ([]domain.PlayerRank, error) {
	var out []domain.PlayerRank
	for _, qt := range []string{domain.QueueTypeRankedSolo, domain.QueueTypeRankedFlex} {
		r, err := m.Ranks.Current(ctx, puuid, qt)
		if err != nil {
			if domain.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// EnsureMatchIDs returns the player's recent match ids. Within the TTL window
// the locally ingested matches serve the list without a platform call.
func (m *DataManager) EnsureMatchIDs(ctx domain.Context, player domain.Player, opts riotapi.MatchIDsOptions) ([]string, domain.Freshness, error) {
	if player.PUUID == "" {
		return nil, "", fmt.Errorf("%w: puuid required", domain.ErrInvalidArgument)
	}
	v, outcome, ferr := m.readThrough(ctx, domain.DataKindMatchIDs, player.PUUID, func(fctx domain.Context) (any, error) {
		return m.Riot.MatchIDsByPUUID(fctx, player.Platform, player.PUUID, opts)
	})
	switch outcome {
	case readFresh:
		if ids, ok := v.([]string); ok {
			observeRead(domain.DataKindMatchIDs, domain.Fresh)
			return ids, domain.Fresh, nil
		}
		ids, err := m.localMatchIDs(ctx, player.PUUID, opts)
		if err != nil {
			return nil, "", err
		}
		observeRead(domain.DataKindMatchIDs, domain.Fresh)
		return ids, domain.Fresh, nil
	case readDegraded:
		if ids, err := m.localMatchIDs(ctx, player.PUUID, opts); err == nil && len(ids) > 0 {
			slog.Warn("serving stale match ids",
				slog.String("puuid", player.PUUID), slog.Any("cause", ferr))
			observeRead(domain.DataKindMatchIDs, domain.StaleServed)
			return ids, domain.StaleServed, nil
		}
		observeRead(domain.DataKindMatchIDs, domain.MissingRateLimited)
		return nil, domain.MissingRateLimited, ferr
	default:
		return nil, "", ferr
	}
}

func (m *DataManager) localMatchIDs(ctx domain.Context, puuid string, opts riotapi.MatchIDsOptions) ([]string, error) {
	limit := opts.Count
	if limit <= 0 {
		limit = 20
	}
	pms, err := m.Matches.ListPlayerMatches(ctx, puuid, opts.Queue, limit)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(pms))
	for _, pm := range pms {
		ids = append(ids, pm.Match.MatchID)
	}
	return ids, nil
}

// fetchedMatch carries a freshly ingested match through the shared fetch.
type fetchedMatch struct {
	match domain.Match
	parts []domain.MatchParticipant
}

// EnsureMatch returns the match behind matchID, ingesting it with all
// participants in one transaction when it is not stored yet. Completed
// matches are immutable, so a stored match is always fresh; participants are
// non-nil only when this call ingested the match.
func (m *DataManager) EnsureMatch(ctx domain.Context, platform, matchID string) (domain.Match, []domain.MatchParticipant, domain.Freshness, error) {
	if platform == "" || matchID == "" {
		return domain.Match{}, nil, "", fmt.Errorf("%w: platform and match id required", domain.ErrInvalidArgument)
	}
	exists, err := m.Matches.Exists(ctx, matchID)
	if err != nil {
		return domain.Match{}, nil, "", err
	}
	if exists {
		if err := m.Tracking.TouchHit(ctx, domain.DataKindMatch, matchID); err != nil {
			slog.Warn("hit counter update failed",
				slog.String("kind", string(domain.DataKindMatch)), slog.String("identifier", matchID), slog.Any("error", err))
		}
		mt, err := m.Matches.Get(ctx, matchID)
		if err != nil {
			return domain.Match{}, nil, "", err
		}
		observeRead(domain.DataKindMatch, domain.Fresh)
		return mt, nil, domain.Fresh, nil
	}

	v, outcome, ferr := m.readThrough(ctx, domain.DataKindMatch, matchID, func(fctx domain.Context) (any, error) {
		dto, err := m.Riot.MatchByID(fctx, platform, matchID)
		if err != nil {
			return nil, err
		}
		mt, parts := matchFromDTO(platform, dto)
		if err := m.Matches.UpsertWithParticipants(fctx, mt, parts); err != nil {
			return nil, err
		}
		return fetchedMatch{match: mt, parts: parts}, nil
	})
	switch outcome {
	case readFresh:
		if fm, ok := v.(fetchedMatch); ok {
			observeRead(domain.DataKindMatch, domain.Fresh)
			return fm.match, fm.parts, domain.Fresh, nil
		}
		mt, err := m.Matches.Get(ctx, matchID)
		if err != nil {
			return domain.Match{}, nil, "", err
		}
		observeRead(domain.DataKindMatch, domain.Fresh)
		return mt, nil, domain.Fresh, nil
	case readDegraded:
		observeRead(domain.DataKindMatch, domain.MissingRateLimited)
		return domain.Match{}, nil, domain.MissingRateLimited, ferr
	default:
		return domain.Match{}, nil, "", ferr
	}
}

// ActiveGame is an uncached passthrough; live games are inherently volatile
// so no tracking row is kept. A not-found error means the player is not in a
// game right now.
func (m *DataManager) ActiveGame(ctx domain.Context, platform, summonerID string) (*riotapi.ActiveGameDTO, error) {
	if platform == "" || summonerID == "" {
		return nil, fmt.Errorf("%w: platform and summoner id required", domain.ErrInvalidArgument)
	}
	return m.Riot.ActiveGameBySummoner(ctx, platform, summonerID)
}

// CheckAccountExists asks the platform whether the account behind puuid still
// resolves; a vanished account is the ban signal, so the answer is never
// served from cache. inconclusive reports that the platform could not answer
// (throttled, failing, or rejecting the call) and the result must not be
// treated as a yes or a no.
func (m *DataManager) CheckAccountExists(ctx domain.Context, platform, puuid string) (exists, inconclusive bool, err error) {
	if platform == "" || puuid == "" {
		return false, false, fmt.Errorf("%w: platform and puuid required", domain.ErrInvalidArgument)
	}
	_, err = m.Riot.AccountByPUUID(ctx, platform, puuid)
	switch {
	case err == nil:
		return true, false, nil
	case domain.IsNotFound(err):
		return false, false, nil
	default:
		return false, true, err
	}
}

func riotIDKey(gameName, tagLine string) string {
	return strings.ToLower(gameName + "#" + tagLine)
}

func rankFromDTO(puuid string, e riotapi.LeagueEntryDTO) domain.PlayerRank {
	return domain.PlayerRank{
		PUUID:        puuid,
		QueueType:    e.QueueType,
		Tier:         e.Tier,
		Division:     e.Rank,
		LeaguePoints: e.LeaguePoints,
		Wins:         e.Wins,
		Losses:       e.Losses,
		HotStreak:    e.HotStreak,
		FreshBlood:   e.FreshBlood,
		IsCurrent:    true,
	}
}

func sameStanding(a, b domain.PlayerRank) bool {
	return a.Tier == b.Tier && a.Division == b.Division &&
		a.LeaguePoints == b.LeaguePoints && a.Wins == b.Wins && a.Losses == b.Losses
}

func matchFromDTO(platform string, dto *riotapi.MatchDTO) (domain.Match, []domain.MatchParticipant) {
	dur := dto.Info.GameDuration
	// gameDuration switched from milliseconds to seconds when
	// gameEndTimestamp was introduced; normalize the old form
	if dto.Info.GameEndTs == 0 && dur > 0 {
		dur /= 1000
	}
	mt := domain.Match{
		MatchID:      dto.Metadata.MatchID,
		Platform:     platform,
		QueueID:      dto.Info.QueueID,
		GameMode:     dto.Info.GameMode,
		GameCreation: time.UnixMilli(dto.Info.GameCreation).UTC(),
		GameDuration: int(dur),
		GameVersion:  dto.Info.GameVersion,
		IsProcessed:  true,
	}
	parts := make([]domain.MatchParticipant, 0, len(dto.Info.Participants))
	for _, p := range dto.Info.Participants {
		parts = append(parts, domain.MatchParticipant{
			MatchID:      mt.MatchID,
			PUUID:        p.PUUID,
			TeamID:       p.TeamID,
			ChampionID:   p.ChampionID,
			ChampionName: p.ChampionName,
			TeamPosition: p.TeamPosition,
			Kills:        p.Kills,
			Deaths:       p.Deaths,
			Assists:      p.Assists,
			CreepScore:   p.CreepScore(),
			GoldEarned:   p.GoldEarned,
			DamageDealt:  p.TotalDamageDealtToChampions,
			VisionScore:  p.VisionScore,
			Win:          p.Win,
		})
	}
	return mt, parts
}
