package usecase_test

import (
	"fmt"
	"time"

	"github.com/fairyhunter13/smurfguard/internal/domain"
	"github.com/fairyhunter13/smurfguard/internal/service/riotapi"
)

// riotStub implements usecase.RiotGateway with per-method hooks. A nil hook
// fails the call so tests catch platform calls they did not expect; calls
// records every method invocation in order.
type riotStub struct {
	accountByRiotID func(platform, gameName, tagLine string) (*riotapi.AccountDTO, error)
	accountByPUUID  func(platform, puuid string) (*riotapi.AccountDTO, error)
	summonerByPUUID func(platform, puuid string) (*riotapi.SummonerDTO, error)
	matchIDs        func(platform, puuid string, opts riotapi.MatchIDsOptions) ([]string, error)
	matchByID       func(platform, matchID string) (*riotapi.MatchDTO, error)
	leagueEntries   func(platform, summonerID string) ([]riotapi.LeagueEntryDTO, error)
	activeGame      func(platform, summonerID string) (*riotapi.ActiveGameDTO, error)

	calls []string
}

func (r *riotStub) AccountByRiotID(_ domain.Context, platform, gameName, tagLine string) (*riotapi.AccountDTO, error) {
	r.calls = append(r.calls, "AccountByRiotID")
	if r.accountByRiotID == nil {
		return nil, fmt.Errorf("unexpected call AccountByRiotID")
	}
	return r.accountByRiotID(platform, gameName, tagLine)
}

func (r *riotStub) AccountByPUUID(_ domain.Context, platform, puuid string) (*riotapi.AccountDTO, error) {
	r.calls = append(r.calls, "AccountByPUUID")
	if r.accountByPUUID == nil {
		return nil, fmt.Errorf("unexpected call AccountByPUUID")
	}
	return r.accountByPUUID(platform, puuid)
}

func (r *riotStub) SummonerByPUUID(_ domain.Context, platform, puuid string) (*riotapi.SummonerDTO, error) {
	r.calls = append(r.calls, "SummonerByPUUID")
	if r.summonerByPUUID == nil {
		return nil, fmt.Errorf("unexpected call SummonerByPUUID")
	}
	return r.summonerByPUUID(platform, puuid)
}

func (r *riotStub) MatchIDsByPUUID(_ domain.Context, platform, puuid string, opts riotapi.MatchIDsOptions) ([]string, error) {
	r.calls = append(r.calls, "MatchIDsByPUUID")
	if r.matchIDs == nil {
		return nil, fmt.Errorf("unexpected call MatchIDsByPUUID")
	}
	return r.matchIDs(platform, puuid, opts)
}

func (r *riotStub) MatchByID(_ domain.Context, platform, matchID string) (*riotapi.MatchDTO, error) {
	r.calls = append(r.calls, "MatchByID")
	if r.matchByID == nil {
		return nil, fmt.Errorf("unexpected call MatchByID")
	}
	return r.matchByID(platform, matchID)
}

func (r *riotStub) LeagueEntriesBySummoner(_ domain.Context, platform, summonerID string) ([]riotapi.LeagueEntryDTO, error) {
	r.calls = append(r.calls, "LeagueEntriesBySummoner")
	if r.leagueEntries == nil {
		return nil, fmt.Errorf("unexpected call LeagueEntriesBySummoner")
	}
	return r.leagueEntries(platform, summonerID)
}

func (r *riotStub) ActiveGameBySummoner(_ domain.Context, platform, summonerID string) (*riotapi.ActiveGameDTO, error) {
	r.calls = append(r.calls, "ActiveGameBySummoner")
	if r.activeGame == nil {
		return nil, fmt.Errorf("unexpected call ActiveGameBySummoner")
	}
	return r.activeGame(platform, summonerID)
}

// playersStub implements domain.PlayerRepository.
type playersStub struct {
	get         func(puuid string) (domain.Player, error)
	getByRiotID func(gameName, tagLine string) (domain.Player, error)
	upsertErr   error
	upserted    []domain.Player
}

func (p *playersStub) Upsert(_ domain.Context, pl domain.Player) error {
	p.upserted = append(p.upserted, pl)
	return p.upsertErr
}

func (p *playersStub) Get(_ domain.Context, puuid string) (domain.Player, error) {
	if p.get == nil {
		return domain.Player{}, fmt.Errorf("op=player.get: %w", domain.ErrNotFound)
	}
	return p.get(puuid)
}

func (p *playersStub) GetByRiotID(_ domain.Context, gameName, tagLine string) (domain.Player, error) {
	if p.getByRiotID == nil {
		return domain.Player{}, fmt.Errorf("op=player.get_by_riot_id: %w", domain.ErrNotFound)
	}
	return p.getByRiotID(gameName, tagLine)
}

func (p *playersStub) ListTracked(_ domain.Context, _ int) ([]domain.Player, error) { return nil, nil }
func (p *playersStub) ListUnderFetched(_ domain.Context, _, _ int) ([]domain.Player, error) {
	return nil, nil
}
func (p *playersStub) ListForAnalysis(_ domain.Context, _ int, _ time.Time, _ int) ([]domain.Player, error) {
	return nil, nil
}
func (p *playersStub) ListForBanCheck(_ domain.Context, _ time.Time, _ int) ([]domain.Player, error) {
	return nil, nil
}
func (p *playersStub) MarkAnalyzed(_ domain.Context, _ string, _ time.Time) error { return nil }
func (p *playersStub) MarkBanCheck(_ domain.Context, _ string, _ bool, _ time.Time) error {
	return nil
}

// matchesStub implements domain.MatchRepository.
type matchesStub struct {
	exists      func(matchID string) (bool, error)
	get         func(matchID string) (domain.Match, error)
	playerList  func(puuid string, queueID, limit int) ([]domain.PlayerMatch, error)
	upsertErr   error
	upsertedM   []domain.Match
	upsertedP   [][]domain.MatchParticipant
	countByPUID func(puuid string) (int, error)
}

func (m *matchesStub) UpsertWithParticipants(_ domain.Context, mt domain.Match, parts []domain.MatchParticipant) error {
	m.upsertedM = append(m.upsertedM, mt)
	m.upsertedP = append(m.upsertedP, parts)
	return m.upsertErr
}

func (m *matchesStub) Get(_ domain.Context, matchID string) (domain.Match, error) {
	if m.get == nil {
		return domain.Match{}, fmt.Errorf("op=match.get: %w", domain.ErrNotFound)
	}
	return m.get(matchID)
}

func (m *matchesStub) Exists(_ domain.Context, matchID string) (bool, error) {
	if m.exists == nil {
		return false, nil
	}
	return m.exists(matchID)
}

func (m *matchesStub) CountByPlayer(_ domain.Context, puuid string) (int, error) {
	if m.countByPUID == nil {
		return 0, nil
	}
	return m.countByPUID(puuid)
}

func (m *matchesStub) ListPlayerMatches(_ domain.Context, puuid string, queueID, limit int) ([]domain.PlayerMatch, error) {
	if m.playerList == nil {
		return nil, nil
	}
	return m.playerList(puuid, queueID, limit)
}

// ranksStub implements domain.RankRepository over a per-queue map so an
// upserted standing reads back as current.
type ranksStub struct {
	byQueue   map[string]domain.PlayerRank
	upsertErr error
	upserted  []domain.PlayerRank
}

func (r *ranksStub) UpsertCurrent(_ domain.Context, rk domain.PlayerRank) error {
	r.upserted = append(r.upserted, rk)
	if r.upsertErr != nil {
		return r.upsertErr
	}
	if r.byQueue == nil {
		r.byQueue = map[string]domain.PlayerRank{}
	}
	r.byQueue[rk.QueueType] = rk
	return nil
}

func (r *ranksStub) Current(_ domain.Context, _, queueType string) (domain.PlayerRank, error) {
	if rk, ok := r.byQueue[queueType]; ok {
		return rk, nil
	}
	return domain.PlayerRank{}, fmt.Errorf("op=rank.current: %w", domain.ErrNotFound)
}

func (r *ranksStub) History(_ domain.Context, _, _ string, _ int) ([]domain.PlayerRank, error) {
	return nil, nil
}

// fetchMark records one MarkFetched call on the tracking stub.
type fetchMark struct {
	kind     domain.DataKind
	id       string
	notFound bool
}

// trackingStub implements domain.TrackingRepository over an in-memory map
// keyed kind:identifier. MarkFetched updates the map, so a refreshed entry
// reads as fresh on the next pass.
type trackingStub struct {
	rows     map[string]domain.DataTracking
	touchErr error
	markErr  error
	hits     []string
	fetched  []fetchMark
}

func trackKey(kind domain.DataKind, id string) string { return string(kind) + ":" + id }

func (t *trackingStub) Get(_ domain.Context, kind domain.DataKind, identifier string) (domain.DataTracking, error) {
	if tr, ok := t.rows[trackKey(kind, identifier)]; ok {
		return tr, nil
	}
	return domain.DataTracking{}, fmt.Errorf("op=tracking.get: %w", domain.ErrNotFound)
}

func (t *trackingStub) TouchHit(_ domain.Context, kind domain.DataKind, identifier string) error {
	t.hits = append(t.hits, trackKey(kind, identifier))
	return t.touchErr
}

func (t *trackingStub) MarkFetched(_ domain.Context, kind domain.DataKind, identifier string, at time.Time, notFound bool) error {
	t.fetched = append(t.fetched, fetchMark{kind: kind, id: identifier, notFound: notFound})
	if t.markErr != nil {
		return t.markErr
	}
	if t.rows == nil {
		t.rows = map[string]domain.DataTracking{}
	}
	fetchedAt := at
	t.rows[trackKey(kind, identifier)] = domain.DataTracking{
		DataType:    kind,
		Identifier:  identifier,
		LastFetched: &fetchedAt,
		NotFound:    notFound,
	}
	return nil
}

// freshRow builds a tracking row fetched at the given age.
func freshRow(kind domain.DataKind, id string, age time.Duration, notFound bool) (string, domain.DataTracking) {
	at := time.Now().UTC().Add(-age)
	return trackKey(kind, id), domain.DataTracking{
		DataType:    kind,
		Identifier:  id,
		LastFetched: &at,
		NotFound:    notFound,
	}
}

// configsStub implements domain.JobConfigRepository.
type configsStub struct {
	byType      func(t domain.JobType) (domain.JobConfiguration, error)
	list        []domain.JobConfiguration
	setActive   []string
	schedules   []string
	setErr      error
	scheduleErr error
}

func (c *configsStub) GetByType(_ domain.Context, t domain.JobType) (domain.JobConfiguration, error) {
	if c.byType == nil {
		return domain.JobConfiguration{JobType: t, Name: string(t)}, nil
	}
	return c.byType(t)
}

func (c *configsStub) List(_ domain.Context) ([]domain.JobConfiguration, error) {
	return c.list, nil
}

func (c *configsStub) SetActive(_ domain.Context, t domain.JobType, active bool) error {
	c.setActive = append(c.setActive, fmt.Sprintf("%s=%t", t, active))
	return c.setErr
}

func (c *configsStub) UpdateSchedule(_ domain.Context, t domain.JobType, schedule string) error {
	c.schedules = append(c.schedules, fmt.Sprintf("%s=%s", t, schedule))
	return c.scheduleErr
}

func (c *configsStub) Upsert(_ domain.Context, _ domain.JobConfiguration) error { return nil }

// executionsStub implements domain.JobExecutionRepository.
type executionsStub struct {
	getFn  func(id string) (domain.JobExecution, error)
	listFn func(f domain.ExecutionFilter) ([]domain.JobExecution, int, error)
}

func (e *executionsStub) InsertRunning(_ domain.Context, _ domain.JobExecution) error { return nil }
func (e *executionsStub) Finish(_ domain.Context, _ string, _ domain.JobStatus, _ domain.RunSummary, _, _ string, _ time.Time) error {
	return nil
}

func (e *executionsStub) Get(_ domain.Context, id string) (domain.JobExecution, error) {
	if e.getFn == nil {
		return domain.JobExecution{}, fmt.Errorf("op=execution.get: %w", domain.ErrNotFound)
	}
	return e.getFn(id)
}

func (e *executionsStub) List(_ domain.Context, f domain.ExecutionFilter) ([]domain.JobExecution, int, error) {
	if e.listFn == nil {
		return nil, 0, nil
	}
	return e.listFn(f)
}

func (e *executionsStub) SweepStale(_ domain.Context, _ time.Time, _ string) (int64, error) {
	return 0, nil
}

// ratelimitsStub implements domain.RateLimitLogRepository.
type ratelimitsStub struct {
	since time.Time
	limit int
	out   []domain.RateLimitEvent
}

func (r *ratelimitsStub) Append(_ domain.Context, _ domain.RateLimitEvent) error { return nil }
func (r *ratelimitsStub) ListSince(_ domain.Context, since time.Time, limit int) ([]domain.RateLimitEvent, error) {
	r.since, r.limit = since, limit
	return r.out, nil
}

// detectionsStub implements domain.DetectionRepository.
type detectionsStub struct {
	puuid string
	limit int
	out   []domain.SmurfDetection
}

func (d *detectionsStub) Insert(_ domain.Context, _ domain.SmurfDetection) (int64, error) {
	return 0, nil
}

func (d *detectionsStub) Latest(_ domain.Context, _ string) (domain.SmurfDetection, error) {
	return domain.SmurfDetection{}, fmt.Errorf("op=detection.latest: %w", domain.ErrNotFound)
}

func (d *detectionsStub) ListByPlayer(_ domain.Context, puuid string, limit int) ([]domain.SmurfDetection, error) {
	d.puuid, d.limit = puuid, limit
	return d.out, nil
}

// triggerStub implements usecase.JobTrigger.
type triggerStub struct {
	id  string
	err error
	got []domain.JobType
}

func (t *triggerStub) TriggerNow(_ domain.Context, jobType domain.JobType) (string, error) {
	t.got = append(t.got, jobType)
	return t.id, t.err
}

// reloaderStub implements usecase.ScheduleReloader.
type reloaderStub struct {
	err error
	got []domain.JobType
}

func (r *reloaderStub) Reload(jobType domain.JobType) error {
	r.got = append(r.got, jobType)
	return r.err
}

// pingerStub implements usecase.Pinger.
type pingerStub struct{ err error }

func (p pingerStub) Ping(_ domain.Context) error { return p.err }

// settingsStub implements domain.SettingsStore.
type settingsStub struct {
	key string
	err error
}

func (s settingsStub) APIKey(_ domain.Context) (string, error) { return s.key, s.err }
