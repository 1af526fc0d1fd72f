package jobs_test

import (
	"fmt"
	"sync"
	"time"

	"github.com/fairyhunter13/smurfguard/internal/domain"
	"github.com/fairyhunter13/smurfguard/internal/service/riotapi"
)

// dataStub implements jobs.DataProvider with per-method hooks. A nil hook
// fails the call so tests catch data-manager calls they did not expect.
// Every method honors context cancellation first, the way the real manager
// does before it touches the platform.
type dataStub struct {
	ensurePlayer   func(platform, puuid string) (domain.Player, domain.Freshness, error)
	ensureRanks    func(p domain.Player) ([]domain.PlayerRank, domain.Freshness, error)
	ensureMatchIDs func(p domain.Player, opts riotapi.MatchIDsOptions) ([]string, domain.Freshness, error)
	ensureMatch    func(platform, matchID string) (domain.Match, []domain.MatchParticipant, domain.Freshness, error)
	checkAccount   func(platform, puuid string) (exists, inconclusive bool, err error)

	mu         sync.Mutex
	idOpts     []riotapi.MatchIDsOptions
	ensuredIDs []string
	probed     []string
}

func (d *dataStub) EnsurePlayerByPUUID(ctx domain.Context, platform, puuid string) (domain.Player, domain.Freshness, error) {
	if err := ctx.Err(); err != nil {
		return domain.Player{}, "", err
	}
	if d.ensurePlayer == nil {
		return domain.Player{}, "", fmt.Errorf("unexpected call EnsurePlayerByPUUID")
	}
	return d.ensurePlayer(platform, puuid)
}

func (d *dataStub) EnsureRanks(ctx domain.Context, p domain.Player) ([]domain.PlayerRank, domain.Freshness, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	if d.ensureRanks == nil {
		return nil, "", fmt.Errorf("unexpected call EnsureRanks")
	}
	return d.ensureRanks(p)
}

func (d *dataStub) EnsureMatchIDs(ctx domain.Context, p domain.Player, opts riotapi.MatchIDsOptions) ([]string, domain.Freshness, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	d.mu.Lock()
	d.idOpts = append(d.idOpts, opts)
	d.mu.Unlock()
	if d.ensureMatchIDs == nil {
		return nil, "", fmt.Errorf("unexpected call EnsureMatchIDs")
	}
	return d.ensureMatchIDs(p, opts)
}

func (d *dataStub) EnsureMatch(ctx domain.Context, platform, matchID string) (domain.Match, []domain.MatchParticipant, domain.Freshness, error) {
	if err := ctx.Err(); err != nil {
		return domain.Match{}, nil, "", err
	}
	d.mu.Lock()
	d.ensuredIDs = append(d.ensuredIDs, matchID)
	d.mu.Unlock()
	if d.ensureMatch == nil {
		return domain.Match{}, nil, "", fmt.Errorf("unexpected call EnsureMatch")
	}
	return d.ensureMatch(platform, matchID)
}

func (d *dataStub) CheckAccountExists(ctx domain.Context, platform, puuid string) (bool, bool, error) {
	if err := ctx.Err(); err != nil {
		return false, true, err
	}
	d.mu.Lock()
	d.probed = append(d.probed, puuid)
	d.mu.Unlock()
	if d.checkAccount == nil {
		return false, false, fmt.Errorf("unexpected call CheckAccountExists")
	}
	return d.checkAccount(platform, puuid)
}

func (d *dataStub) matchIDOpts() []riotapi.MatchIDsOptions {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]riotapi.MatchIDsOptions(nil), d.idOpts...)
}

func (d *dataStub) ensuredMatchIDs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.ensuredIDs...)
}

func (d *dataStub) probedPlayers() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.probed...)
}

type banMark struct {
	puuid  string
	banned bool
}

// playersStub backs the repository reads and writes the jobs make. Working
// sets are served verbatim; limits and cutoffs are recorded for assertion.
type playersStub struct {
	mu           sync.Mutex
	tracked      []domain.Player
	underFetched []domain.Player
	forAnalysis  []domain.Player
	forBanCheck  []domain.Player
	rows         map[string]domain.Player
	listErr      error
	upsertErr    error

	trackedLimit   int
	banCheckBefore time.Time
	upserted       []domain.Player
	analyzed       []string
	banMarks       []banMark
}

func (p *playersStub) Upsert(_ domain.Context, pl domain.Player) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.upsertErr != nil {
		return p.upsertErr
	}
	p.upserted = append(p.upserted, pl)
	if p.rows == nil {
		p.rows = map[string]domain.Player{}
	}
	p.rows[pl.PUUID] = pl
	return nil
}

func (p *playersStub) Get(_ domain.Context, puuid string) (domain.Player, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if row, ok := p.rows[puuid]; ok {
		return row, nil
	}
	return domain.Player{}, fmt.Errorf("op=players.get: %w", domain.ErrNotFound)
}

func (p *playersStub) GetByRiotID(_ domain.Context, _, _ string) (domain.Player, error) {
	return domain.Player{}, fmt.Errorf("op=players.get_by_riot_id: %w", domain.ErrNotFound)
}

func (p *playersStub) ListTracked(_ domain.Context, limit int) ([]domain.Player, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.trackedLimit = limit
	return p.tracked, p.listErr
}

func (p *playersStub) ListUnderFetched(_ domain.Context, _, _ int) ([]domain.Player, error) {
	return p.underFetched, p.listErr
}

func (p *playersStub) ListForAnalysis(_ domain.Context, _ int, _ time.Time, _ int) ([]domain.Player, error) {
	return p.forAnalysis, p.listErr
}

func (p *playersStub) ListForBanCheck(_ domain.Context, checkedBefore time.Time, _ int) ([]domain.Player, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.banCheckBefore = checkedBefore
	return p.forBanCheck, p.listErr
}

func (p *playersStub) MarkAnalyzed(_ domain.Context, puuid string, _ time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.analyzed = append(p.analyzed, puuid)
	return nil
}

func (p *playersStub) MarkBanCheck(_ domain.Context, puuid string, banned bool, _ time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.banMarks = append(p.banMarks, banMark{puuid: puuid, banned: banned})
	return nil
}

func (p *playersStub) upsertedRows() []domain.Player {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.Player(nil), p.upserted...)
}

func (p *playersStub) banMarkCalls() []banMark {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]banMark(nil), p.banMarks...)
}

// matchesStub serves existence, counts, and stored windows. The jobs never
// write matches directly; that stays behind the data manager.
type matchesStub struct {
	mu       sync.Mutex
	existing map[string]bool
	counts   map[string]int
	windows  map[string][]domain.PlayerMatch
	countErr error
}

func (m *matchesStub) UpsertWithParticipants(_ domain.Context, _ domain.Match, _ []domain.MatchParticipant) error {
	return fmt.Errorf("unexpected call UpsertWithParticipants")
}

func (m *matchesStub) Get(_ domain.Context, matchID string) (domain.Match, error) {
	return domain.Match{}, fmt.Errorf("op=matches.get: %w", domain.ErrNotFound)
}

func (m *matchesStub) Exists(_ domain.Context, matchID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.existing[matchID], nil
}

func (m *matchesStub) CountByPlayer(_ domain.Context, puuid string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.countErr != nil {
		return 0, m.countErr
	}
	return m.counts[puuid], nil
}

func (m *matchesStub) ListPlayerMatches(_ domain.Context, puuid string, _, limit int) ([]domain.PlayerMatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	window := m.windows[puuid]
	if len(window) > limit {
		window = window[:limit]
	}
	return window, nil
}

type ranksStub struct {
	current    map[string]domain.PlayerRank
	currentErr error
}

func (r *ranksStub) UpsertCurrent(_ domain.Context, _ domain.PlayerRank) error { return nil }

func (r *ranksStub) Current(_ domain.Context, puuid, _ string) (domain.PlayerRank, error) {
	if r.currentErr != nil {
		return domain.PlayerRank{}, r.currentErr
	}
	if rk, ok := r.current[puuid]; ok {
		return rk, nil
	}
	return domain.PlayerRank{}, fmt.Errorf("op=ranks.current: %w", domain.ErrNotFound)
}

func (r *ranksStub) History(_ domain.Context, _, _ string, _ int) ([]domain.PlayerRank, error) {
	return nil, nil
}

type detectionsStub struct {
	mu        sync.Mutex
	inserted  []domain.SmurfDetection
	insertErr error
}

func (d *detectionsStub) Insert(_ domain.Context, det domain.SmurfDetection) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.insertErr != nil {
		return 0, d.insertErr
	}
	d.inserted = append(d.inserted, det)
	return int64(len(d.inserted)), nil
}

func (d *detectionsStub) Latest(_ domain.Context, _ string) (domain.SmurfDetection, error) {
	return domain.SmurfDetection{}, fmt.Errorf("op=detections.latest: %w", domain.ErrNotFound)
}

func (d *detectionsStub) ListByPlayer(_ domain.Context, _ string, _ int) ([]domain.SmurfDetection, error) {
	return nil, nil
}

type publisherStub struct {
	mu         sync.Mutex
	events     []domain.DetectionEvent
	publishErr error
}

func (p *publisherStub) PublishDetection(_ domain.Context, ev domain.DetectionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.publishErr != nil {
		return p.publishErr
	}
	p.events = append(p.events, ev)
	return nil
}

func jobConfig(t domain.JobType, settings domain.JobSettings) domain.JobConfiguration {
	return domain.JobConfiguration{
		ID:       1,
		JobType:  t,
		Name:     string(t),
		Schedule: "@every 10m",
		IsActive: true,
		Settings: settings,
	}
}

func trackedPlayer(puuid string) domain.Player {
	return domain.Player{
		PUUID:     puuid,
		Platform:  "kr",
		GameName:  "Subject",
		TagLine:   "KR1",
		IsTracked: true,
		IsActive:  true,
	}
}
