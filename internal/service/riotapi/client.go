// Package riotapi is the typed client for the Riot HTTP API. Every
// operation returns a discriminated outcome through the domain error
// taxonomy: nil+DTO (found), ErrNotFound, RateLimitError,
// TransientError (after retries), FatalError, or ErrConfigInvalid for
// routing/key problems. Admission goes through the rate limiter before
// every attempt.
package riotapi

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fairyhunter13/smurfguard/internal/adapter/observability"
	"github.com/fairyhunter13/smurfguard/internal/config"
	"github.com/fairyhunter13/smurfguard/internal/domain"
	"github.com/fairyhunter13/smurfguard/internal/service/ratelimiter"
)

const maxBodyBytes = 4 << 20

// Client talks to the Riot API with routing, admission, retry and
// payload validation handled in one place.
type Client struct {
	cfg      config.Config
	hc       *http.Client
	limiter  ratelimiter.Limiter
	settings domain.SettingsStore
	validate *validator.Validate
	base     string
	log      *slog.Logger
}

// Options configures a Client. BaseURL overrides the per-routing Riot
// hosts and exists for tests.
type Options struct {
	Config   config.Config
	HTTP     *http.Client
	Limiter  ratelimiter.Limiter
	Settings domain.SettingsStore
	BaseURL  string
	Logger   *slog.Logger
}

func New(opts Options) *Client {
	hc := opts.HTTP
	if hc == nil {
		hc = &http.Client{
			Timeout:   opts.Config.RiotTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:      opts.Config,
		hc:       hc,
		limiter:  opts.Limiter,
		settings: opts.Settings,
		validate: validator.New(),
		base:     opts.BaseURL,
		log:      logger,
	}
}

// apiKey resolves the active key: the admin settings row wins, the
// environment fallback covers a missing row, nothing ⇒ ConfigInvalid
// before any outbound call.
func (c *Client) apiKey(ctx domain.Context) (string, error) {
	if c.settings != nil {
		key, err := c.settings.APIKey(ctx)
		switch {
		case err == nil && key != "":
			return key, nil
		case err != nil && !domain.IsNotFound(err):
			return "", fmt.Errorf("op=riot.apiKey: %w", err)
		}
	}
	if c.cfg.RiotAPIKey != "" {
		return c.cfg.RiotAPIKey, nil
	}
	return "", fmt.Errorf("op=riot.apiKey: %w: no riot api key configured", domain.ErrConfigInvalid)
}

func (c *Client) urlFor(routing, path string) string {
	if c.base != "" {
		return c.base + path
	}
	return hostFor(routing) + path
}

// getJSON performs one admission-gated GET with the client retry
// policy: transient failures retry with exponential backoff, everything
// else surfaces on the first attempt.
func (c *Client) getJSON(ctx domain.Context, scope ratelimiter.Scope, family ratelimiter.MethodFamily, rawURL string, out any) error {
	key, err := c.apiKey(ctx)
	if err != nil {
		return err
	}

	initial, maxInterval, multiplier, attempts := c.cfg.RiotBackoff()
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = initial
	expo.MaxInterval = maxInterval
	expo.Multiplier = multiplier
	expo.MaxElapsedTime = 0

	op := func() error {
		if _, ok := c.limiter.TryAcquire(ctx, scope, family, c.cfg.RiotAdmissionWait); !ok {
			if err := ctx.Err(); err != nil {
				return backoff.Permanent(err)
			}
			// Local budget exhausted beyond the wait we tolerate:
			// yield instead of queueing the whole job behind it.
			c.log.InfoContext(ctx, "riot call yielded on local budget",
				slog.String("scope", string(scope)), slog.String("family", string(family)))
			return backoff.Permanent(&domain.RateLimitError{Scope: string(scope), RetryAfter: c.cfg.RiotAdmissionWait})
		}

		start := time.Now()
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("op=riot.request: %w", err))
		}
		req.Header.Set("X-Riot-Token", key)
		req.Header.Set("Accept", "application/json")

		resp, err := c.hc.Do(req)
		if err != nil {
			observability.ObserveRiotRequest(string(family), "network", time.Since(start))
			if ctxErr := ctx.Err(); ctxErr != nil {
				return backoff.Permanent(ctxErr)
			}
			return &domain.TransientError{Cause: err}
		}
		defer func() { _ = resp.Body.Close() }()
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if readErr != nil {
			observability.ObserveRiotRequest(string(family), "network", time.Since(start))
			return &domain.TransientError{Cause: readErr}
		}

		c.limiter.ObserveServerLimits(scope, family, resp.Header)

		switch {
		case resp.StatusCode == http.StatusOK:
			observability.ObserveRiotRequest(string(family), "found", time.Since(start))
			if err := json.Unmarshal(body, out); err != nil {
				return backoff.Permanent(&domain.FatalError{Status: resp.StatusCode, Message: "undecodable payload: " + bodySnippet(body)})
			}
			return nil

		case resp.StatusCode == http.StatusNotFound:
			observability.ObserveRiotRequest(string(family), "not_found", time.Since(start))
			return backoff.Permanent(fmt.Errorf("%w: %s", domain.ErrNotFound, family))

		case resp.StatusCode == http.StatusTooManyRequests:
			observability.ObserveRiotRequest(string(family), "throttled", time.Since(start))
			retryAfter := retryAfterHeader(resp.Header)
			c.limiter.ReportThrottle(ctx, scope, family, retryAfter, resp.Header)
			return backoff.Permanent(&domain.RateLimitError{Scope: string(scope), RetryAfter: retryAfter})

		case resp.StatusCode >= 500:
			observability.ObserveRiotRequest(string(family), "transient", time.Since(start))
			c.log.WarnContext(ctx, "riot 5xx",
				slog.String("family", string(family)), slog.Int("status", resp.StatusCode))
			return &domain.TransientError{Status: resp.StatusCode}

		default:
			observability.ObserveRiotRequest(string(family), "fatal", time.Since(start))
			c.log.WarnContext(ctx, "riot 4xx",
				slog.String("family", string(family)), slog.Int("status", resp.StatusCode),
				slog.String("body", bodySnippet(body)))
			return backoff.Permanent(&domain.FatalError{Status: resp.StatusCode, Message: bodySnippet(body)})
		}
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(expo, uint64(attempts-1)), ctx)
	return backoff.Retry(op, bo)
}

// checked runs struct validation on a decoded payload; a required field
// missing means the upstream contract broke, which is fatal.
func (c *Client) checked(opName string, dto any) error {
	if err := c.validate.Struct(dto); err != nil {
		return fmt.Errorf("op=%s: %w", opName, &domain.FatalError{Status: http.StatusOK, Message: "required field missing: " + err.Error()})
	}
	return nil
}

// AccountByRiotID resolves gameName#tagLine on the regional host.
func (c *Client) AccountByRiotID(ctx domain.Context, platform, gameName, tagLine string) (*AccountDTO, error) {
	region, err := RegionFor(platform)
	if err != nil {
		return nil, err
	}
	path := "/riot/account/v1/accounts/by-riot-id/" + url.PathEscape(gameName) + "/" + url.PathEscape(tagLine)
	var dto AccountDTO
	if err := c.getJSON(ctx, ratelimiter.Scope(region), ratelimiter.FamilyAccount, c.urlFor(region, path), &dto); err != nil {
		return nil, fmt.Errorf("op=riot.AccountByRiotID: %w", err)
	}
	if err := c.checked("riot.AccountByRiotID", dto); err != nil {
		return nil, err
	}
	return &dto, nil
}

// AccountByPUUID resolves an account on the regional host.
func (c *Client) AccountByPUUID(ctx domain.Context, platform, puuid string) (*AccountDTO, error) {
	region, err := RegionFor(platform)
	if err != nil {
		return nil, err
	}
	path := "/riot/account/v1/accounts/by-puuid/" + url.PathEscape(puuid)
	var dto AccountDTO
	if err := c.getJSON(ctx, ratelimiter.Scope(region), ratelimiter.FamilyAccount, c.urlFor(region, path), &dto); err != nil {
		return nil, fmt.Errorf("op=riot.AccountByPUUID: %w", err)
	}
	if err := c.checked("riot.AccountByPUUID", dto); err != nil {
		return nil, err
	}
	return &dto, nil
}

// SummonerByPUUID resolves the summoner on the platform host.
func (c *Client) SummonerByPUUID(ctx domain.Context, platform, puuid string) (*SummonerDTO, error) {
	if !KnownPlatform(platform) {
		return nil, fmt.Errorf("op=riot.SummonerByPUUID: %w: unknown platform %q", domain.ErrConfigInvalid, platform)
	}
	path := "/lol/summoner/v4/summoners/by-puuid/" + url.PathEscape(puuid)
	var dto SummonerDTO
	if err := c.getJSON(ctx, ratelimiter.Scope(platform), ratelimiter.FamilySummoner, c.urlFor(platform, path), &dto); err != nil {
		return nil, fmt.Errorf("op=riot.SummonerByPUUID: %w", err)
	}
	if err := c.checked("riot.SummonerByPUUID", dto); err != nil {
		return nil, err
	}
	return &dto, nil
}

// MatchIDsByPUUID lists recent match ids on the regional host, newest
// first, honoring the paging and filter options.
func (c *Client) MatchIDsByPUUID(ctx domain.Context, platform, puuid string, opts MatchIDsOptions) ([]string, error) {
	region, err := RegionFor(platform)
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	if opts.Start > 0 {
		q.Set("start", strconv.Itoa(opts.Start))
	}
	if opts.Count > 0 {
		q.Set("count", strconv.Itoa(opts.Count))
	}
	if opts.Queue > 0 {
		q.Set("queue", strconv.Itoa(opts.Queue))
	}
	if opts.Type != "" {
		q.Set("type", opts.Type)
	}
	if opts.StartTime > 0 {
		q.Set("startTime", strconv.FormatInt(opts.StartTime, 10))
	}
	if opts.EndTime > 0 {
		q.Set("endTime", strconv.FormatInt(opts.EndTime, 10))
	}
	path := "/lol/match/v5/matches/by-puuid/" + url.PathEscape(puuid) + "/ids"
	if enc := q.Encode(); enc != "" {
		path += "?" + enc
	}
	var ids []string
	if err := c.getJSON(ctx, ratelimiter.Scope(region), ratelimiter.FamilyMatchIDs, c.urlFor(region, path), &ids); err != nil {
		return nil, fmt.Errorf("op=riot.MatchIDsByPUUID: %w", err)
	}
	return ids, nil
}

// MatchByID fetches one completed match on the regional host.
func (c *Client) MatchByID(ctx domain.Context, platform, matchID string) (*MatchDTO, error) {
	region, err := RegionFor(platform)
	if err != nil {
		return nil, err
	}
	path := "/lol/match/v5/matches/" + url.PathEscape(matchID)
	var dto MatchDTO
	if err := c.getJSON(ctx, ratelimiter.Scope(region), ratelimiter.FamilyMatch, c.urlFor(region, path), &dto); err != nil {
		return nil, fmt.Errorf("op=riot.MatchByID: %w", err)
	}
	if err := c.checked("riot.MatchByID", dto); err != nil {
		return nil, err
	}
	if len(dto.Metadata.Participants) != len(dto.Info.Participants) {
		return nil, fmt.Errorf("op=riot.MatchByID: %w", &domain.FatalError{
			Status:  http.StatusOK,
			Message: "participant identity mismatch between metadata and info",
		})
	}
	return &dto, nil
}

// LeagueEntriesBySummoner lists ranked entries on the platform host.
func (c *Client) LeagueEntriesBySummoner(ctx domain.Context, platform, summonerID string) ([]LeagueEntryDTO, error) {
	if !KnownPlatform(platform) {
		return nil, fmt.Errorf("op=riot.LeagueEntriesBySummoner: %w: unknown platform %q", domain.ErrConfigInvalid, platform)
	}
	path := "/lol/league/v4/entries/by-summoner/" + url.PathEscape(summonerID)
	var entries []LeagueEntryDTO
	if err := c.getJSON(ctx, ratelimiter.Scope(platform), ratelimiter.FamilyLeague, c.urlFor(platform, path), &entries); err != nil {
		return nil, fmt.Errorf("op=riot.LeagueEntriesBySummoner: %w", err)
	}
	for i := range entries {
		if err := c.checked("riot.LeagueEntriesBySummoner", entries[i]); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

// ActiveGameBySummoner fetches the live game on the platform host.
// NotFound means the player is not currently in a game.
func (c *Client) ActiveGameBySummoner(ctx domain.Context, platform, summonerID string) (*ActiveGameDTO, error) {
	if !KnownPlatform(platform) {
		return nil, fmt.Errorf("op=riot.ActiveGameBySummoner: %w: unknown platform %q", domain.ErrConfigInvalid, platform)
	}
	path := "/lol/spectator/v4/active-games/by-summoner/" + url.PathEscape(summonerID)
	var dto ActiveGameDTO
	if err := c.getJSON(ctx, ratelimiter.Scope(platform), ratelimiter.FamilySpectator, c.urlFor(platform, path), &dto); err != nil {
		return nil, fmt.Errorf("op=riot.ActiveGameBySummoner: %w", err)
	}
	if err := c.checked("riot.ActiveGameBySummoner", dto); err != nil {
		return nil, err
	}
	return &dto, nil
}

func bodySnippet(body []byte) string {
	s := string(body)
	if len(s) > 512 {
		s = s[:512]
	}
	return s
}

// retryAfterHeader parses Retry-After seconds; the server always sends
// it on 429, but a missing value falls back to one second.
func retryAfterHeader(hdr http.Header) time.Duration {
	raw := strings.TrimSpace(hdr.Get("Retry-After"))
	if raw == "" {
		return time.Second
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs <= 0 {
		return time.Second
	}
	return time.Duration(secs) * time.Second
}
