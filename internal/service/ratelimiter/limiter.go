// Package ratelimiter enforces the outbound request budget toward the
// Riot API. It keeps token buckets in memory per host scope, admits
// callers FIFO per endpoint family, and mirrors bucket state to Redis so
// a restart cannot burst past a window the server already counted.
package ratelimiter

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/smurfguard/internal/adapter/observability"
	"github.com/fairyhunter13/smurfguard/internal/domain"
)

// Scope identifies one rate-limited host, e.g. "na1" or "americas".
type Scope string

// MethodFamily identifies one endpoint family with its own method bucket.
type MethodFamily string

const (
	FamilyAccount   MethodFamily = "account"
	FamilySummoner  MethodFamily = "summoner"
	FamilyMatchIDs  MethodFamily = "match_ids"
	FamilyMatch     MethodFamily = "match"
	FamilyLeague    MethodFamily = "league"
	FamilySpectator MethodFamily = "spectator"
)

// Window is one published limit: Limit requests per Period.
type Window struct {
	Limit  int
	Period time.Duration
}

// Admission reports a granted request slot.
type Admission struct {
	AdmittedAt time.Time
	WaitedFor  time.Duration
}

// Limiter is the admission contract consumed by the API client and the
// data manager. Acquire never fails for limiter-internal reasons; the
// only error it returns is the caller's context ending.
type Limiter interface {
	Acquire(ctx domain.Context, scope Scope, family MethodFamily) (Admission, error)
	TryAcquire(ctx domain.Context, scope Scope, family MethodFamily, maxWait time.Duration) (Admission, bool)
	ObserveServerLimits(scope Scope, family MethodFamily, hdr http.Header)
	ReportThrottle(ctx domain.Context, scope Scope, family MethodFamily, retryAfter time.Duration, hdr http.Header)
}

// Default windows mirror the limits Riot publishes for production keys.
// The application windows apply per scope; method windows per family.
func defaultAppWindows() []Window {
	return []Window{
		{Limit: 20, Period: time.Second},
		{Limit: 100, Period: 2 * time.Minute},
	}
}

func defaultMethodWindows() map[MethodFamily]Window {
	return map[MethodFamily]Window{
		FamilyAccount:   {Limit: 1000, Period: time.Minute},
		FamilySummoner:  {Limit: 1600, Period: time.Minute},
		FamilyMatchIDs:  {Limit: 2000, Period: 10 * time.Second},
		FamilyMatch:     {Limit: 2000, Period: 10 * time.Second},
		FamilyLeague:    {Limit: 100, Period: time.Minute},
		FamilySpectator: {Limit: 20000, Period: 10 * time.Second},
	}
}

// Options configures a BucketLimiter. Zero values fall back to the Riot
// production defaults and the standard safety margins.
type Options struct {
	AppWindows    []Window
	MethodWindows map[MethodFamily]Window
	AppMargin     float64 // fraction of the published app limit to use, default 0.8
	MethodMargin  float64 // fraction of the published method limit to use, default 0.9
	Mirror        *redis.Client
	ThrottleLog   domain.RateLimitLogRepository
	Logger        *slog.Logger
}

// BucketLimiter is the in-memory token bucket limiter. The in-memory
// state is authoritative; Redis only warms it across restarts.
type BucketLimiter struct {
	appWindows    []Window
	methodWindows map[MethodFamily]Window
	appMargin     float64
	methodMargin  float64

	mu     sync.Mutex
	scopes map[Scope]*scopeState

	mirror      *redis.Client
	throttleLog domain.RateLimitLogRepository
	log         *slog.Logger

	now func() time.Time
}

func New(opts Options) *BucketLimiter {
	if len(opts.AppWindows) == 0 {
		opts.AppWindows = defaultAppWindows()
	}
	if len(opts.MethodWindows) == 0 {
		opts.MethodWindows = defaultMethodWindows()
	}
	if opts.AppMargin <= 0 || opts.AppMargin > 1 {
		opts.AppMargin = 0.8
	}
	if opts.MethodMargin <= 0 || opts.MethodMargin > 1 {
		opts.MethodMargin = 0.9
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &BucketLimiter{
		appWindows:    opts.AppWindows,
		methodWindows: opts.MethodWindows,
		appMargin:     opts.AppMargin,
		methodMargin:  opts.MethodMargin,
		scopes:        make(map[Scope]*scopeState),
		mirror:        opts.Mirror,
		throttleLog:   opts.ThrottleLog,
		log:           opts.Logger,
		now:           time.Now,
	}
}

func (l *BucketLimiter) getScope(scope Scope) *scopeState {
	l.mu.Lock()
	defer l.mu.Unlock()
	st, ok := l.scopes[scope]
	if ok {
		return st
	}
	now := l.now()
	st = &scopeState{
		methods: make(map[MethodFamily]*bucket),
		queues:  make(map[MethodFamily]*waitQueue),
	}
	for _, w := range l.appWindows {
		st.app = append(st.app, newBucket(w.Limit, w.Period, l.appMargin, now))
	}
	for fam, w := range l.methodWindows {
		st.methods[fam] = newBucket(w.Limit, w.Period, l.methodMargin, now)
	}
	l.scopes[scope] = st
	return st
}

// Acquire blocks until every applicable bucket admits one call, or until
// ctx ends. Contenders on the same (scope, family) key proceed in FIFO
// order.
func (l *BucketLimiter) Acquire(ctx domain.Context, scope Scope, family MethodFamily) (Admission, error) {
	start := l.now()
	st := l.getScope(scope)
	q := st.queue(family)
	turn := q.enqueue()
	defer q.leave(turn)

	select {
	case <-turn:
	case <-ctx.Done():
		return Admission{}, ctx.Err()
	}

	for {
		ok, wait := st.take(l.now(), family)
		if ok {
			now := l.now()
			waited := now.Sub(start)
			observability.ObserveAdmissionWait(string(family), waited)
			return Admission{AdmittedAt: now, WaitedFor: waited}, nil
		}
		if wait < time.Millisecond {
			wait = time.Millisecond
		}
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return Admission{}, ctx.Err()
		}
	}
}

// TryAcquire waits at most maxWait for admission, respecting the same
// FIFO order as Acquire. It reports false when the budget is exhausted
// for longer than the caller is willing to wait.
func (l *BucketLimiter) TryAcquire(ctx domain.Context, scope Scope, family MethodFamily, maxWait time.Duration) (Admission, bool) {
	if maxWait <= 0 {
		maxWait = time.Millisecond
	}
	bounded, cancel := context.WithTimeout(ctx, maxWait)
	defer cancel()
	adm, err := l.Acquire(bounded, scope, family)
	if err != nil {
		return Admission{}, false
	}
	return adm, true
}

// ObserveServerLimits folds the X-App-Rate-Limit(-Count) and
// X-Method-Rate-Limit(-Count) headers into local bucket state. Malformed
// headers are ignored.
func (l *BucketLimiter) ObserveServerLimits(scope Scope, family MethodFamily, hdr http.Header) {
	if hdr == nil {
		return
	}
	st := l.getScope(scope)
	now := l.now()

	appLimits := parseRatePairs(hdr.Get("X-App-Rate-Limit"))
	appCounts := parseRatePairs(hdr.Get("X-App-Rate-Limit-Count"))
	methodLimits := parseRatePairs(hdr.Get("X-Method-Rate-Limit"))
	methodCounts := parseRatePairs(hdr.Get("X-Method-Rate-Limit-Count"))
	if len(appLimits) == 0 && len(methodLimits) == 0 {
		return
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	for period, limit := range appLimits {
		var target *bucket
		for _, b := range st.app {
			if b.window == period {
				target = b
				break
			}
		}
		if target == nil {
			// Server publishes a window we were not configured with;
			// track it so we never exceed it.
			target = newBucket(limit, period, l.appMargin, now)
			st.app = append(st.app, target)
		}
		target.refill(now)
		target.resize(limit, appCounts[period], l.appMargin)
	}

	if mb, ok := st.methods[family]; ok {
		for period, limit := range methodLimits {
			if mb.window != period {
				continue
			}
			mb.refill(now)
			mb.resize(limit, methodCounts[period], l.methodMargin)
		}
	}
}

// ReportThrottle reacts to a server 429: every bucket of the scope is
// forced empty until now+retryAfter, and the event lands in the
// rate-limit log.
func (l *BucketLimiter) ReportThrottle(ctx domain.Context, scope Scope, family MethodFamily, retryAfter time.Duration, hdr http.Header) {
	if retryAfter <= 0 {
		retryAfter = time.Second
	}
	now := l.now()
	until := now.Add(retryAfter)

	st := l.getScope(scope)
	st.forceEmptyAll(now, until)
	observability.ObserveThrottle(string(scope), string(family))

	limitType := "unknown"
	var limitValue, countValue string
	if hdr != nil {
		if t := strings.ToLower(hdr.Get("X-Rate-Limit-Type")); t != "" {
			limitType = t
		}
		switch limitType {
		case "application":
			limitValue = hdr.Get("X-App-Rate-Limit")
			countValue = hdr.Get("X-App-Rate-Limit-Count")
		case "method":
			limitValue = hdr.Get("X-Method-Rate-Limit")
			countValue = hdr.Get("X-Method-Rate-Limit-Count")
		}
	}

	l.log.WarnContext(ctx, "riot throttled",
		slog.String("scope", string(scope)),
		slog.String("family", string(family)),
		slog.String("limit_type", limitType),
		slog.Duration("retry_after", retryAfter))

	if l.throttleLog != nil {
		ev := domain.RateLimitEvent{
			LimitType:  limitType,
			Endpoint:   string(family),
			LimitValue: limitValue,
			CountValue: countValue,
			RetryAfter: retryAfter,
			Detail:     "scope=" + string(scope),
			OccurredAt: now,
		}
		if err := l.throttleLog.Append(ctx, ev); err != nil {
			l.log.ErrorContext(ctx, "rate limit log append failed", slog.Any("error", err))
		}
	}

	l.mirrorScope(ctx, scope, st)
}

// parseRatePairs parses the "limit:seconds,limit:seconds" header format
// into a period→value map. Bad pairs are skipped.
func parseRatePairs(raw string) map[time.Duration]int {
	if raw == "" {
		return nil
	}
	out := make(map[time.Duration]int)
	for _, pair := range strings.Split(raw, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), ":", 2)
		if len(parts) != 2 {
			continue
		}
		value, err := strconv.Atoi(parts[0])
		if err != nil || value < 0 {
			continue
		}
		seconds, err := strconv.Atoi(parts[1])
		if err != nil || seconds <= 0 {
			continue
		}
		out[time.Duration(seconds)*time.Second] = value
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
