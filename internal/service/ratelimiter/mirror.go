package ratelimiter

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/fairyhunter13/smurfguard/internal/domain"
)

const (
	mirrorKeyPrefix = "ratelimit:bucket:"
	mirrorTTL       = 15 * time.Minute
)

// mirrorKey builds the Redis hash key for one bucket. App windows are
// keyed by their period so a restart restores the right window.
func mirrorKey(scope Scope, slot string) string {
	return mirrorKeyPrefix + string(scope) + ":" + slot
}

func appSlot(b *bucket) string {
	return fmt.Sprintf("app:%d", int(b.window.Seconds()))
}

// mirrorScope writes every bucket of one scope to Redis. Failures are
// logged and ignored; the in-memory state stays authoritative.
func (l *BucketLimiter) mirrorScope(ctx domain.Context, scope Scope, st *scopeState) {
	if l.mirror == nil {
		return
	}
	st.mu.Lock()
	type entry struct {
		key           string
		tokens        float64
		lastRefill    time.Time
		cooldownUntil time.Time
	}
	entries := make([]entry, 0, len(st.app)+len(st.methods))
	for _, b := range st.app {
		entries = append(entries, entry{mirrorKey(scope, appSlot(b)), b.tokens, b.lastRefill, b.cooldownUntil})
	}
	for fam, b := range st.methods {
		entries = append(entries, entry{mirrorKey(scope, "m:"+string(fam)), b.tokens, b.lastRefill, b.cooldownUntil})
	}
	st.mu.Unlock()

	pipe := l.mirror.Pipeline()
	for _, e := range entries {
		var cooldown float64
		if !e.cooldownUntil.IsZero() {
			cooldown = unixSeconds(e.cooldownUntil)
		}
		pipe.HSet(ctx, e.key,
			"tokens", e.tokens,
			"last_refill", unixSeconds(e.lastRefill),
			"cooldown_until", cooldown,
		)
		pipe.Expire(ctx, e.key, mirrorTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		l.log.ErrorContext(ctx, "rate limiter mirror write failed",
			slog.String("scope", string(scope)), slog.Any("error", err))
	}
}

// MirrorNow snapshots every known scope to Redis.
func (l *BucketLimiter) MirrorNow(ctx domain.Context) {
	if l.mirror == nil {
		return
	}
	l.mu.Lock()
	scopes := make(map[Scope]*scopeState, len(l.scopes))
	for s, st := range l.scopes {
		scopes[s] = st
	}
	l.mu.Unlock()
	for s, st := range scopes {
		l.mirrorScope(ctx, s, st)
	}
}

// StartMirror periodically snapshots bucket state until ctx ends.
func (l *BucketLimiter) StartMirror(ctx domain.Context, interval time.Duration) {
	if l.mirror == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			// Final snapshot so the next process starts warm.
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
			l.MirrorNow(flushCtx)
			cancel()
			return
		case <-ticker.C:
			l.MirrorNow(ctx)
		}
	}
}

// WarmFromRedis restores bucket state written by a previous process.
// Tokens are clamped to current capacities; expired cooldowns are
// dropped. Missing or unreadable state is not an error.
func (l *BucketLimiter) WarmFromRedis(ctx domain.Context) error {
	if l.mirror == nil {
		return nil
	}
	var cursor uint64
	now := l.now()
	for {
		keys, next, err := l.mirror.Scan(ctx, cursor, mirrorKeyPrefix+"*", 100).Result()
		if err != nil {
			return fmt.Errorf("op=ratelimiter.WarmFromRedis: %w", err)
		}
		for _, key := range keys {
			fields, err := l.mirror.HGetAll(ctx, key).Result()
			if err != nil {
				l.log.WarnContext(ctx, "rate limiter warm read failed",
					slog.String("key", key), slog.Any("error", err))
				continue
			}
			l.applyMirrored(key, fields, now)
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

func (l *BucketLimiter) applyMirrored(key string, fields map[string]string, now time.Time) {
	rest, ok := strings.CutPrefix(key, mirrorKeyPrefix)
	if !ok {
		return
	}
	scopeStr, slot, ok := strings.Cut(rest, ":")
	if !ok {
		return
	}
	tokens, err := strconv.ParseFloat(fields["tokens"], 64)
	if err != nil {
		return
	}
	cooldown, _ := strconv.ParseFloat(fields["cooldown_until"], 64)

	st := l.getScope(Scope(scopeStr))
	st.mu.Lock()
	defer st.mu.Unlock()

	var target *bucket
	switch {
	case strings.HasPrefix(slot, "app:"):
		seconds, err := strconv.Atoi(strings.TrimPrefix(slot, "app:"))
		if err != nil {
			return
		}
		period := time.Duration(seconds) * time.Second
		for _, b := range st.app {
			if b.window == period {
				target = b
				break
			}
		}
	case strings.HasPrefix(slot, "m:"):
		target = st.methods[MethodFamily(strings.TrimPrefix(slot, "m:"))]
	}
	if target == nil {
		return
	}

	if tokens < target.tokens {
		target.tokens = tokens
		target.bounds()
	}
	target.lastRefill = now
	if cooldown > 0 {
		until := time.Unix(int64(cooldown), int64((cooldown-float64(int64(cooldown)))*1e9))
		if until.After(now) && until.After(target.cooldownUntil) {
			target.cooldownUntil = until
		}
	}
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}
