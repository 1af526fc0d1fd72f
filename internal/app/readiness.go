package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/smurfguard/internal/domain"
	"github.com/fairyhunter13/smurfguard/internal/usecase"
)

// RedisPingResult is the minimal return type of a Redis client's Ping.
type RedisPingResult interface{ Err() error }

// RedisClient is the minimal Redis surface the readiness probe needs.
type RedisClient interface {
	Ping(ctx context.Context) RedisPingResult
}

// redisPinger adapts a Redis client's status-command Ping to the readiness
// probe shape. The database pool needs no adapter; its Ping already matches.
type redisPinger struct{ client RedisClient }

func (p redisPinger) Ping(ctx context.Context) error {
	if p.client == nil {
		return fmt.Errorf("redis not configured")
	}
	return p.client.Ping(ctx).Err()
}

type goRedisAdapter struct{ c *redis.Client }

func (a goRedisAdapter) Ping(ctx context.Context) RedisPingResult { return a.c.Ping(ctx) }

// NewRedisPinger wraps a go-redis client for the readiness service. A nil
// client yields a nil probe, which the service reports as the limiter mirror
// being disabled rather than down.
func NewRedisPinger(client *redis.Client) usecase.Pinger {
	if client == nil {
		return nil
	}
	return redisPinger{client: goRedisAdapter{c: client}}
}

// keyFallback layers the environment key under the admin settings row with
// the same resolution order the platform client uses, so readiness reports
// the key the client will actually send.
type keyFallback struct {
	store    domain.SettingsStore
	fallback string
}

func (k keyFallback) APIKey(ctx domain.Context) (string, error) {
	if k.store != nil {
		key, err := k.store.APIKey(ctx)
		switch {
		case err == nil && key != "":
			return key, nil
		case err != nil && !domain.IsNotFound(err):
			return "", err
		}
	}
	if k.fallback != "" {
		return k.fallback, nil
	}
	return "", fmt.Errorf("op=readiness.api_key: %w", domain.ErrNotFound)
}

// SettingsWithFallback returns a settings view whose APIKey falls back to
// the given environment value when the stored row is missing or empty.
func SettingsWithFallback(store domain.SettingsStore, fallback string) domain.SettingsStore {
	return keyFallback{store: store, fallback: fallback}
}
