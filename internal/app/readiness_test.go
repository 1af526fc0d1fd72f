package app

import (
	"context"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/smurfguard/internal/domain"
)

func TestNewRedisPingerNilClient(t *testing.T) {
	if p := NewRedisPinger(nil); p != nil {
		t.Fatalf("expected nil pinger for nil client")
	}
}

func TestRedisPingerAgainstMiniredis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	p := NewRedisPinger(client)
	if p == nil {
		t.Fatalf("expected a pinger for a live client")
	}
	if err := p.Ping(context.Background()); err != nil {
		t.Fatalf("ping against live miniredis: %v", err)
	}

	mr.Close()
	if err := p.Ping(context.Background()); err == nil {
		t.Fatalf("expected ping failure after redis went away")
	}
}

type settingsFake struct {
	key string
	err error
}

func (s settingsFake) APIKey(domain.Context) (string, error) { return s.key, s.err }

func TestSettingsWithFallback(t *testing.T) {
	ctx := context.Background()

	// stored row wins
	key, err := SettingsWithFallback(settingsFake{key: "RGAPI-db"}, "RGAPI-env").APIKey(ctx)
	if err != nil || key != "RGAPI-db" {
		t.Fatalf("want stored key, got %q err=%v", key, err)
	}

	// missing row falls back to the environment value
	missing := settingsFake{err: fmt.Errorf("op=settings.api_key: %w", domain.ErrNotFound)}
	key, err = SettingsWithFallback(missing, "RGAPI-env").APIKey(ctx)
	if err != nil || key != "RGAPI-env" {
		t.Fatalf("want env fallback, got %q err=%v", key, err)
	}

	// nothing anywhere stays a not-found
	if _, err = SettingsWithFallback(missing, "").APIKey(ctx); !domain.IsNotFound(err) {
		t.Fatalf("want not-found without any key, got %v", err)
	}

	// a real store failure is not masked by the fallback
	broken := settingsFake{err: fmt.Errorf("op=settings.api_key: connection reset")}
	if _, err = SettingsWithFallback(broken, "RGAPI-env").APIKey(ctx); err == nil {
		t.Fatalf("want store failure surfaced")
	}
}
