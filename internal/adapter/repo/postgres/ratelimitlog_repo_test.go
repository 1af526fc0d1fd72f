package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/smurfguard/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/smurfguard/internal/domain"
)

func TestRateLimitLogRepo_Append(t *testing.T) {
	pool := &poolStub{}
	repo := postgres.NewRateLimitLogRepo(pool)

	e := domain.RateLimitEvent{
		LimitType:  "application",
		Endpoint:   "match",
		LimitValue: "100:120",
		CountValue: "101:120",
		RetryAfter: 7 * time.Second,
		Detail:     "429 from platform host",
		OccurredAt: time.Now().UTC(),
	}
	require.NoError(t, repo.Append(context.Background(), e))
	require.Len(t, pool.execSQL, 1)
	assert.Contains(t, pool.execSQL[0], "INSERT INTO rate_limit_log")
	// retry-after travels as milliseconds
	assert.Equal(t, int64(7000), pool.execArgs[0][4])
}

func TestRateLimitLogRepo_Append_Error(t *testing.T) {
	pool := &poolStub{execErr: assert.AnError}
	repo := postgres.NewRateLimitLogRepo(pool)
	err := repo.Append(context.Background(), domain.RateLimitEvent{LimitType: "method"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "op=rate_limit_log.append")
}

func TestRateLimitLogRepo_ListSince(t *testing.T) {
	now := time.Now().UTC()
	rows := &rowsStub{n: 1, scan: func(_ int, dest ...any) error {
		*(dest[0].(*int64)) = 12
		*(dest[1].(*string)) = "application"
		*(dest[2].(*string)) = "match"
		*(dest[3].(*string)) = "100:120"
		*(dest[4].(*string)) = "101:120"
		*(dest[5].(*int64)) = 7000
		*(dest[6].(*string)) = "429 from platform host"
		*(dest[7].(*time.Time)) = now
		return nil
	}}
	pool := &poolStub{queryRows: rows}
	repo := postgres.NewRateLimitLogRepo(pool)

	since := now.Add(-time.Hour)
	got, err := repo.ListSince(context.Background(), since, 50)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 7*time.Second, got[0].RetryAfter)
	assert.Equal(t, "match", got[0].Endpoint)
	assert.Equal(t, []any{since, 50}, pool.queryArgs[0])
}

func TestSettingsRepo_APIKey(t *testing.T) {
	pool := &poolStub{rows: []rowStub{{scan: func(dest ...any) error {
		*(dest[0].(*string)) = "  RGAPI-secret  "
		return nil
	}}}}
	repo := postgres.NewSettingsRepo(pool)

	key, err := repo.APIKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "RGAPI-secret", key)
	assert.Equal(t, []any{"riot_api_key"}, pool.rowArgs[0])
}

func TestSettingsRepo_APIKey_Unset(t *testing.T) {
	pool := &poolStub{rows: []rowStub{{scan: func(_ ...any) error { return pgx.ErrNoRows }}}}
	repo := postgres.NewSettingsRepo(pool)
	_, err := repo.APIKey(context.Background())
	require.ErrorIs(t, err, domain.ErrNotFound)

	blank := &poolStub{rows: []rowStub{{scan: func(dest ...any) error {
		*(dest[0].(*string)) = "   "
		return nil
	}}}}
	_, err = postgres.NewSettingsRepo(blank).APIKey(context.Background())
	require.ErrorIs(t, err, domain.ErrNotFound)
}
