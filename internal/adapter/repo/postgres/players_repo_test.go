package postgres_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/smurfguard/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/smurfguard/internal/domain"
)

func TestPlayerRepo_Upsert(t *testing.T) {
	pool := &poolStub{}
	repo := postgres.NewPlayerRepo(pool)
	ctx := context.Background()

	p := domain.Player{
		PUUID:        "puuid-1",
		SummonerID:   "sum-1",
		GameName:     "Faker",
		TagLine:      "KR1",
		Platform:     "kr",
		AccountLevel: 44,
		IsTracked:    true,
		IsActive:     true,
	}
	require.NoError(t, repo.Upsert(ctx, p))
	require.Len(t, pool.execSQL, 1)
	assert.Contains(t, pool.execSQL[0], "ON CONFLICT (puuid)")
	assert.Contains(t, pool.execSQL[0], "players.is_tracked OR EXCLUDED.is_tracked")
	assert.Contains(t, pool.execSQL[0], "GREATEST(players.account_level, EXCLUDED.account_level)")
	assert.Equal(t, "puuid-1", pool.execArgs[0][0])
	assert.Equal(t, true, pool.execArgs[0][6])

	pool.execErr = assert.AnError
	err := repo.Upsert(ctx, p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "op=player.upsert")
}

func TestPlayerRepo_Get(t *testing.T) {
	now := time.Now().UTC()
	pool := &poolStub{rows: []rowStub{{scan: func(dest ...any) error {
		*(dest[0].(*string)) = "puuid-1"
		*(dest[1].(*string)) = "sum-1"
		*(dest[2].(*string)) = "Faker"
		*(dest[3].(*string)) = "KR1"
		*(dest[4].(*string)) = "kr"
		*(dest[5].(*int)) = 44
		*(dest[6].(*bool)) = true
		*(dest[7].(*bool)) = false
		*(dest[8].(*bool)) = true
		*(dest[9].(*bool)) = false
		*(dest[10].(**time.Time)) = nil
		*(dest[11].(*time.Time)) = now
		*(dest[12].(*time.Time)) = now
		*(dest[13].(*time.Time)) = now
		return nil
	}}}}
	repo := postgres.NewPlayerRepo(pool)

	got, err := repo.Get(context.Background(), "puuid-1")
	require.NoError(t, err)
	assert.Equal(t, "Faker#KR1", got.RiotID())
	assert.Equal(t, 44, got.AccountLevel)
	assert.True(t, got.IsTracked)
	assert.Nil(t, got.LastBanCheck)
}

func TestPlayerRepo_Get_NotFound(t *testing.T) {
	pool := &poolStub{rows: []rowStub{{scan: func(_ ...any) error { return pgx.ErrNoRows }}}}
	repo := postgres.NewPlayerRepo(pool)
	_, err := repo.Get(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
	assert.Contains(t, err.Error(), "op=player.get")
}

func TestPlayerRepo_GetByRiotID(t *testing.T) {
	pool := &poolStub{rows: []rowStub{{scan: func(dest ...any) error {
		*(dest[0].(*string)) = "puuid-1"
		*(dest[2].(*string)) = "Faker"
		*(dest[3].(*string)) = "KR1"
		return nil
	}}}}
	repo := postgres.NewPlayerRepo(pool)

	got, err := repo.GetByRiotID(context.Background(), "faker", "kr1")
	require.NoError(t, err)
	assert.Equal(t, "puuid-1", got.PUUID)
	assert.Contains(t, pool.rowSQL[0], "LOWER(game_name)=LOWER($1)")
	assert.Equal(t, []any{"faker", "kr1"}, pool.rowArgs[0])

	pool.rows = []rowStub{{scan: func(_ ...any) error { return pgx.ErrNoRows }}}
	_, err = repo.GetByRiotID(context.Background(), "nobody", "na1")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPlayerRepo_ListTracked(t *testing.T) {
	now := time.Now().UTC()
	rows := &rowsStub{n: 2, scan: func(i int, dest ...any) error {
		*(dest[0].(*string)) = fmt.Sprintf("puuid-%d", i+1)
		*(dest[6].(*bool)) = true
		*(dest[8].(*bool)) = true
		*(dest[11].(*time.Time)) = now
		*(dest[12].(*time.Time)) = now
		*(dest[13].(*time.Time)) = now
		return nil
	}}
	pool := &poolStub{queryRows: rows}
	repo := postgres.NewPlayerRepo(pool)

	got, err := repo.ListTracked(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "puuid-1", got[0].PUUID)
	assert.Equal(t, "puuid-2", got[1].PUUID)
	assert.True(t, rows.closed)
	assert.Contains(t, pool.querySQL[0], "is_tracked AND is_active")
	assert.Equal(t, []any{10}, pool.queryArgs[0])
}

func TestPlayerRepo_ListTracked_QueryError(t *testing.T) {
	pool := &poolStub{queryErr: assert.AnError}
	repo := postgres.NewPlayerRepo(pool)
	_, err := repo.ListTracked(context.Background(), 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "op=player.list_tracked")
}

func TestPlayerRepo_WorkingSetQueries(t *testing.T) {
	pool := &poolStub{queryRows: &rowsStub{}}
	repo := postgres.NewPlayerRepo(pool)
	ctx := context.Background()
	cutoff := time.Now().UTC().Add(-7 * 24 * time.Hour)

	_, err := repo.ListUnderFetched(ctx, 30, 50)
	require.NoError(t, err)
	_, err = repo.ListForAnalysis(ctx, 10, cutoff, 25)
	require.NoError(t, err)
	_, err = repo.ListForBanCheck(ctx, cutoff, 25)
	require.NoError(t, err)

	require.Len(t, pool.querySQL, 3)
	assert.Contains(t, pool.querySQL[0], "COUNT(*) FROM match_participants")
	assert.Equal(t, []any{30, 50}, pool.queryArgs[0])
	assert.Contains(t, pool.querySQL[1], "NOT EXISTS")
	assert.Equal(t, []any{10, cutoff, 25}, pool.queryArgs[1])
	assert.Contains(t, pool.querySQL[2], "confidence IN ('high','medium')")
	assert.Contains(t, pool.querySQL[2], "NOT p.is_banned")
	assert.Equal(t, []any{cutoff, 25}, pool.queryArgs[2])
}

func TestPlayerRepo_MarkAnalyzed(t *testing.T) {
	pool := &poolStub{}
	repo := postgres.NewPlayerRepo(pool)
	at := time.Date(2025, 7, 1, 4, 0, 0, 0, time.UTC)
	require.NoError(t, repo.MarkAnalyzed(context.Background(), "puuid-1", at))
	require.Len(t, pool.execSQL, 1)
	assert.Contains(t, pool.execSQL[0], "is_analyzed=TRUE")
	assert.Equal(t, []any{"puuid-1", at}, pool.execArgs[0])
}

func TestPlayerRepo_MarkBanCheck(t *testing.T) {
	pool := &poolStub{}
	repo := postgres.NewPlayerRepo(pool)
	at := time.Date(2025, 7, 1, 4, 0, 0, 0, time.UTC)

	require.NoError(t, repo.MarkBanCheck(context.Background(), "puuid-1", true, at))
	require.Len(t, pool.execSQL, 1)
	// a confirmed ban also deactivates the player
	assert.Contains(t, pool.execSQL[0], "CASE WHEN $2 THEN FALSE ELSE is_active END")
	assert.Equal(t, []any{"puuid-1", true, at}, pool.execArgs[0])

	require.NoError(t, repo.MarkBanCheck(context.Background(), "puuid-2", false, at))
	assert.Equal(t, []any{"puuid-2", false, at}, pool.execArgs[1])
}
