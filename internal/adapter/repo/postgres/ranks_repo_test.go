package postgres_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/smurfguard/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/smurfguard/internal/domain"
)

func TestRankRepo_UpsertCurrent(t *testing.T) {
	tx := &txStub{}
	pool := &poolStub{tx: tx}
	repo := postgres.NewRankRepo(pool)

	pr := domain.PlayerRank{
		PUUID:        "p1",
		QueueType:    domain.QueueTypeRankedSolo,
		Tier:         "GOLD",
		Division:     "II",
		LeaguePoints: 54,
		Wins:         30,
		Losses:       12,
		HotStreak:    true,
	}
	require.NoError(t, repo.UpsertCurrent(context.Background(), pr))

	require.Len(t, tx.execSQL, 2)
	assert.Contains(t, tx.execSQL[0], "SET is_current=FALSE")
	assert.Contains(t, tx.execSQL[1], "INSERT INTO player_ranks")
	assert.Equal(t, []any{"p1", domain.QueueTypeRankedSolo}, tx.execArgs[0])
	assert.True(t, tx.committed)
}

func TestRankRepo_UpsertCurrent_DemoteError(t *testing.T) {
	tx := &txStub{execErr: func(sql string) error {
		if strings.Contains(sql, "SET is_current=FALSE") {
			return assert.AnError
		}
		return nil
	}}
	pool := &poolStub{tx: tx}
	repo := postgres.NewRankRepo(pool)

	err := repo.UpsertCurrent(context.Background(), domain.PlayerRank{PUUID: "p1", QueueType: domain.QueueTypeRankedSolo})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "op=rank.demote_current")
	assert.False(t, tx.committed)
	assert.True(t, tx.rolledBack)
}

func TestRankRepo_Current(t *testing.T) {
	pool := &poolStub{rows: []rowStub{{scan: func(dest ...any) error {
		*(dest[0].(*int64)) = 9
		*(dest[1].(*string)) = "p1"
		*(dest[2].(*string)) = domain.QueueTypeRankedSolo
		*(dest[3].(*string)) = "PLATINUM"
		*(dest[4].(*string)) = "IV"
		*(dest[5].(*int)) = 21
		*(dest[6].(*int)) = 40
		*(dest[7].(*int)) = 10
		*(dest[10].(*bool)) = true
		*(dest[11].(*time.Time)) = time.Now().UTC()
		return nil
	}}}}
	repo := postgres.NewRankRepo(pool)

	got, err := repo.Current(context.Background(), "p1", domain.QueueTypeRankedSolo)
	require.NoError(t, err)
	assert.Equal(t, "PLATINUM", got.Tier)
	assert.True(t, got.IsCurrent)
	assert.InDelta(t, 0.8, got.WinRate(), 1e-9)
}

func TestRankRepo_Current_NotFound(t *testing.T) {
	pool := &poolStub{rows: []rowStub{{scan: func(_ ...any) error { return pgx.ErrNoRows }}}}
	repo := postgres.NewRankRepo(pool)
	_, err := repo.Current(context.Background(), "p1", domain.QueueTypeRankedFlex)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRankRepo_History(t *testing.T) {
	rows := &rowsStub{n: 2, scan: func(i int, dest ...any) error {
		*(dest[0].(*int64)) = int64(i + 1)
		*(dest[1].(*string)) = "p1"
		*(dest[2].(*string)) = domain.QueueTypeRankedSolo
		*(dest[3].(*string)) = "GOLD"
		*(dest[10].(*bool)) = i == 0
		*(dest[11].(*time.Time)) = time.Now().UTC().Add(-time.Duration(i) * time.Hour)
		return nil
	}}
	pool := &poolStub{queryRows: rows}
	repo := postgres.NewRankRepo(pool)

	got, err := repo.History(context.Background(), "p1", domain.QueueTypeRankedSolo, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].IsCurrent)
	assert.False(t, got[1].IsCurrent)
	assert.Equal(t, []any{"p1", domain.QueueTypeRankedSolo, 10}, pool.queryArgs[0])
}
