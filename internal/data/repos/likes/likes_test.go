package likes

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/playhub-backend/internal/data/repos/testutil"
	types "github.com/yungbote/playhub-backend/internal/domain"
)

func TestExplicitLikeRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	dbc := testutil.DBC(t, tx)
	repo := NewExplicitLikeRepo(db, testutil.Logger(t))

	gameID, otherGame := uuid.New(), uuid.New()
	alice, bob := uuid.New(), uuid.New()

	inserted, err := repo.InsertIfAbsent(dbc, alice, gameID)
	require.NoError(t, err)
	assert.True(t, inserted)
	inserted, err = repo.InsertIfAbsent(dbc, alice, gameID)
	require.NoError(t, err)
	assert.False(t, inserted)
	_, err = repo.InsertIfAbsent(dbc, bob, gameID)
	require.NoError(t, err)
	_, err = repo.InsertIfAbsent(dbc, bob, otherGame)
	require.NoError(t, err)

	n, err := repo.CountByGame(dbc, gameID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	counts, err := repo.CountByGames(dbc, []uuid.UUID{gameID, otherGame, uuid.New()})
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[gameID])
	assert.Equal(t, int64(1), counts[otherGame])
	assert.Len(t, counts, 2)

	users, err := repo.ListUserIDsByGame(dbc, gameID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{alice, bob}, users)

	removed, err := repo.Delete(dbc, alice, gameID)
	require.NoError(t, err)
	assert.True(t, removed)
	exists, err := repo.Exists(dbc, alice, gameID)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestLikeCountCacheRepoUpsert(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	dbc := testutil.DBC(t, tx)
	repo := NewLikeCountCacheRepo(db, testutil.Logger(t))
	gameID := uuid.New()

	miss, err := repo.Get(dbc, gameID)
	require.NoError(t, err)
	assert.Nil(t, miss)

	require.NoError(t, repo.Upsert(dbc, &types.LikeCountCache{GameID: gameID, CachedLikeCount: 107, ComputedFor: "2024-01-01"}))
	require.NoError(t, repo.Upsert(dbc, &types.LikeCountCache{GameID: gameID, CachedLikeCount: 121, ComputedFor: "2024-01-08"}))

	got, err := repo.Get(dbc, gameID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(121), got.CachedLikeCount)
	assert.Equal(t, "2024-01-08", got.ComputedFor)

	byIDs, err := repo.GetByGameIDs(dbc, []uuid.UUID{gameID, uuid.New()})
	require.NoError(t, err)
	assert.Len(t, byIDs, 1)

	require.NoError(t, repo.Delete(dbc, gameID))
	gone, err := repo.Get(dbc, gameID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}
