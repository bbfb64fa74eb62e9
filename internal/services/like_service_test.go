package services

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainagg "github.com/yungbote/playhub-backend/internal/domain/aggregates"
	"github.com/yungbote/playhub-backend/internal/likecount"
)

func TestLikeFastPathQueuesSync(t *testing.T) {
	h := newHarness(t)
	g := h.createGame(t, "Likeable", nil)
	h.publish(t, g.ID)
	user := uuid.New()

	before, err := h.likes.Count(t.Context(), g.ID, user)
	require.NoError(t, err)
	assert.False(t, before.Liked)

	view, err := h.likes.Like(t.Context(), user, g.ID)
	require.NoError(t, err)
	assert.True(t, view.Liked)
	assert.Equal(t, before.Count+1, view.Count)

	// liking twice is a no-op on the count
	view, err = h.likes.Like(t.Context(), user, g.ID)
	require.NoError(t, err)
	assert.Equal(t, before.Count+1, view.Count)

	members, err := h.mr.SMembers(h.cache.Keys().LikeUsers(g.ID))
	require.NoError(t, err)
	assert.Contains(t, members, user.String())
	assert.Contains(t, members, likeSetSeeded)

	// the database only sees the like once the sync job runs
	liked, err := h.rs.Likes.Exists(h.dbc(t), user, g.ID)
	require.NoError(t, err)
	assert.False(t, liked)

	job, err := h.jobs.GetLatestForEntity(h.dbc(t), EntityTypeGame, g.ID, JobTypeLikeSync)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, likeSyncMaxAttempts, job.MaxAttempts)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(job.Payload, &payload))
	assert.Equal(t, LikeActionLike, payload["action"])
	assert.Equal(t, user.String(), payload["user_id"])

	applied, err := ApplyLikeSync(h.dbc(t), h.rs.Likes, user, g.ID, LikeActionLike)
	require.NoError(t, err)
	assert.True(t, applied)
	applied, err = ApplyLikeSync(h.dbc(t), h.rs.Likes, user, g.ID, LikeActionLike)
	require.NoError(t, err)
	assert.False(t, applied)

	view, err = h.likes.Unlike(t.Context(), user, g.ID)
	require.NoError(t, err)
	assert.False(t, view.Liked)
	assert.Equal(t, before.Count, view.Count)
}

func TestLikeSetReseedsFromDatabase(t *testing.T) {
	h := newHarness(t)
	g := h.createGame(t, "Reseeded", nil)
	h.publish(t, g.ID)

	base, err := h.likes.Count(t.Context(), g.ID, uuid.Nil)
	require.NoError(t, err)

	fan := uuid.New()
	_, err = ApplyLikeSync(h.dbc(t), h.rs.Likes, fan, g.ID, LikeActionLike)
	require.NoError(t, err)
	h.mr.FlushAll()

	view, err := h.likes.Count(t.Context(), g.ID, fan)
	require.NoError(t, err)
	assert.True(t, view.Liked)
	assert.Equal(t, base.Count+1, view.Count)
}

func TestLikeWritesThroughWithoutRedis(t *testing.T) {
	h := newHarness(t)
	g := h.createGame(t, "Offline", nil)
	h.publish(t, g.ID)
	user := uuid.New()
	h.mr.Close()

	view, err := h.likes.Like(t.Context(), user, g.ID)
	require.NoError(t, err)
	assert.True(t, view.Liked)

	liked, err := h.rs.Likes.Exists(h.dbc(t), user, g.ID)
	require.NoError(t, err)
	assert.True(t, liked)

	job, err := h.jobs.GetLatestForEntity(h.dbc(t), EntityTypeGame, g.ID, JobTypeLikeSync)
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestLikeRejectsHiddenGames(t *testing.T) {
	h := newHarness(t)
	g := h.createGame(t, "Draft", nil)

	_, err := h.likes.Like(t.Context(), uuid.New(), g.ID)
	require.Error(t, err)
	assert.True(t, domainagg.IsCode(err, domainagg.CodeNotFound))

	_, err = h.likes.Like(t.Context(), uuid.Nil, g.ID)
	require.Error(t, err)
	assert.True(t, domainagg.IsCode(err, domainagg.CodeValidation))
}

func TestDerivedCountIsStoredOnce(t *testing.T) {
	h := newHarness(t)
	g := h.createGame(t, "Aged", nil)
	anchor := time.Now().UTC().AddDate(0, 0, -10)
	require.NoError(t, h.rs.Games.UpdateFields(h.dbc(t), g.ID, map[string]interface{}{
		"base_like_count":     40,
		"last_like_increment": anchor,
	}))
	g = h.reload(t, g.ID)

	derived, err := h.likes.DerivedCount(t.Context(), g)
	require.NoError(t, err)
	want := likecount.Derived(g.ID.String(), 40, g.LastLikeIncrement, time.Now().UTC())
	assert.Equal(t, want, derived)
	assert.GreaterOrEqual(t, derived, int64(40))

	row, err := h.rs.LikeCounts.Get(h.dbc(t), g.ID)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, derived, row.CachedLikeCount)

	counts, err := h.likes.Counts(t.Context(), []uuid.UUID{g.ID})
	require.NoError(t, err)
	assert.Equal(t, derived, counts[g.ID])
}

func TestLikeSyncOutOfOrderFollowsLikeSet(t *testing.T) {
	h := newHarness(t)
	g := h.createGame(t, "Fickle", nil)
	h.publish(t, g.ID)
	user := uuid.New()

	base, err := h.likes.Count(t.Context(), g.ID, uuid.Nil)
	require.NoError(t, err)
	_, err = h.likes.Like(t.Context(), user, g.ID)
	require.NoError(t, err)
	view, err := h.likes.Unlike(t.Context(), user, g.ID)
	require.NoError(t, err)
	require.False(t, view.Liked)

	// the unlike job lands first, then a delayed retry of the like
	applied, _, err := ReconcileLikeSync(h.dbc(t), h.rs.Likes, h.likes, user, g.ID, LikeActionUnlike)
	require.NoError(t, err)
	assert.Equal(t, LikeActionUnlike, applied)
	applied, changed, err := ReconcileLikeSync(h.dbc(t), h.rs.Likes, h.likes, user, g.ID, LikeActionLike)
	require.NoError(t, err)
	assert.Equal(t, LikeActionUnlike, applied)
	assert.False(t, changed)

	// once the set is gone it is reseeded from the database
	h.mr.FlushAll()
	view, err = h.likes.Count(t.Context(), g.ID, user)
	require.NoError(t, err)
	assert.False(t, view.Liked)
	assert.Equal(t, base.Count, view.Count)
}

func TestLikeSyncUsesQueuedActionWithoutLikeSet(t *testing.T) {
	h := newHarness(t)
	g := h.createGame(t, "Cold", nil)
	h.publish(t, g.ID)
	user := uuid.New()

	_, known := h.likes.FastPathLiked(t.Context(), g.ID, user)
	assert.False(t, known)

	applied, changed, err := ReconcileLikeSync(h.dbc(t), h.rs.Likes, h.likes, user, g.ID, LikeActionLike)
	require.NoError(t, err)
	assert.Equal(t, LikeActionLike, applied)
	assert.True(t, changed)

	_, _, err = ReconcileLikeSync(h.dbc(t), h.rs.Likes, h.likes, user, g.ID, "poke")
	require.Error(t, err)
	assert.True(t, domainagg.IsCode(err, domainagg.CodeValidation))
}

func TestPageCountsReadLikeSets(t *testing.T) {
	h := newHarness(t)
	hot := h.createGame(t, "Hot", nil)
	h.publish(t, hot.ID)
	cold := h.createGame(t, "Cold", nil)
	h.publish(t, cold.ID)

	_, err := h.likes.Like(t.Context(), uuid.New(), hot.ID)
	require.NoError(t, err)
	// cold has no like set yet; its like is only in the database
	_, err = ApplyLikeSync(h.dbc(t), h.rs.Likes, uuid.New(), cold.ID, LikeActionLike)
	require.NoError(t, err)

	counts, err := h.likes.Counts(t.Context(), []uuid.UUID{hot.ID, cold.ID})
	require.NoError(t, err)
	hotView, err := h.likes.Count(t.Context(), hot.ID, uuid.Nil)
	require.NoError(t, err)
	coldView, err := h.likes.Count(t.Context(), cold.ID, uuid.Nil)
	require.NoError(t, err)
	assert.Equal(t, hotView.Count, counts[hot.ID])
	assert.Equal(t, coldView.Count, counts[cold.ID])
}
