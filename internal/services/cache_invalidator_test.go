package services

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/playhub-backend/internal/data/repos/testutil"
)

func TestGameUpdatedClearsEveryDependentEntry(t *testing.T) {
	h := newHarness(t)
	k := h.cache.Keys()
	game, other := uuid.New(), uuid.New()
	catA, catB, catC := uuid.New(), uuid.New(), uuid.New()

	keys := map[string]bool{
		k.Game(game):                           false,
		k.Game(other):                          true,
		k.GamesList("active", 1, 20):           false,
		k.GamesList("", 2, 50):                 false,
		k.CategoryGames(catA, "active", 1, 20): false,
		k.CategoryGames(catB, "active", 3, 20): false,
		k.CategoryGames(catC, "active", 1, 20): true,
		k.Search("snake", 1, 20):               false,
		k.Categories():                         true,
	}
	for key := range keys {
		h.cache.Set(t.Context(), key, []byte(`{}`))
	}

	// moved from A to B
	h.invalidator.GameUpdated(t.Context(), game, catB, catA)

	for key, survives := range keys {
		assert.Equal(t, survives, h.mr.Exists(key), "remote %s", key)
		_, ok := h.cache.Get(t.Context(), key)
		assert.Equal(t, survives, ok, "read %s", key)
	}
}

func TestPositionChangeClearsAllCategoryLists(t *testing.T) {
	h := newHarness(t)
	k := h.cache.Keys()
	moved := uuid.New()
	lists := []string{
		k.CategoryGames(uuid.New(), "active", 1, 20),
		k.CategoryGames(uuid.New(), "", 1, 20),
		k.GamesList("active", 1, 20),
	}
	for _, key := range append(lists, k.Game(moved), k.Categories()) {
		h.cache.Set(t.Context(), key, []byte(`{}`))
	}

	h.invalidator.GamePositionChanged(t.Context(), moved)

	for _, key := range append(lists, k.Game(moved)) {
		assert.False(t, h.mr.Exists(key), key)
	}
	assert.True(t, h.mr.Exists(k.Categories()))
}

func TestGameDeletedDropsLikeSet(t *testing.T) {
	h := newHarness(t)
	k := h.cache.Keys()
	id := uuid.New()
	_, err := h.mr.SAdd(k.LikeUsers(id), likeSetSeeded, uuid.NewString())
	require.NoError(t, err)

	h.invalidator.GameDeleted(t.Context(), id, "gone", uuid.New())
	assert.False(t, h.mr.Exists(k.LikeUsers(id)))
}

func TestInvalidatorWithoutCache(t *testing.T) {
	inv := NewCacheInvalidator(testutil.Logger(t), nil)
	assert.NotPanics(t, func() {
		inv.GameCreated(t.Context(), uuid.New(), uuid.New())
		inv.GamePositionChanged(t.Context(), uuid.New())
		inv.CategoryUpdated(t.Context(), uuid.New())
		inv.GameDeleted(t.Context(), uuid.New(), "x", uuid.New())
	})
}
