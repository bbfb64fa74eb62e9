package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/yungbote/playhub-backend/internal/cache"
	"github.com/yungbote/playhub-backend/internal/platform/logger"
)

// BatchInvalidation names every entity touched by one bulk mutation.
type BatchInvalidation struct {
	GameIDs     []uuid.UUID
	CategoryIDs []uuid.UUID
}

// CacheInvalidator clears every cache entry that can embed a mutated game or
// category. Failures are logged and swallowed; entries then expire on their TTL.
type CacheInvalidator interface {
	GameCreated(ctx context.Context, gameID, categoryID uuid.UUID)
	GameUpdated(ctx context.Context, gameID, categoryID, previousCategoryID uuid.UUID)
	GameDeleted(ctx context.Context, gameID uuid.UUID, slug string, categoryID uuid.UUID)
	GamePositionChanged(ctx context.Context, gameIDs ...uuid.UUID)
	CategoryUpdated(ctx context.Context, categoryID uuid.UUID)
	Batch(ctx context.Context, b BatchInvalidation)
}

type cacheInvalidator struct {
	log   *logger.Logger
	cache *cache.Cache
}

func NewCacheInvalidator(baseLog *logger.Logger, c *cache.Cache) CacheInvalidator {
	return &cacheInvalidator{
		log:   baseLog.With("service", "CacheInvalidator"),
		cache: c,
	}
}

func (i *cacheInvalidator) GameCreated(ctx context.Context, gameID, categoryID uuid.UUID) {
	i.Batch(ctx, BatchInvalidation{GameIDs: []uuid.UUID{gameID}, CategoryIDs: []uuid.UUID{categoryID}})
}

func (i *cacheInvalidator) GameUpdated(ctx context.Context, gameID, categoryID, previousCategoryID uuid.UUID) {
	i.Batch(ctx, BatchInvalidation{GameIDs: []uuid.UUID{gameID}, CategoryIDs: []uuid.UUID{categoryID, previousCategoryID}})
}

func (i *cacheInvalidator) GameDeleted(ctx context.Context, gameID uuid.UUID, slug string, categoryID uuid.UUID) {
	i.log.Debug("invalidating deleted game", "game_id", gameID, "slug", slug)
	i.Batch(ctx, BatchInvalidation{GameIDs: []uuid.UUID{gameID}, CategoryIDs: []uuid.UUID{categoryID}})
	if i.cache != nil {
		i.deleteKeys(ctx, i.cache.Keys().LikeUsers(gameID))
	}
}

// Position only affects ordering; category lists are ordered by position too,
// so every category list goes.
func (i *cacheInvalidator) GamePositionChanged(ctx context.Context, gameIDs ...uuid.UUID) {
	if i.cache == nil || len(gameIDs) == 0 {
		return
	}
	i.Batch(ctx, BatchInvalidation{GameIDs: gameIDs})
	i.deletePattern(ctx, "category", i.cache.Keys().AllCategoryGamesPattern())
}

func (i *cacheInvalidator) CategoryUpdated(ctx context.Context, categoryID uuid.UUID) {
	if i.cache == nil {
		return
	}
	k := i.cache.Keys()
	i.deleteKeys(ctx, k.Categories())
	if categoryID != uuid.Nil {
		i.deletePattern(ctx, "category", k.CategoryGamesPattern(categoryID))
	}
	i.deletePattern(ctx, "games_list", k.GamesListPattern())
	i.deletePattern(ctx, "search", k.SearchPattern())
}

// Batch clears the shared list and search entries once, then each entity's own entries.
func (i *cacheInvalidator) Batch(ctx context.Context, b BatchInvalidation) {
	if i.cache == nil {
		return
	}
	k := i.cache.Keys()
	i.deletePattern(ctx, "games_list", k.GamesListPattern())
	i.deletePattern(ctx, "search", k.SearchPattern())

	seen := map[uuid.UUID]struct{}{}
	for _, id := range b.CategoryIDs {
		if id == uuid.Nil {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		i.deletePattern(ctx, "category", k.CategoryGamesPattern(id))
	}

	keys := make([]string, 0, len(b.GameIDs))
	for _, id := range b.GameIDs {
		if id != uuid.Nil {
			keys = append(keys, k.Game(id))
		}
	}
	i.deleteKeys(ctx, keys...)
}

func (i *cacheInvalidator) deleteKeys(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	if err := i.cache.Delete(ctx, keys...); err != nil {
		i.log.Warn("cache invalidation failed", "keys", len(keys), "error", err)
	}
}

func (i *cacheInvalidator) deletePattern(ctx context.Context, kind, pattern string) {
	if err := i.cache.DeletePattern(ctx, pattern); err != nil {
		i.log.Warn("cache pattern invalidation failed", "kind", kind, "pattern", pattern, "error", err)
	}
}
