package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/playhub-backend/internal/cache"
	dataagg "github.com/yungbote/playhub-backend/internal/data/aggregates"
	"github.com/yungbote/playhub-backend/internal/data/repos"
	types "github.com/yungbote/playhub-backend/internal/domain"
	domainagg "github.com/yungbote/playhub-backend/internal/domain/aggregates"
	"github.com/yungbote/playhub-backend/internal/likecount"
	"github.com/yungbote/playhub-backend/internal/platform/dbctx"
	"github.com/yungbote/playhub-backend/internal/platform/logger"
)

const (
	LikeActionLike   = "like"
	LikeActionUnlike = "unlike"

	// likeSetSeeded marks a like set that was filled from the database; it is
	// never a user id, so the explicit count is SCARD - 1.
	likeSetSeeded = "_seeded"

	likeSyncMaxAttempts = 5
)

// LikeView is what a client sees for one game.
type LikeView struct {
	GameID uuid.UUID `json:"gameId"`
	Count  int64     `json:"likeCount"`
	Liked  bool      `json:"liked"`
}

type LikeService interface {
	Like(ctx context.Context, userID, gameID uuid.UUID) (*LikeView, error)
	Unlike(ctx context.Context, userID, gameID uuid.UUID) (*LikeView, error)
	// Count reads the fast path; viewer may be uuid.Nil for anonymous reads.
	Count(ctx context.Context, gameID, viewer uuid.UUID) (*LikeView, error)
	// Counts returns like totals for a page of games. Explicit likes come from
	// the like sets, or the database for games whose set is missing.
	Counts(ctx context.Context, gameIDs []uuid.UUID) (map[uuid.UUID]int64, error)
	// FastPathLiked reports the user's like as the redis set holds it. known is
	// false when the set is absent or redis cannot answer.
	FastPathLiked(ctx context.Context, gameID, userID uuid.UUID) (liked, known bool)
	// DerivedCount is base plus the day walk, read from like_count_cache and
	// computed (and stored) on a miss.
	DerivedCount(ctx context.Context, game *types.Game) (int64, error)
}

type likeService struct {
	log        *logger.Logger
	games      repos.GameRepo
	likes      repos.ExplicitLikeRepo
	likeCounts repos.LikeCountCacheRepo
	cache      *cache.Cache
	jobs       JobService
	notify     JobNotifier
	setTTL     time.Duration
	now        func() time.Time
}

func NewLikeService(
	baseLog *logger.Logger,
	games repos.GameRepo,
	likes repos.ExplicitLikeRepo,
	likeCounts repos.LikeCountCacheRepo,
	c *cache.Cache,
	jobs JobService,
	notify JobNotifier,
	setTTL time.Duration,
) LikeService {
	if setTTL <= 0 {
		setTTL = 7 * 24 * time.Hour
	}
	return &likeService{
		log:        baseLog.With("service", "LikeService"),
		games:      games,
		likes:      likes,
		likeCounts: likeCounts,
		cache:      c,
		jobs:       jobs,
		notify:     notify,
		setTTL:     setTTL,
		now:        time.Now,
	}
}

func (s *likeService) Like(ctx context.Context, userID, gameID uuid.UUID) (*LikeView, error) {
	return s.toggle(ctx, userID, gameID, LikeActionLike)
}

func (s *likeService) Unlike(ctx context.Context, userID, gameID uuid.UUID) (*LikeView, error) {
	return s.toggle(ctx, userID, gameID, LikeActionUnlike)
}

func (s *likeService) toggle(ctx context.Context, userID, gameID uuid.UUID, action string) (*LikeView, error) {
	op := action + "_game"
	if userID == uuid.Nil {
		return nil, domainagg.Validation(op, "missing user")
	}
	game, err := s.games.GetByID(dbctx.Background(ctx), gameID)
	if err != nil {
		return nil, dataagg.MapError(op, err)
	}
	if game == nil || !game.IsActive() {
		return nil, domainagg.NotFound(op, "game not found")
	}

	fast := s.applyFastPath(ctx, game.ID, userID, action)
	if !fast {
		// no fast path: write through so the like is not lost
		if err := s.applyToDB(ctx, userID, game.ID, action); err != nil {
			return nil, err
		}
	} else {
		payload := map[string]any{
			"user_id": userID.String(),
			"game_id": game.ID.String(),
			"action":  action,
		}
		if _, err := s.jobs.Enqueue(dbctx.Background(ctx), userID, JobTypeLikeSync, EntityTypeGame, &game.ID, payload, WithMaxAttempts(likeSyncMaxAttempts)); err != nil {
			s.log.Warn("like sync enqueue failed; writing through", "game_id", game.ID, "action", action, "error", err)
			if err := s.applyToDB(ctx, userID, game.ID, action); err != nil {
				return nil, err
			}
		}
	}

	view, err := s.countFor(ctx, game, userID)
	if err != nil {
		return nil, err
	}
	if s.notify != nil {
		s.notify.GameLikeChanged(game.ID, view.Count)
	}
	return view, nil
}

// ApplyLikeSync is the idempotent database write behind the fast path.
func ApplyLikeSync(dbc dbctx.Context, likes repos.ExplicitLikeRepo, userID, gameID uuid.UUID, action string) (bool, error) {
	switch action {
	case LikeActionLike:
		return likes.InsertIfAbsent(dbc, userID, gameID)
	case LikeActionUnlike:
		return likes.Delete(dbc, userID, gameID)
	default:
		return false, domainagg.Validation("like_sync", "unknown like action "+action)
	}
}

// ReconcileLikeSync persists the user's current like state. Sync jobs can run
// out of order, so when the like set can answer it decides; the queued action
// is only used when it cannot.
func ReconcileLikeSync(dbc dbctx.Context, likes repos.ExplicitLikeRepo, state LikeService, userID, gameID uuid.UUID, action string) (string, bool, error) {
	if action != LikeActionLike && action != LikeActionUnlike {
		return action, false, domainagg.Validation("like_sync", "unknown like action "+action)
	}
	if state != nil {
		if liked, known := state.FastPathLiked(dbc.Ctx, gameID, userID); known {
			action = LikeActionUnlike
			if liked {
				action = LikeActionLike
			}
		}
	}
	changed, err := ApplyLikeSync(dbc, likes, userID, gameID, action)
	return action, changed, err
}

func (s *likeService) FastPathLiked(ctx context.Context, gameID, userID uuid.UUID) (bool, bool) {
	if s.cache == nil || userID == uuid.Nil {
		return false, false
	}
	key := s.cache.Keys().LikeUsers(gameID)
	var exists, liked bool
	err := s.cache.Do(ctx, "like_set_member", func(ctx context.Context, rdb *goredis.Client) error {
		pipe := rdb.Pipeline()
		existsCmd := pipe.Exists(ctx, key)
		memberCmd := pipe.SIsMember(ctx, key, userID.String())
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
		exists = existsCmd.Val() > 0
		liked = memberCmd.Val()
		return nil
	})
	if err != nil || !exists {
		return false, false
	}
	return liked, true
}

func (s *likeService) applyToDB(ctx context.Context, userID, gameID uuid.UUID, action string) error {
	if _, err := ApplyLikeSync(dbctx.Background(ctx), s.likes, userID, gameID, action); err != nil {
		return dataagg.MapError(action+"_game", err)
	}
	return nil
}

// applyFastPath updates the redis like set, seeding it from the database first.
// It reports false when the remote tier could not take the write.
func (s *likeService) applyFastPath(ctx context.Context, gameID, userID uuid.UUID, action string) bool {
	if s.cache == nil {
		return false
	}
	key := s.cache.Keys().LikeUsers(gameID)
	if err := s.seed(ctx, gameID, key); err != nil {
		return false
	}
	err := s.cache.Do(ctx, "like_set", func(ctx context.Context, rdb *goredis.Client) error {
		pipe := rdb.TxPipeline()
		if action == LikeActionLike {
			pipe.SAdd(ctx, key, userID.String())
		} else {
			pipe.SRem(ctx, key, userID.String())
		}
		pipe.Expire(ctx, key, s.setTTL)
		_, err := pipe.Exec(ctx)
		return err
	})
	if err != nil {
		if !errors.Is(err, cache.ErrUnavailable) {
			s.log.Warn("like set update failed", "game_id", gameID, "error", err)
		}
		return false
	}
	return true
}

func (s *likeService) seed(ctx context.Context, gameID uuid.UUID, key string) error {
	var exists int64
	err := s.cache.Do(ctx, "like_set_exists", func(ctx context.Context, rdb *goredis.Client) error {
		n, err := rdb.Exists(ctx, key).Result()
		exists = n
		return err
	})
	if err != nil {
		return err
	}
	if exists > 0 {
		return nil
	}
	userIDs, err := s.likes.ListUserIDsByGame(dbctx.Background(ctx), gameID)
	if err != nil {
		return err
	}
	members := make([]interface{}, 0, len(userIDs)+1)
	members = append(members, likeSetSeeded)
	for _, id := range userIDs {
		members = append(members, id.String())
	}
	// SADD unions with anything a concurrent seeder or liker already wrote
	return s.cache.Do(ctx, "like_set_seed", func(ctx context.Context, rdb *goredis.Client) error {
		pipe := rdb.TxPipeline()
		pipe.SAdd(ctx, key, members...)
		pipe.Expire(ctx, key, s.setTTL)
		_, err := pipe.Exec(ctx)
		return err
	})
}

func (s *likeService) Count(ctx context.Context, gameID, viewer uuid.UUID) (*LikeView, error) {
	dbc := dbctx.Background(ctx)
	row, err := s.likeCounts.Get(dbc, gameID)
	if err != nil {
		return nil, dataagg.MapError("count_likes", err)
	}
	var derived int64
	if row != nil {
		derived = row.CachedLikeCount
	} else {
		game, err := s.games.GetByID(dbc, gameID)
		if err != nil {
			return nil, dataagg.MapError("count_likes", err)
		}
		if game == nil {
			return nil, domainagg.NotFound("count_likes", "game not found")
		}
		derived = s.computeAndStore(ctx, game)
	}
	explicit, liked, err := s.explicit(ctx, gameID, viewer)
	if err != nil {
		return nil, err
	}
	return &LikeView{GameID: gameID, Count: derived + explicit, Liked: liked}, nil
}

func (s *likeService) countFor(ctx context.Context, game *types.Game, viewer uuid.UUID) (*LikeView, error) {
	derived, err := s.DerivedCount(ctx, game)
	if err != nil {
		return nil, err
	}
	explicit, liked, err := s.explicit(ctx, game.ID, viewer)
	if err != nil {
		return nil, err
	}
	return &LikeView{GameID: game.ID, Count: derived + explicit, Liked: liked}, nil
}

// explicit reads the like set; when redis cannot answer the database does.
func (s *likeService) explicit(ctx context.Context, gameID, viewer uuid.UUID) (int64, bool, error) {
	if s.cache != nil {
		key := s.cache.Keys().LikeUsers(gameID)
		if err := s.seed(ctx, gameID, key); err == nil {
			var (
				card  int64
				liked bool
			)
			err := s.cache.Do(ctx, "like_set_read", func(ctx context.Context, rdb *goredis.Client) error {
				pipe := rdb.Pipeline()
				cardCmd := pipe.SCard(ctx, key)
				var memberCmd *goredis.BoolCmd
				if viewer != uuid.Nil {
					memberCmd = pipe.SIsMember(ctx, key, viewer.String())
				}
				if _, err := pipe.Exec(ctx); err != nil {
					return err
				}
				card = cardCmd.Val()
				if memberCmd != nil {
					liked = memberCmd.Val()
				}
				return nil
			})
			if err == nil && card > 0 {
				return card - 1, liked, nil
			}
		}
	}
	dbc := dbctx.Background(ctx)
	n, err := s.likes.CountByGame(dbc, gameID)
	if err != nil {
		return 0, false, dataagg.MapError("count_likes", err)
	}
	liked := false
	if viewer != uuid.Nil {
		if liked, err = s.likes.Exists(dbc, viewer, gameID); err != nil {
			return 0, false, dataagg.MapError("count_likes", err)
		}
	}
	return n, liked, nil
}

func (s *likeService) DerivedCount(ctx context.Context, game *types.Game) (int64, error) {
	dbc := dbctx.Background(ctx)
	row, err := s.likeCounts.Get(dbc, game.ID)
	if err != nil {
		return 0, dataagg.MapError("derived_like_count", err)
	}
	if row != nil {
		return row.CachedLikeCount, nil
	}
	return s.computeAndStore(ctx, game), nil
}

func (s *likeService) computeAndStore(ctx context.Context, game *types.Game) int64 {
	now := s.now().UTC()
	derived := likecount.Derived(game.ID.String(), game.BaseLikeCount, game.LastLikeIncrement, now)
	row := &types.LikeCountCache{
		GameID:          game.ID,
		CachedLikeCount: derived,
		ComputedFor:     now.Format("2006-01-02"),
		UpdatedAt:       now,
	}
	if err := s.likeCounts.Upsert(dbctx.Background(ctx), row); err != nil {
		s.log.Warn("store lazily computed like count", "game_id", game.ID, "error", err)
	}
	return derived
}

func (s *likeService) Counts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]int64, error) {
	out := make(map[uuid.UUID]int64, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	dbc := dbctx.Background(ctx)
	rows, err := s.likeCounts.GetByGameIDs(dbc, ids)
	if err != nil {
		return nil, dataagg.MapError("count_likes", err)
	}
	explicit, err := s.explicitCounts(ctx, ids)
	if err != nil {
		return nil, err
	}
	var missing []uuid.UUID
	for _, id := range ids {
		if row, ok := rows[id]; ok && row != nil {
			out[id] = row.CachedLikeCount + explicit[id]
		} else {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return out, nil
	}
	// page items may come from the read cache without the like anchor; reload them
	fresh, err := s.games.GetByIDs(dbc, missing)
	if err != nil {
		return nil, dataagg.MapError("count_likes", err)
	}
	for _, g := range fresh {
		out[g.ID] = s.computeAndStore(ctx, g) + explicit[g.ID]
	}
	return out, nil
}

// explicitCounts reads SCARD for every like set on the page and counts the
// rest in the database.
func (s *likeService) explicitCounts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]int64, error) {
	out := make(map[uuid.UUID]int64, len(ids))
	remaining := ids
	if s.cache != nil {
		cards := make([]*goredis.IntCmd, len(ids))
		err := s.cache.Do(ctx, "like_set_cards", func(ctx context.Context, rdb *goredis.Client) error {
			pipe := rdb.Pipeline()
			for i, id := range ids {
				cards[i] = pipe.SCard(ctx, s.cache.Keys().LikeUsers(id))
			}
			_, err := pipe.Exec(ctx)
			return err
		})
		if err == nil {
			remaining = nil
			for i, id := range ids {
				// an absent set reads 0; a seeded one always holds the sentinel
				if n := cards[i].Val(); n > 0 {
					out[id] = n - 1
				} else {
					remaining = append(remaining, id)
				}
			}
		}
	}
	if len(remaining) == 0 {
		return out, nil
	}
	counted, err := s.likes.CountByGames(dbctx.Background(ctx), remaining)
	if err != nil {
		return nil, dataagg.MapError("count_likes", err)
	}
	for _, id := range remaining {
		out[id] = counted[id]
	}
	return out, nil
}
