package services

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/yungbote/playhub-backend/internal/cache"
	dataagg "github.com/yungbote/playhub-backend/internal/data/aggregates"
	"github.com/yungbote/playhub-backend/internal/data/repos"
	"github.com/yungbote/playhub-backend/internal/data/repos/testutil"
	types "github.com/yungbote/playhub-backend/internal/domain"
	"github.com/yungbote/playhub-backend/internal/platform/blobstore"
	"github.com/yungbote/playhub-backend/internal/platform/dbctx"
	"github.com/yungbote/playhub-backend/internal/platform/mq"
)

// harness wires the services against a private SQLite database, a miniredis
// backed cache and in-memory object storage.
type harness struct {
	db    *gorm.DB
	rs    repos.Set
	mr    *miniredis.Miniredis
	cache *cache.Cache
	store *blobstore.Store

	invalidator CacheInvalidator
	categories  CategoryService
	allocator   PositionAllocator
	jobs        JobService
	likes       LikeService
	intake      GameIntakeService
	games       GameService

	defaultCategory *types.Category
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := testutil.Logger(t)
	db := testutil.SQLite(t)
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	c, err := cache.New(log, cache.DefaultConfig(), rdb, nil)
	require.NoError(t, err)
	t.Cleanup(c.Close)

	h := &harness{db: db, rs: repos.NewSet(db, log), mr: mr, cache: c, store: blobstore.NewMemory(log)}
	notify := NewJobNotifier(nil)
	h.invalidator = NewCacheInvalidator(log, c)
	h.categories = NewCategoryService(log, h.rs.Categories, c, h.invalidator)
	h.allocator = NewPositionAllocator(log, h.rs.Games, h.rs.Positions)
	h.jobs = NewJobService(db, log, h.rs.JobRuns, notify, 3, nil, "")
	h.likes = NewLikeService(log, h.rs.Games, h.rs.Likes, h.rs.LikeCounts, c, h.jobs, notify, 0)
	tx := dataagg.NewGormTxRunner(db)
	h.intake = NewGameIntakeService(log, tx, h.rs.Games, h.rs.JobRuns, h.categories, h.allocator, h.jobs, h.invalidator, notify, h.store)
	h.games = NewGameService(log, tx, h.rs, h.categories, h.allocator, h.jobs, h.likes, c, h.invalidator, notify,
		NewGameEventPublisher(log, mq.NewNoop()), h.store)

	h.defaultCategory, err = h.categories.EnsureDefault(t.Context(), "")
	require.NoError(t, err)
	return h
}

func (h *harness) dbc(t *testing.T) dbctx.Context {
	return dbctx.Context{Ctx: t.Context(), Tx: h.db}
}

// createGame runs the intake path and returns the stored row.
func (h *harness) createGame(t *testing.T, title string, position *int) *types.Game {
	t.Helper()
	res, err := h.intake.Create(t.Context(), CreateGameRequest{
		Title:      title,
		Position:   position,
		ArchiveKey: "archives/2026/01/01/" + uuid.NewString() + ".zip",
	}, uuid.New())
	require.NoError(t, err)
	return h.reload(t, res.Game.ID)
}

func (h *harness) reload(t *testing.T, id uuid.UUID) *types.Game {
	t.Helper()
	g, err := h.rs.Games.GetByID(h.dbc(t), id)
	require.NoError(t, err)
	require.NotNil(t, g)
	return g
}

// publish marks a game as processed and visible, the way a finished publish job leaves it.
func (h *harness) publish(t *testing.T, id uuid.UUID) {
	t.Helper()
	require.NoError(t, h.rs.Games.UpdateFields(h.dbc(t), id, map[string]interface{}{
		"status":            types.GameStatusActive,
		"processing_status": types.ProcessingCompleted,
	}))
	g := h.reload(t, id)
	h.invalidator.GameUpdated(t.Context(), g.ID, g.CategoryID, g.CategoryID)
}

func positionOf(g *types.Game) int {
	if g == nil || g.Position == nil {
		return 0
	}
	return *g.Position
}
