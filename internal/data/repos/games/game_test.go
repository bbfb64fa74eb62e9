package games

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/yungbote/playhub-backend/internal/data/repos/testutil"
	types "github.com/yungbote/playhub-backend/internal/domain"
)

func TestGameRepoListOrdersPositionedFirst(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	dbc := testutil.DBC(t, tx)
	repo := NewGameRepo(db, testutil.Logger(t))

	cat := testutil.SeedCategory(t, dbc.Ctx, tx, "Puzzle", true)
	base := time.Now().UTC().Add(-time.Hour)
	mk := func(title string, pos *int, age time.Duration) *types.Game {
		g := &types.Game{
			Title:            title,
			Slug:             title,
			CategoryID:       cat.ID,
			Status:           types.GameStatusActive,
			ProcessingStatus: types.ProcessingCompleted,
			Position:         pos,
			CreatedAt:        base.Add(age),
		}
		require.NoError(t, repo.Create(dbc, g))
		return g
	}
	loose2 := mk("loose-two", nil, 2*time.Minute)
	second := mk("second", testutil.PtrInt(2), 3*time.Minute)
	loose1 := mk("loose-one", nil, time.Minute)
	first := mk("first", testutil.PtrInt(1), 4*time.Minute)

	out, total, err := repo.List(dbc, ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
	require.Len(t, out, 4)
	assert.Equal(t, []uuid.UUID{first.ID, second.ID, loose1.ID, loose2.ID},
		[]uuid.UUID{out[0].ID, out[1].ID, out[2].ID, out[3].ID})

	page, total, err := repo.List(dbc, ListFilter{Offset: 1, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
	require.Len(t, page, 2)
	assert.Equal(t, second.ID, page[0].ID)

	found, total, err := repo.List(dbc, ListFilter{Query: "LOOSE"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, found, 2)
}

func TestGameRepoPositionsAndSlugs(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	dbc := testutil.DBC(t, tx)
	repo := NewGameRepo(db, testutil.Logger(t))
	cat := testutil.SeedCategory(t, dbc.Ctx, tx, "Arcade", true)

	max, err := repo.MaxPosition(dbc)
	require.NoError(t, err)
	assert.Equal(t, 0, max)

	g := testutil.SeedGame(t, dbc.Ctx, tx, cat.ID, "Snake", testutil.PtrInt(3))
	max, err = repo.MaxPosition(dbc)
	require.NoError(t, err)
	assert.Equal(t, 3, max)

	at, err := repo.GetByPosition(dbc, 3)
	require.NoError(t, err)
	require.NotNil(t, at)
	assert.Equal(t, g.ID, at.ID)

	missing, err := repo.GetByPosition(dbc, 7)
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, repo.SetPosition(dbc, g.ID, nil))
	reloaded, err := repo.GetByID(dbc, g.ID)
	require.NoError(t, err)
	assert.Nil(t, reloaded.Position)

	for _, slug := range []string{"snake-game", "snake-game-2", "snakes"} {
		require.NoError(t, repo.Create(dbc, &types.Game{
			Title: slug, Slug: slug, CategoryID: cat.ID,
			Status: types.GameStatusDisabled, ProcessingStatus: types.ProcessingPending,
		}))
	}
	slugs, err := repo.SlugsWithPrefix(dbc, "snake-game")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"snake-game", "snake-game-2"}, slugs)
}

func TestGameRepoStatusGuards(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	dbc := testutil.DBC(t, tx)
	repo := NewGameRepo(db, testutil.Logger(t))
	cat := testutil.SeedCategory(t, dbc.Ctx, tx, "Racing", true)

	done := testutil.SeedGame(t, dbc.Ctx, tx, cat.ID, "Done", nil)
	require.NoError(t, repo.UpdateFields(dbc, done.ID, map[string]interface{}{"status": types.GameStatusDisabled}))
	pending := &types.Game{
		Title: "Pending", Slug: "pending", CategoryID: cat.ID,
		Status: types.GameStatusDisabled, ProcessingStatus: types.ProcessingProcessing,
	}
	require.NoError(t, repo.Create(dbc, pending))

	changed, err := repo.UpdateStatusBulk(dbc, []uuid.UUID{done.ID, pending.ID}, types.GameStatusActive)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{done.ID}, changed)

	ok, err := repo.UpdateFieldsIfProcessing(dbc, done.ID,
		[]string{types.ProcessingPending, types.ProcessingProcessing},
		map[string]interface{}{"processing_status": types.ProcessingFailed})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.UpdateFieldsIfProcessing(dbc, pending.ID,
		[]string{types.ProcessingPending, types.ProcessingProcessing},
		map[string]interface{}{"processing_status": types.ProcessingCompleted})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGameRepoActivationLosesToConcurrentReupload(t *testing.T) {
	db := testutil.SQLite(t)
	tx := testutil.Tx(t, db)
	dbc := testutil.DBC(t, tx)
	repo := NewGameRepo(db, testutil.Logger(t))
	cat := testutil.SeedCategory(t, dbc.Ctx, tx, "Arcade", true)

	g := testutil.SeedGame(t, dbc.Ctx, tx, cat.ID, "Comet", nil)
	require.NoError(t, repo.UpdateFields(dbc, g.ID, map[string]interface{}{"status": types.GameStatusDisabled}))

	// A reupload commits after the caller decided to activate but before its write.
	fired := false
	require.NoError(t, db.Callback().Update().Before("gorm:update").Register("test:reupload", func(in *gorm.DB) {
		if fired {
			return
		}
		fired = true
		err := in.Session(&gorm.Session{NewDB: true}).
			Exec("UPDATE game SET status = ?, processing_status = ? WHERE id = ?",
				types.GameStatusDisabled, types.ProcessingPending, g.ID).Error
		require.NoError(t, err)
	}))

	changed, err := repo.UpdateStatusBulk(dbc, []uuid.UUID{g.ID}, types.GameStatusActive)
	require.NoError(t, err)
	assert.True(t, fired)
	assert.Empty(t, changed)

	var got types.Game
	require.NoError(t, tx.First(&got, "id = ?", g.ID).Error)
	assert.Equal(t, types.GameStatusDisabled, got.Status)
	assert.Equal(t, types.ProcessingPending, got.ProcessingStatus)
}
