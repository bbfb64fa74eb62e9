package games

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/playhub-backend/internal/data/repos/testutil"
	types "github.com/yungbote/playhub-backend/internal/domain"
)

func TestCategoryRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	dbc := testutil.DBC(t, tx)
	repo := NewCategoryRepo(db, testutil.Logger(t))

	none, err := repo.GetDefault(dbc)
	require.NoError(t, err)
	assert.Nil(t, none)

	def := &types.Category{Name: "General", Slug: "general", IsDefault: true}
	require.NoError(t, repo.Create(dbc, def))
	require.NoError(t, repo.Create(dbc, &types.Category{Name: "Action", Slug: "action"}))

	got, err := repo.GetDefault(dbc)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, def.ID, got.ID)

	byName, err := repo.GetByName(dbc, "  general ")
	require.NoError(t, err)
	require.NotNil(t, byName)
	assert.Equal(t, def.ID, byName.ID)

	all, err := repo.List(dbc)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Action", all[0].Name)

	err = repo.Create(dbc, &types.Category{Name: "General", Slug: "general-2"})
	assert.Error(t, err)
}
