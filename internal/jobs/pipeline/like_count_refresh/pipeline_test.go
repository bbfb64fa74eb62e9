package like_count_refresh

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/yungbote/playhub-backend/internal/data/repos"
	"github.com/yungbote/playhub-backend/internal/data/repos/testutil"
	types "github.com/yungbote/playhub-backend/internal/domain"
	jobrt "github.com/yungbote/playhub-backend/internal/jobs/runtime"
	"github.com/yungbote/playhub-backend/internal/likecount"
	"github.com/yungbote/playhub-backend/internal/platform/dbctx"
	"github.com/yungbote/playhub-backend/internal/services"
)

func TestRefreshStoresDerivedCountsAndRebases(t *testing.T) {
	db := testutil.SQLite(t)
	log := testutil.Logger(t)
	rs := repos.NewSet(db, log)
	dbc := dbctx.Context{Ctx: t.Context(), Tx: db}
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	p := New(db, log, rs.Games, rs.LikeCounts, services.NewCacheInvalidator(log, nil), Config{BatchSize: 2, RebaseAfterDays: 30})
	p.now = func() time.Time { return now }
	reg := jobrt.NewRegistry()
	require.NoError(t, reg.Register(p))
	exec := &jobrt.Executor{DB: db, Log: log, Repo: rs.JobRuns, Registry: reg}

	mk := func(base int64, last time.Time) *types.Game {
		g := &types.Game{
			ID: uuid.New(), Title: "g", Slug: uuid.NewString(), CategoryID: uuid.New(),
			Status: types.GameStatusActive, ProcessingStatus: types.ProcessingCompleted,
			BaseLikeCount: base, LastLikeIncrement: last, CreatedAt: now, UpdatedAt: now,
		}
		require.NoError(t, rs.Games.Create(dbc, g))
		return g
	}
	weekOld := mk(100, now.AddDate(0, 0, -7))
	stale := mk(5, now.AddDate(0, 0, -40))
	fresh := mk(0, now)

	run := func() map[string]any {
		t.Helper()
		_, err := rs.JobRuns.Create(dbc, []*types.JobRun{{
			ID: uuid.New(), JobType: services.JobTypeLikeCountRefresh, Status: types.JobStatusQueued,
			Payload: datatypes.JSON([]byte(`{}`)), Result: datatypes.JSON([]byte(`{}`)), CreatedAt: now, UpdatedAt: now,
		}})
		require.NoError(t, err)
		job, err := rs.JobRuns.ClaimNextRunnable(dbc, 3, time.Hour, time.Hour)
		require.NoError(t, err)
		require.NotNil(t, job)
		out, err := exec.Execute(t.Context(), job)
		require.NoError(t, err)
		require.Equal(t, types.JobStatusSucceeded, out.Status)
		var stats map[string]any
		require.NoError(t, json.Unmarshal(out.Result, &stats))
		return stats
	}

	stats := run()
	assert.EqualValues(t, 3, stats["games"])
	assert.EqualValues(t, 1, stats["rebased"])

	rows, err := rs.LikeCounts.GetByGameIDs(dbc, []uuid.UUID{weekOld.ID, stale.ID, fresh.ID})
	require.NoError(t, err)
	require.Len(t, rows, 3)

	weekVal := rows[weekOld.ID].CachedLikeCount
	assert.Equal(t, likecount.Derived(weekOld.ID.String(), 100, weekOld.LastLikeIncrement, now), weekVal)
	assert.GreaterOrEqual(t, weekVal, int64(107))
	assert.LessOrEqual(t, weekVal, int64(121))
	assert.Equal(t, int64(0), rows[fresh.ID].CachedLikeCount)

	// rebasing keeps the value and moves the anchor forward by whole days
	assert.Equal(t, likecount.Derived(stale.ID.String(), 5, stale.LastLikeIncrement, now), rows[stale.ID].CachedLikeCount)
	reloaded, err := rs.Games.GetByID(dbc, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, rows[stale.ID].CachedLikeCount, reloaded.BaseLikeCount)
	assert.True(t, reloaded.LastLikeIncrement.Equal(stale.LastLikeIncrement.AddDate(0, 0, 40)))

	again := run()
	assert.EqualValues(t, 0, again["changed"])
	assert.EqualValues(t, 0, again["rebased"])
}

func TestRefreshRefusesImplausibleClock(t *testing.T) {
	db := testutil.SQLite(t)
	log := testutil.Logger(t)
	rs := repos.NewSet(db, log)
	p := New(db, log, rs.Games, rs.LikeCounts, nil, Config{})
	p.now = func() time.Time { return time.Unix(0, 0) }

	job := &types.JobRun{ID: uuid.New(), JobType: p.Type(), Status: types.JobStatusRunning}
	err := p.Run(jobrt.NewContext(t.Context(), db, job, nil, nil, log))
	assert.Error(t, err)
}
