package like_sync

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
	"github.com/yungbote/playhub-backend/internal/platform/dbctx"
	"github.com/yungbote/playhub-backend/internal/services"
)

func TestLikeSync(t *testing.T) {
	db := testutil.SQLite(t)
	log := testutil.Logger(t)
	rs := repos.NewSet(db, log)
	reg := jobrt.NewRegistry()
	require.NoError(t, reg.Register(New(db, log, rs.Likes, nil)))
	exec := &jobrt.Executor{DB: db, Log: log, Repo: rs.JobRuns, Registry: reg}
	dbc := dbctx.Context{Ctx: t.Context(), Tx: db}

	userID, gameID := uuid.New(), uuid.New()
	run := func(action string) *types.JobRun {
		t.Helper()
		payload, err := json.Marshal(map[string]any{"user_id": userID, "game_id": gameID, "action": action})
		require.NoError(t, err)
		now := time.Now().UTC()
		_, err = rs.JobRuns.Create(dbc, []*types.JobRun{{
			ID: uuid.New(), JobType: services.JobTypeLikeSync, Status: types.JobStatusQueued, MaxAttempts: 5,
			Payload: datatypes.JSON(payload), Result: datatypes.JSON([]byte(`{}`)), CreatedAt: now, UpdatedAt: now,
		}})
		require.NoError(t, err)
		job, err := rs.JobRuns.ClaimNextRunnable(dbc, 5, time.Hour, time.Hour)
		require.NoError(t, err)
		require.NotNil(t, job)
		out, err := exec.Execute(t.Context(), job)
		require.NoError(t, err)
		return out
	}

	assert.Equal(t, types.JobStatusSucceeded, run(services.LikeActionLike).Status)
	assert.Equal(t, types.JobStatusSucceeded, run(services.LikeActionLike).Status)
	n, err := rs.Likes.CountByGame(dbc, gameID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	assert.Equal(t, types.JobStatusSucceeded, run(services.LikeActionUnlike).Status)
	n, err = rs.Likes.CountByGame(dbc, gameID)
	require.NoError(t, err)
	assert.Zero(t, n)

	bad := run("poke")
	assert.Equal(t, types.JobStatusFailed, bad.Status)
	assert.True(t, bad.IsFinalAttempt())
}
