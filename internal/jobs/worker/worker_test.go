package worker

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/yungbote/playhub-backend/internal/data/repos"
	"github.com/yungbote/playhub-backend/internal/data/repos/testutil"
	types "github.com/yungbote/playhub-backend/internal/domain"
	"github.com/yungbote/playhub-backend/internal/jobs/runtime"
	"github.com/yungbote/playhub-backend/internal/platform/dbctx"
)

type countingHandler struct {
	runs  int
	fails int
}

func (h *countingHandler) Type() string { return "count" }

func (h *countingHandler) Run(c *runtime.Context) error {
	h.runs++
	if h.runs <= h.fails {
		return errors.New("flaky storage")
	}
	c.Succeed("done", nil)
	return nil
}

func TestRunOnceRetriesUntilSuccess(t *testing.T) {
	db := testutil.SQLite(t)
	log := testutil.Logger(t)
	repo := repos.NewJobRunRepo(db, log)
	reg := runtime.NewRegistry()
	h := &countingHandler{fails: 1}
	require.NoError(t, reg.Register(h))
	exec := &runtime.Executor{DB: db, Log: log, Repo: repo, Registry: reg}

	// zero retry delay makes a failed attempt claimable on the next poll
	w := NewWorker(db, log, repo, exec, Config{RetryDelay: 0, DefaultMaxAttempts: 3})

	ran, err := w.RunOnce(t.Context())
	require.NoError(t, err)
	assert.False(t, ran)

	now := time.Now().UTC()
	job := &types.JobRun{
		ID:        uuid.New(),
		JobType:   "count",
		Status:    types.JobStatusQueued,
		Stage:     "queued",
		Payload:   datatypes.JSON([]byte(`{}`)),
		Result:    datatypes.JSON([]byte(`{}`)),
		CreatedAt: now,
		UpdatedAt: now,
	}
	dbc := dbctx.Context{Ctx: t.Context(), Tx: db}
	_, err = repo.Create(dbc, []*types.JobRun{job})
	require.NoError(t, err)

	ran, err = w.RunOnce(t.Context())
	require.NoError(t, err)
	require.True(t, ran)
	got, err := repo.GetByID(dbc, job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusFailed, got.Status)
	assert.Equal(t, 1, got.Attempts)
	assert.Equal(t, 3, got.MaxAttempts)

	ran, err = w.RunOnce(t.Context())
	require.NoError(t, err)
	require.True(t, ran)
	got, err = repo.GetByID(dbc, job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusSucceeded, got.Status)
	assert.Equal(t, 2, got.Attempts)
	assert.Equal(t, 2, h.runs)

	ran, err = w.RunOnce(t.Context())
	require.NoError(t, err)
	assert.False(t, ran)
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{Concurrency: -2, RetryDelay: -1}.withDefaults()
	assert.Equal(t, 1, cfg.Concurrency)
	assert.Equal(t, DefaultConfig().RetryDelay, cfg.RetryDelay)
	assert.Equal(t, 3, cfg.DefaultMaxAttempts)
	assert.Equal(t, time.Second, cfg.PollInterval)

	t.Setenv("WORKER_CONCURRENCY", "7")
	t.Setenv("JOB_RETRY_DELAY", "5s")
	env := ConfigFromEnv()
	assert.Equal(t, 7, env.Concurrency)
	assert.Equal(t, 5*time.Second, env.RetryDelay)
}
