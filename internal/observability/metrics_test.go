package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/yungbote/playhub-backend/internal/data/repos"
	"github.com/yungbote/playhub-backend/internal/data/repos/testutil"
	types "github.com/yungbote/playhub-backend/internal/domain"
	"github.com/yungbote/playhub-backend/internal/platform/dbctx"
)

func TestJobAndCacheCounters(t *testing.T) {
	m := New()
	m.JobFinished("game_publish", types.JobStatusFailed, false, 2*time.Second)
	m.JobFinished("game_publish", types.JobStatusSucceeded, true, time.Second)
	m.CacheHit("local")
	m.CacheHit("local")
	m.CacheMiss("remote")
	m.BreakerStateChanged("cache", "closed", "open")

	assert.Equal(t, 1.0, promtest.ToFloat64(m.jobAttempts.WithLabelValues("game_publish", types.JobStatusFailed, "false")))
	assert.Equal(t, 2.0, promtest.ToFloat64(m.cacheOps.WithLabelValues("local", "hit")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.cacheOps.WithLabelValues("remote", "miss")))
	assert.Equal(t, 2.0, promtest.ToFloat64(m.breakerState.WithLabelValues("cache")))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.JobFinished("x", "succeeded", true, time.Second)
	m.CacheHit("local")
	m.ObserveAPI("GET", "/games", "200", time.Millisecond)
	m.ApiInflightInc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New()
	m.ObserveAPI("GET", "/games", "200", 30*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `playhub_api_requests_total{method="GET",route="/games",status="200"} 1`))
}

func TestQueueDepthFromRepo(t *testing.T) {
	db := testutil.SQLite(t)
	repo := repos.NewJobRunRepo(db, testutil.Logger(t))
	now := time.Now().UTC()
	var rows []*types.JobRun
	for _, status := range []string{types.JobStatusQueued, types.JobStatusQueued, types.JobStatusFailed} {
		rows = append(rows, &types.JobRun{
			ID: uuid.New(), JobType: "game_publish", Status: status, Stage: "queued",
			Payload: datatypes.JSON([]byte(`{}`)), Result: datatypes.JSON([]byte(`{}`)),
			CreatedAt: now, UpdatedAt: now,
		})
	}
	_, err := repo.Create(dbctx.Context{Ctx: t.Context(), Tx: db}, rows)
	require.NoError(t, err)

	m := New()
	m.collectQueueDepth(t.Context(), testutil.Logger(t), db, repo)
	assert.Equal(t, 2.0, promtest.ToFloat64(m.queueDepth.WithLabelValues(types.JobStatusQueued)))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.queueDepth.WithLabelValues(types.JobStatusFailed)))
	assert.Equal(t, 0.0, promtest.ToFloat64(m.queueDepth.WithLabelValues(types.JobStatusRunning)))
}

func TestRedisPing(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	m := New()
	m.pingRedis(t.Context(), nil, rdb)
	assert.Equal(t, 1.0, promtest.ToFloat64(m.redisUp))

	mr.Close()
	m.pingRedis(t.Context(), nil, rdb)
	assert.Equal(t, 0.0, promtest.ToFloat64(m.redisUp))
}
