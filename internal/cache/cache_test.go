package cache

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/playhub-backend/internal/platform/logger"
)

func newTestCache(t *testing.T, mr *miniredis.Miniredis, mutate func(*Config)) *Cache {
	t.Helper()
	cfg := DefaultConfig()
	cfg.OpTimeout = 200 * time.Millisecond
	if mutate != nil {
		mutate(&cfg)
	}
	var rdb *goredis.Client
	if mr != nil {
		rdb = goredis.NewClient(&goredis.Options{Addr: mr.Addr(), MaxRetries: -1})
		t.Cleanup(func() { _ = rdb.Close() })
	}
	c, err := New(logger.Nop(), cfg, rdb, nil)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestKeysCarryVersion(t *testing.T) {
	k := NewKeys("v7")
	id := uuid.MustParse("5b8f1f2e-1111-4c3a-9c1e-000000000001")
	assert.Equal(t, "cache:v7:game:"+id.String(), k.Game(id))
	assert.Equal(t, "cache:v7:games:list:all:1:20", k.GamesList("", 1, 20))
	assert.True(t, strings.HasPrefix(k.GamesList("active", 2, 20), strings.TrimSuffix(k.GamesListPattern(), "*")))
	assert.True(t, strings.HasPrefix(k.CategoryGames(id, "", 1, 20), strings.TrimSuffix(k.CategoryGamesPattern(id), "*")))
	assert.True(t, strings.HasPrefix(k.Search("Space Invaders", 1, 20), strings.TrimSuffix(k.SearchPattern(), "*")))
	assert.Equal(t, "cache:v1:categories:all", NewKeys("").Categories())
}

func TestCodecCompressesAboveThreshold(t *testing.T) {
	cd, err := newCodec(64)
	require.NoError(t, err)
	defer cd.close()

	small := []byte(`{"a":1}`)
	framed := cd.encode(small)
	assert.Equal(t, frameRaw, framed[0])
	out, err := cd.decode(framed)
	require.NoError(t, err)
	assert.Equal(t, small, out)

	big := []byte(strings.Repeat("game-", 200))
	framed = cd.encode(big)
	assert.Equal(t, frameZstd, framed[0])
	assert.Less(t, len(framed), len(big))
	out, err = cd.decode(framed)
	require.NoError(t, err)
	assert.Equal(t, big, out)

	_, err = cd.decode([]byte{9, 1, 2})
	assert.Error(t, err)
}

func TestGetSetAcrossTiers(t *testing.T) {
	mr := miniredis.RunT(t)
	c := newTestCache(t, mr, func(cfg *Config) { cfg.CompressThreshold = 32 })
	ctx := context.Background()

	_, ok := c.Get(ctx, "cache:v1:game:x")
	assert.False(t, ok)

	payload := []byte(strings.Repeat("x", 100))
	c.Set(ctx, "cache:v1:game:x", payload)

	stored, err := mr.Get("cache:v1:game:x")
	require.NoError(t, err)
	assert.Equal(t, frameZstd, stored[0])

	// a fresh process only has the remote tier
	peer := newTestCache(t, mr, nil)
	got, ok := peer.Get(ctx, "cache:v1:game:x")
	require.True(t, ok)
	assert.Equal(t, payload, got)
	assert.True(t, mr.TTL("cache:v1:game:x") > 0)
}

func TestDeletePatternClearsBothTiers(t *testing.T) {
	mr := miniredis.RunT(t)
	c := newTestCache(t, mr, nil)
	ctx := context.Background()
	k := c.Keys()
	cat := uuid.New()

	c.Set(ctx, k.GamesList("", 1, 20), []byte(`[1]`))
	c.Set(ctx, k.GamesList("", 2, 20), []byte(`[2]`))
	c.Set(ctx, k.CategoryGames(cat, "", 1, 20), []byte(`[3]`))
	c.Set(ctx, k.Categories(), []byte(`[]`))

	require.NoError(t, c.DeletePattern(ctx, k.GamesListPattern()))

	_, ok := c.Get(ctx, k.GamesList("", 1, 20))
	assert.False(t, ok)
	assert.False(t, mr.Exists(k.GamesList("", 2, 20)))
	_, ok = c.Get(ctx, k.CategoryGames(cat, "", 1, 20))
	assert.True(t, ok)
	assert.True(t, mr.Exists(k.Categories()))
}

func TestPeerInvalidationDropsLocalEntries(t *testing.T) {
	mr := miniredis.RunT(t)
	writer := newTestCache(t, mr, nil)
	reader := newTestCache(t, mr, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, reader.StartInvalidationListener(ctx))

	key := writer.Keys().Game(uuid.New())
	writer.Set(ctx, key, []byte(`"v1"`))
	_, ok := reader.Get(ctx, key)
	require.True(t, ok)
	_, inLocal := reader.local.Get(key)
	require.True(t, inLocal)

	require.NoError(t, writer.Delete(ctx, key))
	assert.Eventually(t, func() bool {
		_, ok := reader.local.Get(key)
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestBreakerOpensAndDegradesToMiss(t *testing.T) {
	mr := miniredis.RunT(t)
	c := newTestCache(t, mr, func(cfg *Config) {
		cfg.BreakerFailures = 2
		cfg.BreakerCooldown = time.Minute
		cfg.OpTimeout = 50 * time.Millisecond
	})
	ctx := context.Background()
	mr.Close()

	for i := 0; i < 3; i++ {
		_, ok := c.Get(ctx, "cache:v1:game:missing")
		assert.False(t, ok)
	}
	assert.Equal(t, "open", c.BreakerState())

	var loads atomic.Int32
	load := func(context.Context) (string, error) {
		loads.Add(1)
		return "from-db", nil
	}
	v, err := GetOrLoad(ctx, c, "cache:v1:game:y", load)
	require.NoError(t, err)
	assert.Equal(t, "from-db", v)
	assert.Equal(t, ErrUnavailable, c.Do(ctx, "ping", func(context.Context, *goredis.Client) error { return nil }))
	assert.NoError(t, c.DeletePattern(ctx, "cache:v1:search:*"))
}

func TestGetOrLoadCachesResult(t *testing.T) {
	c := newTestCache(t, nil, nil)
	ctx := context.Background()
	var loads atomic.Int32
	load := func(context.Context) ([]int, error) {
		loads.Add(1)
		return []int{1, 2, 3}, nil
	}
	for i := 0; i < 3; i++ {
		v, err := GetOrLoad(ctx, c, "cache:v1:games:list:all:1:20", load)
		require.NoError(t, err)
		assert.Equal(t, []int{1, 2, 3}, v)
	}
	assert.Equal(t, int32(1), loads.Load())

	require.NoError(t, c.Delete(ctx, "cache:v1:games:list:all:1:20"))
	_, err := GetOrLoad(ctx, c, "cache:v1:games:list:all:1:20", load)
	require.NoError(t, err)
	assert.Equal(t, int32(2), loads.Load())
}
