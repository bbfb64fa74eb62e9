package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/singleflight"

	"github.com/yungbote/playhub-backend/internal/platform/logger"
)

// ErrUnavailable is returned by Do when there is no remote tier or the breaker is open.
var ErrUnavailable = errors.New("cache: remote tier unavailable")

const (
	TierLocal  = "local"
	TierRemote = "remote"
)

// Metrics receives cache counters. A nil Metrics is allowed.
type Metrics interface {
	CacheHit(tier string)
	CacheMiss(tier string)
	CacheError(op string)
	BreakerStateChanged(name, from, to string)
}

type noopMetrics struct{}

func (noopMetrics) CacheHit(string)                            {}
func (noopMetrics) CacheMiss(string)                           {}
func (noopMetrics) CacheError(string)                          {}
func (noopMetrics) BreakerStateChanged(string, string, string) {}

// Cache is a read-through two tier cache: an in-process expirable LRU in
// front of redis. Every remote call goes through a circuit breaker and any
// remote failure is reported as a miss.
type Cache struct {
	cfg      Config
	log      *logger.Logger
	keys     Keys
	local    *expirable.LRU[string, []byte]
	rdb      *goredis.Client
	cb       *gobreaker.CircuitBreaker
	codec    *codec
	sf       singleflight.Group
	metrics  Metrics
	instance string
}

// New builds a cache. rdb may be nil, in which case only the local tier is used.
func New(log *logger.Logger, cfg Config, rdb *goredis.Client, metrics Metrics) (*Cache, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	cfg = cfg.withDefaults()
	cd, err := newCodec(cfg.CompressThreshold)
	if err != nil {
		return nil, err
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	c := &Cache{
		cfg:      cfg,
		log:      log.With("component", "Cache"),
		keys:     NewKeys(cfg.Version),
		local:    expirable.NewLRU[string, []byte](cfg.LocalSize, nil, cfg.LocalTTL),
		rdb:      rdb,
		codec:    cd,
		metrics:  metrics,
		instance: uuid.NewString(),
	}
	c.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "cache-redis",
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn("cache breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
			c.metrics.BreakerStateChanged(name, from.String(), to.String())
		},
	})
	return c, nil
}

func (c *Cache) Keys() Keys { return c.keys }

func (c *Cache) Config() Config { return c.cfg }

// BreakerState reports the remote breaker state ("closed", "open", "half-open").
func (c *Cache) BreakerState() string { return c.cb.State().String() }

func (c *Cache) Close() {
	if c == nil {
		return
	}
	c.codec.close()
}

// Do runs fn against redis under the breaker with the per-call timeout.
// redis.Nil is not counted as a failure.
func (c *Cache) Do(ctx context.Context, op string, fn func(ctx context.Context, rdb *goredis.Client) error) error {
	return c.do(ctx, op, c.cfg.OpTimeout, fn)
}

func (c *Cache) do(ctx context.Context, op string, timeout time.Duration, fn func(ctx context.Context, rdb *goredis.Client) error) error {
	if c == nil || c.rdb == nil {
		return ErrUnavailable
	}
	var missed bool
	_, err := c.cb.Execute(func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		err := fn(callCtx, c.rdb)
		if errors.Is(err, goredis.Nil) {
			missed = true
			return nil, nil
		}
		return nil, err
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrUnavailable
	}
	if err != nil {
		c.metrics.CacheError(op)
		return err
	}
	if missed {
		return goredis.Nil
	}
	return nil
}

// Get returns the raw value stored under key, local tier first.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	if v, ok := c.local.Get(key); ok {
		c.metrics.CacheHit(TierLocal)
		return v, true
	}
	c.metrics.CacheMiss(TierLocal)

	var framed []byte
	err := c.Do(ctx, "get", func(ctx context.Context, rdb *goredis.Client) error {
		b, err := rdb.Get(ctx, key).Bytes()
		if err != nil {
			return err
		}
		framed = b
		return nil
	})
	if err != nil {
		if !errors.Is(err, goredis.Nil) && !errors.Is(err, ErrUnavailable) {
			c.log.Warn("cache get failed", "key", key, "error", err)
		}
		c.metrics.CacheMiss(TierRemote)
		return nil, false
	}
	raw, err := c.codec.decode(framed)
	if err != nil {
		c.log.Warn("cache value undecodable", "key", key, "error", err)
		c.metrics.CacheMiss(TierRemote)
		return nil, false
	}
	c.metrics.CacheHit(TierRemote)
	c.local.Add(key, raw)
	return raw, true
}

// Set writes raw to both tiers. Remote failures are logged only.
func (c *Cache) Set(ctx context.Context, key string, raw []byte) {
	if c == nil {
		return
	}
	c.local.Add(key, raw)
	framed := c.codec.encode(raw)
	err := c.Do(ctx, "set", func(ctx context.Context, rdb *goredis.Client) error {
		return rdb.Set(ctx, key, framed, c.cfg.RemoteTTL).Err()
	})
	if err != nil && !errors.Is(err, ErrUnavailable) {
		c.log.Warn("cache set failed", "key", key, "error", err)
	}
}

// Delete removes keys from both tiers and tells peers to drop them locally.
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if c == nil || len(keys) == 0 {
		return nil
	}
	for _, k := range keys {
		c.local.Remove(k)
	}
	err := c.Do(ctx, "delete", func(ctx context.Context, rdb *goredis.Client) error {
		return rdb.Unlink(ctx, keys...).Err()
	})
	c.broadcast(ctx, invalidation{Keys: keys})
	if errors.Is(err, ErrUnavailable) {
		return nil
	}
	return err
}

// DeletePattern removes every key matching pattern. Only trailing "*" patterns
// are supported for the local tier; remote keys are found with SCAN.
func (c *Cache) DeletePattern(ctx context.Context, pattern string) error {
	if c == nil || strings.TrimSpace(pattern) == "" {
		return nil
	}
	c.dropLocalPattern(pattern)
	err := c.do(ctx, "delete_pattern", c.cfg.PatternTimeout, func(ctx context.Context, rdb *goredis.Client) error {
		iter := rdb.Scan(ctx, 0, pattern, 500).Iterator()
		batch := make([]string, 0, 100)
		for iter.Next(ctx) {
			batch = append(batch, iter.Val())
			if len(batch) == cap(batch) {
				if err := rdb.Unlink(ctx, batch...).Err(); err != nil {
					return err
				}
				batch = batch[:0]
			}
		}
		if err := iter.Err(); err != nil {
			return err
		}
		if len(batch) > 0 {
			return rdb.Unlink(ctx, batch...).Err()
		}
		return nil
	})
	c.broadcast(ctx, invalidation{Patterns: []string{pattern}})
	if errors.Is(err, ErrUnavailable) {
		return nil
	}
	return err
}

func (c *Cache) dropLocalPattern(pattern string) {
	prefix := strings.TrimSuffix(pattern, "*")
	exact := prefix == pattern
	for _, k := range c.local.Keys() {
		if (exact && k == prefix) || (!exact && strings.HasPrefix(k, prefix)) {
			c.local.Remove(k)
		}
	}
}

// GetOrLoad returns the cached JSON value for key, or calls load, caches its
// result and returns it. Concurrent loads of one key are coalesced.
func GetOrLoad[T any](ctx context.Context, c *Cache, key string, load func(ctx context.Context) (T, error)) (T, error) {
	if c == nil {
		return load(ctx)
	}
	if raw, ok := c.Get(ctx, key); ok {
		var v T
		if err := json.Unmarshal(raw, &v); err == nil {
			return v, nil
		}
		c.log.Warn("cache entry has unexpected shape", "key", key)
		c.local.Remove(key)
	}
	res, err, _ := c.sf.Do(key, func() (interface{}, error) {
		v, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if raw, mErr := json.Marshal(v); mErr == nil {
			c.Set(ctx, key, raw)
		}
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	v, _ := res.(T)
	return v, nil
}
