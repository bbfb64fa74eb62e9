// Package redisx builds the process-wide redis client shared by the cache,
// the like fast path, the realtime bus and the metrics collector.
package redisx

import (
	"context"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/playhub-backend/internal/platform/envutil"
)

type Config struct {
	Addr         string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
}

func ConfigFromEnv() Config {
	return Config{
		Addr:         envutil.String("REDIS_ADDR", ""),
		Password:     envutil.String("REDIS_PASSWORD", ""),
		DB:           envutil.Int("REDIS_DB", 0),
		DialTimeout:  envutil.Duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		ReadTimeout:  envutil.Duration("REDIS_READ_TIMEOUT", 2*time.Second),
		WriteTimeout: envutil.Duration("REDIS_WRITE_TIMEOUT", 2*time.Second),
		PoolSize:     envutil.Int("REDIS_POOL_SIZE", 0),
	}
}

func (c Config) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

// New dials redis and verifies it with a ping. Callers treat an error as
// "run without redis": every redis-backed component has a fallback.
func New(ctx context.Context, cfg Config) (*goredis.Client, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:         strings.TrimSpace(cfg.Addr),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}
