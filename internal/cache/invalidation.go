package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"
)

// invalidation is broadcast to peer processes so they drop local entries
// that the sender already removed from redis.
type invalidation struct {
	Origin   string   `json:"origin"`
	Keys     []string `json:"keys,omitempty"`
	Patterns []string `json:"patterns,omitempty"`
}

func (c *Cache) broadcast(ctx context.Context, msg invalidation) {
	if c.rdb == nil {
		return
	}
	msg.Origin = c.instance
	raw, err := json.Marshal(msg)
	if err != nil {
		return
	}
	err = c.Do(ctx, "publish", func(ctx context.Context, rdb *goredis.Client) error {
		return rdb.Publish(ctx, c.cfg.InvalidationChannel, raw).Err()
	})
	if err != nil && !errors.Is(err, ErrUnavailable) {
		c.log.Warn("cache invalidation broadcast failed", "error", err)
	}
}

// StartInvalidationListener subscribes to peer invalidations until ctx is done.
func (c *Cache) StartInvalidationListener(ctx context.Context) error {
	if c == nil || c.rdb == nil {
		return nil
	}
	sub := c.rdb.Subscribe(ctx, c.cfg.InvalidationChannel)

	// ensures subscription actually started
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("cache subscribe: %w", err)
	}

	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					_ = sub.Close()
					return
				}
				var msg invalidation
				if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
					c.log.Warn("bad cache invalidation payload", "error", err)
					continue
				}
				if msg.Origin == c.instance {
					continue
				}
				c.applyRemote(msg)
			}
		}
	}()
	return nil
}

func (c *Cache) applyRemote(msg invalidation) {
	for _, k := range msg.Keys {
		c.local.Remove(k)
	}
	for _, p := range msg.Patterns {
		if strings.TrimSpace(p) != "" {
			c.dropLocalPattern(p)
		}
	}
}
