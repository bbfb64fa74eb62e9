package mq

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

type redisStreamPublisher struct {
	rdb    *goredis.Client
	stream string
	maxLen int64
}

// NewRedisStream appends events to a capped stream. The shared client is not closed by Close.
func NewRedisStream(rdb *goredis.Client, stream string, maxLen int64) Publisher {
	if stream == "" {
		stream = "playhub.game-events"
	}
	return &redisStreamPublisher{rdb: rdb, stream: stream, maxLen: maxLen}
}

func (p *redisStreamPublisher) Publish(ctx context.Context, msgs ...Message) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	for _, m := range msgs {
		args := &goredis.XAddArgs{Stream: p.stream, Values: map[string]any{"key": m.Key, "data": string(m.Value)}}
		if p.maxLen > 0 {
			args.MaxLen = p.maxLen
			args.Approx = true
		}
		if err := p.rdb.XAdd(ctx, args).Err(); err != nil {
			return err
		}
	}
	return nil
}

func (p *redisStreamPublisher) Close() error { return nil }
