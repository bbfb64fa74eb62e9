package mq

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/playhub-backend/internal/platform/logger"
)

func TestNew_Selection(t *testing.T) {
	log := logger.Nop()

	_, ok := New(log, Config{}, nil).(*Noop)
	assert.True(t, ok, "empty config is noop")

	_, ok = New(log, Config{Type: "redis"}, nil).(*Noop)
	assert.True(t, ok, "redis without a client is noop")

	p := New(log, Config{KafkaBrokers: []string{"localhost:9092"}, Topic: "t"}, nil)
	_, ok = p.(*kafkaPublisher)
	assert.True(t, ok, "brokers imply kafka")
	require.NoError(t, p.Close())
}

func TestRedisStream_Publish(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	p := NewRedisStream(rdb, "events", 10)
	require.NoError(t, p.Publish(context.Background(),
		Message{Key: "g1", Value: []byte(`{"type":"game.published"}`)},
		Message{Key: "g2", Value: []byte(`{"type":"game.failed"}`)},
	))

	n, err := rdb.XLen(context.Background(), "events").Result()
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}
