package bus

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/playhub-backend/internal/platform/logger"
	"github.com/yungbote/playhub-backend/internal/realtime"
)

func TestRedisBusForwardsMessages(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	b, err := NewRedisBus(logger.Nop(), rdb, "")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	got := make(chan realtime.SSEMessage, 1)
	require.NoError(t, b.StartForwarder(ctx, func(m realtime.SSEMessage) { got <- m }))

	channel := realtime.GameChannel(uuid.New())
	require.NoError(t, b.Publish(ctx, realtime.SSEMessage{Channel: channel, Event: realtime.SSEEventJobDone}))

	select {
	case m := <-got:
		assert.Equal(t, channel, m.Channel)
		assert.Equal(t, realtime.SSEEventJobDone, m.Event)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for forwarded message")
	}
}

func TestNewRedisBusRequiresClient(t *testing.T) {
	_, err := NewRedisBus(logger.Nop(), nil, "sse")
	assert.Error(t, err)
}
