// Package mq exports game lifecycle events to an external broker.
// Delivery is best effort; callers log publish failures and move on.
package mq

import (
	"context"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/playhub-backend/internal/platform/envutil"
	"github.com/yungbote/playhub-backend/internal/platform/logger"
)

// Message is one keyed event. Key picks the partition (kafka) and is stored alongside the body (redis).
type Message struct {
	Key   string
	Value []byte
}

type Publisher interface {
	Publish(ctx context.Context, msgs ...Message) error
	Close() error
}

type Config struct {
	Type         string // kafka|redis|noop
	KafkaBrokers []string
	Topic        string
	StreamMaxLen int64
}

func ConfigFromEnv() Config {
	return Config{
		Type:         strings.ToLower(envutil.String("EVENTS_MQ_TYPE", "")),
		KafkaBrokers: envutil.CSV("KAFKA_BROKERS"),
		Topic:        envutil.String("KAFKA_TOPIC_GAME_EVENTS", "playhub.game-events"),
		StreamMaxLen: int64(envutil.Int("EVENTS_REDIS_MAXLEN", 100000)),
	}
}

// New picks a publisher: kafka when brokers are configured, a redis stream
// when asked for and a client is available, noop otherwise.
func New(log *logger.Logger, cfg Config, rdb *goredis.Client) Publisher {
	typ := cfg.Type
	if typ == "" && len(cfg.KafkaBrokers) > 0 {
		typ = "kafka"
	}
	switch typ {
	case "kafka":
		if len(cfg.KafkaBrokers) == 0 {
			log.Warn("kafka event export requested without KAFKA_BROKERS; using noop")
			return NewNoop()
		}
		log.Info("kafka event export enabled", "brokers", strings.Join(cfg.KafkaBrokers, ","), "topic", cfg.Topic)
		return NewKafka(cfg.KafkaBrokers, cfg.Topic)
	case "redis":
		if rdb == nil {
			log.Warn("redis event export requested without redis; using noop")
			return NewNoop()
		}
		log.Info("redis stream event export enabled", "stream", cfg.Topic)
		return NewRedisStream(rdb, cfg.Topic, cfg.StreamMaxLen)
	case "", "noop":
		return NewNoop()
	default:
		log.Warn("unsupported EVENTS_MQ_TYPE; using noop", "type", typ)
		return NewNoop()
	}
}
