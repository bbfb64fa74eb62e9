package app

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	temporalsdkclient "go.temporal.io/sdk/client"
	"gorm.io/gorm"

	"github.com/yungbote/playhub-backend/internal/data/db"
	"github.com/yungbote/playhub-backend/internal/platform/envutil"
	"github.com/yungbote/playhub-backend/internal/platform/gcp"
	"github.com/yungbote/playhub-backend/internal/platform/logger"
	"github.com/yungbote/playhub-backend/internal/platform/mq"
	"github.com/yungbote/playhub-backend/internal/platform/redisx"
	"github.com/yungbote/playhub-backend/internal/platform/thumbnail"
	"github.com/yungbote/playhub-backend/internal/realtime/bus"
	"github.com/yungbote/playhub-backend/internal/temporalx"
)

// Clients are the external connections. Redis, the bus and Temporal are
// optional and nil when not configured.
type Clients struct {
	Database *db.PostgresService
	Redis    *goredis.Client
	Bus      bus.Bus
	Storage  gcp.BucketService
	Events   mq.Publisher
	Temporal temporalsdkclient.Client
	Thumbs   *thumbnail.Renderer
}

func (c Clients) DB() *gorm.DB {
	if c.Database == nil {
		return nil
	}
	return c.Database.DB()
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")
	var out Clients

	database, err := db.NewDatabaseService(log, cfg.DB)
	if err != nil {
		return out, fmt.Errorf("init database: %w", err)
	}
	out.Database = database
	if err := db.AutoMigrateAll(database.DB()); err != nil {
		out.Close(log)
		return Clients{}, fmt.Errorf("database automigrate: %w", err)
	}

	// Redis
	if cfg.Redis.Enabled() {
		rdb, err := redisx.New(ctx, cfg.Redis)
		if err != nil {
			log.Warn("Redis unavailable; running with local cache and in-process realtime only", "error", err)
		} else {
			out.Redis = rdb
			b, err := bus.NewRedisBus(log, rdb, cfg.RealtimeChannel)
			if err != nil {
				out.Close(log)
				return Clients{}, fmt.Errorf("init realtime bus: %w", err)
			}
			out.Bus = b
		}
	} else {
		log.Info("REDIS_ADDR not set; running with local cache and in-process realtime only")
	}

	// Object storage
	storage, err := resolveBucketService(log, cfg)
	if err != nil {
		out.Close(log)
		return Clients{}, fmt.Errorf("init object storage: %w", err)
	}
	out.Storage = storage

	// Event export
	out.Events = mq.New(log, cfg.Events, out.Redis)

	// Temporal
	tc, err := temporalx.NewClient(log, cfg.Temporal)
	if err != nil {
		out.Close(log)
		return Clients{}, fmt.Errorf("init temporal client: %w", err)
	}
	out.Temporal = tc

	thumbs, err := thumbnail.NewRenderer(envutil.String("THUMBNAIL_FONT_PATH", ""))
	if err != nil {
		log.Warn("Thumbnail font unavailable; using built-in face", "error", err)
		thumbs, _ = thumbnail.NewRenderer("")
	}
	out.Thumbs = thumbs

	return out, nil
}

func (c Clients) Close(log *logger.Logger) {
	if c.Temporal != nil {
		c.Temporal.Close()
	}
	if c.Events != nil {
		if err := c.Events.Close(); err != nil {
			log.Warn("event publisher close failed", "error", err)
		}
	}
	if closer, ok := c.Storage.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			log.Warn("object storage close failed", "error", err)
		}
	}
	if c.Bus != nil {
		_ = c.Bus.Close()
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			log.Warn("redis close failed", "error", err)
		}
	}
	if c.Database != nil {
		if err := c.Database.Close(); err != nil {
			log.Warn("database close failed", "error", err)
		}
	}
}
