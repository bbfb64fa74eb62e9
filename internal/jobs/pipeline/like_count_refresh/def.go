package like_count_refresh

import (
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/playhub-backend/internal/data/repos"
	"github.com/yungbote/playhub-backend/internal/platform/envutil"
	"github.com/yungbote/playhub-backend/internal/platform/logger"
	"github.com/yungbote/playhub-backend/internal/services"
)

type Config struct {
	BatchSize int
	// games whose day walk is longer than this get it folded into their base
	RebaseAfterDays int
}

func ConfigFromEnv() Config {
	return Config{
		BatchSize:       envutil.Int("LIKE_REFRESH_BATCH_SIZE", 200),
		RebaseAfterDays: envutil.Int("LIKE_REBASE_AFTER_DAYS", 30),
	}
}

type Pipeline struct {
	db          *gorm.DB
	log         *logger.Logger
	games       repos.GameRepo
	likeCounts  repos.LikeCountCacheRepo
	invalidator services.CacheInvalidator
	cfg         Config
	now         func() time.Time
}

func New(
	db *gorm.DB,
	baseLog *logger.Logger,
	games repos.GameRepo,
	likeCounts repos.LikeCountCacheRepo,
	invalidator services.CacheInvalidator,
	cfg Config,
) *Pipeline {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}
	return &Pipeline{
		db:          db,
		log:         baseLog.With("job", services.JobTypeLikeCountRefresh),
		games:       games,
		likeCounts:  likeCounts,
		invalidator: invalidator,
		cfg:         cfg,
		now:         time.Now,
	}
}

func (p *Pipeline) Type() string { return services.JobTypeLikeCountRefresh }
