package like_sync

import (
	"gorm.io/gorm"

	"github.com/yungbote/playhub-backend/internal/data/repos"
	"github.com/yungbote/playhub-backend/internal/platform/logger"
	"github.com/yungbote/playhub-backend/internal/services"
)

type Pipeline struct {
	db    *gorm.DB
	log   *logger.Logger
	likes repos.ExplicitLikeRepo
	state services.LikeService
}

// New builds the handler. state may be nil, in which case each job applies its
// own action.
func New(db *gorm.DB, baseLog *logger.Logger, likes repos.ExplicitLikeRepo, state services.LikeService) *Pipeline {
	return &Pipeline{
		db:    db,
		log:   baseLog.With("job", services.JobTypeLikeSync),
		likes: likes,
		state: state,
	}
}

func (p *Pipeline) Type() string { return services.JobTypeLikeSync }
