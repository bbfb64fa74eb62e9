package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/playhub-backend/internal/data/repos/games"
	"github.com/yungbote/playhub-backend/internal/data/repos/jobs"
	"github.com/yungbote/playhub-backend/internal/data/repos/likes"
	"github.com/yungbote/playhub-backend/internal/platform/logger"
)

type GameRepo = games.GameRepo
type GameListFilter = games.ListFilter
type CategoryRepo = games.CategoryRepo
type PositionHistoryRepo = games.PositionHistoryRepo
type FileRepo = games.FileRepo

type ExplicitLikeRepo = likes.ExplicitLikeRepo
type LikeCountCacheRepo = likes.LikeCountCacheRepo

type JobRunRepo = jobs.JobRunRepo

func NewGameRepo(db *gorm.DB, baseLog *logger.Logger) GameRepo { return games.NewGameRepo(db, baseLog) }
func NewCategoryRepo(db *gorm.DB, baseLog *logger.Logger) CategoryRepo {
	return games.NewCategoryRepo(db, baseLog)
}
func NewPositionHistoryRepo(db *gorm.DB, baseLog *logger.Logger) PositionHistoryRepo {
	return games.NewPositionHistoryRepo(db, baseLog)
}
func NewFileRepo(db *gorm.DB, baseLog *logger.Logger) FileRepo { return games.NewFileRepo(db, baseLog) }

func NewExplicitLikeRepo(db *gorm.DB, baseLog *logger.Logger) ExplicitLikeRepo {
	return likes.NewExplicitLikeRepo(db, baseLog)
}
func NewLikeCountCacheRepo(db *gorm.DB, baseLog *logger.Logger) LikeCountCacheRepo {
	return likes.NewLikeCountCacheRepo(db, baseLog)
}

func NewJobRunRepo(db *gorm.DB, baseLog *logger.Logger) JobRunRepo {
	return jobs.NewJobRunRepo(db, baseLog)
}

// Set bundles every repository the services need.
type Set struct {
	Games      GameRepo
	Categories CategoryRepo
	Positions  PositionHistoryRepo
	Files      FileRepo
	Likes      ExplicitLikeRepo
	LikeCounts LikeCountCacheRepo
	JobRuns    JobRunRepo
}

func NewSet(db *gorm.DB, baseLog *logger.Logger) Set {
	return Set{
		Games:      NewGameRepo(db, baseLog),
		Categories: NewCategoryRepo(db, baseLog),
		Positions:  NewPositionHistoryRepo(db, baseLog),
		Files:      NewFileRepo(db, baseLog),
		Likes:      NewExplicitLikeRepo(db, baseLog),
		LikeCounts: NewLikeCountCacheRepo(db, baseLog),
		JobRuns:    NewJobRunRepo(db, baseLog),
	}
}
