package db

import (
	"fmt"

	types "github.com/yungbote/playhub-backend/internal/domain"
	"gorm.io/gorm"
)

func AutoMigrateAll(db *gorm.DB) error {
	if err := db.AutoMigrate(
		// =========================
		// Catalogue
		// =========================
		&types.Category{},
		&types.Game{},
		&types.File{},
		&types.PositionHistory{},

		// =========================
		// Likes
		// =========================
		&types.ExplicitLike{},
		&types.LikeCountCache{},

		// =========================
		// Background jobs
		// =========================
		&types.JobRun{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
