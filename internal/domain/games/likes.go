package games

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ExplicitLike is the source of truth for "user liked game".
type ExplicitLike struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;column:user_id;not null;uniqueIndex:idx_explicit_like_user_game" json:"user_id"`
	GameID    uuid.UUID `gorm:"type:uuid;column:game_id;not null;uniqueIndex:idx_explicit_like_user_game;index" json:"game_id"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (ExplicitLike) TableName() string { return "explicit_like" }

func (l *ExplicitLike) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

// LikeCountCache holds the derived (base + daily walk) part of a game's like
// count as of ComputedFor (UTC date). Explicit likes are added at read time.
type LikeCountCache struct {
	GameID          uuid.UUID `gorm:"type:uuid;column:game_id;primaryKey" json:"game_id"`
	CachedLikeCount int64     `gorm:"column:cached_like_count;not null" json:"cached_like_count"`
	ComputedFor     string    `gorm:"column:computed_for;not null" json:"computed_for"`
	UpdatedAt       time.Time `gorm:"not null" json:"updated_at"`
}

func (LikeCountCache) TableName() string { return "like_count_cache" }
