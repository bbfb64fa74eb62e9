package games

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PositionHistory keeps one click counter per (game, position) pair the game has ever held.
type PositionHistory struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	GameID     uuid.UUID `gorm:"type:uuid;column:game_id;not null;uniqueIndex:idx_position_history_game_position" json:"game_id"`
	Position   int       `gorm:"column:position;not null;uniqueIndex:idx_position_history_game_position" json:"position"`
	ClickCount int64     `gorm:"column:click_count;not null;default:0" json:"click_count"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time `gorm:"not null" json:"updated_at"`
}

func (PositionHistory) TableName() string { return "position_history" }

func (p *PositionHistory) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
