package games

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	StatusActive   = "active"
	StatusDisabled = "disabled"
)

const (
	ProcessingPending    = "pending"
	ProcessingProcessing = "processing"
	ProcessingCompleted  = "completed"
	ProcessingFailed     = "failed"
)

// Game is the catalogue entry plus the processing state of its latest upload.
// Status may only be active while ProcessingStatus is completed.
type Game struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Title      string    `gorm:"column:title;not null" json:"title"`
	Slug       string    `gorm:"column:slug;not null;uniqueIndex" json:"slug"`
	CategoryID uuid.UUID `gorm:"type:uuid;column:category_id;not null;index" json:"category_id"`

	FileID          *uuid.UUID `gorm:"type:uuid;column:file_id" json:"file_id,omitempty"`
	ThumbnailFileID *uuid.UUID `gorm:"type:uuid;column:thumbnail_file_id" json:"thumbnail_file_id,omitempty"`
	// temporary upload keys for the attempt in flight; cleared once the objects are gone
	ArchiveKey   string `gorm:"column:archive_key" json:"-"`
	ThumbnailKey string `gorm:"column:thumbnail_key" json:"-"`

	Status           string     `gorm:"column:status;not null;index" json:"status"`
	ProcessingStatus string     `gorm:"column:processing_status;not null;index" json:"processing_status"`
	ProcessingError  *string    `gorm:"column:processing_error" json:"processing_error,omitempty"`
	JobID            *uuid.UUID `gorm:"type:uuid;column:job_id" json:"job_id,omitempty"`

	Position *int `gorm:"column:position;uniqueIndex" json:"position,omitempty"`

	BaseLikeCount     int64     `gorm:"column:base_like_count;not null;default:0" json:"-"`
	LastLikeIncrement time.Time `gorm:"column:last_like_increment;not null" json:"-"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Game) TableName() string { return "game" }

func (g *Game) BeforeCreate(tx *gorm.DB) error {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	if g.LastLikeIncrement.IsZero() {
		g.LastLikeIncrement = time.Now().UTC()
	}
	return nil
}

func (g *Game) IsActive() bool { return g != nil && g.Status == StatusActive }
