package games

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	FileKindGameIndex = "game_index"
	FileKindThumbnail = "thumbnail"
)

// File is a published object in the games bucket.
type File struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	GameID      uuid.UUID `gorm:"type:uuid;column:game_id;not null;index" json:"game_id"`
	Kind        string    `gorm:"column:kind;not null" json:"kind"`
	StorageKey  string    `gorm:"column:storage_key;not null;uniqueIndex" json:"storage_key"`
	PublicURL   string    `gorm:"column:public_url" json:"public_url"`
	ContentType string    `gorm:"column:content_type" json:"content_type,omitempty"`
	SizeBytes   int64     `gorm:"column:size_bytes" json:"size_bytes"`
	Width       int       `gorm:"column:width" json:"width,omitempty"`
	Height      int       `gorm:"column:height" json:"height,omitempty"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
}

func (File) TableName() string { return "file" }

func (f *File) BeforeCreate(tx *gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return nil
}
