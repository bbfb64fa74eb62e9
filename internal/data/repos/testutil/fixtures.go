package testutil

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/playhub-backend/internal/domain"
)

func SeedCategory(tb testing.TB, ctx context.Context, tx *gorm.DB, name string, isDefault bool) *types.Category {
	tb.Helper()
	c := &types.Category{
		ID:        uuid.New(),
		Name:      name,
		Slug:      strings.ToLower(strings.ReplaceAll(name, " ", "-")),
		IsDefault: isDefault,
	}
	if err := tx.WithContext(ctx).Create(c).Error; err != nil {
		tb.Fatalf("seed category: %v", err)
	}
	return c
}

// SeedGame inserts a published game at position (nil leaves it unplaced).
func SeedGame(tb testing.TB, ctx context.Context, tx *gorm.DB, categoryID uuid.UUID, title string, position *int) *types.Game {
	tb.Helper()
	g := &types.Game{
		ID:               uuid.New(),
		Title:            title,
		Slug:             strings.ToLower(strings.ReplaceAll(title, " ", "-")) + "-" + uuid.NewString()[:8],
		CategoryID:       categoryID,
		Status:           types.GameStatusActive,
		ProcessingStatus: types.ProcessingCompleted,
		Position:         position,
	}
	if err := tx.WithContext(ctx).Create(g).Error; err != nil {
		tb.Fatalf("seed game: %v", err)
	}
	return g
}

func PtrInt(v int) *int { return &v }

func PtrUUID(v uuid.UUID) *uuid.UUID { return &v }
