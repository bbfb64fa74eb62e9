package games

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/playhub-backend/internal/domain"
	"github.com/yungbote/playhub-backend/internal/platform/dbctx"
	"github.com/yungbote/playhub-backend/internal/platform/logger"
)

type PositionHistoryRepo interface {
	// GetOrCreate returns the (game, position) row, creating it on first occupancy.
	GetOrCreate(dbc dbctx.Context, gameID uuid.UUID, position int) (*types.PositionHistory, error)
	IncrementClicks(dbc dbctx.Context, gameID uuid.UUID, position int) (bool, error)
	ListByGame(dbc dbctx.Context, gameID uuid.UUID) ([]*types.PositionHistory, error)
	DeleteByGame(dbc dbctx.Context, gameID uuid.UUID) error
}

type positionHistoryRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPositionHistoryRepo(db *gorm.DB, baseLog *logger.Logger) PositionHistoryRepo {
	return &positionHistoryRepo{
		db:  db,
		log: baseLog.With("repo", "PositionHistoryRepo"),
	}
}

func (r *positionHistoryRepo) GetOrCreate(dbc dbctx.Context, gameID uuid.UUID, position int) (*types.PositionHistory, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	row := &types.PositionHistory{GameID: gameID, Position: position}
	err := transaction.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "game_id"}, {Name: "position"}},
			DoNothing: true,
		}).
		Create(row).Error
	if err != nil {
		return nil, err
	}
	var out types.PositionHistory
	if err := transaction.WithContext(dbc.Ctx).
		Where("game_id = ? AND position = ?", gameID, position).
		First(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *positionHistoryRepo) IncrementClicks(dbc dbctx.Context, gameID uuid.UUID, position int) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(dbc.Ctx).
		Model(&types.PositionHistory{}).
		Where("game_id = ? AND position = ?", gameID, position).
		Updates(map[string]interface{}{
			"click_count": gorm.Expr("click_count + 1"),
			"updated_at":  time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *positionHistoryRepo) ListByGame(dbc dbctx.Context, gameID uuid.UUID) ([]*types.PositionHistory, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.PositionHistory
	if err := transaction.WithContext(dbc.Ctx).
		Where("game_id = ?", gameID).
		Order("position ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *positionHistoryRepo) DeleteByGame(dbc dbctx.Context, gameID uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).Where("game_id = ?", gameID).Delete(&types.PositionHistory{}).Error
}
