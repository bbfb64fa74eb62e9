package games

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/playhub-backend/internal/domain"
	"github.com/yungbote/playhub-backend/internal/platform/dbctx"
	"github.com/yungbote/playhub-backend/internal/platform/logger"
)

type FileRepo interface {
	// GetOrCreateByStorageKey makes publishing retries land on the same row.
	GetOrCreateByStorageKey(dbc dbctx.Context, f *types.File) (*types.File, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.File, error)
	ListByGame(dbc dbctx.Context, gameID uuid.UUID) ([]*types.File, error)
	DeleteByGame(dbc dbctx.Context, gameID uuid.UUID) error
}

type fileRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewFileRepo(db *gorm.DB, baseLog *logger.Logger) FileRepo {
	return &fileRepo{
		db:  db,
		log: baseLog.With("repo", "FileRepo"),
	}
}

func (r *fileRepo) GetOrCreateByStorageKey(dbc dbctx.Context, f *types.File) (*types.File, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	err := transaction.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "storage_key"}},
			DoNothing: true,
		}).
		Create(f).Error
	if err != nil {
		return nil, err
	}
	var out types.File
	if err := transaction.WithContext(dbc.Ctx).Where("storage_key = ?", f.StorageKey).First(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *fileRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.File, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.File
	if len(ids) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *fileRepo) ListByGame(dbc dbctx.Context, gameID uuid.UUID) ([]*types.File, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.File
	if err := transaction.WithContext(dbc.Ctx).Where("game_id = ?", gameID).Order("created_at ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *fileRepo) DeleteByGame(dbc dbctx.Context, gameID uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).Where("game_id = ?", gameID).Delete(&types.File{}).Error
}
