package likes

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/playhub-backend/internal/domain"
	"github.com/yungbote/playhub-backend/internal/platform/dbctx"
	"github.com/yungbote/playhub-backend/internal/platform/logger"
)

type LikeCountCacheRepo interface {
	Get(dbc dbctx.Context, gameID uuid.UUID) (*types.LikeCountCache, error)
	GetByGameIDs(dbc dbctx.Context, gameIDs []uuid.UUID) (map[uuid.UUID]*types.LikeCountCache, error)
	Upsert(dbc dbctx.Context, row *types.LikeCountCache) error
	Delete(dbc dbctx.Context, gameID uuid.UUID) error
}

type likeCountCacheRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewLikeCountCacheRepo(db *gorm.DB, baseLog *logger.Logger) LikeCountCacheRepo {
	return &likeCountCacheRepo{
		db:  db,
		log: baseLog.With("repo", "LikeCountCacheRepo"),
	}
}

func (r *likeCountCacheRepo) tx(dbc dbctx.Context) *gorm.DB {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx)
}

func (r *likeCountCacheRepo) Get(dbc dbctx.Context, gameID uuid.UUID) (*types.LikeCountCache, error) {
	var row types.LikeCountCache
	if err := r.tx(dbc).Where("game_id = ?", gameID).Limit(1).Find(&row).Error; err != nil {
		return nil, err
	}
	if row.GameID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *likeCountCacheRepo) GetByGameIDs(dbc dbctx.Context, gameIDs []uuid.UUID) (map[uuid.UUID]*types.LikeCountCache, error) {
	out := make(map[uuid.UUID]*types.LikeCountCache, len(gameIDs))
	if len(gameIDs) == 0 {
		return out, nil
	}
	var rows []*types.LikeCountCache
	if err := r.tx(dbc).Where("game_id IN ?", gameIDs).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.GameID] = row
	}
	return out, nil
}

func (r *likeCountCacheRepo) Upsert(dbc dbctx.Context, row *types.LikeCountCache) error {
	if row == nil || row.GameID == uuid.Nil {
		return nil
	}
	row.UpdatedAt = time.Now().UTC()
	return r.tx(dbc).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "game_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"cached_like_count", "computed_for", "updated_at"}),
		}).
		Create(row).Error
}

func (r *likeCountCacheRepo) Delete(dbc dbctx.Context, gameID uuid.UUID) error {
	return r.tx(dbc).Where("game_id = ?", gameID).Delete(&types.LikeCountCache{}).Error
}
