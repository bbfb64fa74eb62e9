package likes

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/playhub-backend/internal/domain"
	"github.com/yungbote/playhub-backend/internal/platform/dbctx"
	"github.com/yungbote/playhub-backend/internal/platform/logger"
)

type ExplicitLikeRepo interface {
	// InsertIfAbsent reports whether a new row was written.
	InsertIfAbsent(dbc dbctx.Context, userID, gameID uuid.UUID) (bool, error)
	Delete(dbc dbctx.Context, userID, gameID uuid.UUID) (bool, error)
	Exists(dbc dbctx.Context, userID, gameID uuid.UUID) (bool, error)
	CountByGame(dbc dbctx.Context, gameID uuid.UUID) (int64, error)
	CountByGames(dbc dbctx.Context, gameIDs []uuid.UUID) (map[uuid.UUID]int64, error)
	ListUserIDsByGame(dbc dbctx.Context, gameID uuid.UUID) ([]uuid.UUID, error)
	DeleteByGame(dbc dbctx.Context, gameID uuid.UUID) error
}

type explicitLikeRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewExplicitLikeRepo(db *gorm.DB, baseLog *logger.Logger) ExplicitLikeRepo {
	return &explicitLikeRepo{
		db:  db,
		log: baseLog.With("repo", "ExplicitLikeRepo"),
	}
}

func (r *explicitLikeRepo) tx(dbc dbctx.Context) *gorm.DB {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx)
}

func (r *explicitLikeRepo) InsertIfAbsent(dbc dbctx.Context, userID, gameID uuid.UUID) (bool, error) {
	if userID == uuid.Nil || gameID == uuid.Nil {
		return false, nil
	}
	res := r.tx(dbc).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "game_id"}},
			DoNothing: true,
		}).
		Create(&types.ExplicitLike{UserID: userID, GameID: gameID})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *explicitLikeRepo) Delete(dbc dbctx.Context, userID, gameID uuid.UUID) (bool, error) {
	res := r.tx(dbc).Where("user_id = ? AND game_id = ?", userID, gameID).Delete(&types.ExplicitLike{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *explicitLikeRepo) Exists(dbc dbctx.Context, userID, gameID uuid.UUID) (bool, error) {
	var count int64
	if err := r.tx(dbc).Model(&types.ExplicitLike{}).
		Where("user_id = ? AND game_id = ?", userID, gameID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *explicitLikeRepo) CountByGame(dbc dbctx.Context, gameID uuid.UUID) (int64, error) {
	var count int64
	if err := r.tx(dbc).Model(&types.ExplicitLike{}).Where("game_id = ?", gameID).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *explicitLikeRepo) CountByGames(dbc dbctx.Context, gameIDs []uuid.UUID) (map[uuid.UUID]int64, error) {
	out := make(map[uuid.UUID]int64, len(gameIDs))
	if len(gameIDs) == 0 {
		return out, nil
	}
	var rows []struct {
		GameID uuid.UUID
		N      int64
	}
	if err := r.tx(dbc).Model(&types.ExplicitLike{}).
		Select("game_id, COUNT(*) AS n").
		Where("game_id IN ?", gameIDs).
		Group("game_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.GameID] = row.N
	}
	return out, nil
}

func (r *explicitLikeRepo) ListUserIDsByGame(dbc dbctx.Context, gameID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := r.tx(dbc).Model(&types.ExplicitLike{}).
		Where("game_id = ?", gameID).
		Order("created_at ASC").
		Pluck("user_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *explicitLikeRepo) DeleteByGame(dbc dbctx.Context, gameID uuid.UUID) error {
	return r.tx(dbc).Where("game_id = ?", gameID).Delete(&types.ExplicitLike{}).Error
}
