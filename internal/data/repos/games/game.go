package games

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/playhub-backend/internal/domain"
	"github.com/yungbote/playhub-backend/internal/platform/dbctx"
	"github.com/yungbote/playhub-backend/internal/platform/logger"
)

// ListFilter narrows game listings. Zero values mean "any".
type ListFilter struct {
	CategoryID *uuid.UUID
	Status     string
	Query      string
	Offset     int
	Limit      int
}

type GameRepo interface {
	Create(dbc dbctx.Context, game *types.Game) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Game, error)
	GetBySlug(dbc dbctx.Context, slug string) (*types.Game, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Game, error)
	GetByPosition(dbc dbctx.Context, position int) (*types.Game, error)
	List(dbc dbctx.Context, f ListFilter) ([]*types.Game, int64, error)
	ListAfterID(dbc dbctx.Context, after uuid.UUID, limit int) ([]*types.Game, error)
	SlugsWithPrefix(dbc dbctx.Context, base string) ([]string, error)
	Count(dbc dbctx.Context) (int64, error)
	MaxPosition(dbc dbctx.Context) (int, error)
	SetPosition(dbc dbctx.Context, id uuid.UUID, position *int) error
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	UpdateFieldsIfProcessing(dbc dbctx.Context, id uuid.UUID, allowed []string, updates map[string]interface{}) (bool, error)
	UpdateStatusBulk(dbc dbctx.Context, ids []uuid.UUID, status string) ([]uuid.UUID, error)
	Delete(dbc dbctx.Context, id uuid.UUID) error
}

type gameRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewGameRepo(db *gorm.DB, baseLog *logger.Logger) GameRepo {
	return &gameRepo{
		db:  db,
		log: baseLog.With("repo", "GameRepo"),
	}
}

func (r *gameRepo) tx(dbc dbctx.Context) *gorm.DB {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx)
}

func (r *gameRepo) Create(dbc dbctx.Context, game *types.Game) error {
	return r.tx(dbc).Create(game).Error
}

func (r *gameRepo) findOne(q *gorm.DB) (*types.Game, error) {
	var g types.Game
	if err := q.Limit(1).Find(&g).Error; err != nil {
		return nil, err
	}
	if g.ID == uuid.Nil {
		return nil, nil
	}
	return &g, nil
}

func (r *gameRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Game, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	return r.findOne(r.tx(dbc).Where("id = ?", id))
}

func (r *gameRepo) GetBySlug(dbc dbctx.Context, slug string) (*types.Game, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return nil, nil
	}
	return r.findOne(r.tx(dbc).Where("slug = ?", slug))
}

func (r *gameRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Game, error) {
	var out []*types.Game
	if len(ids) == 0 {
		return out, nil
	}
	if err := r.tx(dbc).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *gameRepo) GetByPosition(dbc dbctx.Context, position int) (*types.Game, error) {
	return r.findOne(r.tx(dbc).Where("position = ?", position))
}

// display order: positioned games first by position, then unpositioned by age
const displayOrder = "CASE WHEN position IS NULL THEN 1 ELSE 0 END ASC, position ASC, created_at ASC, id ASC"

func (r *gameRepo) List(dbc dbctx.Context, f ListFilter) ([]*types.Game, int64, error) {
	filtered := func() *gorm.DB {
		q := r.tx(dbc).Model(&types.Game{})
		if f.CategoryID != nil && *f.CategoryID != uuid.Nil {
			q = q.Where("category_id = ?", *f.CategoryID)
		}
		if s := strings.TrimSpace(f.Status); s != "" {
			q = q.Where("status = ?", s)
		}
		if term := strings.ToLower(strings.TrimSpace(f.Query)); term != "" {
			q = q.Where("LOWER(title) LIKE ?", "%"+escapeLike(term)+"%")
		}
		return q
	}
	var total int64
	if err := filtered().Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []*types.Game
	q := filtered().Order(displayOrder)
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer("%", "", "_", "").Replace(s)
}

func (r *gameRepo) ListAfterID(dbc dbctx.Context, after uuid.UUID, limit int) ([]*types.Game, error) {
	if limit <= 0 {
		limit = 500
	}
	var out []*types.Game
	q := r.tx(dbc).Order("id ASC").Limit(limit)
	if after != uuid.Nil {
		q = q.Where("id > ?", after)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *gameRepo) SlugsWithPrefix(dbc dbctx.Context, base string) ([]string, error) {
	var out []string
	err := r.tx(dbc).Model(&types.Game{}).
		Where("slug = ? OR slug LIKE ?", base, escapeLike(base)+"-%").
		Pluck("slug", &out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *gameRepo) Count(dbc dbctx.Context) (int64, error) {
	var n int64
	if err := r.tx(dbc).Model(&types.Game{}).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

func (r *gameRepo) MaxPosition(dbc dbctx.Context) (int, error) {
	var max int64
	if err := r.tx(dbc).Model(&types.Game{}).Select("COALESCE(MAX(position), 0)").Row().Scan(&max); err != nil {
		return 0, err
	}
	return int(max), nil
}

func (r *gameRepo) SetPosition(dbc dbctx.Context, id uuid.UUID, position *int) error {
	return r.tx(dbc).Model(&types.Game{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"position":   position,
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *gameRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return r.tx(dbc).Model(&types.Game{}).Where("id = ?", id).Updates(updates).Error
}

// UpdateFieldsIfProcessing applies updates only while processing_status is one of allowed.
func (r *gameRepo) UpdateFieldsIfProcessing(dbc dbctx.Context, id uuid.UUID, allowed []string, updates map[string]interface{}) (bool, error) {
	if id == uuid.Nil {
		return false, nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	q := r.tx(dbc).Model(&types.Game{}).Where("id = ?", id)
	if len(allowed) > 0 {
		q = q.Where("processing_status IN ?", allowed)
	}
	res := q.Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// UpdateStatusBulk sets status on every listed game that can take it and returns the ids changed.
// The guard sits in each UPDATE, so a game whose processing restarts concurrently never becomes active.
func (r *gameRepo) UpdateStatusBulk(dbc dbctx.Context, ids []uuid.UUID, status string) ([]uuid.UUID, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	now := time.Now().UTC()
	seen := make(map[uuid.UUID]struct{}, len(ids))
	changed := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		q := r.tx(dbc).Model(&types.Game{}).Where("id = ? AND status <> ?", id, status)
		if status == types.GameStatusActive {
			q = q.Where("processing_status = ?", types.ProcessingCompleted)
		}
		res := q.Updates(map[string]interface{}{"status": status, "updated_at": now})
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected > 0 {
			changed = append(changed, id)
		}
	}
	return changed, nil
}

func (r *gameRepo) Delete(dbc dbctx.Context, id uuid.UUID) error {
	return r.tx(dbc).Where("id = ?", id).Delete(&types.Game{}).Error
}
