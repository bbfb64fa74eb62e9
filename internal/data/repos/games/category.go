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

type CategoryRepo interface {
	Create(dbc dbctx.Context, c *types.Category) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Category, error)
	GetByName(dbc dbctx.Context, name string) (*types.Category, error)
	GetDefault(dbc dbctx.Context) (*types.Category, error)
	List(dbc dbctx.Context) ([]*types.Category, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
}

type categoryRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCategoryRepo(db *gorm.DB, baseLog *logger.Logger) CategoryRepo {
	return &categoryRepo{
		db:  db,
		log: baseLog.With("repo", "CategoryRepo"),
	}
}

func (r *categoryRepo) Create(dbc dbctx.Context, c *types.Category) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).Create(c).Error
}

func (r *categoryRepo) first(dbc dbctx.Context, query string, args ...interface{}) (*types.Category, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var c types.Category
	if err := transaction.WithContext(dbc.Ctx).Where(query, args...).Limit(1).Find(&c).Error; err != nil {
		return nil, err
	}
	if c.ID == uuid.Nil {
		return nil, nil
	}
	return &c, nil
}

func (r *categoryRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Category, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	return r.first(dbc, "id = ?", id)
}

// GetByName matches case-insensitively.
func (r *categoryRepo) GetByName(dbc dbctx.Context, name string) (*types.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	return r.first(dbc, "LOWER(name) = ?", strings.ToLower(name))
}

func (r *categoryRepo) GetDefault(dbc dbctx.Context) (*types.Category, error) {
	return r.first(dbc, "is_default = ?", true)
}

func (r *categoryRepo) List(dbc dbctx.Context) ([]*types.Category, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Category
	if err := transaction.WithContext(dbc.Ctx).Order("name ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *categoryRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return transaction.WithContext(dbc.Ctx).Model(&types.Category{}).Where("id = ?", id).Updates(updates).Error
}
