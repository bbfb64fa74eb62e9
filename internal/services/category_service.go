package services

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/playhub-backend/internal/cache"
	dataagg "github.com/yungbote/playhub-backend/internal/data/aggregates"
	"github.com/yungbote/playhub-backend/internal/data/repos"
	types "github.com/yungbote/playhub-backend/internal/domain"
	domainagg "github.com/yungbote/playhub-backend/internal/domain/aggregates"
	"github.com/yungbote/playhub-backend/internal/platform/dbctx"
	"github.com/yungbote/playhub-backend/internal/platform/logger"
)

type CategoryRequest struct {
	Name string `json:"name" validate:"required,max=80"`
}

type CategoryService interface {
	List(ctx context.Context) ([]*types.Category, error)
	Get(ctx context.Context, id uuid.UUID) (*types.Category, error)
	Create(ctx context.Context, req CategoryRequest) (*types.Category, error)
	Rename(ctx context.Context, id uuid.UUID, req CategoryRequest) (*types.Category, error)
	// EnsureDefault returns the default category, creating it under name when none exists.
	EnsureDefault(ctx context.Context, name string) (*types.Category, error)
	// Resolve returns the category with id, or the default category when id is nil.
	Resolve(dbc dbctx.Context, id *uuid.UUID) (*types.Category, error)
}

type categoryService struct {
	log         *logger.Logger
	categories  repos.CategoryRepo
	cache       *cache.Cache
	invalidator CacheInvalidator
}

func NewCategoryService(baseLog *logger.Logger, categories repos.CategoryRepo, c *cache.Cache, invalidator CacheInvalidator) CategoryService {
	return &categoryService{
		log:         baseLog.With("service", "CategoryService"),
		categories:  categories,
		cache:       c,
		invalidator: invalidator,
	}
}

func (s *categoryService) List(ctx context.Context) ([]*types.Category, error) {
	load := func(ctx context.Context) ([]*types.Category, error) {
		return s.categories.List(dbctx.Background(ctx))
	}
	if s.cache == nil {
		return load(ctx)
	}
	return cache.GetOrLoad(ctx, s.cache, s.cache.Keys().Categories(), load)
}

func (s *categoryService) Get(ctx context.Context, id uuid.UUID) (*types.Category, error) {
	c, err := s.categories.GetByID(dbctx.Background(ctx), id)
	if err != nil {
		return nil, dataagg.MapError("get_category", err)
	}
	if c == nil {
		return nil, domainagg.NotFound("get_category", "category not found")
	}
	return c, nil
}

func (s *categoryService) Create(ctx context.Context, req CategoryRequest) (*types.Category, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := validateRequest("create_category", req); err != nil {
		return nil, err
	}
	dbc := dbctx.Background(ctx)
	existing, err := s.categories.GetByName(dbc, req.Name)
	if err != nil {
		return nil, dataagg.MapError("create_category", err)
	}
	if existing != nil {
		return nil, domainagg.Conflict("create_category", "a category named \""+existing.Name+"\" already exists")
	}
	c := &types.Category{Name: req.Name, Slug: Slugify(req.Name)}
	if err := s.categories.Create(dbc, c); err != nil {
		return nil, dataagg.MapError("create_category", err)
	}
	s.invalidator.CategoryUpdated(ctx, c.ID)
	return c, nil
}

func (s *categoryService) Rename(ctx context.Context, id uuid.UUID, req CategoryRequest) (*types.Category, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := validateRequest("rename_category", req); err != nil {
		return nil, err
	}
	dbc := dbctx.Background(ctx)
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Name == req.Name {
		return c, nil
	}
	clash, err := s.categories.GetByName(dbc, req.Name)
	if err != nil {
		return nil, dataagg.MapError("rename_category", err)
	}
	if clash != nil && clash.ID != c.ID {
		return nil, domainagg.Conflict("rename_category", "a category named \""+clash.Name+"\" already exists")
	}
	slug := Slugify(req.Name)
	if err := s.categories.UpdateFields(dbc, c.ID, map[string]interface{}{"name": req.Name, "slug": slug}); err != nil {
		return nil, dataagg.MapError("rename_category", err)
	}
	c.Name = req.Name
	c.Slug = slug
	s.invalidator.CategoryUpdated(ctx, c.ID)
	return c, nil
}

func (s *categoryService) EnsureDefault(ctx context.Context, name string) (*types.Category, error) {
	dbc := dbctx.Background(ctx)
	def, err := s.categories.GetDefault(dbc)
	if err != nil {
		return nil, dataagg.MapError("ensure_default_category", err)
	}
	if def != nil {
		return def, nil
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = "Uncategorized"
	}
	// promote an existing category with that name rather than clash on the unique index
	existing, err := s.categories.GetByName(dbc, name)
	if err != nil {
		return nil, dataagg.MapError("ensure_default_category", err)
	}
	if existing != nil {
		if err := s.categories.UpdateFields(dbc, existing.ID, map[string]interface{}{"is_default": true}); err != nil {
			return nil, dataagg.MapError("ensure_default_category", err)
		}
		existing.IsDefault = true
		s.log.Info("default category promoted", "category_id", existing.ID, "name", existing.Name)
		return existing, nil
	}
	c := &types.Category{Name: name, Slug: Slugify(name), IsDefault: true}
	if err := s.categories.Create(dbc, c); err != nil {
		return nil, dataagg.MapError("ensure_default_category", err)
	}
	s.log.Info("default category created", "category_id", c.ID, "name", c.Name)
	s.invalidator.CategoryUpdated(ctx, c.ID)
	return c, nil
}

func (s *categoryService) Resolve(dbc dbctx.Context, id *uuid.UUID) (*types.Category, error) {
	if id != nil && *id != uuid.Nil {
		c, err := s.categories.GetByID(dbc, *id)
		if err != nil {
			return nil, dataagg.MapError("resolve_category", err)
		}
		if c == nil {
			return nil, domainagg.NotFound("resolve_category", "category not found")
		}
		return c, nil
	}
	def, err := s.categories.GetDefault(dbc)
	if err != nil {
		return nil, dataagg.MapError("resolve_category", err)
	}
	if def == nil {
		return nil, domainagg.NewError(domainagg.CodePreconditionFailed, "resolve_category", "no default category configured", nil)
	}
	return def, nil
}
