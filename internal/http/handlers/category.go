package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/playhub-backend/internal/http/response"
	"github.com/yungbote/playhub-backend/internal/services"
)

type CategoryHandler struct {
	categories services.CategoryService
	games      services.GameService
}

func NewCategoryHandler(categories services.CategoryService, games services.GameService) *CategoryHandler {
	return &CategoryHandler{categories: categories, games: games}
}

// GET /api/categories
func (h *CategoryHandler) ListCategories(c *gin.Context) {
	cats, err := h.categories.List(c.Request.Context())
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"categories": cats})
}

// GET /api/categories/:id/games
func (h *CategoryHandler) ListCategoryGames(c *gin.Context) {
	id, err := uuidParam(c, "id", "list_category_games")
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	if _, err := h.categories.Get(c.Request.Context(), id); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	_, admin := caller(c)
	page, err := h.games.List(c.Request.Context(), services.ListGamesQuery{
		Page:       intQuery(c, "page"),
		PageSize:   intQuery(c, "pageSize"),
		CategoryID: &id,
		Admin:      admin,
	})
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, page)
}

// POST /api/admin/categories
func (h *CategoryHandler) CreateCategory(c *gin.Context) {
	var req services.CategoryRequest
	if err := bindJSON(c, "create_category", &req); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	cat, err := h.categories.Create(c.Request.Context(), req)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"category": cat})
}

// PATCH /api/admin/categories/:id
func (h *CategoryHandler) RenameCategory(c *gin.Context) {
	id, err := uuidParam(c, "id", "rename_category")
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	var req services.CategoryRequest
	if err := bindJSON(c, "rename_category", &req); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	cat, err := h.categories.Rename(c.Request.Context(), id, req)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"category": cat})
}
