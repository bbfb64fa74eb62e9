package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	domainagg "github.com/yungbote/playhub-backend/internal/domain/aggregates"
	"github.com/yungbote/playhub-backend/internal/http/response"
	"github.com/yungbote/playhub-backend/internal/services"
)

type GameHandler struct {
	games  services.GameService
	intake services.GameIntakeService
	likes  services.LikeService
}

func NewGameHandler(games services.GameService, intake services.GameIntakeService, likes services.LikeService) *GameHandler {
	return &GameHandler{games: games, intake: intake, likes: likes}
}

// GET /api/games
func (h *GameHandler) ListGames(c *gin.Context) {
	_, admin := caller(c)
	q := services.ListGamesQuery{
		Page:     intQuery(c, "page"),
		PageSize: intQuery(c, "pageSize"),
		Admin:    admin,
	}
	if admin {
		q.Status = strings.TrimSpace(c.Query("status"))
	}
	if raw := strings.TrimSpace(c.Query("categoryId")); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			response.RespondAPIError(c, domainagg.Validation("list_games", "invalid categoryId"))
			return
		}
		q.CategoryID = &id
	}
	page, err := h.games.List(c.Request.Context(), q)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, page)
}

// GET /api/games/:id (id or slug)
func (h *GameHandler) GetGame(c *gin.Context) {
	viewer, admin := caller(c)
	game, err := h.games.Get(c.Request.Context(), c.Param("id"), viewer, admin)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"game": game})
}

// GET /api/search
func (h *GameHandler) Search(c *gin.Context) {
	page, err := h.games.Search(c.Request.Context(), c.Query("q"), intQuery(c, "page"), intQuery(c, "pageSize"))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, page)
}

// POST /api/games/:id/play
func (h *GameHandler) Play(c *gin.Context) {
	if err := h.games.Play(c.Request.Context(), c.Param("id")); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// POST /api/games/:id/like
func (h *GameHandler) Like(c *gin.Context) {
	h.toggleLike(c, true)
}

// DELETE /api/games/:id/like
func (h *GameHandler) Unlike(c *gin.Context) {
	h.toggleLike(c, false)
}

func (h *GameHandler) toggleLike(c *gin.Context, like bool) {
	gameID, err := uuidParam(c, "id", "like_game")
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	userID, _ := caller(c)
	var view *services.LikeView
	if like {
		view, err = h.likes.Like(c.Request.Context(), userID, gameID)
	} else {
		view, err = h.likes.Unlike(c.Request.Context(), userID, gameID)
	}
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, view)
}

// POST /api/admin/games
func (h *GameHandler) CreateGame(c *gin.Context) {
	var req services.CreateGameRequest
	if err := bindJSON(c, "create_game", &req); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	userID, _ := caller(c)
	res, err := h.intake.Create(c.Request.Context(), req, userID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondCreated(c, res)
}

// PATCH /api/admin/games/:id
func (h *GameHandler) UpdateGame(c *gin.Context) {
	id, err := uuidParam(c, "id", "update_game")
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	var req services.UpdateGameRequest
	if err := bindJSON(c, "update_game", &req); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	game, err := h.games.Update(c.Request.Context(), id, req)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"game": game})
}

// PUT /api/admin/games/:id/archive
func (h *GameHandler) ReuploadArchive(c *gin.Context) {
	id, err := uuidParam(c, "id", "reupload_game")
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	var req services.ReuploadRequest
	if err := bindJSON(c, "reupload_game", &req); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	userID, _ := caller(c)
	res, err := h.intake.Reupload(c.Request.Context(), id, req, userID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, res)
}

// PATCH /api/admin/games/:id/status
func (h *GameHandler) SetStatus(c *gin.Context) {
	id, err := uuidParam(c, "id", "set_game_status")
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	var req services.SetStatusRequest
	if err := bindJSON(c, "set_game_status", &req); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	game, err := h.games.SetStatus(c.Request.Context(), id, req)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"game": game})
}

// POST /api/admin/games/status
func (h *GameHandler) BulkSetStatus(c *gin.Context) {
	var req services.BulkStatusRequest
	if err := bindJSON(c, "bulk_game_status", &req); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	res, err := h.games.BulkSetStatus(c.Request.Context(), req)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, res)
}

// DELETE /api/admin/games/:id
func (h *GameHandler) DeleteGame(c *gin.Context) {
	id, err := uuidParam(c, "id", "delete_game")
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	if err := h.games.Delete(c.Request.Context(), id); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GET /api/admin/games/:id/processing
func (h *GameHandler) ProcessingStatus(c *gin.Context) {
	id, err := uuidParam(c, "id", "processing_status")
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	view, err := h.games.ProcessingStatus(c.Request.Context(), id)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, view)
}

// POST /api/admin/games/:id/retry
func (h *GameHandler) Retry(c *gin.Context) {
	id, err := uuidParam(c, "id", "retry_game")
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	userID, _ := caller(c)
	view, err := h.games.Retry(c.Request.Context(), id, userID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, view)
}
