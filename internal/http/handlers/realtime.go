package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/playhub-backend/internal/http/response"
	"github.com/yungbote/playhub-backend/internal/platform/logger"
	"github.com/yungbote/playhub-backend/internal/realtime"
)

type RealtimeHandler struct {
	log *logger.Logger
	hub *realtime.SSEHub
}

func NewRealtimeHandler(log *logger.Logger, hub *realtime.SSEHub) *RealtimeHandler {
	return &RealtimeHandler{log: log.With("handler", "RealtimeHandler"), hub: hub}
}

// GET /api/sse/stream?games=<id>,<id>
//
// Every stream receives the caller's own channel. Admins may also follow
// individual games to watch their processing progress.
func (h *RealtimeHandler) SSEStream(c *gin.Context) {
	userID, admin := caller(c)
	if userID == uuid.Nil {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", errNotAuthenticated)
		return
	}

	client := h.hub.NewSSEClient(userID)
	client.ID = uuid.New()
	h.hub.AddChannel(client, realtime.UserChannel(userID))
	if admin {
		for _, raw := range strings.Split(c.Query("games"), ",") {
			if id, err := uuid.Parse(strings.TrimSpace(raw)); err == nil {
				h.hub.AddChannel(client, realtime.GameChannel(id))
			}
		}
	}
	h.log.Debug("SSE stream open", "user_id", userID, "client_id", client.ID)

	h.hub.ServeHTTP(c.Writer, c.Request, client)
	h.hub.CloseClient(client)
}
