package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/playhub-backend/internal/http/response"
	"github.com/yungbote/playhub-backend/internal/platform/gcp"
)

var errNotAuthenticated = errors.New("not authenticated")

// FileHandler serves published objects when storage is local or in memory;
// in GCS mode objects are served by the bucket or CDN and this is not mounted.
type FileHandler struct {
	storage gcp.BucketService
}

func NewFileHandler(storage gcp.BucketService) *FileHandler {
	return &FileHandler{storage: storage}
}

// GET /files/:category/*key
func (h *FileHandler) Serve(c *gin.Context) {
	// only published objects are public; uploads stay private
	if gcp.BucketCategory(c.Param("category")) != gcp.BucketCategoryGames {
		response.RespondError(c, http.StatusNotFound, "not_found", errors.New("not found"))
		return
	}
	key := strings.TrimPrefix(c.Param("key"), "/")
	if key == "" || strings.Contains(key, "..") {
		response.RespondError(c, http.StatusNotFound, "not_found", errors.New("not found"))
		return
	}
	rc, err := h.storage.DownloadFile(c.Request.Context(), gcp.BucketCategoryGames, key)
	if err != nil {
		if errors.Is(err, gcp.ErrObjectNotFound) {
			response.RespondError(c, http.StatusNotFound, "not_found", errors.New("not found"))
			return
		}
		response.RespondError(c, http.StatusBadGateway, "storage_unavailable", err)
		return
	}
	defer rc.Close()

	ct := gcp.ContentTypeForKey(key)
	if ct == "" {
		ct = "application/octet-stream"
	}
	c.Header("Content-Type", ct)
	c.Header("Cache-Control", "public, max-age=300")
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, rc)
}
