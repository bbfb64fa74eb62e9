package handlers

import (
	"github.com/gin-gonic/gin"

	domainagg "github.com/yungbote/playhub-backend/internal/domain/aggregates"
	"github.com/yungbote/playhub-backend/internal/http/response"
	"github.com/yungbote/playhub-backend/internal/services"
)

type UploadHandler struct {
	uploads services.UploadService
}

func NewUploadHandler(uploads services.UploadService) *UploadHandler {
	return &UploadHandler{uploads: uploads}
}

// POST /api/admin/uploads (multipart: file, kind=archive|thumbnail)
func (h *UploadHandler) Upload(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		response.RespondAPIError(c, domainagg.Validation("upload", "missing file"))
		return
	}
	f, err := fh.Open()
	if err != nil {
		response.RespondAPIError(c, domainagg.NewError(domainagg.CodeValidation, "upload", "unreadable file", err))
		return
	}
	defer f.Close()

	res, err := h.uploads.Upload(c.Request.Context(), services.UploadRequest{
		Kind:     c.PostForm("kind"),
		Filename: fh.Filename,
		Size:     fh.Size,
	}, f)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondCreated(c, res)
}
