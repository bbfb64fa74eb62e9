package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/playhub-backend/internal/http/response"
	"github.com/yungbote/playhub-backend/internal/platform/dbctx"
	"github.com/yungbote/playhub-backend/internal/services"
)

type JobHandler struct {
	jobs services.JobService
}

func NewJobHandler(jobs services.JobService) *JobHandler {
	return &JobHandler{jobs: jobs}
}

// GET /api/admin/jobs/:id
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID, err := uuidParam(c, "id", "get_job")
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	job, err := h.jobs.GetByID(dbctx.Context{Ctx: c.Request.Context()}, jobID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"job": job})
}
