package handlers

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	domainagg "github.com/yungbote/playhub-backend/internal/domain/aggregates"
	"github.com/yungbote/playhub-backend/internal/platform/ctxutil"
)

func uuidParam(c *gin.Context, name, op string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(c.Param(name)))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, domainagg.Validation(op, "invalid "+name)
	}
	return id, nil
}

func intQuery(c *gin.Context, name string) int {
	n, err := strconv.Atoi(strings.TrimSpace(c.Query(name)))
	if err != nil {
		return 0
	}
	return n
}

// caller returns the verified user id (uuid.Nil when anonymous) and the admin flag.
func caller(c *gin.Context) (uuid.UUID, bool) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil {
		return uuid.Nil, false
	}
	return rd.UserID, rd.IsAdmin()
}

func bindJSON(c *gin.Context, op string, dst any) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		return domainagg.NewError(domainagg.CodeValidation, op, "invalid request body", err)
	}
	return nil
}
