package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/playhub-backend/internal/platform/ctxutil"
	"github.com/yungbote/playhub-backend/internal/platform/logger"
	"github.com/yungbote/playhub-backend/internal/services"
)

func authRouter(t *testing.T) (*gin.Engine, services.AuthService) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	auth := services.NewAuthService(logger.Nop(), "test-secret")
	am := NewAuthMiddleware(logger.Nop(), auth)

	r := gin.New()
	whoami := func(c *gin.Context) {
		rd := ctxutil.GetRequestData(c.Request.Context())
		if rd == nil {
			c.String(http.StatusOK, "anonymous")
			return
		}
		c.String(http.StatusOK, rd.UserID.String())
	}
	r.GET("/public", am.OptionalAuth(), whoami)
	r.GET("/private", am.RequireAuth(), whoami)
	r.GET("/admin", am.RequireAuth(), am.RequireAdmin(), whoami)
	return r, auth
}

func do(r http.Handler, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestRequireAuth(t *testing.T) {
	r, auth := authRouter(t)
	userID := uuid.New()
	token, err := auth.IssueToken(userID, "", time.Hour)
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, do(r, "/private", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, "/private", "garbage").Code)

	rec := do(r, "/private", token)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, userID.String(), rec.Body.String())

	// EventSource clients pass the token in the query string
	rec = do(r, "/private?token="+token, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestForeignTokenRejected(t *testing.T) {
	r, _ := authRouter(t)
	other := services.NewAuthService(logger.Nop(), "other-secret")
	foreign, err := other.IssueToken(uuid.New(), "admin", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, do(r, "/private", foreign).Code)
}

func TestRequireAdmin(t *testing.T) {
	r, auth := authRouter(t)
	user, err := auth.IssueToken(uuid.New(), "", time.Hour)
	require.NoError(t, err)
	admin, err := auth.IssueToken(uuid.New(), "Admin", time.Hour)
	require.NoError(t, err)

	assert.Equal(t, http.StatusForbidden, do(r, "/admin", user).Code)
	assert.Equal(t, http.StatusOK, do(r, "/admin", admin).Code)
}

func TestOptionalAuth(t *testing.T) {
	r, auth := authRouter(t)
	userID := uuid.New()
	token, err := auth.IssueToken(userID, "", time.Hour)
	require.NoError(t, err)

	assert.Equal(t, "anonymous", do(r, "/public", "").Body.String())
	assert.Equal(t, "anonymous", do(r, "/public", "garbage").Body.String())
	assert.Equal(t, userID.String(), do(r, "/public", token).Body.String())
}
