package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/playhub-backend/internal/platform/ctxutil"
)

func traceRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AttachTraceContext())
	r.GET("/t", func(c *gin.Context) {
		td := ctxutil.GetTraceData(c.Request.Context())
		if td == nil {
			c.String(http.StatusInternalServerError, "missing")
			return
		}
		c.String(http.StatusOK, td.TraceID+"|"+td.RequestID)
	})
	return r
}

func TestTraceContextReusesClientIDs(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/t", nil)
	req.Header.Set(headerTraceID, "trace-abc.1")
	req.Header.Set(headerRequestID, " req_42 ")
	w := httptest.NewRecorder()
	traceRouter().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "trace-abc.1|req_42", w.Body.String())
	assert.Equal(t, "trace-abc.1", w.Header().Get(headerTraceID))
	assert.Equal(t, "req_42", w.Header().Get(headerRequestID))
}

func TestTraceContextReplacesUnsafeIDs(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/t", nil)
	req.Header.Set(headerTraceID, "bad id\" level=error")
	req.Header.Set(headerRequestID, strings.Repeat("a", maxCorrelationIDLen+1))
	w := httptest.NewRecorder()
	traceRouter().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	parts := strings.SplitN(w.Body.String(), "|", 2)
	require.Len(t, parts, 2)
	_, err := uuid.Parse(parts[0])
	assert.NoError(t, err)
	_, err = uuid.Parse(parts[1])
	assert.NoError(t, err)
	assert.Equal(t, parts[0], w.Header().Get(headerTraceID))
	assert.Equal(t, parts[1], w.Header().Get(headerRequestID))
}
