package apierr

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	domainagg "github.com/yungbote/playhub-backend/internal/domain/aggregates"
)

func TestFromErrorMapsTaxonomy(t *testing.T) {
	cases := map[domainagg.ErrorCode]int{
		domainagg.CodeValidation:         http.StatusBadRequest,
		domainagg.CodeNotFound:           http.StatusNotFound,
		domainagg.CodeConflict:           http.StatusConflict,
		domainagg.CodeInvariantViolation: http.StatusConflict,
		domainagg.CodeRetryable:          http.StatusServiceUnavailable,
		domainagg.CodeTerminal:           http.StatusUnprocessableEntity,
	}
	for code, status := range cases {
		got := FromError(domainagg.NewError(code, "op", "msg", nil))
		assert.Equal(t, status, got.Status, string(code))
		assert.Equal(t, string(code), got.Code)
	}
}

func TestFromErrorUnknownIsInternal(t *testing.T) {
	got := FromError(errors.New("boom"))
	assert.Equal(t, http.StatusInternalServerError, got.Status)
	assert.Equal(t, "internal", got.Code)
	assert.Nil(t, FromError(nil))
}

func TestFromErrorPassesThroughAPIError(t *testing.T) {
	in := New(http.StatusTeapot, "teapot", errors.New("short and stout"))
	assert.Same(t, in, FromError(in))
}
