package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"scopedrbac/internal/rbac/model"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func TestHTTPError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", model.ValidationErrorf("bad input"), http.StatusBadRequest, "bad_request"},
		{"field detail", &model.ErrorDetail{Code: "bad_request", Message: "Field validation"}, http.StatusBadRequest, "bad_request"},
		{"authorization", model.AuthorizationErrorf("nope"), http.StatusForbidden, "forbidden"},
		{"not found", model.NotFoundErrorf("role %q", "x"), http.StatusNotFound, "not_found"},
		{"conflict", model.ConflictErrorf("dup"), http.StatusConflict, "conflict"},
		{"dependency", model.DependencyError("find", context.DeadlineExceeded), http.StatusServiceUnavailable, "unavailable"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := httpError(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, body.Error.Code)
		})
	}

	_, body := httpError(model.DependencyError("find", errors.New("mongo: connection refused 10.0.0.1")))
	assert.NotContains(t, body.Error.Message, "10.0.0.1")
}

func TestRequestIDMiddleware(t *testing.T) {
	e := echo.New()
	h := RequestIDMiddleware(func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	assert.NoError(t, h(e.NewContext(req, rec)))
	assert.Len(t, rec.Header().Get(echo.HeaderXRequestID), 36)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(echo.HeaderXRequestID, "given")
	rec = httptest.NewRecorder()
	assert.NoError(t, h(e.NewContext(req, rec)))
	assert.Equal(t, "given", rec.Header().Get(echo.HeaderXRequestID))
}
