package handler

import (
	"errors"
	"net/http"

	"scopedrbac/internal/rbac/model"
)

// Helper to map errors to HTTP status and body
func httpError(err error) (int, model.ErrorResponse) {
	var status int
	var code string
	msg := err.Error()

	var detail *model.ErrorDetail
	switch {
	case errors.As(err, &detail):
		return http.StatusBadRequest, model.ErrorResponse{Error: *detail}
	case errors.Is(err, model.ErrValidation):
		status, code = http.StatusBadRequest, "bad_request"
	case errors.Is(err, model.ErrAuthorization):
		status, code = http.StatusForbidden, "forbidden"
	case errors.Is(err, model.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, model.ErrConflict):
		status, code = http.StatusConflict, "conflict"
	case errors.Is(err, model.ErrDependency):
		// Driver details stay in the logs.
		status, code, msg = http.StatusServiceUnavailable, "unavailable", "Storage temporarily unavailable"
	default:
		status, code, msg = http.StatusInternalServerError, "internal_error", "Internal error"
	}

	return status, model.ErrorResponse{
		Error: model.ErrorDetail{Code: code, Message: msg},
	}
}

func errorResponse(code, msg string) model.ErrorResponse {
	return model.ErrorResponse{Error: model.ErrorDetail{Code: code, Message: msg}}
}
