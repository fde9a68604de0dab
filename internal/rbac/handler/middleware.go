package handler

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const callerKey = "caller_id"

func RequestIDMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		reqID := c.Request().Header.Get(echo.HeaderXRequestID)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Response().Header().Set(echo.HeaderXRequestID, reqID)
		return next(c)
	}
}

// CallerID returns the caller set by the RBAC middleware.
func CallerID(c echo.Context) string {
	id, _ := c.Get(callerKey).(string)
	return id
}
