package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/apperr"
)

// handleError maps handler errors to responses. Validation failures report
// their message; upstream and internal failures are logged and hidden.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	ctx := c.Request().Context()

	status := http.StatusInternalServerError
	message := "internal server error"

	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		status = he.Code
		if m, ok := he.Message.(string); ok {
			message = m
		} else {
			message = http.StatusText(he.Code)
		}
	case apperr.Is(err, apperr.KindValidation):
		status = http.StatusBadRequest
		message = err.Error()
	case apperr.Is(err, apperr.KindUnauthorized):
		status = http.StatusUnauthorized
		message = unauthorizedMessage
	default:
		s.logger.Error(ctx, "request failed",
			zap.String("kind", string(apperr.KindOf(err))),
			zap.Error(err),
		)
	}

	var writeErr error
	if c.Request().Method == http.MethodHead {
		writeErr = c.NoContent(status)
	} else {
		writeErr = c.JSON(status, ErrorResponse{Error: message})
	}
	if writeErr != nil {
		s.logger.Warn(ctx, "failed to write error response", zap.Error(writeErr))
	}
}
