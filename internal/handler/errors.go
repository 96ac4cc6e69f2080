package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/homewatch/internal/repository"
)

const requestTimeout = 5 * time.Second

// reqCtx bounds store and gateway work for one request.
func reqCtx(c echo.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), d)
}

// respondError maps service errors onto HTTP statuses.  Unclassified errors
// are logged and reported as a generic 500.
func respondError(c echo.Context, log *zap.Logger, err error) error {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, repository.ErrUnauthenticated):
		status = http.StatusUnauthorized
	case errors.Is(err, repository.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, repository.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, repository.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, repository.ErrLimitExceeded):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, repository.ErrGatewayFailure):
		status = http.StatusBadGateway
	case errors.Is(err, repository.ErrInvalid):
		status = http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	if status == http.StatusInternalServerError {
		log.Error("request failed",
			zap.String("method", c.Request().Method),
			zap.String("route", c.Path()),
			zap.Error(err))
		return c.JSON(status, echo.Map{"error": "internal server error"})
	}
	return c.JSON(status, echo.Map{"error": err.Error()})
}

func badBody(c echo.Context) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
}
