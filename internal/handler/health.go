package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Health is the liveness probe used by load balancers.  It returns a plain
// "ok" with status 200.
func Health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

// Root greets clients probing the API base URL.
func Root(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"message": "homewatch api"})
}
