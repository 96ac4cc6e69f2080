package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo/v4"
)

// DeviceKeyHeader carries the shared key devices authenticate with.
const DeviceKeyHeader = "X-Device-Key"

// DeviceKey guards the device ingestion endpoint.  An empty key rejects
// every request.
func DeviceKey(key string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			got := c.Request().Header.Get(DeviceKeyHeader)
			if key == "" || subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid device key"})
			}
			return next(c)
		}
	}
}
