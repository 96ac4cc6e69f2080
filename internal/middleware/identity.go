package middleware

// identity.go resolves the acting user of a request.  The session cookie is
// the primary carrier; a bearer token is accepted when there is no session.
// The resolved id is stored under "user_id" for handlers and the rate
// limiter.

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/homewatch/internal/session"
)

const userIDKey = "user_id"

// Identity rejects requests that carry neither a valid session nor a valid
// bearer token.
func Identity(sessions *session.Manager, jwtSecret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if id, ok := sessions.UserID(c.Request()); ok {
				c.Set(userIDKey, id)
				return next(c)
			}
			raw, ok := bearerToken(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "not authenticated"})
			}
			id, err := parseBearer(jwtSecret, raw)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}
			c.Set(userIDKey, id)
			return next(c)
		}
	}
}

// UserID returns the acting user id set by Identity, or "".
func UserID(c echo.Context) string {
	if s, ok := c.Get(userIDKey).(string); ok {
		return s
	}
	return ""
}
