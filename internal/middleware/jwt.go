package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/homewatch/internal/utils"
)

// bearerToken extracts the raw token from "Authorization: Bearer <token>".
func bearerToken(c echo.Context) (string, bool) {
	auth := c.Request().Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return "", false
	}
	raw := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	return raw, raw != ""
}

// parseBearer validates raw and returns its subject.
func parseBearer(secret, raw string) (string, error) {
	claims, err := utils.ParseAccessToken(secret, raw)
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", utils.ErrInvalidToken
	}
	return claims.Subject, nil
}
