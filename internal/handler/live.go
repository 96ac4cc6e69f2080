package handler

import (
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/homewatch/internal/live"
	"github.com/iliyamo/homewatch/internal/middleware"
)

// LiveHandler upgrades authenticated requests to the live event socket.
type LiveHandler struct {
	Hub *live.Hub
	Log *zap.Logger
}

// Connect attaches the caller to the broadcast hub.  The upgrader has
// already written an error response when the handshake fails.
func (h *LiveHandler) Connect(c echo.Context) error {
	if err := h.Hub.ServeWS(c.Response(), c.Request(), middleware.UserID(c)); err != nil {
		h.Log.Debug("websocket upgrade failed", zap.Error(err))
	}
	return nil
}
