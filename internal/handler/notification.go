package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/homewatch/internal/middleware"
	"github.com/iliyamo/homewatch/internal/notify"
)

// NotificationHandler serves the notification endpoints and the HTTP
// device-event ingestion route.
type NotificationHandler struct {
	Dispatcher *notify.Dispatcher
	Log        *zap.Logger
}

// List returns every notification of the acting user, newest first.
func (h *NotificationHandler) List(c echo.Context) error {
	ctx, cancel := reqCtx(c, requestTimeout)
	defer cancel()

	list, err := h.Dispatcher.List(ctx, middleware.UserID(c))
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, list)
}

// Menu returns the three newest notifications for the app's home screen.
func (h *NotificationHandler) Menu(c echo.Context) error {
	ctx, cancel := reqCtx(c, requestTimeout)
	defer cancel()

	list, err := h.Dispatcher.Recent(ctx, middleware.UserID(c))
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, list)
}

// Detail returns one notification with its region and active cameras.
func (h *NotificationHandler) Detail(c echo.Context) error {
	ctx, cancel := reqCtx(c, requestTimeout)
	defer cancel()

	d, err := h.Dispatcher.Detail(ctx, middleware.UserID(c), c.Param("id"))
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, d)
}

// Delete removes one notification of the acting user.
func (h *NotificationHandler) Delete(c echo.Context) error {
	ctx, cancel := reqCtx(c, requestTimeout)
	defer cancel()

	if err := h.Dispatcher.Delete(ctx, middleware.UserID(c), c.Param("id")); err != nil {
		return respondError(c, h.Log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Ingest records a device event posted over HTTP.  The route is guarded by
// the device key, not by a user identity.
func (h *NotificationHandler) Ingest(c echo.Context) error {
	var ev notify.Event
	if err := c.Bind(&ev); err != nil {
		return badBody(c)
	}
	ev.Source = "http"
	ctx, cancel := reqCtx(c, 15*time.Second)
	defer cancel()

	ns, err := h.Dispatcher.RecordAndDispatch(ctx, ev)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"notificaciones": ns})
}
