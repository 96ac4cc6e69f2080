package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/homewatch/internal/account"
	"github.com/iliyamo/homewatch/internal/middleware"
)

// AccountHandler serves the /api/usuario endpoints.  Every route runs
// behind the identity middleware.
type AccountHandler struct {
	Accounts *account.Service
	Log      *zap.Logger
}

type premiumReq struct {
	Meses          int     `json:"meses"`
	Monto          float64 `json:"monto"`
	SubscriptionID string  `json:"subscriptionId"`
}

type pushTokenReq struct {
	Token string `json:"token"`
}

// Profile returns the acting user with adherents and payments.
func (h *AccountHandler) Profile(c echo.Context) error {
	ctx, cancel := reqCtx(c, requestTimeout)
	defer cancel()

	u, err := h.Accounts.Profile(ctx, middleware.UserID(c))
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, u)
}

// SetPremium upgrades the acting user and records the payment.
func (h *AccountHandler) SetPremium(c echo.Context) error {
	var req premiumReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	ctx, cancel := reqCtx(c, requestTimeout)
	defer cancel()

	u, err := h.Accounts.SetPremium(ctx, middleware.UserID(c), account.Subscription{
		Meses:          req.Meses,
		Monto:          req.Monto,
		SubscriptionID: req.SubscriptionID,
	})
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, u)
}

// SetNormal downgrades the acting user and drops their adherents.
func (h *AccountHandler) SetNormal(c echo.Context) error {
	ctx, cancel := reqCtx(c, requestTimeout)
	defer cancel()

	u, err := h.Accounts.SetNormal(ctx, middleware.UserID(c))
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, u)
}

// Adherents lists the adherents of a PREMIUM account.
func (h *AccountHandler) Adherents(c echo.Context) error {
	ctx, cancel := reqCtx(c, requestTimeout)
	defer cancel()

	list, err := h.Accounts.Adherents(ctx, middleware.UserID(c))
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, list)
}

// AddAdherent creates an adherent account linked to the acting user.
func (h *AccountHandler) AddAdherent(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	ctx, cancel := reqCtx(c, requestTimeout)
	defer cancel()

	u, err := h.Accounts.AddAdherent(ctx, middleware.UserID(c), account.Registration{
		Nombre:   req.Nombre,
		Apellido: req.Apellido,
		Email:    req.Email,
		Password: req.Clave,
	})
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, u)
}

// RemoveAdherent deletes one adherent of the acting user.
func (h *AccountHandler) RemoveAdherent(c echo.Context) error {
	ctx, cancel := reqCtx(c, requestTimeout)
	defer cancel()

	if err := h.Accounts.RemoveAdherent(ctx, middleware.UserID(c), c.Param("id")); err != nil {
		return respondError(c, h.Log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Payments lists the acting user's payments.
func (h *AccountHandler) Payments(c echo.Context) error {
	ctx, cancel := reqCtx(c, requestTimeout)
	defer cancel()

	list, err := h.Accounts.Payments(ctx, middleware.UserID(c))
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, list)
}

// Allowance reports whether the acting user may add another device.
func (h *AccountHandler) Allowance(c echo.Context) error {
	ctx, cancel := reqCtx(c, requestTimeout)
	defer cancel()

	a, err := h.Accounts.Allowance(ctx, middleware.UserID(c))
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, a)
}

// AddPushToken registers a device push token for the acting user.
func (h *AccountHandler) AddPushToken(c echo.Context) error {
	var req pushTokenReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	ctx, cancel := reqCtx(c, requestTimeout)
	defer cancel()

	if err := h.Accounts.AddPushToken(ctx, middleware.UserID(c), req.Token); err != nil {
		return respondError(c, h.Log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// RemovePushToken forgets a push token, typically on app logout.
func (h *AccountHandler) RemovePushToken(c echo.Context) error {
	var req pushTokenReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	ctx, cancel := reqCtx(c, requestTimeout)
	defer cancel()

	if err := h.Accounts.RemovePushToken(ctx, middleware.UserID(c), req.Token); err != nil {
		return respondError(c, h.Log, err)
	}
	return c.NoContent(http.StatusNoContent)
}
