package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/homewatch/internal/account"
	"github.com/iliyamo/homewatch/internal/model"
	"github.com/iliyamo/homewatch/internal/session"
	"github.com/iliyamo/homewatch/internal/utils"
)

// AuthHandler serves registration, login and logout.  A successful login
// both starts a server-side session and returns a bearer token.
type AuthHandler struct {
	Accounts  *account.Service
	Sessions  *session.Manager
	JWTSecret string
	TokenTTL  time.Duration
	Log       *zap.Logger
}

// ----- DTOs -----

type registerReq struct {
	Nombre    string `json:"nombre"`
	Apellido  string `json:"apellido"`
	Email     string `json:"email"`
	Clave     string `json:"clave"`
	ExpoToken string `json:"expoToken"`
}

type loginReq struct {
	Email     string `json:"email"`
	Clave     string `json:"clave"`
	ExpoToken string `json:"expoToken"`
}

type googleLoginReq struct {
	IDToken   string `json:"idToken"`
	ExpoToken string `json:"expoToken"`
}

type userPart struct {
	ID     string `json:"id"`
	Nombre string `json:"nombre"`
	Email  string `json:"email"`
}

type loginResp struct {
	Message string    `json:"message"`
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
	Usuario userPart  `json:"usuario"`
}

// Register creates a NORMAL account.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	ctx, cancel := reqCtx(c, requestTimeout)
	defer cancel()

	u, err := h.Accounts.Register(ctx, account.Registration{
		Nombre:    req.Nombre,
		Apellido:  req.Apellido,
		Email:     req.Email,
		Password:  req.Clave,
		PushToken: req.ExpoToken,
	})
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"message": "usuario registrado", "id": u.ID})
}

// Login checks email and password.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	ctx, cancel := reqCtx(c, requestTimeout)
	defer cancel()

	u, err := h.Accounts.Login(ctx, req.Email, req.Clave, req.ExpoToken)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return h.startSession(c, u)
}

// LoginGoogle signs in with a Google id token, creating the account on
// first use.
func (h *AuthHandler) LoginGoogle(c echo.Context) error {
	var req googleLoginReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	ctx, cancel := reqCtx(c, 10*time.Second)
	defer cancel()

	u, err := h.Accounts.LoginExternal(ctx, req.IDToken, req.ExpoToken)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return h.startSession(c, u)
}

func (h *AuthHandler) startSession(c echo.Context, u *model.User) error {
	if err := h.Sessions.Login(c.Response(), c.Request(), u.ID); err != nil {
		return respondError(c, h.Log, err)
	}
	tok, err := utils.NewAccessToken(h.JWTSecret, u.ID, u.Nombre, u.Email, h.TokenTTL)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, loginResp{
		Message: "login exitoso",
		Token:   tok.Token,
		Expires: tok.Exp,
		Usuario: userPart{ID: u.ID, Nombre: u.Nombre, Email: u.Email},
	})
}

// Logout destroys the session.  Bearer tokens simply expire.
func (h *AuthHandler) Logout(c echo.Context) error {
	if err := h.Sessions.Logout(c.Response(), c.Request()); err != nil {
		return respondError(c, h.Log, err)
	}
	return c.NoContent(http.StatusNoContent)
}
