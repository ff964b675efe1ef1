package echoapi

import (
	"net/http"

	"github.com/dgrijalva/jwt-go"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/campusqr/asistencia/core"
)

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (r *LoginRequest) Validate(validate *validator.Validate) error {
	r.Email = core.CleanString(r.Email, true)
	return validate.Struct(r)
}

type LoginResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
	UserID  int    `json:"user_id"`
	Email   string `json:"email"`
	Role    string `json:"role"`
}

type RefreshRequest struct {
	Refresh string `json:"refresh" validate:"required,notblank"`
}

type userApi struct {
	store    *Store
	auth     *authenticator
	csrf     *csrfTokens
	validate *validator.Validate
}

func registerUserAPI(g, authed *echo.Group, api *userApi) {
	// un-authed endpoints
	g.GET("/get-csrf-token/", api.csrfToken)
	g.POST("/login/", api.login)
	g.POST("/token/refresh/", api.refreshToken)

	// authed endpoints
	authed.POST("/logout/", api.logout)
}

// Handlers

func (api *userApi) csrfToken(ctx echo.Context) error {
	tok := uuid.New().String()
	api.csrf.add(tok)
	return ctx.JSON(http.StatusOK, echo.Map{"csrfToken": tok})
}

func (api *userApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	acc, err := api.store.authenticate(data.Email, data.Password)
	if err != nil {
		return errBadCredentials
	}
	access, err := api.auth.generateToken(api.auth.claims(acc, tokenAccess))
	if err != nil {
		return errors.Wrap(err, "generating access token")
	}
	refresh, err := api.auth.generateToken(api.auth.claims(acc, tokenRefresh))
	if err != nil {
		return errors.Wrap(err, "generating refresh token")
	}

	return ctx.JSON(http.StatusOK, LoginResponse{
		Access:  access,
		Refresh: refresh,
		UserID:  acc.ID,
		Email:   acc.Email,
		Role:    acc.Role,
	})
}

func (api *userApi) refreshToken(ctx echo.Context) error {
	var data RefreshRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RefreshRequest")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	claims, err := api.auth.parse(data.Refresh)
	if err != nil || claims.TokenType != tokenRefresh || api.auth.isRevoked(data.Refresh) {
		return errInvalidToken
	}
	acc, err := api.store.accountByID(claims.UserID)
	if err != nil {
		return errInvalidToken
	}
	access, err := api.auth.generateToken(api.auth.claims(acc, tokenAccess))
	if err != nil {
		return errors.Wrap(err, "generating access token")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"access": access})
}

func (api *userApi) logout(ctx echo.Context) error {
	token, ok := ctx.Get(contextTokenKey).(*jwt.Token)
	if !ok {
		return errUnauthorized
	}
	api.auth.revoke(token.Raw)
	return ctx.JSON(http.StatusOK, echo.Map{"detail": "Sesión cerrada correctamente."})
}
