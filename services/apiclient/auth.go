package apiclient

import (
	"context"
	"net/http"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/pkg/errors"

	"github.com/campusqr/asistencia/core"
)

var (
	// errors
	ErrInvalidToken = errors.New("invalid token")
)

type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Login exchanges credentials for a Session. Invalid input returns a *core.ValidationError.
func (c *Client) Login(ctx context.Context, in LoginInput) (Session, error) {
	in.Email = core.CleanString(in.Email, true)
	if err := c.validate.Struct(in); err != nil {
		return Session{}, core.TranslateValidationErrors(err, c.translator)
	}

	var sess Session
	if err := c.do(ctx, http.MethodPost, loginPath, nil, in, &sess); err != nil {
		return Session{}, errors.Wrap(err, "logging in")
	}
	return sess, nil
}

// Logout ends the session carried by ctx.
func (c *Client) Logout(ctx context.Context) error {
	return errors.Wrap(c.do(ctx, http.MethodPost, "logout/", nil, nil, nil), "logging out")
}

// TokenClaims are the claims of an access token.
type TokenClaims struct {
	UserID    int    `json:"user_id"`
	TokenType string `json:"token_type,omitempty"`
	jwt.StandardClaims
}

// ParseTokenClaims decodes the claims of an access token without verifying its signature:
// only the server can verify it, the client reads it to detect expiry early.
func ParseTokenClaims(token string) (*TokenClaims, error) {
	claims := &TokenClaims{}
	if _, _, err := new(jwt.Parser).ParseUnverified(token, claims); err != nil {
		return nil, errors.Wrap(ErrInvalidToken, err.Error())
	}
	return claims, nil
}

// Expired reports whether the token is expired at t. Tokens without exp never expire.
func (c *TokenClaims) Expired(t time.Time) bool {
	return c.ExpiresAt != 0 && t.Unix() >= c.ExpiresAt
}
