package echoapi

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
)

const (
	tokenAccess  = "access"
	tokenRefresh = "refresh"

	refreshDeltaFactor = 7
)

var (
	contextTokenKey   = "userToken"
	contextAccountKey = "account"
)

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	UserID    int    `json:"user_id"`
	TokenType string `json:"token_type"`
	Email     string `json:"email,omitempty"`
	Role      string `json:"role,omitempty"`
}

type authenticator struct {
	key   []byte
	delta time.Duration

	mu      sync.Mutex
	revoked map[string]bool
}

func newAuthenticator(secretKey string, delta time.Duration) *authenticator {
	return &authenticator{key: []byte(secretKey), delta: delta, revoked: make(map[string]bool)}
}

func (a *authenticator) jwtConfig() middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey:    a.key,
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    contextTokenKey,
		Claims:        new(Claims),
	}
}

func (a *authenticator) claims(acc account, tokenType string) *Claims {
	now := time.Now()
	delta := a.delta
	if tokenType == tokenRefresh {
		delta *= refreshDeltaFactor
	}
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Subject:   strconv.Itoa(acc.ID),
			ExpiresAt: now.Add(delta).Unix(),
			IssuedAt:  now.Unix(),
		},
		UserID:    acc.ID,
		TokenType: tokenType,
		Email:     acc.Email,
		Role:      acc.Role,
	}
}

// generateToken generates a signed JWT token string representing the Claims.
func (a *authenticator) generateToken(claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	ss, err := token.SignedString(a.key)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func (a *authenticator) parse(raw string) (*Claims, error) {
	claims := new(Claims)
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.key, nil
	})
	if err != nil || !token.Valid {
		return nil, errInvalidToken
	}
	return claims, nil
}

func (a *authenticator) revoke(raw string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.revoked[raw] = true
}

func (a *authenticator) isRevoked(raw string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.revoked[raw]
}

// accessMiddleware rejects refresh & revoked tokens and loads the account of the token.
// It runs after the JWT middleware.
func (a *authenticator) accessMiddleware(store *Store) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			token, ok := ctx.Get(contextTokenKey).(*jwt.Token)
			if !ok {
				return errUnauthorized
			}
			claims, ok := token.Claims.(*Claims)
			if !ok || claims.TokenType != tokenAccess || a.isRevoked(token.Raw) {
				return errInvalidToken
			}
			acc, err := store.accountByID(claims.UserID)
			if err != nil {
				return errInvalidToken
			}
			ctx.Set(contextAccountKey, acc)
			return next(ctx)
		}
	}
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

func getContextAccount(ctx echo.Context) (account, error) {
	if acc, ok := ctx.Get(contextAccountKey).(account); ok {
		return acc, nil
	}
	return account{}, errUnauthorized
}

func studentMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		acc, err := getContextAccount(ctx)
		if err != nil {
			return errors.Wrap(err, "getting context account")
		}
		if !acc.isStudent() {
			return errHttpForbidden
		}
		return next(ctx)
	}
}

type csrfTokens struct {
	mu     sync.Mutex
	issued map[string]bool
}

func (c *csrfTokens) add(tok string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.issued[tok] = true
}

func (c *csrfTokens) valid(tok string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return tok != "" && c.issued[tok]
}

// csrfMiddleware rejects unsafe requests without a token issued by GET get-csrf-token/.
func csrfMiddleware(tokens *csrfTokens) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			switch ctx.Request().Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				return next(ctx)
			}
			if !tokens.valid(ctx.Request().Header.Get(csrfHeader)) {
				return errCSRFFailed
			}
			return next(ctx)
		}
	}
}
