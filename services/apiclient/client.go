// Package apiclient is the HTTP client of the attendance REST API.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/campusqr/asistencia/core"
)

const (
	csrfHeader      = "X-Csrftoken"
	requestIDHeader = "X-Request-ID"

	loginPath = "login/"
	csrfPath  = "get-csrf-token/"
)

type Options struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client // optional, overrides Timeout
	Logger     core.Logger
}

// Client talks to the attendance API. It holds no credentials:
// the bearer token travels with each request's context (see WithToken).
type Client struct {
	base       *url.URL
	http       *http.Client
	logger     core.Logger
	validate   *validator.Validate
	translator ut.Translator
}

func New(opts Options) (*Client, error) {
	raw := opts.BaseURL
	if !strings.HasSuffix(raw, "/") {
		raw += "/"
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing base url %q", opts.BaseURL)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, errors.Errorf("invalid base url %q", opts.BaseURL)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = core.NewNopLogger()
	}
	validate, translator := core.NewValidator()
	return &Client{
		base:       base,
		http:       httpClient,
		logger:     logger,
		validate:   validate,
		translator: translator,
	}, nil
}

// Error is a non-2xx API response.
type Error struct {
	StatusCode int
	Message    string // the "detail" field of the body, if any
	Body       []byte
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("api: %d %s", e.StatusCode, e.Message)
}

func (e *Error) HTTPStatus() int { return e.StatusCode }

func (e *Error) Detail() string { return e.Message }

type errorBody struct {
	Detail string `json:"detail"`
}

func newError(status int, body []byte) *Error {
	var eb errorBody
	_ = json.Unmarshal(body, &eb) // the detail is optional
	return &Error{StatusCode: status, Message: eb.Detail, Body: body}
}

type ctxKey int

const tokenKey ctxKey = iota

// WithToken returns a copy of ctx carrying the bearer token of the logged in user.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey, token)
}

// Token returns the bearer token carried by ctx, if any.
func Token(ctx context.Context) string {
	tok, _ := ctx.Value(tokenKey).(string)
	return tok
}

func (c *Client) url(path string, query url.Values) string {
	u := c.base.ResolveReference(&url.URL{Path: path})
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// do sends one request and decodes a 2xx JSON body into out (if not nil).
// Non-login POSTs first fetch a CSRF token.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "encoding request")
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path, query), body)
	if err != nil {
		return errors.Wrap(err, "creating request")
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if path != loginPath {
		c.authorize(ctx, req)
		if method == http.MethodPost {
			if tok, err := c.csrfToken(ctx); err != nil {
				c.logger.Warn("fetching csrf token", err)
			} else if tok != "" {
				req.Header.Set(csrfHeader, tok)
			}
		}
	}

	c.logger.Debug(fmt.Sprintf("api: %s %s", method, req.URL.Path))
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "reading response")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newError(resp.StatusCode, data)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.Wrapf(&decodeError{err}, "decoding %s %s response", method, path)
	}
	return nil
}

// decodeError is a 2xx response whose body could not be decoded.
type decodeError struct {
	err error
}

func (e *decodeError) Error() string { return e.err.Error() }

func (e *decodeError) Unwrap() error { return e.err }

func (c *Client) authorize(ctx context.Context, req *http.Request) {
	if tok := Token(ctx); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	if id := core.RequestID(ctx); id != "" {
		req.Header.Set(requestIDHeader, id)
	}
}

func (c *Client) csrfToken(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(csrfPath, nil), nil)
	if err != nil {
		return "", errors.Wrap(err, "creating request")
	}
	c.authorize(ctx, req)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "GET "+csrfPath)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, "reading response")
	}
	if resp.StatusCode != http.StatusOK {
		return "", newError(resp.StatusCode, data)
	}
	var out struct {
		CSRFToken string `json:"csrfToken"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return "", errors.Wrap(err, "decoding csrf token")
	}
	return out.CSRFToken, nil
}
