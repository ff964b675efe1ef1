// Package echoapi is a fake of the attendance REST API, for local development and integration tests.
// It reproduces the API's status codes and bodies over in-memory fixtures.
package echoapi

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/campusqr/asistencia/core"
)

const csrfHeader = "X-Csrftoken"

type (
	Options struct {
		Address            string
		Debug              bool
		DisableReqLogs     bool
		RequireCSRF        bool
		SecretKey          string
		JWTExpirationDelta time.Duration
		Store              *Store
		Logger             core.Logger
		Registry           *prometheus.Registry // optional
	}

	Server interface {
		http.Handler
		Start() error
		Stop(context.Context) error
	}

	server struct {
		opts    *Options
		app     *echo.Echo
		metrics *metrics
	}
)

var _ Server = (*server)(nil)

func NewServer(opts *Options) Server {
	if opts.Logger == nil {
		opts.Logger = core.NewNopLogger()
	}
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
	}
	if opts.JWTExpirationDelta == 0 {
		opts.JWTExpirationDelta = 24 * time.Hour
	}
	s := &server{
		opts: opts,
		app:  echo.New(),
	}
	s.setup()
	return s
}

func (s *server) setup() {
	validate, translator := core.NewValidator()
	metrics := newMetrics(s.opts.Registry)
	s.metrics = metrics
	auth := newAuthenticator(s.opts.SecretKey, s.opts.JWTExpirationDelta)
	csrf := &csrfTokens{issued: make(map[string]bool)}

	s.app.HideBanner = true
	s.app.Pre(middleware.AddTrailingSlash())
	if !s.opts.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in debug mode
	if !s.opts.Debug {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(middleware.RequestID())
	s.app.Use(metrics.middleware)

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.opts.Logger, translator)
	s.app.Debug = s.opts.Debug

	s.app.GET("/", home)
	s.app.GET("/metrics/", echo.WrapHandler(promhttp.HandlerFor(s.opts.Registry, promhttp.HandlerOpts{})))

	api := s.app.Group("/api")
	authed := api.Group("", middleware.JWTWithConfig(auth.jwtConfig()), auth.accessMiddleware(s.opts.Store))
	if s.opts.RequireCSRF {
		authed.Use(csrfMiddleware(csrf))
	}

	registerUserAPI(api, authed, &userApi{
		store:    s.opts.Store,
		auth:     auth,
		csrf:     csrf,
		validate: validate,
	})
	registerStudentAPI(authed, &studentApi{store: s.opts.Store})
	registerAttendanceAPI(authed, &attendanceApi{
		store:    s.opts.Store,
		validate: validate,
		metrics:  metrics,
		logger:   s.opts.Logger,
	})
}

func (s *server) Start() error {
	return s.app.Start(s.opts.Address)
}

func (s *server) Stop(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Asistencia fake API")
}
