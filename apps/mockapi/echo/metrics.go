package echoapi

import (
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	requests      *prometheus.CounterVec
	registrations *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mockapi",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "code"}),
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mockapi",
			Name:      "qr_registrations_total",
			Help:      "QR attendance registrations by response status code.",
		}, []string{"code"}),
	}
	reg.MustRegister(m.requests, m.registrations)
	return m
}

// middleware renders handler errors itself so the final status code can be counted.
func (m *metrics) middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		if err := next(ctx); err != nil {
			ctx.Error(err)
		}
		m.requests.WithLabelValues(ctx.Path(), ctx.Request().Method, strconv.Itoa(ctx.Response().Status)).Inc()
		return nil
	}
}

func (m *metrics) registration(code int) {
	m.registrations.WithLabelValues(strconv.Itoa(code)).Inc()
}
