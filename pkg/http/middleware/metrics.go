package middleware

import (
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricsOnce       sync.Once
	metricsRegisterer prometheus.Registerer = prometheus.DefaultRegisterer

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	httpInFlight prometheus.Gauge
)

// SetMetricsRegisterer changes where HTTP metrics are registered. Call it before the
// first Metrics middleware is built.
func SetMetricsRegisterer(r prometheus.Registerer) {
	if r != nil {
		metricsRegisterer = r
	}
}

func initHTTPMetrics() {
	metricsOnce.Do(func() {
		f := promauto.With(metricsRegisterer)
		httpRequests = f.NewCounterVec(prometheus.CounterOpts{
			Name: "signalrelay_http_requests_total",
			Help: "HTTP requests by route template and status",
		}, []string{"route", "method", "status"})
		httpDuration = f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "signalrelay_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"route", "method", "class"})
		httpInFlight = f.NewGauge(prometheus.GaugeOpts{
			Name: "signalrelay_http_in_flight_requests",
			Help: "Requests currently being served",
		})
	})
}

// Metrics records request metrics labelled by the echo route template, so path
// parameters never leak into label values. Handler errors are rendered here so the
// final status is known; outer middleware sees a nil error.
func Metrics() echo.MiddlewareFunc {
	initHTTPMetrics()

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			httpInFlight.Inc()
			defer httpInFlight.Dec()

			if err := next(c); err != nil {
				c.Error(err)
			}

			route, method, code := routeLabel(c), c.Request().Method, c.Response().Status
			httpRequests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
			httpDuration.WithLabelValues(route, method, statusClass(code)).Observe(time.Since(start).Seconds())
			return nil
		}
	}
}

func routeLabel(c echo.Context) string {
	if p := c.Path(); p != "" {
		return p
	}
	return "unmatched"
}

func statusClass(code int) string {
	if code < 100 || code > 599 {
		return "5xx"
	}
	return strconv.Itoa(code/100) + "xx"
}
