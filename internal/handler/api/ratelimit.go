package api

import (
	"SignalRelay/internal/service/ratelimit"
	xhttp "SignalRelay/pkg/http"

	"github.com/labstack/echo/v4"
)

// RateLimit allows burst requests per client IP, refilled at perSecond.
func RateLimit(l *ratelimit.Limiter, burst, perSecond float64) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !l.Allow(c.RealIP(), burst, perSecond) {
				return xhttp.AppErrorStatusResponse(c, xhttp.TooManyRequestsError("rate limit exceeded"))
			}
			return next(c)
		}
	}
}
