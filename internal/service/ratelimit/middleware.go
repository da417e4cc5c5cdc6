package ratelimit

import (
	xhttp "candlestick/pkg/http"

	"github.com/labstack/echo/v4"
)

// Middleware rejects requests from a client whose bucket is empty.
func Middleware(l *Limiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !l.Allow(c.RealIP()) {
				return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("too many sync requests, retry later"))
			}
			return next(c)
		}
	}
}
