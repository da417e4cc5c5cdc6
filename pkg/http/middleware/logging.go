package middleware

import (
	"time"

	applogger "candlestick/pkg/logger"

	"github.com/labstack/echo/v4"
)

// RequestLogging logs HTTP requests at debug level, client errors at warn.
func RequestLogging(l *applogger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			res := c.Response()
			start := time.Now()

			err := next(c)
			if l == nil {
				return err
			}

			fields := []applogger.Field{
				applogger.String("method", req.Method),
				applogger.String("uri", req.RequestURI),
				applogger.String("remote", c.RealIP()),
				applogger.Int("status", res.Status),
				applogger.Duration("latency_ms", time.Since(start)),
			}
			if id := res.Header().Get(echo.HeaderXRequestID); id != "" {
				fields = append(fields, applogger.String("request_id", id))
			}
			if err != nil {
				fields = append(fields, applogger.Error(err))
			}
			if res.Status >= 400 && res.Status < 500 {
				l.Warn("http request", fields...)
				return err
			}
			l.Debug("http request", fields...)

			return err
		}
	}
}
