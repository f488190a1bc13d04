package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	applogger "IgniteX/pkg/logger"
)

// RequestLogging logs each request once the error handler has written the
// response: debug for success, warn for 4xx, error for 5xx.
func RequestLogging(l *applogger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			if err := next(c); err != nil {
				c.Error(err)
			}

			req, res := c.Request(), c.Response()
			fields := []applogger.Field{
				applogger.String("method", req.Method),
				applogger.String("uri", req.RequestURI),
				applogger.String("remote", c.RealIP()),
				applogger.String("request_id", res.Header().Get(echo.HeaderXRequestID)),
				applogger.Int("status", res.Status),
				applogger.Duration("latency", time.Since(start)),
			}
			switch {
			case res.Status >= 500:
				l.Error("http request", fields...)
			case res.Status >= 400:
				l.Warn("http request", fields...)
			default:
				l.Debug("http request", fields...)
			}
			return nil
		}
	}
}
