package middleware

import (
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	applogger "IgniteX/pkg/logger"
)

// Recover turns handler panics into 500s and logs them with a trimmed stack.
func Recover(l *applogger.Logger) echo.MiddlewareFunc {
	return echomw.RecoverWithConfig(echomw.RecoverConfig{
		StackSize: 8 << 10,
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			l.Error("http handler panic",
				applogger.Error(err),
				applogger.String("route", c.Path()),
				applogger.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
				applogger.String("stack", string(stack)),
			)
			return err
		},
	})
}
