package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/labstack/echo/v4"

	applogger "SmartFlow/pkg/logger"
)

// Recover converts a handler panic into a 500 for the error handler to
// render. http.ErrAbortHandler is re-raised so the server aborts the response.
func Recover(l *applogger.Logger) echo.MiddlewareFunc {
	if l == nil {
		l = applogger.Nop()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				if r == http.ErrAbortHandler {
					panic(r)
				}
				l.Error("http handler panic",
					applogger.String("method", c.Request().Method),
					applogger.String("route", c.Path()),
					applogger.Any("panic", r),
					applogger.String("stack", string(debug.Stack())))
				err = echo.NewHTTPError(http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
			}()
			return next(c)
		}
	}
}
