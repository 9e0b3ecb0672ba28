package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/clinref/clinref/internal/platform/apperr"
)

// RequestTimeout sets a deadline on each request context. The handler runs
// on the request goroutine, so panics still reach Recovery and the
// echo.Context is never touched after it has been returned to the pool.
// Store calls made with that context fail once the deadline passes; if
// nothing has been written by then the client receives 504.
func RequestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if timeout <= 0 {
				return next(c)
			}
			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()

			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)
			if errors.Is(ctx.Err(), context.DeadlineExceeded) && !c.Response().Committed {
				return c.JSON(http.StatusGatewayTimeout, apperr.Body{Error: "request exceeded the allowed time limit"})
			}
			return err
		}
	}
}
