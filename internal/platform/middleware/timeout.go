package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// RequestTimeout puts a deadline on the request context. A handler still
// running at the deadline is abandoned and the client gets a 504.
func RequestTimeout(timeout time.Duration, logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			done := make(chan error, 1)
			go func() { done <- next(c) }()

			select {
			case err := <-done:
				return err
			case <-ctx.Done():
			}
			if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return ctx.Err()
			}
			rid, _ := c.Get("request_id").(string)
			logger.Warn().
				Str("request_id", rid).
				Str("path", c.Request().URL.Path).
				Dur("timeout", timeout).
				Msg("request timed out")
			return echo.NewHTTPError(http.StatusGatewayTimeout, "request exceeded "+timeout.String())
		}
	}
}
