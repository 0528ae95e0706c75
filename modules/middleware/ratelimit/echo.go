package ratelimit

import (
	"github.com/labstack/echo/v4"

	rl "planhub/modules/ratelimit"
)

// EchoMiddleware exposes the same admission control as Middleware for
// services built on Echo, so both server flavors share one limiter and one
// response contract.
func EchoMiddleware(limiter *rl.Limiter, identify IdentifyFunc) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			decision := limiter.Check(c.Request().Context(), identify(c.Request()))
			stampHeaders(c.Response(), limiter.Policy(), decision)
			if !decision.Allowed {
				writeDenied(c.Response(), limiter.Policy())
				return nil
			}
			return next(c)
		}
	}
}
