// Package middleware holds the request pipeline stages that run around every
// handler: correlation id assignment, APM transactions and HTTP exchange
// capture.
package middleware

import (
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ota-api/notes/internal/tracing"
)

// Tracing assigns a fresh correlation id to every request. The id is stored
// on the echo context under key and bound to the request context together
// with a logger derived from base that carries it as field key.
//
// Echo reuses contexts across requests, so the store entry and the request
// are reset when the stage returns, whether the chain failed or not.
func Tracing(key string, base zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := tracing.NewID()
			req := c.Request()

			c.Set(key, id)
			c.SetRequest(req.WithContext(tracing.WithID(req.Context(), base, key, id)))
			defer func() {
				c.Set(key, nil)
				c.SetRequest(req)
			}()

			return next(c)
		}
	}
}

// CorrelationID returns the id Tracing stored under key.
func CorrelationID(c echo.Context, key string) (string, bool) {
	if id, ok := c.Get(key).(string); ok && id != "" {
		return id, true
	}
	return tracing.IDFromContext(c.Request().Context())
}
